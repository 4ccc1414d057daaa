package filesystem

import (
	"bytes"
	"fmt"

	natomic "github.com/natefinch/atomic"
)

// WriteFileAtomic writes data to path using a temporary-file-plus-rename
// sequence so that readers (including a concurrently running reclaim
// pass, or the next backup run) never observe a partially written file.
// This backs the digest index and sidecar writes in pkg/digestindex,
// which must stay crash-safe up to the point of the rename.
func WriteFileAtomic(path string, data []byte) error {
	if err := natomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("unable to atomically write %s: %w", path, err)
	}
	return nil
}
