// Package setid implements timestamped backup set identifier generation
// and the locator that enumerates and orders prior sets. A set is only
// considered complete — and therefore eligible to be used as a prior set
// — once its digest index, sidecar, and a READY sentinel are all
// present, making completeness an explicit marker rather than something
// inferred from partial state.
package setid

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/timabell/disk-hog-backup/pkg/digestindex"
)

// Prefix is the fixed prefix every backup set directory name carries.
const Prefix = "dhb-set-"

// timeFormat is the layout used to render and parse the timestamp
// portion of a set identifier: "dhb-set-YYYYMMDD-HHMMSS" (UTC).
const timeFormat = "20060102-150405"

// ReadyFileName is the sentinel file written last, after the digest
// index and its sidecar, marking a set as complete.
const ReadyFileName = "READY"

var namePattern = regexp.MustCompile(`^dhb-set-(\d{8}-\d{6})$`)

// New generates a new set identifier for the given UTC time.
func New(now time.Time) string {
	return Prefix + now.UTC().Format(timeFormat)
}

// ParseTime extracts the UTC timestamp encoded in a set identifier. It
// returns false if name does not match the expected pattern.
func ParseTime(name string) (time.Time, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(timeFormat, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Set describes one backup set directory discovered under a destination
// root.
type Set struct {
	// Name is the set's directory name (e.g. "dhb-set-20260115-093000").
	Name string
	// Path is the set's absolute (or caller-relative) directory path.
	Path string
	// CreatedAt is the creation time used for ordering: the timestamp
	// encoded in Name, or a best-effort fallback (see creationTime) when
	// the name does not parse.
	CreatedAt time.Time
}

// IsComplete reports whether the set at path has a complete digest
// index, sidecar, and READY sentinel.
func IsComplete(path string) bool {
	for _, name := range []string{digestindex.IndexFileName, digestindex.SidecarFileName, ReadyFileName} {
		if _, err := os.Stat(filepath.Join(path, name)); err != nil {
			return false
		}
	}
	return true
}

// MarkReady writes the READY sentinel into a set directory. It must be
// called only after the digest index and its sidecar have both been
// persisted successfully.
func MarkReady(path string) error {
	return os.WriteFile(filepath.Join(path, ReadyFileName), []byte{}, 0644)
}

// ListSets enumerates the complete backup sets under dest, ordered by
// creation time ascending (ties broken by name). Incomplete sets are
// silently excluded, since readers must never select one as a prior set.
func ListSets(dest string) ([]Set, error) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sets []Set
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !namePattern.MatchString(name) {
			continue
		}
		path := filepath.Join(dest, name)
		if !IsComplete(path) {
			continue
		}

		created := creationTime(path, name)
		sets = append(sets, Set{Name: name, Path: path, CreatedAt: created})
	}

	sort.Slice(sets, func(i, j int) bool {
		if !sets[i].CreatedAt.Equal(sets[j].CreatedAt) {
			return sets[i].CreatedAt.Before(sets[j].CreatedAt)
		}
		return sets[i].Name < sets[j].Name
	})

	return sets, nil
}

// creationTime returns the best available creation-time signal for
// ordering: the set's encoded timestamp (which is monotonic with
// creation order by construction), falling back to the filesystem
// modification time, and finally to the UNIX epoch so that sorting
// remains total even when every other signal is unavailable.
func creationTime(path, name string) time.Time {
	if t, ok := ParseTime(name); ok {
		return t
	}
	if info, err := os.Stat(path); err == nil {
		return info.ModTime()
	}
	return time.Unix(0, 0).UTC()
}

// MostRecent returns the most recently created complete set under dest,
// or ok=false if none exist.
func MostRecent(dest string) (set Set, ok bool, err error) {
	sets, err := ListSets(dest)
	if err != nil {
		return Set{}, false, err
	}
	if len(sets) == 0 {
		return Set{}, false, nil
	}
	return sets[len(sets)-1], true, nil
}
