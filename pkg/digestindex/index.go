// Package digestindex implements a persisted, self-checksummed map from
// relative path to 128-bit content digest. The persisted text form is
// sorted, lexicographically by path, with backslashes, newlines, and
// carriage returns in paths backslash-escaped, so that two backup runs
// over identical inputs produce
// byte-identical index files.
package digestindex

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/timabell/disk-hog-backup/pkg/filesystem"
)

// IndexFileName is the fixed name of the digest index file within a set
// root.
const IndexFileName = "disk-hog-backup-hashes.md5"

// SidecarFileName is the fixed name of the index's self-checksum file.
const SidecarFileName = IndexFileName + ".md5"

// DigestSize is the byte length of an MD5 digest.
const DigestSize = md5.Size

// Index is an in-memory, sorted-on-persist map from relative path to
// content digest for a single backup set. It is owned by the traversal
// goroutine and is not safe for concurrent use: the digest index is
// always updated from that single thread.
type Index struct {
	entries map[string][DigestSize]byte
}

// New creates an empty Index.
func New() *Index {
	return &Index{entries: make(map[string][DigestSize]byte)}
}

// Lookup returns the digest recorded for rel, if any.
func (idx *Index) Lookup(rel string) (digest [DigestSize]byte, ok bool) {
	digest, ok = idx.entries[rel]
	return
}

// Insert records (or overwrites) the digest for rel.
func (idx *Index) Insert(rel string, digest [DigestSize]byte) {
	idx.entries[rel] = digest
}

// Len returns the number of entries currently recorded.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Paths returns all relative paths recorded in the index, unordered.
func (idx *Index) Paths() []string {
	paths := make([]string, 0, len(idx.entries))
	for p := range idx.entries {
		paths = append(paths, p)
	}
	return paths
}

// escapeLine backslash-escapes '\\', '\n', and '\r' in path, returning
// the escaped path and whether any escaping was necessary. When a path
// contains any of those three characters, the whole line is prefixed
// with a leading '\\' marker and the characters themselves are
// backslash-escaped.
func escapeLine(path string) (string, bool) {
	if !strings.ContainsAny(path, "\\\n\r") {
		return path, false
	}
	var b strings.Builder
	for _, r := range path {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), true
}

// unescapeLine reverses escapeLine.
func unescapeLine(escaped string) (string, error) {
	var b strings.Builder
	b.Grow(len(escaped))
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(escaped) {
			return "", fmt.Errorf("dangling escape at end of line")
		}
		switch escaped[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			return "", fmt.Errorf("invalid escape sequence \\%c", escaped[i])
		}
	}
	return b.String(), nil
}

// render produces the sorted, canonical text form of the index.
func (idx *Index) render() []byte {
	paths := idx.Paths()
	sort.Strings(paths)

	var buf bytes.Buffer
	for _, path := range paths {
		digest := idx.entries[path]
		hexDigest := hex.EncodeToString(digest[:])
		escaped, wasEscaped := escapeLine(path)
		if wasEscaped {
			buf.WriteByte('\\')
		}
		buf.WriteString(hexDigest)
		buf.WriteString("  ")
		buf.WriteString(escaped)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Persist writes the index to <root>/IndexFileName, then computes and
// writes the sidecar checksum of the just-written file to
// <root>/SidecarFileName. Both writes are atomic (temp-file-plus-rename),
// so a reader never observes a partially written index or sidecar.
func (idx *Index) Persist(root string) error {
	indexPath := filepath.Join(root, IndexFileName)
	sidecarPath := filepath.Join(root, SidecarFileName)

	data := idx.render()
	if err := filesystem.WriteFileAtomic(indexPath, data); err != nil {
		return fmt.Errorf("unable to persist digest index: %w", err)
	}

	sum := md5.Sum(data)
	sidecarLine := fmt.Sprintf("%s  %s\n", hex.EncodeToString(sum[:]), IndexFileName)
	if err := filesystem.WriteFileAtomic(sidecarPath, []byte(sidecarLine)); err != nil {
		return fmt.Errorf("unable to persist digest index sidecar: %w", err)
	}

	return nil
}

// Load reads the digest index from <root>/IndexFileName. If the index
// file does not exist, Load returns a non-nil, empty Index and no error.
// Parsing is tolerant: blank lines, comment lines ('#'), malformed hex
// digests, and lines lacking the two-space separator are silently
// skipped rather than causing Load to fail.
func Load(root string) (*Index, error) {
	path := filepath.Join(root, IndexFileName)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("unable to open digest index: %w", err)
	}
	defer file.Close()

	idx := New()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		parseLine(idx, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read digest index: %w", err)
	}

	return idx, nil
}

// parseLine parses a single line of the digest index format, inserting a
// valid entry into idx and silently ignoring anything malformed.
func parseLine(idx *Index, line string) {
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	escaped := strings.HasPrefix(line, `\`)
	if escaped {
		line = line[1:]
	}

	separator := strings.Index(line, "  ")
	if separator < 0 {
		return
	}
	hexDigest := line[:separator]
	path := line[separator+2:]

	if len(hexDigest) != DigestSize*2 {
		return
	}
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return
	}

	if escaped {
		path, err = unescapeLine(path)
		if err != nil {
			return
		}
	}

	var digest [DigestSize]byte
	copy(digest[:], raw)
	idx.Insert(path, digest)
}

// VerifySidecar re-reads the index and sidecar files from root and
// confirms that the sidecar's recorded digest equals the MD5 of the
// index file's current byte content.
func VerifySidecar(root string) (bool, error) {
	indexPath := filepath.Join(root, IndexFileName)
	sidecarPath := filepath.Join(root, SidecarFileName)

	data, err := os.ReadFile(indexPath)
	if err != nil {
		return false, fmt.Errorf("unable to read digest index: %w", err)
	}
	sidecarData, err := os.ReadFile(sidecarPath)
	if err != nil {
		return false, fmt.Errorf("unable to read digest index sidecar: %w", err)
	}

	fields := strings.Fields(string(sidecarData))
	if len(fields) < 1 {
		return false, fmt.Errorf("malformed sidecar file")
	}
	recorded := fields[0]

	actual := md5.Sum(data)
	return strings.EqualFold(recorded, hex.EncodeToString(actual[:])), nil
}
