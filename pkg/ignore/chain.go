package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the name of the per-directory ignore file.
const FileName = ".dhbignore"

// DefaultPatterns are built-in patterns applied at the synchronization
// root regardless of any .dhbignore content.
var DefaultPatterns = []string{".cache/"}

// Chain represents the accumulated, ordered pattern list in effect for
// one directory level: its ancestors' patterns followed by its own
// local patterns. Because later patterns take precedence in Matcher's
// evaluation, appending (rather than replacing) means a directory's own
// patterns can extend or negate what its ancestors declared, but can
// never silently erase an ancestor pattern unless explicitly negated.
type Chain struct {
	raw     []string
	matcher *Matcher
}

// Root returns the initial Chain for the synchronization root, seeded
// with DefaultPatterns, any extra patterns supplied by the caller (e.g.
// from backup.Options.IgnorePatterns), and any patterns found in a
// .dhbignore file at root itself.
func Root(root string, extra ...string) (*Chain, error) {
	var empty *Chain
	chain, err := empty.Extend(root)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return chain, nil
	}

	combined := append(append([]string{}, chain.raw...), extra...)
	matcher, err := NewMatcher(combined)
	if err != nil {
		return nil, fmt.Errorf("unable to build ignore matcher for %s: %w", root, err)
	}
	return &Chain{raw: combined, matcher: matcher}, nil
}

// Extend reads dir's local .dhbignore file (if any) and returns a new
// Chain combining the receiver's patterns with the local ones. The
// receiver is left unmodified, so sibling directories can each extend
// the same parent chain independently.
func (c *Chain) Extend(dir string) (*Chain, error) {
	local, err := loadLocalPatterns(dir)
	if err != nil {
		return nil, err
	}

	var combined []string
	if c != nil {
		combined = append(combined, c.raw...)
	} else {
		combined = append(combined, DefaultPatterns...)
	}
	combined = append(combined, local...)

	matcher, err := NewMatcher(combined)
	if err != nil {
		return nil, fmt.Errorf("unable to build ignore matcher for %s: %w", dir, err)
	}

	return &Chain{raw: combined, matcher: matcher}, nil
}

// Match evaluates path (relative to the synchronization root) against
// the chain's accumulated patterns.
func (c *Chain) Match(path string, directory bool) Status {
	if c == nil || c.matcher == nil {
		return StatusNominal
	}
	return c.matcher.Match(path, directory)
}

// loadLocalPatterns reads and parses the .dhbignore file in dir, if
// present. Blank lines and lines starting with '#' are ignored.
func loadLocalPatterns(dir string) ([]string, error) {
	file, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to open %s: %w", FileName, err)
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", FileName, err)
	}

	return patterns, nil
}
