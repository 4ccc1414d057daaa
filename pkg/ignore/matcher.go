package ignore

import "fmt"

// Matcher evaluates a fixed, ordered list of patterns against a path,
// implementing the ignore predicate's pure decision function: given a
// path and whether it's a directory, return whether it's ignored.
type Matcher struct {
	patterns     []*Pattern
	negatedCount uint
}

// NewMatcher parses patterns in order and returns a Matcher. Patterns
// later in the list take precedence over earlier ones (a later negation
// can re-include something an earlier pattern excluded, and vice versa).
func NewMatcher(patterns []string) (*Matcher, error) {
	parsed := make([]*Pattern, len(patterns))
	var negatedCount uint
	for i, raw := range patterns {
		p, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to parse pattern %q: %w", raw, err)
		}
		parsed[i] = p
		if p.negated {
			negatedCount++
		}
	}
	return &Matcher{patterns: parsed, negatedCount: negatedCount}, nil
}

// Match evaluates path (directory indicates whether the path names a
// directory) against the pattern list and returns its final status.
func (m *Matcher) Match(path string, directory bool) Status {
	status := StatusNominal
	negatedRemaining := m.negatedCount

	for _, p := range m.patterns {
		if status == StatusIgnored && negatedRemaining == 0 {
			break
		}
		if p.negated {
			negatedRemaining--
			if status == StatusUnignored {
				continue
			}
		} else if status == StatusIgnored {
			continue
		}

		if !p.matches(path, directory) {
			continue
		}
		if p.negated {
			status = StatusUnignored
		} else {
			status = StatusIgnored
		}
	}

	return status
}

// Len returns the number of parsed patterns in the matcher.
func (m *Matcher) Len() int {
	return len(m.patterns)
}
