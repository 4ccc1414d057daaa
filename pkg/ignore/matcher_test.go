package ignore

import "testing"

func TestMatcherBasicGlob(t *testing.T) {
	m, err := NewMatcher([]string{"*.tmp"})
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	if m.Match("drop.tmp", false) != StatusIgnored {
		t.Fatalf("expected drop.tmp to be ignored")
	}
	if m.Match("keep.txt", false) != StatusNominal {
		t.Fatalf("expected keep.txt to be nominal")
	}
}

func TestMatcherAnchoredPattern(t *testing.T) {
	m, err := NewMatcher([]string{"/build"})
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	if m.Match("build", true) != StatusIgnored {
		t.Fatalf("expected root-anchored build/ to be ignored")
	}
	if m.Match("sub/build", true) != StatusNominal {
		t.Fatalf("expected nested build/ not to match anchored pattern")
	}
}

func TestMatcherDirectoryOnlyPattern(t *testing.T) {
	m, err := NewMatcher([]string{"cache/"})
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	if m.Match("cache", true) != StatusIgnored {
		t.Fatalf("expected directory cache to be ignored")
	}
	if m.Match("cache", false) != StatusNominal {
		t.Fatalf("expected file named cache to be unaffected by directory-only pattern")
	}
}

func TestMatcherNegation(t *testing.T) {
	m, err := NewMatcher([]string{"*.log", "!important.log"})
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	if m.Match("debug.log", false) != StatusIgnored {
		t.Fatalf("expected debug.log to be ignored")
	}
	if m.Match("important.log", false) != StatusUnignored {
		t.Fatalf("expected important.log to be unignored by negation")
	}
}

func TestMatcherLeafMatchForUnanchoredPattern(t *testing.T) {
	m, err := NewMatcher([]string{"*.tmp"})
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	if m.Match("nested/deep/drop.tmp", false) != StatusIgnored {
		t.Fatalf("expected unanchored pattern to match at any depth via leaf matching")
	}
}

func TestParseRejectsRootPattern(t *testing.T) {
	if _, err := Parse("/"); err == nil {
		t.Fatalf("expected root pattern to be rejected")
	}
}

func TestParseRejectsEmptyPattern(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Fatalf("expected empty pattern to be rejected")
	}
	if _, err := Parse("!"); err == nil {
		t.Fatalf("expected negated empty pattern to be rejected")
	}
}
