package pdfsplit

import (
	"testing"
)

func numHeading(num string) HeadingMatch {
	return HeadingMatch{Number: num, Path: parsePath(num), Kind: KindNumeric}
}

func chapHeading(n int) HeadingMatch {
	return HeadingMatch{Number: "제" + string(rune('0'+n)) + "장", Path: []int{n}, Kind: KindChapter}
}

func appHeading(n int) HeadingMatch {
	return HeadingMatch{Number: "첨부" + string(rune('0'+n)), Path: []int{n}, Kind: KindAppendix}
}

// WHAT: the monotonic 1.1.1 → 1.1.2 → 1.1.4 sequence yields
// accept/accept/merge.
// WHY: this is the contract the whole splitter is built on: gaps never
// open sections, they merge backward.
func TestTransitionSkipMerges(t *testing.T) {
	var s State
	var a Action

	s, a = Transition(s, numHeading("1.1.1"))
	if a != ActionAccept {
		t.Fatalf("1.1.1: %v, want accept", a)
	}
	s, a = Transition(s, numHeading("1.1.2"))
	if a != ActionAccept {
		t.Fatalf("1.1.2: %v, want accept", a)
	}
	_, a = Transition(s, numHeading("1.1.4"))
	if a != ActionMerge {
		t.Fatalf("1.1.4: %v, want merge", a)
	}
}

func TestTransitionChapterArming(t *testing.T) {
	var s State
	var a Action

	// First 제 1 장 is the title page: armed but not collecting.
	s, a = Transition(s, chapHeading(1))
	if a != ActionIgnore || s.Collecting {
		t.Fatalf("first chapter: %v collecting=%v, want ignore/not-collecting", a, s.Collecting)
	}
	s, a = Transition(s, chapHeading(1))
	if a != ActionAccept || !s.Collecting {
		t.Fatalf("second chapter: %v collecting=%v, want accept/collecting", a, s.Collecting)
	}
	// After 제 1 장, any chapter-1 subsection may open.
	s, a = Transition(s, numHeading("1.1"))
	if a != ActionAccept {
		t.Fatalf("1.1: %v, want accept", a)
	}
	s, a = Transition(s, numHeading("1.2"))
	if a != ActionAccept {
		t.Fatalf("1.2: %v, want accept", a)
	}
	s, a = Transition(s, chapHeading(2))
	if a != ActionAccept || s.Chapter != 2 {
		t.Fatalf("제 2 장: %v chapter=%d, want accept/2", a, s.Chapter)
	}
	// A subsection outside the new chapter merges.
	_, a = Transition(s, numHeading("1.3"))
	if a != ActionMerge {
		t.Fatalf("1.3 in chapter 2: %v, want merge", a)
	}
}

func TestTransitionDuplicateRejected(t *testing.T) {
	var s State
	s, _ = Transition(s, numHeading("1.1"))
	s, _ = Transition(s, numHeading("1.2"))
	_, a := Transition(s, numHeading("1.1"))
	if a != ActionRejectDuplicate {
		t.Fatalf("repeated 1.1: %v, want reject_duplicate", a)
	}
}

func TestTransitionTOCEntryIgnored(t *testing.T) {
	var s State
	s, _ = Transition(s, numHeading("1.1"))
	h := numHeading("1.4")
	h.Recurs = true
	_, a := Transition(s, h)
	if a != ActionIgnore {
		t.Fatalf("recurring out-of-order heading: %v, want ignore", a)
	}
}

func TestTransitionAppendix(t *testing.T) {
	var s State
	s, _ = Transition(s, numHeading("1.1"))

	// Before chapter 6, appendix references are body text.
	_, a := Transition(s, appHeading(1))
	if a != ActionMerge {
		t.Fatalf("early appendix: %v, want merge", a)
	}

	s.MaxChapter = 6
	s, a = Transition(s, appHeading(1))
	if a != ActionAccept {
		t.Fatalf("appendix 1: %v, want accept", a)
	}
	if s.AppendixGap {
		t.Error("no gap for first appendix")
	}
	// Skipping 2 is tolerated but flagged.
	s, a = Transition(s, appHeading(3))
	if a != ActionAccept || !s.AppendixGap {
		t.Fatalf("appendix 3 after 1: %v gap=%v, want accept with gap", a, s.AppendixGap)
	}
	// Going backward merges.
	_, a = Transition(s, appHeading(2))
	if a != ActionMerge {
		t.Fatalf("appendix 2 after 3: %v, want merge", a)
	}
}

func TestTransitionDoesNotStartMidSequence(t *testing.T) {
	var s State
	s, a := Transition(s, numHeading("2.3"))
	if a != ActionIgnore || s.Collecting {
		t.Fatalf("2.3 before collection: %v collecting=%v, want ignore", a, s.Collecting)
	}
}

func TestIsStrictlyNext(t *testing.T) {
	tests := []struct {
		prev, next string
		want       bool
	}{
		{"1.1.1", "1.1.2", true},  // same-depth sibling
		{"1.1", "1.1.1", true},    // first child
		{"1.1.3", "1.2", true},    // ancestor increment
		{"1.2.3", "2.1", true},    // ancestor increment, fresh descent
		{"1.1", "1.2.1", true},    // increment then descend
		{"1.1.2", "1.1.4", false}, // gap
		{"1.1", "1.3", false},     // sibling gap
		{"1.2.3", "1.2", false},   // own ancestor
		{"1.1", "1.2.2", false},   // descent not starting at 1
		{"2.1", "1.1", false},     // backward
	}
	for _, tt := range tests {
		got := isStrictlyNext(parsePath(tt.prev), parsePath(tt.next))
		if got != tt.want {
			t.Errorf("isStrictlyNext(%s, %s) = %v, want %v", tt.prev, tt.next, got, tt.want)
		}
	}
}
