package pdfsplit

// Action is the sequencer's decision for one heading occurrence.
type Action int

const (
	// ActionIgnore: not collecting yet, TOC entry, or otherwise skipped;
	// the text flows into whatever section is current.
	ActionIgnore Action = iota
	// ActionAccept: the heading opens a new section.
	ActionAccept
	// ActionMerge: the heading is out of order; its region merges into
	// the previous section (with content-hash dedup).
	ActionMerge
	// ActionRejectDuplicate: the heading number was already accepted.
	ActionRejectDuplicate
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionAccept:
		return "accept"
	case ActionMerge:
		return "merge_into_previous"
	case ActionRejectDuplicate:
		return "reject_duplicate"
	}
	return "unknown"
}

// State is the sequencer's complete decision context. Transition treats it
// as a value; the accepted set is copied on write so earlier states stay
// valid.
type State struct {
	Collecting bool
	// Armed is set by the first "제 1 장" occurrence, which is the title
	// page; the next one starts collection.
	Armed bool
	// Chapter is the current chapter number, 0 outside chapter mode.
	Chapter    int
	MaxChapter int
	// ExpectFirstSub is set right after a chapter heading: the next
	// numeric heading only needs to belong to the chapter, not to be a
	// strict successor.
	ExpectFirstSub bool
	// Current is the numeric path of the last accepted numeric heading.
	Current []int
	// LastAppendix is the highest accepted appendix number.
	LastAppendix int
	// AppendixGap is set when the last accepted appendix skipped numbers;
	// the caller logs it.
	AppendixGap bool

	accepted map[string]bool
}

// Transition is the pure decision function: given the state so far and the
// next heading occurrence, it returns the successor state and the action
// to take. It never mutates its arguments.
func Transition(s State, h HeadingMatch) (State, Action) {
	s.AppendixGap = false

	if s.accepted != nil && s.accepted[h.Number] {
		return s, ActionRejectDuplicate
	}

	if !s.Collecting {
		return startTransition(s, h)
	}

	switch h.Kind {
	case KindChapter:
		return chapterTransition(s, h)
	case KindAppendix:
		return appendixTransition(s, h)
	default:
		return numericTransition(s, h)
	}
}

// startTransition handles the pre-collection phase: a repeated "제 1 장"
// or an all-ones numeric heading opens the document body.
func startTransition(s State, h HeadingMatch) (State, Action) {
	switch h.Kind {
	case KindChapter:
		if len(h.Path) == 1 && h.Path[0] == 1 {
			if !s.Armed {
				s.Armed = true
				return s, ActionIgnore
			}
			s.Collecting = true
			s.Chapter = 1
			s.MaxChapter = 1
			s.ExpectFirstSub = true
			s.Current = []int{1}
			s = accept(s, h)
			return s, ActionAccept
		}
	case KindNumeric:
		if isStartPath(h.Path) && !h.Recurs {
			s.Collecting = true
			s.Current = h.Path
			s = accept(s, h)
			return s, ActionAccept
		}
	}
	return s, ActionIgnore
}

func chapterTransition(s State, h HeadingMatch) (State, Action) {
	n := h.Path[0]
	if n != s.MaxChapter+1 {
		return merge(s, h)
	}
	s.Chapter = n
	s.MaxChapter = n
	s.ExpectFirstSub = true
	s.Current = []int{n}
	s = accept(s, h)
	return s, ActionAccept
}

func appendixTransition(s State, h HeadingMatch) (State, Action) {
	// Appendices only exist after the chapter body; accepting them early
	// would swallow body references like "첨부 3 참조".
	if s.MaxChapter < 6 {
		return merge(s, h)
	}
	n := h.Path[0]
	if n <= s.LastAppendix {
		return merge(s, h)
	}
	if s.LastAppendix > 0 && n != s.LastAppendix+1 {
		s.AppendixGap = true
	}
	s.LastAppendix = n
	s.Chapter = 0
	s.ExpectFirstSub = false
	s = accept(s, h)
	return s, ActionAccept
}

func numericTransition(s State, h HeadingMatch) (State, Action) {
	if h.Path == nil {
		return s, ActionIgnore
	}
	if s.ExpectFirstSub && s.Chapter > 0 {
		if h.Path[0] == s.Chapter {
			s.ExpectFirstSub = false
			s.Current = h.Path
			s = accept(s, h)
			return s, ActionAccept
		}
		return merge(s, h)
	}
	if isStrictlyNext(s.Current, h.Path) {
		s.Current = h.Path
		s = accept(s, h)
		return s, ActionAccept
	}
	return merge(s, h)
}

// merge resolves an out-of-order heading. Occurrences that recur later are
// table-of-contents entries and are ignored instead of merged.
func merge(s State, h HeadingMatch) (State, Action) {
	if h.Recurs {
		return s, ActionIgnore
	}
	return s, ActionMerge
}

func accept(s State, h HeadingMatch) State {
	m := make(map[string]bool, len(s.accepted)+1)
	for k := range s.accepted {
		m[k] = true
	}
	m[h.Number] = true
	s.accepted = m
	return s
}

// isStartPath reports whether path is an all-ones opener like 1.1 or
// 1.1.1.
func isStartPath(path []int) bool {
	if len(path) < 2 {
		return false
	}
	for _, p := range path {
		if p != 1 {
			return false
		}
	}
	return true
}

// isStrictlyNext reports whether next is the immediate successor of prev:
// the same-depth sibling, the first child, or an ancestor-level increment
// optionally descending into fresh 1-chains.
func isStrictlyNext(prev, next []int) bool {
	if len(prev) == 0 || len(next) == 0 {
		return false
	}
	// First child: prev + [1].
	if len(next) == len(prev)+1 && prefixEqual(prev, next[:len(prev)]) && next[len(next)-1] == 1 {
		return true
	}
	// Increment at some ancestor depth k, descendants reset to 1.
	for k := 0; k < len(prev) && k < len(next); k++ {
		if next[k] == prev[k] {
			continue
		}
		if next[k] != prev[k]+1 {
			return false
		}
		for _, rest := range next[k+1:] {
			if rest != 1 {
				return false
			}
		}
		return true
	}
	return false
}

func prefixEqual(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
