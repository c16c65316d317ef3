package articulation

// stringState tracks whether a byte offset lies inside a string literal.
//
// Iterating bytes is safe for the ASCII delimiters involved ({, }, ", ', \) because
// UTF-8 guarantees ASCII bytes never appear inside a multi-byte sequence.
type stringState struct {
	quotes string // delimiters that open a string
	quote  byte   // active delimiter, 0 outside strings
	escape bool
}

func newStringState(quotes string) *stringState {
	return &stringState{quotes: quotes}
}

// inString reports whether the scanner is currently inside a literal.
func (st *stringState) inString() bool {
	return st.quote != 0
}

// advance consumes b and reports whether b belongs to a string literal,
// delimiters included.
func (st *stringState) advance(b byte) bool {
	if st.quote != 0 {
		switch {
		case st.escape:
			st.escape = false
		case b == '\\':
			st.escape = true
		case b == st.quote:
			st.quote = 0
		}
		return true
	}
	for i := 0; i < len(st.quotes); i++ {
		if b == st.quotes[i] {
			st.quote = b
			return true
		}
	}
	return false
}

// findJSONCandidates scans the input for balanced top-level JSON objects,
// skipping braces that appear inside strings.
func findJSONCandidates(s string) []string {
	var candidates []string
	depth := 0
	start := -1
	st := newStringState(`"`)

	for i := 0; i < len(s); i++ {
		b := s[i]
		if st.advance(b) {
			continue
		}

		switch b {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}

	return candidates
}
