package extract

// scanObjects walks the input and returns every top-level brace-delimited
// object candidate, tracking nesting depth and string/escape state so that
// braces inside JSON strings do not confuse the boundaries.
//
// Iterating bytes is safe for the ASCII delimiters involved ({, }, ", \):
// UTF-8 never embeds ASCII bytes inside a multi-byte sequence. This keeps
// the scan a single pass with no regex backtracking on large utterances.
func scanObjects(s string) []string {
	var (
		candidates []string
		depth      int
		start      = -1
		inString   bool
		escape     bool
	)

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}

		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
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
