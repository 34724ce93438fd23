package registry

// StripJSONC removes // and /* */ comments and trailing commas from a JSONC
// document so it can be fed to the standard JSON decoder. String literals
// are tokenized first, so a "//" inside a string (URLs, say) survives.
func StripJSONC(src []byte) []byte {
	out := make([]byte, 0, len(src))
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == '"':
			// Copy the whole string literal, honoring escapes.
			out = append(out, c)
			i++
			for i < n {
				out = append(out, src[i])
				if src[i] == '\\' && i+1 < n {
					i++
					out = append(out, src[i])
				} else if src[i] == '"' {
					i++
					break
				}
				i++
			}
		case c == '/' && i+1 < n && src[i+1] == '/':
			for i < n && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && src[i+1] == '*':
			i += 2
			for i+1 < n && !(src[i] == '*' && src[i+1] == '/') {
				i++
			}
			i += 2
		default:
			out = append(out, c)
			i++
		}
	}
	return stripTrailingCommas(out)
}

// stripTrailingCommas drops a comma whose next significant byte closes an
// object or array. Runs on comment-free input, still string-aware.
func stripTrailingCommas(src []byte) []byte {
	out := make([]byte, 0, len(src))
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		if c == '"' {
			out = append(out, c)
			i++
			for i < n {
				out = append(out, src[i])
				if src[i] == '\\' && i+1 < n {
					i++
					out = append(out, src[i])
				} else if src[i] == '"' {
					i++
					break
				}
				i++
			}
			continue
		}
		if c == ',' {
			j := i + 1
			for j < n && isJSONSpace(src[j]) {
				j++
			}
			if j < n && (src[j] == '}' || src[j] == ']') {
				i++
				continue
			}
		}
		out = append(out, c)
		i++
	}
	return out
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
