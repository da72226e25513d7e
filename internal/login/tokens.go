package login

import "sessionkeeper-go/internal/page"

// ExtractTokens picks the named cookies. missing lists names with no
// non-empty cookie, in names order. A later cookie with the same name wins.
func ExtractTokens(cookies []page.Cookie, names []string) (tokens map[string]string, missing []string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	tokens = make(map[string]string, len(names))
	for _, c := range cookies {
		if want[c.Name] && c.Value != "" {
			tokens[c.Name] = c.Value
		}
	}
	for _, n := range names {
		if _, ok := tokens[n]; !ok {
			missing = append(missing, n)
		}
	}
	return tokens, missing
}

// MissingRequired returns the required names absent from tokens.
func MissingRequired(tokens map[string]string, required []string) []string {
	var out []string
	for _, n := range required {
		if tokens[n] == "" {
			out = append(out, n)
		}
	}
	return out
}
