package stage

import "regexp"

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Format substitutes `{key}` placeholders in tmpl from values, falling back
// to fallback for any placeholder values doesn't name — mirroring the
// tolerant str.format(**fmt) key discovery in the original source's
// stage templates, where an unrecognized key still gets something
// reasonable rather than a KeyError.
func Format(tmpl string, values map[string]string, fallback string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := values[key]; ok {
			return v
		}
		return fallback
	})
}
