package runtime

import (
	"regexp"
)

// placeholderRe matches {{#node.name#}}.
var placeholderRe = regexp.MustCompile(`\{\{#([^#{}\s]+)#\}\}`)

// RenderTemplate substitutes every {{#node.name#}} placeholder with the text of
// the addressed value. Placeholders whose key is absent stay byte-for-byte.
func RenderTemplate(pool *VariablePool, text string) string {
	if pool == nil || len(text) < 7 {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		inner := placeholderRe.FindStringSubmatch(match)[1]
		key, ok := parseDotted(inner)
		if !ok {
			return match
		}
		v, ok := pool.Get(key)
		if !ok {
			return match
		}
		return v.Text()
	})
}

// RenderValue walks maps and slices rendering every string leaf.
func RenderValue(pool *VariablePool, v any) any {
	switch x := v.(type) {
	case string:
		return RenderTemplate(pool, x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = RenderValue(pool, e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = RenderValue(pool, e)
		}
		return out
	}
	return v
}
