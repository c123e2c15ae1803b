package mapping

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Separator joins extracted tokens into a document's content.
const Separator = " <> "

// Flatten walks record against tmpl and returns every extracted leaf token in
// traversal order (depth first, template field order). It is a pure function
// of its inputs.
//
// Records are JSON-decoded values: map[string]any, []any, string, float64,
// json.Number, bool and nil. Arrays hold a single element type; every nested
// element is walked with the sequence's one element template.
func Flatten(record any, tmpl Template) []string {
	var tokens []string
	walk(record, &tmpl, &tokens)
	return tokens
}

// Content joins tokens with Separator.
func Content(tokens []string) string {
	return strings.Join(tokens, Separator)
}

func walk(v any, tmpl *Template, out *[]string) {
	switch node := v.(type) {
	case []any:
		elem := elemTemplate(tmpl)
		for _, item := range node {
			switch item.(type) {
			case map[string]any, []any:
				walk(item, elem, out)
			default:
				walk(item, nil, out)
			}
		}

	case map[string]any:
		if tmpl == nil || tmpl.kind != KindMapping {
			return
		}
		for i := range tmpl.fields {
			f := &tmpl.fields[i]
			if f.Name == ReservedKey {
				continue
			}
			sub, ok := node[f.lookupKey()]
			if !ok {
				continue
			}
			walk(sub, &f.Template, out)
		}

	default:
		if tok, ok := Token(v); ok {
			*out = append(*out, tok)
		}
	}
}

// elemTemplate returns the template nested array elements are walked with.
func elemTemplate(tmpl *Template) *Template {
	if tmpl == nil || tmpl.kind != KindSequence {
		return nil
	}
	return tmpl.elem
}

// Token stringifies a truthy scalar. nil, false, "", zero and NaN are
// falsy and produce no token; maps and slices are never tokens.
func Token(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, x != ""
	case bool:
		if !x {
			return "", false
		}
		return "true", true
	case json.Number:
		// Integers that fit stay exact; everything else is spelled the way
		// the equivalent float64 would be, so 1.0 and 1e0 both read "1".
		if n, err := x.Int64(); err == nil {
			return Token(n)
		}
		f, err := x.Float64()
		if err != nil && !math.IsInf(f, 0) {
			return x.String(), x.String() != ""
		}
		return Token(f)
	case float64:
		if x == 0 || math.IsNaN(x) {
			return "", false
		}
		return formatNumber(x), true
	case float32:
		return Token(float64(x))
	case int:
		return Token(int64(x))
	case int64:
		if x == 0 {
			return "", false
		}
		return strconv.FormatInt(x, 10), true
	case int32:
		return Token(int64(x))
	case uint64:
		if x == 0 {
			return "", false
		}
		return strconv.FormatUint(x, 10), true
	default:
		return "", false
	}
}

// formatNumber renders whole numbers without a fraction or exponent, the way
// they appear in the source JSON.
func formatNumber(f float64) string {
	if math.IsInf(f, 0) {
		if f > 0 {
			return "Infinity"
		}
		return "-Infinity"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
