// Package template substitutes {{ref}} markers in action config values.
// A ref is a parameter name, an actionId.field lookup into a prior action
// result, or a $-prefixed jsonpath over the whole resolution context.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chorusflow/chorus/expr"
	"github.com/chorusflow/chorus/model"
	"github.com/oliveagle/jsonpath"
)

var refPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// ResolveConfig resolves every templated string in config against ctx,
// recursing through nested maps and lists. An unresolvable reference is an
// error; it never passes through as literal text.
func ResolveConfig(config map[string]any, ctx map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(config))
	for k, v := range config {
		resolved, err := resolveValue(v, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveValue(value any, ctx map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return ResolveString(v, ctx)
	case map[string]any:
		return ResolveConfig(v, ctx)
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			resolved, err := resolveValue(item, ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved)
		}
		return out, nil
	default:
		return value, nil
	}
}

// ResolveString substitutes every {{ref}} in s. When the whole string is a
// single marker the referenced value keeps its type; otherwise values are
// stringified into the surrounding text.
func ResolveString(s string, ctx map[string]any) (any, error) {
	matches := refPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return s, nil
	}
	if len(matches) == 1 && strings.TrimSpace(s) == matches[0][0] {
		return lookupRef(matches[0][1], ctx)
	}
	result := s
	for _, m := range matches {
		value, err := lookupRef(m[1], ctx)
		if err != nil {
			return nil, err
		}
		result = strings.Replace(result, m[0], fmt.Sprintf("%v", value), 1)
	}
	return result, nil
}

func lookupRef(ref string, ctx map[string]any) (any, error) {
	if strings.HasPrefix(ref, "$") {
		value, err := jsonpath.JsonPathLookup(ctx, ref)
		if err != nil {
			return nil, model.ValidationError{Message: fmt.Sprintf("unresolved template reference %s", ref)}
		}
		return value, nil
	}
	value := expr.Lookup(ctx, ref)
	if value == nil {
		return nil, model.ValidationError{Message: fmt.Sprintf("unresolved template reference %s", ref)}
	}
	return value, nil
}
