package schema

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"dirigent/internal/protocol"
)

// portDeclRe matches "name", "name [N:0]" and "name [H:L]" declarations.
var portDeclRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:\[\s*(\d+)\s*:\s*(\d+)\s*\])?\s*$`)

// parsePortDecl applies the fixed declaration grammar:
//
//	identifier          -> width 1
//	identifier [N:0]    -> width N+1
//	identifier [H:L]    -> width |H-L|+1
func parsePortDecl(s string) (name string, width int, ok bool) {
	m := portDeclRe.FindStringSubmatch(s)
	if m == nil {
		return "", 0, false
	}
	name = m[1]
	if m[2] == "" {
		return name, 1, true
	}
	hi, _ := strconv.Atoi(m[2])
	lo, _ := strconv.Atoi(m[3])
	return name, int(math.Abs(float64(hi-lo))) + 1, true
}

// coercePortList converts a flat list of declaration strings into a list of
// {name, width} records. Items already in record form pass through, which
// keeps the coercion idempotent. Reports ok=false when any list item fits
// neither form.
func coercePortList(v any) (any, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}

	out := make([]any, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case string:
			name, width, ok := parsePortDecl(t)
			if !ok {
				return nil, false
			}
			out = append(out, map[string]any{"name": name, "width": float64(width)})
		case map[string]any:
			if _, hasName := t["name"]; !hasName {
				return nil, false
			}
			// The record may still be shared with the caller's envelope;
			// fill the width on a copy.
			rec := make(map[string]any, len(t)+1)
			for k, v := range t {
				rec[k] = v
			}
			if _, hasWidth := rec["width"]; !hasWidth {
				rec["width"] = float64(1)
			}
			out = append(out, rec)
		default:
			return nil, false
		}
	}
	return out, true
}

// coerceKind converts a raw value to the declared parameter kind when the
// conversion is unambiguous. Reports ok=false when the value cannot
// represent the kind.
func coerceKind(v any, kind protocol.ParamKind) (any, bool) {
	switch kind {
	case protocol.KindString:
		switch t := v.(type) {
		case string:
			return t, true
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(t), true
		}
	case protocol.KindNumber:
		switch t := v.(type) {
		case float64:
			return t, true
		case int:
			return float64(t), true
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return n, true
			}
		}
	case protocol.KindBool:
		switch t := v.(type) {
		case bool:
			return t, true
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
				return b, true
			}
		}
	case protocol.KindList:
		if t, ok := v.([]any); ok {
			return t, true
		}
	case protocol.KindObject:
		if t, ok := v.(map[string]any); ok {
			return t, true
		}
	}
	return nil, false
}

// zeroValue is the type-appropriate fill for an inferable missing field.
func zeroValue(kind protocol.ParamKind) any {
	switch kind {
	case protocol.KindString:
		return ""
	case protocol.KindNumber:
		return float64(0)
	case protocol.KindBool:
		return false
	case protocol.KindList:
		return []any{}
	case protocol.KindObject:
		return map[string]any{}
	}
	return nil
}

// checkConstraints validates a typed value against the spec's pattern,
// range and enum constraints. Returns an empty string when the value passes.
func checkConstraints(v any, spec protocol.ParamSpec) string {
	if spec.Pattern != "" {
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("pattern constraint on non-string value %v", v)
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return fmt.Sprintf("invalid pattern %q in contract", spec.Pattern)
		}
		if !re.MatchString(s) {
			return fmt.Sprintf("value %q does not match pattern %q", s, spec.Pattern)
		}
	}

	if spec.Min != nil || spec.Max != nil {
		n, ok := v.(float64)
		if !ok {
			return fmt.Sprintf("range constraint on non-number value %v", v)
		}
		if spec.Min != nil && n < *spec.Min {
			return fmt.Sprintf("value %v below minimum %v", n, *spec.Min)
		}
		if spec.Max != nil && n > *spec.Max {
			return fmt.Sprintf("value %v above maximum %v", n, *spec.Max)
		}
	}

	if len(spec.Enum) > 0 {
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("enum constraint on non-string value %v", v)
		}
		for _, e := range spec.Enum {
			if s == e {
				return ""
			}
		}
		return fmt.Sprintf("value %q not in enum %v", s, spec.Enum)
	}

	return ""
}
