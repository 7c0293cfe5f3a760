package extract

import (
	"encoding/json"
	"strings"

	"dirigent/internal/protocol"
)

// Key aliases the upstream generator is known to emit for the envelope
// shape itself. Parameter-level aliasing is the adapter's job, not ours;
// here we only need to recognize "this object is a directive".
var (
	targetKeys     = []string{"target", "tool", "worker", "directive"}
	paramKeys      = []string{"parameters", "params", "arguments", "args"}
	subListKeys    = []string{"directives", "sub_directives", "calls"}
	correlationKey = "correlation_id"
)

// decodeEnvelopes interprets a decoded JSON object as either one directive
// envelope or a wrapper holding a list of sub-directives, which are expanded
// into independent envelopes sharing no state. Returns nil when the object
// has no recognizable directive shape.
func decodeEnvelopes(obj map[string]any) []protocol.DirectiveEnvelope {
	// Wrapper with a sub-directive list takes priority: a wrapper may also
	// carry a target-looking field for bookkeeping.
	for _, key := range subListKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			continue
		}
		var out []protocol.DirectiveEnvelope
		for _, item := range list {
			sub, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if env, ok := decodeSingle(sub); ok {
				out = append(out, env)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	if env, ok := decodeSingle(obj); ok {
		return []protocol.DirectiveEnvelope{env}
	}
	return nil
}

// decodeSingle maps one object to an envelope. Structurally valid means a
// non-empty target identifier; a missing parameter object decays to empty.
func decodeSingle(obj map[string]any) (protocol.DirectiveEnvelope, bool) {
	var target string
	for _, key := range targetKeys {
		if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
			target = strings.TrimSpace(v)
			break
		}
	}
	if target == "" {
		return protocol.DirectiveEnvelope{}, false
	}

	params := map[string]any{}
	for _, key := range paramKeys {
		if v, ok := obj[key].(map[string]any); ok {
			params = v
			break
		}
	}

	env := protocol.DirectiveEnvelope{Target: target, Parameters: params}
	if v, ok := obj[correlationKey].(string); ok {
		env.CorrelationID = v
	}
	return env, true
}

// parseObject unmarshals a candidate string into a generic JSON object.
func parseObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
