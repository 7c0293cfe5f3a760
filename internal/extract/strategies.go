package extract

import (
	"regexp"
	"strconv"
	"strings"

	"dirigent/internal/protocol"
)

// Strategy is one way of recovering directive envelopes from free text.
// Strategies never fail on malformed input: an empty result is the signal.
// Order matters to the extractor; each strategy is independently testable.
type Strategy interface {
	Name() string
	Extract(utterance protocol.RawUtterance) []protocol.DirectiveEnvelope
}

// =============================================================================
// 1. WHOLE-UTTERANCE JSON
// =============================================================================

// WholeUtteranceStrategy treats the entire utterance as a single JSON
// envelope object, optionally carrying a sub-directive list. Most precise:
// the generator followed the requested format exactly.
type WholeUtteranceStrategy struct{}

func (WholeUtteranceStrategy) Name() string { return "whole_utterance" }

func (WholeUtteranceStrategy) Extract(u protocol.RawUtterance) []protocol.DirectiveEnvelope {
	obj, ok := parseObject(string(u))
	if !ok {
		return nil
	}
	return decodeEnvelopes(obj)
}

// =============================================================================
// 2. FENCED BLOCKS
// =============================================================================

// FencedBlockStrategy scans triple-backtick fences and parses each block
// body as JSON, accepting the first block with a valid directive shape.
// Language tags after the opening fence are ignored.
type FencedBlockStrategy struct{}

func (FencedBlockStrategy) Name() string { return "fenced_block" }

func (FencedBlockStrategy) Extract(u protocol.RawUtterance) []protocol.DirectiveEnvelope {
	for _, block := range fencedBlocks(string(u)) {
		obj, ok := parseObject(block)
		if !ok {
			// The block may mix prose and JSON; fall back to the
			// brace scanner within the block.
			for _, cand := range scanObjects(block) {
				if o, ok := parseObject(cand); ok {
					if envs := decodeEnvelopes(o); envs != nil {
						return envs
					}
				}
			}
			continue
		}
		if envs := decodeEnvelopes(obj); envs != nil {
			return envs
		}
	}
	return nil
}

// fencedBlocks returns the interior of every ``` fence in order.
func fencedBlocks(s string) []string {
	var blocks []string
	for {
		open := strings.Index(s, "```")
		if open < 0 {
			break
		}
		rest := s[open+3:]
		// Drop the language tag line if present.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			firstLine := strings.TrimSpace(rest[:nl])
			if firstLine != "" && !strings.ContainsAny(firstLine, "{}") {
				rest = rest[nl+1:]
			}
		}
		close := strings.Index(rest, "```")
		if close < 0 {
			break
		}
		blocks = append(blocks, rest[:close])
		s = rest[close+3:]
	}
	return blocks
}

// =============================================================================
// 3. EMBEDDED OBJECTS
// =============================================================================

// EmbeddedObjectStrategy recovers envelope objects buried in plain prose
// with no fence, using the single-pass brace scanner to locate candidates.
// First valid candidate wins.
type EmbeddedObjectStrategy struct{}

func (EmbeddedObjectStrategy) Name() string { return "embedded_object" }

func (EmbeddedObjectStrategy) Extract(u protocol.RawUtterance) []protocol.DirectiveEnvelope {
	for _, cand := range scanObjects(string(u)) {
		obj, ok := parseObject(cand)
		if !ok {
			continue
		}
		if envs := decodeEnvelopes(obj); envs != nil {
			return envs
		}
	}
	return nil
}

// =============================================================================
// 4. TAGGED MARKUP
// =============================================================================

var (
	directiveTagRe = regexp.MustCompile(`(?s)<directive\s+target="([^"]+)"\s*>(.*?)</directive>`)
	paramTagRe     = regexp.MustCompile(`(?s)<param\s+name="([^"]+)"\s*>(.*?)</param>`)
)

// TaggedMarkupStrategy recovers envelopes from <directive>...</directive>
// markup with <param> children. Some generators prefer XML-ish tags over
// JSON when the surrounding prose is long.
type TaggedMarkupStrategy struct{}

func (TaggedMarkupStrategy) Name() string { return "tagged_markup" }

func (TaggedMarkupStrategy) Extract(u protocol.RawUtterance) []protocol.DirectiveEnvelope {
	var out []protocol.DirectiveEnvelope
	for _, m := range directiveTagRe.FindAllStringSubmatch(string(u), -1) {
		target := strings.TrimSpace(m[1])
		if target == "" {
			continue
		}
		params := map[string]any{}
		for _, pm := range paramTagRe.FindAllStringSubmatch(m[2], -1) {
			params[strings.TrimSpace(pm[1])] = strings.TrimSpace(pm[2])
		}
		out = append(out, protocol.DirectiveEnvelope{Target: target, Parameters: params})
	}
	return out
}

// =============================================================================
// 5. TOKEN-PATTERN FALLBACK
// =============================================================================

var (
	callPatternRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.-]*)\s*\(([^()]*)\)`)
	kvPairRe      = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*[:=]\s*("[^"]*"|[^,\n]+)`)
	targetLineRe  = regexp.MustCompile(`(?im)^\s*(?:target|call|invoke)\s*[:=]\s*([A-Za-z_][A-Za-z0-9_.-]*)\s*$`)
)

// TokenPatternStrategy is the lossy last resort: it recognizes
// identifier(arg, ...) call syntax or a "target:" line followed by flat
// key/value pairs. It recovers only a target and a flat string parameter
// map; nested structure is beyond this strategy.
type TokenPatternStrategy struct{}

func (TokenPatternStrategy) Name() string { return "token_pattern" }

func (TokenPatternStrategy) Extract(u protocol.RawUtterance) []protocol.DirectiveEnvelope {
	s := string(u)

	if m := callPatternRe.FindStringSubmatch(s); m != nil {
		params := parseFlatPairs(m[2])
		return []protocol.DirectiveEnvelope{{Target: m[1], Parameters: params}}
	}

	if m := targetLineRe.FindStringSubmatch(s); m != nil {
		// Strip the target line so it does not end up in the map.
		body := strings.Replace(s, m[0], "", 1)
		return []protocol.DirectiveEnvelope{{Target: m[1], Parameters: parseFlatPairs(body)}}
	}

	return nil
}

// parseFlatPairs pulls key: value / key=value pairs out of loose text,
// unquoting and number/bool-typing values where the shape is unambiguous.
func parseFlatPairs(s string) map[string]any {
	params := map[string]any{}
	for _, m := range kvPairRe.FindAllStringSubmatch(s, -1) {
		key := m[1]
		val := strings.TrimSpace(m[2])
		val = strings.Trim(val, `"`)
		params[key] = typeScalar(val)
	}
	return params
}

// typeScalar gives loose text values their obvious type.
func typeScalar(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	return v
}
