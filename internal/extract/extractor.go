// Package extract turns raw generator utterances into directive envelopes.
// It runs an ordered list of extraction strategies, most precise first,
// short-circuiting on the first strategy that yields at least one
// structurally valid envelope. Absence of a match is a reportable outcome,
// never an error: the upstream text is unreliable by contract.
package extract

import (
	"go.uber.org/zap"

	"dirigent/internal/logging"
	"dirigent/internal/protocol"
)

// Result carries the extracted envelopes plus which strategy produced them.
type Result struct {
	Envelopes []protocol.DirectiveEnvelope
	Strategy  string
}

// Empty reports whether extraction found nothing.
func (r Result) Empty() bool { return len(r.Envelopes) == 0 }

// Extractor composes extraction strategies in priority order.
type Extractor struct {
	strategies []Strategy
	log        *zap.Logger
}

// New returns an extractor with the default strategy order: whole-utterance
// JSON, fenced blocks, embedded objects, tagged markup, then the lossy
// token-pattern fallback.
func New() *Extractor {
	return NewWithStrategies(
		WholeUtteranceStrategy{},
		FencedBlockStrategy{},
		EmbeddedObjectStrategy{},
		TaggedMarkupStrategy{},
		TokenPatternStrategy{},
	)
}

// NewWithStrategies builds an extractor with an explicit strategy chain.
// Used by tests to exercise strategies in isolation or reordering.
func NewWithStrategies(strategies ...Strategy) *Extractor {
	return &Extractor{
		strategies: strategies,
		log:        logging.L(logging.CategoryExtract),
	}
}

// Extract runs the chain against one utterance. The returned Result is
// empty when no strategy matched; the caller decides whether that is an
// ExtractionEmpty outcome for its turn.
func (x *Extractor) Extract(u protocol.RawUtterance) Result {
	for _, s := range x.strategies {
		envs := s.Extract(u)
		if len(envs) == 0 {
			continue
		}
		x.log.Debug("directives extracted",
			zap.String("strategy", s.Name()),
			zap.Int("count", len(envs)))
		return Result{Envelopes: envs, Strategy: s.Name()}
	}

	x.log.Debug("no directive found", zap.Int("utterance_len", len(u)))
	return Result{}
}
