package extract

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"zionic-engine/internal/domain"
	"zionic-engine/internal/lead"
)

// Extractor turns a raw posting into structured fields. Implementations are
// selected by configuration: the Gemini model for real deployments, the
// deterministic heuristic when no API key is configured or the model is
// unreachable.
type Extractor interface {
	Extract(ctx context.Context, p domain.RawPosting) (lead.Fields, error)
	Name() string
}

// WithFallback runs the primary extractor and degrades to the fallback when
// the primary fails. Payloads the primary produced but that cannot be parsed
// as any mapping are NOT retried: that is an extraction failure the caller
// must see (the model answered, it answered garbage).
type WithFallback struct {
	Primary  Extractor
	Fallback Extractor
	Logger   *zap.Logger
}

func (e *WithFallback) Name() string { return e.Primary.Name() + "+" + e.Fallback.Name() }

func (e *WithFallback) Extract(ctx context.Context, p domain.RawPosting) (lead.Fields, error) {
	fields, err := e.Primary.Extract(ctx, p)
	if err == nil {
		return fields, nil
	}
	if errors.Is(err, lead.ErrExtractionFailed) {
		return fields, err
	}

	e.Logger.Warn("extractor unavailable, using heuristic fallback",
		zap.String("primary", e.Primary.Name()),
		zap.String("subject", p.Subject),
		zap.Error(err),
	)
	return e.Fallback.Extract(ctx, p)
}
