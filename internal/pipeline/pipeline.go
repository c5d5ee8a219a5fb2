package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"zionic-engine/internal/domain"
	"zionic-engine/internal/extract"
	"zionic-engine/internal/lead"
	"zionic-engine/internal/store"
)

// Status is the terminal state of a single posting.
type Status string

const (
	StatusStored    Status = "stored"
	StatusDuplicate Status = "duplicate"
	StatusSkipped   Status = "skipped"
)

// Outcome reports what happened to one posting. Skipped postings carry the
// normalized lead and reason so callers can still observe the decision.
type Outcome struct {
	Status Status            `json:"status"`
	Lead   *store.StoredLead `json:"lead,omitempty"`
	LeadID int64             `json:"lead_id,omitempty"`
	Reason string            `json:"reason,omitempty"`
	Data   *lead.Lead        `json:"data,omitempty"`
}

// Store is the slice of persistence the pipeline needs.
type Store interface {
	FindByDedupeKey(ctx context.Context, key string) (id int64, dup bool, found bool, err error)
	MarkDuplicate(ctx context.Context, id int64) error
	InsertLeadIgnore(ctx context.Context, l lead.Lead, sourceSubject string, now time.Time) (store.StoredLead, bool, error)
}

// Pipeline runs one posting through extraction, normalization, and the
// persistence decision.
type Pipeline struct {
	Extractor extract.Extractor
	Store     Store
	Rules     lead.Rules
	Logger    *zap.Logger
	Now       func() time.Time

	// OnStored fires after a new row is written; used for SSE refresh.
	OnStored func(store.StoredLead)
}

// Process takes one posting to a terminal state.
//
// The dedupe check runs BEFORE the qualification gate: an unqualified repeat
// of a previously qualified posting still marks the original row as a
// duplicate, even though the repeat itself is dropped. That matches how the
// business reads duplicate counts (repeat advertising signal), so the
// ordering is kept.
func (p *Pipeline) Process(ctx context.Context, posting domain.RawPosting) (Outcome, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	fields, err := p.Extractor.Extract(ctx, posting)
	if err != nil {
		return Outcome{}, fmt.Errorf("extract %q: %w", posting.Subject, err)
	}

	l := lead.Normalize(fields, p.Rules, now())

	id, dup, found, err := p.Store.FindByDedupeKey(ctx, l.DedupeKey)
	if err != nil {
		return Outcome{}, err
	}
	if found {
		if !dup {
			if err := p.Store.MarkDuplicate(ctx, id); err != nil {
				return Outcome{}, err
			}
		}
		p.Logger.Info("duplicate lead",
			zap.String("dedupe_key", l.DedupeKey),
			zap.Int64("lead_id", id),
		)
		return Outcome{Status: StatusDuplicate, LeadID: id}, nil
	}

	if !l.Qualified {
		p.Logger.Info("unqualified lead",
			zap.String("company", l.Company),
			zap.String("reason", l.SkipReason),
		)
		return Outcome{Status: StatusSkipped, Reason: l.SkipReason, Data: &l}, nil
	}

	row, inserted, err := p.Store.InsertLeadIgnore(ctx, l, posting.Subject, now())
	if err != nil {
		return Outcome{}, err
	}
	if !inserted {
		// Lost a same-key race to a concurrent posting; the row that won
		// becomes the original and gets flagged.
		id, dup, found, err := p.Store.FindByDedupeKey(ctx, l.DedupeKey)
		if err != nil {
			return Outcome{}, err
		}
		if !found {
			// The winner vanished between the failed insert and the re-find.
			return Outcome{}, fmt.Errorf("lead %q lost an insert race but the winning row is gone", l.DedupeKey)
		}
		if !dup {
			if err := p.Store.MarkDuplicate(ctx, id); err != nil {
				return Outcome{}, err
			}
		}
		return Outcome{Status: StatusDuplicate, LeadID: id}, nil
	}

	p.Logger.Info("stored lead",
		zap.Int64("lead_id", row.ID),
		zap.String("company", row.Company),
		zap.String("roles", row.RolesAdvertised),
		zap.Int("priority", row.Priority),
	)
	if p.OnStored != nil {
		p.OnStored(row)
	}
	return Outcome{Status: StatusStored, Lead: &row}, nil
}

// BatchResult aggregates outcomes over a scrape or poll run.
type BatchResult struct {
	Stored     int `json:"stored"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// ProcessBatch runs each posting through Process sequentially. Failures are
// counted, logged, and do not stop the batch; an extraction that answered
// garbage should not sink the rest of a scrape run.
func (p *Pipeline) ProcessBatch(ctx context.Context, postings []domain.RawPosting) BatchResult {
	var res BatchResult
	for _, posting := range postings {
		out, err := p.Process(ctx, posting)
		if err != nil {
			res.Failed++
			p.Logger.Error("posting failed",
				zap.String("subject", posting.Subject),
				zap.Error(err),
			)
			continue
		}
		switch out.Status {
		case StatusStored:
			res.Stored++
		case StatusDuplicate:
			res.Duplicates++
		case StatusSkipped:
			res.Skipped++
		}
	}
	return res
}

// SQLStore adapts the sqlite store to the pipeline's Store interface.
type SQLStore struct {
	DB *sql.DB
}

func (s SQLStore) FindByDedupeKey(ctx context.Context, key string) (int64, bool, bool, error) {
	return store.FindByDedupeKey(ctx, s.DB, key)
}

func (s SQLStore) MarkDuplicate(ctx context.Context, id int64) error {
	return store.MarkDuplicate(ctx, s.DB, id)
}

func (s SQLStore) InsertLeadIgnore(ctx context.Context, l lead.Lead, sourceSubject string, now time.Time) (store.StoredLead, bool, error) {
	return store.InsertLeadIgnore(ctx, s.DB, l, sourceSubject, now)
}

// IsExtractionFailure reports whether err came from an unparseable extractor
// payload, as opposed to a storage or transport problem.
func IsExtractionFailure(err error) bool {
	return errors.Is(err, lead.ErrExtractionFailed)
}
