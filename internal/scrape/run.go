package scrape

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"zionic-engine/internal/domain"
	"zionic-engine/internal/pipeline"
)

// Fetcher is any posting source: the Seek scraper, the email poller.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.RawPosting, error)
}

type fetchResult struct {
	source   string
	postings []domain.RawPosting
	finalize func(ctx context.Context) error
}

// Finalizer is implemented by fetchers that need a post-processing step
// after their postings went through the pipeline (the email poller marks
// messages seen only then, so a crash mid-run re-delivers).
type Finalizer interface {
	Finalize(ctx context.Context) error
}

const fetchTimeout = 2 * time.Minute

// RunOnce fetches from every source concurrently, then feeds all postings
// through the pipeline sequentially. A failing source is logged and does not
// cancel its siblings.
func RunOnce(ctx context.Context, fetchers []Fetcher, p *pipeline.Pipeline, logger *zap.Logger) pipeline.BatchResult {
	var g errgroup.Group
	results := make(chan fetchResult, len(fetchers))

	for _, f := range fetchers {
		f := f
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()

			logger.Info("fetching postings", zap.String("source", f.Name()))
			postings, err := f.Fetch(fctx)
			if err != nil {
				logger.Error("fetch failed", zap.String("source", f.Name()), zap.Error(err))
				return nil // best-effort: don't cancel siblings
			}

			res := fetchResult{source: f.Name(), postings: postings}
			if fin, ok := f.(Finalizer); ok {
				res.finalize = fin.Finalize
			}
			results <- res
			return nil
		})
	}

	_ = g.Wait()
	close(results)

	var total pipeline.BatchResult
	for res := range results {
		logger.Info("processing postings",
			zap.String("source", res.source),
			zap.Int("count", len(res.postings)),
		)
		br := p.ProcessBatch(ctx, res.postings)
		total.Stored += br.Stored
		total.Duplicates += br.Duplicates
		total.Skipped += br.Skipped
		total.Failed += br.Failed

		if res.finalize != nil && br.Failed == 0 {
			if err := res.finalize(ctx); err != nil {
				logger.Warn("finalize failed", zap.String("source", res.source), zap.Error(err))
			}
		}
	}

	return total
}
