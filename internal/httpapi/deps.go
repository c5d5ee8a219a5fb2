package httpapi

import (
	"context"
	"database/sql"
	"sync/atomic"

	"go.uber.org/zap"

	"zionic-engine/internal/config"
	"zionic-engine/internal/events"
	"zionic-engine/internal/pipeline"
)

type Deps struct {
	DB *sql.DB

	Hub *events.Hub

	Pipeline *pipeline.Pipeline

	// Atomic stores
	CfgVal       *atomic.Value // stores config.Config
	ScrapeStatus *atomic.Value // stores httpapi.ScrapeStatus

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// Full scrape+process run (inject for testability)
	RunScrape func(ctx context.Context) pipeline.BatchResult

	Logger *zap.Logger
}
