package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"zionic-engine/internal/pipeline"
)

type ScrapeHandler struct {
	ScrapeStatus *atomic.Value // httpapi.ScrapeStatus
	RunScrape    func(ctx context.Context) pipeline.BatchResult
}

func (h ScrapeHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.ScrapeStatus.Load().(ScrapeStatus)
	writeJSON(w, st)
}

// Run triggers a scrape+process pass and reports outcome counts. One run at
// a time; a concurrent trigger gets a conflict instead of a second pass. The
// claim is a CompareAndSwap so two requests racing past the Running check
// cannot both start.
func (h ScrapeHandler) Run(w http.ResponseWriter, r *http.Request) {
	st := h.ScrapeStatus.Load().(ScrapeStatus)
	started := time.Now().Format(time.RFC3339)
	claimed := ScrapeStatus{
		LastRunAt: started,
		Running:   true,
		LastOkAt:  st.LastOkAt,
	}
	if st.Running || !h.ScrapeStatus.CompareAndSwap(st, claimed) {
		WriteError(w, r, http.StatusConflict, "already_running", "scrape already running")
		return
	}

	br := h.RunScrape(r.Context())

	now := time.Now().Format(time.RFC3339)
	next := h.ScrapeStatus.Load().(ScrapeStatus)
	next.Running = false
	next.LastRunAt = now
	next.LastResult = br
	next.LastError = ""
	next.LastOkAt = now
	h.ScrapeStatus.Store(next)

	writeJSON(w, br)
}
