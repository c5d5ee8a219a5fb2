package httpapi

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"zionic-engine/internal/store"
)

type LeadsHandler struct {
	DB *sql.DB
}

func (h LeadsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListLeadsOpts{
		Role:  q.Get("role"),
		Town:  q.Get("town"),
		State: q.Get("state"),
	}
	if lim := q.Get("limit"); lim != "" {
		if n, err := strconv.Atoi(lim); err == nil {
			opts.Limit = n
		}
	}

	leads, err := store.ListLeads(r.Context(), h.DB, opts)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	if leads == nil {
		leads = []store.StoredLead{}
	}
	writeJSON(w, leads)
}

func (h LeadsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := store.LeadMetrics(r.Context(), h.DB)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	writeJSON(w, m)
}

var csvHeader = []string{
	"id", "first_name", "email", "phone", "company", "roles_advertised",
	"sector", "employment_type", "date_posted", "entry_date", "salary_info",
	"location", "ad_url", "skip", "skip_reason", "source_subject",
	"dedupe_key", "qualified", "priority", "duplicate_flag", "created_at",
}

// ExportCSV streams every stored lead as a dated CSV attachment. An empty
// table yields 204 and no body.
func (h LeadsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	leads, err := store.AllLeads(r.Context(), h.DB)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	if len(leads) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	filename := fmt.Sprintf("zionic_leads_%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, l := range leads {
		_ = cw.Write([]string{
			strconv.FormatInt(l.ID, 10),
			l.FirstName, l.Email, l.Phone, l.Company, l.RolesAdvertised,
			l.Sector, l.EmploymentType, l.DatePosted, l.EntryDate, l.SalaryInfo,
			l.Location, l.AdURL, l.Skip, l.SkipReason, l.SourceSubject,
			l.DedupeKey,
			strconv.FormatBool(l.Qualified),
			strconv.Itoa(l.Priority),
			strconv.FormatBool(l.DuplicateFlag),
			l.CreatedAt,
		})
	}
	cw.Flush()
}
