package extract

import (
	"context"
	"strings"

	"zionic-engine/internal/domain"
	"zionic-engine/internal/lead"
)

// titleSeparators are the common "<role> - <company>" delimiters on Seek
// subjects and email alerts.
var titleSeparators = []string{" - ", " | ", " — ", "–", " / "}

// Heuristic is the degraded-mode extractor: no model call, fields derived
// from the title alone. Sector and employment type default optimistically to
// the configured target so scraped leads stay usable when the AI dependency
// is down; the posting was found by searching for the target role in the
// first place.
type Heuristic struct {
	Sector string
}

func (h *Heuristic) Name() string { return "heuristic" }

func (h *Heuristic) Extract(_ context.Context, p domain.RawPosting) (lead.Fields, error) {
	f := lead.EmptyFields()

	title := strings.TrimSpace(p.Subject)
	if title != "" {
		f.RolesAdvertised = title
	}
	if company := CompanyFromTitle(title); company != "" {
		f.Company = company
	}
	if p.SourceURL != "" {
		f.AdURL = p.SourceURL
	}

	f.Skip = "No"
	f.Sector = h.Sector
	f.EmploymentType = "Full-time"
	return f, nil
}

// CompanyFromTitle pulls a company name out of a "<role> - <company>" style
// title. Returns "" when no separator yields a plausible split.
func CompanyFromTitle(title string) string {
	if title == "" {
		return ""
	}
	for _, sep := range titleSeparators {
		if !strings.Contains(title, sep) {
			continue
		}
		var parts []string
		for _, p := range strings.Split(title, sep) {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) >= 2 {
			return parts[len(parts)-1]
		}
	}
	return ""
}
