package extract

import (
	"context"
	"testing"

	"zionic-engine/internal/domain"
	"zionic-engine/internal/lead"
)

func TestHeuristicExtract(t *testing.T) {
	h := &Heuristic{Sector: "Electrical"}

	f, err := h.Extract(context.Background(), domain.RawPosting{
		Subject:   "Qualified Electrician - Sparky Co",
		SourceURL: "https://seek.example/job/123",
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if f.RolesAdvertised != "Qualified Electrician - Sparky Co" {
		t.Errorf("roles_advertised = %q", f.RolesAdvertised)
	}
	if f.Company != "Sparky Co" {
		t.Errorf("company = %q", f.Company)
	}
	if f.AdURL != "https://seek.example/job/123" {
		t.Errorf("ad_url = %q", f.AdURL)
	}
	if f.Skip != "No" || f.Sector != "Electrical" || f.EmploymentType != "Full-time" {
		t.Errorf("optimistic defaults missing: %+v", f)
	}
	if f.Email != lead.Sentinel {
		t.Errorf("email = %q, want sentinel", f.Email)
	}
}

func TestHeuristicExtractNoSeparator(t *testing.T) {
	h := &Heuristic{Sector: "Electrical"}

	f, err := h.Extract(context.Background(), domain.RawPosting{Subject: "Electrician wanted"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if f.Company != lead.Sentinel {
		t.Errorf("company = %q, want sentinel when no separator", f.Company)
	}
}

func TestCompanyFromTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Electrician - Sparky Co", "Sparky Co"},
		{"Electrician | Sparky Co", "Sparky Co"},
		{"Electrician / Sparky Co", "Sparky Co"},
		{"Lead Electrician - Adelaide - Sparky Co", "Sparky Co"},
		{"Electrician", ""},
		{"", ""},
		{" - ", ""},
	}
	for _, tt := range tests {
		if got := CompanyFromTitle(tt.title); got != tt.want {
			t.Errorf("CompanyFromTitle(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}
