package lead

import (
	"fmt"
	"strings"
	"time"
)

// DateFormat is the day/month/year form the extractor is asked to emit and
// the only form the safeguard accepts.
const DateFormat = "02/01/2006"

// Rules holds the business acceptance criteria. Sector comparison is
// case-sensitive on purpose: "electrical" from the model is a miss.
type Rules struct {
	Sector   string
	Timezone *time.Location
}

// DefaultRules matches the reference deployment.
func DefaultRules() Rules {
	loc, err := time.LoadLocation("Australia/Adelaide")
	if err != nil {
		loc = time.UTC
	}
	return Rules{Sector: "Electrical", Timezone: loc}
}

// Lead is a normalized posting with the derived decision fields attached.
type Lead struct {
	Fields

	Qualified bool   `json:"qualified"`
	Priority  int    `json:"priority"`
	DedupeKey string `json:"dedupe_key"`
}

// Normalize validates and repairs extractor output, then computes the
// qualification decision, priority score, and dedupe key. Pure function:
// same inputs, same Lead, no I/O.
//
// now is passed in (rather than read from the clock) so the date safeguard
// is deterministic under test; callers pass time.Now().
func Normalize(f Fields, rules Rules, now time.Time) Lead {
	tz := rules.Timezone
	if tz == nil {
		tz = time.UTC
	}
	today := now.In(tz).Format(DateFormat)

	f.DatePosted = safeguardDate(f.DatePosted, today)
	f.EntryDate = safeguardDate(f.EntryDate, today)

	l := Lead{Fields: f}

	// Qualification. An AI skip="Yes" is honored without evaluating the
	// remaining clauses. Otherwise the sector check wins over the
	// employment-type check when both fail.
	switch {
	case f.Skip != "No":
		l.Qualified = false
	case f.Sector != rules.Sector:
		l.Qualified = false
		l.SkipReason = fmt.Sprintf("Not in %s sector (is %s)", rules.Sector, f.Sector)
	case !strings.HasPrefix(strings.ToLower(f.EmploymentType), "full"):
		l.Qualified = false
		l.SkipReason = fmt.Sprintf("Not a full-time role (is %s)", f.EmploymentType)
	default:
		l.Qualified = true
	}

	// Priority. Order-independent sum of fixed weights.
	if f.Email != Sentinel {
		l.Priority += 2
	}
	if f.Phone != Sentinel {
		l.Priority += 1
	}
	if f.SalaryInfo != Sentinel {
		l.Priority += 1
	}

	// Dedupe key. Sentinel values go in verbatim; "n/a|n/a" collisions are
	// a documented quirk, not corrected here.
	company := strings.ToLower(strings.TrimSpace(f.Company))
	roles := strings.ToLower(strings.TrimSpace(f.RolesAdvertised))
	l.DedupeKey = company + "|" + roles

	return l
}

func safeguardDate(v, today string) string {
	if _, err := time.Parse(DateFormat, v); err != nil {
		return today
	}
	return v
}
