package config

import (
	"fmt"
	"strings"
	"time"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a cleaned-up copy plus everything wrong or
// suspicious about it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Email.SearchSubjectAny = trimList(out.Email.SearchSubjectAny)
	out.Qualify.Sector = strings.TrimSpace(out.Qualify.Sector)
	out.Extractor.Provider = strings.ToLower(strings.TrimSpace(out.Extractor.Provider))

	// ---- Validation rules ----

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	if out.Polling.ScrapeSeconds <= 0 {
		res.addErr("polling.scrape_seconds must be > 0")
	} else if out.Polling.ScrapeSeconds < 60 {
		res.addWarn("polling.scrape_seconds is very low (%d) and may get the scraper blocked.", out.Polling.ScrapeSeconds)
	}
	if out.Email.Enabled && out.Polling.EmailSeconds <= 0 {
		res.addErr("polling.email_seconds must be > 0 when email.enabled=true")
	}
	// Feeds a time.NewTicker, which panics on a non-positive duration.
	if out.Polling.CleanupSeconds <= 0 {
		res.addErr("polling.cleanup_seconds must be > 0")
	}

	if strings.TrimSpace(out.Scrape.BaseURL) == "" {
		res.addErr("scrape.base_url is required")
	}
	if out.Scrape.Pages <= 0 {
		res.addErr("scrape.pages must be > 0")
	}

	if out.Qualify.Sector == "" {
		res.addErr("qualify.sector is required")
	}
	if tz := strings.TrimSpace(out.Qualify.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			res.addErr("qualify.timezone %q is not a valid IANA zone", tz)
		}
	}

	switch out.Extractor.Provider {
	case "gemini", "heuristic":
	case "":
		res.addErr("extractor.provider is required (gemini or heuristic)")
	default:
		res.addErr("extractor.provider %q is not supported (gemini or heuristic)", out.Extractor.Provider)
	}

	if out.Email.Enabled {
		if strings.TrimSpace(out.Email.IMAPHost) == "" {
			res.addErr("email.imap_host is required when email.enabled=true")
		}
		if out.Email.IMAPPort == 0 {
			res.addErr("email.imap_port is required when email.enabled=true")
		}
		if strings.TrimSpace(out.Email.Username) == "" {
			res.addErr("email.username is required when email.enabled=true")
		}
		if strings.TrimSpace(out.Email.Mailbox) == "" {
			res.addErr("email.mailbox is required when email.enabled=true")
		}
		if len(out.Email.SearchSubjectAny) == 0 {
			res.addWarn("email.search_subject_any is empty; every unseen message will be ingested.")
		}
	}

	return out, res
}

// Timezone resolves the qualify timezone, falling back to UTC rather than
// failing the whole process over a bad zone name.
func (c Config) Timezone() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Qualify.Timezone))
	if err != nil {
		return time.UTC
	}
	return loc
}
