package domain

import "time"

// RawPosting is one job advertisement as it arrived, before extraction.
// Produced by the Seek scraper, the email poller, or the /ingest endpoint.
type RawPosting struct {
	Subject    string
	Body       string
	From       string
	SourceURL  string
	ReceivedAt time.Time
	Source     string // seek/email/api
}
