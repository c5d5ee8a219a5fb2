package seek

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

func testLogger() *zap.Logger { return zap.NewNop() }

const searchPageHTML = `
<html><body>
  <nav><a href="/about">About</a><a href="/jobs">Browse jobs</a></nav>
  <article>
    <a href="/job/81234567">Qualified Electrician - Sparky Co</a>
  </article>
  <article>
    <a href="/job/81234568" aria-label="Apprentice Electrician">
      <span></span>
    </a>
  </article>
  <article>
    <a href="/job/81234567">Qualified Electrician - Sparky Co (repeat)</a>
  </article>
  <article>
    <a href="https://other.example/job/999">Electrician - External Co</a>
  </article>
  <a href="/job/81234569">   </a>
</body></html>`

func TestParseSearchPage(t *testing.T) {
	postings, err := ParseSearchPage("https://www.seek.com.au", strings.NewReader(searchPageHTML))
	if err != nil {
		t.Fatalf("ParseSearchPage: %v", err)
	}

	if len(postings) != 3 {
		t.Fatalf("got %d postings, want 3: %+v", len(postings), postings)
	}

	if postings[0].SourceURL != "https://www.seek.com.au/job/81234567" {
		t.Errorf("url = %q, want resolved absolute", postings[0].SourceURL)
	}
	if postings[0].Subject != "Qualified Electrician - Sparky Co" {
		t.Errorf("subject = %q", postings[0].Subject)
	}

	// Title taken from aria-label when the anchor has no text.
	if postings[1].Subject != "Apprentice Electrician" {
		t.Errorf("aria-label subject = %q", postings[1].Subject)
	}

	// Absolute off-site hrefs survive as-is.
	if postings[2].SourceURL != "https://other.example/job/999" {
		t.Errorf("external url = %q", postings[2].SourceURL)
	}

	for _, p := range postings {
		if p.Source != "seek" {
			t.Errorf("source = %q", p.Source)
		}
	}
}

func TestParseSearchPageEmpty(t *testing.T) {
	postings, err := ParseSearchPage("https://www.seek.com.au", strings.NewReader("<html><body><p>No results</p></body></html>"))
	if err != nil {
		t.Fatalf("ParseSearchPage: %v", err)
	}
	if len(postings) != 0 {
		t.Errorf("got %d postings from empty page", len(postings))
	}
}

func TestCleanText(t *testing.T) {
	if got := cleanText("  Qualified Electrician \n\t Sparky  "); got != "Qualified Electrician Sparky" {
		t.Errorf("cleanText = %q", got)
	}
}

func TestSearchURL(t *testing.T) {
	s := New(Config{
		BaseURL:  "https://www.seek.com.au",
		Role:     "Electrician apprentice",
		Location: "Adelaide SA",
		Pages:    2,
	}, testLogger())

	got := s.searchURL(2)
	want := "https://www.seek.com.au/jobs?keywords=Electrician+apprentice&location=Adelaide+SA&page=2"
	if got != want {
		t.Errorf("searchURL = %q, want %q", got, want)
	}
}
