package seek

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"zionic-engine/internal/domain"
	"zionic-engine/internal/scrape/util"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
}

type Config struct {
	BaseURL  string
	Role     string
	Location string
	Pages    int
}

// Scraper walks Seek search-result pages and yields one RawPosting per job
// anchor. It never follows through to the ad pages themselves; the extractor
// works from the title and URL.
type Scraper struct {
	cfg     Config
	hc      *http.Client
	limiter *util.HostLimiter
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Scraper {
	if cfg.Pages <= 0 {
		cfg.Pages = 1
	}
	return &Scraper{
		cfg:     cfg,
		hc:      &http.Client{Timeout: 20 * time.Second},
		limiter: util.NewHostLimiter(1, 1),
		logger:  logger,
	}
}

func (s *Scraper) Name() string { return "seek" }

// Fetch walks pages 1..cfg.Pages, stopping early when a page yields nothing
// new (Seek repeats results past the last real page).
func (s *Scraper) Fetch(ctx context.Context) ([]domain.RawPosting, error) {
	var out []domain.RawPosting
	seen := map[string]bool{}

	for page := 1; page <= s.cfg.Pages; page++ {
		postings, err := s.fetchPage(ctx, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			// partial results beat none
			s.logger.Warn("seek page fetch failed", zap.Int("page", page), zap.Error(err))
			break
		}
		if len(postings) == 0 {
			break
		}

		newFound := 0
		for _, p := range postings {
			if seen[p.SourceURL] {
				continue
			}
			seen[p.SourceURL] = true
			out = append(out, p)
			newFound++
		}
		if newFound == 0 {
			break
		}
	}

	s.logger.Info("seek scrape finished",
		zap.String("role", s.cfg.Role),
		zap.String("location", s.cfg.Location),
		zap.Int("postings", len(out)),
	)
	return out, nil
}

func (s *Scraper) fetchPage(ctx context.Context, page int) ([]domain.RawPosting, error) {
	u := s.searchURL(page)
	if err := s.limiter.WaitURL(ctx, u); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", s.cfg.BaseURL+"/")

	res, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("seek get page %d: %w", page, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("seek page %d status %d", page, res.StatusCode)
	}

	return ParseSearchPage(s.cfg.BaseURL, res.Body)
}

func (s *Scraper) searchURL(page int) string {
	return fmt.Sprintf("%s/jobs?keywords=%s&location=%s&page=%d",
		s.cfg.BaseURL,
		url.QueryEscape(s.cfg.Role),
		url.QueryEscape(s.cfg.Location),
		page,
	)
}

// ParseSearchPage extracts job-ad anchors from a search-result page. An
// anchor counts when its href contains /job/ or /jobs/ and it has a
// non-empty title (text or aria-label). URLs are deduped within the page.
func ParseSearchPage(baseURL string, r io.Reader) ([]domain.RawPosting, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("seek parse html: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("seek base url: %w", err)
	}

	now := time.Now()
	seen := map[string]bool{}
	var out []domain.RawPosting

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		if !strings.Contains(href, "/job/") && !strings.Contains(href, "/jobs/") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if seen[abs] {
			return
		}

		title := cleanText(a.Text())
		if title == "" {
			title, _ = a.Attr("aria-label")
			title = cleanText(title)
		}
		if title == "" {
			return
		}

		seen[abs] = true
		out = append(out, domain.RawPosting{
			Subject:    title,
			SourceURL:  abs,
			ReceivedAt: now,
			Source:     "seek",
		})
	})

	return out, nil
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}
