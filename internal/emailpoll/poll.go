package emailpoll

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"zionic-engine/internal/config"
	"zionic-engine/internal/domain"
	"zionic-engine/internal/secrets"
)

var urlRe = regexp.MustCompile(`https?://[^\s<>"']+`)

const maxMessagesPerRun = 50

// Poller turns unseen mailbox messages into RawPostings. Messages are marked
// seen only in Finalize, after the whole batch went through the pipeline, so
// a crash mid-run re-delivers instead of losing postings.
type Poller struct {
	Cfg    config.Config
	Logger *zap.Logger

	mu          sync.Mutex
	pendingUIDs []imap.UID
}

func (p *Poller) Name() string { return "email" }

func (p *Poller) Fetch(ctx context.Context) ([]domain.RawPosting, error) {
	cfg := p.Cfg
	if !cfg.Email.Enabled {
		return nil, nil
	}

	password, err := secrets.GetIMAPPassword(secrets.IMAPKeyringAccount(cfg))
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Email.IMAPHost, cfg.Email.IMAPPort)
	c, stopWatch, err := dialAndLogin(ctx, addr, cfg.Email.IMAPHost, cfg.Email.Username, password)
	if err != nil {
		return nil, err
	}
	defer func() {
		logoutAndClose(c, p.Logger)
		stopWatch()
	}()

	if _, err := c.Select(cfg.Email.Mailbox, &imap.SelectOptions{ReadOnly: false}).Wait(); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", cfg.Email.Mailbox, err)
	}

	messages, err := fetchUnseen(ctx, c, maxMessagesPerRun)
	if err != nil {
		return nil, err
	}

	var postings []domain.RawPosting
	var uids []imap.UID
	for _, m := range messages {
		if !subjectMatches(m.Subject, cfg.Email.SearchSubjectAny) {
			continue
		}
		postings = append(postings, domain.RawPosting{
			Subject:    m.Subject,
			Body:       m.BodyText,
			From:       m.From,
			SourceURL:  firstURL(m.BodyText),
			ReceivedAt: m.Date,
			Source:     "email",
		})
		uids = append(uids, m.UID)
	}

	p.mu.Lock()
	p.pendingUIDs = uids
	p.mu.Unlock()

	return postings, nil
}

// Finalize marks the batch's messages seen. Requires its own connection;
// the Fetch connection is closed by the time the pipeline finishes.
func (p *Poller) Finalize(ctx context.Context) error {
	p.mu.Lock()
	uids := p.pendingUIDs
	p.pendingUIDs = nil
	p.mu.Unlock()

	if len(uids) == 0 {
		return nil
	}

	cfg := p.Cfg
	password, err := secrets.GetIMAPPassword(secrets.IMAPKeyringAccount(cfg))
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Email.IMAPHost, cfg.Email.IMAPPort)
	c, stopWatch, err := dialAndLogin(ctx, addr, cfg.Email.IMAPHost, cfg.Email.Username, password)
	if err != nil {
		return err
	}
	defer func() {
		logoutAndClose(c, p.Logger)
		stopWatch()
	}()

	if _, err := c.Select(cfg.Email.Mailbox, &imap.SelectOptions{ReadOnly: false}).Wait(); err != nil {
		return fmt.Errorf("imap select %s: %w", cfg.Email.Mailbox, err)
	}

	return markSeen(c, uids)
}

type message struct {
	UID      imap.UID
	From     string
	Subject  string
	Date     time.Time
	BodyText string
}

func dialAndLogin(ctx context.Context, addr, serverName, username, password string) (*imapclient.Client, func(), error) {
	if username == "" || password == "" {
		return nil, nil, errors.New("imap username/password is required")
	}

	c, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: serverName,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("imap dial tls: %w", err)
	}

	// Best-effort close on context cancel. The watcher must not outlive the
	// connection: Finalize runs on the long-lived scheduler context, and a
	// goroutine parked on it per poll cycle would accumulate until shutdown.
	stopWatch := closeOnCancel(ctx, c.Close)

	if err := c.Login(username, password).Wait(); err != nil {
		_ = c.Close()
		stopWatch()
		return nil, nil, fmt.Errorf("imap login: %w", err)
	}

	return c, stopWatch, nil
}

// closeOnCancel invokes closeFn when ctx is cancelled. The returned stop
// releases the watcher goroutine; a stop that completes before the
// cancellation suppresses the close.
func closeOnCancel(ctx context.Context, closeFn func() error) (stop func()) {
	released := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			select {
			case <-released:
			default:
				_ = closeFn()
			}
		case <-released:
		}
	}()
	return func() { close(released) }
}

// fetchUnseen pulls up to max unseen messages by UID, newest first, using
// BODY.PEEK[] so nothing gets flagged \Seen yet.
func fetchUnseen(ctx context.Context, c *imapclient.Client, max int) ([]message, error) {
	cutoff := time.Now().AddDate(0, -3, 0)

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
		Since:   cutoff,
	}

	searchData, err := c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search unseen: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
	if len(uids) > max {
		uids = uids[:max]
	}

	uidSet := imap.UIDSetNum(uids...)

	bodyAll := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierNone,
		Peek:      true,
	}

	fetchCmd := c.Fetch(uidSet, &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	out := make([]message, 0, len(uids))
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}

		buf, err := msgData.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}

		var m message
		m.UID = buf.UID

		if buf.Envelope != nil {
			m.Subject = buf.Envelope.Subject
			m.Date = buf.Envelope.Date
			m.From = joinAddrs(buf.Envelope.From)
		}

		if b := buf.FindBodySection(bodyAll); b != nil {
			m.BodyText = bodyText(b)
			if m.Subject == "" || m.From == "" || m.Date.IsZero() {
				subj, from, date := parseHeadersFallback(b)
				if m.Subject == "" {
					m.Subject = subj
				}
				if m.From == "" {
					m.From = from
				}
				if m.Date.IsZero() {
					m.Date = date
				}
			}
		}

		out = append(out, m)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}

	return out, nil
}

// markSeen sets \Seen for a UID set. Store returns a command you Close for
// the final status; there is no Wait.
func markSeen(c *imapclient.Client, uids []imap.UID) error {
	if len(uids) == 0 {
		return nil
	}

	set := imap.UIDSetNum(uids...)
	storeFlags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}

	cmd := c.Store(set, storeFlags, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("imap store add seen: %w", err)
	}
	return nil
}

func logoutAndClose(c *imapclient.Client, logger *zap.Logger) {
	if c == nil {
		return
	}
	if err := c.Logout().Wait(); err != nil {
		logger.Warn("imap logout", zap.Error(err))
	}
	_ = c.Close()
}

func joinAddrs(addrs []imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for i := range addrs {
		a := &addrs[i]
		addr := strings.TrimSpace(a.Addr())
		if addr == "" {
			addr = strings.TrimSpace(a.Name)
		}
		if addr != "" {
			parts = append(parts, addr)
		}
	}
	return strings.Join(parts, ", ")
}

// bodyText pulls the body of an RFC822 message as plain text. Not a full
// MIME walk; alert emails are simple enough that the raw body serves the
// extractor fine.
func bodyText(raw []byte) string {
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return string(raw)
	}
	b, err := io.ReadAll(msg.Body)
	if err != nil {
		return ""
	}
	return string(b)
}

func parseHeadersFallback(raw []byte) (subject, from string, date time.Time) {
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return "", "", time.Time{}
	}

	h := msg.Header
	subject = h.Get("Subject")
	from = h.Get("From")
	if ds := h.Get("Date"); ds != "" {
		if t, err := mail.ParseDate(ds); err == nil {
			date = t
		}
	}

	_, _ = io.Copy(io.Discard, msg.Body)
	return
}

func subjectMatches(subject string, any []string) bool {
	if len(any) == 0 {
		return true
	}
	low := strings.ToLower(subject)
	for _, s := range any {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && strings.Contains(low, s) {
			return true
		}
	}
	return false
}

func firstURL(body string) string {
	return urlRe.FindString(body)
}
