package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"zionic-engine/internal/domain"
	"zionic-engine/internal/lead"
	"zionic-engine/internal/store"
)

type fakeRow struct {
	id  int64
	dup bool
}

type fakeStore struct {
	byKey  map[string]*fakeRow
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{byKey: map[string]*fakeRow{}, nextID: 1}
}

func (s *fakeStore) FindByDedupeKey(_ context.Context, key string) (int64, bool, bool, error) {
	row, ok := s.byKey[key]
	if !ok {
		return 0, false, false, nil
	}
	return row.id, row.dup, true, nil
}

func (s *fakeStore) MarkDuplicate(_ context.Context, id int64) error {
	for _, row := range s.byKey {
		if row.id == id {
			row.dup = true
			return nil
		}
	}
	return errors.New("no such row")
}

func (s *fakeStore) InsertLeadIgnore(_ context.Context, l lead.Lead, sourceSubject string, now time.Time) (store.StoredLead, bool, error) {
	if _, ok := s.byKey[l.DedupeKey]; ok {
		return store.StoredLead{}, false, nil
	}
	id := s.nextID
	s.nextID++
	s.byKey[l.DedupeKey] = &fakeRow{id: id}
	return store.StoredLead{
		ID:            id,
		Lead:          l,
		SourceSubject: sourceSubject,
		CreatedAt:     now.UTC().Format(time.RFC3339),
	}, true, nil
}

type jsonExtractor struct {
	payload string
}

func (e jsonExtractor) Name() string { return "json" }

func (e jsonExtractor) Extract(_ context.Context, _ domain.RawPosting) (lead.Fields, error) {
	return lead.ParsePayload(e.payload)
}

const qualifiedPayload = `{
  "company": "Sparky Co",
  "roles_advertised": "Qualified Electrician",
  "sector": "Electrical",
  "employment_type": "Full-time",
  "skip": "No",
  "phone": "0400 000 000"
}`

func newTestPipeline(s Store, payload string) *Pipeline {
	return &Pipeline{
		Extractor: jsonExtractor{payload: payload},
		Store:     s,
		Rules:     lead.Rules{Sector: "Electrical", Timezone: time.UTC},
		Logger:    zap.NewNop(),
	}
}

func TestProcessStoresQualifiedLead(t *testing.T) {
	s := newFakeStore()
	p := newTestPipeline(s, qualifiedPayload)

	out, err := p.Process(context.Background(), domain.RawPosting{Subject: "ad"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Status != StatusStored {
		t.Fatalf("status = %q, want stored", out.Status)
	}
	if out.Lead == nil || out.Lead.Company != "Sparky Co" {
		t.Errorf("stored lead = %+v", out.Lead)
	}
}

func TestProcessFlagsDuplicateOnce(t *testing.T) {
	s := newFakeStore()
	p := newTestPipeline(s, qualifiedPayload)
	ctx := context.Background()

	first, err := p.Process(ctx, domain.RawPosting{Subject: "ad"})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		out, err := p.Process(ctx, domain.RawPosting{Subject: "ad repost"})
		if err != nil {
			t.Fatal(err)
		}
		if out.Status != StatusDuplicate {
			t.Fatalf("repeat %d: status = %q, want duplicate", i, out.Status)
		}
		if out.LeadID != first.Lead.ID {
			t.Errorf("repeat %d: flagged id %d, want original %d", i, out.LeadID, first.Lead.ID)
		}
	}

	if !s.byKey["sparky co|qualified electrician"].dup {
		t.Error("original row not flagged as duplicate")
	}
}

func TestProcessSkipsUnqualifiedLead(t *testing.T) {
	s := newFakeStore()
	p := newTestPipeline(s, `{
  "company": "Sparky Co",
  "roles_advertised": "Electrician",
  "sector": "Plumbing",
  "employment_type": "Full-time",
  "skip": "No"
}`)

	out, err := p.Process(context.Background(), domain.RawPosting{Subject: "ad"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Status != StatusSkipped {
		t.Fatalf("status = %q, want skipped", out.Status)
	}
	if out.Reason != "Not in Electrical sector (is Plumbing)" {
		t.Errorf("reason = %q", out.Reason)
	}
	if out.Data == nil {
		t.Error("skipped outcome should carry the normalized lead")
	}
	if len(s.byKey) != 0 {
		t.Error("unqualified lead must not be stored")
	}
}

// An unqualified repeat of a stored lead still flags the original row: the
// dedupe check runs before the qualification gate.
func TestProcessDedupeBeforeQualification(t *testing.T) {
	s := newFakeStore()
	ctx := context.Background()

	if _, err := newTestPipeline(s, qualifiedPayload).Process(ctx, domain.RawPosting{Subject: "ad"}); err != nil {
		t.Fatal(err)
	}

	// Same company and roles, but now part-time.
	repeat := newTestPipeline(s, `{
  "company": "Sparky Co",
  "roles_advertised": "Qualified Electrician",
  "sector": "Electrical",
  "employment_type": "Part-time",
  "skip": "No"
}`)
	out, err := repeat.Process(ctx, domain.RawPosting{Subject: "ad repost"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusDuplicate {
		t.Fatalf("status = %q, want duplicate", out.Status)
	}
	if !s.byKey["sparky co|qualified electrician"].dup {
		t.Error("original row not flagged")
	}
}

// vanishingStore loses every insert race and then cannot produce the winner,
// as if the winning row was deleted between the conflict and the re-find.
type vanishingStore struct{}

func (vanishingStore) FindByDedupeKey(context.Context, string) (int64, bool, bool, error) {
	return 0, false, false, nil
}

func (vanishingStore) MarkDuplicate(context.Context, int64) error { return nil }

func (vanishingStore) InsertLeadIgnore(context.Context, lead.Lead, string, time.Time) (store.StoredLead, bool, error) {
	return store.StoredLead{}, false, nil
}

func TestProcessLostRaceWithMissingWinnerFails(t *testing.T) {
	p := newTestPipeline(vanishingStore{}, qualifiedPayload)

	out, err := p.Process(context.Background(), domain.RawPosting{Subject: "ad"})
	if err == nil {
		t.Fatalf("expected error, got outcome %+v", out)
	}
	if out.Status == StatusDuplicate {
		t.Error("missing winner must not be reported as a duplicate")
	}
}

func TestProcessExtractionFailure(t *testing.T) {
	p := newTestPipeline(newFakeStore(), "not json at all")

	_, err := p.Process(context.Background(), domain.RawPosting{Subject: "ad"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsExtractionFailure(err) {
		t.Errorf("err = %v, want extraction failure", err)
	}
}

func TestProcessBatchCountsOutcomes(t *testing.T) {
	s := newFakeStore()
	p := newTestPipeline(s, qualifiedPayload)
	ctx := context.Background()

	br := p.ProcessBatch(ctx, []domain.RawPosting{
		{Subject: "ad"},
		{Subject: "ad repost"},
	})
	if br.Stored != 1 || br.Duplicates != 1 || br.Skipped != 0 || br.Failed != 0 {
		t.Errorf("batch = %+v", br)
	}

	p.Extractor = jsonExtractor{payload: "garbage"}
	br = p.ProcessBatch(ctx, []domain.RawPosting{{Subject: "bad"}})
	if br.Failed != 1 {
		t.Errorf("failed = %d, want 1", br.Failed)
	}
}

func TestProcessOnStoredCallback(t *testing.T) {
	s := newFakeStore()
	p := newTestPipeline(s, qualifiedPayload)

	var got []int64
	p.OnStored = func(row store.StoredLead) { got = append(got, row.ID) }

	ctx := context.Background()
	if _, err := p.Process(ctx, domain.RawPosting{Subject: "ad"}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Process(ctx, domain.RawPosting{Subject: "ad repost"}); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Errorf("OnStored fired %d times, want 1", len(got))
	}
}
