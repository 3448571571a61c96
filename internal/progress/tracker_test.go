package progress

import (
	"errors"
	"io"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func newTestTracker(t *testing.T, store *Store, name string) *Tracker {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), step: 2 * time.Second}
	return NewTracker(store, name, WithClock(clk.Now), WithOutput(io.Discard))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func docs(ids ...string) []models.DocumentRef {
	out := make([]models.DocumentRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.DocumentRef{ID: id, Name: "Report " + id, DocumentType: "Quarterly Report"})
	}
	return out
}

func checkInvariants(t *testing.T, s *SessionState) {
	t.Helper()
	if got := s.ProcessedCount + s.FailedCount + len(s.RemainingDocuments); got != s.TotalDocuments {
		t.Errorf("processed+failed+remaining = %d, want total %d", got, s.TotalDocuments)
	}
	if len(s.ProcessedDocuments) != s.ProcessedCount {
		t.Errorf("processed list has %d entries, count is %d", len(s.ProcessedDocuments), s.ProcessedCount)
	}
	if len(s.FailedDocuments) != s.FailedCount {
		t.Errorf("failed list has %d entries, count is %d", len(s.FailedDocuments), s.FailedCount)
	}
	processed := make(map[string]bool)
	for _, p := range s.ProcessedDocuments {
		processed[p.ID] = true
	}
	for _, f := range s.FailedDocuments {
		if processed[f.ID] {
			t.Errorf("document %s is both processed and failed", f.ID)
		}
	}
}

func process(t *testing.T, tr *Tracker, id string, fail string) {
	t.Helper()
	if err := tr.MarkProcessing(id, "Report "+id); err != nil {
		t.Fatalf("MarkProcessing(%s): %v", id, err)
	}
	checkInvariants(t, tr.Snapshot())
	var err error
	if fail != "" {
		err = tr.MarkFailed(id, "Report "+id, fail)
	} else {
		err = tr.MarkCompleted(id, "Report "+id, "summary of "+id)
	}
	if err != nil {
		t.Fatalf("mark %s: %v", id, err)
	}
	checkInvariants(t, tr.Snapshot())
}

func TestFreshRunAllComplete(t *testing.T) {
	store := newTestStore(t)
	tr := newTestTracker(t, store, "")
	if err := tr.InitializeDocuments(docs("A", "B", "C")); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}
	checkInvariants(t, tr.Snapshot())

	for _, id := range []string{"A", "B", "C"} {
		process(t, tr, id, "")
	}

	s := tr.Snapshot()
	if s.ProcessedCount != 3 || s.FailedCount != 0 {
		t.Errorf("got processed=%d failed=%d, want 3/0", s.ProcessedCount, s.FailedCount)
	}
	if len(s.RemainingDocuments) != 0 {
		t.Errorf("remaining = %v, want empty", s.RemainingDocuments)
	}
	if s.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", s.Status, StatusCompleted)
	}
	if len(s.ProcessingTimes) != 3 {
		t.Fatalf("got %d processing times, want 3", len(s.ProcessingTimes))
	}
	for _, d := range s.ProcessingTimes {
		if d != 2 {
			t.Errorf("processing time = %v, want 2s from the fake clock", d)
		}
	}
	if s.ProcessedDocuments[0].SummaryLength != len("summary of A") {
		t.Errorf("summary_length = %d", s.ProcessedDocuments[0].SummaryLength)
	}
	if tr.ShouldResume() {
		t.Error("ShouldResume() = true after every document completed")
	}
}

func TestMixedOutcomeRecordsFailure(t *testing.T) {
	store := newTestStore(t)
	tr := newTestTracker(t, store, "mixed")
	if err := tr.InitializeDocuments(docs("A", "B", "C")); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}
	process(t, tr, "A", "")
	process(t, tr, "B", "timeout")
	process(t, tr, "C", "")

	s := tr.Snapshot()
	if s.ProcessedCount != 2 || s.FailedCount != 1 {
		t.Errorf("got processed=%d failed=%d, want 2/1", s.ProcessedCount, s.FailedCount)
	}
	if s.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", s.Status)
	}

	ledger, err := store.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	if len(ledger.FailedDocuments) != 1 || ledger.FailedDocuments[0].ID != "B" || ledger.FailedDocuments[0].Error != "timeout" {
		t.Errorf("ledger = %+v, want one record for B/timeout", ledger.FailedDocuments)
	}
	if ledger.Session != tr.SessionFile() {
		t.Errorf("ledger session = %q, want %q", ledger.Session, tr.SessionFile())
	}

	report := tr.SummaryReport()
	for _, want := range []string{"Report B: timeout", "Failed: 1 (33.3%)", "--retry-failed"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestResumeWithRemaining(t *testing.T) {
	store := newTestStore(t)
	tr := newTestTracker(t, store, "resume-me")
	if err := tr.InitializeDocuments(docs("A", "B", "C")); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}
	process(t, tr, "A", "")
	process(t, tr, "B", "")

	resumed := newTestTracker(t, store, "")
	if !resumed.LoadSession("resume-me") {
		t.Fatal("LoadSession returned false for an existing session")
	}
	if got := resumed.RemainingDocuments(); !reflect.DeepEqual(got, []string{"C"}) {
		t.Errorf("RemainingDocuments() = %v, want [C]", got)
	}
	if !resumed.ShouldResume() {
		t.Error("ShouldResume() = false, want true")
	}
	if resumed.SessionFile() != tr.SessionFile() {
		t.Errorf("resumed session file = %q, want %q", resumed.SessionFile(), tr.SessionFile())
	}

	process(t, resumed, "C", "")
	if s := resumed.Snapshot(); s.Status != StatusCompleted || s.ProcessedCount != 3 {
		t.Errorf("after resume got status=%q processed=%d", s.Status, s.ProcessedCount)
	}
}

func TestResumeNothingLeft(t *testing.T) {
	store := newTestStore(t)
	tr := newTestTracker(t, store, "done")
	if err := tr.InitializeDocuments(docs("A")); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}
	process(t, tr, "A", "")

	resumed := newTestTracker(t, store, "")
	if !resumed.LoadSession("done.json") {
		t.Fatal("LoadSession returned false")
	}
	if resumed.ShouldResume() {
		t.Error("ShouldResume() = true for a finished session")
	}
	if err := resumed.InitializeDocuments(docs("A")); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("InitializeDocuments after load = %v, want ErrAlreadyInitialized", err)
	}
}

func TestRetryLeavesLedgerUntilPruned(t *testing.T) {
	store := newTestStore(t)
	first := newTestTracker(t, store, "first")
	if err := first.InitializeDocuments(docs("A", "B", "C")); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}
	process(t, first, "A", "")
	process(t, first, "B", "timeout")
	process(t, first, "C", "")

	failed := LoadFailedDocuments(store.Dir())
	if len(failed) != 1 || failed[0].ID != "B" {
		t.Fatalf("LoadFailedDocuments() = %+v, want [B]", failed)
	}

	retry := newTestTracker(t, store, "retry")
	if err := retry.InitializeDocuments([]models.DocumentRef{{ID: failed[0].ID, Name: failed[0].Name}}); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}
	process(t, retry, "B", "")

	if got := LoadFailedDocuments(store.Dir()); len(got) != 1 || got[0].ID != "B" {
		t.Errorf("ledger after successful retry = %+v, want B still present", got)
	}

	removed, err := PruneFailedDocuments(store.Dir(), []string{"B"})
	if err != nil {
		t.Fatalf("PruneFailedDocuments: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if got := LoadFailedDocuments(store.Dir()); len(got) != 0 {
		t.Errorf("ledger after prune = %+v, want empty", got)
	}
}

func TestInitializeTwice(t *testing.T) {
	tr := newTestTracker(t, newTestStore(t), "")
	if err := tr.InitializeDocuments(docs("A")); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}
	if err := tr.InitializeDocuments(docs("B", "C")); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second InitializeDocuments = %v, want ErrAlreadyInitialized", err)
	}
	if s := tr.Snapshot(); s.TotalDocuments != 1 || s.Documents[0].ID != "A" {
		t.Errorf("state changed by rejected initialize: %+v", s)
	}
}

func TestInitializeDropsDuplicateIDs(t *testing.T) {
	store := newTestStore(t)
	tr := newTestTracker(t, store, "dups")
	batch := docs("A", "A", "B")
	batch[1].Name = "Second copy of A"
	if err := tr.InitializeDocuments(batch); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}
	s := tr.Snapshot()
	checkInvariants(t, s)
	if s.TotalDocuments != 2 || !reflect.DeepEqual(s.RemainingDocuments, []string{"A", "B"}) {
		t.Fatalf("total=%d remaining=%v, want 2 [A B]", s.TotalDocuments, s.RemainingDocuments)
	}
	if s.Documents[0].Name != "Report A" {
		t.Errorf("kept %q, want the first occurrence", s.Documents[0].Name)
	}

	process(t, tr, "A", "")
	process(t, tr, "B", "")
	if s := tr.Snapshot(); s.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", s.Status, StatusCompleted)
	}
	loaded, err := store.LoadSession(tr.SessionFile())
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	checkInvariants(t, loaded)
}

func TestCompletedWithoutProcessingRecordsZeroDuration(t *testing.T) {
	tr := newTestTracker(t, newTestStore(t), "")
	if err := tr.InitializeDocuments(docs("A", "B")); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}
	if err := tr.MarkCompleted("A", "Report A", ""); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	s := tr.Snapshot()
	if !reflect.DeepEqual(s.ProcessingTimes, []float64{0}) {
		t.Errorf("processing times = %v, want [0]", s.ProcessingTimes)
	}
	if s.ProcessedDocuments[0].SummaryLength != 0 {
		t.Errorf("summary_length = %d, want 0", s.ProcessedDocuments[0].SummaryLength)
	}
	checkInvariants(t, s)
}

func TestMarkProcessingOverwritesCurrent(t *testing.T) {
	tr := newTestTracker(t, newTestStore(t), "")
	if err := tr.InitializeDocuments(docs("A")); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}
	if err := tr.MarkProcessing("A", "first attempt"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	first := tr.Snapshot().CurrentDocument.StartTime
	if err := tr.MarkProcessing("A", "second attempt"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	cur := tr.Snapshot().CurrentDocument
	if cur.Name != "second attempt" || !cur.StartTime.After(first) {
		t.Errorf("current document = %+v, want the second attempt", cur)
	}
}

func TestMarkUnknownOrResolvedDocument(t *testing.T) {
	tr := newTestTracker(t, newTestStore(t), "")
	if err := tr.InitializeDocuments(docs("A", "B")); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}
	process(t, tr, "A", "")
	before := tr.Snapshot()

	if err := tr.MarkFailed("A", "Report A", "late failure"); !errors.Is(err, ErrNotRemaining) {
		t.Errorf("MarkFailed on completed doc = %v, want ErrNotRemaining", err)
	}
	if err := tr.MarkCompleted("Z", "ghost", "x"); !errors.Is(err, ErrNotRemaining) {
		t.Errorf("MarkCompleted on unknown doc = %v, want ErrNotRemaining", err)
	}
	if err := tr.MarkProcessing("Z", "ghost"); !errors.Is(err, ErrNotRemaining) {
		t.Errorf("MarkProcessing on unknown doc = %v, want ErrNotRemaining", err)
	}
	if after := tr.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("state changed by rejected marks:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestLoadSessionFailureKeepsState(t *testing.T) {
	store := newTestStore(t)
	tr := newTestTracker(t, store, "keep")
	if err := tr.InitializeDocuments(docs("A", "B")); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}
	before := tr.Snapshot()

	if tr.LoadSession("no-such-session") {
		t.Error("LoadSession returned true for a missing file")
	}
	corrupt := store.SessionPath("corrupt", time.Now())
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if tr.LoadSession(corrupt) {
		t.Error("LoadSession returned true for a corrupt file")
	}
	if after := tr.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("state changed by failed loads")
	}
}

func TestPersistenceErrorIsReturned(t *testing.T) {
	dir := t.TempDir() + "/progress"
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	tr := newTestTracker(t, store, "")
	if err := tr.InitializeDocuments(docs("A")); err != nil {
		t.Fatalf("InitializeDocuments: %v", err)
	}

	// Replace the directory with a plain file so every write fails.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("blocked"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := tr.MarkProcessing("A", "Report A"); err == nil {
		t.Fatal("MarkProcessing returned nil with an unwritable progress dir")
	}
	if cur := tr.Snapshot().CurrentDocument; cur == nil || cur.ID != "A" {
		t.Errorf("in-memory transition not applied: %+v", cur)
	}
}
