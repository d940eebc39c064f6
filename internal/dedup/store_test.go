package dedup

import (
	"path/filepath"
	"testing"
	"time"

	"duesync/internal/assignment"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), ".duesync", "dedup.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func canonical(fp, title string, due time.Time) assignment.Canonical {
	return assignment.Canonical{
		Fingerprint: fp,
		Title:       title,
		Course:      "CS101",
		DueAt:       due,
		Source:      assignment.SourceScrape,
	}
}

func TestReconcile_NewAssignsUID(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	due := time.Date(2026, 9, 1, 23, 59, 0, 0, time.UTC)

	outcomes, err := s.Reconcile([]assignment.Canonical{canonical("fp-1", "HW 3", due)}, now)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	o := outcomes[0]
	if o.Status != StatusNew {
		t.Errorf("status: got %s, want new", o.Status)
	}
	if o.Record.CalendarUID == "" {
		t.Error("new record must get a UID")
	}
	if !o.Record.LastDueAt.Equal(due) {
		t.Errorf("last due: got %s, want %s", o.Record.LastDueAt, due)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	due := time.Date(2026, 9, 1, 23, 59, 0, 0, time.UTC)
	set := []assignment.Canonical{
		canonical("fp-1", "HW 3", due),
		canonical("fp-2", "Project", due.Add(48*time.Hour)),
	}

	first, err := s.Reconcile(set, now)
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	second, err := s.Reconcile(set, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	for i := range second {
		if second[i].Status != StatusUnchanged {
			t.Errorf("outcome %d: got %s, want unchanged", i, second[i].Status)
		}
		if second[i].Record.CalendarUID != first[i].Record.CalendarUID {
			t.Errorf("outcome %d: UID changed across runs: %s -> %s",
				i, first[i].Record.CalendarUID, second[i].Record.CalendarUID)
		}
	}
}

func TestReconcile_DueMoveKeepsUID(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	due := time.Date(2026, 9, 1, 23, 59, 0, 0, time.UTC)

	first, err := s.Reconcile([]assignment.Canonical{canonical("fp-1", "HW 3", due)}, now)
	if err != nil {
		t.Fatal(err)
	}

	moved := due.Add(72 * time.Hour)
	second, err := s.Reconcile([]assignment.Canonical{canonical("fp-1", "HW 3", moved)}, now.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	o := second[0]
	if o.Status != StatusUpdated {
		t.Errorf("status: got %s, want updated", o.Status)
	}
	if o.Record.CalendarUID != first[0].Record.CalendarUID {
		t.Error("due-date move must not change the UID")
	}
	if !o.Record.LastDueAt.Equal(moved) {
		t.Errorf("last due not updated: %s", o.Record.LastDueAt)
	}

	// And the move is persisted.
	rec, err := s.Get("fp-1")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.LastDueAt.Equal(moved) {
		t.Errorf("persisted last due: got %s, want %s", rec.LastDueAt, moved)
	}
}

func TestReconcile_SubMinuteDueNoiseIsUnchanged(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	due := time.Date(2026, 9, 1, 23, 59, 0, 0, time.UTC)

	if _, err := s.Reconcile([]assignment.Canonical{canonical("fp-1", "HW 3", due)}, now); err != nil {
		t.Fatal(err)
	}
	out, err := s.Reconcile([]assignment.Canonical{canonical("fp-1", "HW 3", due.Add(5*time.Second))}, now)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Status != StatusUnchanged {
		t.Errorf("sub-minute drift should be unchanged, got %s", out[0].Status)
	}
}

func TestPrune_GraceWindow(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	due := now.Add(7 * 24 * time.Hour)

	if _, err := s.Reconcile([]assignment.Canonical{canonical("fp-old", "Old", due)}, now.Add(-30*24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reconcile([]assignment.Canonical{canonical("fp-recent", "Recent", due)}, now.Add(-24*time.Hour)); err != nil {
		t.Fatal(err)
	}

	pruned, err := s.Prune(now, 14*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned record, got %d", pruned)
	}

	if rec, _ := s.Get("fp-old"); rec != nil {
		t.Error("aged-out record should be gone")
	}
	if rec, _ := s.Get("fp-recent"); rec == nil {
		t.Error("record inside the grace window must survive")
	}
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".duesync", "dedup.db")
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	due := time.Date(2026, 9, 1, 23, 59, 0, 0, time.UTC)

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	first, err := s.Reconcile([]assignment.Canonical{canonical("fp-1", "HW 3", due)}, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	rec, err := reopened.Get("fp-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.CalendarUID != first[0].Record.CalendarUID {
		t.Errorf("record did not survive reopen: %+v", rec)
	}

	n, err := reopened.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count: got %d, want 1", n)
	}
}
