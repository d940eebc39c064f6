package assignment

import (
	"strings"
	"testing"
	"time"
)

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load zone %s: %v", name, err)
	}
	return loc
}

func TestNormalize_WhitespaceStableFingerprint(t *testing.T) {
	n := NewNormalizer(mustZone(t, "America/New_York"), nil)

	a, err := n.Normalize(Raw{Source: SourceScrape, Title: "  HW 3 ", Course: "CS101", DueRaw: "2024-03-01T23:59"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	b, err := n.Normalize(Raw{Source: SourceScrape, Title: "HW\t\t3", Course: "CS101", DueRaw: "2024-03-01T23:59"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if a.Title != "HW 3" {
		t.Errorf("title not canonicalized: %q", a.Title)
	}
	if a.Fingerprint != b.Fingerprint {
		t.Errorf("whitespace noise split the fingerprint:\n%s\n%s", a.Fingerprint, b.Fingerprint)
	}
}

func TestNormalize_BareTimestampAssumesConfiguredZone(t *testing.T) {
	loc := mustZone(t, "America/New_York")
	n := NewNormalizer(loc, nil)

	c, err := n.Normalize(Raw{Source: SourceScrape, Title: "HW 3", Course: "CS101", DueRaw: "2024-03-01T23:59"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	want := time.Date(2024, 3, 1, 23, 59, 0, 0, loc)
	if !c.DueAt.Equal(want) {
		t.Errorf("due: got %s, want %s", c.DueAt, want)
	}
}

func TestNormalize_RFC3339ConvertedToZone(t *testing.T) {
	loc := mustZone(t, "America/New_York")
	n := NewNormalizer(loc, nil)

	c, err := n.Normalize(Raw{Source: SourceAPI, Title: "Quiz 1", Course: "CS101", DueRaw: "2024-03-02T04:59:00Z"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	// 04:59 UTC is 23:59 the previous day in New York (EST).
	if c.DueAt.Location() != loc {
		t.Errorf("due not in configured zone: %s", c.DueAt.Location())
	}
	if c.DueAt.Hour() != 23 || c.DueAt.Day() != 1 {
		t.Errorf("conversion wrong: %s", c.DueAt)
	}
}

func TestNormalize_SecondsNoiseDoesNotSplitFingerprint(t *testing.T) {
	n := NewNormalizer(time.UTC, nil)

	a, _ := n.Normalize(Raw{Source: SourceAPI, Title: "Lab 2", Course: "EE20", DueRaw: "2024-04-01T10:00:01Z"})
	b, _ := n.Normalize(Raw{Source: SourceAPI, Title: "Lab 2", Course: "EE20", DueRaw: "2024-04-01T10:00:59Z"})
	if a.Fingerprint != b.Fingerprint {
		t.Error("sub-minute noise split the fingerprint")
	}
}

func TestNormalize_DifferentSourcesDiffer(t *testing.T) {
	n := NewNormalizer(time.UTC, nil)

	a, _ := n.Normalize(Raw{Source: SourceAPI, Title: "HW 1", Course: "CS101", DueRaw: "2024-04-01T10:00:00Z"})
	b, _ := n.Normalize(Raw{Source: SourceScrape, Title: "HW 1", Course: "CS101", DueRaw: "2024-04-01T10:00:00Z"})
	if a.Fingerprint == b.Fingerprint {
		t.Error("source should participate in the fingerprint by default")
	}
}

func TestNormalize_ConfigurableFields(t *testing.T) {
	// With source excluded, api and scrape views of the same assignment
	// collapse to one identity.
	n := NewNormalizer(time.UTC, []string{"course", "title", "due"})

	a, _ := n.Normalize(Raw{Source: SourceAPI, Title: "HW 1", Course: "CS101", DueRaw: "2024-04-01T10:00:00Z"})
	b, _ := n.Normalize(Raw{Source: SourceScrape, Title: "HW 1", Course: "CS101", DueRaw: "2024-04-01T10:00:00Z"})
	if a.Fingerprint != b.Fingerprint {
		t.Error("fingerprint should ignore source when configured to")
	}
}

func TestNormalize_MissingDue(t *testing.T) {
	n := NewNormalizer(time.UTC, nil)
	_, err := n.Normalize(Raw{Source: SourceAPI, Title: "HW 1", Course: "CS101"})
	if err == nil || !strings.Contains(err.Error(), "missing due") {
		t.Errorf("expected missing-due error, got: %v", err)
	}
}

func TestNormalize_UnparseableDue(t *testing.T) {
	n := NewNormalizer(time.UTC, nil)
	_, err := n.Normalize(Raw{Source: SourceScrape, Title: "HW 1", Course: "CS101", DueRaw: "next Friday"})
	if err == nil || !strings.Contains(err.Error(), "unparseable") {
		t.Errorf("expected unparseable error, got: %v", err)
	}
}

func TestNormalize_EmptyTitle(t *testing.T) {
	n := NewNormalizer(time.UTC, nil)
	_, err := n.Normalize(Raw{Source: SourceScrape, Title: "   ", Course: "CS101", DueRaw: "2024-04-01T10:00"})
	if err == nil || !strings.Contains(err.Error(), "empty title") {
		t.Errorf("expected empty-title error, got: %v", err)
	}
}
