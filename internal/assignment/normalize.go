package assignment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// due formats accepted from sources that omit a timezone marker. Such
// timestamps are assumed to already be in the user's configured zone.
var bareLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Normalizer maps raw records into canonical form and computes the identity
// fingerprint over a configurable field set.
type Normalizer struct {
	loc    *time.Location
	fields []string
}

// NewNormalizer returns a Normalizer anchored to the user's timezone.
// fields selects the fingerprint composition (source, course, title, due);
// nil means all four.
func NewNormalizer(loc *time.Location, fields []string) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	if len(fields) == 0 {
		fields = []string{"source", "course", "title", "due"}
	}
	return &Normalizer{loc: loc, fields: fields}
}

// Normalize converts one raw record into canonical form. A missing or
// unparseable due timestamp is an error; callers skip the record and count it
// as a parse failure rather than aborting the run.
func (n *Normalizer) Normalize(raw Raw) (Canonical, error) {
	title := CanonicalTitle(raw.Title)
	if title == "" {
		return Canonical{}, fmt.Errorf("normalize: empty title (course %q)", raw.Course)
	}

	due, err := n.parseDue(raw.DueRaw)
	if err != nil {
		return Canonical{}, fmt.Errorf("normalize %q: %w", title, err)
	}

	c := Canonical{
		Title:  title,
		Course: strings.TrimSpace(raw.Course),
		DueAt:  due,
		Source: raw.Source,
		URL:    raw.URL,
	}
	c.Fingerprint = n.fingerprint(c)
	return c, nil
}

// parseDue canonicalizes the due timestamp to the configured zone. Timestamps
// carrying an offset are converted; bare timestamps are interpreted as already
// being in the configured zone.
func (n *Normalizer) parseDue(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing due timestamp")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(n.loc), nil
	}
	for _, layout := range bareLayouts {
		if t, err := time.ParseInLocation(layout, raw, n.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable due timestamp %q", raw)
}

// fingerprint hashes the configured fields. The due component is truncated to
// the minute so second-level re-fetch noise cannot split identities.
func (n *Normalizer) fingerprint(c Canonical) string {
	parts := make([]string, 0, len(n.fields))
	for _, f := range n.fields {
		switch f {
		case "source":
			parts = append(parts, c.Source)
		case "course":
			parts = append(parts, c.Course)
		case "title":
			parts = append(parts, c.Title)
		case "due":
			parts = append(parts, c.DueAt.Truncate(time.Minute).In(n.loc).Format("2006-01-02T15:04"))
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// CanonicalTitle trims the title and collapses internal whitespace runs so
// volatile formatting from repeated scrapes does not produce spurious new
// fingerprints.
func CanonicalTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
