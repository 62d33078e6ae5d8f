package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
)

// naiveLayout is the zone-less form written by earlier versions of the result file; it is read
// as UTC.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// record is the persisted form of archiver.Result. FromExistingSnapshot is not persisted.
type record struct {
	URL          *string `json:"url"`
	LastArchived string  `json:"last_archived"`
}

// Marshal renders the cache as indented JSON with keys sorted by URL.
func Marshal(c *Cache) ([]byte, error) {
	out := make(map[string]record, len(c.entries))
	for k, res := range c.entries {
		out[k] = record{
			URL:          res.URL,
			LastArchived: res.LastArchived.UTC().Format(time.RFC3339Nano),
		}
	}
	// encoding/json writes map keys in sorted order.
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal cache: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal parses a document produced by Marshal. Empty input yields an empty cache.
func Unmarshal(data []byte) (*Cache, error) {
	c := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return c, nil
	}
	var in map[string]record
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("unmarshal cache: %w", err)
	}
	for k, rec := range in {
		ts, err := ParseTime(rec.LastArchived)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", k, err)
		}
		c.entries[k] = archiver.Result{URL: rec.URL, LastArchived: ts}
	}
	return c, nil
}

// ParseTime accepts RFC 3339 timestamps and the zone-less legacy layout.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last_archived %q: %w", s, err)
	}
	return t, nil
}
