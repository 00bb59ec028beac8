// Package cluster implements the deterministic event-deduplication
// primitives: day-keys, fingerprints and event-time resolution.
package cluster

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DayKey derives the UTC calendar date ("YYYY-MM-DD") from an ISO timestamp.
// UTC is used without timezone adjustment: 23:59:59Z and 00:00:01Z the next
// UTC day get different keys even when the user's local day is the same.
func DayKey(iso string) (string, error) {
	t, err := ParseTimestamp(iso)
	if err != nil {
		return "", err
	}
	return t.UTC().Format("2006-01-02"), nil
}

// DayKeyFromTime derives the UTC calendar date from an already-parsed time.
func DayKeyFromTime(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ParseTimestamp parses an ISO-8601 timestamp, accepting both RFC 3339 and
// the common date-only form.
func ParseTimestamp(iso string) (time.Time, error) {
	iso = strings.TrimSpace(iso)
	if iso == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, iso); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", iso); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", iso)
}

// Fingerprint computes the cluster key for "same event, same UTC day, same
// topic". Two members with the same topic, day-key and (lightly normalized)
// title collapse into the same cluster; any differing input produces a
// different key with overwhelming probability.
func Fingerprint(topicID uuid.UUID, dayKey, title string) string {
	h := sha256.New()
	h.Write([]byte(topicID.String()))
	h.Write([]byte{0})
	h.Write([]byte(dayKey))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeTitle(title)))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeTitle collapses surrounding and internal whitespace runs and
// lowercases the title, so strings a human would consider identical hash the
// same. No semantic (paraphrase) deduplication is attempted.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
