package cluster

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayKey(t *testing.T) {
	tests := []struct {
		name    string
		iso     string
		want    string
		wantErr bool
	}{
		{name: "rfc3339 utc", iso: "2024-03-01T08:00:00Z", want: "2024-03-01"},
		{name: "rfc3339 with offset", iso: "2024-03-01T01:00:00+03:00", want: "2024-02-29"},
		{name: "date only", iso: "2024-03-01", want: "2024-03-01"},
		{name: "end of utc day", iso: "2024-01-01T23:59:59Z", want: "2024-01-01"},
		{name: "start of next utc day", iso: "2024-01-02T00:00:01Z", want: "2024-01-02"},
		{name: "garbage", iso: "not-a-timestamp", wantErr: true},
		{name: "empty", iso: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DayKey(tt.iso)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDayKeyBoundary(t *testing.T) {
	before, err := DayKey("2024-01-01T23:59:59Z")
	require.NoError(t, err)
	after, err := DayKey("2024-01-02T00:00:01Z")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestFingerprintDeterminism(t *testing.T) {
	topicID := uuid.New()

	fp1 := Fingerprint(topicID, "2024-03-01", "Election Results")
	fp2 := Fingerprint(topicID, "2024-03-01", "Election Results")
	assert.Equal(t, fp1, fp2)

	// Whitespace and case a human would ignore must not split clusters.
	assert.Equal(t, fp1, Fingerprint(topicID, "2024-03-01", "  Election   Results "))
	assert.Equal(t, fp1, Fingerprint(topicID, "2024-03-01", "election results"))

	// Changing any input changes the output.
	assert.NotEqual(t, fp1, Fingerprint(uuid.New(), "2024-03-01", "Election Results"))
	assert.NotEqual(t, fp1, Fingerprint(topicID, "2024-03-02", "Election Results"))
	assert.NotEqual(t, fp1, Fingerprint(topicID, "2024-03-01", "Election Night"))
}

func TestFingerprintNoObservedCollisions(t *testing.T) {
	seen := make(map[string]string, 3000)
	for i := 0; i < 100; i++ {
		topicID := uuid.New()
		for d := 1; d <= 10; d++ {
			for _, title := range []string{"alpha", "beta", "gamma"} {
				key := fmt.Sprintf("%s|2024-05-%02d|%s", topicID, d, title)
				fp := Fingerprint(topicID, fmt.Sprintf("2024-05-%02d", d), title)
				if prev, ok := seen[fp]; ok {
					t.Fatalf("collision: %s and %s both hash to %s", prev, key, fp)
				}
				seen[fp] = key
			}
		}
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "election results", NormalizeTitle("  Election \t Results\n"))
	assert.Equal(t, "", NormalizeTitle("   "))
}
