package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lorekeep-engine/pkg/models"
)

func TestResolveEventTime(t *testing.T) {
	annotated := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	published := time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)
	created := time.Date(2024, 2, 25, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		note *models.Note
		want *time.Time
	}{
		{
			name: "explicit annotation wins",
			note: &models.Note{EventTime: &annotated, PublishedAt: &published, CreatedAt: created},
			want: &annotated,
		},
		{
			name: "published beats ingestion",
			note: &models.Note{PublishedAt: &published, CreatedAt: created},
			want: &published,
		},
		{
			name: "ingestion time as last resort",
			note: &models.Note{CreatedAt: created},
			want: &created,
		},
		{
			name: "nothing available",
			note: &models.Note{},
			want: nil,
		},
		{
			name: "nil note",
			note: nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveEventTime(tt.note)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got))
		})
	}
}
