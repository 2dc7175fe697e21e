package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archiveworks/mailarch/internal/archerrors"
)

func TestDecodeDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{
			name: "rfc2822",
			in:   "Tue, 4 Jun 2019 10:15:00 +0200",
			want: time.Date(2019, 6, 4, 10, 15, 0, 0, time.FixedZone("", 2*3600)),
		},
		{
			name: "double sign offset",
			in:   "Tue, 4 Jun 2019 10:15:00 --0400",
			want: time.Date(2019, 6, 4, 10, 15, 0, 0, time.FixedZone("", -4*3600)),
		},
		{
			name: "missing offset sign",
			in:   "Tue, 4 Jun 2019 10:15:00 0200",
			want: time.Date(2019, 6, 4, 10, 15, 0, 0, time.FixedZone("", 2*3600)),
		},
		{
			name: "short positive offset",
			in:   "Tue, 4 Jun 2019 10:15:00 +500",
			want: time.Date(2019, 6, 4, 10, 15, 0, 0, time.FixedZone("", 5*3600)),
		},
		{
			name: "dotted offset",
			in:   "Tue, 4 Jun 2019 10:15:00 +1.00",
			want: time.Date(2019, 6, 4, 10, 15, 0, 0, time.FixedZone("", 3600)),
		},
		{
			name: "offset with trailing comment",
			in:   "Tue, 4 Jun 2019 10:15:00 +0200 (Central European Time)",
			want: time.Date(2019, 6, 4, 10, 15, 0, 0, time.FixedZone("", 2*3600)),
		},
		{
			name: "french month name",
			in:   "04-Juin-2019 10:15:00",
			want: time.Date(2019, 6, 4, 10, 15, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDate(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestDecodeDateInsaneOffset(t *testing.T) {
	// No timezone on earth is this far from UTC; keep the wall
	// clock and call it UTC. Offsets past 24 hours would not even
	// survive parsing, so they are cut before the parser sees them.
	for _, in := range []string{
		"Tue, 4 Jun 2019 10:15:00 +1800",
		"Tue, 4 Jun 2019 10:15:00 +9900",
		"Tue, 4 Jun 2019 10:15:00 -9900",
	} {
		got, err := DecodeDate(in)
		require.NoError(t, err, "input %q", in)

		want := time.Date(2019, 6, 4, 10, 15, 0, 0, time.UTC)
		assert.True(t, got.Equal(want), "input %q: got %s, want %s", in, got, want)
	}
}

func TestDecodeDateFailures(t *testing.T) {
	for _, in := range []string{"", "   ", "not a date at all"} {
		_, err := DecodeDate(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, archerrors.IsIgnorable(err), "input %q should be ignorable", in)
	}
}
