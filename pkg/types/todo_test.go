package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "buy milk", want: "buy milk"},
		{name: "trims whitespace", in: "  walk the dog\n", want: "walk the dog"},
		{name: "empty", in: "", wantErr: true},
		{name: "only spaces", in: "   ", wantErr: true},
		{name: "exactly 255", in: strings.Repeat("a", 255), want: strings.Repeat("a", 255)},
		{name: "256 is too long", in: strings.Repeat("a", 256), wantErr: true},
		{name: "counts characters not bytes", in: strings.Repeat("é", 255), want: strings.Repeat("é", 255)},
		// "e" + combining acute composes to a single character under NFC.
		{name: "composes to NFC", in: "cafe\u0301", want: "caf\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDescription(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDescription)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStats(t *testing.T) {
	done, total := Stats([]Todo{{Completed: true}, {}, {Completed: true}})
	assert.Equal(t, 2, done)
	assert.Equal(t, 3, total)

	done, total = Stats(nil)
	assert.Zero(t, done)
	assert.Zero(t, total)
}
