package daemoncore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vimo-ai/vlaude-daemon/internal/daemonerr"
)

func TestValidatePathSegment(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"ordinary uuid", "a1b2c3d4-0000-0000-0000-000000000000", false},
		{"empty", "", true},
		{"parent traversal", "../etc/passwd", true},
		{"embedded traversal", "foo/../bar", true},
		{"leading slash", "/etc/passwd", true},
		{"nul byte", "abc\x00def", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePathSegment(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, daemonerr.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
