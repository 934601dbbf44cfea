package transcriptstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vimo-ai/vlaude-daemon/internal/transcriptstore"
)

func TestEncodeDecodeProjectPathRoundTrip(t *testing.T) {
	tests := []string{
		"/u/a",
		"/home/dev/project",
		"/",
	}

	for _, path := range tests {
		encoded := transcriptstore.EncodeProjectPath(path)
		assert.Equal(t, path, transcriptstore.DecodeProjectPath(encoded))
	}
}

func TestEncodeProjectPathMatchesObservedConvention(t *testing.T) {
	assert.Equal(t, "-u-a", transcriptstore.EncodeProjectPath("/u/a"))
}
