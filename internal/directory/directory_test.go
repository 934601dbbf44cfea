package directory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vimo-ai/vlaude-daemon/internal/directory"
)

func TestSortByPriority(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "localhost beats private beats public",
			in:   []string{"203.0.113.5:10005", "192.168.1.5:10005", "localhost:10005"},
			want: []string{"localhost:10005", "192.168.1.5:10005", "203.0.113.5:10005"},
		},
		{
			name: "127.0.0.1 treated as localhost",
			in:   []string{"10.0.0.2:10005", "127.0.0.1:10005"},
			want: []string{"127.0.0.1:10005", "10.0.0.2:10005"},
		},
		{
			name: "172 private range",
			in:   []string{"203.0.113.5:10005", "172.16.0.9:10005"},
			want: []string{"172.16.0.9:10005", "203.0.113.5:10005"},
		},
		{
			name: "stable on equal priority",
			in:   []string{"203.0.113.1:10005", "203.0.113.2:10005"},
			want: []string{"203.0.113.1:10005", "203.0.113.2:10005"},
		},
		{
			name: "empty input",
			in:   []string{},
			want: []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			directory.SortByPriority(tc.in)
			assert.Equal(t, tc.want, tc.in)
		})
	}
}

// Register/KeepAlive/UpdateDaemonSessions exercise a live *redis.Client and
// have no tests in this package.
