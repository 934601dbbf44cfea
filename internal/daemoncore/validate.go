package daemoncore

import (
	"fmt"
	"strings"

	"github.com/vimo-ai/vlaude-daemon/internal/daemonerr"
)

// validatePathSegment checks an identifier that is about to become a path
// segment (a session ID, most commonly): non-empty, no "..", no leading
// "/", no NUL byte. Rejection is surfaced as ErrInvalidInput and is
// handled by the caller logging a warning — it never tears down the
// socket.
func validatePathSegment(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty identifier", daemonerr.ErrInvalidInput)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("%w: identifier contains '..': %q", daemonerr.ErrInvalidInput, id)
	}
	if strings.HasPrefix(id, "/") {
		return fmt.Errorf("%w: identifier has leading '/': %q", daemonerr.ErrInvalidInput, id)
	}
	if strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: identifier contains NUL byte", daemonerr.ErrInvalidInput)
	}
	return nil
}
