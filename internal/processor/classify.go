package processor

import (
	"context"
	"errors"
	"strings"

	"github.com/tuanvc/snaptext/internal/engine"
)

// transientMarkers are the failure classes worth retrying with the same
// inputs: connectivity loss, slow responses, and recognition worker
// startup trouble. Anything else is treated as permanent for the image.
var transientMarkers = []string{"network", "timeout", "worker"}

// Transient reports whether a recognition failure is presumed
// recoverable by retrying. A structured mark from the engine or an
// attempt deadline is authoritative; otherwise the failure description
// is matched against the known transient classes.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if engine.IsTransient(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
