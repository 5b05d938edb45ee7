package buildsvc

import (
	"context"
	"net"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Failure classes for remote calls. Wrap these so errors.Is keeps matching
// through added context.
var (
	// ErrTransient covers timeouts, connection resets and 5xx-class
	// responses. Safe to retry with backoff.
	ErrTransient = errors.New("transient remote failure")

	// ErrAuth means the service rejected the credential (401/403/419).
	// The caller invalidates the token and re-authenticates once.
	ErrAuth = errors.New("credential rejected")

	// ErrRejected is a non-retryable remote rejection, e.g. an invalid
	// payload. Retrying would fail identically.
	ErrRejected = errors.New("request rejected")
)

func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
func IsAuth(err error) bool      { return errors.Is(err, ErrAuth) }
func IsRejected(err error) bool  { return errors.Is(err, ErrRejected) }

// classifyStatus maps a non-2xx response to a failure class.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == 419: // non-standard session-expired code the service emits
		return errors.Wrapf(ErrAuth, "status %d", status)
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return errors.Wrapf(ErrTransient, "status %d", status)
	default:
		return errors.Wrapf(ErrRejected, "status %d", status)
	}
}

// classifyTransport maps request plumbing errors. Context cancellation is
// passed through untouched so callers can tell an aborted run from a flaky
// network.
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrapf(ErrTransient, "timeout: %v", err)
	}
	// Connection resets, refused connections, DNS blips.
	return errors.Wrapf(ErrTransient, "%v", err)
}
