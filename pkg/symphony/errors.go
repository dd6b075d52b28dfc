package symphony

import (
	"errors"
	"fmt"
	"time"
)

// AuthError reports a failure in one stage of the credential chain. Stage is
// one of "app", "bot", "keymanager", "compliance-session", "compliance-key".
type AuthError struct {
	Stage string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed at %s stage: %v", e.Stage, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// AuthorizationError means the platform refused to issue a delegated session
// for the target user. Unlike a transport fault this is user-actionable: the
// app has to be installed and enabled for the user before exports can run.
type AuthorizationError struct {
	UserID int64
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %d is not authorized to export messages; have a pod admin install and enable the app and try again", e.UserID)
}

// UpstreamError is a non-2xx or malformed response from any platform call.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Detail     string
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s returned %d", e.Endpoint, e.StatusCode)
}

// RetryAfterHint classifies an error for limiter.CallWithRetry: rate-limited
// upstream responses yield a positive backoff, everything else yields 0.
func RetryAfterHint(err error) time.Duration {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.StatusCode == 429 {
		if ue.RetryAfter > 0 {
			return ue.RetryAfter
		}
		return time.Second
	}
	return 0
}
