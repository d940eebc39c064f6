package gradescope

import "errors"

var (
	// ErrAuthFailed means login was rejected or the SSO wait timed out.
	// Fatal to the scrape source only; the API source may still succeed.
	ErrAuthFailed = errors.New("gradescope: authentication failed")

	// ErrSessionExpired means the authenticated session was rejected mid-run.
	ErrSessionExpired = errors.New("gradescope: session expired")

	// ErrNoCourses means zero courses were reachable under the session.
	ErrNoCourses = errors.New("gradescope: no courses reachable")
)
