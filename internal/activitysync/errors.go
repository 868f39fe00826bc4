package activitysync

import (
	"errors"
	"fmt"

	"github.com/tyemirov/rideposter/internal/credentials"
)

var (
	// ErrNotConnected means the user has no Strava credential on file.
	ErrNotConnected = errors.New("strava.not_connected")
	// ErrRefreshFailed means the provider rejected the refresh token or returned an unusable token.
	ErrRefreshFailed = errors.New("strava.refresh_failed")
	// ErrFetchFailed is matched by every *FetchFailedError.
	ErrFetchFailed = errors.New("strava.fetch_failed")
	// ErrStorageUnavailable means the credential store could not be read or written.
	ErrStorageUnavailable = credentials.ErrStorageUnavailable
)

// FetchFailedError reports a failed activities call with the status surfaced to callers.
type FetchFailedError struct {
	Status int
	Err    error
}

func (fetchError *FetchFailedError) Error() string {
	if fetchError.Err == nil {
		return fmt.Sprintf("%s: status %d", ErrFetchFailed.Error(), fetchError.Status)
	}
	return fmt.Sprintf("%s: status %d: %v", ErrFetchFailed.Error(), fetchError.Status, fetchError.Err)
}

func (fetchError *FetchFailedError) Unwrap() []error {
	if fetchError.Err == nil {
		return []error{ErrFetchFailed}
	}
	return []error{ErrFetchFailed, fetchError.Err}
}
