package tracker

import (
	"github.com/pkg/errors"
)

var (
	// ErrJobInProgress is returned when the recording already has a non terminal job
	ErrJobInProgress = errors.New("job in progress")
	// ErrTimedOut marks a job failed locally after the configured ceiling
	ErrTimedOut = errors.New("timed out")
	// ErrNoAudio is returned for a recording without audio location
	ErrNoAudio = errors.New("no audio")
	// ErrRecordingNotFound is returned when the recording does not exist
	ErrRecordingNotFound = errors.New("recording not found")
	// ErrNoResult marks a succeeded job without a result URL
	ErrNoResult = errors.New("no result URL")
	// ErrJobNotFound is returned when the job does not exist
	ErrJobNotFound = errors.New("job not found")
)
