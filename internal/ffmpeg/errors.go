package ffmpeg

import "fmt"

// ProbeError means ffprobe exited non-zero, was killed by the wall-clock
// timeout, or returned metadata we could not parse. Not retryable without a
// different input.
type ProbeError struct {
	Output  string
	Timeout bool
	Err     error
}

func (e *ProbeError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("probe timed out: %v", e.Err)
	}
	if e.Output != "" {
		return fmt.Sprintf("probe failed: %v: %s", e.Err, e.Output)
	}
	return fmt.Sprintf("probe failed: %v", e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// TranscodeError means ffmpeg exited non-zero or was killed by the wall-clock
// timeout. Output holds the tail of the captured stderr.
type TranscodeError struct {
	Output  string
	Timeout bool
	Err     error
}

func (e *TranscodeError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transcode timed out: %v", e.Err)
	}
	if e.Output != "" {
		return fmt.Sprintf("transcode failed: %v: %s", e.Err, e.Output)
	}
	return fmt.Sprintf("transcode failed: %v", e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }
