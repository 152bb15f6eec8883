package internal

import (
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// maxJobAttempts bounds automatic retries: one initial run plus two retries.
const maxJobAttempts = 3

// TranscodeVideoArgs is the payload of a transcode job. Jobs carry only the
// source path; everything else is derived from it.
type TranscodeVideoArgs struct {
	SourcePath string `json:"sourcePath"`
}

// Kind returns the job kind identifier for River.
func (TranscodeVideoArgs) Kind() string { return "video.transcode" }

func (TranscodeVideoArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: maxJobAttempts}
}

// CleanupHLSArgs is the payload of a job removing all HLS output
// directories derived from a deleted video's source path.
type CleanupHLSArgs struct {
	SourcePath string `json:"sourcePath"`
}

// Kind returns the job kind identifier for River.
func (CleanupHLSArgs) Kind() string { return "video.cleanup_hls" }

func (CleanupHLSArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: maxJobAttempts}
}

// RemoveFileArgs is the payload of a job unlinking a single file (the
// source video or its thumbnail) after the owning record was deleted.
type RemoveFileArgs struct {
	Path string `json:"path"`
}

// Kind returns the job kind identifier for River.
func (RemoveFileArgs) Kind() string { return "video.remove_file" }

func (RemoveFileArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: maxJobAttempts}
}

// LinearRetryPolicy schedules retries on a fixed interval ladder instead of
// River's default exponential curve. With the default configuration a failed
// job is retried after 10s, then 30s, then discarded (60s would apply to any
// further attempts if the attempt limit were raised).
type LinearRetryPolicy struct {
	Intervals []time.Duration
}

// NextRetry implements river.ClientRetryPolicy. job.Attempt is the 1-based
// attempt that just failed; intervals past the end of the ladder clamp to
// the last entry.
func (p *LinearRetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	idx := job.Attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Intervals) {
		idx = len(p.Intervals) - 1
	}
	return time.Now().Add(p.Intervals[idx])
}
