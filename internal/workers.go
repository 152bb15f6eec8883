package internal

import (
	"context"
	"errors"

	"github.com/riverqueue/river"
	"github.com/sirupsen/logrus"
)

// TranscodeWorker converts a source video into its HLS renditions and keeps
// the owning video record's lifecycle status in step with the job.
type TranscodeWorker struct {
	river.WorkerDefaults[TranscodeVideoArgs]
	Transcoder *Transcoder
	Videos     *VideoStore
	Log        *logrus.Logger
}

func (w *TranscodeWorker) Work(ctx context.Context, job *river.Job[TranscodeVideoArgs]) error {
	source := job.Args.SourcePath
	log := w.Log.WithFields(logrus.Fields{
		"job":     job.ID,
		"attempt": job.Attempt,
		"source":  source,
	})

	// Status updates are best-effort; the row may already be gone if the
	// video was deleted while the job sat in the queue.
	if err := w.Videos.SetStatusBySource(ctx, source, StatusTranscoding); err != nil {
		log.WithError(err).Warn("failed to mark video transcoding")
	}

	if err := w.Transcoder.ConvertToHLS(ctx, source); err != nil {
		if errors.Is(err, ErrEncodingFailed) && job.Attempt >= job.MaxAttempts {
			// Last attempt: the queue will discard the job, so the record
			// is the only place the failure stays visible.
			if serr := w.Videos.SetStatusBySource(ctx, source, StatusFailed); serr != nil {
				log.WithError(serr).Warn("failed to mark video failed")
			}
		}
		log.WithError(err).Error("transcode attempt failed")
		return err
	}

	if err := w.Videos.SetStatusBySource(ctx, source, StatusReady); err != nil {
		log.WithError(err).Warn("failed to mark video ready")
	}
	log.Info("transcode complete")
	return nil
}

// CleanupWorker removes all HLS output directories derived from a deleted
// video's source path. Cleanup is best-effort and never fails the job: a
// directory that cannot be removed is logged and left behind rather than
// blocking the rest of the deletion's side effects.
type CleanupWorker struct {
	river.WorkerDefaults[CleanupHLSArgs]
	Transcoder *Transcoder
	Log        *logrus.Logger
}

func (w *CleanupWorker) Work(ctx context.Context, job *river.Job[CleanupHLSArgs]) error {
	failures := w.Transcoder.DeleteHLSOutputs(job.Args.SourcePath)
	for _, f := range failures {
		w.Log.WithFields(logrus.Fields{
			"job": job.ID,
			"dir": f.Dir,
		}).WithError(f.Err).Warn("failed to remove HLS output directory")
	}
	return nil
}

// RemoveFileWorker unlinks a single file (source video or thumbnail) left
// behind by a deleted record. Also best-effort.
type RemoveFileWorker struct {
	river.WorkerDefaults[RemoveFileArgs]
	Transcoder *Transcoder
}

func (w *RemoveFileWorker) Work(ctx context.Context, job *river.Job[RemoveFileArgs]) error {
	w.Transcoder.RemoveFileIfExists(job.Args.Path)
	return nil
}

// RegisterWorkers attaches all job workers to a River workers bundle.
func RegisterWorkers(workers *river.Workers, transcoder *Transcoder, videos *VideoStore, log *logrus.Logger) {
	river.AddWorker(workers, &TranscodeWorker{Transcoder: transcoder, Videos: videos, Log: log})
	river.AddWorker(workers, &CleanupWorker{Transcoder: transcoder, Log: log})
	river.AddWorker(workers, &RemoveFileWorker{Transcoder: transcoder})
}
