package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrEncodingFailed wraps a non-zero encoder exit status. It propagates out
// of the job so the queue's retry machinery engages.
var ErrEncodingFailed = errors.New("encoding failed")

// CommandRunner executes an external command synchronously. It exists so
// tests can substitute a fake for the real encoder.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// Keep the tail of stderr: ffmpeg prints the actual failure last.
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		if msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// Transcoder converts source videos into HLS renditions by invoking an
// external encoder, one rendition at a time.
type Transcoder struct {
	FFmpegBin string
	Runner    CommandRunner
	Log       logrus.FieldLogger
}

// NewTranscoder returns a Transcoder running the given ffmpeg binary.
func NewTranscoder(ffmpegBin string, log logrus.FieldLogger) *Transcoder {
	return &Transcoder{
		FFmpegBin: ffmpegBin,
		Runner:    execRunner{},
		Log:       log,
	}
}

// ConvertToHLS produces one HLS output directory per rendition in the
// ladder, in order. A missing or empty source path is a no-op rather than an
// error: the queue may execute this job after the originating record was
// deleted, and there is simply nothing left to do.
//
// The first encoder failure aborts the remaining renditions and is returned
// to the caller. Output directories created before the failure are left in
// place; a retried job recreates and overwrites them.
func (t *Transcoder) ConvertToHLS(ctx context.Context, sourcePath string) error {
	if sourcePath == "" {
		t.Log.Warn("convertToHLS: empty source path, nothing to do")
		return nil
	}
	if _, err := os.Stat(sourcePath); err != nil {
		t.Log.WithField("source", sourcePath).Warn("convertToHLS: source file missing, nothing to do")
		return nil
	}

	// Rendition output directories are siblings of the source, under its
	// parent directory.
	if err := os.MkdirAll(filepath.Dir(sourcePath), 0o755); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}

	for _, r := range Renditions {
		if err := t.convertRendition(ctx, sourcePath, r); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transcoder) convertRendition(ctx context.Context, sourcePath string, r Rendition) error {
	outDir := HLSOutputDir(sourcePath, r.Label)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}

	enc := NewHLSEncode(sourcePath, r)
	log := t.Log.WithFields(logrus.Fields{
		"source":     sourcePath,
		"resolution": r.Label,
	})

	log.Info("HLS encode start")
	if err := t.Runner.Run(ctx, t.FFmpegBin, enc.Args()...); err != nil {
		return fmt.Errorf("%w: rendition %s: %v", ErrEncodingFailed, r.Label, err)
	}
	log.WithField("playlist", enc.Playlist).Info("HLS encode done")
	return nil
}

// CleanupFailure records one output directory that could not be removed.
type CleanupFailure struct {
	Dir string
	Err error
}

// DeleteHLSOutputs removes every rendition output directory derived from
// sourcePath. Removal is best-effort: a failure on one directory never
// blocks the others and never reaches the caller as an error; failures are
// returned for logging only. Removing a directory that does not exist is a
// no-op.
func (t *Transcoder) DeleteHLSOutputs(sourcePath string) []CleanupFailure {
	if sourcePath == "" {
		return nil
	}

	var failures []CleanupFailure
	for _, r := range Renditions {
		dir := HLSOutputDir(sourcePath, r.Label)
		if err := os.RemoveAll(dir); err != nil {
			failures = append(failures, CleanupFailure{Dir: dir, Err: err})
		}
	}
	if len(failures) > 0 {
		t.Log.WithFields(logrus.Fields{
			"source": sourcePath,
			"failed": len(failures),
		}).Warn("cleanup left HLS output directories behind")
	}
	return failures
}

// RemoveFileIfExists unlinks path, suppressing all errors. Used for source
// file and thumbnail cleanup after a video record is deleted.
func (t *Transcoder) RemoveFileIfExists(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		t.Log.WithField("path", path).WithError(err).Warn("failed to remove file")
	}
}
