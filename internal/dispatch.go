package internal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Dispatcher enqueues background jobs. The ...Tx methods insert the job
// inside the caller's open transaction, so the job only becomes visible to
// workers once that transaction commits, and never if it rolls back. This
// closes the race where a worker picks up a job and queries for a row the
// committing request has not made visible yet.
//
// The non-Tx variants are for callers holding no transaction; those inserts
// are visible immediately.
type Dispatcher struct {
	client      *river.Client[pgx.Tx]
	queue       string
	maxAttempts int
}

// NewDispatcher wraps a River client. queue selects the named queue jobs are
// submitted to; an empty string uses River's default queue. maxAttempts
// bounds retries for every job the dispatcher inserts, overriding the job
// args' own default; values below 1 fall back to that default.
func NewDispatcher(client *river.Client[pgx.Tx], queue string, maxAttempts int) *Dispatcher {
	if queue == "" {
		queue = river.QueueDefault
	}
	if maxAttempts < 1 {
		maxAttempts = maxJobAttempts
	}
	return &Dispatcher{client: client, queue: queue, maxAttempts: maxAttempts}
}

func (d *Dispatcher) insertOpts() *river.InsertOpts {
	return &river.InsertOpts{Queue: d.queue, MaxAttempts: d.maxAttempts}
}

func (d *Dispatcher) insertTx(ctx context.Context, tx pgx.Tx, args river.JobArgs) error {
	_, err := d.client.InsertTx(ctx, tx, args, d.insertOpts())
	if err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", args.Kind(), err)
	}
	return nil
}

func (d *Dispatcher) insert(ctx context.Context, args river.JobArgs) error {
	_, err := d.client.Insert(ctx, args, d.insertOpts())
	if err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", args.Kind(), err)
	}
	return nil
}

// EnqueueTranscodeTx enqueues a transcode job gated on tx committing.
func (d *Dispatcher) EnqueueTranscodeTx(ctx context.Context, tx pgx.Tx, sourcePath string) error {
	return d.insertTx(ctx, tx, TranscodeVideoArgs{SourcePath: sourcePath})
}

// EnqueueCleanupTx enqueues an HLS output cleanup job gated on tx committing.
func (d *Dispatcher) EnqueueCleanupTx(ctx context.Context, tx pgx.Tx, sourcePath string) error {
	return d.insertTx(ctx, tx, CleanupHLSArgs{SourcePath: sourcePath})
}

// EnqueueRemoveFileTx enqueues a file removal job gated on tx committing.
func (d *Dispatcher) EnqueueRemoveFileTx(ctx context.Context, tx pgx.Tx, path string) error {
	return d.insertTx(ctx, tx, RemoveFileArgs{Path: path})
}

// EnqueueTranscode enqueues a transcode job outside any transaction.
func (d *Dispatcher) EnqueueTranscode(ctx context.Context, sourcePath string) error {
	return d.insert(ctx, TranscodeVideoArgs{SourcePath: sourcePath})
}

// EnqueueCleanup enqueues an HLS output cleanup job outside any transaction.
func (d *Dispatcher) EnqueueCleanup(ctx context.Context, sourcePath string) error {
	return d.insert(ctx, CleanupHLSArgs{SourcePath: sourcePath})
}

// EnqueueRemoveFile enqueues a file removal job outside any transaction.
func (d *Dispatcher) EnqueueRemoveFile(ctx context.Context, path string) error {
	return d.insert(ctx, RemoveFileArgs{Path: path})
}
