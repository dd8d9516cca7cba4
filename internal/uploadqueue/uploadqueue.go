// Package uploadqueue defines the asynq task that hands one envelope from
// the Document Uploader's poller (cmd/uploadenqueue, the producer) to its
// worker pool (cmd/uploadworker, the consumer), mirroring the teacher's
// internal/queue split between cmd/server and cmd/worker.
package uploadqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// UploadDocumentTask is scheduled once per envelope that has reached
// CREATED (or a retryable UPLOAD_FAILURE) and is ready for its scannable
// items to be pushed to the downstream document store.
const UploadDocumentTask = "envelope:upload"

// UploadPayload identifies the envelope to upload; the worker re-reads
// everything else it needs from the Envelope & Event Store.
type UploadPayload struct {
	EnvelopeID string `json:"envelope_id"`
}

// EnqueueUpload enqueues an upload task for envelopeID. maxRetry bounds how
// many times asynq itself will redeliver the task on handler error, kept
// low because the store's own upload_failure_count already tracks
// domain-level retries across redeliveries.
func EnqueueUpload(ctx context.Context, client *asynq.Client, envelopeID string, maxRetry int) error {
	data, err := json.Marshal(UploadPayload{EnvelopeID: envelopeID})
	if err != nil {
		return fmt.Errorf("marshal upload payload: %w", err)
	}
	task := asynq.NewTask(UploadDocumentTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(maxRetry)); err != nil {
		return fmt.Errorf("enqueue upload task: %w", err)
	}
	return nil
}
