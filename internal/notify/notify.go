// Package notify implements the Error Notifier: it maps classified
// processing failures to an error code and publishes a notification
// message, mirroring the original's ErrorMsg payload. Publishing is
// best-effort: a failure to notify is logged, never propagated, so a
// downstream outage cannot itself fail the pipeline.
package notify

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// NotificationTask is the asynq task type used as the message bus: any
// consumer subscribed to it plays the role of the downstream error queue
// the original published to over a real message broker.
const NotificationTask = "envelope:notification"

// ErrorCode enumerates the notification payload's fixed vocabulary.
type ErrorCode string

const (
	ErrorCodeFileValidation      ErrorCode = "ERR_FILE_VALIDATION_FAILED"
	ErrorCodeSignatureVerification ErrorCode = "ERR_SIG_VERIFICATION_FAILED"
	ErrorCodeMetadataInvalid     ErrorCode = "ERR_METADATA_INVALID"
	ErrorCodeDocumentFailure     ErrorCode = "ERR_DOCUMENT_FAILURE"
)

// Message is the wire shape published to the notification bus, following
// the original's ErrorMsg.
type Message struct {
	ID                    string    `json:"id"`
	EventID               string    `json:"event_id"`
	ZipFileName           string    `json:"zip_file_name"`
	Container             string    `json:"container"`
	PoBox                 string    `json:"po_box,omitempty"`
	DocumentControlNumber string    `json:"document_control_number,omitempty"`
	ErrorCode             ErrorCode `json:"error_code"`
	ErrorDescription      string    `json:"error_description"`
	TestOnly              bool      `json:"test_only"`
}

// Notifier publishes Messages onto the notification bus.
type Notifier struct {
	client   *asynq.Client
	log      *logrus.Entry
	testOnly map[string]bool
}

// New constructs a Notifier. testOnlyContainers marks the containers whose
// notifications should be flagged test_only, matching how the coordinator
// distinguishes production from test archive sources.
func New(client *asynq.Client, log *logrus.Entry, testOnlyContainers map[string]bool) *Notifier {
	return &Notifier{client: client, log: log, testOnly: testOnlyContainers}
}

// Notify publishes a single error notification. It never returns an error
// to the caller; failures are logged and swallowed so that a broken
// notification path cannot block the ingestion pipeline itself.
func (n *Notifier) Notify(ctx context.Context, container, zipFileName, eventID string, code ErrorCode, description string, poBox, dcn string) {
	msg := Message{
		ID:                    uuid.NewString(),
		EventID:               eventID,
		ZipFileName:           zipFileName,
		Container:             container,
		PoBox:                 poBox,
		DocumentControlNumber: dcn,
		ErrorCode:             code,
		ErrorDescription:      description,
		TestOnly:              n.testOnly[container],
	}
	data, err := json.Marshal(msg)
	if err != nil {
		n.log.WithError(err).Error("marshal notification message")
		return
	}
	task := asynq.NewTask(NotificationTask, data)
	if _, err := n.client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		n.log.WithError(err).WithFields(logrus.Fields{
			"container":     container,
			"zip_file_name": zipFileName,
		}).Error("publish notification message")
	}
}

// CodeForEvent maps a classified failure kind to its notification error
// code, kept as a table rather than a switch to match the envelope status
// table's shape.
var codeForEvent = map[string]ErrorCode{
	"FILE_VALIDATION_FAILURE": ErrorCodeFileValidation,
	"DOC_SIGNATURE_FAILURE":   ErrorCodeSignatureVerification,
	"INVALID_ENVELOPE_SCHEMA": ErrorCodeMetadataInvalid,
	"DOC_FAILURE":             ErrorCodeDocumentFailure,
}

// CodeForEvent looks up the ErrorCode for kind, returning
// ErrorCodeDocumentFailure for anything not explicitly mapped.
func CodeForEvent(kind string) ErrorCode {
	if code, ok := codeForEvent[kind]; ok {
		return code
	}
	return ErrorCodeDocumentFailure
}
