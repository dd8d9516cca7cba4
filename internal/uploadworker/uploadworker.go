// Package uploadworker implements the Document Uploader's consumer side:
// an asynq handler that re-opens an envelope's archive, pushes its PDFs to
// the downstream document store, and transitions the envelope's status.
package uploadworker

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/caseflow/bulkscan-processor/internal/blobstore"
	"github.com/caseflow/bulkscan-processor/internal/docstore"
	"github.com/caseflow/bulkscan-processor/internal/model"
	"github.com/caseflow/bulkscan-processor/internal/store"
	"github.com/caseflow/bulkscan-processor/internal/uploadqueue"
	"github.com/caseflow/bulkscan-processor/internal/ziparchive"
)

// errArchiveBusy is returned by extractDocuments when the Ingestion
// Coordinator (or another uploadworker replica) currently holds the
// archive's lease. It is not a processing failure: the task is left for the
// next uploadenqueue poll to retry.
var errArchiveBusy = errors.New("uploadworker: archive lease held by another process")

// Processor handles uploadqueue.UploadDocumentTask tasks, mirroring the
// shape of the teacher's internal/worker.Processor.
type Processor struct {
	blobs              *blobstore.Gateway
	docs               *docstore.Store
	envelopes          *store.Store
	log                *logrus.Entry
	signatureAlgorithm string
	publicKeyBase64    string
	leaseTTL           time.Duration
}

// NewProcessor constructs a Processor.
func NewProcessor(blobs *blobstore.Gateway, docs *docstore.Store, envelopes *store.Store, log *logrus.Entry, signatureAlgorithm, publicKeyBase64 string, leaseTTL time.Duration) *Processor {
	return &Processor{
		blobs:              blobs,
		docs:               docs,
		envelopes:          envelopes,
		log:                log,
		signatureAlgorithm: signatureAlgorithm,
		publicKeyBase64:    publicKeyBase64,
		leaseTTL:           leaseTTL,
	}
}

// Handler wires ProcessTask into an asynq.ServeMux, following the teacher's
// internal/worker.Processor.Handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(uploadqueue.UploadDocumentTask, p.ProcessTask)
	return mux
}

// ProcessTask re-reads the envelope, re-opens its source archive to recover
// the PDF bytes (the store only persists filenames, not contents), uploads
// every scannable item to the document store, and transitions the envelope
// to UPLOADED or UPLOAD_FAILURE.
func (p *Processor) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload uploadqueue.UploadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal upload payload: %w", err)
	}

	env, err := p.envelopes.FindByID(ctx, payload.EnvelopeID)
	if err != nil {
		return fmt.Errorf("find envelope %s: %w", payload.EnvelopeID, err)
	}
	env.ScannableItems, err = p.envelopes.ScannableItemsByEnvelope(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("list scannable items for %s: %w", env.ID, err)
	}

	docs, err := p.extractDocuments(ctx, env)
	if errors.Is(err, errArchiveBusy) {
		p.log.WithField("envelope_id", env.ID).Info("archive leased elsewhere, retrying on next poll")
		return nil
	}
	if err != nil {
		p.log.WithError(err).WithField("envelope_id", env.ID).Warn("upload attempt failed")
		return p.envelopes.Transition(ctx, env.ID, model.EventDocUploadFailure, err.Error())
	}

	urls, err := p.docs.Upload(ctx, env.ID, docs)
	if err != nil {
		p.log.WithError(err).WithField("envelope_id", env.ID).Warn("document store upload failed")
		return p.envelopes.Transition(ctx, env.ID, model.EventDocUploadFailure, err.Error())
	}

	for _, item := range env.ScannableItems {
		if url, ok := urls[item.FileName]; ok {
			if err := p.envelopes.UpdateScannableItemStorageURL(ctx, item.ID, url); err != nil {
				p.log.WithError(err).WithField("scannable_item_id", item.ID).Error("record storage url")
			}
		}
	}

	return p.envelopes.Transition(ctx, env.ID, model.EventDocUploaded, "")
}

func (p *Processor) extractDocuments(ctx context.Context, env *model.Envelope) ([]docstore.Document, error) {
	l, ok, err := p.blobs.AcquireLease(ctx, env.Container, env.ZipFileName, p.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire archive lease: %w", err)
	}
	if !ok {
		return nil, errArchiveBusy
	}
	defer p.blobs.ReleaseLease(ctx, l)

	outer, err := p.blobs.ReadAll(ctx, env.Container, env.ZipFileName)
	if err != nil {
		return nil, fmt.Errorf("read source archive: %w", err)
	}
	inner, err := ziparchive.Verify(p.signatureAlgorithm, outer, ziparchive.Candidate{
		Container:       env.Container,
		ZipFileName:     env.ZipFileName,
		PublicKeyBase64: p.publicKeyBase64,
	})
	if err != nil {
		return nil, fmt.Errorf("re-verify archive: %w", err)
	}
	files, err := unzip(inner)
	if err != nil {
		return nil, fmt.Errorf("unzip inner archive: %w", err)
	}

	docs := make([]docstore.Document, 0, len(env.ScannableItems))
	for _, item := range env.ScannableItems {
		data, ok := files[item.FileName]
		if !ok {
			return nil, fmt.Errorf("scannable item %s missing from re-read archive", item.FileName)
		}
		docs = append(docs, docstore.Document{FileName: item.FileName, Data: data})
	}
	return docs, nil
}

func unzip(data []byte) (map[string][]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		out[f.Name] = data
	}
	return out, nil
}
