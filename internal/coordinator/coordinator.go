// Package coordinator implements the Ingestion Coordinator: on each cron
// tick it shuffles each container's archive list, leases and processes one
// archive at a time, and routes classified failures to the rejected
// container and the Error Notifier.
package coordinator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/caseflow/bulkscan-processor/internal/blobstore"
	"github.com/caseflow/bulkscan-processor/internal/envelope"
	"github.com/caseflow/bulkscan-processor/internal/metadata"
	"github.com/caseflow/bulkscan-processor/internal/model"
	"github.com/caseflow/bulkscan-processor/internal/notify"
	"github.com/caseflow/bulkscan-processor/internal/store"
	"github.com/caseflow/bulkscan-processor/internal/ziparchive"
)

const metadataFileName = "metadata.json"

// Coordinator runs one ingestion pass across every configured container.
type Coordinator struct {
	blobs              *blobstore.Gateway
	envelopes          *store.Store
	builder            *envelope.Builder
	notifier           *notify.Notifier
	log                *logrus.Entry
	signatureAlgorithm string
	publicKeyBase64    string
	leaseTTL           time.Duration
	blobProcessingDelay time.Duration
}

// New constructs a Coordinator.
func New(blobs *blobstore.Gateway, envelopes *store.Store, builder *envelope.Builder, notifier *notify.Notifier, log *logrus.Entry, signatureAlgorithm, publicKeyBase64 string, leaseTTL, blobProcessingDelay time.Duration) *Coordinator {
	return &Coordinator{
		blobs:                blobs,
		envelopes:            envelopes,
		builder:              builder,
		notifier:             notifier,
		log:                  log,
		signatureAlgorithm:   signatureAlgorithm,
		publicKeyBase64:      publicKeyBase64,
		leaseTTL:             leaseTTL,
		blobProcessingDelay:  blobProcessingDelay,
	}
}

// Tick runs one full ingestion pass: every container is processed in turn,
// with archive order shuffled within each so that replicas running the same
// pass tend to reach different archives first and contend less for leases.
func (c *Coordinator) Tick(ctx context.Context) {
	containers, err := c.blobs.ListContainers(ctx)
	if err != nil {
		c.log.WithError(err).Error("list containers")
		return
	}
	for _, container := range containers {
		c.processContainer(ctx, container)
	}
}

func (c *Coordinator) processContainer(ctx context.Context, container string) {
	names, err := c.blobs.ListArchives(ctx, container)
	if err != nil {
		c.log.WithError(err).WithField("container", container).Error("list archives")
		return
	}
	rand.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	for _, name := range names {
		if err := c.processOne(ctx, container, name); err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{
				"container": container,
				"zip_file":  name,
			}).Warn("archive processing did not complete")
		}
	}
}

// processOne processes a single archive end to end, isolating the rest of
// the run from anything the archive's own contents might trigger: a panic
// part way through is caught and recorded as an unclassified failure rather
// than taking down the whole tick.
func (c *Coordinator) processOne(ctx context.Context, container, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = c.unclassifiedFailure(ctx, container, name, fmt.Sprintf("panic: %v", r))
		}
	}()
	return c.process(ctx, container, name)
}

// process does the actual work. A returned error means the archive was
// skipped or classified as a failure; nil means either success or a benign
// skip (already processed, still being written).
func (c *Coordinator) process(ctx context.Context, container, name string) error {
	if _, err := c.envelopes.FindByContainerAndFilename(ctx, container, name); !errors.Is(err, store.ErrNotFound) {
		if err == nil {
			return nil // already ingested
		}
		return err
	}

	attrs, err := c.blobs.Attributes(ctx, container, name)
	if err != nil {
		return err
	}
	if time.Since(attrs.LastModified) < c.blobProcessingDelay {
		return nil // still being written by the scanning client
	}

	l, ok, err := c.blobs.AcquireLease(ctx, container, name, c.leaseTTL)
	if err != nil {
		return err
	}
	if !ok {
		return nil // another replica holds the lease
	}
	defer c.blobs.ReleaseLease(ctx, l)

	outer, err := c.blobs.ReadAll(ctx, container, name)
	if err != nil {
		return err
	}

	inner, err := ziparchive.Verify(c.signatureAlgorithm, outer, ziparchive.Candidate{
		Container:       container,
		ZipFileName:     name,
		PublicKeyBase64: c.publicKeyBase64,
	})
	if err != nil {
		return c.reject(ctx, container, name, model.EventDocSignatureFailure, err.Error())
	}

	files, err := unzip(inner)
	if err != nil {
		return c.reject(ctx, container, name, model.EventFileValidationFailure, err.Error())
	}
	rawMetadata, ok := files[metadataFileName]
	if !ok {
		return c.reject(ctx, container, name, model.EventFileValidationFailure, "metadata.json not found in archive")
	}
	if err := metadata.CheckEntries(files, metadataFileName); err != nil {
		return c.reject(ctx, container, name, model.EventFileValidationFailure, err.Error())
	}
	delete(files, metadataFileName)

	parsed, err := metadata.Parse(rawMetadata)
	if err != nil {
		return c.reject(ctx, container, name, model.EventFileValidationFailure, err.Error())
	}
	parsed.ZipFileName = name

	env, err := c.builder.Build(container, parsed, files)
	if err != nil {
		return c.reject(ctx, container, name, model.EventFileValidationFailure, err.Error())
	}

	if err := c.envelopes.CreateEnvelope(ctx, env); err != nil {
		return err
	}
	return nil
}

func (c *Coordinator) reject(ctx context.Context, container, name string, event model.EventKind, reason string) error {
	eventID := c.recordRejection(ctx, container, name, event, reason)
	if err := c.blobs.MoveToRejected(ctx, container, name); err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"container": container,
			"zip_file":  name,
		}).Error("move archive to rejected container")
	}
	c.notifier.Notify(ctx, container, name, eventID, notify.CodeForEvent(string(event)), reason, "", "")
	return errors.New(reason)
}

// unclassifiedFailure handles a failure the coordinator did not anticipate
// (for example a panic recovered from processOne). Per the DOC_FAILURE
// event's semantics, the blob is left in place for inspection rather than
// moved to the rejected container.
func (c *Coordinator) unclassifiedFailure(ctx context.Context, container, name, reason string) error {
	c.log.WithFields(logrus.Fields{"container": container, "zip_file": name}).Error(reason)
	eventID := c.recordRejection(ctx, container, name, model.EventDocFailure, reason)
	c.notifier.Notify(ctx, container, name, eventID, notify.CodeForEvent(string(model.EventDocFailure)), reason, "", "")
	return errors.New(reason)
}

// recordRejection persists the rejection event and returns its id as a
// string for the notifier, logging and falling back to an empty id if the
// write itself fails.
func (c *Coordinator) recordRejection(ctx context.Context, container, name string, event model.EventKind, reason string) string {
	id, err := c.envelopes.RecordRejection(ctx, container, name, event, reason)
	if err != nil {
		c.log.WithError(err).Error("record rejection event")
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// unzip reads a well-formed inner ZIP into a filename -> contents map.
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
