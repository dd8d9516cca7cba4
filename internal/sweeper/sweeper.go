// Package sweeper implements the Completion Sweeper: it deletes the source
// blob for envelopes that have fully cleared the pipeline, once a grace
// period has passed since they reached a processed status.
package sweeper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/caseflow/bulkscan-processor/internal/blobstore"
	"github.com/caseflow/bulkscan-processor/internal/store"
)

// Sweeper removes source blobs once their envelopes are done.
type Sweeper struct {
	blobs       *blobstore.Gateway
	envelopes   *store.Store
	log         *logrus.Entry
	gracePeriod time.Duration
}

// New constructs a Sweeper.
func New(blobs *blobstore.Gateway, envelopes *store.Store, log *logrus.Entry, gracePeriod time.Duration) *Sweeper {
	return &Sweeper{blobs: blobs, envelopes: envelopes, log: log, gracePeriod: gracePeriod}
}

// Tick sweeps every configured container once.
func (s *Sweeper) Tick(ctx context.Context) {
	containers, err := s.blobs.ListContainers(ctx)
	if err != nil {
		s.log.WithError(err).Error("list containers")
		return
	}
	for _, container := range containers {
		s.sweepContainer(ctx, container)
	}
}

func (s *Sweeper) sweepContainer(ctx context.Context, container string) {
	envelopes, err := s.envelopes.FindCompleteEnvelopesFromContainer(ctx, container)
	if err != nil {
		s.log.WithError(err).WithField("container", container).Error("find complete envelopes")
		return
	}
	for _, env := range envelopes {
		if time.Since(env.StatusUpdatedAt) < s.gracePeriod {
			continue
		}
		if err := s.blobs.DeleteIfExists(ctx, env.Container, env.ZipFileName); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"container": env.Container,
				"zip_file":  env.ZipFileName,
			}).Error("delete swept archive")
			continue
		}
		if err := s.envelopes.MarkZipDeleted(ctx, env.ID); err != nil {
			s.log.WithError(err).WithField("envelope_id", env.ID).Error("mark zip deleted")
		}
	}
}
