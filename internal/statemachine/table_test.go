package statemachine

import (
	"testing"

	"github.com/caseflow/bulkscan-processor/internal/model"
)

func TestStatusForKnownEvents(t *testing.T) {
	cases := []struct {
		event  model.EventKind
		status model.Status
	}{
		{model.EventDocUploaded, model.StatusUploaded},
		{model.EventDocUploadFailure, model.StatusUploadFailure},
		{model.EventDocProcessed, model.StatusProcessed},
		{model.EventDocProcessedNotificationSent, model.StatusNotificationSent},
		{model.EventDocConsumed, model.StatusConsumed},
	}
	for _, c := range cases {
		got, ok := StatusFor(c.event)
		if !ok {
			t.Fatalf("expected %s to have an associated status", c.event)
		}
		if got != c.status {
			t.Fatalf("StatusFor(%s) = %s, want %s", c.event, got, c.status)
		}
	}
}

func TestStatusForUnknownEvent(t *testing.T) {
	if _, ok := StatusFor(model.EventKind("NOT_REAL")); ok {
		t.Fatalf("expected unknown event to have no associated status")
	}
	if _, ok := StatusFor(model.EventZipFileProcessingStarted); ok {
		t.Fatalf("expected ZIPFILE_PROCESSING_STARTED to have no associated status")
	}
}

func TestAllowedTransition(t *testing.T) {
	cases := []struct {
		from, to model.Status
		want     bool
	}{
		{model.StatusCreated, model.StatusUploaded, true},
		{model.StatusCreated, model.StatusUploadFailure, true},
		{model.StatusUploadFailure, model.StatusUploaded, true},
		{model.StatusUploaded, model.StatusProcessed, true},
		{model.StatusProcessed, model.StatusNotificationSent, true},
		{model.StatusNotificationSent, model.StatusConsumed, true},
		{model.StatusCreated, model.StatusProcessed, false},
		{model.StatusConsumed, model.StatusCreated, false},
		{model.StatusProcessed, model.StatusUploaded, false},
	}
	for _, c := range cases {
		if got := AllowedTransition(c.from, c.to); got != c.want {
			t.Errorf("AllowedTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestEntryStatusIsCreated(t *testing.T) {
	if EntryStatus != model.StatusCreated {
		t.Fatalf("EntryStatus = %s, want CREATED", EntryStatus)
	}
}
