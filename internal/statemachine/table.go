// Package statemachine expresses the envelope lifecycle as a static,
// total table from event kind to status plus a separate adjacency
// predicate over status pairs, rather than a switch statement scattered
// through the processing code.
package statemachine

import "github.com/caseflow/bulkscan-processor/internal/model"

// eventStatus is total for the events that induce a status change. Events
// not present here (e.g. ZIPFILE_PROCESSING_STARTED) do not change status.
var eventStatus = map[model.EventKind]model.Status{
	model.EventDocFailure:                  model.StatusMetadataFailure,
	model.EventFileValidationFailure:       model.StatusMetadataFailure,
	model.EventDocSignatureFailure:         model.StatusSignatureFailure,
	model.EventDocUploaded:                 model.StatusUploaded,
	model.EventDocUploadFailure:            model.StatusUploadFailure,
	model.EventDocProcessed:                model.StatusProcessed,
	model.EventDocProcessedNotificationSent: model.StatusNotificationSent,
	model.EventDocConsumed:                 model.StatusConsumed,
}

// StatusFor returns the status induced by kind, if any.
func StatusFor(kind model.EventKind) (model.Status, bool) {
	s, ok := eventStatus[kind]
	return s, ok
}

// adjacency lists, for each non-terminal status, the statuses it may
// transition to. CREATED and the two terminal failure states are reachable
// only from "no prior envelope" (entry), which callers enforce by only
// consulting this table once an envelope already exists.
var adjacency = map[model.Status]map[model.Status]bool{
	model.StatusCreated: {
		model.StatusUploaded:      true,
		model.StatusUploadFailure: true,
	},
	model.StatusUploadFailure: {
		model.StatusUploaded:      true,
		model.StatusUploadFailure: true,
	},
	model.StatusUploaded: {
		model.StatusProcessed: true,
	},
	model.StatusProcessed: {
		model.StatusNotificationSent: true,
	},
	model.StatusNotificationSent: {
		model.StatusConsumed: true,
	},
}

// AllowedTransition reports whether an envelope may move from "from" to
// "to". CONSUMED and the terminal failure states have no outgoing edges.
func AllowedTransition(from, to model.Status) bool {
	next, ok := adjacency[from]
	if !ok {
		return false
	}
	return next[to]
}

// EntryStatus is the status assigned when an envelope is first persisted,
// independent of any event table lookup.
const EntryStatus = model.StatusCreated
