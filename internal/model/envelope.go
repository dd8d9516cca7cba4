package model

import "time"

// Envelope is the unit of work: the normalized, persisted record of one
// archive's logical contents and lifecycle. It owns its scannable items,
// payments, and non-scannable items by composition.
type Envelope struct {
	ID                 string
	Container          string
	Jurisdiction       string
	CaseNumber         string
	PoBox              string
	Classification     Classification
	DeliveryDate       time.Time
	OpeningDate        time.Time
	ZipFileCreatedDate time.Time
	ZipFileName        string
	Status             Status
	UploadFailureCount int
	ZipDeleted         bool
	CreatedAt          time.Time
	StatusUpdatedAt    time.Time
	CcdID              string
	CcdAction          string

	ScannableItems    []ScannableItem
	Payments          []Payment
	NonScannableItems []NonScannableItem
}

// ScannableItem is a per-PDF record. DocumentUUID links back to the owning
// Envelope's ID; StorageURL is populated by the Document Uploader once the
// PDF has been pushed to the downstream document store.
type ScannableItem struct {
	ID                string
	DocumentUUID      string
	FileName          string
	DocumentControlNumber string
	ScanningDate      time.Time
	OcrAccuracy       string
	ExceptionRecord   bool
	OcrData           map[string]any
	DocumentType      string
	DocumentSubType   string
	Notes             string
	StorageURL        string
}

// Payment is carried alongside an envelope but is descriptive only from the
// core's standpoint; it is neither validated against the blob contents nor
// transitioned through the state machine.
type Payment struct {
	ID             string
	DocumentUUID   string
	DocumentControlNumber string
}

// NonScannableItem is likewise descriptive-only, declared in metadata and
// persisted unchanged.
type NonScannableItem struct {
	ID             string
	DocumentUUID   string
	DocumentType   string
	DocumentControlNumber string
}

// ProcessEvent is the append-only audit row. EnvelopeID is empty for events
// that precede envelope creation (e.g. signature/metadata failures).
type ProcessEvent struct {
	ID          int64
	EnvelopeID  string
	Container   string
	ZipFileName string
	Event       EventKind
	CreatedAt   time.Time
	Reason      string
}
