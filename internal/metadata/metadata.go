// Package metadata implements the Metadata Validator: it parses the inner
// archive's metadata.json against the fixed envelope schema and the custom
// timestamp format the original bureaus' bulk-scan clients send.
package metadata

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caseflow/bulkscan-processor/internal/model"
)

// SchemaFailure carries enough detail to act as the processing report the
// spec calls for, without needing a JSON-schema description language (no
// such library appears anywhere in the retrieved example pack; see
// DESIGN.md).
type SchemaFailure struct {
	Errors []string
}

func (f *SchemaFailure) Error() string {
	return fmt.Sprintf("invalid envelope schema: %s", strings.Join(f.Errors, "; "))
}

// OcrDataParseError reports a failure decoding a scannable item's embedded
// OCR data blob.
type OcrDataParseError struct {
	FileName string
	Cause    error
}

func (e *OcrDataParseError) Error() string {
	return fmt.Sprintf("ocr data parse failure for %s: %v", e.FileName, e.Cause)
}

// NonPdfFileFound reports an inner-archive entry that is neither the
// metadata document nor a PDF.
type NonPdfFileFound struct {
	FileName string
}

func (e *NonPdfFileFound) Error() string {
	return fmt.Sprintf("non-pdf file found in archive: %s", e.FileName)
}

// CheckEntries rejects any inner-archive entry that isn't the metadata
// document or a .pdf file. It runs before the metadata document itself is
// parsed, since a stray non-PDF entry is a structural problem with the
// archive, not a metadata-content problem.
func CheckEntries(files map[string][]byte, metadataFileName string) error {
	for name := range files {
		if name == metadataFileName {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			return &NonPdfFileFound{FileName: name}
		}
	}
	return nil
}

// InputEnvelope is the parsed, still-unvalidated-against-the-builder shape
// of metadata.json, mirroring the original's InputEnvelope.
type InputEnvelope struct {
	PoBox              string
	Jurisdiction       string
	DeliveryDate       time.Time
	OpeningDate        time.Time
	ZipFileCreatedDate time.Time
	ZipFileName        string
	CaseNumber         string
	Classification     model.Classification
	ScannableItems     []InputScannableItem
	Payments           []InputPayment
	NonScannableItems  []InputNonScannableItem
}

type InputScannableItem struct {
	FileName              string
	DocumentControlNumber string
	ScanningDate          time.Time
	OcrAccuracy           string
	ExceptionRecord       bool
	OcrData               map[string]any
	DocumentType          string
	DocumentSubType       string
	Notes                 string
}

type InputPayment struct {
	DocumentControlNumber string
}

type InputNonScannableItem struct {
	DocumentType          string
	DocumentControlNumber string
}

// rawEnvelope mirrors metadata.json's snake_case keys for decoding.
type rawEnvelope struct {
	PoBox              *string             `json:"po_box"`
	Jurisdiction       *string             `json:"jurisdiction"`
	DeliveryDate       *string             `json:"delivery_date"`
	OpeningDate        *string             `json:"opening_date"`
	ZipFileCreatedDate *string             `json:"zip_file_createddate"`
	ZipFileName        *string             `json:"zip_file_name"`
	CaseNumber         *string             `json:"case_number"`
	Classification     *string             `json:"envelope_classification"`
	ScannableItems      []rawScannableItem  `json:"scannable_items"`
	Payments            []rawPayment        `json:"payments"`
	NonScannableItems   []rawNonScannable   `json:"non_scannable_items"`
}

type rawScannableItem struct {
	FileName              *string         `json:"file_name"`
	DocumentControlNumber *string         `json:"document_control_number"`
	ScanningDate          *string         `json:"scanning_date"`
	OcrAccuracy           string          `json:"ocr_accuracy"`
	ExceptionRecord       bool            `json:"exception_record"`
	OcrData               json.RawMessage `json:"ocr_data"`
	DocumentType          string          `json:"document_type"`
	DocumentSubType       string          `json:"document_sub_type"`
	Notes                 string          `json:"notes"`
}

type rawPayment struct {
	DocumentControlNumber *string `json:"document_control_number"`
}

type rawNonScannable struct {
	DocumentType          string  `json:"document_type"`
	DocumentControlNumber *string `json:"document_control_number"`
}

var knownTopLevelFields = map[string]bool{
	"po_box": true, "jurisdiction": true, "delivery_date": true, "opening_date": true,
	"zip_file_createddate": true, "zip_file_name": true, "case_number": true,
	"envelope_classification": true, "scannable_items": true, "payments": true,
	"non_scannable_items": true,
}

// Parse validates raw against the fixed schema and decodes it into an
// InputEnvelope. Unknown top-level fields are rejected, as are missing
// required fields and an unrecognised envelope_classification.
func Parse(raw []byte) (*InputEnvelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &SchemaFailure{Errors: []string{fmt.Sprintf("metadata.json is not a JSON object: %v", err)}}
	}
	var unknown []string
	for k := range fields {
		if !knownTopLevelFields[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		return nil, &SchemaFailure{Errors: []string{fmt.Sprintf("unknown fields: %s", strings.Join(unknown, ", "))}}
	}

	var raw2 rawEnvelope
	if err := json.Unmarshal(raw, &raw2); err != nil {
		return nil, &SchemaFailure{Errors: []string{err.Error()}}
	}

	var errs []string
	requireString(&errs, "po_box", raw2.PoBox)
	requireString(&errs, "jurisdiction", raw2.Jurisdiction)
	requireString(&errs, "zip_file_name", raw2.ZipFileName)

	deliveryDate, err := parseTimestamp(raw2.DeliveryDate)
	if err != nil {
		errs = append(errs, fmt.Sprintf("delivery_date: %v", err))
	}
	openingDate, err := parseTimestamp(raw2.OpeningDate)
	if err != nil {
		errs = append(errs, fmt.Sprintf("opening_date: %v", err))
	}
	zipCreatedDate, err := parseTimestamp(raw2.ZipFileCreatedDate)
	if err != nil {
		errs = append(errs, fmt.Sprintf("zip_file_createddate: %v", err))
	}

	var classification model.Classification
	if raw2.Classification == nil {
		errs = append(errs, "envelope_classification is required")
	} else {
		classification = model.Classification(*raw2.Classification)
		if !model.ValidClassification(classification) {
			errs = append(errs, fmt.Sprintf("envelope_classification %q is not recognised", *raw2.Classification))
		}
	}

	if len(errs) > 0 {
		return nil, &SchemaFailure{Errors: errs}
	}

	items := make([]InputScannableItem, 0, len(raw2.ScannableItems))
	for _, it := range raw2.ScannableItems {
		parsed, err := it.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, parsed)
	}

	payments := make([]InputPayment, 0, len(raw2.Payments))
	for _, p := range raw2.Payments {
		payments = append(payments, InputPayment{DocumentControlNumber: deref(p.DocumentControlNumber)})
	}

	nonScannable := make([]InputNonScannableItem, 0, len(raw2.NonScannableItems))
	for _, n := range raw2.NonScannableItems {
		nonScannable = append(nonScannable, InputNonScannableItem{
			DocumentType:          n.DocumentType,
			DocumentControlNumber: deref(n.DocumentControlNumber),
		})
	}

	caseNumber := ""
	if raw2.CaseNumber != nil {
		caseNumber = *raw2.CaseNumber
	}

	return &InputEnvelope{
		PoBox:              deref(raw2.PoBox),
		Jurisdiction:       deref(raw2.Jurisdiction),
		DeliveryDate:       deliveryDate,
		OpeningDate:        openingDate,
		ZipFileCreatedDate: zipCreatedDate,
		ZipFileName:        deref(raw2.ZipFileName),
		CaseNumber:         caseNumber,
		Classification:     classification,
		ScannableItems:     items,
		Payments:           payments,
		NonScannableItems:  nonScannable,
	}, nil
}

func (it rawScannableItem) toDomain() (InputScannableItem, error) {
	fileName := deref(it.FileName)
	scanningDate, err := parseTimestamp(it.ScanningDate)
	if err != nil {
		return InputScannableItem{}, &SchemaFailure{Errors: []string{fmt.Sprintf("scannable item %s: scanning_date: %v", fileName, err)}}
	}
	var ocrData map[string]any
	if len(it.OcrData) > 0 && string(it.OcrData) != "null" {
		if err := json.Unmarshal(it.OcrData, &ocrData); err != nil {
			return InputScannableItem{}, &OcrDataParseError{FileName: fileName, Cause: err}
		}
	}
	return InputScannableItem{
		FileName:              fileName,
		DocumentControlNumber: deref(it.DocumentControlNumber),
		ScanningDate:          scanningDate,
		OcrAccuracy:           it.OcrAccuracy,
		ExceptionRecord:       it.ExceptionRecord,
		OcrData:               ocrData,
		DocumentType:          it.DocumentType,
		DocumentSubType:       it.DocumentSubType,
		Notes:                 it.Notes,
	}, nil
}

func requireString(errs *[]string, field string, v *string) {
	if v == nil || *v == "" {
		*errs = append(*errs, fmt.Sprintf("%s is required", field))
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// timestampLayouts tolerates the space-separated variants the original's
// CustomTimestampDeserialiser accepted, in addition to RFC3339.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

func parseTimestamp(v *string) (time.Time, error) {
	if v == nil || *v == "" {
		return time.Time{}, fmt.Errorf("timestamp is required")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, *v); err == nil {
			return t.UTC().Truncate(time.Millisecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp format: %q", *v)
}
