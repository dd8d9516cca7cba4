package metadata

import (
	"strings"
	"testing"
)

func validEnvelopeJSON() string {
	return `{
		"po_box": "12345",
		"jurisdiction": "FAMILY",
		"delivery_date": "2026-01-05 10:00:00",
		"opening_date": "2026-01-05 10:05:00",
		"zip_file_createddate": "2026-01-05T09:00:00Z",
		"zip_file_name": "1_05012026090000_0001.zip",
		"case_number": "CASE-1",
		"envelope_classification": "NEW_APPLICATION",
		"scannable_items": [
			{
				"file_name": "1111002.pdf",
				"document_control_number": "1111002",
				"scanning_date": "2026-01-05 09:30:00",
				"ocr_accuracy": "1.0",
				"exception_record": false,
				"document_type": "Form",
				"document_sub_type": "",
				"notes": ""
			}
		],
		"payments": [],
		"non_scannable_items": []
	}`
}

func TestParseValidEnvelope(t *testing.T) {
	env, err := Parse([]byte(validEnvelopeJSON()))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if env.PoBox != "12345" {
		t.Errorf("PoBox = %q, want 12345", env.PoBox)
	}
	if env.ZipFileName != "1_05012026090000_0001.zip" {
		t.Errorf("ZipFileName = %q", env.ZipFileName)
	}
	if len(env.ScannableItems) != 1 {
		t.Fatalf("len(ScannableItems) = %d, want 1", len(env.ScannableItems))
	}
	if env.ScannableItems[0].FileName != "1111002.pdf" {
		t.Errorf("scannable item file name = %q", env.ScannableItems[0].FileName)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	raw := strings.Replace(validEnvelopeJSON(), `"po_box": "12345",`, `"po_box": "12345", "mystery_field": "x",`, 1)
	_, err := Parse([]byte(raw))
	if err == nil {
		t.Fatalf("expected error for unknown top-level field")
	}
	sf, ok := err.(*SchemaFailure)
	if !ok {
		t.Fatalf("expected *SchemaFailure, got %T", err)
	}
	if !strings.Contains(sf.Error(), "mystery_field") {
		t.Errorf("error %q does not mention the unknown field", sf.Error())
	}
}

func TestParseRejectsMissingRequiredField(t *testing.T) {
	raw := strings.Replace(validEnvelopeJSON(), `"po_box": "12345",`, ``, 1)
	_, err := Parse([]byte(raw))
	if err == nil {
		t.Fatalf("expected error for missing po_box")
	}
	sf, ok := err.(*SchemaFailure)
	if !ok {
		t.Fatalf("expected *SchemaFailure, got %T", err)
	}
	if !strings.Contains(sf.Error(), "po_box") {
		t.Errorf("error %q does not mention po_box", sf.Error())
	}
}

func TestParseRejectsUnrecognisedClassification(t *testing.T) {
	raw := strings.Replace(validEnvelopeJSON(), "NEW_APPLICATION", "NOT_A_REAL_CLASSIFICATION", 1)
	_, err := Parse([]byte(raw))
	if err == nil {
		t.Fatalf("expected error for unrecognised classification")
	}
}

func TestParseRejectsMalformedTimestamp(t *testing.T) {
	raw := strings.Replace(validEnvelopeJSON(), `"delivery_date": "2026-01-05 10:00:00",`, `"delivery_date": "not-a-date",`, 1)
	_, err := Parse([]byte(raw))
	if err == nil {
		t.Fatalf("expected error for malformed delivery_date")
	}
	sf, ok := err.(*SchemaFailure)
	if !ok {
		t.Fatalf("expected *SchemaFailure, got %T", err)
	}
	if !strings.Contains(sf.Error(), "delivery_date") {
		t.Errorf("error %q does not mention delivery_date", sf.Error())
	}
}

func TestParseRejectsNonObjectPayload(t *testing.T) {
	_, err := Parse([]byte(`[1,2,3]`))
	if err == nil {
		t.Fatalf("expected error for non-object payload")
	}
}

func TestParseAcceptsRfc3339Timestamps(t *testing.T) {
	raw := strings.Replace(validEnvelopeJSON(), `"delivery_date": "2026-01-05 10:00:00",`, `"delivery_date": "2026-01-05T10:00:00Z",`, 1)
	env, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if env.DeliveryDate.IsZero() {
		t.Errorf("DeliveryDate was not parsed")
	}
}

func TestParseScannableItemOcrDataFailure(t *testing.T) {
	raw := strings.Replace(validEnvelopeJSON(), `"notes": ""`, `"notes": "", "ocr_data": "not an object"`, 1)
	_, err := Parse([]byte(raw))
	if err == nil {
		t.Fatalf("expected error for malformed ocr_data")
	}
	if _, ok := err.(*OcrDataParseError); !ok {
		t.Fatalf("expected *OcrDataParseError, got %T: %v", err, err)
	}
}

func TestCheckEntriesAcceptsMetadataAndPdfs(t *testing.T) {
	files := map[string][]byte{
		"metadata.json": []byte("{}"),
		"1111002.pdf":   []byte("%PDF-1.4 ..."),
		"1111003.PDF":   []byte("%PDF-1.4 ..."),
	}
	if err := CheckEntries(files, "metadata.json"); err != nil {
		t.Fatalf("CheckEntries returned error: %v", err)
	}
}

func TestCheckEntriesRejectsNonPdfEntry(t *testing.T) {
	files := map[string][]byte{
		"metadata.json": []byte("{}"),
		"1111002.pdf":   []byte("%PDF-1.4 ..."),
		"readme.txt":    []byte("not a pdf"),
	}
	err := CheckEntries(files, "metadata.json")
	if err == nil {
		t.Fatalf("expected error for non-pdf entry")
	}
	npf, ok := err.(*NonPdfFileFound)
	if !ok {
		t.Fatalf("expected *NonPdfFileFound, got %T", err)
	}
	if npf.FileName != "readme.txt" {
		t.Errorf("FileName = %q, want readme.txt", npf.FileName)
	}
}

func TestParseScannableItemOcrDataSuccess(t *testing.T) {
	raw := strings.Replace(validEnvelopeJSON(), `"notes": ""`, `"notes": "", "ocr_data": {"field": "value"}`, 1)
	env, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if env.ScannableItems[0].OcrData["field"] != "value" {
		t.Errorf("OcrData not decoded: %v", env.ScannableItems[0].OcrData)
	}
}
