package envelope

import (
	"errors"
	"testing"

	"github.com/caseflow/bulkscan-processor/internal/metadata"
	"github.com/caseflow/bulkscan-processor/internal/model"
)

func baseInput() *metadata.InputEnvelope {
	return &metadata.InputEnvelope{
		PoBox:          "12345",
		Jurisdiction:   "FAMILY",
		ZipFileName:    "1_05012026090000_0001.zip",
		CaseNumber:     "CASE-1",
		Classification: model.ClassificationNewApplication,
		ScannableItems: []metadata.InputScannableItem{
			{FileName: "1111002.pdf", DocumentControlNumber: "1111002"},
		},
	}
}

type fakePdfReader struct {
	pages int
	err   error
}

func (f fakePdfReader) CheckPdf(fileName string, data []byte) (int, error) {
	return f.pages, f.err
}

func TestBuildSucceeds(t *testing.T) {
	b := New(map[string]string{"bulkscan": "FAMILY"}).WithPdfReader(fakePdfReader{})
	archive := map[string][]byte{"1111002.pdf": []byte("%PDF-1.4 ...")}

	env, err := b.Build("bulkscan", baseInput(), archive)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if env.Status != model.StatusCreated {
		t.Errorf("Status = %s, want CREATED", env.Status)
	}
	if len(env.ScannableItems) != 1 {
		t.Fatalf("len(ScannableItems) = %d, want 1", len(env.ScannableItems))
	}
}

func TestBuildDetectsMissingFile(t *testing.T) {
	b := New(nil).WithPdfReader(fakePdfReader{})
	archive := map[string][]byte{}

	_, err := b.Build("bulkscan", baseInput(), archive)
	if err == nil {
		t.Fatalf("expected error for missing archive entry")
	}
	var irregular *FileNameIrregularities
	if !errors.As(err, &irregular) {
		t.Fatalf("expected *FileNameIrregularities, got %T", err)
	}
	if len(irregular.Missing) != 1 || irregular.Missing[0] != "1111002.pdf" {
		t.Errorf("Missing = %v", irregular.Missing)
	}
}

func TestBuildDetectsUnreferencedFile(t *testing.T) {
	b := New(nil).WithPdfReader(fakePdfReader{})
	archive := map[string][]byte{
		"1111002.pdf": []byte("%PDF-1.4 ..."),
		"extra.pdf":   []byte("%PDF-1.4 ..."),
	}

	_, err := b.Build("bulkscan", baseInput(), archive)
	if err == nil {
		t.Fatalf("expected error for unreferenced archive entry")
	}
	var irregular *FileNameIrregularities
	if !errors.As(err, &irregular) {
		t.Fatalf("expected *FileNameIrregularities, got %T", err)
	}
	if len(irregular.Unreferenced) != 1 || irregular.Unreferenced[0] != "extra.pdf" {
		t.Errorf("Unreferenced = %v", irregular.Unreferenced)
	}
}

func TestBuildDetectsJurisdictionMismatch(t *testing.T) {
	b := New(map[string]string{"bulkscan": "CIVIL"}).WithPdfReader(fakePdfReader{})
	archive := map[string][]byte{"1111002.pdf": []byte("%PDF-1.4 ...")}

	_, err := b.Build("bulkscan", baseInput(), archive)
	if err == nil {
		t.Fatalf("expected error for jurisdiction mismatch")
	}
	var mismatch *JurisdictionMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *JurisdictionMismatch, got %T", err)
	}
}

func TestBuildDetectsPdfIntegrityFailure(t *testing.T) {
	b := New(nil).WithPdfReader(fakePdfReader{err: errors.New("truncated")})
	archive := map[string][]byte{"1111002.pdf": []byte("not really a pdf")}

	_, err := b.Build("bulkscan", baseInput(), archive)
	if err == nil {
		t.Fatalf("expected error for pdf integrity failure")
	}
	var failure *PdfIntegrityFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *PdfIntegrityFailure, got %T", err)
	}
}

func TestBuildRecordsPageCountInNotes(t *testing.T) {
	b := New(nil).WithPdfReader(fakePdfReader{pages: 3})
	archive := map[string][]byte{"1111002.pdf": []byte("%PDF-1.4 ...")}

	env, err := b.Build("bulkscan", baseInput(), archive)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got := env.ScannableItems[0].Notes; got != "3 page(s)" {
		t.Errorf("Notes = %q, want %q", got, "3 page(s)")
	}
}

func TestBuildPreservesDeclaredNotes(t *testing.T) {
	b := New(nil).WithPdfReader(fakePdfReader{pages: 3})
	in := baseInput()
	in.ScannableItems[0].Notes = "hand-annotated"
	archive := map[string][]byte{"1111002.pdf": []byte("%PDF-1.4 ...")}

	env, err := b.Build("bulkscan", in, archive)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got := env.ScannableItems[0].Notes; got != "hand-annotated" {
		t.Errorf("Notes = %q, want declared value preserved", got)
	}
}

func TestBuildUnconfiguredContainerSkipsJurisdictionCheck(t *testing.T) {
	b := New(map[string]string{}).WithPdfReader(fakePdfReader{})
	archive := map[string][]byte{"1111002.pdf": []byte("%PDF-1.4 ...")}

	if _, err := b.Build("bulkscan", baseInput(), archive); err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
}
