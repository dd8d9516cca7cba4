// Package envelope implements the Envelope Builder: it cross-checks the
// parsed metadata against the archive's actual file listing and the
// container/jurisdiction mapping, then assembles a persistable Envelope.
package envelope

import (
	"fmt"
	"sort"
	"strings"

	pdfutil "github.com/caseflow/bulkscan-processor/internal/pdf"

	"github.com/caseflow/bulkscan-processor/internal/metadata"
	"github.com/caseflow/bulkscan-processor/internal/model"
)

// FileNameIrregularities reports a mismatch between the filenames metadata
// declares and the filenames the archive actually contains.
type FileNameIrregularities struct {
	Container   string
	ZipFileName string
	Missing     []string
	Unreferenced []string
}

func (f *FileNameIrregularities) Error() string {
	var parts []string
	if len(f.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("Missing PDFs: %s", strings.Join(f.Missing, ", ")))
	}
	if len(f.Unreferenced) > 0 {
		parts = append(parts, fmt.Sprintf("Extra PDFs: %s", strings.Join(f.Unreferenced, ", ")))
	}
	return fmt.Sprintf("file name irregularities for %s/%s: %s", f.Container, f.ZipFileName, strings.Join(parts, "; "))
}

// JurisdictionMismatch reports that metadata's declared jurisdiction does
// not match the jurisdiction the container is configured to carry.
type JurisdictionMismatch struct {
	Container              string
	DeclaredJurisdiction   string
	ConfiguredJurisdiction string
}

func (j *JurisdictionMismatch) Error() string {
	return fmt.Sprintf("container %s declares jurisdiction %q, metadata declares %q", j.Container, j.ConfiguredJurisdiction, j.DeclaredJurisdiction)
}

// PdfIntegrityFailure reports that a declared PDF could not be parsed.
type PdfIntegrityFailure struct {
	FileName string
	Cause    error
}

func (p *PdfIntegrityFailure) Error() string {
	return fmt.Sprintf("pdf integrity check failed for %s: %v", p.FileName, p.Cause)
}

// PdfReader abstracts the subset of ledongthuc/pdf used for the sanity
// check, so tests can substitute a fake without real PDF bytes. It returns
// the PDF's page count alongside any error, so the builder can record it.
type PdfReader interface {
	CheckPdf(fileName string, data []byte) (int, error)
}

// defaultPdfReader uses ledongthuc/pdf to confirm a PDF parses structurally.
// The pipeline does not need text extraction, only a guarantee that the
// declared PDF is not corrupt before an envelope is considered buildable.
type defaultPdfReader struct{}

func (defaultPdfReader) CheckPdf(fileName string, data []byte) (int, error) {
	return pdfutil.CheckIntegrity(data)
}

// Builder assembles Envelope aggregates from parsed metadata plus the
// archive's own file listing, enforcing the cross-checks spec.md §4.4
// requires before anything is persisted.
type Builder struct {
	containerJurisdictions map[string]string
	pdfReader               PdfReader
}

// New constructs a Builder. containerJurisdictions maps each configured
// input container name to the jurisdiction it is expected to carry.
func New(containerJurisdictions map[string]string) *Builder {
	return &Builder{containerJurisdictions: containerJurisdictions, pdfReader: defaultPdfReader{}}
}

// WithPdfReader overrides the PDF integrity checker, primarily for tests.
func (b *Builder) WithPdfReader(r PdfReader) *Builder {
	b.pdfReader = r
	return b
}

// Build validates in and the companion archive's file listing (archiveFiles
// maps filename to its raw bytes, covering every entry of the inner archive
// except metadata.json) and, if they agree, assembles a not-yet-persisted
// Envelope.
func (b *Builder) Build(container string, in *metadata.InputEnvelope, archiveFiles map[string][]byte) (*model.Envelope, error) {
	if err := b.checkFileNames(container, in, archiveFiles); err != nil {
		return nil, err
	}
	if err := b.checkJurisdiction(container, in); err != nil {
		return nil, err
	}
	pageCounts := make(map[string]int, len(in.ScannableItems))
	for _, item := range in.ScannableItems {
		data, ok := archiveFiles[item.FileName]
		if !ok {
			continue
		}
		pages, err := b.pdfReader.CheckPdf(item.FileName, data)
		if err != nil {
			return nil, &PdfIntegrityFailure{FileName: item.FileName, Cause: err}
		}
		pageCounts[item.FileName] = pages
	}

	env := &model.Envelope{
		Container:          container,
		Jurisdiction:        in.Jurisdiction,
		CaseNumber:          in.CaseNumber,
		PoBox:               in.PoBox,
		Classification:      in.Classification,
		DeliveryDate:        in.DeliveryDate,
		OpeningDate:         in.OpeningDate,
		ZipFileCreatedDate:  in.ZipFileCreatedDate,
		ZipFileName:         in.ZipFileName,
		Status:              model.StatusCreated,
		ScannableItems:      make([]model.ScannableItem, 0, len(in.ScannableItems)),
		Payments:            make([]model.Payment, 0, len(in.Payments)),
		NonScannableItems:   make([]model.NonScannableItem, 0, len(in.NonScannableItems)),
	}
	for _, item := range in.ScannableItems {
		notes := item.Notes
		if notes == "" {
			if pages, ok := pageCounts[item.FileName]; ok {
				notes = fmt.Sprintf("%d page(s)", pages)
			}
		}
		env.ScannableItems = append(env.ScannableItems, model.ScannableItem{
			FileName:              item.FileName,
			DocumentControlNumber: item.DocumentControlNumber,
			ScanningDate:          item.ScanningDate,
			OcrAccuracy:           item.OcrAccuracy,
			ExceptionRecord:       item.ExceptionRecord,
			OcrData:               item.OcrData,
			DocumentType:          item.DocumentType,
			DocumentSubType:       item.DocumentSubType,
			Notes:                 notes,
		})
	}
	for _, p := range in.Payments {
		env.Payments = append(env.Payments, model.Payment{DocumentControlNumber: p.DocumentControlNumber})
	}
	for _, n := range in.NonScannableItems {
		env.NonScannableItems = append(env.NonScannableItems, model.NonScannableItem{
			DocumentType:          n.DocumentType,
			DocumentControlNumber: n.DocumentControlNumber,
		})
	}
	return env, nil
}

// checkFileNames enforces that metadata's declared scannable-item filenames
// are exactly the set of non-metadata files the archive contains.
func (b *Builder) checkFileNames(container string, in *metadata.InputEnvelope, archiveFiles map[string][]byte) error {
	declared := make(map[string]bool, len(in.ScannableItems))
	for _, item := range in.ScannableItems {
		declared[item.FileName] = true
	}

	var missing, unreferenced []string
	for name := range declared {
		if _, ok := archiveFiles[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range archiveFiles {
		if !declared[name] {
			unreferenced = append(unreferenced, name)
		}
	}
	if len(missing) == 0 && len(unreferenced) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unreferenced)
	return &FileNameIrregularities{
		Container:    container,
		ZipFileName:  in.ZipFileName,
		Missing:      missing,
		Unreferenced: unreferenced,
	}
}

func (b *Builder) checkJurisdiction(container string, in *metadata.InputEnvelope) error {
	expected, ok := b.containerJurisdictions[container]
	if !ok {
		return nil
	}
	if !strings.EqualFold(expected, in.Jurisdiction) {
		return &JurisdictionMismatch{
			Container:              container,
			DeclaredJurisdiction:   in.Jurisdiction,
			ConfiguredJurisdiction: expected,
		}
	}
	return nil
}
