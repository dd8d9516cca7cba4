// Package store implements the Envelope & Event Store: the durable record
// of every envelope, its child rows, and the append-only event log that
// drives the state machine. It wraps github.com/jackc/pgx/v5/pgxpool the way
// the teacher's internal/database and internal/repository do, against a
// richer schema.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/caseflow/bulkscan-processor/internal/model"
	"github.com/caseflow/bulkscan-processor/internal/statemachine"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidTransition is returned when a requested status change is not
// reachable from the envelope's current status per the transition table.
var ErrInvalidTransition = errors.New("store: invalid status transition")

// envelopeColumns is the fixed column list shared by every envelope SELECT,
// kept in one place so scanEnvelope's Scan order never drifts from a query.
const envelopeColumns = `id, container, jurisdiction, case_number, po_box, classification,
	delivery_date, opening_date, zip_file_created_date, zip_file_name,
	status, upload_failure_count, zip_deleted, created_at, status_updated_at, ccd_id, ccd_action`

// Store is the Envelope & Event Store. A singleflight.Group collapses
// concurrent in-process attempts to transition the same envelope, layered
// above the row-level locking (SELECT ... FOR UPDATE) that is the real
// cross-process exclusion device.
type Store struct {
	pool *pgxpool.Pool
	sf   singleflight.Group
}

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pgx connection pool using dsn, following the teacher's
// internal/database.Connect.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 16
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates every table the store needs if they do not already
// exist, keeping the binaries self-bootstrapping the way the teacher's demo
// stack is.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS envelopes (
	id TEXT PRIMARY KEY,
	container TEXT NOT NULL,
	jurisdiction TEXT NOT NULL,
	case_number TEXT,
	po_box TEXT NOT NULL,
	classification TEXT NOT NULL,
	delivery_date TIMESTAMPTZ NOT NULL,
	opening_date TIMESTAMPTZ NOT NULL,
	zip_file_created_date TIMESTAMPTZ NOT NULL,
	zip_file_name TEXT NOT NULL,
	status TEXT NOT NULL,
	upload_failure_count INT NOT NULL DEFAULT 0,
	zip_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	status_updated_at TIMESTAMPTZ NOT NULL,
	ccd_id TEXT,
	ccd_action TEXT,
	UNIQUE(container, zip_file_name)
);
CREATE INDEX IF NOT EXISTS idx_envelopes_status ON envelopes(status);
CREATE INDEX IF NOT EXISTS idx_envelopes_container_status ON envelopes(container, status);

CREATE TABLE IF NOT EXISTS scannable_items (
	id TEXT PRIMARY KEY,
	envelope_id TEXT NOT NULL REFERENCES envelopes(id) ON DELETE CASCADE,
	file_name TEXT NOT NULL,
	document_control_number TEXT,
	scanning_date TIMESTAMPTZ NOT NULL,
	ocr_accuracy TEXT,
	exception_record BOOLEAN NOT NULL DEFAULT FALSE,
	ocr_data JSONB,
	document_type TEXT,
	document_sub_type TEXT,
	notes TEXT,
	storage_url TEXT
);
CREATE INDEX IF NOT EXISTS idx_scannable_items_dcn ON scannable_items(document_control_number);

CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	envelope_id TEXT NOT NULL REFERENCES envelopes(id) ON DELETE CASCADE,
	document_control_number TEXT
);

CREATE TABLE IF NOT EXISTS non_scannable_items (
	id TEXT PRIMARY KEY,
	envelope_id TEXT NOT NULL REFERENCES envelopes(id) ON DELETE CASCADE,
	document_type TEXT,
	document_control_number TEXT
);

CREATE TABLE IF NOT EXISTS process_events (
	id BIGSERIAL PRIMARY KEY,
	envelope_id TEXT,
	container TEXT NOT NULL,
	zip_file_name TEXT NOT NULL,
	event TEXT NOT NULL,
	reason TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_process_events_zip ON process_events(container, zip_file_name);
CREATE INDEX IF NOT EXISTS idx_process_events_envelope ON process_events(envelope_id);
`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// FindByContainerAndFilename is the idempotency lookup the coordinator runs
// before processing any archive: if a row already exists for this
// container/filename, the archive has already been ingested (successfully
// or not) and must not be reprocessed.
func (s *Store) FindByContainerAndFilename(ctx context.Context, container, zipFileName string) (*model.Envelope, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+envelopeColumns+`
		FROM envelopes WHERE container=$1 AND zip_file_name=$2
	`, container, zipFileName)
	env, err := scanEnvelope(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by container/filename: %w", err)
	}
	return env, nil
}

// CreateEnvelope persists a freshly built envelope and its children inside
// a single transaction, then records the ZIPFILE_PROCESSING_STARTED event
// that brought it into existence. env.ID and env.CreatedAt are populated on
// success.
func (s *Store) CreateEnvelope(ctx context.Context, env *model.Envelope) error {
	env.ID = uuid.NewString()
	env.CreatedAt = time.Now().UTC()
	env.StatusUpdatedAt = env.CreatedAt
	env.Status = statemachine.EntryStatus

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create envelope: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO envelopes (id, container, jurisdiction, case_number, po_box, classification,
			delivery_date, opening_date, zip_file_created_date, zip_file_name, status,
			upload_failure_count, zip_deleted, created_at, status_updated_at, ccd_id, ccd_action)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, env.ID, env.Container, env.Jurisdiction, env.CaseNumber, env.PoBox, env.Classification,
		env.DeliveryDate, env.OpeningDate, env.ZipFileCreatedDate, env.ZipFileName, env.Status,
		env.UploadFailureCount, env.ZipDeleted, env.CreatedAt, env.StatusUpdatedAt, nullIfEmpty(env.CcdID), nullIfEmpty(env.CcdAction))
	if err != nil {
		return fmt.Errorf("insert envelope: %w", err)
	}

	for i := range env.ScannableItems {
		item := &env.ScannableItems[i]
		item.ID = uuid.NewString()
		item.DocumentUUID = env.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO scannable_items (id, envelope_id, file_name, document_control_number,
				scanning_date, ocr_accuracy, exception_record, ocr_data, document_type,
				document_sub_type, notes, storage_url)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, item.ID, env.ID, item.FileName, item.DocumentControlNumber, item.ScanningDate,
			item.OcrAccuracy, item.ExceptionRecord, ocrDataJSON(item.OcrData), item.DocumentType,
			item.DocumentSubType, item.Notes, nullIfEmpty(item.StorageURL))
		if err != nil {
			return fmt.Errorf("insert scannable item %s: %w", item.FileName, err)
		}
	}
	for i := range env.Payments {
		p := &env.Payments[i]
		p.ID = uuid.NewString()
		p.DocumentUUID = env.ID
		if _, err = tx.Exec(ctx, `
			INSERT INTO payments (id, envelope_id, document_control_number) VALUES ($1,$2,$3)
		`, p.ID, env.ID, p.DocumentControlNumber); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
	}
	for i := range env.NonScannableItems {
		n := &env.NonScannableItems[i]
		n.ID = uuid.NewString()
		n.DocumentUUID = env.ID
		if _, err = tx.Exec(ctx, `
			INSERT INTO non_scannable_items (id, envelope_id, document_type, document_control_number)
			VALUES ($1,$2,$3,$4)
		`, n.ID, env.ID, n.DocumentType, n.DocumentControlNumber); err != nil {
			return fmt.Errorf("insert non scannable item: %w", err)
		}
	}

	if err = insertEvent(ctx, tx, model.ProcessEvent{
		EnvelopeID:  env.ID,
		Container:   env.Container,
		ZipFileName: env.ZipFileName,
		Event:       model.EventZipFileProcessingStarted,
		CreatedAt:   env.CreatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create envelope: %w", err)
	}
	return nil
}

// RecordRejection records an append-only event for an archive that never
// became an envelope (signature or metadata failure, or an unclassified
// failure), with no envelope_id. It returns the inserted event's id so
// callers can thread it through to the Error Notifier.
func (s *Store) RecordRejection(ctx context.Context, container, zipFileName string, event model.EventKind, reason string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO process_events (envelope_id, container, zip_file_name, event, reason, created_at)
		VALUES (NULL, $1, $2, $3, $4, $5)
		RETURNING id
	`, container, zipFileName, event, nullIfEmpty(reason), time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record rejection: %w", err)
	}
	return id, nil
}

// Transition atomically moves envelopeID to the status associated with
// event, recording the event row in the same transaction, and fails with
// ErrInvalidTransition if the move is not reachable from the current
// status. Concurrent calls for the same envelope are collapsed by a
// singleflight key so two goroutines racing to report the same outcome
// issue only one round trip; the authoritative exclusion is still the
// row-level lock taken inside the transaction.
func (s *Store) Transition(ctx context.Context, envelopeID string, event model.EventKind, reason string) error {
	to, ok := statemachine.StatusFor(event)
	if !ok {
		return fmt.Errorf("store: event %s has no associated status", event)
	}
	key := envelopeID + ":" + string(event)
	_, err, _ := s.sf.Do(key, func() (any, error) {
		return nil, s.transition(ctx, envelopeID, to, event, reason)
	})
	return err
}

func (s *Store) transition(ctx context.Context, envelopeID string, to model.Status, event model.EventKind, reason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	var current model.Status
	var container, zipFileName string
	if err := tx.QueryRow(ctx, `SELECT status, container, zip_file_name FROM envelopes WHERE id=$1 FOR UPDATE`, envelopeID).
		Scan(&current, &container, &zipFileName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock envelope: %w", err)
	}
	if !statemachine.AllowedTransition(current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
	}

	failureIncrement := 0
	if event == model.EventDocUploadFailure {
		failureIncrement = 1
	}
	if _, err := tx.Exec(ctx, `
		UPDATE envelopes SET status=$1, upload_failure_count = upload_failure_count + $2, status_updated_at=$3 WHERE id=$4
	`, to, failureIncrement, time.Now().UTC(), envelopeID); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	if err := insertEvent(ctx, tx, model.ProcessEvent{
		EnvelopeID:  envelopeID,
		Container:   container,
		ZipFileName: zipFileName,
		Event:       event,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// UpdateScannableItemStorageURL records the downstream document store's
// URL for a scannable item once the Document Uploader has pushed it.
func (s *Store) UpdateScannableItemStorageURL(ctx context.Context, scannableItemID, storageURL string) error {
	_, err := s.pool.Exec(ctx, `UPDATE scannable_items SET storage_url=$1 WHERE id=$2`, storageURL, scannableItemID)
	if err != nil {
		return fmt.Errorf("update storage url: %w", err)
	}
	return nil
}

// FindUploadCandidates returns envelopes still awaiting upload (CREATED or
// previously failed uploads below the retry limit), oldest first, for the
// Document Uploader to dispatch.
func (s *Store) FindUploadCandidates(ctx context.Context, maxFailures int, limit int) ([]model.Envelope, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+envelopeColumns+`
		FROM envelopes
		WHERE status IN ($1, $2) AND upload_failure_count < $3
		ORDER BY created_at ASC
		LIMIT $4
	`, model.StatusCreated, model.StatusUploadFailure, maxFailures, limit)
	if err != nil {
		return nil, fmt.Errorf("find upload candidates: %w", err)
	}
	defer rows.Close()
	return scanEnvelopeRows(rows)
}

// FindCompleteEnvelopesFromContainer returns envelopes in container that
// have cleared upload and are eligible for the Completion Sweeper to delete
// their source blob.
func (s *Store) FindCompleteEnvelopesFromContainer(ctx context.Context, container string) ([]model.Envelope, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+envelopeColumns+`
		FROM envelopes
		WHERE container=$1 AND status IN ($2, $3, $4) AND zip_deleted=FALSE
	`, container, model.StatusProcessed, model.StatusNotificationSent, model.StatusConsumed)
	if err != nil {
		return nil, fmt.Errorf("find complete envelopes: %w", err)
	}
	defer rows.Close()
	return scanEnvelopeRows(rows)
}

// MarkZipDeleted flags an envelope's source blob as removed once the
// Completion Sweeper has deleted it.
func (s *Store) MarkZipDeleted(ctx context.Context, envelopeID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE envelopes SET zip_deleted=TRUE WHERE id=$1`, envelopeID)
	if err != nil {
		return fmt.Errorf("mark zip deleted: %w", err)
	}
	return nil
}

// FindByID looks an envelope up by its primary key, used by the Document
// Uploader's worker to re-read the envelope a task was queued for.
func (s *Store) FindByID(ctx context.Context, id string) (*model.Envelope, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+envelopeColumns+`
		FROM envelopes WHERE id=$1
	`, id)
	env, err := scanEnvelope(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by id: %w", err)
	}
	return env, nil
}

// ScannableItemsByEnvelope returns the scannable items belonging to
// envelopeID, since CreateEnvelope's in-memory struct is not retained
// across process boundaries (the worker re-reads the envelope by ID).
func (s *Store) ScannableItemsByEnvelope(ctx context.Context, envelopeID string) ([]model.ScannableItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, file_name, document_control_number, scanning_date, ocr_accuracy,
			exception_record, document_type, document_sub_type, notes, COALESCE(storage_url,'')
		FROM scannable_items WHERE envelope_id=$1
	`, envelopeID)
	if err != nil {
		return nil, fmt.Errorf("list scannable items: %w", err)
	}
	defer rows.Close()
	var out []model.ScannableItem
	for rows.Next() {
		var item model.ScannableItem
		var dcn sql.NullString
		if err := rows.Scan(&item.ID, &item.FileName, &dcn, &item.ScanningDate, &item.OcrAccuracy,
			&item.ExceptionRecord, &item.DocumentType, &item.DocumentSubType, &item.Notes, &item.StorageURL); err != nil {
			return nil, fmt.Errorf("scan scannable item: %w", err)
		}
		item.DocumentControlNumber = dcn.String
		item.DocumentUUID = envelopeID
		out = append(out, item)
	}
	return out, rows.Err()
}

// FindByZipFileName looks an envelope up by its archive's filename, for the
// reporting surface's name-based lookup.
func (s *Store) FindByZipFileName(ctx context.Context, zipFileName string) (*model.Envelope, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+envelopeColumns+`
		FROM envelopes WHERE zip_file_name=$1
	`, zipFileName)
	env, err := scanEnvelope(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by zip file name: %w", err)
	}
	return env, nil
}

// FindByDocumentControlNumber looks an envelope up via one of its
// scannable items' DCN, for the reporting surface's dcn-based lookup.
func (s *Store) FindByDocumentControlNumber(ctx context.Context, dcn string) (*model.Envelope, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT e.id, e.container, e.jurisdiction, e.case_number, e.po_box, e.classification,
			e.delivery_date, e.opening_date, e.zip_file_created_date, e.zip_file_name,
			e.status, e.upload_failure_count, e.zip_deleted, e.created_at, e.status_updated_at, e.ccd_id, e.ccd_action
		FROM envelopes e
		JOIN scannable_items si ON si.envelope_id = e.id
		WHERE si.document_control_number=$1
		LIMIT 1
	`, dcn)
	env, err := scanEnvelope(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by dcn: %w", err)
	}
	return env, nil
}

// CountSummary reports how many envelopes currently sit at each status, for
// the reporting surface's count-summary endpoint.
func (s *Store) CountSummary(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM envelopes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count summary: %w", err)
	}
	defer rows.Close()
	out := make(map[model.Status]int)
	for rows.Next() {
		var status model.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count summary: %w", err)
		}
		out[status] = count
	}
	return out, rows.Err()
}

// FindRejected returns the signature and file-validation rejection events
// recorded by RecordRejection since the given time, newest first, for
// archives that never produced a persisted envelope row.
func (s *Store) FindRejected(ctx context.Context, since time.Time) ([]model.ProcessEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(envelope_id,''), container, zip_file_name, event, created_at, COALESCE(reason,'')
		FROM process_events
		WHERE envelope_id IS NULL AND event IN ($1, $2) AND created_at >= $3
		ORDER BY created_at DESC
	`, model.EventDocSignatureFailure, model.EventFileValidationFailure, since)
	if err != nil {
		return nil, fmt.Errorf("find rejected: %w", err)
	}
	defer rows.Close()
	var out []model.ProcessEvent
	for rows.Next() {
		var e model.ProcessEvent
		if err := rows.Scan(&e.ID, &e.EnvelopeID, &e.Container, &e.ZipFileName, &e.Event, &e.CreatedAt, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan rejected event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type queryRow interface {
	Scan(dest ...any) error
}

func scanEnvelope(row queryRow) (*model.Envelope, error) {
	var (
		env       model.Envelope
		caseNum   sql.NullString
		ccdID     sql.NullString
		ccdAction sql.NullString
	)
	if err := row.Scan(&env.ID, &env.Container, &env.Jurisdiction, &caseNum, &env.PoBox, &env.Classification,
		&env.DeliveryDate, &env.OpeningDate, &env.ZipFileCreatedDate, &env.ZipFileName,
		&env.Status, &env.UploadFailureCount, &env.ZipDeleted, &env.CreatedAt, &env.StatusUpdatedAt, &ccdID, &ccdAction); err != nil {
		return nil, err
	}
	env.CaseNumber = caseNum.String
	env.CcdID = ccdID.String
	env.CcdAction = ccdAction.String
	return &env, nil
}

func scanEnvelopeRows(rows pgx.Rows) ([]model.Envelope, error) {
	var out []model.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("scan envelope row: %w", err)
		}
		out = append(out, *env)
	}
	return out, rows.Err()
}

func insertEvent(ctx context.Context, tx pgx.Tx, evt model.ProcessEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO process_events (envelope_id, container, zip_file_name, event, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, nullIfEmpty(evt.EnvelopeID), evt.Container, evt.ZipFileName, evt.Event, nullIfEmpty(evt.Reason), evt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert process event: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ocrDataJSON(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
