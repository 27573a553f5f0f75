package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, owner_id, filename, mime_type, file_size, storage_path, extracted_text,
	classification, confidence, classification_scores, tags, status, error_message, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	tagsJSON, err := json.Marshal(nonNilTags(doc.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	scoresJSON, err := marshalScores(doc.ClassificationScores)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		doc.ID, doc.OwnerID, doc.Filename, doc.MimeType, doc.FileSize, doc.StoragePath, doc.Text,
		doc.Classification, doc.Confidence, scoresJSON, tagsJSON, string(doc.Status), doc.Error,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return writeError("insert document", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)
	return r.getOne(ctx, row, id)
}

func (r *DocumentRepository) GetForOwner(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1 AND owner_id = $2
`, id, ownerID)
	return r.getOne(ctx, row, id)
}

func (r *DocumentRepository) getOne(ctx context.Context, row *sql.Row, id string) (*domain.Document, error) {
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, entity_type, value, start_pos, end_pos, confidence
FROM document_entities
WHERE document_id = $1
ORDER BY position
`, id)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, err
	}
	doc.Entities = entities[doc.ID]
	if doc.Entities == nil {
		doc.Entities = []domain.Entity{}
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE owner_id = $1
ORDER BY created_at, id
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return docs, nil
	}

	entityRows, err := r.db.QueryContext(ctx, `
SELECT e.document_id, e.entity_type, e.value, e.start_pos, e.end_pos, e.confidence
FROM document_entities e
JOIN documents d ON d.id = e.document_id
WHERE d.owner_id = $1
ORDER BY e.document_id, e.position
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	entities, err := collectEntities(entityRows)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if found, ok := entities[docs[i].ID]; ok {
			docs[i].Entities = found
		}
	}
	return docs, nil
}

// ListPage returns one page of documents without their entities, plus the
// total count for the same filter.
func (r *DocumentRepository) ListPage(ctx context.Context, ownerID string, filter domain.DocumentListFilter) ([]domain.Document, int, error) {
	where := []string{"owner_id = $1"}
	args := []any{ownerID}
	if filter.Classification != "" {
		args = append(args, filter.Classification)
		where = append(where, fmt.Sprintf("classification = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	pageArgs := append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT `+documentColumns+`
FROM documents
WHERE %s
ORDER BY created_at DESC, id
LIMIT $%d OFFSET $%d
`, clause, len(args)+1, len(args)+2), pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents page: %w", err)
	}
	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (r *DocumentRepository) ListStale(ctx context.Context, status domain.DocumentStatus, updatedBefore time.Time, limit int) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE status = $1 AND updated_at < $2
ORDER BY updated_at, id
LIMIT $3
`, string(status), updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale documents: %w", err)
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return expectDocumentRow(result, "update document status", id)
}

// SaveProcessingResult replaces text, classification and entities in one
// transaction.
func (r *DocumentRepository) SaveProcessingResult(ctx context.Context, id string, res domain.ProcessedResult) error {
	scoresJSON, err := marshalScores(res.Scores)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin processing tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE documents
SET extracted_text = $2, classification = $3, confidence = $4, classification_scores = $5,
	status = $6, error_message = '', updated_at = $7
WHERE id = $1
`, id, res.Text, res.Classification, res.Confidence, scoresJSON, string(res.Status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save processing result: %w", err)
	}
	if err := expectDocumentRow(result, "save processing result", id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_entities WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("clear entities: %w", err)
	}
	for i, e := range domain.DedupeEntities(res.Entities) {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO document_entities (document_id, position, entity_type, value, start_pos, end_pos, confidence)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, id, i, string(e.Type), e.Value, e.Start, e.End, e.Confidence); err != nil {
			return fmt.Errorf("insert entity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit processing tx: %w", err)
	}
	return nil
}

// AddTag appends tag in a single statement, leaving the array untouched when
// the tag is already present.
func (r *DocumentRepository) AddTag(ctx context.Context, id, tag string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET tags = CASE
		WHEN tags @> jsonb_build_array($2::text) THEN tags
		ELSE tags || jsonb_build_array($2::text)
	END,
	updated_at = $3
WHERE id = $1
`, id, tag, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add document tag: %w", err)
	}
	return expectDocumentRow(result, "add document tag", id)
}

func (r *DocumentRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return expectDocumentRow(result, "delete document", id)
}

func expectDocumentRow(result sql.Result, operation, id string) error {
	n, err := rowsAffected(result, operation)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var doc domain.Document
	var scoresRaw, tagsRaw []byte
	var status string
	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.Filename, &doc.MimeType, &doc.FileSize, &doc.StoragePath, &doc.Text,
		&doc.Classification, &doc.Confidence, &scoresRaw, &tagsRaw, &status, &doc.Error,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &doc.Tags); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	doc.Tags = nonNilTags(doc.Tags)
	if len(scoresRaw) > 0 {
		if err := json.Unmarshal(scoresRaw, &doc.ClassificationScores); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshal classification scores: %w", err)
		}
	}
	if len(doc.ClassificationScores) == 0 {
		doc.ClassificationScores = nil
	}
	doc.Status = domain.DocumentStatus(status)
	doc.Entities = []domain.Entity{}
	return doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	defer rows.Close()
	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func collectEntities(rows *sql.Rows) (map[string][]domain.Entity, error) {
	defer rows.Close()
	out := make(map[string][]domain.Entity)
	for rows.Next() {
		var documentID, entityType string
		var e domain.Entity
		if err := rows.Scan(&documentID, &entityType, &e.Value, &e.Start, &e.End, &e.Confidence); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Type = domain.EntityType(entityType)
		out[documentID] = append(out[documentID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

func marshalScores(scores map[string]float64) ([]byte, error) {
	if scores == nil {
		scores = map[string]float64{}
	}
	raw, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("marshal classification scores: %w", err)
	}
	return raw, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
