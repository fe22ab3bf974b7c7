package sqlite

import (
	"context"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"compliance/internal/domain"
	"compliance/internal/store"
)

func (d *DB) CreateDocument(ctx context.Context, pointerID, name string, data []byte) (string, error) {
	id := shortuuid.New()
	if data == nil {
		data = []byte{}
	}
	stmt := `INSERT INTO documents (id, pointer_id, document_name, document_data, upload_ts) VALUES (` + placeholders(5) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, id, pointerID, name, data, d.timestamp()); err != nil {
		return "", errors.Wrapf(err, "failed to add document %s", name)
	}
	return id, nil
}

func (d *DB) ListDocuments(ctx context.Context, pointerID string) ([]*domain.SupportingDocument, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, pointer_id, document_name, document_data, upload_ts
		FROM documents
		WHERE pointer_id = ?
		ORDER BY upload_ts ASC, rowid ASC`, pointerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query documents")
	}
	defer rows.Close()

	list := make([]*domain.SupportingDocument, 0)
	for rows.Next() {
		var doc domain.SupportingDocument
		var uploadTs int64
		if err := rows.Scan(&doc.ID, &doc.PointerID, &doc.Name, &doc.Data, &uploadTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		doc.UploadedAt = fromTimestamp(uploadTs)
		list = append(list, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate documents")
	}
	return list, nil
}

func (d *DB) GetDocument(ctx context.Context, id string) (*domain.SupportingDocument, error) {
	var doc domain.SupportingDocument
	var uploadTs int64
	err := d.db.QueryRowContext(ctx, `
		SELECT id, pointer_id, document_name, document_data, upload_ts
		FROM documents
		WHERE id = ?`, id).Scan(&doc.ID, &doc.PointerID, &doc.Name, &doc.Data, &uploadTs)
	if err != nil {
		return nil, scanNotFound(err, "document", id)
	}
	doc.UploadedAt = fromTimestamp(uploadTs)
	return &doc, nil
}

func (d *DB) UpdateDocument(ctx context.Context, update *store.UpdateDocument) (int64, error) {
	set, args := []string{}, []any{}
	if v := update.Name; v != nil {
		set, args = append(set, "document_name = ?"), append(args, *v)
	}
	if update.Data != nil {
		set, args = append(set, "document_data = ?"), append(args, update.Data)
	}
	if len(set) == 0 {
		return 0, nil
	}
	args = append(args, update.ID)
	res, err := d.db.ExecContext(ctx, `UPDATE documents SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to update document %s", update.ID)
	}
	return rowsAffected(res)
}

func (d *DB) DeleteDocument(ctx context.Context, id string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete document %s", id)
	}
	return rowsAffected(res)
}

func (d *DB) DeleteDocumentsByPointer(ctx context.Context, pointerID string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM documents WHERE pointer_id = ?`, pointerID)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete documents of pointer %s", pointerID)
	}
	return rowsAffected(res)
}
