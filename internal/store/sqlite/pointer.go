package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"compliance/internal/domain"
	"compliance/internal/store"
)

func (d *DB) CreatePointer(ctx context.Context, create *domain.Pointer) (string, error) {
	id := shortuuid.New()
	ts := d.timestamp()
	status := create.ComplianceStatus
	if status == "" {
		status = domain.StatusNotChecked
	}
	fields := []string{
		"id", "name", "objective", "compliance_requirements", "supporting_document_points",
		"language", "compliance_status", "year", "created_ts", "updated_ts",
	}
	args := []any{
		id, create.Name, create.Objective, create.ComplianceRequirements, create.SupportingDocumentPoints,
		string(create.Language), string(status), create.Year, ts, ts,
	}
	stmt := `INSERT INTO pointers (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return "", errors.Wrap(err, "failed to create pointer")
	}
	create.ID = id
	create.ComplianceStatus = status
	create.CreatedAt = fromTimestamp(ts)
	create.UpdatedAt = create.CreatedAt
	return id, nil
}

func (d *DB) ListPointers(ctx context.Context, find *store.FindPointer) ([]*domain.Pointer, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find != nil {
		if v := find.ID; v != nil {
			where, args = append(where, "id = ?"), append(args, *v)
		}
		if v := find.Year; v != nil {
			where, args = append(where, "year = ?"), append(args, *v)
		}
		if v := find.Language; v != nil {
			where, args = append(where, "language = ?"), append(args, string(*v))
		}
		if v := find.Status; v != nil {
			where, args = append(where, "compliance_status = ?"), append(args, string(*v))
		}
	}

	query := `
		SELECT
			id, name, objective, compliance_requirements, supporting_document_points,
			language, compliance_status, year, created_ts, updated_ts
		FROM pointers
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, rowid ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query pointers")
	}
	defer rows.Close()

	list := make([]*domain.Pointer, 0)
	for rows.Next() {
		var p domain.Pointer
		var language, status string
		var createdTs, updatedTs int64
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Objective,
			&p.ComplianceRequirements,
			&p.SupportingDocumentPoints,
			&language,
			&status,
			&p.Year,
			&createdTs,
			&updatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan pointer")
		}
		p.Language = domain.Language(language)
		p.ComplianceStatus = domain.Status(status)
		p.CreatedAt = fromTimestamp(createdTs)
		p.UpdatedAt = fromTimestamp(updatedTs)
		list = append(list, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate pointers")
	}
	return list, nil
}

func (d *DB) GetPointer(ctx context.Context, id string) (*domain.Pointer, error) {
	list, err := d.ListPointers(ctx, &store.FindPointer{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Wrapf(store.ErrNotFound, "pointer %s", id)
	}
	return list[0], nil
}

func (d *DB) UpdatePointer(ctx context.Context, update *store.UpdatePointer) (int64, error) {
	set, args := []string{}, []any{}
	if v := update.Name; v != nil {
		set, args = append(set, "name = ?"), append(args, *v)
	}
	if v := update.Objective; v != nil {
		set, args = append(set, "objective = ?"), append(args, *v)
	}
	if v := update.ComplianceRequirements; v != nil {
		set, args = append(set, "compliance_requirements = ?"), append(args, *v)
	}
	if v := update.SupportingDocumentPoints; v != nil {
		set, args = append(set, "supporting_document_points = ?"), append(args, *v)
	}
	if v := update.Language; v != nil {
		set, args = append(set, "language = ?"), append(args, string(*v))
	}
	if v := update.ComplianceStatus; v != nil {
		set, args = append(set, "compliance_status = ?"), append(args, string(*v))
	}
	if v := update.Year; v != nil {
		set, args = append(set, "year = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return 0, nil
	}
	set, args = append(set, "updated_ts = ?"), append(args, d.timestamp())
	args = append(args, update.ID)

	stmt := `UPDATE pointers SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	res, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to update pointer %s", update.ID)
	}
	return rowsAffected(res)
}

func (d *DB) DeletePointer(ctx context.Context, id string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM pointers WHERE id = ?`, id)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete pointer %s", id)
	}
	return rowsAffected(res)
}

func scanNotFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(store.ErrNotFound, "%s %s", what, id)
	}
	return errors.Wrapf(err, "failed to get %s %s", what, id)
}
