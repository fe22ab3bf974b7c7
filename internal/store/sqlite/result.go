package sqlite

import (
	"context"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"compliance/internal/domain"
	"compliance/internal/store"
)

func (d *DB) CreateResult(ctx context.Context, pointerID string, status domain.Status, details string) (string, error) {
	id := shortuuid.New()
	stmt := `INSERT INTO compliance_results (id, pointer_id, compliance_status, details, checked_ts) VALUES (` + placeholders(5) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, id, pointerID, string(status), details, d.timestamp()); err != nil {
		return "", errors.Wrap(err, "failed to add compliance result")
	}
	return id, nil
}

// ListResults returns the results of a pointer, newest first.
func (d *DB) ListResults(ctx context.Context, pointerID string) ([]*domain.ComplianceResult, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, pointer_id, compliance_status, details, checked_ts
		FROM compliance_results
		WHERE pointer_id = ?
		ORDER BY checked_ts DESC, rowid DESC`, pointerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query compliance results")
	}
	defer rows.Close()

	list := make([]*domain.ComplianceResult, 0)
	for rows.Next() {
		var r domain.ComplianceResult
		var status string
		var checkedTs int64
		if err := rows.Scan(&r.ID, &r.PointerID, &status, &r.Details, &checkedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan compliance result")
		}
		r.Status = domain.Status(status)
		r.CheckedAt = fromTimestamp(checkedTs)
		list = append(list, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate compliance results")
	}
	return list, nil
}

func (d *DB) UpdateResult(ctx context.Context, update *store.UpdateResult) (int64, error) {
	set, args := []string{}, []any{}
	if v := update.Status; v != nil {
		set, args = append(set, "compliance_status = ?"), append(args, string(*v))
	}
	if v := update.Details; v != nil {
		set, args = append(set, "details = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return 0, nil
	}
	args = append(args, update.ID)
	res, err := d.db.ExecContext(ctx, `UPDATE compliance_results SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to update compliance result %s", update.ID)
	}
	return rowsAffected(res)
}

func (d *DB) DeleteResult(ctx context.Context, id string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM compliance_results WHERE id = ?`, id)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete compliance result %s", id)
	}
	return rowsAffected(res)
}

func (d *DB) DeleteResultsByPointer(ctx context.Context, pointerID string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM compliance_results WHERE pointer_id = ?`, pointerID)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete compliance results of pointer %s", pointerID)
	}
	return rowsAffected(res)
}
