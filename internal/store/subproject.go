package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gantry-io/gantry/internal/model"
)

func (q queries) InsertSubproject(ctx context.Context, projectID int64, number int, name string, isDefault bool) (*model.Subproject, error) {
	sp := &model.Subproject{
		ProjectID: projectID,
		Number:    number,
		Name:      name,
		IsDefault: isDefault,
		CreatedAt: time.Now().UTC(),
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO subprojects (project_id, number, name, is_default, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sp.ProjectID, sp.Number, sp.Name, sp.IsDefault, sp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert subproject: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert subproject id: %w", err)
	}
	sp.ID = id
	return sp, nil
}

// NextSubprojectNumber returns the next sequential number within a project.
func (q queries) NextSubprojectNumber(ctx context.Context, projectID int64) (int, error) {
	var next int
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) + 1 FROM subprojects WHERE project_id = ?`,
		projectID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next subproject number for %d: %w", projectID, err)
	}
	return next, nil
}

// GetSubproject returns nil when the sub-project does not exist.
func (q queries) GetSubproject(ctx context.Context, id int64) (*model.Subproject, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, project_id, number, name, is_default, created_at
		FROM subprojects WHERE id = ?`, id)
	sp, err := scanSubproject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subproject %d: %w", id, err)
	}
	return sp, nil
}

func (q queries) ListSubprojects(ctx context.Context, projectID int64) ([]model.Subproject, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, project_id, number, name, is_default, created_at
		FROM subprojects WHERE project_id = ? ORDER BY number`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list subprojects of %d: %w", projectID, err)
	}
	defer rows.Close()

	var sps []model.Subproject
	for rows.Next() {
		sp, err := scanSubproject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subproject: %w", err)
		}
		sps = append(sps, *sp)
	}
	return sps, rows.Err()
}

func (q queries) RenameSubproject(ctx context.Context, id int64, name string) error {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE subprojects SET name = ? WHERE id = ?`, name, id); err != nil {
		return fmt.Errorf("rename subproject %d: %w", id, err)
	}
	return nil
}

func (q queries) DeleteSubproject(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM subprojects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete subproject %d: %w", id, err)
	}
	return nil
}

// SubprojectHasOpenTasks is the is_active derivation: any task in the
// sub-project whose status is open.
func (q queries) SubprojectHasOpenTasks(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tasks
			WHERE subproject_id = ? AND status NOT IN (?, ?))`,
		id, model.StatusDone, model.StatusNotNeeded).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("subproject %d open tasks: %w", id, err)
	}
	return exists, nil
}

func scanSubproject(row rowScanner) (*model.Subproject, error) {
	var sp model.Subproject
	err := row.Scan(&sp.ID, &sp.ProjectID, &sp.Number, &sp.Name, &sp.IsDefault, &sp.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sp, nil
}
