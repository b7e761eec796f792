package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gantry-io/gantry/internal/model"
)

func (q queries) InsertProject(ctx context.Context, name string) (*model.Project, error) {
	p := &model.Project{Name: name, CreatedAt: time.Now().UTC()}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO projects (name, created_at) VALUES (?, ?)`, p.Name, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert project id: %w", err)
	}
	p.ID = id
	return p, nil
}

// GetProject returns nil when the project does not exist.
func (q queries) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	var p model.Project
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return &p, nil
}

// DeleteProject removes the project; sub-projects, tasks, edges, comments,
// and events cascade.
func (q queries) DeleteProject(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete project %d: %w", id, err)
	}
	return nil
}

func (q queries) InsertAuthor(ctx context.Context, name string) (*model.Author, error) {
	a := &model.Author{Name: name, CreatedAt: time.Now().UTC()}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO authors (name, created_at) VALUES (?, ?)`, a.Name, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert author: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert author id: %w", err)
	}
	a.ID = id
	return a, nil
}

// GetAuthor returns nil when the author does not exist.
func (q queries) GetAuthor(ctx context.Context, id int64) (*model.Author, error) {
	var a model.Author
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM authors WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get author %d: %w", id, err)
	}
	return &a, nil
}

func (q queries) InsertComment(ctx context.Context, c *model.Comment) error {
	c.CreatedAt = time.Now().UTC()
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO comments (task_id, author_id, body, created_at) VALUES (?, ?, ?, ?)`,
		c.TaskID, c.AuthorID, c.Body, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert comment id: %w", err)
	}
	c.ID = id
	return nil
}

func (q queries) ListComments(ctx context.Context, taskID int64) ([]model.Comment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, task_id, author_id, body, created_at
		FROM comments WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments of %d: %w", taskID, err)
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		var author sql.NullInt64
		if err := rows.Scan(&c.ID, &c.TaskID, &author, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.AuthorID = nullableInt(author)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
