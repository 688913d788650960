package sqlite

import (
	"context"
	"fmt"

	"github.com/garnizeh/experts/pkg/models"
)

func (r *SQLiteRepo) CreateQuestion(ctx context.Context, q *models.Question) (int64, error) {
	if q == nil {
		return 0, fmt.Errorf("question is nil")
	}

	res, err := r.conn.Exec(ctx, `INSERT INTO posts_questions (id, title, owner_user_id, tags) VALUES (?, ?, ?, ?)`, nullableID(q.ID), q.Title, q.OwnerUserID, q.Tags)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) CreateAnswer(ctx context.Context, a *models.Answer) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("answer is nil")
	}

	res, err := r.conn.Exec(ctx, `INSERT INTO posts_answers (id, body, owner_user_id, parent_id) VALUES (?, ?, ?, ?)`, nullableID(a.ID), a.Body, a.OwnerUserID, a.ParentID)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

// CountPosts returns the number of rows in both posts tables.
func (r *SQLiteRepo) CountPosts(ctx context.Context) (int64, int64, error) {
	var questions, answers int64
	row := r.conn.QueryRow(ctx, `SELECT (SELECT COUNT(*) FROM posts_questions), (SELECT COUNT(*) FROM posts_answers)`)
	if err := row.Scan(&questions, &answers); err != nil {
		return 0, 0, err
	}
	return questions, answers, nil
}

// nullableID lets SQLite assign the rowid when the caller leaves ID at zero.
func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
