package repo

import (
	"context"
	"database/sql"

	"github.com/dusktreader/site-nine/internal/domain"
)

const reviewColumns = `id,type,status,task_id,title,description,artifact_path,requested_by,requested_at,reviewed_by,reviewed_at,outcome_reason`

func scanReview(row rowScanner) (domain.Review, error) {
	var rv domain.Review
	var taskID, desc, artifact, requestedBy, reviewedBy, reviewedAt, reason sql.NullString
	err := row.Scan(&rv.ID, &rv.Type, &rv.Status, &taskID, &rv.Title, &desc, &artifact, &requestedBy, &rv.RequestedAt,
		&reviewedBy, &reviewedAt, &reason)
	if err != nil {
		return rv, notFound(err)
	}
	rv.TaskID = stringPtr(taskID)
	rv.Description = desc.String
	rv.ArtifactPath = artifact.String
	rv.RequestedBy = stringPtr(requestedBy)
	rv.ReviewedBy = stringPtr(reviewedBy)
	rv.ReviewedAt = stringPtr(reviewedAt)
	rv.OutcomeReason = stringPtr(reason)
	return rv, nil
}

func (r Repo) InsertReviewTx(ctx context.Context, tx *sql.Tx, rv domain.Review) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO reviews(type,status,task_id,title,description,artifact_path,requested_by,requested_at) VALUES (?,?,?,?,?,?,?,?)`,
		rv.Type, rv.Status, nullableStringPtr(rv.TaskID), rv.Title, nullable(rv.Description), nullable(rv.ArtifactPath),
		nullableStringPtr(rv.RequestedBy), rv.RequestedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func getReview(ctx context.Context, q queryer, id int64) (domain.Review, error) {
	return scanReview(q.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id=?`, id))
}

func (r Repo) GetReview(ctx context.Context, id int64) (domain.Review, error) {
	return getReview(ctx, r.DB, id)
}

func (r Repo) GetReviewTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Review, error) {
	return getReview(ctx, tx, id)
}

// DecideReviewTx moves a pending review to status. It reports false and
// writes nothing when the review is no longer pending.
func (r Repo) DecideReviewTx(ctx context.Context, tx *sql.Tx, id int64, status domain.ReviewStatus, reviewer string, reason *string, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE reviews SET status=?, reviewed_by=?, reviewed_at=?, outcome_reason=? WHERE id=? AND status='pending'`,
		status, reviewer, ts, nullableStringPtr(reason), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type ReviewFilters struct {
	Status domain.ReviewStatus
	Type   domain.ReviewType
	TaskID string
}

func (r Repo) ListReviews(ctx context.Context, f ReviewFilters) ([]domain.Review, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+reviewColumns+` FROM reviews`+whereClause(clauses)+` ORDER BY requested_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rv)
	}
	return res, rows.Err()
}

// ListBlockedTasks joins tasks to the pending review each is blocked on.
func (r Repo) ListBlockedTasks(ctx context.Context) ([]domain.BlockedTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT t.id FROM tasks t JOIN reviews rv ON rv.id=t.blocks_on_review_id WHERE rv.status='pending' ORDER BY rv.requested_at, t.id`)
	if err != nil {
		return nil, err
	}
	var taskIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		taskIDs = append(taskIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res := make([]domain.BlockedTask, 0, len(taskIDs))
	for _, id := range taskIDs {
		t, err := r.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		rv, err := r.GetReview(ctx, *t.BlocksOnReviewID)
		if err != nil {
			return nil, err
		}
		res = append(res, domain.BlockedTask{Task: t, Review: rv})
	}
	return res, nil
}
