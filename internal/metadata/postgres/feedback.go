package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/classroomlive/classroomd/internal/metadata"
)

func (s *Store) CreateFeedback(ctx context.Context, codeRefID, authorParticipantID int64) (*metadata.Feedback, error) {
	var f metadata.Feedback
	err := s.pool.QueryRow(ctx,
		`INSERT INTO feedbacks (code_ref_id, author_participant_id) VALUES ($1, $2)
		 RETURNING id, code_ref_id, author_participant_id, resolved, created_at`,
		codeRefID, authorParticipantID).
		Scan(&f.ID, &f.CodeRefID, &f.AuthorParticipantID, &f.Resolved, &f.CreatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &f, nil
}

func (s *Store) GetFeedback(ctx context.Context, id int64) (*metadata.Feedback, error) {
	var f metadata.Feedback
	err := s.pool.QueryRow(ctx,
		`SELECT id, code_ref_id, author_participant_id, resolved, created_at FROM feedbacks WHERE id = $1`,
		id).Scan(&f.ID, &f.CodeRefID, &f.AuthorParticipantID, &f.Resolved, &f.CreatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &f, nil
}

func (s *Store) SetResolved(ctx context.Context, id int64, resolved bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE feedbacks SET resolved = $2 WHERE id = $1`, id, resolved)
	return mapPgError(err)
}

func (s *Store) GetFeedbackViewers(ctx context.Context, feedbackID int64) ([]metadata.FeedbackViewer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT feedback_id, participant_id, valid FROM feedback_viewers WHERE feedback_id = $1`,
		feedbackID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []metadata.FeedbackViewer
	for rows.Next() {
		var v metadata.FeedbackViewer
		if err := rows.Scan(&v.FeedbackID, &v.ParticipantID, &v.Valid); err != nil {
			return nil, mapPgError(err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetFeedbackViewers reconciles the ACL without ever deleting a row:
// existing rows not in the wanted set are invalidated, rows in the wanted
// set are inserted-or-revalidated, so a revoked-then-restored viewer keeps
// a single row.
func (s *Store) SetFeedbackViewers(ctx context.Context, feedbackID int64, wantParticipantIDs []int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPgError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	want := make(map[int64]bool, len(wantParticipantIDs))
	for _, id := range wantParticipantIDs {
		want[id] = true
	}

	rows, err := tx.Query(ctx, `SELECT participant_id, valid FROM feedback_viewers WHERE feedback_id = $1`, feedbackID)
	if err != nil {
		return mapPgError(err)
	}
	existing := map[int64]bool{}
	for rows.Next() {
		var pid int64
		var valid bool
		if err := rows.Scan(&pid, &valid); err != nil {
			rows.Close()
			return mapPgError(err)
		}
		existing[pid] = valid
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapPgError(err)
	}

	for pid := range want {
		if valid, ok := existing[pid]; ok {
			if !valid {
				if _, err := tx.Exec(ctx,
					`UPDATE feedback_viewers SET valid = TRUE WHERE feedback_id = $1 AND participant_id = $2`,
					feedbackID, pid); err != nil {
					return mapPgError(err)
				}
			}
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO feedback_viewers (feedback_id, participant_id, valid) VALUES ($1, $2, TRUE)`,
			feedbackID, pid); err != nil {
			return mapPgError(err)
		}
	}

	for pid, valid := range existing {
		if !want[pid] && valid {
			if _, err := tx.Exec(ctx,
				`UPDATE feedback_viewers SET valid = FALSE WHERE feedback_id = $1 AND participant_id = $2`,
				feedbackID, pid); err != nil {
				return mapPgError(err)
			}
		}
	}

	return mapPgError(tx.Commit(ctx))
}

func rowToComment(r commentRow) *metadata.Comment {
	return &metadata.Comment{
		ID: r.ID, FeedbackID: r.FeedbackID, AuthorParticipantID: r.AuthorParticipantID,
		Content: r.Content, Deleted: r.Deleted, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) CreateComment(ctx context.Context, feedbackID, authorParticipantID int64, content string) (*metadata.Comment, error) {
	row := commentRow{FeedbackID: feedbackID, AuthorParticipantID: authorParticipantID, Content: content}
	if err := s.gdb.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, mapPgError(err)
	}
	return rowToComment(row), nil
}

func (s *Store) GetComment(ctx context.Context, id int64) (*metadata.Comment, error) {
	var row commentRow
	if err := s.gdb.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, mapPgError(err)
	}
	return rowToComment(row), nil
}

func (s *Store) UpdateComment(ctx context.Context, id int64, content string) (*metadata.Comment, error) {
	res := s.gdb.WithContext(ctx).Model(&commentRow{}).Where("id = ?", id).
		Updates(map[string]any{"content": content, "updated_at": gorm.Expr("now()")})
	if res.Error != nil {
		return nil, mapPgError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, metadata.ErrNotFound
	}
	return s.GetComment(ctx, id)
}

func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	res := s.gdb.WithContext(ctx).Model(&commentRow{}).Where("id = ?", id).Update("deleted", true)
	if res.Error != nil {
		return mapPgError(res.Error)
	}
	if res.RowsAffected == 0 {
		return metadata.ErrNotFound
	}
	return nil
}

// ListLessonFeedback rolls up every feedback thread for a lesson,
// optionally filtered to one owner project and file (FEEDBACK_LIST's
// optional ownerId/file), decorated with its code reference and comments.
func (s *Store) ListLessonFeedback(ctx context.Context, lessonID int64, ownerProjectID *int64, file *string) ([]metadata.FeedbackThread, error) {
	query := `
		SELECT f.id, f.code_ref_id, f.author_participant_id, f.resolved, f.created_at,
		       cr.id, cr.project_id, cr.file, cr.line, cr.deleted
		FROM feedbacks f
		JOIN code_references cr ON cr.id = f.code_ref_id
		JOIN projects p ON p.id = cr.project_id
		WHERE p.lesson_id = $1
		  AND ($2::bigint IS NULL OR cr.project_id = $2)
		  AND ($3::text IS NULL OR cr.file = $3)
		ORDER BY f.created_at ASC`

	rows, err := s.pool.Query(ctx, query, lessonID, ownerProjectID, file)
	if err != nil {
		return nil, mapPgError(err)
	}
	var threads []metadata.FeedbackThread
	for rows.Next() {
		var t metadata.FeedbackThread
		if err := rows.Scan(
			&t.Feedback.ID, &t.Feedback.CodeRefID, &t.Feedback.AuthorParticipantID, &t.Feedback.Resolved, &t.Feedback.CreatedAt,
			&t.Ref.ID, &t.Ref.ProjectID, &t.Ref.File, &t.Ref.Line, &t.Ref.Deleted,
		); err != nil {
			rows.Close()
			return nil, mapPgError(err)
		}
		threads = append(threads, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}

	for i := range threads {
		var commentRows []commentRow
		if err := s.gdb.WithContext(ctx).
			Where("feedback_id = ?", threads[i].Feedback.ID).
			Order("created_at ASC").
			Find(&commentRows).Error; err != nil {
			return nil, mapPgError(err)
		}
		for _, r := range commentRows {
			threads[i].Comments = append(threads[i].Comments, *rowToComment(r))
		}
	}

	return threads, nil
}
