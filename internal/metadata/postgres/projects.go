package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/classroomlive/classroomd/internal/metadata"
)

const projectColumns = "id, lesson_id, participant_id, recent_activity_at, active, template_applied"

func scanProject(row pgx.Row) (*metadata.Project, error) {
	var p metadata.Project
	if err := row.Scan(&p.ID, &p.LessonID, &p.ParticipantID, &p.RecentActivityAt, &p.Active, &p.TemplateApplied); err != nil {
		return nil, mapPgError(err)
	}
	return &p, nil
}

func (s *Store) GetProject(ctx context.Context, lessonID, participantID int64) (*metadata.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE lesson_id = $1 AND participant_id = $2`,
		lessonID, participantID)
	return scanProject(row)
}

func (s *Store) GetProjectByID(ctx context.Context, id int64) (*metadata.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

// CreateProject lazily creates a project, tolerating a race between two
// sessions entering the same lesson simultaneously via ON CONFLICT DO
// NOTHING followed by a re-select; at most one row ever exists per
// (lesson, participant).
func (s *Store) CreateProject(ctx context.Context, lessonID, participantID int64) (*metadata.Project, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (lesson_id, participant_id) VALUES ($1, $2)
		 ON CONFLICT (lesson_id, participant_id) DO NOTHING`,
		lessonID, participantID)
	if err != nil {
		return nil, mapPgError(err)
	}
	return s.GetProject(ctx, lessonID, participantID)
}

func (s *Store) MarkTemplateApplied(ctx context.Context, projectID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET template_applied = TRUE WHERE id = $1 AND template_applied = FALSE`,
		projectID)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) TouchActivity(ctx context.Context, projectID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE projects SET recent_activity_at = now() WHERE id = $1`, projectID)
	return mapPgError(err)
}
