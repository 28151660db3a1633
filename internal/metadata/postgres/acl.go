package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/classroomlive/classroomd/internal/metadata"
)

func scanEdge(row pgx.Row) (*metadata.ProjectViewer, error) {
	var e metadata.ProjectViewer
	var perm int16
	if err := row.Scan(&e.ProjectID, &e.ViewerParticipantID, &perm); err != nil {
		return nil, mapPgError(err)
	}
	e.Permission = metadata.Permission(perm)
	return &e, nil
}

func (s *Store) GetEdge(ctx context.Context, viewerParticipantID, projectID int64) (*metadata.ProjectViewer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT project_id, viewer_participant_id, permission FROM project_viewers
		 WHERE project_id = $1 AND viewer_participant_id = $2`,
		projectID, viewerParticipantID)
	return scanEdge(row)
}

// SetPermission upserts the edge, returning the pre-write value so the
// caller can compute added/removed bits.
func (s *Store) SetPermission(ctx context.Context, projectID, viewerParticipantID int64, perm metadata.Permission) (metadata.Permission, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, mapPgError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var previous int16
	existed := true
	err = tx.QueryRow(ctx,
		`SELECT permission FROM project_viewers WHERE project_id = $1 AND viewer_participant_id = $2`,
		projectID, viewerParticipantID).Scan(&previous)
	if err == pgx.ErrNoRows {
		existed = false
		previous = 0
	} else if err != nil {
		return 0, false, mapPgError(err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO project_viewers (project_id, viewer_participant_id, permission)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (project_id, viewer_participant_id) DO UPDATE SET permission = EXCLUDED.permission`,
		projectID, viewerParticipantID, int16(perm))
	if err != nil {
		return 0, false, mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, mapPgError(err)
	}
	return metadata.Permission(previous), existed, nil
}

func (s *Store) AccessibleTo(ctx context.Context, viewerParticipantID int64) ([]metadata.ProjectViewer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT project_id, viewer_participant_id, permission FROM project_viewers WHERE viewer_participant_id = $1`,
		viewerParticipantID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []metadata.ProjectViewer
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) AccessedBy(ctx context.Context, projectID int64) ([]metadata.ProjectViewer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT project_id, viewer_participant_id, permission FROM project_viewers WHERE project_id = $1`,
		projectID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []metadata.ProjectViewer
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
