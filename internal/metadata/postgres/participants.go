package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/classroomlive/classroomd/internal/metadata"
)

func scanParticipant(row pgx.Row) (*metadata.Participant, error) {
	var p metadata.Participant
	var role string
	if err := row.Scan(&p.ID, &p.CourseID, &p.UserID, &role, &p.Nickname, &p.Active); err != nil {
		return nil, mapPgError(err)
	}
	p.Role = metadata.Role(role)
	return &p, nil
}

const participantColumns = "id, course_id, user_id, role, nickname, active"

func (s *Store) GetParticipant(ctx context.Context, id int64) (*metadata.Participant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	return scanParticipant(row)
}

func (s *Store) GetParticipantByUser(ctx context.Context, courseID, userID int64) (*metadata.Participant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE course_id = $1 AND user_id = $2`,
		courseID, userID)
	return scanParticipant(row)
}

func (s *Store) ListParticipants(ctx context.Context, courseID int64) ([]*metadata.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE course_id = $1 ORDER BY role DESC, id ASC`,
		courseID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []*metadata.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SetActive(ctx context.Context, id int64, active bool) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE participants SET active = $2 WHERE id = $1 AND active != $2`, id, active)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}
