package postgres

import (
	"context"

	"github.com/classroomlive/classroomd/internal/metadata"
)

func (s *Store) GetLesson(ctx context.Context, id int64) (*metadata.Lesson, error) {
	var row lessonRow
	if err := s.gdb.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, mapPgError(err)
	}
	return &metadata.Lesson{
		ID:                 row.ID,
		CourseID:           row.CourseID,
		TemplateArchiveKey: row.TemplateArchiveKey,
	}, nil
}
