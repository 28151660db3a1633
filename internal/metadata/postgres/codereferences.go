package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/classroomlive/classroomd/internal/metadata"
)

func rowToCodeReference(r codeReferenceRow) *metadata.CodeReference {
	return &metadata.CodeReference{ID: r.ID, ProjectID: r.ProjectID, File: r.File, Line: r.Line, Deleted: r.Deleted}
}

func (s *Store) FindOrCreateCodeReference(ctx context.Context, projectID int64, file, line string) (*metadata.CodeReference, error) {
	var row codeReferenceRow
	err := s.gdb.WithContext(ctx).
		Where("project_id = ? AND file = ? AND line = ?", projectID, file, line).
		First(&row).Error
	if err == nil {
		return rowToCodeReference(row), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mapPgError(err)
	}

	row = codeReferenceRow{ProjectID: projectID, File: file, Line: line}
	if err := s.gdb.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, mapPgError(err)
	}
	return rowToCodeReference(row), nil
}

func (s *Store) GetCodeReference(ctx context.Context, id int64) (*metadata.CodeReference, error) {
	var row codeReferenceRow
	if err := s.gdb.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, mapPgError(err)
	}
	return rowToCodeReference(row), nil
}

// RewriteFilePrefix updates both the exact match (file rename) and the
// "oldPath/..." nested matches (directory rename) in one statement.
func (s *Store) RewriteFilePrefix(ctx context.Context, projectID int64, oldPath, newPath string) error {
	nestedOld := oldPath + "/"
	nestedNew := newPath + "/"
	return s.gdb.WithContext(ctx).Exec(`
		UPDATE code_references SET file = CASE
			WHEN file = @old THEN @new
			ELSE @newNested || substr(file, length(@oldNested) + 1)
		END
		WHERE project_id = @project AND (file = @old OR file LIKE @oldNestedPattern)`,
		map[string]any{
			"old":              oldPath,
			"new":              newPath,
			"oldNested":        nestedOld,
			"newNested":        nestedNew,
			"oldNestedPattern": nestedOld + "%",
			"project":          projectID,
		}).Error
}

func (s *Store) MarkDeletedByPrefix(ctx context.Context, projectID int64, pathPrefix string) error {
	nested := pathPrefix + "/%"
	return s.gdb.WithContext(ctx).
		Model(&codeReferenceRow{}).
		Where("project_id = ? AND (file = ? OR file LIKE ?)", projectID, pathPrefix, nested).
		Update("deleted", true).Error
}
