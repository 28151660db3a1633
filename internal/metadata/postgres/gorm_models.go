package postgres

import "time"

// gorm-mapped row types for the lower-traffic tables. Conversion to/from
// internal/metadata's exported domain structs happens at each method's
// boundary so the rest of the codebase never imports gorm tags.

type lessonRow struct {
	ID                 int64  `gorm:"column:id;primaryKey"`
	CourseID           int64  `gorm:"column:course_id"`
	TemplateArchiveKey string `gorm:"column:template_archive_key"`
}

func (lessonRow) TableName() string { return "lessons" }

type codeReferenceRow struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	ProjectID int64  `gorm:"column:project_id"`
	File      string `gorm:"column:file"`
	Line      string `gorm:"column:line"`
	Deleted   bool   `gorm:"column:deleted"`
}

func (codeReferenceRow) TableName() string { return "code_references" }

type commentRow struct {
	ID                  int64     `gorm:"column:id;primaryKey"`
	FeedbackID          int64     `gorm:"column:feedback_id"`
	AuthorParticipantID int64     `gorm:"column:author_participant_id"`
	Content             string    `gorm:"column:content"`
	Deleted             bool      `gorm:"column:deleted"`
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (commentRow) TableName() string { return "comments" }
