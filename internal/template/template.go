// Package template rehydrates a lesson's template archive into a new
// participant project, guarded by Project.TemplateApplied so it only ever
// runs once per project.
package template

import (
	"context"
	"fmt"

	"github.com/classroomlive/classroomd/internal/filestore"
	"github.com/classroomlive/classroomd/internal/keys"
	"github.com/classroomlive/classroomd/internal/metadata"
)

// Applier copies a lesson's template file tree into a participant's fresh
// project.
type Applier struct {
	files *filestore.Store
	store metadata.Store
}

// New builds an Applier.
func New(files *filestore.Store, store metadata.Store) *Applier {
	return &Applier{files: files, store: store}
}

// Apply copies every template entry into project's file list if the
// project hasn't already had its template applied, guarding the race
// between concurrent sessions entering the same lesson with
// MarkTemplateApplied's atomic flip. A lesson without a template archive
// key is a no-op (classrooms without a starter project are valid).
func (a *Applier) Apply(ctx context.Context, scope keys.Scope, lesson metadata.Lesson, project metadata.Project) error {
	if project.TemplateApplied {
		return nil
	}
	applied, err := a.store.MarkTemplateApplied(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("template: mark applied: %w", err)
	}
	if !applied {
		// Lost the race to another session initializing the same
		// project concurrently; the winner already applies the template.
		return nil
	}
	if lesson.TemplateArchiveKey == "" {
		return nil
	}

	templateOwner := filestore.Template(scope)
	entries, err := a.files.List(ctx, templateOwner, false)
	if err != nil {
		return fmt.Errorf("template: list template: %w", err)
	}
	if len(entries) == 0 {
		if err := a.files.Rehydrate(ctx, templateOwner); err != nil {
			return fmt.Errorf("template: rehydrate template archive: %w", err)
		}
		entries, err = a.files.List(ctx, templateOwner, false)
		if err != nil {
			return fmt.Errorf("template: list template after rehydrate: %w", err)
		}
	}

	participantOwner := filestore.Participant(scope, project.ParticipantID)
	for _, entry := range entries {
		if isDirMark(entry.Name) {
			continue
		}
		content, err := a.files.GetContent(ctx, templateOwner, entry.Name)
		if err != nil {
			return fmt.Errorf("template: read %q: %w", entry.Name, err)
		}
		if err := a.files.Import(ctx, participantOwner, entry.Name, content); err != nil {
			return fmt.Errorf("template: import %q: %w", entry.Name, err)
		}
	}
	return nil
}

func isDirMark(name string) bool {
	return len(name) >= len(keys.DirMark) && name[len(name)-len(keys.DirMark):] == keys.DirMark
}
