package filestore

import "github.com/classroomlive/classroomd/internal/keys"

// Owner identifies the file-list/content key family an operation targets:
// either a lesson's template (ParticipantID == 0) or one participant's
// project. Unifying the two lets List/Create/Delete/Rename/GetContent
// share one implementation.
type Owner struct {
	Scope         keys.Scope
	ParticipantID int64 // 0 selects the lesson template
}

// Template returns the Owner for a lesson's template archive.
func Template(scope keys.Scope) Owner { return Owner{Scope: scope} }

// Participant returns the Owner for one participant's project.
func Participant(scope keys.Scope, participantID int64) Owner {
	return Owner{Scope: scope, ParticipantID: participantID}
}

func (o Owner) isTemplate() bool { return o.ParticipantID == 0 }

func (o Owner) fileListKey() string {
	if o.isTemplate() {
		return o.Scope.TemplateFileList()
	}
	return o.Scope.ParticipantFileList(o.ParticipantID)
}

func (o Owner) contentKey(encodedFilename string) string {
	if o.isTemplate() {
		return o.Scope.TemplateFileContent(encodedFilename)
	}
	return o.Scope.ParticipantFileContent(o.ParticipantID, encodedFilename)
}

func (o Owner) sizeKey() string {
	return o.Scope.ParticipantSize(o.ParticipantID)
}

func (o Owner) bulkObjectKey(encodedFilename string) string {
	return o.Scope.BulkFileObjectKey(o.ParticipantID, encodedFilename)
}

func (o Owner) archiveObjectKey() string {
	if o.isTemplate() {
		return o.Scope.TemplateArchiveObjectKey()
	}
	return o.Scope.ProjectArchiveObjectKey(o.ParticipantID)
}
