// Package keys derives deterministic KV and object-store keys from
// (course, lesson, participant, filename) coordinates. Every function here
// is pure: given the same inputs it always returns the same key, with no
// I/O and no dependency on the KV or object-store clients themselves.
package keys

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
)

// DirMark is the sentinel file-list member that records a directory's
// presence: a directory D exists iff "D/.dirmark" is in the file list.
const DirMark = ".dirmark"

// EncodeFilename URL-quotes then base64-encodes a filename for storage as a
// file-list sorted-set member. The encoding is purely mechanical and carries
// no semantic meaning; DecodeFilename exactly inverts it for any Unicode
// input.
func EncodeFilename(name string) string {
	quoted := url.QueryEscape(name)
	return base64.URLEncoding.EncodeToString([]byte(quoted))
}

// DecodeFilename inverts EncodeFilename.
func DecodeFilename(encoded string) (string, error) {
	quoted, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode filename: %w", err)
	}
	name, err := url.QueryUnescape(string(quoted))
	if err != nil {
		return "", fmt.Errorf("decode filename: %w", err)
	}
	return name, nil
}

// contentDigest returns the md5 hex digest of an already-encoded filename,
// used inside the content key templates below. md5 is used here purely as a
// fixed-length key-shortener, not for any cryptographic property.
func contentDigest(encodedFilename string) string {
	sum := md5.Sum([]byte(encodedFilename)) //nolint:gosec // non-cryptographic key shortener
	return hex.EncodeToString(sum[:])
}

// Scope carries the (courseId, lessonId) coordinates every KV key in §4.E is
// prefixed with.
type Scope struct {
	CourseID int64
	LessonID int64
}

func (s Scope) prefix() string {
	return fmt.Sprintf("crs:%d:%d:", s.CourseID, s.LessonID)
}

// TemplateFileList is the lesson's template archive's file-list sorted set.
func (s Scope) TemplateFileList() string {
	return s.prefix() + "template:files"
}

// TemplateFileContent is the content key for one encoded filename in the
// template archive.
func (s Scope) TemplateFileContent(encodedFilename string) string {
	return s.prefix() + "template:files:" + contentDigest(encodedFilename)
}

// ParticipantFileList is a participant's project file-list sorted set.
func (s Scope) ParticipantFileList(participantID int64) string {
	return fmt.Sprintf("%s%d:files", s.prefix(), participantID)
}

// ParticipantFileContent is the content key for one encoded filename in a
// participant's project.
func (s Scope) ParticipantFileContent(participantID int64, encodedFilename string) string {
	return fmt.Sprintf("%s%d:files:%s", s.prefix(), participantID, contentDigest(encodedFilename))
}

// ParticipantSize is the running total-size counter for a participant's
// project, kept equal to the sum of the file-list scores.
func (s Scope) ParticipantSize(participantID int64) string {
	return fmt.Sprintf("%s%d:size", s.prefix(), participantID)
}

// ParticipantCursorHash is the viewer's "last cursor" hash; fields are
// CursorField(ownerID, filename).
func (s Scope) ParticipantCursorHash(viewerParticipantID int64) string {
	return fmt.Sprintf("%s%d:csr:last", s.prefix(), viewerParticipantID)
}

// CursorField derives the hash field for a (owner, filename) pair. No
// delimiter escaping is applied: filenames containing "." are accepted as
// is, and since the owner id is an integer the first "." still separates
// it from the filename.
func CursorField(ownerParticipantID int64, filename string) string {
	return fmt.Sprintf("%d.%s", ownerParticipantID, filename)
}

// TemplateArchiveObjectKey is the object-store key for a lesson's template
// zip archive.
func (s Scope) TemplateArchiveObjectKey() string {
	return fmt.Sprintf("/course/%d/%d/template.zip", s.CourseID, s.LessonID)
}

// ProjectArchiveObjectKey is the object-store key for a participant's full
// project archive, written on project export / read as a rehydration
// source when the project's file-list is missing entirely.
func (s Scope) ProjectArchiveObjectKey(participantID int64) string {
	return fmt.Sprintf("/course/%d/%d/project/%d.zip", s.CourseID, s.LessonID, participantID)
}

// BulkFileObjectKey is the object-store key for one oversized file stored
// in the cold tier, referenced from the hot tier's content key.
func (s Scope) BulkFileObjectKey(participantID int64, encodedFilename string) string {
	return fmt.Sprintf("/course/%d/%d/bulk/%d/%s", s.CourseID, s.LessonID, participantID, encodedFilename)
}
