// Package rooms defines the named pub/sub topic lattice session
// memberships are tracked against. Room *names* are pure
// functions of (course, lesson, participant); room *membership* (which sid
// belongs to which room) lives in internal/session, since membership is a
// property of a session, not of a room.
package rooms

import "fmt"

// Type is one of the four room families.
type Type string

const (
	// Lesson is "all sessions in a lesson".
	Lesson Type = "LESSON"
	// PersonalPtc is a participant's own room, used to resolve "send to
	// participant P" (one membership per participant session).
	PersonalPtc Type = "PERSONAL_PTC"
	// SubsPtc membership means "I subscribe to P's stream"; P's
	// project-scoped events fan out to this room.
	SubsPtc Type = "SUBS_PTC"
	// WSMonitor is the admin-only observability mirror.
	WSMonitor Type = "WS_MONITOR"
)

// LessonRoom is "{c}:{l}".
func LessonRoom(courseID, lessonID int64) string {
	return fmt.Sprintf("%d:%d", courseID, lessonID)
}

// PersonalRoom is "{c}:{l}:{ptc}:self".
func PersonalRoom(courseID, lessonID, participantID int64) string {
	return fmt.Sprintf("%d:%d:%d:self", courseID, lessonID, participantID)
}

// SubsRoom is "{c}:{l}:{ptc}": subscribers to participant ptc's stream.
func SubsRoom(courseID, lessonID, participantID int64) string {
	return fmt.Sprintf("%d:%d:%d", courseID, lessonID, participantID)
}

// MonitorRoom is "admin:monitor:{c}:{l}".
func MonitorRoom(courseID, lessonID int64) string {
	return fmt.Sprintf("admin:monitor:%d:%d", courseID, lessonID)
}
