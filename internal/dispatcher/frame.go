// Package dispatcher handles connect/disconnect, event demultiplexing,
// validation, authorization, and cross-instance fan-out: a static map from
// verb to a descriptor carrying its handler and auth metadata, built once
// at registration time rather than a reflective switch.
package dispatcher

import (
	"encoding/json"
	"errors"
)

// Frame is the wire envelope every inbound and outbound message uses:
// {event, data?, uuid?}. uuid, when present, is echoed on correlated
// responses.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	UUID  string          `json:"uuid,omitempty"`
}

// ErrorPayload is the body of an ERROR frame.
type ErrorPayload struct {
	Error any `json:"error"`
}

// Kind is one of the named error kinds clients match on.
type Kind string

const (
	KindMissingField         Kind = "MISSING_FIELD"
	KindNotInLesson          Kind = "NOT_IN_LESSON"
	KindAccessCourseFail     Kind = "ACCESS_COURSE_FAIL"
	KindParticipantNotFound  Kind = "PARTICIPANT_NOT_FOUND"
	KindProjectNotFound      Kind = "PROJECT_NOT_FOUND"
	KindForbiddenProject     Kind = "FORBIDDEN_PROJECT"
	KindFileExists           Kind = "FILE_EXISTS"
	KindFileNotFound         Kind = "FILE_NOT_FOUND"
	KindProjectFileMissing   Kind = "PROJECT_FILE_MISSING"
	KindTotalSizeExceeded    Kind = "TOTAL_SIZE_EXCEEDED"
	KindFeedbackNotFound     Kind = "FEEDBACK_NOT_FOUND"
	KindFeedbackNotAuth      Kind = "FEEDBACK_NOT_AUTH"
	KindGeneric              Kind = "INTERNAL_ERROR"
)

// Error carries a Kind through a handler so toErrorFrame can translate it
// without string matching. Handlers construct one with NewError; anything
// else returned from a handler is treated as an unknown failure, logged
// and surfaced generically.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// NewError builds a dispatcher Error of kind with msg as its server-side
// message; the client sees only the kind (see toErrorFrame).
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// AsError reports whether err (or anything it wraps) is a dispatcher
// Error, mirroring errors.As for the common call site in handlers.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// toErrorFrame translates a handler failure into the ERROR frame to emit
// to the caller only, under the event name ERROR and echoing the original
// uuid for correlation.
// The error string is the Kind itself, the stable identifier clients match
// on; the human-readable message stays server-side in the logs.
func toErrorFrame(event, uuid string, err error) Frame {
	kind := KindGeneric
	if de, ok := AsError(err); ok {
		kind = de.Kind
	}
	payload, _ := json.Marshal(ErrorPayload{Error: string(kind)})
	return Frame{Event: "ERROR", Data: payload, UUID: uuid}
}
