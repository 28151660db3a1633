package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/classroomlive/classroomd/internal/rooms"
	"github.com/classroomlive/classroomd/internal/telemetry"
)

// HandleFrame demultiplexes one inbound frame: it validates required
// fields, the in-lesson/admin preconditions, invokes the registered
// handler, and relays the result (or an ERROR frame) to the recipient set,
// echoing uuid throughout for client correlation.
//
// Per-session inbound frames must be processed in the order the transport
// delivers them to HandleFrame; the transport is responsible for that
// serialization.
func (c *Conn) HandleFrame(ctx context.Context, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.emitToCaller(toErrorFrame("", "", NewError(KindMissingField, "malformed frame")))
		return
	}

	desc, ok := lookup(frame.Event)
	if !ok {
		c.emitError(frame, NewError(KindGeneric, "unknown event"))
		return
	}

	ctx, span := telemetry.StartSpan(ctx, "dispatch."+frame.Event)
	defer span.End()
	telemetry.SetAttributes(ctx,
		telemetry.Event(frame.Event),
		telemetry.SessionID(c.Session.SID),
	)

	start := time.Now()
	if err := c.authorize(desc, frame.Data); err != nil {
		c.emitError(frame, err)
		return
	}

	result, err := desc.Handle(ctx, c.dispatcher.Env, c, frame.Data)
	if err != nil {
		telemetry.RecordError(ctx, err)
		c.logUnknown(desc.Name, err)
		c.emitError(frame, err)
		return
	}
	c.dispatcher.Env.Metrics.FrameDispatched(frame.Event, time.Since(start))
	if result == nil {
		return
	}

	c.relay(ctx, frame, result)
}

func (c *Conn) emitError(frame Frame, err error) {
	kind := KindGeneric
	if de, ok := AsError(err); ok {
		kind = de.Kind
	}
	c.dispatcher.Env.Metrics.FrameError(frame.Event, string(kind))
	c.emitToCaller(toErrorFrame(frame.Event, frame.UUID, err))
}

func (c *Conn) authorize(desc *Descriptor, data json.RawMessage) error {
	if err := validateRequired(desc.Required, data); err != nil {
		return err
	}
	if desc.NeedsAdmin && !c.Session.IsAdmin {
		return NewError(KindForbiddenProject, "admin session required")
	}
	if desc.NeedsInLesson && !c.Session.InLesson {
		return NewError(KindNotInLesson, "INIT_LESSON required first")
	}
	return nil
}

// logUnknown logs handler failures that are not a recognized dispatcher
// Error at warn level.
func (c *Conn) logUnknown(event string, err error) {
	if _, ok := AsError(err); ok {
		return
	}
	if c.dispatcher.Env.Log != nil {
		c.dispatcher.Env.Log.Warn("dispatcher: handler failure", "event", event, "error", err)
	}
}

func (c *Conn) relay(ctx context.Context, frame Frame, result *Result) {
	event := result.Event
	if event == "" {
		event = frame.Event
	}
	payload, err := json.Marshal(result.Payload)
	if err != nil {
		c.logUnknown(frame.Event, err)
		return
	}
	out := Frame{Event: event, Data: payload, UUID: frame.UUID}

	if !result.NoCallerEcho {
		c.emitToCaller(out)
	}
	if len(result.FanOut) > 0 {
		if err := c.fanOut(ctx, result.FanOut, out); err != nil {
			c.logUnknown(frame.Event, err)
		}
	}
	c.mirrorToMonitor(ctx, out)
}

// monitorEnvelope is the stamped frame the monitor mirror wraps emit in:
// a server timestamp and the originating session id, alongside the
// original frame.
type monitorEnvelope struct {
	Frame
	ServerTS int64  `json:"serverTs"`
	SID      string `json:"sid"`
}

// mirrorToMonitor republishes frame to the lesson's WS_MONITOR room,
// stamped with a server timestamp and originating sid. A no-op for
// sessions not yet bound to a lesson, and for monitor sessions themselves
// (they have nothing to mirror into their own feed).
func (c *Conn) mirrorToMonitor(ctx context.Context, frame Frame) {
	if !c.Session.InLesson || c.Session.IsAdmin {
		return
	}
	body, err := json.Marshal(monitorEnvelope{Frame: frame, ServerTS: time.Now().UnixMilli(), SID: c.Session.SID})
	if err != nil {
		return
	}
	monitor := rooms.MonitorRoom(c.Session.CourseID, c.Session.LessonID)
	_ = c.dispatcher.Env.KV.Publish(ctx, roomChannel(rooms.WSMonitor, monitor), body)
}
