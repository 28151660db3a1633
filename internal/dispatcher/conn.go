package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/classroomlive/classroomd/internal/authclient"
	"github.com/classroomlive/classroomd/internal/rooms"
	"github.com/classroomlive/classroomd/internal/session"
	"github.com/google/uuid"
)

func roomChannel(t rooms.Type, name string) string {
	return string(t) + "|" + name
}

// Conn is one live connection: its session state plus the set of local
// pub/sub subscriptions currently forwarding room traffic to it. The
// transport (internal/transport's websocket handler) owns the socket and
// calls HandleFrame per inbound message and reads Outbound for what to
// write back.
type Conn struct {
	dispatcher *Dispatcher
	Session    *session.Session
	Outbound   chan Frame

	mu     sync.Mutex
	subs   map[string]func()
	closed bool
}

// Dispatcher wires a Conn's handlers to shared subsystems.
type Dispatcher struct {
	Env *Env

	mu    sync.Mutex
	conns map[string]*Conn // sid -> live Conn on this instance, for RunEvictionListener
}

// New builds a Dispatcher over env.
func New(env *Env) *Dispatcher {
	return &Dispatcher{Env: env, conns: make(map[string]*Conn)}
}

// Connect registers a new session and returns its Conn. principal is the
// zero value for admin/monitor connections (isAdmin true).
func (d *Dispatcher) Connect(principal authclient.Principal, isAdmin bool) *Conn {
	sid := uuid.NewString()
	sess := d.Env.Sessions.Create(sid, principal)
	sess.IsAdmin = isAdmin
	conn := &Conn{
		dispatcher: d,
		Session:    sess,
		Outbound:   make(chan Frame, 64),
		subs:       make(map[string]func()),
	}
	d.mu.Lock()
	d.conns[sid] = conn
	d.mu.Unlock()
	d.Env.Metrics.SessionConnected()
	return conn
}

// connFor returns the live Conn for sid on this instance, or nil.
func (d *Dispatcher) connFor(sid string) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[sid]
}

// Disconnect unwinds every subscription and removes the session, emitting
// PARTICIPANT_STATUS{active:false} to the lesson if the session had
// joined one. The changed-flag check on SetActive keeps the broadcast to
// exactly once even with several sessions per participant.
func (c *Conn) Disconnect(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, cancel := range c.subs {
		cancel()
	}
	c.subs = nil
	close(c.Outbound)
	c.mu.Unlock()

	c.dispatcher.mu.Lock()
	delete(c.dispatcher.conns, c.Session.SID)
	c.dispatcher.mu.Unlock()
	c.dispatcher.Env.Metrics.SessionDisconnected()

	sess := c.dispatcher.Env.Sessions.Remove(c.Session.SID)
	if sess == nil || !sess.InLesson {
		return
	}

	changed, err := c.dispatcher.Env.Store.SetActive(ctx, sess.ParticipantID, false)
	if err != nil || !changed {
		return
	}
	payload, _ := json.Marshal(map[string]any{"id": sess.ParticipantID, "active": false})
	lesson := rooms.LessonRoom(sess.CourseID, sess.LessonID)
	_ = c.dispatcher.Env.KV.Publish(ctx, roomChannel(rooms.Lesson, lesson), mustFrame("PARTICIPANT_STATUS", payload))
}

func mustFrame(event string, payload json.RawMessage) []byte {
	b, _ := json.Marshal(Frame{Event: event, Data: payload})
	return b
}

// EnterRoom joins (t,name), subscribing this connection to the room's
// local pub/sub channel if not already subscribed, and tearing down any
// channel evicted as a side effect of a capacity limit.
func (c *Conn) EnterRoom(t rooms.Type, name string, limit int) {
	evicted := c.dispatcher.Env.Sessions.EnterRoom(c.Session.SID, t, name, limit)
	c.subscribe(t, name)
	for _, evictedName := range evicted {
		c.unsubscribe(t, evictedName)
	}
}

// ExitRoom leaves (t,name).
func (c *Conn) ExitRoom(t rooms.Type, name string) {
	c.dispatcher.Env.Sessions.ExitRoom(c.Session.SID, t, name)
	c.unsubscribe(t, name)
}

func (c *Conn) subscribe(t rooms.Type, name string) {
	channel := roomChannel(t, name)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.subs[channel]; ok {
		c.mu.Unlock()
		return
	}
	ch, cancel := c.dispatcher.Env.KV.Subscribe(channel)
	c.subs[channel] = cancel
	c.mu.Unlock()

	go c.forward(ch)
}

func (c *Conn) unsubscribe(t rooms.Type, name string) {
	channel := roomChannel(t, name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.subs[channel]; ok {
		cancel()
		delete(c.subs, channel)
	}
}

func (c *Conn) forward(ch <-chan []byte) {
	for payload := range ch {
		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		select {
		case c.Outbound <- frame:
		default:
			// Slow consumer: drop rather than block every publisher.
		}
	}
}

// emitToCaller enqueues frame on this connection's Outbound queue only,
// without publishing it to any room (e.g. FILE_READ's response goes to
// the caller only). A closed connection, or a full queue, drops it.
func (c *Conn) emitToCaller(frame Frame) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	select {
	case c.Outbound <- frame:
	default:
	}
}

// Emit publishes event/payload to every room in refs, for handlers that
// need to send a second, differently-shaped broadcast alongside their
// primary Result (e.g. INIT_LESSON's PARTICIPANT_STATUS to the lesson
// room, distinct from its ack to the caller).
func (c *Conn) Emit(ctx context.Context, refs []RoomRef, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispatcher: marshal emit payload: %w", err)
	}
	return c.fanOut(ctx, refs, Frame{Event: event, Data: body})
}

// fanOut publishes frame to every room ref through the KV store's
// pub/sub, which reaches local and remote subscribers alike.
func (c *Conn) fanOut(ctx context.Context, refs []RoomRef, frame Frame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("dispatcher: marshal fan-out frame: %w", err)
	}
	for _, ref := range refs {
		if err := c.dispatcher.Env.KV.Publish(ctx, roomChannel(ref.Type, ref.Name), body); err != nil {
			return fmt.Errorf("dispatcher: publish to %s/%s: %w", ref.Type, ref.Name, err)
		}
		c.dispatcher.Env.Metrics.FanOut(string(ref.Type))
	}
	return nil
}
