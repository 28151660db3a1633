package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/classroomlive/classroomd/internal/rooms"
)

// evictChannel is the cross-instance control channel a revoke path uses to
// reach a participant's session wherever it actually lives: session.Store
// only ever knows about sessions connected to this instance, so reaching
// "wherever that is" requires going out through the KV store's pub/sub the
// same way a room broadcast does, rather than trusting a single instance's
// local lookup.
const evictChannel = "ctl|evict"

// evictRequest names its target by the room it is always a member of
// (typically PERSONAL_PTC) rather than by sid, since sids are assigned
// per-instance and the publishing instance has no way to know which
// instance, if any, actually holds the target's connection.
type evictRequest struct {
	TargetType rooms.Type `json:"targetType"`
	TargetName string     `json:"targetName"`
	ExitType   rooms.Type `json:"exitType"`
	ExitName   string     `json:"exitName"`
}

// PublishEviction asks every instance to check whether it locally holds
// the session found in (targetType,targetName) and, if so, remove it from
// (exitType,exitName). Use this instead of env.Sessions.GetAnySID +
// env.Sessions.ExitRoom directly: those only ever see this instance's own
// connections, so a target connected elsewhere would silently never be
// evicted.
func PublishEviction(ctx context.Context, env *Env, targetType rooms.Type, targetName string, exitType rooms.Type, exitName string) error {
	body, err := json.Marshal(evictRequest{TargetType: targetType, TargetName: targetName, ExitType: exitType, ExitName: exitName})
	if err != nil {
		return err
	}
	return env.KV.Publish(ctx, evictChannel, body)
}

// RunEvictionListener applies eviction requests published by
// PublishEviction against this instance's local sessions, until ctx is
// canceled. One listener per process.
func (d *Dispatcher) RunEvictionListener(ctx context.Context) {
	ch, cancel := d.Env.KV.Subscribe(evictChannel)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			var req evictRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				d.Env.Log.Warn("dispatcher: malformed eviction payload", "error", err)
				continue
			}
			d.applyEviction(req)
		}
	}
}

// applyEviction is a no-op if this instance holds no session for the
// target: the request still reaches every other instance via the same
// broadcast, and exactly one of them (if any) will find a match.
func (d *Dispatcher) applyEviction(req evictRequest) {
	sid := d.Env.Sessions.GetAnySID(req.TargetType, req.TargetName)
	if sid == "" {
		return
	}
	if conn := d.connFor(sid); conn != nil {
		conn.ExitRoom(req.ExitType, req.ExitName)
		return
	}
	d.Env.Sessions.ExitRoom(sid, req.ExitType, req.ExitName)
}
