// observability.go implements the clock-offset half of the observability
// hooks: a three-message TIME_SYNC/TIME_SYNC_ACK exchange
// that estimates a session's clock offset against the server, NTP-style.
// The monitor-mirroring half lives in internal/dispatcher's relay, since
// it wraps every handler's reply rather than answering a verb of its own.
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/classroomlive/classroomd/internal/dispatcher"
)

func init() {
	dispatcher.Register(&dispatcher.Descriptor{
		Name:     "TIME_SYNC",
		Required: []string{"t0"},
		Handle:   timeSync,
	})
	dispatcher.Register(&dispatcher.Descriptor{
		Name:     "TIME_SYNC_ACK",
		Required: []string{"t0", "t1", "t2"},
		Handle:   timeSyncAck,
	})
}

type timeSyncRequest struct {
	T0 int64 `json:"t0"`
}

type timeSyncAckResponse struct {
	T0 int64 `json:"t0"`
	T1 int64 `json:"t1"`
}

// timeSync is leg one: the client sends its send time t0; the server
// echoes it back alongside its own receive/send time t1.
func timeSync(_ context.Context, _ *dispatcher.Env, _ *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[timeSyncRequest](data)
	if err != nil {
		return nil, err
	}
	return &dispatcher.Result{
		Event:   "TIME_SYNC_ACK",
		Payload: timeSyncAckResponse{T0: req.T0, T1: time.Now().UnixMilli()},
	}, nil
}

type timeSyncAckRequest struct {
	T0 int64 `json:"t0"`
	T1 int64 `json:"t1"`
	T2 int64 `json:"t2"`
}

// timeSyncAck is leg three: the client echoes t0/t1 back with its own
// receive time t2. The server estimates the client's clock offset as the
// classic NTP two-way formula and stores it on the session; no reply is
// sent since this leg exists purely to deliver t2.
func timeSyncAck(_ context.Context, _ *dispatcher.Env, conn *dispatcher.Conn, data json.RawMessage) (*dispatcher.Result, error) {
	req, err := decode[timeSyncAckRequest](data)
	if err != nil {
		return nil, err
	}
	offset := ((req.T1 - req.T0) + (req.T1 - req.T2)) / 2
	conn.Session.TimeDiffMs = offset
	return nil, nil
}
