package dispatcher

import (
	"log/slog"

	"github.com/classroomlive/classroomd/internal/cache"
	"github.com/classroomlive/classroomd/internal/feedback"
	"github.com/classroomlive/classroomd/internal/filestore"
	"github.com/classroomlive/classroomd/internal/kv"
	"github.com/classroomlive/classroomd/internal/metadata"
	"github.com/classroomlive/classroomd/internal/permission"
	"github.com/classroomlive/classroomd/internal/session"
	"github.com/classroomlive/classroomd/internal/telemetry"
	"github.com/classroomlive/classroomd/internal/template"
)

// Env bundles every subsystem a handler may need, handed to handlers
// instead of a grab-bag of individual arguments so new dependencies don't
// ripple through every handler signature.
type Env struct {
	Store      metadata.Store
	Cache      *cache.Cache
	Perm       *permission.Engine
	Files      *filestore.Store
	Template   *template.Applier
	Feedback   *feedback.Engine
	Sessions   *session.Store
	KV         *kv.Store
	Log        *slog.Logger
	Metrics    *telemetry.Metrics // nil disables instrumentation
	SubsPerPtc int                // EnterRoom limit for SUBS_PTC memberships per session, 0 = unbounded
}
