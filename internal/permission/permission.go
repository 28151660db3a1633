// Package permission computes and caches RWX access from a viewer to a
// project, and produces added/removed bit deltas when an owner changes a
// viewer's permission.
package permission

import (
	"context"
	"fmt"

	"github.com/classroomlive/classroomd/internal/cache"
	"github.com/classroomlive/classroomd/internal/metadata"
)

// Engine computes and memoizes permission decisions.
type Engine struct {
	store metadata.Store
	cache *cache.Cache
}

// New builds an Engine over store, memoizing through c.
func New(store metadata.Store, c *cache.Cache) *Engine {
	return &Engine{store: store, cache: c}
}

// Delta is the added/removed bit pair produced by a ModifyPerm call:
// added = new &^ old, removed = old &^ new, so added & removed == 0
// follows algebraically.
type Delta struct {
	Previous metadata.Permission
	New      metadata.Permission
	Added    metadata.Permission
	Removed  metadata.Permission
}

// CheckPerm decides the viewer's access to targetProject, gated on need.
//
//  1. Teacher-involved pairs (either side is a teacher) default-allow
//     unless an explicit edge exists that withholds a needed bit,
//     including an edge explicitly recorded as permission=0, which denies
//     even a teacher. Absence of an edge and a zero edge are distinct
//     states.
//  2. Student-to-student pairs require an explicit edge containing every
//     bit of need.
func (e *Engine) CheckPerm(ctx context.Context, viewer metadata.Participant, target metadata.Project, owner metadata.Participant, need metadata.Permission) (bool, error) {
	// The owner's access to their own project is never gated on an edge.
	if viewer.ID == target.ParticipantID {
		return true, nil
	}

	key := cache.Key{Func: "checkPerm", Args: []any{viewer.ID, target.ID, int(need)}}
	scopes := []string{cache.ViewerScope(viewer.ID), cache.ProjectScope(target.ID)}

	return cache.GetOrLoad(ctx, e.cache, key, scopes, func(ctx context.Context) (bool, error) {
		edge, err := e.store.GetEdge(ctx, viewer.ID, target.ID)
		existed := true
		if err == metadata.ErrNotFound {
			existed = false
		} else if err != nil {
			return false, fmt.Errorf("permission: get edge: %w", err)
		}

		teacherInvolved := viewer.IsTeacher() || owner.IsTeacher()
		if teacherInvolved {
			if !existed {
				return true, nil
			}
			return edge.Permission.Has(need), nil
		}

		if !existed {
			return false, nil
		}
		return edge.Permission.Has(need), nil
	})
}

// AccessibleTo is PROJECT_ACCESSIBLE's "accessibleTo viewer" half: every
// project id this viewer can reach, with the raw edge bits. Display-only;
// callers must not use this for authorization (CheckPerm applies the
// teacher default, this does not).
func (e *Engine) AccessibleTo(ctx context.Context, viewerParticipantID int64) ([]metadata.ProjectViewer, error) {
	key := cache.Key{Func: "accessibleTo", Args: []any{viewerParticipantID}}
	scopes := []string{cache.ViewerScope(viewerParticipantID)}
	return cache.GetOrLoad(ctx, e.cache, key, scopes, func(ctx context.Context) ([]metadata.ProjectViewer, error) {
		return e.store.AccessibleTo(ctx, viewerParticipantID)
	})
}

// AccessedBy implements PROJECT_ACCESSIBLE's "accessedBy owner" half: every
// ACL edge granted on projectID.
func (e *Engine) AccessedBy(ctx context.Context, projectID int64) ([]metadata.ProjectViewer, error) {
	key := cache.Key{Func: "accessedBy", Args: []any{projectID}}
	scopes := []string{cache.ProjectScope(projectID)}
	return cache.GetOrLoad(ctx, e.cache, key, scopes, func(ctx context.Context) ([]metadata.ProjectViewer, error) {
		return e.store.AccessedBy(ctx, projectID)
	})
}

// DisplayDefault returns the bits PROJECT_ACCESSIBLE shows for a pair
// with no explicit edge: READ when either side is a teacher, none
// otherwise. Display-only; CheckPerm's authorization default for the same
// pair is all bits.
func DisplayDefault(viewer, owner metadata.Participant) metadata.Permission {
	if viewer.IsTeacher() || owner.IsTeacher() {
		return metadata.PermRead
	}
	return metadata.PermNone
}

// ModifyPerm clears reserved bits, no-ops on self-grants and identical
// values, invalidates the cache scopes it touched, and returns the
// added/removed delta. The room-exit side effect on removed&READ is left
// to the caller (the dispatcher's job, since it needs session state this
// package doesn't have).
func (e *Engine) ModifyPerm(ctx context.Context, owner metadata.Participant, targetParticipantID int64, project metadata.Project, newPerm metadata.Permission) (*Delta, error) {
	newPerm &= metadata.PermAll

	if targetParticipantID == owner.ID {
		// Self-grants are ignored.
		return &Delta{}, nil
	}

	previous, _, err := e.store.SetPermission(ctx, project.ID, targetParticipantID, newPerm)
	if err != nil {
		return nil, fmt.Errorf("permission: set permission: %w", err)
	}

	if previous == newPerm {
		return &Delta{Previous: previous, New: newPerm}, nil
	}

	e.invalidate(targetParticipantID, project.ID)

	return &Delta{
		Previous: previous,
		New:      newPerm,
		Added:    newPerm &^ previous,
		Removed:  previous &^ newPerm,
	}, nil
}

// invalidate drops the three affected memoizations: accessibleTo
// (viewer), accessedBy (owner/project), and checkPerm (both scopes).
func (e *Engine) invalidate(viewerParticipantID, projectID int64) {
	e.cache.InvalidateScope(cache.ViewerScope(viewerParticipantID))
	e.cache.InvalidateScope(cache.ProjectScope(projectID))
}
