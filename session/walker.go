package session

import (
	"fmt"

	pkgerrors "github.com/tinnou/graphom/pkg/errors"
	"github.com/tinnou/graphom/schema"
)

// Unbounded requests traversal until no new reachable or modified
// entities remain.
const Unbounded = -1

// walker performs the depth-bounded traversal that decides the cascade
// scope of a save. It is bound to one traversal call and is cycle-safe
// via a visited set keyed by entity instance.
type walker struct {
	registry *schema.Registry
	mapping  *MappingContext
	deltas   *deltaComputer
}

type pending struct {
	entity    any
	remaining int
}

// walkForSave walks the object graph breadth-first from root and returns
// the non-empty deltas of everything the save must cover, in discovery
// order: the owning side of every followed edge precedes its target.
//
// An edge is followed only when it is an addition relative to the
// snapshot; unmodified edges are not descended into, so unmodified
// reachable entities contribute nothing. Depth decrements by exactly one
// per followed edge: at remaining depth 0 an entity contributes only its
// scalar properties, and its relationship changes stay pending.
func (w *walker) walkForSave(root any, depth int) ([]*Delta, error) {
	if depth < Unbounded {
		return nil, pkgerrors.NewValidation(fmt.Sprintf("depth must be -1, 0, or positive, got %d", depth))
	}

	visited := map[any]struct{}{root: {}}
	queue := []pending{{entity: root, remaining: depth}}
	var out []*Delta

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		nt, err := w.registry.Lookup(next.entity)
		if err != nil {
			return nil, err
		}

		var snap *Snapshot
		if id := nt.IdentityOf(next.entity); id != "" {
			// A persisted identity without a snapshot means the entity is
			// detached from another session; diffing against nil treats
			// all of its state as changed.
			if s, ok := w.mapping.SnapshotOf(id); ok {
				snap = s
			}
		}

		propsOnly := next.remaining == 0
		d, err := w.deltas.diff(nt, next.entity, snap, propsOnly)
		if err != nil {
			return nil, err
		}
		if !d.IsEmpty() {
			out = append(out, d)
		}
		if propsOnly {
			continue
		}

		remaining := next.remaining - 1
		if next.remaining == Unbounded {
			remaining = Unbounded
		}
		for _, add := range d.Added {
			target := add.Target.Entity
			if target == nil {
				continue
			}
			if _, seen := visited[target]; seen {
				continue
			}
			visited[target] = struct{}{}
			queue = append(queue, pending{entity: target, remaining: remaining})
		}
	}

	return out, nil
}
