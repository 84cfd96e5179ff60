package session

import (
	"github.com/tinnou/graphom/schema"
)

// Snapshot is the captured persisted state of one entity: scalar property
// values plus the identity sets of its related entities, keyed by
// relationship type and direction. Snapshots are owned by the mapping
// context and are replaced, never mutated, after each successful
// save or load.
type Snapshot struct {
	Identity string
	Props    map[string]any
	Rels     map[string]map[string]struct{}
}

func newSnapshot(identity string) *Snapshot {
	return &Snapshot{
		Identity: identity,
		Props:    make(map[string]any),
		Rels:     make(map[string]map[string]struct{}),
	}
}

// relSet returns the identity set for a relationship key, which may be nil.
func (s *Snapshot) relSet(key string) map[string]struct{} {
	if s == nil {
		return nil
	}
	return s.Rels[key]
}

// hasRel reports whether the snapshot records an edge of the given key to
// the given identity.
func (s *Snapshot) hasRel(key, identity string) bool {
	set := s.relSet(key)
	_, ok := set[identity]
	return ok
}

// cloneRels deep-copies the snapshot's relationship identity sets.
func (s *Snapshot) cloneRels() map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(s.Rels))
	for key, set := range s.Rels {
		copied := make(map[string]struct{}, len(set))
		for id := range set {
			copied[id] = struct{}{}
		}
		out[key] = copied
	}
	return out
}

// applyDelta derives the snapshot that results from successfully applying
// a delta on top of a prior snapshot (nil for new entities). Only what the
// delta actually persisted enters the new snapshot; changes the walker
// excluded, such as relationship edits cut off by a depth 0 save, stay
// pending and will be picked up by a later diff.
func applyDelta(prev *Snapshot, d *Delta, identity string) *Snapshot {
	next := newSnapshot(identity)

	if prev != nil {
		for k, v := range prev.Props {
			next.Props[k] = v
		}
		next.Rels = prev.cloneRels()
	}

	for k, v := range d.Props {
		next.Props[k] = v
	}
	for _, add := range d.Added {
		key := add.Rel.Key()
		if next.Rels[key] == nil {
			next.Rels[key] = make(map[string]struct{})
		}
		next.Rels[key][add.Target.Identity] = struct{}{}
	}
	for _, rem := range d.Removed {
		delete(next.Rels[rem.Rel.Key()], rem.Target.Identity)
	}
	return next
}

// captureSnapshot records the entity's current state as its persisted
// state. Used after a load, where the hydrated in-memory state is exactly
// what the store returned. Related entities without an assigned identity
// are not part of persisted state and are skipped.
func captureSnapshot(reg *schema.Registry, nt *schema.NodeType, entity any) (*Snapshot, error) {
	snap := newSnapshot(nt.IdentityOf(entity))
	snap.Props = nt.PropertyValues(entity)

	for _, rel := range nt.Relationships {
		for _, target := range nt.Related(entity, rel) {
			targetType, err := reg.Lookup(target)
			if err != nil {
				return nil, err
			}
			id := targetType.IdentityOf(target)
			if id == "" {
				continue
			}
			key := rel.Key()
			if snap.Rels[key] == nil {
				snap.Rels[key] = make(map[string]struct{})
			}
			snap.Rels[key][id] = struct{}{}
		}
	}
	return snap, nil
}
