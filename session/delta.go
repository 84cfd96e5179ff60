package session

import (
	"reflect"

	"github.com/tinnou/graphom/schema"
)

// RelTarget identifies the far end of one relationship change. New
// targets have no identity yet and are carried by instance so the
// request builder can correlate them with their upsert.
type RelTarget struct {
	Entity   any
	Identity string
}

// RelChange is one relationship addition or removal, attributed to the
// owning side: the entity whose field holds the reference.
type RelChange struct {
	Rel    schema.Relationship
	Target RelTarget
}

// Delta is the minimal set of changes for one entity relative to its
// last-known snapshot.
type Delta struct {
	Entity   any
	Type     *schema.NodeType
	Identity string // empty while the entity is new

	Props   map[string]any
	Added   []RelChange
	Removed []RelChange
}

// IsEmpty reports whether the delta contributes nothing to a write
// request. A new entity is never empty: its node must be created even
// when every property holds a zero value.
func (d *Delta) IsEmpty() bool {
	return d.Identity != "" && len(d.Props) == 0 && len(d.Added) == 0 && len(d.Removed) == 0
}

// deltaComputer diffs entities against their snapshots.
type deltaComputer struct {
	registry *schema.Registry
}

// diff computes the delta of an entity against a snapshot. A nil
// snapshot means the entity is new: every property and every present
// relationship counts as an addition.
//
// propsOnly restricts the delta to scalar properties; the walker sets
// it when the remaining traversal depth is exhausted, leaving the
// entity's relationship changes pending for a deeper save.
func (dc *deltaComputer) diff(nt *schema.NodeType, entity any, snap *Snapshot, propsOnly bool) (*Delta, error) {
	d := &Delta{
		Entity:   entity,
		Type:     nt,
		Identity: nt.IdentityOf(entity),
		Props:    make(map[string]any),
	}

	current := nt.PropertyValues(entity)
	if snap == nil {
		d.Props = current
	} else {
		for name, value := range current {
			if !reflect.DeepEqual(value, snap.Props[name]) {
				d.Props[name] = value
			}
		}
	}

	if propsOnly {
		return d, nil
	}

	for _, rel := range nt.Relationships {
		key := rel.Key()
		seen := make(map[string]struct{})

		for _, target := range nt.Related(entity, rel) {
			targetType, err := dc.registry.Lookup(target)
			if err != nil {
				return nil, err
			}
			id := targetType.IdentityOf(target)
			if id != "" {
				seen[id] = struct{}{}
			}
			// additions = current minus snapshot; identity-less targets
			// are always additions
			if id == "" || !snap.hasRel(key, id) {
				d.Added = append(d.Added, RelChange{
					Rel:    rel,
					Target: RelTarget{Entity: target, Identity: id},
				})
			}
		}

		// removals = snapshot minus current
		for id := range snap.relSet(key) {
			if _, ok := seen[id]; !ok {
				d.Removed = append(d.Removed, RelChange{
					Rel:    rel,
					Target: RelTarget{Identity: id},
				})
			}
		}
	}

	return d, nil
}
