package session

import (
	"fmt"
	"reflect"

	pkgerrors "github.com/tinnou/graphom/pkg/errors"
	"github.com/tinnou/graphom/schema"
	"github.com/tinnou/graphom/store"
)

// hydrator materializes fetched wire records into tracked entity
// instances, reusing the instance already registered for an identity so
// repeated loads return the same object.
type hydrator struct {
	registry *schema.Registry
	mapping  *MappingContext
}

// hydrateSubgraph turns a depth-bounded fetch result into live entities,
// wires their relationship fields, snapshots them, and tracks them all.
// Returns the root instance.
//
// Relationship fields are rewritten only for nodes whose neighborhood was
// inside the fetch horizon; nodes sitting on the boundary keep whatever
// references they already hold, so a shallow load cannot erase state a
// deeper load established earlier.
func (h *hydrator) hydrateSubgraph(sg *store.Subgraph, depth int) (any, error) {
	instances := make(map[string]any, len(sg.Nodes))
	types := make(map[string]*schema.NodeType, len(sg.Nodes))

	for _, rec := range sg.Nodes {
		nt := h.typeFor(rec.Labels)
		if nt == nil {
			// Nodes with no mapped label are skipped; edges touching them
			// resolve to nothing below.
			continue
		}
		inst := h.instanceFor(nt, rec.ID)
		nt.SetIdentity(inst, rec.ID)
		if err := setProperties(nt, inst, rec.Props); err != nil {
			return nil, err
		}
		instances[rec.ID] = inst
		types[rec.ID] = nt
	}

	root, ok := instances[sg.RootID]
	if !ok {
		return nil, pkgerrors.NewInternal(
			fmt.Sprintf("fetched subgraph does not contain its root %s", sg.RootID), nil)
	}

	interior := horizonInterior(sg, depth)
	for id, inst := range instances {
		if _, inside := interior[id]; !inside {
			continue
		}
		nt := types[id]
		for _, rel := range nt.Relationships {
			targets := h.resolveTargets(sg, instances, types, id, rel)
			if err := nt.SetRelated(inst, rel, targets); err != nil {
				return nil, err
			}
		}
	}

	for id, inst := range instances {
		snap, err := captureSnapshot(h.registry, types[id], inst)
		if err != nil {
			return nil, err
		}
		if _, inside := interior[id]; !inside {
			// Relationship fields of boundary nodes were not refreshed by
			// this fetch, so capturing them would re-baseline pending local
			// edits as persisted. Keep the previous relationship baseline.
			if prev, ok := h.mapping.SnapshotOf(id); ok {
				snap.Rels = prev.cloneRels()
			}
		}
		h.mapping.Track(id, inst, snap)
	}

	return root, nil
}

// hydrateNode materializes a single node record without relationship
// wiring, used for query results.
func (h *hydrator) hydrateNode(rec store.NodeRecord) (any, error) {
	nt := h.typeFor(rec.Labels)
	if nt == nil {
		return nil, pkgerrors.NewValidation(
			fmt.Sprintf("no registered entity type for labels %v", rec.Labels))
	}
	inst := h.instanceFor(nt, rec.ID)
	nt.SetIdentity(inst, rec.ID)
	if err := setProperties(nt, inst, rec.Props); err != nil {
		return nil, err
	}
	snap, err := captureSnapshot(h.registry, nt, inst)
	if err != nil {
		return nil, err
	}
	h.mapping.Track(rec.ID, inst, snap)
	return inst, nil
}

// instanceFor returns the instance tracked for an identity, or a new
// zero value of the entity type.
func (h *hydrator) instanceFor(nt *schema.NodeType, identity string) any {
	if existing, ok := h.mapping.InstanceOf(identity); ok {
		if reflect.TypeOf(existing) == reflect.PointerTo(nt.GoType) {
			return existing
		}
	}
	return reflect.New(nt.GoType).Interface()
}

func (h *hydrator) typeFor(labels []string) *schema.NodeType {
	for _, label := range labels {
		if nt, ok := h.registry.ByLabel(label); ok {
			return nt
		}
	}
	return nil
}

func (h *hydrator) resolveTargets(sg *store.Subgraph, instances map[string]any, types map[string]*schema.NodeType, id string, rel schema.Relationship) []any {
	var targets []any
	for _, rr := range sg.Rels {
		if rr.Type != rel.Type {
			continue
		}
		var other string
		switch {
		case rel.Direction == schema.Outgoing && rr.From == id:
			other = rr.To
		case rel.Direction == schema.Incoming && rr.To == id:
			other = rr.From
		default:
			continue
		}
		target, ok := instances[other]
		if !ok || types[other].GoType != rel.Target {
			continue
		}
		targets = append(targets, target)
	}
	return targets
}

// horizonInterior returns the node identities whose edges were fully
// covered by a fetch of the given depth: those strictly closer to the
// root than the horizon. With an unbounded depth every fetched node is
// interior.
func horizonInterior(sg *store.Subgraph, depth int) map[string]struct{} {
	interior := make(map[string]struct{})
	if depth == Unbounded {
		for _, n := range sg.Nodes {
			interior[n.ID] = struct{}{}
		}
		return interior
	}
	if depth == 0 {
		return interior
	}

	// undirected BFS over the fetched edges
	adjacent := make(map[string][]string)
	for _, rr := range sg.Rels {
		adjacent[rr.From] = append(adjacent[rr.From], rr.To)
		adjacent[rr.To] = append(adjacent[rr.To], rr.From)
	}
	dist := map[string]int{sg.RootID: 0}
	queue := []string{sg.RootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if dist[id] < depth {
			interior[id] = struct{}{}
		}
		for _, next := range adjacent[id] {
			if _, seen := dist[next]; !seen {
				dist[next] = dist[id] + 1
				queue = append(queue, next)
			}
		}
	}
	return interior
}

// setProperties writes fetched property values into the entity's scalar
// fields, converting compatible numeric wire types (the bolt protocol
// returns int64 and float64).
func setProperties(nt *schema.NodeType, entity any, props map[string]any) error {
	v := reflect.ValueOf(entity).Elem()
	for _, p := range nt.Properties {
		raw, ok := props[p.Name]
		if !ok || raw == nil {
			continue
		}
		field := v.Field(p.Index)
		rv := reflect.ValueOf(raw)
		switch {
		case rv.Type().AssignableTo(field.Type()):
			field.Set(rv)
		case rv.Type().ConvertibleTo(field.Type()) && convertibleKinds(rv.Kind(), field.Kind()):
			field.Set(rv.Convert(field.Type()))
		default:
			return pkgerrors.NewValidation(fmt.Sprintf(
				"property %q of %s: cannot assign %s to %s",
				p.Name, nt.Label, rv.Type(), field.Type()))
		}
	}
	return nil
}

// convertibleKinds restricts reflect conversions to numeric widening so
// that surprising conversions like int -> string are rejected.
func convertibleKinds(from, to reflect.Kind) bool {
	isNumeric := func(k reflect.Kind) bool {
		return k >= reflect.Int && k <= reflect.Float64
	}
	return isNumeric(from) && isNumeric(to)
}
