package session

import (
	"fmt"

	pkgerrors "github.com/tinnou/graphom/pkg/errors"
	"github.com/tinnou/graphom/schema"
	"github.com/tinnou/graphom/store"
)

// buildWriteRequest converts the deltas of one save into a single atomic
// WriteRequest. New entities are addressed by request-local refs; the
// returned map correlates those refs back to their deltas so server-
// assigned identities can be applied after a successful write.
//
// Statement order within the request follows delta discovery order, with
// node upserts emitted before any relationship change.
func buildWriteRequest(requestID string, deltas []*Delta) (*store.WriteRequest, map[string]*Delta, error) {
	req := &store.WriteRequest{ID: requestID}
	localRefs := make(map[any]string)
	newByRef := make(map[string]*Delta)

	refFor := func(entity any, identity string) (store.NodeRef, error) {
		if identity != "" {
			return store.NodeRef{Identity: identity}, nil
		}
		local, ok := localRefs[entity]
		if !ok {
			return store.NodeRef{}, pkgerrors.NewInternal(
				"relationship references an entity outside the write request", nil)
		}
		return store.NodeRef{Local: local}, nil
	}

	// First pass: upserts, assigning local refs to new entities so later
	// relationship changes can address them.
	for _, d := range deltas {
		if d.Identity == "" {
			local := fmt.Sprintf("n%d", len(localRefs))
			localRefs[d.Entity] = local
			newByRef[local] = d
			req.Upserts = append(req.Upserts, store.NodeUpsert{
				Ref:   store.NodeRef{Local: local},
				Label: d.Type.Label,
				Props: d.Props,
			})
			continue
		}
		if len(d.Props) > 0 {
			req.Upserts = append(req.Upserts, store.NodeUpsert{
				Ref:   store.NodeRef{Identity: d.Identity},
				Label: d.Type.Label,
				Props: d.Props,
			})
		}
	}

	// Second pass: relationship changes, with the declared direction
	// resolved into a stored from->to edge.
	for _, d := range deltas {
		owner, err := refFor(d.Entity, d.Identity)
		if err != nil {
			return nil, nil, err
		}
		for _, add := range d.Added {
			target, err := refFor(add.Target.Entity, add.Target.Identity)
			if err != nil {
				return nil, nil, err
			}
			req.RelAdds = append(req.RelAdds, orient(add.Rel, owner, target))
		}
		for _, rem := range d.Removed {
			target := store.NodeRef{Identity: rem.Target.Identity}
			req.RelRemovals = append(req.RelRemovals, orient(rem.Rel, owner, target))
		}
	}

	return req, newByRef, nil
}

func orient(rel schema.Relationship, owner, target store.NodeRef) store.RelationshipChange {
	if rel.Direction == schema.Incoming {
		return store.RelationshipChange{From: target, To: owner, Type: rel.Type}
	}
	return store.RelationshipChange{From: owner, To: target, Type: rel.Type}
}
