package session

// MappingContext is the per-session identity map and snapshot store.
// It guarantees at most one live entity instance per identity within a
// session, and owns the last-known snapshot of every tracked entity.
//
// A MappingContext belongs to exactly one logical session and is never
// shared across concurrent operations, so it carries no locking.
type MappingContext struct {
	instances map[string]any
	snapshots map[string]*Snapshot
}

// NewMappingContext creates an empty mapping context.
func NewMappingContext() *MappingContext {
	return &MappingContext{
		instances: make(map[string]any),
		snapshots: make(map[string]*Snapshot),
	}
}

// Track registers an entity instance and its snapshot under an identity,
// replacing any previous snapshot for that identity.
func (mc *MappingContext) Track(identity string, entity any, snap *Snapshot) {
	mc.instances[identity] = entity
	mc.snapshots[identity] = snap
}

// InstanceOf returns the live instance tracked under an identity.
func (mc *MappingContext) InstanceOf(identity string) (any, bool) {
	e, ok := mc.instances[identity]
	return e, ok
}

// SnapshotOf returns the last-known snapshot for an identity.
func (mc *MappingContext) SnapshotOf(identity string) (*Snapshot, bool) {
	s, ok := mc.snapshots[identity]
	return s, ok
}

// Forget drops the instance and snapshot tracked under an identity.
func (mc *MappingContext) Forget(identity string) {
	delete(mc.instances, identity)
	delete(mc.snapshots, identity)
}

// TrackedIdentities returns the identities of all tracked entities.
func (mc *MappingContext) TrackedIdentities() []string {
	ids := make([]string, 0, len(mc.instances))
	for id := range mc.instances {
		ids = append(ids, id)
	}
	return ids
}

// Size returns the number of tracked entities.
func (mc *MappingContext) Size() int {
	return len(mc.instances)
}

// Clear drops every tracked entity and snapshot. Entities held by the
// caller become detached: their later mutations can no longer be diffed
// and they are treated as all-new by a fresh session.
func (mc *MappingContext) Clear() {
	mc.instances = make(map[string]any)
	mc.snapshots = make(map[string]*Snapshot)
}
