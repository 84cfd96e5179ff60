// Package session implements the entity session: an identity-mapped,
// change-tracked unit of work over a graph store. A session walks the
// object graph to a caller-chosen depth, diffs it against per-entity
// snapshots, and issues one atomic write request per save.
package session

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pkgerrors "github.com/tinnou/graphom/pkg/errors"
	"github.com/tinnou/graphom/pkg/observability"
	"github.com/tinnou/graphom/query"
	"github.com/tinnou/graphom/schema"
	"github.com/tinnou/graphom/store"
)

// State is the session's position in its unit-of-work state machine.
type State int

const (
	StateIdle State = iota
	StateActive
	StateCommitted
	StateFailed
	StateRolledBack
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session coordinates loading, diffing, and persisting entities against
// one graph store endpoint. A session is confined to a single logical
// unit of work and must not be shared across concurrent callers; there
// is exactly one writer, so no internal locking is provided.
//
// After a failure the session refuses further operations until Reset is
// called or a new session is opened; a failed save leaves the mapping
// context exactly as it was before the call.
type Session struct {
	id       string
	registry *schema.Registry
	store    store.Store
	mapping  *MappingContext
	logger   *zap.Logger
	metrics  *observability.Collector
	state    State
}

// Option configures a Session.
type Option func(*Session)

// WithLogger attaches a structured logger to the session.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics attaches a metrics collector to the session.
func WithMetrics(collector *observability.Collector) Option {
	return func(s *Session) {
		s.metrics = collector
	}
}

// New opens a session over the given store using the given entity
// metadata registry.
func New(st store.Store, registry *schema.Registry, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		registry: registry,
		store:    st,
		mapping:  NewMappingContext(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	if s.metrics != nil {
		s.metrics.SessionsOpened.Inc()
	}
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current unit-of-work state.
func (s *Session) State() State {
	return s.state
}

// Context returns the session's mapping context.
func (s *Session) Context() *MappingContext {
	return s.mapping
}

// Save walks the object graph from entity up to depth relationship hops
// (Unbounded for no limit, 0 for the entity's own properties only),
// diffs everything reached against the session's snapshots, and applies
// all resulting changes in one atomic write. On success the snapshots
// are replaced and server-assigned identities are populated on new
// entities; on failure nothing is applied and the session fails.
func (s *Session) Save(ctx context.Context, entity any, depth int) error {
	if err := s.begin(); err != nil {
		return err
	}

	w := &walker{
		registry: s.registry,
		mapping:  s.mapping,
		deltas:   &deltaComputer{registry: s.registry},
	}
	deltas, err := w.walkForSave(entity, depth)
	if err != nil {
		return err
	}

	if len(deltas) == 0 {
		// Nothing changed: no write request is issued, the store and the
		// snapshots stay untouched.
		s.state = StateCommitted
		if s.metrics != nil {
			s.metrics.RecordSave(0, nil)
		}
		s.logger.Debug("save found no changes", zap.Int("depth", depth))
		return nil
	}

	req, newByRef, err := buildWriteRequest(uuid.NewString(), deltas)
	if err != nil {
		return err
	}

	res, err := s.store.ApplyWrite(ctx, req)
	if s.metrics != nil {
		s.metrics.RecordSave(len(deltas), err)
	}
	if err != nil {
		s.fail("save", err)
		return pkgerrors.Wrap(err, "save failed")
	}

	if err := s.assignIdentities(res, newByRef, deltas); err != nil {
		s.fail("save", err)
		return err
	}

	for _, d := range deltas {
		prev, _ := s.mapping.SnapshotOf(d.Identity)
		s.mapping.Track(d.Identity, d.Entity, applyDelta(prev, d, d.Identity))
	}

	s.state = StateCommitted
	s.logger.Debug("save committed",
		zap.String("request_id", req.ID),
		zap.Int("entities", len(deltas)),
		zap.Int("rel_additions", len(req.RelAdds)),
		zap.Int("rel_removals", len(req.RelRemovals)))
	return nil
}

// Load fetches the entity with the given identity and its neighborhood
// up to depth relationship hops, tracking everything fetched. A second
// load of the same identity within the session returns the same
// instance. A missing identity is reported as a NotFound error and does
// not fail the session.
func Load[T any](ctx context.Context, s *Session, identity string, depth int) (*T, error) {
	var prototype T
	out, err := s.load(ctx, reflect.TypeOf(prototype), identity, depth)
	if err != nil {
		return nil, err
	}
	typed, ok := out.(*T)
	if !ok {
		return nil, pkgerrors.NewInternal(fmt.Sprintf(
			"loaded %T where %T was requested", out, &prototype), nil)
	}
	return typed, nil
}

func (s *Session) load(ctx context.Context, t reflect.Type, identity string, depth int) (any, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	if depth < Unbounded {
		return nil, pkgerrors.NewValidation(fmt.Sprintf("depth must be -1, 0, or positive, got %d", depth))
	}
	if identity == "" {
		return nil, pkgerrors.NewValidation("load requires a non-empty identity")
	}

	prototype := reflect.New(t).Interface()
	nt, err := s.registry.Lookup(prototype)
	if err != nil {
		return nil, err
	}

	sg, err := s.store.FetchSubgraph(ctx, nt.Label, identity, depth)
	if s.metrics != nil {
		s.metrics.RecordLoad(err)
	}
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			// Absent result, not fatal: the session stays usable.
			return nil, err
		}
		s.fail("load", err)
		return nil, pkgerrors.Wrap(err, "load failed")
	}

	h := &hydrator{registry: s.registry, mapping: s.mapping}
	root, err := h.hydrateSubgraph(sg, depth)
	if err != nil {
		s.fail("load", err)
		return nil, err
	}
	s.logger.Debug("load complete",
		zap.String("label", nt.Label),
		zap.String("identity", identity),
		zap.Int("nodes", len(sg.Nodes)),
		zap.Int("relationships", len(sg.Rels)))
	return root, nil
}

// Delete removes the given entities from the store (detaching their
// relationships) and from the mapping context. Entities that were never
// persisted are simply skipped. Identities of deleted entities are
// cleared, so a later save treats them as new.
func (s *Session) Delete(ctx context.Context, entities ...any) error {
	if err := s.begin(); err != nil {
		return err
	}

	type doomed struct {
		entity any
		nt     *schema.NodeType
		id     string
	}
	var targets []doomed
	for _, e := range entities {
		nt, err := s.registry.Lookup(e)
		if err != nil {
			return err
		}
		if id := nt.IdentityOf(e); id != "" {
			targets = append(targets, doomed{entity: e, nt: nt, id: id})
		}
	}

	if len(targets) == 0 {
		s.state = StateCommitted
		return nil
	}

	req := &store.WriteRequest{ID: uuid.NewString()}
	for _, t := range targets {
		req.Deletes = append(req.Deletes, t.id)
	}

	_, err := s.store.ApplyWrite(ctx, req)
	if s.metrics != nil {
		s.metrics.RecordDelete(err)
	}
	if err != nil {
		s.fail("delete", err)
		return pkgerrors.Wrap(err, "delete failed")
	}

	for _, t := range targets {
		s.mapping.Forget(t.id)
		t.nt.SetIdentity(t.entity, "")
	}
	s.state = StateCommitted
	s.logger.Debug("delete committed", zap.Int("entities", len(targets)))
	return nil
}

// DeleteAll removes every entity tracked by this session from the store
// and clears the mapping context.
func (s *Session) DeleteAll(ctx context.Context) error {
	tracked := make([]any, 0, s.mapping.Size())
	for _, id := range s.mapping.TrackedIdentities() {
		if e, ok := s.mapping.InstanceOf(id); ok {
			tracked = append(tracked, e)
		}
	}
	return s.Delete(ctx, tracked...)
}

// QueryEntities executes a read query whose first column yields nodes
// and hydrates them into tracked entities.
func (s *Session) QueryEntities(ctx context.Context, q query.Query) ([]any, error) {
	result, err := s.run(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(result.Columns) == 0 {
		return nil, nil
	}

	h := &hydrator{registry: s.registry, mapping: s.mapping}
	entities := make([]any, 0, len(result.Records))
	for _, record := range result.Records {
		rec, ok := record[result.Columns[0]].(store.NodeRecord)
		if !ok {
			return nil, pkgerrors.NewValidation(fmt.Sprintf(
				"query column %q does not yield nodes", result.Columns[0]))
		}
		entity, err := h.hydrateNode(rec)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// QueryScalar executes a read query expected to produce a single value.
// Zero rows are reported as a NotFound error.
func (s *Session) QueryScalar(ctx context.Context, q query.Query) (any, error) {
	result, err := s.run(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, pkgerrors.NewNotFound("query produced no rows")
	}
	if len(result.Records) > 1 || len(result.Columns) != 1 {
		return nil, pkgerrors.NewValidation("scalar query must produce exactly one row and one column")
	}
	return result.Records[0][result.Columns[0]], nil
}

// QueryRows executes a read query and returns its rows as key-value
// mappings, one map per record.
func (s *Session) QueryRows(ctx context.Context, q query.Query) ([]map[string]any, error) {
	result, err := s.run(ctx, q)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

func (s *Session) run(ctx context.Context, q query.Query) (*store.QueryResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	text, params, err := q.Cypher()
	if err != nil {
		return nil, err
	}
	result, err := s.store.Run(ctx, text, params)
	if s.metrics != nil {
		s.metrics.RecordLoad(err)
	}
	if err != nil {
		s.fail("query", err)
		return nil, pkgerrors.Wrap(err, "query failed")
	}
	return result, nil
}

// Rollback abandons the session. Tracked entities become detached and
// no further operations are accepted.
func (s *Session) Rollback() {
	s.mapping.Clear()
	s.state = StateRolledBack
	s.logger.Debug("session rolled back")
}

// Reset returns a failed or finished session to idle with an empty
// mapping context, so the caller can retry a failed operation without
// opening a new session. Previously loaded entities become detached.
func (s *Session) Reset() {
	s.mapping.Clear()
	s.state = StateIdle
	s.logger.Debug("session reset")
}

// begin moves the session into its next unit of work.
func (s *Session) begin() error {
	switch s.state {
	case StateFailed:
		return pkgerrors.NewValidation("session has failed; call Reset or open a new session")
	case StateRolledBack:
		return pkgerrors.NewValidation("session was rolled back; open a new session")
	}
	s.state = StateActive
	return nil
}

func (s *Session) fail(operation string, err error) {
	s.state = StateFailed
	s.logger.Error("session failed",
		zap.String("operation", operation),
		zap.String("error_type", string(pkgerrors.TypeOf(err))),
		zap.Error(err))
}

// assignIdentities populates server-assigned identities on new entities
// and back-fills them into the deltas' relationship targets so snapshot
// application records complete identity sets.
func (s *Session) assignIdentities(res *store.WriteResult, newByRef map[string]*Delta, deltas []*Delta) error {
	for ref, d := range newByRef {
		id, ok := res.AssignedIDs[ref]
		if !ok {
			return pkgerrors.NewInternal(fmt.Sprintf(
				"store did not assign an identity for new %s node", d.Type.Label), nil)
		}
		d.Type.SetIdentity(d.Entity, id)
		d.Identity = id
	}
	for _, d := range deltas {
		for i := range d.Added {
			t := &d.Added[i].Target
			if t.Identity != "" || t.Entity == nil {
				continue
			}
			nt, err := s.registry.Lookup(t.Entity)
			if err != nil {
				return err
			}
			t.Identity = nt.IdentityOf(t.Entity)
		}
	}
	return nil
}
