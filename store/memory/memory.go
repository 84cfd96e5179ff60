// Package memory provides an in-memory Store for tests and local
// development. It applies write requests natively with the same
// all-or-nothing semantics as the real endpoint and supports
// configurable failures and query results.
package memory

import (
	"context"
	"fmt"
	"sync"

	pkgerrors "github.com/tinnou/graphom/pkg/errors"
	"github.com/tinnou/graphom/store"
)

type node struct {
	id     string
	labels []string
	props  map[string]any
}

type relationship struct {
	id      string
	from    string
	to      string
	relType string
}

// Store is an in-memory graph store.
type Store struct {
	mu     sync.Mutex
	nodes  map[string]*node
	rels   []relationship
	nextID int

	// Recorded activity for assertions.
	writes  []*store.WriteRequest
	queries []string

	// Configurable failures and canned query results.
	applyErr     error
	fetchErr     error
	queryErr     error
	queryResults []*store.QueryResult
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nodes: make(map[string]*node),
	}
}

// FailWrites makes every ApplyWrite return the given error until reset
// with nil.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyErr = err
}

// FailReads makes every FetchSubgraph return the given error until reset
// with nil.
func (s *Store) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

// QueueQueryResult appends a canned result returned by the next Run call.
func (s *Store) QueueQueryResult(result *store.QueryResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryResults = append(s.queryResults, result)
}

// Writes returns every write request applied so far.
func (s *Store) Writes() []*store.WriteRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*store.WriteRequest(nil), s.writes...)
}

// Queries returns the text of every Run call so far.
func (s *Store) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// NodeCount returns the number of stored nodes.
func (s *Store) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// RelCount returns the number of stored relationships.
func (s *Store) RelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rels)
}

// NodeProps returns a copy of a stored node's properties.
func (s *Store) NodeProps(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	props := make(map[string]any, len(n.props))
	for k, v := range n.props {
		props[k] = v
	}
	return props, true
}

// HasRel reports whether an edge with the given endpoints and type exists.
func (s *Store) HasRel(from, to, relType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rels {
		if r.from == from && r.to == to && r.relType == relType {
			return true
		}
	}
	return false
}

// SeedNode inserts a node directly, returning its identity.
func (s *Store) SeedNode(labels []string, props map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertNode(labels, props)
}

// SeedRel inserts a relationship directly.
func (s *Store) SeedRel(from, to, relType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertRel(from, to, relType)
}

// ApplyWrite applies the whole request atomically: it is validated in
// full before any state changes.
func (s *Store) ApplyWrite(ctx context.Context, req *store.WriteRequest) (*store.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.applyErr != nil {
		return nil, s.applyErr
	}

	// Validation pass: every referenced identity must exist.
	for _, up := range req.Upserts {
		if !up.Ref.IsNew() {
			if _, ok := s.nodes[up.Ref.Identity]; !ok {
				return nil, pkgerrors.NewConflict(fmt.Sprintf(
					"update addresses unknown node %s", up.Ref.Identity), nil)
			}
		}
	}
	refs := make(map[string]struct{})
	for _, up := range req.Upserts {
		if up.Ref.IsNew() {
			refs[up.Ref.Local] = struct{}{}
		}
	}
	checkRef := func(r store.NodeRef) error {
		if r.IsNew() {
			if _, ok := refs[r.Local]; !ok {
				return pkgerrors.NewConflict(fmt.Sprintf(
					"relationship references undefined local ref %s", r.Local), nil)
			}
			return nil
		}
		if _, ok := s.nodes[r.Identity]; !ok {
			return pkgerrors.NewConflict(fmt.Sprintf(
				"relationship references unknown node %s", r.Identity), nil)
		}
		return nil
	}
	for _, rc := range append(append([]store.RelationshipChange{}, req.RelAdds...), req.RelRemovals...) {
		if err := checkRef(rc.From); err != nil {
			return nil, err
		}
		if err := checkRef(rc.To); err != nil {
			return nil, err
		}
	}
	for _, id := range req.Deletes {
		if _, ok := s.nodes[id]; !ok {
			return nil, pkgerrors.NewConflict(fmt.Sprintf(
				"delete addresses unknown node %s", id), nil)
		}
	}

	// Apply pass.
	result := &store.WriteResult{AssignedIDs: make(map[string]string)}
	for _, up := range req.Upserts {
		if up.Ref.IsNew() {
			id := s.insertNode([]string{up.Label}, up.Props)
			result.AssignedIDs[up.Ref.Local] = id
			result.Summary.NodesCreated++
			result.Summary.PropertiesSet += len(up.Props)
			continue
		}
		n := s.nodes[up.Ref.Identity]
		for k, v := range up.Props {
			n.props[k] = v
		}
		result.Summary.PropertiesSet += len(up.Props)
	}

	resolve := func(r store.NodeRef) string {
		if r.IsNew() {
			return result.AssignedIDs[r.Local]
		}
		return r.Identity
	}
	for _, rc := range req.RelAdds {
		if s.insertRel(resolve(rc.From), resolve(rc.To), rc.Type) {
			result.Summary.RelationshipsCreated++
		}
	}
	for _, rc := range req.RelRemovals {
		if s.removeRel(resolve(rc.From), resolve(rc.To), rc.Type) {
			result.Summary.RelationshipsDeleted++
		}
	}
	for _, id := range req.Deletes {
		delete(s.nodes, id)
		result.Summary.NodesDeleted++
		kept := s.rels[:0]
		for _, r := range s.rels {
			if r.from == id || r.to == id {
				result.Summary.RelationshipsDeleted++
				continue
			}
			kept = append(kept, r)
		}
		s.rels = kept
	}

	s.writes = append(s.writes, req)
	return result, nil
}

// FetchSubgraph collects the neighborhood of the root node up to depth
// hops, traversing edges in both directions.
func (s *Store) FetchSubgraph(ctx context.Context, label, identity string, depth int) (*store.Subgraph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	root, ok := s.nodes[identity]
	if !ok || !hasLabel(root, label) {
		return nil, pkgerrors.NewNotFound(fmt.Sprintf("no %s node with identity %s", label, identity))
	}

	dist := map[string]int{identity: 0}
	queue := []string{identity}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if depth != -1 && dist[id] >= depth {
			continue
		}
		for _, r := range s.rels {
			for _, next := range neighbors(r, id) {
				if _, seen := dist[next]; !seen {
					dist[next] = dist[id] + 1
					queue = append(queue, next)
				}
			}
		}
	}

	sg := &store.Subgraph{RootID: identity}
	for id := range dist {
		n := s.nodes[id]
		props := make(map[string]any, len(n.props))
		for k, v := range n.props {
			props[k] = v
		}
		sg.Nodes = append(sg.Nodes, store.NodeRecord{
			ID:     id,
			Labels: append([]string(nil), n.labels...),
			Props:  props,
		})
	}
	for _, r := range s.rels {
		df, fromOK := dist[r.from]
		dt, toOK := dist[r.to]
		if !fromOK || !toOK {
			continue
		}
		// an edge belongs to the fetch only if it was traversable within
		// the horizon from at least one endpoint
		if depth != -1 && df >= depth && dt >= depth {
			continue
		}
		sg.Rels = append(sg.Rels, store.RelRecord{
			ID:    r.id,
			From:  r.from,
			To:    r.to,
			Type:  r.relType,
			Props: map[string]any{},
		})
	}
	return sg, nil
}

// Run returns the next queued query result, recording the query text.
func (s *Store) Run(ctx context.Context, cypher string, params map[string]any) (*store.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries = append(s.queries, cypher)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if len(s.queryResults) == 0 {
		return &store.QueryResult{}, nil
	}
	next := s.queryResults[0]
	s.queryResults = s.queryResults[1:]
	return next, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close(ctx context.Context) error {
	return nil
}

func (s *Store) insertNode(labels []string, props map[string]any) string {
	s.nextID++
	id := fmt.Sprintf("mem:%d", s.nextID)
	copied := make(map[string]any, len(props))
	for k, v := range props {
		copied[k] = v
	}
	s.nodes[id] = &node{id: id, labels: append([]string(nil), labels...), props: copied}
	return id
}

func (s *Store) insertRel(from, to, relType string) bool {
	for _, r := range s.rels {
		if r.from == from && r.to == to && r.relType == relType {
			return false
		}
	}
	s.nextID++
	s.rels = append(s.rels, relationship{
		id:      fmt.Sprintf("rel:%d", s.nextID),
		from:    from,
		to:      to,
		relType: relType,
	})
	return true
}

func (s *Store) removeRel(from, to, relType string) bool {
	for i, r := range s.rels {
		if r.from == from && r.to == to && r.relType == relType {
			s.rels = append(s.rels[:i], s.rels[i+1:]...)
			return true
		}
	}
	return false
}

func hasLabel(n *node, label string) bool {
	for _, l := range n.labels {
		if l == label {
			return true
		}
	}
	return false
}

func neighbors(r relationship, id string) []string {
	var out []string
	if r.from == id {
		out = append(out, r.to)
	}
	if r.to == id {
		out = append(out, r.from)
	}
	return out
}

var _ store.Store = (*Store)(nil)
