// Package store defines the graph store boundary: the wire-level write
// and read contracts the session core issues against a single resolved
// store endpoint. Routing a whole session to one cluster node (the store
// does not share open transactions across nodes) is a deployment concern
// handled outside this package.
package store

import (
	"context"
)

// NodeRef identifies one node within a WriteRequest. Persisted nodes
// carry their identity; new nodes carry a request-local ref that the
// store resolves to a server-assigned identity in the WriteResult.
type NodeRef struct {
	Identity string
	Local    string
}

// IsNew reports whether the node has no assigned identity yet.
func (r NodeRef) IsNew() bool {
	return r.Identity == ""
}

// Key returns the identity when assigned, else the local ref.
func (r NodeRef) Key() string {
	if r.Identity != "" {
		return r.Identity
	}
	return r.Local
}

// NodeUpsert creates a node or updates the changed properties of an
// existing one.
type NodeUpsert struct {
	Ref   NodeRef
	Label string
	// Props holds only the properties that changed.
	Props map[string]any
}

// RelationshipChange adds or removes one edge. From and To are already
// resolved to the stored edge direction by the request builder.
type RelationshipChange struct {
	From NodeRef
	To   NodeRef
	Type string
}

// WriteRequest is one atomic write unit covering every non-empty delta
// of a single save, or the detach-deletes of a delete call. Either the
// whole request applies or none of it does.
type WriteRequest struct {
	// ID identifies the request in logs and traces.
	ID string

	Upserts     []NodeUpsert
	RelAdds     []RelationshipChange
	RelRemovals []RelationshipChange
	// Deletes lists identities to detach-delete.
	Deletes []string
}

// IsEmpty reports whether the request carries no work at all.
func (w *WriteRequest) IsEmpty() bool {
	return len(w.Upserts) == 0 && len(w.RelAdds) == 0 &&
		len(w.RelRemovals) == 0 && len(w.Deletes) == 0
}

// Counters summarizes what a write changed in the store.
type Counters struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
}

// WriteResult reports the outcome of a successful WriteRequest.
type WriteResult struct {
	// AssignedIDs maps each new node's local ref to its server-assigned
	// identity.
	AssignedIDs map[string]string
	Summary     Counters
}

// NodeRecord is the generic wire shape of one fetched node.
type NodeRecord struct {
	ID     string
	Labels []string
	Props  map[string]any
}

// RelRecord is the generic wire shape of one fetched relationship.
type RelRecord struct {
	ID    string
	From  string
	To    string
	Type  string
	Props map[string]any
}

// Subgraph is the result of a depth-bounded fetch: the root node plus
// everything reachable within the requested number of hops.
type Subgraph struct {
	RootID string
	Nodes  []NodeRecord
	Rels   []RelRecord
}

// QueryResult holds the rows of an arbitrary read query.
type QueryResult struct {
	Columns []string
	Records []map[string]any
}

// Store is the graph store endpoint contract. Implementations must be
// safe for concurrent use; sessions themselves are not shared, but many
// sessions may share one Store.
type Store interface {
	// ApplyWrite applies the whole request in one transaction. On any
	// error nothing is applied.
	ApplyWrite(ctx context.Context, req *WriteRequest) (*WriteResult, error)

	// FetchSubgraph reads the node with the given label and identity and
	// its neighborhood up to depth hops (-1 for unbounded). Returns a
	// NotFound error when the root does not exist.
	FetchSubgraph(ctx context.Context, label, identity string, depth int) (*Subgraph, error)

	// Run executes a read query with named parameters.
	Run(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error)

	// Ping verifies connectivity to the endpoint.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close(ctx context.Context) error
}
