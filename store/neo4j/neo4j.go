// Package neo4j implements the store contract against a Neo4j endpoint
// using the official bolt driver. Each write request runs inside a
// single managed write transaction, so a save either applies completely
// or not at all, and all calls go through one driver bound to a single
// resolved endpoint URI; routing a session's traffic to the current
// writer node in a cluster is the deployment's concern.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	pkgerrors "github.com/tinnou/graphom/pkg/errors"
	"github.com/tinnou/graphom/store"
	"github.com/tinnou/graphom/store/cypher"
)

// Config contains the connection settings for a Neo4j store.
type Config struct {
	// URI is the bolt connection URI, e.g. "bolt://host:7687" or
	// "neo4j+s://host" for routed TLS connections.
	URI      string
	Username string
	Password string
	// Database selects the database; empty uses the server default.
	Database string

	MaxConnectionPoolSize   int
	ConnectionTimeout       time.Duration
	MaxTransactionRetryTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URI:                     "bolt://localhost:7687",
		Username:                "neo4j",
		Password:                "password",
		MaxConnectionPoolSize:   50,
		ConnectionTimeout:       30 * time.Second,
		MaxTransactionRetryTime: 30 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URI == "" {
		return pkgerrors.NewValidation("neo4j URI must not be empty")
	}
	return nil
}

// Store is the Neo4j-backed store. Safe for concurrent use; many
// sessions may share one Store.
type Store struct {
	config  Config
	driver  neo4j.DriverWithContext
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Neo4j store. Connect must be called before use.
func New(config Config, opts ...Option) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		config: config,
		logger: zap.NewNop(),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "neo4j-store",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Connect establishes the driver connection with exponential backoff.
func (s *Store) Connect(ctx context.Context) error {
	auth := neo4j.BasicAuth(s.config.Username, s.config.Password, "")
	driverConfig := func(config *neo4j.Config) {
		config.MaxConnectionPoolSize = s.config.MaxConnectionPoolSize
		config.ConnectionAcquisitionTimeout = s.config.ConnectionTimeout
		config.MaxTransactionRetryTime = s.config.MaxTransactionRetryTime
	}

	var lastErr error
	maxRetries := 5
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		driver, err := neo4j.NewDriverWithContext(s.config.URI, auth, driverConfig)
		if err == nil {
			if err = driver.VerifyConnectivity(ctx); err == nil {
				s.driver = driver
				s.logger.Info("connected to neo4j", zap.String("uri", s.config.URI))
				return nil
			}
		}
		lastErr = err

		if ctx.Err() != nil {
			return pkgerrors.NewConnectivity("connection attempt cancelled", ctx.Err())
		}

		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > s.config.ConnectionTimeout {
			delay = s.config.ConnectionTimeout
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return pkgerrors.NewConnectivity("connection attempt cancelled", ctx.Err())
		}
	}

	return pkgerrors.NewConnectivity(
		fmt.Sprintf("failed to connect after %d attempts", maxRetries), lastErr)
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	if err := s.driver.Close(ctx); err != nil {
		return pkgerrors.NewConnectivity("failed to close driver", err)
	}
	s.driver = nil
	return nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.driver == nil {
		return pkgerrors.NewConnectivity("driver not connected", nil)
	}
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// ApplyWrite runs the whole request in one managed write transaction.
func (s *Store) ApplyWrite(ctx context.Context, req *store.WriteRequest) (*store.WriteResult, error) {
	if s.driver == nil {
		return nil, pkgerrors.NewConnectivity("driver not connected", nil)
	}

	out, err := s.breaker.Execute(func() (any, error) {
		session := s.driver.NewSession(ctx, neo4j.SessionConfig{
			DatabaseName: s.config.Database,
			AccessMode:   neo4j.AccessModeWrite,
		})
		defer session.Close(ctx)

		return session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return s.executeStatements(ctx, tx, req)
		})
	})
	if err != nil {
		return nil, classify(err)
	}
	return out.(*store.WriteResult), nil
}

// executeStatements runs the request's statements in order, resolving
// request-local refs to identities as node creations return them.
func (s *Store) executeStatements(ctx context.Context, tx neo4j.ManagedTransaction, req *store.WriteRequest) (*store.WriteResult, error) {
	result := &store.WriteResult{AssignedIDs: make(map[string]string)}

	resolve := func(ref *store.NodeRef) (string, error) {
		if !ref.IsNew() {
			return ref.Identity, nil
		}
		id, ok := result.AssignedIDs[ref.Local]
		if !ok {
			return "", fmt.Errorf("unresolved local ref %s", ref.Local)
		}
		return id, nil
	}

	for _, stmt := range cypher.BuildWrite(req) {
		if stmt.FromRef != nil {
			id, err := resolve(stmt.FromRef)
			if err != nil {
				return nil, err
			}
			stmt.Params["fromId"] = id
		}
		if stmt.ToRef != nil {
			id, err := resolve(stmt.ToRef)
			if err != nil {
				return nil, err
			}
			stmt.Params["toId"] = id
		}

		res, err := tx.Run(ctx, stmt.Text, stmt.Params)
		if err != nil {
			return nil, err
		}
		if stmt.LocalRef != "" {
			record, err := res.Single(ctx)
			if err != nil {
				return nil, err
			}
			id, ok := record.Get("id")
			if !ok {
				return nil, fmt.Errorf("node creation returned no identity")
			}
			result.AssignedIDs[stmt.LocalRef] = id.(string)
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		if counters := summary.Counters(); counters != nil {
			result.Summary.NodesCreated += counters.NodesCreated()
			result.Summary.NodesDeleted += counters.NodesDeleted()
			result.Summary.RelationshipsCreated += counters.RelationshipsCreated()
			result.Summary.RelationshipsDeleted += counters.RelationshipsDeleted()
			result.Summary.PropertiesSet += counters.PropertiesSet()
		}
	}

	return result, nil
}

// FetchSubgraph reads the root node and its neighborhood up to depth
// hops in one read transaction.
func (s *Store) FetchSubgraph(ctx context.Context, label, identity string, depth int) (*store.Subgraph, error) {
	if s.driver == nil {
		return nil, pkgerrors.NewConnectivity("driver not connected", nil)
	}

	out, err := s.breaker.Execute(func() (any, error) {
		session := s.driver.NewSession(ctx, neo4j.SessionConfig{
			DatabaseName: s.config.Database,
			AccessMode:   neo4j.AccessModeRead,
		})
		defer session.Close(ctx)

		return session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, cypher.BuildFetch(label, depth), map[string]any{"id": identity})
			if err != nil {
				return nil, err
			}
			records, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			if len(records) == 0 {
				return nil, errNoRoot
			}
			return collectSubgraph(identity, records)
		})
	})
	if err != nil {
		if errors.Is(err, errNoRoot) {
			return nil, pkgerrors.NewNotFound(fmt.Sprintf("no %s node with identity %s", label, identity))
		}
		return nil, classify(err)
	}
	return out.(*store.Subgraph), nil
}

// Run executes an arbitrary read query. Node and relationship values in
// the result set are converted to their generic wire records.
func (s *Store) Run(ctx context.Context, text string, params map[string]any) (*store.QueryResult, error) {
	if s.driver == nil {
		return nil, pkgerrors.NewConnectivity("driver not connected", nil)
	}

	out, err := s.breaker.Execute(func() (any, error) {
		session := s.driver.NewSession(ctx, neo4j.SessionConfig{
			DatabaseName: s.config.Database,
			AccessMode:   neo4j.AccessModeRead,
		})
		defer session.Close(ctx)

		return session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, text, params)
			if err != nil {
				return nil, err
			}
			records, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			return convertRecords(records), nil
		})
	})
	if err != nil {
		return nil, classify(err)
	}
	return out.(*store.QueryResult), nil
}

var errNoRoot = errors.New("root node not found")

// collectSubgraph unpacks root + collected paths into the generic wire
// shape, deduplicating nodes and relationships by element id.
func collectSubgraph(rootID string, records []*neo4j.Record) (*store.Subgraph, error) {
	sg := &store.Subgraph{RootID: rootID}
	seenNodes := make(map[string]struct{})
	seenRels := make(map[string]struct{})

	addNode := func(n neo4j.Node) {
		if _, ok := seenNodes[n.ElementId]; ok {
			return
		}
		seenNodes[n.ElementId] = struct{}{}
		sg.Nodes = append(sg.Nodes, store.NodeRecord{
			ID:     n.ElementId,
			Labels: n.Labels,
			Props:  n.Props,
		})
	}
	addRel := func(r neo4j.Relationship) {
		if _, ok := seenRels[r.ElementId]; ok {
			return
		}
		seenRels[r.ElementId] = struct{}{}
		sg.Rels = append(sg.Rels, store.RelRecord{
			ID:    r.ElementId,
			From:  r.StartElementId,
			To:    r.EndElementId,
			Type:  r.Type,
			Props: r.Props,
		})
	}

	for _, record := range records {
		if raw, ok := record.Get("root"); ok {
			if n, ok := raw.(neo4j.Node); ok {
				addNode(n)
			}
		}
		raw, ok := record.Get("paths")
		if !ok {
			continue
		}
		paths, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, p := range paths {
			path, ok := p.(neo4j.Path)
			if !ok {
				continue
			}
			for _, n := range path.Nodes {
				addNode(n)
			}
			for _, r := range path.Relationships {
				addRel(r)
			}
		}
	}
	return sg, nil
}

// convertRecords converts driver records to the generic result shape.
func convertRecords(records []*neo4j.Record) *store.QueryResult {
	result := &store.QueryResult{}
	if len(records) > 0 {
		result.Columns = records[0].Keys
	}
	for _, record := range records {
		row := make(map[string]any, len(record.Keys))
		for i, key := range record.Keys {
			row[key] = convertValue(record.Values[i])
		}
		result.Records = append(result.Records, row)
	}
	return result
}

func convertValue(v any) any {
	switch typed := v.(type) {
	case neo4j.Node:
		return store.NodeRecord{ID: typed.ElementId, Labels: typed.Labels, Props: typed.Props}
	case neo4j.Relationship:
		return store.RelRecord{
			ID:    typed.ElementId,
			From:  typed.StartElementId,
			To:    typed.EndElementId,
			Type:  typed.Type,
			Props: typed.Props,
		}
	default:
		return v
	}
}

// classify maps driver errors onto the library's error taxonomy: cluster
// role rejections become stale bindings, constraint and statement
// rejections become conflicts, and everything transport-shaped becomes a
// connectivity failure.
func classify(err error) error {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		code := neoErr.Code
		switch {
		case strings.Contains(code, "Cluster.NotALeader"),
			strings.Contains(code, "ForbiddenOnReadOnlyDatabase"),
			strings.Contains(code, "WriteOnReadOnlyAccessDatabase"):
			return pkgerrors.NewStaleBinding("endpoint cannot accept writes in its current role", err)
		case strings.HasPrefix(code, "Neo.ClientError"):
			return pkgerrors.NewConflict("store rejected the request", err)
		default:
			return pkgerrors.NewInternal("store reported an error", err)
		}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pkgerrors.NewConnectivity("endpoint circuit breaker is open", err)
	}
	return pkgerrors.NewConnectivity("transport failure", err)
}

var _ store.Store = (*Store)(nil)
