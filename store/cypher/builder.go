// Package cypher generates the parameterized Cypher statements behind
// the store contract: one statement list per write request, executed
// inside a single transaction, and depth-bounded fetch queries for load.
package cypher

import (
	"fmt"
	"strings"

	"github.com/tinnou/graphom/store"
)

// Statement is one parameterized Cypher statement. Statements that
// create a node carry the request-local ref their assigned identity
// must be recorded under; statements that touch relationship endpoints
// carry the refs the executor resolves into the fromId/toId parameters
// once identities are known.
type Statement struct {
	Text   string
	Params map[string]any

	LocalRef string
	FromRef  *store.NodeRef
	ToRef    *store.NodeRef
}

// BuildWrite translates a write request into an ordered statement list:
// node creations first (their assigned identities feed later
// statements), then property updates, relationship changes, and
// detach-deletes.
func BuildWrite(req *store.WriteRequest) []Statement {
	var stmts []Statement

	for _, up := range req.Upserts {
		if up.Ref.IsNew() {
			stmts = append(stmts, Statement{
				Text: fmt.Sprintf(
					"CREATE (n:%s) SET n += $props RETURN elementId(n) AS id",
					SanitizeLabel(up.Label)),
				Params:   map[string]any{"props": nonNilProps(up.Props)},
				LocalRef: up.Ref.Local,
			})
			continue
		}
		stmts = append(stmts, Statement{
			Text: "MATCH (n) WHERE elementId(n) = $id SET n += $props",
			Params: map[string]any{
				"id":    up.Ref.Identity,
				"props": nonNilProps(up.Props),
			},
		})
	}

	for _, rc := range req.RelAdds {
		from, to := rc.From, rc.To
		stmts = append(stmts, Statement{
			Text: fmt.Sprintf(
				"MATCH (from), (to) WHERE elementId(from) = $fromId AND elementId(to) = $toId MERGE (from)-[r:%s]->(to)",
				SanitizeRelType(rc.Type)),
			Params:  map[string]any{},
			FromRef: &from,
			ToRef:   &to,
		})
	}

	for _, rc := range req.RelRemovals {
		from, to := rc.From, rc.To
		stmts = append(stmts, Statement{
			Text: fmt.Sprintf(
				"MATCH (from)-[r:%s]->(to) WHERE elementId(from) = $fromId AND elementId(to) = $toId DELETE r",
				SanitizeRelType(rc.Type)),
			Params:  map[string]any{},
			FromRef: &from,
			ToRef:   &to,
		})
	}

	for _, id := range req.Deletes {
		stmts = append(stmts, Statement{
			Text:   "MATCH (n) WHERE elementId(n) = $id DETACH DELETE n",
			Params: map[string]any{"id": id},
		})
	}

	return stmts
}

// BuildFetch generates the depth-bounded neighborhood query for a load.
// The root identity is bound to the $id parameter. Depth 0 returns the
// root alone; -1 places no bound on the pattern length.
func BuildFetch(label string, depth int) string {
	root := fmt.Sprintf("MATCH (root:%s) WHERE elementId(root) = $id", SanitizeLabel(label))
	if depth == 0 {
		return root + " RETURN root, [] AS paths"
	}

	bound := ""
	if depth > 0 {
		bound = fmt.Sprintf("%d", depth)
	}
	return fmt.Sprintf("%s OPTIONAL MATCH p = (root)-[*1..%s]-() RETURN root, collect(p) AS paths", root, bound)
}

// SanitizeLabel restricts a node label to alphanumerics and underscores.
// Labels are interpolated into query text, never parameterized, so this
// is the injection boundary.
func SanitizeLabel(label string) string {
	return sanitizeIdentifier(label)
}

// SanitizeRelType restricts a relationship type to alphanumerics and
// underscores.
func SanitizeRelType(relType string) string {
	return sanitizeIdentifier(relType)
}

// SanitizeProperty restricts a property name to alphanumerics and
// underscores.
func SanitizeProperty(name string) string {
	return sanitizeIdentifier(name)
}

func sanitizeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func nonNilProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}
