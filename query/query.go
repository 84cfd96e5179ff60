// Package query builds the read requests the session executes: raw
// templated Cypher with named parameters, or default finders derived
// from a method-name-style specification. Paging and sorting are
// accepted only by derived finders and are passed through unmodified.
package query

import (
	"fmt"
	"strings"

	pkgerrors "github.com/tinnou/graphom/pkg/errors"
	"github.com/tinnou/graphom/store/cypher"
)

// Query is anything the session can execute against the store.
type Query interface {
	// Cypher returns the query text and its named parameter bindings.
	Cypher() (string, map[string]any, error)
}

// Sort is one sort key with its direction.
type Sort struct {
	Property   string
	Descending bool
}

// Pageable carries paging and sorting parameters for default finder
// operations. Page is zero-based.
type Pageable struct {
	Page int
	Size int
	Sort []Sort
}

// Raw is a templated query with named placeholders, executed verbatim.
type Raw struct {
	Text   string
	Params map[string]any
}

// NewRaw creates a raw query.
func NewRaw(text string, params map[string]any) Raw {
	return Raw{Text: text, Params: params}
}

// Cypher implements Query.
func (r Raw) Cypher() (string, map[string]any, error) {
	if strings.TrimSpace(r.Text) == "" {
		return "", nil, pkgerrors.NewValidation("query text must not be empty")
	}
	params := r.Params
	if params == nil {
		params = map[string]any{}
	}
	return r.Text, params, nil
}

// Finder is a default finder derived from a method-name-style
// specification such as "FindByTitleAndReleased".
type Finder struct {
	label      string
	conditions []condition
	args       []any
	pageable   *Pageable
}

type condition struct {
	property string
	or       bool // joined to the previous condition with OR
}

// Derive parses a finder specification for one entity label. The
// specification lists property conditions joined by And/Or, one
// positional argument per condition:
//
//	Derive("Movie", "FindByTitle", "Heat")
//	Derive("Movie", "FindByTitleOrReleased", "Heat", 1995)
func Derive(label, spec string, args ...any) (*Finder, error) {
	if label == "" {
		return nil, pkgerrors.NewValidation("finder label must not be empty")
	}
	body, ok := strings.CutPrefix(spec, "FindBy")
	if !ok {
		body, ok = strings.CutPrefix(spec, "findBy")
	}
	if !ok || body == "" {
		return nil, pkgerrors.NewValidation(fmt.Sprintf(
			"finder specification %q must be of the form FindBy<Property>[And|Or<Property>...]", spec))
	}

	conditions, err := parseConditions(body)
	if err != nil {
		return nil, err
	}
	if len(args) != len(conditions) {
		return nil, pkgerrors.NewValidation(fmt.Sprintf(
			"finder %q expects %d arguments, got %d", spec, len(conditions), len(args)))
	}

	return &Finder{label: label, conditions: conditions, args: args}, nil
}

// WithPageable attaches paging and sorting. Only derived finders accept
// these parameters; raw queries run verbatim.
func (f *Finder) WithPageable(p Pageable) *Finder {
	clone := *f
	clone.pageable = &p
	return &clone
}

// Cypher implements Query. The label and property names are interpolated
// into the query text, never parameterized, so they pass through the same
// identifier sanitization the write path uses.
func (f *Finder) Cypher() (string, map[string]any, error) {
	var b strings.Builder
	params := make(map[string]any, len(f.args))

	fmt.Fprintf(&b, "MATCH (n:%s)", cypher.SanitizeLabel(f.label))
	if len(f.conditions) > 0 {
		b.WriteString(" WHERE ")
		for i, c := range f.conditions {
			if i > 0 {
				if c.or {
					b.WriteString(" OR ")
				} else {
					b.WriteString(" AND ")
				}
			}
			param := fmt.Sprintf("p%d", i)
			fmt.Fprintf(&b, "n.%s = $%s", cypher.SanitizeProperty(c.property), param)
			params[param] = f.args[i]
		}
	}
	b.WriteString(" RETURN n")

	if p := f.pageable; p != nil {
		for i, s := range p.Sort {
			if i == 0 {
				b.WriteString(" ORDER BY ")
			} else {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "n.%s", cypher.SanitizeProperty(s.Property))
			if s.Descending {
				b.WriteString(" DESC")
			}
		}
		if p.Size > 0 {
			fmt.Fprintf(&b, " SKIP %d LIMIT %d", p.Page*p.Size, p.Size)
		}
	}

	return b.String(), params, nil
}

// parseConditions splits "TitleAndReleased" style bodies into property
// conditions, remembering whether each one joins with And or Or.
func parseConditions(body string) ([]condition, error) {
	var conditions []condition
	rest := body
	or := false
	for rest != "" {
		andIdx := nextConnector(rest, "And")
		orIdx := nextConnector(rest, "Or")

		end := len(rest)
		nextOr := false
		skip := 0
		if andIdx >= 0 && (orIdx < 0 || andIdx < orIdx) {
			end, skip = andIdx, len("And")
		} else if orIdx >= 0 {
			end, skip, nextOr = orIdx, len("Or"), true
		}

		prop := rest[:end]
		if prop == "" {
			return nil, pkgerrors.NewValidation(fmt.Sprintf(
				"malformed finder condition list %q", body))
		}
		conditions = append(conditions, condition{property: lowerCamel(prop), or: or})
		rest = rest[end+skip:]
		or = nextOr
	}
	return conditions, nil
}

// nextConnector finds the first occurrence of a connector keyword that
// starts a new CamelCase word (so properties like "Android" do not split
// on "And").
func nextConnector(s, connector string) int {
	from := 1
	for {
		idx := strings.Index(s[from:], connector)
		if idx < 0 {
			return -1
		}
		idx += from
		rest := s[idx+len(connector):]
		if rest != "" && rest[0] >= 'A' && rest[0] <= 'Z' {
			return idx
		}
		from = idx + 1
		if from >= len(s) {
			return -1
		}
	}
}

func lowerCamel(name string) string {
	return strings.ToLower(name[:1]) + name[1:]
}
