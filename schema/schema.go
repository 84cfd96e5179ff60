// Package schema discovers and caches entity metadata for the mapper.
//
// Entity types are plain Go structs annotated with `graph` struct tags.
// Metadata is resolved by reflection exactly once per type and kept in a
// Registry; the rest of the library treats the result as a read-only
// schema description.
//
//	type Movie struct {
//	    ID       string  `graph:"id"`
//	    Title    string  `graph:"prop,name=title"`
//	    TopActor *Actor  `graph:"rel,type=TOP_ACTOR,direction=outgoing"`
//	}
package schema

import (
	"fmt"
	"reflect"
	"sync"

	pkgerrors "github.com/tinnou/graphom/pkg/errors"
)

// Direction indicates which way a relationship points in the graph.
// It affects traversal queries only; change detection is always driven
// by the side that declares the reference field.
type Direction string

const (
	Outgoing Direction = "OUTGOING"
	Incoming Direction = "INCOMING"
)

// Labeled lets an entity override the node label derived from its type name.
type Labeled interface {
	GraphLabel() string
}

// Property describes one scalar field of an entity type.
type Property struct {
	// Name is the graph property name.
	Name string
	// Index is the struct field index.
	Index int
}

// Relationship describes one reference field of an entity type.
type Relationship struct {
	// Type is the relationship type in the graph (e.g. "TOP_ACTOR").
	Type string
	// Direction of the declared relationship.
	Direction Direction
	// Index is the struct field index holding the reference.
	Index int
	// Target is the referenced entity struct type (element type, not pointer).
	Target reflect.Type
	// Collection is true for slice-valued reference fields.
	Collection bool
}

// Key returns the snapshot key for this relationship: type plus direction.
func (r Relationship) Key() string {
	return r.Type + "|" + string(r.Direction)
}

// NodeType is the resolved metadata for one entity type.
type NodeType struct {
	Label         string
	GoType        reflect.Type // struct type, without pointer
	Properties    []Property
	Relationships []Relationship

	idIndex int
}

// IdentityOf returns the assigned identity of the entity, or the empty
// string when the entity has never been persisted.
func (nt *NodeType) IdentityOf(entity any) string {
	return entityValue(entity).Field(nt.idIndex).String()
}

// SetIdentity assigns a server-issued identity to the entity.
func (nt *NodeType) SetIdentity(entity any, id string) {
	entityValue(entity).Field(nt.idIndex).SetString(id)
}

// PropertyValues captures the entity's current scalar state, keyed by
// graph property name.
func (nt *NodeType) PropertyValues(entity any) map[string]any {
	v := entityValue(entity)
	props := make(map[string]any, len(nt.Properties))
	for _, p := range nt.Properties {
		props[p.Name] = v.Field(p.Index).Interface()
	}
	return props
}

// Related returns the non-nil referenced entities for one relationship
// field, always as a slice regardless of the field's cardinality.
func (nt *NodeType) Related(entity any, rel Relationship) []any {
	f := entityValue(entity).Field(rel.Index)
	if rel.Collection {
		out := make([]any, 0, f.Len())
		for i := 0; i < f.Len(); i++ {
			if e := f.Index(i); !e.IsNil() {
				out = append(out, e.Interface())
			}
		}
		return out
	}
	if f.IsNil() {
		return nil
	}
	return []any{f.Interface()}
}

// SetRelated replaces the relationship field with the given targets.
// A nil or empty slice clears the field.
func (nt *NodeType) SetRelated(entity any, rel Relationship, targets []any) error {
	f := entityValue(entity).Field(rel.Index)
	if rel.Collection {
		slice := reflect.MakeSlice(f.Type(), 0, len(targets))
		for _, t := range targets {
			tv := reflect.ValueOf(t)
			if !tv.Type().AssignableTo(f.Type().Elem()) {
				return pkgerrors.NewValidation(fmt.Sprintf(
					"cannot assign %s to relationship %s of %s", tv.Type(), rel.Type, nt.Label))
			}
			slice = reflect.Append(slice, tv)
		}
		f.Set(slice)
		return nil
	}
	if len(targets) == 0 {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}
	tv := reflect.ValueOf(targets[0])
	if !tv.Type().AssignableTo(f.Type()) {
		return pkgerrors.NewValidation(fmt.Sprintf(
			"cannot assign %s to relationship %s of %s", tv.Type(), rel.Type, nt.Label))
	}
	f.Set(tv)
	return nil
}

// Registry caches resolved NodeType metadata, by Go type and by label.
// Safe for concurrent lookups after registration.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*NodeType
	byLabel map[string]*NodeType
}

// NewRegistry creates an empty metadata registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[reflect.Type]*NodeType),
		byLabel: make(map[string]*NodeType),
	}
}

// Register resolves metadata for the given entity prototypes and every
// entity type reachable through their relationship fields.
func (r *Registry) Register(prototypes ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range prototypes {
		t, err := structTypeOf(p)
		if err != nil {
			return err
		}
		if err := r.register(t); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the metadata for the entity's type.
func (r *Registry) Lookup(entity any) (*NodeType, error) {
	t, err := structTypeOf(entity)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	nt, ok := r.byType[t]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.NewValidation(fmt.Sprintf("entity type %s is not registered", t))
	}
	return nt, nil
}

// ByLabel returns the metadata registered under the given node label.
func (r *Registry) ByLabel(label string) (*NodeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nt, ok := r.byLabel[label]
	return nt, ok
}

// Labels returns all registered node labels.
func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	labels := make([]string, 0, len(r.byLabel))
	for l := range r.byLabel {
		labels = append(labels, l)
	}
	return labels
}

func entityValue(entity any) reflect.Value {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v
}

func structTypeOf(entity any) (reflect.Type, error) {
	t := reflect.TypeOf(entity)
	if t == nil {
		return nil, pkgerrors.NewValidation("entity must not be nil")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, pkgerrors.NewValidation(fmt.Sprintf("entity must be a struct or struct pointer, got %s", t.Kind()))
	}
	return t, nil
}
