package schema

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	pkgerrors "github.com/tinnou/graphom/pkg/errors"
)

// register resolves a struct type and, recursively, every entity type
// reachable through its relationship fields. Caller holds r.mu.
func (r *Registry) register(t reflect.Type) error {
	if _, ok := r.byType[t]; ok {
		return nil
	}

	nt := &NodeType{
		Label:   labelFor(t),
		GoType:  t,
		idIndex: -1,
	}
	// Reserve the slot before descending so reference cycles
	// (movie <-> actor) terminate.
	r.byType[t] = nt

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("graph")
		if tag == "-" {
			continue
		}
		kind, opts := parseTag(tag)

		switch kind {
		case "id":
			if field.Type.Kind() != reflect.String {
				return r.fail(t, pkgerrors.NewValidation(fmt.Sprintf(
					"%s.%s: identity field must be a string", t.Name(), field.Name)))
			}
			if nt.idIndex >= 0 {
				return r.fail(t, pkgerrors.NewValidation(fmt.Sprintf(
					"%s: multiple identity fields declared", t.Name())))
			}
			nt.idIndex = i

		case "rel":
			rel, err := parseRelationship(field, i, opts)
			if err != nil {
				return r.fail(t, err)
			}
			nt.Relationships = append(nt.Relationships, rel)
			if err := r.register(rel.Target); err != nil {
				return r.fail(t, err)
			}

		case "prop":
			name := opts["name"]
			if name == "" {
				name = lowerCamel(field.Name)
			}
			nt.Properties = append(nt.Properties, Property{Name: name, Index: i})

		case "":
			// Untagged exported fields: scalars become properties under
			// their lower-camel name; reference-shaped fields must be
			// tagged explicitly and are skipped otherwise.
			if isReferenceShaped(field.Type) {
				continue
			}
			nt.Properties = append(nt.Properties, Property{Name: lowerCamel(field.Name), Index: i})

		default:
			return r.fail(t, pkgerrors.NewValidation(fmt.Sprintf(
				"%s.%s: unknown graph tag kind %q", t.Name(), field.Name, kind)))
		}
	}

	if nt.idIndex < 0 {
		return r.fail(t, pkgerrors.NewValidation(fmt.Sprintf(
			"%s: no identity field declared (tag `graph:\"id\"`)", t.Name())))
	}
	if existing, ok := r.byLabel[nt.Label]; ok && existing.GoType != t {
		return r.fail(t, pkgerrors.NewValidation(fmt.Sprintf(
			"label %q registered for both %s and %s", nt.Label, existing.GoType, t)))
	}
	r.byLabel[nt.Label] = nt
	return nil
}

// fail removes a partially registered type so a later retry starts clean.
func (r *Registry) fail(t reflect.Type, err error) error {
	delete(r.byType, t)
	return err
}

func parseRelationship(field reflect.StructField, index int, opts map[string]string) (Relationship, error) {
	rel := Relationship{
		Type:      opts["type"],
		Direction: Outgoing,
		Index:     index,
	}
	if rel.Type == "" {
		rel.Type = relTypeFor(field.Name)
	}
	switch strings.ToLower(opts["direction"]) {
	case "", "outgoing":
		rel.Direction = Outgoing
	case "incoming":
		rel.Direction = Incoming
	default:
		return rel, pkgerrors.NewValidation(fmt.Sprintf(
			"%s: direction must be outgoing or incoming, got %q", field.Name, opts["direction"]))
	}

	ft := field.Type
	if ft.Kind() == reflect.Slice {
		rel.Collection = true
		ft = ft.Elem()
	}
	if ft.Kind() != reflect.Pointer || ft.Elem().Kind() != reflect.Struct {
		return rel, pkgerrors.NewValidation(fmt.Sprintf(
			"%s: relationship fields must be *T or []*T where T is a struct", field.Name))
	}
	rel.Target = ft.Elem()
	return rel, nil
}

func parseTag(tag string) (string, map[string]string) {
	if tag == "" {
		return "", nil
	}
	parts := strings.Split(tag, ",")
	opts := make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		if k, v, found := strings.Cut(p, "="); found {
			opts[strings.TrimSpace(k)] = strings.TrimSpace(v)
		} else {
			opts[strings.TrimSpace(p)] = ""
		}
	}
	return strings.TrimSpace(parts[0]), opts
}

func labelFor(t reflect.Type) string {
	if l, ok := reflect.New(t).Interface().(Labeled); ok {
		if label := l.GraphLabel(); label != "" {
			return label
		}
	}
	return t.Name()
}

// relTypeFor derives a default relationship type from a field name:
// TopActor -> TOP_ACTOR.
func relTypeFor(fieldName string) string {
	var b strings.Builder
	for i, r := range fieldName {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func lowerCamel(fieldName string) string {
	if fieldName == "" {
		return fieldName
	}
	return strings.ToLower(fieldName[:1]) + fieldName[1:]
}

// isReferenceShaped reports whether a field type looks like an entity
// reference (*T or []*T with struct T) rather than a scalar property.
func isReferenceShaped(t reflect.Type) bool {
	if t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct
}
