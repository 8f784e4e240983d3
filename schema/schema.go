// Package schema holds the capability registry: the per-entity, per-field
// record of what the search index can do. The registry is declared up front
// (YAML file or builder), normalized and validated once at startup, and
// immutable afterwards; request-time eligibility checks are plain map
// lookups with no reflection involved.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// FieldType determines how a field is mapped into the index and how its
// values are compared.
type FieldType string

const (
	// FieldKeyword is an untokenized string, compared verbatim.
	FieldKeyword FieldType = "keyword"
	// FieldText is analyzed full text.
	FieldText FieldType = "text"
	// FieldNumber is a numeric value.
	FieldNumber FieldType = "number"
	// FieldBool is a boolean value.
	FieldBool FieldType = "bool"
	// FieldTime is an RFC 3339 timestamp.
	FieldTime FieldType = "time"
)

func validFieldType(t FieldType) bool {
	switch t {
	case FieldKeyword, FieldText, FieldNumber, FieldBool, FieldTime:
		return true
	}
	return false
}

// SubField is an additional index-side projection of the same logical
// field, stored under its own name. A field counts as indexed when the
// field itself or any of its subfields is indexed.
type SubField struct {
	// Name is the index-side name of the projection.
	Name string `yaml:"name"`
	// Indexed marks the projection as queryable.
	Indexed bool `yaml:"indexed"`
}

// Field describes one entity field's index capabilities.
type Field struct {
	// Type selects the index mapping and comparison semantics. Defaults to
	// keyword when empty.
	Type FieldType `yaml:"type"`
	// Indexed marks the field as queryable through the index.
	Indexed bool `yaml:"indexed"`
	// Sortable marks the field as usable as an index-side sort key.
	Sortable bool `yaml:"sortable"`
	// Alias is the name the field is stored under in the index when it
	// differs from the field name.
	Alias string `yaml:"alias"`
	// SortAlias is the index-side name used for sorting when it differs
	// from Alias (a sort-optimized projection of the same field).
	SortAlias string `yaml:"sort_alias"`
	// SubFields are additional indexed projections of this field.
	SubFields []SubField `yaml:"subfields"`
}

// Entity groups the declared fields of one entity type.
type Entity struct {
	Fields map[string]Field `yaml:"fields"`
}

// Registry answers capability questions for (entity, field) pairs. Build it
// once at startup; it is safe for concurrent readers and never changes
// afterwards.
type Registry struct {
	entities map[string]Entity
}

// Build validates and freezes the declared entities into a Registry.
func Build(entities map[string]Entity) (*Registry, error) {
	frozen := make(map[string]Entity, len(entities))
	for name, entity := range entities {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("schema: entity with empty name")
		}
		fields := make(map[string]Field, len(entity.Fields))
		for fieldName, field := range entity.Fields {
			fieldName = strings.TrimSpace(fieldName)
			if fieldName == "" {
				return nil, fmt.Errorf("schema: entity %s: field with empty name", name)
			}
			if field.Type == "" {
				field.Type = FieldKeyword
			}
			if !validFieldType(field.Type) {
				return nil, fmt.Errorf("schema: entity %s: field %s: unknown type %q", name, fieldName, field.Type)
			}
			for _, sub := range field.SubFields {
				if strings.TrimSpace(sub.Name) == "" {
					return nil, fmt.Errorf("schema: entity %s: field %s: subfield with empty name", name, fieldName)
				}
			}
			fields[fieldName] = field
		}
		frozen[name] = Entity{Fields: fields}
	}
	return &Registry{entities: frozen}, nil
}

// Field returns the declaration for (entity, field) and whether it exists.
func (r *Registry) Field(entity, field string) (Field, bool) {
	if r == nil {
		return Field{}, false
	}
	e, ok := r.entities[entity]
	if !ok {
		return Field{}, false
	}
	f, ok := e.Fields[field]
	return f, ok
}

// IsIndexed reports whether the field, or any of its subfield projections,
// is queryable through the index. Unknown entities and fields are not.
func (r *Registry) IsIndexed(entity, field string) bool {
	f, ok := r.Field(entity, field)
	if !ok {
		return false
	}
	if f.Indexed {
		return true
	}
	for _, sub := range f.SubFields {
		if sub.Indexed {
			return true
		}
	}
	return false
}

// IsSortable reports whether the field can serve as an index-side sort key.
func (r *Registry) IsSortable(entity, field string) bool {
	f, ok := r.Field(entity, field)
	return ok && f.Sortable
}

// IndexAlias returns the index-side name queries should target for the
// field: the declared alias, else the first indexed subfield projection,
// else the field name itself. The second return is false for unknown or
// non-indexed fields.
func (r *Registry) IndexAlias(entity, field string) (string, bool) {
	f, ok := r.Field(entity, field)
	if !ok {
		return "", false
	}
	if f.Indexed {
		if f.Alias != "" {
			return f.Alias, true
		}
		return field, true
	}
	for _, sub := range f.SubFields {
		if sub.Indexed {
			return sub.Name, true
		}
	}
	return "", false
}

// SortAlias returns the index-side name sorting should target: the declared
// sort alias, else the field's alias, else the field name.
func (r *Registry) SortAlias(entity, field string) string {
	f, ok := r.Field(entity, field)
	if !ok {
		return field
	}
	if f.SortAlias != "" {
		return f.SortAlias
	}
	if f.Alias != "" {
		return f.Alias
	}
	return field
}

// Entities returns the declared entity names in sorted order.
func (r *Registry) Entities() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fields returns the declared field names of an entity in sorted order.
func (r *Registry) Fields(entity string) []string {
	e, ok := r.entities[entity]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasIndexedFields reports whether any field of the entity is indexed;
// entities without indexed fields are skipped by bootstrap and can never
// route to the index.
func (r *Registry) HasIndexedFields(entity string) bool {
	e, ok := r.entities[entity]
	if !ok {
		return false
	}
	for name := range e.Fields {
		if r.IsIndexed(entity, name) {
			return true
		}
	}
	return false
}
