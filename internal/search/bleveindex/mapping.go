// Package bleveindex is the index side of the read path: it maps registry
// declarations onto a bleve index, translates filter trees and sort specs
// into bleve's native query and sort shapes, executes translated queries
// with pagination and totals, and bulk-builds the index from the primary
// store at startup.
package bleveindex

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"pkt.systems/sift/schema"
)

// typeField scopes every document to its entity. It is indexed as a keyword
// in every document mapping so translated queries can conjoin a type term.
const typeField = "_type"

// BuildMapping derives the bleve index mapping from the registry: one
// document mapping per entity, one field mapping per indexed projection
// (field alias, indexed subfields, and sort projections), typed per the
// registry's field type. Dynamic mapping stays off so only declared
// projections are indexed.
func BuildMapping(reg *schema.Registry) mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.TypeField = typeField
	im.DefaultMapping.Dynamic = false

	for _, entity := range reg.Entities() {
		dm := bleve.NewDocumentMapping()
		dm.Dynamic = false
		dm.AddFieldMappingsAt(typeField, bleve.NewKeywordFieldMapping())

		for _, name := range reg.Fields(entity) {
			field, _ := reg.Field(entity, name)
			mapped := map[string]bool{}
			if field.Indexed {
				alias := name
				if field.Alias != "" {
					alias = field.Alias
				}
				dm.AddFieldMappingsAt(alias, fieldMapping(field.Type))
				mapped[alias] = true
			}
			for _, sub := range field.SubFields {
				if !sub.Indexed || mapped[sub.Name] {
					continue
				}
				dm.AddFieldMappingsAt(sub.Name, fieldMapping(field.Type))
				mapped[sub.Name] = true
			}
			if field.Sortable {
				sortAlias := reg.SortAlias(entity, name)
				if !mapped[sortAlias] {
					// A dedicated sort projection of analyzed text is stored
					// untokenized; all other types sort on their own terms.
					t := field.Type
					if t == schema.FieldText {
						t = schema.FieldKeyword
					}
					dm.AddFieldMappingsAt(sortAlias, fieldMapping(t))
					mapped[sortAlias] = true
				}
			}
		}
		im.AddDocumentMapping(entity, dm)
	}
	return im
}

func fieldMapping(t schema.FieldType) *mapping.FieldMapping {
	switch t {
	case schema.FieldText:
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = "standard"
		return fm
	case schema.FieldNumber:
		return bleve.NewNumericFieldMapping()
	case schema.FieldBool:
		return bleve.NewBooleanFieldMapping()
	case schema.FieldTime:
		return bleve.NewDateTimeFieldMapping()
	default:
		return bleve.NewKeywordFieldMapping()
	}
}
