package provider

import (
	"github.com/leapstack-labs/schemagraph/internal/palette"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// normalize turns search results into tables and relations. Colors follow
// result order, so a provider reordering its results reorders colors too.
// Non-database results are skipped without consuming a color.
func normalize(results []database, untitled string) *core.Schema {
	schema := &core.Schema{
		Tables:    []core.RawTable{},
		Relations: []core.RawRelation{},
	}

	for _, db := range results {
		if db.Object != "" && db.Object != "database" {
			continue
		}
		index := len(schema.Tables)

		table := core.RawTable{
			ID:             db.ID,
			Title:          titleOf(db.Title, untitled),
			Properties:     make([]core.Property, 0, len(db.Properties)),
			Color:          palette.ForIndex(index),
			URL:            db.URL,
			Icon:           iconOf(db.Icon),
			CreatedTime:    db.CreatedTime,
			LastEditedTime: db.LastEditedTime,
		}

		for _, kp := range db.Properties {
			prop := toProperty(kp)
			table.Properties = append(table.Properties, prop)
			if prop.IsRelation() {
				schema.Relations = append(schema.Relations, core.RawRelation{
					Source: db.ID,
					Target: prop.RelationTarget,
					Label:  prop.Name,
				})
			}
		}

		schema.Tables = append(schema.Tables, table)
	}
	return schema
}

func toProperty(kp keyedProperty) core.Property {
	name := kp.Name
	if name == "" {
		name = kp.Key
	}
	prop := core.Property{
		Name: name,
		Type: kp.Type,
		Kind: core.ParsePropertyKind(kp.Type),
	}
	// Only the literal "relation" type with a target counts as a relation.
	if prop.Kind == core.KindRelation && kp.Relation != nil {
		prop.RelationTarget = kp.Relation.DatabaseID
	}
	return prop
}

func titleOf(parts []richText, untitled string) string {
	if len(parts) > 0 && parts[0].PlainText != "" {
		return parts[0].PlainText
	}
	return untitled
}

func iconOf(i *icon) string {
	if i == nil {
		return ""
	}
	switch i.Type {
	case "emoji":
		return i.Emoji
	case "external":
		if i.External != nil {
			return i.External.URL
		}
	case "file":
		if i.File != nil {
			return i.File.URL
		}
	}
	return ""
}
