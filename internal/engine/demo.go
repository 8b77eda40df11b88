package engine

import (
	"github.com/leapstack-labs/schemagraph/internal/palette"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

type demoTable struct {
	id    string
	title string
	icon  string
	props []core.Property
}

func prop(name, typ string) core.Property {
	return core.Property{Name: name, Type: typ, Kind: core.ParsePropertyKind(typ)}
}

func rel(name string, target core.TableID) core.Property {
	return core.Property{Name: name, Type: "relation", Kind: core.KindRelation, RelationTarget: target}
}

var demoTables = []demoTable{
	{id: "demo-projects", title: "Projects", icon: "📁", props: []core.Property{
		prop("Name", "title"), prop("Status", "status"), prop("Owner", "people"),
		prop("Due", "date"), rel("Tasks", "demo-tasks"), rel("Client", "demo-clients"),
	}},
	{id: "demo-tasks", title: "Tasks", icon: "✅", props: []core.Property{
		prop("Name", "title"), prop("Priority", "select"), prop("Assignee", "people"),
		prop("Due", "date"), rel("Project", "demo-projects"), rel("Sprint", "demo-sprints"),
	}},
	{id: "demo-clients", title: "Clients", icon: "🤝", props: []core.Property{
		prop("Company", "title"), prop("Website", "url"), prop("Contact", "email"),
		rel("Invoices", "demo-invoices"),
	}},
	{id: "demo-invoices", title: "Invoices", icon: "🧾", props: []core.Property{
		prop("Number", "title"), prop("Issued", "date"), prop("Paid", "checkbox"),
		prop("Amount", "number"),
	}},
	{id: "demo-sprints", title: "Sprints", icon: "🏃", props: []core.Property{
		prop("Name", "title"), prop("Dates", "date"), prop("Goal", "rich_text"),
	}},
	{id: "demo-notes", title: "Meeting Notes", icon: "📝", props: []core.Property{
		prop("Title", "title"), prop("Date", "date"), prop("Summary", "rich_text"),
		prop("Tags", "multi_select"),
	}},
}

// DemoSchema returns the built-in workspace shown before a provider is
// connected. It is exempt from the plan tier cap.
func DemoSchema() *core.Schema {
	schema := &core.Schema{
		Tables:    make([]core.RawTable, 0, len(demoTables)),
		Relations: []core.RawRelation{},
	}
	for i, dt := range demoTables {
		props := make([]core.Property, len(dt.props))
		copy(props, dt.props)
		schema.Tables = append(schema.Tables, core.RawTable{
			ID:         dt.id,
			Title:      dt.title,
			Icon:       dt.icon,
			Properties: props,
			Color:      palette.ForIndex(i),
		})
		for _, p := range props {
			if p.IsRelation() {
				schema.Relations = append(schema.Relations, core.RawRelation{
					Source: dt.id, Target: p.RelationTarget, Label: p.Name,
				})
			}
		}
	}
	return schema
}
