package core

// TableID is the stable external identifier of a table.
// It is the join key used by positions, colors, filters and relations.
type TableID = string

// PropertyKind is the closed set of property kinds the engine understands.
// Anything the provider returns outside this set decodes to KindUnknown,
// while the raw type string is preserved on the Property.
type PropertyKind int

// Property kinds.
const (
	KindUnknown PropertyKind = iota
	KindTitle
	KindSelect
	KindRelation
	KindRichText
	KindDate
	KindURL
	KindEmail
	KindPeople
	KindStatus
)

var kindNames = map[PropertyKind]string{
	KindUnknown:  "unknown",
	KindTitle:    "title",
	KindSelect:   "select",
	KindRelation: "relation",
	KindRichText: "rich_text",
	KindDate:     "date",
	KindURL:      "url",
	KindEmail:    "email",
	KindPeople:   "people",
	KindStatus:   "status",
}

// String returns the provider's type name for the kind.
func (k PropertyKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParsePropertyKind maps a provider type string to its kind.
func ParsePropertyKind(typ string) PropertyKind {
	for kind, name := range kindNames {
		if kind != KindUnknown && name == typ {
			return kind
		}
	}
	return KindUnknown
}

// Property is one entry of a table's schema.
type Property struct {
	Name string `json:"name"`
	// Type is the provider's literal type string. Filters match on it.
	Type string       `json:"type"`
	Kind PropertyKind `json:"-"`
	// RelationTarget is the referenced table id. Only set for KindRelation.
	RelationTarget TableID `json:"-"`
}

// IsRelation reports whether the property references another table.
func (p Property) IsRelation() bool {
	return p.Kind == KindRelation && p.RelationTarget != ""
}

// RawTable is one normalized table from the schema provider.
// It is rebuilt wholesale on every schema sync.
type RawTable struct {
	ID             TableID    `json:"id"`
	Title          string     `json:"title"`
	Properties     []Property `json:"properties"`
	Color          string     `json:"color,omitempty"`
	URL            string     `json:"url,omitempty"`
	Icon           string     `json:"icon,omitempty"`
	CreatedTime    string     `json:"createdTime,omitempty"`
	LastEditedTime string     `json:"lastEditedTime,omitempty"`
}

// HasPropertyType reports whether any property's type is in types.
func (t RawTable) HasPropertyType(types map[string]struct{}) bool {
	for _, p := range t.Properties {
		if _, ok := types[p.Type]; ok {
			return true
		}
	}
	return false
}

// RawRelation is a directed reference from one table to another.
// Mutual references appear as two entries and are never deduplicated.
type RawRelation struct {
	Source TableID `json:"source"`
	Target TableID `json:"target"`
	Label  string  `json:"label,omitempty"`
}

// Schema is the output of one schema sync.
type Schema struct {
	Tables    []RawTable    `json:"tables"`
	Relations []RawRelation `json:"relations"`
}
