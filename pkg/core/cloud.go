package core

// CloudSyncRecord is the remote row keyed by user id.
//
// Every field except ID is independently nullable. A nil field on read means
// "no value stored" and must not clear local state; only an explicit write
// replaces a field.
type CloudSyncRecord struct {
	ID           string               `json:"id"`
	Positions    map[TableID]Position `json:"positions"`
	CustomColors map[TableID]string   `json:"custom_colors"`
	Filters      []string             `json:"filters"`
	HiddenDBs    []TableID            `json:"hidden_dbs"`
	HideIsolated *bool                `json:"hide_isolated"`
	NotionToken  *string              `json:"notion_token"`
}

// CloudColumns is the column list requested on reads.
const CloudColumns = "id,positions,custom_colors,filters,hidden_dbs,hide_isolated,notion_token"
