package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// searchRequest is the body of POST /search restricted to databases.
type searchRequest struct {
	Filter      searchFilter `json:"filter"`
	PageSize    int          `json:"page_size"`
	StartCursor string       `json:"start_cursor,omitempty"`
}

type searchFilter struct {
	Value    string `json:"value"`
	Property string `json:"property"`
}

type searchResponse struct {
	Results    []database `json:"results"`
	HasMore    bool       `json:"has_more"`
	NextCursor string     `json:"next_cursor"`
}

// apiError is the provider's error envelope.
type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type richText struct {
	PlainText string `json:"plain_text"`
}

type fileRef struct {
	URL string `json:"url"`
}

type icon struct {
	Type     string   `json:"type"`
	Emoji    string   `json:"emoji"`
	External *fileRef `json:"external"`
	File     *fileRef `json:"file"`
}

type database struct {
	Object         string     `json:"object"`
	ID             string     `json:"id"`
	Title          []richText `json:"title"`
	Properties     properties `json:"properties"`
	URL            string     `json:"url"`
	Icon           *icon      `json:"icon"`
	CreatedTime    string     `json:"created_time"`
	LastEditedTime string     `json:"last_edited_time"`
}

type relationConfig struct {
	DatabaseID string `json:"database_id"`
}

// property is one schema entry. Only relation carries a type-specific body
// the engine reads; every other kind is identified by its type string.
type property struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Relation *relationConfig `json:"relation"`
}

// properties keeps schema entries in the order the provider sent them.
type properties []keyedProperty

type keyedProperty struct {
	Key string
	property
}

// UnmarshalJSON walks the object token by token, since a Go map would lose
// the provider's property order.
func (p *properties) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("properties: expected object")
	}

	var out properties
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("properties: unexpected key %v", tok)
		}
		var prop property
		if err := dec.Decode(&prop); err != nil {
			return fmt.Errorf("properties: %s: %w", key, err)
		}
		out = append(out, keyedProperty{Key: key, property: prop})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}
