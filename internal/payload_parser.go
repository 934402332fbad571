package internal

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/jsonadm"
)

// PayloadParser decodes write request documents.
type PayloadParser struct {
	schema *jsonschema.Resolved
}

// NewPayloadParser compiles the request document schema.
func NewPayloadParser() (*PayloadParser, error) {
	schemaBytes, err := json.Marshal(jsonadm.RequestDocumentSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request schema: %w", err)
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into jsonschema.Schema: %w", err)
	}

	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve request schema: %w", err)
	}
	return &PayloadParser{schema: resolved}, nil
}

// Parse decodes body. A list under "data" makes the request a bulk request with one
// entry per element, in order.
func (p *PayloadParser) Parse(body []byte) (*jsonadm.ParsedRequest, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, jsonadm.NewInvalidBodyError("Invalid JSON in body", err)
	}
	if err := p.schema.Validate(doc); err != nil {
		return nil, jsonadm.NewInvalidBodyError("Invalid JSON in body", err)
	}

	data := doc.(map[string]any)["data"]

	if list, ok := data.([]any); ok {
		parsed := &jsonadm.ParsedRequest{Bulk: true, Entries: make([]*jsonadm.RequestEntry, 0, len(list))}
		for _, item := range list {
			parsed.Entries = append(parsed.Entries, decodeEntry(item.(map[string]any)))
		}
		return parsed, nil
	}

	return &jsonadm.ParsedRequest{
		Entries: []*jsonadm.RequestEntry{decodeEntry(data.(map[string]any))},
	}, nil
}

// ExtractIDs returns the ids of all entries that carry one.
func (p *PayloadParser) ExtractIDs(parsed *jsonadm.ParsedRequest) []string {
	return parsed.IDs()
}

func decodeEntry(item map[string]any) *jsonadm.RequestEntry {
	entry := &jsonadm.RequestEntry{
		ID:         jsonadm.StringValue(item["id"]),
		Attributes: map[string]any{},
	}
	if attrs, ok := item["attributes"].(map[string]any); ok {
		entry.Attributes = attrs
	}

	rels, _ := item["relationships"].(map[string]any)
	for domain, raw := range rels {
		if entry.Relationships == nil {
			entry.Relationships = make(map[string][]*jsonadm.RelationshipRef, len(rels))
		}
		data := raw.(map[string]any)["data"]
		refs := []*jsonadm.RelationshipRef{}
		switch d := data.(type) {
		case []any:
			for _, ref := range d {
				refs = append(refs, decodeRef(ref.(map[string]any)))
			}
		case map[string]any:
			refs = append(refs, decodeRef(d))
		}
		entry.Relationships[domain] = refs
	}
	return entry
}

func decodeRef(item map[string]any) *jsonadm.RelationshipRef {
	ref := &jsonadm.RelationshipRef{
		ID:         jsonadm.StringValue(item["id"]),
		Attributes: map[string]any{},
	}
	if attrs, ok := item["attributes"].(map[string]any); ok {
		ref.Attributes = attrs
	}
	return ref
}
