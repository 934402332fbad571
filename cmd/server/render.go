package main

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/lychee-technology/jsonadm"
	"github.com/lychee-technology/jsonadm/internal"
)

// Document is a JSON:API response document.
type Document struct {
	Meta     map[string]any        `json:"meta"`
	Data     any                   `json:"data,omitempty"`
	Included []ResourceObject      `json:"included,omitempty"`
	Errors   []jsonadm.ErrorObject `json:"errors,omitempty"`
}

// ResourceObject is one rendered entity.
type ResourceObject struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    map[string]any          `json:"attributes"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Relationship holds the list records of one domain.
type Relationship struct {
	Data []RelationshipData `json:"data"`
}

// RelationshipData points at a related entity and carries the list record attributes.
type RelationshipData struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// writeResponse renders resp as a JSON:API document.
func writeResponse(w http.ResponseWriter, method string, resp *internal.Response) error {
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	return writeJSON(w, resp.Status, render(method, resp.View))
}

// render builds the document of view. Data is left out for errors and for verbs
// that do not return items.
func render(method string, view *jsonadm.ViewModel) *Document {
	doc := &Document{Meta: map[string]any{"total": view.Total}}

	if view.HasErrors() {
		doc.Errors = view.Errors
		return doc
	}

	switch method {
	case http.MethodOptions:
		doc.Meta["resources"] = view.Resources
		attrs := view.Attributes
		if attrs == nil {
			attrs = []jsonadm.AttributeDescriptor{}
		}
		doc.Meta["attributes"] = attrs
		return doc
	case http.MethodDelete:
		return doc
	}

	objects := make([]ResourceObject, 0, len(view.Data))
	for _, item := range view.Data {
		objects = append(objects, renderEntity(item, view))
	}
	if view.Single && len(objects) == 1 {
		doc.Data = objects[0]
	} else {
		doc.Data = objects
	}

	// a resource appears once in the document, primary data first
	seen := internal.NewSet[resourceKey]()
	for _, item := range view.Data {
		seen.Add(resourceKey{item.ResourceType, item.ID})
	}
	for _, item := range slices.Concat(view.ChildItems, view.Included) {
		if seen.Add(resourceKey{item.ResourceType, item.ID}) {
			doc.Included = append(doc.Included, renderEntity(item, view))
		}
	}
	return doc
}

type resourceKey struct {
	typ string
	id  string
}

func renderEntity(item *jsonadm.Entity, view *jsonadm.ViewModel) ResourceObject {
	obj := ResourceObject{
		ID:         item.ID,
		Type:       item.ResourceType,
		Attributes: filterFields(item.ToMap(), view.Fields[item.ResourceType]),
	}

	for _, li := range view.ListItems {
		if li.ParentID != item.ID || !slices.Contains(view.Include, li.Domain) {
			continue
		}
		if obj.Relationships == nil {
			obj.Relationships = map[string]Relationship{}
		}
		rel := obj.Relationships[li.Domain]
		rel.Data = append(rel.Data, RelationshipData{ID: li.RefID, Type: li.Domain, Attributes: li.ToMap()})
		obj.Relationships[li.Domain] = rel
	}

	parentKey := jsonadm.AttributePrefix(item.ResourceType) + ".parentid"
	for _, child := range view.ChildItems {
		if child.ResourceType != item.ResourceType || jsonadm.StringValue(child.Attributes[parentKey]) != item.ID {
			continue
		}
		if obj.Relationships == nil {
			obj.Relationships = map[string]Relationship{}
		}
		rel := obj.Relationships[child.ResourceType]
		rel.Data = append(rel.Data, RelationshipData{ID: child.ID, Type: child.ResourceType})
		obj.Relationships[child.ResourceType] = rel
	}
	return obj
}

// filterFields keeps the attributes named in fields, all of them when fields is empty.
func filterFields(attrs map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return attrs
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := attrs[f]; ok {
			out[f] = v
		}
	}
	return out
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", internal.ContentType)
	}
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error document for failures outside the resource handler.
func writeError(w http.ResponseWriter, statusCode int, title, detail string) error {
	return writeJSON(w, statusCode, &Document{
		Meta:   map[string]any{"total": 0},
		Errors: []jsonadm.ErrorObject{{Title: title, Detail: detail}},
	})
}
