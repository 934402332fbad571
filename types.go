package jsonadm

import (
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
)

// Entity is a record of a resource type with a flat, dot-qualified attribute map.
type Entity struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id"`
	Attributes   map[string]any `json:"attributes"`
}

// NewEntity returns a blank, unsaved entity of the given resource type.
func NewEntity(resourceType string) *Entity {
	return &Entity{
		ResourceType: resourceType,
		Attributes:   make(map[string]any),
	}
}

// AttributePrefix returns the key prefix used by the entity's attributes, e.g. "order.base" for "order/base".
func AttributePrefix(resourceType string) string {
	return strings.ReplaceAll(resourceType, "/", ".")
}

// Get returns the attribute stored under key.
func (e *Entity) Get(key string) (any, bool) {
	if e == nil || e.Attributes == nil {
		return nil, false
	}
	v, ok := e.Attributes[key]
	return v, ok
}

// Set stores value under key.
func (e *Entity) Set(key string, value any) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = value
}

// FromMap merges attrs into the entity. The "<prefix>.id" key is never taken over,
// ids are assigned by storage.
func (e *Entity) FromMap(attrs map[string]any) {
	idKey := AttributePrefix(e.ResourceType) + ".id"
	for k, v := range attrs {
		if k == idKey {
			continue
		}
		e.Set(k, v)
	}
}

// ToMap returns the attributes including the "<prefix>.id" key.
func (e *Entity) ToMap() map[string]any {
	out := make(map[string]any, len(e.Attributes)+1)
	maps.Copy(out, e.Attributes)
	if e.ID != "" {
		out[AttributePrefix(e.ResourceType)+".id"] = e.ID
	}
	return out
}

// Clone returns a copy that shares no attribute map with e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	attrs := make(map[string]any, len(e.Attributes))
	maps.Copy(attrs, e.Attributes)
	return &Entity{ResourceType: e.ResourceType, ID: e.ID, Attributes: attrs}
}

// ListItem is an association edge from a parent entity to an entity of another domain.
type ListItem struct {
	ResourceType string         `json:"resourceType"` // e.g. "product/lists"
	ID           string         `json:"id"`
	ParentID     string         `json:"parentId"`
	Domain       string         `json:"domain"`
	RefID        string         `json:"refId"`
	TypeID       string         `json:"typeId,omitempty"`
	Position     int            `json:"position"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// NewListItem returns a blank list item for the given list resource type.
func NewListItem(resourceType string) *ListItem {
	return &ListItem{
		ResourceType: resourceType,
		Attributes:   make(map[string]any),
	}
}

// FromMap merges attrs into the item. Keys "<prefix>.refid", "<prefix>.typeid",
// "<prefix>.position" and "<prefix>.domain" set the typed fields, everything else
// is kept as a plain attribute.
func (li *ListItem) FromMap(attrs map[string]any) {
	prefix := AttributePrefix(li.ResourceType) + "."
	for k, v := range attrs {
		switch strings.TrimPrefix(k, prefix) {
		case "id", "parentid":
			// server controlled
		case "refid":
			li.RefID = StringValue(v)
		case "typeid":
			li.TypeID = StringValue(v)
		case "domain":
			li.Domain = StringValue(v)
		case "position":
			if n, err := strconv.Atoi(StringValue(v)); err == nil {
				li.Position = n
			}
		default:
			if li.Attributes == nil {
				li.Attributes = make(map[string]any)
			}
			li.Attributes[k] = v
		}
	}
}

// ToMap returns the item as a flat attribute map.
func (li *ListItem) ToMap() map[string]any {
	prefix := AttributePrefix(li.ResourceType) + "."
	out := make(map[string]any, len(li.Attributes)+6)
	maps.Copy(out, li.Attributes)
	out[prefix+"id"] = li.ID
	out[prefix+"parentid"] = li.ParentID
	out[prefix+"domain"] = li.Domain
	out[prefix+"refid"] = li.RefID
	out[prefix+"position"] = li.Position
	if li.TypeID != "" {
		out[prefix+"typeid"] = li.TypeID
	}
	return out
}

// TypeItem maps a human readable type code to the identifier storage persists.
type TypeItem struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Domain string `json:"domain"`
	Label  string `json:"label"`
}

// AttributeDescriptor describes a searchable attribute of a resource type.
type AttributeDescriptor struct {
	Code   string `json:"code" mapstructure:"code" validate:"required"`
	Label  string `json:"label" mapstructure:"label"`
	Type   string `json:"type" mapstructure:"type"`
	Public bool   `json:"public" mapstructure:"public"`
}

// SortOrder defines sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "+"
	SortOrderDesc SortOrder = "-"
)

// SortKey is one entry of an ordered sort specification.
type SortKey struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order"`
}

// SearchCriteria is the engine agnostic search predicate handed to a manager.
type SearchCriteria struct {
	Condition Condition `json:"-"`
	Sort      []SortKey `json:"sort,omitempty"`
	Offset    int       `json:"offset"`
	Limit     int       `json:"limit"`
}

// Clone returns a copy whose sort slice can be changed without touching c.
// Conditions are immutable once built and are shared.
func (c *SearchCriteria) Clone() *SearchCriteria {
	if c == nil {
		return &SearchCriteria{}
	}
	out := *c
	out.Sort = append([]SortKey(nil), c.Sort...)
	return &out
}

// RelationshipRef is one element of a relationships[domain].data list in a write request.
type RelationshipRef struct {
	ID         string         `json:"id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RequestEntry is a single decoded element of a write request.
type RequestEntry struct {
	ID            string                        `json:"id,omitempty"`
	Attributes    map[string]any                `json:"attributes,omitempty"`
	Relationships map[string][]*RelationshipRef `json:"relationships,omitempty"`
}

// RelationshipDomains returns the relationship domains in a stable order.
func (e *RequestEntry) RelationshipDomains() []string {
	domains := make([]string, 0, len(e.Relationships))
	for domain := range e.Relationships {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

// ParsedRequest is a decoded request document.
type ParsedRequest struct {
	Bulk    bool
	Entries []*RequestEntry
}

// IDs returns the ids of all entries that carry one, in input order.
func (p *ParsedRequest) IDs() []string {
	if p == nil {
		return nil
	}
	ids := make([]string, 0, len(p.Entries))
	for _, entry := range p.Entries {
		if entry.ID != "" {
			ids = append(ids, entry.ID)
		}
	}
	return ids
}

// ErrorObject is a JSON:API error entry.
type ErrorObject struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// ViewModel is everything a renderer needs to produce the response document of one request.
type ViewModel struct {
	Data       []*Entity
	Single     bool
	ChildItems []*Entity
	ListItems  []*ListItem
	Included   []*Entity
	Total      int
	Errors     []ErrorObject

	// OPTIONS
	Resources  []string
	Attributes []AttributeDescriptor

	// Echoed request parameters the renderer applies.
	Fields  map[string][]string
	Include []string
}

// HasErrors reports whether the request failed.
func (v *ViewModel) HasErrors() bool {
	return v != nil && len(v.Errors) > 0
}

// StringValue renders scalar JSON values as strings. Numeric ids arrive as float64.
func StringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
