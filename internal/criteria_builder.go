package internal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lychee-technology/jsonadm"
)

// CriteriaBuilder turns query parameters into search criteria.
type CriteriaBuilder struct {
	defaultLimit int
	maxLimit     int
}

// NewCriteriaBuilder creates a builder using the page sizes of cfg.
func NewCriteriaBuilder(cfg jsonadm.QueryConfig) *CriteriaBuilder {
	b := &CriteriaBuilder{defaultLimit: cfg.DefaultPageSize, maxLimit: cfg.MaxPageSize}
	if b.defaultLimit <= 0 {
		b.defaultLimit = 25
	}
	if b.maxLimit <= 0 {
		b.maxLimit = b.defaultLimit
	}
	if b.defaultLimit > b.maxLimit {
		b.defaultLimit = b.maxLimit
	}
	return b
}

// Build extends a copy of base with the filter, sort and page parameters. The client
// filter is ANDed with the base condition.
func (b *CriteriaBuilder) Build(base *jsonadm.SearchCriteria, params Params) (*jsonadm.SearchCriteria, error) {
	criteria := base.Clone()

	filter, err := parseFilter(params["filter"])
	if err != nil {
		return nil, err
	}
	criteria.Condition = jsonadm.And(criteria.Condition, filter)

	if sortKeys := parseSort(params.String("sort")); len(sortKeys) > 0 {
		criteria.Sort = sortKeys
	}

	offset, limit, err := b.parsePage(params.Map("page"))
	if err != nil {
		return nil, err
	}
	criteria.Offset = offset
	criteria.Limit = limit

	return criteria, nil
}

func parseFilter(raw any) (jsonadm.Condition, error) {
	var cond jsonadm.Condition
	var err error

	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		cond, err = jsonadm.UnmarshalCondition([]byte(v))
	case map[string]any:
		cond, err = jsonadm.ParseCondition(v)
	default:
		err = fmt.Errorf("unsupported filter value %T", raw)
	}

	if err != nil {
		return nil, jsonadm.NewInvalidParameterError("filter", "Invalid filter expression").WithCause(err)
	}
	return cond, nil
}

// parseSort splits "-order.ctime,order.id" into sort keys. Empty segments are skipped.
func parseSort(spec string) []jsonadm.SortKey {
	var keys []jsonadm.SortKey
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		order := jsonadm.SortOrderAsc
		switch {
		case strings.HasPrefix(part, "-"):
			order = jsonadm.SortOrderDesc
			part = part[1:]
		case strings.HasPrefix(part, "+"):
			part = part[1:]
		}
		if part == "" {
			continue
		}
		keys = append(keys, jsonadm.SortKey{Field: part, Order: order})
	}
	return keys
}

func (b *CriteriaBuilder) parsePage(page map[string]any) (int, int, error) {
	offset, limit := 0, b.defaultLimit

	if raw, ok := page["offset"]; ok {
		n, err := pageNumber(raw)
		if err != nil || n < 0 {
			return 0, 0, jsonadm.NewInvalidParameterError("page.offset",
				fmt.Sprintf("Invalid page offset \"%v\"", raw)).WithCause(err)
		}
		offset = n
	}

	if raw, ok := page["limit"]; ok {
		n, err := pageNumber(raw)
		if err != nil || n <= 0 {
			return 0, 0, jsonadm.NewInvalidParameterError("page.limit",
				fmt.Sprintf("Invalid page limit \"%v\"", raw)).WithCause(err)
		}
		limit = min(n, b.maxLimit)
	}

	return offset, limit, nil
}

func pageNumber(raw any) (int, error) {
	switch v := raw.(type) {
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		return int(v), nil
	case int:
		return v, nil
	}
	return 0, fmt.Errorf("unsupported page value %T", raw)
}

// Include returns the relation names of the include parameter, without duplicates.
func Include(params Params) []string {
	return commaList(params["include"])
}

// commaList splits a comma separated parameter, or a list of them, into distinct names.
func commaList(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, strings.Split(s, ",")...)
			}
		}
	}

	names := NewSet[string]()
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names.Add(p)
		}
	}
	return names.ToSlice()
}

// Fields returns the fields[type] allow-lists.
func Fields(params Params) map[string][]string {
	raw := params.Map("fields")
	if len(raw) == 0 {
		return nil
	}
	fields := make(map[string][]string, len(raw))
	for resource, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var names []string
		for _, name := range strings.Split(s, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		fields[resource] = names
	}
	return fields
}
