package internal

import (
	"fmt"
	"regexp"

	"github.com/lychee-technology/jsonadm"
)

// fieldNamePattern limits filter and sort fields to dotted attribute codes.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_./-]*$`)

func searchableAttributes(def jsonadm.ResourceDefinition) []jsonadm.AttributeDescriptor {
	prefix := jsonadm.AttributePrefix(def.Name)
	attrs := []jsonadm.AttributeDescriptor{{Code: prefix + ".id", Label: "ID", Type: "string", Public: true}}
	if def.Tree {
		attrs = append(attrs, jsonadm.AttributeDescriptor{Code: prefix + ".parentid", Label: "Parent ID", Type: "string"})
	}
	return append(attrs, def.Attributes...)
}

func resourceTypes(def jsonadm.ResourceDefinition, hasLists, hasTypes bool) []string {
	types := []string{def.Name}
	if hasLists {
		types = append(types, def.Name+"/lists")
	}
	if hasTypes {
		types = append(types, def.Name+"/type")
	}
	return types
}

// checkCriteriaFields rejects malformed field names, and fields that are not searchable
// when the resource declares its attributes. Fields of the base filter are always
// searchable, the base filter is part of every criteria.
func checkCriteriaFields(def jsonadm.ResourceDefinition, base jsonadm.Condition, criteria *jsonadm.SearchCriteria) error {
	var fields []string
	if criteria.Condition != nil {
		fields = criteria.Condition.Fields()
	}
	for _, key := range criteria.Sort {
		fields = append(fields, key.Field)
	}

	var known *Set[string]
	if len(def.Attributes) > 0 {
		known = NewSet[string]()
		for _, attr := range searchableAttributes(def) {
			known.Add(attr.Code)
		}
		if base != nil {
			for _, field := range base.Fields() {
				known.Add(field)
			}
		}
	}

	for _, field := range fields {
		if !fieldNamePattern.MatchString(field) || (known != nil && !known.Contains(field)) {
			return jsonadm.NewStorageError(fmt.Sprintf("Invalid name \"%s\"", field), nil).
				WithDetail("resource", def.Name)
		}
	}
	return nil
}

func parentCondition(def jsonadm.ResourceDefinition, base jsonadm.Condition, parentIDs []string) jsonadm.Condition {
	values := make([]any, len(parentIDs))
	for i, id := range parentIDs {
		values[i] = id
	}
	return jsonadm.And(base, &jsonadm.CompareCondition{
		Operator: jsonadm.OpEqual,
		Field:    jsonadm.AttributePrefix(def.Name) + ".parentid",
		Value:    values,
	})
}
