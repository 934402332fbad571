package jsonadm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Logic joins the children of a CompositeCondition.
type Logic string

const (
	LogicAnd Logic = "&&"
	LogicOr  Logic = "||"
)

// Comparison operators accepted in a filter.
const (
	OpEqual        = "=="
	OpNotEqual     = "!="
	OpGreater      = ">"
	OpLess         = "<"
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
	OpNot          = "!"
)

// ColumnResolver maps a filter field to the SQL expression holding its value.
// numeric asks for an expression that compares as a number.
type ColumnResolver func(field string, numeric bool) (string, error)

// Condition is a node of a filter tree.
type Condition interface {
	IsLeaf() bool
	Evaluate(attrs map[string]any) bool
	ToSqlClauses(columns ColumnResolver, paramIndex *int) (string, []any, error)
	Fields() []string
}

// CompareCondition compares one field against a value. A list value on "==" matches any
// element, on "!=" none of them. A nil value tests for presence.
type CompareCondition struct {
	Operator string `json:"op"`
	Field    string `json:"field"`
	Value    any    `json:"value"`
}

// CompositeCondition joins child conditions with && or ||.
type CompositeCondition struct {
	Logic      Logic       `json:"logic"`
	Conditions []Condition `json:"conditions"`
}

// NotCondition negates its child.
type NotCondition struct {
	Condition Condition `json:"condition"`
}

func (c *CompareCondition) IsLeaf() bool   { return true }
func (c *CompositeCondition) IsLeaf() bool { return false }
func (c *NotCondition) IsLeaf() bool       { return false }

func (c *CompareCondition) Fields() []string { return []string{c.Field} }

func (c *CompositeCondition) Fields() []string {
	var fields []string
	for _, child := range c.Conditions {
		fields = append(fields, child.Fields()...)
	}
	return fields
}

func (c *NotCondition) Fields() []string {
	if c.Condition == nil {
		return nil
	}
	return c.Condition.Fields()
}

func isOrdering(op string) bool {
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return true
	}
	return false
}

// tryParseNumber returns the float value of numbers and numeric strings.
func tryParseNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func isNumberType(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}

// operand normalizes a filter value. Number types compare numerically, strings only when
// the operator orders values.
func operand(op string, v any) (any, bool) {
	if isNumberType(v) || (isOrdering(op) && v != nil) {
		if f, ok := tryParseNumber(v); ok {
			return f, true
		}
	}
	return StringValue(v), false
}

func (c *CompareCondition) values() []any {
	if list, ok := c.Value.([]any); ok {
		return list
	}
	if list, ok := c.Value.([]string); ok {
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	}
	return []any{c.Value}
}

func (c *CompareCondition) Evaluate(attrs map[string]any) bool {
	actual, present := attrs[c.Field]
	if c.Value == nil {
		missing := !present || actual == nil
		switch c.Operator {
		case OpEqual:
			return missing
		case OpNotEqual:
			return !missing
		}
		return false
	}
	if !present || actual == nil {
		return false
	}

	if c.Operator == OpNotEqual {
		for _, want := range c.values() {
			if !compare(OpNotEqual, actual, want) {
				return false
			}
		}
		return true
	}
	for _, want := range c.values() {
		if compare(c.Operator, actual, want) {
			return true
		}
	}
	return false
}

func compare(op string, actual, want any) bool {
	w, numeric := operand(op, want)
	var cmp int
	if numeric {
		a, ok := tryParseNumber(actual)
		if !ok {
			return false
		}
		wf := w.(float64)
		switch {
		case a < wf:
			cmp = -1
		case a > wf:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(StringValue(actual), w.(string))
	}

	switch op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpGreater:
		return cmp > 0
	case OpLess:
		return cmp < 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpLessEqual:
		return cmp <= 0
	}
	return false
}

func (c *CompositeCondition) Evaluate(attrs map[string]any) bool {
	if c.Logic == LogicOr {
		for _, child := range c.Conditions {
			if child.Evaluate(attrs) {
				return true
			}
		}
		return len(c.Conditions) == 0
	}
	for _, child := range c.Conditions {
		if !child.Evaluate(attrs) {
			return false
		}
	}
	return true
}

func (c *NotCondition) Evaluate(attrs map[string]any) bool {
	if c.Condition == nil {
		return true
	}
	return !c.Condition.Evaluate(attrs)
}

var sqlOperators = map[string]string{
	OpEqual:        "=",
	OpNotEqual:     "<>",
	OpGreater:      ">",
	OpLess:         "<",
	OpGreaterEqual: ">=",
	OpLessEqual:    "<=",
}

// ToSqlClauses renders the leaf with $n placeholders starting after *paramIndex.
func (c *CompareCondition) ToSqlClauses(columns ColumnResolver, paramIndex *int) (string, []any, error) {
	sqlOp, ok := sqlOperators[c.Operator]
	if !ok {
		return "", nil, fmt.Errorf("unsupported operator: %s", c.Operator)
	}

	if c.Value == nil {
		column, err := columns(c.Field, false)
		if err != nil {
			return "", nil, err
		}
		switch c.Operator {
		case OpEqual:
			return column + " IS NULL", nil, nil
		case OpNotEqual:
			return column + " IS NOT NULL", nil, nil
		}
		return "", nil, fmt.Errorf("operator '%s' needs a value for field '%s'", c.Operator, c.Field)
	}

	values := c.values()
	if len(values) == 1 {
		v, numeric := operand(c.Operator, values[0])
		column, err := columns(c.Field, numeric)
		if err != nil {
			return "", nil, err
		}
		*paramIndex++
		return fmt.Sprintf("%s %s $%d", column, sqlOp, *paramIndex), []any{v}, nil
	}

	if isOrdering(c.Operator) {
		return "", nil, fmt.Errorf("operator '%s' does not accept a list for field '%s'", c.Operator, c.Field)
	}
	if len(values) == 0 {
		if c.Operator == OpEqual {
			return "FALSE", nil, nil
		}
		return "TRUE", nil, nil
	}

	numeric := true
	for _, v := range values {
		if !isNumberType(v) {
			numeric = false
			break
		}
	}
	var arg any
	if numeric {
		nums := make([]float64, len(values))
		for i, v := range values {
			nums[i], _ = tryParseNumber(v)
		}
		arg = nums
	} else {
		strs := make([]string, len(values))
		for i, v := range values {
			strs[i] = StringValue(v)
		}
		arg = strs
	}

	column, err := columns(c.Field, numeric)
	if err != nil {
		return "", nil, err
	}
	*paramIndex++
	if c.Operator == OpEqual {
		return fmt.Sprintf("%s = ANY($%d)", column, *paramIndex), []any{arg}, nil
	}
	return fmt.Sprintf("%s <> ALL($%d)", column, *paramIndex), []any{arg}, nil
}

func (c *CompositeCondition) ToSqlClauses(columns ColumnResolver, paramIndex *int) (string, []any, error) {
	var joiner string
	switch c.Logic {
	case LogicAnd:
		joiner = " AND "
	case LogicOr:
		joiner = " OR "
	default:
		return "", nil, fmt.Errorf("unknown logic: %s", c.Logic)
	}

	var clauses []string
	var args []any
	for _, child := range c.Conditions {
		sql, childArgs, err := child.ToSqlClauses(columns, paramIndex)
		if err != nil {
			return "", nil, err
		}
		if sql == "" {
			continue
		}
		clauses = append(clauses, sql)
		args = append(args, childArgs...)
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return "(" + strings.Join(clauses, joiner) + ")", args, nil
}

func (c *NotCondition) ToSqlClauses(columns ColumnResolver, paramIndex *int) (string, []any, error) {
	if c.Condition == nil {
		return "", nil, nil
	}
	sql, args, err := c.Condition.ToSqlClauses(columns, paramIndex)
	if err != nil || sql == "" {
		return "", nil, err
	}
	// a comparison on a missing attribute is NULL in SQL and false in Evaluate
	return "NOT COALESCE(" + sql + ", FALSE)", args, nil
}

// And combines the non-nil conditions. Nil is returned when none is left.
func And(conds ...Condition) Condition {
	var kept []Condition
	for _, c := range conds {
		if c != nil {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &CompositeCondition{Logic: LogicAnd, Conditions: kept}
}

// UnmarshalCondition decodes a JSON filter expression.
func UnmarshalCondition(data []byte) (Condition, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid filter JSON: %w", err)
	}
	return ParseCondition(raw)
}

// ParseCondition decodes a filter expression in its map form, e.g.
//
//	{"&&": [{"==": {"order.status": 1}}, {"!": {">": {"order.price": "100"}}}]}
//
// Lists may also be given as maps keyed by position, which is what bracketed query
// parameters decode to. Several fields under one comparison operator are ANDed.
func ParseCondition(raw any) (Condition, error) {
	expr, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("filter expression must be an object, got %T", raw)
	}
	if len(expr) == 0 {
		return nil, nil
	}

	ops := make([]string, 0, len(expr))
	for op := range expr {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	var conds []Condition
	for _, op := range ops {
		cond, err := parseOperator(op, expr[op])
		if err != nil {
			return nil, err
		}
		if cond != nil {
			conds = append(conds, cond)
		}
	}
	return And(conds...), nil
}

func parseOperator(op string, operand any) (Condition, error) {
	switch op {
	case string(LogicAnd), string(LogicOr):
		items, err := asList(operand)
		if err != nil {
			return nil, fmt.Errorf("operator '%s': %w", op, err)
		}
		composite := &CompositeCondition{Logic: Logic(op)}
		for _, item := range items {
			child, err := ParseCondition(item)
			if err != nil {
				return nil, err
			}
			if child != nil {
				composite.Conditions = append(composite.Conditions, child)
			}
		}
		return composite, nil

	case OpNot:
		var inner Condition
		var err error
		if items, listErr := asList(operand); listErr == nil && !isExpression(operand) {
			var children []Condition
			for _, item := range items {
				child, err := ParseCondition(item)
				if err != nil {
					return nil, err
				}
				children = append(children, child)
			}
			inner = And(children...)
		} else {
			inner, err = ParseCondition(operand)
			if err != nil {
				return nil, err
			}
		}
		if inner == nil {
			return nil, nil
		}
		return &NotCondition{Condition: inner}, nil
	}

	if _, ok := sqlOperators[op]; !ok {
		return nil, fmt.Errorf("unknown filter operator '%s'", op)
	}
	fields, ok := operand.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("operator '%s' expects an object of field/value pairs", op)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	conds := make([]Condition, 0, len(names))
	for _, name := range names {
		value := fields[name]
		if m, isMap := value.(map[string]any); isMap {
			list, err := asList(m)
			if err != nil {
				return nil, fmt.Errorf("field '%s': %w", name, err)
			}
			value = list
		}
		conds = append(conds, &CompareCondition{Operator: op, Field: name, Value: value})
	}
	return And(conds...), nil
}

// isExpression reports whether v is a map keyed by operators rather than positions.
func isExpression(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	for k := range m {
		if _, err := strconv.Atoi(k); err != nil {
			return true
		}
	}
	return false
}

func asList(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		keys := make([]int, 0, len(t))
		for k := range t {
			n, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("expected a list, got key '%s'", k)
			}
			keys = append(keys, n)
		}
		sort.Ints(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, t[strconv.Itoa(k)])
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list, got %T", v)
}
