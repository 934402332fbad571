package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/jsonadm"
	"go.uber.org/zap"
)

type pgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore is the shared connection and table layout of all Postgres managers.
type PostgresStore struct {
	pool    pgPool
	tables  jsonadm.TableNames
	nowFunc func() time.Time
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool pgPool, tables jsonadm.TableNames) (*PostgresStore, error) {
	if tables.Entity == "" || tables.List == "" || tables.Type == "" {
		return nil, fmt.Errorf("table names cannot be empty")
	}
	return &PostgresStore{pool: pool, tables: tables, nowFunc: time.Now}, nil
}

func (s *PostgresStore) nowMillis() int64 {
	return s.nowFunc().UnixMilli()
}

// PostgresManager stores the entities of one resource type as JSONB rows.
type PostgresManager struct {
	store *PostgresStore
	def   jsonadm.ResourceDefinition
	base  jsonadm.Condition
	lists *postgresListManager
	types *postgresTypeManager
}

// NewPostgresManager creates the manager of def.
func NewPostgresManager(store *PostgresStore, def jsonadm.ResourceDefinition) (*PostgresManager, error) {
	m := &PostgresManager{store: store, def: def}

	if def.BaseFilter != "" {
		cond, err := jsonadm.UnmarshalCondition([]byte(def.BaseFilter))
		if err != nil {
			return nil, fmt.Errorf("invalid base filter for %s: %w", def.Name, err)
		}
		m.base = cond
	}
	if len(def.Types) > 0 || def.Lists {
		m.types = &postgresTypeManager{store: store, resourceType: def.Name + "/type"}
	}
	if def.Lists {
		m.lists = &postgresListManager{store: store, resourceType: def.Name + "/lists", types: m.types}
	}
	return m, nil
}

// SeedTypes inserts the type codes declared for the resource. Existing codes are kept.
func (m *PostgresManager) SeedTypes(ctx context.Context) error {
	if m.types == nil {
		return nil
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (id, resource_type, code, domain, label) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (resource_type, code, domain) DO NOTHING`,
		sanitizeIdentifier(m.store.tables.Type),
	)
	for _, td := range m.def.Types {
		if _, err := m.store.pool.Exec(ctx, query, newID(), m.types.resourceType, td.Code, td.Domain, td.Label); err != nil {
			return jsonadm.NewStorageError("seed type codes", err).WithDetail("resource", m.def.Name)
		}
	}
	return nil
}

func (m *PostgresManager) ResourceType() string { return m.def.Name }

func (m *PostgresManager) ResourceTypes() []string {
	return resourceTypes(m.def, m.lists != nil, m.types != nil)
}

func (m *PostgresManager) SearchableAttributes() []jsonadm.AttributeDescriptor {
	return searchableAttributes(m.def)
}

func (m *PostgresManager) CreateSearch() *jsonadm.SearchCriteria {
	return &jsonadm.SearchCriteria{Condition: m.base}
}

// column maps a field to its SQL expression. The id field is the id column, everything
// else lives in the attributes document.
func (m *PostgresManager) column(field string, numeric bool) (string, error) {
	if !fieldNamePattern.MatchString(field) {
		return "", jsonadm.NewStorageError(fmt.Sprintf("Invalid name \"%s\"", field), nil)
	}
	expr := fmt.Sprintf("attributes->>'%s'", field)
	if field == jsonadm.AttributePrefix(m.def.Name)+".id" {
		expr = "id"
	}
	if numeric {
		return fmt.Sprintf("(CASE WHEN %[1]s ~ '^-?[0-9]+(\\.[0-9]+)?$' THEN (%[1]s)::double precision END)", expr), nil
	}
	return expr, nil
}

// orderBy sorts numeric values by number before falling back to the text value, so
// "100" follows "20" the way compareValues orders them.
func (m *PostgresManager) orderBy(keys []jsonadm.SortKey) (string, error) {
	idField := jsonadm.AttributePrefix(m.def.Name) + ".id"
	parts := make([]string, 0, 2*len(keys)+1)
	for _, key := range keys {
		exprs := []string{"id"}
		if key.Field != idField {
			num, err := m.column(key.Field, true)
			if err != nil {
				return "", err
			}
			txt, err := m.column(key.Field, false)
			if err != nil {
				return "", err
			}
			exprs = []string{num, txt}
		}
		for _, expr := range exprs {
			if key.Order == jsonadm.SortOrderDesc {
				parts = append(parts, expr+" DESC NULLS LAST")
			} else {
				parts = append(parts, expr+" ASC NULLS FIRST")
			}
		}
	}
	return strings.Join(append(parts, "id ASC"), ", "), nil
}

// where renders the resource restriction and cond. Placeholders continue after *paramIndex.
func (m *PostgresManager) where(cond jsonadm.Condition, paramIndex *int) (string, []any, error) {
	*paramIndex++
	clause := fmt.Sprintf("resource_type = $%d", *paramIndex)
	args := []any{m.def.Name}
	if cond == nil {
		return clause, args, nil
	}
	sql, condArgs, err := cond.ToSqlClauses(m.column, paramIndex)
	if err != nil {
		if _, ok := jsonadm.AsAdminError(err); ok {
			return "", nil, err
		}
		return "", nil, jsonadm.NewStorageError("Invalid search criteria", err).WithDetail("resource", m.def.Name)
	}
	if sql == "" {
		return clause, args, nil
	}
	return clause + " AND " + sql, append(args, condArgs...), nil
}

func (m *PostgresManager) Search(ctx context.Context, criteria *jsonadm.SearchCriteria, refDomains []string) ([]*jsonadm.Entity, int, error) {
	if criteria == nil {
		criteria = m.CreateSearch()
	}
	if err := checkCriteriaFields(m.def, m.base, criteria); err != nil {
		return nil, 0, err
	}

	paramIndex := 0
	where, args, err := m.where(criteria.Condition, &paramIndex)
	if err != nil {
		return nil, 0, err
	}
	table := sanitizeIdentifier(m.store.tables.Entity)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where)
	if err := m.store.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, jsonadm.NewStorageError("count entities", err).WithDetail("resource", m.def.Name)
	}

	order, err := m.orderBy(criteria.Sort)
	if err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf("SELECT id, attributes FROM %s WHERE %s ORDER BY %s", table, where, order)
	if criteria.Limit > 0 {
		paramIndex++
		query += fmt.Sprintf(" LIMIT $%d", paramIndex)
		args = append(args, criteria.Limit)
	}
	if criteria.Offset > 0 {
		paramIndex++
		query += fmt.Sprintf(" OFFSET $%d", paramIndex)
		args = append(args, criteria.Offset)
	}

	entities, err := m.queryEntities(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	zap.S().Debugw("postgres search", "resource", m.def.Name, "total", total, "returned", len(entities), "refDomains", refDomains)
	return entities, total, nil
}

func (m *PostgresManager) queryEntities(ctx context.Context, query string, args ...any) ([]*jsonadm.Entity, error) {
	rows, err := m.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, jsonadm.NewStorageError("query entities", err).WithDetail("resource", m.def.Name)
	}
	defer rows.Close()

	var entities []*jsonadm.Entity
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, jsonadm.NewStorageError("scan entity", err).WithDetail("resource", m.def.Name)
		}
		e, err := m.decodeEntity(id, raw)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, jsonadm.NewStorageError("iterate entities", err).WithDetail("resource", m.def.Name)
	}
	return entities, nil
}

func (m *PostgresManager) decodeEntity(id string, raw []byte) (*jsonadm.Entity, error) {
	e := jsonadm.NewEntity(m.def.Name)
	e.ID = id
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Attributes); err != nil {
			return nil, jsonadm.NewStorageError("decode entity attributes", err).WithDetail("id", id)
		}
	}
	return e, nil
}

func (m *PostgresManager) SearchByIDs(ctx context.Context, ids []string) ([]*jsonadm.Entity, error) {
	ids = Distinct(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	paramIndex := 0
	where, args, err := m.where(m.base, &paramIndex)
	if err != nil {
		return nil, err
	}
	paramIndex++
	query := fmt.Sprintf("SELECT id, attributes FROM %s WHERE %s AND id = ANY($%d) ORDER BY id",
		sanitizeIdentifier(m.store.tables.Entity), where, paramIndex)
	return m.queryEntities(ctx, query, append(args, ids)...)
}

func (m *PostgresManager) GetItem(ctx context.Context, id string) (*jsonadm.Entity, error) {
	paramIndex := 0
	where, args, err := m.where(m.base, &paramIndex)
	if err != nil {
		return nil, err
	}
	paramIndex++
	query := fmt.Sprintf("SELECT id, attributes FROM %s WHERE %s AND id = $%d",
		sanitizeIdentifier(m.store.tables.Entity), where, paramIndex)

	var rowID string
	var raw []byte
	err = m.store.pool.QueryRow(ctx, query, append(args, id)...).Scan(&rowID, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, jsonadm.NewEntityNotFoundError(m.def.Name, id)
	}
	if err != nil {
		return nil, jsonadm.NewStorageError("get entity", err).WithDetail("resource", m.def.Name)
	}
	return m.decodeEntity(rowID, raw)
}

func (m *PostgresManager) CreateItem() *jsonadm.Entity {
	return jsonadm.NewEntity(m.def.Name)
}

func (m *PostgresManager) SaveItem(ctx context.Context, entity *jsonadm.Entity) (*jsonadm.Entity, error) {
	saved := entity.Clone()
	saved.ResourceType = m.def.Name
	delete(saved.Attributes, jsonadm.AttributePrefix(m.def.Name)+".id")

	raw, err := json.Marshal(saved.Attributes)
	if err != nil {
		return nil, jsonadm.NewStorageError("encode entity attributes", err).WithDetail("resource", m.def.Name)
	}
	table := sanitizeIdentifier(m.store.tables.Entity)
	now := m.store.nowMillis()

	if saved.ID == "" {
		saved.ID = newID()
		query := fmt.Sprintf(
			"INSERT INTO %s (id, resource_type, attributes, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)", table)
		if _, err := m.store.pool.Exec(ctx, query, saved.ID, m.def.Name, raw, now, now); err != nil {
			return nil, jsonadm.NewStorageError("insert entity", err).WithDetail("resource", m.def.Name)
		}
		return saved, nil
	}

	query := fmt.Sprintf("UPDATE %s SET attributes = $1, updated_at = $2 WHERE resource_type = $3 AND id = $4", table)
	tag, err := m.store.pool.Exec(ctx, query, raw, now, m.def.Name, saved.ID)
	if err != nil {
		return nil, jsonadm.NewStorageError("update entity", err).WithDetail("resource", m.def.Name)
	}
	if tag.RowsAffected() == 0 {
		return nil, jsonadm.NewEntityNotFoundError(m.def.Name, saved.ID)
	}
	return saved, nil
}

func (m *PostgresManager) DeleteItem(ctx context.Context, id string) error {
	return m.DeleteItems(ctx, []string{id})
}

// DeleteItems removes the entities and their relationship records in one transaction.
// Unknown ids and ids outside the base filter are ignored.
func (m *PostgresManager) DeleteItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	paramIndex := 0
	where, args, err := m.where(m.base, &paramIndex)
	if err != nil {
		return err
	}
	paramIndex++
	query := fmt.Sprintf("DELETE FROM %s WHERE %s AND id = ANY($%d) RETURNING id",
		sanitizeIdentifier(m.store.tables.Entity), where, paramIndex)
	args = append(args, ids)

	tx, err := m.store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return jsonadm.NewStorageError("begin transaction", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return jsonadm.NewStorageError("delete entities", err).WithDetail("resource", m.def.Name)
	}
	deleted, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return jsonadm.NewStorageError("delete entities", err).WithDetail("resource", m.def.Name)
	}

	if m.lists != nil && len(deleted) > 0 {
		query := fmt.Sprintf("DELETE FROM %s WHERE resource_type = $1 AND parent_id = ANY($2)",
			sanitizeIdentifier(m.store.tables.List))
		if _, err := tx.Exec(ctx, query, m.lists.resourceType, deleted); err != nil {
			return jsonadm.NewStorageError("delete list items", err).WithDetail("resource", m.def.Name)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return jsonadm.NewStorageError("commit transaction", err)
	}
	return nil
}

func (m *PostgresManager) SubManager(name string) (jsonadm.SubManager, error) {
	switch {
	case name == jsonadm.SubManagerLists && m.lists != nil:
		return m.lists, nil
	case name == jsonadm.SubManagerType && m.types != nil:
		return m.types, nil
	}
	return nil, jsonadm.NewDomainNotFoundError(m.def.Name + "/" + name)
}

// SearchChildren returns the entities whose parent id is one of parentIDs.
func (m *PostgresManager) SearchChildren(ctx context.Context, parentIDs []string) ([]*jsonadm.Entity, error) {
	if !m.def.Tree || len(parentIDs) == 0 {
		return nil, nil
	}
	children, _, err := m.Search(ctx, &jsonadm.SearchCriteria{Condition: parentCondition(m.def, m.base, parentIDs)}, nil)
	return children, err
}

type postgresListManager struct {
	store        *PostgresStore
	resourceType string
	types        *postgresTypeManager
}

func (l *postgresListManager) ResourceType() string { return l.resourceType }

func (l *postgresListManager) CreateItem() *jsonadm.ListItem {
	return jsonadm.NewListItem(l.resourceType)
}

func (l *postgresListManager) SaveItem(ctx context.Context, item *jsonadm.ListItem) (*jsonadm.ListItem, error) {
	if item.ParentID == "" || item.Domain == "" {
		return nil, jsonadm.NewStorageError("List item needs a parent ID and a domain", nil).
			WithDetail("resource", l.resourceType)
	}
	saved := *item
	saved.ResourceType = l.resourceType
	attrs := saved.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, jsonadm.NewStorageError("encode list item attributes", err).WithDetail("resource", l.resourceType)
	}
	table := sanitizeIdentifier(l.store.tables.List)

	if saved.ID == "" {
		saved.ID = newID()
		query := fmt.Sprintf(
			`INSERT INTO %s (id, resource_type, parent_id, domain, ref_id, type_id, position, attributes)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, table)
		if _, err := l.store.pool.Exec(ctx, query,
			saved.ID, l.resourceType, saved.ParentID, saved.Domain, saved.RefID, saved.TypeID, saved.Position, raw); err != nil {
			return nil, jsonadm.NewStorageError("insert list item", err).WithDetail("resource", l.resourceType)
		}
		return &saved, nil
	}

	query := fmt.Sprintf(
		`UPDATE %s SET parent_id = $1, domain = $2, ref_id = $3, type_id = $4, position = $5, attributes = $6
			WHERE resource_type = $7 AND id = $8`, table)
	tag, err := l.store.pool.Exec(ctx, query,
		saved.ParentID, saved.Domain, saved.RefID, saved.TypeID, saved.Position, raw, l.resourceType, saved.ID)
	if err != nil {
		return nil, jsonadm.NewStorageError("update list item", err).WithDetail("resource", l.resourceType)
	}
	if tag.RowsAffected() == 0 {
		return nil, jsonadm.NewEntityNotFoundError(l.resourceType, saved.ID)
	}
	return &saved, nil
}

func (l *postgresListManager) SearchItems(ctx context.Context, parentIDs []string, domain string) ([]*jsonadm.ListItem, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT id, parent_id, domain, ref_id, type_id, position, attributes FROM %s
			WHERE resource_type = $1 AND domain = $2 AND parent_id = ANY($3)
			ORDER BY position, id`,
		sanitizeIdentifier(l.store.tables.List))

	rows, err := l.store.pool.Query(ctx, query, l.resourceType, domain, parentIDs)
	if err != nil {
		return nil, jsonadm.NewStorageError("query list items", err).WithDetail("resource", l.resourceType)
	}
	defer rows.Close()

	var items []*jsonadm.ListItem
	for rows.Next() {
		item := jsonadm.NewListItem(l.resourceType)
		var raw []byte
		if err := rows.Scan(&item.ID, &item.ParentID, &item.Domain, &item.RefID, &item.TypeID, &item.Position, &raw); err != nil {
			return nil, jsonadm.NewStorageError("scan list item", err).WithDetail("resource", l.resourceType)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &item.Attributes); err != nil {
				return nil, jsonadm.NewStorageError("decode list item attributes", err).WithDetail("id", item.ID)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, jsonadm.NewStorageError("iterate list items", err).WithDetail("resource", l.resourceType)
	}
	return items, nil
}

func (l *postgresListManager) SubManager(name string) (jsonadm.SubManager, error) {
	if name == jsonadm.SubManagerType && l.types != nil {
		return l.types, nil
	}
	return nil, jsonadm.NewDomainNotFoundError(l.resourceType + "/" + name)
}

type postgresTypeManager struct {
	store        *PostgresStore
	resourceType string
}

func (t *postgresTypeManager) ResourceType() string { return t.resourceType }

func (t *postgresTypeManager) FindItem(ctx context.Context, code, domain string) (*jsonadm.TypeItem, error) {
	query := fmt.Sprintf(
		"SELECT id, code, domain, label FROM %s WHERE resource_type = $1 AND code = $2 AND domain = $3",
		sanitizeIdentifier(t.store.tables.Type))

	item := &jsonadm.TypeItem{}
	err := t.store.pool.QueryRow(ctx, query, t.resourceType, code, domain).Scan(&item.ID, &item.Code, &item.Domain, &item.Label)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, jsonadm.NewEntityNotFoundError(t.resourceType, domain+"/"+code)
	}
	if err != nil {
		return nil, jsonadm.NewStorageError("find type", err).WithDetail("resource", t.resourceType)
	}
	return item, nil
}
