package internal

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/lychee-technology/jsonadm"
	"go.uber.org/zap"
)

// MemoryStore holds the records of all in-memory managers.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]map[string]*jsonadm.Entity
	seq      map[string]int
	next     int
	lists    map[string]map[string]*jsonadm.ListItem
	types    map[string][]*jsonadm.TypeItem
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[string]map[string]*jsonadm.Entity),
		seq:      make(map[string]int),
		lists:    make(map[string]map[string]*jsonadm.ListItem),
		types:    make(map[string][]*jsonadm.TypeItem),
	}
}

func (s *MemoryStore) bucket(resourceType string) map[string]*jsonadm.Entity {
	b, ok := s.entities[resourceType]
	if !ok {
		b = make(map[string]*jsonadm.Entity)
		s.entities[resourceType] = b
	}
	return b
}

// PutType adds a type code to the type table of resourceType.
func (s *MemoryStore) PutType(resourceType string, item *jsonadm.TypeItem) *jsonadm.TypeItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *item
	if stored.ID == "" {
		stored.ID = newID()
	}
	s.types[resourceType] = append(s.types[resourceType], &stored)
	out := stored
	return &out
}

// MemoryManager keeps the entities of one resource type in a MemoryStore.
type MemoryManager struct {
	store *MemoryStore
	def   jsonadm.ResourceDefinition
	base  jsonadm.Condition
	lists *memoryListManager
	types *memoryTypeManager
}

// NewMemoryManager creates the manager of def. The base filter of def restricts every search.
func NewMemoryManager(store *MemoryStore, def jsonadm.ResourceDefinition) (*MemoryManager, error) {
	m := &MemoryManager{store: store, def: def}

	if def.BaseFilter != "" {
		cond, err := jsonadm.UnmarshalCondition([]byte(def.BaseFilter))
		if err != nil {
			return nil, fmt.Errorf("invalid base filter for %s: %w", def.Name, err)
		}
		m.base = cond
	}

	if len(def.Types) > 0 || def.Lists {
		m.types = &memoryTypeManager{store: store, resourceType: def.Name + "/type"}
		for _, td := range def.Types {
			store.PutType(m.types.resourceType, &jsonadm.TypeItem{Code: td.Code, Domain: td.Domain, Label: td.Label})
		}
	}
	if def.Lists {
		m.lists = &memoryListManager{store: store, resourceType: def.Name + "/lists", types: m.types}
	}
	return m, nil
}

func (m *MemoryManager) ResourceType() string { return m.def.Name }

func (m *MemoryManager) ResourceTypes() []string {
	return resourceTypes(m.def, m.lists != nil, m.types != nil)
}

func (m *MemoryManager) SearchableAttributes() []jsonadm.AttributeDescriptor {
	return searchableAttributes(m.def)
}

func (m *MemoryManager) CreateSearch() *jsonadm.SearchCriteria {
	return &jsonadm.SearchCriteria{Condition: m.base}
}

func (m *MemoryManager) Search(ctx context.Context, criteria *jsonadm.SearchCriteria, refDomains []string) ([]*jsonadm.Entity, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if criteria == nil {
		criteria = m.CreateSearch()
	}
	if err := checkCriteriaFields(m.def, m.base, criteria); err != nil {
		return nil, 0, err
	}

	m.store.mu.RLock()
	var matches []*jsonadm.Entity
	for _, e := range m.store.entities[m.def.Name] {
		if criteria.Condition == nil || criteria.Condition.Evaluate(e.ToMap()) {
			matches = append(matches, e)
		}
	}
	seq := m.store.seq
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].ToMap(), matches[j].ToMap()
		for _, key := range criteria.Sort {
			c := compareValues(a[key.Field], b[key.Field])
			if c == 0 {
				continue
			}
			if key.Order == jsonadm.SortOrderDesc {
				return c > 0
			}
			return c < 0
		}
		return seq[matches[i].ID] < seq[matches[j].ID]
	})
	m.store.mu.RUnlock()

	total := len(matches)
	start := min(criteria.Offset, total)
	end := total
	if criteria.Limit > 0 {
		end = min(start+criteria.Limit, total)
	}

	page := make([]*jsonadm.Entity, 0, end-start)
	for _, e := range matches[start:end] {
		page = append(page, cloneEntity(e))
	}

	zap.S().Debugw("memory search", "resource", m.def.Name, "total", total, "returned", len(page), "refDomains", refDomains)
	return page, total, nil
}

func (m *MemoryManager) SearchByIDs(ctx context.Context, ids []string) ([]*jsonadm.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	bucket := m.store.entities[m.def.Name]
	out := make([]*jsonadm.Entity, 0, len(ids))
	for _, id := range Distinct(ids) {
		if e, ok := bucket[id]; ok && m.visible(e) {
			out = append(out, cloneEntity(e))
		}
	}
	return out, nil
}

func (m *MemoryManager) visible(e *jsonadm.Entity) bool {
	return m.base == nil || m.base.Evaluate(e.ToMap())
}

func (m *MemoryManager) GetItem(ctx context.Context, id string) (*jsonadm.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	e, ok := m.store.entities[m.def.Name][id]
	if !ok || !m.visible(e) {
		return nil, jsonadm.NewEntityNotFoundError(m.def.Name, id)
	}
	return cloneEntity(e), nil
}

func (m *MemoryManager) CreateItem() *jsonadm.Entity {
	return jsonadm.NewEntity(m.def.Name)
}

func (m *MemoryManager) SaveItem(ctx context.Context, entity *jsonadm.Entity) (*jsonadm.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	bucket := m.store.bucket(m.def.Name)
	stored := cloneEntity(entity)
	stored.ResourceType = m.def.Name

	if stored.ID == "" {
		stored.ID = newID()
		m.store.next++
		m.store.seq[stored.ID] = m.store.next
	} else if _, ok := bucket[stored.ID]; !ok {
		return nil, jsonadm.NewEntityNotFoundError(m.def.Name, stored.ID)
	}
	delete(stored.Attributes, jsonadm.AttributePrefix(m.def.Name)+".id")

	bucket[stored.ID] = stored
	return cloneEntity(stored), nil
}

// DeleteItem removes the entity and its relationship records. Unknown ids and ids
// outside the base filter are ignored.
func (m *MemoryManager) DeleteItem(ctx context.Context, id string) error {
	return m.DeleteItems(ctx, []string{id})
}

func (m *MemoryManager) DeleteItems(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	parents := NewSet[string]()
	bucket := m.store.entities[m.def.Name]
	for _, id := range ids {
		e, ok := bucket[id]
		if !ok || !m.visible(e) {
			continue
		}
		delete(bucket, id)
		delete(m.store.seq, id)
		parents.Add(id)
	}
	if m.lists != nil {
		for id, item := range m.store.lists[m.lists.resourceType] {
			if parents.Contains(item.ParentID) {
				delete(m.store.lists[m.lists.resourceType], id)
			}
		}
	}
	return nil
}

func (m *MemoryManager) SubManager(name string) (jsonadm.SubManager, error) {
	switch {
	case name == jsonadm.SubManagerLists && m.lists != nil:
		return m.lists, nil
	case name == jsonadm.SubManagerType && m.types != nil:
		return m.types, nil
	}
	return nil, jsonadm.NewDomainNotFoundError(m.def.Name + "/" + name)
}

// SearchChildren returns the entities whose parent id is one of parentIDs.
func (m *MemoryManager) SearchChildren(ctx context.Context, parentIDs []string) ([]*jsonadm.Entity, error) {
	if !m.def.Tree || len(parentIDs) == 0 {
		return nil, nil
	}
	criteria := &jsonadm.SearchCriteria{Condition: parentCondition(m.def, m.base, parentIDs)}
	children, _, err := m.Search(ctx, criteria, nil)
	return children, err
}

type memoryListManager struct {
	store        *MemoryStore
	resourceType string
	types        *memoryTypeManager
}

func (l *memoryListManager) ResourceType() string { return l.resourceType }

func (l *memoryListManager) CreateItem() *jsonadm.ListItem {
	return jsonadm.NewListItem(l.resourceType)
}

func (l *memoryListManager) SaveItem(ctx context.Context, item *jsonadm.ListItem) (*jsonadm.ListItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if item.ParentID == "" || item.Domain == "" {
		return nil, jsonadm.NewStorageError("List item needs a parent ID and a domain", nil).
			WithDetail("resource", l.resourceType)
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	bucket, ok := l.store.lists[l.resourceType]
	if !ok {
		bucket = make(map[string]*jsonadm.ListItem)
		l.store.lists[l.resourceType] = bucket
	}
	stored := cloneListItem(item)
	stored.ResourceType = l.resourceType
	if stored.ID == "" {
		stored.ID = newID()
		l.store.next++
		l.store.seq[stored.ID] = l.store.next
	}
	bucket[stored.ID] = stored
	return cloneListItem(stored), nil
}

func (l *memoryListManager) SearchItems(ctx context.Context, parentIDs []string, domain string) ([]*jsonadm.ListItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()

	parents := NewSet(parentIDs...)
	var out []*jsonadm.ListItem
	for _, item := range l.store.lists[l.resourceType] {
		if item.Domain == domain && parents.Contains(item.ParentID) {
			out = append(out, cloneListItem(item))
		}
	}
	seq := l.store.seq
	slices.SortFunc(out, func(a, b *jsonadm.ListItem) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return seq[a.ID] - seq[b.ID]
	})
	return out, nil
}

func (l *memoryListManager) SubManager(name string) (jsonadm.SubManager, error) {
	if name == jsonadm.SubManagerType && l.types != nil {
		return l.types, nil
	}
	return nil, jsonadm.NewDomainNotFoundError(l.resourceType + "/" + name)
}

type memoryTypeManager struct {
	store        *MemoryStore
	resourceType string
}

func (t *memoryTypeManager) ResourceType() string { return t.resourceType }

func (t *memoryTypeManager) FindItem(ctx context.Context, code, domain string) (*jsonadm.TypeItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	for _, item := range t.store.types[t.resourceType] {
		if item.Code == code && item.Domain == domain {
			out := *item
			return &out, nil
		}
	}
	return nil, jsonadm.NewEntityNotFoundError(t.resourceType, domain+"/"+code)
}

func cloneEntity(e *jsonadm.Entity) *jsonadm.Entity {
	return &jsonadm.Entity{ResourceType: e.ResourceType, ID: e.ID, Attributes: copyMapDeep(e.Attributes)}
}

func cloneListItem(li *jsonadm.ListItem) *jsonadm.ListItem {
	out := *li
	out.Attributes = copyMapDeep(li.Attributes)
	return &out
}
