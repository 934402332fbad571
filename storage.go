package jsonadm

import (
	"context"
)

// Sub-manager names understood by EntityManager.SubManager.
const (
	SubManagerLists = "lists"
	SubManagerType  = "type"
)

// EntityManager stores and searches the entities of one resource type.
// Every call reports failures as *AdminError values.
type EntityManager interface {
	ResourceType() string
	// ResourceTypes lists the resource types reachable through this manager, itself included.
	ResourceTypes() []string
	SearchableAttributes() []AttributeDescriptor

	// CreateSearch returns the base criteria of the resource. Callers extend a clone.
	CreateSearch() *SearchCriteria
	// Search returns one page of matches and the total match count ignoring the page.
	Search(ctx context.Context, criteria *SearchCriteria, refDomains []string) ([]*Entity, int, error)
	SearchByIDs(ctx context.Context, ids []string) ([]*Entity, error)
	GetItem(ctx context.Context, id string) (*Entity, error)

	CreateItem() *Entity
	// SaveItem creates the entity when its ID is empty and updates it otherwise.
	SaveItem(ctx context.Context, entity *Entity) (*Entity, error)
	DeleteItem(ctx context.Context, id string) error
	DeleteItems(ctx context.Context, ids []string) error

	// SubManager returns the "lists" or "type" sub-manager.
	SubManager(name string) (SubManager, error)
}

// SubManager is the common part of list and type managers.
type SubManager interface {
	ResourceType() string
}

// ListManager stores relationship records of a parent resource type.
type ListManager interface {
	SubManager
	CreateItem() *ListItem
	SaveItem(ctx context.Context, item *ListItem) (*ListItem, error)
	// SearchItems returns the records of all parents pointing into domain, in position order.
	SearchItems(ctx context.Context, parentIDs []string, domain string) ([]*ListItem, error)
	SubManager(name string) (SubManager, error)
}

// TypeManager resolves type codes.
type TypeManager interface {
	SubManager
	FindItem(ctx context.Context, code, domain string) (*TypeItem, error)
}

// ChildManager is implemented by managers of tree shaped resources.
type ChildManager interface {
	SearchChildren(ctx context.Context, parentIDs []string) ([]*Entity, error)
}

// ManagerRegistry hands out the manager of a resource type.
type ManagerRegistry interface {
	Manager(ctx context.Context, resource string) (EntityManager, error)
	Has(resource string) bool
	Resources() []string
}

// ListManagerOf returns the lists sub-manager of m, or false when it has none.
func ListManagerOf(m EntityManager) (ListManager, bool) {
	sub, err := m.SubManager(SubManagerLists)
	if err != nil || sub == nil {
		return nil, false
	}
	lm, ok := sub.(ListManager)
	return lm, ok
}

// TypeManagerOf returns the type sub-manager of a manager, or false when it has none.
func TypeManagerOf(m interface {
	SubManager(name string) (SubManager, error)
}) (TypeManager, bool) {
	sub, err := m.SubManager(SubManagerType)
	if err != nil || sub == nil {
		return nil, false
	}
	tm, ok := sub.(TypeManager)
	return tm, ok
}
