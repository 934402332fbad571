package internal

import (
	"context"

	"github.com/lychee-technology/jsonadm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Relations are the side-loaded records of a set of primary entities.
type Relations struct {
	ChildItems []*jsonadm.Entity
	ListItems  []*jsonadm.ListItem
	Included   []*jsonadm.Entity
}

// RelationshipResolver fetches the relationship records and referenced entities requested
// by an include parameter. Lookups are batched per domain, never per entity.
type RelationshipResolver struct {
	registry jsonadm.ManagerRegistry
	logger   *zap.SugaredLogger
}

// NewRelationshipResolver creates a resolver that finds domain managers in registry.
func NewRelationshipResolver(registry jsonadm.ManagerRegistry, logger *zap.Logger) *RelationshipResolver {
	if logger == nil {
		logger = zap.L()
	}
	return &RelationshipResolver{registry: registry, logger: logger.Sugar()}
}

// Resolve returns the children, relationship records and included entities of primary.
// Included entities are grouped by domain in the order the domains first appear in
// include, and each (domain, id) pair appears once.
func (r *RelationshipResolver) Resolve(ctx context.Context, manager jsonadm.EntityManager, primary []*jsonadm.Entity, include []string) (*Relations, error) {
	rel := &Relations{}
	include = Distinct(include)
	if len(primary) == 0 || len(include) == 0 {
		return rel, nil
	}

	parentIDs := make([]string, 0, len(primary))
	for _, e := range primary {
		if e != nil && e.ID != "" {
			parentIDs = append(parentIDs, e.ID)
		}
	}
	parentIDs = Distinct(parentIDs)

	own := manager.ResourceType()
	if children, ok := manager.(jsonadm.ChildManager); ok && NewSet(include...).Contains(own) {
		items, err := children.SearchChildren(ctx, parentIDs)
		if err != nil {
			return nil, err
		}
		rel.ChildItems = items
	}

	lists, ok := jsonadm.ListManagerOf(manager)
	if !ok {
		r.logger.Debugw("no relationship records", "resource", own)
		return rel, nil
	}

	for _, domain := range include {
		items, err := lists.SearchItems(ctx, parentIDs, domain)
		if err != nil {
			return nil, err
		}
		rel.ListItems = append(rel.ListItems, items...)
	}

	groups, domains := GroupBy(rel.ListItems, func(li *jsonadm.ListItem) string { return li.Domain })
	found := make([][]*jsonadm.Entity, len(domains))

	g, gctx := errgroup.WithContext(ctx)
	for i, domain := range domains {
		refIDs := NewSet[string]()
		for _, li := range groups[domain] {
			if li.RefID != "" {
				refIDs.Add(li.RefID)
			}
		}
		if refIDs.Size() == 0 {
			continue
		}

		g.Go(func() error {
			dm, err := r.registry.Manager(gctx, domain)
			if jsonadm.IsDomainNotFoundError(err) {
				r.logger.Debugw("include domain not available", "resource", own, "domain", domain)
				return nil
			}
			if err != nil {
				return err
			}
			entities, err := dm.SearchByIDs(gctx, refIDs.ToSlice())
			if err != nil {
				return err
			}
			found[i] = entities
			EmitLookupCount(gctx, domain, len(entities))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := NewSet[string]()
	for i, domain := range domains {
		for _, e := range found[i] {
			if seen.Add(domain + "\x00" + e.ID) {
				rel.Included = append(rel.Included, e)
			}
		}
	}

	r.logger.Debugw("relations resolved", "resource", own, "include", include,
		"listItems", len(rel.ListItems), "included", len(rel.Included))
	return rel, nil
}
