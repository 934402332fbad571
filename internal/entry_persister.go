package internal

import (
	"context"
	"fmt"

	"github.com/lychee-technology/jsonadm"
	"go.uber.org/zap"
)

// EntryPersister saves decoded request entries and their relationship records.
type EntryPersister struct {
	logger *zap.SugaredLogger
}

// NewEntryPersister creates a persister logging through logger, or the global logger when nil.
func NewEntryPersister(logger *zap.Logger) *EntryPersister {
	if logger == nil {
		logger = zap.L()
	}
	return &EntryPersister{logger: logger.Sugar()}
}

// SaveBatch saves entries in order. The first failure aborts the batch; entries saved
// before it stay saved.
func (p *EntryPersister) SaveBatch(ctx context.Context, manager jsonadm.EntityManager, entries []*jsonadm.RequestEntry) ([]*jsonadm.Entity, error) {
	saved := make([]*jsonadm.Entity, 0, len(entries))
	for i, entry := range entries {
		item, err := p.SaveEntry(ctx, manager, entry)
		if err != nil {
			p.logger.Warnw("batch aborted", "resource", manager.ResourceType(), "entry", i, "saved", len(saved), "error", err)
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		saved = append(saved, item)
	}
	return saved, nil
}

// SaveEntry creates or updates the entity of entry, stores its relationship records and
// returns the entity as read back from storage.
func (p *EntryPersister) SaveEntry(ctx context.Context, manager jsonadm.EntityManager, entry *jsonadm.RequestEntry) (*jsonadm.Entity, error) {
	resource := manager.ResourceType()

	var item *jsonadm.Entity
	if entry.ID != "" {
		existing, err := manager.GetItem(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		item = existing
	} else {
		item = manager.CreateItem()
	}

	item.FromMap(entry.Attributes)
	prefix := jsonadm.AttributePrefix(resource)
	if code, ok := typeCode(item.Attributes, prefix); ok {
		typeID, err := resolveTypeID(ctx, manager, resource, code, resource)
		if err != nil {
			return nil, err
		}
		item.Set(prefix+".typeid", typeID)
	}

	saved, err := manager.SaveItem(ctx, item)
	if err != nil {
		return nil, err
	}

	if len(entry.Relationships) > 0 {
		if err := p.saveRelationships(ctx, manager, saved.ID, entry); err != nil {
			return nil, err
		}
	}

	return manager.GetItem(ctx, saved.ID)
}

func (p *EntryPersister) saveRelationships(ctx context.Context, manager jsonadm.EntityManager, parentID string, entry *jsonadm.RequestEntry) error {
	lists, ok := jsonadm.ListManagerOf(manager)
	if !ok {
		return jsonadm.NewDomainNotFoundError(manager.ResourceType() + "/" + jsonadm.SubManagerLists)
	}
	prefix := jsonadm.AttributePrefix(lists.ResourceType())

	for _, domain := range entry.RelationshipDomains() {
		var existing []*jsonadm.ListItem
		if entry.ID != "" {
			items, err := lists.SearchItems(ctx, []string{parentID}, domain)
			if err != nil {
				return err
			}
			existing = items
		}

		reused := NewSet[string]()
		for pos, ref := range entry.Relationships[domain] {
			li := lists.CreateItem()
			li.Position = pos
			li.FromMap(ref.Attributes)
			li.ParentID = parentID
			li.Domain = domain
			if ref.ID != "" {
				li.RefID = ref.ID
			}

			if code, ok := typeCode(li.Attributes, prefix); ok {
				typeID, err := resolveTypeID(ctx, lists, lists.ResourceType(), code, domain)
				if err != nil {
					return err
				}
				li.TypeID = typeID
			}
			for _, old := range existing {
				if old.RefID == li.RefID && old.TypeID == li.TypeID && reused.Add(old.ID) {
					li.ID = old.ID
					break
				}
			}

			if _, err := lists.SaveItem(ctx, li); err != nil {
				p.logger.Warnw("relationship not saved", "resource", lists.ResourceType(),
					"parent", parentID, "domain", domain, "ref", li.RefID, "error", err)
				return err
			}
		}
	}
	return nil
}

func typeCode(attrs map[string]any, prefix string) (string, bool) {
	v, ok := attrs[prefix+".type"]
	if !ok || v == nil {
		return "", false
	}
	code := jsonadm.StringValue(v)
	return code, code != ""
}

// resolveTypeID maps a type code to the identifier storage keeps.
func resolveTypeID(ctx context.Context, owner interface {
	SubManager(name string) (jsonadm.SubManager, error)
}, resource, code, domain string) (string, error) {
	types, ok := jsonadm.TypeManagerOf(owner)
	if !ok {
		return "", jsonadm.NewDomainNotFoundError(resource + "/" + jsonadm.SubManagerType)
	}
	item, err := types.FindItem(ctx, code, domain)
	if err != nil {
		return "", err
	}
	return item.ID, nil
}
