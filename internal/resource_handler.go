package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lychee-technology/jsonadm"
	"go.uber.org/zap"
)

// Content types of JSON:API responses.
const (
	ContentType     = `application/vnd.api+json; supported-ext="bulk"`
	BulkContentType = `application/vnd.api+json; ext="bulk"; supported-ext="bulk"`
)

// AllowedMethods is reported by OPTIONS.
const AllowedMethods = "DELETE,GET,POST,OPTIONS"

// Translation domains of error titles.
const (
	DomainAdmin   = "admin/jsonadm"
	DomainStorage = "mshop"
)

// Translator localizes message within domain.
type Translator func(domain, message string) string

// Request is one call of a resource verb.
type Request struct {
	Resource string
	ID       string
	Params   Params
	Body     []byte
}

// Response carries the status, headers and view of a handled request.
type Response struct {
	Status int
	Header http.Header
	View   *jsonadm.ViewModel
}

// HandlerOption configures a ResourceHandler.
type HandlerOption func(*ResourceHandler)

// WithTranslator sets the translator used for error titles.
func WithTranslator(t Translator) HandlerOption {
	return func(h *ResourceHandler) {
		if t != nil {
			h.translate = t
		}
	}
}

// ResourceHandler implements the JSON:API verbs of every registered resource.
// Errors never leave the handler, they are reported in the view.
type ResourceHandler struct {
	registry  jsonadm.ManagerRegistry
	criteria  *CriteriaBuilder
	parser    *PayloadParser
	resolver  *RelationshipResolver
	persister *EntryPersister
	domains   []string
	translate Translator
	logger    *zap.SugaredLogger
}

// NewResourceHandler wires the handler with its collaborators.
func NewResourceHandler(registry jsonadm.ManagerRegistry, cfg *jsonadm.Config, logger *zap.Logger, opts ...HandlerOption) (*ResourceHandler, error) {
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if cfg == nil {
		cfg = jsonadm.DefaultConfig()
	}
	if logger == nil {
		logger = zap.L()
	}
	parser, err := NewPayloadParser()
	if err != nil {
		return nil, fmt.Errorf("create payload parser: %w", err)
	}

	h := &ResourceHandler{
		registry:  registry,
		criteria:  NewCriteriaBuilder(cfg.Query),
		parser:    parser,
		resolver:  NewRelationshipResolver(registry, logger),
		persister: NewEntryPersister(logger),
		domains:   cfg.Resource.Domains,
		translate: func(domain, message string) string { return message },
		logger:    logger.Sugar(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle dispatches req by HTTP method.
func (h *ResourceHandler) Handle(ctx context.Context, method string, req *Request) *Response {
	start := time.Now()
	if req.Params == nil {
		req.Params = Params{}
	}

	var resp *Response
	switch strings.ToUpper(method) {
	case http.MethodGet:
		resp = h.Get(ctx, req)
	case http.MethodPost:
		resp = h.Post(ctx, req)
	case http.MethodPatch:
		resp = h.Patch(ctx, req)
	case http.MethodPut:
		resp = h.Put(ctx, req)
	case http.MethodDelete:
		resp = h.Delete(ctx, req)
	case http.MethodOptions:
		resp = h.Options(ctx, req)
	default:
		resp = h.fail(newView(req), jsonadm.NewAdminError(jsonadm.ErrorTypeValidation, jsonadm.ErrCodeInvalidParameter,
			fmt.Sprintf("Method \"%s\" is not supported", method)).WithStatus(http.StatusMethodNotAllowed))
		resp.Header.Set("Allow", AllowedMethods)
	}

	elapsed := time.Since(start).Milliseconds()
	EmitLatency(ctx, strings.ToUpper(method), req.Resource, resp.Status, elapsed)
	h.logger.Debugw("request handled", "method", method, "resource", req.Resource, "id", req.ID,
		"status", resp.Status, "elapsedMs", elapsed)
	return resp
}

// Get returns one item when the request names an id and a page of search results otherwise.
func (h *ResourceHandler) Get(ctx context.Context, req *Request) *Response {
	view := newView(req)

	manager, err := h.registry.Manager(ctx, req.Resource)
	if err != nil {
		return h.fail(view, err)
	}

	if req.ID != "" {
		item, err := manager.GetItem(ctx, req.ID)
		if err != nil {
			return h.fail(view, err)
		}
		view.Data, view.Single, view.Total = []*jsonadm.Entity{item}, true, 1
	} else {
		criteria, err := h.criteria.Build(manager.CreateSearch(), req.Params)
		if err != nil {
			return h.fail(view, err)
		}
		items, total, err := manager.Search(ctx, criteria, view.Include)
		if err != nil {
			return h.fail(view, err)
		}
		view.Data, view.Total = items, total
	}

	if err := h.attachRelations(ctx, manager, view); err != nil {
		return h.fail(view, err)
	}
	return h.respond(http.StatusOK, view, false)
}

// Delete removes the item of the route id, or every item listed in the body.
func (h *ResourceHandler) Delete(ctx context.Context, req *Request) *Response {
	view := newView(req)

	manager, err := h.registry.Manager(ctx, req.Resource)
	if err != nil {
		return h.fail(view, err)
	}

	if req.ID != "" {
		if err := manager.DeleteItem(ctx, req.ID); err != nil {
			return h.fail(view, err)
		}
		view.Total = 1
		return h.respond(http.StatusOK, view, false)
	}

	parsed, err := h.parser.Parse(req.Body)
	if err != nil {
		return h.fail(view, err)
	}
	if !parsed.Bulk {
		return h.fail(view, jsonadm.NewInvalidBodyError("Invalid JSON in body", errors.New("data must be a list of items")))
	}
	ids := h.parser.ExtractIDs(parsed)
	if err := manager.DeleteItems(ctx, ids); err != nil {
		return h.fail(view, err)
	}
	view.Total = len(ids)
	return h.respond(http.StatusOK, view, false)
}

// Patch updates one item or, for a list payload, every listed item.
func (h *ResourceHandler) Patch(ctx context.Context, req *Request) *Response {
	view := newView(req)

	parsed, err := h.parser.Parse(req.Body)
	if err != nil {
		return h.fail(view, err)
	}
	manager, err := h.registry.Manager(ctx, req.Resource)
	if err != nil {
		return h.fail(view, err)
	}

	if !parsed.Bulk {
		entry := parsed.Entries[0]
		if req.ID != "" {
			entry.ID = req.ID
		}
		if entry.ID == "" {
			return h.fail(view, jsonadm.NewMissingIDError())
		}
	}
	return h.write(ctx, manager, parsed, view, http.StatusOK)
}

// Post creates one item or, for a list payload, every listed item. Ids are assigned by storage.
func (h *ResourceHandler) Post(ctx context.Context, req *Request) *Response {
	view := newView(req)

	parsed, err := h.parser.Parse(req.Body)
	if err != nil {
		return h.fail(view, err)
	}
	if req.ID != "" || len(parsed.IDs()) > 0 {
		return h.fail(view, jsonadm.NewForbiddenClientIDError())
	}
	manager, err := h.registry.Manager(ctx, req.Resource)
	if err != nil {
		return h.fail(view, err)
	}
	return h.write(ctx, manager, parsed, view, http.StatusCreated)
}

// Put is not supported, clients update with PATCH.
func (h *ResourceHandler) Put(ctx context.Context, req *Request) *Response {
	return h.fail(newView(req), jsonadm.NewNotImplementedError("Not implemented, use PATCH instead"))
}

// Options describes the resource types and searchable attributes of the requested domains.
func (h *ResourceHandler) Options(ctx context.Context, req *Request) *Response {
	view := newView(req)

	domains := commaList(req.Params["resource"])
	if len(domains) == 0 {
		domains = h.domains
	}
	if len(domains) == 0 {
		domains = h.registry.Resources()
	}

	resources := NewSet[string]()
	for _, domain := range domains {
		manager, err := h.registry.Manager(ctx, domain)
		if err != nil {
			resp := h.fail(view, err)
			resp.Header.Set("Allow", AllowedMethods)
			return resp
		}
		for _, rt := range manager.ResourceTypes() {
			resources.Add(rt)
		}
		view.Attributes = append(view.Attributes, manager.SearchableAttributes()...)
	}
	view.Resources = resources.ToSlice()

	resp := h.respond(http.StatusOK, view, false)
	resp.Header.Set("Allow", AllowedMethods)
	return resp
}

func (h *ResourceHandler) write(ctx context.Context, manager jsonadm.EntityManager, parsed *jsonadm.ParsedRequest, view *jsonadm.ViewModel, status int) *Response {
	if parsed.Bulk {
		items, err := h.persister.SaveBatch(ctx, manager, parsed.Entries)
		if err != nil {
			return h.fail(view, err)
		}
		view.Data, view.Total = items, len(items)
	} else {
		item, err := h.persister.SaveEntry(ctx, manager, parsed.Entries[0])
		if err != nil {
			return h.fail(view, err)
		}
		view.Data, view.Single, view.Total = []*jsonadm.Entity{item}, true, 1
	}

	if err := h.attachRelations(ctx, manager, view); err != nil {
		return h.fail(view, err)
	}
	return h.respond(status, view, parsed.Bulk)
}

func (h *ResourceHandler) attachRelations(ctx context.Context, manager jsonadm.EntityManager, view *jsonadm.ViewModel) error {
	rel, err := h.resolver.Resolve(ctx, manager, view.Data, view.Include)
	if err != nil {
		return err
	}
	view.ChildItems = rel.ChildItems
	view.ListItems = rel.ListItems
	view.Included = rel.Included
	return nil
}

func newView(req *Request) *jsonadm.ViewModel {
	return &jsonadm.ViewModel{
		Include: Include(req.Params),
		Fields:  Fields(req.Params),
	}
}

func (h *ResourceHandler) respond(status int, view *jsonadm.ViewModel, bulk bool) *Response {
	header := http.Header{}
	if bulk {
		header.Set("Content-Type", BulkContentType)
	} else {
		header.Set("Content-Type", ContentType)
	}
	return &Response{Status: status, Header: header, View: view}
}

// fail replaces the view's data with a single error object for err.
func (h *ResourceHandler) fail(view *jsonadm.ViewModel, err error) *Response {
	adminErr, ok := jsonadm.AsAdminError(err)
	if !ok {
		adminErr = jsonadm.NewInternalError("A non-recoverable error occurred", err)
		err = adminErr
	}
	status := jsonadm.StatusCode(err)

	domain := DomainAdmin
	if adminErr.Type == jsonadm.ErrorTypeStorage || adminErr.Code == jsonadm.ErrCodeEntityNotFound {
		domain = DomainStorage
	}

	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		h.logger.Errorw("request failed", "status", status, "error", err)
	} else {
		h.logger.Warnw("request rejected", "status", status, "error", err)
	}

	view.Data, view.Single, view.Total = nil, false, 0
	view.ChildItems, view.ListItems, view.Included = nil, nil, nil
	view.Errors = []jsonadm.ErrorObject{{
		Title:  h.translate(domain, adminErr.Message),
		Detail: err.Error(),
	}}
	return h.respond(status, view, false)
}
