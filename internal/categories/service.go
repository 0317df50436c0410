// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package categories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/notify"
	"github.com/tomtom215/fieldsync/internal/source"
)

// EntityType is the pending-override entity type of category edits.
const EntityType = "categories"

// MaxNameLength bounds an overridden category name.
const MaxNameLength = 255

// ErrNotFound is returned for an unknown category id.
var ErrNotFound = errors.New("category not found")

// Store is the persistence the service needs.
type Store interface {
	ListCategoryRecords(ctx context.Context, tenantID string) ([]database.CategoryRecord, error)
	ListPending(ctx context.Context, tenantID, entityType string) ([]models.PendingOverride, error)
	UpsertOverrides(ctx context.Context, overrides []models.PendingOverride) error
	RefreshCategoriesFromRaw(ctx context.Context, raw database.RawTable, tenantID string) (int64, error)
}

// Filter narrows ListTree.
type Filter struct {
	VisibleOnly bool
	RootID      string
}

// ImageRef is a source image referenced by a category.
type ImageRef struct {
	CategoryID string
	Path       string
}

// Service composes the master layer with pending overrides and records
// local edits.
type Service struct {
	store  Store
	raw    database.RawTable
	events notify.Publisher
	now    func() time.Time

	// mu serializes the read-compute-write of edits; Move reads siblings
	// before writing their new order.
	mu sync.Mutex
}

// New creates a Service. raw is the raw_categories table that
// RefreshFromRaw reads.
func New(store Store, raw database.RawTable, events notify.Publisher) *Service {
	if events == nil {
		events = notify.NopPublisher{}
	}
	return &Service{store: store, raw: raw, events: events, now: time.Now}
}

// ListTree returns the effective forest sorted by sortOrder, then name.
func (s *Service) ListTree(ctx context.Context, tenantID string, filter Filter) ([]*models.Category, error) {
	nodes, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	forest := buildForest(nodes)

	if filter.RootID != "" {
		root, ok := nodes[filter.RootID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filter.RootID)
		}
		forest = []*models.Category{root}
	}
	if filter.VisibleOnly {
		forest = visibleOnly(forest)
	}
	return forest, nil
}

// Get returns one effective node without children.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*models.Category, error) {
	nodes, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	node, ok := nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := *node
	out.Children = nil
	return &out, nil
}

// Pending returns the category overrides waiting for push-back.
func (s *Service) Pending(ctx context.Context, tenantID string) ([]models.PendingOverride, error) {
	return s.store.ListPending(ctx, tenantID, EntityType)
}

// ApplyOverride records a pending edit of one field. The value is JSON; a
// rejected value never creates a pending row.
func (s *Service) ApplyOverride(ctx context.Context, tenantID, entityID, field string, value json.RawMessage) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !models.IsOverridable(field) {
		return nil, source.NewValidationError("field", "%q is not overridable; allowed: %s",
			field, strings.Join(models.OverridableFields, ", "))
	}
	normalized, err := normalizeValue(field, value)
	if err != nil {
		return nil, err
	}

	nodes, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if _, ok := nodes[entityID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, entityID)
	}
	if field == models.FieldParentID {
		if err := checkParent(nodes, entityID, decodeParent(normalized)); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpsertOverrides(ctx, []models.PendingOverride{s.override(tenantID, entityID, field, normalized)}); err != nil {
		return nil, fmt.Errorf("failed to record override: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("tenant_id", tenantID).
		Str("category_id", entityID).
		Str("field", field).
		Msg("category override recorded")
	s.publish(ctx, tenantID, []string{entityID}, map[string]any{"field": field})
	return s.Get(ctx, tenantID, entityID)
}

// Move reparents entityID under newParentID ("" is the root) at position
// among its new siblings and renumbers their sortOrder. The parentId and
// every changed sortOrder are recorded in one transaction.
func (s *Service) Move(ctx context.Context, tenantID, entityID, newParentID string, position int) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.move(ctx, tenantID, entityID, newParentID, position)
}

// MoveToTop moves entityID to the first position under its current parent.
func (s *Service) MoveToTop(ctx context.Context, tenantID, entityID string) (*models.Category, error) {
	return s.moveWithinParent(ctx, tenantID, entityID, func(int) int { return 0 })
}

// MoveToBottom moves entityID to the last position under its current parent.
func (s *Service) MoveToBottom(ctx context.Context, tenantID, entityID string) (*models.Category, error) {
	return s.moveWithinParent(ctx, tenantID, entityID, func(siblings int) int { return siblings })
}

// RefreshFromRaw upserts the source columns from raw_categories. Overrides
// are left alone.
func (s *Service) RefreshFromRaw(ctx context.Context, tenantID string) (int64, error) {
	n, err := s.store.RefreshCategoriesFromRaw(ctx, s.raw, tenantID)
	if err != nil {
		return 0, err
	}
	logging.Ctx(ctx).Debug().Str("tenant_id", tenantID).Int64("rows", n).Msg("refreshed category master layer")
	s.publish(ctx, tenantID, nil, map[string]any{"refreshed": n})
	return n, nil
}

// ImageRefs lists the source image of every category that has one.
func (s *Service) ImageRefs(ctx context.Context, tenantID string) ([]ImageRef, error) {
	records, err := s.store.ListCategoryRecords(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var refs []ImageRef
	for _, rec := range records {
		if rec.ImageRef != "" {
			refs = append(refs, ImageRef{CategoryID: rec.ID, Path: rec.ImageRef})
		}
	}
	return refs, nil
}

func (s *Service) moveWithinParent(ctx context.Context, tenantID, entityID string, position func(siblings int) int) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	node, ok := nodes[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, entityID)
	}
	parent := parentOf(node, nodes)
	siblings := len(childrenOf(nodes, parent, entityID))
	return s.move(ctx, tenantID, entityID, parent, position(siblings))
}

func (s *Service) move(ctx context.Context, tenantID, entityID, newParentID string, position int) (*models.Category, error) {
	nodes, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	node, ok := nodes[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, entityID)
	}
	if err := checkParent(nodes, entityID, newParentID); err != nil {
		return nil, err
	}

	siblings := childrenOf(nodes, newParentID, entityID)
	if position < 0 {
		position = 0
	}
	if position > len(siblings) {
		position = len(siblings)
	}
	ordered := make([]*models.Category, 0, len(siblings)+1)
	ordered = append(ordered, siblings[:position]...)
	ordered = append(ordered, node)
	ordered = append(ordered, siblings[position:]...)

	var overrides []models.PendingOverride
	if parentOf(node, nodes) != newParentID {
		overrides = append(overrides, s.override(tenantID, entityID, models.FieldParentID, encodeParent(newParentID)))
	}
	changed := []string{entityID}
	for i, n := range ordered {
		order := int64(i)
		if n.SortOrder == order {
			continue
		}
		overrides = append(overrides, s.override(tenantID, n.ID, models.FieldSortOrder, json.RawMessage(fmt.Sprintf("%d", order))))
		if n.ID != entityID {
			changed = append(changed, n.ID)
		}
	}

	if len(overrides) > 0 {
		if err := s.store.UpsertOverrides(ctx, overrides); err != nil {
			return nil, fmt.Errorf("failed to record move: %w", err)
		}
		logging.Ctx(ctx).Info().
			Str("tenant_id", tenantID).
			Str("category_id", entityID).
			Str("parent_id", newParentID).
			Int("position", position).
			Int("overrides", len(overrides)).
			Msg("category moved")
		s.publish(ctx, tenantID, changed, map[string]any{"parentId": newParentID, "position": position})
	}
	return s.Get(ctx, tenantID, entityID)
}

func (s *Service) override(tenantID, entityID, field string, value json.RawMessage) models.PendingOverride {
	return models.PendingOverride{
		TenantID:   tenantID,
		EntityID:   entityID,
		Field:      field,
		EntityType: EntityType,
		Value:      value,
	}
}

func (s *Service) publish(ctx context.Context, tenantID string, ids []string, data map[string]any) {
	if len(ids) > 0 {
		data["ids"] = ids
	}
	err := s.events.Publish(ctx, notify.Event{
		Type:      notify.EventCategoryUpdated,
		TenantID:  tenantID,
		Timestamp: s.now().UTC(),
		Data:      data,
	})
	if err != nil {
		logging.Debug().Err(err).Msg("failed to publish category event")
	}
}

// load composes every master row of the tenant with its pending overrides.
func (s *Service) load(ctx context.Context, tenantID string) (map[string]*models.Category, error) {
	records, err := s.store.ListCategoryRecords(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	pending, err := s.store.ListPending(ctx, tenantID, EntityType)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending overrides: %w", err)
	}

	nodes := make(map[string]*models.Category, len(records))
	for _, rec := range records {
		nodes[rec.ID] = &models.Category{
			ID:        rec.ID,
			TenantID:  rec.TenantID,
			SourceID:  rec.SourceID,
			ParentID:  rec.SourceParentID,
			Name:      rec.Name,
			SortOrder: rec.SortOrder,
			ImageRef:  rec.ImageRef,
			Visible:   rec.Visible,
			UpdatedAt: rec.UpdatedAt,
		}
	}
	for _, o := range pending {
		node, ok := nodes[o.EntityID]
		if !ok {
			continue
		}
		if err := applyValue(node, o.Field, o.Value); err != nil {
			logging.Warn().Err(err).
				Str("category_id", o.EntityID).
				Str("field", o.Field).
				Msg("ignoring unreadable override")
			continue
		}
		if node.Overridden == nil {
			node.Overridden = make(map[string]bool)
		}
		node.Overridden[o.Field] = true
		if o.UpdatedAt.After(node.UpdatedAt) {
			node.UpdatedAt = o.UpdatedAt
		}
	}
	return nodes, nil
}

// checkParent rejects an unknown parent and any parent inside the subtree
// of entityID.
func checkParent(nodes map[string]*models.Category, entityID, parentID string) error {
	if parentID == "" {
		return nil
	}
	if _, ok := nodes[parentID]; !ok {
		return source.NewValidationError("newParentId", "unknown parent category %q", parentID)
	}
	seen := make(map[string]bool)
	for id := parentID; id != ""; {
		if id == entityID {
			return source.NewValidationError("newParentId", "moving %q under %q would create a cycle", entityID, parentID)
		}
		if seen[id] {
			break
		}
		seen[id] = true
		n, ok := nodes[id]
		if !ok {
			break
		}
		id = parentOf(n, nodes)
	}
	return nil
}

// parentOf returns the effective parent id, or "" for a root. A parent that
// does not exist makes the node a root.
func parentOf(n *models.Category, nodes map[string]*models.Category) string {
	if n.ParentID == nil || *n.ParentID == "" {
		return ""
	}
	if _, ok := nodes[*n.ParentID]; !ok {
		return ""
	}
	return *n.ParentID
}

// childrenOf returns the sorted children of parentID, excluding skipID.
func childrenOf(nodes map[string]*models.Category, parentID, skipID string) []*models.Category {
	var out []*models.Category
	for _, n := range nodes {
		if n.ID != skipID && parentOf(n, nodes) == parentID {
			out = append(out, n)
		}
	}
	sortNodes(out)
	return out
}

func buildForest(nodes map[string]*models.Category) []*models.Category {
	byParent := make(map[string][]*models.Category)
	for _, n := range nodes {
		n.Children = nil
		p := parentOf(n, nodes)
		byParent[p] = append(byParent[p], n)
	}
	for _, children := range byParent {
		sortNodes(children)
	}

	seen := make(map[string]bool, len(nodes))
	var attach func(n *models.Category)
	attach = func(n *models.Category) {
		seen[n.ID] = true
		for _, c := range byParent[n.ID] {
			if seen[c.ID] {
				continue
			}
			n.Children = append(n.Children, c)
			attach(c)
		}
	}
	roots := byParent[""]
	for _, r := range roots {
		attach(r)
	}
	if len(seen) < len(nodes) {
		logging.Warn().Int("unreachable", len(nodes)-len(seen)).Msg("category tree contains a cycle")
	}
	return roots
}

func visibleOnly(forest []*models.Category) []*models.Category {
	out := make([]*models.Category, 0, len(forest))
	for _, n := range forest {
		if !n.Visible {
			continue
		}
		c := *n
		c.Children = visibleOnly(n.Children)
		out = append(out, &c)
	}
	return out
}

func sortNodes(nodes []*models.Category) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].SortOrder != nodes[j].SortOrder {
			return nodes[i].SortOrder < nodes[j].SortOrder
		}
		if nodes[i].Name != nodes[j].Name {
			return nodes[i].Name < nodes[j].Name
		}
		return nodes[i].ID < nodes[j].ID
	})
}
