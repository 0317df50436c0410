// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package fetchers

import (
	"fmt"
	"strings"

	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/provider"
	"github.com/tomtom215/fieldsync/internal/source"
)

// Entity types of the built-in catalogue.
const (
	EntityCustomers     = "customers"
	EntityLocations     = "locations"
	EntityWorkOrders    = "work_orders"
	EntityCategories    = "categories"
	EntityServices      = "services"
	EntityTechnicians   = "technicians"
	EntityBusinessUnits = "business_units"
	EntityJobTypes      = "job_types"
)

// Catalogue is an ordered set of descriptors keyed by entity type.
type Catalogue struct {
	order  []string
	byType map[string]Descriptor
}

// NewCatalogue validates and indexes descriptors in the given order.
func NewCatalogue(descriptors ...Descriptor) (*Catalogue, error) {
	c := &Catalogue{byType: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byType[d.EntityType]; dup {
			return nil, fmt.Errorf("duplicate entity type %q", d.EntityType)
		}
		c.byType[d.EntityType] = d
		c.order = append(c.order, d.EntityType)
	}
	return c, nil
}

// DefaultCatalogue returns the built-in ServiceTitan entity types.
func DefaultCatalogue() *Catalogue {
	c, err := NewCatalogue(
		Descriptor{
			EntityType:  EntityCustomers,
			Domain:      provider.DomainCRM,
			Resource:    "customers",
			Pagination:  source.PaginationPage,
			Incremental: true,
			Columns: []Column{
				{Name: "name", Field: "name", Kind: database.KindScalar},
				{Name: "customer_type", Field: "type", Kind: database.KindScalar},
				{Name: "active", Field: "active", Kind: database.KindBool},
				{Name: "balance", Field: "balance", Kind: database.KindFloat},
				{Name: "tag_type_ids", Field: "tagTypeIds", Kind: database.KindIntArray},
				{Name: "address", Field: "address", Kind: database.KindDocument},
				{Name: "created_on", Field: "createdOn", Kind: database.KindTimestamp},
			},
		},
		Descriptor{
			EntityType:  EntityLocations,
			Domain:      provider.DomainCRM,
			Resource:    "locations",
			Pagination:  source.PaginationPage,
			Incremental: true,
			Columns: []Column{
				{Name: "customer_id", Field: "customerId", Kind: database.KindInt},
				{Name: "name", Field: "name", Kind: database.KindScalar},
				{Name: "active", Field: "active", Kind: database.KindBool},
				{Name: "address", Field: "address", Kind: database.KindDocument},
				{Name: "tag_type_ids", Field: "tagTypeIds", Kind: database.KindIntArray},
			},
		},
		Descriptor{
			EntityType:  EntityWorkOrders,
			Domain:      provider.DomainJPM,
			Resource:    "jobs",
			Pagination:  source.PaginationContinuation,
			Incremental: true,
			Columns: []Column{
				{Name: "job_number", Field: "jobNumber", Kind: database.KindScalar},
				{Name: "customer_id", Field: "customerId", Kind: database.KindInt},
				{Name: "location_id", Field: "locationId", Kind: database.KindInt},
				{Name: "job_status", Field: "jobStatus", Kind: database.KindScalar},
				{Name: "business_unit_id", Field: "businessUnitId", Kind: database.KindInt},
				{Name: "job_type_id", Field: "jobTypeId", Kind: database.KindInt},
				{Name: "summary", Field: "summary", Kind: database.KindScalar},
				{Name: "completed_on", Field: "completedOn", Kind: database.KindTimestamp},
				{Name: "tag_type_ids", Field: "tagTypeIds", Kind: database.KindIntArray},
			},
		},
		Descriptor{
			EntityType:  EntityCategories,
			Domain:      provider.DomainPricebook,
			Resource:    "categories",
			Pagination:  source.PaginationPage,
			Incremental: true,
			Columns: []Column{
				{Name: database.RawCategoryName, Field: "name", Kind: database.KindScalar},
				{Name: database.RawCategoryParentID, Field: "parentId", Kind: database.KindScalar},
				{Name: database.RawCategoryPosition, Field: "position", Kind: database.KindInt},
				{Name: database.RawCategoryImage, Field: "image", Kind: database.KindScalar},
				{Name: database.RawCategoryActive, Field: "active", Kind: database.KindBool},
				{Name: "category_type", Field: "categoryType", Kind: database.KindScalar},
				{Name: "business_unit_ids", Field: "businessUnitIds", Kind: database.KindIntArray},
			},
		},
		Descriptor{
			EntityType:  EntityServices,
			Domain:      provider.DomainPricebook,
			Resource:    "services",
			Pagination:  source.PaginationPage,
			Incremental: true,
			Columns: []Column{
				{Name: "code", Field: "code", Kind: database.KindScalar},
				{Name: "display_name", Field: "displayName", Kind: database.KindScalar},
				{Name: "description", Field: "description", Kind: database.KindScalar},
				{Name: "price", Field: "price", Kind: database.KindFloat},
				{Name: "active", Field: "active", Kind: database.KindBool},
				{Name: "category_ids", Field: "categories", Kind: database.KindIntArray},
				{Name: "assets", Field: "assets", Kind: database.KindDocument},
			},
		},
		Descriptor{
			EntityType: EntityTechnicians,
			Domain:     provider.DomainSettings,
			Resource:   "technicians",
			Pagination: source.PaginationPage,
			Reference:  true,
			Columns: []Column{
				{Name: "name", Field: "name", Kind: database.KindScalar},
				{Name: "email", Field: "email", Kind: database.KindScalar},
				{Name: "phone_number", Field: "phoneNumber", Kind: database.KindScalar},
				{Name: "active", Field: "active", Kind: database.KindBool},
				{Name: "business_unit_id", Field: "businessUnitId", Kind: database.KindInt},
			},
		},
		Descriptor{
			EntityType: EntityBusinessUnits,
			Domain:     provider.DomainSettings,
			Resource:   "business-units",
			Pagination: source.PaginationPage,
			Reference:  true,
			Columns: []Column{
				{Name: "name", Field: "name", Kind: database.KindScalar},
				{Name: "official_name", Field: "officialName", Kind: database.KindScalar},
				{Name: "active", Field: "active", Kind: database.KindBool},
				{Name: "email", Field: "email", Kind: database.KindScalar},
				{Name: "address", Field: "address", Kind: database.KindDocument},
			},
		},
		Descriptor{
			EntityType: EntityJobTypes,
			Domain:     provider.DomainJPM,
			Resource:   "job-types",
			Pagination: source.PaginationPage,
			Reference:  true,
			Columns: []Column{
				{Name: "name", Field: "name", Kind: database.KindScalar},
				{Name: "active", Field: "active", Kind: database.KindBool},
				{Name: "business_unit_ids", Field: "businessUnitIds", Kind: database.KindIntArray},
				{Name: "priority", Field: "priority", Kind: database.KindScalar},
				{Name: "duration", Field: "duration", Kind: database.KindInt},
			},
		},
	)
	if err != nil {
		panic(fmt.Sprintf("fetchers: invalid built-in catalogue: %v", err))
	}
	return c
}

// Get returns the descriptor for entityType.
func (c *Catalogue) Get(entityType string) (Descriptor, bool) {
	d, ok := c.byType[entityType]
	return d, ok
}

// EntityTypes returns every entity type in catalogue order.
func (c *Catalogue) EntityTypes() []string {
	return append([]string(nil), c.order...)
}

// Restrict returns a catalogue holding only the named entity types. An
// empty list keeps everything.
func (c *Catalogue) Restrict(entityTypes []string) (*Catalogue, error) {
	if len(entityTypes) == 0 {
		return c, nil
	}
	if err := c.check(entityTypes); err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(entityTypes))
	for _, t := range entityTypes {
		keep[t] = true
	}
	var ds []Descriptor
	for _, t := range c.order {
		if keep[t] {
			ds = append(ds, c.byType[t])
		}
	}
	return NewCatalogue(ds...)
}

// Select returns the entity types a run of syncType covers. A non-empty
// requested list is validated and returned in catalogue order; otherwise
// incremental runs cover incremental entities, reference runs cover
// reference entities and full runs cover everything.
func (c *Catalogue) Select(syncType string, requested []string) ([]string, error) {
	if len(requested) > 0 {
		if err := c.check(requested); err != nil {
			return nil, err
		}
		want := make(map[string]bool, len(requested))
		for _, t := range requested {
			want[t] = true
		}
		out := make([]string, 0, len(requested))
		for _, t := range c.order {
			if want[t] {
				out = append(out, t)
			}
		}
		return out, nil
	}

	var out []string
	for _, t := range c.order {
		d := c.byType[t]
		switch syncType {
		case models.SyncTypeIncremental:
			if d.Incremental {
				out = append(out, t)
			}
		case models.SyncTypeReference:
			if d.Reference {
				out = append(out, t)
			}
		default:
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *Catalogue) check(entityTypes []string) error {
	var unknown []string
	for _, t := range entityTypes {
		if _, ok := c.byType[t]; !ok {
			unknown = append(unknown, t)
		}
	}
	if len(unknown) > 0 {
		return source.NewValidationError("entityTypes", "unknown entity types: %s", strings.Join(unknown, ", "))
	}
	return nil
}
