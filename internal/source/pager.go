// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// ErrStopPaging may be returned by a page callback to end paging without error.
var ErrStopPaging = errors.New("stop paging")

// Pagination selects the paging protocol of a list endpoint.
type Pagination int

const (
	// PaginationPage uses page/pageSize and hasMore.
	PaginationPage Pagination = iota
	// PaginationContinuation uses from/continueFrom and hasMore (export feeds).
	PaginationContinuation
)

func (p Pagination) String() string {
	if p == PaginationContinuation {
		return "continuation"
	}
	return "page"
}

// PageRequest describes a paged listing.
type PageRequest struct {
	Path       string
	Query      url.Values // extra filters, e.g. modifiedOnOrAfter
	Pagination Pagination
	PageSize   int
	Delay      time.Duration // sleep between pages
	From       string        // initial continuation token
	MaxPages   int           // 0 = unlimited
}

// Page is one decoded page of results.
type Page struct {
	Number       int
	Records      []json.RawMessage
	HasMore      bool
	ContinueFrom string
	TotalCount   *int
}

type pageEnvelope struct {
	Page         int               `json:"page"`
	PageSize     int               `json:"pageSize"`
	HasMore      bool              `json:"hasMore"`
	TotalCount   *int              `json:"totalCount"`
	ContinueFrom string            `json:"continueFrom"`
	Data         []json.RawMessage `json:"data"`
}

// FetchAllPages walks every page of req and calls fn for each one. It stops
// when the source reports no more data, fn returns ErrStopPaging, or ctx ends.
func (c *Client) FetchAllPages(ctx context.Context, req PageRequest, fn func(Page) error) error {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	from := req.From

	for number := 1; ; number++ {
		query := url.Values{}
		for k, v := range req.Query {
			query[k] = append([]string(nil), v...)
		}
		switch req.Pagination {
		case PaginationContinuation:
			if from != "" {
				query.Set("from", from)
			}
		default:
			query.Set("page", strconv.Itoa(number))
			query.Set("pageSize", strconv.Itoa(pageSize))
			if number == 1 {
				query.Set("includeTotal", "true")
			}
		}

		_, body, err := c.Request(ctx, http.MethodGet, req.Path, query, nil)
		if err != nil {
			return err
		}

		var env pageEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("failed to decode page %d of %s: %w", number, req.Path, err)
		}

		page := Page{
			Number:       number,
			Records:      env.Data,
			HasMore:      env.HasMore,
			ContinueFrom: env.ContinueFrom,
			TotalCount:   env.TotalCount,
		}
		if err := fn(page); err != nil {
			if errors.Is(err, ErrStopPaging) {
				return nil
			}
			return err
		}

		if !env.HasMore {
			return nil
		}
		if req.Pagination == PaginationContinuation {
			if env.ContinueFrom == "" || env.ContinueFrom == from {
				// A repeated token would loop forever.
				return nil
			}
			from = env.ContinueFrom
		}
		if req.MaxPages > 0 && number >= req.MaxPages {
			return nil
		}
		if req.Delay > 0 {
			if err := c.sleep(ctx, req.Delay); err != nil {
				return err
			}
		}
	}
}
