// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"
)

func TestFetchAllPages_PageNumbers(t *testing.T) {
	t.Parallel()
	var (
		mu      sync.Mutex
		queries []url.Values
	)
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		q := r.URL.Query()
		mu.Lock()
		queries = append(queries, q)
		mu.Unlock()
		page := q.Get("page")
		hasMore := page != "3"
		_, _ = fmt.Fprintf(w, `{"page":%s,"pageSize":2,"hasMore":%t,"data":[{"id":"%s-a"},{"id":"%s-b"}]}`, page, hasMore, page, page)
	})
	c := newTestClient(t, api, nil)
	delays := recordSleeps(c)

	var records int
	err := c.FetchAllPages(context.Background(), PageRequest{
		Path:     "/crm/v2/tenant/123/customers",
		Query:    url.Values{"modifiedOnOrAfter": {"2026-01-01T00:00:00Z"}},
		PageSize: 2,
		Delay:    250 * time.Millisecond,
	}, func(p Page) error {
		records += len(p.Records)
		return nil
	})
	if err != nil {
		t.Fatalf("FetchAllPages() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if records != 6 {
		t.Errorf("records = %d, want 6", records)
	}
	if len(queries) != 3 {
		t.Fatalf("requests = %d, want 3", len(queries))
	}
	for i, q := range queries {
		if q.Get("page") != fmt.Sprint(i+1) || q.Get("pageSize") != "2" {
			t.Errorf("request %d query = %v", i, q)
		}
		if q.Get("modifiedOnOrAfter") != "2026-01-01T00:00:00Z" {
			t.Errorf("request %d lost filter: %v", i, q)
		}
	}
	if queries[0].Get("includeTotal") != "true" || queries[1].Get("includeTotal") != "" {
		t.Error("includeTotal should only be sent on the first page")
	}
	if len(*delays) != 2 || (*delays)[0] != 250*time.Millisecond {
		t.Errorf("page delays = %v, want two 250ms sleeps", *delays)
	}
}

func TestFetchAllPages_Continuation(t *testing.T) {
	t.Parallel()
	var (
		mu    sync.Mutex
		froms []string
	)
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request, call int32) {
		mu.Lock()
		froms = append(froms, r.URL.Query().Get("from"))
		mu.Unlock()
		if r.URL.Query().Get("page") != "" {
			t.Errorf("continuation request should not send page")
		}
		switch call {
		case 1:
			_, _ = w.Write([]byte(`{"data":[{"id":1}],"hasMore":true,"continueFrom":"tok-a"}`))
		case 2:
			_, _ = w.Write([]byte(`{"data":[{"id":2}],"hasMore":true,"continueFrom":"tok-b"}`))
		default:
			_, _ = w.Write([]byte(`{"data":[],"hasMore":false,"continueFrom":"tok-c"}`))
		}
	})
	c := newTestClient(t, api, nil)
	recordSleeps(c)

	var last string
	err := c.FetchAllPages(context.Background(), PageRequest{Path: "/jpm/v2/tenant/123/export/jobs", Pagination: PaginationContinuation},
		func(p Page) error {
			last = p.ContinueFrom
			return nil
		})
	if err != nil {
		t.Fatalf("FetchAllPages() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []string{"", "tok-a", "tok-b"}
	if fmt.Sprint(froms) != fmt.Sprint(want) {
		t.Errorf("from tokens = %v, want %v", froms, want)
	}
	if last != "tok-c" {
		t.Errorf("last continueFrom = %q, want tok-c", last)
	}
}

func TestFetchAllPages_StopPaging(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
		_, _ = w.Write([]byte(`{"hasMore":true,"data":[{}]}`))
	})
	c := newTestClient(t, api, nil)
	recordSleeps(c)

	pages := 0
	err := c.FetchAllPages(context.Background(), PageRequest{Path: "/x"}, func(Page) error {
		pages++
		if pages == 2 {
			return ErrStopPaging
		}
		return nil
	})
	if err != nil {
		t.Fatalf("FetchAllPages() error = %v, want nil on ErrStopPaging", err)
	}
	if pages != 2 {
		t.Errorf("pages = %d, want 2", pages)
	}
}

func TestFetchAllPages_CallbackErrorPropagates(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
		_, _ = w.Write([]byte(`{"hasMore":true,"data":[{}]}`))
	})
	c := newTestClient(t, api, nil)
	boom := fmt.Errorf("boom")
	err := c.FetchAllPages(context.Background(), PageRequest{Path: "/x"}, func(Page) error { return boom })
	if err != boom {
		t.Errorf("FetchAllPages() error = %v, want boom", err)
	}
}
