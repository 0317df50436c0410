// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fieldsync/internal/categories"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/pushback"
)

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// CategoryTree returns the effective category forest.
//
// @Summary Category tree
// @Description Master values with pending overrides applied, ordered by sortOrder then name.
// @Tags Categories
// @Produce json
// @Param visibleOnly query bool false "Drop hidden nodes and their subtrees"
// @Param rootId query string false "Return only this subtree"
// @Success 200 {object} APIResponse{data=[]models.Category}
// @Failure 404 {object} APIResponse
// @Security BearerAuth
// @Router /categories/tree [get]
func (h *Handler) CategoryTree(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	visibleOnly, err := boolQuery(r, "visibleOnly")
	if err != nil {
		writeError(rw, err)
		return
	}
	forest, err := h.deps.Categories.ListTree(r.Context(), tenant, categories.Filter{
		VisibleOnly: visibleOnly,
		RootID:      r.URL.Query().Get("rootId"),
	})
	if err != nil {
		writeError(rw, err)
		return
	}
	if forest == nil {
		forest = []*models.Category{}
	}
	rw.Success(forest)
}

// OverrideCategory records a pending edit of one field.
//
// @Summary Override a category field
// @Tags Categories
// @Accept json
// @Produce json
// @Param id path string true "Category id"
// @Param request body OverrideRequest true "Field and JSON value"
// @Success 200 {object} APIResponse{data=models.Category}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Security BearerAuth
// @Router /categories/{id}/override [patch]
func (h *Handler) OverrideCategory(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req OverrideRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(rw, err)
		return
	}
	node, err := h.deps.Categories.ApplyOverride(r.Context(), tenant, urlParam(r, "id"), req.Field, req.Value)
	if err != nil {
		writeError(rw, err)
		return
	}
	rw.Success(node)
}

// MoveCategory reparents a category and renumbers its new siblings.
//
// @Summary Move a category
// @Tags Categories
// @Accept json
// @Produce json
// @Param id path string true "Category id"
// @Param request body MoveRequest true "New parent (empty for root) and position"
// @Success 200 {object} APIResponse{data=models.Category}
// @Failure 400 {object} APIResponse "Unknown parent or cycle"
// @Failure 404 {object} APIResponse
// @Security BearerAuth
// @Router /categories/{id}/move [post]
func (h *Handler) MoveCategory(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req MoveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(rw, err)
		return
	}
	node, err := h.deps.Categories.Move(r.Context(), tenant, urlParam(r, "id"), req.NewParentID, *req.Position)
	if err != nil {
		writeError(rw, err)
		return
	}
	rw.Success(node)
}

// MoveCategoryToTop moves a category first among its siblings.
//
// @Summary Move a category to the top
// @Tags Categories
// @Produce json
// @Param id path string true "Category id"
// @Success 200 {object} APIResponse{data=models.Category}
// @Failure 404 {object} APIResponse
// @Security BearerAuth
// @Router /categories/{id}/move-to-top [post]
func (h *Handler) MoveCategoryToTop(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	node, err := h.deps.Categories.MoveToTop(r.Context(), tenant, urlParam(r, "id"))
	if err != nil {
		writeError(rw, err)
		return
	}
	rw.Success(node)
}

// MoveCategoryToBottom moves a category last among its siblings.
//
// @Summary Move a category to the bottom
// @Tags Categories
// @Produce json
// @Param id path string true "Category id"
// @Success 200 {object} APIResponse{data=models.Category}
// @Failure 404 {object} APIResponse
// @Security BearerAuth
// @Router /categories/{id}/move-to-bottom [post]
func (h *Handler) MoveCategoryToBottom(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	node, err := h.deps.Categories.MoveToBottom(r.Context(), tenant, urlParam(r, "id"))
	if err != nil {
		writeError(rw, err)
		return
	}
	rw.Success(node)
}

// PushCategories pushes pending overrides to the source now.
//
// @Summary Push pending category edits
// @Description Runs the push-back inline. A rate limit or outage stops the run early and is reported in stopReason; unpushed rows stay pending.
// @Tags Categories
// @Produce json
// @Success 200 {object} APIResponse{data=PushResponse}
// @Failure 409 {object} APIResponse "A categories sync holds the slot"
// @Security BearerAuth
// @Router /categories/push [post]
func (h *Handler) PushCategories(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	res, err := h.deps.Pusher.PushPending(r.Context(), tenant, pushback.EntityType)
	if err != nil {
		writeError(rw, err)
		return
	}
	errs := res.Errors
	if errs == nil {
		errs = []pushback.ItemError{}
	}
	rw.Success(PushResponse{
		Updated:    res.Updated,
		Failed:     res.Failed,
		Errors:     errs,
		Remaining:  res.Remaining,
		Stopped:    res.Stopped,
		StopReason: res.StopReason,
	})
}

// PendingCategories lists overrides waiting for push-back.
//
// @Summary Pending category edits
// @Tags Categories
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.PendingOverride}
// @Security BearerAuth
// @Router /categories/pending [get]
func (h *Handler) PendingCategories(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	pending, err := h.deps.Categories.Pending(r.Context(), tenant)
	if err != nil {
		writeError(rw, err)
		return
	}
	if pending == nil {
		pending = []models.PendingOverride{}
	}
	rw.List(pending, len(pending))
}
