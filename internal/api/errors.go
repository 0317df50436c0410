// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/tomtom215/fieldsync/internal/categories"
	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/jobs"
	"github.com/tomtom215/fieldsync/internal/source"
	"github.com/tomtom215/fieldsync/internal/syncstate"
	"github.com/tomtom215/fieldsync/internal/validation"
)

// ErrEngineUnavailable is returned while the engine is not initialized.
var ErrEngineUnavailable = errors.New("sync engine is not initialized")

// writeError maps err onto a status and error code:
//
//	request or source validation      400
//	unknown category, job or record   404
//	slot held, job not retryable      409
//	source rate limit                 429 with Retry-After
//	source outage or rejection        502
//	engine not initialized            503
//	anything else                     500
func writeError(rw *ResponseWriter, err error) {
	var reqErr *validation.RequestValidationError
	if errors.As(err, &reqErr) {
		apiErr := reqErr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	switch {
	case errors.Is(err, ErrEngineUnavailable):
		rw.ServiceUnavailable(err.Error())
		return
	case errors.Is(err, categories.ErrNotFound), errors.Is(err, jobs.ErrNoJob), errors.Is(err, database.ErrNotFound):
		rw.NotFound(err.Error())
		return
	case errors.Is(err, syncstate.ErrSyncAlreadyRunning), errors.Is(err, jobs.ErrNotRetryable):
		rw.Conflict(err.Error())
		return
	}

	switch source.Kind(err) {
	case source.KindValidation:
		var verr *source.ValidationError
		errors.As(err, &verr)
		rw.ValidationError(verr.Message, map[string]interface{}{"field": verr.Field})
	case source.KindConflict:
		rw.Conflict(err.Error())
	case source.KindRateLimit:
		if d, ok := source.RetryAfter(err); ok {
			rw.w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
		}
		rw.Error(http.StatusTooManyRequests, ErrCodeTooManyRequests, err.Error())
	case source.KindTransient, source.KindPermanent:
		rw.Error(http.StatusBadGateway, ErrCodeExternalServiceFail, err.Error())
	default:
		rw.InternalError(err)
	}
}
