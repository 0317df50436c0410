// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package auth authenticates callers of the administrative HTTP API.

Two modes are supported, selected by security.auth_mode:

  - none: every request runs as an anonymous admin of the default tenant.
    Intended for local development and single-operator installs.
  - jwt: requests carry an HS256 bearer token issued by JWTManager. The
    token names the subject, its tenant and its roles.

The Middleware places an AuthSubject in the request context. Downstream
handlers read it with SubjectFromContext; internal/authz reads its roles to
enforce the route policy.

Browsers cannot set headers on a websocket upgrade, so the token may also be
passed as the access_token query parameter.
*/
package auth
