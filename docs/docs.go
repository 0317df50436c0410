// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "AGPL-3.0-or-later",
            "url": "https://www.gnu.org/licenses/agpl-3.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health/live": {
            "get": {"tags": ["Core"], "summary": "Liveness probe", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/health/ready": {
            "get": {"tags": ["Core"], "summary": "Readiness probe", "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}
        },
        "/sync/trigger": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Sync"], "summary": "Trigger a manual sync", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/api.TriggerRequest"}}],
                "responses": {"202": {"description": "Accepted"}, "400": {"description": "Bad Request"}, "409": {"description": "A requested entity type is already syncing"}}}
        },
        "/sync/cancel": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Sync"], "summary": "Cancel a running sync", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/api.CancelRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/sync/status": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Sync"], "summary": "Sync status and health", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/sync/history": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Sync"], "summary": "Sync run history", "produces": ["application/json"],
                "parameters": [{"type": "integer", "default": 50, "description": "Maximum runs (1-500)", "name": "limit", "in": "query"}, {"type": "string", "description": "Restrict to one entity type", "name": "entityType", "in": "query"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/cache/{entityType}": {
            "delete": {"security": [{"BearerAuth": []}], "tags": ["Sync"], "summary": "Purge cached records", "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "Entity type", "name": "entityType", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/categories/tree": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Categories"], "summary": "Category tree", "produces": ["application/json"],
                "parameters": [{"type": "boolean", "name": "visibleOnly", "in": "query"}, {"type": "string", "name": "rootId", "in": "query"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/categories/pending": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Categories"], "summary": "Pending category edits", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/categories/push": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Categories"], "summary": "Push pending category edits", "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "409": {"description": "A categories sync holds the slot"}}}
        },
        "/categories/{id}/override": {
            "patch": {"security": [{"BearerAuth": []}], "tags": ["Categories"], "summary": "Override a category field", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}, {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/api.OverrideRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}}
        },
        "/categories/{id}/move": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Categories"], "summary": "Move a category", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}, {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/api.MoveRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Unknown parent or cycle"}, "404": {"description": "Not Found"}}}
        },
        "/categories/{id}/move-to-top": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Categories"], "summary": "Move a category to the top", "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/categories/{id}/move-to-bottom": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Categories"], "summary": "Move a category to the bottom", "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/jobs": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Jobs"], "summary": "List jobs", "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "family", "in": "query"}, {"type": "string", "name": "status", "in": "query"}, {"type": "integer", "default": 100, "name": "limit", "in": "query"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/jobs/stats": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Jobs"], "summary": "Job counts", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/jobs/{id}/retry": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Jobs"], "summary": "Retry a failed job", "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "409": {"description": "Job is not failed"}}}
        },
        "/ws": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Realtime"], "summary": "Sync progress stream", "responses": {"101": {"description": "Switching Protocols"}}}
        }
    },
    "definitions": {
        "api.TriggerRequest": {
            "type": "object",
            "required": ["syncType"],
            "properties": {
                "syncType": {"type": "string", "enum": ["full", "incremental", "reference", "pushback"]},
                "options": {"type": "object", "properties": {"entityTypes": {"type": "array", "items": {"type": "string"}}}}
            }
        },
        "api.CancelRequest": {
            "type": "object",
            "required": ["entityType"],
            "properties": {"entityType": {"type": "string"}}
        },
        "api.OverrideRequest": {
            "type": "object",
            "required": ["field", "value"],
            "properties": {"field": {"type": "string"}, "value": {}}
        },
        "api.MoveRequest": {
            "type": "object",
            "required": ["position"],
            "properties": {"newParentId": {"type": "string"}, "position": {"type": "integer", "minimum": 0}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT bearer token: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Fieldsync API",
	Description:      "Admin API of the field-service CRM synchronization engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
