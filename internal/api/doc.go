package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Schemas are the JSON Schemas of the API's bodies, published under
// components.schemas in the /doc document.
var Schemas = map[string]any{
	"Session": gin.H{
		"type":     "object",
		"required": []string{"id", "status", "metadata", "created_at"},
		"properties": gin.H{
			"id":         gin.H{"type": "string"},
			"status":     gin.H{"type": "string", "enum": []string{"active", "closed"}},
			"metadata":   gin.H{"type": "object"},
			"created_at": gin.H{"type": "string", "format": "date-time"},
			"closed_at":  gin.H{"type": "string", "format": "date-time"},
		},
	},
	"Event": gin.H{
		"type":     "object",
		"required": []string{"session_id", "seq", "kind", "payload", "timestamp"},
		"properties": gin.H{
			"session_id": gin.H{"type": "string"},
			"seq":        gin.H{"type": "integer", "minimum": 1},
			"kind":       gin.H{"type": "string", "minLength": 1},
			"payload":    gin.H{},
			"timestamp":  gin.H{"type": "string", "format": "date-time"},
		},
	},
	"Error": gin.H{
		"type":     "object",
		"required": []string{"error", "code"},
		"properties": gin.H{
			"error":   gin.H{"type": "string"},
			"code":    gin.H{"type": "integer"},
			"details": gin.H{"type": "string"},
		},
	},
	"CreateSessionRequest": gin.H{
		"type": "object",
		"properties": gin.H{
			"metadata": gin.H{"type": "object"},
		},
	},
	"AppendEventRequest": gin.H{
		"type":     "object",
		"required": []string{"kind"},
		"properties": gin.H{
			"kind": gin.H{
				"type":      "string",
				"minLength": 1,
				"not":       gin.H{"enum": []string{sseEventError, sseEventPing, sseEventClosed}},
			},
			"payload": gin.H{},
		},
	},
	"StreamEnd": gin.H{
		"type":     "object",
		"required": []string{"session_id", "reason"},
		"properties": gin.H{
			"session_id": gin.H{"type": "string"},
			"reason":     gin.H{"type": "string"},
		},
	},
}

func ref(name string) gin.H {
	return gin.H{"$ref": "#/components/schemas/" + name}
}

func jsonBody(schema any) gin.H {
	return gin.H{"content": gin.H{"application/json": gin.H{"schema": schema}}}
}

func response(description string, schema any) gin.H {
	r := jsonBody(schema)
	r["description"] = description
	return r
}

var (
	sessionIDParam = gin.H{"name": "id", "in": "path", "required": true, "schema": gin.H{"type": "string"}}
	cursorParam    = gin.H{"name": "cursor", "in": "query", "required": false, "schema": gin.H{"type": "integer", "minimum": 0}}
	errorResponse  = response("Error", ref("Error"))
)

// Document is the OpenAPI 3 description served at GET /doc.
var Document = gin.H{
	"openapi": "3.0.3",
	"info": gin.H{
		"title":       "devserver",
		"version":     "1.0.0",
		"description": "Session registry with replayable per-session event streams.",
	},
	"paths": gin.H{
		"/doc": gin.H{
			"get": gin.H{"summary": "This document", "responses": gin.H{"200": gin.H{"description": "OpenAPI document"}}},
		},
		"/config": gin.H{
			"get": gin.H{"summary": "Read-only configuration snapshot", "responses": gin.H{"200": gin.H{"description": "Configuration"}}},
		},
		"/session": gin.H{
			"get": gin.H{
				"summary":   "List sessions in creation order",
				"responses": gin.H{"200": response("Sessions", gin.H{"type": "array", "items": ref("Session")})},
			},
			"post": gin.H{
				"summary":     "Create a session",
				"requestBody": jsonBody(ref("CreateSessionRequest")),
				"responses": gin.H{
					"201": response("Created session", ref("Session")),
					"400": errorResponse,
				},
			},
		},
		"/session/{id}": gin.H{
			"get": gin.H{
				"summary":    "Fetch one session",
				"parameters": []gin.H{sessionIDParam},
				"responses": gin.H{
					"200": response("Session", ref("Session")),
					"404": errorResponse,
				},
			},
			"delete": gin.H{
				"summary":    "Close a session",
				"parameters": []gin.H{sessionIDParam},
				"responses": gin.H{
					"200": response("Closed session", ref("Session")),
					"404": errorResponse,
				},
			},
		},
		"/session/{id}/event": gin.H{
			"get": gin.H{
				"summary":    "Recorded events after cursor",
				"parameters": []gin.H{sessionIDParam, cursorParam},
				"responses": gin.H{
					"200": response("Events", gin.H{"type": "array", "items": ref("Event")}),
					"400": errorResponse,
					"404": errorResponse,
				},
			},
			"post": gin.H{
				"summary":     "Append an event",
				"parameters":  []gin.H{sessionIDParam},
				"requestBody": jsonBody(ref("AppendEventRequest")),
				"responses": gin.H{
					"201": response("Appended event", ref("Event")),
					"400": errorResponse,
					"404": errorResponse,
					"409": errorResponse,
				},
			},
		},
		"/event": gin.H{
			"get": gin.H{
				"summary": "Live event stream (server-sent events)",
				"parameters": []gin.H{
					{"name": "session", "in": "query", "required": true, "schema": gin.H{"type": "string"}},
					cursorParam,
					{"name": "Last-Event-ID", "in": "header", "required": false, "schema": gin.H{"type": "string"}},
				},
				"responses": gin.H{
					"200": gin.H{
						"description": "One id/event/data block per Event; id is the sequence number",
						"content":     gin.H{"text/event-stream": gin.H{"schema": ref("Event")}},
					},
					"400": errorResponse,
					"404": errorResponse,
				},
			},
		},
		"/event/ws": gin.H{
			"get": gin.H{
				"summary":    "Live event stream (WebSocket)",
				"parameters": []gin.H{{"name": "session", "in": "query", "required": true, "schema": gin.H{"type": "string"}}, cursorParam},
				"responses": gin.H{
					"101": gin.H{"description": "Switching protocols"},
					"400": errorResponse,
					"404": errorResponse,
				},
			},
		},
	},
	"components": gin.H{"schemas": Schemas},
}

// GetDoc GET /doc
func GetDoc(c *gin.Context) {
	c.JSON(http.StatusOK, Document)
}
