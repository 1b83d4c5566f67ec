package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Library Statistics Portal API",
        "description": "Survey session lifecycle service for the library statistics portal",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Survey Sessions", "description": "Yearly data-collection windows"},
        {"name": "Scheduled Events", "description": "Broadcast, opening and closing transitions"},
        {"name": "Survey Sweep", "description": "Idempotent reconciliation pass"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/api/v1/survey-sessions": {
            "get": {
                "tags": ["Survey Sessions"],
                "summary": "List survey sessions",
                "parameters": [
                    {"name": "year", "in": "query", "type": "integer"},
                    {"name": "isOpen", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Survey Sessions"],
                "summary": "Create or update a survey session",
                "description": "Creates the session and its three scheduled events. Immediate mode opens forms and fires the broadcast now; scheduled mode leaves every transition to the sweep.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid date range or payload"},
                    "409": {"description": "Conflicting active session"},
                    "502": {"description": "Notification gateway unavailable"}
                }
            }
        },
        "/api/v1/survey-sessions/{year}": {
            "get": {
                "tags": ["Survey Sessions"],
                "summary": "Get the session for an academic year",
                "parameters": [
                    {"name": "year", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/api/v1/survey-sessions/{year}/open-records": {
            "get": {
                "tags": ["Survey Sessions"],
                "summary": "List form records still open for a year",
                "description": "Shows the per-library records blocking a closing transition's verification.",
                "parameters": [
                    {"name": "year", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/events": {
            "get": {
                "tags": ["Scheduled Events"],
                "summary": "List scheduled events",
                "parameters": [
                    {"name": "year", "in": "query", "type": "integer"},
                    {"name": "kind", "in": "query", "type": "string", "enum": ["BROADCAST", "FORM_OPENING", "FORM_CLOSING"]},
                    {"name": "status", "in": "query", "type": "string", "enum": ["PENDING", "COMPLETED", "CANCELLED"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/events/{id}": {
            "get": {
                "tags": ["Scheduled Events"],
                "summary": "Get a scheduled event",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/api/v1/events/{id}/cancel": {
            "post": {
                "tags": ["Scheduled Events"],
                "summary": "Cancel a pending scheduled event",
                "description": "Super administrators only. Completed or cancelled events are not cancellable.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Cancelled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"},
                    "409": {"description": "Not cancellable"}
                }
            }
        },
        "/api/v1/survey-sweep/run": {
            "post": {
                "tags": ["Survey Sweep"],
                "summary": "Run the reconciliation sweep now",
                "description": "Idempotent: re-running never re-sends notifications already recorded as sent.",
                "responses": {
                    "200": {"description": "Sweep result", "schema": {"$ref": "#/definitions/SweepResult"}}
                }
            }
        }
    },
    "definitions": {
        "CreateSessionRequest": {
            "type": "object",
            "required": ["academic_year", "opening_date", "closing_date", "mode"],
            "properties": {
                "academic_year": {"type": "integer"},
                "opening_date": {"type": "string", "format": "date-time"},
                "closing_date": {"type": "string", "format": "date-time"},
                "mode": {"type": "string", "enum": ["IMMEDIATE", "SCHEDULED"]},
                "broadcast_subject": {"type": "string"},
                "broadcast_body": {"type": "string"}
            }
        },
        "SweepResult": {
            "type": "object",
            "properties": {
                "broadcasts_sent": {"type": "array", "items": {"type": "integer"}},
                "opened": {"type": "array", "items": {"type": "integer"}},
                "closed": {"type": "array", "items": {"type": "integer"}},
                "errors": {"type": "array", "items": {"type": "string"}}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
