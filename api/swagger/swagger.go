package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Grade Sheet API",
        "description": "Server-side grade sheet editing sessions: grade entry, aggregation, clipboard import, exports and save to the school backend.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Grade Sheets", "description": "Editing sessions over one assignment and period"},
        {"name": "Exports", "description": "Table downloads"},
        {"name": "Maintenance", "description": "Administrative housekeeping jobs"}
    ],
    "paths": {
        "/sheets": {
            "post": {
                "tags": ["Grade Sheets"],
                "summary": "Open an editing session from a page snapshot",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "X-CSRFToken", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OpenSheetRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sheets/{id}": {
            "get": {
                "tags": ["Grade Sheets"],
                "summary": "Get the derived view of a session",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Grade Sheets"],
                "summary": "Discard a session",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/sheets/{id}/table": {
            "get": {
                "tags": ["Grade Sheets"],
                "summary": "Render the grade table as HTML",
                "security": [{"BearerAuth": []}],
                "produces": ["text/html"],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/sheets/{id}/columns/{competency}": {
            "post": {
                "tags": ["Grade Sheets"],
                "summary": "Add a grade column",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "competency", "in": "path", "required": true, "type": "string", "enum": ["ser", "saber", "hacer"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Grade Sheets"],
                "summary": "Remove the last grade column",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "competency", "in": "path", "required": true, "type": "string", "enum": ["ser", "saber", "hacer"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Column floor reached", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sheets/{id}/columns/{competency}/{index}/description": {
            "put": {
                "tags": ["Grade Sheets"],
                "summary": "Set a column description",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "competency", "in": "path", "required": true, "type": "string"},
                    {"name": "index", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DescriptionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sheets/{id}/entries": {
            "put": {
                "tags": ["Grade Sheets"],
                "summary": "Edit a grade cell",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetEntryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sheets/{id}/entries/commit": {
            "post": {
                "tags": ["Grade Sheets"],
                "summary": "Commit a grade cell",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CommitEntryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sheets/{id}/students/{studentId}/attendance": {
            "put": {
                "tags": ["Grade Sheets"],
                "summary": "Edit a student's absence count",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AttendanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sheets/{id}/students/{studentId}/attendance/sync": {
            "post": {
                "tags": ["Grade Sheets"],
                "summary": "Pull the recorded absence count from the backend",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Sync in flight", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Backend failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sheets/{id}/weights": {
            "put": {
                "tags": ["Grade Sheets"],
                "summary": "Set competency weights",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/WeightsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sheets/{id}/paste": {
            "post": {
                "tags": ["Grade Sheets"],
                "summary": "Paste tab-separated text at an anchor cell",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PasteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sheets/{id}/save": {
            "post": {
                "tags": ["Grade Sheets"],
                "summary": "Save the sheet to the backend",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Save blocked or in flight", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Backend failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sheets/{id}/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export the table as csv, pdf or xlsx",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/download": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an export with a signed token",
                "produces": ["application/octet-stream"],
                "parameters": [{"name": "token", "in": "query", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "File"},
                    "401": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/maintenance/{job}": {
            "post": {
                "tags": ["Maintenance"],
                "summary": "Enqueue a maintenance job",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "job", "in": "path", "required": true, "type": "string", "enum": ["purge_sessions", "cleanup_exports"]}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "OpenSheetRequest": {
            "type": "object",
            "properties": {
                "context": {"type": "object"},
                "estudiantes": {"type": "array", "items": {"type": "object"}},
                "escala": {"type": "array", "items": {"type": "object"}},
                "porcentajes": {"$ref": "#/definitions/Weights"}
            }
        },
        "Weights": {
            "type": "object",
            "properties": {
                "ser": {"type": "number"},
                "saber": {"type": "number"},
                "hacer": {"type": "number"}
            }
        },
        "WeightsRequest": {"$ref": "#/definitions/Weights"},
        "SetEntryRequest": {
            "type": "object",
            "required": ["student_id", "competency"],
            "properties": {
                "student_id": {"type": "string"},
                "competency": {"type": "string", "enum": ["ser", "saber", "hacer"]},
                "column": {"type": "integer"},
                "value": {"type": "string"}
            }
        },
        "CommitEntryRequest": {
            "type": "object",
            "required": ["student_id", "competency"],
            "properties": {
                "student_id": {"type": "string"},
                "competency": {"type": "string", "enum": ["ser", "saber", "hacer"]},
                "column": {"type": "integer"}
            }
        },
        "DescriptionRequest": {
            "type": "object",
            "properties": {"description": {"type": "string"}}
        },
        "AttendanceRequest": {
            "type": "object",
            "properties": {"value": {"type": "string"}}
        },
        "PasteRequest": {
            "type": "object",
            "properties": {
                "row": {"type": "integer"},
                "cell": {"type": "integer"},
                "competency": {"type": "string", "enum": ["ser", "saber", "hacer"]},
                "column": {"type": "integer"},
                "text": {"type": "string"}
            }
        },
        "ExportRequest": {
            "type": "object",
            "required": ["format"],
            "properties": {"format": {"type": "string", "enum": ["csv", "pdf", "xlsx"]}}
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
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
