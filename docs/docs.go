// Package docs registers the OpenAPI description served under /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/apply": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["applications"],
                "summary": "Submit a membership application",
                "parameters": [
                    {"type": "string", "description": "Client submission key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Application", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.Application"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/middleware.Envelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/middleware.Envelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/middleware.Envelope"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/middleware.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/middleware.Envelope"}}
                }
            }
        },
        "/join-us": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["applications"],
                "summary": "Submit a membership application with mandatory bot verification",
                "parameters": [
                    {"type": "string", "description": "Client submission key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Application including token", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.Application"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/middleware.Envelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/middleware.Envelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/middleware.Envelope"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/middleware.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/middleware.Envelope"}}
                }
            }
        },
        "/apply/validate": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["applications"],
                "summary": "Validate form state",
                "parameters": [
                    {"description": "Form state", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/validation.Form"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ValidateResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/middleware.Envelope"}}
                }
            }
        },
        "/apply/options": {
            "get": {
                "produces": ["application/json"],
                "tags": ["applications"],
                "summary": "Form options",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.OptionsResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Application": {
            "type": "object",
            "properties": {
                "email": {"type": "string", "example": "jane@example.com"},
                "fullName": {"type": "string", "example": "Jane Doe"},
                "studentId": {"type": "string", "example": "IT20230001"},
                "academicYear": {"type": "string", "example": "Year 2"},
                "semester": {"type": "string", "example": "Semester 1"},
                "specialization": {"type": "string", "example": "Computer Science"},
                "whatsapp": {"type": "string", "example": "+94771234567"},
                "linkedin": {"type": "string", "example": "https://linkedin.com/in/janedoe"},
                "github": {"type": "string", "example": "https://github.com/janedoe"},
                "reason": {"type": "string", "example": "I want to contribute to open source."},
                "otherClubs": {"type": "string", "example": "None"},
                "preferredTeam": {"type": "array", "items": {"type": "string"}, "example": ["Dev", "Design"]},
                "token": {"type": "string"}
            }
        },
        "validation.Form": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "fullName": {"type": "string"},
                "studentId": {"type": "string"},
                "academicYear": {"type": "string"},
                "semester": {"type": "string"},
                "specialization": {"type": "string"},
                "whatsappCountry": {"type": "string"},
                "whatsappNumber": {"type": "string"},
                "linkedin": {"type": "string"},
                "github": {"type": "string"},
                "reason": {"type": "string"},
                "otherClubs": {"type": "string"},
                "preferredTeam": {"type": "array", "items": {"type": "string"}}
            }
        },
        "middleware.Envelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": false},
                "errors": {"type": "array", "items": {"type": "string"}},
                "code": {"type": "string", "example": "validation_failed"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.ValidateResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "errors": {"type": "array", "items": {"type": "string"}},
                "fieldErrors": {"type": "object", "additionalProperties": {"type": "string"}},
                "application": {"$ref": "#/definitions/domain.Application"}
            }
        },
        "handlers.OptionsResponse": {
            "type": "object",
            "properties": {
                "academicYears": {"type": "array", "items": {"type": "string"}},
                "semesters": {"type": "array", "items": {"type": "string"}},
                "specializations": {"type": "array", "items": {"type": "string"}},
                "teams": {"type": "array", "items": {"type": "string"}},
                "recaptcha": {
                    "type": "object",
                    "properties": {
                        "enabled": {"type": "boolean"},
                        "siteKey": {"type": "string"},
                        "action": {"type": "string"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Club Apply API",
	Description:      "Membership application submission: validation, rate limiting, bot verification and spreadsheet append.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
