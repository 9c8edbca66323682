package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "MechLink Marketplace API",
        "description": "Appointment and quote matching engine for the mobile mechanic marketplace",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Appointments", "description": "Customer appointment lifecycle"},
        {"name": "Quotes", "description": "Mechanic quoting"},
        {"name": "Mechanics", "description": "Mechanic availability feed"}
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
                    "200": {"description": "Ready"}
                }
            }
        },
        "/appointments": {
            "get": {
                "tags": ["Appointments"],
                "summary": "List own appointments",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Appointments"],
                "summary": "Create appointment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAppointmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error"}
                }
            }
        },
        "/appointments/{id}": {
            "get": {
                "tags": ["Appointments"],
                "summary": "Get appointment detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Appointments"],
                "summary": "Apply a material edit",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EditAppointmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid state"}
                }
            }
        },
        "/appointments/{id}/select": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Select the winning quote",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SelectQuoteRequest"}}
                ],
                "responses": {
                    "204": {"description": "Selected"},
                    "409": {"description": "Quote no longer available"}
                }
            }
        },
        "/appointments/{id}/cancel": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Cancel appointment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/CancelAppointmentRequest"}}
                ],
                "responses": {
                    "204": {"description": "Cancelled"},
                    "409": {"description": "Invalid state"}
                }
            }
        },
        "/appointments/{id}/start": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Selected mechanic starts work",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Started"},
                    "409": {"description": "Invalid state"}
                }
            }
        },
        "/appointments/{id}/complete": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Selected mechanic completes work",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Completed"},
                    "409": {"description": "Invalid state"}
                }
            }
        },
        "/appointments/{id}/quotes": {
            "get": {
                "tags": ["Quotes"],
                "summary": "List quotes for an appointment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Quotes"],
                "summary": "Submit or revise a quote",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitQuoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Appointment was skipped"},
                    "409": {"description": "No longer accepting quotes"}
                }
            },
            "delete": {
                "tags": ["Quotes"],
                "summary": "Withdraw an unaccepted quote",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Withdrawn"},
                    "404": {"description": "No pending quote"}
                }
            }
        },
        "/appointments/{id}/skip": {
            "post": {
                "tags": ["Mechanics"],
                "summary": "Skip an appointment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Skipped"}
                }
            }
        },
        "/appointments/{id}/notifications": {
            "get": {
                "tags": ["Appointments"],
                "summary": "List the appointment event log",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/{id}/summary": {
            "get": {
                "tags": ["Appointments"],
                "summary": "Download the appointment summary PDF",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF document"},
                    "409": {"description": "No selected quote yet"}
                }
            }
        },
        "/mechanics/feed": {
            "get": {
                "tags": ["Mechanics"],
                "summary": "List appointments available to quote",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "VehiclePayload": {
            "type": "object",
            "required": ["year", "make", "model"],
            "properties": {
                "year": {"type": "integer"},
                "make": {"type": "string"},
                "model": {"type": "string"},
                "vin": {"type": "string"},
                "mileage": {"type": "integer"}
            }
        },
        "CreateAppointmentRequest": {
            "type": "object",
            "required": ["address", "issue_description", "vehicle"],
            "properties": {
                "address": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "scheduled_at": {"type": "string", "format": "date-time"},
                "asap": {"type": "boolean"},
                "issue_description": {"type": "string"},
                "selected_services": {"type": "array", "items": {"type": "string"}},
                "car_runs": {"type": "string", "enum": ["YES", "NO", "UNKNOWN"]},
                "vehicle": {"$ref": "#/definitions/VehiclePayload"}
            }
        },
        "EditAppointmentRequest": {
            "type": "object",
            "properties": {
                "address": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "scheduled_at": {"type": "string", "format": "date-time"},
                "asap": {"type": "boolean"},
                "issue_description": {"type": "string"},
                "selected_services": {"type": "array", "items": {"type": "string"}},
                "car_runs": {"type": "string", "enum": ["YES", "NO", "UNKNOWN"]},
                "vehicle": {"$ref": "#/definitions/VehiclePayload"}
            }
        },
        "CancelAppointmentRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "SelectQuoteRequest": {
            "type": "object",
            "required": ["quote_id"],
            "properties": {
                "quote_id": {"type": "string"}
            }
        },
        "SubmitQuoteRequest": {
            "type": "object",
            "required": ["price", "eta"],
            "properties": {
                "price": {"type": "number"},
                "eta": {"type": "string", "format": "date-time"},
                "notes": {"type": "string"}
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
