// Package docs registers the OpenAPI document served under /swagger/.
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
        "/v1/groups/{group_id}/votes": {
            "post": {
                "tags": ["votes"],
                "summary": "Start a vote for a group",
                "parameters": [
                    {"type": "string", "name": "group_id", "in": "path", "required": true},
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StartVoteRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/SessionResponse"}}}
            }
        },
        "/v1/groups/{group_id}/votes/ballots": {
            "post": {
                "tags": ["votes"],
                "summary": "Cast or change a ballot",
                "parameters": [
                    {"type": "string", "name": "group_id", "in": "path", "required": true},
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CandidateRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/groups/{group_id}/votes/vetoes": {
            "post": {
                "tags": ["votes"],
                "summary": "Spend a veto card on a candidate",
                "parameters": [
                    {"type": "string", "name": "group_id", "in": "path", "required": true},
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CandidateRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/groups/{group_id}/votes/resolve": {
            "post": {
                "tags": ["votes"],
                "summary": "Resolve the active vote now (admin)",
                "parameters": [
                    {"type": "string", "name": "group_id", "in": "path", "required": true},
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/groups/{group_id}/votes/cancel": {
            "post": {
                "tags": ["votes"],
                "summary": "Cancel the active vote (admin)",
                "parameters": [
                    {"type": "string", "name": "group_id", "in": "path", "required": true},
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/SessionResponse"}}}
            }
        },
        "/v1/groups/{group_id}/votes/extend": {
            "post": {
                "tags": ["votes"],
                "summary": "Push the deadline back (admin)",
                "parameters": [
                    {"type": "string", "name": "group_id", "in": "path", "required": true},
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/groups/{group_id}/votes/status": {
            "get": {
                "tags": ["votes"],
                "summary": "Current vote status for the caller",
                "parameters": [
                    {"type": "string", "name": "group_id", "in": "path", "required": true},
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/groups/{group_id}/votes/{session_id}/audit": {
            "get": {
                "tags": ["votes"],
                "summary": "Ballots and vetoes of one session (admin)",
                "parameters": [
                    {"type": "string", "name": "group_id", "in": "path", "required": true},
                    {"type": "string", "name": "session_id", "in": "path", "required": true},
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/groups/{group_id}/vetoes/grants": {
            "post": {
                "tags": ["vetoes"],
                "summary": "Grant veto cards to a member (admin)",
                "parameters": [
                    {"type": "string", "name": "group_id", "in": "path", "required": true},
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "StartVoteRequest": {
            "type": "object",
            "properties": {
                "tie_breaker_mode": {"type": "string", "enum": ["random_pick", "re_vote"]},
                "time_limit_minutes": {"type": "integer"},
                "candidate_count": {"type": "integer"}
            }
        },
        "CandidateRequest": {
            "type": "object",
            "properties": {
                "candidate_id": {"type": "string"}
            }
        },
        "SessionResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "group_id": {"type": "string"},
                "status": {"type": "string"},
                "round": {"type": "integer"},
                "tie_breaker_mode": {"type": "string"},
                "candidate_ids": {"type": "array", "items": {"type": "string"}},
                "started_at": {"type": "string", "format": "date-time"},
                "ends_at": {"type": "string", "format": "date-time"},
                "winner_id": {"type": "string"},
                "resolution_method": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Idea Jar voting API",
	Description:      "Group idea votes: sessions, ballots, vetoes and resolution.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
