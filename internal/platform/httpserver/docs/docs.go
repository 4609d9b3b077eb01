// Package docs registers the OpenAPI document served under /swagger/.
// Regenerate with `swag init -g internal/platform/httpserver/server.go` after
// changing handler annotations.
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
        "/v1/abtest/campaigns": {
            "get": {
                "produces": ["application/json"],
                "tags": ["abtest-engine"],
                "summary": "List experiment campaigns",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.CampaignListResponse"}}
                }
            }
        },
        "/v1/abtest/campaigns/{campaign_id}/assignments": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["abtest-engine"],
                "summary": "Resolve a user's variant",
                "parameters": [
                    {"type": "string", "description": "Campaign id", "name": "campaign_id", "in": "path", "required": true},
                    {"type": "string", "description": "User id when the body omits it", "name": "X-User-Id", "in": "header"},
                    {"description": "Assignment request", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/http.AssignRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.AssignmentResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/v1/abtest/campaigns/{campaign_id}/assignments/{user_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["abtest-engine"],
                "summary": "Read an existing assignment",
                "parameters": [
                    {"type": "string", "description": "Campaign id", "name": "campaign_id", "in": "path", "required": true},
                    {"type": "string", "description": "User id", "name": "user_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.AssignmentResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/v1/abtest/campaigns/{campaign_id}/outcomes": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["abtest-engine"],
                "summary": "Record a binary outcome",
                "parameters": [
                    {"type": "string", "description": "Campaign id", "name": "campaign_id", "in": "path", "required": true},
                    {"type": "string", "description": "Outcome event id; repeats are applied once", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Outcome", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.RecordOutcomeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.OutcomeResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/v1/abtest/campaigns/{campaign_id}/estimate": {
            "get": {
                "produces": ["application/json"],
                "tags": ["abtest-engine"],
                "summary": "Campaign posterior estimate",
                "parameters": [
                    {"type": "string", "description": "Campaign id", "name": "campaign_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.EstimateResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "http.ErrorResponse": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}}
        },
        "http.VariantDefinition": {
            "type": "object",
            "properties": {
                "variant_id": {"type": "string"},
                "name": {"type": "string"},
                "template": {"type": "string"},
                "seed_successes": {"type": "integer"},
                "seed_failures": {"type": "integer"}
            }
        },
        "http.CampaignDefinition": {
            "type": "object",
            "properties": {
                "campaign_id": {"type": "string"},
                "name": {"type": "string"},
                "description": {"type": "string"},
                "policy": {"type": "string"},
                "prior_alpha": {"type": "number"},
                "prior_beta": {"type": "number"},
                "variants": {"type": "array", "items": {"$ref": "#/definitions/http.VariantDefinition"}}
            }
        },
        "http.CampaignListResponse": {
            "type": "object",
            "properties": {"items": {"type": "array", "items": {"$ref": "#/definitions/http.CampaignDefinition"}}}
        },
        "http.AssignRequest": {
            "type": "object",
            "properties": {"user_id": {"type": "string"}}
        },
        "http.AssignmentResponse": {
            "type": "object",
            "properties": {
                "campaign_id": {"type": "string"},
                "user_id": {"type": "string"},
                "variant_id": {"type": "string"},
                "template": {"type": "string"},
                "created": {"type": "boolean"},
                "fallback": {"type": "boolean"}
            }
        },
        "http.RecordOutcomeRequest": {
            "type": "object",
            "properties": {"user_id": {"type": "string"}, "success": {"type": "boolean"}}
        },
        "http.OutcomeResponse": {
            "type": "object",
            "properties": {
                "campaign_id": {"type": "string"},
                "user_id": {"type": "string"},
                "variant_id": {"type": "string"},
                "alpha": {"type": "number"},
                "beta": {"type": "number"},
                "replayed": {"type": "boolean"}
            }
        },
        "http.VariantEstimateResponse": {
            "type": "object",
            "properties": {
                "variant_id": {"type": "string"},
                "alpha": {"type": "number"},
                "beta": {"type": "number"},
                "mean": {"type": "number"},
                "observations": {"type": "number"},
                "credible_low": {"type": "number"},
                "credible_high": {"type": "number"},
                "credible_level": {"type": "number"}
            }
        },
        "http.ComparisonResponse": {
            "type": "object",
            "properties": {
                "variant_a": {"type": "string"},
                "variant_b": {"type": "string"},
                "probability_a_beats_b": {"type": "number"},
                "probability_b_beats_a": {"type": "number"},
                "expected_loss_a": {"type": "number"},
                "expected_loss_b": {"type": "number"},
                "lift_of_b": {"type": "number"}
            }
        },
        "http.EstimateResponse": {
            "type": "object",
            "properties": {
                "campaign_id": {"type": "string"},
                "variants": {"type": "array", "items": {"$ref": "#/definitions/http.VariantEstimateResponse"}},
                "comparison": {"$ref": "#/definitions/http.ComparisonResponse"}
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
	Title:            "newsfinder A/B experiment API",
	Description:      "Sticky variant assignment and Bayesian outcome tracking for layout experiments.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
