// Code generated by swag; grounded on the shape `swag init` produces for
// the teacher's own internal/docs package (see cmd/ares/main.go). Committed
// by hand here since this run's checkpoint predates a `swag init` pass, but
// wired through the same swag.Register/SwaggerInfo mechanism.
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
        "/api/v1/auth/login": {
            "post": {
                "summary": "Exchange the operator passphrase for a bearer token",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/runs": {
            "post": {
                "summary": "Start a backtest run",
                "responses": {"202": {"description": "Accepted"}}
            }
        },
        "/api/v1/runs/{id}": {
            "get": {
                "summary": "Fetch a run's status and, once completed, its metrics",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/runs/{id}/pause": {
            "post": {
                "summary": "Request a live-replay run pause at its next bar boundary",
                "responses": {"202": {"description": "Accepted"}}
            }
        },
        "/api/v1/runs/{id}/resume": {
            "post": {
                "summary": "Resume a paused run from its latest checkpoint",
                "responses": {"202": {"description": "Accepted"}}
            }
        },
        "/api/v1/runs/{id}/cancel": {
            "post": {
                "summary": "Cancel an in-flight run without persisting a resumable checkpoint",
                "responses": {"202": {"description": "Accepted"}}
            }
        },
        "/api/v1/prices/{coinId}": {
            "get": {
                "summary": "Fetch the most recently loaded candle for a coin",
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

// SwaggerInfo holds the exported Swagger spec, matching the shape
// `swag init` emits and the teacher's main.go mutates before serving it
// (docs.SwaggerInfo.Title = ...).
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "backtestd API",
	Description:      "Control-plane API for starting, pausing, resuming, and inspecting deterministic backtest runs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
