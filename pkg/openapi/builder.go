package openapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// Operation is one documented HTTP route of the authorization server.
type Operation struct {
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Scopes      []string       `json:"x-required-scopes,omitempty"`
	RequestBody any            `json:"requestBody,omitempty"`
	Responses   map[string]any `json:"responses"`
}

// Registry collects operations as routes are mounted.
type Registry struct {
	Ops []Operation
}

func NewRegistry() *Registry { return &Registry{Ops: []Operation{}} }

func (r *Registry) Register(op Operation) {
	if op.Method != "" {
		op.Method = strings.ToLower(op.Method)
	}
	if op.Responses == nil {
		op.Responses = map[string]any{}
	}
	r.Ops = append(r.Ops, op)
}

// Flows carries the per-tenant OAuth endpoints advertised in the security
// scheme.
type Flows struct {
	AuthorizationURL string
	TokenURL         string
	Scopes           map[string]string
}

// Build produces an OpenAPI 3.1 document for the registered operations.
func (r *Registry) Build(serviceName, version string, f Flows) map[string]any {
	paths := map[string]any{}
	for _, op := range r.Ops {
		if _, ok := paths[op.Path]; !ok {
			paths[op.Path] = map[string]any{}
		}
		m := map[string]any{
			"summary":   op.Summary,
			"tags":      op.Tags,
			"responses": op.Responses,
		}
		if op.Description != "" {
			m["description"] = op.Description
		}
		if len(op.Scopes) > 0 {
			m["x-required-scopes"] = op.Scopes
			m["security"] = []map[string]any{{"oauth": op.Scopes}}
		}
		if op.RequestBody != nil {
			m["requestBody"] = op.RequestBody
		}
		paths[op.Path].(map[string]any)[op.Method] = m
	}
	scopes := f.Scopes
	if scopes == nil {
		scopes = map[string]string{}
	}
	return map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"paths":   paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"oauth": map[string]any{
					"type": "oauth2",
					"flows": map[string]any{
						"authorizationCode": map[string]any{
							"authorizationUrl": f.AuthorizationURL,
							"tokenUrl":         f.TokenURL,
							"scopes":           scopes,
						},
						"clientCredentials": map[string]any{
							"tokenUrl": f.TokenURL,
							"scopes":   scopes,
						},
					},
				},
			},
		},
	}
}

// Paths lists the registered paths, sorted.
func (r *Registry) Paths() []string {
	seen := map[string]bool{}
	var out []string
	for _, op := range r.Ops {
		if !seen[op.Path] {
			seen[op.Path] = true
			out = append(out, op.Path)
		}
	}
	sort.Strings(out)
	return out
}

// ServeHandler serves the document; flows is resolved per request so each
// tenant sees its own endpoints.
func (r *Registry) ServeHandler(serviceName, version string, flows func(*http.Request) Flows) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Build(serviceName, version, flows(req)))
	}
}
