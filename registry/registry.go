// Package registry holds the static tool catalog and the dispatcher that
// validates and executes tool calls against it.
package registry

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/medbridge-ai/medgate/types"
)

// Registry is the immutable tool catalog. It is built once at startup;
// List always returns the same content as advertised at handshake time, so
// a client never observes a tool disappear or change shape mid-session.
type Registry struct {
	order   []string
	tools   map[string]types.ToolDefinition
	schemas map[string]*gojsonschema.Schema
}

// New builds a registry from definitions, compiling each input schema. A
// duplicate name or an invalid schema is a startup error.
func New(defs []types.ToolDefinition) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]types.ToolDefinition, len(defs)),
		schemas: make(map[string]*gojsonschema.Schema, len(defs)),
	}
	for _, def := range defs {
		if _, dup := r.tools[def.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", def.Name)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(def.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("tool %q: compile input schema: %w", def.Name, err)
		}
		r.order = append(r.order, def.Name)
		r.tools[def.Name] = def
		r.schemas[def.Name] = schema
	}
	return r, nil
}

// List returns the catalog in declaration order.
func (r *Registry) List() []types.ToolDefinition {
	out := make([]types.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (types.ToolDefinition, bool) {
	def, ok := r.tools[name]
	return def, ok
}

// Validate checks an argument map against the tool's input schema and
// returns a human-readable description of the first violation.
func (r *Registry) Validate(name string, args map[string]interface{}) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("validate arguments: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid arguments: %s", errs[0].String())
		}
		return fmt.Errorf("invalid arguments")
	}
	return nil
}

// DefaultCatalog is the gateway's built-in tool set.
func DefaultCatalog() []types.ToolDefinition {
	return []types.ToolDefinition{
		{
			Name:                    "lookup_patient_record",
			Description:             "Look up a patient's clinical record by patient id.",
			RequiresDelegatedAccess: true,
			Audience:                "clinical-records",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"patient_id": {"type": "string", "minLength": 1}
				},
				"required": ["patient_id"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        "search_literature",
			Description: "Search the biomedical literature for a free-text query.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "minLength": 1},
					"max_results": {"type": "integer", "minimum": 1, "maximum": 100}
				},
				"required": ["query"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        "search_trials",
			Description: "Search registered clinical trials by condition.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"condition": {"type": "string", "minLength": 1},
					"status": {"type": "string"},
					"max_results": {"type": "integer", "minimum": 1, "maximum": 100}
				},
				"required": ["condition"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        "drug_information",
			Description: "Get general information about a drug.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"drug": {"type": "string", "minLength": 1}
				},
				"required": ["drug"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        "check_interactions",
			Description: "Check for documented interactions between two drugs.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"drug_a": {"type": "string", "minLength": 1},
					"drug_b": {"type": "string", "minLength": 1}
				},
				"required": ["drug_a", "drug_b"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        "get_drug_label",
			Description: "Fetch the structured FDA label for a drug, optionally one section.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"drug": {"type": "string", "minLength": 1},
					"section": {"type": "string"}
				},
				"required": ["drug"],
				"additionalProperties": false
			}`),
		},
	}
}
