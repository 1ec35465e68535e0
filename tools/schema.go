package tools

import (
	"encoding/json"
)

// Property describes one parameter of a tool.
type Property struct {
	Type        string              `json:"type,omitempty"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
}

// Schema is the JSON-schema object describing a tool's arguments. Providers
// translate it into their native declaration format.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Map renders the schema as a generic JSON-schema object.
func (s Schema) Map() map[string]interface{} {
	props := make(map[string]interface{}, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = p.Map()
	}
	m := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		m["required"] = append([]string(nil), s.Required...)
	}
	return m
}

// Map renders the property as a generic JSON-schema object.
func (p Property) Map() map[string]interface{} {
	m := map[string]interface{}{}
	if p.Type != "" {
		m["type"] = p.Type
	}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		m["enum"] = append([]string(nil), p.Enum...)
	}
	if p.Items != nil {
		m["items"] = p.Items.Map()
	}
	if len(p.Properties) > 0 {
		props := make(map[string]interface{}, len(p.Properties))
		for name, sub := range p.Properties {
			props[name] = sub.Map()
		}
		m["properties"] = props
	}
	if len(p.Required) > 0 {
		m["required"] = append([]string(nil), p.Required...)
	}
	return m
}

// ParseSchema decodes a JSON-schema object, such as the input schema an MCP
// server advertises. Keywords without a counterpart in Schema are dropped.
func ParseSchema(raw []byte) (Schema, error) {
	var s Schema
	if len(raw) == 0 {
		return Schema{Properties: map[string]Property{}}, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return Schema{}, err
	}
	if s.Properties == nil {
		s.Properties = map[string]Property{}
	}
	return s, nil
}

func str(desc string) Property  { return Property{Type: "string", Description: desc} }
func num(desc string) Property  { return Property{Type: "integer", Description: desc} }
func flag(desc string) Property { return Property{Type: "boolean", Description: desc} }
