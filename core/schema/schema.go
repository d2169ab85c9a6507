// Package schema validates JSON payloads against registered JSON schemas.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"
)

// Validator is a utility to validate JSON objects against a given schema
type Validator struct {
	schemaValidators map[string]*gojsonschema.Schema
}

// NewValidator creates a new Validator using schemas for the top level JSON
// schemas and refs for refs that may be referenced in the top level schemas.
// Top level schemas cannot reference each other; a mentioned reference can
// only be in the list of refs.
func NewValidator(schemas []string, refs []string) (*Validator, error) {
	type schema struct {
		ID string `json:"$id"`
	}
	validator := Validator{schemaValidators: make(map[string]*gojsonschema.Schema)}
	for _, str := range schemas {
		s := schema{}
		err := json.Unmarshal([]byte(str), &s)
		if err != nil {
			return nil, fmt.Errorf("parse error '%v' in schema: '%s'", err, str)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("schema lacks an $id: '%s'", str)
		}
		loader := gojsonschema.NewSchemaLoader()
		for _, ref := range refs {
			if err := loader.AddSchemas(gojsonschema.NewStringLoader(ref)); err != nil {
				return nil, fmt.Errorf("cannot add ref schema: %w", err)
			}
		}
		compiled, err := loader.Compile(gojsonschema.NewStringLoader(str))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s: %w", s.ID, err)
		}
		validator.schemaValidators[s.ID] = compiled
	}
	return &validator, nil
}

// HasSchema returns true if a schema with the given $id is registered.
func (v *Validator) HasSchema(id string) bool {
	if v == nil {
		return false
	}
	_, ok := v.schemaValidators[id]
	return ok
}

// ValidateString validates the given JSON document against the schema
// registered under id.
func (v *Validator) ValidateString(document, id string) error {
	compiled, ok := v.schemaValidators[id]
	if !ok {
		return fmt.Errorf("unknown schema %s", id)
	}
	result, err := compiled.Validate(gojsonschema.NewStringLoader(document))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	var descriptions []string
	for _, resultError := range result.Errors() {
		descriptions = append(descriptions, resultError.String())
	}
	return errors.New(strings.Join(descriptions, "; "))
}
