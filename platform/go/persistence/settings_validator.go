package persistence

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed settings_schema.json
var settingsSchemaJSON string

// SettingsValidator validates profile settings documents against the
// embedded JSON Schema.
type SettingsValidator struct {
	schema *jsonschema.Schema
}

// NewSettingsValidator compiles the embedded schema once.
func NewSettingsValidator() (*SettingsValidator, error) {
	schema, err := jsonschema.CompileString("profile_settings.json", settingsSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile settings schema: %w", err)
	}
	return &SettingsValidator{schema: schema}, nil
}

// Validate ensures the payload is a JSON document matching the schema.
func (v *SettingsValidator) Validate(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("settings payload is required")
	}

	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}

	if err := v.schema.Validate(document); err != nil {
		return fmt.Errorf("settings validation: %w", err)
	}

	return nil
}
