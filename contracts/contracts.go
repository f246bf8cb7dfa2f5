// Package contracts embeds the OpenAPI documents the API server validates
// requests against and serves as public documentation.
package contracts

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed provisioning.yaml
var provisioningYAML []byte

//go:embed stats.yaml
var statsYAML []byte

//go:embed sessions.yaml
var sessionsYAML []byte

//go:embed community.yaml
var communityYAML []byte

var documents = map[string][]byte{
	"provisioning": provisioningYAML,
	"stats":        statsYAML,
	"sessions":     sessionsYAML,
	"community":    communityYAML,
}

// Names lists the embedded contract names in a stable order.
func Names() []string {
	names := make([]string, 0, len(documents))
	for name := range documents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Raw returns the embedded YAML for a contract name.
func Raw(name string) ([]byte, bool) {
	data, ok := documents[name]
	return data, ok
}

// Load parses and validates one embedded contract.
func Load(name string) (*openapi3.T, error) {
	data, ok := documents[name]
	if !ok {
		return nil, fmt.Errorf("unknown contract %q", name)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parse contract %q: %w", name, err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate contract %q: %w", name, err)
	}
	return doc, nil
}
