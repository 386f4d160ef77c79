// Package schema validates the JSON documents fed into bulk operations:
// thing templates, JSON Schemas for descriptor generation, and policies.
package schema

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// Type identifies the kind of document a schema file contains.
type Type string

const (
	// TypeDittoTemplate is a literal thing template with attributes and features.
	TypeDittoTemplate Type = "ditto-template"

	// TypeJSONSchema is a JSON Schema describing thing payloads to generate.
	TypeJSONSchema Type = "json-schema"

	// TypeUnknown is anything else.
	TypeUnknown Type = "unknown"
)

// Detect classifies a decoded schema document. A document carrying both
// attributes and features is a literal template; one carrying $schema,
// properties or definitions is a JSON Schema.
func Detect(doc map[string]any) Type {
	if doc == nil {
		return TypeUnknown
	}
	_, hasAttributes := doc["attributes"]
	_, hasFeatures := doc["features"]
	if hasAttributes && hasFeatures {
		return TypeDittoTemplate
	}
	_, hasSchema := doc["$schema"]
	_, hasProperties := doc["properties"]
	_, hasDefinitions := doc["definitions"]
	if hasSchema || hasProperties || hasDefinitions {
		return TypeJSONSchema
	}
	return TypeUnknown
}

// DetectFile reads and classifies a schema file.
func DetectFile(path string) (Type, error) {
	doc, err := loadObject(path)
	if err != nil {
		return TypeUnknown, err
	}
	return Detect(doc), nil
}

// ValidationError aggregates every problem found in a document so callers
// can report them all at once instead of fixing one at a time.
type ValidationError struct {
	Subject  string
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is not valid:\n- %s", e.Subject, strings.Join(e.Problems, "\n- "))
}

func loadObject(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// ValidateSchemaFile checks that path holds a usable schema of a supported
// type and returns its detected type. JSON Schemas are additionally
// compiled to catch structural problems before generation starts.
func ValidateSchemaFile(path string) (Type, error) {
	doc, err := loadObject(path)
	if err != nil {
		return TypeUnknown, err
	}

	switch detected := Detect(doc); detected {
	case TypeDittoTemplate:
		return detected, nil

	case TypeJSONSchema:
		var problems []string
		if rootType, ok := doc["type"].(string); ok && rootType != "object" {
			problems = append(problems, "root 'type' must be 'object' if specified")
		}
		_, hasProperties := doc["properties"]
		_, hasDefinitions := doc["definitions"]
		if !hasProperties && !hasDefinitions {
			problems = append(problems, "must include 'properties' or 'definitions'")
		}
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc)); err != nil {
			problems = append(problems, fmt.Sprintf("schema does not compile: %v", err))
		}
		if len(problems) > 0 {
			return detected, &ValidationError{Subject: path, Problems: problems}
		}
		return detected, nil

	default:
		return TypeUnknown, &ValidationError{
			Subject:  path,
			Problems: []string{"unrecognized format: provide a thing template or a JSON Schema"},
		}
	}
}

// ValidatePolicyFile checks that path holds a policy document with the
// required top-level fields and returns its policy id.
func ValidatePolicyFile(path string) (string, error) {
	doc, err := loadObject(path)
	if err != nil {
		return "", err
	}

	var problems []string
	policyID, _ := doc["policyId"].(string)
	if policyID == "" {
		problems = append(problems, "missing required field: policyId")
	}
	if _, ok := doc["entries"]; !ok {
		problems = append(problems, "missing required field: entries")
	}
	if len(problems) > 0 {
		return "", &ValidationError{Subject: path, Problems: problems}
	}
	return policyID, nil
}

// thingDescriptorSchema constrains generated thing payloads before they
// are sent to Ditto.
const thingDescriptorSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["thingId", "policyId", "attributes", "features"],
	"properties": {
		"thingId": {"type": "string", "pattern": "^org\\.eclipse\\.ditto:"},
		"policyId": {"type": "string", "minLength": 1},
		"attributes": {
			"type": "object",
			"required": ["type"]
		},
		"features": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"required": ["properties"]
			}
		}
	}
}`

var (
	descriptorOnce   sync.Once
	descriptorSchema *gojsonschema.Schema
	descriptorErr    error
)

// ValidateThing validates a generated thing descriptor: the id namespace,
// the policy binding, a typed attributes object, and features wrapped in
// properties objects.
func ValidateThing(payload json.RawMessage) error {
	descriptorOnce.Do(func() {
		descriptorSchema, descriptorErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(thingDescriptorSchema))
	})
	if descriptorErr != nil {
		return fmt.Errorf("compile descriptor schema: %w", descriptorErr)
	}

	result, err := descriptorSchema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("validate thing descriptor: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return &ValidationError{Subject: "thing descriptor", Problems: problems}
	}
	return nil
}

// EnsureFeatureProperties wraps any feature that lacks a properties object,
// so bare feature content like {"temperature": {"value": 1}} becomes
// {"temperature": {"properties": {"value": 1}}}. The input is not modified.
func EnsureFeatureProperties(template map[string]any) map[string]any {
	features, ok := template["features"].(map[string]any)
	if !ok {
		return template
	}

	fixed := make(map[string]any, len(template))
	for key, value := range template {
		fixed[key] = value
	}
	fixedFeatures := make(map[string]any, len(features))
	for name, raw := range features {
		feature, ok := raw.(map[string]any)
		if !ok {
			fixedFeatures[name] = raw
			continue
		}
		if _, ok := feature["properties"]; ok {
			fixedFeatures[name] = feature
			continue
		}
		fixedFeatures[name] = map[string]any{"properties": feature}
	}
	fixed["features"] = fixedFeatures
	return fixed
}
