// Package generate produces randomized thing descriptors for fleet
// provisioning, either from a literal thing template or by sampling a
// JSON Schema.
package generate

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Thing is a generated descriptor ready to be written to Ditto.
type Thing struct {
	ID      string
	Payload json.RawMessage
}

// ShortID returns the first length hex characters of a random UUID.
func ShortID(length int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if length > len(id) {
		length = len(id)
	}
	return id[:length]
}

// NewThingID builds a thing id in the Ditto namespace:
// org.eclipse.ditto:<type>-<short-uuid>-<timestamp>.
func NewThingID(thingType string) string {
	now := time.Now().UTC()
	return fmt.Sprintf("org.eclipse.ditto:%s-%s-%s%06d",
		thingType, ShortID(4), now.Format("20060102"), now.Nanosecond()/1000)
}

func isoTimestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// FromTemplate generates a descriptor from a literal thing template.
//
// Arrays in the template are treated as choice sets: each one collapses to
// a single randomly chosen element, so a template can offer alternatives
// like "supportedResolutions": ["720p", "1080p", "4k"]. Features without a
// properties wrapper get one. The template's attributes.type names the
// device type used in the generated id.
func FromTemplate(template map[string]any, policyID string) (Thing, error) {
	sample, ok := sampleNode(template).(map[string]any)
	if !ok {
		return Thing{}, fmt.Errorf("template is not a JSON object")
	}

	attributes, ok := sample["attributes"].(map[string]any)
	if !ok {
		return Thing{}, fmt.Errorf("template has no attributes object")
	}
	thingType, ok := attributes["type"].(string)
	if !ok || thingType == "" {
		return Thing{}, fmt.Errorf("template attributes have no type")
	}

	sample["features"] = wrapFeatures(sample["features"])

	thingID := NewThingID(thingType)
	sample["thingId"] = thingID
	sample["policyId"] = policyID
	attributes["timestamp"] = isoTimestamp()

	payload, err := json.Marshal(sample)
	if err != nil {
		return Thing{}, fmt.Errorf("marshal descriptor: %w", err)
	}
	return Thing{ID: thingID, Payload: payload}, nil
}

// FromJSONSchema generates a descriptor by sampling a JSON Schema. The
// schema's title names the device type; a sampled top-level "features"
// object becomes the thing's features, everything else lands in
// attributes.
func FromJSONSchema(schema map[string]any, policyID string) (Thing, error) {
	title, _ := schema["title"].(string)
	thingType := strings.ToLower(strings.ReplaceAll(title, " ", "-"))
	if thingType == "" {
		thingType = "generic-device"
	}

	sampled := sampleSchema(schema, schema)
	sample, ok := sampled.(map[string]any)
	if !ok {
		return Thing{}, fmt.Errorf("schema did not produce an object")
	}

	features := map[string]any{}
	if raw, ok := sample["features"].(map[string]any); ok {
		for name, data := range raw {
			features[name] = map[string]any{"properties": data}
		}
	}

	attributes := map[string]any{
		"type":      thingType,
		"timestamp": isoTimestamp(),
	}
	for key, value := range sample {
		if key != "features" {
			attributes[key] = value
		}
	}

	thingID := NewThingID(thingType)
	payload, err := json.Marshal(map[string]any{
		"thingId":    thingID,
		"policyId":   policyID,
		"attributes": attributes,
		"features":   features,
	})
	if err != nil {
		return Thing{}, fmt.Errorf("marshal descriptor: %w", err)
	}
	return Thing{ID: thingID, Payload: payload}, nil
}

// sampleNode deep-copies a template node, collapsing arrays to a random
// element.
func sampleNode(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[key] = sampleNode(value)
		}
		return out
	case []any:
		if len(v) == 0 {
			return []any{}
		}
		return sampleNode(v[rand.Intn(len(v))])
	default:
		return v
	}
}

// wrapFeatures ensures every feature carries a properties object.
func wrapFeatures(raw any) any {
	features, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	out := make(map[string]any, len(features))
	for name, value := range features {
		feature, ok := value.(map[string]any)
		if !ok {
			out[name] = value
			continue
		}
		if _, ok := feature["properties"]; ok {
			out[name] = feature
			continue
		}
		out[name] = map[string]any{"properties": feature}
	}
	return out
}

// sampleSchema generates a random value conforming to a simplified JSON
// Schema. Supported keywords: type, properties, items, enum, const, $ref
// into root definitions, anyOf, format, minimum/maximum, minItems/maxItems.
func sampleSchema(node map[string]any, root map[string]any) any {
	if value, ok := node["const"]; ok {
		return value
	}
	if options, ok := node["enum"].([]any); ok && len(options) > 0 {
		return options[rand.Intn(len(options))]
	}

	if ref, ok := node["$ref"].(string); ok {
		const prefix = "#/definitions/"
		if strings.HasPrefix(ref, prefix) {
			if defs, ok := root["definitions"].(map[string]any); ok {
				if def, ok := defs[strings.TrimPrefix(ref, prefix)].(map[string]any); ok {
					return sampleSchema(def, root)
				}
			}
		}
		return map[string]any{}
	}

	if options, ok := node["anyOf"].([]any); ok && len(options) > 0 {
		if choice, ok := options[rand.Intn(len(options))].(map[string]any); ok {
			return sampleSchema(choice, root)
		}
	}

	nodeType, _ := node["type"].(string)
	switch nodeType {
	case "object":
		result := map[string]any{}
		if props, ok := node["properties"].(map[string]any); ok {
			for name, sub := range props {
				if subSchema, ok := sub.(map[string]any); ok {
					result[name] = sampleSchema(subSchema, root)
				}
			}
		}
		return result

	case "array":
		items, _ := node["items"].(map[string]any)
		minItems := schemaInt(node, "minItems", 1)
		maxItems := schemaInt(node, "maxItems", minItems+2)
		if maxItems < minItems {
			maxItems = minItems
		}
		length := minItems + rand.Intn(maxItems-minItems+1)
		result := make([]any, 0, length)
		for i := 0; i < length; i++ {
			if items == nil {
				result = append(result, map[string]any{})
				continue
			}
			result = append(result, sampleSchema(items, root))
		}
		return result

	case "string":
		switch node["format"] {
		case "date-time":
			return isoTimestamp()
		case "uri":
			return "https://example.com/resource"
		}
		return randomString(5, 20)

	case "integer":
		min := int(schemaFloat(node, "minimum", 0))
		max := int(schemaFloat(node, "maximum", 100))
		if max < min {
			max = min
		}
		return min + rand.Intn(max-min+1)

	case "number":
		min := schemaFloat(node, "minimum", 0)
		max := schemaFloat(node, "maximum", 100)
		if max < min {
			max = min
		}
		return float64(int((min+rand.Float64()*(max-min))*100)) / 100

	case "boolean":
		return rand.Intn(2) == 1
	}

	return map[string]any{}
}

const stringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(minLen, maxLen int) string {
	length := minLen + rand.Intn(maxLen-minLen+1)
	b := make([]byte, length)
	for i := range b {
		b[i] = stringAlphabet[rand.Intn(len(stringAlphabet))]
	}
	return string(b)
}

func schemaInt(node map[string]any, key string, fallback int) int {
	if value, ok := node[key].(float64); ok {
		return int(value)
	}
	return fallback
}

func schemaFloat(node map[string]any, key string, fallback float64) float64 {
	if value, ok := node[key].(float64); ok {
		return value
	}
	return fallback
}
