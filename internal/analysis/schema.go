package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"github.com/meliorhq/melior/internal/types"
)

// generatedPayload is the expected shape of the backend's structured output.
type generatedPayload struct {
	Score               float64            `json:"score"`
	KeyFindings         []string           `json:"key_findings"`
	Traits              map[string]float64 `json:"traits"`
	Narrative           string             `json:"narrative"`
	GrowthOpportunities []string           `json:"growth_opportunities"`
}

// analysisOutputSchema constrains the generative backend's response for one
// domain.
func analysisOutputSchema(domain types.Domain) *genai.Schema {
	traitProps := map[string]*genai.Schema{}
	for _, dim := range Dimensions(domain) {
		traitProps[dim] = &genai.Schema{Type: genai.TypeNumber}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"score": {Type: genai.TypeNumber},
			"key_findings": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"traits": {
				Type:       genai.TypeObject,
				Properties: traitProps,
				Required:   Dimensions(domain),
			},
			"narrative": {Type: genai.TypeString},
			"growth_opportunities": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"score", "traits", "narrative"},
	}
}

var (
	resolvedSchemas   = map[types.Domain]*jsonschema.Resolved{}
	resolvedSchemasMu sync.Mutex
)

// payloadSchema returns the compiled JSON schema for a domain's payload.
func payloadSchema(domain types.Domain) (*jsonschema.Resolved, error) {
	resolvedSchemasMu.Lock()
	defer resolvedSchemasMu.Unlock()
	if resolved, ok := resolvedSchemas[domain]; ok {
		return resolved, nil
	}

	traitProps := map[string]*jsonschema.Schema{}
	for _, dim := range Dimensions(domain) {
		traitProps[dim] = &jsonschema.Schema{
			Type:    "number",
			Minimum: ptrFloat(0),
			Maximum: ptrFloat(10),
		}
	}
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"score": {Type: "number", Minimum: ptrFloat(0), Maximum: ptrFloat(10)},
			"key_findings": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string"},
			},
			"traits": {
				Type:       "object",
				Properties: traitProps,
				Required:   Dimensions(domain),
			},
			"narrative": {Type: "string"},
			"growth_opportunities": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string"},
			},
		},
		Required: []string{"score", "traits", "narrative"},
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s payload schema: %w", domain, err)
	}
	resolvedSchemas[domain] = resolved
	return resolved, nil
}

// parseGenerated extracts the JSON object from raw model output and validates
// it against the domain's schema. Any violation is a schema-invalid error
// that routes the domain to the heuristic fallback.
func parseGenerated(domain types.Domain, raw string) (generatedPayload, error) {
	clean := strings.TrimSpace(raw)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start >= 0 && end > start {
		clean = clean[start : end+1]
	}

	var instance any
	if err := json.Unmarshal([]byte(clean), &instance); err != nil {
		return generatedPayload{}, fmt.Errorf("failed to parse analysis json: %w", err)
	}

	resolved, err := payloadSchema(domain)
	if err != nil {
		return generatedPayload{}, err
	}
	if err := resolved.Validate(instance); err != nil {
		return generatedPayload{}, fmt.Errorf("analysis json rejected by schema: %w", err)
	}

	var payload generatedPayload
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return generatedPayload{}, fmt.Errorf("failed to decode analysis json: %w", err)
	}

	// The schema guarantees the registered dimensions; drop anything extra so
	// the traits map stays closed over the versioned list.
	dims := Dimensions(domain)
	registered := make(map[string]bool, len(dims))
	for _, dim := range dims {
		registered[dim] = true
	}
	for name := range payload.Traits {
		if !registered[name] {
			delete(payload.Traits, name)
		}
	}
	if len(payload.Traits) != len(dims) {
		return generatedPayload{}, fmt.Errorf("analysis json missing dimensions: got %v", sortedDimensions(payload.Traits))
	}
	return payload, nil
}

func ptrFloat(v float64) *float64 {
	return &v
}
