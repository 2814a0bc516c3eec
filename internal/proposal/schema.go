package proposal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaName identifies the structured format in requests to the
// generation service.
const SchemaName = "priced_proposal"

// schemaJSON is both the strict format hint sent upstream and the
// schema compiled locally. The service treats strictness as a hint;
// the local check is the contract.
const schemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "proposal": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "title": {"type": "string"},
        "why_it_helps": {"type": "string"},
        "steps_agent_will_do_today": {
          "type": "array",
          "minItems": 3,
          "items": {"type": "string"}
        },
        "deliverables_to_user": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "description": {"type": "string"},
              "value_usd": {"type": "number"}
            },
            "required": ["description", "value_usd"]
          }
        },
        "total_value_usd": {"type": "number"},
        "suggested_price_usd": {"type": "number"},
        "success_criteria": {
          "type": "array",
          "minItems": 2,
          "items": {"type": "string"}
        },
        "dependencies_or_access_needed": {
          "type": "array",
          "items": {"type": "string"}
        },
        "risk_mitigation": {
          "type": "array",
          "items": {"type": "string"}
        },
        "est_time_hours_today": {"type": "number"},
        "guarantee": {"type": "string"}
      },
      "required": [
        "title",
        "why_it_helps",
        "steps_agent_will_do_today",
        "deliverables_to_user",
        "total_value_usd",
        "suggested_price_usd",
        "success_criteria",
        "dependencies_or_access_needed",
        "risk_mitigation",
        "est_time_hours_today",
        "guarantee"
      ]
    },
    "quick_note_for_agent": {
      "type": "string",
      "description": "One-paragraph ops note with gotchas and checklists."
    }
  },
  "required": ["proposal", "quick_note_for_agent"]
}`

// SchemaJSON returns the raw schema for request-level injection.
func SchemaJSON() json.RawMessage {
	return json.RawMessage(schemaJSON)
}

var envelopeSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("unmarshal proposal schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("proposal.json", doc); err != nil {
		panic(fmt.Sprintf("add proposal schema resource: %v", err))
	}
	schema, err := c.Compile("proposal.json")
	if err != nil {
		panic(fmt.Sprintf("compile proposal schema: %v", err))
	}
	return schema
}

// validateEnvelope checks a decoded candidate against the compiled
// schema. Numbers must be json.Number for the validator, so the raw
// bytes are re-read with the library's decoder.
func validateEnvelope(raw json.RawMessage) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("reparse envelope: %w", err)
	}
	if err := envelopeSchema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
