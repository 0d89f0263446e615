package infogather

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// HomeInsuranceTemplate is the structure gathered by default. Empty strings
// mark fields still to be filled.
const HomeInsuranceTemplate = `{
  "personal_info": {
    "full_name": "",
    "email": "",
    "phone": "",
    "date_of_birth": ""
  },
  "property_details": {
    "address": "",
    "postcode": "",
    "property_type": "",
    "year_built": "",
    "number_of_bedrooms": "",
    "construction_type": ""
  },
  "coverage_preferences": {
    "buildings_cover": "",
    "contents_cover": "",
    "accidental_damage": "",
    "excess_preference": ""
  },
  "risk_factors": {
    "security_system": "",
    "flood_risk_area": "",
    "previous_claims": [],
    "listed_building": ""
  }
}`

const schemaURL = "form.json"

// Form is a JSON template plus the schema derived from its shape.
type Form struct {
	template json.RawMessage
	schema   *jsonschema.Schema
}

// DefaultForm returns the home-insurance form.
func DefaultForm() *Form {
	f, err := NewForm([]byte(HomeInsuranceTemplate))
	if err != nil {
		panic(fmt.Sprintf("infogather: built-in template is invalid: %v", err))
	}
	return f
}

// NewForm parses a template. The template must be a JSON object; its key
// order is kept for the instructions sent to the model.
func NewForm(template []byte) (*Form, error) {
	if !gjson.ValidBytes(template) {
		return nil, fmt.Errorf("form template is not valid JSON")
	}
	parsed := gjson.ParseBytes(template)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("form template must be a JSON object")
	}
	raw, err := json.Marshal(schemaFor(parsed))
	if err != nil {
		return nil, fmt.Errorf("encode form schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load form schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile form schema: %w", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, template, "", "  "); err != nil {
		return nil, fmt.Errorf("format form template: %w", err)
	}
	return &Form{template: pretty.Bytes(), schema: schema}, nil
}

// Template returns the indented template.
func (f *Form) Template() json.RawMessage {
	return f.template
}

// schemaFor mirrors the template's shape: sections stay objects with no
// extra keys, lists stay arrays, and leaves may hold any scalar.
func schemaFor(v gjson.Result) map[string]any {
	switch {
	case v.IsObject():
		props := map[string]any{}
		v.ForEach(func(key, value gjson.Result) bool {
			props[key.String()] = schemaFor(value)
			return true
		})
		return map[string]any{
			"type":                 "object",
			"properties":           props,
			"additionalProperties": false,
		}
	case v.IsArray():
		return map[string]any{"type": "array"}
	default:
		return map[string]any{"type": []string{"string", "number", "boolean", "null"}}
	}
}

// Check validates collected data against the form and returns one warning
// per violation. Partial data is fine: no field is required.
func (f *Form) Check(collected json.RawMessage) []string {
	var doc any
	if err := json.Unmarshal(collected, &doc); err != nil {
		return []string{fmt.Sprintf("collected data is not valid JSON: %v", err)}
	}
	err := f.schema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}
	var warnings []string
	collectLeaves(verr, &warnings)
	return warnings
}

func collectLeaves(verr *jsonschema.ValidationError, out *[]string) {
	if len(verr.Causes) == 0 {
		loc := verr.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, verr.Message))
		return
	}
	for _, c := range verr.Causes {
		collectLeaves(c, out)
	}
}

// instructions is the system message for a gathering conversation.
func (f *Form) instructions() string {
	var b strings.Builder
	b.WriteString("You are an assistant designed to gather information from users.\n")
	b.WriteString("Your goal is to extract structured information and build a JSON object according to this template:\n")
	b.Write(f.template)
	b.WriteString(`

Your entire response should be a valid JSON object with the following structure:
{
  "message_to_user": "Your conversational message here with follow-up questions",
  "updated_json": [COMPLETE JSON STRUCTURE]
}

For example:

{
  "message_to_user": "Thanks for sharing your name, John! Could you also tell me your email address so we can keep you updated?",
  "updated_json": {
    "personal_info": {
      "full_name": "John Smith",
      "email": ""
    }
  }
}

The JSON structure should be built incrementally based on user inputs.
Make sure the message_to_user is conversational and friendly, and includes follow-up questions.
Guide the user through filling out each section of the template.
Don't ask for all information at once - ask one or two questions at a time.
Always return your ENTIRE response as a single valid JSON object that can be parsed.`)
	return b.String()
}
