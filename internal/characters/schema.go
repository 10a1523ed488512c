package characters

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hongminglow/aria-characters/internal/models"
)

const schemaResource = "character.schema.json"

// SchemaID is the $id of the generated character sheet schema.
const SchemaID = "https://aria-characters.dev/schemas/character.schema.json"

// ValidationError reports a sheet that violates the schema.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return "character validation failed"
	}
	return "character validation failed: " + strings.Join(e.Details, "; ")
}

// GenerateSchema reflects the JSON Schema of models.Sheet. No field is
// required so the same schema serves creation and partial updates. Unknown
// keys are allowed here and dropped when the payload is decoded into a Sheet.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  true,
	}
	schema := r.Reflect(&models.Sheet{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Aria character sheet"
	schema.Description = fmt.Sprintf("Character sheet layout version %d", models.CharacterSchemaVersion)

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// Validator checks raw sheet documents against the compiled schema.
type Validator struct {
	schema *jschema.Schema
}

// NewValidator generates and compiles the sheet schema.
func NewValidator() (*Validator, error) {
	raw, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource(schemaResource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// Validate checks a JSON document. Schema violations are returned as
// *ValidationError; malformed JSON is returned as ErrInvalidPayload.
func (v *Validator) Validate(raw []byte) error {
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		var ve *jschema.ValidationError
		if errors.As(err, &ve) {
			return &ValidationError{Details: details(ve)}
		}
		return &ValidationError{Details: []string{err.Error()}}
	}
	return nil
}

// details flattens the library's multi-line report into one entry per problem.
func details(ve *jschema.ValidationError) []string {
	var out []string
	for i, line := range strings.Split(ve.Error(), "\n") {
		line = strings.TrimSpace(line)
		if i == 0 || line == "" {
			continue
		}
		out = append(out, strings.TrimPrefix(line, "- "))
	}
	if len(out) == 0 {
		out = append(out, ve.Error())
	}
	return out
}
