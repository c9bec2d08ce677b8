package catalog

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const categorySchemaURL = "schema://mcatac/category.json"

// categorySchema is the minimum structure a downloaded category file must
// have before it replaces a local copy.
const categorySchema = `{
  "type": "object",
  "required": ["achievements"],
  "properties": {
    "name": {"type": "string"},
    "achievements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "integer", "minimum": 1},
          "name": {"type": "string"},
          "reward": {"type": "integer"},
          "hidden": {"type": "boolean"},
          "preStage": {"type": ["integer", "null"]}
        }
      }
    }
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func categoryValidator() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		def, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(categorySchema)))
		if err != nil {
			compileErr = fmt.Errorf("parse schema definition: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(categorySchemaURL, def); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(categorySchemaURL)
	})
	return compiled, compileErr
}

// ValidateCategory checks raw against the category file schema.
func ValidateCategory(raw []byte) error {
	sch, err := categoryValidator()
	if err != nil {
		return fmt.Errorf("compile category schema: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
