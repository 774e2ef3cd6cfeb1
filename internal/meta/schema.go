package meta

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "https://schemas.eventlog.local/completemeta-v2.json"

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["v", "slate"],
  "properties": {
    "v": {"type": "integer"},
    "id": {"type": "string"},
    "slate": {
      "type": "object",
      "required": ["nodes"],
      "properties": {
        "nodes": {"type": "array", "items": {"$ref": "#/$defs/node"}}
      }
    },
    "signature": {
      "type": "object",
      "properties": {
        "createdAt": {"type": "string"},
        "updatedAt": {"type": "string"},
        "creatorOrigin": {"enum": ["local", "external"]},
        "modifierOrigin": {"enum": ["local", "external"]}
      }
    },
    "custom": {"type": "object"}
  },
  "$defs": {
    "node": {
      "type": "object",
      "properties": {
        "id": {"type": "string"},
        "s": {"type": "string"},
        "e": {"type": "string"},
        "l": {"type": "integer", "minimum": 0},
        "ts": {"type": "integer", "minimum": 0},
        "ut": {"type": "integer", "minimum": 0},
        "lvl": {"type": "integer", "minimum": 0},
        "bullet": {"type": "integer", "minimum": 0},
        "mention": {
          "type": "object",
          "required": ["type"],
          "properties": {"type": {"type": "string"}}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse payload schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add payload schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

func validate(raw []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
