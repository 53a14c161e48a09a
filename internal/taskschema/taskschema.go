// Package taskschema validates an exec-graph submission (a JSON array of
// models.Task) against a schema reflected off the Task struct itself, the
// same way internal/config/schema.go reflects Config for its own JSON
// Schema. Catching a malformed task graph here, before json.Unmarshal loses
// the offending field names to Go's zero-value defaults, gives the operator
// a pointer straight at the bad field instead of a confusing downstream
// Plan() failure.
package taskschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/memexd/memexd/pkg/models"
)

const resourceName = "memexd-task-graph.schema.json"

var (
	compileOnce sync.Once
	compiled    *jsonschemav5.Schema
	compileErr  error
)

// Validate decodes raw as generic JSON and checks it against the Task
// schema. It does not unmarshal into []models.Task; callers still do that
// themselves once Validate reports no error.
func Validate(raw []byte) error {
	compileOnce.Do(func() {
		compiled, compileErr = compileSchema()
	})
	if compileErr != nil {
		return fmt.Errorf("taskschema: compile schema: %w", compileErr)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("taskschema: decode input: %w", err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("taskschema: %w", err)
	}
	return nil
}

// JSONSchema returns the reflected schema for []models.Task, primarily so
// it can be inspected or published alongside the Config schema.
func JSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{FieldNameTag: "json"}
	schema := r.Reflect(&[]models.Task{})
	return json.MarshalIndent(schema, "", "  ")
}

func compileSchema() (*jsonschemav5.Schema, error) {
	raw, err := JSONSchema()
	if err != nil {
		return nil, err
	}
	c := jsonschemav5.NewCompiler()
	if err := c.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(resourceName)
}
