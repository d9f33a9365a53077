package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"yinsen/internal/domain"
)

// SchemaValidatingTool wraps a Tool with JSON Schema validation of the
// instructions object.
type SchemaValidatingTool struct {
	inner  Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps a tool so that Execute validates instructions
// against the tool's schema before forwarding to the inner tool. Tools
// without a schema are returned unchanged.
func WithSchemaValidation(t Tool) (Tool, error) {
	raw := t.Schema()
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}
	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) Name() string            { return s.inner.Name() }
func (s *SchemaValidatingTool) Schema() json.RawMessage { return s.inner.Schema() }

func (s *SchemaValidatingTool) Execute(ctx context.Context, instr domain.ToolInstructions) (*domain.ToolResult, error) {
	data, err := json.Marshal(instr)
	if err != nil {
		return Failure(fmt.Sprintf("invalid instructions: %v", err)), nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Failure(fmt.Sprintf("invalid instructions: %v", err)), nil
	}
	if err := s.schema.Validate(doc); err != nil {
		return Failure(fmt.Sprintf("schema validation failed: %v", err)), nil
	}
	return s.inner.Execute(ctx, instr)
}
