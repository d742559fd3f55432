package mcpserver

import (
	"context"
	"fmt"
	"math"
)

// Tool is an operation exposed to MCP clients.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, args map[string]any) (*ToolResult, error)
}

// FuncTool adapts a function to Tool.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	Schema          map[string]any
	Fn              func(ctx context.Context, args map[string]any) (*ToolResult, error)
}

func (t *FuncTool) Name() string        { return t.ToolName }
func (t *FuncTool) Description() string { return t.ToolDescription }

// InputSchema defaults to an object without properties.
func (t *FuncTool) InputSchema() map[string]any {
	if t.Schema == nil {
		return ObjectSchema(nil)
	}
	return t.Schema
}

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	return t.Fn(ctx, args)
}

// ObjectSchema builds a JSON Schema object from property schemas.
func ObjectSchema(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// IntArg reads an integer argument. JSON numbers arrive as float64.
func IntArg(args map[string]any, name string, def int) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("argument %q must be an integer", name)
	}
	return int(f), nil
}
