package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/invopop/jsonschema"
)

// BuiltinSource is the Source of tools registered by RegisterBuiltins.
const BuiltinSource = "builtin"

// Operands are the arguments of the arithmetic built-ins.
type Operands struct {
	A float64 `json:"a" jsonschema:"required,description=First operand"`
	B float64 `json:"b" jsonschema:"required,description=Second operand"`
}

// RegisterBuiltins adds the multiply and add tools.
func RegisterBuiltins(r *Registry) {
	params := SchemaFor[Operands]()
	r.Register(&Tool{
		Name:        "multiply",
		Description: "Multiply two numbers.",
		Parameters:  params,
		Source:      BuiltinSource,
		Handler: arithmetic(func(a, b float64) float64 {
			return a * b
		}),
	})
	r.Register(&Tool{
		Name:        "add",
		Description: "Add two numbers.",
		Parameters:  params,
		Source:      BuiltinSource,
		Handler: arithmetic(func(a, b float64) float64 {
			return a + b
		}),
	})
}

func arithmetic(op func(a, b float64) float64) Handler {
	return func(_ context.Context, args map[string]any) (string, error) {
		for _, k := range []string{"a", "b"} {
			if _, ok := args[k]; !ok {
				return "", fmt.Errorf("missing required argument %q", k)
			}
		}
		var in Operands
		if err := decodeArgs(args, &in); err != nil {
			return "", err
		}
		return strconv.FormatFloat(op(in.A, in.B), 'f', -1, 64), nil
	}
}

// decodeArgs round-trips loosely typed arguments into a struct.
func decodeArgs(args map[string]any, v any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// SchemaFor reflects T into an inline JSON schema object suitable for
// a tool's Parameters.
func SchemaFor[T any]() map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	var zero T
	raw, err := json.Marshal(r.Reflect(&zero))
	if err != nil {
		panic(fmt.Sprintf("tools: reflect schema: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("tools: decode schema: %v", err))
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}
