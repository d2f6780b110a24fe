package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// NoteArgs is the argument struct for the "note" tool: a scratch-pad an
// agent can call with a labeled note. The handler only acknowledges the
// note; it does not store it anywhere.
type NoteArgs struct {
	Topic string `json:"topic" jsonschema:"required,description=Short label for this note"`
	Body  string `json:"body" jsonschema:"required,description=Note content"`
}

// CalculatorArgs is the argument struct for the "calculator" tool.
type CalculatorArgs struct {
	Operation string  `json:"operation" jsonschema:"required,enum=add|subtract|multiply|divide,description=Arithmetic operation"`
	A         float64 `json:"a" jsonschema:"required"`
	B         float64 `json:"b" jsonschema:"required"`
}

// BuiltinSpecs returns the small fixed set of tools agents can be granted
// in tests and local runs — a stand-in for the external tool registry
// spec.md §1 treats as out of scope (an opaque lookup table of name to
// handler, never reimplemented).
func BuiltinSpecs() []Spec {
	noteSchema, _ := GenerateSchema[NoteArgs]()
	calcSchema, _ := GenerateSchema[CalculatorArgs]()

	return []Spec{
		{
			Name:        "note",
			Description: "Record a labeled note for later reference in this run.",
			Schema:      noteSchema,
			Handler:     noteHandler,
		},
		{
			Name:        "calculator",
			Description: "Perform a single arithmetic operation.",
			Schema:      calcSchema,
			Handler:     calculatorHandler,
		},
	}
}

func noteHandler(_ context.Context, input map[string]any) (string, error) {
	var args NoteArgs
	if err := decode(input, &args); err != nil {
		return "", err
	}
	return fmt.Sprintf("noted under %q", args.Topic), nil
}

func calculatorHandler(_ context.Context, input map[string]any) (string, error) {
	var args CalculatorArgs
	if err := decode(input, &args); err != nil {
		return "", err
	}
	var result float64
	switch args.Operation {
	case "add":
		result = args.A + args.B
	case "subtract":
		result = args.A - args.B
	case "multiply":
		result = args.A * args.B
	case "divide":
		if args.B == 0 {
			return "", fmt.Errorf("division by zero")
		}
		result = args.A / args.B
	default:
		return "", fmt.Errorf("unknown operation %q", args.Operation)
	}
	out, _ := json.Marshal(map[string]float64{"result": result})
	return string(out), nil
}

func decode(input map[string]any, dst any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("tool: encode input: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("tool: decode input: %w", err)
	}
	return nil
}
