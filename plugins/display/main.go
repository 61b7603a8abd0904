// Command display is a parse-mode worker. It echoes the structure of its
// input payload back as a stream of messages, one per element or field.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mattjoyce/portrun/internal/protocol"
)

func main() {
	if err := run(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "display: %v\n", err)
		os.Exit(1)
	}
}

type field struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func run(stdin io.Reader, stdout io.Writer) error {
	req, err := protocol.DecodeRequest(stdin)
	if err != nil {
		return err
	}
	enc := protocol.NewEncoder(stdout)

	if len(req.Input) == 0 {
		return enc.Emit(protocol.TypeDone, "no input")
	}

	if err := enc.Emit(protocol.TypeStart, describe(req.Input)); err != nil {
		return err
	}

	count, err := emitParts(enc, req.Input)
	if err != nil {
		return err
	}
	return enc.Emit(protocol.TypeDone, fmt.Sprintf("%d item(s)", count))
}

// emitParts writes array elements in order and object fields sorted by key.
// Scalars are emitted once as-is.
func emitParts(enc *protocol.Encoder, input json.RawMessage) (int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(input, &items); err == nil {
		for _, item := range items {
			if err := enc.Emit(protocol.TypeRunning, item); err != nil {
				return 0, err
			}
		}
		return len(items), nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(input, &fields); err == nil {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := enc.Emit(protocol.TypeRunning, field{Key: k, Value: fields[k]}); err != nil {
				return 0, err
			}
		}
		return len(keys), nil
	}

	if err := enc.Emit(protocol.TypeRunning, input); err != nil {
		return 0, err
	}
	return 1, nil
}

func describe(input json.RawMessage) string {
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return "unknown"
	}
	switch v.(type) {
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return "null"
	}
}
