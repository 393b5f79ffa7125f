package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	outputJSON = "json"
	outputYAML = "yaml"
)

// writeEvents renders raw events as an indented JSON array or a YAML sequence.
func writeEvents(w io.Writer, format string, events []json.RawMessage) error {
	switch format {
	case outputJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	case outputYAML:
		docs := make([]any, 0, len(events))
		for _, raw := range events {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("failed to convert event: %w", err)
			}
			docs = append(docs, v)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (supported: json, yaml)", format)
	}
}
