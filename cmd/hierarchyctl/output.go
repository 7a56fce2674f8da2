package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"tidb-hierarchy/internal/recursive"
	"tidb-hierarchy/internal/relation"
)

type ancestorOutput struct {
	Key        string                 `json:"key" yaml:"key"`
	Depth      int                    `json:"depth" yaml:"depth"`
	Path       []string               `json:"path" yaml:"path"`
	LinkKey    string                 `json:"link_key,omitempty" yaml:"link_key,omitempty"`
	Attributes map[string]interface{} `json:"attributes" yaml:"attributes"`
}

type resultOutput struct {
	Key       string           `json:"key" yaml:"key"`
	Ancestors []ancestorOutput `json:"ancestors" yaml:"ancestors"`
}

func resultsOutput(keyColumn string, results []relation.Result) []resultOutput {
	out := make([]resultOutput, len(results))
	for i, result := range results {
		ancestors := make([]ancestorOutput, len(result.Ancestors))
		for j, row := range result.Ancestors {
			ancestor := ancestorOutput{
				Key:        recursive.KeyString(row.Attributes[keyColumn]),
				Depth:      row.Depth,
				Path:       []string(row.Path),
				Attributes: row.Attributes,
			}
			if row.LinkKey != nil {
				ancestor.LinkKey = recursive.KeyString(row.LinkKey)
			}
			ancestors[j] = ancestor
		}
		out[i] = resultOutput{Key: result.Key, Ancestors: ancestors}
	}
	return out
}

// write encodes v in the selected output format.
func (a *app) write(v interface{}) error {
	if a.output == "yaml" {
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// parseKeys converts command line keys for the key column type.
func parseKeys(args []string, integer bool) ([]interface{}, error) {
	keys := make([]interface{}, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			return nil, fmt.Errorf("empty node key")
		}
		if !integer {
			keys = append(keys, arg)
			continue
		}
		parsed, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("node key %q is not an integer", arg)
		}
		keys = append(keys, parsed)
	}
	return keys, nil
}
