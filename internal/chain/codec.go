package chain

import (
	"encoding/json"
	"fmt"
	"io"
)

// Definition is the JSON wire form of a chain invocation: a top-level node
// list plus initial variables. Node status and results never round-trip;
// graph persistence is the caller's concern.
type Definition struct {
	Variables map[string]any `json:"variables,omitempty"`
	Nodes     []*CommandNode `json:"nodes"`
}

// DecodeDefinition reads a chain definition from r. Shape validation is
// deferred to ExecuteChain; only JSON-level problems are reported here.
func DecodeDefinition(r io.Reader) (*Definition, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("parsing chain definition: %w", err)
	}
	if len(def.Nodes) == 0 {
		return nil, fmt.Errorf("chain definition has no nodes")
	}
	return &def, nil
}

// EncodeResult writes a ChainResult as indented JSON.
func EncodeResult(w io.Writer, result ChainResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encoding chain result: %w", err)
	}
	return nil
}
