package governance

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON serializes v with a stable key order regardless of struct
// field order or map iteration: the value is marshalled, decoded into
// generic maps, and re-marshalled. encoding/json sorts map keys, so
// equivalent inputs always produce byte-identical output across processes.
// Numbers are preserved verbatim via json.Number; decimals arrive as
// strings and are untouched.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonical remarshal: %w", err)
	}
	return out, nil
}

// HashInputs returns the lowercase hex SHA-256 of the canonical JSON
// serialization of v. This is the DecisionEvent inputs_hash.
func HashInputs(v any) (string, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
