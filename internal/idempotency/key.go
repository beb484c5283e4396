package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// KeyVersion is mixed into every key so a change in key layout never
// collides with records written under the old one.
const KeyVersion = "v1"

type keyMaterial struct {
	RequestID uint            `json:"request_id"`
	Operation string          `json:"operation"`
	Params    json.RawMessage `json:"params"`
	Version   string          `json:"version"`
}

// NormalizeParams round-trips params through JSON so that map ordering and
// struct layout do not affect the result.
func NormalizeParams(params interface{}) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("idempotency: marshal params: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("idempotency: normalize params: %w", err)
	}
	canon, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("idempotency: normalize params: %w", err)
	}
	return string(canon), nil
}

// Key returns the sha256 hex key for (taskID, operation, params) together
// with the normalized params it was computed from.
func Key(taskID uint, operation string, params interface{}) (key, normalized string, err error) {
	normalized, err = NormalizeParams(params)
	if err != nil {
		return "", "", err
	}
	material, err := json.Marshal(keyMaterial{
		RequestID: taskID,
		Operation: operation,
		Params:    json.RawMessage(normalized),
		Version:   KeyVersion,
	})
	if err != nil {
		return "", "", fmt.Errorf("idempotency: marshal key: %w", err)
	}
	sum := sha256.Sum256(material)
	return hex.EncodeToString(sum[:]), normalized, nil
}
