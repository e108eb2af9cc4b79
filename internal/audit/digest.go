package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Digest hashes the RFC 8785 canonical form of a JSON-serializable value,
// so the digest is independent of map iteration and encoder quirks. Stage
// artifacts and audit payloads share this digest.
func Digest(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serializing payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func payloadDigest(payload map[string]any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	return Digest(payload)
}
