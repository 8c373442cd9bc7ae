package qrtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNoSecret means the signing secret is not configured. Tokens must
	// never be issued or accepted unsigned, so this is fatal to the request.
	ErrNoSecret = errors.New("qr token secret is not configured")

	ErrSignatureInvalid = errors.New("qr token signature mismatch")
	ErrMalformedToken   = errors.New("qr token is malformed")
)

const signatureField = "signature"

// Codec signs and verifies the JSON payloads carried inside QR codes.
//
// The canonical byte form of a payload is its encoding/json marshalling with
// the signature field removed. encoding/json writes map keys in sorted order,
// which keeps the signature independent of field insertion order.
type Codec struct {
	secret []byte
}

func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Sign returns a copy of payload with a hex HMAC-SHA256 signature added.
func (c *Codec) Sign(payload map[string]any) (map[string]any, error) {
	sum, err := c.compute(payload)
	if err != nil {
		return nil, err
	}

	signed := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		if k == signatureField {
			continue
		}
		signed[k] = v
	}
	signed[signatureField] = sum

	return signed, nil
}

// Verify recomputes the signature over every field except "signature" and
// compares it in constant time against the supplied one.
func (c *Codec) Verify(token map[string]any) error {
	supplied, ok := token[signatureField].(string)
	if !ok || supplied == "" {
		return ErrSignatureInvalid
	}

	expected, err := c.compute(token)
	if err != nil {
		return err
	}

	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		return ErrSignatureInvalid
	}

	return nil
}

// Encode signs payload and returns the JSON string embedded in QR images.
func (c *Codec) Encode(payload map[string]any) (string, error) {
	signed, err := c.Sign(payload)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(signed)
	if err != nil {
		return "", err
	}

	return string(raw), nil
}

// Decode parses a raw QR string and verifies its signature.
func (c *Codec) Decode(raw string) (map[string]any, error) {
	var token map[string]any
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if err := c.Verify(token); err != nil {
		return nil, err
	}

	return token, nil
}

func (c *Codec) compute(payload map[string]any) (string, error) {
	if len(c.secret) == 0 {
		return "", ErrNoSecret
	}

	fields := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == signatureField {
			continue
		}
		fields[k] = v
	}

	canonical, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write(canonical)

	return hex.EncodeToString(mac.Sum(nil)), nil
}
