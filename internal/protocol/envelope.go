package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformedPayload is returned when an inbound redemption blob cannot be decoded.
	ErrMalformedPayload = errors.New("malformed redemption payload")
	// ErrBadSignature is returned when an envelope's tag does not match its data.
	ErrBadSignature = errors.New("envelope signature mismatch")
)

// Envelope is the signed outbound structure carried inside the encrypted frame.
type Envelope struct {
	Data       any    `json:"data"`
	DataString string `json:"dataString"`
	Timestamp  int64  `json:"timestamp"`
	Signature  string `json:"signature"`
}

// Seal canonicalizes payload, signs it and returns the obfuscated frame.
func Seal(payload any, secret string, now time.Time) (string, error) {
	data, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	dataString, err := Marshal(data)
	if err != nil {
		return "", err
	}
	ts := now.UnixMilli()
	env := Envelope{
		Data:       data,
		DataString: string(dataString),
		Timestamp:  ts,
		Signature:  Signature(string(dataString), ts, secret),
	}
	raw, err := Marshal(env)
	if err != nil {
		return "", err
	}
	return EncodeFrame(raw, secret), nil
}

// Open decodes a sealed frame and verifies its signature.
func Open(frame, secret string) (*Envelope, error) {
	raw, err := DecodeFrame(frame, secret)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if Signature(env.DataString, env.Timestamp, secret) != env.Signature {
		return nil, ErrBadSignature
	}
	return &env, nil
}

// EncodeRedemption builds the inbound blob a client sends for key and uuid.
func EncodeRedemption(key, uuid, secret string) string {
	inner := base64.StdEncoding.EncodeToString([]byte(key + "_" + uuid))
	return EncodeFrame([]byte(inner), secret)
}

// DecodeRedemption extracts the key and device UUID from an inbound blob.
// The composite identifier is split on the first underscore.
func DecodeRedemption(blob, secret string) (key, uuid string, err error) {
	if strings.TrimSpace(blob) == "" {
		return "", "", ErrMalformedPayload
	}
	inner, err := DecodeFrame(blob, secret)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	composite, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(inner)))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	key, uuid, found := strings.Cut(string(composite), "_")
	if !found || key == "" || uuid == "" {
		return "", "", ErrMalformedPayload
	}
	return key, uuid, nil
}
