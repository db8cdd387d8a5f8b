package protocol

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// signatureSeed is the initial value of the rolling hash.
const signatureSeed uint32 = 5381

// Obfuscate XORs data with a repeating key. It is its own inverse.
// An empty key returns an unmodified copy.
func Obfuscate(data, key []byte) []byte {
	out := make([]byte, len(data))
	if len(key) == 0 {
		copy(out, data)
		return out
	}
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// EncodeFrame obfuscates plain with secret and base64-encodes the result.
func EncodeFrame(plain []byte, secret string) string {
	return base64.StdEncoding.EncodeToString(Obfuscate(plain, []byte(secret)))
}

// DecodeFrame reverses EncodeFrame.
func DecodeFrame(frame, secret string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return Obfuscate(raw, []byte(secret)), nil
}

// Signature computes the integrity tag over dataString|timestamp|secret.
// The hash runs over UTF-16 code units and wraps at 32 bits; the result is
// rendered as lowercase hex left-padded to 16 characters.
func Signature(dataString string, timestampMillis int64, secret string) string {
	input := dataString + "|" + strconv.FormatInt(timestampMillis, 10) + "|" + secret
	hash := signatureSeed
	for _, c := range utf16.Encode([]rune(input)) {
		hash = (hash << 5) + hash + uint32(c)
	}
	return fmt.Sprintf("%016x", hash)
}
