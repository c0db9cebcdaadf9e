package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// CalculateHash signs data with the shared provider secret. Used to verify
// callback payloads; an empty key disables signing and returns "".
func CalculateHash(data string, key string) string {
	if key == "" {
		return ""
	}
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func VerifyHash(data string, key string, hash string) error {
	if key == "" {
		return nil
	}
	expected := CalculateHash(data, key)
	if !hmac.Equal([]byte(expected), []byte(hash)) {
		return errors.New("hash mismatch")
	}
	return nil
}
