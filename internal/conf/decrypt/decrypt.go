// Package decrypt contains the Decrypt function.
package decrypt

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// Decrypt decrypts a configuration encoded as base64(nonce + secretbox).
// Keys longer than 32 bytes are truncated.
func Decrypt(key string, byts []byte) ([]byte, error) {
	enc, err := base64.StdEncoding.DecodeString(string(byts))
	if err != nil {
		return nil, err
	}

	if len(enc) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("encrypted configuration is too short")
	}

	var secretKey [32]byte
	copy(secretKey[:], key)

	var nonce [nonceSize]byte
	copy(nonce[:], enc[:nonceSize])

	decrypted, ok := secretbox.Open(nil, enc[nonceSize:], &nonce, &secretKey)
	if !ok {
		return nil, fmt.Errorf("decryption error")
	}

	return decrypted, nil
}

// Encrypt is the inverse of Decrypt.
func Encrypt(key string, nonce [nonceSize]byte, plain []byte) []byte {
	var secretKey [32]byte
	copy(secretKey[:], key)

	enc := secretbox.Seal(nonce[:], plain, &nonce, &secretKey)
	return []byte(base64.StdEncoding.EncodeToString(enc))
}
