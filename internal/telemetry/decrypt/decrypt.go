// Package decrypt recovers the protected field carried in encryptInfo.
//
// The cipher is AES in CBC mode with PKCS#7 padding. The key length selects
// AES-128, AES-192 or AES-256. How upstream encodes the key and iv strings
// has not been confirmed, so the encoding is configurable.
package decrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/bestk/zeeho-widgets/internal/telemetry/model"
)

// Kind classifies a DecryptError.
type Kind string

const (
	InvalidKeyMaterial Kind = "InvalidKeyMaterial"
	PaddingInvalid     Kind = "PaddingInvalid"
	DecodeFailure      Kind = "DecodeFailure"
)

// DecryptError is returned for every failed decryption. It never carries
// partial plaintext.
type DecryptError struct {
	Kind   Kind
	Reason string
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("decrypt: %s: %s", e.Kind, e.Reason)
}

// Is matches another *DecryptError of the same kind.
func (e *DecryptError) Is(target error) bool {
	t, ok := target.(*DecryptError)
	return ok && t.Kind == e.Kind && t.Reason == ""
}

// Sentinels for errors.Is.
var (
	ErrInvalidKeyMaterial = &DecryptError{Kind: InvalidKeyMaterial}
	ErrPaddingInvalid     = &DecryptError{Kind: PaddingInvalid}
	ErrDecodeFailure      = &DecryptError{Kind: DecodeFailure}
)

// KeyEncoding is how key and iv strings map to bytes.
type KeyEncoding string

const (
	KeyUTF8   KeyEncoding = "utf8"
	KeyHex    KeyEncoding = "hex"
	KeyBase64 KeyEncoding = "base64"
)

// AESCBC decrypts EncryptInfo values. The zero value uses UTF-8 key material.
type AESCBC struct {
	Encoding KeyEncoding
}

// New returns an AESCBC for the named key encoding.
func New(encoding string) (*AESCBC, error) {
	switch e := KeyEncoding(encoding); e {
	case "", KeyUTF8:
		return &AESCBC{Encoding: KeyUTF8}, nil
	case KeyHex, KeyBase64:
		return &AESCBC{Encoding: e}, nil
	default:
		return nil, fmt.Errorf("unknown key encoding %q", encoding)
	}
}

// Decrypt returns the plaintext of info.
func (d *AESCBC) Decrypt(info model.EncryptInfo) (string, error) {
	if !info.Complete() {
		return "", &DecryptError{Kind: InvalidKeyMaterial, Reason: "key, iv and encryptValue are all required"}
	}

	block, iv, err := d.material(info.Key, info.IV)
	if err != nil {
		return "", err
	}

	ciphertext, err := decodeCiphertext(info.EncryptValue)
	if err != nil {
		return "", err
	}
	if !wholeBlocks(ciphertext) {
		return "", &DecryptError{Kind: DecodeFailure, Reason: fmt.Sprintf("ciphertext length %d is not a positive multiple of %d", len(ciphertext), aes.BlockSize)}
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	plain, err = unpad(plain)
	if err != nil {
		return "", err
	}

	return string(plain), nil
}

// Encrypt is the inverse of Decrypt. The result is standard base64.
func (d *AESCBC) Encrypt(plaintext, key, iv string) (string, error) {
	block, ivb, err := d.material(key, iv)
	if err != nil {
		return "", err
	}

	padded := pad([]byte(plaintext))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, ivb).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

func (d *AESCBC) material(key, iv string) (cipher.Block, []byte, error) {
	k, err := d.decodeKey(key)
	if err != nil {
		return nil, nil, &DecryptError{Kind: InvalidKeyMaterial, Reason: "key: " + err.Error()}
	}
	i, err := d.decodeKey(iv)
	if err != nil {
		return nil, nil, &DecryptError{Kind: InvalidKeyMaterial, Reason: "iv: " + err.Error()}
	}

	switch len(k) {
	case 16, 24, 32:
	default:
		return nil, nil, &DecryptError{Kind: InvalidKeyMaterial, Reason: fmt.Sprintf("key is %d bytes, want 16, 24 or 32", len(k))}
	}
	if len(i) != aes.BlockSize {
		return nil, nil, &DecryptError{Kind: InvalidKeyMaterial, Reason: fmt.Sprintf("iv is %d bytes, want %d", len(i), aes.BlockSize)}
	}

	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, nil, &DecryptError{Kind: InvalidKeyMaterial, Reason: err.Error()}
	}

	return block, i, nil
}

func (d *AESCBC) decodeKey(s string) ([]byte, error) {
	switch d.Encoding {
	case KeyHex:
		return hex.DecodeString(s)
	case KeyBase64:
		return base64.StdEncoding.DecodeString(s)
	default:
		return []byte(s), nil
	}
}

// decodeCiphertext accepts standard base64 and hex. Hex digits are also
// base64 characters, so text that is entirely hex and decodes to whole
// blocks is read as hex.
func decodeCiphertext(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if isHex(s) {
		if b, err := hex.DecodeString(s); err == nil && wholeBlocks(b) {
			return b, nil
		}
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}
	return nil, &DecryptError{Kind: DecodeFailure, Reason: "encryptValue is neither base64 nor hex"}
}

func isHex(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func wholeBlocks(b []byte) bool {
	return len(b) > 0 && len(b)%aes.BlockSize == 0
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, &DecryptError{Kind: PaddingInvalid, Reason: "bad padding length"}
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, &DecryptError{Kind: PaddingInvalid, Reason: "inconsistent padding bytes"}
		}
	}
	return b[:len(b)-n], nil
}

// KindOf returns the kind of a decrypt error, or "" for other errors.
func KindOf(err error) Kind {
	var de *DecryptError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
