package decrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/bestk/zeeho-widgets/internal/telemetry/model"
)

const (
	testKey = "0123456789abcdef"
	testIV  = "fedcba9876543210"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
		key       string
	}{
		{"empty", "", testKey},
		{"short", "A1B2C3", testKey},
		{"exact block", "0123456789abcdef", testKey},
		{"aes-192", `{"pin":"1234"}`, "0123456789abcdef01234567"},
		{"aes-256", "358122500002456", "0123456789abcdef0123456789abcdef"},
		{"utf8 plaintext", "浙A·12345", testKey},
	}

	d := &AESCBC{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := d.Encrypt(tt.plaintext, tt.key, testIV)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			got, err := d.Decrypt(model.EncryptInfo{Key: tt.key, IV: testIV, EncryptValue: ct})
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if got != tt.plaintext {
				t.Fatalf("Decrypt() = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestRoundTripKeyEncodings(t *testing.T) {
	for _, enc := range []string{"hex", "base64"} {
		t.Run(enc, func(t *testing.T) {
			d, err := New(enc)
			if err != nil {
				t.Fatalf("New(%q) error = %v", enc, err)
			}

			key, iv := []byte(testKey), []byte(testIV)
			var k, i string
			if enc == "hex" {
				k, i = hex.EncodeToString(key), hex.EncodeToString(iv)
			} else {
				k, i = base64.StdEncoding.EncodeToString(key), base64.StdEncoding.EncodeToString(iv)
			}

			ct, err := d.Encrypt("secret", k, i)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			got, err := d.Decrypt(model.EncryptInfo{Key: k, IV: i, EncryptValue: ct})
			if err != nil || got != "secret" {
				t.Fatalf("Decrypt() = %q, %v", got, err)
			}
		})
	}
}

func TestHexCiphertextFallback(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
		upper     bool
	}{
		{"one block", "hello", false},
		{"two blocks", "0123456789abcdef-twoblocks", false},
		{"upper case", "0123456789abcdef-twoblocks", true},
	}

	d := &AESCBC{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := d.Encrypt(tt.plaintext, testKey, testIV)
			if err != nil {
				t.Fatal(err)
			}
			raw, _ := base64.StdEncoding.DecodeString(ct)
			value := hex.EncodeToString(raw)
			if tt.upper {
				value = strings.ToUpper(value)
			}

			got, err := d.Decrypt(model.EncryptInfo{Key: testKey, IV: testIV, EncryptValue: value})
			if err != nil || got != tt.plaintext {
				t.Fatalf("Decrypt(%q) = %q, %v", value, got, err)
			}
		})
	}
}

func TestDecryptFailures(t *testing.T) {
	d := &AESCBC{}
	valid, err := d.Encrypt("payload", testKey, testIV)
	if err != nil {
		t.Fatal(err)
	}

	zeroPad := encryptRaw(t, append([]byte("fifteen bytes!!"), 0x00))
	mixedPad := encryptRaw(t, append([]byte("twelve bytes"), 0x01, 0x02, 0x03, 0x04))

	tests := []struct {
		name string
		info model.EncryptInfo
		want error
	}{
		{"key of wrong length", model.EncryptInfo{Key: "short", IV: testIV, EncryptValue: valid}, ErrInvalidKeyMaterial},
		{"iv of wrong length", model.EncryptInfo{Key: testKey, IV: "iv", EncryptValue: valid}, ErrInvalidKeyMaterial},
		{"missing iv", model.EncryptInfo{Key: testKey, EncryptValue: valid}, ErrInvalidKeyMaterial},
		{"missing value", model.EncryptInfo{Key: testKey, IV: testIV}, ErrInvalidKeyMaterial},
		{"not base64 or hex", model.EncryptInfo{Key: testKey, IV: testIV, EncryptValue: "%%%not-encoded%%%"}, ErrDecodeFailure},
		{"not a block multiple", model.EncryptInfo{Key: testKey, IV: testIV, EncryptValue: base64.StdEncoding.EncodeToString([]byte("abc"))}, ErrDecodeFailure},
		{"zero padding byte", model.EncryptInfo{Key: testKey, IV: testIV, EncryptValue: zeroPad}, ErrPaddingInvalid},
		{"inconsistent padding", model.EncryptInfo{Key: testKey, IV: testIV, EncryptValue: mixedPad}, ErrPaddingInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Decrypt(tt.info)
			if err == nil {
				t.Fatalf("Decrypt() = %q, want error", got)
			}
			if got != "" {
				t.Errorf("Decrypt() returned partial plaintext %q", got)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decrypt() error = %v, want kind %s", err, KindOf(tt.want))
			}
		})
	}
}

func TestNewRejectsUnknownEncoding(t *testing.T) {
	if _, err := New("rot13"); err == nil {
		t.Fatal("New(rot13) error = nil")
	}
}

// encryptRaw encrypts one block without adding padding.
func encryptRaw(t *testing.T, block []byte) string {
	t.Helper()
	c, err := aes.NewCipher([]byte(testKey))
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, len(block))
	cipher.NewCBCEncrypter(c, []byte(testIV)).CryptBlocks(out, block)
	return base64.StdEncoding.EncodeToString(out)
}
