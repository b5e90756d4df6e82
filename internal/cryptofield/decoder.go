// Package cryptofield decodes template field values that the backend
// stores encrypted.
//
// The backend encrypts sensitive fields with AES-CBC using a fixed
// ASCII key and IV shared out of band, and serializes the ciphertext as
// \x-prefixed lowercase hex (legacy DB escape format), raw hex, or
// Base64. This is a known-weak scheme kept for interoperability: the
// key and IV are static and never derived per message. Do not harden it
// here without changing the backend in lockstep, or stored ciphertext
// becomes unreadable.
package cryptofield

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/formsync/extension-core/internal/models"
	"go.uber.org/zap"
)

// Backend defaults, agreed out of band. Note that neither is a valid
// AES key/IV length; with these defaults every decrypt attempt fails
// and Decode falls back to returning the stored value verbatim, which
// matches the deployed behavior.
const (
	DefaultKey = "defaultSecretKey123"
	DefaultIV  = "defaultIV123456789"
)

// hexPattern matches strings made entirely of hex digits.
var hexPattern = regexp.MustCompile(`^[a-fA-F0-9]+$`)

// minEncodedLen is the length above which hex-looking values are
// treated as ciphertext.
const minEncodedLen = 50

// Decoder classifies and decrypts ciphertext-encoded field values.
// The zero value is unusable; construct with New.
type Decoder struct {
	key []byte
	iv  []byte
	log *zap.Logger
}

// New returns a Decoder using the given key and IV. Pass DefaultKey and
// DefaultIV to match the production backend.
func New(key, iv string, log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{key: []byte(key), iv: []byte(iv), log: log}
}

// IsEncoded reports whether v looks like a ciphertext-encoded value.
// The classification is a pure function of v; first match wins:
//
//  1. literal \x prefix and length > 50: hex ciphertext with the legacy
//     DB escape prefix
//  2. entirely hex digits and length > 50: raw hex ciphertext
//  3. valid Base64 whose decoded length is a positive multiple of the
//     AES block size
//
// Rule 3 false-positives on coincidentally block-aligned plaintext
// Base64; Decode recovers by returning the input when decryption fails.
func (d *Decoder) IsEncoded(v string) bool {
	if v == "" {
		return false
	}
	if strings.HasPrefix(v, `\x`) && len(v) > minEncodedLen {
		return true
	}
	if len(v) > minEncodedLen && hexPattern.MatchString(v) {
		return true
	}
	decoded, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return false
	}
	return len(decoded) > 0 && len(decoded)%aes.BlockSize == 0
}

// Decode returns the decrypted UTF-8 plaintext of v, or v unchanged if
// v is not encoded or if any step of the pipeline fails. It never
// returns an error: a malformed value must not break the caller.
func (d *Decoder) Decode(v string) string {
	if !d.IsEncoded(v) {
		return v
	}
	plain, err := d.decrypt(v)
	if err != nil {
		d.log.Debug("field decrypt failed, returning value as-is", zap.Error(err))
		return v
	}
	return plain
}

func (d *Decoder) decrypt(v string) (string, error) {
	ct, err := rawCiphertext(v)
	if err != nil {
		return "", err
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext not block-aligned")
	}

	block, err := aes.NewCipher(d.key)
	if err != nil {
		return "", err
	}
	if len(d.iv) != aes.BlockSize {
		return "", errors.New("iv is not one block long")
	}

	buf := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, d.iv).CryptBlocks(buf, ct)

	unpadded, err := pkcs7Unpad(buf, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(unpadded) {
		return "", errors.New("plaintext is not valid UTF-8")
	}
	return string(unpadded), nil
}

// rawCiphertext recovers ciphertext bytes from any of the three
// serializations, in the same precedence order as IsEncoded.
func rawCiphertext(v string) ([]byte, error) {
	if strings.HasPrefix(v, `\x`) {
		return hex.DecodeString(v[2:])
	}
	if hexPattern.MatchString(v) {
		return hex.DecodeString(v)
	}
	return base64.StdEncoding.DecodeString(v)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("data is not block-aligned, cannot unpad")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("invalid padding value")
	}
	if !bytes.Equal(data[len(data)-padding:], bytes.Repeat([]byte{byte(padding)}, padding)) {
		return nil, errors.New("invalid padding bytes")
	}
	return data[:len(data)-padding], nil
}

// DecodeField returns a copy of f with its Value, Placeholder and
// Description decoded. The input is never mutated.
func (d *Decoder) DecodeField(f models.Field) models.Field {
	f.Value = d.Decode(f.Value)
	f.Placeholder = d.Decode(f.Placeholder)
	f.Description = d.Decode(f.Description)
	return f
}

// DecodeTemplate returns a copy of t with its Description and every
// field's decodable values decoded. The input template and its field
// slice are never mutated.
func (d *Decoder) DecodeTemplate(t models.Template) models.Template {
	t.Description = d.Decode(t.Description)
	if len(t.Fields) == 0 {
		return t
	}
	fields := make([]models.Field, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = d.DecodeField(f)
	}
	t.Fields = fields
	return t
}

// DecodeTemplateList decodes every template in the list concurrently,
// preserving input order in the output.
func (d *Decoder) DecodeTemplateList(ts []models.Template) []models.Template {
	if len(ts) == 0 {
		return ts
	}
	out := make([]models.Template, len(ts))
	var wg sync.WaitGroup
	for i, t := range ts {
		wg.Add(1)
		go func(i int, t models.Template) {
			defer wg.Done()
			out[i] = d.DecodeTemplate(t)
		}(i, t)
	}
	wg.Wait()
	return out
}
