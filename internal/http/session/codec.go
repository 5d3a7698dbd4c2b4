package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/target/loginkit/internal/data/cryptoutil"
)

// Codec turns session values into a cookie value and back.
type Codec interface {
	Encode(values map[string]string) (string, error)
	// Decode rejects values older than maxAge (when positive).
	Decode(raw string, maxAge time.Duration) (map[string]string, error)
}

// SignedCodec stores base64 JSON signed with a TimestampSigner, the format
// Starlette's SessionMiddleware reads and writes.
type SignedCodec struct {
	Signer *cryptoutil.TimestampSigner
}

// NewSignedCodec builds a SignedCodec keyed by secret with the default salt.
func NewSignedCodec(secret string) (*SignedCodec, error) {
	s, err := cryptoutil.NewTimestampSigner(secret, cryptoutil.DefaultSalt)
	if err != nil {
		return nil, err
	}
	return &SignedCodec{Signer: s}, nil
}

func (c *SignedCodec) Encode(values map[string]string) (string, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	return c.Signer.Sign(base64.StdEncoding.EncodeToString(raw)), nil
}

func (c *SignedCodec) Decode(raw string, maxAge time.Duration) (map[string]string, error) {
	data, err := c.Signer.Unsign(raw, maxAge)
	if err != nil {
		return nil, err
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return decodeValues(decoded)
}

// EncryptedCodec seals the values with an Encryptor so clients cannot read them.
type EncryptedCodec struct {
	Encryptor cryptoutil.Encryptor
	now       func() time.Time
}

// NewEncryptedCodec builds an AES-GCM codec from an arbitrary key string.
func NewEncryptedCodec(key string) (*EncryptedCodec, error) {
	enc, err := cryptoutil.NewAESGCMEncryptor(cryptoutil.KeyFromSecret(key))
	if err != nil {
		return nil, err
	}
	return &EncryptedCodec{Encryptor: enc}, nil
}

type envelope struct {
	Values   map[string]string `json:"v"`
	IssuedAt int64             `json:"iat"`
}

func (c *EncryptedCodec) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *EncryptedCodec) Encode(values map[string]string) (string, error) {
	raw, err := json.Marshal(envelope{Values: values, IssuedAt: c.clock().Unix()})
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	return c.Encryptor.Encrypt(raw)
}

func (c *EncryptedCodec) Decode(raw string, maxAge time.Duration) (map[string]string, error) {
	plain, err := c.Encryptor.Decrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("decrypt session: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(plain, &env); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if maxAge > 0 && c.clock().Unix()-env.IssuedAt > int64(maxAge/time.Second) {
		return nil, errors.New("session expired")
	}
	if env.Values == nil {
		env.Values = map[string]string{}
	}
	return env.Values, nil
}

// decodeValues accepts any JSON object and keeps its string members, so
// cookies written by other frameworks with non-string values still load.
func decodeValues(raw []byte) (map[string]string, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	values := make(map[string]string, len(generic))
	for k, v := range generic {
		if s, ok := v.(string); ok {
			values[k] = s
		}
	}
	return values, nil
}
