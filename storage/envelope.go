package storage

import (
	"fmt"

	"github.com/heyvard/helse-spanner/internal/util"
)

// Envelope is a sealed record containing AES-256-GCM encrypted data.
// Plaintext envelopes (scheme "plain-json") are used for records that
// need no confidentiality, such as audit chain entries.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce,omitempty"`
	Ciphertext []byte `json:"ciphertext"`
}

const (
	SchemeAESGCM = "aes256gcm"
	SchemePlain  = "plain-json"
)

// SealRecord encrypts plaintext into an Envelope using the given record key
// and AAD.
func SealRecord(recordKey, plaintext, aad []byte) (*Envelope, error) {
	cipher, err := util.EncryptAESWithAAD(plaintext, recordKey, aad)
	if err != nil {
		return nil, err
	}

	// util.EncryptAESWithAAD returns nonce || ciphertext.
	return &Envelope{
		Ver:        1,
		Scheme:     SchemeAESGCM,
		Nonce:      cipher[:12],
		Ciphertext: cipher[12:],
	}, nil
}

// OpenRecord decrypts an Envelope using the given record key and AAD.
func OpenRecord(recordKey []byte, envelope *Envelope, aad []byte) ([]byte, error) {
	if envelope.Ver != 1 {
		return nil, fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	if envelope.Scheme != SchemeAESGCM {
		return nil, fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}

	// Reconstruct nonce || ciphertext without mutating envelope fields.
	fullCipher := make([]byte, len(envelope.Nonce)+len(envelope.Ciphertext))
	copy(fullCipher, envelope.Nonce)
	copy(fullCipher[len(envelope.Nonce):], envelope.Ciphertext)

	return util.DecryptAESWithAAD(fullCipher, recordKey, aad)
}

// PlainRecord wraps data in an unencrypted envelope.
func PlainRecord(data []byte) *Envelope {
	return &Envelope{
		Ver:        1,
		Scheme:     SchemePlain,
		Ciphertext: data,
	}
}
