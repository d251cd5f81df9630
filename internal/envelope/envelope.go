// Package envelope implements the pad/encrypt/encode wrapper applied to
// every payload stored on the mailbox, and its inverse.
//
// Wire format: base64(iv(16 bytes) || AES-256-CBC(key, iv, pad(plaintext))).
// key = PBKDF2(passphrase, salt, 32, rounds, SHA-1). The salt is fixed so
// that existing mailboxes stay readable; see DESIGN.md for the tradeoff.
package envelope

import (
	"bytes"
	"compress/bzip2"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize = 32
	// salt is fixed for on-disk compatibility with existing mailboxes.
	// A different salt would silently derive a different key for the
	// same passphrase, making every previously-stored node unreadable.
	salt = "just a random salt"

	// DefaultRounds is used when a mount does not override the PBKDF2
	// iteration count.
	DefaultRounds = 10000
)

var (
	// ErrShortCiphertext is returned when encrypted input is smaller than
	// one AES block plus an IV, so it cannot possibly be a valid envelope.
	ErrShortCiphertext = errors.New("envelope: ciphertext shorter than iv+block")

	// ErrCompressUnsupported marks Compress as present for interface parity
	// with the original implementation's compress/decompress pair, but not
	// implemented: Go's standard library has no bzip2 encoder, and no
	// bzip2-encoding library is available anywhere in the dependency
	// corpus this module was built from. The persistence path never
	// calls it (see spec.md 4.1 and 9).
	ErrCompressUnsupported = errors.New("envelope: bzip2 compression is not supported by this build")
)

// Codec derives an AES-256 key from a passphrase and exposes the
// pad/encrypt/encode envelope (and its inverse) used for every stored
// payload.
type Codec struct {
	key   []byte
	block cipher.Block
}

// New derives a codec's key from passphrase using PBKDF2 with the given
// number of iterations. A zero or negative rounds uses DefaultRounds.
func New(passphrase string, rounds int) (*Codec, error) {
	if rounds <= 0 {
		rounds = DefaultRounds
	}

	key := pbkdf2Key(passphrase, rounds)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: new cipher: %w", err)
	}

	return &Codec{key: key, block: block}, nil
}

func pbkdf2Key(passphrase string, rounds int) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(salt), rounds, keySize, sha1.New)
}

// Pad appends n copies of the byte whose value is n, where n in [1,16] is
// the smallest value making len(data)+n a multiple of the AES block size.
// This always appends at least one byte, even if len(data) is already a
// multiple of the block size -- matching the original implementation
// exactly, since Unpad always trusts the final byte as a pad length.
func Pad(data []byte) []byte {
	plainLen := len(data) + 1
	padded := (plainLen / aes.BlockSize) * aes.BlockSize
	if plainLen%aes.BlockSize != 0 {
		padded += aes.BlockSize
	}
	padLen := padded - len(data)

	out := make([]byte, len(data), padded)
	copy(out, data)
	for i := 0; i < padLen; i++ {
		out = append(out, byte(padLen))
	}
	return out
}

// Unpad strips the padding Pad applied. The final byte's value is trusted
// as the pad length; callers must only pass data that was produced by Pad
// (or is at least non-empty).
func Unpad(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	padLen := int(data[len(data)-1])
	if padLen <= 0 || padLen > len(data) {
		return data
	}
	return data[:len(data)-padLen]
}

// Encrypt AES-256-CBC encrypts block-aligned plaintext under a fresh random
// IV, returning iv || ciphertext. plaintext must already be padded to a
// multiple of the AES block size (see Pad).
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("envelope: plaintext length %d is not block-aligned", len(plaintext))
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("envelope: read iv: %w", err)
	}

	ciphertext := make([]byte, len(plaintext))
	mode := cipher.NewCBCEncrypter(c.block, iv)
	mode.CryptBlocks(ciphertext, plaintext)

	return append(iv, ciphertext...), nil
}

// Decrypt is the inverse of Encrypt: data is iv || ciphertext.
func (c *Codec) Decrypt(data []byte) ([]byte, error) {
	if len(data) < 2*aes.BlockSize || (len(data)-aes.BlockSize)%aes.BlockSize != 0 {
		return nil, ErrShortCiphertext
	}

	iv := data[:aes.BlockSize]
	ciphertext := data[aes.BlockSize:]

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(c.block, iv)
	mode.CryptBlocks(plaintext, ciphertext)

	return plaintext, nil
}

// EncryptMessage pads, encrypts, and base64-encodes data: this is the
// envelope every node/block Message body goes through before being
// stored as a mail message.
func (c *Codec) EncryptMessage(data []byte) (string, error) {
	ciphertext, err := c.Encrypt(Pad(data))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptMessage is the inverse of EncryptMessage. If s does not decode as
// valid base64 or the underlying ciphertext is malformed, an error is
// returned; a successful decrypt under the wrong key still succeeds here
// and returns garbage -- callers must check the decoded prefix themselves
// (see spec.md 4.1, 7: the filesystem core gates on the "d\r\n" prefix).
func (c *Codec) DecryptMessage(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("envelope: base64 decode: %w", err)
	}

	plaintext, err := c.Decrypt(raw)
	if err != nil {
		return nil, err
	}

	return Unpad(plaintext), nil
}

// Compress is exposed for parity with the original implementation's
// compress/decompress pair but is never called by the persistence path
// (see spec.md 4.1, 9) and always fails; see ErrCompressUnsupported.
func (c *Codec) Compress(data []byte) ([]byte, error) {
	return nil, ErrCompressUnsupported
}

// Decompress reverses a bzip2 stream produced by some other tool. Unlike
// Compress, Go's standard library does provide a bzip2 reader, so this
// direction is fully functional even though nothing in this module writes
// bzip2 data.
func (c *Codec) Decompress(data []byte) ([]byte, error) {
	r := bzip2.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("envelope: bzip2 decompress: %w", err)
	}
	return out, nil
}
