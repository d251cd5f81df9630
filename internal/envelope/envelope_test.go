package envelope

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadUnpadRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("a"),
		bytes.Repeat([]byte("x"), 15),
		bytes.Repeat([]byte("x"), 16),
		bytes.Repeat([]byte("x"), 17),
		bytes.Repeat([]byte("x"), 31),
		bytes.Repeat([]byte("x"), 32),
	}

	for _, data := range cases {
		padded := Pad(data)
		assert.Equal(t, 0, len(padded)%16, "padded length must be block aligned")
		assert.GreaterOrEqual(t, len(padded), len(data)+1, "at least one pad byte must be appended")
		assert.Equal(t, data, Unpad(padded))
	}
}

func TestPadAlwaysAppendsAtLeastOneByte(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 16)
	padded := Pad(data)
	assert.Equal(t, 32, len(padded))
	assert.Equal(t, byte(16), padded[len(padded)-1])
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec, err := New("correct horse battery staple", 100)
	require.NoError(t, err)

	plaintext := Pad([]byte("hello world"))
	ciphertext, err := codec.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := codec.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptMessageDecryptMessageRoundTrip(t *testing.T) {
	codec, err := New("correct horse battery staple", 100)
	require.NoError(t, err)

	original := []byte("d\r\n0\t0\r\n")
	encoded, err := codec.EncryptMessage(original)
	require.NoError(t, err)

	decoded, err := codec.DecryptMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecryptMessageWrongKeyProducesGarbageNotError(t *testing.T) {
	writer, err := New("right passphrase", 100)
	require.NoError(t, err)
	reader, err := New("wrong passphrase", 100)
	require.NoError(t, err)

	encoded, err := writer.EncryptMessage([]byte("d\r\n0\t0\r\n"))
	require.NoError(t, err)

	decoded, err := reader.DecryptMessage(encoded)
	require.NoError(t, err)
	assert.NotEqual(t, []byte("d\r\n0\t0\r\n"), decoded)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	codec, err := New("pw", 10)
	require.NoError(t, err)

	_, err = codec.Decrypt([]byte("too short"))
	assert.ErrorIs(t, err, ErrShortCiphertext)
}

func TestDecryptMessageRejectsInvalidBase64(t *testing.T) {
	codec, err := New("pw", 10)
	require.NoError(t, err)

	_, err = codec.DecryptMessage("not valid base64!!")
	assert.Error(t, err)
}

func TestNewDefaultsRoundsWhenNonPositive(t *testing.T) {
	a, err := New("pw", 0)
	require.NoError(t, err)
	b, err := New("pw", DefaultRounds)
	require.NoError(t, err)

	encoded, err := a.EncryptMessage([]byte("x"))
	require.NoError(t, err)
	decoded, err := b.DecryptMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), decoded)
}

func TestCompressUnsupported(t *testing.T) {
	codec, err := New("pw", 10)
	require.NoError(t, err)

	_, err = codec.Compress([]byte("data"))
	assert.ErrorIs(t, err, ErrCompressUnsupported)
}
