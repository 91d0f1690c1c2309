package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("school-1", "school-1/receipts/abc.pdf")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	schoolID, relPath, _, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "school-1", schoolID)
	assert.Equal(t, "school-1/receipts/abc.pdf", relPath)
}

func TestSignedURLTamperedSignature(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("school-1", "file.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token + "x")
	assert.Error(t, err)
}

func TestSignedURLExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Nanosecond)

	token, _, err := signer.Generate("school-1", "file.pdf")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, _, _, err = signer.Parse(token)
	assert.Error(t, err)
}

func TestSignedURLMissingSecret(t *testing.T) {
	signer := NewSignedURLSigner("", time.Minute)

	_, _, err := signer.Generate("school-1", "file.pdf")
	assert.Error(t, err)
}
