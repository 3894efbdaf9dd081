package utils

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeImageDataURI(t *testing.T) {
	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	encoded := base64.StdEncoding.EncodeToString(raw)

	data, contentType, ext, err := DecodeImageDataURI("data:image/png;base64," + encoded)
	assert.NoError(t, err)
	assert.Equal(t, raw, data)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, ".png", ext)
}

func TestDecodeImageDataURIJPEG(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff})

	_, contentType, ext, err := DecodeImageDataURI("data:image/jpeg;base64," + encoded)
	assert.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	assert.Equal(t, ".jpg", ext)
}

func TestDecodeImageDataURIBareBase64(t *testing.T) {
	raw := []byte("screenshot-bytes")
	data, contentType, ext, err := DecodeImageDataURI(base64.StdEncoding.EncodeToString(raw))
	assert.NoError(t, err)
	assert.Equal(t, raw, data)
	assert.Equal(t, "image/png", contentType) // assumed when no data URI header
	assert.Equal(t, ".png", ext)
}

func TestDecodeImageDataURIErrors(t *testing.T) {
	_, _, _, err := DecodeImageDataURI("data:image/png;base64,!!!not-base64!!!")
	assert.Error(t, err)

	_, _, _, err = DecodeImageDataURI("data:image/png,plain-not-base64")
	assert.Error(t, err)

	_, _, _, err = DecodeImageDataURI("")
	assert.Error(t, err)
}
