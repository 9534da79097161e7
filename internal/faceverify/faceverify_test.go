package faceverify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestImageLoadPrefersData(t *testing.T) {
	data, err := Image{Path: "/does/not/exist", Data: []byte("raw")}.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), data)
}

func TestImageLoadReadsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o600))

	data, err := Image{Path: path}.Load()
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
}

func TestImageLoadErrors(t *testing.T) {
	_, err := Image{}.Load()
	assert.Error(t, err)

	_, err = Image{Path: filepath.Join(t.TempDir(), "missing.jpg")}.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDataURIRoundTrip(t *testing.T) {
	uri := DataURI(pngHeader)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"), uri)

	decoded, err := DecodeInline(uri)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, decoded)
}

func TestDataURIFallsBackToJPEG(t *testing.T) {
	assert.True(t, strings.HasPrefix(DataURI([]byte("not an image")), "data:image/jpeg;base64,"))
}

func TestDecodeInline(t *testing.T) {
	decoded, err := DecodeInline("  aGVsbG8=  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(decoded))

	_, err = DecodeInline("data:image/png;base64")
	assert.Error(t, err)

	_, err = DecodeInline("%%%")
	assert.Error(t, err)
}

func TestFaultError(t *testing.T) {
	var nilFault *Fault
	assert.Equal(t, "", nilFault.Error())
	assert.Equal(t, "Face could not be detected", (&Fault{Message: "Face could not be detected"}).Error())
}
