package tray

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIcon(t *testing.T) {
	img, err := png.Decode(bytes.NewReader(generateIcon(16, teal)))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())

	r, g, b, _ := img.At(8, 8).RGBA()
	assert.Equal(t, [3]uint32{0, 128 * 0x101, 128 * 0x101}, [3]uint32{r, g, b})
}

func TestDeviceLabelAndIconColor(t *testing.T) {
	assert.Equal(t, "scale-1 (połączone)", deviceLabel("scale-1", true))
	assert.Equal(t, "scale-1 (zamknięte)", deviceLabel("scale-1", false))
	assert.Equal(t, teal, iconColor(2))
	assert.Equal(t, gray, iconColor(0))
}
