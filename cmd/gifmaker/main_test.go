package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrames(t *testing.T, dir string, n int) {
	t.Helper()
	for k := 0; k < n; k++ {
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		img.Set(k%4, 0, color.RGBA{200, 10, 10, 255})
		fh, err := os.Create(filepath.Join(dir, fmt.Sprintf("CABS%d.png", k)))
		require.NoError(t, err)
		require.NoError(t, png.Encode(fh, img))
		require.NoError(t, fh.Close())
	}
}

func TestPattern(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 5)
	out := filepath.Join(dir, "out.gif")

	var stderr bytes.Buffer
	err := run(context.Background(), []string{"-pattern", filepath.Join(dir, "CABS%d.png"), "-n", "5", "-delay", "8", "-o", out}, &stderr)
	require.NoError(t, err)

	fh, err := os.Open(out)
	require.NoError(t, err)
	defer fh.Close()
	g, err := gif.DecodeAll(fh)
	require.NoError(t, err)
	assert.Len(t, g.Image, 5)
	assert.Equal(t, 8, g.Delay[0])
	assert.Contains(t, stderr.String(), "wrote animation")
}

func TestMissingFrameRemovesOutput(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 2)
	out := filepath.Join(dir, "out.gif")

	var stderr bytes.Buffer
	err := run(context.Background(), []string{"-pattern", filepath.Join(dir, "CABS%d.png"), "-n", "3", "-o", out}, &stderr)
	assert.Error(t, err)
	assert.NoFileExists(t, out)

	assert.Error(t, run(context.Background(), []string{"-o", out}, &stderr))
}
