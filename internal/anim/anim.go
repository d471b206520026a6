// Package anim turns a series of saved PNG figures into an animated GIF.
package anim

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
)

var ErrNoFrames = errors.New("anim: no frames")

// Build decodes the PNG frames, maps them onto one shared palette and
// encodes them in order as a GIF. delay is per frame, in 100ths of a second.
//
// The palette comes from the last frame, which usually has every curve of
// the series on it. If that frame has more than 256 colours the Plan9
// palette is used instead.
func Build(ctx context.Context, frames []string, delay int, out io.Writer) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}

	last, err := openPNG(frames[len(frames)-1])
	if err != nil {
		return err
	}
	pal := Palette(last)

	images := make([]*image.Paletted, len(frames))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range frames {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := openPNG(name)
			if err != nil {
				return err
			}
			images[i] = toPaletted(img, pal)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	delays := make([]int, len(images))
	for i := range delays {
		delays[i] = delay
	}

	if err := gif.EncodeAll(out, &gif.GIF{Image: images, Delay: delays}); err != nil {
		return fmt.Errorf("anim: encoding: %w", err)
	}
	return nil
}

// Palette returns the distinct colours of img when they fit in a GIF
// palette, and Plan9 otherwise.
func Palette(img image.Image) color.Palette {
	seen := make(map[color.RGBA]bool)
	var pal color.Palette

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			if seen[c] {
				continue
			}
			if len(pal) == 256 {
				return palette.Plan9
			}
			seen[c] = true
			pal = append(pal, c)
		}
	}
	if len(pal) == 0 {
		return palette.Plan9
	}
	return pal
}

func toPaletted(img image.Image, pal color.Palette) *image.Paletted {
	p := image.NewPaletted(img.Bounds(), pal)
	draw.Draw(p, img.Bounds(), img, img.Bounds().Min, draw.Src)
	return p
}

func openPNG(name string) (image.Image, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("anim: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("anim: decoding %s: %w", name, err)
	}
	return img, nil
}
