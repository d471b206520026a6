package plotting

import "image/color"

// Sets are numbered in the order we usually plot them (0, 4, 8, 12, 15 for a
// five-power series), so those indices get the most distinct colours.
var (
	grey = color.RGBA{R: 127, G: 127, B: 127, A: 255}

	light = [16]color.RGBA{
		0:  {R: 31, G: 211, B: 172, A: 255},
		1:  {R: 188, G: 117, B: 255, A: 255},
		2:  {R: 140, G: 46, B: 49, A: 255},
		3:  {R: 91, G: 22, B: 22, A: 255},
		4:  {R: 255, G: 122, B: 180, A: 255},
		5:  {R: 234, G: 156, B: 172, A: 255},
		6:  {R: 1, G: 56, B: 84, A: 255},
		7:  {R: 46, G: 140, B: 60, A: 255},
		8:  {R: 122, G: 156, B: 255, A: 255},
		9:  {R: 122, G: 41, B: 104, A: 255},
		10: {R: 41, G: 122, B: 100, A: 255},
		11: {R: 122, G: 90, B: 41, A: 255},
		12: {R: 255, G: 193, B: 122, A: 255},
		13: {R: 22, G: 44, B: 91, A: 255},
		14: {R: 59, G: 17, B: 66, A: 255},
		15: {R: 27, G: 150, B: 146, A: 255},
	}

	dark = [16]color.RGBA{
		0:  {R: 27, G: 170, B: 139, A: 255},
		1:  {R: 188, G: 117, B: 255, A: 255},
		2:  {R: 140, G: 46, B: 49, A: 255},
		3:  {R: 91, G: 22, B: 22, A: 255},
		4:  {R: 201, G: 104, B: 146, A: 255},
		5:  {R: 234, G: 156, B: 172, A: 255},
		6:  {R: 1, G: 56, B: 84, A: 255},
		7:  {R: 46, G: 140, B: 60, A: 255},
		8:  {R: 99, G: 124, B: 198, A: 255},
		9:  {R: 122, G: 41, B: 104, A: 255},
		10: {R: 41, G: 122, B: 100, A: 255},
		11: {R: 122, G: 90, B: 41, A: 255},
		12: {R: 183, G: 139, B: 89, A: 255},
		13: {R: 22, G: 44, B: 91, A: 255},
		14: {R: 59, G: 17, B: 66, A: 255},
		15: {R: 18, G: 102, B: 99, A: 255},
	}
)

// Palette returns the colour for a data set. Brushes wrap around.
func Palette(brush int, darker bool) color.RGBA {
	i := ((brush % 16) + 16) % 16
	if darker {
		return dark[i]
	}

	return light[i]
}
