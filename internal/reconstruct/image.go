package reconstruct

import "math"

// Image is a dense 2D intensity grid. Unset pixels hold NaN.
type Image struct {
	Height int
	Width  int
	Pix    []float64 // row-major, len == Height*Width
}

// NewImage allocates an image of the given shape with every pixel unset.
func NewImage(height, width int) *Image {
	pix := make([]float64, height*width)
	for i := range pix {
		pix[i] = math.NaN()
	}
	return &Image{Height: height, Width: width, Pix: pix}
}

// At returns the value at (row, col).
func (im *Image) At(row, col int) float64 {
	return im.Pix[row*im.Width+col]
}

// Set writes the value at (row, col).
func (im *Image) Set(row, col int, v float64) {
	im.Pix[row*im.Width+col] = v
}

// Clone returns a deep copy of the image.
func (im *Image) Clone() *Image {
	pix := make([]float64, len(im.Pix))
	copy(pix, im.Pix)
	return &Image{Height: im.Height, Width: im.Width, Pix: pix}
}

// CountNaN returns the number of unset pixels.
func (im *Image) CountNaN() int {
	n := 0
	for _, v := range im.Pix {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}
