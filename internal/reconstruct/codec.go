package reconstruct

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Dense images round-trip through the result cache as little-endian float64
// bit patterns, so NaN holes survive serialization exactly.

// EncodeImage serializes an image for caching.
func EncodeImage(im *Image) []byte {
	buf := make([]byte, 8+8*len(im.Pix))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(im.Height))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(im.Width))
	for i, v := range im.Pix {
		binary.LittleEndian.PutUint64(buf[8+8*i:], math.Float64bits(v))
	}
	return buf
}

// DecodeImage deserializes a cached image.
func DecodeImage(data []byte) (*Image, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("truncated image payload: %d bytes", len(data))
	}
	h := int(binary.LittleEndian.Uint32(data[0:4]))
	w := int(binary.LittleEndian.Uint32(data[4:8]))
	if len(data) != 8+8*h*w {
		return nil, fmt.Errorf("image payload size mismatch: %dx%d with %d bytes", h, w, len(data))
	}
	pix := make([]float64, h*w)
	for i := range pix {
		pix[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8+8*i:]))
	}
	return &Image{Height: h, Width: w, Pix: pix}, nil
}
