package detection

import (
	"fmt"
	"image"
)

// Render draws marker id of the named builtin dictionary as a side x side
// grayscale image, including the one-cell black border. White cells are 255.
func Render(dictionary string, id, side int) (*image.Gray, error) {
	dict, ok := LookupDictionary(dictionary)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDictionary, dictionary)
	}
	cells := dict.Size + 2
	if side < cells {
		return nil, fmt.Errorf("marker side %d smaller than %d cells", side, cells)
	}
	bits, err := dict.Bits(id)
	if err != nil {
		return nil, err
	}

	img := image.NewGray(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		r := y * cells / side
		for x := 0; x < side; x++ {
			c := x * cells / side
			if r == 0 || c == 0 || r == cells-1 || c == cells-1 {
				continue
			}
			if bits[r-1][c-1] {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img, nil
}
