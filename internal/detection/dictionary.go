package detection

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
)

// ErrUndecodableMarker is returned for a marker id whose code is not in the
// detector's table for an otherwise supported dictionary.
var ErrUndecodableMarker = errors.New("marker id not decodable")

// Dictionary is a set of square fiducial codes of one payload size.
//
// Codes are stored row-major, most significant bit first, with 1 meaning a
// white cell. Only the payload is stored; every marker is also surrounded by
// a one-cell black border.
type Dictionary struct {
	Name  string
	Size  int
	codes map[int]uint64
}

// Builtin dictionaries decodable without OpenCV. Only the first four codes
// of DICT_4X4_50 are carried, bit-identical to OpenCV's table. Templates may
// declare any id within a dictionary's capacity; ids outside this table are
// reported by CheckMarker and need the gocv build.
var builtin = map[string]*Dictionary{
	"DICT_4X4_50": {
		Name: "DICT_4X4_50",
		Size: 4,
		codes: map[int]uint64{
			0: 0xB532,
			1: 0x0F9A,
			2: 0x332D,
			3: 0x9946,
		},
	},
}

// LookupDictionary returns the builtin dictionary with the given name.
func LookupDictionary(name string) (*Dictionary, bool) {
	d, ok := builtin[name]
	return d, ok
}

// SupportedDictionaries lists the builtin dictionary names, sorted.
func SupportedDictionaries() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IDs returns the marker ids the dictionary can decode, ascending.
func (d *Dictionary) IDs() []int {
	ids := make([]int, 0, len(d.codes))
	for id := range d.codes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Bits returns the payload of marker id as a Size x Size grid (true = white).
func (d *Dictionary) Bits(id int) ([][]bool, error) {
	code, ok := d.codes[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d not in builtin %s table (have %v)", ErrUndecodableMarker, id, d.Name, d.IDs())
	}
	n := d.Size
	grid := make([][]bool, n)
	for r := 0; r < n; r++ {
		grid[r] = make([]bool, n)
		for c := 0; c < n; c++ {
			shift := uint(n*n - 1 - (r*n + c))
			grid[r][c] = code>>shift&1 == 1
		}
	}
	return grid, nil
}

// match finds the code closest to the observed payload in any of the four
// rotations.
//
// rotation is the number of clockwise quarter turns that bring the observed
// grid onto the stored code. ok is false when the best distance exceeds
// maxErrors. Ties go to the lowest id, then the smallest rotation.
func (d *Dictionary) match(observed [][]bool, maxErrors int) (id, rotation, distance int, ok bool) {
	best := -1
	grid := observed
	ids := d.IDs()
	for rot := 0; rot < 4; rot++ {
		word := pack(grid)
		for _, candidate := range ids {
			dist := bits.OnesCount64(word ^ d.codes[candidate])
			if best < 0 || dist < best {
				best, id, rotation = dist, candidate, rot
			}
		}
		grid = rotateCW(grid)
	}
	if best < 0 || best > maxErrors {
		return 0, 0, best, false
	}
	return id, rotation, best, true
}

func pack(grid [][]bool) uint64 {
	var word uint64
	for _, row := range grid {
		for _, white := range row {
			word <<= 1
			if white {
				word |= 1
			}
		}
	}
	return word
}

// rotateCW turns a square grid a quarter turn clockwise:
// out[r][c] = in[n-1-c][r].
func rotateCW(in [][]bool) [][]bool {
	n := len(in)
	out := make([][]bool, n)
	for r := 0; r < n; r++ {
		out[r] = make([]bool, n)
		for c := 0; c < n; c++ {
			out[r][c] = in[n-1-c][r]
		}
	}
	return out
}
