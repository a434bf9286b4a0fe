// Package model holds the core game data types: location cells, the
// creature catalog entry shape, per-player progress records, and the
// entries the three territory modes persist.
package model

import (
	"fmt"
	"strings"
	"time"

	olc "github.com/google/open-location-code/go"
)

// Plus Code alphabet, in digit order. Index 9 is 'F', the character
// covering the UTC+0 longitude band at the second code position.
const CodeAlphabet = "23456789CFGHJMPQRVWX"

const (
	// Degrees covered by one cell edge at each precision.
	ResolutionCell2  = 20.0
	ResolutionCell4  = 1.0
	ResolutionCell6  = 0.05
	ResolutionCell8  = 0.0025
	ResolutionCell10 = 0.000125

	// SquareCell10Area is the reference area for coverage scores.
	SquareCell10Area = ResolutionCell10 * ResolutionCell10
)

// Cell lengths used as map keys. Codes are stored bare, without the
// '+' separator: "86HTGG2C" is a Cell8, "86HTGG2C99" a Cell10.
const (
	Cell8Len  = 8
	Cell10Len = 10
)

// ValidCell reports whether code is a bare Plus Code at one of the
// supported even lengths (2 through 10 digits).
func ValidCell(code string) bool {
	if len(code) < 2 || len(code) > 10 || len(code)%2 != 0 {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(CodeAlphabet, c) {
			return false
		}
	}
	return true
}

// fullCode turns a bare cell code into a full Plus Code olc can parse.
func fullCode(code string) string {
	if len(code) >= Cell8Len {
		return code[:Cell8Len] + "+" + code[Cell8Len:]
	}
	return code + strings.Repeat("0", Cell8Len-len(code)) + "+"
}

// CellCenter returns the centroid of a bare cell code.
func CellCenter(code string) (lat, lon float64, err error) {
	area, err := olc.Decode(fullCode(code))
	if err != nil {
		return 0, 0, fmt.Errorf("decoding cell %q: %w", code, err)
	}
	lat, lon = area.Center()
	return lat, lon, nil
}

// Cell8 returns the Cell8 ancestor of a finer code.
func Cell8(code string) string {
	if len(code) > Cell8Len {
		return code[:Cell8Len]
	}
	return code
}

// SubCells10 lists all 400 Cell10 children of a Cell8, in row order.
func SubCells10(cell8 string) []string {
	out := make([]string, 0, 400)
	for _, a := range CodeAlphabet {
		for _, b := range CodeAlphabet {
			out = append(out, cell8+string(a)+string(b))
		}
	}
	return out
}

// CellAt returns the bare cell code of the given even length
// containing a point.
func CellAt(lat, lon float64, length int) string {
	return strings.Replace(olc.Encode(lat, lon, length), "+", "", 1)
}

// Resolution returns the edge length in degrees for a cell code.
func Resolution(code string) float64 {
	switch len(code) {
	case 2:
		return ResolutionCell2
	case 4:
		return ResolutionCell4
	case 6:
		return ResolutionCell6
	case Cell8Len:
		return ResolutionCell8
	default:
		return ResolutionCell10
	}
}

// Neighborhood lists a cell and its eight neighbors at the same
// precision, center first.
func Neighborhood(code string) []string {
	lat, lon, err := CellCenter(code)
	if err != nil {
		return []string{code}
	}
	res := Resolution(code)
	out := make([]string, 0, 9)
	out = append(out, code)
	for _, dy := range []float64{0, -res, res} {
		for _, dx := range []float64{0, -res, res} {
			if dy == 0 && dx == 0 {
				continue
			}
			n := CellAt(lat+dy, lon+dx, len(code))
			if n != code {
				out = append(out, n)
			}
		}
	}
	return out
}

// ShiftedTime approximates local solar time for a cell without a
// timezone database. Each Cell2 column is about an hour wide; the
// second code character's distance from 'F' (the UTC band) gives the
// hour shift, plus 24 minutes per step to cover the remainder.
func ShiftedTime(code string, now time.Time) time.Time {
	if len(code) < 2 {
		return now
	}
	shift := strings.IndexByte(CodeAlphabet, code[1]) - 9
	return now.Add(time.Duration(shift)*time.Hour + time.Duration(shift*24)*time.Minute)
}
