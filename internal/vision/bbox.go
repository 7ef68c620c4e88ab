// File: internal/vision/bbox.go
package vision

import (
	"regexp"
	"strconv"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
)

// quadRegex matches a bracketed list of four non-negative integers, e.g.
// "[120, 40, 380, 88]".
var quadRegex = regexp.MustCompile(`\[\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*\]`)

// ExtractBoundingBox pulls the last bracketed quadruple out of free model
// output. Models often restate the question or show an example before the
// real answer, so the last match wins. The result is only returned when it
// is a valid normalized box.
func ExtractBoundingBox(raw string) (schemas.BoundingBox, bool) {
	matches := quadRegex.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return schemas.BoundingBox{}, false
	}
	last := matches[len(matches)-1]

	var coords [4]int
	for i := range coords {
		n, err := strconv.Atoi(last[i+1])
		if err != nil {
			// Only possible on overflow.
			return schemas.BoundingBox{}, false
		}
		coords[i] = n
	}

	box := schemas.BoundingBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}
	if !box.Valid() {
		return schemas.BoundingBox{}, false
	}
	return box, true
}
