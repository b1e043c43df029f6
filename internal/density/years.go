package density

import (
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ParseYears reads a comma-separated year list such as "2010,2015,2020".
// An element "2010-2015" expands to every year of the range. The result is
// sorted without duplicates.
func ParseYears(raw string) ([]int, error) {
	var years []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			from, err1 := strconv.Atoi(strings.TrimSpace(lo))
			to, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil || from > to || to-from > 1000 {
				return nil, eris.Errorf("density: invalid year range %q", part)
			}
			for y := from; y <= to; y++ {
				years = append(years, y)
			}
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil {
			return nil, eris.Errorf("density: invalid year %q", part)
		}
		years = append(years, y)
	}
	if len(years) == 0 {
		return nil, eris.New("density: no years given")
	}
	slices.Sort(years)
	return slices.Compact(years), nil
}
