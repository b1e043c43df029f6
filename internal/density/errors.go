package density

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sells-group/popdensity-cli/internal/raster"
)

// ErrorKind classifies a failed query.
type ErrorKind string

const (
	// KindOutOfBounds: the coordinate lies outside the raster's geographic bounds.
	KindOutOfBounds ErrorKind = "coordinate_out_of_bounds"
	// KindPixelOutOfRange: the transformed pixel index falls outside the grid.
	KindPixelOutOfRange ErrorKind = "pixel_index_out_of_range"
	// KindFileMissing: no file is mapped for the requested year.
	KindFileMissing ErrorKind = "file_missing"
	// KindReadFailure: the dataset could not be opened or read.
	KindReadFailure ErrorKind = "read_failure"
)

// QueryError is the failure half of an Outcome. It carries enough context
// to explain the failure without the dataset at hand.
type QueryError struct {
	Kind       ErrorKind      `json:"kind"`
	Detail     string         `json:"detail"`
	Coordinate Coordinate     `json:"coordinate"`
	Bounds     *raster.Bounds `json:"bounds,omitempty"`
	Pixel      *PixelIndex    `json:"pixel,omitempty"`
	Path       string         `json:"path,omitempty"`
	Year       int            `json:"year,omitempty"`
	Err        error          `json:"-"`
}

func (e *QueryError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// MarshalJSON adds the rendered message, since Err itself is not serialisable.
func (e *QueryError) MarshalJSON() ([]byte, error) {
	type plain QueryError
	return json.Marshal(struct {
		*plain
		Message string `json:"message"`
	}{plain: (*plain)(e), Message: e.Error()})
}

// KindOf returns the ErrorKind of err, or "" if err is not a QueryError.
func KindOf(err error) ErrorKind {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return ""
}

// IsKind reports whether err is a QueryError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

func asQueryError(err error, coord Coordinate, path string) *QueryError {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}
	return &QueryError{
		Kind:       KindReadFailure,
		Detail:     "read dataset",
		Coordinate: coord,
		Path:       path,
		Err:        err,
	}
}
