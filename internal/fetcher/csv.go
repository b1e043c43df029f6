package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // 0 = none
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads CSV rows onto a channel. The caller must drain the row
// channel; at most one error arrives on the error channel. Both close when
// reading ends.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSVPoints reads a point list whose first row names the columns.
func ReadCSVPoints(ctx context.Context, r io.Reader, opts CSVOptions) ([]Point, error) {
	rowCh, errCh := StreamCSV(ctx, r, opts)

	var (
		cols    columns
		points  []Point
		line    int
		readErr error
	)
	for row := range rowCh {
		if readErr != nil {
			continue
		}
		if line == 0 {
			cols, readErr = findColumns(row)
			line++
			continue
		}
		p, ok, err := cols.parse(row, line)
		line++
		if err != nil {
			readErr = err
			continue
		}
		if ok {
			points = append(points, p)
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	if line == 0 {
		return nil, eris.New("points: no header row")
	}
	return points, nil
}
