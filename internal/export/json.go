package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/popdensity-cli/internal/density"
)

// jsonReport adds a summary block to a batch.
type jsonReport struct {
	GeneratedAt time.Time `json:"generated_at"`
	Summary     summary   `json:"summary"`
	*density.BatchResult
}

type summary struct {
	Requested      int     `json:"requested"`
	Succeeded      int     `json:"succeeded"`
	Failed         int     `json:"failed"`
	SuccessRatePct float64 `json:"success_rate_pct"`
}

var now = time.Now

func newJSONReport(b *density.BatchResult) jsonReport {
	return jsonReport{
		GeneratedAt: now().UTC(),
		Summary: summary{
			Requested:      len(b.RequestedYears),
			Succeeded:      len(b.Succeeded),
			Failed:         len(b.Failed),
			SuccessRatePct: b.SuccessRate(),
		},
		BatchResult: b,
	}
}

// WriteJSON writes one report object, or an array when given several batches.
func WriteJSON(w io.Writer, batches ...*density.BatchResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	var v any
	if len(batches) == 1 {
		v = newJSONReport(batches[0])
	} else {
		reports := make([]jsonReport, 0, len(batches))
		for _, b := range batches {
			reports = append(reports, newJSONReport(b))
		}
		v = reports
	}
	return eris.Wrap(enc.Encode(v), "export: encode json")
}
