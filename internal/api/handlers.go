package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/popdensity-cli/internal/density"
	"github.com/sells-group/popdensity-cli/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "years": len(s.catalog.Years())})
}

func (s *Server) handleYears(w http.ResponseWriter, _ *http.Request) {
	years := s.catalog.Years()
	if years == nil {
		years = []int{}
	}
	writeJSON(w, http.StatusOK, map[string][]int{"years": years})
}

// handleDensity answers a single-year query. Without year the latest
// available year is used.
func (s *Server) handleDensity(w http.ResponseWriter, r *http.Request) {
	coord, err := parseCoordinate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	available := s.catalog.Years()
	var year int
	if raw := r.URL.Query().Get("year"); raw != "" {
		year, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be an integer")
			return
		}
	} else if len(available) > 0 {
		year = available[len(available)-1]
	} else {
		writeError(w, http.StatusNotFound, "no years available")
		return
	}

	path, ok := s.catalog.Resolve(year)
	if !ok {
		writeError(w, http.StatusNotFound, "no data for year "+strconv.Itoa(year))
		return
	}

	result, err := s.querier.Query(r.Context(), path, coord)
	if err != nil {
		var qe *density.QueryError
		if errors.As(err, &qe) {
			qe.Year = year
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: qe})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if wantSave(r) {
		s.save(w, r, &density.BatchResult{
			Coordinate:     coord,
			RequestedYears: []int{year},
			Outcomes:       []density.Outcome{{Year: year, Result: result}},
			Succeeded:      []int{year},
			Failed:         []int{},
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Year int `json:"year"`
		*density.QueryResult
	}{Year: year, QueryResult: result})
}

// handleTrend runs the multi-year batch. Per-year failures are part of a 200
// response; only malformed parameters are rejected.
func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	coord, err := parseCoordinate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	years := s.catalog.Years()
	if raw := r.URL.Query().Get("years"); raw != "" {
		years, err = density.ParseYears(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if len(years) == 0 {
		writeError(w, http.StatusNotFound, "no years available")
		return
	}

	batch := s.orch.Run(r.Context(), coord, years)
	if wantSave(r) {
		s.save(w, r, batch)
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "query history is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run "+id+" not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get run", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "query history is disabled")
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{Kind: store.RunKind(q.Get("kind"))}
	for name, dst := range map[string]*int{"year": &filter.Year, "limit": &filter.Limit, "offset": &filter.Offset} {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 {
				writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
				return
			}
			*dst = v
		}
	}
	if q.Get("lat") != "" || q.Get("lon") != "" {
		coord, err := parseCoordinate(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Near = &coord
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// save stores the batch and reports its id in X-Run-ID. A storage failure
// is logged and does not fail the query.
func (s *Server) save(w http.ResponseWriter, r *http.Request, b *density.BatchResult) {
	if s.store == nil {
		return
	}
	rec, err := store.NewRunRecord(b)
	if err == nil {
		_, err = s.store.SaveRun(r.Context(), rec)
	}
	if err != nil {
		zap.L().Warn("api: save run", zap.Error(err))
		return
	}
	w.Header().Set("X-Run-ID", rec.ID)
}

func wantSave(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("save"))
	return v
}

func parseCoordinate(r *http.Request) (density.Coordinate, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return density.Coordinate{}, eris.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return density.Coordinate{}, eris.New("lon must be a number")
	}
	if lat < -90 || lat > 90 {
		return density.Coordinate{}, eris.New("lat must be within [-90, 90]")
	}
	if lon < -180 || lon > 180 {
		return density.Coordinate{}, eris.New("lon must be within [-180, 180]")
	}
	return density.Coordinate{Latitude: lat, Longitude: lon}, nil
}
