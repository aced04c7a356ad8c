package http

import (
	"net/http"
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/kdindex/kdtree"
	"github.com/golang/geo/r3"
	"github.com/segmentio/encoding/json"
)

const maxNeighbors = 1024

// TreeStats describes the state of an index.
type TreeStats struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Depth  int    `json:"depth"`
	Valid  *bool  `json:"valid,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PointResponse is a point returned by a query.
type PointResponse struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// HandleTreeStats serves the stats of idx. The structure of the tree is
// checked when the validate query parameter is true.
func HandleTreeStats(idx kdtree.Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := TreeStats{
			Name:   idx.Name(),
			Points: idx.Len(),
			Depth:  idx.Depth(),
		}

		if validate, _ := strconv.ParseBool(r.URL.Query().Get("validate")); validate {
			err := idx.Validate()
			valid := err == nil
			stats.Valid = &valid
			if err != nil {
				stats.Error = err.Error()
			}
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

// HandleNearest serves the k nearest points of the position given by the x,
// y and z query parameters.
func HandleNearest(idx kdtree.Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		pos, err := parseVector(q.Get("x"), q.Get("y"), q.Get("z"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		k := 1
		if v := q.Get("k"); v != "" {
			if k, err = strconv.Atoi(v); err != nil || k < 0 || k > maxNeighbors {
				writeError(w, http.StatusBadRequest, errors.New("invalid neighbor count").
					WithType(kdtree.ErrTypeInvalidArgument).
					WithTag("k", v))
				return
			}
		}

		points, err := idx.KNearest(kdtree.PointFromVector(pos, -1), k)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, pointsResponse(points))
	}
}

// HandleRange serves the points inside the box given by the min_x, min_y,
// min_z, max_x, max_y and max_z query parameters.
func HandleRange(idx kdtree.Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		lo, err := parseVector(q.Get("min_x"), q.Get("min_y"), q.Get("min_z"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		hi, err := parseVector(q.Get("max_x"), q.Get("max_y"), q.Get("max_z"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		points, err := idx.RangeQuery(kdtree.Box{Min: lo, Max: hi})
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, pointsResponse(points))
	}
}

func parseVector(x, y, z string) (r3.Vector, error) {
	var v r3.Vector
	var err error

	for _, c := range []struct {
		name  string
		value string
		dst   *float64
	}{
		{name: "x", value: x, dst: &v.X},
		{name: "y", value: y, dst: &v.Y},
		{name: "z", value: z, dst: &v.Z},
	} {
		if *c.dst, err = strconv.ParseFloat(c.value, 64); err != nil {
			return r3.Vector{}, errors.New("invalid coordinate").
				WithType(kdtree.ErrTypeInvalidArgument).
				WithTag("axis", c.name).
				WithTag("value", c.value).
				Wrap(err)
		}
	}
	return v, nil
}

func pointsResponse(points []kdtree.Point) []PointResponse {
	res := make([]PointResponse, len(points))
	for i, p := range points {
		res[i] = PointResponse{
			Index: p.Index,
			X:     p.X,
			Y:     p.Y,
			Z:     p.Z,
		}
	}
	return res
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.Warn(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{
		Type:  errors.Type(err),
		Error: err.Error(),
	})
}
