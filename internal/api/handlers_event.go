package api

import (
	"net/http"
	"strconv"

	"github.com/gantry-io/gantry/internal/engine"
)

func eventQueryFromRequest(w http.ResponseWriter, r *http.Request) (engine.EventQuery, bool) {
	var q engine.EventQuery
	params := r.URL.Query()
	q.Type = params.Get("type")

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &q.Limit},
		{"offset", &q.Offset},
	} {
		v := params.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, p.name+" must be a non-negative number")
			return q, false
		}
		*p.dst = n
	}
	return q, true
}

func (s *Server) listTaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	q, ok := eventQueryFromRequest(w, r)
	if !ok {
		return
	}
	page, err := s.engine.TaskEvents(r.Context(), taskID, q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) listProjectEvents(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	q, ok := eventQueryFromRequest(w, r)
	if !ok {
		return
	}
	page, err := s.engine.ProjectEvents(r.Context(), projectID, q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
