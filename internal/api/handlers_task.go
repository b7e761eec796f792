package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/gantry-io/gantry/internal/engine"
	"github.com/gantry-io/gantry/internal/model"
	"github.com/gantry-io/gantry/internal/store"
)

type taskCreateRequest struct {
	ProjectID      int64      `json:"project_id"`
	SubprojectID   *int64     `json:"subproject_id"`
	ParentID       *int64     `json:"parent_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Tag            string     `json:"tag"`
	Priority       string     `json:"priority"`
	Status         string     `json:"status"`
	AuthorID       *int64     `json:"author_id"`
	OwnerID        *int64     `json:"owner_id"`
	DueDate        *time.Time `json:"due_date"`
	EstimatedHours *float64   `json:"estimated_hours"`
	ActualHours    *float64   `json:"actual_hours"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request payload")
		return
	}

	view, err := s.engine.CreateTask(r.Context(), engine.CreateTaskRequest{
		ProjectID:      req.ProjectID,
		SubprojectID:   req.SubprojectID,
		ParentID:       req.ParentID,
		Title:          req.Title,
		Description:    req.Description,
		Tag:            req.Tag,
		Priority:       req.Priority,
		Status:         req.Status,
		AuthorID:       req.AuthorID,
		OwnerID:        req.OwnerID,
		DueDate:        req.DueDate,
		EstimatedHours: req.EstimatedHours,
		ActualHours:    req.ActualHours,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	view, err := s.engine.GetTask(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// taskUpdateRequest distinguishes absent fields from explicit nulls for the
// nullable columns: a missing key leaves the field alone, a JSON null
// clears it.
type taskUpdateRequest struct {
	Title          *string         `json:"title"`
	Description    *string         `json:"description"`
	Tag            *string         `json:"tag"`
	Priority       *string         `json:"priority"`
	Status         *string         `json:"status"`
	OwnerID        json.RawMessage `json:"owner_id"`
	ParentID       json.RawMessage `json:"parent_id"`
	SubprojectID   json.RawMessage `json:"subproject_id"`
	DueDate        json.RawMessage `json:"due_date"`
	EstimatedHours json.RawMessage `json:"estimated_hours"`
	ActualHours    json.RawMessage `json:"actual_hours"`
	ActorID        *int64          `json:"actor_id"`
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	var req taskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request payload")
		return
	}

	upd := engine.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Tag:         req.Tag,
		Priority:    req.Priority,
		Status:      req.Status,
		ActorID:     req.ActorID,
	}
	var err error
	if upd.Owner, err = optional[int64](req.OwnerID); err != nil {
		badRequest(w, "owner_id must be a number or null")
		return
	}
	if upd.Parent, err = optional[int64](req.ParentID); err != nil {
		badRequest(w, "parent_id must be a number or null")
		return
	}
	if upd.Subproject, err = optional[int64](req.SubprojectID); err != nil {
		badRequest(w, "subproject_id must be a number or null")
		return
	}
	if upd.DueDate, err = optional[time.Time](req.DueDate); err != nil {
		badRequest(w, "due_date must be an RFC3339 timestamp or null")
		return
	}
	if upd.EstimatedHours, err = optional[float64](req.EstimatedHours); err != nil {
		badRequest(w, "estimated_hours must be a number or null")
		return
	}
	if upd.ActualHours, err = optional[float64](req.ActualHours); err != nil {
		badRequest(w, "actual_hours must be a number or null")
		return
	}

	view, err := s.engine.UpdateTask(r.Context(), id, upd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	if err := s.engine.DeleteTask(r.Context(), id, actorFromQuery(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	f, ok := taskFilterFromQuery(w, r)
	if !ok {
		return
	}
	views, err := s.engine.ListTasks(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) listActionable(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(r.URL.Query().Get("project"), 10, 64)
	if err != nil {
		badRequest(w, "project query parameter is required")
		return
	}
	var subproject, owner *int64
	if v := r.URL.Query().Get("subproject"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(w, "subproject must be a number")
			return
		}
		subproject = &id
	}
	if v := r.URL.Query().Get("owner"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(w, "owner must be a number")
			return
		}
		owner = &id
	}

	views, err := s.engine.ListActionable(r.Context(), projectID, subproject, owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	progress, err := s.engine.ComputeProgress(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

type commentRequest struct {
	AuthorID *int64 `json:"author_id"`
	Body     string `json:"body"`
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request payload")
		return
	}
	comment, err := s.engine.AddComment(r.Context(), id, req.AuthorID, req.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	comments, err := s.engine.Comments(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// taskFilterFromQuery builds the listing filter. The subproject parameter
// accepts the sentinel "none" for tasks without a sub-project.
func taskFilterFromQuery(w http.ResponseWriter, r *http.Request) (store.TaskFilter, bool) {
	var f store.TaskFilter
	q := r.URL.Query()

	for _, p := range []struct {
		name string
		dst  **int64
	}{
		{"project", &f.ProjectID},
		{"owner", &f.OwnerID},
	} {
		if v := q.Get(p.name); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				badRequest(w, p.name+" must be a number")
				return f, false
			}
			*p.dst = &id
		}
	}
	if v := q.Get("subproject"); v != "" {
		if v == "none" {
			f.SubprojectNone = true
		} else {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				badRequest(w, "subproject must be a number or \"none\"")
				return f, false
			}
			f.SubprojectID = &id
		}
	}
	if v := q.Get("status"); v != "" {
		status, ok := model.ParseStatus(v)
		if !ok {
			s := &engine.Error{Code: engine.CodeInvalidStatus, Message: "unknown status " + strconv.Quote(v)}
			writeJSON(w, http.StatusBadRequest, errorPayload{Error: s.Error(), Code: s.Code})
			return f, false
		}
		f.Status = &status
	}
	if v := q.Get("tag"); v != "" {
		tag, ok := model.ParseTag(v)
		if !ok {
			badRequest(w, "unknown tag "+strconv.Quote(v))
			return f, false
		}
		f.Tag = &tag
	}
	if v := q.Get("priority"); v != "" {
		priority, ok := model.ParsePriority(v)
		if !ok {
			badRequest(w, "unknown priority "+strconv.Quote(v))
			return f, false
		}
		f.Priority = &priority
	}
	f.Search = q.Get("q")
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"due_before", &f.DueBefore},
		{"due_after", &f.DueAfter},
	} {
		if v := q.Get(p.name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				badRequest(w, p.name+" must be an RFC3339 timestamp")
				return f, false
			}
			*p.dst = &t
		}
	}
	f.Overdue = q.Get("overdue") == "true"

	return f, true
}

// optional decodes a possibly-absent, possibly-null JSON field.
func optional[T any](raw json.RawMessage) (engine.Opt[T], error) {
	if raw == nil {
		return engine.Opt[T]{}, nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return engine.Opt[T]{Set: true}, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return engine.Opt[T]{}, err
	}
	return engine.Opt[T]{Set: true, Value: &v}, nil
}

// pathID parses a numeric path variable, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		badRequest(w, name+" must be a number")
		return 0, false
	}
	return id, true
}

// actorFromQuery reads the optional acting author from the actor query
// parameter, for verbs without a request body.
func actorFromQuery(r *http.Request) *int64 {
	v := r.URL.Query().Get("actor")
	if v == "" {
		return nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
