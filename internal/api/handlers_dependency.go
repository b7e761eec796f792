package api

import (
	"encoding/json"
	"net/http"
)

type dependencyRequest struct {
	BlockingID int64  `json:"blocking_id"`
	ActorID    *int64 `json:"actor_id"`
}

// addDependency registers that blocking_id must close before the path task
// is actionable.
func (s *Server) addDependency(w http.ResponseWriter, r *http.Request) {
	blockedID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	var req dependencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request payload")
		return
	}

	edge, err := s.engine.AddDependency(r.Context(), req.BlockingID, blockedID, req.ActorID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (s *Server) removeDependency(w http.ResponseWriter, r *http.Request) {
	blockedID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	blockingID, ok := pathID(w, r, "blockingID")
	if !ok {
		return
	}

	if err := s.engine.RemoveDependency(r.Context(), blockingID, blockedID, actorFromQuery(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDependencies(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	deps, err := s.engine.Dependencies(r.Context(), taskID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

type ownershipRequest struct {
	OwnerID int64 `json:"owner_id"`
	Force   bool  `json:"force"`
}

func (s *Server) takeOwnership(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	var req ownershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request payload")
		return
	}

	view, err := s.engine.TakeOwnership(r.Context(), taskID, req.OwnerID, req.Force)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) releaseOwnership(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	view, err := s.engine.ReleaseOwnership(r.Context(), taskID, actorFromQuery(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
