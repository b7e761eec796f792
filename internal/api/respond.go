package api

import (
	"encoding/json"
	"net/http"

	"github.com/gantry-io/gantry/internal/engine"
)

// errorPayload is the wire form of every failure: a human message plus the
// machine code callers branch on.
type errorPayload struct {
	Error string      `json:"error"`
	Code  engine.Code `json:"code"`
}

var statusByCode = map[engine.Code]int{
	engine.CodeNotFound:                   http.StatusNotFound,
	engine.CodeEdgeNotFound:               http.StatusNotFound,
	engine.CodeInvalidStatus:              http.StatusBadRequest,
	engine.CodeValidation:                 http.StatusBadRequest,
	engine.CodeSelfDependency:             http.StatusBadRequest,
	engine.CodeCrossProjectReference:      http.StatusBadRequest,
	engine.CodeDuplicateEdge:              http.StatusConflict,
	engine.CodeCycleDetected:              http.StatusConflict,
	engine.CodeOwnershipConflict:          http.StatusConflict,
	engine.CodeDefaultSubprojectProtected: http.StatusConflict,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an engine failure to its HTTP status. Errors without an
// engine code are store or IO faults and surface as 500 without detail.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := engine.CodeOf(err)
	if code == "" {
		s.log.Errorf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{
			Error: "internal error",
			Code:  "internal",
		})
		return
	}

	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorPayload{Error: err.Error(), Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorPayload{Error: msg, Code: engine.CodeValidation})
}
