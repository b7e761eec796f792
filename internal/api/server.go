// Package api exposes the engine over HTTP. Routes are thin: decode,
// delegate to the engine, map the result or error kind onto the wire.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gantry-io/gantry/internal/engine"
	"github.com/gantry-io/gantry/internal/logging"
)

type Server struct {
	engine *engine.Engine
	log    *logging.Logger
	http   *http.Server
}

func NewServer(addr string, eng *engine.Engine, logger *logging.Logger) *Server {
	s := &Server{
		engine: eng,
		log:    logger,
	}

	router := mux.NewRouter()
	s.registerRoutes(router)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.requestLog(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(router *mux.Router) {
	router.HandleFunc("/projects", s.createProject).Methods(http.MethodPost)
	router.HandleFunc("/projects/{projectID}", s.getProject).Methods(http.MethodGet)
	router.HandleFunc("/projects/{projectID}", s.deleteProject).Methods(http.MethodDelete)
	router.HandleFunc("/projects/{projectID}/subprojects", s.createSubproject).Methods(http.MethodPost)
	router.HandleFunc("/projects/{projectID}/subprojects", s.listSubprojects).Methods(http.MethodGet)
	router.HandleFunc("/projects/{projectID}/subprojects/active", s.listActiveSubprojects).Methods(http.MethodGet)
	router.HandleFunc("/projects/{projectID}/events", s.listProjectEvents).Methods(http.MethodGet)

	router.HandleFunc("/subprojects/{subprojectID}", s.getSubproject).Methods(http.MethodGet)
	router.HandleFunc("/subprojects/{subprojectID}", s.renameSubproject).Methods(http.MethodPatch)
	router.HandleFunc("/subprojects/{subprojectID}", s.deleteSubproject).Methods(http.MethodDelete)

	router.HandleFunc("/authors", s.createAuthor).Methods(http.MethodPost)
	router.HandleFunc("/authors/{authorID}", s.getAuthor).Methods(http.MethodGet)

	router.HandleFunc("/tasks", s.createTask).Methods(http.MethodPost)
	router.HandleFunc("/tasks", s.listTasks).Methods(http.MethodGet)
	router.HandleFunc("/tasks/actionable", s.listActionable).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{taskID}", s.getTask).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{taskID}", s.updateTask).Methods(http.MethodPatch)
	router.HandleFunc("/tasks/{taskID}", s.deleteTask).Methods(http.MethodDelete)
	router.HandleFunc("/tasks/{taskID}/dependencies", s.addDependency).Methods(http.MethodPost)
	router.HandleFunc("/tasks/{taskID}/dependencies", s.listDependencies).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{taskID}/dependencies/{blockingID}", s.removeDependency).Methods(http.MethodDelete)
	router.HandleFunc("/tasks/{taskID}/ownership", s.takeOwnership).Methods(http.MethodPost)
	router.HandleFunc("/tasks/{taskID}/ownership", s.releaseOwnership).Methods(http.MethodDelete)
	router.HandleFunc("/tasks/{taskID}/progress", s.getProgress).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{taskID}/events", s.listTaskEvents).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{taskID}/comments", s.addComment).Methods(http.MethodPost)
	router.HandleFunc("/tasks/{taskID}/comments", s.listComments).Methods(http.MethodGet)
}

// requestLog tags each request with an ID and logs method, path, and
// duration at debug level.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debugf("request id=%s method=%s path=%s duration=%s",
			reqID, r.Method, r.URL.Path, time.Since(start))
	})
}

// Start serves until ListenAndServe returns. It blocks.
func (s *Server) Start() error {
	s.log.Infof("listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
