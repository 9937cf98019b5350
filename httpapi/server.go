// Package httpapi exposes the reaction store over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/events"
	"github.com/coastlinevibe/tide/lifecycle"
	"github.com/coastlinevibe/tide/metrics"
	"github.com/coastlinevibe/tide/reaction"
)

type Config struct {
	// Store handles the reaction operations. Required.
	Store *reaction.Store

	// Lifecycle receives activity and connectivity signals. Required.
	Lifecycle *lifecycle.Runner

	// Subscriber feeds the event stream endpoint. Optional; without it
	// the stream endpoint returns 503.
	Subscriber events.Subscriber

	// Registry, when set, mounts the Prometheus endpoint on /metrics.
	Registry *prometheus.Registry

	Logger tide.LoggerAdapter
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = tide.NopLogger{}
	}
}

func (c Config) validate() error {
	if c.Store == nil {
		return errors.New("missing store")
	}
	if c.Lifecycle == nil {
		return errors.New("missing lifecycle runner")
	}
	return nil
}

type server struct {
	config Config
	logger tide.LoggerAdapter
}

// NewHandler builds the HTTP routes for the reaction service.
func NewHandler(config Config) (http.Handler, error) {
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid httpapi config")
	}

	s := &server{
		config: config,
		logger: config.Logger,
	}

	router := chi.NewRouter()
	router.Use(logRequests(config.Logger))

	router.Route("/api", func(r chi.Router) {
		r.Use(touchActivity(config.Lifecycle))

		r.Post("/posts/{postID}/reactions", s.addReaction)
		r.Get("/posts/{postID}/reactions", s.listReactions)
		r.Get("/posts/{postID}/reactions/mine", s.myReaction)
		r.Delete("/reactions/{reactionID}", s.removeReaction)
		r.Get("/reactions/catalog", s.catalog)

		r.Post("/activity", s.activity)
		r.Put("/connectivity", s.connectivity)

		r.Get("/stream", s.stream)
	})

	if config.Registry != nil {
		router.Get("/metrics", metrics.Handler(config.Registry).ServeHTTP)
	}

	return router, nil
}

type addReactionRequest struct {
	Code     string            `json:"code"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type addReactionResponse struct {
	Toggled  bool             `json:"toggled"`
	Reaction *reaction.Record `json:"reaction,omitempty"`
}

func (s *server) addReaction(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	var req addReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		s.writeError(w, http.StatusBadRequest, "missing reaction code")
		return
	}

	record, err := s.config.Store.Add(r.Context(), postID, req.Code, req.Metadata)
	switch {
	case errors.Is(err, reaction.ErrUnknownReaction):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, reaction.ErrStoreOffline):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if record == nil {
		s.writeJSON(w, http.StatusOK, addReactionResponse{Toggled: true})
		return
	}

	s.writeJSON(w, http.StatusCreated, addReactionResponse{Reaction: record})
}

func (s *server) removeReaction(w http.ResponseWriter, r *http.Request) {
	if err := s.config.Store.Remove(chi.URLParam(r, "reactionID")); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type listReactionsResponse struct {
	Reactions []reaction.Record `json:"reactions"`
	Count     int               `json:"count"`
}

func (s *server) listReactions(w http.ResponseWriter, r *http.Request) {
	records := s.config.Store.ForPost(chi.URLParam(r, "postID"))

	s.writeJSON(w, http.StatusOK, listReactionsResponse{
		Reactions: records,
		Count:     len(records),
	})
}

type myReactionResponse struct {
	Reacted bool `json:"reacted"`
}

func (s *server) myReaction(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		s.writeError(w, http.StatusBadRequest, "missing code query parameter")
		return
	}

	reacted := s.config.Store.HasUserReacted(chi.URLParam(r, "postID"), code)
	s.writeJSON(w, http.StatusOK, myReactionResponse{Reacted: reacted})
}

func (s *server) catalog(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.config.Store.Catalog().Assets())
}

func (s *server) activity(w http.ResponseWriter, _ *http.Request) {
	s.config.Lifecycle.Touch()
	w.WriteHeader(http.StatusNoContent)
}

type connectivityRequest struct {
	Online bool `json:"online"`
}

func (s *server) connectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.config.Lifecycle.Connectivity().Set(req.Online)
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Cannot write response", err, nil)
	}
}
