package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eclipse-efbt/efbt-sub000/internal/ingest"
	"github.com/eclipse-efbt/efbt-sub000/internal/lineage"
	"github.com/eclipse-efbt/efbt-sub000/internal/schema"
	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

const maxIngestBytes = 8 << 20

func (s *Server) routes(r chi.Router) {
	r.Get("/healthz", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/trails", s.listTrails)
		r.Post("/trails", s.createTrail)
		r.Route("/trails/{trailID}", func(r chi.Router) {
			r.Get("/", s.getTrail)
			r.Delete("/", s.deleteTrail)
			r.Get("/lineage", s.trailLineage)
			r.Get("/summary", s.trailSummary)
			r.Get("/trace/{objectType}/{objectID}", s.trace)
		})
		r.Post("/ingest", s.ingest)
		r.Get("/schema", s.getSchema)
		r.Post("/schema/reload", s.reloadSchema)
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			s.respondJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listTrails(w http.ResponseWriter, r *http.Request) {
	page := core.Page{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}.Normalize()

	trails, err := s.store.ListTrails(r.Context(), page)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if trails == nil {
		trails = []core.Trail{}
	}
	s.respondJSON(w, r, http.StatusOK, map[string]any{
		"trails": trails,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

type createTrailRequest struct {
	Name             string         `json:"name"`
	ExecutionContext map[string]any `json:"execution_context"`
}

func (s *Server) createTrail(w http.ResponseWriter, r *http.Request) {
	var req createTrailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		s.respondError(w, r, &badRequestError{msg: "invalid JSON body: " + err.Error()}, 0)
		return
	}

	trail, err := s.recorder.CreateTrail(r.Context(), req.Name, req.ExecutionContext)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	s.respondJSON(w, r, http.StatusCreated, trail)
}

func (s *Server) getTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := s.trailID(w, r)
	if !ok {
		return
	}
	trail, err := s.store.GetTrail(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, id)
		return
	}
	s.respondJSON(w, r, http.StatusOK, trail)
}

func (s *Server) deleteTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := s.trailID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteTrail(r.Context(), id); err != nil {
		s.respondError(w, r, err, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) trailLineage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.trailID(w, r)
	if !ok {
		return
	}
	graph, err := s.engine.AssembleCompleteLineage(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, id)
		return
	}
	s.respondJSON(w, r, http.StatusOK, graph)
}

func (s *Server) trailSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := s.trailID(w, r)
	if !ok {
		return
	}
	sum, err := s.engine.Summarize(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, id)
		return
	}
	s.respondJSON(w, r, http.StatusOK, sum)
}

// trace answers ?direction=upstream (default), downstream or both.
func (s *Server) trace(w http.ResponseWriter, r *http.Request) {
	id, ok := s.trailID(w, r)
	if !ok {
		return
	}
	objectType, err := core.ParseObjectType(chi.URLParam(r, "objectType"))
	if err != nil {
		s.respondError(w, r, err, id)
		return
	}
	objectID, err := strconv.ParseInt(chi.URLParam(r, "objectID"), 10, 64)
	if err != nil {
		s.respondError(w, r, &badRequestError{msg: "invalid object id"}, id)
		return
	}

	var opts lineage.TraceOptions
	switch r.URL.Query().Get("direction") {
	case "", "upstream":
		opts.Upstream = true
	case "downstream":
		opts.Downstream = true
	case "both":
		opts.Upstream, opts.Downstream = true, true
	default:
		s.respondError(w, r, &badRequestError{msg: "direction must be upstream, downstream or both"}, id)
		return
	}

	trace, err := s.engine.Trace(r.Context(), id, objectType, objectID, opts)
	if err != nil {
		s.respondError(w, r, err, id)
		return
	}
	s.respondJSON(w, r, http.StatusOK, trace)
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err != nil {
		s.respondError(w, r, &badRequestError{msg: "failed to read body: " + err.Error()}, 0)
		return
	}
	doc, err := ingest.Parse(data)
	if err != nil {
		s.respondError(w, r, &badRequestError{msg: err.Error()}, 0)
		return
	}

	res, err := s.ingester.Apply(r.Context(), doc)
	if err != nil {
		s.respondError(w, r, err, res.TrailID)
		return
	}
	s.respondJSON(w, r, http.StatusCreated, res)
}

// schemaResponse is the registry snapshot as served to clients.
type schemaResponse struct {
	Version        string                 `json:"version"`
	LoadedAt       time.Time              `json:"loaded_at"`
	DatabaseTables []schema.DatabaseTable `json:"database_tables"`
	DerivedTables  []schema.DerivedTable  `json:"derived_tables"`
}

func newSchemaResponse(snap *schema.Snapshot) schemaResponse {
	resp := schemaResponse{
		Version:        snap.Version(),
		LoadedAt:       snap.LoadedAt(),
		DatabaseTables: snap.DatabaseTables(),
		DerivedTables:  snap.DerivedTables(),
	}
	if resp.DatabaseTables == nil {
		resp.DatabaseTables = []schema.DatabaseTable{}
	}
	if resp.DerivedTables == nil {
		resp.DerivedTables = []schema.DerivedTable{}
	}
	return resp
}

func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, r, http.StatusOK, newSchemaResponse(s.registry.Current()))
}

func (s *Server) reloadSchema(w http.ResponseWriter, r *http.Request) {
	snap, err := s.registry.Reload(r.Context())
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	s.respondJSON(w, r, http.StatusOK, newSchemaResponse(snap))
}

func (s *Server) trailID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "trailID"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, r, &badRequestError{msg: "invalid trail id"}, 0)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
