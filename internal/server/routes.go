package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/annserve/internal/ann"
	serrors "github.com/Aman-CERP/annserve/internal/errors"
	"github.com/Aman-CERP/annserve/internal/ooi"
	"github.com/Aman-CERP/annserve/pkg/version"
)

// maxBody caps query bodies; an embedding of a few thousand floats fits.
const maxBody = 4 << 20

type ctxKey struct{}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleNames)
	// Resource names may contain '/' under relative naming, so the action
	// is split off the end of the path rather than matched as a segment.
	mux.HandleFunc("/ann/{rest...}", s.handleResource)
	mux.HandleFunc("POST /refresh", s.handleRefreshAll)
	mux.HandleFunc("GET /cross", s.handleCross)
	mux.HandleFunc("GET /score", s.handleScore)
	mux.HandleFunc("GET /status", s.handleStatus)
	return mux
}

func (s *Server) handleNames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Names())
}

type statusResponse struct {
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Resources []string          `json:"resources"`
	Ready     int               `json:"ready"`
	Stores    []ooi.StoreHealth `json:"stores,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := statusResponse{
		Version:   version.Short(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Resources: s.registry.Names(),
		Stores:    s.opts.Stores.Health(),
	}
	for _, r := range s.registry.Resources() {
		if r.Status() == ann.StatusReady {
			st.Ready++
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	rest := r.PathValue("rest")
	var name, action string
	switch {
	case strings.HasSuffix(rest, "/query"):
		name, action = strings.TrimSuffix(rest, "/query"), "query"
	case strings.HasSuffix(rest, "/refresh"):
		name, action = strings.TrimSuffix(rest, "/refresh"), "refresh"
	default:
		name, action = strings.TrimSuffix(rest, "/"), "health"
	}

	res, ok := s.registry.Get(name)
	if !ok {
		s.writeError(w, r, ann.UnknownResource(name))
		return
	}

	switch {
	case action == "health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, res.Health())
	case action == "query" && r.Method == http.MethodGet:
		s.handleVector(w, r, res)
	case action == "query" && r.Method == http.MethodPost:
		s.handleQuery(w, r, res)
	case action == "refresh" && r.Method == http.MethodPost:
		if err := res.Load(r.Context(), true); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res.Health())
	default:
		allow := map[string]string{"health": "GET", "query": "GET, POST", "refresh": "POST"}[action]
		w.Header().Set("Allow", allow)
		s.writeStatus(w, r, http.StatusMethodNotAllowed, serrors.QueryError("method "+r.Method+" not allowed"))
	}
}

func (s *Server) handleVector(w http.ResponseWriter, r *http.Request, res *ann.Resource) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, r, serrors.QueryError("id is required"))
		return
	}
	vec, err := res.ResolveVector(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vec)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, res *ann.Resource) {
	var q ann.Query
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(&q); err != nil {
		s.writeError(w, r, serrors.New(serrors.ErrCodeMalformedQuery, "invalid query body: "+err.Error(), err))
		return
	}
	result, err := res.ResolveQuery(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type refreshResponse struct {
	Reloaded []string       `json:"reloaded"`
	Failed   []serrors.Body `json:"failed,omitempty"`
}

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	reloaded, err := s.registry.MaybeReloadAll(r.Context())
	resp := refreshResponse{Reloaded: reloaded}
	if resp.Reloaded == nil {
		resp.Reloaded = []string{}
	}
	for _, e := range unjoin(err) {
		resp.Failed = append(resp.Failed, serrors.ToBody(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func unjoin(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func (s *Server) handleCross(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	q := ann.CrossQuery{
		QName:       v.Get("q_name"),
		QID:         v.Get("q_id"),
		CatalogName: v.Get("catalog_name"),
	}
	var err error
	if q.K, err = intParam(v.Get("k")); err != nil {
		s.writeError(w, r, err)
		return
	}
	if q.InclDist, err = boolParam("incl_dist", v.Get("incl_dist")); err != nil {
		s.writeError(w, r, err)
		return
	}
	if q.InclScore, err = boolParam("incl_score", v.Get("incl_score")); err != nil {
		s.writeError(w, r, err)
		return
	}
	if raw := v.Get("thresh_score"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeError(w, r, serrors.QueryError("thresh_score must be a number"))
			return
		}
		q.ThreshScore = &f
	}

	result, err := s.cross.CrossQuery(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	c1, c2 := v.Get("catalog_1"), v.Get("catalog_2")
	ids1, ids2 := splitIDs(v.Get("ids_1")), splitIDs(v.Get("ids_2"))
	if c1 == "" || c2 == "" || len(ids1) == 0 || len(ids2) == 0 {
		s.writeError(w, r, serrors.QueryError("catalog_1, ids_1, catalog_2 and ids_2 are required"))
		return
	}
	out, err := ann.Similarity(r.Context(), s.registry, c1, ids1, c2, ids2)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func splitIDs(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, serrors.QueryError("k is required")
	}
	k, err := strconv.Atoi(raw)
	if err != nil {
		return 0, serrors.QueryError("k must be an integer")
	}
	return k, nil
}

func boolParam(name, raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, serrors.QueryError(name + " must be a boolean")
	}
	return b, nil
}

// statusFor maps error codes to HTTP status codes.
func statusFor(err error) int {
	switch serrors.GetCode(err) {
	case serrors.ErrCodeMalformedQuery, serrors.ErrCodeDimensionMismatch, serrors.ErrCodeMetricUnsupported:
		return http.StatusBadRequest
	case serrors.ErrCodeUnknownResource, serrors.ErrCodeOutOfIndex, serrors.ErrCodeVectorNotFound:
		return http.StatusNotFound
	case serrors.ErrCodeLoadFailed:
		return http.StatusBadGateway
	case serrors.ErrCodeStalenessCheck, serrors.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error serrors.Body `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeStatus(w, r, statusFor(err), err)
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	attrs := append(serrors.FormatForLog(err),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("request_id", requestID(r)))
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", attrs...)
	} else {
		s.log.Debug("request rejected", attrs...)
	}
	writeJSON(w, status, errorResponse{Error: serrors.ToBody(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestID tags each request with an id, echoed in X-Request-ID, and
// logs its completion.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(contextWithRequestID(r.Context(), id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", id))
	})
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}
