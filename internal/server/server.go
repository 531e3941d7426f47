// Package server exposes the readers, the provisioner and the loader over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"ddbridge/internal/frame"
	"ddbridge/internal/loader"
	"ddbridge/internal/observability"
	"ddbridge/internal/provision"
	"ddbridge/internal/reader"
	"ddbridge/internal/schema"
	"ddbridge/pkg/errors"
)

// Config holds the server settings.
type Config struct {
	Addr string
	// MetadataDataset is used when a request does not name one.
	MetadataDataset string
	// Bucket receives staged files for uploads with JSON columns.
	Bucket string
	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout time.Duration
}

// Server routes requests to the core components.
type Server struct {
	config      Config
	reader      *reader.Reader
	provisioner *provision.Provisioner
	loader      *loader.Loader
	metrics     *observability.Metrics
	log         *observability.Logger
	router      *mux.Router
}

// New wires the routes.
func New(config Config, r *reader.Reader, p *provision.Provisioner, l *loader.Loader, metrics *observability.Metrics, log *observability.Logger) *Server {
	if log == nil {
		log = observability.NewNopLogger()
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		config:      config,
		reader:      r,
		provisioner: p,
		loader:      l,
		metrics:     metrics,
		log:         log.WithField("component", "server"),
		router:      mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/tables/{dataset}/{table}", s.handleDownload).Methods(http.MethodGet)
	v1.HandleFunc("/tables/{dataset}/{table}", s.handleCreateTable).Methods(http.MethodPut)
	v1.HandleFunc("/tables/{dataset}/{table}/info", s.handleTableInfo).Methods(http.MethodGet)
	v1.HandleFunc("/tables/{dataset}/{table}/rows", s.handleUpload).Methods(http.MethodPost)
	v1.HandleFunc("/views/{dataset}/{view}", s.handleCreateView).Methods(http.MethodPut)
	v1.HandleFunc("/metadata/{dataset}/{table}", s.handleMetadata).Methods(http.MethodGet)
	v1.HandleFunc("/domains/{dataset}/{domain}", s.handleDomain).Methods(http.MethodGet)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.config.Addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeNetworkUnavailable, "server failed").
			WithContext("addr", s.config.Addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		s.log.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.ObserveDuration("http "+r.Method+" "+route, start)
		s.log.WithFields(map[string]interface{}{
			"method":      r.Method,
			"route":       route,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request served")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "UP",
		"timestamp":      time.Now().UTC(),
		"metadata_cache": s.reader.MetadataCacheStats(),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	f, err := s.loader.Download(r.Context(), vars["dataset"], vars["table"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	records := f.Records()
	if records == nil {
		records = []frame.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"columns": f.Columns,
		"rows":    records,
	})
}

func (s *Server) handleTableInfo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	info, err := s.reader.GetTable(r.Context(), vars["dataset"], vars["table"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":      info.Ref.String(),
		"num_rows":  info.NumRows,
		"num_bytes": info.NumBytes,
		"is_view":   info.IsView,
		"schema":    info.Schema,
	})
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	metaDataset := s.metadataDataset(r)

	outcome, err := s.provisioner.CreateTable(r.Context(), metaDataset, vars["dataset"], vars["table"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if outcome == provision.OutcomeCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]string{"outcome": outcome.String()})
}

func (s *Server) handleCreateView(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		SQL string `json:"sql"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, errors.InvalidArgument("body", err.Error()))
		return
	}

	res := s.provisioner.CreateView(r.Context(), vars["dataset"], vars["view"], body.SQL)
	resp := map[string]interface{}{"created": res.Created}
	if res.Err != nil {
		resp["error"] = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	specs, err := s.reader.ReadMetadataSchema(r.Context(), vars["dataset"], vars["table"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fields":  specs,
		"columns": schema.Map(specs),
	})
}

func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	values, err := s.reader.ReadDomainValues(r.Context(), vars["dataset"], vars["domain"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"values": values})
}

// handleUpload loads an NDJSON body. The table schema is read from the
// warehouse and decides the column order and the load path. A chunk_size
// parameter selects the chunked insert path.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ctx := r.Context()
	q := r.URL.Query()

	intent, err := loader.ParseIntent(q.Get("write"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	cols, err := s.reader.ReadWarehouseSchema(ctx, vars["dataset"], vars["table"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(cols) == 0 {
		s.writeError(w, errors.New(errors.ErrCodeEmptySchema, "table has no readable schema").
			WithContext("table", vars["dataset"]+"."+vars["table"]))
		return
	}

	f, err := frame.ReadNDJSON(r.Body, schema.Names(cols))
	if err != nil {
		s.writeError(w, errors.InvalidArgument("body", err.Error()))
		return
	}

	bucket := q.Get("bucket")
	if bucket == "" {
		bucket = s.config.Bucket
	}
	req := loader.UploadRequest{
		Frame:   f,
		Schema:  cols,
		Dataset: vars["dataset"],
		Table:   vars["table"],
		Intent:  intent,
		Bucket:  bucket,
	}

	if raw := q.Get("chunk_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, errors.InvalidArgument("chunk_size", "must be an integer"))
			return
		}
		report, err := s.loader.UploadChunks(ctx, size, req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		status := http.StatusOK
		if len(report.Failed()) > 0 {
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, map[string]interface{}{
			"inserted": report.Inserted(),
			"failed":   len(report.Failed()),
			"chunks":   report.Chunks,
		})
		return
	}

	res, err := s.loader.Upload(ctx, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":       res.Path,
		"rows":       res.Rows,
		"uri":        res.URI,
		"table_rows": res.TableRows,
	})
}

func (s *Server) metadataDataset(r *http.Request) string {
	if v := r.URL.Query().Get("metadata"); v != "" {
		return v
	}
	return s.config.MetadataDataset
}

// statusFor maps an error code to an HTTP status.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidArgument, errors.ErrCodeUnmappedType, errors.ErrCodeEmptySchema, errors.ErrCodeMalformedQuery:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeAlreadyExists:
		return http.StatusConflict
	case errors.ErrCodeSQLPermission, errors.ErrCodeAuthenticationFailed:
		return http.StatusForbidden
	case errors.ErrCodeStagingFailed, errors.ErrCodeJobFailed, errors.ErrCodeServiceUnavailable, errors.ErrCodeConnectionFailed:
		return http.StatusBadGateway
	case errors.ErrCodeSQLTimeout, errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetErrorCode(err)
	status := statusFor(code)

	message := err.Error()
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		s.log.ErrorWithFields("request failed", map[string]interface{}{"code": code, "error": err})
	}
	writeJSON(w, status, map[string]string{
		"code":    string(code),
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"code":%q}`, errors.ErrCodeInternal)
	}
}
