// Package api exposes a Store over a JSON HTTP interface so that tenant sites
// without a Go runtime can read and write their collections.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/asaidimu/go-repodb/core/persistence"
	"github.com/asaidimu/go-repodb/core/query"
	"github.com/asaidimu/go-repodb/core/remote"
	"github.com/asaidimu/go-repodb/core/schema"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// APIResponse is the envelope of every response.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details string         `json:"details,omitempty"`
	Issues  []schema.Issue `json:"issues,omitempty"`
}

// FilterRequest is one condition of a QueryRequest.
type FilterRequest struct {
	Field    string                   `json:"field"`
	Operator query.ComparisonOperator `json:"operator"`
	Value    any                      `json:"value,omitempty"`
}

// SortRequest orders the results of a QueryRequest.
type SortRequest struct {
	Field     string              `json:"field"`
	Direction query.SortDirection `json:"direction,omitempty"`
}

// QueryRequest is the body of a query call. Filters are applied in order,
// then the sort, then the projection.
type QueryRequest struct {
	Filters []FilterRequest `json:"filters,omitempty"`
	Sort    *SortRequest    `json:"sort,omitempty"`
	Fields  []string        `json:"fields,omitempty"`
	Fresh   bool            `json:"fresh,omitempty"`
}

// CollectionListResponse lists the collections the store has cached.
type CollectionListResponse struct {
	Collections []string `json:"collections"`
}

// APIServer routes requests to the tenant views of a Store.
type APIServer struct {
	store   *persistence.Store
	logger  *zap.Logger
	router  *mux.Router
	timeout time.Duration
}

// NewAPIServer creates a server over store. Each request is bounded by
// timeout; zero means no bound beyond the client's own.
func NewAPIServer(store *persistence.Store, logger *zap.Logger, timeout time.Duration) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &APIServer{
		store:   store,
		logger:  logger,
		router:  mux.NewRouter(),
		timeout: timeout,
	}
	s.setupRoutes()
	return s
}

func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *APIServer) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/collections", s.handleCollectionsList).Methods(http.MethodGet)

	site := api.PathPrefix("/{tenant}/{collection}").Subrouter()
	site.HandleFunc("", s.handleList).Methods(http.MethodGet)
	site.HandleFunc("", s.handleInsert).Methods(http.MethodPost)
	site.HandleFunc("/_query", s.handleQuery).Methods(http.MethodPost)
	site.HandleFunc("/_audit", s.handleAudit).Methods(http.MethodGet)
	site.HandleFunc("/{key}", s.handleGetItem).Methods(http.MethodGet)
	site.HandleFunc("/{key}", s.handleUpdate).Methods(http.MethodPatch)
	site.HandleFunc("/{key}", s.handleDelete).Methods(http.MethodDelete)
}

// target resolves the tenant view and collection of a request, writing the
// error response itself when the tenant is unknown.
func (s *APIServer) target(w http.ResponseWriter, r *http.Request) (*persistence.TenantStore, string, bool) {
	vars := mux.Vars(r)
	tenant, err := persistence.ParseTenant(vars["tenant"])
	if err != nil {
		s.writeErrorResponse(w, http.StatusNotFound, "UNKNOWN_TENANT", fmt.Sprintf("Tenant '%s' not found", vars["tenant"]), "")
		return nil, "", false
	}
	return s.store.Tenant(tenant), vars["collection"], true
}

func (s *APIServer) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.timeout)
}

func (s *APIServer) handleCollectionsList(w http.ResponseWriter, r *http.Request) {
	s.writeSuccessResponse(w, http.StatusOK, CollectionListResponse{Collections: s.store.Collections()})
}

func (s *APIServer) handleList(w http.ResponseWriter, r *http.Request) {
	site, collection, ok := s.target(w, r)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	ctx, cancel := s.requestContext(r)
	defer cancel()
	records, err := site.Get(ctx, collection, force)
	if err != nil {
		s.writeStoreError(w, "READ_FAILED", err)
		return
	}
	s.writeSuccessResponse(w, http.StatusOK, records)
}

func (s *APIServer) handleGetItem(w http.ResponseWriter, r *http.Request) {
	site, collection, ok := s.target(w, r)
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]

	ctx, cancel := s.requestContext(r)
	defer cancel()
	// GetItem only consults the cache, so make sure the collection is loaded.
	if _, err := site.Get(ctx, collection, false); err != nil {
		s.writeStoreError(w, "READ_FAILED", err)
		return
	}
	record, err := site.GetItem(ctx, collection, key)
	if err != nil {
		s.writeStoreError(w, "READ_FAILED", err)
		return
	}
	if record == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "RECORD_NOT_FOUND", fmt.Sprintf("Record '%s' not found", key), "")
		return
	}
	s.writeSuccessResponse(w, http.StatusOK, record)
}

func (s *APIServer) handleInsert(w http.ResponseWriter, r *http.Request) {
	site, collection, ok := s.target(w, r)
	if !ok {
		return
	}
	var doc schema.Document
	if err := s.parseJSONBody(r, &doc); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON in request body", err.Error())
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	record, err := site.Insert(ctx, collection, doc)
	if err != nil {
		s.writeStoreError(w, "CREATE_FAILED", err)
		return
	}
	s.writeSuccessResponse(w, http.StatusCreated, record)
}

func (s *APIServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	site, collection, ok := s.target(w, r)
	if !ok {
		return
	}
	var patch schema.Document
	if err := s.parseJSONBody(r, &patch); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON in request body", err.Error())
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	record, err := site.Update(ctx, collection, mux.Vars(r)["key"], patch)
	if err != nil {
		s.writeStoreError(w, "UPDATE_FAILED", err)
		return
	}
	s.writeSuccessResponse(w, http.StatusOK, record)
}

func (s *APIServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	site, collection, ok := s.target(w, r)
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]

	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := site.Delete(ctx, collection, key); err != nil {
		s.writeStoreError(w, "DELETE_FAILED", err)
		return
	}
	s.writeSuccessResponse(w, http.StatusOK, map[string]string{"deleted": key})
}

func (s *APIServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	site, collection, ok := s.target(w, r)
	if !ok {
		return
	}
	var req QueryRequest
	if err := s.parseJSONBody(r, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON in request body", err.Error())
		return
	}

	qb := site.Query(collection)
	if req.Fresh {
		qb.Fresh()
	}
	for _, f := range req.Filters {
		if f.Field == "" || !f.Operator.IsStandard() {
			s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_QUERY",
				fmt.Sprintf("Unsupported filter on '%s' with operator '%s'", f.Field, f.Operator), "")
			return
		}
		qb.WhereField(f.Field).Custom(f.Operator, f.Value)
	}
	if req.Sort != nil {
		dir := req.Sort.Direction
		if dir == "" {
			dir = query.SortDirectionAsc
		}
		qb.Sort(req.Sort.Field, dir)
	}
	if len(req.Fields) > 0 {
		qb.Project(req.Fields...)
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	records, err := qb.Exec(ctx)
	if err != nil {
		s.writeStoreError(w, "QUERY_FAILED", err)
		return
	}
	s.writeSuccessResponse(w, http.StatusOK, records)
}

func (s *APIServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	site, collection, ok := s.target(w, r)
	if !ok {
		return
	}
	s.writeSuccessResponse(w, http.StatusOK, site.Audit(collection))
}

// writeStoreError maps store errors to status codes.
func (s *APIServer) writeStoreError(w http.ResponseWriter, code string, err error) {
	var violation *schema.SchemaViolation
	switch {
	case errors.As(err, &violation):
		s.writeJSONResponse(w, http.StatusBadRequest, APIResponse{Error: &APIError{
			Code:    "SCHEMA_VIOLATION",
			Message: "Document does not conform to the collection schema",
			Details: err.Error(),
			Issues:  violation.Issues,
		}})
	case errors.Is(err, persistence.ErrRecordNotFound):
		s.writeErrorResponse(w, http.StatusNotFound, "RECORD_NOT_FOUND", "Record not found", err.Error())
	case errors.Is(err, persistence.ErrInvalidCollection):
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_COLLECTION", "Invalid collection name", err.Error())
	case errors.Is(err, remote.ErrWriteConflict):
		s.writeErrorResponse(w, http.StatusConflict, "WRITE_CONFLICT", "The collection kept changing during the write", err.Error())
	case errors.Is(err, persistence.ErrStoreClosed):
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "STORE_CLOSED", "The store is shutting down", "")
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, "TIMEOUT", "The remote store did not answer in time", err.Error())
	default:
		s.logger.Error("Request failed", zap.String("code", code), zap.Error(err))
		s.writeErrorResponse(w, http.StatusBadGateway, code, "The remote store request failed", err.Error())
	}
}

func (s *APIServer) parseJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *APIServer) writeSuccessResponse(w http.ResponseWriter, statusCode int, data any) {
	s.writeJSONResponse(w, statusCode, APIResponse{Success: true, Data: data})
}

func (s *APIServer) writeErrorResponse(w http.ResponseWriter, statusCode int, code, message, details string) {
	s.writeJSONResponse(w, statusCode, APIResponse{
		Error: &APIError{Code: code, Message: message, Details: details},
	})
}

func (s *APIServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// CORSMiddleware lets browser front ends of the tenant sites call the API.
func (s *APIServer) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves the API on addr until ctx is done.
func (s *APIServer) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.CORSMiddleware(s),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Starting API server", zap.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
