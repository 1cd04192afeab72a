package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/recon-engine/pkg/models"
	"github.com/ekaya-inc/recon-engine/pkg/repositories"
	"github.com/ekaya-inc/recon-engine/pkg/services"
)

// maxRequestBytes bounds an NL query request body.
const maxRequestBytes = 1 << 20

// NLQueryErrorResponse is written when the pipeline fails. It carries the
// populated query response alongside the error code and message.
type NLQueryErrorResponse struct {
	*models.NLQueryResponse
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ListGraphsResponse lists the knowledge graphs the store can serve.
type ListGraphsResponse struct {
	Graphs []string `json:"graphs"`
}

// DatasourceInfo describes one configured datasource.
type DatasourceInfo struct {
	Name string `json:"name"`
}

// ListDatasourcesResponse lists configured datasources and the adapter types
// compiled into this binary.
type ListDatasourcesResponse struct {
	Datasources []DatasourceInfo                   `json:"datasources"`
	Adapters    []datasource.DatasourceAdapterInfo `json:"adapters"`
}

// NLQueryHandler serves natural-language query requests.
type NLQueryHandler struct {
	nlQueryService services.NLQueryService
	graphs         repositories.KnowledgeGraphRepository
	datasources    datasource.DatasourceAdapterFactory
	logger         *zap.Logger
}

// NewNLQueryHandler creates a new NL query handler. datasources may be nil
// when no datasource is configured.
func NewNLQueryHandler(
	nlQueryService services.NLQueryService,
	graphs repositories.KnowledgeGraphRepository,
	datasources datasource.DatasourceAdapterFactory,
	logger *zap.Logger,
) *NLQueryHandler {
	return &NLQueryHandler{
		nlQueryService: nlQueryService,
		graphs:         graphs,
		datasources:    datasources,
		logger:         logger.Named("nl-query-handler"),
	}
}

// RegisterRoutes registers the handler's routes on the given mux.
func (h *NLQueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/nl-query", h.Query)
	mux.HandleFunc("POST /api/nl-query/compile", h.Compile)
	mux.HandleFunc("GET /api/graphs", h.ListGraphs)
	mux.HandleFunc("GET /api/datasources", h.ListDatasources)
}

// Query handles POST /api/nl-query. The question is executed when the
// request names a datasource.
func (h *NLQueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	resp, err := h.nlQueryService.Query(r.Context(), req)
	h.writeResult(w, resp, err)
}

// Compile handles POST /api/nl-query/compile. It never executes SQL.
func (h *NLQueryHandler) Compile(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	resp, err := h.nlQueryService.Compile(r.Context(), req)
	h.writeResult(w, resp, err)
}

// ListGraphs handles GET /api/graphs.
func (h *NLQueryHandler) ListGraphs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.graphs.ListGraphs(r.Context())
	if err != nil {
		h.logger.Error("Failed to list knowledge graphs", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list knowledge graphs"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if ids == nil {
		ids = []string{}
	}
	if err := WriteJSON(w, http.StatusOK, ListGraphsResponse{Graphs: ids}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListDatasources handles GET /api/datasources.
func (h *NLQueryHandler) ListDatasources(w http.ResponseWriter, r *http.Request) {
	resp := ListDatasourcesResponse{
		Datasources: []DatasourceInfo{},
		Adapters:    datasource.RegisteredAdapters(),
	}
	if h.datasources != nil {
		for _, name := range h.datasources.Datasources() {
			resp.Datasources = append(resp.Datasources, DatasourceInfo{Name: name})
		}
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *NLQueryHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (*models.NLQueryRequest, bool) {
	var req models.NLQueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		h.logger.Debug("Rejected NL query body", zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return nil, false
	}
	return &req, true
}

func (h *NLQueryHandler) writeResult(w http.ResponseWriter, resp *models.NLQueryResponse, err error) {
	if err == nil {
		if err := WriteJSON(w, http.StatusOK, resp); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	status, code := ClassifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("NL query failed", zap.String("error_code", code), zap.Error(err))
	}
	if resp == nil {
		if err := ErrorResponse(w, status, code, err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	body := NLQueryErrorResponse{NLQueryResponse: resp, Error: code, Message: err.Error()}
	if err := WriteJSON(w, status, body); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
