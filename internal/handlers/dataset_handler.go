package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pivoter/pivoter/internal/models"
	"github.com/pivoter/pivoter/internal/pivot"
	"github.com/pivoter/pivoter/internal/services"
)

// CreateDatasetRequest represents the request body for creating a dataset.
// Row values may be strings or numbers.
type CreateDatasetRequest struct {
	Name      string                   `json:"name"`
	Hierarchy []string                 `json:"hierarchy,omitempty"`
	Rows      []map[string]interface{} `json:"rows"`
}

// DatasetResponse represents a dataset in API responses.
type DatasetResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Hierarchy  []string        `json:"hierarchy"`
	RowCount   int             `json:"row_count"`
	QueryCount int64           `json:"query_count"`
	CreatedAt  string          `json:"created_at"`
	Rows       []pivot.DataRow `json:"rows,omitempty"`
}

// ListDatasetsResponse represents a page of datasets.
type ListDatasetsResponse struct {
	Datasets []DatasetResponse `json:"datasets"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// QueryRequest represents the request body for querying a dataset. Labels
// must be present; an empty array queries the root.
type QueryRequest struct {
	Labels   []string `json:"labels"`
	Function string   `json:"function,omitempty"`
}

// QueryResponse represents the result of a query. Result is null when the
// aggregate is not a finite number.
type QueryResponse struct {
	Result   *float64 `json:"result"`
	Function string   `json:"function"`
	Labels   []string `json:"labels"`
	Found    bool     `json:"found"`
	Cached   bool     `json:"cached,omitempty"`
}

// PivotRequest represents the request body for a one-shot pivot.
type PivotRequest struct {
	Rows      []map[string]interface{} `json:"rows"`
	Hierarchy []string                 `json:"hierarchy,omitempty"`
	Labels    []string                 `json:"labels,omitempty"`
	Function  string                   `json:"function,omitempty"`
}

// PivotResponse represents the result of a one-shot pivot.
type PivotResponse struct {
	QueryResponse
	Hierarchy []string `json:"hierarchy"`
	Tree      string   `json:"tree"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// DatasetHandler handles dataset and pivot endpoints.
type DatasetHandler struct {
	service services.PivotService
}

// NewDatasetHandler creates a new DatasetHandler.
func NewDatasetHandler(svc services.PivotService) *DatasetHandler {
	return &DatasetHandler{service: svc}
}

// Create handles POST /api/v1/datasets requests.
func (h *DatasetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDatasetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rows, err := pivot.RowsFromJSON(req.Rows)
	if err != nil {
		writeError(w, err)
		return
	}

	ds, err := h.service.CreateDataset(r.Context(), services.CreateDatasetRequest{
		Name:      req.Name,
		Hierarchy: req.Hierarchy,
		Rows:      rows,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/datasets/"+ds.ID.String())
	writeJSON(w, http.StatusCreated, toDatasetResponse(ds, false))
}

// List handles GET /api/v1/datasets requests.
func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}

	datasets, err := h.service.ListDatasets(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := ListDatasetsResponse{
		Datasets: make([]DatasetResponse, 0, len(datasets)),
		Limit:    limit,
		Offset:   offset,
	}
	for _, ds := range datasets {
		resp.Datasets = append(resp.Datasets, toDatasetResponse(ds, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/datasets/{id} requests. Rows are included when
// the rows query parameter is true.
func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseID(w, rawID)
	if !ok {
		return
	}

	withRows, _ := strconv.ParseBool(r.URL.Query().Get("rows"))

	ds, err := h.service.GetDataset(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDatasetResponse(ds, withRows))
}

// Delete handles DELETE /api/v1/datasets/{id} requests.
func (h *DatasetHandler) Delete(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseID(w, rawID)
	if !ok {
		return
	}

	if err := h.service.DeleteDataset(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Query handles POST /api/v1/datasets/{id}/query requests.
func (h *DatasetHandler) Query(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseID(w, rawID)
	if !ok {
		return
	}

	var req QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.service.Query(r.Context(), id, services.QueryRequest{
		Labels:   req.Labels,
		Function: req.Function,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQueryResponse(res))
}

// Tree handles GET /api/v1/datasets/{id}/tree requests with a plain text
// rendering of the pivot tree.
func (h *DatasetHandler) Tree(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseID(w, rawID)
	if !ok {
		return
	}

	tree, err := h.service.Tree(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, tree.String())
}

// Pivot handles POST /api/v1/pivot requests.
func (h *DatasetHandler) Pivot(w http.ResponseWriter, r *http.Request) {
	var req PivotRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rows, err := pivot.RowsFromJSON(req.Rows)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.service.Pivot(r.Context(), services.PivotRequest{
		Rows:      rows,
		Hierarchy: req.Hierarchy,
		Labels:    req.Labels,
		Function:  req.Function,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PivotResponse{
		QueryResponse: toQueryResponse(&res.QueryResult),
		Hierarchy:     res.Hierarchy,
		Tree:          res.Tree,
	})
}

func toDatasetResponse(ds *models.Dataset, withRows bool) DatasetResponse {
	resp := DatasetResponse{
		ID:         ds.ID.String(),
		Name:       ds.Name,
		Hierarchy:  ds.Hierarchy,
		RowCount:   ds.RowCount,
		QueryCount: ds.QueryCount,
		CreatedAt:  ds.CreatedAt.UTC().Format(time.RFC3339),
	}
	if withRows {
		resp.Rows = ds.Rows
	}
	return resp
}

func toQueryResponse(res *services.QueryResult) QueryResponse {
	resp := QueryResponse{
		Function: res.Function,
		Labels:   res.Labels,
		Found:    res.Found,
		Cached:   res.CacheHit,
	}
	if !math.IsNaN(res.Result) && !math.IsInf(res.Result, 0) {
		v := res.Result
		resp.Result = &v
	}
	return resp
}

// decodeBody decodes a JSON request body, writing the error response itself
// when decoding fails.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: "request body too large",
				Code:  "BODY_TOO_LARGE",
			})
			return false
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "failed to read request body",
			Code:  "INVALID_REQUEST",
		})
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid dataset id",
			Code:  "INVALID_ID",
		})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid " + name + " parameter",
			Code:  "INVALID_PAGINATION",
		})
		return 0, false
	}
	return n, true
}

func writeError(w http.ResponseWriter, err error) {
	status, resp := mapErrorToResponse(err)
	writeJSON(w, status, resp)
}

// mapErrorToResponse maps service errors to HTTP status codes and error responses.
func mapErrorToResponse(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, pivot.ErrInvalidRows):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_ROWS",
		}
	case errors.Is(err, pivot.ErrInvalidHierarchy):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_HIERARCHY",
		}
	case errors.Is(err, pivot.ErrNilQuery):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_QUERY",
		}
	case errors.Is(err, pivot.ErrUnknownFunction):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "UNKNOWN_FUNCTION",
		}
	case errors.Is(err, models.ErrEmptyName), errors.Is(err, models.ErrNameTooLong):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_NAME",
		}
	case errors.Is(err, services.ErrInvalidPagination):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_PAGINATION",
		}
	case errors.Is(err, models.ErrTooManyRows):
		return http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: err.Error(),
			Code:  "TOO_MANY_ROWS",
		}
	case errors.Is(err, models.ErrDatasetNotFound):
		return http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "NOT_FOUND",
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		}
	}
}
