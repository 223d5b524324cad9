package products

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/curator/internal/auth"
	"github.com/JaimeStill/curator/pkg/formatting"
	"github.com/JaimeStill/curator/pkg/handlers"
	"github.com/JaimeStill/curator/pkg/pagination"
	"github.com/JaimeStill/curator/pkg/routes"
)

// Handler provides HTTP endpoints for the product ledger.
type Handler struct {
	sys           System
	logger        *slog.Logger
	pagination    pagination.Config
	maxUploadSize int64
	guards        auth.Guards
}

// SearchRequest combines pagination and filter criteria for the search endpoint.
type SearchRequest struct {
	pagination.PageRequest
	Filters
}

func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
	maxUploadSize int64,
	guards auth.Guards,
) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "products"),
		pagination:    pagination,
		maxUploadSize: maxUploadSize,
		guards:        guards,
	}
}

// Routes returns the product endpoints. Reads require an authenticated caller;
// adding and removing training data requires the admin role.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/products",
		Guard:  h.guards.User,
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "/search", Handler: h.Search},
		},
		Children: []routes.Group{{
			Guard: h.guards.Admin,
			Routes: []routes.Route{
				{Method: "POST", Pattern: "", Handler: h.Create},
				{Method: "DELETE", Pattern: "/{id}", Handler: h.Delete},
			},
		}},
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidProduct)
		return
	}

	p, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, p)
}

// Search accepts pagination and filter criteria as a JSON body.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := handlers.DecodeJSON[SearchRequest](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	req.PageRequest.Normalize(h.pagination)

	result, err := h.sys.List(r.Context(), req.PageRequest, req.Filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Create registers a labeled product from a multipart form with fields
// designation, description, category and an image file part.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge,
				errors.Join(ErrFileTooLarge, errors.New("limit "+formatting.FormatBytes(h.maxUploadSize, 0))))
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidProduct)
		return
	}

	category, err := strconv.Atoi(strings.TrimSpace(r.FormValue("category")))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.Join(ErrInvalidProduct, errors.New("category must be an integer")))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.Join(ErrInvalidProduct, errors.New("image file required")))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidProduct)
		return
	}

	cmd := CreateCommand{
		Image:       data,
		Filename:    header.Filename,
		ContentType: DetectContentType(header.Header.Get("Content-Type"), data),
		Designation: strings.TrimSpace(r.FormValue("designation")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Category:    category,
	}

	p, err := h.sys.Create(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidProduct)
		return
	}

	if err := h.sys.Delete(r.Context(), id); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DetectContentType prefers a specific declared type and otherwise sniffs data.
func DetectContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}
