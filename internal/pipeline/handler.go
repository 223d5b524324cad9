package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/JaimeStill/curator/internal/auth"
	"github.com/JaimeStill/curator/internal/features"
	"github.com/JaimeStill/curator/pkg/handlers"
	"github.com/JaimeStill/curator/pkg/routes"
)

// ClassifyForm is the validated text portion of a classify request.
type ClassifyForm struct {
	Designation string `validate:"required,max=512"`
	Description string `validate:"max=8192"`
}

// Handler provides HTTP endpoints for classification and training.
type Handler struct {
	sys           System
	logger        *slog.Logger
	maxUploadSize int64
	guards        auth.Guards

	// training admits one retrain at a time.
	training sync.Mutex
}

func NewHandler(sys System, logger *slog.Logger, maxUploadSize int64, guards auth.Guards) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "pipeline"),
		maxUploadSize: maxUploadSize,
		guards:        guards,
	}
}

// Routes returns the classification endpoint for any authenticated caller
// and the training endpoints for admins.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Children: []routes.Group{
			{
				Guard: h.guards.User,
				Routes: []routes.Route{
					{Method: "POST", Pattern: "/classify", Handler: h.Classify},
				},
			},
			{
				Prefix: "/training",
				Guard:  h.guards.Admin,
				Routes: []routes.Route{
					{Method: "POST", Pattern: "/retrain", Handler: h.Retrain},
					{Method: "GET", Pattern: "/evaluate", Handler: h.Evaluate},
					{Method: "GET", Pattern: "/status", Handler: h.Status},
				},
			},
		},
	}
}

// Classify accepts a multipart form with designation, description and a file part.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, err)
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, handlers.ErrInvalidBody)
		return
	}

	form := ClassifyForm{
		Designation: strings.TrimSpace(r.FormValue("designation")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if err := handlers.Validate(form); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.Join(ErrImageLoad, err))
		return
	}
	defer file.Close()

	img, err := features.Decode(file)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.Join(ErrInference, ErrImageLoad, err))
		return
	}

	pred, err := h.sys.Classify(r.Context(), form.Designation, form.Description, img)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, pred)
}

// Retrain runs a training pass. Once admitted the run is detached from the
// request so a disconnecting client cannot abort it midway.
func (h *Handler) Retrain(w http.ResponseWriter, r *http.Request) {
	if !h.training.TryLock() {
		handlers.RespondError(w, h.logger, http.StatusConflict, ErrTrainingInProgress)
		return
	}
	defer h.training.Unlock()

	report, err := h.sys.Retrain(context.WithoutCancel(r.Context()))
	if errors.Is(err, ErrEmptyDataset) {
		handlers.RespondMessage(w, http.StatusOK, ErrEmptyDataset.Error())
		return
	}
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, report)
}

func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	report, err := h.sys.Evaluate(r.Context())
	if errors.Is(err, ErrEmptyDataset) {
		handlers.RespondMessage(w, http.StatusOK, ErrEmptyDataset.Error())
		return
	}
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, report)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.sys.Status(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, status)
}
