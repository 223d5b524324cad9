package api

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/JaimeStill/curator/internal/auth"
	"github.com/JaimeStill/curator/pkg/handlers"
	"github.com/JaimeStill/curator/pkg/routes"
	"github.com/JaimeStill/curator/pkg/storage"
)

// blobReader is the subset of storage the image endpoint streams from.
type blobReader interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// imageHandler streams stored product images back to callers.
type imageHandler struct {
	store  blobReader
	logger *slog.Logger
	guards auth.Guards
}

func newImageHandler(store blobReader, logger *slog.Logger, guards auth.Guards) *imageHandler {
	return &imageHandler{
		store:  store,
		logger: logger.With("handler", "images"),
		guards: guards,
	}
}

func (h *imageHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/images",
		Guard:  h.guards.User,
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{key...}", Handler: h.download},
		},
	}
}

func (h *imageHandler) download(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := storage.ValidateKey(key); err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	body, err := h.store.Download(r.Context(), key)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}
	defer body.Close()

	br := bufio.NewReaderSize(body, 512)
	head, _ := br.Peek(512)

	w.Header().Set("Content-Type", http.DetectContentType(head))
	w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(path.Base(key)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, br); err != nil {
		h.logger.Warn("image stream interrupted", "key", key, "error", err)
	}
}
