package api

import (
	"net/http"

	"github.com/JaimeStill/curator/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, runtime *Runtime) {
	images := newImageHandler(runtime.Storage, runtime.Logger, runtime.Guards)

	routes.Register(
		mux,
		domain.Products.Handler(runtime.MaxUploadSize, runtime.Guards).Routes(),
		domain.Pipeline.Handler(runtime.MaxUploadSize, runtime.Guards).Routes(),
		images.routes(),
	)
}
