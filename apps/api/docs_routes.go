package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/calmhaven/calmhaven-backend/contracts"
)

const swaggerUITemplate = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>CalmHaven API - Swagger UI</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
    <style>body{margin:0} #swagger-ui{max-width:1400px;margin:0 auto}</style>
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-standalone-preset.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        urls: [/*__SPECS__*/],
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis, SwaggerUIStandalonePreset],
        layout: 'StandaloneLayout'
      });
    </script>
  </body>
</html>`

// registerDocsRoutes exposes the embedded contracts and a Swagger UI page.
func registerDocsRoutes(router chi.Router, logger *zap.Logger) {
	router.Get("/docs/openapi/{name}.yaml", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		data, ok := contracts.Raw(name)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(data)
	})

	entries := make([]string, 0, len(contracts.Names()))
	for _, name := range contracts.Names() {
		entries = append(entries, fmt.Sprintf("{url: '/docs/openapi/%s.yaml', name: '%s'}", name, name))
	}
	page := strings.Replace(swaggerUITemplate, "/*__SPECS__*/", strings.Join(entries, ","), 1)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})

	logger.Info("docs routes registered", zap.Strings("contracts", contracts.Names()))
}
