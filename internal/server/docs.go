package server

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"sigs.k8s.io/yaml"

	"github.com/rotationalio/oscar/internal/version"
)

// oscarOpenAPISpec embeds the OpenAPI description of the service.
//
//go:embed openapi/oscar.yaml
var oscarOpenAPISpec []byte

//go:embed static
var staticFiles embed.FS

// Swagger UI version and CDN configuration with SRI hashes for security.
// These are pinned versions to ensure consistent behavior and security.
// SRI hashes can be verified at: https://www.srihash.org/
const (
	swaggerUICSSURL    = "https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css"
	swaggerUIBundleURL = "https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js"

	swaggerUICSSSRI    = "sha384-+yyzNgM3K92sROwsXxYCxaiLWxWJ0G+v/9A+qIZ2rgefKgkdcmJI+L601cqPD/Ut"
	swaggerUIBundleSRI = "sha384-qn5tagrAjZi8cSmvZ+k3zk4+eDEEUcP9myuR2J6V+/H6rne++v6ChO7EeHAEzqxQ"

	swaggerUICSP = "default-src 'self'; " +
		"script-src 'self' 'unsafe-inline' https://unpkg.com; " +
		"style-src 'self' 'unsafe-inline' https://unpkg.com; " +
		"img-src 'self' data: https:; " +
		"font-src 'self' https://unpkg.com; " +
		"connect-src 'self'"

	redocBundleURL = "https://cdn.jsdelivr.net/npm/redoc@2/bundles/redoc.standalone.js"

	redocCSP = "default-src 'self'; " +
		"script-src 'self' https://cdn.jsdelivr.net; " +
		"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; " +
		"img-src 'self' data: https:; " +
		"font-src 'self' https://fonts.gstatic.com; " +
		"worker-src 'self' blob:; " +
		"connect-src 'self'"

	docsTitle  = "Oscar API Documentation"
	faviconURL = "/static/favicon.svg"
)

// loadOpenAPISpec parses and validates the embedded OpenAPI document, stamps
// it with the running version, and renders it as JSON and YAML.
func (s *Server) loadOpenAPISpec() error {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(oscarOpenAPISpec)
	if err != nil {
		return fmt.Errorf("failed to parse OpenAPI spec: %w", err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		return fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	doc.Info.Version = version.Short()

	data, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to render OpenAPI spec: %w", err)
	}

	spec, err := yaml.JSONToYAML(data)
	if err != nil {
		return fmt.Errorf("failed to render OpenAPI spec as YAML: %w", err)
	}

	s.openAPI = doc
	s.openAPIJSON = data
	s.openAPISpec = spec
	return nil
}

// OpenAPI returns the validated OpenAPI document served by the server.
func (s *Server) OpenAPI() *openapi3.T {
	return s.openAPI
}

// setupDocsRoutes configures documentation endpoints and static assets.
// None of these appear in the OpenAPI document.
func (s *Server) setupDocsRoutes() {
	s.router.GET("/openapi.json", s.handleOpenAPIJSON)
	s.router.GET("/openapi.yaml", s.handleOpenAPIYAML)
	s.router.GET("/docs", s.handleRedoc)
	s.router.GET("/swagger", s.handleSwaggerUI)

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(fmt.Sprintf("embedded static assets: %v", err))
	}
	s.router.StaticFS("/static", http.FS(static))
}

// handleOpenAPIJSON serves the OpenAPI specification in JSON format.
func (s *Server) handleOpenAPIJSON(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/json", s.openAPIJSON)
}

// handleOpenAPIYAML serves the OpenAPI specification in YAML format.
func (s *Server) handleOpenAPIYAML(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/x-yaml", s.openAPISpec)
}

// handleRedoc serves the ReDoc documentation page.
func (s *Server) handleRedoc(c *gin.Context) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>` + docsTitle + `</title>
    <link rel="icon" href="` + faviconURL + `">
    <style>body { margin: 0; padding: 0; }</style>
</head>
<body>
    <redoc spec-url="/openapi.json"></redoc>
    <script src="` + redocBundleURL + `" crossorigin="anonymous"></script>
</body>
</html>`

	s.docsPage(c, redocCSP, html)
}

// handleSwaggerUI serves the Swagger UI page.
// Security features:
// - Pinned CDN versions to prevent supply chain attacks
// - Content Security Policy header to restrict resource loading
// - crossorigin="anonymous" for CORS compliance
func (s *Server) handleSwaggerUI(c *gin.Context) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>` + docsTitle + `</title>
    <link rel="icon" href="` + faviconURL + `">
    <link rel="stylesheet" type="text/css" href="` + swaggerUICSSURL + `" integrity="` + swaggerUICSSSRI + `" crossorigin="anonymous">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="` + swaggerUIBundleURL + `" integrity="` + swaggerUIBundleSRI + `" crossorigin="anonymous"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: "/openapi.json",
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis],
                layout: "BaseLayout",
                validatorUrl: null,
                displayRequestDuration: true
            });
        };
    </script>
</body>
</html>`

	s.docsPage(c, swaggerUICSP, html)
}

func (s *Server) docsPage(c *gin.Context, csp, html string) {
	c.Header("Content-Security-Policy", csp)
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
