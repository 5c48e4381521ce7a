package gateway

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
)

//go:embed openapi/*.yaml
var openapiFS embed.FS

// docServices lists the published documents in the order the index shows them.
var docServices = []string{"gateway", "auth", "chat", "video"}

// docSet serves the API reference. Every embedded document is parsed,
// validated, and rendered to JSON once at startup, so a malformed document
// fails the gateway boot instead of a reader's browser.
type docSet struct {
	json map[string][]byte
}

func loadDocs() (*docSet, error) {
	loader := openapi3.NewLoader()
	docs := make(map[string][]byte, len(docServices))
	for _, svc := range docServices {
		raw, err := openapiFS.ReadFile("openapi/" + svc + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("read %s api document: %w", svc, err)
		}
		doc, err := loader.LoadFromData(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s api document: %w", svc, err)
		}
		if err := doc.Validate(context.Background()); err != nil {
			return nil, fmt.Errorf("validate %s api document: %w", svc, err)
		}
		data, err := doc.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode %s api document: %w", svc, err)
		}
		docs[svc] = data
	}
	return &docSet{json: docs}, nil
}

func (d *docSet) register(r gin.IRouter) {
	r.GET("/api-docs", d.handleIndex)
	r.GET("/api-docs/:service", d.handleService)
}

func (d *docSet) handleIndex(c *gin.Context) {
	var links strings.Builder
	for _, svc := range docServices {
		fmt.Fprintf(&links, `    <li><a href="/api-docs/%s">%s</a> &middot; <a href="/api-docs/%s.json">openapi.json</a></li>%s`, svc, svc, svc, "\n")
	}
	page := fmt.Sprintf(docsIndexPage, links.String())
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

// handleService serves either the raw document (".json" suffix) or an
// interactive viewer page for it.
func (d *docSet) handleService(c *gin.Context) {
	name := c.Param("service")
	if doc, ok := d.json[strings.TrimSuffix(name, ".json")]; ok && strings.HasSuffix(name, ".json") {
		c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
		return
	}
	if _, ok := d.json[name]; ok {
		page := fmt.Sprintf(docsViewerPage, name, name)
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
		return
	}
	c.String(http.StatusNotFound, "no api document for %q", name)
}

const docsIndexPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8"/>
  <title>Huddle API Reference</title>
</head>
<body>
  <h1>Huddle API Reference</h1>
  <ul>
%s  </ul>
</body>
</html>
`

const docsViewerPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>Huddle %s API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"/>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: "/api-docs/%s.json", dom_id: "#swagger-ui"});
  </script>
</body>
</html>
`
