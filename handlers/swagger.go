package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves the OpenAPI description of the data API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>wanzdb - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "wanzdb", "version": "v0.1.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/api/data/collections": {
      "get": { "summary": "List collections with document counts", "responses": { "200": { "description": "collection descriptors" } } },
      "post": { "summary": "Create a collection", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"}}}}}}, "responses": { "201": { "description": "created" }, "400": { "description": "missing, invalid or duplicate name" } } }
    },
    "/api/data/collections/{name}": {
      "delete": { "summary": "Delete a collection and the tenant's documents in it", "responses": { "200": { "description": "deleted" } } }
    },
    "/api/data/{col}": {
      "get": { "summary": "List documents (page, limit, sort, trash, field filters)", "responses": { "200": { "description": "documents" }, "400": { "description": "bad filter" } } },
      "post": { "summary": "Insert a document", "responses": { "201": { "description": "stored document" }, "409": { "description": "duplicate _id" } } }
    },
    "/api/data/{col}/find-one": {
      "post": { "summary": "First active document matching the body", "responses": { "200": { "description": "document or null" } } }
    },
    "/api/data/{col}/import": {
      "post": { "summary": "Bulk insert an array of documents", "responses": { "200": { "description": "success and count" }, "400": { "description": "payload is not an array" } } }
    },
    "/api/data/{col}/trash": {
      "get": { "summary": "Trashed documents, newest first, at most 50", "responses": { "200": { "description": "documents" } } }
    },
    "/api/data/{col}/empty-trash": {
      "delete": { "summary": "Purge every trashed document", "responses": { "200": { "description": "success and deletedCount" } } }
    },
    "/api/data/{col}/restore/{id}": {
      "post": { "summary": "Restore a trashed document", "responses": { "200": { "description": "restored" } } }
    },
    "/api/data/{col}/{id}": {
      "get": { "summary": "Get an active document", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "put": { "summary": "Merge fields into a document", "responses": { "200": { "description": "updated document" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Trash a document, or purge it with permanent=true", "responses": { "200": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/schema/{collection}": {
      "get": { "summary": "Field definitions of a collection", "responses": { "200": { "description": "schema descriptor" } } },
      "post": { "summary": "Replace field definitions", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"fields":{"type":"array"}}}}}}, "responses": { "200": { "description": "schema descriptor" }, "400": { "description": "unknown field type" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
