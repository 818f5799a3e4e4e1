package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wanzdb/wanzdb/internal/document"
	"github.com/wanzdb/wanzdb/internal/document/service"
	"github.com/wanzdb/wanzdb/internal/query"
)

// DataHandler serves the document routes of one tenant.
type DataHandler struct {
	docs service.Service
}

func NewDataHandler(docs service.Service) *DataHandler {
	return &DataHandler{docs: docs}
}

// Register routes under /:col. The static segments (trash, find-one, import,
// empty-trash, restore) take precedence over /:col/:id.
func (h *DataHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/:col", h.List)
	rg.POST("/:col", h.Insert)
	rg.POST("/:col/find-one", h.FindOne)
	rg.POST("/:col/import", h.Import)
	rg.GET("/:col/trash", h.Trash)
	rg.DELETE("/:col/empty-trash", h.EmptyTrash)
	rg.POST("/:col/restore/:id", h.Restore)
	rg.GET("/:col/:id", h.Get)
	rg.PUT("/:col/:id", h.Update)
	rg.DELETE("/:col/:id", h.Delete)
}

// bindDocument reads the request body as a single JSON object.
func bindDocument(c *gin.Context) (document.Document, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
		return nil, false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return document.Document{}, true
	}
	var doc document.Document
	if err := doc.UnmarshalJSON(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object"})
		return nil, false
	}
	return doc, true
}

func (h *DataHandler) List(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	q, err := query.Parse(c.Request.URL.Query())
	if err != nil {
		respondError(c, err)
		return
	}
	docs, err := h.docs.FindMany(c.Request.Context(), tenant, c.Param("col"), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(docs))
}

// FindOne answers with the first active match, or null.
func (h *DataHandler) FindOne(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	body, ok := bindDocument(c)
	if !ok {
		return
	}
	pred, err := query.Predicate(body)
	if err != nil {
		respondError(c, err)
		return
	}
	doc, err := h.docs.FindOne(c.Request.Context(), tenant, c.Param("col"), pred)
	if err != nil {
		respondError(c, err)
		return
	}
	if doc == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DataHandler) Get(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	doc, err := h.docs.FindByID(c.Request.Context(), tenant, c.Param("col"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DataHandler) Insert(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	body, ok := bindDocument(c)
	if !ok {
		return
	}
	doc, err := h.docs.Insert(c.Request.Context(), tenant, c.Param("col"), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// Import inserts a JSON array of objects. Elements that are not objects are
// skipped and only stored documents are counted.
func (h *DataHandler) Import(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
		return
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be an array"})
		return
	}
	docs := make([]document.Document, 0, len(items))
	for _, item := range items {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		var doc document.Document
		if err := doc.UnmarshalJSON(trimmed); err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	n, err := h.docs.InsertMany(c.Request.Context(), tenant, c.Param("col"), docs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": n})
}

func (h *DataHandler) Update(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	body, ok := bindDocument(c)
	if !ok {
		return
	}
	doc, err := h.docs.Update(c.Request.Context(), tenant, c.Param("col"), c.Param("id"), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Delete trashes the document, or removes it for good with ?permanent=true.
func (h *DataHandler) Delete(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	permanent := query.Flag(c.Request.URL.Query(), "permanent")
	if err := h.docs.Delete(c.Request.Context(), tenant, c.Param("col"), c.Param("id"), permanent); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *DataHandler) Trash(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	docs, err := h.docs.ListTrash(c.Request.Context(), tenant, c.Param("col"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(docs))
}

func (h *DataHandler) Restore(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	if err := h.docs.Restore(c.Request.Context(), tenant, c.Param("col"), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *DataHandler) EmptyTrash(c *gin.Context) {
	tenant, ok := tenantOf(c)
	if !ok {
		return
	}
	n, err := h.docs.EmptyTrash(c.Request.Context(), tenant, c.Param("col"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deletedCount": n})
}

// nonNil keeps empty results encoded as [] instead of null.
func nonNil(docs []document.Document) []document.Document {
	if docs == nil {
		return []document.Document{}
	}
	return docs
}
