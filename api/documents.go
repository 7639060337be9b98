package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/rentaldesk-backend/document"
	"github.com/semanticallynull/rentaldesk-backend/internal/middleware"
	"github.com/semanticallynull/rentaldesk-backend/internal/querycache"
	"github.com/semanticallynull/rentaldesk-backend/lifecycle"
)

const maxUploadSize = 20 << 20

type uploadResult struct {
	FileName string             `json:"fileName"`
	Document *document.Document `json:"document,omitempty"`
	Error    string             `json:"error,omitempty"`
}

func documentsKey(reservationID int64) string {
	return lifecycle.KeyDocuments + ":" + strconv.FormatInt(reservationID, 10)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid id"})
		return 0, false
	}
	return id, true
}

func (a *API) documentsHandler(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	docs, err := querycache.Fetch(c.Request.Context(), a.cache, documentsKey(id), func(ctx context.Context) ([]document.Document, error) {
		return a.backend.ListDocuments(ctx, id)
	})
	if err != nil {
		a.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// uploadDocumentsHandler stores every file of the "files" field. A failing
// file does not stop the others; the response lists the result per file.
func (a *API) uploadDocumentsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	id, ok := pathID(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}
	documentType := c.PostForm("documentType")
	if documentType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "documentType is required"})
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "No files uploaded"})
		return
	}

	files := make([]document.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
			return
		}
		files = append(files, f)
	}

	results := document.UploadAll(c.Request.Context(), a.backend, id, documentType, files)
	a.cache.Invalidate(c.Request.Context(), documentsKey(id))

	resp := make([]uploadResult, 0, len(results))
	for _, r := range results {
		out := uploadResult{FileName: r.FileName, Document: r.Document}
		if r.Err != nil {
			out.Error = r.Err.Error()
		}
		resp = append(resp, out)
	}

	status := http.StatusOK
	if failed := document.Failed(results); len(failed) > 0 {
		logger.WarnContext(c, "some documents failed to upload", "failed", len(failed), "total", len(results))
		if len(failed) == len(results) {
			status = http.StatusBadGateway
		}
	}
	c.JSON(status, resp)
}

func (a *API) deleteDocumentHandler(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := a.backend.DeleteDocument(c.Request.Context(), id); err != nil {
		a.respondError(c, err, nil)
		return
	}
	a.cache.Invalidate(c.Request.Context(), lifecycle.KeyDocuments)
	c.Status(http.StatusNoContent)
}

func readUpload(fh *multipart.FileHeader) (document.File, error) {
	f, err := fh.Open()
	if err != nil {
		return document.File{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return document.File{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return document.File{Name: fh.Filename, ContentType: contentType, Data: data}, nil
}
