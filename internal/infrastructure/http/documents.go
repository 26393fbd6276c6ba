package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/usecases"
)

const (
	uploadField     = "file"
	timestampLayout = "2006-01-02_15_04_05"
	maxUploadBytes  = 32 << 20
)

var allowedContentTypes = map[string]entities.Format{
	"text/csv":         entities.FormatCSV,
	"application/json": entities.FormatJSON,
}

func (s *Server) handleUpload(c *gin.Context) {
	header, err := c.FormFile(uploadField)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "missing file field")
		return
	}
	f, err := header.Open()
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "unreadable upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "unreadable upload")
		return
	}
	if len(data) > maxUploadBytes {
		errorJSON(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	format, ok := uploadFormat(header.Header.Get("Content-Type"), data)
	if !ok {
		errorJSON(c, http.StatusBadRequest, "Invalid file type. Only CSV and JSON files are allowed.")
		return
	}

	name := timestampedName(header.Filename, format, s.now())
	_, err = s.docs.AddDocument(c.Request.Context(), name, data)
	s.observeDocument("upload", err)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "filename": name})
	case errors.Is(err, usecases.ErrUnsupportedFormat):
		errorJSON(c, http.StatusBadRequest, usecases.ErrUnsupportedFormat.Error())
	case errors.Is(err, usecases.ErrEmptyDocument):
		errorJSON(c, http.StatusUnprocessableEntity, usecases.ErrEmptyDocument.Error())
	default:
		internalError(c, "document upload failed", err)
	}
}

func (s *Server) handleList(c *gin.Context) {
	names, err := s.docs.ListDocuments(c.Request.Context())
	if err != nil {
		internalError(c, "listing documents failed", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": names})
}

func (s *Server) handleDelete(c *gin.Context) {
	name := c.Param("filename")
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		errorJSON(c, http.StatusNotFound, "Document not found")
		return
	}
	ok, err := s.docs.DeleteDocument(c.Request.Context(), name)
	s.observeDocument("delete", err)
	if err != nil {
		internalError(c, "document delete failed", err)
		return
	}
	if !ok {
		errorJSON(c, http.StatusNotFound, "Document not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// uploadFormat accepts text/csv and application/json. Missing or generic
// declared types are resolved by sniffing the content.
func uploadFormat(declared string, data []byte) (entities.Format, bool) {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil || mediaType == "application/octet-stream" {
		mediaType, _, _ = mime.ParseMediaType(mimetype.Detect(data).String())
	}
	format, ok := allowedContentTypes[strings.ToLower(mediaType)]
	return format, ok
}

// timestampedName returns stem_YYYY-MM-DD_HH_MM_SS.ext in UTC. The extension
// comes from the format when the original name has none.
func timestampedName(filename string, format entities.Format, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	ext := filepath.Ext(base)
	stem := strings.TrimLeft(strings.TrimSuffix(base, ext), ".")
	if ext == "" {
		ext = "." + string(format)
	}
	if stem == "" {
		stem = "document"
	}
	return fmt.Sprintf("%s_%s%s", stem, now.UTC().Format(timestampLayout), ext)
}

func (s *Server) observeDocument(op string, err error) {
	if s.metrics != nil {
		s.metrics.DocumentOp(op, err)
	}
}
