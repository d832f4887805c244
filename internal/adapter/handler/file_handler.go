package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/usecase"
)

const (
	formFieldFile        = "file"
	formFieldFilename    = "original_filename"
	formFieldContentType = "file_type"

	// multipart parts above this size are spooled to disk by net/http
	multipartMemory = 8 << 20
)

// FileResponse is the wire form of a stored file
type FileResponse struct {
	ID               string `json:"id"`
	OriginalFilename string `json:"original_filename"`
	FileType         string `json:"file_type"`
	Size             int64  `json:"size"`
	UploadedAt       string `json:"uploaded_at"`
	FileHash         string `json:"file_hash"`
	File             string `json:"file"`
}

// NewFileResponse maps a record to its response body
func NewFileResponse(rec *entities.FileRecord) FileResponse {
	return FileResponse{
		ID:               rec.ID,
		OriginalFilename: rec.OriginalFilename,
		FileType:         rec.ContentType,
		Size:             rec.Size,
		UploadedAt:       rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		FileHash:         rec.Digest,
		File:             contentURL(rec.ID),
	}
}

func contentURL(id string) string {
	return "/api/files/" + id + "/content"
}

// FileHandler handles upload, listing and download endpoints
type FileHandler struct {
	ingest      *usecase.IngestUseCase
	files       *usecase.FileUseCase
	maxFileSize int64
	logger      *slog.Logger
}

// NewFileHandler creates a new file handler. A maxFileSize of zero or
// less disables the request body limit.
func NewFileHandler(ingest *usecase.IngestUseCase, files *usecase.FileUseCase, maxFileSize int64, logger *slog.Logger) *FileHandler {
	return &FileHandler{
		ingest:      ingest,
		files:       files,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "file_handler")),
	}
}

// RegisterRoutes registers file routes
func (h *FileHandler) RegisterRoutes(router gin.IRouter) {
	files := router.Group("/api/files")
	{
		files.POST("", h.Upload)
		files.GET("", h.List)
		files.GET("/:id", h.Get)
		files.GET("/:id/content", h.Content)
	}
}

// Upload stores the multipart field "file"
func (h *FileHandler) Upload(c *gin.Context) {
	if h.maxFileSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize)
	}

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.respondUploadError(c, err)
		return
	}
	if c.Request.MultipartForm != nil {
		defer c.Request.MultipartForm.RemoveAll()
	}

	file, header, err := c.Request.FormFile(formFieldFile)
	if err != nil {
		h.respondUploadError(c, err)
		return
	}
	defer file.Close()

	filename := c.Request.FormValue(formFieldFilename)
	if filename == "" {
		filename = header.Filename
	}
	contentType := c.Request.FormValue(formFieldContentType)
	if contentType == "" {
		contentType = header.Header.Get("Content-Type")
	}

	rec, err := h.ingest.Ingest(c.Request.Context(), usecase.Upload{
		Body:        file,
		Filename:    filename,
		ContentType: contentType,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewFileResponse(rec))
}

// List returns the records matching the query parameters
func (h *FileHandler) List(c *gin.Context) {
	records, err := h.files.List(c.Request.Context(), usecase.ListParams{
		OriginalFilename: c.Query("original_filename"),
		FileType:         c.Query("file_type"),
		Size:             c.Query("size"),
		MinSize:          c.Query("min_size"),
		MaxSize:          c.Query("max_size"),
		UploadedAt:       c.Query("uploaded_at"),
		UploadedAfter:    c.Query("uploaded_after"),
		UploadedBefore:   c.Query("uploaded_before"),
		FileHash:         c.Query("file_hash"),
		SizeSort:         c.Query("size_sort"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := make([]FileResponse, 0, len(records))
	for _, rec := range records {
		response = append(response, NewFileResponse(rec))
	}
	c.JSON(http.StatusOK, response)
}

// Get returns one record
func (h *FileHandler) Get(c *gin.Context) {
	rec, err := h.files.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewFileResponse(rec))
}

// Content streams the stored bytes as an attachment
func (h *FileHandler) Content(c *gin.Context) {
	rec, rc, err := h.files.OpenContent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer rc.Close()

	headers := map[string]string{}
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": rec.OriginalFilename}); disposition != "" {
		headers["Content-Disposition"] = disposition
	} else {
		headers["Content-Disposition"] = "attachment"
	}
	c.DataFromReader(http.StatusOK, rec.Size, rec.ContentType, rc, headers)
}

func (h *FileHandler) respondUploadError(c *gin.Context, err error) {
	switch {
	case isBodyTooLarge(err):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":    "File too large",
			"max_size": h.maxFileSize,
		})
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed multipart body"})
	default:
		h.logger.Warn("Failed to parse upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
	}
}

func (h *FileHandler) respondError(c *gin.Context, err error) {
	if conflict, ok := usecase.AsConflict(err); ok {
		body := gin.H{"error": "File already exists"}
		if conflict.Existing != nil {
			body["existing_file_id"] = conflict.Existing.ID
		}
		c.JSON(http.StatusConflict, body)
		return
	}

	switch {
	case errors.Is(err, usecase.ErrNoContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
	case errors.Is(err, usecase.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
	case isBodyTooLarge(err):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":    "File too large",
			"max_size": h.maxFileSize,
		})
	case errors.Is(err, usecase.ErrRead):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
	default:
		h.logger.Error("Request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Storage error"})
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// mime/multipart flattens some read errors into strings
	return err != nil && strings.Contains(err.Error(), "request body too large")
}
