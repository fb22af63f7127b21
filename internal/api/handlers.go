// Package api exposes extractions over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
	"github.com/dharsanguruparan/ReceiptDrop/internal/extraction"
	"github.com/dharsanguruparan/ReceiptDrop/internal/model"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	// multipartOverhead covers boundaries and part headers around the file.
	multipartOverhead = 1 << 20
)

// Extractions is what the handlers need from extraction.Service.
type Extractions interface {
	Create(ctx context.Context, up extraction.Upload) (*extraction.Created, error)
	List(ctx context.Context, userID string) ([]*model.Extraction, error)
	Get(ctx context.Context, id, userID string) (*model.Extraction, error)
	Delete(ctx context.Context, id, userID string) error
	Export(ctx context.Context, userID string, w io.Writer) (int, error)
}

var _ Extractions = (*extraction.Service)(nil)

// RouterDeps wires the router.
type RouterDeps struct {
	Extractions Extractions
	Auth        Authenticator
	// Websocket is mounted at GET /ws when set.
	Websocket gin.HandlerFunc
	MaxBytes  int64
	Logger    *slog.Logger
}

type handlers struct {
	svc      Extractions
	maxBytes int64
}

// NewRouter builds the gin engine with every route.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &handlers{svc: deps.Extractions, maxBytes: deps.MaxBytes}

	r := gin.New()
	r.Use(requestLogger(deps.Logger), cors())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Websocket != nil {
		r.GET("/ws", deps.Websocket)
	}

	api := r.Group("/api", requireUser(deps.Auth))
	api.POST("/extractions", h.create)
	api.GET("/extractions", h.list)
	api.GET("/extractions/export", h.export)
	api.GET("/extractions/:id", h.get)
	api.DELETE("/extractions/:id", h.delete)
	return r
}

func (h *handlers) create(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondError(c, apperr.TooLarge(h.maxBytes))
		default:
			respondError(c, apperr.Validation("file is required"))
		}
		return
	}
	if h.maxBytes > 0 && header.Size > h.maxBytes {
		respondError(c, apperr.TooLarge(h.maxBytes))
		return
	}

	f, err := header.Open()
	if err != nil {
		respondError(c, apperr.Validation("cannot read uploaded file"))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, apperr.Validation("cannot read uploaded file"))
		return
	}

	out, err := h.svc.Create(c.Request.Context(), extraction.Upload{
		UserID:   currentUser(c),
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *handlers) list(c *gin.Context) {
	recs, err := h.svc.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *handlers) get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handlers) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Extraction deleted successfully"})
}

func (h *handlers) export(c *gin.Context) {
	var buf bytes.Buffer
	if _, err := h.svc.Export(c.Request.Context(), currentUser(c), &buf); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="receipts.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
