// Package server exposes pointers, documents and compliance checks over HTTP.
package server

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"compliance/internal/compliance"
	"compliance/internal/domain"
	"compliance/internal/index"
	"compliance/internal/pointer"
	"compliance/internal/store"
)

// Checker runs a compliance check for a pointer.
type Checker interface {
	Check(ctx context.Context, pointerID string) (*compliance.Report, error)
}

// CheckerProvider returns the checker, creating it on first use.
type CheckerProvider func() (Checker, error)

type Server struct {
	store    store.Store
	pointers *pointer.Service
	checker  CheckerProvider
	logger   *zap.Logger
}

func New(st store.Store, pointers *pointer.Service, checker CheckerProvider, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: st, pointers: pointers, checker: checker, logger: logger}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		pointers := v1.Group("/pointers")
		{
			pointers.GET("", s.listPointers)
			pointers.POST("", s.createPointer)
			pointers.GET("/:id", s.getPointer)
			pointers.PUT("/:id", s.updatePointer)
			pointers.DELETE("/:id", s.deletePointer)
			pointers.GET("/:id/documents", s.listDocuments)
			pointers.POST("/:id/documents", s.addDocuments)
			pointers.POST("/:id/check", s.checkPointer)
			pointers.GET("/:id/results", s.listResults)
		}
		documents := v1.Group("/documents")
		{
			documents.GET("/:id/download", s.downloadDocument)
			documents.DELETE("/:id", s.deleteDocument)
		}
	}
	return router
}

// Run serves the API on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

type pointerView struct {
	*domain.Pointer
	StatusClass string                       `json:"status_class"`
	Documents   []*domain.SupportingDocument `json:"documents"`
}

func (s *Server) view(ctx context.Context, p *domain.Pointer) (*pointerView, error) {
	docs, err := s.store.ListDocuments(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &pointerView{Pointer: p, StatusClass: pointer.StatusClass(p.ComplianceStatus), Documents: docs}, nil
}

func (s *Server) listPointers(c *gin.Context) {
	find := &store.FindPointer{}
	if v := c.Query("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year must be a number"})
			return
		}
		find.Year = &year
	}
	if v := c.Query("language"); v != "" {
		lang := domain.Language(v)
		find.Language = &lang
	}
	list, err := s.store.ListPointers(c.Request.Context(), find)
	if err != nil {
		s.abort(c, err)
		return
	}
	out := make([]*pointerView, 0, len(list))
	for _, p := range list {
		v, err := s.view(c.Request.Context(), p)
		if err != nil {
			s.abort(c, err)
			return
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getPointer(c *gin.Context) {
	p, err := s.store.GetPointer(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	v, err := s.view(c.Request.Context(), p)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) createPointer(c *gin.Context) {
	s.savePointer(c, "", http.StatusCreated)
}

func (s *Server) updatePointer(c *gin.Context) {
	s.savePointer(c, c.Param("id"), http.StatusOK)
}

func (s *Server) savePointer(c *gin.Context, id string, status int) {
	draft, uploads, err := parsePointerForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	draft.ID = id
	if id != "" && draft.Year == 0 {
		existing, err := s.store.GetPointer(c.Request.Context(), id)
		if err != nil {
			s.abort(c, err)
			return
		}
		draft.Year = existing.Year
	}
	p, err := s.pointers.Save(c.Request.Context(), draft, uploads)
	if err != nil {
		s.abort(c, err)
		return
	}
	v, err := s.view(c.Request.Context(), p)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(status, v)
}

func (s *Server) deletePointer(c *gin.Context) {
	id := c.Param("id")
	if err := s.pointers.Delete(c.Request.Context(), id); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_pointer_id": id})
}

func (s *Server) listDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.store.GetPointer(ctx, id); err != nil {
		s.abort(c, err)
		return
	}
	docs, err := s.store.ListDocuments(ctx, id)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (s *Server) addDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.store.GetPointer(ctx, id); err != nil {
		s.abort(c, err)
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form expected"})
		return
	}
	uploads, err := readUploads(form)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ids, err := s.pointers.AddDocuments(ctx, id, uploads)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"document_ids": ids})
}

func (s *Server) downloadDocument(c *gin.Context) {
	doc, err := s.store.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	c.Data(http.StatusOK, "application/octet-stream", doc.Data)
}

func (s *Server) deleteDocument(c *gin.Context) {
	id := c.Param("id")
	n, err := s.store.DeleteDocument(c.Request.Context(), id)
	if err != nil {
		s.abort(c, err)
		return
	}
	if n == 0 {
		s.abort(c, errors.Wrapf(store.ErrNotFound, "document %s", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_document_id": id})
}

func (s *Server) checkPointer(c *gin.Context) {
	checker, err := s.checker()
	if err != nil {
		s.abort(c, err)
		return
	}
	report, err := checker.Check(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pointer_id":        report.PointerID,
		"result_id":         report.ResultID,
		"compliance_status": report.Status,
		"status_class":      pointer.StatusClass(report.Status),
		"reasons":           report.Reasons,
		"retrieved":         report.Retrieved,
		"relevant":          len(report.Chunks),
		"summary":           report.Summary,
		"elapsed_seconds":   report.Elapsed.Seconds(),
	})
}

func (s *Server) listResults(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.store.GetPointer(ctx, id); err != nil {
		s.abort(c, err)
		return
	}
	results, err := s.store.ListResults(ctx, id)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// abort writes err with the status code matching its cause.
func (s *Server) abort(c *gin.Context, err error) {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// StatusCode maps domain errors onto HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pointer.ErrInvalid), errors.Is(err, pointer.ErrUnsupportedUpload), errors.Is(err, pointer.ErrNoUploads):
		return http.StatusBadRequest
	case errors.Is(err, compliance.ErrNoDocuments), errors.Is(err, compliance.ErrNoEvidence), errors.Is(err, index.ErrIndexNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func parsePointerForm(c *gin.Context) (*pointer.Draft, []pointer.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, errors.New("multipart form expected")
	}
	value := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	year := 0
	if v := value("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			return nil, nil, errors.New("year must be a number")
		}
	}
	uploads, err := readUploads(form)
	if err != nil {
		return nil, nil, err
	}
	return &pointer.Draft{
		Name:                     value("name"),
		Objective:                value("objective"),
		ComplianceRequirements:   value("compliance_requirements"),
		SupportingDocumentPoints: value("supporting_document_points"),
		Language:                 value("language"),
		Year:                     year,
	}, uploads, nil
}

func readUploads(form *multipart.Form) ([]pointer.Upload, error) {
	var uploads []pointer.Upload
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "open upload %s", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read upload %s", fh.Filename)
		}
		uploads = append(uploads, pointer.Upload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}
