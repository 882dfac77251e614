package api

import (
	"context"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tuanvc/snaptext/internal/enhance"
	apperrors "github.com/tuanvc/snaptext/internal/errors"
	"github.com/tuanvc/snaptext/internal/imaging"
	"github.com/tuanvc/snaptext/internal/metrics"
	"github.com/tuanvc/snaptext/internal/record"
	"github.com/tuanvc/snaptext/internal/settings"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":           "healthy",
		"version":          "0.1.0",
		"engine":           s.engine.Name(),
		"engine_available": s.engine.Available(),
		"timestamp":        time.Now().Unix(),
	})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	s.metricsHandler(c.Context())
	return nil
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "multipart form required"})
	}

	files := form.File["images"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "no files provided"})
	}

	uploads := make([]imaging.Upload, 0, len(files))
	for _, fh := range files {
		data, err := readMultipartFile(fh)
		if err != nil {
			s.logger.Warn("could not read upload",
				zap.String("filename", fh.Filename),
				zap.Error(err))
			return c.Status(400).JSON(fiber.Map{"error": "could not read upload: " + fh.Filename})
		}
		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = imaging.DetectContentType(fh.Filename, data)
		}
		uploads = append(uploads, imaging.Upload{
			Data:        data,
			Filename:    fh.Filename,
			ContentType: ct,
		})
	}

	added, rejected, err := s.store.Add(uploads...)
	if err != nil {
		return s.fail(c, err)
	}
	s.recordAdmission(added, rejected)

	status := fiber.StatusCreated
	if len(added) == 0 {
		status = fiber.StatusBadRequest
	}
	if added == nil {
		added = []record.ImageRecord{}
	}
	if rejected == nil {
		rejected = []imaging.Rejection{}
	}
	return c.Status(status).JSON(fiber.Map{
		"added":    added,
		"rejected": rejected,
	})
}

func (s *Server) handlePaste(c *fiber.Ctx) error {
	// The body buffer is reused by fasthttp after the handler returns,
	// and the store keeps source bytes for the record's lifetime.
	data := append([]byte(nil), c.Body()...)

	ct := c.Get("Content-Type")
	if ct == "" {
		ct = imaging.DetectContentType("", data)
	}

	filename := c.Get("X-Filename")
	if filename == "" {
		ext := imaging.ExtensionFor(ct)
		if ext == "" {
			ext = ".bin"
		}
		filename = "pasted-image" + ext
	}

	added, rejected, err := s.store.Add(imaging.Upload{
		Data:        data,
		Filename:    filename,
		ContentType: ct,
	})
	if err != nil {
		return s.fail(c, err)
	}
	s.recordAdmission(added, rejected)

	if len(added) == 0 {
		reason := "rejected"
		if len(rejected) > 0 {
			reason = rejected[0].Reason
		}
		return c.Status(400).JSON(fiber.Map{"error": reason})
	}
	return c.Status(201).JSON(added[0])
}

func (s *Server) handleListImages(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"records": s.store.Snapshot(),
		"counts":  s.store.Counts(),
	})
}

func (s *Server) handleGetImage(c *fiber.Ctx) error {
	rec, ok := s.store.Get(c.Params("id"))
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "image not found"})
	}
	return c.JSON(rec)
}

func (s *Server) handleGetPreview(c *fiber.Ctx) error {
	rec, ok := s.store.Get(c.Params("id"))
	if !ok || rec.Preview == nil {
		return c.Status(404).JSON(fiber.Map{"error": "preview not found"})
	}
	return c.SendFile(rec.Preview.Path())
}

func (s *Server) handleDownloadText(c *fiber.Ctx) error {
	rec, ok := s.store.Get(c.Params("id"))
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "image not found"})
	}
	if rec.Status != record.StatusCompleted {
		return c.Status(409).JSON(fiber.Map{"error": "text is not available until processing completes"})
	}

	base := strings.TrimSuffix(rec.Filename, filepath.Ext(rec.Filename))
	if base == "" {
		base = rec.ID
	}
	c.Set("Content-Disposition", `attachment; filename="`+sanitizeFilename(base)+`.txt"`)
	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(rec.Text)
}

func (s *Server) handleEditText(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	id := c.Params("id")
	if err := s.store.SetText(id, req.Text); err != nil {
		return s.fail(c, err)
	}

	rec, ok := s.store.Get(id)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "image not found"})
	}
	return c.JSON(rec)
}

func (s *Server) handleProcessImage(c *fiber.Ctx) error {
	id := c.Params("id")
	rec, ok := s.store.Get(id)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "image not found"})
	}
	if rec.Status == record.StatusCompleted {
		return c.Status(409).JSON(fiber.Map{"error": "image is already completed"})
	}

	go func() {
		if err := s.processor.Process(context.Background(), id); err != nil {
			s.logger.Warn("processing failed",
				zap.String("id", id),
				zap.Error(err))
		}
	}()

	return c.Status(202).JSON(fiber.Map{"id": id, "status": string(record.StatusProcessing)})
}

func (s *Server) handleProcessAll(c *fiber.Ctx) error {
	queued := len(s.store.PendingIDs())

	go func() {
		if _, err := s.processor.ProcessAll(context.Background()); err != nil {
			s.logger.Warn("batch run ended early", zap.Error(err))
		}
	}()

	return c.Status(202).JSON(fiber.Map{"queued": queued})
}

func (s *Server) handleEnhanceImage(c *fiber.Ctx) error {
	var req struct {
		Language           string `json:"language"`
		Context            string `json:"context"`
		PreserveFormatting bool   `json:"preserve_formatting"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
	}

	id := c.Params("id")
	rec, ok := s.store.Get(id)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "image not found"})
	}
	if rec.Status != record.StatusCompleted {
		return c.Status(409).JSON(fiber.Map{"error": "text is not available until processing completes"})
	}
	if !s.enhancer.Enabled() {
		return c.Status(409).JSON(fiber.Map{"error": apperrors.ErrEnhanceNotConfigured.Message})
	}

	enhanced := s.enhancer.Enhance(c.Context(), rec.Text, enhance.Options{
		Language:           req.Language,
		Context:            req.Context,
		PreserveFormatting: req.PreserveFormatting,
	})

	outcome := metrics.OutcomeFallback
	if enhanced != rec.Text {
		outcome = metrics.OutcomeEnhanced
	}
	s.metrics.EnhancementFinished(outcome)

	if err := s.store.SetText(id, enhanced); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "text": enhanced})
}

func (s *Server) handleRemoveImage(c *fiber.Ctx) error {
	if err := s.store.Remove(c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleClearImages(c *fiber.Ctx) error {
	removed := s.store.Clear()
	return c.JSON(fiber.Map{"removed": removed})
}

func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	cur := s.settings.Current()
	return c.JSON(fiber.Map{
		"language":      cur.Language,
		"page_seg_mode": cur.PageSegMode,
		"languages":     settings.SupportedLanguages,
		"engine":        s.engine.Name(),
	})
}

func (s *Server) handleUpdateSettings(c *fiber.Ctx) error {
	var req struct {
		Language    string `json:"language"`
		PageSegMode *int   `json:"page_seg_mode"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	next := s.settings.Current()
	if req.Language != "" {
		next.Language = req.Language
	}
	if req.PageSegMode != nil {
		next.PageSegMode = *req.PageSegMode
	}

	if err := s.settings.Set(next); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": errMessage(err)})
	}
	return c.JSON(s.settings.Current())
}

// recordAdmission feeds the admission counters.
func (s *Server) recordAdmission(added []record.ImageRecord, rejected []imaging.Rejection) {
	for range added {
		s.metrics.ImageAdded()
	}
	for _, r := range rejected {
		s.metrics.ValidationRejected(r.Reason)
	}
}

// fail maps store errors onto HTTP statuses, catalog code attached.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch apperrors.GetCode(err) {
	case apperrors.ErrImageNotFound.Code:
		status = fiber.StatusNotFound
	case apperrors.ErrIllegalTransition.Code, apperrors.ErrNotReprocessable.Code:
		status = fiber.StatusConflict
	case apperrors.ErrStoreClosed.Code:
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"error": errMessage(err),
		"code":  apperrors.GetCode(err),
	})
}

func errMessage(err error) string {
	if ae, ok := err.(*apperrors.AppError); ok {
		return ae.Message
	}
	return err.Error()
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(`"`, "_", "\r", "", "\n", "", "/", "_", "\\", "_")
	return replacer.Replace(name)
}
