package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storygen/backend/internal/models"
	"storygen/backend/internal/repository"
	"storygen/backend/pkg/logger"
	"storygen/backend/shared/observability"
)

const (
	pdfMarginMM     = 15
	pdfFontSize     = 14
	pdfLineHeightMM = 8
	pdfImageWidthMM = 170
	pdfImageGapMM   = 6
)

// pageWriter lays out one document. Text may fail with ErrEncodingFault.
type pageWriter interface {
	Unicode() bool
	AddPage()
	Text(s string) error
	Image(path string)
	Save(path string) error
}

// DocumentExporter composes a session into a paginated PDF: one page per
// beat with its illustration below the prose when the file exists.
type DocumentExporter struct {
	sessions  repository.SessionRepository
	outputDir string
	fonts     []string
	newWriter func(fontPath string) pageWriter
	metrics   *observability.StoryMetrics
	log       *logger.Logger
}

func NewDocumentExporter(sessions repository.SessionRepository, outputDir string, fontCandidates []string,
	metrics *observability.StoryMetrics, log *logger.Logger) *DocumentExporter {
	return &DocumentExporter{
		sessions:  sessions,
		outputDir: outputDir,
		fonts:     fontCandidates,
		newWriter: newFpdfWriter,
		metrics:   metrics,
		log:       log,
	}
}

// DocumentPath is where the document for a session is written.
func (e *DocumentExporter) DocumentPath(sessionID string) string {
	return filepath.Join(e.outputDir, "pdf", sessionID+".pdf")
}

// Export writes the document and returns its path. Repeated exports
// overwrite. Without a usable Unicode font the text is sanitized up front;
// an encoding fault triggers one sanitized retry with the core font.
func (e *DocumentExporter) Export(ctx context.Context, sessionID string) (string, error) {
	ctx, span := tracer.Start(ctx, "DocumentExporter.Export",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	path, err := e.export(ctx, sessionID)
	e.metrics.Export(ctx, "pdf", outcome(err))
	if err != nil {
		span.RecordError(err)
	}
	return path, err
}

func (e *DocumentExporter) export(ctx context.Context, sessionID string) (string, error) {
	log := e.log.WithSessionID(sessionID)

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", storeError(err, sessionID)
	}
	if len(sess.Beats) == 0 {
		return "", precondition("session has no beats to export")
	}

	out := e.DocumentPath(sessionID)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}

	font := e.locateFont()
	w := e.newWriter(font)
	err = e.compose(w, sess, !w.Unicode(), out)
	if errors.Is(err, ErrEncodingFault) {
		log.Warn("Document hit an encoding fault, retrying sanitized with core font", "error", err.Error())
		w = e.newWriter("")
		err = e.compose(w, sess, true, out)
	}
	if err != nil {
		log.LogError(err, "Document export failed")
		return "", err
	}

	log.Info("Exported document", "path", out, "unicode", w.Unicode())
	return filepath.ToSlash(out), nil
}

func (e *DocumentExporter) compose(w pageWriter, sess *models.Session, sanitize bool, out string) error {
	for i, b := range sess.Beats {
		text := b.Text
		if sanitize {
			text = SanitizePunctuation(text)
		}
		w.AddPage()
		if err := w.Text(text); err != nil {
			return fmt.Errorf("beat %d: %w", i+1, err)
		}
		if i < len(sess.Artifacts) && fileExists(sess.Artifacts[i]) {
			w.Image(sess.Artifacts[i])
		}
	}
	return w.Save(out)
}

// locateFont returns the first font candidate that exists, or "".
func (e *DocumentExporter) locateFont() string {
	for _, p := range e.fonts {
		if fileExists(p) {
			return p
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, ErrEncodingFault):
		return "encoding_fault"
	case errors.Is(err, ErrCollaboratorFailure):
		return "collaborator_failure"
	}
	return "error"
}

// fpdfWriter renders with a registered UTF-8 TrueType font when one loads,
// otherwise with the Helvetica core font.
type fpdfWriter struct {
	pdf     *fpdf.Fpdf
	unicode bool
}

func newFpdfWriter(fontPath string) pageWriter {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, pdfMarginMM)

	w := &fpdfWriter{pdf: pdf}
	if fontPath != "" {
		pdf.AddUTF8Font("Uni", "", fontPath)
		if pdf.Ok() {
			pdf.SetFont("Uni", "", pdfFontSize)
			w.unicode = true
		} else {
			pdf.ClearError()
		}
	}
	if !w.unicode {
		pdf.SetFont("Helvetica", "", pdfFontSize)
	}
	return w
}

func (w *fpdfWriter) Unicode() bool { return w.unicode }

func (w *fpdfWriter) AddPage() { w.pdf.AddPage() }

func (w *fpdfWriter) Text(s string) error {
	if !w.unicode {
		encoded, err := encodeCoreFont(s)
		if err != nil {
			return err
		}
		s = encoded
	}
	w.pdf.MultiCell(0, pdfLineHeightMM, s, "", "", false)
	return w.pdf.Error()
}

// Image places the picture below the text. Unreadable images are skipped.
func (w *fpdfWriter) Image(path string) {
	opts := fpdf.ImageOptions{ReadDpi: true}
	w.pdf.RegisterImageOptions(path, opts)
	if !w.pdf.Ok() {
		w.pdf.ClearError()
		return
	}
	w.pdf.Ln(pdfImageGapMM)
	w.pdf.ImageOptions(path, w.pdf.GetX(), 0, pdfImageWidthMM, 0, true, opts, 0, "")
}

func (w *fpdfWriter) Save(path string) error {
	if err := w.pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}
