package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract is the gosseract-backed engine. A fresh client is created
// per recognition so a failed attempt cannot poison later ones.
type Tesseract struct {
	dataPath      string
	clientFactory func() *gosseract.Client
}

// NewTesseract constructs a tesseract engine. dataPath optionally points
// at a traineddata directory and may be empty.
func NewTesseract(dataPath string) *Tesseract {
	return &Tesseract{
		dataPath:      dataPath,
		clientFactory: gosseract.NewClient,
	}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Available reports whether the tesseract runtime can enumerate its
// installed languages.
func (t *Tesseract) Available() bool {
	_, err := gosseract.GetAvailableLanguages()
	return err == nil
}

// Languages lists the installed traineddata identifiers.
func (t *Tesseract) Languages() ([]string, error) {
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	return langs, nil
}

// Recognize performs OCR on one image.
func (t *Tesseract) Recognize(ctx context.Context, req Request) (Result, error) {
	c := t.clientFactory()
	defer c.Close()

	report := func(f float64) {
		if req.Progress != nil {
			req.Progress(f)
		}
	}

	if t.dataPath != "" {
		if err := c.SetTessdataPrefix(t.dataPath); err != nil {
			return Result{}, MarkTransient(fmt.Errorf("worker setup failed: %w", err))
		}
	}
	report(0.1)

	if err := c.SetImageFromBytes(req.Image); err != nil {
		return Result{}, fmt.Errorf("set image: %w", err)
	}
	if req.Language != "" {
		if err := c.SetLanguage(req.Language); err != nil {
			return Result{}, fmt.Errorf("set language: %w", err)
		}
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(req.PageSegMode)); err != nil {
		return Result{}, fmt.Errorf("set page segmentation mode: %w", err)
	}
	report(0.3)

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	text, err := c.Text()
	if err != nil {
		return Result{}, fmt.Errorf("recognition worker failed: %w", err)
	}
	report(1.0)

	return Result{Text: strings.TrimSpace(text)}, nil
}
