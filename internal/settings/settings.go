// Package settings holds the shared OCR configuration read by the batch
// processor at the start of each image. It is mutated only by explicit
// user action and never snapshotted for a whole batch, so a change made
// mid-run applies to every image not yet started.
package settings

import (
	"sync"

	"github.com/tuanvc/snaptext/internal/errors"
)

// OCRSettings is the language and page segmentation mode pair passed to
// the recognition engine.
type OCRSettings struct {
	Language    string `json:"language"`
	PageSegMode int    `json:"page_seg_mode"`
}

// SupportedLanguages lists the tesseract traineddata identifiers this
// service accepts.
var SupportedLanguages = []string{
	"eng", "vie", "fra", "deu", "spa", "ita", "por", "nld",
	"pol", "rus", "jpn", "kor", "chi_sim", "chi_tra", "ara",
	"tha", "hin",
}

const (
	MinPageSegMode = 0
	MaxPageSegMode = 13
)

var supportedLanguageSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(SupportedLanguages))
	for _, lang := range SupportedLanguages {
		set[lang] = struct{}{}
	}
	return set
}()

// IsSupportedLanguage reports whether lang is in the supported set.
func IsSupportedLanguage(lang string) bool {
	_, ok := supportedLanguageSet[lang]
	return ok
}

// Store guards the shared settings pair for concurrent readers.
type Store struct {
	mu      sync.RWMutex
	current OCRSettings
}

// New builds a settings store, validating the initial values.
func New(language string, pageSegMode int) (*Store, error) {
	s := &Store{}
	if err := s.Set(OCRSettings{Language: language, PageSegMode: pageSegMode}); err != nil {
		return nil, err
	}
	return s, nil
}

// Set replaces the current settings after validation.
func (s *Store) Set(next OCRSettings) error {
	if !IsSupportedLanguage(next.Language) {
		return errors.New(errors.ErrUnsupportedLanguage.Code, "unsupported language: "+next.Language)
	}
	if next.PageSegMode < MinPageSegMode || next.PageSegMode > MaxPageSegMode {
		return errors.ErrInvalidSegMode
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}

// Current returns a copy of the settings as they are right now. The
// processor calls this at each image's processing-start instant.
func (s *Store) Current() OCRSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
