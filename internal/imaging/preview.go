package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Handle is an opaque disposable preview resource. Release must be safe
// to call more than once; only the first call deletes the backing file.
type Handle interface {
	Path() string
	Release() error
}

// Preview is a file-backed Handle holding a downscaled rendition of the
// source payload.
type Preview struct {
	path string
	once sync.Once
}

func (p *Preview) Path() string { return p.path }

func (p *Preview) Release() error {
	var err error
	p.once.Do(func() {
		err = os.Remove(p.path)
	})
	return err
}

// PreviewFactory allocates a Handle for an admitted upload.
type PreviewFactory func(id string, upload Upload) (Handle, error)

// NewPreviewFactory returns a factory that writes PNG thumbnails (longest
// edge capped at maxEdge) under dir. Payloads that were admitted but do
// not decode fall back to a raw byte copy, so admission never fails on
// preview derivation alone.
func NewPreviewFactory(dir string, maxEdge int) (PreviewFactory, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create preview directory: %w", err)
	}

	return func(id string, upload Upload) (Handle, error) {
		img, _, err := image.Decode(bytes.NewReader(upload.Data))
		if err != nil {
			return rawCopy(dir, id, upload)
		}

		path := filepath.Join(dir, id+".png")
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create preview file: %w", err)
		}
		if err := png.Encode(f, downscale(img, maxEdge)); err != nil {
			f.Close()
			os.Remove(path)
			return nil, fmt.Errorf("failed to encode preview: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return nil, err
		}
		return &Preview{path: path}, nil
	}, nil
}

func rawCopy(dir, id string, upload Upload) (Handle, error) {
	ext := filepath.Ext(upload.Filename)
	if ext == "" {
		ext = ".bin"
	}
	path := filepath.Join(dir, id+ext)
	if err := os.WriteFile(path, upload.Data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write preview copy: %w", err)
	}
	return &Preview{path: path}, nil
}

func downscale(src image.Image, maxEdge int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxEdge && h <= maxEdge {
		return src
	}

	var nw, nh int
	if w >= h {
		nw = maxEdge
		nh = h * maxEdge / w
	} else {
		nh = maxEdge
		nw = w * maxEdge / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
