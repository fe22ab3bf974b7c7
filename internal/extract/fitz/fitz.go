// Package fitz renders PDF pages with MuPDF.
package fitz

import (
	"image"

	gofitz "github.com/gen2brain/go-fitz"
	"github.com/pkg/errors"
)

type Rasterizer struct{}

func New() *Rasterizer { return &Rasterizer{} }

// Rasterize renders each page of the PDF in data at dpi.
func (Rasterizer) Rasterize(data []byte, dpi float64) ([]image.Image, error) {
	doc, err := gofitz.NewFromMemory(data)
	if err != nil {
		return nil, errors.Wrap(err, "open pdf")
	}
	defer doc.Close()

	pages := make([]image.Image, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		img, err := doc.ImageDPI(n, dpi)
		if err != nil {
			return nil, errors.Wrapf(err, "render page %d", n+1)
		}
		pages = append(pages, img)
	}
	return pages, nil
}
