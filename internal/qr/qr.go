// Package qr renders QR codes as standalone SVG documents.
package qr

import (
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// SVG encodes content into a QR code and renders it as an SVG document.
// One viewBox unit per module; horizontal runs of dark modules collapse
// into single rects to keep the output small.
func SVG(content string) (string, error) {
	if content == "" {
		return "", errors.New("qr content is empty")
	}

	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("qr encoding failed: %w", err)
	}

	bitmap := code.Bitmap()
	size := len(bitmap)

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" shape-rendering="crispEdges">`, size, size)
	b.WriteString(`<rect width="100%" height="100%" fill="#ffffff"/>`)

	for y, row := range bitmap {
		for x := 0; x < len(row); {
			if !row[x] {
				x++
				continue
			}
			run := 1
			for x+run < len(row) && row[x+run] {
				run++
			}
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="1" fill="#000000"/>`, x, y, run)
			x += run
		}
	}

	b.WriteString(`</svg>`)
	return b.String(), nil
}
