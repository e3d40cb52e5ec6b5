package server

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const qrModuleSize = 4 // pixels per QR module in the rendered SVG

// renderQRSVG encodes content as a QR code and renders it as a standalone
// SVG document. The web app inlines the SVG on the pairing screen, so the
// output carries its own viewBox and no fixed pixel size.
func renderQRSVG(content string) (string, error) {
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR content: %w", err)
	}

	bitmap := code.Bitmap()
	size := len(bitmap) * qrModuleSize

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" shape-rendering="crispEdges">`, size, size)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#ffffff"/>`, size, size)

	for y, row := range bitmap {
		// run-length encode each row so the SVG stays small
		x := 0
		for x < len(row) {
			if !row[x] {
				x++
				continue
			}
			start := x
			for x < len(row) && row[x] {
				x++
			}
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="#000000"/>`,
				start*qrModuleSize, y*qrModuleSize, (x-start)*qrModuleSize, qrModuleSize)
		}
	}

	b.WriteString(`</svg>`)
	return b.String(), nil
}
