package qr

import (
	"strings"
	"testing"
)

func TestSVG(t *testing.T) {
	svg, err := SVG("vpn://AAABbnicY2BgYGQAAAAE")
	if err != nil {
		t.Fatalf("SVG: %v", err)
	}

	if !strings.HasPrefix(svg, `<svg xmlns="http://www.w3.org/2000/svg"`) {
		t.Errorf("not an svg document: %.60s", svg)
	}
	if !strings.HasSuffix(svg, "</svg>") {
		t.Error("svg document not closed")
	}
	if strings.Count(svg, "<rect") < 10 {
		t.Error("suspiciously few modules rendered")
	}
	if !strings.Contains(svg, `fill="#ffffff"`) || !strings.Contains(svg, `fill="#000000"`) {
		t.Error("missing background or module fill")
	}
}

func TestSVGDeterministic(t *testing.T) {
	a, err := SVG("vpn://token")
	if err != nil {
		t.Fatal(err)
	}
	b, err := SVG("vpn://token")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same content should render identically")
	}
}

func TestSVGErrors(t *testing.T) {
	if _, err := SVG(""); err == nil {
		t.Error("empty content should fail")
	}

	// Beyond QR capacity.
	if _, err := SVG(strings.Repeat("a", 4000)); err == nil {
		t.Error("oversized content should fail")
	}
}
