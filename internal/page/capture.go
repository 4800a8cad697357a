package page

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dhruvsoni1802/browser-bridge/internal/accessibility"
)

// ScreenshotOptions controls Page.captureScreenshot
type ScreenshotOptions struct {
	Format   string // png (default), jpeg or webp
	Quality  int    // 0-100, jpeg and webp only
	FullPage bool
	Clip     *accessibility.Bounds
}

type screenshotParams struct {
	Format                string    `json:"format"`
	Quality               int       `json:"quality,omitempty"`
	CaptureBeyondViewport bool      `json:"captureBeyondViewport"`
	Clip                  *clipRect `json:"clip,omitempty"`
}

type clipRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Scale  float64 `json:"scale"`
}

// CaptureScreenshot returns base64 image data
func (p *Page) CaptureScreenshot(ctx context.Context, opts ScreenshotOptions) (string, error) {
	format := strings.ToLower(opts.Format)
	switch format {
	case "":
		format = "png"
	case "png", "jpeg", "webp":
	case "jpg":
		format = "jpeg"
	default:
		return "", fmt.Errorf("unsupported screenshot format %q", opts.Format)
	}

	params := screenshotParams{
		Format:                format,
		CaptureBeyondViewport: opts.FullPage,
	}
	if format != "png" && opts.Quality > 0 {
		params.Quality = min(opts.Quality, 100)
	}
	if opts.Clip != nil {
		params.Clip = &clipRect{X: opts.Clip.X, Y: opts.Clip.Y, Width: opts.Clip.Width, Height: opts.Clip.Height, Scale: 1}
	}

	var res struct {
		Data string `json:"data"`
	}
	if err := p.call(ctx, "Page.captureScreenshot", params, &res); err != nil {
		return "", err
	}
	if res.Data == "" {
		return "", errors.New("no screenshot data in response")
	}
	return res.Data, nil
}

// CaptureElement screenshots the first element matching selector
func (p *Page) CaptureElement(ctx context.Context, selector string) (string, error) {
	ids, err := p.QuerySelectorAll(ctx, selector)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("element not found: %s", selector)
	}

	bounds, err := p.BoxModel(ctx, ids[0])
	if err != nil {
		return "", err
	}
	return p.CaptureScreenshot(ctx, ScreenshotOptions{Clip: &bounds})
}

// PDFOptions controls Page.printToPDF. Nil fields use the browser default.
type PDFOptions struct {
	Landscape       *bool    `json:"landscape,omitempty"`
	PrintBackground *bool    `json:"printBackground,omitempty"`
	Scale           *float64 `json:"scale,omitempty"`
	PaperWidth      *float64 `json:"paperWidth,omitempty"`
	PaperHeight     *float64 `json:"paperHeight,omitempty"`
	MarginTop       *float64 `json:"marginTop,omitempty"`
	MarginBottom    *float64 `json:"marginBottom,omitempty"`
	MarginLeft      *float64 `json:"marginLeft,omitempty"`
	MarginRight     *float64 `json:"marginRight,omitempty"`
	PageRanges      string   `json:"pageRanges,omitempty"`
}

// DefaultPDFOptions prints backgrounds in portrait with 0.4in margins
func DefaultPDFOptions() PDFOptions {
	f, t := false, true
	margin := 0.4
	return PDFOptions{
		Landscape:       &f,
		PrintBackground: &t,
		MarginTop:       &margin,
		MarginBottom:    &margin,
		MarginLeft:      &margin,
		MarginRight:     &margin,
	}
}

// PrintToPDF returns base64 PDF data. Only headless Chrome supports it.
func (p *Page) PrintToPDF(ctx context.Context, opts PDFOptions) (string, error) {
	var res struct {
		Data string `json:"data"`
	}
	if err := p.call(ctx, "Page.printToPDF", opts, &res); err != nil {
		return "", err
	}
	if res.Data == "" {
		return "", errors.New("no PDF data in response")
	}
	return res.Data, nil
}
