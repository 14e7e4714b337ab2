package presentation

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Slide is a single page of a deck. Content is a standalone HTML fragment
// rendered into a fixed 16:9 page.
type Slide struct {
	HTML string `json:"html"`
}

// Deck is the structured document handed to a Converter.
type Deck struct {
	Title  string  `json:"title"`
	Slides []Slide `json:"slides"`
}

// Converter renders a structured deck into a file. The ledger core treats
// the rendering engine as an opaque collaborator behind this interface.
type Converter interface {
	Convert(ctx context.Context, deck Deck) ([]byte, error)
	ContentType() string
	Extension() string
}

// ChromiumConverter renders decks to PDF through headless Chromium.
type ChromiumConverter struct {
	execPath string
	timeout  time.Duration
}

// NewChromiumConverter creates the default PDF converter.
func NewChromiumConverter(execPath string) *ChromiumConverter {
	return &ChromiumConverter{
		execPath: execPath,
		timeout:  60 * time.Second,
	}
}

func (c *ChromiumConverter) ContentType() string { return "application/pdf" }
func (c *ChromiumConverter) Extension() string   { return ".pdf" }

// Convert renders each slide as one 16:9 landscape PDF page.
func (c *ChromiumConverter) Convert(ctx context.Context, deck Deck) ([]byte, error) {
	if len(deck.Slides) == 0 {
		return nil, fmt.Errorf("deck must have at least one slide")
	}

	htmlContent := renderDeckHTML(deck)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(c.execPath),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, c.timeout)
	defer cancel()

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.Sleep(2*time.Second), // let fonts and slide styles settle
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(false).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				WithPaperWidth(10.67). // 16:9 landscape
				WithPaperHeight(6).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render deck: %w", err)
	}
	return pdf, nil
}

// renderDeckHTML wraps each slide's body into a page-break div inside one
// printable document.
func renderDeckHTML(deck Deck) string {
	var pages strings.Builder
	for i, slide := range deck.Slides {
		pages.WriteString(fmt.Sprintf(`<div class="slide-page slide-%d">%s</div>
`, i+1, extractBody(slide.HTML)))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>%s</title>
<style>
	@page { size: 10.67in 6in; margin: 0; }
	* { margin: 0; padding: 0; box-sizing: border-box; }
	.slide-page {
		width: 10.67in;
		height: 6in;
		page-break-after: always;
		page-break-inside: avoid;
		position: relative;
		overflow: hidden;
	}
	.slide-page:last-child { page-break-after: auto; }
</style>
</head>
<body>
%s
</body>
</html>`, html.EscapeString(deck.Title), pages.String())
}

// extractBody pulls the inner body content out of a standalone HTML
// fragment; fragments without a body tag are used as-is.
func extractBody(slideHTML string) string {
	lower := strings.ToLower(slideHTML)
	start := strings.Index(lower, "<body")
	end := strings.Index(lower, "</body>")
	if start == -1 || end == -1 || end < start {
		return slideHTML
	}
	tagEnd := strings.Index(slideHTML[start:], ">")
	if tagEnd == -1 {
		return slideHTML
	}
	return slideHTML[start+tagEnd+1 : end]
}
