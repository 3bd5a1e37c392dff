package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Preview is what a rendered document says, read back from its HTML.
type Preview struct {
	Title   string
	Summary string
	Items   []string
}

// ReadPreview parses a rendered document.
func ReadPreview(r io.Reader) (Preview, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Preview{}, fmt.Errorf("failed to parse export: %w", err)
	}

	p := Preview{
		Title:   strings.TrimSpace(doc.Find("h1").First().Text()),
		Summary: strings.TrimSpace(doc.Find("p.summary").First().Text()),
	}
	doc.Find("ol.tasks li").Each(func(_ int, s *goquery.Selection) {
		day, _ := s.Attr("data-day")
		title := strings.TrimSpace(s.Find(".title").Text())
		p.Items = append(p.Items, fmt.Sprintf("Dia %s: %s", day, title))
	})
	return p, nil
}

// Caption is a short plain-text version of the preview for chat surfaces.
func (p Preview) Caption(limit int) string {
	var sb strings.Builder
	sb.WriteString(p.Title)
	if p.Summary != "" {
		sb.WriteString("\n")
		sb.WriteString(p.Summary)
	}
	for _, item := range p.Items {
		sb.WriteString("\n• ")
		sb.WriteString(item)
	}
	out := sb.String()
	if limit > 0 && len([]rune(out)) > limit {
		out = string([]rune(out)[:limit-1]) + "…"
	}
	return out
}
