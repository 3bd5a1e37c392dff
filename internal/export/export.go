// Package export turns a plan into a downloadable document.
package export

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"capillaire/internal/planner"
)

// DefaultTaskCount is how many days the document lists.
const DefaultTaskCount = 7

const documentTitle = "Meu Cronograma Capilar"

//go:embed plan.html.tmpl
var documentTemplate string

var tmpl = template.Must(template.New("plan").Parse(documentTemplate))

// Item is one listed day.
type Item struct {
	Day      int
	Category string
	Title    string
}

// Document is the data rendered into the export.
type Document struct {
	Title       string
	Summary     string
	Items       []Item
	GeneratedAt string
}

// NewDocument takes the summary and the first n tasks of plan. n <= 0 means
// DefaultTaskCount.
func NewDocument(plan planner.Plan, n int, now time.Time) Document {
	if n <= 0 {
		n = DefaultTaskCount
	}
	doc := Document{
		Title:       documentTitle,
		Summary:     plan.Summary,
		GeneratedAt: now.Format("02/01/2006"),
	}
	for i, t := range plan.Tasks {
		if i == n {
			break
		}
		doc.Items = append(doc.Items, Item{Day: t.Day, Category: t.Category.Label(), Title: t.Title})
	}
	return doc
}

// Render writes the HTML document for plan to w.
func Render(w io.Writer, plan planner.Plan, n int, now time.Time) error {
	if err := tmpl.Execute(w, NewDocument(plan, n, now)); err != nil {
		return fmt.Errorf("failed to render export: %w", err)
	}
	return nil
}

// Filename is the suggested download name.
func Filename(plan planner.Plan) string {
	return fmt.Sprintf("cronograma-capillaire-%s.html", plan.CreatedAt.Format("2006-01-02"))
}
