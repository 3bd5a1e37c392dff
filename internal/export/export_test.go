package export

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"capillaire/internal/planner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plan(n int) planner.Plan {
	p := planner.Plan{
		ID:        "p1",
		CreatedAt: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		Summary:   "Foco em hidratação <profunda>",
	}
	for d := 1; d <= n; d++ {
		p.Tasks = append(p.Tasks, planner.DayTask{Day: d, Category: planner.CategoryHydration, Title: fmt.Sprintf("Tarefa %d", d)})
	}
	return p
}

func TestRenderAndPreview(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, plan(30), 0, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)))

	html := buf.String()
	assert.Contains(t, html, "&lt;profunda&gt;", "summary is escaped")
	assert.Contains(t, html, "05/03/2026")

	p, err := ReadPreview(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, documentTitle, p.Title)
	assert.Equal(t, "Foco em hidratação <profunda>", p.Summary)
	require.Len(t, p.Items, DefaultTaskCount)
	assert.Equal(t, "Dia 1: Tarefa 1", p.Items[0])
	assert.Equal(t, "Dia 7: Tarefa 7", p.Items[6])
}

func TestNewDocumentShortPlan(t *testing.T) {
	doc := NewDocument(plan(3), 10, time.Now())
	assert.Len(t, doc.Items, 3)

	doc = NewDocument(plan(30), 2, time.Now())
	assert.Len(t, doc.Items, 2)
	assert.Equal(t, planner.CategoryHydration.Label(), doc.Items[0].Category)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "cronograma-capillaire-2026-03-04.html", Filename(plan(1)))
}

func TestCaptionLimit(t *testing.T) {
	p := Preview{Title: "T", Summary: "resumo", Items: []string{"Dia 1: a", "Dia 2: b"}}
	assert.Equal(t, "T\nresumo\n• Dia 1: a\n• Dia 2: b", p.Caption(0))

	short := p.Caption(5)
	assert.Equal(t, 5, len([]rune(short)))
	assert.True(t, strings.HasSuffix(short, "…"))
}
