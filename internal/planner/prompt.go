package planner

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"capillaire/internal/diagnosis"
)

//go:embed plan_prompt.md
var planPrompt string

var planTemplate = template.Must(template.New("plan").Parse(planPrompt))

type planPromptData struct {
	Days          int
	Goal          string
	Curvature     string
	Scalp         string
	Porosity      string
	Chemicals     bool
	WashFrequency string
	Budget        string
}

func buildPlanPrompt(d diagnosis.Diagnosis) (string, error) {
	var buf bytes.Buffer
	err := planTemplate.Execute(&buf, planPromptData{
		Days:          TotalDays,
		Goal:          d.Goal.Label(),
		Curvature:     d.Curvature.Label(),
		Scalp:         d.Scalp.Label(),
		Porosity:      d.Porosity.Label(),
		Chemicals:     d.Chemicals,
		WashFrequency: d.WashFrequency,
		Budget:        d.Budget.Label(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render plan prompt: %w", err)
	}
	return buf.String(), nil
}
