package llm

import "github.com/google/generative-ai-go/genai"

// PlanSchema is the structured response requested from the plan model:
// {summary, tasks: [{day, title, category, description, recipe?}]}.
var PlanSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {Type: genai.TypeString},
		"tasks": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"day":         {Type: genai.TypeInteger},
					"title":       {Type: genai.TypeString},
					"category":    {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
					"recipe":      {Type: genai.TypeString},
				},
				Required: []string{"day", "title", "category", "description"},
			},
		},
	},
	Required: []string{"summary", "tasks"},
}
