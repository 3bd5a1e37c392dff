package planner

import (
	"strings"
	"time"

	"capillaire/internal/diagnosis"
)

// TotalDays is the fixed length of every plan.
const TotalDays = 30

// Category of a day's care task.
type Category string

const (
	CategoryHydration      Category = "hydration"
	CategoryNutrition      Category = "nutrition"
	CategoryReconstruction Category = "reconstruction"
	CategoryRest           Category = "rest"
	CategoryDetox          Category = "detox"
)

var categoryAliases = map[string]Category{
	"hydration":      CategoryHydration,
	"hidratação":     CategoryHydration,
	"hidratacao":     CategoryHydration,
	"nutrition":      CategoryNutrition,
	"nutrição":       CategoryNutrition,
	"nutricao":       CategoryNutrition,
	"reconstruction": CategoryReconstruction,
	"reconstrução":   CategoryReconstruction,
	"reconstrucao":   CategoryReconstruction,
	"rest":           CategoryRest,
	"descanso":       CategoryRest,
	"detox":          CategoryDetox,
}

// ParseCategory maps English or Portuguese category names onto Category.
// Unknown names are kept, lowercased, so nothing the model wrote is lost.
func ParseCategory(s string) Category {
	key := strings.ToLower(strings.TrimSpace(s))
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return Category(key)
}

// Known reports whether c is one of the five categories.
func (c Category) Known() bool {
	switch c {
	case CategoryHydration, CategoryNutrition, CategoryReconstruction, CategoryRest, CategoryDetox:
		return true
	}
	return false
}

func (c Category) Label() string {
	switch c {
	case CategoryHydration:
		return "Hidratação"
	case CategoryNutrition:
		return "Nutrição"
	case CategoryReconstruction:
		return "Reconstrução"
	case CategoryRest:
		return "Descanso"
	case CategoryDetox:
		return "Detox"
	}
	return string(c)
}

// DayTask is the care task for one day of a plan.
type DayTask struct {
	Day         int      `json:"day"`
	Category    Category `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Recipe      *string  `json:"recipe,omitempty"`
	Completed   bool     `json:"completed"`
}

// Plan is a generated 30-day sequence of care tasks tied to one Diagnosis.
type Plan struct {
	ID        string              `json:"id"`
	CreatedAt time.Time           `json:"created_at"`
	Diagnosis diagnosis.Diagnosis `json:"diagnosis"`
	Tasks     []DayTask           `json:"tasks"`
	Summary   string              `json:"summary"`
}

// Clone returns a deep copy of p.
func (p Plan) Clone() Plan {
	out := p
	if p.Tasks != nil {
		out.Tasks = make([]DayTask, len(p.Tasks))
		for i, t := range p.Tasks {
			if t.Recipe != nil {
				r := *t.Recipe
				t.Recipe = &r
			}
			out.Tasks[i] = t
		}
	}
	return out
}

// Task returns the task scheduled for day.
func (p Plan) Task(day int) (DayTask, bool) {
	for _, t := range p.Tasks {
		if t.Day == day {
			return t, true
		}
	}
	return DayTask{}, false
}
