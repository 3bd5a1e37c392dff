package diagnosis

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Curvature is the hair curvature category.
type Curvature string

const (
	CurvatureStraight Curvature = "straight"
	CurvatureWavy     Curvature = "wavy"
	CurvatureCurly    Curvature = "curly"
	CurvatureCoily    Curvature = "coily"
)

// Scalp is the scalp category.
type Scalp string

const (
	ScalpDry       Scalp = "dry"
	ScalpOily      Scalp = "oily"
	ScalpNormal    Scalp = "normal"
	ScalpSensitive Scalp = "sensitive"
)

type Porosity string

const (
	PorosityLow    Porosity = "low"
	PorosityMedium Porosity = "medium"
	PorosityHigh   Porosity = "high"
)

type Budget string

const (
	BudgetLow     Budget = "low"
	BudgetMedium  Budget = "medium"
	BudgetPremium Budget = "premium"
)

// Goal is the primary result the visitor wants from the plan.
type Goal string

const (
	GoalGrowth       Goal = "growth"
	GoalStrength     Goal = "strength"
	GoalHydration    Goal = "hydration"
	GoalDefinition   Goal = "definition"
	GoalDamageRepair Goal = "damage-repair"
)

// DefaultWashFrequency is used when the profile comes from the quiz, which
// never asks about it.
const DefaultWashFrequency = "2-3 vezes por semana"

// Diagnosis is the normalized hair and scalp profile used to parameterize
// plan generation. It is a value type; copy it freely.
type Diagnosis struct {
	Curvature     Curvature `json:"curvature" validate:"oneof=straight wavy curly coily"`
	Scalp         Scalp     `json:"scalp" validate:"oneof=dry oily normal sensitive"`
	Porosity      Porosity  `json:"porosity" validate:"oneof=low medium high"`
	Chemicals     bool      `json:"chemicals"`
	WashFrequency string    `json:"wash_frequency"`
	Budget        Budget    `json:"budget" validate:"oneof=low medium premium"`
	Goal          Goal      `json:"goal" validate:"oneof=growth strength hydration definition damage-repair"`
}

// Validate rejects values outside the enumerations. Profiles built by
// FromQuiz always pass.
func (d Diagnosis) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid diagnosis: %w", err)
	}
	return nil
}

// Lead is the contact identity captured at the end of the quiz.
type Lead struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

func (l Lead) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("invalid lead: %w", err)
	}
	return nil
}

// Labels used by the generation prompt and user-facing copy.

func (c Curvature) Label() string {
	switch c {
	case CurvatureStraight:
		return "Liso"
	case CurvatureWavy:
		return "Ondulado"
	case CurvatureCurly:
		return "Cacheado"
	case CurvatureCoily:
		return "Crespo"
	}
	return string(c)
}

func (s Scalp) Label() string {
	switch s {
	case ScalpDry:
		return "Seco"
	case ScalpOily:
		return "Oleoso"
	case ScalpNormal:
		return "Normal"
	case ScalpSensitive:
		return "Sensível"
	}
	return string(s)
}

func (p Porosity) Label() string {
	switch p {
	case PorosityLow:
		return "Baixa"
	case PorosityMedium:
		return "Média"
	case PorosityHigh:
		return "Alta"
	}
	return string(p)
}

func (b Budget) Label() string {
	switch b {
	case BudgetLow:
		return "Baixo (Caseiro)"
	case BudgetMedium:
		return "Médio"
	case BudgetPremium:
		return "Premium"
	}
	return string(b)
}

func (g Goal) Label() string {
	switch g {
	case GoalGrowth:
		return "Crescimento"
	case GoalStrength:
		return "Força/Queda"
	case GoalHydration:
		return "Hidratação/Brilho"
	case GoalDefinition:
		return "Definição"
	case GoalDamageRepair:
		return "Reparação de Danos"
	}
	return string(g)
}
