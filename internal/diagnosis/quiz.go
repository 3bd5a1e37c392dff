package diagnosis

import (
	"fmt"
	"math"
	"strings"
)

// QuestionID identifies one of the fixed quiz questions.
type QuestionID string

const (
	QuestionType      QuestionID = "tipo"
	QuestionHairLoss  QuestionID = "queda"
	QuestionChemicals QuestionID = "quimica"
	QuestionProblem   QuestionID = "problema"
	QuestionDuration  QuestionID = "tempo"
	QuestionOutcome   QuestionID = "resultado"
)

// Question is one wizard step.
type Question struct {
	ID      QuestionID
	Title   string
	Options []string
}

// Questions is the ordered quiz. The option strings are persisted verbatim
// with the lead, so changing them breaks older client records.
var Questions = []Question{
	{ID: QuestionType, Title: "Qual é o seu tipo de cabelo?", Options: []string{"Liso", "Ondulado", "Cacheado", "Crespo"}},
	{ID: QuestionHairLoss, Title: "Seu cabelo está com queda excessiva?", Options: []string{"Sim, muita queda", "Um pouco", "Quase nada", "Não tenho queda"}},
	{ID: QuestionChemicals, Title: "Seu cabelo tem química?", Options: []string{"Tintura", "Progressiva", "Descoloração", "Nenhuma química"}},
	{ID: QuestionProblem, Title: "Qual é o principal problema hoje?", Options: []string{"Queda", "Frizz", "Ressecamento", "Quebra", "Crescimento lento"}},
	{ID: QuestionDuration, Title: "Há quanto tempo você sente esse problema?", Options: []string{"Menos de 1 mês", "1 a 3 meses", "3 a 6 meses", "Mais de 6 meses"}},
	{ID: QuestionOutcome, Title: "Qual resultado você mais deseja?", Options: []string{"Parar a queda", "Crescer mais rápido", "Ficar mais hidratado", "Diminuir frizz", "Recuperar danos"}},
}

const (
	answerHeavyLoss   = "Sim, muita queda"
	answerNoChemicals = "Nenhuma química"
	answerBleached    = "Descoloração"
	answerDryness     = "Ressecamento"
	answerBreakage    = "Quebra"
)

// QuestionAt returns the question shown at a zero-based wizard step.
func QuestionAt(step int) (Question, bool) {
	if step < 0 || step >= len(Questions) {
		return Question{}, false
	}
	return Questions[step], true
}

// Progress is the wizard completion percentage shown before answering step.
func Progress(step int) int {
	return int(math.Round(float64(step) / float64(len(Questions)) * 100))
}

// QuizAnswers maps question ids to the selected option. Methods never mutate
// the receiver.
type QuizAnswers map[QuestionID]string

// Answer records option for id and returns the new answers. A question that
// already has an answer must be restarted first.
func (a QuizAnswers) Answer(id QuestionID, option string) (QuizAnswers, error) {
	q, ok := lookup(id)
	if !ok {
		return a, fmt.Errorf("unknown question %q", id)
	}
	if _, answered := a[id]; answered {
		return a, fmt.Errorf("question %q already answered", id)
	}
	valid := false
	for _, o := range q.Options {
		if o == option {
			valid = true
			break
		}
	}
	if !valid {
		return a, fmt.Errorf("option %q is not valid for question %q", option, id)
	}

	next := a.clone()
	next[id] = option
	return next, nil
}

// Restart drops the answer for id so the step can be answered again.
func (a QuizAnswers) Restart(id QuestionID) QuizAnswers {
	next := a.clone()
	delete(next, id)
	return next
}

// Complete reports whether every fixed question has an answer.
func (a QuizAnswers) Complete() bool {
	for _, q := range Questions {
		if _, ok := a[q.ID]; !ok {
			return false
		}
	}
	return true
}

// NextStep is the index of the first unanswered question, or len(Questions).
func (a QuizAnswers) NextStep() int {
	for i, q := range Questions {
		if _, ok := a[q.ID]; !ok {
			return i
		}
	}
	return len(Questions)
}

func (a QuizAnswers) clone() QuizAnswers {
	next := make(QuizAnswers, len(a)+1)
	for k, v := range a {
		next[k] = v
	}
	return next
}

func lookup(id QuestionID) (Question, bool) {
	for _, q := range Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// goalKeywords is checked in order; the first containment match wins.
var goalKeywords = []struct {
	keyword string
	goal    Goal
}{
	{"queda", GoalStrength},
	{"cresc", GoalGrowth},
	{"hidrat", GoalHydration},
	{"dano", GoalDamageRepair},
}

var curvatureByAnswer = map[string]Curvature{
	"Liso":     CurvatureStraight,
	"Ondulado": CurvatureWavy,
	"Cacheado": CurvatureCurly,
	"Crespo":   CurvatureCoily,
}

// FromQuiz derives a Diagnosis from quiz answers. Missing answers fall back
// to the same defaults as the manual form.
func FromQuiz(a QuizAnswers) Diagnosis {
	d := Diagnosis{
		Curvature:     CurvatureStraight,
		Scalp:         ScalpNormal,
		Porosity:      PorosityMedium,
		WashFrequency: DefaultWashFrequency,
		Budget:        BudgetLow,
		Goal:          goalFromOutcome(a[QuestionOutcome]),
	}

	if c, ok := curvatureByAnswer[a[QuestionType]]; ok {
		d.Curvature = c
	}

	chem := a[QuestionChemicals]
	d.Chemicals = chem != "" && chem != answerNoChemicals
	switch {
	case chem == answerBleached:
		d.Porosity = PorosityHigh
	case !d.Chemicals && a[QuestionProblem] == answerBreakage:
		d.Porosity = PorosityHigh
	}

	switch {
	case a[QuestionProblem] == answerDryness:
		d.Scalp = ScalpDry
	case a[QuestionHairLoss] == answerHeavyLoss:
		d.Scalp = ScalpSensitive
	}

	return d
}

func goalFromOutcome(answer string) Goal {
	lower := strings.ToLower(answer)
	for _, k := range goalKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.goal
		}
	}
	return GoalHydration
}

// ResultText is the headline shown on the result phase.
func ResultText(a QuizAnswers) string {
	if a[QuestionHairLoss] == answerHeavyLoss {
		return "Seu cabelo precisa de um cronograma focado em fortalecimento e redução da queda."
	}
	if a[QuestionProblem] == answerDryness {
		return "Seu cabelo precisa de hidratação profunda e nutrição contínua."
	}
	return "Seu cabelo precisa de um cronograma equilibrado para crescimento saudável."
}
