package diagnosis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answerAll(t *testing.T, picks map[QuestionID]string) QuizAnswers {
	t.Helper()
	answers := QuizAnswers{}
	for _, q := range Questions {
		opt, ok := picks[q.ID]
		if !ok {
			opt = q.Options[0]
		}
		var err error
		answers, err = answers.Answer(q.ID, opt)
		require.NoError(t, err)
	}
	return answers
}

func TestGoalFromOutcome(t *testing.T) {
	tests := []struct {
		answer string
		want   Goal
	}{
		{"Parar a queda", GoalStrength},
		{"Crescer mais rápido", GoalGrowth},
		{"Ficar mais hidratado", GoalHydration},
		{"Recuperar danos", GoalDamageRepair},
		{"Diminuir frizz", GoalHydration},
		{"", GoalHydration},
		// strength wins over growth when both keywords appear
		{"Crescer e parar a queda", GoalStrength},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			assert.Equal(t, tt.want, goalFromOutcome(tt.answer))
		})
	}
}

func TestFromQuiz(t *testing.T) {
	answers := answerAll(t, map[QuestionID]string{
		QuestionType:      "Crespo",
		QuestionHairLoss:  "Sim, muita queda",
		QuestionChemicals: "Descoloração",
		QuestionProblem:   "Queda",
		QuestionOutcome:   "Parar a queda",
	})

	d := FromQuiz(answers)
	assert.Equal(t, CurvatureCoily, d.Curvature)
	assert.Equal(t, GoalStrength, d.Goal)
	assert.True(t, d.Chemicals)
	assert.Equal(t, PorosityHigh, d.Porosity)
	assert.Equal(t, ScalpSensitive, d.Scalp)
	assert.Equal(t, BudgetLow, d.Budget)
	assert.Equal(t, DefaultWashFrequency, d.WashFrequency)
	assert.NoError(t, d.Validate())
}

func TestFromQuizNoChemicals(t *testing.T) {
	answers := answerAll(t, map[QuestionID]string{
		QuestionChemicals: "Nenhuma química",
		QuestionProblem:   "Ressecamento",
		QuestionOutcome:   "Diminuir frizz",
	})

	d := FromQuiz(answers)
	assert.False(t, d.Chemicals)
	assert.Equal(t, PorosityMedium, d.Porosity)
	assert.Equal(t, ScalpDry, d.Scalp)
	assert.Equal(t, GoalHydration, d.Goal)
}

func TestFromQuizIsDeterministic(t *testing.T) {
	answers := answerAll(t, nil)
	assert.Equal(t, FromQuiz(answers), FromQuiz(answers))
}

func TestQuizAnswersAreImmutable(t *testing.T) {
	a := QuizAnswers{}
	b, err := a.Answer(QuestionType, "Liso")
	require.NoError(t, err)
	assert.Empty(t, a)
	assert.Equal(t, "Liso", b[QuestionType])

	_, err = b.Answer(QuestionType, "Crespo")
	assert.Error(t, err, "answered step must be restarted first")

	c, err := b.Restart(QuestionType).Answer(QuestionType, "Crespo")
	require.NoError(t, err)
	assert.Equal(t, "Crespo", c[QuestionType])
	assert.Equal(t, "Liso", b[QuestionType])
}

func TestAnswerRejectsUnknownOption(t *testing.T) {
	_, err := QuizAnswers{}.Answer(QuestionType, "Roxo")
	assert.Error(t, err)
	_, err = QuizAnswers{}.Answer("cor", "Liso")
	assert.Error(t, err)
}

func TestCompleteAndProgress(t *testing.T) {
	a := QuizAnswers{}
	assert.False(t, a.Complete())
	assert.Equal(t, 0, a.NextStep())
	assert.Equal(t, 0, Progress(0))
	assert.Equal(t, 17, Progress(1))
	assert.Equal(t, 50, Progress(3))

	full := answerAll(t, nil)
	assert.True(t, full.Complete())
	assert.Equal(t, len(Questions), full.NextStep())
}

func TestResultText(t *testing.T) {
	assert.Contains(t, ResultText(QuizAnswers{QuestionHairLoss: "Sim, muita queda", QuestionProblem: "Ressecamento"}), "fortalecimento")
	assert.Contains(t, ResultText(QuizAnswers{QuestionProblem: "Ressecamento"}), "hidratação profunda")
	assert.Contains(t, ResultText(QuizAnswers{}), "equilibrado")
}

func TestValidate(t *testing.T) {
	d := Diagnosis{Curvature: "frizzy", Scalp: ScalpDry, Porosity: PorosityLow, Budget: BudgetLow, Goal: GoalGrowth}
	assert.Error(t, d.Validate())

	assert.NoError(t, Lead{Name: "Ana", Email: "ana@example.com"}.Validate())
	assert.Error(t, Lead{Name: "Ana", Email: "not-an-email"}.Validate())
	assert.Error(t, Lead{Email: "ana@example.com"}.Validate())
}
