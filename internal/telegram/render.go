package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"capillaire/internal/diagnosis"
	"capillaire/internal/journey"
	"capillaire/internal/planner"
	"capillaire/internal/progress"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data. Telegram caps it at 64 bytes.
const (
	cbAnswer     = "a"
	cbBack       = "back"
	cbStart      = "start"
	cbRetry      = "retry"
	cbDismiss    = "dismiss"
	cbUpgrade    = "upgrade"
	cbSubscribe  = "sub_ok"
	cbNotNow     = "sub_cancel"
	cbToggleTask = "done"
)

const previewDays = 3

var errLeadFormat = errors.New("use o formato: Nome, email")

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escape quotes text for the legacy Markdown parse mode.
func escape(s string) string {
	return markdownEscaper.Replace(s)
}

func markdown(chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	return msg
}

// renderChange returns the messages a journey transition should produce.
func renderChange(chatID int64, ch journey.Change, now time.Time) []tgbotapi.MessageConfig {
	p, n := ch.Prev, ch.Next
	var out []tgbotapi.MessageConfig

	if n.Phase == journey.PhaseQuiz && !n.Answers.Complete() &&
		(p.Phase != journey.PhaseQuiz || p.QuizStep() != n.QuizStep()) {
		out = append(out, questionMessage(chatID, n.Answers))
	}
	if n.Phase == journey.PhaseQuiz && n.Answers.Complete() && n.Lead == nil &&
		(p.Phase != journey.PhaseQuiz || !p.Answers.Complete()) {
		out = append(out, markdown(chatID, leadPrompt()))
	}
	if n.LeadPending && !p.LeadPending {
		out = append(out, markdown(chatID, "💾 _Salvando suas respostas..._"))
	}
	if n.Phase == journey.PhaseResult && p.Phase != journey.PhaseResult {
		msg := markdown(chatID, formatResult(n))
		if n.Plan != nil {
			msg.ReplyMarkup = upgradeKeyboard()
		}
		out = append(out, msg)
	}
	if n.Generating && !p.Generating {
		out = append(out, markdown(chatID, "⏳ *Criando sua jornada...*\n(Montando seu cronograma de 30 dias)"))
	}
	if n.ShowError() && !p.ShowError() {
		msg := markdown(chatID, formatFailure(*n.LastError))
		msg.ReplyMarkup = failureKeyboard()
		out = append(out, msg)
	}
	if _, ok := ch.Event.(journey.GenerationSucceeded); ok && n.Plan != nil && n.Plan != p.Plan {
		msg := markdown(chatID, formatPlanReady(*n.Plan))
		if n.Phase == journey.PhaseResult {
			msg.ReplyMarkup = upgradeKeyboard()
		}
		out = append(out, msg)
	}
	if n.Phase == journey.PhaseSubscription && p.Phase != journey.PhaseSubscription {
		msg := markdown(chatID, subscriptionOffer())
		msg.ReplyMarkup = subscriptionKeyboard()
		out = append(out, msg)
	}
	if n.Phase == journey.PhaseApp && (p.Phase != journey.PhaseApp || p.Authenticated() != n.Authenticated()) {
		if n.AuthRequired() {
			out = append(out, markdown(chatID, loginPrompt()))
		} else {
			out = append(out, markdown(chatID, formatHome(n, now)))
		}
	}
	if e, ok := ch.Event.(journey.ToggleTask); ok && n.PlanRevision != p.PlanRevision {
		out = append(out, markdown(chatID, formatToggle(*n.Plan, e.Day)))
	}
	if _, ok := ch.Event.(journey.ToggleReminders); ok {
		if n.Reminders {
			out = append(out, markdown(chatID, "🔔 Lembretes diários *ativados*."))
		} else {
			out = append(out, markdown(chatID, "🔕 Lembretes diários *desativados*."))
		}
	}
	if _, ok := ch.Event.(journey.ResetApp); ok {
		out = append(out, markdown(chatID, "♻️ *App reiniciado.*\nSeu cronograma foi limpo. Envie /novo para gerar outro."))
	}
	return out
}

func questionMessage(chatID int64, answers diagnosis.QuizAnswers) tgbotapi.MessageConfig {
	step := answers.NextStep()
	q, _ := diagnosis.QuestionAt(step)

	text := fmt.Sprintf("*Pergunta %d de %d* · %s\n\n%s", step+1, len(diagnosis.Questions), progressBar(diagnosis.Progress(step)), escape(q.Title))
	msg := markdown(chatID, text)

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(q.Options)+1)
	for i, opt := range q.Options {
		data := fmt.Sprintf("%s|%s|%d", cbAnswer, q.ID, i)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(opt, data)))
	}
	if prev, ok := diagnosis.QuestionAt(step - 1); ok {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Voltar", cbBack+"|"+string(prev.ID)),
		))
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	return msg
}

// parseAnswer decodes "a|<question>|<option index>".
func parseAnswer(data string) (journey.AnswerQuestion, bool) {
	parts := strings.Split(data, "|")
	if len(parts) != 3 || parts[0] != cbAnswer {
		return journey.AnswerQuestion{}, false
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil {
		return journey.AnswerQuestion{}, false
	}
	for _, q := range diagnosis.Questions {
		if string(q.ID) == parts[1] && idx >= 0 && idx < len(q.Options) {
			return journey.AnswerQuestion{Question: q.ID, Option: q.Options[idx]}, true
		}
	}
	return journey.AnswerQuestion{}, false
}

// parseLead reads "Nome, email". The email is the last comma-separated part.
func parseLead(text string) (diagnosis.Lead, error) {
	i := strings.LastIndex(text, ",")
	if i < 0 {
		return diagnosis.Lead{}, errLeadFormat
	}
	lead := diagnosis.Lead{
		Name:  strings.TrimSpace(text[:i]),
		Email: strings.TrimSpace(text[i+1:]),
	}
	if err := lead.Validate(); err != nil {
		return diagnosis.Lead{}, errLeadFormat
	}
	return lead, nil
}

// parseDiagnosis reads "/diagnostico <curvatura> <couro> <porosidade> <orçamento> <objetivo> [quimica]".
func parseDiagnosis(args string) (diagnosis.Diagnosis, error) {
	f := strings.Fields(strings.ToLower(args))
	if len(f) < 5 || len(f) > 6 {
		return diagnosis.Diagnosis{}, errors.New("informe: curvatura couro porosidade orçamento objetivo [quimica]")
	}
	d := diagnosis.Diagnosis{
		Curvature:     diagnosis.Curvature(f[0]),
		Scalp:         diagnosis.Scalp(f[1]),
		Porosity:      diagnosis.Porosity(f[2]),
		Budget:        diagnosis.Budget(f[3]),
		Goal:          diagnosis.Goal(f[4]),
		WashFrequency: diagnosis.DefaultWashFrequency,
	}
	if len(f) == 6 {
		if f[5] != "quimica" {
			return diagnosis.Diagnosis{}, fmt.Errorf("opção desconhecida: %s", f[5])
		}
		d.Chemicals = true
	}
	if err := d.Validate(); err != nil {
		return diagnosis.Diagnosis{}, err
	}
	return d, nil
}

func leadPrompt() string {
	return "📝 *Quase lá!*\nEnvie seu nome e email para ver o resultado, no formato:\n`Maria Silva, maria@email.com`"
}

func loginPrompt() string {
	return "🔐 *Entre na sua conta*\nEnvie `/login <token>` com o token de acesso que você recebeu por email."
}

func subscriptionOffer() string {
	return "💳 *Assinatura Capillaire*\n\n• Cronograma de 30 dias personalizado\n• Assistente de terapias naturais\n• Lembretes diários\n\nDeseja ativar sua assinatura?"
}

func formatResult(s journey.State) string {
	var sb strings.Builder
	sb.WriteString("✨ *Resultado do seu diagnóstico*\n\n")
	sb.WriteString(escape(s.ResultText()))
	sb.WriteString("\n\n*Tratamento recomendado:*\n• Hidratação profunda semanal\n• Nutrição para brilho e maciez\n• Fortalecimento para reduzir queda\n")
	if s.Plan != nil {
		sb.WriteString("\n")
		sb.WriteString(formatPreview(*s.Plan))
	}
	return sb.String()
}

func formatPlanReady(plan planner.Plan) string {
	var sb strings.Builder
	sb.WriteString("✅ *Seu cronograma está pronto!*\n\n")
	sb.WriteString(formatPreview(plan))
	return sb.String()
}

func formatPreview(plan planner.Plan) string {
	var sb strings.Builder
	if plan.Summary != "" {
		sb.WriteString(fmt.Sprintf("_%s_\n\n", escape(plan.Summary)))
	}
	for i, t := range plan.Tasks {
		if i == previewDays {
			break
		}
		sb.WriteString(fmt.Sprintf("*Dia %d* · %s: %s\n", t.Day, escape(t.Category.Label()), escape(t.Title)))
	}
	if len(plan.Tasks) > previewDays {
		sb.WriteString(fmt.Sprintf("_...e mais %d dias._\n", len(plan.Tasks)-previewDays))
	}
	return sb.String()
}

func formatFailure(f journey.Failure) string {
	var headline string
	switch f.Kind {
	case planner.KindTimeout:
		headline = "A geração demorou demais."
	case planner.KindMalformedResponse:
		headline = "Recebemos uma resposta inválida."
	case planner.KindEmptyPlan:
		headline = "O cronograma veio vazio."
	default:
		headline = "Não conseguimos falar com o gerador."
	}
	safe := strings.ReplaceAll(f.Message, "`", "'")
	return fmt.Sprintf("❌ *Ops! Algo deu errado*\n%s\n```\n%s\n```", headline, safe)
}

// formatPlan lists every task with its completion mark.
func formatPlan(plan planner.Plan, now time.Time) string {
	current := progress.CurrentDay(plan, now)

	var sb strings.Builder
	sb.WriteString("🗓 *Seu Cronograma Capillaire*\n\n")
	for _, t := range plan.Tasks {
		mark := "⬜"
		if t.Completed {
			mark = "✅"
		}
		line := fmt.Sprintf("%s *Dia %d* · %s: %s", mark, t.Day, escape(t.Category.Label()), escape(t.Title))
		if t.Day == current {
			line += " 👈"
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("\n%s", formatProgress(plan)))
	return sb.String()
}

// formatToday describes the task of the current plan day.
func formatToday(plan planner.Plan, now time.Time) string {
	day := progress.CurrentDay(plan, now)
	t, ok := progress.TodayTask(plan, now)
	if !ok {
		return fmt.Sprintf("🌿 *Dia %d de %d*\n_Sem tarefa para hoje. Descanse os fios!_", day, planner.TotalDays)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🌿 *Dia %d de %d* · %s\n", t.Day, planner.TotalDays, escape(t.Category.Label())))
	sb.WriteString(fmt.Sprintf("*%s*\n", escape(t.Title)))
	if t.Description != "" {
		sb.WriteString(fmt.Sprintf("_%s_\n", escape(t.Description)))
	}
	if t.Recipe != nil && *t.Recipe != "" {
		sb.WriteString(fmt.Sprintf("\n🥣 *Receita:* %s\n", escape(*t.Recipe)))
	}
	if t.Completed {
		sb.WriteString("\n✅ Concluído")
	} else {
		sb.WriteString(fmt.Sprintf("\nMarque como feito com /feito %d", t.Day))
	}
	return sb.String()
}

func todayMessage(chatID int64, plan planner.Plan, now time.Time) tgbotapi.MessageConfig {
	msg := markdown(chatID, formatToday(plan, now))
	if t, ok := progress.TodayTask(plan, now); ok && !t.Completed {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Marcar como feito", fmt.Sprintf("%s|%d", cbToggleTask, t.Day)),
			),
		)
	}
	return msg
}

func formatProgress(plan planner.Plan) string {
	pct := progress.ProgressPercent(plan)
	return fmt.Sprintf("📈 *Progresso:* %s %.0f%% (%d/%d dias)", progressBar(int(pct)), pct, progress.CompletedCount(plan), planner.TotalDays)
}

func formatToggle(plan planner.Plan, day int) string {
	t, _ := plan.Task(day)
	if t.Completed {
		return fmt.Sprintf("✅ *Dia %d concluído!*\n%s", day, formatProgress(plan))
	}
	return fmt.Sprintf("↩️ Dia %d desmarcado.\n%s", day, formatProgress(plan))
}

func formatHome(s journey.State, now time.Time) string {
	var sb strings.Builder
	if s.User != nil && s.User.Email != "" {
		sb.WriteString(fmt.Sprintf("👋 *Olá, %s!*\n\n", escape(s.User.Email)))
	} else {
		sb.WriteString("👋 *Bem-vinda ao Capillaire!*\n\n")
	}
	switch {
	case s.Plan != nil:
		sb.WriteString(formatToday(*s.Plan, now))
	case s.Generating:
		sb.WriteString("_Seu cronograma está sendo criado..._")
	case s.Diagnosis != nil:
		sb.WriteString("Você ainda não tem um cronograma. Envie /novo para gerar.")
	default:
		sb.WriteString("Envie /diagnostico para criar seu cronograma.")
	}
	sb.WriteString("\n\nComandos: /hoje /cronograma /progresso /dica /exportar")
	return sb.String()
}

func progressBar(pct int) string {
	const width = 10
	filled := max(0, min(width, pct*width/100))
	return strings.Repeat("▰", filled) + strings.Repeat("▱", width-filled)
}

func upgradeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Quero começar meu tratamento agora", cbUpgrade),
		),
	)
}

func failureKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Tentar novamente", cbRetry),
			tgbotapi.NewInlineKeyboardButtonData("Fechar", cbDismiss),
		),
	)
}

func subscriptionKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 Assinar", cbSubscribe),
			tgbotapi.NewInlineKeyboardButtonData("Agora não", cbNotNow),
		),
	)
}

func landingKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✨ Fazer diagnóstico", cbStart),
		),
	)
}
