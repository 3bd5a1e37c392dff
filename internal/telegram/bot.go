package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"capillaire/internal/diagnosis"
	"capillaire/internal/export"
	"capillaire/internal/journey"
	"capillaire/internal/llm"
	"capillaire/internal/logging"
	"capillaire/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	outboxSize     = 256
	maxHistory     = 20
	captionLimit   = 1024
	requestTimeout = time.Minute
)

// Sender is the part of the Telegram API the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Assistant answers free-form questions and quick tips.
type Assistant interface {
	Chat(ctx context.Context, history []llm.ChatMessage, message string) (string, error)
	FastTip(ctx context.Context, problem string, d *diagnosis.Diagnosis) string
}

// Options tune the bot.
type Options struct {
	AdminID         int64
	DataDir         string
	ExportTaskCount int
}

// Bot drives one journey per chat from Telegram updates and renders every
// journey transition back as messages.
type Bot struct {
	api          Sender
	registry     *Registry
	assistant    Assistant
	metricsStore *metrics.Store
	opts         Options
	logger       logging.Logger
	now          func() time.Time

	outbox chan tgbotapi.Chattable

	mu      sync.Mutex
	history map[int64][]llm.ChatMessage
}

// Connect authorizes against the Bot API and points its webhook at
// webhookURL.
func Connect(token, webhookURL string, logger logging.Logger) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Infof("Authorized on account %s", api.Self.UserName)

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", webhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", webhookURL, err)
	}
	logger.Infof("Webhook set response: %s", resp.Description)
	return api, nil
}

// NewBot creates a Bot and subscribes it to the registry's journeys. Call
// Run to start delivering messages.
func NewBot(api Sender, registry *Registry, assistant Assistant, metricsStore *metrics.Store, opts Options, logger logging.Logger) *Bot {
	if opts.ExportTaskCount < 1 {
		opts.ExportTaskCount = export.DefaultTaskCount
	}
	b := &Bot{
		api:          api,
		registry:     registry,
		assistant:    assistant,
		metricsStore: metricsStore,
		opts:         opts,
		logger:       logger,
		now:          time.Now,
		outbox:       make(chan tgbotapi.Chattable, outboxSize),
		history:      make(map[int64][]llm.ChatMessage),
	}
	registry.OnChange(b.handleChange)
	return b
}

// Run delivers queued messages in order until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	for {
		select {
		case c := <-b.outbox:
			if _, err := b.api.Send(c); err != nil {
				b.logger.Warnf("Failed to send telegram message: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// ServeHTTP accepts webhook updates.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.logger.Warnf("Error parsing update: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		b.HandleUpdate(ctx, update)
	}()
}

// HandleUpdate processes one update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallbackQuery(update.CallbackQuery)
		return
	}
	if update.Message == nil || update.Message.Chat == nil {
		return
	}
	b.processMessage(ctx, update.Message)
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	chat := b.registry.Get(chatID)
	st := chat.Controller.State()
	switch {
	case st.Phase == journey.PhaseQuiz && st.Answers.Complete() && st.Lead == nil:
		lead, err := parseLead(msg.Text)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("⚠️ %s\n`Maria Silva, maria@email.com`", err))
			return
		}
		chat.Controller.Dispatch(journey.SubmitLead{Lead: lead})
	case st.Phase == journey.PhaseApp && st.Authenticated():
		b.handleAsk(ctx, chatID, msg.Text)
	case st.Phase == journey.PhaseLanding:
		b.sendLanding(chatID)
	default:
		b.reply(chatID, "Use os botões acima ou envie /ajuda.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	if msg.Command() == "metrics" {
		if msg.From == nil || msg.From.ID != b.opts.AdminID || b.opts.AdminID == 0 {
			b.reply(chatID, "⛔ *Access Denied*: Admin only.")
			return
		}
		b.handleMetricsCommand(chatID)
		return
	}

	chat := b.registry.Get(chatID)
	st := chat.Controller.State()

	switch msg.Command() {
	case "start":
		switch st.Phase {
		case journey.PhaseLanding:
			b.sendLanding(chatID)
		case journey.PhaseQuiz:
			if st.Answers.Complete() {
				b.reply(chatID, leadPrompt())
			} else {
				b.send(questionMessage(chatID, st.Answers))
			}
		case journey.PhaseResult:
			chat.Controller.Dispatch(journey.StartQuiz{})
		default:
			b.sendHome(chatID, st)
		}
	case "login":
		if args == "" {
			b.reply(chatID, loginPrompt())
			return
		}
		if _, err := chat.Auth.SignIn(ctx, args); err != nil {
			b.logger.Warnf("Sign in failed for chat %d: %v", chatID, err)
			b.reply(chatID, "❌ Token inválido ou expirado.")
		}
	case "sair", "logout":
		if !st.Authenticated() {
			b.reply(chatID, "Você não está conectada.")
			return
		}
		chat.Controller.Dispatch(journey.SignOut{})
		b.reply(chatID, "👋 Sessão encerrada.")
	case "hoje":
		if b.requirePlan(chatID, st) {
			b.send(todayMessage(chatID, *st.Plan, b.now()))
		}
	case "cronograma":
		if b.requirePlan(chatID, st) {
			b.reply(chatID, formatPlan(*st.Plan, b.now()))
		}
	case "progresso":
		if b.requirePlan(chatID, st) {
			b.reply(chatID, formatProgress(*st.Plan))
		}
	case "feito":
		if !b.requirePlan(chatID, st) {
			return
		}
		day, err := strconv.Atoi(args)
		if err != nil {
			b.reply(chatID, "Informe o dia: `/feito 3`")
			return
		}
		if _, ok := st.Plan.Task(day); !ok {
			b.reply(chatID, fmt.Sprintf("Seu cronograma não tem o dia %d.", day))
			return
		}
		chat.Controller.Dispatch(journey.ToggleTask{Day: day})
	case "lembretes":
		chat.Controller.Dispatch(journey.ToggleReminders{})
	case "reset":
		chat.Controller.Dispatch(journey.ResetApp{})
	case "novo":
		if st.Diagnosis == nil {
			b.reply(chatID, "Faça o diagnóstico primeiro: /start ou /diagnostico.")
			return
		}
		chat.Controller.Dispatch(journey.Retry{})
	case "diagnostico":
		b.handleDiagnosis(chat, st, args)
	case "dica":
		if args == "" {
			b.reply(chatID, "Conte o problema: `/dica frizz`")
			return
		}
		tip := b.assistant.FastTip(ctx, args, st.Diagnosis)
		b.reply(chatID, "💡 "+escape(tip))
	case "pergunta":
		if !st.Authenticated() {
			b.reply(chatID, loginPrompt())
			return
		}
		b.handleAsk(ctx, chatID, args)
	case "exportar":
		if b.requirePlan(chatID, st) {
			b.handleExport(chatID, st)
		}
	default:
		b.reply(chatID, helpText())
	}
}

func (b *Bot) handleDiagnosis(chat *Chat, st journey.State, args string) {
	if st.Phase != journey.PhaseApp || !st.Authenticated() {
		b.reply(chat.ID, loginPrompt())
		return
	}
	if st.Generating {
		b.reply(chat.ID, "⏳ Seu cronograma já está sendo criado.")
		return
	}
	d, err := parseDiagnosis(args)
	if err != nil {
		b.reply(chat.ID, diagnosisHelp(err))
		return
	}
	chat.Controller.Dispatch(journey.SubmitDiagnosis{Diagnosis: d})
}

func (b *Bot) handleAsk(ctx context.Context, chatID int64, text string) {
	if strings.TrimSpace(text) == "" {
		b.reply(chatID, "Escreva sua pergunta: `/pergunta posso usar óleo de coco?`")
		return
	}

	b.mu.Lock()
	history := append([]llm.ChatMessage(nil), b.history[chatID]...)
	b.mu.Unlock()

	answer, err := b.assistant.Chat(ctx, history, text)
	if err != nil {
		b.logger.Errorf("Assistant failed for chat %d: %v", chatID, err)
		b.reply(chatID, "❌ O assistente não respondeu. Tente de novo em instantes.")
		return
	}

	b.mu.Lock()
	h := append(b.history[chatID],
		llm.ChatMessage{Role: llm.RoleUser, Content: text},
		llm.ChatMessage{Role: llm.RoleModel, Content: answer},
	)
	if len(h) > maxHistory {
		h = h[len(h)-maxHistory:]
	}
	b.history[chatID] = h
	b.mu.Unlock()

	b.send(tgbotapi.NewMessage(chatID, answer))
}

func (b *Bot) handleExport(chatID int64, st journey.State) {
	var buf bytes.Buffer
	if err := export.Render(&buf, *st.Plan, b.opts.ExportTaskCount, b.now()); err != nil {
		b.logger.Errorf("Failed to render export for chat %d: %v", chatID, err)
		b.reply(chatID, "❌ Não foi possível exportar o cronograma.")
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  export.Filename(*st.Plan),
		Bytes: buf.Bytes(),
	})
	if preview, err := export.ReadPreview(bytes.NewReader(buf.Bytes())); err == nil {
		doc.Caption = preview.Caption(captionLimit)
	} else {
		b.logger.Warnf("Warning: failed to read export preview: %v", err)
	}
	b.send(doc)
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	// Answer callback to remove spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warnf("Failed to answer callback: %v", err)
	}
	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	chatID := query.Message.Chat.ID
	chat := b.registry.Get(chatID)

	if ans, ok := parseAnswer(query.Data); ok {
		edit := tgbotapi.NewEditMessageText(chatID, query.Message.MessageID,
			fmt.Sprintf("%s\n➡️ *%s*", escape(questionTitle(ans.Question)), escape(ans.Option)))
		edit.ParseMode = "Markdown"
		b.send(edit)
		chat.Controller.Dispatch(ans)
		return
	}

	action, arg, _ := strings.Cut(query.Data, "|")
	switch action {
	case cbBack:
		edit := tgbotapi.NewEditMessageText(chatID, query.Message.MessageID, "⬅️ _Voltando à pergunta anterior..._")
		edit.ParseMode = "Markdown"
		b.send(edit)
		chat.Controller.Dispatch(journey.RestartQuestion{Question: diagnosis.QuestionID(arg)})
	case cbStart:
		chat.Controller.Dispatch(journey.StartQuiz{})
	case cbRetry:
		chat.Controller.Dispatch(journey.Retry{})
	case cbDismiss:
		chat.Controller.Dispatch(journey.DismissError{})
	case cbUpgrade:
		chat.Controller.Dispatch(journey.Upgrade{})
	case cbSubscribe:
		chat.Controller.Dispatch(journey.SubscriptionSucceeded{})
	case cbNotNow:
		chat.Controller.Dispatch(journey.SubscriptionCancelled{})
	case cbToggleTask:
		day, err := strconv.Atoi(arg)
		if err != nil {
			return
		}
		chat.Controller.Dispatch(journey.ToggleTask{Day: day})
	default:
		b.logger.Warnf("Unknown callback data %q", query.Data)
	}
}

// handleChange runs on the journey goroutine, so it only queues.
func (b *Bot) handleChange(chatID int64, ch journey.Change) {
	for _, msg := range renderChange(chatID, ch, b.now()) {
		b.send(msg)
	}
}

func (b *Bot) handleMetricsCommand(chatID int64) {
	usage, err := b.metricsStore.GetDailyUsage(7)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, "❌ Error fetching metrics."))
		return
	}
	health := metrics.GetSysHealth(b.opts.DataDir)
	b.reply(chatID, formatMetricsReport(usage, health, b.registry.Len()))
}

func formatMetricsReport(usage []metrics.DailyUsage, health metrics.SysHealth, journeys int) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d tokens (%d execs", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution))
		if d.Failures > 0 {
			sb.WriteString(fmt.Sprintf(", %d failed", d.Failures))
		}
		sb.WriteString(")\n")
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", health.DataDiskSize))
	sb.WriteString(fmt.Sprintf("• Active Journeys: %d\n", journeys))
	return sb.String()
}

func (b *Bot) requirePlan(chatID int64, st journey.State) bool {
	if st.Plan != nil {
		return true
	}
	if st.Generating {
		b.reply(chatID, "⏳ Seu cronograma ainda está sendo criado.")
		return false
	}
	b.reply(chatID, "Você ainda não tem um cronograma. Comece com /start.")
	return false
}

func (b *Bot) sendLanding(chatID int64) {
	msg := markdown(chatID, "🌿 *Capillaire*\nDescubra o cronograma capilar ideal para você em 6 perguntas.")
	msg.ReplyMarkup = landingKeyboard()
	b.send(msg)
}

func (b *Bot) sendHome(chatID int64, st journey.State) {
	if st.AuthRequired() {
		b.reply(chatID, loginPrompt())
		return
	}
	b.reply(chatID, formatHome(st, b.now()))
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(markdown(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	select {
	case b.outbox <- c:
	default:
		b.logger.Warnf("Warning: telegram outbox full, dropping message")
	}
}

func questionTitle(id diagnosis.QuestionID) string {
	for _, q := range diagnosis.Questions {
		if q.ID == id {
			return q.Title
		}
	}
	return string(id)
}

func diagnosisHelp(err error) string {
	return fmt.Sprintf("⚠️ %s\n\nUso: `/diagnostico <curvatura> <couro> <porosidade> <orçamento> <objetivo> [quimica]`\n"+
		"• curvatura: straight, wavy, curly, coily\n"+
		"• couro: dry, oily, normal, sensitive\n"+
		"• porosidade: low, medium, high\n"+
		"• orçamento: low, medium, premium\n"+
		"• objetivo: growth, strength, hydration, definition, damage-repair",
		escape(err.Error()))
}

func helpText() string {
	return "🌿 *Comandos*\n" +
		"/start – diagnóstico capilar\n" +
		"/login <token> – entrar na conta\n" +
		"/hoje – tarefa do dia\n" +
		"/cronograma – os 30 dias\n" +
		"/feito <dia> – marcar tarefa\n" +
		"/progresso – seu progresso\n" +
		"/dica <problema> – dica natural rápida\n" +
		"/pergunta <texto> – falar com o assistente\n" +
		"/exportar – baixar o cronograma\n" +
		"/lembretes – ligar ou desligar lembretes\n" +
		"/novo – gerar de novo\n" +
		"/reset – limpar o app\n" +
		"/sair – encerrar a sessão"
}
