package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dtfyu3/rus-asr-bot-express/internal/asr"
	"github.com/dtfyu3/rus-asr-bot-express/internal/download"
	"github.com/dtfyu3/rus-asr-bot-express/internal/metrics"
	"github.com/dtfyu3/rus-asr-bot-express/internal/telegram"
	"github.com/dtfyu3/rus-asr-bot-express/internal/update"
)

// Bot commands and callback prefixes
const (
	commandChangeModel  = "/change_model"
	commandCurrentModel = "/model"
	callbackModelPrefix = "select_model:"

	typingInterval = 4 * time.Second
)

// busyNotice is sent once per busy period to a chat whose job is still running
const busyNotice = "Пожалуйста, подождите, ваш запрос обрабатывается."

// modelInfo describes the selectable recognition models in menu order
var modelInfo = []struct {
	Name        string
	Description string
}{
	{asr.ModelFast, "🚀 Быстрая, но менее точная"},
	{asr.ModelPrecise, "🎯 Больше точность, но меньше скорость"},
}

// modelPrefix returns the reply header identifying which model answered
func modelPrefix(model string) string {
	if model == asr.ModelPrecise {
		return "🎯_precise_\n"
	}
	return "🚀_fast_\n"
}

// describeModel returns the menu description for a model name
func describeModel(model string) string {
	for _, info := range modelInfo {
		if info.Name == model {
			return info.Description
		}
	}
	return "Неизвестная модель"
}

// Messenger is the subset of the Telegram client the handler needs
type Messenger interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
}

// Retriever downloads an audio attachment into the staging area
type Retriever interface {
	Retrieve(ctx context.Context, ref update.File) (string, error)
	MaxSize() int64
}

// Converter normalizes a downloaded file to the recognition format
type Converter interface {
	Normalize(ctx context.Context, inputPath string) (string, error)
}

// Transcriber sends normalized audio to a recognition backend
type Transcriber interface {
	Transcribe(ctx context.Context, userID int64, audioPath string) (asr.Transcript, string, error)
}

// PreferenceStore persists per-user model selections
type PreferenceStore interface {
	Get(userID int64) string
	Set(userID int64, model string) error
}

// StagingCleaner releases staging files created during a job
type StagingCleaner interface {
	Remove(path string)
}

// Timeouts bounds each pipeline stage independently so a hung call
// cannot hold a chat's admission slot open forever
type Timeouts struct {
	Download   time.Duration
	Convert    time.Duration
	Transcribe time.Duration
}

// Handler routes parsed updates: commands and model selection callbacks
// are handled inline, audio messages run through the transcription
// pipeline under the admission gate.
type Handler struct {
	gate        *Gate
	messenger   Messenger
	retriever   Retriever
	converter   Converter
	transcriber Transcriber
	prefs       PreferenceStore
	staging     StagingCleaner
	timeouts    Timeouts
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewHandler wires the update handler
func NewHandler(
	gate *Gate,
	messenger Messenger,
	retriever Retriever,
	converter Converter,
	transcriber Transcriber,
	prefs PreferenceStore,
	staging StagingCleaner,
	timeouts Timeouts,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		gate:        gate,
		messenger:   messenger,
		retriever:   retriever,
		converter:   converter,
		transcriber: transcriber,
		prefs:       prefs,
		staging:     staging,
		timeouts:    timeouts,
		metrics:     m,
		logger:      logger,
	}
}

// HandleUpdate processes one deduplicated update to completion. It is
// called after the webhook has already been acknowledged, so it may run
// for the full length of a transcription job.
func (h *Handler) HandleUpdate(ctx context.Context, u *update.Update) {
	switch u.Kind() {
	case update.KindCallbackQuery:
		h.handleCallback(ctx, u.CallbackQuery)
	case update.KindMessage:
		h.handleMessage(ctx, u.Message)
	default:
		h.logger.Info("Ignoring unsupported update type",
			slog.Int64("update_id", u.UpdateID),
		)
	}
}

// handleCallback processes model selection button presses
func (h *Handler) handleCallback(ctx context.Context, cbq *update.CallbackQuery) {
	if cbq.Message == nil {
		h.logger.Warn("Callback query without source message", slog.String("callback_id", cbq.ID))
		return
	}
	chatID := cbq.Message.Chat.ID

	if h.rejectIfBusy(ctx, chatID) {
		return
	}

	if !strings.HasPrefix(cbq.Data, callbackModelPrefix) {
		h.logger.Info("Ignoring unknown callback data",
			slog.Int64("chat_id", chatID),
			slog.String("data", cbq.Data),
		)
		return
	}

	model := strings.TrimPrefix(cbq.Data, callbackModelPrefix)
	if err := h.prefs.Set(chatID, model); err != nil {
		h.logger.Error("Failed to persist model preference",
			slog.Int64("chat_id", chatID),
			slog.String("model", model),
			slog.String("error", err.Error()),
		)
	}

	if err := h.messenger.AnswerCallbackQuery(ctx, cbq.ID, fmt.Sprintf("Вы выбрали модель: %s", model)); err != nil {
		h.logger.Warn("Failed to answer callback query", slog.String("error", err.Error()))
	}
	if err := h.messenger.EditMessageText(ctx, chatID, cbq.Message.MessageID, fmt.Sprintf("Вы выбрали модель: *%s*.", model)); err != nil {
		h.logger.Warn("Failed to edit model menu message", slog.String("error", err.Error()))
	}
}

// handleMessage processes commands, hints and audio messages
func (h *Handler) handleMessage(ctx context.Context, msg *update.Message) {
	chatID := msg.Chat.ID

	if h.rejectIfBusy(ctx, chatID) {
		return
	}

	switch msg.Variant() {
	case update.VariantText:
		h.handleText(ctx, msg)
	case update.VariantVoice, update.VariantAudio, update.VariantAudioDocument:
		file, ok := msg.AudioFile()
		if !ok {
			h.sendUsageHint(ctx, chatID)
			return
		}
		h.runJob(ctx, newJob(chatID, msg.MessageID, file))
	default:
		h.sendUsageHint(ctx, chatID)
	}
}

// handleText serves the two bot commands; any other text gets the
// usage hint
func (h *Handler) handleText(ctx context.Context, msg *update.Message) {
	chatID := msg.Chat.ID

	switch msg.Text {
	case commandChangeModel:
		h.sendModelMenu(ctx, chatID)
	case commandCurrentModel:
		model := h.prefs.Get(chatID)
		text := fmt.Sprintf("Ваша текущая модель:\n*%s* - %s", model, describeModel(model))
		h.send(ctx, chatID, text)
	default:
		h.sendUsageHint(ctx, chatID)
	}
}

// sendModelMenu sends the model descriptions with one button per model
func (h *Handler) sendModelMenu(ctx context.Context, chatID int64) {
	var b strings.Builder
	b.WriteString("Выберите из нижеприведенных моделей:\n\n")

	rows := make([][]telegram.InlineKeyboardButton, 0, len(modelInfo))
	for _, info := range modelInfo {
		fmt.Fprintf(&b, "*%s* - %s\n", info.Name, info.Description)
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         info.Name,
			CallbackData: callbackModelPrefix + info.Name,
		}})
	}

	_, err := h.messenger.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:   chatID,
		Text:     b.String(),
		Keyboard: &telegram.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	if err != nil {
		h.logger.Warn("Failed to send model menu", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
	}
}

// sendUsageHint tells the sender what kinds of input the bot accepts
func (h *Handler) sendUsageHint(ctx context.Context, chatID int64) {
	sizeMB := h.retriever.MaxSize() / (1 << 20)
	h.send(ctx, chatID, fmt.Sprintf(
		"Пожалуйста, отправьте голосовое сообщение или аудиофайл (поддерживаются WAV, MP3, OGG) до %d Мб", sizeMB))
}

// rejectIfBusy drops any event from a chat whose job is still in flight,
// sending at most one notice per busy period. Commands and callbacks are
// held back the same way as audio so a running job is never interleaved
// with other interactions from its chat.
func (h *Handler) rejectIfBusy(ctx context.Context, chatID int64) bool {
	if !h.gate.IsBusy(chatID) {
		return false
	}
	h.metrics.RecordBusyRejection()
	if h.gate.NoteBusy(chatID) {
		h.send(ctx, chatID, busyNotice)
	}
	return true
}

// runJob drives one audio message through admission, retrieval,
// conversion and recognition, and delivers the result
func (h *Handler) runJob(ctx context.Context, job *Job) {
	release, ok := h.gate.Admit(job.ChatID)
	if !ok {
		// Race with another event between the busy check and here
		h.metrics.RecordBusyRejection()
		if h.gate.NoteBusy(job.ChatID) {
			h.send(ctx, job.ChatID, busyNotice)
		}
		return
	}
	defer release()

	h.metrics.RecordJobStarted()
	h.logger.Info("Job admitted",
		slog.Int64("chat_id", job.ChatID),
		slog.String("file_id", job.File.FileID),
		slog.Int64("file_size", job.File.FileSize),
	)

	// Keep the chat's typing indicator alive for the whole job
	typingCtx, stopTyping := context.WithCancel(ctx)
	defer stopTyping()
	go h.typingKeepalive(typingCtx, job.ChatID)

	progressID, err := h.messenger.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: job.ChatID,
		Text:   "🎧 Обрабатываю аудио...",
	})
	if err != nil {
		h.logger.Warn("Failed to send progress message", slog.String("error", err.Error()))
		progressID = 0
	}

	transcript, model, jobErr := h.process(ctx, job, progressID)

	// Release staging files exactly once, on every outcome
	for _, path := range job.stagingPaths() {
		h.staging.Remove(path)
	}
	stopTyping()

	duration := time.Since(job.StartedAt)
	if jobErr != nil {
		job.State = StateFailed
		h.metrics.RecordJobFinished("failure", duration.Seconds())
		h.logger.Error("Job failed",
			slog.Int64("chat_id", job.ChatID),
			slog.String("state", job.State.String()),
			slog.Duration("duration", duration),
			slog.String("error", jobErr.Error()),
		)
		h.deliverFailure(ctx, job, progressID, jobErr)
		return
	}

	job.State = StateCompleted
	h.metrics.RecordJobFinished("success", duration.Seconds())
	h.logger.Info("Job completed",
		slog.Int64("chat_id", job.ChatID),
		slog.String("model", model),
		slog.Duration("duration", duration),
		slog.Int("text_length", len(transcript.Text)),
	)
	h.deliverSuccess(ctx, job, progressID, transcript, model)
}

// process runs the pipeline stages with per-stage deadlines
func (h *Handler) process(ctx context.Context, job *Job, progressID int64) (asr.Transcript, string, error) {
	job.State = StateRetrieving
	rawPath, err := h.withDeadline(ctx, h.timeouts.Download, func(ctx context.Context) (string, error) {
		return h.retriever.Retrieve(ctx, job.File)
	})
	if err != nil {
		if errors.Is(err, download.ErrOversized) {
			h.metrics.RecordOversizedFile()
		}
		return asr.Transcript{}, "", fmt.Errorf("retrieval: %w", err)
	}
	job.rawPath = rawPath
	h.metrics.RecordDownload(job.File.FileSize)

	if progressID != 0 {
		if err := h.messenger.EditMessageText(ctx, job.ChatID, progressID, "🔍 Распознаю речь..."); err != nil {
			h.logger.Warn("Failed to update progress message", slog.String("error", err.Error()))
		}
	}

	job.State = StateConverting
	convertStart := time.Now()
	wavPath, err := h.withDeadline(ctx, h.timeouts.Convert, func(ctx context.Context) (string, error) {
		return h.converter.Normalize(ctx, rawPath)
	})
	if err != nil {
		h.metrics.RecordConversionFailure(time.Since(convertStart).Seconds())
		return asr.Transcript{}, "", fmt.Errorf("conversion: %w", err)
	}
	job.wavPath = wavPath
	h.metrics.RecordConversion(time.Since(convertStart).Seconds())

	job.State = StateDispatching
	h.metrics.RecordRecognitionRequest()
	recognizeStart := time.Now()
	var transcript asr.Transcript
	var model string
	_, err = h.withDeadline(ctx, h.timeouts.Transcribe, func(ctx context.Context) (string, error) {
		var terr error
		transcript, model, terr = h.transcriber.Transcribe(ctx, job.ChatID, wavPath)
		return "", terr
	})
	if err != nil {
		h.metrics.RecordRecognitionFailure(time.Since(recognizeStart).Seconds())
		return asr.Transcript{}, model, fmt.Errorf("recognition: %w", err)
	}
	h.metrics.RecordRecognitionSuccess(time.Since(recognizeStart).Seconds(), transcript.Text == "")

	return transcript, model, nil
}

// withDeadline runs fn under an optional per-stage timeout
func (h *Handler) withDeadline(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (string, error)) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

// deliverSuccess removes the progress message and replies with the
// transcript quoted under the original audio message
func (h *Handler) deliverSuccess(ctx context.Context, job *Job, progressID int64, transcript asr.Transcript, model string) {
	if progressID != 0 {
		if err := h.messenger.DeleteMessage(ctx, job.ChatID, progressID); err != nil {
			h.logger.Warn("Failed to delete progress message", slog.String("error", err.Error()))
		}
	}

	prefix := modelPrefix(model)
	var text string
	if transcript.Text != "" {
		text = fmt.Sprintf("%sВот что мне удалось услышать:\n```\n%s\n```", prefix, transcript.Text)
	} else {
		text = prefix + "Речь не распознана."
	}

	_, err := h.messenger.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:           job.ChatID,
		Text:             text,
		ReplyToMessageID: job.MessageID,
	})
	if err != nil {
		h.logger.Error("Failed to deliver transcript",
			slog.Int64("chat_id", job.ChatID),
			slog.String("error", err.Error()),
		)
	}
}

// deliverFailure edits the progress message into a user-facing error,
// or sends a fresh message when there is no progress message
func (h *Handler) deliverFailure(ctx context.Context, job *Job, progressID int64, jobErr error) {
	text := "Ошибка: " + userFacingError(jobErr, h.retriever.MaxSize())
	if progressID != 0 {
		if err := h.messenger.EditMessageText(ctx, job.ChatID, progressID, text); err != nil {
			h.logger.Warn("Failed to edit progress message into error", slog.String("error", err.Error()))
		}
		return
	}
	h.send(ctx, job.ChatID, text)
}

// userFacingError maps pipeline failures to short user-facing texts
// without leaking internals
func userFacingError(err error, maxSize int64) string {
	switch {
	case errors.Is(err, download.ErrOversized):
		return fmt.Sprintf("файл слишком большой (максимум %d Мб).", maxSize/(1<<20))
	case errors.Is(err, asr.ErrEndpointUnconfigured):
		return "сервис распознавания не настроен."
	case errors.Is(err, asr.ErrUnreachable), errors.Is(err, asr.ErrBadResponse):
		return "сервис распознавания временно недоступен. Попробуйте позже."
	case errors.Is(err, context.DeadlineExceeded):
		return "обработка заняла слишком много времени. Попробуйте позже."
	default:
		return "не удалось обработать аудио."
	}
}

// typingKeepalive pings the typing indicator until the context ends
func (h *Handler) typingKeepalive(ctx context.Context, chatID int64) {
	// An immediate ping so the indicator shows before the first tick
	if err := h.messenger.SendChatAction(ctx, chatID, "typing"); err != nil {
		h.logger.Debug("Failed to send chat action", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(typingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.messenger.SendChatAction(ctx, chatID, "typing"); err != nil {
				h.logger.Debug("Failed to send chat action", slog.String("error", err.Error()))
			}
		}
	}
}

// send posts a plain message and logs delivery failures
func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	_, err := h.messenger.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Warn("Failed to send message",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}
