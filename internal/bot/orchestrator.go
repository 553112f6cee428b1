package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"jinoca/internal/domain"
	"jinoca/internal/metrics"
)

// Fixed persona-flavored replies. The sarcasm is part of the product.
const (
	replyBusy        = "Tô ocupada agora, fofo. 💅"
	replyImageFailed = "Deu pau na minha arte. Tenta um desenho mais fácil. 🤷‍♀️"
	replyApology     = "Ih, deu ruim. Tenta de novo, anjo. 🙄"
	replyNeedPrompt  = "Tem que me dizer o que desenhar, né? 🙄"
	replyImageAck    = "Tá, tá... vou ver o que eu faço. 🎨"
	imageCaption     = "Toma. Vê se me deixa em paz agora. 😒"
)

// Orchestrator is the per-message dispatch pipeline: filter ineligible
// senders, set typing presence, route through the classifier, send the
// reply, and always clear presence on the way out. Every message that passes
// the filter gets some reply.
type Orchestrator struct {
	transport domain.Transport
	completer domain.Completer
	images    domain.ImageGenerator
	builder   *ContextBuilder
	history   domain.HistoryStore
	logger    *slog.Logger
}

type OrchestratorConfig struct {
	Transport domain.Transport
	Completer domain.Completer
	Images    domain.ImageGenerator
	Builder   *ContextBuilder
	History   domain.HistoryStore
	Logger    *slog.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		transport: cfg.Transport,
		completer: cfg.Completer,
		images:    cfg.Images,
		builder:   cfg.Builder,
		history:   cfg.History,
		logger:    cfg.Logger,
	}
}

// Run consumes inbound messages sequentially: one message is handled to
// completion, outbound calls included, before the next one starts.
func (o *Orchestrator) Run(ctx context.Context, messages <-chan domain.InboundMessage) {
	o.logger.Info("dispatch pipeline started")
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("dispatch pipeline stopping")
			return
		case msg, ok := <-messages:
			if !ok {
				o.logger.Info("inbound channel closed, dispatch pipeline stopping")
				return
			}
			o.Process(ctx, msg)
		}
	}
}

// Process handles one inbound message end to end.
func (o *Orchestrator) Process(ctx context.Context, msg domain.InboundMessage) {
	metrics.Collector.GetCounter("jinoca_messages_received_total", "Inbound messages seen").Inc()

	o.record(ctx, msg)

	if msg.IsFromSelf || msg.IsStatusBroadcast || msg.IsGroupChat {
		metrics.Collector.GetCounter("jinoca_messages_filtered_total", "Inbound messages skipped by the eligibility filter").Inc()
		return
	}

	o.logger.Info("processing message", "chat", msg.ChatID, "content_len", len(msg.Content))

	if err := o.transport.SetTyping(ctx, msg.ChatID, true); err != nil {
		o.logger.Warn("set typing failed", "chat", msg.ChatID, "err", err)
	}
	defer func() {
		if err := o.transport.SetTyping(ctx, msg.ChatID, false); err != nil {
			o.logger.Warn("clear typing failed", "chat", msg.ChatID, "err", err)
		}
	}()

	if err := o.route(ctx, msg); err != nil {
		metrics.Collector.GetCounter("jinoca_handler_failures_total", "Messages that ended in the apology reply").Inc()
		o.logger.Error("message handling failed", "chat", msg.ChatID, "err", err)
		o.reply(ctx, msg.ChatID, replyApology)
	}
}

// route dispatches to the handler chosen by the classifier. Panics inside a
// handler surface as errors so presence cleanup and the apology reply still
// happen.
func (o *Orchestrator) route(ctx context.Context, msg domain.InboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	intent, prompt := Classify(msg.Content)
	switch intent {
	case IntentImageMissingPrompt:
		o.reply(ctx, msg.ChatID, replyNeedPrompt)
		return nil
	case IntentImage:
		return o.handleImage(ctx, msg.ChatID, prompt)
	default:
		return o.handleChat(ctx, msg)
	}
}

// handleChat builds the conversation window, asks the completion API for a
// reply and sends it back. API failures map to the fixed busy reply and are
// never escalated.
func (o *Orchestrator) handleChat(ctx context.Context, msg domain.InboundMessage) error {
	turns := o.builder.Build(ctx, msg)

	text, err := o.completer.Complete(ctx, turns)
	if err != nil {
		metrics.Collector.GetCounter("jinoca_completion_failures_total", "Completion API failures").Inc()
		o.logger.Error("completion failed", "chat", msg.ChatID, "err", err)
		text = replyBusy
	}

	o.reply(ctx, msg.ChatID, text)
	return nil
}

// handleImage acknowledges immediately, then fetches the image and delivers
// it with the fixed caption. Generation and delivery failures both map to
// the fixed art-failed reply.
func (o *Orchestrator) handleImage(ctx context.Context, chatID, prompt string) error {
	// The ack goes out before the image call and regardless of its outcome.
	o.reply(ctx, chatID, replyImageAck)

	png, err := o.images.Generate(ctx, prompt)
	if err != nil {
		metrics.Collector.GetCounter("jinoca_image_failures_total", "Image API failures").Inc()
		o.logger.Error("image generation failed", "chat", chatID, "err", err)
		o.reply(ctx, chatID, replyImageFailed)
		return nil
	}

	if err := o.transport.SendImage(ctx, chatID, png, imageCaption); err != nil {
		// The ack already went out; a silent drop here would leave the user
		// hanging, so the send failure maps to the same fixed fallback.
		o.logger.Error("image send failed", "chat", chatID, "err", err)
		o.reply(ctx, chatID, replyImageFailed)
		return nil
	}
	metrics.Collector.GetCounter("jinoca_replies_sent_total", "Replies delivered to chats").Inc()
	o.recordReply(ctx, chatID, imageCaption)
	return nil
}

// reply sends a text reply and records it as an assistant turn. Transport
// send failures are logged; there is nothing further to do with them.
func (o *Orchestrator) reply(ctx context.Context, chatID, text string) {
	if err := o.transport.SendText(ctx, chatID, text); err != nil {
		o.logger.Error("send failed", "chat", chatID, "err", err)
		return
	}
	metrics.Collector.GetCounter("jinoca_replies_sent_total", "Replies delivered to chats").Inc()
	o.recordReply(ctx, chatID, text)
}

// record stores an inbound message for future context windows. Group and
// status-broadcast traffic is never relayed, so it is not recorded either.
func (o *Orchestrator) record(ctx context.Context, msg domain.InboundMessage) {
	if o.history == nil || msg.IsGroupChat || msg.IsStatusBroadcast || msg.Content == "" {
		return
	}
	if err := o.history.Record(ctx, msg.ID, msg.ChatID, msg.IsFromSelf, msg.Content, msg.Timestamp); err != nil {
		o.logger.Warn("history record failed", "chat", msg.ChatID, "err", err)
	}
}

func (o *Orchestrator) recordReply(ctx context.Context, chatID, text string) {
	if o.history == nil {
		return
	}
	id := fmt.Sprintf("out-%d", time.Now().UnixNano())
	if err := o.history.Record(ctx, id, chatID, true, text, time.Now()); err != nil {
		o.logger.Warn("history record failed", "chat", chatID, "err", err)
	}
}
