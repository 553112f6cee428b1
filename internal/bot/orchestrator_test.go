package bot

import (
	"context"
	"errors"
	"testing"

	"jinoca/internal/domain"
)

// fakeTransport records every outbound action in order.
type fakeTransport struct {
	calls    []string
	texts    []string
	caption  string
	png      []byte
	sendErr  error
	imageErr error
}

func (f *fakeTransport) Start(ctx context.Context, bus domain.MessageBus) error { return nil }
func (f *fakeTransport) Stop()                                                  {}
func (f *fakeTransport) Reconnect(ctx context.Context) error                    { return nil }

func (f *fakeTransport) SendText(ctx context.Context, chatID, text string) error {
	f.calls = append(f.calls, "text")
	f.texts = append(f.texts, text)
	return f.sendErr
}

func (f *fakeTransport) SendImage(ctx context.Context, chatID string, png []byte, caption string) error {
	f.calls = append(f.calls, "image")
	f.png = png
	f.caption = caption
	return f.imageErr
}

func (f *fakeTransport) SetTyping(ctx context.Context, chatID string, typing bool) error {
	if typing {
		f.calls = append(f.calls, "typing-on")
	} else {
		f.calls = append(f.calls, "typing-off")
	}
	return nil
}

type fakeCompleter struct {
	reply string
	err   error
	calls int
	turns []domain.Turn
}

func (f *fakeCompleter) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	f.calls++
	f.turns = turns
	return f.reply, f.err
}

type fakeImages struct {
	png   []byte
	err   error
	calls int
	panic bool
}

func (f *fakeImages) Generate(ctx context.Context, prompt string) ([]byte, error) {
	f.calls++
	if f.panic {
		panic("boom")
	}
	return f.png, f.err
}

func newTestOrchestrator(tr *fakeTransport, comp *fakeCompleter, img *fakeImages) *Orchestrator {
	logger := testLogger()
	return NewOrchestrator(OrchestratorConfig{
		Transport: tr,
		Completer: comp,
		Images:    img,
		Builder:   NewContextBuilder(ContextBuilderConfig{Window: 0, Logger: logger}),
		Logger:    logger,
	})
}

func TestProcess_FiltersIneligibleMessages(t *testing.T) {
	cases := []struct {
		name string
		msg  domain.InboundMessage
	}{
		{"from self", domain.InboundMessage{ID: "1", ChatID: "a@s.whatsapp.net", Content: "oi", IsFromSelf: true}},
		{"status broadcast", domain.InboundMessage{ID: "2", ChatID: "status@broadcast", Content: "oi", IsStatusBroadcast: true}},
		{"group chat", domain.InboundMessage{ID: "3", ChatID: "xyz@g.us", Content: "oi", IsGroupChat: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &fakeTransport{}
			comp := &fakeCompleter{reply: "nope"}
			img := &fakeImages{}
			o := newTestOrchestrator(tr, comp, img)

			o.Process(context.Background(), tc.msg)

			if len(tr.calls) != 0 {
				t.Fatalf("no outbound action expected, got %v", tr.calls)
			}
			if comp.calls != 0 || img.calls != 0 {
				t.Fatal("no handler must be invoked for filtered messages")
			}
		})
	}
}

func TestProcess_ChatReply(t *testing.T) {
	tr := &fakeTransport{}
	comp := &fakeCompleter{reply: "Oi! 😏"}
	o := newTestOrchestrator(tr, comp, &fakeImages{})

	o.Process(context.Background(), testMessage("m1", "oi jinoca"))

	want := []string{"typing-on", "text", "typing-off"}
	if len(tr.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, tr.calls)
	}
	for i := range want {
		if tr.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, tr.calls)
		}
	}
	if tr.texts[0] != "Oi! 😏" {
		t.Fatalf("unexpected reply: %q", tr.texts[0])
	}
	if comp.calls != 1 {
		t.Fatalf("expected exactly one completion call, got %d", comp.calls)
	}
}

func TestProcess_CompletionFailureSendsBusyReply(t *testing.T) {
	tr := &fakeTransport{}
	comp := &fakeCompleter{err: errors.New("openrouter 500: boom")}
	o := newTestOrchestrator(tr, comp, &fakeImages{})

	o.Process(context.Background(), testMessage("m1", "oi"))

	if len(tr.texts) != 1 || tr.texts[0] != replyBusy {
		t.Fatalf("expected the busy fallback, got %v", tr.texts)
	}
	if tr.calls[len(tr.calls)-1] != "typing-off" {
		t.Fatal("presence must be cleared after a failure")
	}
}

func TestProcess_ImageAckThenAttachment(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	tr := &fakeTransport{}
	img := &fakeImages{png: png}
	comp := &fakeCompleter{}
	o := newTestOrchestrator(tr, comp, img)

	o.Process(context.Background(), testMessage("m1", "image um gato"))

	want := []string{"typing-on", "text", "image", "typing-off"}
	if len(tr.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, tr.calls)
	}
	for i := range want {
		if tr.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, tr.calls)
		}
	}
	if tr.texts[0] != replyImageAck {
		t.Fatalf("first send must be the ack, got %q", tr.texts[0])
	}
	if tr.caption != imageCaption {
		t.Fatalf("unexpected caption: %q", tr.caption)
	}
	if comp.calls != 0 {
		t.Fatal("completion must not be called for image messages")
	}
}

func TestProcess_ImageFailureSendsFallback(t *testing.T) {
	tr := &fakeTransport{}
	img := &fakeImages{err: errors.New("imagegen returned 502")}
	o := newTestOrchestrator(tr, &fakeCompleter{}, img)

	o.Process(context.Background(), testMessage("m1", "image um dragão"))

	if len(tr.texts) != 2 {
		t.Fatalf("expected ack + fallback, got %v", tr.texts)
	}
	if tr.texts[0] != replyImageAck || tr.texts[1] != replyImageFailed {
		t.Fatalf("unexpected replies: %v", tr.texts)
	}
}

func TestProcess_ImageSendFailureSendsFallback(t *testing.T) {
	tr := &fakeTransport{imageErr: errors.New("media upload rejected")}
	img := &fakeImages{png: []byte{0x89, 'P', 'N', 'G'}}
	o := newTestOrchestrator(tr, &fakeCompleter{}, img)

	o.Process(context.Background(), testMessage("m1", "image um gato"))

	// The user got the ack; a failed delivery must still end in a reply.
	if len(tr.texts) != 2 {
		t.Fatalf("expected ack + fallback, got %v", tr.texts)
	}
	if tr.texts[0] != replyImageAck || tr.texts[1] != replyImageFailed {
		t.Fatalf("unexpected replies: %v", tr.texts)
	}
	if tr.calls[len(tr.calls)-1] != "typing-off" {
		t.Fatal("presence must be cleared after a failed delivery")
	}
}

func TestProcess_EmptyImagePrompt(t *testing.T) {
	tr := &fakeTransport{}
	img := &fakeImages{}
	comp := &fakeCompleter{}
	o := newTestOrchestrator(tr, comp, img)

	o.Process(context.Background(), testMessage("m1", "image "))

	if len(tr.texts) != 1 || tr.texts[0] != replyNeedPrompt {
		t.Fatalf("expected exactly the prompt-request reply, got %v", tr.texts)
	}
	if img.calls != 0 || comp.calls != 0 {
		t.Fatal("no API call may be made for an empty image prompt")
	}
}

func TestProcess_HandlerPanicBecomesApology(t *testing.T) {
	tr := &fakeTransport{}
	img := &fakeImages{panic: true}
	o := newTestOrchestrator(tr, &fakeCompleter{}, img)

	o.Process(context.Background(), testMessage("m1", "image um gato"))

	last := tr.texts[len(tr.texts)-1]
	if last != replyApology {
		t.Fatalf("expected the apology reply, got %q", last)
	}
	if tr.calls[len(tr.calls)-1] != "typing-off" {
		t.Fatal("presence must be cleared even after a panic")
	}
}
