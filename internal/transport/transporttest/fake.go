// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	kit "studybot/internal/transport"
)

// Sent is one recorded outbound call.
type Sent struct {
	Kind    string // "text", "photo", "document", "edit", "answer"
	To      kit.ChatTarget
	Text    string
	FileID  string
	Doc     kit.Document
	Options *kit.SendOptions
}

// Adapter records every send. Fail, when set, is consulted before each send
// and its error is returned instead.
type Adapter struct {
	mu     sync.Mutex
	sent   []Sent
	nextID int

	Fail func(s Sent) error
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	<-ctx.Done()
	return nil
}

func (a *Adapter) Stop(context.Context) error { return nil }

func (a *Adapter) record(s Sent) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Fail != nil {
		if err := a.Fail(s); err != nil {
			return kit.MessageRef{}, err
		}
	}
	a.sent = append(a.sent, s)
	a.nextID++
	return kit.MessageRef{ChatID: s.To.ChatID, ThreadID: s.To.ThreadID, MessageID: a.nextID}, nil
}

func (a *Adapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.record(Sent{Kind: "text", To: to, Text: text, Options: opt})
}

func (a *Adapter) SendPhoto(_ context.Context, to kit.ChatTarget, fileID, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.record(Sent{Kind: "photo", To: to, Text: caption, FileID: fileID, Options: opt})
}

func (a *Adapter) SendDocument(_ context.Context, to kit.ChatTarget, doc kit.Document) (kit.MessageRef, error) {
	return a.record(Sent{Kind: "document", To: to, Text: doc.Caption, Doc: doc})
}

func (a *Adapter) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	_, err := a.record(Sent{Kind: "edit", To: kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, Text: text, Options: opt})
	return err
}

func (a *Adapter) AnswerCallback(_ context.Context, _ string, text string) error {
	_, err := a.record(Sent{Kind: "answer", Text: text})
	return err
}

// Sent returns a copy of everything recorded so far.
func (a *Adapter) Sent() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.sent...)
}

// Last returns the most recent send, or a zero value.
func (a *Adapter) Last() Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		return Sent{}
	}
	return a.sent[len(a.sent)-1]
}

func (a *Adapter) Reset() {
	a.mu.Lock()
	a.sent = nil
	a.mu.Unlock()
}
