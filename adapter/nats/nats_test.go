package nats

import (
	"context"
	"errors"
	"testing"
)

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) publish(_ context.Context, subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subject = subject
	f.data = data
	return nil
}

func TestSend_DefaultSubject(t *testing.T) {
	pub := &fakePublisher{}
	a := newAdapter(pub, "")

	if err := a.Send(t.Context(), "https://s3.amazonaws.com/b/k.png"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if pub.subject != DefaultSubject {
		t.Errorf("subject = %q", pub.subject)
	}
	if string(pub.data) != "https://s3.amazonaws.com/b/k.png" {
		t.Errorf("data = %q", pub.data)
	}
	if err := a.Close(); err != nil {
		t.Errorf("close without connection: %v", err)
	}
}

func TestSend_Errors(t *testing.T) {
	a := newAdapter(&fakePublisher{err: errors.New("nats: connection closed")}, "jobs.ocr")
	if err := a.Send(t.Context(), "x"); err == nil {
		t.Error("expected publish error")
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := newAdapter(&fakePublisher{}, "s").Send(ctx, "x"); err == nil {
		t.Error("expected error on canceled context")
	}
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
