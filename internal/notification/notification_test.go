package notification

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerNotifierWritesWarning(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(slog.New(slog.NewTextHandler(&buf, nil)))
	if err := n.Send(context.Background(), Message{Kind: KindBankInconsistency, Destination: "ops", Body: "acct-1 written, acct-2 failed"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "kind="+KindBankInconsistency) {
		t.Fatalf("unexpected log line %q", out)
	}

	var nilNotifier *LoggerNotifier
	if err := nilNotifier.Send(context.Background(), Message{}); err != nil {
		t.Fatalf("nil notifier should be a no-op, got %v", err)
	}
}

func TestRecorderCopiesMessages(t *testing.T) {
	var r Recorder
	_ = r.Send(context.Background(), Message{Kind: KindRootKeyIssued})
	got := r.Messages()
	got[0].Kind = "mutated"
	if r.Messages()[0].Kind != KindRootKeyIssued {
		t.Fatalf("Messages must return a copy")
	}
}
