package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	kit "steamwatch/internal/transport"
	"steamwatch/internal/watch"
	logx "steamwatch/pkg/logx"
)

type sentMessage struct {
	target kit.ChatTarget
	text   string
}

// fakeAdapter records sends and can fail specific chat ids.
type fakeAdapter struct {
	sent   []sentMessage
	failID int64
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(_ context.Context, target kit.ChatTarget, text string, _ *kit.SendOptions) error {
	if f.failID != 0 && target.ChatID == f.failID {
		return errors.New("chat not found")
	}
	f.sent = append(f.sent, sentMessage{target: target, text: text})
	return nil
}

func feed(events ...watch.Event) <-chan watch.Event {
	ch := make(chan watch.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestDrainDeliversToDirectAndGroup(t *testing.T) {
	adapter := &fakeAdapter{}
	d := NewDispatcher(adapter, logx.Nop())

	d.Drain(context.Background(), feed(
		watch.Event{
			ID:       "a",
			Address:  watch.NewDirect("telegram", "100"),
			Segments: []string{"Dota 2 price dropped"},
		},
		watch.Event{
			ID:       "b",
			Address:  watch.NewGroup("telegram", "100", "-200"),
			Mentions: []string{"100"},
			Segments: []string{"Dota 2 price dropped"},
		},
	))

	if len(adapter.sent) != 2 {
		t.Fatalf("delivered %d messages, want 2", len(adapter.sent))
	}
	if adapter.sent[0].target.ChatID != 100 {
		t.Fatalf("direct event sent to chat %d", adapter.sent[0].target.ChatID)
	}
	if adapter.sent[1].target.ChatID != -200 {
		t.Fatalf("group event sent to chat %d", adapter.sent[1].target.ChatID)
	}
	if !strings.Contains(adapter.sent[1].text, `tg://user?id=100`) {
		t.Fatalf("group message must mention the subscriber: %q", adapter.sent[1].text)
	}
	if strings.Contains(adapter.sent[0].text, "tg://user") {
		t.Fatalf("direct message must not carry a mention: %q", adapter.sent[0].text)
	}
}

func TestDrainSkipsUndeliverableAndFailures(t *testing.T) {
	adapter := &fakeAdapter{failID: 7}
	d := NewDispatcher(adapter, logx.Nop())

	d.Drain(context.Background(), feed(
		watch.Event{ID: "a", Address: watch.ParseAddress("garbage"), Segments: []string{"x"}},
		watch.Event{ID: "b", Address: watch.NewDirect("telegram", "not-a-number"), Segments: []string{"x"}},
		watch.Event{ID: "c", Address: watch.NewDirect("telegram", "7"), Segments: []string{"x"}},
		watch.Event{ID: "d", Address: watch.NewDirect("telegram", "8"), Segments: []string{"x"}},
	))

	if len(adapter.sent) != 1 || adapter.sent[0].target.ChatID != 8 {
		t.Fatalf("only the deliverable event must get through, sent %+v", adapter.sent)
	}
}

func TestRenderHTMLEscapesSegments(t *testing.T) {
	ev := watch.Event{
		Address:  watch.NewDirect("telegram", "1"),
		Segments: []string{"A <B> & C"},
	}
	got := renderHTML(ev)
	if got != "A &lt;B&gt; &amp; C" {
		t.Fatalf("renderHTML = %q", got)
	}
}
