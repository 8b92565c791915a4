package notify

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	kit "steamwatch/internal/transport"
	"steamwatch/internal/watch"
	logx "steamwatch/pkg/logx"
)

// sendPace is the fixed delay between outgoing notifications, to stay under
// the platform's flood limits. Pacing belongs here, not in the engine.
const sendPace = rate.Limit(1) // one message per second

// Dispatcher drains engine event streams and delivers each event through the
// transport adapter.
type Dispatcher struct {
	log     logx.Logger
	adapter kit.Adapter
	limiter *rate.Limiter
}

func NewDispatcher(adapter kit.Adapter, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		log:     log,
		adapter: adapter,
		limiter: rate.NewLimiter(sendPace, 1),
	}
}

// Drain consumes events until the channel closes or ctx is cancelled.
// Delivery failures are logged and skipped; one bad subscriber must not eat
// the rest of the round's notifications.
func (d *Dispatcher) Drain(ctx context.Context, events <-chan watch.Event) {
	for ev := range events {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}

		target, ok := targetFor(ev.Address)
		if !ok {
			d.log.Warn("skipping undeliverable subscriber",
				logx.String("event", ev.ID),
				logx.String("address", ev.Address.Raw))
			continue
		}

		text := renderHTML(ev)
		err := d.adapter.SendText(ctx, target, text, &kit.SendOptions{
			ParseMode:      kit.ParseModeHTML,
			DisablePreview: true,
		})
		if err != nil {
			d.log.Warn("notification delivery failed",
				logx.String("event", ev.ID),
				logx.String("address", ev.Address.Raw),
				logx.Err(err))
			continue
		}
		d.log.Info("notification delivered",
			logx.String("event", ev.ID),
			logx.String("address", ev.Address.Raw))
	}
}

// targetFor maps a subscriber address to a chat target: group addresses go
// to the group, direct addresses to the user. Unknown or non-numeric
// addresses are undeliverable.
func targetFor(a watch.Address) (kit.ChatTarget, bool) {
	var id string
	switch a.Kind {
	case watch.KindDirect:
		id = a.UserID
	case watch.KindGroup:
		id = a.GroupID
	default:
		return kit.ChatTarget{}, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return kit.ChatTarget{}, false
	}
	return kit.ChatTarget{ChatID: n}, true
}

func renderHTML(ev watch.Event) string {
	var b strings.Builder
	for i, seg := range ev.Segments {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(EscapeHTML(seg))
	}
	for _, user := range ev.Mentions {
		if id, err := strconv.ParseInt(user, 10, 64); err == nil {
			b.WriteString("\n")
			b.WriteString(`<a href="tg://user?id=` + strconv.FormatInt(id, 10) + `">@` + EscapeHTML(user) + `</a>`)
		}
	}
	return b.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeHTML escapes the characters Telegram's HTML parse mode treats as
// markup.
func EscapeHTML(s string) string { return htmlEscaper.Replace(s) }
