package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "steamwatch/internal/transport"
	logx "steamwatch/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter bridges telebot to the transport contract.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores (chan<- kit.Update)

	runMu   sync.Mutex
	running bool
	done    chan struct{}

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop; reported on Stop to avoid per-update log spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		up := kit.Update{
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
			},
		}
		a.sendUpdate(up)
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.done = make(chan struct{})
	a.out.Store(out)
	done := a.done
	a.runMu.Unlock()

	// Stop telebot when the context is cancelled.
	go func() {
		select {
		case <-ctx.Done():
			a.bot.Stop()
		case <-done:
		}
	}()

	go func() {
		a.log.Info("polling started")
		// Start blocks until Stop() is called.
		a.bot.Start()
		a.log.Info("polling stopped")
		close(done)
	}()

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	done := a.done
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if n := atomic.LoadUint64(&a.droppedUpdates); n > 0 {
		a.log.Warn("incoming updates were dropped (consumer slow)", logx.Uint64("count", n))
	}

	go a.bot.Stop()

	// Keep shutdown snappy even if the long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	select {
	case <-done:
	case <-time.After(grace):
		a.log.Warn("telegram stop timed out")
	case <-ctx.Done():
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	_ = ctx // telebot does not take a context per call
	var sopt tele.SendOptions
	if opt != nil {
		if opt.ParseMode == kit.ParseModeHTML {
			sopt.ParseMode = tele.ModeHTML
		}
		sopt.DisableWebPagePreview = opt.DisablePreview
	}
	_, err := a.bot.Send(tele.ChatID(to.ChatID), text, &sopt)
	return err
}

// UpdateMenuCommands publishes the bot command menu.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	_ = ctx
	tc := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		tc = append(tc, tele.Command{Text: c.Command, Description: c.Description})
	}
	return a.bot.SetCommands(tc)
}
