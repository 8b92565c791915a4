package watch

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"steamwatch/internal/steam"
	logx "steamwatch/pkg/logx"
)

// PriceFetcher is the slice of the store client the engine needs.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, appID int64, region string) (steam.Price, bool)
}

// Event is one notification to one subscriber. The transport owns rendering:
// Segments are ordered text lines, Mentions are platform user ids to tag in
// group chats.
type Event struct {
	ID       string
	Address  Address
	Mentions []string
	Segments []string
}

// ChangeKind classifies the outcome of one item's poll.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeBaseline
	ChangeFree
	ChangeIncrease
	ChangeDecrease
)

// Engine is the poll-diff-notify pass. Each Run() walks every monitored
// item once: fetch the current price, diff it against the stored snapshot,
// persist the new snapshot, and emit one event per subscriber of a changed
// item.
type Engine struct {
	log    logx.Logger
	store  *Store
	prices PriceFetcher
}

func NewEngine(store *Store, prices PriceFetcher, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{log: log, store: store, prices: prices}
}

// Run starts one round and returns its event stream. The channel is closed
// when the round finishes or ctx is cancelled; the caller must drain it.
// Events for an item are only emitted after its updated snapshot has been
// persisted, so a crash between persist and delivery loses notifications
// rather than duplicating them.
//
// Failures are isolated per item: a fetch or persist problem for one app is
// logged and the round moves on.
func (e *Engine) Run(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		e.run(ctx, out)
	}()
	return out
}

func (e *Engine) run(ctx context.Context, out chan<- Event) {
	items := e.store.ListAll()
	e.log.Info("poll round started", logx.Int("items", len(items)))

	var changed int
	for _, snapshot := range items {
		if ctx.Err() != nil {
			e.log.Warn("poll round cancelled")
			return
		}

		appID, err := strconv.ParseInt(snapshot.AppID, 10, 64)
		if err != nil {
			e.log.Warn("skipping item with malformed appid", logx.String("appid", snapshot.AppID))
			continue
		}

		log := e.log.With(logx.String("appid", snapshot.AppID), logx.String("name", snapshot.Name))
		log.Debug("checking price")

		price, ok := e.prices.FetchPrice(ctx, appID, snapshot.Region)
		if !ok {
			log.Warn("price unavailable, skipping this round")
			continue
		}

		var (
			kind ChangeKind
			old  float64
		)
		item, found, err := e.store.Update(ctx, snapshot.AppID, func(it *Item) bool {
			if !it.Baselined() {
				kind = ChangeBaseline
				setPrice(it, price)
				return true
			}
			old = *it.LastPrice
			delta := price.Current - old
			if delta == 0 {
				kind = ChangeNone
				return false
			}
			switch {
			case price.IsFree:
				kind = ChangeFree
			case delta > 0:
				kind = ChangeIncrease
			default:
				kind = ChangeDecrease
			}
			setPrice(it, price)
			return true
		})
		if err != nil {
			log.Error("snapshot persist failed", logx.Err(err))
			continue
		}
		if !found {
			// Unsubscribed while we were fetching.
			log.Debug("item vanished mid-round")
			continue
		}

		switch kind {
		case ChangeBaseline:
			log.Info("baseline price recorded", logx.Float64("price", price.Current))
			continue
		case ChangeNone:
			log.Debug("price unchanged")
			continue
		}

		changed++
		segments := renderSegments(item, kind, old, price)
		for _, raw := range item.Subscribers {
			addr := ParseAddress(raw)
			ev := Event{
				ID:       uuid.NewString(),
				Address:  addr,
				Mentions: addr.MentionTargets(),
				Segments: segments,
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
	e.log.Info("poll round finished", logx.Int("items", len(items)), logx.Int("changed", changed))
}

func setPrice(it *Item, p steam.Price) {
	cur, orig, disc := p.Current, p.Original, p.Discount
	it.LastPrice = &cur
	it.OriginalPrice = &orig
	it.Discount = &disc
}
