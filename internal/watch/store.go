package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"steamwatch/internal/storage"
	logx "steamwatch/pkg/logx"
)

// watchlistDoc is the persisted subscription document: appid (as string)
// -> Item.
const watchlistDoc = "monitor_list"

// Store owns the watchlist. Every mutation runs as one exclusive
// read-modify-write-persist unit under mu, so concurrent command handlers
// and the poll engine can never interleave partial updates or tear the
// persisted document. This is the only concurrency guard in the system.
type Store struct {
	log     logx.Logger
	backend storage.Store

	mu    sync.Mutex
	items map[string]*Item
}

// Open loads the watchlist from the backend. A missing or corrupt document
// is replaced by an empty valid one; Open never fails because of document
// content. A read error is a different matter: the document may be intact
// and merely unreachable right now, so Open fails rather than persisting an
// empty watchlist over it.
func Open(ctx context.Context, backend storage.Store, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{log: log, backend: backend, items: map[string]*Item{}}

	b, err := backend.Load(ctx, watchlistDoc)
	if err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}
	switch {
	case len(b) == 0:
		s.log.Info("no watchlist yet, starting empty")
	default:
		var items map[string]*Item
		if err := json.Unmarshal(b, &items); err != nil {
			s.log.Warn("watchlist corrupt, starting empty", logx.Err(err))
		} else {
			for id, it := range items {
				if it == nil {
					continue
				}
				if it.AppID == "" {
					it.AppID = id
				}
				s.items[id] = it
			}
		}
	}

	// Re-persist so a missing/corrupt file becomes a valid empty document.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistLocked(ctx); err != nil {
		s.log.Warn("watchlist initial persist failed", logx.Err(err))
	}
	return s, nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	b, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return err
	}
	return s.backend.Save(ctx, watchlistDoc, b)
}

// Subscribe adds addr to the item's subscriber set, creating the item if
// needed. Price fields stay uninitialized until the first poll. It is
// idempotent: subscribing twice reports already=true and changes nothing.
//
// A failed persist rolls the mutation back, so memory and the document never
// diverge and a retry starts from the pre-call state.
func (s *Store) Subscribe(ctx context.Context, appID, name, region string, addr Address) (already bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, existed := s.items[appID]
	if !existed {
		it = &Item{Name: name, AppID: appID, Region: region}
	}
	if it.hasSubscriber(addr.Raw) {
		return true, nil
	}

	prev := it.Subscribers
	it.Subscribers = append(append([]string(nil), it.Subscribers...), addr.Raw)
	s.items[appID] = it
	if err := s.persistLocked(ctx); err != nil {
		if existed {
			it.Subscribers = prev
		} else {
			delete(s.items, appID)
		}
		return false, err
	}
	return false, nil
}

// Unsubscribe removes addr from the item's subscriber set. When the set
// becomes empty the item is deleted entirely. Removing a non-subscriber (or
// an unknown appid) is a no-op reported as removed=false.
func (s *Store) Unsubscribe(ctx context.Context, appID string, addr Address) (removed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[appID]
	if !ok {
		return false, nil
	}
	kept := make([]string, 0, len(it.Subscribers))
	for _, sub := range it.Subscribers {
		if sub == addr.Raw {
			removed = true
			continue
		}
		kept = append(kept, sub)
	}
	if !removed {
		return false, nil
	}

	prev := it.Subscribers
	it.Subscribers = kept
	deleted := len(kept) == 0
	if deleted {
		delete(s.items, appID)
	}
	if err := s.persistLocked(ctx); err != nil {
		it.Subscribers = prev
		if deleted {
			s.items[appID] = it
		}
		return false, err
	}
	if deleted {
		s.log.Info("item has no subscribers left, removed",
			logx.String("appid", appID), logx.String("name", it.Name))
	}
	return true, nil
}

// Update runs fn on one item inside the exclusive section. fn returns true
// to persist its mutation. The returned Item is a copy of the post-fn state;
// found is false when the appid is not monitored (fn is not called then).
//
// This is the poll engine's write path: the diff against the stored snapshot
// and the snapshot update happen atomically with respect to subscribe and
// unsubscribe commands. A failed persist restores the pre-fn state, so a
// price change the engine could not record stays pending and is re-detected
// next round instead of being silently absorbed.
func (s *Store) Update(ctx context.Context, appID string, fn func(*Item) bool) (Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[appID]
	if !ok {
		return Item{}, false, nil
	}
	prev := it.clone()
	if !fn(it) {
		return it.clone(), true, nil
	}
	if err := s.persistLocked(ctx); err != nil {
		*it = prev
		return Item{}, true, err
	}
	return it.clone(), true, nil
}

// ListAll returns a copy of every monitored item, ordered by numeric appid
// so rounds and listings are deterministic.
func (s *Store) ListAll() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.clone())
	}
	sortItems(out)
	return out
}

// ListByAddress returns the items addr is subscribed to.
func (s *Store) ListByAddress(addr Address) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Item
	for _, it := range s.items {
		if it.hasSubscriber(addr.Raw) {
			out = append(out, it.clone())
		}
	}
	sortItems(out)
	return out
}

// Universe returns addr's subscribed items as a name -> appid mapping for
// fuzzy resolution scoped to the caller's own subscriptions.
func (s *Store) Universe(addr Address) map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]int64{}
	for id, it := range s.items {
		if !it.hasSubscriber(addr.Raw) {
			continue
		}
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			out[it.Name] = n
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		a, errA := strconv.ParseInt(items[i].AppID, 10, 64)
		b, errB := strconv.ParseInt(items[j].AppID, 10, 64)
		if errA != nil || errB != nil {
			return items[i].AppID < items[j].AppID
		}
		return a < b
	})
}
