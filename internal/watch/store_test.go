package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"steamwatch/internal/storage"
	logx "steamwatch/pkg/logx"
)

func newTestStore(t *testing.T) (*Store, storage.Store) {
	t.Helper()
	backend, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	s, err := Open(context.Background(), backend, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s, backend
}

func TestSubscribeIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	addr := NewDirect("telegram", "1")

	already, err := s.Subscribe(ctx, "570", "Dota 2", "us", addr)
	if err != nil || already {
		t.Fatalf("first subscribe: already=%v err=%v", already, err)
	}
	already, err = s.Subscribe(ctx, "570", "Dota 2", "us", addr)
	if err != nil || !already {
		t.Fatalf("second subscribe: already=%v err=%v", already, err)
	}

	items := s.ListAll()
	if len(items) != 1 || len(items[0].Subscribers) != 1 {
		t.Fatalf("expected one item with one subscriber, got %+v", items)
	}
	if items[0].LastPrice != nil {
		t.Fatalf("fresh item must have no baseline, got %v", *items[0].LastPrice)
	}
}

func TestUnsubscribeRemovesEmptyItem(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a1 := NewDirect("telegram", "1")
	a2 := NewDirect("telegram", "2")

	if _, err := s.Subscribe(ctx, "570", "Dota 2", "us", a1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Subscribe(ctx, "570", "Dota 2", "us", a2); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Unsubscribe(ctx, "570", a1)
	if err != nil || !removed {
		t.Fatalf("unsubscribe a1: removed=%v err=%v", removed, err)
	}
	if got := s.ListAll(); len(got) != 1 {
		t.Fatalf("item must survive while a2 remains, got %+v", got)
	}

	removed, err = s.Unsubscribe(ctx, "570", a2)
	if err != nil || !removed {
		t.Fatalf("unsubscribe a2: removed=%v err=%v", removed, err)
	}
	if got := s.ListAll(); len(got) != 0 {
		t.Fatalf("empty subscriber set must delete the item, got %+v", got)
	}

	// Removing from a gone item is a no-op, not an error.
	removed, err = s.Unsubscribe(ctx, "570", a2)
	if err != nil || removed {
		t.Fatalf("unsubscribe on missing item: removed=%v err=%v", removed, err)
	}
}

func TestRoundTripReload(t *testing.T) {
	dir := t.TempDir()
	backend, err := storage.Open(storage.Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s, err := Open(ctx, backend, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Subscribe(ctx, "570", "Dota 2", "us", NewDirect("telegram", "1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Subscribe(ctx, "570", "Dota 2", "us", NewGroup("telegram", "2", "3")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Subscribe(ctx, "730", "Counter-Strike 2", "us", NewDirect("telegram", "1")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Update(ctx, "570", func(it *Item) bool {
		price := 39.99
		orig := 59.99
		disc := 33
		it.LastPrice = &price
		it.OriginalPrice = &orig
		it.Discount = &disc
		return true
	}); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Open(ctx, backend, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s.ListAll(), reloaded.ListAll()) {
		t.Fatalf("reload mismatch:\n%+v\nvs\n%+v", s.ListAll(), reloaded.ListAll())
	}
}

func TestOpenWithCorruptDocumentStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "monitor_list.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	backend, err := storage.Open(storage.Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s, err := Open(context.Background(), backend, logx.Nop())
	if err != nil {
		t.Fatalf("corrupt document must not fail Open: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d items", s.Len())
	}

	// The document must have been rewritten as valid JSON.
	b, err := os.ReadFile(filepath.Join(dir, "monitor_list.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "{}" {
		t.Fatalf("expected empty valid document, got %q", b)
	}
}

func TestConcurrentSubscribeUnsubscribe(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := NewDirect("telegram", "user"+string(rune('a'+i%26))+string(rune('a'+i/26)))
			if _, err := s.Subscribe(ctx, "570", "Dota 2", "us", addr); err != nil {
				t.Errorf("subscribe: %v", err)
			}
			if i%2 == 0 {
				if _, err := s.Unsubscribe(ctx, "570", addr); err != nil {
					t.Errorf("unsubscribe: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	items := s.ListAll()
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	// Half of the workers net-subscribe, the other half subscribe+unsubscribe.
	if got := len(items[0].Subscribers); got != n/2 {
		t.Fatalf("expected %d subscribers after interleaving, got %d", n/2, got)
	}
}

// flakyBackend wraps a real backend and fails writes (or reads) on demand.
type flakyBackend struct {
	storage.Store
	failSave bool
	failLoad bool
}

func (f *flakyBackend) Save(ctx context.Context, name string, data []byte) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return f.Store.Save(ctx, name, data)
}

func (f *flakyBackend) Load(ctx context.Context, name string) ([]byte, error) {
	if f.failLoad {
		return nil, errors.New("permission denied")
	}
	return f.Store.Load(ctx, name)
}

func newFlakyStore(t *testing.T) (*Store, *flakyBackend) {
	t.Helper()
	backend, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	flaky := &flakyBackend{Store: backend}
	s, err := Open(context.Background(), flaky, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s, flaky
}

func TestSubscribeRolledBackOnPersistFailure(t *testing.T) {
	s, flaky := newFlakyStore(t)
	ctx := context.Background()
	addr := NewDirect("telegram", "1")

	flaky.failSave = true
	if _, err := s.Subscribe(ctx, "570", "Dota 2", "us", addr); err == nil {
		t.Fatal("subscribe must report the persist failure")
	}
	if s.Len() != 0 {
		t.Fatalf("failed subscribe must not leave the item in memory, got %d items", s.Len())
	}

	// The retry starts clean: not already-subscribed, and this time durable.
	flaky.failSave = false
	already, err := s.Subscribe(ctx, "570", "Dota 2", "us", addr)
	if err != nil || already {
		t.Fatalf("retry after failed subscribe: already=%v err=%v", already, err)
	}
	reloaded, err := Open(ctx, flaky, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Len() != 1 {
		t.Fatalf("retry must persist, reloaded %d items", reloaded.Len())
	}
}

func TestSubscribeSecondAddressRolledBackOnPersistFailure(t *testing.T) {
	s, flaky := newFlakyStore(t)
	ctx := context.Background()
	a1 := NewDirect("telegram", "1")
	a2 := NewDirect("telegram", "2")

	if _, err := s.Subscribe(ctx, "570", "Dota 2", "us", a1); err != nil {
		t.Fatal(err)
	}

	flaky.failSave = true
	if _, err := s.Subscribe(ctx, "570", "Dota 2", "us", a2); err == nil {
		t.Fatal("subscribe must report the persist failure")
	}
	items := s.ListAll()
	if len(items) != 1 || len(items[0].Subscribers) != 1 || items[0].Subscribers[0] != a1.Raw {
		t.Fatalf("existing item must keep its pre-call subscribers, got %+v", items)
	}
}

func TestUnsubscribeRolledBackOnPersistFailure(t *testing.T) {
	s, flaky := newFlakyStore(t)
	ctx := context.Background()
	addr := NewDirect("telegram", "1")

	if _, err := s.Subscribe(ctx, "570", "Dota 2", "us", addr); err != nil {
		t.Fatal(err)
	}

	flaky.failSave = true
	if _, err := s.Unsubscribe(ctx, "570", addr); err == nil {
		t.Fatal("unsubscribe must report the persist failure")
	}
	items := s.ListAll()
	if len(items) != 1 || len(items[0].Subscribers) != 1 {
		t.Fatalf("failed unsubscribe must keep the subscription, got %+v", items)
	}

	flaky.failSave = false
	removed, err := s.Unsubscribe(ctx, "570", addr)
	if err != nil || !removed {
		t.Fatalf("retry after failed unsubscribe: removed=%v err=%v", removed, err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store after retry, got %d items", s.Len())
	}
}

func TestUpdateRolledBackOnPersistFailure(t *testing.T) {
	s, flaky := newFlakyStore(t)
	ctx := context.Background()

	if _, err := s.Subscribe(ctx, "570", "Dota 2", "us", NewDirect("telegram", "1")); err != nil {
		t.Fatal(err)
	}

	flaky.failSave = true
	_, found, err := s.Update(ctx, "570", func(it *Item) bool {
		price := 39.99
		it.LastPrice = &price
		return true
	})
	if err == nil {
		t.Fatal("update must report the persist failure")
	}
	if !found {
		t.Fatal("item exists, found must be true")
	}
	if items := s.ListAll(); items[0].LastPrice != nil {
		t.Fatalf("failed update must restore the pre-fn state, got %+v", items[0])
	}

	// A non-mutating fn never touches the backend.
	if _, _, err := s.Update(ctx, "570", func(*Item) bool { return false }); err != nil {
		t.Fatalf("read-only update must not persist: %v", err)
	}
}

func TestOpenFailsOnReadError(t *testing.T) {
	backend, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	flaky := &flakyBackend{Store: backend, failLoad: true}
	if _, err := Open(context.Background(), flaky, logx.Nop()); err == nil {
		t.Fatal("a read error is not a missing document; Open must fail")
	}
}
