package steam

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "steamwatch/pkg/logx"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{StoreBaseURL: srv.URL, APIBaseURL: srv.URL}, logx.Nop())
}

func TestFetchPricePaid(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("appids"); got != "570" {
			t.Errorf("appids = %q, want 570", got)
		}
		if got := r.URL.Query().Get("cc"); got != "us" {
			t.Errorf("cc = %q, want us", got)
		}
		fmt.Fprint(w, `{"570":{"success":true,"data":{"name":"Dota 2","is_free":false,
			"price_overview":{"currency":"USD","initial":5999,"final":3999,"discount_percent":33}}}}`)
	}))

	p, ok := c.FetchPrice(context.Background(), 570, "us")
	if !ok {
		t.Fatal("expected a price")
	}
	if p.Current != 39.99 || p.Original != 59.99 || p.Discount != 33 || p.Currency != "USD" || p.IsFree {
		t.Fatalf("unexpected price: %+v", p)
	}
}

func TestFetchPriceFree(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"570":{"success":true,"data":{"name":"Dota 2","is_free":true}}}`)
	}))

	p, ok := c.FetchPrice(context.Background(), 570, "us")
	if !ok {
		t.Fatal("expected a price")
	}
	if !p.IsFree || p.Current != 0 || p.Original != 0 || p.Discount != 100 || p.Currency != "FREE" {
		t.Fatalf("unexpected free price: %+v", p)
	}
}

func TestFetchPriceNoOverview(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"4000":{"success":true,"data":{"name":"Unreleased","is_free":false}}}`)
	}))

	if _, ok := c.FetchPrice(context.Background(), 4000, "us"); ok {
		t.Fatal("missing price_overview must not yield a price")
	}
}

func TestFetchPriceUnsuccessful(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"99999":{"success":false}}`)
	}))

	if _, ok := c.FetchPrice(context.Background(), 99999, "us"); ok {
		t.Fatal("unsuccessful lookup must not yield a price")
	}
}

func TestFetchPriceServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))

	if _, ok := c.FetchPrice(context.Background(), 570, "us"); ok {
		t.Fatal("http error must not yield a price")
	}
}

func TestAppListPagePagination(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("last_appid") {
		case "0":
			fmt.Fprint(w, `{"response":{"apps":[
				{"appid":10,"name":"Counter-Strike"},
				{"appid":20,"name":"Team Fortress Classic"},
				{"appid":30,"name":""}],
				"have_more_results":true,"last_appid":20}}`)
		case "20":
			fmt.Fprint(w, `{"response":{"apps":[{"appid":570,"name":"Dota 2"}]}}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("last_appid"))
			http.NotFound(w, r)
		}
	}))

	ctx := context.Background()
	first, err := c.AppListPage(ctx, 2, 0)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Apps) != 2 {
		t.Fatalf("nameless apps must be skipped, got %d apps", len(first.Apps))
	}
	if !first.HaveMore || first.LastAppID != 20 {
		t.Fatalf("unexpected cursor state: %+v", first)
	}

	second, err := c.AppListPage(ctx, 2, first.LastAppID)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if second.HaveMore {
		t.Fatal("final page must report no more results")
	}
	if len(second.Apps) != 1 || second.Apps[0].Name != "Dota 2" {
		t.Fatalf("unexpected final page: %+v", second)
	}
}

func TestAppListPageMissingCursorFallsBack(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"apps":[{"appid":10,"name":"Counter-Strike"}],"have_more_results":true}}`)
	}))

	page, err := c.AppListPage(context.Background(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.LastAppID != 10 {
		t.Fatalf("cursor fallback = %d, want 10", page.LastAppID)
	}
}

func TestAppListPageBadShape(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"unexpected":true}`)
	}))

	if _, err := c.AppListPage(context.Background(), 1, 0); err == nil {
		t.Fatal("expected an error for an unexpected response shape")
	}
}
