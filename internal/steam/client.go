package steam

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	logx "steamwatch/pkg/logx"
)

const (
	defaultStoreBaseURL = "https://store.steampowered.com"
	defaultAPIBaseURL   = "https://api.steampowered.com"

	// Bounded so one slow call cannot stall a whole poll round.
	httpTimeout = 15 * time.Second
)

type Config struct {
	APIKey string
	Locale string

	// StoreBaseURL / APIBaseURL override the endpoints (tests).
	StoreBaseURL string
	APIBaseURL   string
}

// Client talks to the Steam store and web API.
type Client struct {
	cfg  Config
	log  logx.Logger
	http *http.Client
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.StoreBaseURL == "" {
		cfg.StoreBaseURL = defaultStoreBaseURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = httpTimeout

	return &Client{cfg: cfg, log: log, http: rc.StandardClient()}
}

// FetchPrice returns the current price state of one app in one region.
//
// ok is false when the price is not available this round: transport failure,
// unsuccessful response, or no price block (unreleased / not sold in the
// region). Callers should skip the app and try again next round; this method
// never returns an error.
func (c *Client) FetchPrice(ctx context.Context, appID int64, region string) (Price, bool) {
	id := strconv.FormatInt(appID, 10)
	u := fmt.Sprintf("%s/api/appdetails?appids=%s&cc=%s&l=%s",
		c.cfg.StoreBaseURL, id, url.QueryEscape(region), url.QueryEscape(c.cfg.Locale))

	body, err := c.get(ctx, u)
	if err != nil {
		c.log.Warn("price fetch failed", logx.Int64("appid", appID), logx.Err(err))
		return Price{}, false
	}

	// The response is keyed by the appid itself: {"570": {"success": ..., "data": ...}}.
	root := gjson.GetBytes(body, id)
	if !root.Exists() || !root.Get("success").Bool() {
		c.log.Warn("price lookup unsuccessful", logx.Int64("appid", appID), logx.String("region", region))
		return Price{}, false
	}

	data := root.Get("data")
	if data.Get("is_free").Bool() {
		return Price{IsFree: true, Discount: 100, Currency: "FREE"}, true
	}

	overview := data.Get("price_overview")
	if !overview.Exists() {
		// Common for unreleased apps or apps not sold in the region.
		c.log.Debug("no price overview",
			logx.Int64("appid", appID),
			logx.String("region", region),
			logx.String("name", data.Get("name").String()))
		return Price{}, false
	}

	// The store reports minor currency units.
	return Price{
		Current:  overview.Get("final").Float() / 100,
		Original: overview.Get("initial").Float() / 100,
		Discount: int(overview.Get("discount_percent").Int()),
		Currency: overview.Get("currency").String(),
	}, true
}

// AppListPage fetches one page of the full catalog listing. The cursor is
// the last appid of the previous page (0 for the first page).
func (c *Client) AppListPage(ctx context.Context, pageSize int, lastAppID int64) (AppPage, error) {
	q := url.Values{}
	q.Set("key", c.cfg.APIKey)
	q.Set("max_results", strconv.Itoa(pageSize))
	q.Set("include_games", "true")
	q.Set("include_dlc", "true")
	q.Set("include_software", "true")
	q.Set("include_videos", "false")
	q.Set("include_hardware", "false")
	q.Set("last_appid", strconv.FormatInt(lastAppID, 10))

	u := c.cfg.APIBaseURL + "/IStoreService/GetAppList/v1/?" + q.Encode()
	body, err := c.get(ctx, u)
	if err != nil {
		return AppPage{}, err
	}

	resp := gjson.GetBytes(body, "response")
	if !resp.Exists() {
		return AppPage{}, fmt.Errorf("app list: unexpected response shape")
	}

	var page AppPage
	for _, a := range resp.Get("apps").Array() {
		name := a.Get("name").String()
		if name == "" {
			continue
		}
		page.Apps = append(page.Apps, App{AppID: a.Get("appid").Int(), Name: name})
	}
	page.HaveMore = resp.Get("have_more_results").Bool()
	if page.HaveMore {
		page.LastAppID = resp.Get("last_appid").Int()
		if page.LastAppID == 0 && len(page.Apps) > 0 {
			// The API occasionally omits the cursor; fall back to the last
			// item of this page.
			page.LastAppID = page.Apps[len(page.Apps)-1].AppID
		}
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}
