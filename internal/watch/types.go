package watch

// Item is one monitored app: its display name, region, the last observed
// price state and the subscribers to notify on change.
//
// The JSON shape is the watchlist document format and must stay stable:
// price fields are top-level siblings (not a nested block), last_price is
// null until the first successful poll, and subscribers keep their
// subscription order.
type Item struct {
	Name          string   `json:"name"`
	AppID         string   `json:"appid"`
	Region        string   `json:"region"`
	LastPrice     *float64 `json:"last_price"`
	OriginalPrice *float64 `json:"original_price"`
	Discount      *int     `json:"discount"`
	Subscribers   []string `json:"subscribers"`
}

// Baselined reports whether the item has recorded its first price.
func (it *Item) Baselined() bool { return it != nil && it.LastPrice != nil }

func (it *Item) clone() Item {
	cp := *it
	if it.LastPrice != nil {
		v := *it.LastPrice
		cp.LastPrice = &v
	}
	if it.OriginalPrice != nil {
		v := *it.OriginalPrice
		cp.OriginalPrice = &v
	}
	if it.Discount != nil {
		v := *it.Discount
		cp.Discount = &v
	}
	cp.Subscribers = append([]string(nil), it.Subscribers...)
	return cp
}

func (it *Item) hasSubscriber(raw string) bool {
	for _, s := range it.Subscribers {
		if s == raw {
			return true
		}
	}
	return false
}
