package watch

import (
	"fmt"

	"steamwatch/internal/steam"
)

const storeAppURL = "https://store.steampowered.com/app/"

// renderSegments builds the ordered text lines of a change notification:
// headline, old/new/list price with discount, purchase link.
func renderSegments(it Item, kind ChangeKind, old float64, p steam.Price) []string {
	var headline string
	switch kind {
	case ChangeFree:
		headline = fmt.Sprintf("🎉 %s is now free!", it.Name)
	case ChangeIncrease:
		headline = fmt.Sprintf("⬆️ %s price went up by %.2f", it.Name, p.Current-old)
	case ChangeDecrease:
		headline = fmt.Sprintf("⬇️ %s price dropped by %.2f", it.Name, old-p.Current)
	default:
		return nil
	}
	return []string{
		headline,
		fmt.Sprintf("Was %.2f, now %.2f %s (list price %.2f, %d%% off)",
			old, p.Current, p.Currency, p.Original, p.Discount),
		storeAppURL + it.AppID,
	}
}

// FormatItem renders one watchlist entry for the /list command.
func FormatItem(n int, it Item) string {
	price := "not recorded yet"
	if it.LastPrice != nil {
		price = fmt.Sprintf("%.2f", *it.LastPrice)
	}
	line := fmt.Sprintf("%d. %s (appid %s)\n   price: %s", n, it.Name, it.AppID, price)
	if it.OriginalPrice != nil && it.Discount != nil {
		line += fmt.Sprintf(" (list %.2f, %d%% off)", *it.OriginalPrice, *it.Discount)
	}
	line += "\n   " + storeAppURL + it.AppID
	return line
}
