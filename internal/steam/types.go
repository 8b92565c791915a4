package steam

// Price is the most recently observed price state for one app in one region.
//
// Prices are in major currency units (the store API reports minor units).
type Price struct {
	Current  float64
	Original float64
	Discount int
	IsFree   bool
	Currency string
}

// App is one entry of the full store catalog.
type App struct {
	AppID int64  `json:"appid"`
	Name  string `json:"name"`
}

// AppPage is one page of the catalog listing.
type AppPage struct {
	Apps      []App
	HaveMore  bool
	LastAppID int64
}
