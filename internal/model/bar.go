package model

// PriceBar is one trading day's OHLCV record.
// Time is a day key in YYYY-MM-DD form; intraday time is not modeled.
type PriceBar struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Symbol string  `json:"symbol,omitempty"`
}

// DayLayout is the layout of PriceBar.Time.
const DayLayout = "2006-01-02"

// StockHistory is the history payload served to the chart collaborator.
type StockHistory struct {
	Symbol      string     `json:"symbol"`
	CompanyName string     `json:"company_name"`
	Data        []PriceBar `json:"data"`
}
