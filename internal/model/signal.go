package model

// Direction is the side of a signal marker.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Marker reasons.
const (
	ReasonGoldenCross         = "golden-cross"
	ReasonGoldenCrossFiltered = "golden-cross-rsi-filtered"
	ReasonDeadCross           = "dead-cross"
)

// SignalMarker is a discrete buy/sell event on the date axis.
type SignalMarker struct {
	Time      string    `json:"time"`
	Direction Direction `json:"direction"`
	Reason    string    `json:"reason"`
}
