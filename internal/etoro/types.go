package etoro

import "time"

// Valid candle intervals as defined by the eToro API.
const (
	IntervalOneMinute      = "OneMinute"
	IntervalFiveMinutes    = "FiveMinutes"
	IntervalTenMinutes     = "TenMinutes"
	IntervalFifteenMinutes = "FifteenMinutes"
	IntervalThirtyMinutes  = "ThirtyMinutes"
	IntervalOneHour        = "OneHour"
	IntervalFourHours      = "FourHours"
	IntervalOneDay         = "OneDay"
	IntervalOneWeek        = "OneWeek"
)

// Instrument is one entry from the instrument catalog.
type Instrument struct {
	InstrumentID     int64  `json:"instrumentID"`
	Symbol           string `json:"symbolFull"`
	Name             string `json:"instrumentDisplayName"`
	InstrumentTypeID int64  `json:"instrumentTypeID"`
	ExchangeID       int64  `json:"exchangeID"`
}

// instrumentCatalogResponse is the payload of the instrument list endpoint.
type instrumentCatalogResponse struct {
	Items []Instrument `json:"instrumentDisplayDatas"`
}

// Candle is a single OHLCV bar as returned by the history endpoint.
type Candle struct {
	InstrumentID int64     `json:"instrumentID"`
	Timestamp    time.Time `json:"fromDate"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
}

// instrumentCandles groups the candles of one instrument in the response.
type instrumentCandles struct {
	InstrumentID int64    `json:"instrumentId"`
	Candles      []Candle `json:"candles"`
	RangeOpen    float64  `json:"rangeOpen"`
	RangeClose   float64  `json:"rangeClose"`
	RangeHigh    float64  `json:"rangeHigh"`
	RangeLow     float64  `json:"rangeLow"`
	Volume       float64  `json:"volume"`
}

// candleResponse is the payload of the candle history endpoint.
type candleResponse struct {
	Interval string              `json:"interval"`
	Candles  []instrumentCandles `json:"candles"`
}

// Rate is the current market rate for an instrument.
type Rate struct {
	InstrumentID  int64     `json:"instrumentID"`
	Bid           float64   `json:"bid"`
	Ask           float64   `json:"ask"`
	LastExecution float64   `json:"lastExecution"`
	Date          time.Time `json:"date"`
}

// ratesResponse is the payload of the rates endpoint.
type ratesResponse struct {
	Rates []Rate `json:"rates"`
}

// PositionPnL carries the per-position P&L block from the PnL endpoint.
type PositionPnL struct {
	PnL       float64 `json:"pnL"`
	CloseRate float64 `json:"closeRate"`
}

// Position is one open position from the PnL endpoint.
type Position struct {
	PositionID    int64       `json:"positionID"`
	InstrumentID  int64       `json:"instrumentID"`
	OpenRate      float64     `json:"openRate"`
	Units         float64     `json:"units"`
	Amount        float64     `json:"amount"`
	IsBuy         bool        `json:"isBuy"`
	UnrealizedPnL PositionPnL `json:"unrealizedPnL"`
}

// ClientPortfolio is the portfolio body of the PnL endpoint response.
type ClientPortfolio struct {
	Credit        float64    `json:"credit"`
	UnrealizedPnL float64    `json:"unrealizedPnL"`
	Positions     []Position `json:"positions"`
}

// PortfolioResponse is the full PnL endpoint response.
type PortfolioResponse struct {
	ClientPortfolio ClientPortfolio `json:"clientPortfolio"`
}
