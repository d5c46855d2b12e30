package exchange

import "time"

// SubAccount identifies one of an agent's exchange sub-accounts
type SubAccount string

const (
	SubAccountSpot SubAccount = "spot"
	SubAccountPerp SubAccount = "perp"
)

// Sibling returns the other sub-account
func (s SubAccount) Sibling() SubAccount {
	if s == SubAccountSpot {
		return SubAccountPerp
	}
	return SubAccountSpot
}

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// TimeInForce controls how long an order rests on the book
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc" // immediate-or-cancel, marketable limit
)

// PositionSide represents long or short exposure
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Position is an open position on a sub-account.
// Size is always the absolute base-asset quantity; direction lives in Side.
type Position struct {
	Symbol        string       `json:"symbol"`
	Side          PositionSide `json:"side"`
	Size          float64      `json:"size"`
	EntryNotional float64      `json:"entry_notional"` // quote value at entry
	Leverage      float64      `json:"leverage,omitempty"`
}

// EntryPrice returns the average entry price, or 0 for an empty position
func (p Position) EntryPrice() float64 {
	if p.Size <= 0 {
		return 0
	}
	return p.EntryNotional / p.Size
}

// ClosingSide returns the order side that reduces this position
func (p Position) ClosingSide() OrderSide {
	if p.Side == PositionSideShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

// AccountState is the balance and position snapshot of one sub-account.
// It is fetched fresh at the start of each agent's processing and re-fetched
// after any balance-moving action.
type AccountState struct {
	SubAccount   SubAccount `json:"sub_account"`
	QuoteAsset   string     `json:"quote_asset"`
	TotalBalance float64    `json:"total_balance"`
	HeldBalance  float64    `json:"held_balance"`
	Positions    []Position `json:"positions"`
	FetchedAt    time.Time  `json:"fetched_at"`
}

// AvailableBalance returns total minus held, clamped at zero
func (a *AccountState) AvailableBalance() float64 {
	avail := a.TotalBalance - a.HeldBalance
	if avail < 0 {
		return 0
	}
	return avail
}

// OrderRequest describes an order submission to the gateway
type OrderRequest struct {
	Symbol        string      `json:"symbol"`
	SubAccount    SubAccount  `json:"sub_account"`
	Side          OrderSide   `json:"side"`
	Price         float64     `json:"price"`
	Size          float64     `json:"size"`
	ReduceOnly    bool        `json:"reduce_only"`
	TimeInForce   TimeInForce `json:"time_in_force"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
}

// Notional returns price x size, the monetary value of the order
func (r OrderRequest) Notional() float64 {
	return r.Price * r.Size
}

// OrderAck is the acknowledgment returned for a submitted order.
// The engine is fire-and-confirm: a successful ack is all it tracks.
type OrderAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// TransferDirection describes which way funds move between sub-accounts
type TransferDirection string

const (
	TransferToSpot TransferDirection = "perp_to_spot"
	TransferToPerp TransferDirection = "spot_to_perp"
)

// TransferRequest describes an inter-account transfer
type TransferRequest struct {
	Asset     string            `json:"asset"`
	Amount    float64           `json:"amount"`
	Direction TransferDirection `json:"direction"`
}

// TransferAck is the acknowledgment for a submitted transfer
type TransferAck struct {
	TxID string `json:"tx_id"`
}

// PairMeta holds per-pair order constraints. TickSize is the minimum price
// increment, LotSize the minimum size increment.
type PairMeta struct {
	Symbol    string    `json:"symbol"`
	TickSize  float64   `json:"tick_size"`
	LotSize   float64   `json:"lot_size"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Candle is one OHLC bar
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
}

// FundingRate is one historical funding payment rate
type FundingRate struct {
	Symbol string    `json:"symbol"`
	Rate   float64   `json:"rate"`
	Time   time.Time `json:"time"`
}

// Market binds a gateway to one trading pair
type Market struct {
	Symbol     string // e.g. "BTCUSDT"
	BaseAsset  string // e.g. "BTC"
	QuoteAsset string // e.g. "USDT"
}

// Credentials authorize orders and transfers for one agent's wallet.
// Resolved by the signer package; never logged.
type Credentials struct {
	APIKey    string
	APISecret string
}

// IsZero reports whether no credentials are present
func (c Credentials) IsZero() bool {
	return c.APIKey == "" && c.APISecret == ""
}
