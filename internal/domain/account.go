package domain

import "time"

// Firm identifies the prop firm that issued a trading account.
type Firm string

const (
	FirmTopstepX        Firm = "TOPSTEPX"
	FirmAlphaFutures    Firm = "ALPHA_FUTURES"
	FirmMyFundedFutures Firm = "MYFUNDED_FUTURES"
	FirmTakeProfit      Firm = "TAKEPROFIT_TRADER"
	FirmTradeify        Firm = "TRADEFY"
)

// Platform identifies the underlying trading platform family shared by
// multiple firms.
type Platform string

const (
	PlatformRithmic     Platform = "RITHMIC"
	PlatformTradovate   Platform = "TRADOVATE"
	PlatformNinjaTrader Platform = "NINJATRADER"
	PlatformProjectX    Platform = "PROJECTX"
	PlatformOther       Platform = "OTHER"
)

// Credentials are the secrets used to open a brokerage session. Either the
// email/password pair or the API key pair may be present; adapters probe both.
// Credential material must never be logged.
type Credentials struct {
	Email     string
	Password  string
	APIKey    string
	APISecret string
}

// TradingAccount is one brokerage account belonging to a user.
type TradingAccount struct {
	ID             string
	UserID         string
	Firm           Firm
	Platform       Platform
	AccountNumber  string // opaque, unique per (user, firm) by convention
	Name           string
	AccountSize    float64
	CurrentBalance float64
	Credentials    Credentials

	// Connection state.
	IsConnected  bool
	LastSyncAt   *time.Time
	ErrorMessage string

	// Optional account-level risk bounds (advisory for the base gate).
	MaxDrawdown    *float64
	DailyLossLimit *float64

	// Free-form vendor-specific settings (environment, explicit base URL...).
	AdditionalConfig map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}
