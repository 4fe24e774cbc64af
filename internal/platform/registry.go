// Package platform wires the concrete brokerage adapters into the
// (platform, firm) registry. Each prop firm resells accounts on one or more
// underlying platform families, so the supported matrix is declared here in
// one place.
package platform

import (
	"log/slog"
	"time"

	"github.com/skybread8/tradesyncer/internal/adapter"
	"github.com/skybread8/tradesyncer/internal/domain"
	"github.com/skybread8/tradesyncer/internal/platform/ninjatrader"
	"github.com/skybread8/tradesyncer/internal/platform/projectx"
	"github.com/skybread8/tradesyncer/internal/platform/rithmic"
	"github.com/skybread8/tradesyncer/internal/platform/tradovate"
)

// Options tunes every adapter the registry builds.
type Options struct {
	// Mock replaces every pairing with a single simulated adapter. Used in
	// tests and local development.
	Mock bool

	HTTPTimeout          time.Duration
	PollInterval         time.Duration
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	ReconnectMaxAttempts int

	// EnableDiscovery turns on full endpoint discovery for probe-based
	// platforms instead of the default candidate lists.
	EnableDiscovery bool

	Logger *slog.Logger
}

// rithmicFirms are the firms reachable through Rithmic REST gateways.
var rithmicFirms = []domain.Firm{
	domain.FirmTopstepX,
	domain.FirmTakeProfit,
	domain.FirmMyFundedFutures,
	domain.FirmAlphaFutures,
	domain.FirmTradeify,
}

// tradovateFirms and ninjaFirms also appear under Rithmic; the account's
// stored platform decides which adapter serves it.
var (
	tradovateFirms = []domain.Firm{domain.FirmTakeProfit, domain.FirmMyFundedFutures}
	ninjaFirms     = []domain.Firm{domain.FirmTakeProfit, domain.FirmMyFundedFutures}
	projectXFirms  = []domain.Firm{domain.FirmTopstepX}
)

// NewRegistry builds the adapter registry for the supported matrix.
func NewRegistry(opts Options) *adapter.Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	reg := adapter.NewRegistry()

	if opts.Mock {
		mock := adapter.NewMock(domain.FirmTopstepX, domain.PlatformOther)
		reg.RegisterShared(domain.PlatformRithmic, rithmicFirms, mock)
		reg.RegisterShared(domain.PlatformTradovate, tradovateFirms, mock)
		reg.RegisterShared(domain.PlatformNinjaTrader, ninjaFirms, mock)
		reg.RegisterShared(domain.PlatformProjectX, projectXFirms, mock)
		return reg
	}

	for _, firm := range rithmicFirms {
		firm := firm
		reg.Register(domain.PlatformRithmic, firm, func() adapter.Adapter {
			return rithmic.New(rithmic.Config{
				Firm:            firm,
				EnableDiscovery: opts.EnableDiscovery,
				HTTPTimeout:     opts.HTTPTimeout,
				PollInterval:    opts.PollInterval,
				Logger:          opts.Logger,
			})
		})
	}

	for _, firm := range tradovateFirms {
		firm := firm
		reg.Register(domain.PlatformTradovate, firm, func() adapter.Adapter {
			return tradovate.New(tradovate.Config{
				Firm:                 firm,
				HTTPTimeout:          opts.HTTPTimeout,
				PollInterval:         opts.PollInterval,
				ReconnectBase:        opts.ReconnectBase,
				ReconnectCap:         opts.ReconnectCap,
				ReconnectMaxAttempts: opts.ReconnectMaxAttempts,
				Logger:               opts.Logger,
			})
		})
	}

	for _, firm := range ninjaFirms {
		firm := firm
		reg.Register(domain.PlatformNinjaTrader, firm, func() adapter.Adapter {
			return ninjatrader.New(ninjatrader.Config{
				Firm:            firm,
				EnableDiscovery: opts.EnableDiscovery,
				HTTPTimeout:     opts.HTTPTimeout,
				PollInterval:    opts.PollInterval,
				Logger:          opts.Logger,
			})
		})
	}

	for _, firm := range projectXFirms {
		firm := firm
		reg.Register(domain.PlatformProjectX, firm, func() adapter.Adapter {
			return projectx.New(projectx.Config{
				Firm:                 firm,
				HTTPTimeout:          opts.HTTPTimeout,
				PollInterval:         opts.PollInterval,
				ReconnectBase:        opts.ReconnectBase,
				ReconnectCap:         opts.ReconnectCap,
				ReconnectMaxAttempts: opts.ReconnectMaxAttempts,
				Logger:               opts.Logger,
			})
		})
	}

	return reg
}
