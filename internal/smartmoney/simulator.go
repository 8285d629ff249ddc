// Package smartmoney maintains a fixed roster of synthetic wallets and
// deterministically decides, per (wallet, token, UTC day), whether each
// wallet "bought" a candidate token. The emitted movements seed the wallet
// confluence check without any external wallet-tracking feed.
package smartmoney

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/storage"
)

// Wallet styles
const (
	StyleAlpha       = "alpha"
	StyleMomentum    = "momentum"
	StyleEarlySniper = "early_sniper"
	StyleWhale       = "whale"
)

// Base buy amounts in USD before score and draw scaling
const (
	baseAmountTrending = 2000.0
	baseAmountEarly    = 500.0
)

// minWalletScore is the floor applied so confluence always counts the
// roster's wallets (it ignores anything under 70).
const minWalletScore = 70

// Wallet is one synthetic smart-money wallet
type Wallet struct {
	Address           string
	Label             string
	Style             string
	WinRate           float64
	PreferredNetworks []string
}

// Score maps the wallet's win rate onto the 0-100 wallet score scale,
// floored at the confluence counting threshold.
func (w Wallet) Score() float64 {
	return math.Max(minWalletScore, math.Round(w.WinRate*120))
}

func (w Wallet) prefers(network string) bool {
	for _, n := range w.PreferredNetworks {
		if n == network {
			return true
		}
	}
	return false
}

// DefaultWallets is the standard roster: two momentum traders, two early
// snipers, one generalist and one whale, spread across the usual networks.
func DefaultWallets() []Wallet {
	return []Wallet{
		{Address: "sm-alpha-01", Label: "AlphaSeeker", Style: StyleAlpha, WinRate: 0.72,
			PreferredNetworks: []string{"ethereum", "base", "arbitrum"}},
		{Address: "sm-momentum-01", Label: "TrendRider", Style: StyleMomentum, WinRate: 0.64,
			PreferredNetworks: []string{"ethereum", "base", "bsc"}},
		{Address: "sm-momentum-02", Label: "BreakoutHunter", Style: StyleMomentum, WinRate: 0.58,
			PreferredNetworks: []string{"solana", "base"}},
		{Address: "sm-sniper-01", Label: "LaunchSniper", Style: StyleEarlySniper, WinRate: 0.55,
			PreferredNetworks: []string{"solana", "base", "bsc"}},
		{Address: "sm-sniper-02", Label: "GenesisApe", Style: StyleEarlySniper, WinRate: 0.61,
			PreferredNetworks: []string{"ethereum", "solana"}},
		{Address: "sm-whale-01", Label: "DeepPocket", Style: StyleWhale, WinRate: 0.69,
			PreferredNetworks: []string{"ethereum", "arbitrum", "base"}},
	}
}

// Candidate is one token a cycle is considering
type Candidate struct {
	TokenAddress string
	Network      string
	Symbol       string
	Score        float64
	IsEarly      bool
}

// Simulator evaluates the roster against cycle candidates and persists the
// resulting wallet and movement rows.
type Simulator struct {
	wallets []Wallet
	store   storage.Store
	now     func() time.Time
	log     *logging.Logger
}

// NewSimulator creates a simulator over the given roster. A nil or empty
// roster falls back to DefaultWallets.
func NewSimulator(store storage.Store, wallets []Wallet, now func() time.Time) *Simulator {
	if len(wallets) == 0 {
		wallets = DefaultWallets()
	}
	if now == nil {
		now = time.Now
	}
	return &Simulator{
		wallets: wallets,
		store:   store,
		now:     now,
		log:     logging.WithComponent("smartmoney"),
	}
}

// Inject runs the deterministic draw for every roster wallet whose
// preferred networks include the candidate's, and upserts wallet and
// movement rows for the buys. Rows carry deterministic IDs, so re-running
// inside the same UTC day replaces rather than duplicates. The returned
// error aggregates persistence failures; the movements are valid either way.
func (s *Simulator) Inject(ctx context.Context, c Candidate) ([]*storage.WalletMovement, error) {
	now := s.now().UTC()
	day := now.Format("2006-01-02")

	var movements []*storage.WalletMovement
	var errs []error
	for _, w := range s.wallets {
		if !w.prefers(c.Network) {
			continue
		}

		draw := deterministicDraw(w.Address, c.TokenAddress, day)
		match := styleMatch(w.Style, c.IsEarly, c.Score)
		threshold := 0.7 - match*0.4
		if draw <= threshold {
			continue
		}

		m := &storage.WalletMovement{
			ID:            movementID(w.Address, c.Network, c.TokenAddress, day),
			WalletAddress: w.Address,
			TokenAddress:  c.TokenAddress,
			Network:       c.Network,
			Direction:     storage.SideBuy,
			AmountUSD:     buyAmount(c.IsEarly, c.Score, draw),
			ObservedAt:    now,
			Metadata: map[string]interface{}{
				"style":        w.Style,
				"style_match":  match,
				"draw":         draw,
				"signal_score": c.Score,
				"is_early":     c.IsEarly,
			},
		}
		movements = append(movements, m)

		if err := s.store.UpsertTrackedWallet(ctx, &storage.TrackedWallet{
			Address:   w.Address,
			Label:     w.Label,
			Style:     w.Style,
			WinRate:   w.WinRate,
			Score:     w.Score(),
			UpdatedAt: now,
		}); err != nil {
			errs = append(errs, fmt.Errorf("smartmoney: upsert wallet %s: %w", w.Address, err))
			continue
		}
		if err := s.store.InsertWalletMovement(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("smartmoney: insert movement %s: %w", m.ID, err))
		}
	}

	if len(movements) > 0 {
		s.log.Debug("smart money injected",
			"token", c.TokenAddress, "network", c.Network, "buys", len(movements), "early", c.IsEarly)
	}
	return movements, errors.Join(errs...)
}

// deterministicDraw hashes (wallet, token, day) and maps the first 32 bits
// of the digest onto [0, 1).
func deterministicDraw(walletAddress, tokenAddress, day string) float64 {
	sum := sha256.Sum256([]byte(walletAddress + tokenAddress + day))
	return float64(binary.BigEndian.Uint32(sum[:4])) / float64(1<<32)
}

// movementID derives a stable UUID so same-day re-injection upserts. The
// identity adds the network the draw leaves out: one address can exist on
// several chains.
func movementID(walletAddress, network, tokenAddress, day string) string {
	id := "movement:" + walletAddress + ":" + network + ":" + tokenAddress + ":" + day
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// styleMatch is how well the candidate fits the wallet's style, on [0, 1].
// Affinity comes from the style/pipeline pairing, scaled by signal quality.
func styleMatch(style string, isEarly bool, score float64) float64 {
	var affinity float64
	switch style {
	case StyleEarlySniper:
		affinity = 0.1
		if isEarly {
			affinity = 1.0
		}
	case StyleMomentum:
		affinity = 1.0
		if isEarly {
			affinity = 0.1
		}
	case StyleAlpha:
		affinity = 0.6
	case StyleWhale:
		// whales want depth, which new pools rarely have
		affinity = 0.4
		if isEarly {
			affinity = 0.2
		}
	}
	match := affinity * score / 100
	if match < 0 {
		return 0
	}
	if match > 1 {
		return 1
	}
	return match
}

// buyAmount scales the per-pipeline base by signal quality and the draw
func buyAmount(isEarly bool, score, draw float64) float64 {
	base := baseAmountTrending
	if isEarly {
		base = baseAmountEarly
	}
	return base * (0.5 + score/100*1.5) * (0.8 + draw*0.4)
}
