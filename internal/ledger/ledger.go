// Package ledger manages token definitions and per-address balances.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
)

// Collection names.
const (
	TokensCollection   = "tokens"
	BalancesCollection = "balances"
)

// DefaultDynamicPrice is the starting price of a user token created
// without one.
const DefaultDynamicPrice = 0.01

// Options configures a Ledger.
type Options struct {
	// PlatformWallet owns tokens created without an explicit owner.
	PlatformWallet string
	// DefaultPrice is the starting dynamic price of user tokens.
	DefaultPrice float64
}

// Ledger owns the tokens and balances collections.
type Ledger struct {
	repo  storage.Repository
	opts  Options
	locks *KeyLock
	now   func() time.Time
}

// New creates a ledger over repo.
func New(repo storage.Repository, opts Options) *Ledger {
	if opts.DefaultPrice <= 0 {
		opts.DefaultPrice = DefaultDynamicPrice
	}
	return &Ledger{
		repo:  repo,
		opts:  opts,
		locks: NewKeyLock(),
		now:   time.Now,
	}
}

// PlatformWallet returns the configured platform wallet address.
func (l *Ledger) PlatformWallet() string {
	return l.opts.PlatformWallet
}

// CreateParams describes a token to create. Zero numeric fields are
// treated as absent.
type CreateParams struct {
	Type          TokenType
	Name          string
	Ticker        string
	Owner         string
	TotalSupply   float64
	PricePerToken float64
	DynamicPrice  float64
}

// Validate checks the parameters for a new token.
func (p *CreateParams) Validate() error {
	var missing []string
	if p.Type == "" {
		missing = append(missing, "type")
	}
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.Ticker) == "" {
		missing = append(missing, "ticker")
	}
	if p.Type == TypeListing {
		if p.TotalSupply == 0 {
			missing = append(missing, "totalSupply")
		}
		if p.PricePerToken == 0 {
			missing = append(missing, "pricePerToken")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrValidation, strings.Join(missing, ", "))
	}

	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown token type %q", ErrValidation, p.Type)
	}
	if p.TotalSupply < 0 || p.PricePerToken < 0 || p.DynamicPrice < 0 {
		return fmt.Errorf("%w: supply and prices must be positive", ErrValidation)
	}
	return nil
}

// CreateToken validates p and stores a new token.
func (l *Ledger) CreateToken(ctx context.Context, p CreateParams) (*Token, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := l.now().UTC()
	tok := &Token{
		ID:        NewID(now),
		Type:      p.Type,
		Name:      strings.TrimSpace(p.Name),
		Ticker:    strings.TrimSpace(p.Ticker),
		Owner:     p.Owner,
		CreatedAt: now,
	}
	if tok.Owner == "" {
		tok.Owner = l.opts.PlatformWallet
	}

	switch p.Type {
	case TypeListing:
		tok.TotalSupply = p.TotalSupply
		tok.RemainingSupply = p.TotalSupply
		tok.PricePerToken = p.PricePerToken
	case TypeUser:
		tok.DynamicPrice = p.DynamicPrice
		if tok.DynamicPrice == 0 {
			tok.DynamicPrice = l.opts.DefaultPrice
		}
	}

	if err := l.repo.Set(ctx, TokensCollection, tok.ID, tok); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	klog.Ledger.Info().
		Str("token", tok.ID).
		Str("type", string(tok.Type)).
		Str("ticker", tok.Ticker).
		Str("owner", tok.Owner).
		Msg("Token created")
	return tok, nil
}

// GetToken loads a token by id.
func (l *Ledger) GetToken(ctx context.Context, id string) (*Token, error) {
	if id == "" {
		return nil, ErrTokenNotFound
	}
	var tok Token
	err := storage.Load(ctx, l.repo, TokensCollection, id, &tok)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load token %s: %w", id, err)
	}
	return &tok, nil
}

// ListTokens returns every token, newest first.
func (l *Ledger) ListTokens(ctx context.Context) ([]*Token, error) {
	toks, err := storage.LoadAll[Token](ctx, l.repo, TokensCollection, storage.Query{
		OrderBy: "createdAt",
		Desc:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	// Backends order createdAt differently; settle it here.
	sort.SliceStable(toks, func(i, j int) bool {
		return toks[i].CreatedAt.After(toks[j].CreatedAt)
	})
	return toks, nil
}

// QuoteCost returns the cost of buying amount of tok.
func (l *Ledger) QuoteCost(tok *Token, amount float64) (float64, error) {
	return QuoteCost(tok, amount)
}

// ApplyPurchase records a confirmed purchase of amount against the token
// and returns the updated token.
func (l *Ledger) ApplyPurchase(ctx context.Context, tokenID string, amount float64) (*Token, error) {
	unlock := l.locks.Lock("token:" + tokenID)
	defer unlock()

	tok, err := l.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	ApplyPurchaseTo(tok, amount)

	var fields map[string]any
	switch tok.Type {
	case TypeListing:
		fields = map[string]any{"remainingSupply": tok.RemainingSupply}
	case TypeUser:
		fields = map[string]any{
			"supplyIssued": tok.SupplyIssued,
			"dynamicPrice": tok.DynamicPrice,
		}
	default:
		return tok, nil
	}
	if err := l.repo.Update(ctx, TokensCollection, tok.ID, fields); err != nil {
		return nil, fmt.Errorf("update token %s: %w", tok.ID, err)
	}

	klog.Ledger.Debug().
		Str("token", tok.ID).
		Float64("amount", amount).
		Float64("price", tok.Price()).
		Float64("remaining", tok.RemainingSupply).
		Msg("Purchase applied")
	return tok, nil
}
