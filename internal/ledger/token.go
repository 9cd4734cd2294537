package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"
)

// Ledger errors.
var (
	ErrValidation          = errors.New("missing or invalid fields")
	ErrTokenNotFound       = errors.New("token not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientSupply  = errors.New("insufficient supply")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// PriceImpact is the fractional price increase per token bought of a
// user token.
const PriceImpact = 0.005

// TokenType distinguishes fixed-supply listings from variable-price user tokens.
type TokenType string

const (
	TypeUser    TokenType = "user"
	TypeListing TokenType = "listing"
)

// Valid reports whether t is a known token type.
func (t TokenType) Valid() bool {
	return t == TypeUser || t == TypeListing
}

// Token is a fungible token definition.
//
// Listing tokens use TotalSupply, RemainingSupply and PricePerToken.
// User tokens use DynamicPrice and SupplyIssued.
type Token struct {
	ID        string    `json:"id"`
	Type      TokenType `json:"type"`
	Name      string    `json:"name"`
	Ticker    string    `json:"ticker"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`

	TotalSupply     float64 `json:"totalSupply"`
	RemainingSupply float64 `json:"remainingSupply"`
	PricePerToken   float64 `json:"pricePerToken"`

	DynamicPrice float64 `json:"dynamicPrice"`
	SupplyIssued float64 `json:"supplyIssued"`
}

// tokenJSON is the wire form: only the fields of the token's own type.
type tokenJSON struct {
	ID        string    `json:"id"`
	Type      TokenType `json:"type"`
	Name      string    `json:"name"`
	Ticker    string    `json:"ticker"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`

	TotalSupply     *float64 `json:"totalSupply,omitempty"`
	RemainingSupply *float64 `json:"remainingSupply,omitempty"`
	PricePerToken   *float64 `json:"pricePerToken,omitempty"`

	DynamicPrice *float64 `json:"dynamicPrice,omitempty"`
	SupplyIssued *float64 `json:"supplyIssued,omitempty"`
}

// MarshalJSON omits the fields that belong to the other token type.
func (t Token) MarshalJSON() ([]byte, error) {
	out := tokenJSON{
		ID:        t.ID,
		Type:      t.Type,
		Name:      t.Name,
		Ticker:    t.Ticker,
		Owner:     t.Owner,
		CreatedAt: t.CreatedAt,
	}
	switch t.Type {
	case TypeListing:
		out.TotalSupply = &t.TotalSupply
		out.RemainingSupply = &t.RemainingSupply
		out.PricePerToken = &t.PricePerToken
	case TypeUser:
		out.DynamicPrice = &t.DynamicPrice
		out.SupplyIssued = &t.SupplyIssued
	}
	return json.Marshal(out)
}

// Price returns the current unit price of the token.
func (t *Token) Price() float64 {
	if t.Type == TypeListing {
		return t.PricePerToken
	}
	return t.DynamicPrice
}

// QuoteCost returns the cost of amount tokens at the current price,
// rounded to 9 decimals.
func QuoteCost(tok *Token, amount float64) (float64, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, ErrInvalidAmount
	}
	if tok.Type == TypeListing && amount > tok.RemainingSupply {
		return 0, ErrInsufficientSupply
	}
	return Round9(amount * tok.Price()), nil
}

// ApplyPurchaseTo applies the effect of a confirmed purchase to tok in place.
//
// Listing: remaining supply drops by amount, floored at zero.
// User: issued supply grows by amount and the price moves by
// PriceImpact per token bought.
func ApplyPurchaseTo(tok *Token, amount float64) {
	switch tok.Type {
	case TypeListing:
		tok.RemainingSupply = math.Max(0, tok.RemainingSupply-amount)
	case TypeUser:
		tok.SupplyIssued += amount
		tok.DynamicPrice = Round9(tok.DynamicPrice * (1 + PriceImpact*amount))
	}
}

// Round9 rounds x to 9 decimal places.
func Round9(x float64) float64 {
	return math.Round(x*1e9) / 1e9
}

// NewID returns a time-ordered id: the unix milliseconds in base 36
// followed by 8 random hex characters.
func NewID(now time.Time) string {
	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(err)
	}
	return strconv.FormatInt(now.UnixMilli(), 36) + hex.EncodeToString(suffix[:])
}
