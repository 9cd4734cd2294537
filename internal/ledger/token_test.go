package ledger

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestQuoteCost(t *testing.T) {
	listing := &Token{Type: TypeListing, TotalSupply: 100, RemainingSupply: 5, PricePerToken: 2.5}
	user := &Token{Type: TypeUser, DynamicPrice: 0.01}

	tests := []struct {
		name    string
		tok     *Token
		amount  float64
		want    float64
		wantErr error
	}{
		{"listing 2.5 x 4", listing, 4, 10, nil},
		{"listing exact remaining", listing, 5, 12.5, nil},
		{"listing over remaining", listing, 6, 0, ErrInsufficientSupply},
		{"user price", user, 3, 0.03, nil},
		{"rounded to 9 decimals", &Token{Type: TypeUser, DynamicPrice: 0.0100000001}, 3, 0.03, nil},
		{"zero amount", user, 0, 0, ErrInvalidAmount},
		{"negative amount", user, -1, 0, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuoteCost(tt.tok, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("cost = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyPurchaseTo_Listing(t *testing.T) {
	tok := &Token{Type: TypeListing, TotalSupply: 100, RemainingSupply: 100, PricePerToken: 1}
	purchases := []float64{10, 25, 5}
	var total float64
	for _, a := range purchases {
		ApplyPurchaseTo(tok, a)
		total += a
	}
	if tok.RemainingSupply != tok.TotalSupply-total {
		t.Errorf("remaining = %v, want %v", tok.RemainingSupply, tok.TotalSupply-total)
	}

	ApplyPurchaseTo(tok, 1000)
	if tok.RemainingSupply != 0 {
		t.Errorf("remaining after oversell = %v, want 0", tok.RemainingSupply)
	}
	if tok.PricePerToken != 1 {
		t.Errorf("listing price changed to %v", tok.PricePerToken)
	}
}

func TestApplyPurchaseTo_User(t *testing.T) {
	tok := &Token{Type: TypeUser, DynamicPrice: 0.01, SupplyIssued: 7}
	ApplyPurchaseTo(tok, 10)

	want := Round9(0.01 * (1 + 0.005*10))
	if tok.DynamicPrice != want {
		t.Errorf("price = %v, want %v", tok.DynamicPrice, want)
	}
	if tok.DynamicPrice != 0.0105 {
		t.Errorf("price = %v, want 0.0105", tok.DynamicPrice)
	}
	if tok.SupplyIssued != 17 {
		t.Errorf("supplyIssued = %v, want 17", tok.SupplyIssued)
	}
}

func TestRound9(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.1 + 0.2, 0.3},
		{1.0000000004, 1},
		{1.0000000006, 1.000000001},
		{10, 10},
	}
	for _, tt := range tests {
		if got := Round9(tt.in); got != tt.want {
			t.Errorf("Round9(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewID(t *testing.T) {
	now := time.UnixMilli(1760000000000)
	a, b := NewID(now), NewID(now)
	if a == b {
		t.Errorf("ids collide: %s", a)
	}
	prefix := strconv.FormatInt(now.UnixMilli(), 36)
	if !strings.HasPrefix(a, prefix) || len(a) != len(prefix)+8 {
		t.Errorf("id %q, want %s + 8 hex chars", a, prefix)
	}
}

func TestTokenJSON_TypeFields(t *testing.T) {
	listing := Token{ID: "l", Type: TypeListing, TotalSupply: 10, RemainingSupply: 0, PricePerToken: 2}
	data, _ := json.Marshal(listing)
	var m map[string]any
	json.Unmarshal(data, &m)
	if _, ok := m["remainingSupply"]; !ok {
		t.Error("listing JSON missing zero remainingSupply")
	}
	if _, ok := m["dynamicPrice"]; ok {
		t.Error("listing JSON has dynamicPrice")
	}

	user := Token{ID: "u", Type: TypeUser, DynamicPrice: 0.01}
	data, _ = json.Marshal(&user)
	m = nil
	json.Unmarshal(data, &m)
	if _, ok := m["supplyIssued"]; !ok {
		t.Error("user JSON missing supplyIssued")
	}
	if _, ok := m["totalSupply"]; ok {
		t.Error("user JSON has totalSupply")
	}

	var back Token
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.DynamicPrice != 0.01 || back.Type != TypeUser {
		t.Errorf("round trip = %+v", back)
	}
}
