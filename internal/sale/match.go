package sale

import (
	"strings"
	"time"
	"unicode"

	"github.com/Klingon-tech/klingnet-market/internal/chainapi"
)

const (
	// Epsilon absorbs floating point error when comparing paid value to cost.
	Epsilon = 1e-7

	// Raw values above NanoThreshold are in nano units.
	NanoThreshold = 1e12
	NanoPerUnit   = 1e9

	// ScanLimit is the number of recent transactions scanned per attempt.
	ScanLimit = 50
	// ScanWindow is the maximum age of a transaction accepted by a scan.
	ScanWindow = 24 * time.Hour
)

// NormalizeValue converts a raw explorer value to standard units.
func NormalizeValue(raw float64) float64 {
	if raw > NanoThreshold {
		return raw / NanoPerUnit
	}
	return raw
}

// NormalizeAddress strips every non-alphanumeric character and lowercases
// the rest, so differently formatted renderings of one address compare equal.
func NormalizeAddress(addr string) string {
	var sb strings.Builder
	sb.Grow(len(addr))
	for _, r := range addr {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return sb.String()
}

// covers reports whether a normalized value pays for cost.
func covers(value, cost float64) bool {
	return value >= cost-Epsilon
}

// senderAccepted reports whether sender may have paid for buyer's sale.
// An unknown sender is accepted.
func senderAccepted(sender, buyer string) bool {
	return sender == "" || NormalizeAddress(sender) == NormalizeAddress(buyer)
}

// lookupOutcome is the result of checking a transaction given by hash.
type lookupOutcome int

const (
	// lookupFailed means the transaction could not be fetched. Only this
	// outcome falls through to the scan.
	lookupFailed lookupOutcome = iota
	lookupMatched
	lookupMismatched
)

func (o lookupOutcome) String() string {
	switch o {
	case lookupMatched:
		return "matched"
	case lookupMismatched:
		return "mismatched"
	default:
		return "lookup_failed"
	}
}

// hashLookup carries the transaction and its normalized value for the
// matched and mismatched outcomes.
type hashLookup struct {
	outcome lookupOutcome
	tx      *chainapi.Transaction
	value   float64
	err     error
}

// checkTransaction evaluates a transaction fetched by hash against s.
func checkTransaction(tx *chainapi.Transaction, s *Sale) hashLookup {
	value := NormalizeValue(tx.Value)
	if covers(value, s.Cost) && senderAccepted(tx.Sender, s.Buyer) {
		return hashLookup{outcome: lookupMatched, tx: tx, value: value}
	}
	return hashLookup{outcome: lookupMismatched, tx: tx, value: value}
}

// findPayment returns the first transaction, in the order given, that is
// younger than ScanWindow, covers the sale cost and was sent by the buyer
// or by a hidden sender.
func findPayment(txs []chainapi.Transaction, s *Sale, now time.Time) (*chainapi.Transaction, bool) {
	cutoff := now.Add(-ScanWindow)
	for i := range txs {
		tx := &txs[i]
		if tx.Timestamp.Before(cutoff) {
			continue
		}
		if !covers(NormalizeValue(tx.Value), s.Cost) {
			continue
		}
		if !senderAccepted(tx.Sender, s.Buyer) {
			continue
		}
		return tx, true
	}
	return nil, false
}
