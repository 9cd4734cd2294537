package sale

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Klingon-tech/klingnet-market/internal/chainapi"
	"github.com/Klingon-tech/klingnet-market/internal/history"
	"github.com/Klingon-tech/klingnet-market/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/metrics"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/rs/zerolog"
)

// Engine creates and confirms sales.
type Engine struct {
	repo    storage.Repository
	ledger  *ledger.Ledger
	history *history.Log
	chain   ChainQuerier

	// chainTimeout bounds each explorer call.
	chainTimeout time.Duration
	locks        *ledger.KeyLock
	now          func() time.Time
}

// New creates a sale engine.
func New(repo storage.Repository, l *ledger.Ledger, h *history.Log, chain ChainQuerier) *Engine {
	return &Engine{
		repo:         repo,
		ledger:       l,
		history:      h,
		chain:        chain,
		chainTimeout: chainapi.DefaultTimeout,
		locks:        ledger.NewKeyLock(),
		now:          time.Now,
	}
}

// SetChainTimeout overrides the per-call explorer timeout.
func (e *Engine) SetChainTimeout(d time.Duration) {
	if d > 0 {
		e.chainTimeout = d
	}
}

// CreateSale quotes a purchase of amount tokens for buyer and stores it
// as a pending sale. Token supply and price are not touched until the
// sale is confirmed.
func (e *Engine) CreateSale(ctx context.Context, tokenID, buyer string, amount float64) (*Quote, error) {
	buyer = strings.TrimSpace(buyer)
	if buyer == "" {
		return nil, fmt.Errorf("%w: buyer required", ledger.ErrValidation)
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ledger.ErrInvalidAmount
	}

	tok, err := e.ledger.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	cost, err := e.ledger.QuoteCost(tok, amount)
	if err != nil {
		return nil, err
	}

	seller := tok.Owner
	if seller == "" {
		seller = e.ledger.PlatformWallet()
	}

	now := e.now().UTC()
	s := &Sale{
		ID:           ledger.NewID(now),
		TokenID:      tok.ID,
		TokenTicker:  tok.Ticker,
		Buyer:        buyer,
		Seller:       seller,
		AmountTokens: amount,
		Cost:         cost,
		Status:       StatusPending,
		CreatedAt:    now,
	}
	if err := e.repo.Set(ctx, Collection, s.ID, s); err != nil {
		return nil, fmt.Errorf("store sale: %w", err)
	}

	logger := klog.WithSale(s.ID)
	if _, err := e.history.Record(ctx, history.Entry{
		Type:        history.SaleCreated,
		When:        now,
		SaleID:      s.ID,
		TokenID:     s.TokenID,
		TokenTicker: s.TokenTicker,
		Buyer:       s.Buyer,
		Seller:      s.Seller,
		Amount:      s.AmountTokens,
		Cost:        s.Cost,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to record sale_created")
	}

	logger.Info().
		Str("token", s.TokenID).
		Str("buyer", s.Buyer).
		Float64("amount", s.AmountTokens).
		Float64("cost", s.Cost).
		Msg("Sale created")

	return &Quote{SaleID: s.ID, Cost: s.Cost, Receiver: s.Seller}, nil
}

// GetSale loads a sale by id.
func (e *Engine) GetSale(ctx context.Context, id string) (*Sale, error) {
	if id == "" {
		return nil, ErrSaleNotFound
	}
	var s Sale
	err := storage.Load(ctx, e.repo, Collection, id, &s)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load sale %s: %w", id, err)
	}
	return &s, nil
}

// ConfirmSale looks for the payment of a sale on chain and, when found,
// confirms the sale and applies its effects.
//
// With txHash the given transaction is checked first. A transaction that
// exists but does not pay for the sale is reported as tx_mismatch and the
// sale is left as it is. When the transaction cannot be fetched the recent
// transactions of the seller are scanned instead.
//
// Chain-side failures never produce an error; they are reported in the
// Result. Errors are returned for unknown sales and store failures.
func (e *Engine) ConfirmSale(ctx context.Context, saleID, txHash string) (*Result, error) {
	unlock := e.locks.Lock(saleID)
	defer unlock()

	s, err := e.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	logger := klog.WithSale(s.ID)
	defer klog.Timed(logger, "confirm_sale")()

	if s.Status == StatusConfirmed {
		metrics.RecordConfirmation("already_confirmed")
		return &Result{OK: true, Message: MessageAlreadyConfirmed, TxHash: s.TxHash}, nil
	}

	if txHash = strings.TrimSpace(txHash); txHash != "" {
		lk := e.lookupHash(ctx, s, txHash)
		logger.Debug().Str("tx", txHash).Stringer("outcome", lk.outcome).Msg("Hash lookup")

		switch lk.outcome {
		case lookupMatched:
			return e.finalize(ctx, s, lk.tx, logger)
		case lookupMismatched:
			metrics.RecordConfirmation(string(ReasonTxMismatch))
			amount, expected := lk.value, s.Cost
			return &Result{
				Reason:   ReasonTxMismatch,
				TxHash:   txHash,
				Amount:   &amount,
				Sender:   lk.tx.Sender,
				Expected: &expected,
			}, nil
		default:
			logger.Debug().Err(lk.err).Str("tx", txHash).Msg("Hash lookup failed, scanning recent transactions")
		}
	}

	return e.scan(ctx, s, logger)
}

func (e *Engine) lookupHash(ctx context.Context, s *Sale, hash string) hashLookup {
	cctx, cancel := context.WithTimeout(ctx, e.chainTimeout)
	defer cancel()

	tx, err := e.chain.GetTransaction(cctx, hash)
	if err != nil {
		return hashLookup{outcome: lookupFailed, err: err}
	}
	if tx == nil {
		return hashLookup{outcome: lookupFailed, err: chainapi.ErrTxNotFound}
	}
	if tx.Hash == "" {
		tx.Hash = hash
	}
	return checkTransaction(tx, s)
}

func (e *Engine) scan(ctx context.Context, s *Sale, logger zerolog.Logger) (*Result, error) {
	cctx, cancel := context.WithTimeout(ctx, e.chainTimeout)
	txs, err := e.chain.GetTransactionsForAddress(cctx, s.Seller, ScanLimit)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Str("seller", s.Seller).Msg("Recent transactions unavailable")
		return e.pendingCheck(ctx, s, ReasonTxsUnavailable)
	}

	tx, ok := findPayment(txs, s, e.now())
	if !ok {
		logger.Debug().Int("scanned", len(txs)).Msg("No matching payment")
		return e.pendingCheck(ctx, s, ReasonNotFound)
	}
	return e.finalize(ctx, s, tx, logger)
}

// pendingCheck marks s as waiting for evidence and reports reason.
func (e *Engine) pendingCheck(ctx context.Context, s *Sale, reason Reason) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	now := e.now().UTC()
	err := e.repo.Update(ctx, Collection, s.ID, map[string]any{
		"status":          StatusPendingCheck,
		"lastCheckedAt":   now,
		"lastCheckReason": reason,
	})
	if err != nil {
		return nil, fmt.Errorf("mark sale pending_check: %w", err)
	}
	metrics.RecordConfirmation(string(reason))
	return &Result{Reason: reason}, nil
}

// finalize confirms s with tx as evidence and applies its effects in
// order: sale status, token supply or price, buyer balance, history.
// The steps are not atomic. A failure after the first leaves the sale
// confirmed and is returned as an error.
//
// Once started, finalize runs to the end even if the caller's context is
// cancelled; only its values are kept.
func (e *Engine) finalize(ctx context.Context, s *Sale, tx *chainapi.Transaction, logger zerolog.Logger) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	now := e.now().UTC()

	err := e.repo.Update(ctx, Collection, s.ID, map[string]any{
		"status":      StatusConfirmed,
		"txHash":      tx.Hash,
		"confirmedAt": now,
	})
	if err != nil {
		return nil, fmt.Errorf("mark sale confirmed: %w", err)
	}

	fail := func(step string, err error) (*Result, error) {
		logger.Error().Err(err).Str("step", step).Str("tx", tx.Hash).
			Msg("Sale confirmed but finalize step failed")
		metrics.RecordConfirmation("finalize_failed")
		return nil, fmt.Errorf("finalize sale %s: %s: %w", s.ID, step, err)
	}

	if _, err := e.ledger.ApplyPurchase(ctx, s.TokenID, s.AmountTokens); err != nil {
		return fail("apply_purchase", err)
	}
	if err := e.ledger.Credit(ctx, s.TokenID, s.Buyer, s.AmountTokens); err != nil {
		return fail("credit_buyer", err)
	}
	if _, err := e.history.Record(ctx, history.Entry{
		Type:        history.BuyConfirmed,
		When:        now,
		SaleID:      s.ID,
		TokenID:     s.TokenID,
		TokenTicker: s.TokenTicker,
		Buyer:       s.Buyer,
		Seller:      s.Seller,
		Amount:      s.AmountTokens,
		Cost:        s.Cost,
		TxHash:      tx.Hash,
	}); err != nil {
		return fail("record_history", err)
	}

	res := &Result{OK: true, Message: MessageConfirmed, TxHash: tx.Hash}
	ev := logger.Info()
	if tx.Sender == "" {
		res.SenderUnverified = true
		ev = logger.Warn()
	}
	ev.Str("tx", tx.Hash).
		Str("buyer", s.Buyer).
		Float64("amount", s.AmountTokens).
		Bool("sender_unverified", res.SenderUnverified).
		Msg("Sale confirmed")

	metrics.RecordConfirmation(MessageConfirmed)
	return res, nil
}
