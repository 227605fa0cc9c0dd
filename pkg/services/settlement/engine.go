// Package settlement runs a bet through reserve, draw, evaluate and commit.
//
// A bet moves Validated -> FundsReserved -> OutcomeDrawn -> PayoutComputed ->
// Committed, or ends Rejected before any funds move, or Failed once the debit
// is durable. A Failed bet keeps its debit until it is compensated.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/internal/types"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/paytable"
	"github.com/fadedpez/spinz/pkg/repositories/catalog"
	"github.com/fadedpez/spinz/pkg/repositories/ledger"
	"github.com/fadedpez/spinz/pkg/repositories/receipts"
	"github.com/fadedpez/spinz/pkg/rng"
	"github.com/fadedpez/spinz/pkg/services/wallet"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ResultSink receives a copy of every committed result. Delivery is best effort.
type ResultSink interface {
	Publish(ctx context.Context, result *entities.GameResult) error
}

// AchievementEvaluator unlocks achievements from a committed result
type AchievementEvaluator interface {
	Evaluate(ctx context.Context, game *entities.Game, result *entities.GameResult) ([]string, error)
}

// Config bounds how long each step of a settlement may take
type Config struct {
	StepTimeout        time.Duration // draw and each ledger write
	AchievementTimeout time.Duration
	SinkTimeout        time.Duration
	OrphanDebitAge     time.Duration // debits older than this without a result are recovered
	ReconcileBatchSize int
}

// DefaultConfig returns the settlement defaults
func DefaultConfig() Config {
	return Config{
		StepTimeout:        2 * time.Second,
		AchievementTimeout: 500 * time.Millisecond,
		SinkTimeout:        5 * time.Second,
		OrphanDebitAge:     time.Minute,
		ReconcileBatchSize: 100,
	}
}

// Option configures optional collaborators of the engine
type Option func(*Engine)

// WithReceiptCache answers replays from cache before reading the ledger
func WithReceiptCache(cache receipts.Cache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithAchievements evaluates achievements after every commit
func WithAchievements(evaluator AchievementEvaluator) Option {
	return func(e *Engine) { e.achievements = evaluator }
}

// WithSinks adds result sinks
func WithSinks(sinks ...ResultSink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sinks...) }
}

// Engine settles bets. It is safe for concurrent use.
type Engine struct {
	wallets      wallet.WalletService
	games        catalog.Catalog
	drawer       rng.Drawer
	achievements AchievementEvaluator
	cache        receipts.Cache
	sinks        []ResultSink
	cfg          Config
	logger       *logging.Logger

	flights singleflight.Group
	pending sync.WaitGroup
	now     func() time.Time
}

// NewEngine creates a settlement engine
func NewEngine(wallets wallet.WalletService, games catalog.Catalog, drawer rng.Drawer, cfg Config, logger *logging.Logger, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaults.StepTimeout
	}
	if cfg.AchievementTimeout <= 0 {
		cfg.AchievementTimeout = defaults.AchievementTimeout
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaults.SinkTimeout
	}
	// a settlement spends up to four step timeouts between its debit and its
	// result, and anything younger may still be in flight
	if floor := 4 * cfg.StepTimeout; cfg.OrphanDebitAge <= floor {
		cfg.OrphanDebitAge = max(defaults.OrphanDebitAge, 2*floor)
	}
	if cfg.ReconcileBatchSize <= 0 {
		cfg.ReconcileBatchSize = defaults.ReconcileBatchSize
	}
	if logger == nil {
		logger = logging.Default
	}

	e := &Engine{
		wallets: wallets,
		games:   games,
		drawer:  drawer,
		cfg:     cfg,
		logger:  logger.With("component", "settlement"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PlaceBet settles a bet exactly once per (account, idempotency key).
// Repeating a settled request returns the stored receipt with Replayed set.
func (e *Engine) PlaceBet(ctx context.Context, req *entities.BetRequest) (*entities.Receipt, error) {
	start := time.Now()
	if err := validateRequest(req); err != nil {
		observe(outcomeRejected, start)
		e.transition(req, "", entities.StateRejected, err)
		return nil, err
	}

	hash := req.Fingerprint()
	flight := req.AccountID + "\x00" + req.IdempotencyKey + "\x00" + hash

	// Once funds may move the settlement runs to a terminal state even if the
	// caller goes away, so it is detached from the caller's cancellation.
	v, err, _ := e.flights.Do(flight, func() (interface{}, error) {
		return e.settle(context.WithoutCancel(ctx), req, hash, start)
	})
	if err != nil {
		return nil, err
	}

	receipt := *v.(*entities.Receipt)
	return &receipt, nil
}

func validateRequest(req *entities.BetRequest) error {
	switch {
	case req.AccountID == "":
		return types.NewError(types.ErrValidation, "account id is required")
	case req.WalletID == "":
		return types.NewError(types.ErrValidation, "wallet id is required")
	case req.GameID == "":
		return types.NewError(types.ErrValidation, "game id is required")
	case req.Currency == "":
		return types.NewError(types.ErrValidation, "currency is required")
	case req.Amount <= 0:
		return types.NewError(types.ErrValidation, "bet amount must be positive")
	}
	return wallet.ValidateClientKey(req.IdempotencyKey)
}

func (e *Engine) settle(ctx context.Context, req *entities.BetRequest, hash string, start time.Time) (*entities.Receipt, error) {
	if receipt, err := e.lookup(ctx, req.AccountID, req.IdempotencyKey, hash); receipt != nil || err != nil {
		if err == nil {
			observe(outcomeReplayed, start)
		}
		return receipt, err
	}

	game, err := e.validate(ctx, req)
	if err != nil {
		observe(outcomeRejected, start)
		e.transition(req, "", entities.StateRejected, err)
		return nil, err
	}
	resultID := uuid.New().String()
	e.transition(req, resultID, entities.StateValidated, nil)

	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	debit, created, err := e.wallets.AppendTransaction(stepCtx, &wallet.TransactionRequest{
		WalletID:       req.WalletID,
		Type:           entities.TransactionTypeBetDebit,
		Amount:         -req.Amount,
		ResultID:       resultID,
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    hash,
		Details:        &entities.BetDetails{GameID: req.GameID},
	})
	cancel()
	if err != nil {
		observe(outcomeRejected, start)
		e.transition(req, resultID, entities.StateRejected, err)
		return nil, err
	}
	if !created {
		// another process reserved funds for this key first
		observe(outcomeRejected, start)
		err := types.NewError(types.ErrBetInProgress, "bet is still being settled").WithResult(debit.ResultID)
		e.transition(req, resultID, entities.StateRejected, err)
		return nil, err
	}
	e.transition(req, resultID, entities.StateFundsReserved, nil)

	outcome, err := e.draw(ctx, game)
	if err != nil {
		code := types.ErrSettlementFailed
		if errors.Is(err, rng.ErrEntropyUnavailable) {
			code = types.ErrEntropyUnavailable
		}
		return e.fail(ctx, req, hash, resultID, nil, code, "outcome draw failed", err, start)
	}
	e.transition(req, resultID, entities.StateOutcomeDrawn, nil)

	payout, err := paytable.Evaluate(req.Amount, outcome, game.Paytable)
	if err != nil {
		return e.fail(ctx, req, hash, resultID, outcome, types.ErrSettlementFailed, "payout evaluation failed", err, start)
	}
	e.transition(req, resultID, entities.StatePayoutComputed, nil)

	result := &entities.GameResult{
		ID:             resultID,
		AccountID:      req.AccountID,
		WalletID:       req.WalletID,
		GameID:         req.GameID,
		Currency:       req.Currency,
		Bet:            req.Amount,
		Outcome:        outcome,
		Payout:         payout,
		BonusTriggered: outcome.AllMatch(),
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    hash,
	}
	var credit *entities.Transaction
	if payout > 0 {
		credit = &entities.Transaction{
			WalletID:       req.WalletID,
			Type:           entities.TransactionTypePayoutCredit,
			Amount:         payout,
			ResultID:       resultID,
			IdempotencyKey: wallet.PayoutKey(req.IdempotencyKey),
			RequestHash:    hash,
			Details: &entities.PayoutDetails{
				GameID:    req.GameID,
				Outcome:   outcome,
				BetAmount: req.Amount,
			},
		}
	}

	stepCtx, cancel = context.WithTimeout(ctx, e.cfg.StepTimeout)
	committed, err := e.wallets.CommitSettlement(stepCtx, result, credit)
	cancel()
	if errors.Is(err, ledger.ErrResultExists) {
		return e.lookup(ctx, req.AccountID, req.IdempotencyKey, hash)
	}
	if err != nil {
		return e.fail(ctx, req, hash, resultID, outcome, types.ErrPersistenceFailure, "result could not be committed", err, start)
	}

	e.transition(req, resultID, entities.StateCommitted, nil)

	receipt := e.finish(ctx, game, committed)
	if committed.Payout > 0 {
		observe(outcomeWin, start)
	} else {
		observe(outcomeLoss, start)
	}
	return receipt, nil
}

// lookup returns the receipt of an already settled request, or nil when the
// key has not been used yet
func (e *Engine) lookup(ctx context.Context, accountID, key, hash string) (*entities.Receipt, error) {
	if e.cache != nil {
		receipt, cachedHash, err := e.cache.Get(ctx, accountID, key)
		switch {
		case err == nil && cachedHash != hash:
			return nil, types.NewError(types.ErrIdempotencyMismatch, "idempotency key was used for a different bet").WithResult(receipt.ResultID)
		case err == nil:
			receipt.Replayed = true
			return receipt, nil
		case !errors.Is(err, receipts.ErrCacheMiss):
			e.logger.Warn("receipt cache unavailable: %v", err)
		}
	}

	result, err := e.wallets.GetGameResultByKey(ctx, accountID, key)
	if err == nil {
		return e.replay(ctx, result, hash)
	}
	if !types.IsCode(err, types.ErrResultNotFound) {
		return nil, err
	}

	debit, err := e.wallets.GetTransactionByKey(ctx, accountID, key)
	if err == nil {
		if debit.RequestHash != hash {
			return nil, types.NewError(types.ErrIdempotencyMismatch, "idempotency key was used for a different request")
		}
		return nil, types.NewError(types.ErrBetInProgress, "bet is still being settled").WithResult(debit.ResultID)
	}
	if !types.IsCode(err, types.ErrTxNotFound) {
		return nil, err
	}
	return nil, nil
}

func (e *Engine) replay(ctx context.Context, result *entities.GameResult, hash string) (*entities.Receipt, error) {
	if result.RequestHash != hash {
		return nil, types.NewError(types.ErrIdempotencyMismatch, "idempotency key was used for a different bet").WithResult(result.ID)
	}
	if result.Status != entities.ResultStatusCommitted {
		msg := fmt.Sprintf("bet was not settled: %s", result.FailureReason)
		if result.Status == entities.ResultStatusCompensated {
			msg = "bet was not settled and has been refunded"
		}
		return nil, types.NewError(types.ErrSettlementFailed, msg).WithResult(result.ID)
	}

	// evaluating again is idempotent and returns what the result unlocked
	var achievements []string
	if game, err := e.games.GetGame(ctx, result.GameID); err == nil {
		achievements = e.evaluateAchievements(ctx, game, result)
	}

	receipt := entities.NewReceipt(result, achievements)
	receipt.Replayed = true
	return receipt, nil
}

// validate checks the request against the game and wallet before funds move
func (e *Engine) validate(ctx context.Context, req *entities.BetRequest) (*entities.Game, error) {
	game, err := e.games.GetGame(ctx, req.GameID)
	if errors.Is(err, catalog.ErrGameNotFound) {
		return nil, types.WrapError(types.ErrGameNotFound, fmt.Sprintf("game %s not found", req.GameID), err)
	}
	if err != nil {
		return nil, types.WrapError(types.ErrPersistenceFailure, "game catalog unavailable", err)
	}

	if req.Amount < game.MinBet || req.Amount > game.MaxBet {
		return nil, types.NewError(types.ErrValidation, fmt.Sprintf("bet must be between %d and %d", game.MinBet, game.MaxBet))
	}
	if !game.AcceptsCurrency(req.Currency) {
		return nil, types.NewError(types.ErrValidation, fmt.Sprintf("game %s does not accept %s", game.ID, req.Currency))
	}

	w, err := e.wallets.GetWallet(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	if w.AccountID != req.AccountID {
		return nil, types.NewError(types.ErrWalletNotFound, "wallet not found")
	}
	if w.Currency != req.Currency {
		return nil, types.NewError(types.ErrValidation, fmt.Sprintf("wallet holds %s, bet is in %s", w.Currency, req.Currency))
	}
	if w.IsClosed() {
		return nil, types.NewError(types.ErrWalletClosed, "wallet is closed")
	}
	return game, nil
}

// draw runs the RNG once, giving up after StepTimeout even if the drawer ignores ctx
func (e *Engine) draw(ctx context.Context, game *entities.Game) (entities.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	type drawResult struct {
		outcome entities.Outcome
		err     error
	}
	done := make(chan drawResult, 1)
	go func() {
		outcome, err := e.drawer.Draw(ctx, game.Reels, game.Symbols)
		done <- drawResult{outcome, err}
	}()

	select {
	case r := <-done:
		if r.err == nil && len(r.outcome) != game.Reels {
			return nil, fmt.Errorf("drew %d symbols for %d reels", len(r.outcome), game.Reels)
		}
		return r.outcome, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("draw timed out after %s: %w", e.cfg.StepTimeout, ctx.Err())
	}
}

// fail records a Failed result for a bet whose debit is already durable
func (e *Engine) fail(ctx context.Context, req *entities.BetRequest, hash, resultID string, outcome entities.Outcome,
	code types.ErrorCode, reason string, cause error, start time.Time) (*entities.Receipt, error) {
	result := &entities.GameResult{
		ID:             resultID,
		AccountID:      req.AccountID,
		WalletID:       req.WalletID,
		GameID:         req.GameID,
		Currency:       req.Currency,
		Bet:            req.Amount,
		Outcome:        outcome,
		FailureReason:  fmt.Sprintf("%s: %v", reason, cause),
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    hash,
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.StepTimeout)
	defer cancel()

	err := e.wallets.RecordFailedResult(recordCtx, result)
	if errors.Is(err, ledger.ErrResultExists) {
		// the commit landed even though it reported an error
		receipt, lookupErr := e.lookup(recordCtx, req.AccountID, req.IdempotencyKey, hash)
		if receipt != nil {
			receipt.Replayed = false
			e.transition(req, resultID, entities.StateCommitted, nil)
			if receipt.Payout > 0 {
				observe(outcomeWin, start)
			} else {
				observe(outcomeLoss, start)
			}
			return receipt, nil
		}
		if lookupErr != nil {
			return nil, lookupErr
		}
	}
	if err != nil {
		e.logger.Error("result %s for account %s could not be recorded as failed, debit is orphaned", resultID, req.AccountID)
		e.logger.LogError(err)
	}

	observe(outcomeFailed, start)
	failure := types.WrapError(code, reason, cause).WithResult(resultID)
	e.transition(req, resultID, entities.StateFailed, failure)
	e.logger.LogError(failure)
	return nil, failure
}

// transition logs a step of the bet's state machine
func (e *Engine) transition(req *entities.BetRequest, resultID string, state entities.SettlementState, cause error) {
	if cause != nil {
		e.logger.Debug("bet %s account=%s wallet=%s result=%s state=%s: %v",
			req.IdempotencyKey, req.AccountID, req.WalletID, resultID, state, cause)
		return
	}
	e.logger.Debug("bet %s account=%s wallet=%s result=%s state=%s",
		req.IdempotencyKey, req.AccountID, req.WalletID, resultID, state)
}

// finish runs the post-commit steps. None of them can fail the bet.
func (e *Engine) finish(ctx context.Context, game *entities.Game, result *entities.GameResult) *entities.Receipt {
	achievements := e.evaluateAchievements(ctx, game, result)
	receipt := entities.NewReceipt(result, achievements)

	if e.cache != nil {
		if err := e.cache.Put(ctx, result.AccountID, result.IdempotencyKey, result.RequestHash, receipt); err != nil {
			e.logger.Warn("could not cache receipt for result %s: %v", result.ID, err)
		}
	}

	if result.Payout > 0 {
		payoutTotal.WithLabelValues(result.Currency).Add(float64(result.Payout))
	}
	e.publish(ctx, result)
	return receipt
}

func (e *Engine) evaluateAchievements(ctx context.Context, game *entities.Game, result *entities.GameResult) []string {
	if e.achievements == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.AchievementTimeout)
	defer cancel()

	unlocked, err := e.achievements.Evaluate(ctx, game, result)
	if err != nil {
		e.logger.Warn("achievement evaluation failed for result %s: %v", result.ID, err)
	}
	return unlocked
}

// publish hands the result to every sink in the background
func (e *Engine) publish(ctx context.Context, result *entities.GameResult) {
	for _, sink := range e.sinks {
		copied := *result
		e.pending.Add(1)
		go func(sink ResultSink) {
			defer e.pending.Done()

			sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.SinkTimeout)
			defer cancel()

			if err := sink.Publish(sinkCtx, &copied); err != nil {
				name := fmt.Sprintf("%T", sink)
				sinkFailures.WithLabelValues(name).Inc()
				e.logger.Warn("sink %s rejected result %s: %v", name, copied.ID, err)
			}
		}(sink)
	}
}

// Wait blocks until background sink deliveries have finished
func (e *Engine) Wait() {
	e.pending.Wait()
}

// GetReceipt returns the receipt of a settled bet
func (e *Engine) GetReceipt(ctx context.Context, accountID, idempotencyKey string) (*entities.Receipt, error) {
	if e.cache != nil {
		if receipt, _, err := e.cache.Get(ctx, accountID, idempotencyKey); err == nil {
			return receipt, nil
		}
	}

	result, err := e.wallets.GetGameResultByKey(ctx, accountID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return e.replay(ctx, result, result.RequestHash)
}

// GetResult returns a persisted game result
func (e *Engine) GetResult(ctx context.Context, resultID string) (*entities.GameResult, error) {
	return e.wallets.GetGameResult(ctx, resultID)
}
