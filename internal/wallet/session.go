package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"monsearch/internal/logger"
)

// Session owns the connected account and its cached balance. The balance is
// written only on connect and on confirmed payment; everything else reads it.
type Session struct {
	provider Provider
	params   ChainParams
	fallback decimal.Decimal
	log      logger.Logger

	mu         sync.Mutex
	connected  bool
	address    string
	balance    decimal.Decimal
	unverified bool
}

func NewSession(provider Provider, params ChainParams, fallbackBalance decimal.Decimal, log logger.Logger) *Session {
	if log == nil {
		log = logger.Noop{}
	}
	return &Session{
		provider: provider,
		params:   params,
		fallback: fallbackBalance,
		log:      log,
	}
}

// Connect selects an account, moves the provider onto the target chain and
// seeds the cached balance.
func (s *Session) Connect(ctx context.Context) (string, error) {
	if s.provider == nil {
		return "", ErrProviderUnavailable
	}

	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnectionRejected, err)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("%w: no accounts", ErrConnectionRejected)
	}
	address := accounts[0]

	if err := s.EnsureNetwork(ctx); err != nil {
		return "", err
	}

	balance, verified := s.Balance(ctx, address)

	s.mu.Lock()
	s.connected = true
	s.address = address
	s.balance = balance
	s.unverified = !verified
	s.mu.Unlock()

	s.log.Info("wallet connected", map[string]any{
		"address": address,
		"chain":   s.params.ChainID,
		"balance": balance.String(),
	})
	return address, nil
}

// EnsureNetwork switches to the target chain. When the provider does not
// know the chain, its parameters are registered and the add call is expected
// to land on it; any other switch error propagates unchanged.
func (s *Session) EnsureNetwork(ctx context.Context) error {
	err := s.provider.SwitchChain(ctx, s.params.ChainID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUnknownChain) {
		return err
	}
	if addErr := s.provider.AddChain(ctx, s.params); addErr != nil {
		return fmt.Errorf("%w: %v", ErrNetworkSwitchFailed, addErr)
	}
	return nil
}

// Balance reads the on-chain balance in whole native units, rounded down to
// two decimal places. On provider failure it returns the fallback amount and
// verified=false; the caller must treat that path as an unverified balance.
func (s *Session) Balance(ctx context.Context, address string) (amount decimal.Decimal, verified bool) {
	wei, err := s.provider.BalanceAt(ctx, address)
	if err != nil || wei == nil {
		s.log.Warn("balance read failed, using fallback", map[string]any{
			"address": address,
			"error":   fmt.Sprint(err),
		})
		return s.fallback, false
	}
	units := decimal.NewFromBigInt(wei, -int32(s.params.Decimals))
	return units.Truncate(2), true
}

func (s *Session) SendValueTransfer(ctx context.Context, to string, amountWei *big.Int, gasLimit uint64) (string, error) {
	s.mu.Lock()
	from := s.address
	s.mu.Unlock()

	hash, err := s.provider.SendTransfer(ctx, TransferRequest{
		From:     from,
		To:       to,
		ValueWei: amountWei,
		GasLimit: gasLimit,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransferRejected, err)
	}
	return hash, nil
}

func (s *Session) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	return s.provider.TransactionReceipt(ctx, txHash)
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// CachedBalance returns the locally tracked balance and whether it came from
// the fallback path.
func (s *Session) CachedBalance() (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, s.unverified
}

// Debit reduces the cached balance after a confirmed payment, clamped at zero.
func (s *Session) Debit(amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = s.balance.Sub(amount)
	if s.balance.IsNegative() {
		s.balance = decimal.Zero
	}
}
