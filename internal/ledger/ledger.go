package ledger

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// maxBalance caps any single bucket; credits past it fail with ErrOverflow
// so the decimal(38,18) column can always hold the value.
var maxBalance = decimal.New(1, 36)

// Service is the sole authority over wallet balances. All mutating
// operations are atomic per (wallet, asset): a failed call leaves the entry
// untouched.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: NewDatabase(gormDB)}
}

// WithTx returns a service bound to the given transaction, so ledger
// mutations can join a caller's atomic unit (the matching walk uses this).
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: NewDatabase(tx)}
}

// SetBudget initialises the (wallet, asset) entry with the given available
// amount. Fails with ErrEntryExists if the entry was already created.
func (s *Service) SetBudget(walletID, assetID uuid.UUID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if amount.GreaterThan(maxBalance) {
		return ErrOverflow
	}

	if _, err := s.db.GetEntry(walletID, assetID); err == nil {
		return ErrEntryExists
	} else if err != ErrUnknownEntry {
		return err
	}

	entry := &BalanceEntry{
		WalletID:  walletID,
		AssetID:   assetID,
		Available: amount,
		Locked:    decimal.Zero,
		Spent:     decimal.Zero,
	}
	if err := s.db.CreateEntry(entry); err != nil {
		return err
	}

	log.Debug().
		Str("wallet_id", walletID.String()).
		Str("asset_id", assetID.String()).
		Str("amount", amount.String()).
		Msg("budget initialised")
	return nil
}

// Lock moves qty from available to locked. Fails with ErrInsufficientFunds
// when available < qty, leaving the entry byte-identical to before the call.
func (s *Service) Lock(walletID, assetID uuid.UUID, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrNegativeAmount
	}
	ok, err := s.db.Lock(walletID, assetID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return s.classifyFailure(walletID, assetID, ErrInsufficientFunds)
	}
	return nil
}

// Unlock returns qty from locked to available. Fails with
// ErrInvariantViolation when locked < qty.
func (s *Service) Unlock(walletID, assetID uuid.UUID, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrNegativeAmount
	}
	ok, err := s.db.Unlock(walletID, assetID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return s.classifyFailure(walletID, assetID, ErrInvariantViolation)
	}
	return nil
}

// Spend consumes qty from locked into spent. Fails with
// ErrInvariantViolation when locked < qty.
func (s *Service) Spend(walletID, assetID uuid.UUID, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrNegativeAmount
	}
	ok, err := s.db.Spend(walletID, assetID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return s.classifyFailure(walletID, assetID, ErrInvariantViolation)
	}
	return nil
}

// Unspend is the settlement compensation path: qty moves from spent back to
// locked, from where Unlock returns it to available.
func (s *Service) Unspend(walletID, assetID uuid.UUID, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrNegativeAmount
	}
	ok, err := s.db.Unspend(walletID, assetID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return s.classifyFailure(walletID, assetID, ErrInvariantViolation)
	}
	return nil
}

// Credit adds qty to available, creating the entry when the wallet has never
// held the asset. This is how matched value reaches the receiving side.
func (s *Service) Credit(walletID, assetID uuid.UUID, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrNegativeAmount
	}
	entry, err := s.db.GetEntry(walletID, assetID)
	if err == nil && entry.Available.Add(qty).GreaterThan(maxBalance) {
		return ErrOverflow
	}
	return s.db.CreditAvailable(walletID, assetID, qty)
}

// Debit removes qty from available. It is the inverse of Credit and exists
// for the settlement compensation path, which must take back what a failed
// trade credited. Fails with ErrInsufficientFunds when the holder already
// moved the value on.
func (s *Service) Debit(walletID, assetID uuid.UUID, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrNegativeAmount
	}
	ok, err := s.db.DebitAvailable(walletID, assetID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return s.classifyFailure(walletID, assetID, ErrInsufficientFunds)
	}
	return nil
}

// Available returns the spendable quantity for the pair.
func (s *Service) Available(walletID, assetID uuid.UUID) (decimal.Decimal, error) {
	entry, err := s.db.GetEntry(walletID, assetID)
	if err != nil {
		return decimal.Zero, err
	}
	return entry.Available, nil
}

// Total returns available + locked + spent for the pair.
func (s *Service) Total(walletID, assetID uuid.UUID) (decimal.Decimal, error) {
	entry, err := s.db.GetEntry(walletID, assetID)
	if err != nil {
		return decimal.Zero, err
	}
	return entry.Total(), nil
}

// Entry returns the full balance entry.
func (s *Service) Entry(walletID, assetID uuid.UUID) (*BalanceEntry, error) {
	return s.db.GetEntry(walletID, assetID)
}

// EntriesForWallet lists every asset balance held by the wallet.
func (s *Service) EntriesForWallet(walletID uuid.UUID) ([]BalanceEntry, error) {
	return s.db.EntriesForWallet(walletID)
}

// Summary aggregates utilisation across the whole ledger.
func (s *Service) Summary() (*Summary, error) {
	return s.db.Summary()
}

// classifyFailure distinguishes a missing entry from a guard failure after a
// conditional update touched no rows.
func (s *Service) classifyFailure(walletID, assetID uuid.UUID, guardErr error) error {
	if _, err := s.db.GetEntry(walletID, assetID); err != nil {
		return err
	}
	return guardErr
}
