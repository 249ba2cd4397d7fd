package ledger

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
)

// GL account paths that do not depend on the transaction's account
const (
	glRevenueRefunds       = "Revenue:Refunds"
	glRevenueUncategorized = "Revenue:Uncategorized"
	glExpenseUncategorized = "Expense:Uncategorized"
)

// TransactionSource loads canonical transactions by id
type TransactionSource interface {
	GetByID(id string) (*domain.CanonicalTransaction, error)
}

// AccountSource loads accounts by id
type AccountSource interface {
	GetByID(id string) (*domain.Account, error)
}

// TransferSource answers whether a transaction is a leg of a transfer
type TransferSource interface {
	FindByOutLeg(txnID string) (*domain.TransferLink, error)
	FindByInLeg(txnID string) (*domain.TransferLink, error)
}

// CategorySource resolves the category name a transaction was classified
// into. Returns "" when the transaction has no classification.
type CategorySource interface {
	CategoryNameForTxn(txnID string) (string, error)
}

// Poster generates double-entry postings for canonical transactions.
// Posting is idempotent: every run replaces the transaction's entries.
//
// Transfer legs are deliberately single-sided: the outgoing transaction
// credits its cash account and the incoming one debits its own, so the
// pair balances across the link rather than within either transaction.
type Poster struct {
	txns       TransactionSource
	accounts   AccountSource
	transfers  TransferSource
	categories CategorySource
	entries    *EntryRepository
	log        zerolog.Logger
}

// NewPoster creates a new ledger poster
func NewPoster(txns TransactionSource, accounts AccountSource, transfers TransferSource, categories CategorySource, entries *EntryRepository, log zerolog.Logger) *Poster {
	return &Poster{
		txns:       txns,
		accounts:   accounts,
		transfers:  transfers,
		categories: categories,
		entries:    entries,
		log:        log.With().Str("component", "ledger_poster").Logger(),
	}
}

// Post writes the ledger entries for a transaction, replacing any prior
// posting for the same transaction.
func (p *Poster) Post(txnID string) error {
	txn, err := p.txns.GetByID(txnID)
	if err != nil {
		return err
	}
	account, err := p.accounts.GetByID(txn.AccountID)
	if err != nil {
		return err
	}

	entries, err := p.buildEntries(txn, *account)
	if err != nil {
		return err
	}
	if err := p.entries.ReplaceForTxn(txnID, entries); err != nil {
		return err
	}

	p.log.Debug().
		Str("txn_id", txnID).
		Int("lines", len(entries)).
		Msg("Posted ledger entries")
	return nil
}

func (p *Poster) buildEntries(txn *domain.CanonicalTransaction, account domain.Account) ([]domain.LedgerEntry, error) {
	abs := math.Abs(txn.Amount)

	if account.AccountType.IsCreditCard() {
		liabilityGL := fmt.Sprintf("Liability:CreditCard:%s", account.GLName())
		if txn.Amount < 0 {
			// Purchase on the card
			expenseGL, err := p.expenseGL(txn.ID)
			if err != nil {
				return nil, err
			}
			return []domain.LedgerEntry{
				{TxnID: txn.ID, LineNo: 1, GLAccount: expenseGL, Amount: abs, Sign: domain.SignDebit},
				{TxnID: txn.ID, LineNo: 2, GLAccount: liabilityGL, Amount: abs, Sign: domain.SignCredit},
			}, nil
		}
		// Payment or refund reduces the liability
		return []domain.LedgerEntry{
			{TxnID: txn.ID, LineNo: 1, GLAccount: liabilityGL, Amount: abs, Sign: domain.SignDebit},
			{TxnID: txn.ID, LineNo: 2, GLAccount: glRevenueRefunds, Amount: abs, Sign: domain.SignCredit},
		}, nil
	}

	cashGL := fmt.Sprintf("Asset:Cash:%s", account.GLName())

	if txn.Amount < 0 {
		link, err := p.transfers.FindByOutLeg(txn.ID)
		if err != nil {
			return nil, err
		}
		if link != nil {
			// Outgoing transfer: the destination account's leg debits its
			// own cash, so this side only credits.
			return []domain.LedgerEntry{
				{TxnID: txn.ID, LineNo: 1, GLAccount: cashGL, Amount: abs, Sign: domain.SignCredit},
			}, nil
		}

		expenseGL, err := p.expenseGL(txn.ID)
		if err != nil {
			return nil, err
		}
		return []domain.LedgerEntry{
			{TxnID: txn.ID, LineNo: 1, GLAccount: expenseGL, Amount: abs, Sign: domain.SignDebit},
			{TxnID: txn.ID, LineNo: 2, GLAccount: cashGL, Amount: abs, Sign: domain.SignCredit},
		}, nil
	}

	link, err := p.transfers.FindByInLeg(txn.ID)
	if err != nil {
		return nil, err
	}
	if link != nil {
		// Incoming transfer leg
		return []domain.LedgerEntry{
			{TxnID: txn.ID, LineNo: 1, GLAccount: cashGL, Amount: abs, Sign: domain.SignDebit},
		}, nil
	}

	return []domain.LedgerEntry{
		{TxnID: txn.ID, LineNo: 1, GLAccount: cashGL, Amount: abs, Sign: domain.SignDebit},
		{TxnID: txn.ID, LineNo: 2, GLAccount: glRevenueUncategorized, Amount: abs, Sign: domain.SignCredit},
	}, nil
}

// expenseGL maps a classified transaction to Expense:<category>, falling
// back to the uncategorized expense account.
func (p *Poster) expenseGL(txnID string) (string, error) {
	name, err := p.categories.CategoryNameForTxn(txnID)
	if err != nil {
		return "", err
	}
	if name == "" {
		return glExpenseUncategorized, nil
	}
	return fmt.Sprintf("Expense:%s", name), nil
}
