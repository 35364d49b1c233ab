// Package ledger defines the contract between the matching core and the
// accounting ledger it reconciles against, plus two implementations: an
// in-memory store used by tests and fixtures, and a SQLite-backed store
// used by the CLI.
//
// Candidate selection is pushed into the store: every fetch method applies
// the eligibility filters its query describes (plus the implicit ones every
// builder requires: submitted documents, no clearance date). Ranking is
// never computed here; the matcher scores returned rows in memory.
package ledger

import (
	"context"
	"time"

	"bank-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// AccountSide selects which account field of a payment entry the bank
// account is matched against, based on transaction direction.
type AccountSide int

const (
	// SidePaidTo matches deposits (money received into the account).
	SidePaidTo AccountSide = iota
	// SidePaidFrom matches withdrawals (money paid out of the account).
	SidePaidFrom
)

// EntrySide selects the credit or debit leg of a journal entry line.
type EntrySide int

const (
	SideCredit EntrySide = iota
	SideDebit
)

// BankAccount links a bank feed account to its general-ledger account.
type BankAccount struct {
	Name      string
	GLAccount string
	Company   string
}

// Account is a general-ledger account.
type Account struct {
	Name        string
	Company     string
	Currency    string
	AccountType string
}

// IsReceivableOrPayable reports whether postings against this account
// require an identified party.
func (a *Account) IsReceivableOrPayable() bool {
	return a.AccountType == "Receivable" || a.AccountType == "Payable"
}

// PaymentEntry is a payment voucher row.
type PaymentEntry struct {
	Name             string
	PaymentType      models.PaymentType
	PostingDate      time.Time
	ReferenceNo      string
	ReferenceDate    time.Time
	PartyType        string
	Party            string
	PaidFrom         string
	PaidTo           string
	PaidFromCurrency string
	PaidToCurrency   string
	PaidAmount       decimal.Decimal
	ClearanceDate    *time.Time
	DocStatus        models.DocStatus
}

// JournalEntry is a journal voucher with its account lines.
type JournalEntry struct {
	Name          string
	VoucherType   string
	PostingDate   time.Time
	ChequeNo      string
	ChequeDate    time.Time
	PayToRecdFrom string
	ClearanceDate *time.Time
	DocStatus     models.DocStatus
	Lines         []JournalEntryLine
}

// JournalEntryLine is one account line of a journal entry.
type JournalEntryLine struct {
	Account         string
	PartyType       string
	Party           string
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	AccountCurrency string
}

// JournalEntryRow is the flattened projection of a journal entry line
// joined with its parent, as returned by JournalEntryLines.
type JournalEntryRow struct {
	Name            string
	PostingDate     time.Time
	ChequeNo        string
	ChequeDate      time.Time
	PayToRecdFrom   string
	PartyType       string
	Amount          decimal.Decimal
	AccountCurrency string
}

// InvoicePaymentRow is a payment row of a sales invoice (invoices recorded
// with immediate payment at a bank-facing account).
type InvoicePaymentRow struct {
	Account       string
	Amount        decimal.Decimal
	ClearanceDate *time.Time
}

// SalesInvoice is a sales invoice voucher.
type SalesInvoice struct {
	Name              string
	Customer          string
	PostingDate       time.Time
	Currency          string
	GrandTotal        decimal.Decimal
	OutstandingAmount decimal.Decimal
	IsReturn          bool
	DocStatus         models.DocStatus
	Payments          []InvoicePaymentRow
}

// SalesInvoicePaymentRow is the flattened projection of a sales invoice
// joined with one of its payment rows, as returned by PaidSalesInvoices.
type SalesInvoicePaymentRow struct {
	Name        string
	Customer    string
	PostingDate time.Time
	Currency    string
	Amount      decimal.Decimal
}

// PurchaseInvoice is a purchase invoice voucher. Paid invoices
// (IsPaid) double as payment vouchers at CashBankAccount.
type PurchaseInvoice struct {
	Name              string
	Supplier          string
	BillNo            string
	BillDate          time.Time
	PostingDate       time.Time
	Currency          string
	GrandTotal        decimal.Decimal
	PaidAmount        decimal.Decimal
	OutstandingAmount decimal.Decimal
	IsPaid            bool
	IsReturn          bool
	CashBankAccount   string
	ClearanceDate     *time.Time
	DocStatus         models.DocStatus
}

// LoanDisbursement is an outgoing loan voucher.
type LoanDisbursement struct {
	Name                string
	Applicant           string
	ApplicantType       string
	ReferenceNumber     string
	ReferenceDate       time.Time
	DisbursementDate    time.Time
	DisbursedAmount     decimal.Decimal
	DisbursementAccount string
	ClearanceDate       *time.Time
	DocStatus           models.DocStatus
}

// LoanRepayment is an incoming loan voucher.
type LoanRepayment struct {
	Name            string
	Applicant       string
	ApplicantType   string
	ReferenceNumber string
	ReferenceDate   time.Time
	PostingDate     time.Time
	AmountPaid      decimal.Decimal
	PaymentAccount  string
	RepayFromSalary bool
	ClearanceDate   *time.Time
	DocStatus       models.DocStatus
}

// AmountFilter expresses the amount condition of a candidate query:
// strict equality when Equals is set, otherwise any positive amount.
type AmountFilter struct {
	Equals   *decimal.Decimal
	Positive bool
}

// Exactly returns a strict-equality amount filter.
func Exactly(amount decimal.Decimal) AmountFilter {
	return AmountFilter{Equals: &amount}
}

// AnyPositive returns a loose amount filter accepting any positive amount.
func AnyPositive() AmountFilter {
	return AmountFilter{Positive: true}
}

// Matches reports whether the given amount satisfies the filter.
func (f AmountFilter) Matches(amount decimal.Decimal) bool {
	if f.Equals != nil {
		return amount.Equal(*f.Equals)
	}
	if f.Positive {
		return amount.IsPositive()
	}
	return true
}

// DateFilter bounds a date field; zero bounds are unbounded.
type DateFilter struct {
	From time.Time
	To   time.Time
}

// Contains reports whether the date falls within the bounds.
func (f DateFilter) Contains(date time.Time) bool {
	if !f.From.IsZero() && date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && date.After(f.To) {
		return false
	}
	return true
}

// PartyRef identifies a counterparty for exact-party eligibility filters.
type PartyRef struct {
	Type string
	Name string
}

// PaymentEntryQuery selects candidate payment entries. The store always
// restricts to submitted, uncleared entries.
type PaymentEntryQuery struct {
	Account      string
	Side         AccountSide
	PaymentTypes []models.PaymentType
	Amount       AmountFilter
	ReferenceNo  *string
	Party        *PartyRef
	// Dates applies to the posting date, or the reference date when
	// ByReferenceDate is set; results are ordered ascending by the
	// filtering field either way.
	Dates           DateFilter
	ByReferenceDate bool
}

// JournalEntryQuery selects candidate journal entry lines posted at the
// bank-facing account. Opening entries are always excluded.
type JournalEntryQuery struct {
	Account         string
	Side            EntrySide
	Amount          AmountFilter
	ChequeNo        *string
	Dates           DateFilter
	ByReferenceDate bool
}

// PaidInvoiceQuery selects invoices already linked to a payment at the
// given bank-facing account, in the given currency.
type PaidInvoiceQuery struct {
	Account  string
	Currency string
	Amount   AmountFilter
	Party    *string
}

// UnpaidInvoiceQuery selects invoices with a positive outstanding balance,
// not linked to any payment, in the given currency. GrandTotalEquals is the
// exact-match condition; the loose mode applies no amount condition beyond
// the positive outstanding balance.
type UnpaidInvoiceQuery struct {
	Currency         string
	GrandTotalEquals *decimal.Decimal
	Party            *string
}

// LoanQuery selects loan vouchers whose bank-facing account matches.
// Loan matching never applies a date window.
type LoanQuery struct {
	Account string
	Amount  AmountFilter
}

// PeerTransactionQuery selects unreconciled bank transactions on the
// opposite side of the same bank account, excluding the transaction being
// matched.
type PeerTransactionQuery struct {
	BankAccount string
	ExcludeID   string
	// Deposit selects peers with a positive deposit; false selects
	// positive withdrawals.
	Deposit bool
	Amount  AmountFilter
	Party   *PartyRef
}

// Store is the ledger collaborator the matching core runs against.
//
// Reconcile must re-validate the remaining unallocated amount atomically at
// write time: concurrent reconciliation requests may race, and the losing
// writer receives a conflict error rather than over-allocating.
type Store interface {
	// Lookups.
	BankAccount(ctx context.Context, name string) (*BankAccount, error)
	Account(ctx context.Context, name string) (*Account, error)
	GetBankTransaction(ctx context.Context, id string) (*models.BankTransaction, error)

	// BankTransactions returns the matchable (submitted, positive
	// unallocated amount) transactions of a bank account, date ascending.
	BankTransactions(ctx context.Context, bankAccount string, dates DateFilter) ([]*models.BankTransaction, error)

	// Candidate fetches, one per voucher kind.
	PaymentEntries(ctx context.Context, q PaymentEntryQuery) ([]*PaymentEntry, error)
	JournalEntryLines(ctx context.Context, q JournalEntryQuery) ([]*JournalEntryRow, error)
	PaidSalesInvoices(ctx context.Context, q PaidInvoiceQuery) ([]*SalesInvoicePaymentRow, error)
	UnpaidSalesInvoices(ctx context.Context, q UnpaidInvoiceQuery) ([]*SalesInvoice, error)
	PaidPurchaseInvoices(ctx context.Context, q PaidInvoiceQuery) ([]*PurchaseInvoice, error)
	UnpaidPurchaseInvoices(ctx context.Context, q UnpaidInvoiceQuery) ([]*PurchaseInvoice, error)
	LoanDisbursements(ctx context.Context, q LoanQuery) ([]*LoanDisbursement, error)
	LoanRepayments(ctx context.Context, q LoanQuery) ([]*LoanRepayment, error)
	PeerBankTransactions(ctx context.Context, q PeerTransactionQuery) ([]*models.BankTransaction, error)

	// TotalAllocated sums existing reconciliation allocations of a voucher,
	// grouped by the general-ledger account they were allocated against.
	TotalAllocated(ctx context.Context, kind models.VoucherKind, name string) (map[string]decimal.Decimal, error)

	// Reconcile applies allocations to a bank transaction: reduces its
	// unallocated amount, records the allocation rows, and updates its
	// status. Fails with a conflict error when the allocations exceed the
	// remaining unallocated amount.
	Reconcile(ctx context.Context, transactionID string, allocations []models.Allocation) (*models.BankTransaction, error)

	// Document creation, used only by the document-creation glue.
	CreateBankTransaction(ctx context.Context, tx *models.BankTransaction) error
	CreatePaymentEntry(ctx context.Context, entry *PaymentEntry) error
	CreateJournalEntry(ctx context.Context, entry *JournalEntry) error
}

// CurrencyPrecision is the decimal precision used when deciding whether an
// unallocated remainder counts as zero.
const CurrencyPrecision = 2

// IsZeroWithinPrecision reports whether the amount rounds to zero at
// currency precision.
func IsZeroWithinPrecision(amount decimal.Decimal) bool {
	return amount.Round(CurrencyPrecision).IsZero()
}
