// Package models defines the core domain types for bank reconciliation:
// bank transactions imported from a bank feed, the uniform voucher candidate
// projection produced by the matching engine, and the allocation filter that
// threads through every candidate query.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocStatus represents the lifecycle state of a ledger document.
type DocStatus int

const (
	// DocStatusDraft is an unsubmitted document.
	DocStatusDraft DocStatus = 0
	// DocStatusSubmitted is a submitted, posting-effective document.
	DocStatusSubmitted DocStatus = 1
	// DocStatusCancelled is a cancelled document.
	DocStatusCancelled DocStatus = 2
)

// TransactionStatus represents the reconciliation state of a bank transaction.
type TransactionStatus string

const (
	StatusUnreconciled        TransactionStatus = "Unreconciled"
	StatusPartiallyReconciled TransactionStatus = "Partially Reconciled"
	StatusReconciled          TransactionStatus = "Reconciled"
)

// String returns the string representation of TransactionStatus.
func (s TransactionStatus) String() string {
	return string(s)
}

// PaymentType is the payment direction inferred from a bank transaction.
type PaymentType string

const (
	// PaymentTypeReceive is inferred for deposits (money coming in).
	PaymentTypeReceive PaymentType = "Receive"
	// PaymentTypePay is inferred for withdrawals (money going out).
	PaymentTypePay PaymentType = "Pay"
	// PaymentTypeInternalTransfer marks transfers between own accounts.
	// Payment entries of this type are eligible in both directions.
	PaymentTypeInternalTransfer PaymentType = "Internal Transfer"
)

// VoucherKind tags the originating voucher document type of a candidate.
type VoucherKind string

const (
	KindPaymentEntry     VoucherKind = "Payment Entry"
	KindJournalEntry     VoucherKind = "Journal Entry"
	KindSalesInvoice     VoucherKind = "Sales Invoice"
	KindPurchaseInvoice  VoucherKind = "Purchase Invoice"
	KindLoanDisbursement VoucherKind = "Loan Disbursement"
	KindLoanRepayment    VoucherKind = "Loan Repayment"
	KindBankTransaction  VoucherKind = "Bank Transaction"
)

// String returns the string representation of VoucherKind.
func (k VoucherKind) String() string {
	return string(k)
}

// BankTransaction is a single imported bank ledger line. Exactly one of
// Deposit and Withdrawal is positive. UnallocatedAmount starts at the
// transaction amount and only ever decreases as vouchers are allocated
// against it.
type BankTransaction struct {
	ID                string            `json:"name"`
	Date              time.Time         `json:"date"`
	Deposit           decimal.Decimal   `json:"deposit"`
	Withdrawal        decimal.Decimal   `json:"withdrawal"`
	Currency          string            `json:"currency"`
	Description       string            `json:"description"`
	BankAccount       string            `json:"bank_account"`
	Company           string            `json:"company"`
	UnallocatedAmount decimal.Decimal   `json:"unallocated_amount"`
	ReferenceNumber   string            `json:"reference_number"`
	PartyType         string            `json:"party_type,omitempty"`
	Party             string            `json:"party,omitempty"`
	BankPartyName     string            `json:"bank_party_name,omitempty"`
	BankPartyAccount  string            `json:"bank_party_account_number,omitempty"`
	BankPartyIBAN     string            `json:"bank_party_iban,omitempty"`
	Status            TransactionStatus `json:"status"`
	DocStatus         DocStatus         `json:"docstatus"`
}

// IsDeposit reports whether the transaction brought money into the account.
func (t *BankTransaction) IsDeposit() bool {
	return t.Deposit.IsPositive()
}

// IsWithdrawal reports whether the transaction took money out of the account.
func (t *BankTransaction) IsWithdrawal() bool {
	return t.Withdrawal.IsPositive()
}

// Amount returns the transaction amount regardless of direction.
func (t *BankTransaction) Amount() decimal.Decimal {
	if t.IsDeposit() {
		return t.Deposit
	}
	return t.Withdrawal
}

// PaymentDirection returns Receive for deposits and Pay for withdrawals.
func (t *BankTransaction) PaymentDirection() PaymentType {
	if t.IsDeposit() {
		return PaymentTypeReceive
	}
	return PaymentTypePay
}

// IsMatchable reports whether the transaction can participate in matching:
// it must be submitted and still carry an unallocated remainder.
func (t *BankTransaction) IsMatchable() bool {
	return t.DocStatus == DocStatusSubmitted && t.UnallocatedAmount.IsPositive()
}

// HasParty reports whether a counterparty was identified on the transaction.
func (t *BankTransaction) HasParty() bool {
	return t.PartyType != "" && t.Party != ""
}

// Validate performs basic validation on the BankTransaction.
func (t *BankTransaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("bank transaction ID cannot be empty")
	}

	if t.Date.IsZero() {
		return fmt.Errorf("bank transaction date cannot be zero")
	}

	if strings.TrimSpace(t.BankAccount) == "" {
		return fmt.Errorf("bank transaction must reference a bank account")
	}

	if t.Deposit.IsNegative() || t.Withdrawal.IsNegative() {
		return fmt.Errorf("deposit and withdrawal cannot be negative")
	}

	if t.Deposit.IsPositive() == t.Withdrawal.IsPositive() {
		return fmt.Errorf("exactly one of deposit and withdrawal must be positive")
	}

	if t.UnallocatedAmount.IsNegative() {
		return fmt.Errorf("unallocated amount cannot be negative")
	}

	return nil
}

// String returns a string representation of the BankTransaction.
func (t *BankTransaction) String() string {
	return fmt.Sprintf("BankTransaction{ID: %s, Deposit: %s, Withdrawal: %s, Unallocated: %s, Status: %s}",
		t.ID, t.Deposit.String(), t.Withdrawal.String(), t.UnallocatedAmount.String(), t.Status)
}

// VoucherCandidate is the uniform projection every query builder produces.
// Candidates are ephemeral: computed per match request, never persisted.
//
// Rank is additive: 1 (base) plus one for every true match flag, plus one
// more when the voucher identifier occurs in the transaction description
// (NameInDescMatch, set by the merge engine's post-processing boost).
type VoucherCandidate struct {
	Rank          int             `json:"rank"`
	DocType       VoucherKind     `json:"doctype"`
	Name          string          `json:"name"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	ReferenceNo   string          `json:"reference_no"`
	ReferenceDate time.Time       `json:"reference_date"`
	Party         string          `json:"party"`
	PartyType     string          `json:"party_type"`
	PostingDate   time.Time       `json:"posting_date"`
	Currency      string          `json:"currency"`

	ReferenceNumberMatch   bool `json:"reference_number_match"`
	AmountMatch            bool `json:"amount_match"`
	PartyMatch             bool `json:"party_match"`
	UnallocatedAmountMatch bool `json:"unallocated_amount_match,omitempty"`
	NameInDescMatch        bool `json:"name_in_desc_match,omitempty"`
}

// ComputeRank recalculates Rank from the boolean match flags. The base rank
// of any eligible candidate is 1; each flag contributes exactly 1.
func (c *VoucherCandidate) ComputeRank() {
	rank := 1
	for _, flag := range []bool{
		c.ReferenceNumberMatch,
		c.AmountMatch,
		c.PartyMatch,
		c.UnallocatedAmountMatch,
		c.NameInDescMatch,
	} {
		if flag {
			rank++
		}
	}
	c.Rank = rank
}

// String returns a string representation of the VoucherCandidate.
func (c *VoucherCandidate) String() string {
	return fmt.Sprintf("VoucherCandidate{%s %s, rank %d, paid %s}",
		c.DocType, c.Name, c.Rank, c.PaidAmount.String())
}

// DateWindow restricts candidates to a date range. When UseReferenceDate is
// set the window applies to the voucher's reference/cheque date instead of
// its posting date, and result ordering follows the same field.
type DateWindow struct {
	From             time.Time
	To               time.Time
	UseReferenceDate bool
	FromReference    time.Time
	ToReference      time.Time
}

// IsZero reports whether no date bounds were requested.
func (w DateWindow) IsZero() bool {
	if w.UseReferenceDate {
		return w.FromReference.IsZero() && w.ToReference.IsZero()
	}
	return w.From.IsZero() && w.To.IsZero()
}

// AllocationFilter is the parameter set threading through all candidate
// query builders. AutoReconcile marks unattended batch mode: payment-entry
// and journal-entry builders then require the reference number to equal the
// transaction's reference number exactly.
type AllocationFilter struct {
	Amount          decimal.Decimal
	PaymentType     PaymentType
	ReferenceNumber string
	PartyType       string
	Party           string
	BankAccount     string
	AccountCurrency string
	ExactMatch      bool
	ExactPartyMatch bool
	AutoReconcile   bool
	Window          DateWindow
}

// Allocation links one voucher's amount to a bank transaction during
// reconciliation.
type Allocation struct {
	DocType VoucherKind     `json:"payment_doctype"`
	Name    string          `json:"payment_name"`
	Amount  decimal.Decimal `json:"amount"`
}

// Validate performs basic validation on the Allocation.
func (a *Allocation) Validate() error {
	if a.DocType == "" {
		return fmt.Errorf("allocation voucher kind cannot be empty")
	}

	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("allocation voucher name cannot be empty")
	}

	if !a.Amount.IsPositive() {
		return fmt.Errorf("allocation amount must be positive")
	}

	return nil
}
