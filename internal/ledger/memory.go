package ledger

import (
	"context"
	"sort"
	"sync"

	"bank-reconciliation-service/internal/models"
	apperrors "bank-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory Store implementation. It backs the package
// tests and serves as the reference for the filtering semantics the SQLite
// store expresses in SQL. Rows are kept in insertion order; date-windowed
// fetches sort ascending by the filtering date field, everything else
// preserves insertion order.
type MemoryStore struct {
	mu sync.Mutex

	bankAccounts map[string]*BankAccount
	accounts     map[string]*Account

	transactions  []*models.BankTransaction
	transactionIx map[string]*models.BankTransaction

	paymentEntries   []*PaymentEntry
	journalEntries   []*JournalEntry
	salesInvoices    []*SalesInvoice
	purchaseInvoices []*PurchaseInvoice
	disbursements    []*LoanDisbursement
	repayments       []*LoanRepayment

	allocations []allocationRow
}

// allocationRow records one applied reconciliation allocation.
type allocationRow struct {
	docType       models.VoucherKind
	voucherName   string
	glAccount     string
	transactionID string
	amount        decimal.Decimal
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bankAccounts:  make(map[string]*BankAccount),
		accounts:      make(map[string]*Account),
		transactionIx: make(map[string]*models.BankTransaction),
	}
}

// AddBankAccount registers a bank account and its GL account.
func (s *MemoryStore) AddBankAccount(ba *BankAccount, acc *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bankAccounts[ba.Name] = ba
	if acc != nil {
		s.accounts[acc.Name] = acc
	}
}

// AddAccount registers a general-ledger account.
func (s *MemoryStore) AddAccount(acc *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.Name] = acc
}

// AddPaymentEntry inserts a payment entry voucher.
func (s *MemoryStore) AddPaymentEntry(entry *PaymentEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentEntries = append(s.paymentEntries, entry)
}

// AddJournalEntry inserts a journal entry voucher.
func (s *MemoryStore) AddJournalEntry(entry *JournalEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journalEntries = append(s.journalEntries, entry)
}

// AddSalesInvoice inserts a sales invoice voucher.
func (s *MemoryStore) AddSalesInvoice(inv *SalesInvoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.salesInvoices = append(s.salesInvoices, inv)
}

// AddPurchaseInvoice inserts a purchase invoice voucher.
func (s *MemoryStore) AddPurchaseInvoice(inv *PurchaseInvoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchaseInvoices = append(s.purchaseInvoices, inv)
}

// AddLoanDisbursement inserts a loan disbursement voucher.
func (s *MemoryStore) AddLoanDisbursement(ld *LoanDisbursement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disbursements = append(s.disbursements, ld)
}

// AddLoanRepayment inserts a loan repayment voucher.
func (s *MemoryStore) AddLoanRepayment(lr *LoanRepayment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repayments = append(s.repayments, lr)
}

func (s *MemoryStore) BankAccount(ctx context.Context, name string) (*BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ba, ok := s.bankAccounts[name]
	if !ok {
		return nil, apperrors.NotFoundError(apperrors.CodeAccountNotFound, "bank account", name)
	}
	return ba, nil
}

func (s *MemoryStore) Account(ctx context.Context, name string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[name]
	if !ok {
		return nil, apperrors.NotFoundError(apperrors.CodeAccountNotFound, "account", name)
	}
	return acc, nil
}

func (s *MemoryStore) GetBankTransaction(ctx context.Context, id string) (*models.BankTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionIx[id]
	if !ok {
		return nil, apperrors.NotFoundError(apperrors.CodeTransactionNotFound, "bank transaction", id)
	}
	copied := *tx
	return &copied, nil
}

func (s *MemoryStore) BankTransactions(ctx context.Context, bankAccount string, dates DateFilter) ([]*models.BankTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.BankTransaction
	for _, tx := range s.transactions {
		if tx.BankAccount != bankAccount || !tx.IsMatchable() {
			continue
		}
		if !dates.Contains(tx.Date) {
			continue
		}
		copied := *tx
		result = append(result, &copied)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

func (s *MemoryStore) PaymentEntries(ctx context.Context, q PaymentEntryQuery) ([]*PaymentEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*PaymentEntry
	for _, pe := range s.paymentEntries {
		if pe.DocStatus != models.DocStatusSubmitted || pe.ClearanceDate != nil {
			continue
		}
		if !paymentTypeAllowed(pe.PaymentType, q.PaymentTypes) {
			continue
		}
		account := pe.PaidTo
		if q.Side == SidePaidFrom {
			account = pe.PaidFrom
		}
		if account != q.Account {
			continue
		}
		if !q.Amount.Matches(pe.PaidAmount) {
			continue
		}
		if q.ReferenceNo != nil && pe.ReferenceNo != *q.ReferenceNo {
			continue
		}
		if q.Party != nil && (pe.Party == "" || pe.PartyType != q.Party.Type || pe.Party != q.Party.Name) {
			continue
		}
		date := pe.PostingDate
		if q.ByReferenceDate {
			date = pe.ReferenceDate
		}
		if !q.Dates.Contains(date) {
			continue
		}
		result = append(result, pe)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if q.ByReferenceDate {
			return result[i].ReferenceDate.Before(result[j].ReferenceDate)
		}
		return result[i].PostingDate.Before(result[j].PostingDate)
	})
	return result, nil
}

func (s *MemoryStore) JournalEntryLines(ctx context.Context, q JournalEntryQuery) ([]*JournalEntryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*JournalEntryRow
	for _, je := range s.journalEntries {
		if je.DocStatus != models.DocStatusSubmitted || je.ClearanceDate != nil {
			continue
		}
		if je.VoucherType == "Opening Entry" {
			continue
		}
		date := je.PostingDate
		if q.ByReferenceDate {
			date = je.ChequeDate
		}
		if !q.Dates.Contains(date) {
			continue
		}
		if q.ChequeNo != nil && je.ChequeNo != *q.ChequeNo {
			continue
		}
		for _, line := range je.Lines {
			if line.Account != q.Account {
				continue
			}
			amount := line.Credit
			if q.Side == SideDebit {
				amount = line.Debit
			}
			if !q.Amount.Matches(amount) {
				continue
			}
			result = append(result, &JournalEntryRow{
				Name:            je.Name,
				PostingDate:     je.PostingDate,
				ChequeNo:        je.ChequeNo,
				ChequeDate:      je.ChequeDate,
				PayToRecdFrom:   je.PayToRecdFrom,
				PartyType:       line.PartyType,
				Amount:          amount,
				AccountCurrency: line.AccountCurrency,
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if q.ByReferenceDate {
			return result[i].ChequeDate.Before(result[j].ChequeDate)
		}
		return result[i].PostingDate.Before(result[j].PostingDate)
	})
	return result, nil
}

func (s *MemoryStore) PaidSalesInvoices(ctx context.Context, q PaidInvoiceQuery) ([]*SalesInvoicePaymentRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*SalesInvoicePaymentRow
	for _, si := range s.salesInvoices {
		if si.DocStatus != models.DocStatusSubmitted {
			continue
		}
		if si.Currency != q.Currency {
			continue
		}
		if q.Party != nil && si.Customer != *q.Party {
			continue
		}
		for _, payment := range si.Payments {
			if payment.ClearanceDate != nil || payment.Account != q.Account {
				continue
			}
			if !q.Amount.Matches(payment.Amount) {
				continue
			}
			result = append(result, &SalesInvoicePaymentRow{
				Name:        si.Name,
				Customer:    si.Customer,
				PostingDate: si.PostingDate,
				Currency:    si.Currency,
				Amount:      payment.Amount,
			})
		}
	}
	return result, nil
}

func (s *MemoryStore) UnpaidSalesInvoices(ctx context.Context, q UnpaidInvoiceQuery) ([]*SalesInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*SalesInvoice
	for _, si := range s.salesInvoices {
		if si.DocStatus != models.DocStatusSubmitted || si.IsReturn {
			continue
		}
		if !si.OutstandingAmount.IsPositive() {
			continue
		}
		if si.Currency != q.Currency {
			continue
		}
		if q.GrandTotalEquals != nil && !si.GrandTotal.Equal(*q.GrandTotalEquals) {
			continue
		}
		if q.Party != nil && si.Customer != *q.Party {
			continue
		}
		result = append(result, si)
	}
	return result, nil
}

func (s *MemoryStore) PaidPurchaseInvoices(ctx context.Context, q PaidInvoiceQuery) ([]*PurchaseInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*PurchaseInvoice
	for _, pi := range s.purchaseInvoices {
		if pi.DocStatus != models.DocStatusSubmitted || !pi.IsPaid || pi.ClearanceDate != nil {
			continue
		}
		if pi.CashBankAccount != q.Account {
			continue
		}
		if pi.Currency != q.Currency {
			continue
		}
		if !q.Amount.Matches(pi.PaidAmount) {
			continue
		}
		if q.Party != nil && pi.Supplier != *q.Party {
			continue
		}
		result = append(result, pi)
	}
	return result, nil
}

func (s *MemoryStore) UnpaidPurchaseInvoices(ctx context.Context, q UnpaidInvoiceQuery) ([]*PurchaseInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*PurchaseInvoice
	for _, pi := range s.purchaseInvoices {
		if pi.DocStatus != models.DocStatusSubmitted || pi.IsReturn {
			continue
		}
		if !pi.OutstandingAmount.IsPositive() {
			continue
		}
		if pi.Currency != q.Currency {
			continue
		}
		if q.GrandTotalEquals != nil && !pi.GrandTotal.Equal(*q.GrandTotalEquals) {
			continue
		}
		if q.Party != nil && pi.Supplier != *q.Party {
			continue
		}
		result = append(result, pi)
	}
	return result, nil
}

func (s *MemoryStore) LoanDisbursements(ctx context.Context, q LoanQuery) ([]*LoanDisbursement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*LoanDisbursement
	for _, ld := range s.disbursements {
		if ld.DocStatus != models.DocStatusSubmitted || ld.ClearanceDate != nil {
			continue
		}
		if ld.DisbursementAccount != q.Account {
			continue
		}
		if !q.Amount.Matches(ld.DisbursedAmount) {
			continue
		}
		result = append(result, ld)
	}
	return result, nil
}

func (s *MemoryStore) LoanRepayments(ctx context.Context, q LoanQuery) ([]*LoanRepayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*LoanRepayment
	for _, lr := range s.repayments {
		if lr.DocStatus != models.DocStatusSubmitted || lr.ClearanceDate != nil || lr.RepayFromSalary {
			continue
		}
		if lr.PaymentAccount != q.Account {
			continue
		}
		if !q.Amount.Matches(lr.AmountPaid) {
			continue
		}
		result = append(result, lr)
	}
	return result, nil
}

func (s *MemoryStore) PeerBankTransactions(ctx context.Context, q PeerTransactionQuery) ([]*models.BankTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.BankTransaction
	for _, tx := range s.transactions {
		if tx.ID == q.ExcludeID || tx.BankAccount != q.BankAccount {
			continue
		}
		if tx.Status == models.StatusReconciled || tx.DocStatus != models.DocStatusSubmitted {
			continue
		}
		amount := tx.Withdrawal
		if q.Deposit {
			amount = tx.Deposit
		}
		if !q.Amount.Matches(amount) {
			continue
		}
		if q.Party != nil && (tx.Party == "" || tx.PartyType != q.Party.Type || tx.Party != q.Party.Name) {
			continue
		}
		copied := *tx
		result = append(result, &copied)
	}
	return result, nil
}

func (s *MemoryStore) TotalAllocated(ctx context.Context, kind models.VoucherKind, name string) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[string]decimal.Decimal)
	for _, row := range s.allocations {
		if row.docType != kind || row.voucherName != name {
			continue
		}
		totals[row.glAccount] = totals[row.glAccount].Add(row.amount)
	}
	return totals, nil
}

func (s *MemoryStore) Reconcile(ctx context.Context, transactionID string, allocations []models.Allocation) (*models.BankTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionIx[transactionID]
	if !ok {
		return nil, apperrors.NotFoundError(apperrors.CodeTransactionNotFound, "bank transaction", transactionID)
	}
	if tx.DocStatus != models.DocStatusSubmitted {
		return nil, apperrors.ConflictError(apperrors.CodeNotSubmitted, transactionID, nil)
	}

	total := decimal.Zero
	for i := range allocations {
		if err := allocations[i].Validate(); err != nil {
			return nil, apperrors.ValidationError(apperrors.CodeInvalidData, "allocations", err.Error())
		}
		if !s.voucherExists(allocations[i].DocType, allocations[i].Name) {
			return nil, apperrors.NotFoundError(apperrors.CodeVoucherNotFound,
				allocations[i].DocType.String(), allocations[i].Name)
		}
		total = total.Add(allocations[i].Amount)
	}

	// Remaining amount is re-validated under the lock; a racing
	// reconciliation that consumed the transaction surfaces as a conflict.
	if total.GreaterThan(tx.UnallocatedAmount) {
		return nil, apperrors.ConflictError(apperrors.CodeOverAllocated, transactionID, nil)
	}

	glAccount := ""
	if ba, ok := s.bankAccounts[tx.BankAccount]; ok {
		glAccount = ba.GLAccount
	}
	for _, alloc := range allocations {
		s.allocations = append(s.allocations, allocationRow{
			docType:       alloc.DocType,
			voucherName:   alloc.Name,
			glAccount:     glAccount,
			transactionID: transactionID,
			amount:        alloc.Amount,
		})
	}

	tx.UnallocatedAmount = tx.UnallocatedAmount.Sub(total)
	switch {
	case IsZeroWithinPrecision(tx.UnallocatedAmount):
		tx.UnallocatedAmount = decimal.Zero
		tx.Status = models.StatusReconciled
	case total.IsPositive():
		tx.Status = models.StatusPartiallyReconciled
	}

	copied := *tx
	return &copied, nil
}

func (s *MemoryStore) CreateBankTransaction(ctx context.Context, tx *models.BankTransaction) error {
	if err := tx.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidData, "bank_transaction", err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *tx
	s.transactions = append(s.transactions, &copied)
	s.transactionIx[copied.ID] = &copied
	return nil
}

func (s *MemoryStore) CreatePaymentEntry(ctx context.Context, entry *PaymentEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentEntries = append(s.paymentEntries, entry)
	return nil
}

func (s *MemoryStore) CreateJournalEntry(ctx context.Context, entry *JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journalEntries = append(s.journalEntries, entry)
	return nil
}

// voucherExists is called with the store lock held.
func (s *MemoryStore) voucherExists(kind models.VoucherKind, name string) bool {
	switch kind {
	case models.KindPaymentEntry:
		for _, pe := range s.paymentEntries {
			if pe.Name == name {
				return true
			}
		}
	case models.KindJournalEntry:
		for _, je := range s.journalEntries {
			if je.Name == name {
				return true
			}
		}
	case models.KindSalesInvoice:
		for _, si := range s.salesInvoices {
			if si.Name == name {
				return true
			}
		}
	case models.KindPurchaseInvoice:
		for _, pi := range s.purchaseInvoices {
			if pi.Name == name {
				return true
			}
		}
	case models.KindLoanDisbursement:
		for _, ld := range s.disbursements {
			if ld.Name == name {
				return true
			}
		}
	case models.KindLoanRepayment:
		for _, lr := range s.repayments {
			if lr.Name == name {
				return true
			}
		}
	case models.KindBankTransaction:
		_, ok := s.transactionIx[name]
		return ok
	}
	return false
}

func paymentTypeAllowed(pt models.PaymentType, allowed []models.PaymentType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if pt == a {
			return true
		}
	}
	return false
}
