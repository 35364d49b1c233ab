// Package matcher implements voucher candidate discovery for bank
// transactions: per-voucher-kind query builders, the builder registry, and
// the merge engine that scores and orders candidates.
package matcher

import (
	"context"

	"bank-reconciliation-service/internal/ledger"
	"bank-reconciliation-service/internal/models"
)

// QueryBuilder produces ranked voucher candidates of one voucher kind for a
// bank transaction. Builders fetch eligible rows through the ledger store and
// compute match flags in memory; a builder returning no rows is not an error.
type QueryBuilder interface {
	// Token is the document-type token that selects this builder.
	Token() string
	Build(ctx context.Context, store ledger.Store, tx *models.BankTransaction, filter models.AllocationFilter) ([]*models.VoucherCandidate, error)
}

func amountFilter(filter models.AllocationFilter) ledger.AmountFilter {
	if filter.ExactMatch {
		return ledger.Exactly(filter.Amount)
	}
	return ledger.AnyPositive()
}

func dateFilter(w models.DateWindow) (ledger.DateFilter, bool) {
	if w.UseReferenceDate {
		return ledger.DateFilter{From: w.FromReference, To: w.ToReference}, true
	}
	return ledger.DateFilter{From: w.From, To: w.To}, false
}

func partyRef(filter models.AllocationFilter) *ledger.PartyRef {
	if !filter.ExactPartyMatch || filter.Party == "" {
		return nil
	}
	return &ledger.PartyRef{Type: filter.PartyType, Name: filter.Party}
}

// referenceMatches reports the reference-number flag: both sides must be
// non-empty, or an empty voucher reference would match every transaction
// imported without one.
func referenceMatches(voucherRef, txRef string) bool {
	return voucherRef != "" && voucherRef == txRef
}

func partyMatches(voucherType, voucherParty string, filter models.AllocationFilter) bool {
	return voucherParty != "" && voucherType == filter.PartyType && voucherParty == filter.Party
}

// PaymentEntryBuilder matches payment entry vouchers. Deposits look at
// entries received into the account (paid_to), withdrawals at entries paid
// out of it (paid_from); internal transfers are eligible in both directions.
type PaymentEntryBuilder struct{}

func (PaymentEntryBuilder) Token() string { return "payment_entry" }

func (PaymentEntryBuilder) Build(ctx context.Context, store ledger.Store, tx *models.BankTransaction, filter models.AllocationFilter) ([]*models.VoucherCandidate, error) {
	dates, byRefDate := dateFilter(filter.Window)
	q := ledger.PaymentEntryQuery{
		Account:         filter.BankAccount,
		Amount:          amountFilter(filter),
		Party:           partyRef(filter),
		Dates:           dates,
		ByReferenceDate: byRefDate,
	}
	if tx.IsDeposit() {
		q.Side = ledger.SidePaidTo
		q.PaymentTypes = []models.PaymentType{models.PaymentTypeReceive, models.PaymentTypeInternalTransfer}
	} else {
		q.Side = ledger.SidePaidFrom
		q.PaymentTypes = []models.PaymentType{models.PaymentTypePay, models.PaymentTypeInternalTransfer}
	}
	if filter.AutoReconcile {
		ref := filter.ReferenceNumber
		q.ReferenceNo = &ref
	}

	entries, err := store.PaymentEntries(ctx, q)
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.VoucherCandidate, 0, len(entries))
	for _, pe := range entries {
		currency := pe.PaidToCurrency
		if tx.IsWithdrawal() {
			currency = pe.PaidFromCurrency
		}
		c := &models.VoucherCandidate{
			DocType:       models.KindPaymentEntry,
			Name:          pe.Name,
			PaidAmount:    pe.PaidAmount,
			ReferenceNo:   pe.ReferenceNo,
			ReferenceDate: pe.ReferenceDate,
			Party:         pe.Party,
			PartyType:     pe.PartyType,
			PostingDate:   pe.PostingDate,
			Currency:      currency,

			ReferenceNumberMatch: referenceMatches(pe.ReferenceNo, filter.ReferenceNumber),
			AmountMatch:          pe.PaidAmount.Equal(filter.Amount),
			PartyMatch:           partyMatches(pe.PartyType, pe.Party, filter),
		}
		c.ComputeRank()
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// JournalEntryBuilder matches journal entry lines posted at the bank-facing
// account: the credit leg for withdrawals, the debit leg for deposits. The
// cheque number plays the reference-number role.
type JournalEntryBuilder struct{}

func (JournalEntryBuilder) Token() string { return "journal_entry" }

func (JournalEntryBuilder) Build(ctx context.Context, store ledger.Store, tx *models.BankTransaction, filter models.AllocationFilter) ([]*models.VoucherCandidate, error) {
	dates, byRefDate := dateFilter(filter.Window)
	q := ledger.JournalEntryQuery{
		Account:         filter.BankAccount,
		Amount:          amountFilter(filter),
		Dates:           dates,
		ByReferenceDate: byRefDate,
	}
	if tx.IsDeposit() {
		q.Side = ledger.SideDebit
	} else {
		q.Side = ledger.SideCredit
	}
	if filter.AutoReconcile {
		ref := filter.ReferenceNumber
		q.ChequeNo = &ref
	}

	rows, err := store.JournalEntryLines(ctx, q)
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.VoucherCandidate, 0, len(rows))
	for _, jr := range rows {
		c := &models.VoucherCandidate{
			DocType:       models.KindJournalEntry,
			Name:          jr.Name,
			PaidAmount:    jr.Amount,
			ReferenceNo:   jr.ChequeNo,
			ReferenceDate: jr.ChequeDate,
			Party:         jr.PayToRecdFrom,
			PartyType:     jr.PartyType,
			PostingDate:   jr.PostingDate,
			Currency:      jr.AccountCurrency,

			ReferenceNumberMatch: referenceMatches(jr.ChequeNo, filter.ReferenceNumber),
			AmountMatch:          jr.Amount.Equal(filter.Amount),
		}
		c.ComputeRank()
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// SalesInvoiceBuilder matches sales invoices recorded with an immediate
// payment at the bank-facing account. Deposits only.
type SalesInvoiceBuilder struct {
	// IncludeUnpaid additionally surfaces outstanding invoices with no
	// linked payment, offered at their outstanding amount.
	IncludeUnpaid bool
}

func (SalesInvoiceBuilder) Token() string { return "sales_invoice" }

func (b SalesInvoiceBuilder) Build(ctx context.Context, store ledger.Store, tx *models.BankTransaction, filter models.AllocationFilter) ([]*models.VoucherCandidate, error) {
	if !tx.IsDeposit() {
		return nil, nil
	}

	var party *string
	if filter.ExactPartyMatch && filter.PartyType == "Customer" && filter.Party != "" {
		p := filter.Party
		party = &p
	}

	rows, err := store.PaidSalesInvoices(ctx, ledger.PaidInvoiceQuery{
		Account:  filter.BankAccount,
		Currency: filter.AccountCurrency,
		Amount:   amountFilter(filter),
		Party:    party,
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.VoucherCandidate, 0, len(rows))
	for _, row := range rows {
		c := &models.VoucherCandidate{
			DocType:     models.KindSalesInvoice,
			Name:        row.Name,
			PaidAmount:  row.Amount,
			Party:       row.Customer,
			PartyType:   "Customer",
			PostingDate: row.PostingDate,
			Currency:    row.Currency,

			AmountMatch: row.Amount.Equal(filter.Amount),
			PartyMatch:  partyMatches("Customer", row.Customer, filter),
		}
		c.ComputeRank()
		candidates = append(candidates, c)
	}

	if b.IncludeUnpaid {
		unpaid, err := b.buildUnpaid(ctx, store, filter, party)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, unpaid...)
	}
	return candidates, nil
}

func (SalesInvoiceBuilder) buildUnpaid(ctx context.Context, store ledger.Store, filter models.AllocationFilter, party *string) ([]*models.VoucherCandidate, error) {
	q := ledger.UnpaidInvoiceQuery{
		Currency: filter.AccountCurrency,
		Party:    party,
	}
	if filter.ExactMatch {
		amount := filter.Amount
		q.GrandTotalEquals = &amount
	}

	invoices, err := store.UnpaidSalesInvoices(ctx, q)
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.VoucherCandidate, 0, len(invoices))
	for _, si := range invoices {
		c := &models.VoucherCandidate{
			DocType:     models.KindSalesInvoice,
			Name:        si.Name,
			PaidAmount:  si.OutstandingAmount,
			Party:       si.Customer,
			PartyType:   "Customer",
			PostingDate: si.PostingDate,
			Currency:    si.Currency,

			AmountMatch: si.GrandTotal.Equal(filter.Amount),
			PartyMatch:  partyMatches("Customer", si.Customer, filter),
		}
		c.ComputeRank()
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// PurchaseInvoiceBuilder matches paid purchase invoices drawn on the
// bank-facing cash account. Withdrawals only.
type PurchaseInvoiceBuilder struct {
	IncludeUnpaid bool
}

func (PurchaseInvoiceBuilder) Token() string { return "purchase_invoice" }

func (b PurchaseInvoiceBuilder) Build(ctx context.Context, store ledger.Store, tx *models.BankTransaction, filter models.AllocationFilter) ([]*models.VoucherCandidate, error) {
	if !tx.IsWithdrawal() {
		return nil, nil
	}

	var party *string
	if filter.ExactPartyMatch && filter.PartyType == "Supplier" && filter.Party != "" {
		p := filter.Party
		party = &p
	}

	invoices, err := store.PaidPurchaseInvoices(ctx, ledger.PaidInvoiceQuery{
		Account:  filter.BankAccount,
		Currency: filter.AccountCurrency,
		Amount:   amountFilter(filter),
		Party:    party,
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.VoucherCandidate, 0, len(invoices))
	for _, pi := range invoices {
		c := &models.VoucherCandidate{
			DocType:       models.KindPurchaseInvoice,
			Name:          pi.Name,
			PaidAmount:    pi.PaidAmount,
			ReferenceNo:   pi.BillNo,
			ReferenceDate: pi.BillDate,
			Party:         pi.Supplier,
			PartyType:     "Supplier",
			PostingDate:   pi.PostingDate,
			Currency:      pi.Currency,

			AmountMatch: pi.PaidAmount.Equal(filter.Amount),
			PartyMatch:  partyMatches("Supplier", pi.Supplier, filter),
		}
		c.ComputeRank()
		candidates = append(candidates, c)
	}

	if b.IncludeUnpaid {
		unpaid, err := b.buildUnpaid(ctx, store, filter, party)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, unpaid...)
	}
	return candidates, nil
}

func (PurchaseInvoiceBuilder) buildUnpaid(ctx context.Context, store ledger.Store, filter models.AllocationFilter, party *string) ([]*models.VoucherCandidate, error) {
	q := ledger.UnpaidInvoiceQuery{
		Currency: filter.AccountCurrency,
		Party:    party,
	}
	if filter.ExactMatch {
		amount := filter.Amount
		q.GrandTotalEquals = &amount
	}

	invoices, err := store.UnpaidPurchaseInvoices(ctx, q)
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.VoucherCandidate, 0, len(invoices))
	for _, pi := range invoices {
		c := &models.VoucherCandidate{
			DocType:       models.KindPurchaseInvoice,
			Name:          pi.Name,
			PaidAmount:    pi.OutstandingAmount,
			ReferenceNo:   pi.BillNo,
			ReferenceDate: pi.BillDate,
			Party:         pi.Supplier,
			PartyType:     "Supplier",
			PostingDate:   pi.PostingDate,
			Currency:      pi.Currency,

			AmountMatch: pi.GrandTotal.Equal(filter.Amount),
			PartyMatch:  partyMatches("Supplier", pi.Supplier, filter),
		}
		c.ComputeRank()
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// LoanDisbursementBuilder matches loan disbursements paid out of the
// bank-facing account. Withdrawals only; loan matching applies no date
// window, and the amount condition is eligibility only, never a rank flag.
type LoanDisbursementBuilder struct{}

func (LoanDisbursementBuilder) Token() string { return "loan_disbursement" }

func (LoanDisbursementBuilder) Build(ctx context.Context, store ledger.Store, tx *models.BankTransaction, filter models.AllocationFilter) ([]*models.VoucherCandidate, error) {
	if !tx.IsWithdrawal() {
		return nil, nil
	}

	loans, err := store.LoanDisbursements(ctx, ledger.LoanQuery{
		Account: filter.BankAccount,
		Amount:  amountFilter(filter),
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.VoucherCandidate, 0, len(loans))
	for _, ld := range loans {
		c := &models.VoucherCandidate{
			DocType:       models.KindLoanDisbursement,
			Name:          ld.Name,
			PaidAmount:    ld.DisbursedAmount,
			ReferenceNo:   ld.ReferenceNumber,
			ReferenceDate: ld.ReferenceDate,
			Party:         ld.Applicant,
			PartyType:     ld.ApplicantType,
			PostingDate:   ld.DisbursementDate,
			Currency:      filter.AccountCurrency,

			ReferenceNumberMatch: referenceMatches(ld.ReferenceNumber, filter.ReferenceNumber),
			PartyMatch:           partyMatches(ld.ApplicantType, ld.Applicant, filter),
		}
		c.ComputeRank()
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// LoanRepaymentBuilder matches loan repayments received into the bank-facing
// account. Deposits only; same ranking rules as disbursements.
type LoanRepaymentBuilder struct{}

func (LoanRepaymentBuilder) Token() string { return "loan_repayment" }

func (LoanRepaymentBuilder) Build(ctx context.Context, store ledger.Store, tx *models.BankTransaction, filter models.AllocationFilter) ([]*models.VoucherCandidate, error) {
	if !tx.IsDeposit() {
		return nil, nil
	}

	loans, err := store.LoanRepayments(ctx, ledger.LoanQuery{
		Account: filter.BankAccount,
		Amount:  amountFilter(filter),
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.VoucherCandidate, 0, len(loans))
	for _, lr := range loans {
		c := &models.VoucherCandidate{
			DocType:       models.KindLoanRepayment,
			Name:          lr.Name,
			PaidAmount:    lr.AmountPaid,
			ReferenceNo:   lr.ReferenceNumber,
			ReferenceDate: lr.ReferenceDate,
			Party:         lr.Applicant,
			PartyType:     lr.ApplicantType,
			PostingDate:   lr.PostingDate,
			Currency:      filter.AccountCurrency,

			ReferenceNumberMatch: referenceMatches(lr.ReferenceNumber, filter.ReferenceNumber),
			PartyMatch:           partyMatches(lr.ApplicantType, lr.Applicant, filter),
		}
		c.ComputeRank()
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// BankTransactionBuilder matches peer bank transactions on the same bank
// account: opposite-direction, unreconciled lines that could be the other
// leg of an internal movement. It is the only builder contributing the
// unallocated-amount flag.
type BankTransactionBuilder struct{}

func (BankTransactionBuilder) Token() string { return "bank_transaction" }

func (BankTransactionBuilder) Build(ctx context.Context, store ledger.Store, tx *models.BankTransaction, filter models.AllocationFilter) ([]*models.VoucherCandidate, error) {
	peers, err := store.PeerBankTransactions(ctx, ledger.PeerTransactionQuery{
		BankAccount: tx.BankAccount,
		ExcludeID:   tx.ID,
		Deposit:     tx.IsWithdrawal(),
		Amount:      amountFilter(filter),
		Party:       partyRef(filter),
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.VoucherCandidate, 0, len(peers))
	for _, peer := range peers {
		amount := peer.Withdrawal
		if tx.IsWithdrawal() {
			amount = peer.Deposit
		}
		c := &models.VoucherCandidate{
			DocType:       models.KindBankTransaction,
			Name:          peer.ID,
			PaidAmount:    peer.UnallocatedAmount,
			ReferenceNo:   peer.ReferenceNumber,
			ReferenceDate: peer.Date,
			Party:         peer.Party,
			PartyType:     peer.PartyType,
			PostingDate:   peer.Date,
			Currency:      peer.Currency,

			ReferenceNumberMatch:   referenceMatches(peer.ReferenceNumber, filter.ReferenceNumber),
			AmountMatch:            amount.Equal(filter.Amount),
			PartyMatch:             partyMatches(peer.PartyType, peer.Party, filter),
			UnallocatedAmountMatch: peer.UnallocatedAmount.Equal(filter.Amount),
		}
		c.ComputeRank()
		candidates = append(candidates, c)
	}
	return candidates, nil
}
