package matcher

import (
	"context"
	"testing"
	"time"

	"bank-reconciliation-service/internal/ledger"
	"bank-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

const testGL = "Bank - HDFC"

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func newTestStore(t *testing.T) *ledger.MemoryStore {
	t.Helper()
	store := ledger.NewMemoryStore()
	store.AddBankAccount(
		&ledger.BankAccount{Name: "HDFC - Main", GLAccount: testGL, Company: "Acme"},
		&ledger.Account{Name: testGL, Company: "Acme", Currency: "INR", AccountType: "Bank"},
	)
	return store
}

func depositTransaction(t *testing.T, store *ledger.MemoryStore, id string, amount int64, ref, description string) *models.BankTransaction {
	t.Helper()
	tx := &models.BankTransaction{
		ID:                id,
		Date:              day(15),
		Deposit:           decimal.NewFromInt(amount),
		Currency:          "INR",
		Description:       description,
		BankAccount:       "HDFC - Main",
		UnallocatedAmount: decimal.NewFromInt(amount),
		ReferenceNumber:   ref,
		Status:            models.StatusUnreconciled,
		DocStatus:         models.DocStatusSubmitted,
	}
	if err := store.CreateBankTransaction(context.Background(), tx); err != nil {
		t.Fatalf("CreateBankTransaction: %v", err)
	}
	return tx
}

func withdrawalTransaction(t *testing.T, store *ledger.MemoryStore, id string, amount int64) *models.BankTransaction {
	t.Helper()
	tx := &models.BankTransaction{
		ID:                id,
		Date:              day(15),
		Withdrawal:        decimal.NewFromInt(amount),
		Currency:          "INR",
		BankAccount:       "HDFC - Main",
		UnallocatedAmount: decimal.NewFromInt(amount),
		Status:            models.StatusUnreconciled,
		DocStatus:         models.DocStatusSubmitted,
	}
	if err := store.CreateBankTransaction(context.Background(), tx); err != nil {
		t.Fatalf("CreateBankTransaction: %v", err)
	}
	return tx
}

func filterFor(tx *models.BankTransaction) models.AllocationFilter {
	return models.AllocationFilter{
		Amount:          tx.UnallocatedAmount,
		PaymentType:     tx.PaymentDirection(),
		ReferenceNumber: tx.ReferenceNumber,
		PartyType:       tx.PartyType,
		Party:           tx.Party,
		BankAccount:     testGL,
		AccountCurrency: "INR",
	}
}

func TestPaymentEntryBuilderRanks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := depositTransaction(t, store, "BTX-0001", 150, "UTR123", "")
	tx.PartyType = "Customer"
	tx.Party = "Globex"

	store.AddPaymentEntry(&ledger.PaymentEntry{
		Name: "PAY-FULL", PaymentType: models.PaymentTypeReceive, PostingDate: day(10),
		ReferenceNo: "UTR123", PartyType: "Customer", Party: "Globex",
		PaidTo: testGL, PaidToCurrency: "INR",
		PaidAmount: decimal.NewFromInt(150), DocStatus: models.DocStatusSubmitted,
	})
	store.AddPaymentEntry(&ledger.PaymentEntry{
		Name: "PAY-AMOUNT", PaymentType: models.PaymentTypeReceive, PostingDate: day(11),
		PaidTo: testGL, PaidToCurrency: "INR",
		PaidAmount: decimal.NewFromInt(150), DocStatus: models.DocStatusSubmitted,
	})
	store.AddPaymentEntry(&ledger.PaymentEntry{
		Name: "PAY-LOOSE", PaymentType: models.PaymentTypeReceive, PostingDate: day(12),
		PaidTo: testGL, PaidToCurrency: "INR",
		PaidAmount: decimal.NewFromInt(72), DocStatus: models.DocStatusSubmitted,
	})

	candidates, err := PaymentEntryBuilder{}.Build(ctx, store, tx, filterFor(tx))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(candidates))
	}

	ranks := map[string]int{}
	for _, c := range candidates {
		ranks[c.Name] = c.Rank
	}
	// base 1 + reference + amount + party
	if ranks["PAY-FULL"] != 4 {
		t.Errorf("PAY-FULL rank = %d, want 4", ranks["PAY-FULL"])
	}
	if ranks["PAY-AMOUNT"] != 2 {
		t.Errorf("PAY-AMOUNT rank = %d, want 2", ranks["PAY-AMOUNT"])
	}
	if ranks["PAY-LOOSE"] != 1 {
		t.Errorf("PAY-LOOSE rank = %d, want 1", ranks["PAY-LOOSE"])
	}
}

func TestPaymentEntryBuilderEmptyReferenceNeverMatches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Transaction imported without a reference number.
	tx := depositTransaction(t, store, "BTX-0002", 100, "", "")
	store.AddPaymentEntry(&ledger.PaymentEntry{
		Name: "PAY-NOREF", PaymentType: models.PaymentTypeReceive, PostingDate: day(10),
		PaidTo: testGL, PaidToCurrency: "INR",
		PaidAmount: decimal.NewFromInt(100), DocStatus: models.DocStatusSubmitted,
	})

	candidates, err := PaymentEntryBuilder{}.Build(ctx, store, tx, filterFor(tx))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].ReferenceNumberMatch {
		t.Error("empty references must not count as a reference match")
	}
}

func TestPaymentEntryBuilderAutoReconcileGate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := depositTransaction(t, store, "BTX-0003", 150, "UTR123", "")
	store.AddPaymentEntry(&ledger.PaymentEntry{
		Name: "PAY-EXACT", PaymentType: models.PaymentTypeReceive, PostingDate: day(10),
		ReferenceNo: "UTR123", PaidTo: testGL, PaidToCurrency: "INR",
		PaidAmount: decimal.NewFromInt(150), DocStatus: models.DocStatusSubmitted,
	})
	store.AddPaymentEntry(&ledger.PaymentEntry{
		Name: "PAY-OTHER-REF", PaymentType: models.PaymentTypeReceive, PostingDate: day(10),
		ReferenceNo: "UTR999", PaidTo: testGL, PaidToCurrency: "INR",
		PaidAmount: decimal.NewFromInt(150), DocStatus: models.DocStatusSubmitted,
	})

	filter := filterFor(tx)
	filter.AutoReconcile = true

	candidates, err := PaymentEntryBuilder{}.Build(ctx, store, tx, filter)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Name != "PAY-EXACT" {
		t.Fatalf("auto mode must only admit exact reference matches, got %v", candidates)
	}
}

func TestDirectionGating(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	deposit := depositTransaction(t, store, "BTX-IN", 100, "", "")
	withdrawal := withdrawalTransaction(t, store, "BTX-OUT", 100)

	store.AddLoanDisbursement(&ledger.LoanDisbursement{
		Name: "LD-1", DisbursementDate: day(5), DisbursedAmount: decimal.NewFromInt(100),
		DisbursementAccount: testGL, DocStatus: models.DocStatusSubmitted,
	})
	store.AddLoanRepayment(&ledger.LoanRepayment{
		Name: "LR-1", PostingDate: day(5), AmountPaid: decimal.NewFromInt(100),
		PaymentAccount: testGL, DocStatus: models.DocStatusSubmitted,
	})

	if got, _ := (LoanDisbursementBuilder{}).Build(ctx, store, deposit, filterFor(deposit)); len(got) != 0 {
		t.Errorf("loan disbursements must not match deposits, got %v", got)
	}
	if got, _ := (LoanDisbursementBuilder{}).Build(ctx, store, withdrawal, filterFor(withdrawal)); len(got) != 1 {
		t.Errorf("loan disbursement missing for withdrawal, got %v", got)
	}
	if got, _ := (LoanRepaymentBuilder{}).Build(ctx, store, withdrawal, filterFor(withdrawal)); len(got) != 0 {
		t.Errorf("loan repayments must not match withdrawals, got %v", got)
	}
	if got, _ := (LoanRepaymentBuilder{}).Build(ctx, store, deposit, filterFor(deposit)); len(got) != 1 {
		t.Errorf("loan repayment missing for deposit, got %v", got)
	}
	if got, _ := (SalesInvoiceBuilder{}).Build(ctx, store, withdrawal, filterFor(withdrawal)); len(got) != 0 {
		t.Errorf("sales invoices must not match withdrawals, got %v", got)
	}
	if got, _ := (PurchaseInvoiceBuilder{}).Build(ctx, store, deposit, filterFor(deposit)); len(got) != 0 {
		t.Errorf("purchase invoices must not match deposits, got %v", got)
	}
}

func TestLoanBuilderIgnoresDateWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := withdrawalTransaction(t, store, "BTX-LOAN", 100)
	store.AddLoanDisbursement(&ledger.LoanDisbursement{
		Name: "LD-OLD", DisbursementDate: day(1), DisbursedAmount: decimal.NewFromInt(100),
		DisbursementAccount: testGL, DocStatus: models.DocStatusSubmitted,
	})

	filter := filterFor(tx)
	filter.Window = models.DateWindow{From: day(20), To: day(25)}

	got, err := LoanDisbursementBuilder{}.Build(ctx, store, tx, filter)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("loan matching must ignore the date window, got %v", got)
	}
}

func TestBankTransactionBuilderUnallocatedFlag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := withdrawalTransaction(t, store, "BTX-W", 75)
	depositTransaction(t, store, "BTX-PEER", 75, "", "")

	candidates, err := BankTransactionBuilder{}.Build(ctx, store, tx, filterFor(tx))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	c := candidates[0]
	if !c.AmountMatch || !c.UnallocatedAmountMatch {
		t.Errorf("expected amount and unallocated flags, got %+v", c)
	}
	// base 1 + amount + unallocated
	if c.Rank != 3 {
		t.Errorf("rank = %d, want 3", c.Rank)
	}
	if !c.ReferenceDate.Equal(day(15)) {
		t.Errorf("ReferenceDate = %v, want the peer transaction date", c.ReferenceDate)
	}
}

func TestParseTokens(t *testing.T) {
	r := NewRegistry()

	sel, err := r.ParseTokens(nil)
	if err != nil {
		t.Fatalf("ParseTokens(nil): %v", err)
	}
	if len(sel.Builders) != len(DefaultTokens) {
		t.Errorf("default selection has %d builders, want %d", len(sel.Builders), len(DefaultTokens))
	}

	sel, err = r.ParseTokens([]string{TokenPaymentEntry, TokenExactMatch, TokenExactPartyMatch})
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	if len(sel.Builders) != 1 || !sel.ExactMatch || !sel.ExactPartyMatch {
		t.Errorf("modifier parsing failed: %+v", sel)
	}

	if _, err := r.ParseTokens([]string{"sales_order"}); err == nil {
		t.Error("unknown token must be rejected")
	}
}

func TestParseTokensExternalBuildersFirst(t *testing.T) {
	r := NewRegistry()
	r.Register(stubBuilder{token: "payroll_entry"})

	sel, err := r.ParseTokens([]string{TokenPaymentEntry, "payroll_entry"})
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	if len(sel.Builders) != 2 {
		t.Fatalf("got %d builders, want 2", len(sel.Builders))
	}
	if sel.Builders[0].Token() != "payroll_entry" {
		t.Errorf("external builder must run first, got %s", sel.Builders[0].Token())
	}
}

type stubBuilder struct {
	token      string
	candidates []*models.VoucherCandidate
}

func (s stubBuilder) Token() string { return s.token }

func (s stubBuilder) Build(ctx context.Context, store ledger.Store, tx *models.BankTransaction, filter models.AllocationFilter) ([]*models.VoucherCandidate, error) {
	return s.candidates, nil
}

func TestEngineSortsByRankDescending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := depositTransaction(t, store, "BTX-SORT", 150, "UTR123", "")
	store.AddPaymentEntry(&ledger.PaymentEntry{
		Name: "PAY-LOW", PaymentType: models.PaymentTypeReceive, PostingDate: day(10),
		PaidTo: testGL, PaidToCurrency: "INR",
		PaidAmount: decimal.NewFromInt(60), DocStatus: models.DocStatusSubmitted,
	})
	store.AddPaymentEntry(&ledger.PaymentEntry{
		Name: "PAY-HIGH", PaymentType: models.PaymentTypeReceive, PostingDate: day(11),
		ReferenceNo: "UTR123", PaidTo: testGL, PaidToCurrency: "INR",
		PaidAmount: decimal.NewFromInt(150), DocStatus: models.DocStatusSubmitted,
	})

	engine := NewEngine(store, nil, nil)
	candidates, err := engine.FindCandidates(ctx, MatchRequest{
		TransactionID: tx.ID,
		Tokens:        []string{TokenPaymentEntry},
	})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].Name != "PAY-HIGH" {
		t.Errorf("best candidate = %s, want PAY-HIGH", candidates[0].Name)
	}
	if candidates[0].Rank < candidates[1].Rank {
		t.Errorf("candidates not rank-descending: %d < %d", candidates[0].Rank, candidates[1].Rank)
	}
}

func TestEngineDescriptionBoost(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := depositTransaction(t, store, "BTX-DESC", 90, "", "payment for SINV-0042 and sinv-0099")
	for _, name := range []string{"SINV-0042", "SINV-0099"} {
		store.AddSalesInvoice(&ledger.SalesInvoice{
			Name: name, Customer: "Globex", PostingDate: day(3), Currency: "INR",
			DocStatus: models.DocStatusSubmitted,
			Payments: []ledger.InvoicePaymentRow{
				{Account: testGL, Amount: decimal.NewFromInt(90)},
			},
		})
	}

	engine := NewEngine(store, nil, nil)
	candidates, err := engine.FindCandidates(ctx, MatchRequest{
		TransactionID: tx.ID,
		Tokens:        []string{TokenSalesInvoice},
	})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	boosted := candidates[0]
	if boosted.Name != "SINV-0042" || !boosted.NameInDescMatch {
		t.Errorf("best candidate = %s (boost %v), want boosted SINV-0042",
			boosted.Name, boosted.NameInDescMatch)
	}
	// base 1 + amount + name-in-description
	if boosted.Rank != 3 {
		t.Errorf("rank = %d, want 3", boosted.Rank)
	}
	// The identifier comparison is case-sensitive; "sinv-0099" in the
	// description does not boost SINV-0099.
	if other := candidates[1]; other.NameInDescMatch || other.Rank != 2 {
		t.Errorf("%s: boost %v rank %d, want no boost and rank 2",
			other.Name, other.NameInDescMatch, other.Rank)
	}
}

func TestEngineMatchesAgainstUnallocatedRemainder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Deposit of 150 with 50 already reconciled elsewhere.
	tx := &models.BankTransaction{
		ID:                "BTX-REMAINDER",
		Date:              day(15),
		Deposit:           decimal.NewFromInt(150),
		Currency:          "INR",
		BankAccount:       "HDFC - Main",
		UnallocatedAmount: decimal.NewFromInt(100),
		Status:            models.StatusPartiallyReconciled,
		DocStatus:         models.DocStatusSubmitted,
	}
	if err := store.CreateBankTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateBankTransaction: %v", err)
	}
	store.AddPaymentEntry(&ledger.PaymentEntry{
		Name: "PAY-REM", PaymentType: models.PaymentTypeReceive, PostingDate: day(10),
		PaidTo: testGL, PaidToCurrency: "INR",
		PaidAmount: decimal.NewFromInt(100), DocStatus: models.DocStatusSubmitted,
	})

	engine := NewEngine(store, nil, nil)
	candidates, err := engine.FindCandidates(ctx, MatchRequest{
		TransactionID: tx.ID,
		Tokens:        []string{TokenPaymentEntry, TokenExactMatch},
	})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1 (entry covering the remainder)", len(candidates))
	}
	if !candidates[0].AmountMatch {
		t.Error("amount flag must score against the unallocated remainder, not the full deposit")
	}
}

func TestEngineInvoiceWithPartyAndBoost(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := &models.BankTransaction{
		ID:                "BTX-INV",
		Date:              day(15),
		Deposit:           decimal.NewFromInt(100),
		Currency:          "INR",
		Description:       "NEFT credit SINV-0005 from Initech",
		BankAccount:       "HDFC - Main",
		UnallocatedAmount: decimal.NewFromInt(100),
		ReferenceNumber:   "SINV-0005",
		PartyType:         "Customer",
		Party:             "Initech",
		Status:            models.StatusUnreconciled,
		DocStatus:         models.DocStatusSubmitted,
	}
	if err := store.CreateBankTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateBankTransaction: %v", err)
	}
	store.AddSalesInvoice(&ledger.SalesInvoice{
		Name: "SINV-0005", Customer: "Initech", PostingDate: day(5), Currency: "INR",
		DocStatus: models.DocStatusSubmitted,
		Payments: []ledger.InvoicePaymentRow{
			{Account: testGL, Amount: decimal.NewFromInt(100)},
		},
	})

	engine := NewEngine(store, nil, nil)
	candidates, err := engine.FindCandidates(ctx, MatchRequest{
		TransactionID: tx.ID,
		Tokens:        []string{TokenSalesInvoice},
	})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	c := candidates[0]
	if !c.AmountMatch || !c.PartyMatch || !c.NameInDescMatch {
		t.Errorf("flags = amount %v party %v desc %v, want all true",
			c.AmountMatch, c.PartyMatch, c.NameInDescMatch)
	}
	// base 1 + amount + party + name-in-description
	if c.Rank != 4 {
		t.Errorf("rank = %d, want 4", c.Rank)
	}
}

func TestEngineEqualRanksKeepEmissionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := depositTransaction(t, store, "BTX-STABLE", 500, "", "")
	for _, name := range []string{"PAY-A", "PAY-B", "PAY-C"} {
		store.AddPaymentEntry(&ledger.PaymentEntry{
			Name: name, PaymentType: models.PaymentTypeReceive, PostingDate: day(10),
			PaidTo: testGL, PaidToCurrency: "INR",
			PaidAmount: decimal.NewFromInt(42), DocStatus: models.DocStatusSubmitted,
		})
	}

	engine := NewEngine(store, nil, nil)
	candidates, err := engine.FindCandidates(ctx, MatchRequest{
		TransactionID: tx.ID,
		Tokens:        []string{TokenPaymentEntry},
	})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	got := []string{}
	for _, c := range candidates {
		got = append(got, c.Name)
	}
	want := []string{"PAY-A", "PAY-B", "PAY-C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order changed for equal ranks: got %v, want %v", got, want)
		}
	}
}

func TestSubtractAllocations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := depositTransaction(t, store, "BTX-SUB", 150, "", "")
	store.AddPaymentEntry(&ledger.PaymentEntry{
		Name: "PAY-PART", PaymentType: models.PaymentTypeReceive, PostingDate: day(10),
		PaidTo: testGL, PaidToCurrency: "INR",
		PaidAmount: decimal.NewFromInt(150), DocStatus: models.DocStatusSubmitted,
	})

	// Consume 40 of the entry against another transaction.
	other := depositTransaction(t, store, "BTX-OTHER", 40, "", "")
	if _, err := store.Reconcile(ctx, other.ID, []models.Allocation{{
		DocType: models.KindPaymentEntry, Name: "PAY-PART", Amount: decimal.NewFromInt(40),
	}}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	candidates, err := PaymentEntryBuilder{}.Build(ctx, store, tx, filterFor(tx))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := SubtractAllocations(ctx, store, testGL, candidates); err != nil {
		t.Fatalf("SubtractAllocations: %v", err)
	}
	if !candidates[0].PaidAmount.Equal(decimal.NewFromInt(110)) {
		t.Errorf("PaidAmount = %v, want 110", candidates[0].PaidAmount)
	}

	// Allocations at a different GL account must not reduce the amount.
	fresh, err := PaymentEntryBuilder{}.Build(ctx, store, tx, filterFor(tx))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := SubtractAllocations(ctx, store, "Bank - Other", fresh); err != nil {
		t.Fatalf("SubtractAllocations: %v", err)
	}
	if !fresh[0].PaidAmount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("PaidAmount = %v, want 150 (foreign account allocations ignored)", fresh[0].PaidAmount)
	}
}

func TestSubtractAllocationsAppliesToInvoices(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := depositTransaction(t, store, "BTX-INV-SUB", 100, "", "")
	store.AddSalesInvoice(&ledger.SalesInvoice{
		Name: "SINV-PART", Customer: "Globex", PostingDate: day(3), Currency: "INR",
		DocStatus: models.DocStatusSubmitted,
		Payments: []ledger.InvoicePaymentRow{
			{Account: testGL, Amount: decimal.NewFromInt(100)},
		},
	})

	// 40 of the invoice already reconciled against another bank line.
	other := depositTransaction(t, store, "BTX-INV-OTHER", 40, "", "")
	if _, err := store.Reconcile(ctx, other.ID, []models.Allocation{{
		DocType: models.KindSalesInvoice, Name: "SINV-PART", Amount: decimal.NewFromInt(40),
	}}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	candidates, err := SalesInvoiceBuilder{}.Build(ctx, store, tx, filterFor(tx))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := SubtractAllocations(ctx, store, testGL, candidates); err != nil {
		t.Fatalf("SubtractAllocations: %v", err)
	}
	if !candidates[0].PaidAmount.Equal(decimal.NewFromInt(60)) {
		t.Errorf("PaidAmount = %v, want 60 (remainder after prior allocation)", candidates[0].PaidAmount)
	}
}

func TestSubtractAllocationsAllowsNegativeRemainder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := depositTransaction(t, store, "BTX-NEG", 100, "", "")
	store.AddPaymentEntry(&ledger.PaymentEntry{
		Name: "PAY-OVER", PaymentType: models.PaymentTypeReceive, PostingDate: day(10),
		PaidTo: testGL, PaidToCurrency: "INR",
		PaidAmount: decimal.NewFromInt(100), DocStatus: models.DocStatusSubmitted,
	})

	for _, alloc := range []struct {
		txID   string
		amount int64
	}{
		{"BTX-NEG-A", 60},
		{"BTX-NEG-B", 50},
	} {
		other := depositTransaction(t, store, alloc.txID, alloc.amount, "", "")
		if _, err := store.Reconcile(ctx, other.ID, []models.Allocation{{
			DocType: models.KindPaymentEntry, Name: "PAY-OVER", Amount: decimal.NewFromInt(alloc.amount),
		}}); err != nil {
			t.Fatalf("Reconcile %s: %v", alloc.txID, err)
		}
	}

	candidates, err := PaymentEntryBuilder{}.Build(ctx, store, tx, filterFor(tx))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := SubtractAllocations(ctx, store, testGL, candidates); err != nil {
		t.Fatalf("SubtractAllocations: %v", err)
	}
	// 110 allocated against a 100 entry; the remainder is not clamped.
	if !candidates[0].PaidAmount.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("PaidAmount = %v, want -10 (unclamped)", candidates[0].PaidAmount)
	}
}

func TestSubtractAllocationsNoPriorAllocationsIsNoop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := depositTransaction(t, store, "BTX-NOOP", 100, "", "")
	store.AddPaymentEntry(&ledger.PaymentEntry{
		Name: "PAY-FRESH", PaymentType: models.PaymentTypeReceive, PostingDate: day(10),
		PaidTo: testGL, PaidToCurrency: "INR",
		PaidAmount: decimal.NewFromInt(100), DocStatus: models.DocStatusSubmitted,
	})

	candidates, err := PaymentEntryBuilder{}.Build(ctx, store, tx, filterFor(tx))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := SubtractAllocations(ctx, store, testGL, candidates); err != nil {
			t.Fatalf("SubtractAllocations: %v", err)
		}
		if !candidates[0].PaidAmount.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("pass %d: PaidAmount = %v, want 100", i, candidates[0].PaidAmount)
		}
	}
}
