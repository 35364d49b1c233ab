package ledger

import (
	"context"
	"testing"

	"bank-reconciliation-service/internal/models"
	apperrors "bank-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	err = store.CreateBankAccount(context.Background(),
		&BankAccount{Name: "HDFC - Main", GLAccount: testGL, Company: "Acme"},
		&Account{Name: testGL, Company: "Acme", Currency: "INR", AccountType: "Bank"},
	)
	if err != nil {
		t.Fatalf("CreateBankAccount: %v", err)
	}
	return store
}

func TestSQLiteBankTransactionRoundtrip(t *testing.T) {
	store := newSQLiteTestStore(t)
	ctx := context.Background()

	tx := &models.BankTransaction{
		ID:                "BTX-0001",
		Date:              day(15),
		Deposit:           decimal.RequireFromString("150.25"),
		Currency:          "INR",
		Description:       "invoice payment",
		BankAccount:       "HDFC - Main",
		Company:           "Acme",
		UnallocatedAmount: decimal.RequireFromString("150.25"),
		ReferenceNumber:   "UTR123",
		Status:            models.StatusUnreconciled,
		DocStatus:         models.DocStatusSubmitted,
	}
	if err := store.CreateBankTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateBankTransaction: %v", err)
	}

	got, err := store.GetBankTransaction(ctx, "BTX-0001")
	if err != nil {
		t.Fatalf("GetBankTransaction: %v", err)
	}
	if !got.Deposit.Equal(tx.Deposit) || got.ReferenceNumber != "UTR123" {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if !got.Date.Equal(tx.Date) {
		t.Errorf("Date = %v, want %v", got.Date, tx.Date)
	}

	if _, err := store.GetBankTransaction(ctx, "BTX-MISSING"); !apperrors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestSQLitePaymentEntryQuery(t *testing.T) {
	store := newSQLiteTestStore(t)
	ctx := context.Background()

	entries := []*PaymentEntry{
		{
			Name: "PAY-LATE", PaymentType: models.PaymentTypeReceive, PostingDate: day(12),
			ReferenceNo: "UTR1", PaidTo: testGL, PaidAmount: decimal.NewFromInt(150),
			DocStatus: models.DocStatusSubmitted,
		},
		{
			Name: "PAY-EARLY", PaymentType: models.PaymentTypeReceive, PostingDate: day(5),
			PaidTo: testGL, PaidAmount: decimal.NewFromInt(70),
			DocStatus: models.DocStatusSubmitted,
		},
		{
			Name: "PAY-DRAFT", PaymentType: models.PaymentTypeReceive, PostingDate: day(6),
			PaidTo: testGL, PaidAmount: decimal.NewFromInt(70),
			DocStatus: models.DocStatusDraft,
		},
	}
	for _, pe := range entries {
		if err := store.CreatePaymentEntry(ctx, pe); err != nil {
			t.Fatalf("CreatePaymentEntry(%s): %v", pe.Name, err)
		}
	}

	got, err := store.PaymentEntries(ctx, PaymentEntryQuery{
		Account:      testGL,
		Side:         SidePaidTo,
		PaymentTypes: []models.PaymentType{models.PaymentTypeReceive, models.PaymentTypeInternalTransfer},
		Amount:       AnyPositive(),
	})
	if err != nil {
		t.Fatalf("PaymentEntries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2 (draft excluded)", len(got))
	}
	if got[0].Name != "PAY-EARLY" || got[1].Name != "PAY-LATE" {
		t.Errorf("wrong order: %s, %s", got[0].Name, got[1].Name)
	}

	exact, err := store.PaymentEntries(ctx, PaymentEntryQuery{
		Account: testGL,
		Side:    SidePaidTo,
		Amount:  Exactly(decimal.NewFromInt(150)),
	})
	if err != nil {
		t.Fatalf("PaymentEntries: %v", err)
	}
	if len(exact) != 1 || exact[0].Name != "PAY-LATE" {
		t.Errorf("exact amount filter failed: %v", exact)
	}
}

func TestSQLiteJournalEntryJoin(t *testing.T) {
	store := newSQLiteTestStore(t)
	ctx := context.Background()

	err := store.CreateJournalEntry(ctx, &JournalEntry{
		Name: "JRN-1", VoucherType: "Bank Entry", PostingDate: day(8), ChequeNo: "CHQ1",
		DocStatus: models.DocStatusSubmitted,
		Lines: []JournalEntryLine{
			{Account: testGL, Debit: decimal.NewFromInt(100), AccountCurrency: "INR"},
			{Account: "Debtors - Acme", Credit: decimal.NewFromInt(100), AccountCurrency: "INR"},
		},
	})
	if err != nil {
		t.Fatalf("CreateJournalEntry: %v", err)
	}

	rows, err := store.JournalEntryLines(ctx, JournalEntryQuery{
		Account: testGL,
		Side:    SideDebit,
		Amount:  AnyPositive(),
	})
	if err != nil {
		t.Fatalf("JournalEntryLines: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].ChequeNo != "CHQ1" || !rows[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("joined row mismatch: %+v", rows[0])
	}
}

func TestSQLiteReconcileTransactional(t *testing.T) {
	store := newSQLiteTestStore(t)
	ctx := context.Background()

	tx := &models.BankTransaction{
		ID:                "BTX-R",
		Date:              day(15),
		Deposit:           decimal.NewFromInt(100),
		BankAccount:       "HDFC - Main",
		UnallocatedAmount: decimal.NewFromInt(100),
		Status:            models.StatusUnreconciled,
		DocStatus:         models.DocStatusSubmitted,
	}
	if err := store.CreateBankTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateBankTransaction: %v", err)
	}
	for _, name := range []string{"PAY-X", "PAY-Y"} {
		err := store.CreatePaymentEntry(ctx, &PaymentEntry{
			Name: name, PaymentType: models.PaymentTypeReceive, PostingDate: day(10),
			PaidTo: testGL, PaidAmount: decimal.NewFromInt(500),
			DocStatus: models.DocStatusSubmitted,
		})
		if err != nil {
			t.Fatalf("CreatePaymentEntry(%s): %v", name, err)
		}
	}

	got, err := store.Reconcile(ctx, "BTX-R", []models.Allocation{{
		DocType: models.KindPaymentEntry, Name: "PAY-X", Amount: decimal.NewFromInt(40),
	}})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Status != models.StatusPartiallyReconciled {
		t.Errorf("Status = %v, want Partially Reconciled", got.Status)
	}

	totals, err := store.TotalAllocated(ctx, models.KindPaymentEntry, "PAY-X")
	if err != nil {
		t.Fatalf("TotalAllocated: %v", err)
	}
	if !totals[testGL].Equal(decimal.NewFromInt(40)) {
		t.Errorf("TotalAllocated = %v, want 40", totals[testGL])
	}

	// Over-allocation rolls back: no allocation row, amount unchanged.
	if _, err := store.Reconcile(ctx, "BTX-R", []models.Allocation{{
		DocType: models.KindPaymentEntry, Name: "PAY-Y", Amount: decimal.NewFromInt(500),
	}}); !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	after, err := store.GetBankTransaction(ctx, "BTX-R")
	if err != nil {
		t.Fatalf("GetBankTransaction: %v", err)
	}
	if !after.UnallocatedAmount.Equal(decimal.NewFromInt(60)) {
		t.Errorf("UnallocatedAmount = %v, want 60", after.UnallocatedAmount)
	}
	if leftovers, _ := store.TotalAllocated(ctx, models.KindPaymentEntry, "PAY-Y"); len(leftovers) != 0 {
		t.Errorf("failed reconcile left allocation rows: %v", leftovers)
	}
}
