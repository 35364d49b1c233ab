package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"bank-reconciliation-service/internal/models"
	apperrors "bank-reconciliation-service/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLiteStore is the Store implementation behind the CLI. Amounts are stored
// as TEXT and round-tripped through shopspring/decimal so no precision is
// lost; dates are stored as RFC 3339 TEXT.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS bank_account (
	name       TEXT PRIMARY KEY,
	gl_account TEXT NOT NULL,
	company    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS account (
	name         TEXT PRIMARY KEY,
	company      TEXT NOT NULL DEFAULT '',
	currency     TEXT NOT NULL DEFAULT '',
	account_type TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS bank_transaction (
	name               TEXT PRIMARY KEY,
	date               TEXT NOT NULL,
	deposit            TEXT NOT NULL DEFAULT '0',
	withdrawal         TEXT NOT NULL DEFAULT '0',
	currency           TEXT NOT NULL DEFAULT '',
	description        TEXT NOT NULL DEFAULT '',
	bank_account       TEXT NOT NULL,
	company            TEXT NOT NULL DEFAULT '',
	unallocated_amount TEXT NOT NULL DEFAULT '0',
	reference_number   TEXT NOT NULL DEFAULT '',
	party_type         TEXT NOT NULL DEFAULT '',
	party              TEXT NOT NULL DEFAULT '',
	bank_party_name    TEXT NOT NULL DEFAULT '',
	bank_party_account TEXT NOT NULL DEFAULT '',
	bank_party_iban    TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'Unreconciled',
	docstatus          INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_bank_transaction_account
	ON bank_transaction(bank_account, date);

CREATE TABLE IF NOT EXISTS payment_entry (
	name               TEXT PRIMARY KEY,
	payment_type       TEXT NOT NULL,
	posting_date       TEXT NOT NULL,
	reference_no       TEXT NOT NULL DEFAULT '',
	reference_date     TEXT NOT NULL DEFAULT '',
	party_type         TEXT NOT NULL DEFAULT '',
	party              TEXT NOT NULL DEFAULT '',
	paid_from          TEXT NOT NULL DEFAULT '',
	paid_to            TEXT NOT NULL DEFAULT '',
	paid_from_currency TEXT NOT NULL DEFAULT '',
	paid_to_currency   TEXT NOT NULL DEFAULT '',
	paid_amount        TEXT NOT NULL DEFAULT '0',
	clearance_date     TEXT,
	docstatus          INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS journal_entry (
	name             TEXT PRIMARY KEY,
	voucher_type     TEXT NOT NULL DEFAULT '',
	posting_date     TEXT NOT NULL,
	cheque_no        TEXT NOT NULL DEFAULT '',
	cheque_date      TEXT NOT NULL DEFAULT '',
	pay_to_recd_from TEXT NOT NULL DEFAULT '',
	clearance_date   TEXT,
	docstatus        INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS journal_entry_account (
	parent           TEXT NOT NULL REFERENCES journal_entry(name),
	account          TEXT NOT NULL,
	party_type       TEXT NOT NULL DEFAULT '',
	party            TEXT NOT NULL DEFAULT '',
	debit            TEXT NOT NULL DEFAULT '0',
	credit           TEXT NOT NULL DEFAULT '0',
	account_currency TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_journal_entry_account_account
	ON journal_entry_account(account);

CREATE TABLE IF NOT EXISTS sales_invoice (
	name               TEXT PRIMARY KEY,
	customer           TEXT NOT NULL DEFAULT '',
	posting_date       TEXT NOT NULL,
	currency           TEXT NOT NULL DEFAULT '',
	grand_total        TEXT NOT NULL DEFAULT '0',
	outstanding_amount TEXT NOT NULL DEFAULT '0',
	is_return          INTEGER NOT NULL DEFAULT 0,
	docstatus          INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS sales_invoice_payment (
	parent         TEXT NOT NULL REFERENCES sales_invoice(name),
	account        TEXT NOT NULL,
	amount         TEXT NOT NULL DEFAULT '0',
	clearance_date TEXT
);

CREATE TABLE IF NOT EXISTS purchase_invoice (
	name               TEXT PRIMARY KEY,
	supplier           TEXT NOT NULL DEFAULT '',
	bill_no            TEXT NOT NULL DEFAULT '',
	bill_date          TEXT NOT NULL DEFAULT '',
	posting_date       TEXT NOT NULL,
	currency           TEXT NOT NULL DEFAULT '',
	grand_total        TEXT NOT NULL DEFAULT '0',
	paid_amount        TEXT NOT NULL DEFAULT '0',
	outstanding_amount TEXT NOT NULL DEFAULT '0',
	is_paid            INTEGER NOT NULL DEFAULT 0,
	is_return          INTEGER NOT NULL DEFAULT 0,
	cash_bank_account  TEXT NOT NULL DEFAULT '',
	clearance_date     TEXT,
	docstatus          INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS loan_disbursement (
	name                 TEXT PRIMARY KEY,
	applicant            TEXT NOT NULL DEFAULT '',
	applicant_type       TEXT NOT NULL DEFAULT '',
	reference_number     TEXT NOT NULL DEFAULT '',
	reference_date       TEXT NOT NULL DEFAULT '',
	disbursement_date    TEXT NOT NULL,
	disbursed_amount     TEXT NOT NULL DEFAULT '0',
	disbursement_account TEXT NOT NULL DEFAULT '',
	clearance_date       TEXT,
	docstatus            INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS loan_repayment (
	name              TEXT PRIMARY KEY,
	applicant         TEXT NOT NULL DEFAULT '',
	applicant_type    TEXT NOT NULL DEFAULT '',
	reference_number  TEXT NOT NULL DEFAULT '',
	reference_date    TEXT NOT NULL DEFAULT '',
	posting_date      TEXT NOT NULL,
	amount_paid       TEXT NOT NULL DEFAULT '0',
	payment_account   TEXT NOT NULL DEFAULT '',
	repay_from_salary INTEGER NOT NULL DEFAULT 0,
	clearance_date    TEXT,
	docstatus         INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS allocation (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_type     TEXT NOT NULL,
	voucher_name TEXT NOT NULL,
	gl_account   TEXT NOT NULL DEFAULT '',
	transaction_id TEXT NOT NULL REFERENCES bank_transaction(name),
	amount       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_allocation_voucher
	ON allocation(doc_type, voucher_name);
`

// NewSQLiteStore opens (or creates) the database at path and bootstraps the
// schema. Pass ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "open database", err)
	}
	// Serialized access keeps Reconcile's read-check-write atomic.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.LedgerError(apperrors.CodeWriteFailed, "bootstrap schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const dateLayout = time.RFC3339

func fmtDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return fmtDate(*t)
}

func scanNullDate(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseDate(ns.String)
	return &t
}

// cond accumulates WHERE fragments and their arguments.
type cond struct {
	clauses []string
	args    []interface{}
}

func (c *cond) add(clause string, args ...interface{}) {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, args...)
}

func (c *cond) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// amountCond appends the amount condition for a TEXT-stored decimal column.
// Equality compares canonical decimal strings; the loose mode relies on
// SQLite's numeric affinity for the sign check.
func (c *cond) amountCond(column string, f AmountFilter) {
	if f.Equals != nil {
		c.add(fmt.Sprintf("CAST(%s AS REAL) = CAST(? AS REAL)", column), f.Equals.String())
		return
	}
	if f.Positive {
		c.add(fmt.Sprintf("CAST(%s AS REAL) > 0", column))
	}
}

func (c *cond) dateCond(column string, f DateFilter) {
	if !f.From.IsZero() {
		c.add(column+" >= ?", fmtDate(f.From))
	}
	if !f.To.IsZero() {
		c.add(column+" <= ?", fmtDate(f.To))
	}
}

func (s *SQLiteStore) BankAccount(ctx context.Context, name string) (*BankAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, gl_account, company FROM bank_account WHERE name = ?`, name)

	ba := &BankAccount{}
	if err := row.Scan(&ba.Name, &ba.GLAccount, &ba.Company); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFoundError(apperrors.CodeAccountNotFound, "bank account", name)
		}
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "fetch bank account", err)
	}
	return ba, nil
}

func (s *SQLiteStore) Account(ctx context.Context, name string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, company, currency, account_type FROM account WHERE name = ?`, name)

	acc := &Account{}
	if err := row.Scan(&acc.Name, &acc.Company, &acc.Currency, &acc.AccountType); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFoundError(apperrors.CodeAccountNotFound, "account", name)
		}
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "fetch account", err)
	}
	return acc, nil
}

// CreateBankAccount inserts a bank account and its linked GL account.
func (s *SQLiteStore) CreateBankAccount(ctx context.Context, ba *BankAccount, acc *Account) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO bank_account (name, gl_account, company) VALUES (?, ?, ?)`,
		ba.Name, ba.GLAccount, ba.Company); err != nil {
		return apperrors.LedgerError(apperrors.CodeWriteFailed, "create bank account", err)
	}
	if acc != nil {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO account (name, company, currency, account_type) VALUES (?, ?, ?, ?)`,
			acc.Name, acc.Company, acc.Currency, acc.AccountType); err != nil {
			return apperrors.LedgerError(apperrors.CodeWriteFailed, "create account", err)
		}
	}
	return nil
}

const bankTransactionColumns = `name, date, deposit, withdrawal, currency, description,
	bank_account, company, unallocated_amount, reference_number, party_type, party,
	bank_party_name, bank_party_account, bank_party_iban, status, docstatus`

func scanBankTransaction(scan func(dest ...interface{}) error) (*models.BankTransaction, error) {
	var (
		tx                                    models.BankTransaction
		date, deposit, withdrawal, unalloc, status string
	)
	err := scan(&tx.ID, &date, &deposit, &withdrawal, &tx.Currency, &tx.Description,
		&tx.BankAccount, &tx.Company, &unalloc, &tx.ReferenceNumber, &tx.PartyType, &tx.Party,
		&tx.BankPartyName, &tx.BankPartyAccount, &tx.BankPartyIBAN, &status, &tx.DocStatus)
	if err != nil {
		return nil, err
	}
	tx.Date = parseDate(date)
	tx.Deposit = parseAmount(deposit)
	tx.Withdrawal = parseAmount(withdrawal)
	tx.UnallocatedAmount = parseAmount(unalloc)
	tx.Status = models.TransactionStatus(status)
	return &tx, nil
}

func (s *SQLiteStore) GetBankTransaction(ctx context.Context, id string) (*models.BankTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bankTransactionColumns+` FROM bank_transaction WHERE name = ?`, id)

	tx, err := scanBankTransaction(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFoundError(apperrors.CodeTransactionNotFound, "bank transaction", id)
		}
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "fetch bank transaction", err)
	}
	return tx, nil
}

func (s *SQLiteStore) BankTransactions(ctx context.Context, bankAccount string, dates DateFilter) ([]*models.BankTransaction, error) {
	c := &cond{}
	c.add("bank_account = ?", bankAccount)
	c.add("docstatus = ?", int(models.DocStatusSubmitted))
	c.add("CAST(unallocated_amount AS REAL) > 0")
	c.dateCond("date", dates)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bankTransactionColumns+` FROM bank_transaction`+c.where()+` ORDER BY date ASC`,
		c.args...)
	if err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "list bank transactions", err)
	}
	defer rows.Close()

	var result []*models.BankTransaction
	for rows.Next() {
		tx, err := scanBankTransaction(rows.Scan)
		if err != nil {
			return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "scan bank transaction", err)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) PaymentEntries(ctx context.Context, q PaymentEntryQuery) ([]*PaymentEntry, error) {
	c := &cond{}
	c.add("docstatus = ?", int(models.DocStatusSubmitted))
	c.add("clearance_date IS NULL")

	accountColumn := "paid_to"
	if q.Side == SidePaidFrom {
		accountColumn = "paid_from"
	}
	c.add(accountColumn+" = ?", q.Account)

	if len(q.PaymentTypes) > 0 {
		placeholders := make([]string, len(q.PaymentTypes))
		for i, pt := range q.PaymentTypes {
			placeholders[i] = "?"
			c.args = append(c.args, string(pt))
		}
		c.clauses = append(c.clauses, "payment_type IN ("+strings.Join(placeholders, ", ")+")")
	}

	c.amountCond("paid_amount", q.Amount)
	if q.ReferenceNo != nil {
		c.add("reference_no = ?", *q.ReferenceNo)
	}
	if q.Party != nil {
		c.add("party != ''")
		c.add("party_type = ?", q.Party.Type)
		c.add("party = ?", q.Party.Name)
	}

	dateColumn := "posting_date"
	if q.ByReferenceDate {
		dateColumn = "reference_date"
	}
	c.dateCond(dateColumn, q.Dates)

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, payment_type, posting_date, reference_no, reference_date, party_type,
			party, paid_from, paid_to, paid_from_currency, paid_to_currency, paid_amount,
			clearance_date, docstatus
		 FROM payment_entry`+c.where()+` ORDER BY `+dateColumn+` ASC`,
		c.args...)
	if err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "list payment entries", err)
	}
	defer rows.Close()

	var result []*PaymentEntry
	for rows.Next() {
		var (
			pe                              PaymentEntry
			paymentType, posting, refDate, amount string
			clearance                       sql.NullString
		)
		if err := rows.Scan(&pe.Name, &paymentType, &posting, &pe.ReferenceNo, &refDate,
			&pe.PartyType, &pe.Party, &pe.PaidFrom, &pe.PaidTo, &pe.PaidFromCurrency,
			&pe.PaidToCurrency, &amount, &clearance, &pe.DocStatus); err != nil {
			return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "scan payment entry", err)
		}
		pe.PaymentType = models.PaymentType(paymentType)
		pe.PostingDate = parseDate(posting)
		pe.ReferenceDate = parseDate(refDate)
		pe.PaidAmount = parseAmount(amount)
		pe.ClearanceDate = scanNullDate(clearance)
		result = append(result, &pe)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) JournalEntryLines(ctx context.Context, q JournalEntryQuery) ([]*JournalEntryRow, error) {
	c := &cond{}
	c.add("je.docstatus = ?", int(models.DocStatusSubmitted))
	c.add("je.clearance_date IS NULL")
	c.add("je.voucher_type != 'Opening Entry'")
	c.add("jea.account = ?", q.Account)

	amountColumn := "jea.credit"
	if q.Side == SideDebit {
		amountColumn = "jea.debit"
	}
	c.amountCond(amountColumn, q.Amount)

	if q.ChequeNo != nil {
		c.add("je.cheque_no = ?", *q.ChequeNo)
	}
	dateColumn := "je.posting_date"
	if q.ByReferenceDate {
		dateColumn = "je.cheque_date"
	}
	c.dateCond(dateColumn, q.Dates)

	rows, err := s.db.QueryContext(ctx,
		`SELECT je.name, je.posting_date, je.cheque_no, je.cheque_date, je.pay_to_recd_from,
			jea.party_type, `+amountColumn+`, jea.account_currency
		 FROM journal_entry_account jea
		 JOIN journal_entry je ON je.name = jea.parent`+c.where()+` ORDER BY `+dateColumn+` ASC`,
		c.args...)
	if err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "list journal entry lines", err)
	}
	defer rows.Close()

	var result []*JournalEntryRow
	for rows.Next() {
		var (
			jr                    JournalEntryRow
			posting, chequeDate, amount string
		)
		if err := rows.Scan(&jr.Name, &posting, &jr.ChequeNo, &chequeDate,
			&jr.PayToRecdFrom, &jr.PartyType, &amount, &jr.AccountCurrency); err != nil {
			return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "scan journal entry line", err)
		}
		jr.PostingDate = parseDate(posting)
		jr.ChequeDate = parseDate(chequeDate)
		jr.Amount = parseAmount(amount)
		result = append(result, &jr)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) PaidSalesInvoices(ctx context.Context, q PaidInvoiceQuery) ([]*SalesInvoicePaymentRow, error) {
	c := &cond{}
	c.add("si.docstatus = ?", int(models.DocStatusSubmitted))
	c.add("sip.clearance_date IS NULL")
	c.add("sip.account = ?", q.Account)
	c.add("si.currency = ?", q.Currency)
	c.amountCond("sip.amount", q.Amount)
	if q.Party != nil {
		c.add("si.customer = ?", *q.Party)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT si.name, si.customer, si.posting_date, si.currency, sip.amount
		 FROM sales_invoice_payment sip
		 JOIN sales_invoice si ON si.name = sip.parent`+c.where(),
		c.args...)
	if err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "list paid sales invoices", err)
	}
	defer rows.Close()

	var result []*SalesInvoicePaymentRow
	for rows.Next() {
		var (
			row             SalesInvoicePaymentRow
			posting, amount string
		)
		if err := rows.Scan(&row.Name, &row.Customer, &posting, &row.Currency, &amount); err != nil {
			return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "scan paid sales invoice", err)
		}
		row.PostingDate = parseDate(posting)
		row.Amount = parseAmount(amount)
		result = append(result, &row)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) UnpaidSalesInvoices(ctx context.Context, q UnpaidInvoiceQuery) ([]*SalesInvoice, error) {
	c := &cond{}
	c.add("docstatus = ?", int(models.DocStatusSubmitted))
	c.add("is_return = 0")
	c.add("CAST(outstanding_amount AS REAL) > 0")
	c.add("currency = ?", q.Currency)
	if q.GrandTotalEquals != nil {
		c.add("CAST(grand_total AS REAL) = CAST(? AS REAL)", q.GrandTotalEquals.String())
	}
	if q.Party != nil {
		c.add("customer = ?", *q.Party)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, customer, posting_date, currency, grand_total, outstanding_amount,
			is_return, docstatus
		 FROM sales_invoice`+c.where(),
		c.args...)
	if err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "list unpaid sales invoices", err)
	}
	defer rows.Close()

	var result []*SalesInvoice
	for rows.Next() {
		var (
			si                          SalesInvoice
			posting, grand, outstanding string
		)
		if err := rows.Scan(&si.Name, &si.Customer, &posting, &si.Currency,
			&grand, &outstanding, &si.IsReturn, &si.DocStatus); err != nil {
			return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "scan unpaid sales invoice", err)
		}
		si.PostingDate = parseDate(posting)
		si.GrandTotal = parseAmount(grand)
		si.OutstandingAmount = parseAmount(outstanding)
		result = append(result, &si)
	}
	return result, rows.Err()
}

func scanPurchaseInvoice(rows *sql.Rows) (*PurchaseInvoice, error) {
	var (
		pi                                              PurchaseInvoice
		billDate, posting, grand, paid, outstanding string
		clearance                                       sql.NullString
	)
	if err := rows.Scan(&pi.Name, &pi.Supplier, &pi.BillNo, &billDate, &posting, &pi.Currency,
		&grand, &paid, &outstanding, &pi.IsPaid, &pi.IsReturn, &pi.CashBankAccount,
		&clearance, &pi.DocStatus); err != nil {
		return nil, err
	}
	pi.BillDate = parseDate(billDate)
	pi.PostingDate = parseDate(posting)
	pi.GrandTotal = parseAmount(grand)
	pi.PaidAmount = parseAmount(paid)
	pi.OutstandingAmount = parseAmount(outstanding)
	pi.ClearanceDate = scanNullDate(clearance)
	return &pi, nil
}

const purchaseInvoiceColumns = `name, supplier, bill_no, bill_date, posting_date, currency,
	grand_total, paid_amount, outstanding_amount, is_paid, is_return, cash_bank_account,
	clearance_date, docstatus`

func (s *SQLiteStore) PaidPurchaseInvoices(ctx context.Context, q PaidInvoiceQuery) ([]*PurchaseInvoice, error) {
	c := &cond{}
	c.add("docstatus = ?", int(models.DocStatusSubmitted))
	c.add("is_paid = 1")
	c.add("clearance_date IS NULL")
	c.add("cash_bank_account = ?", q.Account)
	c.add("currency = ?", q.Currency)
	c.amountCond("paid_amount", q.Amount)
	if q.Party != nil {
		c.add("supplier = ?", *q.Party)
	}
	return s.queryPurchaseInvoices(ctx, c, "list paid purchase invoices")
}

func (s *SQLiteStore) UnpaidPurchaseInvoices(ctx context.Context, q UnpaidInvoiceQuery) ([]*PurchaseInvoice, error) {
	c := &cond{}
	c.add("docstatus = ?", int(models.DocStatusSubmitted))
	c.add("is_return = 0")
	c.add("CAST(outstanding_amount AS REAL) > 0")
	c.add("currency = ?", q.Currency)
	if q.GrandTotalEquals != nil {
		c.add("CAST(grand_total AS REAL) = CAST(? AS REAL)", q.GrandTotalEquals.String())
	}
	if q.Party != nil {
		c.add("supplier = ?", *q.Party)
	}
	return s.queryPurchaseInvoices(ctx, c, "list unpaid purchase invoices")
}

func (s *SQLiteStore) queryPurchaseInvoices(ctx context.Context, c *cond, operation string) ([]*PurchaseInvoice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+purchaseInvoiceColumns+` FROM purchase_invoice`+c.where(), c.args...)
	if err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, operation, err)
	}
	defer rows.Close()

	var result []*PurchaseInvoice
	for rows.Next() {
		pi, err := scanPurchaseInvoice(rows)
		if err != nil {
			return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, operation, err)
		}
		result = append(result, pi)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) LoanDisbursements(ctx context.Context, q LoanQuery) ([]*LoanDisbursement, error) {
	c := &cond{}
	c.add("docstatus = ?", int(models.DocStatusSubmitted))
	c.add("clearance_date IS NULL")
	c.add("disbursement_account = ?", q.Account)
	c.amountCond("disbursed_amount", q.Amount)

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, applicant, applicant_type, reference_number, reference_date,
			disbursement_date, disbursed_amount, disbursement_account, clearance_date, docstatus
		 FROM loan_disbursement`+c.where(),
		c.args...)
	if err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "list loan disbursements", err)
	}
	defer rows.Close()

	var result []*LoanDisbursement
	for rows.Next() {
		var (
			ld                           LoanDisbursement
			refDate, disbDate, amount string
			clearance                    sql.NullString
		)
		if err := rows.Scan(&ld.Name, &ld.Applicant, &ld.ApplicantType, &ld.ReferenceNumber,
			&refDate, &disbDate, &amount, &ld.DisbursementAccount, &clearance, &ld.DocStatus); err != nil {
			return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "scan loan disbursement", err)
		}
		ld.ReferenceDate = parseDate(refDate)
		ld.DisbursementDate = parseDate(disbDate)
		ld.DisbursedAmount = parseAmount(amount)
		ld.ClearanceDate = scanNullDate(clearance)
		result = append(result, &ld)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) LoanRepayments(ctx context.Context, q LoanQuery) ([]*LoanRepayment, error) {
	c := &cond{}
	c.add("docstatus = ?", int(models.DocStatusSubmitted))
	c.add("clearance_date IS NULL")
	c.add("repay_from_salary = 0")
	c.add("payment_account = ?", q.Account)
	c.amountCond("amount_paid", q.Amount)

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, applicant, applicant_type, reference_number, reference_date,
			posting_date, amount_paid, payment_account, repay_from_salary, clearance_date, docstatus
		 FROM loan_repayment`+c.where(),
		c.args...)
	if err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "list loan repayments", err)
	}
	defer rows.Close()

	var result []*LoanRepayment
	for rows.Next() {
		var (
			lr                        LoanRepayment
			refDate, posting, amount string
			clearance                 sql.NullString
		)
		if err := rows.Scan(&lr.Name, &lr.Applicant, &lr.ApplicantType, &lr.ReferenceNumber,
			&refDate, &posting, &amount, &lr.PaymentAccount, &lr.RepayFromSalary,
			&clearance, &lr.DocStatus); err != nil {
			return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "scan loan repayment", err)
		}
		lr.ReferenceDate = parseDate(refDate)
		lr.PostingDate = parseDate(posting)
		lr.AmountPaid = parseAmount(amount)
		lr.ClearanceDate = scanNullDate(clearance)
		result = append(result, &lr)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) PeerBankTransactions(ctx context.Context, q PeerTransactionQuery) ([]*models.BankTransaction, error) {
	c := &cond{}
	c.add("name != ?", q.ExcludeID)
	c.add("bank_account = ?", q.BankAccount)
	c.add("status != ?", string(models.StatusReconciled))
	c.add("docstatus = ?", int(models.DocStatusSubmitted))

	amountColumn := "withdrawal"
	if q.Deposit {
		amountColumn = "deposit"
	}
	c.amountCond(amountColumn, q.Amount)

	if q.Party != nil {
		c.add("party != ''")
		c.add("party_type = ?", q.Party.Type)
		c.add("party = ?", q.Party.Name)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bankTransactionColumns+` FROM bank_transaction`+c.where(), c.args...)
	if err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "list peer bank transactions", err)
	}
	defer rows.Close()

	var result []*models.BankTransaction
	for rows.Next() {
		tx, err := scanBankTransaction(rows.Scan)
		if err != nil {
			return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "scan peer bank transaction", err)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) TotalAllocated(ctx context.Context, kind models.VoucherKind, name string) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT gl_account, amount FROM allocation WHERE doc_type = ? AND voucher_name = ?`,
		string(kind), name)
	if err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "sum allocations", err)
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var glAccount, amount string
		if err := rows.Scan(&glAccount, &amount); err != nil {
			return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "scan allocation", err)
		}
		totals[glAccount] = totals[glAccount].Add(parseAmount(amount))
	}
	return totals, rows.Err()
}

func (s *SQLiteStore) Reconcile(ctx context.Context, transactionID string, allocations []models.Allocation) (*models.BankTransaction, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeWriteFailed, "begin reconcile", err)
	}
	defer dbtx.Rollback()

	row := dbtx.QueryRowContext(ctx,
		`SELECT `+bankTransactionColumns+` FROM bank_transaction WHERE name = ?`, transactionID)
	tx, err := scanBankTransaction(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFoundError(apperrors.CodeTransactionNotFound, "bank transaction", transactionID)
		}
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "fetch bank transaction", err)
	}
	if tx.DocStatus != models.DocStatusSubmitted {
		return nil, apperrors.ConflictError(apperrors.CodeNotSubmitted, transactionID, nil)
	}

	total := decimal.Zero
	for i := range allocations {
		if err := allocations[i].Validate(); err != nil {
			return nil, apperrors.ValidationError(apperrors.CodeInvalidData, "allocations", err.Error())
		}
		exists, err := voucherExistsTx(ctx, dbtx, allocations[i].DocType, allocations[i].Name)
		if err != nil {
			return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "check voucher", err)
		}
		if !exists {
			return nil, apperrors.NotFoundError(apperrors.CodeVoucherNotFound,
				allocations[i].DocType.String(), allocations[i].Name)
		}
		total = total.Add(allocations[i].Amount)
	}
	if total.GreaterThan(tx.UnallocatedAmount) {
		return nil, apperrors.ConflictError(apperrors.CodeOverAllocated, transactionID, nil)
	}

	glAccount := ""
	if err := dbtx.QueryRowContext(ctx,
		`SELECT gl_account FROM bank_account WHERE name = ?`, tx.BankAccount).Scan(&glAccount); err != nil && err != sql.ErrNoRows {
		return nil, apperrors.LedgerError(apperrors.CodeQueryFailed, "fetch bank account", err)
	}

	for _, alloc := range allocations {
		if _, err := dbtx.ExecContext(ctx,
			`INSERT INTO allocation (doc_type, voucher_name, gl_account, transaction_id, amount)
			 VALUES (?, ?, ?, ?, ?)`,
			string(alloc.DocType), alloc.Name, glAccount, transactionID, alloc.Amount.String()); err != nil {
			return nil, apperrors.LedgerError(apperrors.CodeWriteFailed, "record allocation", err)
		}
	}

	tx.UnallocatedAmount = tx.UnallocatedAmount.Sub(total)
	switch {
	case IsZeroWithinPrecision(tx.UnallocatedAmount):
		tx.UnallocatedAmount = decimal.Zero
		tx.Status = models.StatusReconciled
	case total.IsPositive():
		tx.Status = models.StatusPartiallyReconciled
	}

	if _, err := dbtx.ExecContext(ctx,
		`UPDATE bank_transaction SET unallocated_amount = ?, status = ? WHERE name = ?`,
		tx.UnallocatedAmount.String(), string(tx.Status), transactionID); err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeWriteFailed, "update bank transaction", err)
	}

	if err := dbtx.Commit(); err != nil {
		return nil, apperrors.LedgerError(apperrors.CodeWriteFailed, "commit reconcile", err)
	}
	return tx, nil
}

var voucherTables = map[models.VoucherKind]string{
	models.KindPaymentEntry:     "payment_entry",
	models.KindJournalEntry:     "journal_entry",
	models.KindSalesInvoice:     "sales_invoice",
	models.KindPurchaseInvoice:  "purchase_invoice",
	models.KindLoanDisbursement: "loan_disbursement",
	models.KindLoanRepayment:    "loan_repayment",
	models.KindBankTransaction:  "bank_transaction",
}

func voucherExistsTx(ctx context.Context, dbtx *sql.Tx, kind models.VoucherKind, name string) (bool, error) {
	table, ok := voucherTables[kind]
	if !ok {
		return false, nil
	}
	var found int
	err := dbtx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE name = ?`, name).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) CreateBankTransaction(ctx context.Context, tx *models.BankTransaction) error {
	if err := tx.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidData, "bank_transaction", err.Error())
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bank_transaction (`+bankTransactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, fmtDate(tx.Date), tx.Deposit.String(), tx.Withdrawal.String(), tx.Currency,
		tx.Description, tx.BankAccount, tx.Company, tx.UnallocatedAmount.String(),
		tx.ReferenceNumber, tx.PartyType, tx.Party, tx.BankPartyName, tx.BankPartyAccount,
		tx.BankPartyIBAN, string(tx.Status), int(tx.DocStatus))
	if err != nil {
		return apperrors.LedgerError(apperrors.CodeWriteFailed, "create bank transaction", err)
	}
	return nil
}

func (s *SQLiteStore) CreatePaymentEntry(ctx context.Context, entry *PaymentEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_entry (name, payment_type, posting_date, reference_no,
			reference_date, party_type, party, paid_from, paid_to, paid_from_currency,
			paid_to_currency, paid_amount, clearance_date, docstatus)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Name, string(entry.PaymentType), fmtDate(entry.PostingDate), entry.ReferenceNo,
		fmtDate(entry.ReferenceDate), entry.PartyType, entry.Party, entry.PaidFrom, entry.PaidTo,
		entry.PaidFromCurrency, entry.PaidToCurrency, entry.PaidAmount.String(),
		nullDate(entry.ClearanceDate), int(entry.DocStatus))
	if err != nil {
		return apperrors.LedgerError(apperrors.CodeWriteFailed, "create payment entry", err)
	}
	return nil
}

func (s *SQLiteStore) CreateJournalEntry(ctx context.Context, entry *JournalEntry) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.LedgerError(apperrors.CodeWriteFailed, "begin create journal entry", err)
	}
	defer dbtx.Rollback()

	if _, err := dbtx.ExecContext(ctx,
		`INSERT INTO journal_entry (name, voucher_type, posting_date, cheque_no, cheque_date,
			pay_to_recd_from, clearance_date, docstatus)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Name, entry.VoucherType, fmtDate(entry.PostingDate), entry.ChequeNo,
		fmtDate(entry.ChequeDate), entry.PayToRecdFrom, nullDate(entry.ClearanceDate),
		int(entry.DocStatus)); err != nil {
		return apperrors.LedgerError(apperrors.CodeWriteFailed, "create journal entry", err)
	}

	for _, line := range entry.Lines {
		if _, err := dbtx.ExecContext(ctx,
			`INSERT INTO journal_entry_account (parent, account, party_type, party, debit, credit, account_currency)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entry.Name, line.Account, line.PartyType, line.Party,
			line.Debit.String(), line.Credit.String(), line.AccountCurrency); err != nil {
			return apperrors.LedgerError(apperrors.CodeWriteFailed, "create journal entry line", err)
		}
	}

	if err := dbtx.Commit(); err != nil {
		return apperrors.LedgerError(apperrors.CodeWriteFailed, "commit journal entry", err)
	}
	return nil
}
