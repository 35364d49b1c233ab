// Package importer loads bank statement CSV files into the ledger as
// submitted, unreconciled bank transactions.
package importer

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"bank-reconciliation-service/internal/ledger"
	"bank-reconciliation-service/internal/models"
	apperrors "bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Importer parses bank statement CSVs and writes the resulting transactions
// to the ledger store.
type Importer struct {
	store ledger.Store
	log   logger.Logger
}

// New creates an importer over the given store.
func New(store ledger.Store, log logger.Logger) *Importer {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Importer{store: store, log: log.WithComponent("importer")}
}

// Result summarizes one import run. Row errors are collected, not fatal:
// a bad row is skipped and reported while the rest of the file imports.
type Result struct {
	Imported int
	Skipped  int
	Errors   []RowError
}

// RowError records a rejected statement row. Line is 1-based and counts the
// header.
type RowError struct {
	Line int
	Err  error
}

// Statement columns. The header row is matched case-insensitively and
// order-independently; unknown columns are ignored.
const (
	colDate        = "date"
	colDeposit     = "deposit"
	colWithdrawal  = "withdrawal"
	colCurrency    = "currency"
	colDescription = "description"
	colReference   = "reference_number"
	colPartyType   = "party_type"
	colParty       = "party"
	colPartyName   = "bank_party_name"
	colPartyIBAN   = "bank_party_iban"
)

var dateLayouts = []string{"2006-01-02", "02-01-2006", "01/02/2006", time.RFC3339}

// Import reads statement rows from r and creates one bank transaction per
// valid row against the given bank account.
func (i *Importer) Import(ctx context.Context, r io.Reader, bankAccount string) (*Result, error) {
	ba, err := i.store.BankAccount(ctx, bankAccount)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.ValidationError(apperrors.CodeInvalidData, "statement", "missing header row")
	}
	columns := make(map[string]int, len(header))
	for idx, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = idx
	}
	for _, required := range []string{colDate, colDeposit, colWithdrawal} {
		if _, ok := columns[required]; !ok {
			return nil, apperrors.ValidationError(apperrors.CodeMissingField, required, "column not present in header")
		}
	}

	result := &Result{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{Line: line, Err: err})
			continue
		}

		tx, err := parseRow(record, columns, ba)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{Line: line, Err: err})
			continue
		}
		if err := i.store.CreateBankTransaction(ctx, tx); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{Line: line, Err: err})
			continue
		}
		result.Imported++
	}

	i.log.WithFields(logger.Fields{
		"bank_account": bankAccount,
		"imported":     result.Imported,
		"skipped":      result.Skipped,
	}).Info("statement import complete")
	return result, nil
}

func parseRow(record []string, columns map[string]int, ba *ledger.BankAccount) (*models.BankTransaction, error) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	date, err := parseStatementDate(field(colDate))
	if err != nil {
		return nil, err
	}
	deposit, err := parseStatementAmount(field(colDeposit))
	if err != nil {
		return nil, apperrors.ValidationError(apperrors.CodeInvalidAmount, colDeposit, field(colDeposit))
	}
	withdrawal, err := parseStatementAmount(field(colWithdrawal))
	if err != nil {
		return nil, apperrors.ValidationError(apperrors.CodeInvalidAmount, colWithdrawal, field(colWithdrawal))
	}

	tx := &models.BankTransaction{
		ID:                "BTX-" + uuid.NewString(),
		Date:              date,
		Deposit:           deposit,
		Withdrawal:        withdrawal,
		Currency:          field(colCurrency),
		Description:       field(colDescription),
		BankAccount:       ba.Name,
		Company:           ba.Company,
		ReferenceNumber:   field(colReference),
		PartyType:         field(colPartyType),
		Party:             field(colParty),
		BankPartyName:     field(colPartyName),
		BankPartyIBAN:     field(colPartyIBAN),
		Status:            models.StatusUnreconciled,
		DocStatus:         models.DocStatusSubmitted,
	}
	if tx.IsDeposit() {
		tx.UnallocatedAmount = tx.Deposit
	} else {
		tx.UnallocatedAmount = tx.Withdrawal
	}
	if err := tx.Validate(); err != nil {
		return nil, apperrors.ValidationError(apperrors.CodeInvalidData, "row", err.Error())
	}
	return tx, nil
}

func parseStatementDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, apperrors.ValidationError(apperrors.CodeMissingField, colDate, nil)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperrors.ValidationError(apperrors.CodeInvalidData, colDate, value)
}

func parseStatementAmount(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.ReplaceAll(value, ",", ""))
}
