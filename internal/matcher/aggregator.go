package matcher

import (
	apperrors "bank-reconciliation-service/pkg/errors"
)

// Document-type and modifier tokens accepted by a match request. Document
// tokens select builders; modifier tokens tighten the filter every selected
// builder receives.
const (
	TokenPaymentEntry     = "payment_entry"
	TokenJournalEntry     = "journal_entry"
	TokenSalesInvoice     = "sales_invoice"
	TokenPurchaseInvoice  = "purchase_invoice"
	TokenBankTransaction  = "bank_transaction"
	TokenLoanDisbursement = "loan_disbursement"
	TokenLoanRepayment    = "loan_repayment"

	TokenUnpaidInvoices  = "unpaid_invoices"
	TokenExactMatch      = "exact_match"
	TokenExactPartyMatch = "exact_party_match"
)

// DefaultTokens is the document-type selection used when a request names
// none.
var DefaultTokens = []string{
	TokenPaymentEntry,
	TokenJournalEntry,
	TokenSalesInvoice,
	TokenPurchaseInvoice,
	TokenBankTransaction,
	TokenLoanDisbursement,
	TokenLoanRepayment,
}

// Selection is the parsed form of a token list: the builders to run and the
// filter modifiers to apply.
type Selection struct {
	Builders        []QueryBuilder
	ExactMatch      bool
	ExactPartyMatch bool
}

// ParseTokens resolves a token list into a builder selection. External
// builders (registered via Registry.Register) take precedence over the
// built-in builder for the same token and run before all built-ins.
func (r *Registry) ParseTokens(tokens []string) (*Selection, error) {
	if len(tokens) == 0 {
		tokens = DefaultTokens
	}

	sel := &Selection{}
	unpaid := false
	var docTokens []string
	seen := make(map[string]bool)

	for _, token := range tokens {
		switch token {
		case TokenExactMatch:
			sel.ExactMatch = true
			continue
		case TokenUnpaidInvoices:
			unpaid = true
			continue
		case TokenExactPartyMatch:
			sel.ExactPartyMatch = true
			continue
		}
		if seen[token] {
			continue
		}
		seen[token] = true
		docTokens = append(docTokens, token)
	}

	var builtins []QueryBuilder
	for _, token := range docTokens {
		if external, ok := r.external[token]; ok {
			sel.Builders = append(sel.Builders, external)
			continue
		}
		builtin, err := builtinBuilder(token, unpaid)
		if err != nil {
			return nil, err
		}
		builtins = append(builtins, builtin)
	}
	sel.Builders = append(sel.Builders, builtins...)
	return sel, nil
}

func builtinBuilder(token string, unpaid bool) (QueryBuilder, error) {
	switch token {
	case TokenPaymentEntry:
		return PaymentEntryBuilder{}, nil
	case TokenJournalEntry:
		return JournalEntryBuilder{}, nil
	case TokenSalesInvoice:
		return SalesInvoiceBuilder{IncludeUnpaid: unpaid}, nil
	case TokenPurchaseInvoice:
		return PurchaseInvoiceBuilder{IncludeUnpaid: unpaid}, nil
	case TokenBankTransaction:
		return BankTransactionBuilder{}, nil
	case TokenLoanDisbursement:
		return LoanDisbursementBuilder{}, nil
	case TokenLoanRepayment:
		return LoanRepaymentBuilder{}, nil
	default:
		return nil, apperrors.ValidationError(apperrors.CodeInvalidData, "document_types", token)
	}
}

// Registry holds externally registered builders keyed by token. The zero
// value is usable.
type Registry struct {
	external map[string]QueryBuilder
}

// NewRegistry creates an empty builder registry.
func NewRegistry() *Registry {
	return &Registry{external: make(map[string]QueryBuilder)}
}

// Register installs an external builder for its token, replacing the
// built-in builder for that token if one exists.
func (r *Registry) Register(builder QueryBuilder) {
	if r.external == nil {
		r.external = make(map[string]QueryBuilder)
	}
	r.external[builder.Token()] = builder
}
