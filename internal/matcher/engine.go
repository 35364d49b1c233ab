package matcher

import (
	"context"
	"sort"
	"strings"

	"bank-reconciliation-service/internal/ledger"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/logger"
)

// Engine runs a builder selection against the ledger and merges the results
// into a single ranked candidate list.
type Engine struct {
	store    ledger.Store
	registry *Registry
	log      logger.Logger
}

// NewEngine creates a matching engine over the given ledger store.
func NewEngine(store ledger.Store, registry *Registry, log logger.Logger) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Engine{
		store:    store,
		registry: registry,
		log:      log.WithComponent("matcher"),
	}
}

// MatchRequest describes one candidate discovery run.
type MatchRequest struct {
	TransactionID string
	// Tokens selects document types and modifiers; empty selects all
	// document types, loose.
	Tokens []string
	Window models.DateWindow
	// AutoReconcile narrows payment and journal entries to exact
	// reference-number matches, for unattended batch reconciliation.
	AutoReconcile bool
}

// FindCandidates discovers and ranks voucher candidates for one bank
// transaction. An empty result is not an error. Candidates are ordered by
// rank descending; equal ranks keep builder emission order, so external
// builders sort before built-ins at the same rank.
func (e *Engine) FindCandidates(ctx context.Context, req MatchRequest) ([]*models.VoucherCandidate, error) {
	tx, err := e.store.GetBankTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}

	filter, err := e.buildFilter(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	sel, err := e.registry.ParseTokens(req.Tokens)
	if err != nil {
		return nil, err
	}
	filter.ExactMatch = filter.ExactMatch || sel.ExactMatch
	filter.ExactPartyMatch = sel.ExactPartyMatch

	var merged []*models.VoucherCandidate
	for _, builder := range sel.Builders {
		candidates, err := builder.Build(ctx, e.store, tx, *filter)
		if err != nil {
			return nil, err
		}
		merged = append(merged, candidates...)
	}

	boostNameInDescription(merged, tx.Description)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Rank > merged[j].Rank
	})

	e.log.WithFields(logger.Fields{
		"transaction": tx.ID,
		"candidates":  len(merged),
	}).Debug("candidate discovery complete")
	return merged, nil
}

func (e *Engine) buildFilter(ctx context.Context, tx *models.BankTransaction, req MatchRequest) (*models.AllocationFilter, error) {
	ba, err := e.store.BankAccount(ctx, tx.BankAccount)
	if err != nil {
		return nil, err
	}
	acc, err := e.store.Account(ctx, ba.GLAccount)
	if err != nil {
		return nil, err
	}

	filter := &models.AllocationFilter{
		Amount:          tx.UnallocatedAmount,
		PaymentType:     tx.PaymentDirection(),
		ReferenceNumber: tx.ReferenceNumber,
		PartyType:       tx.PartyType,
		Party:           tx.Party,
		BankAccount:     ba.GLAccount,
		AccountCurrency: acc.Currency,
		Window:          req.Window,
	}
	// Unattended mode gates on the reference number only; amounts stay
	// loose so a partial payment can still be allocated.
	filter.AutoReconcile = req.AutoReconcile
	return filter, nil
}

// boostNameInDescription raises candidates whose voucher identifier occurs
// verbatim in the bank statement description.
func boostNameInDescription(candidates []*models.VoucherCandidate, description string) {
	if description == "" {
		return
	}
	for _, c := range candidates {
		if c.Name == "" {
			continue
		}
		if strings.Contains(description, c.Name) {
			c.NameInDescMatch = true
			c.ComputeRank()
		}
	}
}
