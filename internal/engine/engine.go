// Package engine implements the per-item classification state machine and
// its review-queue and cascade follow-ups.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledgersieve/ledgersieve/internal/classifier"
	"github.com/ledgersieve/ledgersieve/internal/common"
	"github.com/ledgersieve/ledgersieve/internal/exemplar"
	"github.com/ledgersieve/ledgersieve/internal/model"
	"github.com/ledgersieve/ledgersieve/internal/service"
	"github.com/ledgersieve/ledgersieve/internal/workflow"
)

// Config holds configuration options for the classification engine.
type Config struct {
	VagueIdentifiers    []string
	ConfidenceThreshold float64
	ExemplarK           int
	MaxAttempts         int
	RetryInitialDelay   time.Duration
	RetryMaxDelay       time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.70,
		ExemplarK:           exemplar.DefaultTopK,
		MaxAttempts:         5,
		RetryInitialDelay:   500 * time.Millisecond,
		RetryMaxDelay:       30 * time.Second,
		VagueIdentifiers: []string{
			"paypal", "venmo", "zelle", "cash app", "sq *", "amzn mktp",
		},
	}
}

// Engine drives each transaction to a terminal or queued state.
type Engine struct {
	storage    service.Storage
	classifier classifier.Client
	exemplars  *exemplar.Index
	bus        workflow.Bus
	limiter    *classifier.Limiter
	cfg        Config
}

// New creates a classification engine with the given dependencies. A nil
// limiter disables the dispatch gate (tests).
func New(storage service.Storage, client classifier.Client, exemplars *exemplar.Index, bus workflow.Bus, limiter *classifier.Limiter, cfg Config) *Engine {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.70
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ExemplarK <= 0 {
		cfg.ExemplarK = exemplar.DefaultTopK
	}
	return &Engine{
		storage:    storage,
		classifier: client,
		exemplars:  exemplars,
		bus:        bus,
		limiter:    limiter,
		cfg:        cfg,
	}
}

// Process runs one transaction through the full state machine and returns
// the outcome signal it emitted. Every transaction ends in exactly one of
// categorized, queued, or failed; nothing is silently dropped.
func (e *Engine) Process(ctx context.Context, txn model.Transaction) (model.OutcomeSignal, error) {
	// Vague counterparties skip the classifier entirely; there is nothing
	// a model can add to "PAYPAL *TRANSFER".
	if e.isVague(txn.Merchant) {
		return e.queue(ctx, txn, model.ReasonAmbiguousCounterparty, nil)
	}

	outcome, err := e.evaluate(ctx, txn)
	if err != nil {
		if errors.Is(err, common.ErrMalformedResponse) {
			// Permanent: retrying an unparseable response rarely helps.
			slog.Warn("classifier returned malformed output, queueing for review",
				"transaction_id", txn.ID,
				"error", err)
			return e.queue(ctx, txn, model.ReasonAmbiguousCounterparty, nil)
		}

		// Retry budget spent on transient failures.
		slog.Error("classification failed after retries",
			"transaction_id", txn.ID,
			"error", err)
		return e.fail(ctx, txn)
	}

	return e.route(ctx, txn, outcome)
}

// evaluate performs the classifier call (steps 2 and 6): exemplars and
// taxonomy are gathered, the call goes through the dispatch gate, and
// transient errors are retried with backoff. Malformed responses surface
// unretried.
func (e *Engine) evaluate(ctx context.Context, txn model.Transaction) (*classifier.Outcome, error) {
	taxonomy, err := e.storage.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	exemplars, err := e.exemplars.TopK(ctx, txn.Merchant, txn.Description, e.cfg.ExemplarK)
	if err != nil {
		// Precedent is a hint, not a requirement.
		slog.Warn("failed to load exemplars, classifying without precedent",
			"transaction_id", txn.ID,
			"error", err)
		exemplars = nil
	}

	req := classifier.Request{
		Transaction: txn,
		Taxonomy:    taxonomy,
		Exemplars:   exemplars,
	}

	var outcome *classifier.Outcome
	retryErr := common.WithRetry(ctx, func() error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return &common.RetryableError{Err: err, Retryable: false}
			}
		}

		result, classifyErr := e.classifier.Classify(ctx, req)
		if classifyErr != nil {
			if errors.Is(classifyErr, common.ErrMalformedResponse) {
				return &common.RetryableError{Err: classifyErr, Retryable: false}
			}
			return &common.RetryableError{Err: classifyErr, Retryable: true}
		}
		outcome = result
		return nil
	}, common.RetryOptions{
		MaxAttempts:  e.cfg.MaxAttempts,
		InitialDelay: e.cfg.RetryInitialDelay,
		MaxDelay:     e.cfg.RetryMaxDelay,
		Multiplier:   2.0,
	})

	if retryErr != nil {
		return nil, retryErr
	}
	return outcome, nil
}

// route interprets a classifier outcome (steps 3-5).
func (e *Engine) route(ctx context.Context, txn model.Transaction, outcome *classifier.Outcome) (model.OutcomeSignal, error) {
	switch outcome.Action {
	case classifier.ActionCategorize:
		if outcome.Confidence >= e.cfg.ConfidenceThreshold {
			return e.categorize(ctx, txn, outcome, model.SourceAuto)
		}
		return e.queue(ctx, txn, model.ReasonLowConfidence, &model.Suggestion{
			NodeID:     outcome.NodeID,
			Confidence: outcome.Confidence,
			Reasoning:  outcome.Reasoning,
		})

	case classifier.ActionProposeNode:
		return e.routeProposal(ctx, txn, outcome)

	case classifier.ActionNeedsReview:
		reason := model.ReasonAmbiguousCounterparty
		if e.isVague(txn.Merchant) {
			reason = model.ReasonShouldSplit
		}
		return e.queue(ctx, txn, reason, suggestionFromOutcome(outcome))

	default:
		return model.OutcomeSignal{}, fmt.Errorf("unknown classifier action %q", outcome.Action)
	}
}

// routeProposal applies the taxonomy guard to a proposeNode outcome
// (step 4). A proposal whose (name, parent) already exists is rewritten to
// point at the existing node and queued, rather than materializing a
// duplicate; a genuinely new node waits for human approval.
func (e *Engine) routeProposal(ctx context.Context, txn model.Transaction, outcome *classifier.Outcome) (model.OutcomeSignal, error) {
	plan := outcome.ProposedNode
	if plan == nil {
		return model.OutcomeSignal{}, fmt.Errorf("proposeNode outcome without a node plan")
	}

	parentID := plan.ParentID
	if parentID == "" {
		parentID = model.RootNodeID
	}

	existing, err := e.storage.FindChild(ctx, parentID, plan.Name)
	if err != nil {
		return model.OutcomeSignal{}, fmt.Errorf("taxonomy guard lookup failed: %w", err)
	}

	if existing != nil {
		reason := model.ReasonDuplicateTaxonomy
		if e.isVague(txn.Merchant) {
			reason = model.ReasonShouldSplit
		}
		return e.queue(ctx, txn, reason, &model.Suggestion{
			NodeID:     existing.ID,
			Confidence: outcome.Confidence,
			Reasoning:  outcome.Reasoning,
		})
	}

	return e.queue(ctx, txn, model.ReasonNewTaxonomySuggestion, &model.Suggestion{
		Confidence:   outcome.Confidence,
		Reasoning:    outcome.Reasoning,
		ProposedNode: plan,
	})
}

// categorize saves a resolution and emits the categorized signal.
func (e *Engine) categorize(ctx context.Context, txn model.Transaction, outcome *classifier.Outcome, source model.ResolutionSource) (model.OutcomeSignal, error) {
	resolution := &model.Resolution{
		TransactionID: txn.ID,
		NodeID:        outcome.NodeID,
		Confidence:    outcome.Confidence,
		Reasoning:     outcome.Reasoning,
		Source:        source,
		ResolvedAt:    time.Now(),
	}
	if err := e.storage.SaveResolution(ctx, resolution); err != nil {
		return model.OutcomeSignal{}, fmt.Errorf("failed to save resolution: %w", err)
	}

	slog.Info("transaction categorized",
		"transaction_id", txn.ID,
		"node_id", outcome.NodeID,
		"confidence", outcome.Confidence,
		"source", source)

	return e.emit(ctx, model.OutcomeSignal{
		BatchID:       txn.BatchID,
		TransactionID: txn.ID,
		Kind:          model.OutcomeCategorized,
	}), nil
}

// queue parks a transaction in the review queue and emits the queued signal.
func (e *Engine) queue(ctx context.Context, txn model.Transaction, reason model.ReviewReason, suggestion *model.Suggestion) (model.OutcomeSignal, error) {
	item := &model.ReviewItem{
		TransactionID: txn.ID,
		BatchID:       txn.BatchID,
		Reason:        reason,
		Suggestion:    suggestion,
		Status:        model.ReviewPending,
	}
	if err := e.storage.SaveReviewItem(ctx, item); err != nil {
		return model.OutcomeSignal{}, fmt.Errorf("failed to queue review item: %w", err)
	}

	slog.Info("transaction queued for review",
		"transaction_id", txn.ID,
		"reason", reason)

	return e.emit(ctx, model.OutcomeSignal{
		BatchID:       txn.BatchID,
		TransactionID: txn.ID,
		Kind:          model.OutcomeQueued,
		Reason:        reason,
	}), nil
}

// fail records retry exhaustion: functionally a classifierFailure review
// case, kept distinct in the counters for reporting.
func (e *Engine) fail(ctx context.Context, txn model.Transaction) (model.OutcomeSignal, error) {
	item := &model.ReviewItem{
		TransactionID: txn.ID,
		BatchID:       txn.BatchID,
		Reason:        model.ReasonClassifierFailure,
		Status:        model.ReviewPending,
	}
	if err := e.storage.SaveReviewItem(ctx, item); err != nil {
		return model.OutcomeSignal{}, fmt.Errorf("failed to record classifier failure: %w", err)
	}

	return e.emit(ctx, model.OutcomeSignal{
		BatchID:       txn.BatchID,
		TransactionID: txn.ID,
		Kind:          model.OutcomeFailed,
		Reason:        model.ReasonClassifierFailure,
	}), nil
}

// emit dispatches an outcome signal for the completion aggregator.
func (e *Engine) emit(ctx context.Context, signal model.OutcomeSignal) model.OutcomeSignal {
	if e.bus != nil {
		e.bus.Dispatch(ctx, workflow.Signal{
			Key:     workflow.KeyOutcomePrefix + signal.BatchID,
			Payload: signal,
		})
	}
	return signal
}

// CreateNode materializes a taxonomy node through the guard and, when a
// node was actually created, announces it so the retry cascade can
// re-evaluate queued items. Announcement is fire-and-forget; node creation
// latency never waits on the cascade.
func (e *Engine) CreateNode(ctx context.Context, plan model.NodePlan) (*model.TaxonomyNode, error) {
	node, created, err := e.storage.EnsureNode(ctx, plan)
	if err != nil {
		return nil, err
	}

	if created && e.bus != nil {
		e.bus.Dispatch(ctx, workflow.Signal{
			Key:     workflow.KeyTaxonomyCreated,
			Payload: node.ID,
		})
	}
	return node, nil
}

// isVague reports whether a counterparty label matches the configured
// vague-identifier list (case-insensitive substring).
func (e *Engine) isVague(merchant string) bool {
	if merchant == "" {
		return false
	}
	lower := strings.ToLower(merchant)
	for _, vague := range e.cfg.VagueIdentifiers {
		if vague != "" && strings.Contains(lower, strings.ToLower(vague)) {
			return true
		}
	}
	return false
}

func suggestionFromOutcome(outcome *classifier.Outcome) *model.Suggestion {
	if outcome == nil || (outcome.NodeID == "" && outcome.Reasoning == "") {
		return nil
	}
	return &model.Suggestion{
		NodeID:     outcome.NodeID,
		Confidence: outcome.Confidence,
		Reasoning:  outcome.Reasoning,
	}
}
