package esignsync

import (
	"context"
	"errors"
	"strings"
	"time"
)

// LookupStrategy resolves an external reference to an agreement.
// Implementations return ErrAgreementNotFound on a clean miss.
type LookupStrategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// Lookup attempts to resolve the reference.
	Lookup(ctx context.Context, reference string) (*Agreement, error)
}

// Locator resolves an external reference to exactly one agreement using a
// prioritized chain of lookup strategies, stopping at the first hit.
type Locator struct {
	strategies []LookupStrategy
	timeout    time.Duration
	logger     Logger
	metrics    Metrics
}

// NewLocator creates a locator over the default strategy chain for store:
// primary reference, then legacy reference, then (only when fuzzy is true)
// a case-insensitive prefix match for diagnostic callers.
func NewLocator(store AgreementStore, fuzzy bool, logger Logger, metrics Metrics) *Locator {
	strategies := []LookupStrategy{
		primaryReferenceStrategy{store: store},
		legacyReferenceStrategy{store: store},
	}
	if fuzzy {
		strategies = append(strategies, fuzzyPrefixStrategy{store: store})
	}
	return NewLocatorWithStrategies(strategies, logger, metrics)
}

// NewLocatorWithStrategies creates a locator over an explicit chain.
func NewLocatorWithStrategies(strategies []LookupStrategy, logger Logger, metrics Metrics) *Locator {
	if logger == nil {
		logger = &NoopLogger{}
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &Locator{
		strategies: strategies,
		timeout:    5 * time.Second,
		logger:     logger,
		metrics:    metrics,
	}
}

// Locate resolves reference to an agreement. A miss is reported as
// ErrAgreementNotFound; any other error means the store itself failed.
func (l *Locator) Locate(ctx context.Context, reference string) (*Agreement, error) {
	var lastErr error
	for _, strategy := range l.strategies {
		opCtx, cancel := context.WithTimeout(ctx, l.timeout)
		agreement, err := strategy.Lookup(opCtx, reference)
		cancel()

		switch {
		case err == nil && agreement != nil:
			l.metrics.RecordLocate(strategy.Name(), true)
			l.logger.Debug("agreement located",
				Field{"strategy", strategy.Name()},
				Field{"agreementId", agreement.ID},
			)
			return agreement, nil
		case errors.Is(err, ErrAgreementNotFound):
			// Clean miss, try the next strategy.
		case err != nil:
			lastErr = err
			l.logger.Warn("lookup strategy failed",
				Field{"strategy", strategy.Name()},
				Field{"error", err},
			)
		}
	}

	l.metrics.RecordLocate("", false)
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrAgreementNotFound
}

type primaryReferenceStrategy struct {
	store AgreementStore
}

func (s primaryReferenceStrategy) Name() string { return "primary_reference" }

func (s primaryReferenceStrategy) Lookup(ctx context.Context, reference string) (*Agreement, error) {
	if normalized, ok := NormalizeReference(reference); ok {
		reference = normalized
	}
	return s.store.GetAgreementByReference(ctx, reference)
}

type legacyReferenceStrategy struct {
	store AgreementStore
}

func (s legacyReferenceStrategy) Name() string { return "legacy_reference" }

func (s legacyReferenceStrategy) Lookup(ctx context.Context, reference string) (*Agreement, error) {
	return s.store.GetAgreementByLegacyReference(ctx, reference)
}

// fuzzyPrefixStrategy is the last-resort diagnostic lookup. It only accepts a
// result when the prefix match is unambiguous.
type fuzzyPrefixStrategy struct {
	store AgreementStore
}

func (s fuzzyPrefixStrategy) Name() string { return "fuzzy_prefix" }

func (s fuzzyPrefixStrategy) Lookup(ctx context.Context, reference string) (*Agreement, error) {
	prefix := strings.ToLower(strings.TrimSpace(reference))
	if len(prefix) < 8 {
		return nil, ErrAgreementNotFound
	}
	matches, err := s.store.SearchAgreementsByReferencePrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		return nil, ErrAgreementNotFound
	}
	return matches[0], nil
}
