package core

// processor.go runs one document through extraction, registry lookup and
// rule evaluation.
//
// Failure isolation:
//  1. Extraction failure: terminal, status "error", nothing else runs.
//  2. No tax id extracted: registry is skipped, registry flags stay false.
//  3. Registry failure: soft, recorded in RegistryError, status is still
//     "valid" or "invalid".
//
// The processor holds no state between calls and is safe for concurrent use.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultExtractTimeout bounds a single extraction call.
const DefaultExtractTimeout = 30 * time.Second

// DefaultRegistryTimeout bounds a single registry lookup.
const DefaultRegistryTimeout = 10 * time.Second

// ProcessorConfig holds per-call limits and the rule parameters.
type ProcessorConfig struct {
	ExtractTimeout  time.Duration
	RegistryTimeout time.Duration
	Rules           RuleSet
	Clock           Clock
	Logger          *slog.Logger
}

// Processor validates one document at a time.
type Processor struct {
	extractor Extractor
	registry  Registry
	cfg       ProcessorConfig
}

// NewProcessor creates a processor. Zero config values fall back to defaults.
func NewProcessor(extractor Extractor, registry Registry, cfg ProcessorConfig) *Processor {
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = DefaultExtractTimeout
	}
	if cfg.RegistryTimeout <= 0 {
		cfg.RegistryTimeout = DefaultRegistryTimeout
	}
	if cfg.Rules == (RuleSet{}) {
		cfg.Rules = DefaultRuleSet()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Processor{
		extractor: extractor,
		registry:  registry,
		cfg:       cfg,
	}
}

// Process validates the document behind locator against ref.
// It always returns a result with a terminal status.
func (p *Processor) Process(ctx context.Context, locator string, ref *ReferenceDataset) DocumentResult {
	start := time.Now()
	logger := p.cfg.Logger.With("locator", locator)

	result := DocumentResult{Locator: locator}

	fields, err := p.extract(ctx, locator, ref)
	if err != nil {
		result.Status = StatusError
		result.ErrorDetail = err.Detail
		logger.Warn("document extraction failed",
			"kind", err.Kind,
			"error", err.Detail,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result
	}
	result.ExtractedFields = fields

	if taxID := NormalizeTaxID(fields.TaxID); taxID != "" {
		record, regErr := p.lookup(ctx, taxID)
		if regErr != nil {
			result.RegistryError = regErr.Error()
			logger.Warn("registry unavailable",
				"tax_id", taxID,
				"kind", regErr.Kind,
				"error", regErr.Detail,
			)
		} else {
			result.RegistryRecord = record
		}
	} else {
		logger.Debug("no tax id extracted, skipping registry lookup")
	}

	result.ValidationFlags = p.cfg.Rules.Evaluate(fields, ref, result.RegistryRecord, p.cfg.Clock())
	if result.ValidationFlags.All() {
		result.Status = StatusValid
	} else {
		result.Status = StatusInvalid
	}

	logger.Info("document processed",
		"status", result.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

func (p *Processor) extract(ctx context.Context, locator string, ref *ReferenceDataset) (*ExtractedFields, *ExtractionError) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()

	req := ExtractRequest{Locator: locator}
	if ref != nil {
		req.Contacts = ref.NetworkContacts()
	}

	fields, err := p.extractor.Extract(ctx, req)
	if err != nil {
		return nil, asExtractionError(err)
	}
	if fields == nil {
		fields = &ExtractedFields{}
	}
	return fields, nil
}

func (p *Processor) lookup(ctx context.Context, taxID string) (*RegistryRecord, *RegistryError) {
	if p.registry == nil {
		return nil, &RegistryError{Kind: KindNetwork, Detail: "no registry configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RegistryTimeout)
	defer cancel()

	record, err := p.registry.Lookup(ctx, taxID)
	if err != nil {
		return nil, asRegistryError(err)
	}
	if record == nil {
		return nil, &RegistryError{Kind: KindNotFound, Detail: "no record for " + taxID}
	}
	return record, nil
}
