// Package core provides the validation logic for authorization letters.
//
// This package is the heart of the validator. It knows nothing about HTTP,
// spreadsheets, PDF parsing or the company registry's wire format; those live
// behind the [Extractor] and [Registry] ports and are supplied by the caller.
// It can be driven by the web server, the CLI, or tests without modification.
//
// # Architecture
//
// The package is organized around four pieces:
//
//   - Reference Dataset: an immutable, normalized view of the company
//     spreadsheet, built with [NewReferenceDataset].
//   - Rule Engine: [RuleSet.Evaluate] applies the six validation predicates
//     to one document. It is pure and never fails.
//   - Document Processor: [Processor.Process] drives extraction, registry
//     lookup and rule evaluation for a single locator, isolating failures.
//   - Batch Orchestrator: [Orchestrator.Run] fans a bounded batch of locators
//     out to processors, emits progress events and aggregates a [BatchReport].
//
// # Running a Batch
//
//	ref := core.NewReferenceDataset(records)
//	orch := core.NewOrchestrator(core.NewProcessor(extractor, registry, cfg), core.OrchestratorConfig{})
//	report, err := orch.Run(ctx, ref, []string{urlA, urlB}, func(ev core.Event) {
//	    log.Println(ev.Type, ev.Index)
//	})
//
// Results in the report are always in submission order, regardless of the
// order in which documents finish.
//
// # Error Handling
//
// Batch-level failures are returned as errors ([ErrInvalidBatchSize],
// [ErrCancelledBatch]). Document-level failures never abort the batch: an
// [ExtractionError] turns that document's status into "error", while a
// [RegistryError] only clears the two registry-dependent flags.
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - BATCH001-BATCH003: Batch size and cancellation
//   - EXT001-EXT004: Document extraction failures
//   - REG001-REG003: Registry lookup failures
//   - REF001-REF004: Reference spreadsheet errors
//   - RUN001-RUN004: Run session errors
//   - REQ001, RATE001: Malformed and rate-limited requests
//   - ERR000: Anything unrecognized
package core
