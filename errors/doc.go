// Package errors provides standardized error handling for the earthstar-data layer.
//
// # Overview
//
// The errors package implements a three-class error classification system for
// code working against an eventually-consistent document store: Transient
// (temporary, retryable), Invalid (bad input or schema misuse, non-retryable),
// and Fatal (unrecoverable, stop processing).
//
// The schema layer itself never retries failed store operations. Classification
// exists so that callers, live views, and store implementations can make
// informed retry and shutdown decisions without hardcoded error string
// matching.
//
// # Error Classification
//
// Errors are classified based on their type or content:
//
//   - Transient: store unavailability, network timeouts, context cancellation (retry recommended)
//   - Invalid: rejected writes, malformed data, schema misuse (do not retry)
//   - Fatal: missing attachments, unsupported formats, corruption (stop processing)
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Use standard error variables for common conditions:
//
//	// Return standard error for known conditions
//	if doc.Text == "" {
//	    return errors.ErrDocNotFound
//	}
//
// Wrap errors with context for debugging:
//
//	// Wrap store errors with component context
//	if err := store.Set(ctx, author, input); err != nil {
//	    return errors.Wrap(err, "Object", "Write", "field write")
//	}
//
// Check classification before retrying:
//
//	if err := view.Err(); err != nil {
//	    if errors.IsTransient(err) {
//	        // Reopen the view; the store may be reachable again
//	    } else if errors.IsFatal(err) {
//	        // Stop processing, escalate to operator
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format enables consistent log parsing and debugging across the layer.
// The Wrap family of functions applies the pattern while preserving error
// classification through the chain:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For validation errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// The generic Wrap() function preserves the original error's classification:
//
//	errors.Wrap(err, "Component", "Method", "action")  // Preserves original class
//
// # Standard Error Variables
//
// The package provides pre-defined error variables for common conditions,
// organized by category:
//
//   - Write protocol: ErrWriteRejected
//   - Documents and attachments: ErrDocNotFound, ErrNoAttachment, ErrAttachmentUnavailable
//   - Formats: ErrUnsupportedFormat
//   - Schema usage: ErrInvalidSchemaUsage, ErrInvalidPath, ErrInvalidData
//   - Lifecycle: ErrStoreClosed, ErrStreamClosed, ErrViewClosed
//   - Availability: ErrStoreUnavailable
//
// Use these variables instead of creating custom error messages:
//
//	// Good - uses standard variable
//	if !supported {
//	    return errors.ErrUnsupportedFormat
//	}
//
//	// Avoid - custom error message
//	if !supported {
//	    return errors.New("unsupported format")
//	}
//
// Stores that refuse a mutation attach their reason with Rejected:
//
//	return errors.Rejected("path not writable by author")
//
// # Integration with errors.As/Is
//
// All error types support standard library error inspection:
//
//	// Check error classification
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    log.Printf("Component: %s, Class: %s", ce.Component, ce.Class)
//	}
//
//	// Check for specific standard errors
//	if errors.Is(err, errors.ErrDocNotFound) {
//	    // Treat as absent value
//	}
//
//	// Classification is preserved through error chains
//	wrapped := errors.Wrap(errors.ErrStoreUnavailable, "Store", "Get", "lookup")
//	if errors.IsTransient(wrapped) {  // true - classification preserved
//	    // Retry logic
//	}
//
// # Context Cancellation
//
// Context errors (context.DeadlineExceeded, context.Canceled) are classified
// as Transient, enabling consistent handling of context-based timeouts:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	if err := readValue(ctx); err != nil {
//	    if errors.IsTransient(err) {
//	        // Handles both store timeouts AND context timeouts
//	    }
//	}
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error variables
// are immutable and safe for concurrent access. The ClassifiedError type is
// safe to share across goroutines after creation.
//
// # Architecture Integration
//
// The errors package integrates with the other packages in this module:
//
//   - schema: schema nodes wrap store errors with node context and classify schema misuse as Invalid
//   - docstore: stores signal rejected writes and missing documents with standard variables
//   - natsstore: the NATS-backed store classifies connectivity failures as Transient
//   - pkg/retry: the retry package uses classification to stop retrying Invalid and Fatal errors
package errors
