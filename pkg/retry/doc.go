// Package retry provides simple exponential backoff retry logic for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff, designed
// for compare-and-swap write loops and store reconnection in the NATS-backed
// document store.
//
// # Core Functions
//
//   - Do: Execute function with retry and exponential backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Conflict(): 10 attempts, 10ms-500ms delay (compare-and-swap conflicts)
//   - Persistent(): 30 attempts, 200ms-10s delay (store unreachable)
//
// # Usage Examples
//
// Basic retry with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return store.Set(ctx, author, input)
//	})
//
// Compare-and-swap update loop:
//
//	err := retry.Do(ctx, retry.Conflict(), func() error {
//	    entry, err := kv.Get(ctx, key)
//	    if err != nil {
//	        return err
//	    }
//	    _, err = kv.Update(ctx, key, next(entry.Value()), entry.Revision())
//	    return err
//	})
//
// Retry with result:
//
//	bucket, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (jetstream.KeyValue, error) {
//	    return js.KeyValue(ctx, bucketName)
//	})
//
// Custom configuration:
//
//	cfg := retry.Config{
//	    MaxAttempts:  5,
//	    InitialDelay: 200 * time.Millisecond,
//	    MaxDelay:     10 * time.Second,
//	    Multiplier:   2.0,
//	    AddJitter:    true,
//	}
//	err := retry.Do(ctx, cfg, operation)
//
// # Error Classification
//
// Do consults the errors package before sleeping: errors classified Invalid or
// Fatal fail immediately without further attempts, since retrying a rejected
// write or a corrupted document cannot succeed. Arbitrary errors can also be
// excluded from retry explicitly:
//
//	return retry.NonRetryable(err)
//
// # Context Cancellation
//
// All retry operations respect context cancellation and will immediately stop retrying
// when the context is cancelled, either during operation execution or during backoff delay.
//
// # Thread Safety
//
// All functions are safe for concurrent use. The jitter mechanism uses a thread-safe
// random source to avoid contention.
package retry
