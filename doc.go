// Package sgpauth is the account-security and lifecycle engine behind the
// SGP membership-records backend. It decides who may authenticate, contains
// brute-force attempts with Redis-backed counters, issues and redeems
// time-limited verification codes, suspends accounts that stay dormant past
// the inactivity threshold, and hands every outbound notification to a
// durable mail queue.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// sgpauth is the public surface. It exposes [Engine], [Builder], [Config],
// the store contracts ([UserStore], [TokenStore]) and the error taxonomy.
// Relational persistence lives in internal/store, the HTTP surface in
// internal/httpapi, and queue plumbing in the mailq subpackage.
//
// # What this package must NOT do
//
//   - Expose Redis clients, SQL handles, or broker channels in its public API.
//   - Block a request path on mail delivery; enqueue is always the last step
//     before returning and only guarantees broker acceptance.
//   - Fail open when the attempt-counter backend is unreachable; throttle
//     errors propagate to the caller.
package sgpauth
