// Package dedupe provides a TTL cache from idempotency key to stored
// message id, backing the at-most-once guarantee for sends retried
// across the push and pull channels.
package dedupe
