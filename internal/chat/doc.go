// Package chat is the service layer between the transports and the
// message store. It enforces the two-role access policy, keeps sends
// idempotent across channel retries, and fans out push events after a
// write is durable.
package chat
