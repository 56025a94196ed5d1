// Package client talks to the chat gateway. Client wraps the REST pull
// API, PushSession wraps the websocket push channel, and Channel
// combines the two: operations go over push when it is healthy and fall
// back to pull with the same idempotency key when it is not, with a
// fixed-interval poll as the liveness backstop.
package client
