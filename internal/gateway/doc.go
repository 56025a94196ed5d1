// Package gateway is the chat-gateway server: it wires the store, chat
// service, and broadcaster behind one HTTP server carrying both
// transports. The REST endpoints are the pull path and the correctness
// backstop; /api/ws is the push path, a latency optimization that never
// has exclusive custody of any state transition.
//
// Endpoints:
//
//	GET  /health                     liveness
//	GET  /health/ready               store reachability
//	POST /api/messages               send (Idempotency-Key aware)
//	GET  /api/messages?contact_id=N  thread history
//	POST /api/messages/{id}/read     mark read
//	GET  /api/messages/unread/count  staff unread badge
//	GET  /api/conversations          staff conversation list
//	GET|POST /api/contacts           staff contact directory
//	GET  /api/ws                     websocket push session
package gateway
