// Package auth handles caller identity for the chat gateway: HS256 JWT
// minting and verification, the Identity context plumbing, and the HTTP
// middleware that enforces authentication on API endpoints. Access
// policy decisions live in the chat service, not here.
package auth
