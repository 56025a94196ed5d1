// Package conversation derives conversation threads from the message log
// and fans out store-confirmed events to push subscribers. Conversations
// are a pure projection recomputed on demand, so they can never drift
// from the stored messages. Display names and subjects come from labeled
// lines in historical free-text bodies; see extract.go.
package conversation
