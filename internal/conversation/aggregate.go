// ABOUTME: Pure conversation aggregation over the message log
// ABOUTME: Conversations are a recomputed projection, never a stored table

package conversation

import (
	"sort"
	"strings"

	"github.com/corretora/chat-gateway/internal/store"
)

// Profile is the slice of the contact directory the aggregator needs for
// display-name resolution. A zero Profile is valid for unknown contacts.
type Profile struct {
	Email     string
	KnownName string
	Phone     string
}

// Conversation is the derived thread of all messages sharing one contact.
type Conversation struct {
	ContactID   int64
	Email       string
	Phone       string
	DisplayName string
	Subject     string
	Messages    []*store.Message
	Latest      *store.Message
	UnreadCount int
}

// PreviewText returns the list-rendering preview of the latest message.
func (c *Conversation) PreviewText() string {
	if c.Latest == nil {
		return "No message"
	}
	return Preview(c.Latest.Body)
}

// Aggregate groups messages by contact and derives one Conversation per
// distinct contact id. profiles maps contact id to directory data and may
// be nil. The result is sorted by latest message time descending and does
// not depend on the input order of messages.
func Aggregate(messages []*store.Message, profiles map[int64]Profile) []*Conversation {
	groups := make(map[int64][]*store.Message)
	for _, msg := range messages {
		groups[msg.ContactID] = append(groups[msg.ContactID], msg)
	}

	conversations := make([]*Conversation, 0, len(groups))
	for contactID, group := range groups {
		// Canonical oldest-first order inside the thread; id breaks ties.
		sort.Slice(group, func(i, j int) bool {
			if group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].ID < group[j].ID
			}
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})

		conv := &Conversation{
			ContactID: contactID,
			Messages:  group,
			Latest:    group[len(group)-1],
		}

		profile := profiles[contactID]
		conv.Email = profile.Email
		conv.Phone = profile.Phone

		for _, msg := range group {
			if !msg.FromContact() {
				continue
			}
			if conv.Subject == "" {
				if subject, ok := ExtractSubject(msg.Body); ok {
					conv.Subject = subject
				}
			}
			if !msg.Read {
				conv.UnreadCount++
			}
		}

		conv.DisplayName = resolveDisplayName(group, profile)
		conversations = append(conversations, conv)
	}

	sort.Slice(conversations, func(i, j int) bool {
		a, b := conversations[i].Latest, conversations[j].Latest
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	return conversations
}

// resolveDisplayName picks a name for the conversation list. Priority:
// the directory's known name, then the earliest contact-authored message
// carrying a "Contact:" line, then the email local-part, then "Unknown".
// group must be sorted oldest first.
func resolveDisplayName(group []*store.Message, profile Profile) string {
	if name := strings.TrimSpace(profile.KnownName); name != "" {
		return name
	}

	for _, msg := range group {
		if !msg.FromContact() {
			continue
		}
		if name, ok := ExtractContactName(msg.Body); ok {
			return name
		}
	}

	if at := strings.Index(profile.Email, "@"); at > 0 {
		return Capitalize(profile.Email[:at])
	}

	return "Unknown"
}
