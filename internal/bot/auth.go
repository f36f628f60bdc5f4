package bot

import (
	"strings"
	"sync"
)

// authStore tracks which chats have proven ownership of the allowed
// phone number. In-memory only: a restart re-asks for the contact.
type authStore struct {
	mu      sync.Mutex
	allowed string
	chats   map[int64]bool
}

func newAuthStore(allowedPhone string) *authStore {
	return &authStore{
		allowed: CleanPhone(allowedPhone),
		chats:   make(map[int64]bool),
	}
}

// TryAuthorize compares a shared contact's number against the allowed
// one (digits only) and remembers the chat on a match.
func (a *authStore) TryAuthorize(chatID int64, phone string) bool {
	if CleanPhone(phone) != a.allowed || a.allowed == "" {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.chats[chatID] = true
	return true
}

// IsAuthorized reports whether a chat has passed the phone check.
func (a *authStore) IsAuthorized(chatID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chats[chatID]
}

// Chats returns the authorized chat IDs.
func (a *authStore) Chats() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]int64, 0, len(a.chats))
	for id := range a.chats {
		out = append(out, id)
	}
	return out
}

// CleanPhone strips everything but digits from a phone number.
func CleanPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
