// Package legacy answers whether a game account was on the server's old,
// unlinked whitelist.
package legacy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"argus/pkg/domain"
)

// Importer is consulted by the connect path; implementations must not block.
type Importer interface {
	IsLegacyWhitelisted(account domain.GameAccountID) bool
}

// Set is an in-memory Importer. Linked accounts are removed so they fall
// through to their membership status.
type Set struct {
	mu       sync.RWMutex
	accounts map[domain.GameAccountID]string
}

func NewSet() *Set {
	return &Set{accounts: make(map[domain.GameAccountID]string)}
}

func (s *Set) IsLegacyWhitelisted(account domain.GameAccountID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[account]
	return ok
}

// Add records account with its last known username.
func (s *Set) Add(account domain.GameAccountID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account] = username
}

// Username returns the username recorded for account.
func (s *Set) Username(account domain.GameAccountID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.accounts[account]
	return name, ok
}

// Remove forgets account once it has been linked.
func (s *Set) Remove(account domain.GameAccountID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, account)
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// whitelistEntry is one element of the game server's whitelist.json.
type whitelistEntry struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// LoadWhitelist reads a whitelist.json document into s. Malformed entries are
// skipped and counted.
func (s *Set) LoadWhitelist(r io.Reader) (loaded, skipped int, err error) {
	var entries []whitelistEntry
	if err := json.NewDecoder(bufio.NewReader(r)).Decode(&entries); err != nil {
		return 0, 0, fmt.Errorf("decode whitelist: %w", err)
	}
	for _, e := range entries {
		account, err := domain.ParseGameAccountID(e.UUID)
		if err != nil {
			skipped++
			continue
		}
		s.Add(account, e.Name)
		loaded++
	}
	return loaded, skipped, nil
}

// LoadWhitelistFile is LoadWhitelist on a file path. A missing file is not an
// error; there is simply nothing to import.
func (s *Set) LoadWhitelistFile(path string) (loaded, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("open whitelist: %w", err)
	}
	defer f.Close()
	return s.LoadWhitelist(f)
}
