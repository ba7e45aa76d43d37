package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mroshb/tiktok_claims/internal/models"
	"github.com/mroshb/tiktok_claims/pkg/errors"
)

// memStore is an optimistic in-memory store: a transaction reads versioned
// copies, runs decide, and commits only if nothing it read changed meanwhile.
// Otherwise the attempt is thrown away and decide runs again on fresh reads.
type memStore struct {
	mu       sync.Mutex
	claims   map[string]*models.Claim
	users    map[string]*models.User
	claimVer map[string]int
	userVer  map[string]int
	history  []models.ClaimHistoryEntry

	maxAttempts int
	clock       time.Time
	decideCalls int
	userWrites  int

	// betweenReadAndCommit runs on every attempt after decide, outside the lock.
	betweenReadAndCommit func(attempt int)
	getUserErr           error
	snapshotErr          error
	executeErr           error
}

func newMemStore() *memStore {
	return &memStore{
		claims:      make(map[string]*models.Claim),
		users:       make(map[string]*models.User),
		claimVer:    make(map[string]int),
		userVer:     make(map[string]int),
		maxAttempts: 10,
		clock:       time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) putUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
	s.userVer[u.ID]++
}

func (s *memStore) putClaim(c models.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[c.ID] = &c
	s.claimVer[c.ID]++
}

func (s *memStore) user(id string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

func (s *memStore) claim(id string) models.Claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.claims[id]
}

func (s *memStore) historyFor(claimID string) []models.ClaimHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ClaimHistoryEntry
	for _, h := range s.history {
		if h.ClaimID == claimID {
			out = append(out, h)
		}
	}
	return out
}

func (s *memStore) historyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *memStore) GetClaim(_ context.Context, id string) (*models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "claim not found")
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getUserErr != nil {
		return nil, s.getUserErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) RejectClaim(_ context.Context, id, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok || c.IsTerminal() {
		return false, nil
	}
	processed := false
	c.Processed = &processed
	c.Reason = &reason
	s.claimVer[id]++
	return true, nil
}

func (s *memStore) SaveSnapshot(_ context.Context, id string, snapshot models.ClaimSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshotErr != nil {
		return s.snapshotErr
	}
	c := s.claims[id]
	c.NewBalance = &snapshot.NewBalance
	c.VideosWatchedToday = &snapshot.VideosWatchedToday
	c.EarningsToday = &snapshot.EarningsToday
	return nil
}

func (s *memStore) ExecuteClaim(_ context.Context, claimID, uid string, decide models.DecideFunc) (models.ClaimDecision, error) {
	if s.executeErr != nil {
		return models.ClaimDecision{}, s.executeErr
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.mu.Lock()
		stored, ok := s.claims[claimID]
		if !ok {
			s.mu.Unlock()
			return models.ClaimDecision{}, errors.New(errors.ErrCodeNotFound, "claim not found")
		}
		claim := *stored
		claimVer := s.claimVer[claimID]
		var user *models.User
		if u, ok := s.users[uid]; ok {
			cp := *u
			user = &cp
		}
		userVer := s.userVer[uid]
		s.decideCalls++
		s.mu.Unlock()

		decision := decide(&claim, user)

		if s.betweenReadAndCommit != nil {
			s.betweenReadAndCommit(attempt)
		}

		s.mu.Lock()
		if s.claimVer[claimID] != claimVer || s.userVer[uid] != userVer {
			s.mu.Unlock()
			continue
		}
		s.apply(claimID, uid, decision)
		s.mu.Unlock()
		return decision, nil
	}
	return models.ClaimDecision{}, errors.New(errors.ErrCodeConflict, fmt.Sprintf("claim %s: retries exhausted", claimID))
}

// apply must be called with s.mu held.
func (s *memStore) apply(claimID, uid string, decision models.ClaimDecision) {
	if decision.Skip {
		return
	}

	c := s.claims[claimID]
	if decision.Credit == nil {
		processed := false
		reason := decision.Reason
		c.Processed = &processed
		c.Reason = &reason
		s.claimVer[claimID]++
		return
	}

	credit := decision.Credit
	u := s.users[uid]
	u.Solde += credit.Amount
	u.TiktokGains += credit.Amount
	u.TikTokWatchesToday = credit.Daily.WatchesToday
	u.TikTokEarningsToday = credit.Daily.EarningsToday
	date := credit.Daily.Date
	u.LastTikTokWatchDate = &date
	s.userVer[uid]++
	s.userWrites++

	s.history = append(s.history, models.ClaimHistoryEntry{
		ID:           fmt.Sprintf("h%d", len(s.history)+1),
		UserID:       uid,
		ClaimID:      claimID,
		RewardAmount: credit.Amount,
		VideoIndex:   credit.VideoIndex,
		CreatedAt:    s.clock,
	})

	processed := true
	processedAt := s.clock
	c.Processed = &processed
	c.ProcessedAt = &processedAt
	c.Reason = nil
	s.claimVer[claimID]++
}
