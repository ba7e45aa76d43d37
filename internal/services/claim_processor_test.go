package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mroshb/tiktok_claims/internal/models"
	"github.com/mroshb/tiktok_claims/pkg/errors"
)

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []models.ClaimOutcome
	err      error
}

func (n *recordingNotifier) ClaimSettled(_ context.Context, outcome *models.ClaimOutcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, *outcome)
	return n.err
}

func newTestProcessor(store *memStore, at time.Time, opts ...ProcessorOption) *ClaimProcessor {
	opts = append([]ProcessorOption{WithClock(func() time.Time { return at })}, opts...)
	return NewClaimProcessor(store, store, DefaultClaimRules(), opts...)
}

func submit(store *memStore, id, uid, amount string, videoIndex *int) models.ClaimEvent {
	claim := models.Claim{ID: id, UID: uid, RewardAmount: amount, VideoIndex: videoIndex}
	store.putClaim(claim)
	return claim.Event()
}

func assertRejected(t *testing.T, store *memStore, outcome *models.ClaimOutcome, claimID, reason string) {
	t.Helper()
	if outcome.Processed || outcome.Reason != reason {
		t.Errorf("outcome = %+v, want rejected with %q", outcome, reason)
	}
	claim := store.claim(claimID)
	if claim.Processed == nil || *claim.Processed {
		t.Errorf("claim.Processed = %v, want false", claim.Processed)
	}
	if claim.Reason == nil || *claim.Reason != reason {
		t.Errorf("claim.Reason = %v, want %q", claim.Reason, reason)
	}
	if len(store.historyFor(claimID)) != 0 {
		t.Error("rejected claim must not have history")
	}
}

func TestProcess_ValidationRejections(t *testing.T) {
	tests := []struct {
		name       string
		uid        string
		amount     string
		at         time.Time
		wantReason string
	}{
		{name: "Missing uid", uid: "", amount: "250", at: monday, wantReason: models.ReasonUIDMissing},
		{name: "Absent reward amount", uid: "u1", amount: "", at: monday, wantReason: models.ReasonInvalidRewardAmount},
		{name: "Wrong reward amount", uid: "u1", amount: "300", at: monday, wantReason: models.ReasonInvalidRewardAmount},
		{name: "Not Monday", uid: "u1", amount: "250", at: tuesday, wantReason: models.ReasonNotMonday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.putUser(models.User{ID: "u1", Solde: 1000})
			notifier := &recordingNotifier{}
			p := newTestProcessor(store, tt.at, WithNotifier(notifier))

			outcome, err := p.Process(context.Background(), submit(store, "c1", tt.uid, tt.amount, nil))
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}

			assertRejected(t, store, outcome, "c1", tt.wantReason)
			if store.decideCalls != 0 {
				t.Errorf("transaction attempted %d times, want 0", store.decideCalls)
			}
			if u := store.user("u1"); u.Solde != 1000 || u.TiktokGains != 0 {
				t.Errorf("user touched: %+v", u)
			}
			if len(notifier.outcomes) != 1 || notifier.outcomes[0].Reason != tt.wantReason {
				t.Errorf("notifications = %+v", notifier.outcomes)
			}
		})
	}
}

func TestProcess_UserNotFound(t *testing.T) {
	store := newMemStore()
	p := newTestProcessor(store, monday)

	outcome, err := p.Process(context.Background(), submit(store, "c1", "ghost", "250", nil))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	assertRejected(t, store, outcome, "c1", models.ReasonUserNotFound)
	if store.historyLen() != 0 {
		t.Errorf("history entries = %d, want 0", store.historyLen())
	}
}

func TestProcess_LimitReached(t *testing.T) {
	store := newMemStore()
	store.putUser(models.User{
		ID:                  "u1",
		Solde:               500,
		TiktokGains:         500,
		TikTokWatchesToday:  2,
		TikTokEarningsToday: 500,
		LastTikTokWatchDate: strPtr("2024-03-04"),
	})
	p := newTestProcessor(store, monday)

	outcome, err := p.Process(context.Background(), submit(store, "c3", "u1", "250", nil))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	assertRejected(t, store, outcome, "c3", models.ReasonLimitReached)
	u := store.user("u1")
	if u.Solde != 500 || u.TiktokGains != 500 || u.TikTokWatchesToday != 2 || u.TikTokEarningsToday != 500 {
		t.Errorf("user changed after limit_reached: %+v", u)
	}
	if store.userWrites != 0 {
		t.Errorf("user writes = %d, want 0", store.userWrites)
	}
}

func TestProcess_DateRollover(t *testing.T) {
	store := newMemStore()
	store.putUser(models.User{
		ID:                  "u1",
		Solde:               500,
		TiktokGains:         500,
		TikTokWatchesToday:  2,
		TikTokEarningsToday: 500,
		LastTikTokWatchDate: strPtr("2024-03-03"),
	})
	p := newTestProcessor(store, monday)

	outcome, err := p.Process(context.Background(), submit(store, "c1", "u1", "250", nil))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !outcome.Processed {
		t.Fatalf("outcome = %+v, want processed", outcome)
	}

	u := store.user("u1")
	if u.TikTokWatchesToday != 1 {
		t.Errorf("TikTokWatchesToday = %d, want 1", u.TikTokWatchesToday)
	}
	if u.TikTokEarningsToday != 250 {
		t.Errorf("TikTokEarningsToday = %d, want 250", u.TikTokEarningsToday)
	}
	if u.LastTikTokWatchDate == nil || *u.LastTikTokWatchDate != "2024-03-04" {
		t.Errorf("LastTikTokWatchDate = %v, want 2024-03-04", u.LastTikTokWatchDate)
	}
	if u.Solde != 750 || u.TiktokGains != 750 {
		t.Errorf("Solde = %d, TiktokGains = %d, want 750 each", u.Solde, u.TiktokGains)
	}
}

func TestProcess_SuccessSnapshot(t *testing.T) {
	store := newMemStore()
	store.putUser(models.User{ID: "u1"})
	notifier := &recordingNotifier{}
	p := newTestProcessor(store, monday, WithNotifier(notifier))

	outcome, err := p.Process(context.Background(), submit(store, "c1", "u1", "250", intPtr(1)))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	claim := store.claim("c1")
	if claim.Processed == nil || !*claim.Processed {
		t.Fatalf("claim.Processed = %v, want true", claim.Processed)
	}
	if claim.Reason != nil {
		t.Errorf("claim.Reason = %q, want nil", *claim.Reason)
	}
	if claim.ProcessedAt == nil {
		t.Error("claim.ProcessedAt not set")
	}
	if claim.NewBalance == nil || *claim.NewBalance != 250 {
		t.Errorf("newBalance = %v, want 250", claim.NewBalance)
	}
	if claim.VideosWatchedToday == nil || *claim.VideosWatchedToday != 1 {
		t.Errorf("videosWatchedToday = %v, want 1", claim.VideosWatchedToday)
	}
	if claim.EarningsToday == nil || *claim.EarningsToday != 250 {
		t.Errorf("earningsToday = %v, want 250", claim.EarningsToday)
	}

	history := store.historyFor("c1")
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	h := history[0]
	if h.UserID != "u1" || h.RewardAmount != 250 || h.VideoIndex == nil || *h.VideoIndex != 1 || h.CreatedAt.IsZero() {
		t.Errorf("history entry = %+v", h)
	}

	if outcome.Snapshot == nil || outcome.Snapshot.NewBalance != 250 {
		t.Errorf("outcome.Snapshot = %+v", outcome.Snapshot)
	}
	if len(notifier.outcomes) != 1 || !notifier.outcomes[0].Processed {
		t.Errorf("notifications = %+v", notifier.outcomes)
	}
}

func TestProcess_BalanceAccounting(t *testing.T) {
	store := newMemStore()
	store.putUser(models.User{ID: "u1", Solde: 1234, TiktokGains: 40})
	p := newTestProcessor(store, monday)

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("c%d", i)
		if _, err := p.Process(context.Background(), submit(store, id, "u1", "250", nil)); err != nil {
			t.Fatalf("Process(%s) error = %v", id, err)
		}
	}

	u := store.user("u1")
	if u.Solde != 1234+500 {
		t.Errorf("Solde = %d, want %d", u.Solde, 1234+500)
	}
	if u.TiktokGains != 40+500 {
		t.Errorf("TiktokGains = %d, want %d", u.TiktokGains, 40+500)
	}
	if u.TikTokWatchesToday != 2 {
		t.Errorf("TikTokWatchesToday = %d, want 2", u.TikTokWatchesToday)
	}
	if reason := store.claim("c3").Reason; reason == nil || *reason != models.ReasonLimitReached {
		t.Errorf("third claim reason = %v, want limit_reached", reason)
	}
}

func TestProcess_ConcurrentClaimsRespectCap(t *testing.T) {
	store := newMemStore()
	store.putUser(models.User{ID: "u1"})
	p := newTestProcessor(store, monday)

	const claims = 3
	events := make([]models.ClaimEvent, claims)
	for i := range events {
		events[i] = submit(store, fmt.Sprintf("c%d", i+1), "u1", "250", intPtr(i))
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]*models.ClaimOutcome, claims)
	errs := make([]error, claims)
	for i := range events {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = p.Process(context.Background(), events[i])
		}(i)
	}
	close(start)
	wg.Wait()

	successes, limited := 0, 0
	for i, outcome := range results {
		if errs[i] != nil {
			t.Fatalf("Process(%s) error = %v", events[i].ClaimID, errs[i])
		}
		switch {
		case outcome.Processed:
			successes++
		case outcome.Reason == models.ReasonLimitReached:
			limited++
		default:
			t.Errorf("unexpected outcome %+v", outcome)
		}
	}

	if successes != 2 || limited != 1 {
		t.Errorf("successes = %d, limited = %d, want 2 and 1", successes, limited)
	}
	u := store.user("u1")
	if u.Solde != 500 || u.TiktokGains != 500 || u.TikTokWatchesToday != 2 || u.TikTokEarningsToday != 500 {
		t.Errorf("user = %+v, want two credits", u)
	}
	if store.historyLen() != 2 {
		t.Errorf("history entries = %d, want 2", store.historyLen())
	}
}

func TestProcess_TransactionBodyRerunsOnConflict(t *testing.T) {
	store := newMemStore()
	store.putUser(models.User{ID: "u1", TikTokWatchesToday: 1, TikTokEarningsToday: 250, LastTikTokWatchDate: strPtr("2024-03-04")})

	// A concurrent writer commits the second watch of the day between our
	// read and our commit on the first attempt only.
	store.betweenReadAndCommit = func(attempt int) {
		if attempt != 1 {
			return
		}
		u := store.user("u1")
		u.TikTokWatchesToday = 2
		u.TikTokEarningsToday = 500
		u.Solde += 250
		store.putUser(u)
	}
	p := newTestProcessor(store, monday)

	outcome, err := p.Process(context.Background(), submit(store, "c1", "u1", "250", nil))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if store.decideCalls != 2 {
		t.Errorf("decide calls = %d, want 2", store.decideCalls)
	}
	assertRejected(t, store, outcome, "c1", models.ReasonLimitReached)
	if u := store.user("u1"); u.Solde != 250 || u.TikTokWatchesToday != 2 {
		t.Errorf("user = %+v, want only the concurrent credit", u)
	}
}

func TestProcess_RedeliveryDoesNotDoubleCredit(t *testing.T) {
	store := newMemStore()
	store.putUser(models.User{ID: "u1"})
	p := newTestProcessor(store, monday)
	event := submit(store, "c1", "u1", "250", nil)

	if _, err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	outcome, err := p.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	if !outcome.Duplicate || !outcome.Processed {
		t.Errorf("second outcome = %+v, want duplicate of processed claim", outcome)
	}
	if u := store.user("u1"); u.Solde != 250 || u.TikTokWatchesToday != 1 {
		t.Errorf("user = %+v, want a single credit", u)
	}
	if store.historyLen() != 1 {
		t.Errorf("history entries = %d, want 1", store.historyLen())
	}
}

func TestProcess_RedeliveryRacingInsideTransaction(t *testing.T) {
	store := newMemStore()
	store.putUser(models.User{ID: "u1"})
	p := newTestProcessor(store, monday)
	event := submit(store, "c1", "u1", "250", nil)

	// The claim is settled by another invocation after our pre-check but before
	// our transaction reads it.
	store.betweenReadAndCommit = func(attempt int) {
		if attempt != 1 {
			return
		}
		c := store.claim("c1")
		processed := true
		c.Processed = &processed
		store.putClaim(c)
	}

	outcome, err := p.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !outcome.Duplicate {
		t.Errorf("outcome = %+v, want duplicate", outcome)
	}
	if store.historyLen() != 0 || store.user("u1").Solde != 0 {
		t.Error("settled claim must not be credited again")
	}
}

func TestProcess_RejectionIsNotOverwritten(t *testing.T) {
	store := newMemStore()
	store.putUser(models.User{ID: "u1"})
	event := submit(store, "c1", "u1", "250", nil)

	if _, err := newTestProcessor(store, tuesday).Process(context.Background(), event); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	outcome, err := newTestProcessor(store, monday).Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process() redelivery error = %v", err)
	}

	if !outcome.Duplicate {
		t.Errorf("outcome = %+v, want duplicate", outcome)
	}
	if reason := store.claim("c1").Reason; reason == nil || *reason != models.ReasonNotMonday {
		t.Errorf("reason = %v, want not_monday kept", reason)
	}
	if store.user("u1").Solde != 0 {
		t.Error("rejected claim credited on redelivery")
	}
}

func TestProcess_EnrichmentFailureKeepsCommit(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *memStore)
	}{
		{
			name:  "User read fails",
			setup: func(s *memStore) { s.getUserErr = fmt.Errorf("read timeout") },
		},
		{
			name:  "Snapshot write fails",
			setup: func(s *memStore) { s.snapshotErr = fmt.Errorf("write timeout") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.putUser(models.User{ID: "u1"})
			event := submit(store, "c1", "u1", "250", nil)
			tt.setup(store)

			outcome, err := newTestProcessor(store, monday).Process(context.Background(), event)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if !outcome.Processed || outcome.Snapshot != nil {
				t.Errorf("outcome = %+v, want processed without snapshot", outcome)
			}

			claim := store.claim("c1")
			if claim.Processed == nil || !*claim.Processed {
				t.Error("claim must stay processed")
			}
			if claim.NewBalance != nil {
				t.Error("snapshot fields must be absent")
			}
			if store.user("u1").Solde != 250 {
				t.Error("committed credit must not be reverted")
			}
		})
	}
}

func TestProcess_NotifierFailureIsSwallowed(t *testing.T) {
	store := newMemStore()
	store.putUser(models.User{ID: "u1"})
	notifier := &recordingNotifier{err: fmt.Errorf("redis down")}
	p := newTestProcessor(store, monday, WithNotifier(notifier))

	outcome, err := p.Process(context.Background(), submit(store, "c1", "u1", "250", nil))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !outcome.Processed {
		t.Errorf("outcome = %+v, want processed", outcome)
	}
}

func TestProcess_StoreErrors(t *testing.T) {
	t.Run("Unknown claim", func(t *testing.T) {
		store := newMemStore()
		p := newTestProcessor(store, monday)

		_, err := p.Process(context.Background(), models.ClaimEvent{ClaimID: "missing", UID: "u1", RewardAmount: "250"})
		if !errors.HasCode(err, errors.ErrCodeNotFound) {
			t.Fatalf("Process() error = %v, want NOT_FOUND", err)
		}
		if IsRetryable(err) {
			t.Error("IsRetryable() = true for a missing claim")
		}
	})

	t.Run("Transaction fault", func(t *testing.T) {
		store := newMemStore()
		store.putUser(models.User{ID: "u1"})
		store.executeErr = errors.New(errors.ErrCodeInternalError, "connection refused")
		p := newTestProcessor(store, monday)

		outcome, err := p.Process(context.Background(), submit(store, "c1", "u1", "250", nil))
		if err == nil {
			t.Fatalf("Process() outcome = %+v, want error", outcome)
		}
		if !IsRetryable(err) {
			t.Error("IsRetryable() = false for a transient fault")
		}
		if c := store.claim("c1"); c.IsTerminal() {
			t.Error("claim must stay unprocessed so it is delivered again")
		}
	})
}
