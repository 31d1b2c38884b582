package shortid

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/model"
)

// fakeStore is an in-memory ProfileStore with hooks for forcing collisions.
type fakeStore struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile // accountID → profile
	byShort  map[string]string         // shortID → accountID

	// forceTaken makes ShortIDTaken report true for the first n calls,
	// regardless of actual contents — simulates repeated collisions.
	forceTaken int
	// conflictOnSet makes the next SetShortID fail with ErrConflict once,
	// simulating a concurrent writer claiming the candidate elsewhere.
	conflictOnSet bool
	// assignOnSet makes the next SetShortID lose to a concurrent writer for
	// the same account: the given handle lands on the profile first and the
	// caller's write comes back as a conflict.
	assignOnSet string

	// readGate, when set, holds the first gatedReads GetProfile calls at a
	// barrier so concurrent callers all observe the same pre-write state.
	readGate   *sync.WaitGroup
	gatedReads int

	takenChecks int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[string]*model.Profile),
		byShort:  make(map[string]string),
	}
}

func (f *fakeStore) addAccount(accountID string) {
	f.profiles[accountID] = &model.Profile{ID: "p-" + accountID, AccountID: accountID}
}

func (f *fakeStore) GetProfile(_ context.Context, accountID string) (*model.Profile, error) {
	f.mu.Lock()
	var gate *sync.WaitGroup
	if f.readGate != nil && f.gatedReads > 0 {
		f.gatedReads--
		gate = f.readGate
	}
	p, ok := f.profiles[accountID]
	var cp model.Profile
	if ok {
		cp = *p
	}
	f.mu.Unlock()

	if gate != nil {
		gate.Done()
		gate.Wait()
	}
	if !ok {
		return nil, apperror.NotFound("profile", accountID)
	}
	return &cp, nil
}

func (f *fakeStore) ShortIDTaken(_ context.Context, shortID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.takenChecks++
	if f.forceTaken > 0 {
		f.forceTaken--
		return true, nil
	}
	_, taken := f.byShort[shortID]
	return taken, nil
}

func (f *fakeStore) SetShortID(_ context.Context, accountID, shortID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictOnSet {
		f.conflictOnSet = false
		return apperror.Conflict("short identifier", shortID)
	}
	if f.assignOnSet != "" {
		winner := f.assignOnSet
		f.assignOnSet = ""
		f.byShort[winner] = accountID
		f.profiles[accountID].ShortID = winner
		return apperror.Conflict("short identifier", accountID)
	}
	if _, taken := f.byShort[shortID]; taken {
		return apperror.Conflict("short identifier", shortID)
	}
	// Mirrors the conditional UPDATE: a profile that already carries a
	// handle refuses a second assignment.
	if f.profiles[accountID].ShortID != "" {
		return apperror.Conflict("short identifier", accountID)
	}
	f.byShort[shortID] = accountID
	f.profiles[accountID].ShortID = shortID
	return nil
}

func (f *fakeStore) GetProfileByShortID(_ context.Context, shortID string) (*model.Profile, error) {
	f.mu.Lock()
	accountID, ok := f.byShort[shortID]
	f.mu.Unlock()
	if !ok {
		return nil, apperror.NotFound("profile", shortID)
	}
	return f.GetProfile(context.Background(), accountID)
}

func TestGenerate_ShapeAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if !Valid(id) {
			t.Fatalf("Generate() produced invalid handle %q", id)
		}
		if seen[id] {
			// 1000 draws from 62^8 colliding would be astronomically
			// unlikely; treat it as a generator bug.
			t.Fatalf("Generate() repeated handle %q", id)
		}
		seen[id] = true
	}
}

func TestGenerate_UniformSymbolDistribution(t *testing.T) {
	// A byte%62 mapping without rejection would favor the first eight
	// symbols by ~25%; the 15% band catches that while staying far outside
	// normal sampling noise at this volume.
	const draws = 10000
	counts := make(map[rune]int)
	for i := 0; i < draws; i++ {
		id, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		for _, c := range id {
			counts[c]++
		}
	}
	expected := float64(draws*Length) / float64(len(alphabet))
	for _, c := range alphabet {
		got := float64(counts[c])
		if got < expected*0.85 || got > expected*1.15 {
			t.Errorf("symbol %q drawn %d times, want about %.0f", c, counts[c], expected)
		}
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"aB3xY9Qz", true},
		{"AAAAAAAA", true},
		{"12345678", true},
		{"toolong12", false},
		{"short", false},
		{"has-dash", false},
		{"has space", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := Valid(tc.in); got != tc.want {
			t.Errorf("Valid(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestEnsure_Idempotent(t *testing.T) {
	store := newFakeStore()
	store.addAccount("acct-1")
	svc := NewService(store)

	first, err := svc.Ensure(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if !Valid(first) {
		t.Fatalf("Ensure() returned invalid handle %q", first)
	}

	second, err := svc.Ensure(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	if second != first {
		t.Errorf("Ensure() not idempotent: %q then %q", first, second)
	}

	// And the handle resolves back to the same account's profile.
	profile, err := svc.Resolve(context.Background(), first)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if profile.AccountID != "acct-1" {
		t.Errorf("Resolve() account = %q, want acct-1", profile.AccountID)
	}
}

func TestEnsure_RetriesOnCollision(t *testing.T) {
	store := newFakeStore()
	store.addAccount("acct-1")
	store.forceTaken = 3 // first three candidates "collide"
	svc := NewService(store)

	id, err := svc.Ensure(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if !Valid(id) {
		t.Fatalf("Ensure() returned invalid handle %q", id)
	}
	if store.takenChecks != 4 {
		t.Errorf("existence checks = %d, want 4 (3 collisions + 1 success)", store.takenChecks)
	}
}

func TestEnsure_RetriesOnWriteRace(t *testing.T) {
	// A unique violation on write is a collision observed late; the service
	// must retry with a fresh candidate rather than surfacing ErrConflict.
	store := newFakeStore()
	store.addAccount("acct-1")
	store.conflictOnSet = true
	svc := NewService(store)

	id, err := svc.Ensure(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if !Valid(id) {
		t.Fatalf("Ensure() returned invalid handle %q", id)
	}
}

func TestEnsure_LostAssignmentReturnsWinner(t *testing.T) {
	// When the write loses because another connection already assigned this
	// account a handle, Ensure must hand out the winner's handle instead of
	// a second one that resolves nowhere.
	store := newFakeStore()
	store.addAccount("acct-1")
	store.assignOnSet = "aB3xY9Qz"
	svc := NewService(store)

	id, err := svc.Ensure(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "aB3xY9Qz" {
		t.Errorf("Ensure() = %q, want the already-assigned handle %q", id, "aB3xY9Qz")
	}
}

func TestEnsure_ConcurrentSameAccount(t *testing.T) {
	// Two connections for the same account can both observe a profile with
	// no handle and race to assign one. Exactly one assignment may land, and
	// both callers must come away with that same persisted handle.
	store := newFakeStore()
	store.addAccount("acct-1")
	var gate sync.WaitGroup
	gate.Add(2)
	store.readGate = &gate
	store.gatedReads = 2
	svc := NewService(store)

	results := make([]string, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Ensure(context.Background(), "acct-1")
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Ensure() call %d error = %v", i, err)
		}
	}
	if results[0] != results[1] {
		t.Fatalf("concurrent Ensure() returned %q and %q, want one shared handle", results[0], results[1])
	}
	if n := len(store.byShort); n != 1 {
		t.Errorf("handles persisted = %d, want 1", n)
	}

	profile, err := svc.Resolve(context.Background(), results[0])
	if err != nil {
		t.Fatalf("Resolve(%q) error = %v", results[0], err)
	}
	if profile.AccountID != "acct-1" {
		t.Errorf("Resolve() account = %q, want acct-1", profile.AccountID)
	}
	if profile.ShortID != results[0] {
		t.Errorf("persisted handle = %q, returned handle = %q", profile.ShortID, results[0])
	}
}

func TestEnsure_BoundedRetry(t *testing.T) {
	// When every candidate reads as taken, the loop must terminate with a
	// storage error instead of spinning forever.
	store := newFakeStore()
	store.addAccount("acct-1")
	store.forceTaken = maxAttempts + 10
	svc := NewService(store)

	_, err := svc.Ensure(context.Background(), "acct-1")
	if err == nil {
		t.Fatal("Ensure() should fail when no unique handle can be found")
	}
	if !errors.Is(err, apperror.ErrStorage) {
		t.Errorf("Ensure() error = %v, want apperror.ErrStorage", err)
	}
	if store.takenChecks != maxAttempts {
		t.Errorf("existence checks = %d, want exactly %d", store.takenChecks, maxAttempts)
	}
}

func TestEnsure_DistinctAccountsDistinctHandles(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	seen := make(map[string]string)
	for _, acct := range []string{"acct-1", "acct-2", "acct-3", "acct-4"} {
		store.addAccount(acct)
		id, err := svc.Ensure(context.Background(), acct)
		if err != nil {
			t.Fatalf("Ensure(%s) error = %v", acct, err)
		}
		if owner, dup := seen[id]; dup {
			t.Fatalf("handle %q issued to both %s and %s", id, owner, acct)
		}
		seen[id] = acct
	}
}

func TestResolve_UnknownHandle(t *testing.T) {
	svc := NewService(newFakeStore())

	_, err := svc.Resolve(context.Background(), "zzzzzzzz")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Resolve() error = %v, want apperror.ErrNotFound", err)
	}

	// Malformed handles are rejected without touching the store.
	_, err = svc.Resolve(context.Background(), "not a handle")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Resolve() error = %v, want apperror.ErrNotFound", err)
	}
}
