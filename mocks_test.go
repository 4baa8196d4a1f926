package identity_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/repository/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStore mocks identity.AccountStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindByEmail(ctx context.Context, email string) (*identity.Account, error) {
	args := m.Called(ctx, email)
	if acc, ok := args.Get(0).(*identity.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) FindByID(ctx context.Context, id uuid.UUID) (*identity.Account, error) {
	args := m.Called(ctx, id)
	if acc, ok := args.Get(0).(*identity.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Create(ctx context.Context, account *identity.Account) (*identity.Account, error) {
	args := m.Called(ctx, account)
	if acc, ok := args.Get(0).(*identity.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Save(ctx context.Context, account *identity.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockStore) CreateProfile(ctx context.Context, role identity.Role, accountID uuid.UUID) (*identity.Profile, error) {
	args := m.Called(ctx, role, accountID)
	if p, ok := args.Get(0).(*identity.Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store identity.AccountStore) error) error {
	args := m.Called(ctx, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, m)
}

// MockNotifier mocks identity.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendOTP(ctx context.Context, dest identity.Destination, code string, purpose identity.OTPPurpose) error {
	args := m.Called(ctx, dest, code, purpose)
	return args.Error(0)
}

type sentCode struct {
	Dest    identity.Destination
	Code    string
	Purpose identity.OTPPurpose
}

// outbox records every delivered code
type outbox struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (o *outbox) SendOTP(_ context.Context, dest identity.Destination, code string, purpose identity.OTPPurpose) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sentCode{Dest: dest, Code: code, Purpose: purpose})
	return o.err
}

func (o *outbox) all() []sentCode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]sentCode(nil), o.sent...)
}

// activityLog records activity events
type activityLog struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (l *activityLog) Record(_ context.Context, e identity.ActivityEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *activityLog) types() []identity.ActivityEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]identity.ActivityEventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.EventType)
	}
	return out
}

// fakeClock is a settable clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// codeSequence yields codes in order and repeats the last one
func codeSequence(codes ...string) identity.CodeSource {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	}
}

// conflictStore fails the next N saves with a version conflict
type conflictStore struct {
	*memory.Store
	mu        sync.Mutex
	conflicts int
	saves     int
}

func (s *conflictStore) Save(ctx context.Context, account *identity.Account) error {
	s.mu.Lock()
	s.saves++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return identity.ErrConcurrentUpdate
	}
	s.mu.Unlock()
	return s.Store.Save(ctx, account)
}
