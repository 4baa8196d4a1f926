// Package memory provides an in process identity.AccountStore. It is safe
// for concurrent use and honors the same version check as the SQL store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
)

// Store keeps accounts and profiles in maps
type Store struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*identity.Account
	byEmail  map[string]uuid.UUID
	profiles map[uuid.UUID][]*identity.Profile
	now      func() time.Time
}

var _ identity.AccountStore = (*Store)(nil)

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]*identity.Account),
		byEmail:  make(map[string]uuid.UUID),
		profiles: make(map[uuid.UUID][]*identity.Profile),
		now:      time.Now,
	}
}

// FindByEmail implements identity.AccountStore
func (s *Store) FindByEmail(_ context.Context, email string) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return nil, identity.ErrAccountNotFound
	}
	return s.accounts[id].Clone(), nil
}

// FindByID implements identity.AccountStore
func (s *Store) FindByID(_ context.Context, id uuid.UUID) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, identity.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// Create implements identity.AccountStore
func (s *Store) Create(_ context.Context, account *identity.Account) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(account)
}

func (s *Store) createLocked(account *identity.Account) (*identity.Account, error) {
	if account == nil {
		return nil, identity.ErrInvalidTransition
	}

	stored := account.Clone()
	stored.Email = identity.NormalizeEmail(stored.Email)
	if _, exists := s.byEmail[stored.Email]; exists {
		return nil, identity.ErrDuplicateEmail
	}
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if _, exists := s.accounts[stored.ID]; exists {
		return nil, identity.ErrDuplicateEmail
	}

	now := s.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	stored.Version = 1
	stored.EnsureStates()

	s.accounts[stored.ID] = stored
	s.byEmail[stored.Email] = stored.ID
	return stored.Clone(), nil
}

// Save implements identity.AccountStore
func (s *Store) Save(_ context.Context, account *identity.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(account)
}

func (s *Store) saveLocked(account *identity.Account) error {
	if account == nil {
		return identity.ErrInvalidTransition
	}

	current, ok := s.accounts[account.ID]
	if !ok {
		return identity.ErrAccountNotFound
	}
	if current.Version != account.Version {
		return identity.ErrConcurrentUpdate
	}

	stored := account.Clone()
	// identity fields never change after creation
	stored.Email = current.Email
	stored.Role = current.Role
	stored.CreatedAt = current.CreatedAt
	stored.Version = current.Version + 1

	s.accounts[stored.ID] = stored
	account.Version = stored.Version
	return nil
}

// CreateProfile implements identity.AccountStore
func (s *Store) CreateProfile(_ context.Context, role identity.Role, accountID uuid.UUID) (*identity.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createProfileLocked(s.newProfile(role, accountID))
}

func (s *Store) newProfile(role identity.Role, accountID uuid.UUID) *identity.Profile {
	return &identity.Profile{
		ID:        uuid.New(),
		AccountID: accountID,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
}

func (s *Store) createProfileLocked(p *identity.Profile) (*identity.Profile, error) {
	if _, ok := s.accounts[p.AccountID]; !ok {
		return nil, identity.ErrAccountNotFound
	}
	stored := *p
	s.profiles[p.AccountID] = append(s.profiles[p.AccountID], &stored)
	cp := stored
	return &cp, nil
}

// Profiles returns the profiles created for an account
func (s *Store) Profiles(accountID uuid.UUID) []identity.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]identity.Profile, 0, len(s.profiles[accountID]))
	for _, p := range s.profiles[accountID] {
		out = append(out, *p)
	}
	return out
}

// Len returns the number of stored accounts
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// RunInTx implements identity.AccountStore. Writes made through the
// transactional store are staged and applied only when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, store identity.AccountStore) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	tx := &txStore{parent: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

type txStore struct {
	parent *Store
	ops    []func() error
	// staged creates are visible to reads inside the transaction
	created map[string]*identity.Account
}

func (t *txStore) FindByEmail(ctx context.Context, email string) (*identity.Account, error) {
	if acc, ok := t.created[identity.NormalizeEmail(email)]; ok {
		return acc.Clone(), nil
	}
	return t.parent.FindByEmail(ctx, email)
}

func (t *txStore) FindByID(ctx context.Context, id uuid.UUID) (*identity.Account, error) {
	for _, acc := range t.created {
		if acc.ID == id {
			return acc.Clone(), nil
		}
	}
	return t.parent.FindByID(ctx, id)
}

func (t *txStore) Create(_ context.Context, account *identity.Account) (*identity.Account, error) {
	if account == nil {
		return nil, identity.ErrInvalidTransition
	}
	email := identity.NormalizeEmail(account.Email)
	if _, ok := t.created[email]; ok {
		return nil, identity.ErrDuplicateEmail
	}

	staged := account.Clone()
	staged.Email = email
	if staged.ID == uuid.Nil {
		staged.ID = uuid.New()
	}
	staged.Version = 1
	staged.EnsureStates()

	if t.created == nil {
		t.created = make(map[string]*identity.Account)
	}
	t.created[email] = staged

	t.ops = append(t.ops, func() error {
		_, err := t.parent.createLocked(staged)
		return err
	})
	return staged.Clone(), nil
}

func (t *txStore) Save(_ context.Context, account *identity.Account) error {
	staged := account.Clone()
	t.ops = append(t.ops, func() error {
		return t.parent.saveLocked(staged)
	})
	account.Version++
	return nil
}

func (t *txStore) CreateProfile(_ context.Context, role identity.Role, accountID uuid.UUID) (*identity.Profile, error) {
	p := t.parent.newProfile(role, accountID)
	t.ops = append(t.ops, func() error {
		_, err := t.parent.createProfileLocked(p)
		return err
	})
	cp := *p
	return &cp, nil
}

func (t *txStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store identity.AccountStore) error) error {
	return fn(ctx, t)
}

// commit applies staged writes atomically; on failure the snapshot is restored.
func (t *txStore) commit() error {
	s := t.parent
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make(map[uuid.UUID]*identity.Account, len(s.accounts))
	for k, v := range s.accounts {
		accounts[k] = v
	}
	byEmail := make(map[string]uuid.UUID, len(s.byEmail))
	for k, v := range s.byEmail {
		byEmail[k] = v
	}
	profiles := make(map[uuid.UUID][]*identity.Profile, len(s.profiles))
	for k, v := range s.profiles {
		profiles[k] = append([]*identity.Profile(nil), v...)
	}

	for _, op := range t.ops {
		if err := op(); err != nil {
			s.accounts, s.byEmail, s.profiles = accounts, byEmail, profiles
			return err
		}
	}
	return nil
}
