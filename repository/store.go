package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-identity"
	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

const pgUniqueViolation = "23505"

// Store implements identity.AccountStore using Bun.
type Store struct {
	db       bun.IDB
	root     *bun.DB
	profiles bunrepo.Repository[*ProfileModel]
	now      func() time.Time
}

var _ identity.AccountStore = (*Store)(nil)

// NewStore creates a new store.
func NewStore(db *bun.DB) *Store {
	return &Store{
		db:       db,
		root:     db,
		profiles: NewProfilesRepository(db),
		now:      time.Now,
	}
}

// NewProfilesRepository returns the generic repository for role profiles
func NewProfilesRepository(db *bun.DB) bunrepo.Repository[*ProfileModel] {
	return bunrepo.NewRepository[*ProfileModel](db, bunrepo.ModelHandlers[*ProfileModel]{
		NewRecord: func() *ProfileModel {
			return &ProfileModel{}
		},
		GetID: func(record *ProfileModel) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ProfileModel, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "account_id"
		},
	})
}

// FindByEmail implements identity.AccountStore.
func (s *Store) FindByEmail(ctx context.Context, email string) (*identity.Account, error) {
	model := &AccountModel{}
	err := s.db.NewSelect().
		Model(model).
		Where("?TableAlias.email = ?", identity.NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "could not find account by email")
	}
	return toAccount(model), nil
}

// FindByID implements identity.AccountStore.
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*identity.Account, error) {
	model := &AccountModel{}
	err := s.db.NewSelect().
		Model(model).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "could not find account by id")
	}
	return toAccount(model), nil
}

// Create implements identity.AccountStore. The stored version starts at 1.
func (s *Store) Create(ctx context.Context, account *identity.Account) (*identity.Account, error) {
	if account == nil {
		return nil, identity.ErrInvalidTransition
	}

	model := fromAccount(account)
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}
	model.Email = identity.NormalizeEmail(model.Email)
	now := s.now().UTC()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = now
	}
	model.Version = 1

	if _, err := s.db.NewInsert().Model(model).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, identity.ErrDuplicateEmail
		}
		return nil, identity.DependencyError(err, "could not create account")
	}

	return toAccount(model), nil
}

// Save implements identity.AccountStore. The update only applies when the
// stored version still matches account.Version.
func (s *Store) Save(ctx context.Context, account *identity.Account) error {
	if account == nil {
		return identity.ErrInvalidTransition
	}

	model := fromAccount(account)
	model.Version = account.Version + 1

	res, err := s.db.NewUpdate().
		Model(model).
		ExcludeColumn("id", "email", "role", "created_at").
		WherePK().
		Where("version = ?", account.Version).
		Exec(ctx)
	if err != nil {
		return identity.DependencyError(err, "could not save account")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return identity.DependencyError(err, "could not save account")
	}

	if affected == 0 {
		exists, err := s.db.NewSelect().
			Model((*AccountModel)(nil)).
			Where("?TableAlias.id = ?", account.ID).
			Exists(ctx)
		if err != nil {
			return identity.DependencyError(err, "could not save account")
		}
		if !exists {
			return identity.ErrAccountNotFound
		}
		return identity.ErrConcurrentUpdate
	}

	account.Version = model.Version
	return nil
}

// CreateProfile implements identity.AccountStore.
func (s *Store) CreateProfile(ctx context.Context, role identity.Role, accountID uuid.UUID) (*identity.Profile, error) {
	model := &ProfileModel{
		ID:        uuid.New(),
		AccountID: accountID,
		Role:      string(role),
		CreatedAt: s.now().UTC(),
	}

	created, err := s.profiles.CreateTx(ctx, s.db, model)
	if err != nil {
		return nil, identity.DependencyError(err, "could not create profile")
	}
	return toProfile(created), nil
}

// FindProfiles lists the role profiles of an account
func (s *Store) FindProfiles(ctx context.Context, accountID uuid.UUID) ([]*identity.Profile, error) {
	var models []ProfileModel
	err := s.db.NewSelect().
		Model(&models).
		Where("?TableAlias.account_id = ?", accountID).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, identity.DependencyError(err, "could not list profiles")
	}

	out := make([]*identity.Profile, len(models))
	for i := range models {
		out[i] = toProfile(&models[i])
	}
	return out, nil
}

// GetProfile returns a single profile by id
func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*identity.Profile, error) {
	model, err := s.profiles.GetByID(ctx, id.String())
	if err != nil {
		if bunrepo.IsRecordNotFound(err) {
			return nil, identity.ErrAccountNotFound
		}
		return nil, identity.DependencyError(err, "could not get profile")
	}
	return toProfile(model), nil
}

// RunInTx implements identity.AccountStore. Nested calls reuse the open
// transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, store identity.AccountStore) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if s.root == nil {
		return fn(ctx, s)
	}

	return s.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Store{
			db:       tx,
			profiles: s.profiles,
			now:      s.now,
		})
	})
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return identity.ErrAccountNotFound
	}
	return identity.DependencyError(err, message)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
