package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAccountStateMachineDeactivateSetsTimestamp(t *testing.T) {
	store := &MockStore{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	account := &identity.Account{
		ID:         uuid.New(),
		Activation: identity.ActivationActive,
	}

	store.On("Save", mock.Anything, account).Return(nil).Once()

	sm := identity.NewAccountStateMachine(store, identity.WithStateMachineClock(func() time.Time { return now }))

	result, err := sm.Transition(context.Background(), identity.ActorRef{ID: "admin"}, account, identity.ActivationDeactivated)
	require.NoError(t, err)
	assert.False(t, result.IsActive())
	require.NotNil(t, result.DeactivatedAt)
	assert.Equal(t, now, *result.DeactivatedAt)
	assert.Equal(t, now, result.UpdatedAt)
	store.AssertExpectations(t)
}

func TestAccountStateMachineReactivateClearsTimestamp(t *testing.T) {
	store := &MockStore{}
	then := time.Now().Add(-time.Hour)
	account := &identity.Account{
		ID:            uuid.New(),
		Activation:    identity.ActivationDeactivated,
		DeactivatedAt: &then,
	}

	store.On("Save", mock.Anything, account).Return(nil).Once()

	sm := identity.NewAccountStateMachine(store)
	result, err := sm.Transition(context.Background(), identity.ActorRef{}, account, identity.ActivationActive)
	require.NoError(t, err)
	assert.True(t, result.IsActive())
	assert.Nil(t, result.DeactivatedAt)
	store.AssertExpectations(t)
}

func TestAccountStateMachineSameStateIsNoop(t *testing.T) {
	store := &MockStore{}
	account := &identity.Account{ID: uuid.New()}

	sm := identity.NewAccountStateMachine(store)
	result, err := sm.Transition(context.Background(), identity.ActorRef{}, account, identity.ActivationActive)
	require.NoError(t, err)
	assert.Same(t, account, result)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAccountStateMachineRejectsUnknownTarget(t *testing.T) {
	store := &MockStore{}
	account := &identity.Account{ID: uuid.New()}

	sm := identity.NewAccountStateMachine(store)

	_, err := sm.Transition(context.Background(), identity.ActorRef{}, account, identity.ActivationState("banned"))
	assert.ErrorIs(t, err, identity.ErrInvalidTransition)

	_, err = sm.Transition(context.Background(), identity.ActorRef{}, nil, identity.ActivationDeactivated)
	assert.ErrorIs(t, err, identity.ErrInvalidTransition)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAccountStateMachineSaveFailureRollsBack(t *testing.T) {
	store := &MockStore{}
	account := &identity.Account{ID: uuid.New(), Activation: identity.ActivationActive}
	boom := errors.New("db gone")

	store.On("Save", mock.Anything, account).Return(boom).Once()

	sm := identity.NewAccountStateMachine(store)
	_, err := sm.Transition(context.Background(), identity.ActorRef{}, account, identity.ActivationDeactivated)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, identity.ActivationActive, account.Activation)
	assert.Nil(t, account.DeactivatedAt)
}

func TestAccountStateMachineVerify(t *testing.T) {
	store := &MockStore{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	account := &identity.Account{ID: uuid.New()}
	sink := &activityLog{}

	store.On("Save", mock.Anything, account).Return(nil).Once()

	sm := identity.NewAccountStateMachine(store,
		identity.WithStateMachineClock(func() time.Time { return now }),
		identity.WithStateMachineActivitySink(sink),
	)

	result, err := sm.Verify(context.Background(), identity.AccountActor(account), account)
	require.NoError(t, err)
	assert.True(t, result.IsVerified())
	require.NotNil(t, result.VerifiedAt)
	assert.Equal(t, now, *result.VerifiedAt)

	_, err = sm.Verify(context.Background(), identity.AccountActor(account), account)
	assert.ErrorIs(t, err, identity.ErrAlreadyVerified)

	require.Len(t, sink.events, 1)
	assert.Equal(t, identity.ActivityEventAccountVerified, sink.events[0].EventType)
	assert.Equal(t, "unverified", sink.events[0].FromStatus)
	assert.Equal(t, "verified", sink.events[0].ToStatus)
	assert.Equal(t, identity.ActorTypeAccount, sink.events[0].Actor.Type)
	store.AssertExpectations(t)
}

func TestAccountStateMachineVerifySaveFailure(t *testing.T) {
	store := &MockStore{}
	account := &identity.Account{ID: uuid.New()}

	store.On("Save", mock.Anything, account).Return(identity.ErrConcurrentUpdate).Once()

	sm := identity.NewAccountStateMachine(store)
	_, err := sm.Verify(context.Background(), identity.ActorRef{}, account)
	assert.ErrorIs(t, err, identity.ErrConcurrentUpdate)
	assert.False(t, account.IsVerified())
	assert.Nil(t, account.VerifiedAt)
}

func TestAccountStateMachineHooks(t *testing.T) {
	store := &MockStore{}
	account := &identity.Account{ID: uuid.New()}
	store.On("Save", mock.Anything, account).Return(nil).Once()

	var calls []string
	sm := identity.NewAccountStateMachine(store)

	_, err := sm.Transition(context.Background(), identity.ActorRef{}, account, identity.ActivationDeactivated,
		identity.WithTransitionReason("abuse"),
		identity.WithTransitionMetadata(map[string]any{"ticket": "T-1"}),
		identity.WithBeforeTransitionHook(func(_ context.Context, tc identity.TransitionContext) error {
			calls = append(calls, "before:"+tc.From+"->"+tc.To)
			assert.Equal(t, "abuse", tc.Meta.Reason)
			assert.Equal(t, "T-1", tc.Meta.Metadata["ticket"])
			return nil
		}),
		identity.WithAfterTransitionHook(func(_ context.Context, tc identity.TransitionContext) error {
			calls = append(calls, "after")
			return nil
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"before:active->deactivated", "after"}, calls)
}

func TestAccountStateMachineBeforeHookAborts(t *testing.T) {
	store := &MockStore{}
	account := &identity.Account{ID: uuid.New()}
	veto := errors.New("vetoed")

	var handled identity.TransitionHookPhase
	sm := identity.NewAccountStateMachine(store,
		identity.WithStateMachineHookErrorHandler(func(_ context.Context, phase identity.TransitionHookPhase, err error, _ identity.TransitionContext) error {
			handled = phase
			return err
		}),
	)

	_, err := sm.Transition(context.Background(), identity.ActorRef{}, account, identity.ActivationDeactivated,
		identity.WithBeforeTransitionHook(func(context.Context, identity.TransitionContext) error { return veto }),
	)
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, identity.HookPhaseBefore, handled)
	assert.True(t, account.IsActive())
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAccountStateMachineEnsureCanLogin(t *testing.T) {
	sm := identity.NewAccountStateMachine(&MockStore{})

	assert.NoError(t, sm.EnsureCanLogin(&identity.Account{}))
	assert.NoError(t, sm.EnsureCanLogin(&identity.Account{Verification: identity.VerificationUnverified}))
	assert.ErrorIs(t, sm.EnsureCanLogin(&identity.Account{Activation: identity.ActivationDeactivated}), identity.ErrAccountDeactivated)
	assert.ErrorIs(t, sm.EnsureCanLogin(nil), identity.ErrInvalidCredentials)

	assert.Equal(t, identity.ActivationActive, sm.CurrentStatus(&identity.Account{}))
	assert.Equal(t, identity.ActivationState(""), sm.CurrentStatus(nil))
}
