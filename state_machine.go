package identity

import (
	"context"
	"time"
)

const (
	// ActorTypeSystem marks transitions made by the service itself
	ActorTypeSystem = "system"
	// ActorTypeAccount marks transitions made by the account owner
	ActorTypeAccount = "account"
	// ActorTypeAdmin marks transitions made by an operator
	ActorTypeAdmin = "admin"
)

// ActorRef is whoever asked for a state change
type ActorRef struct {
	ID   string
	Type string
}

// AccountActor returns the actor for the account owner
func AccountActor(a *Account) ActorRef {
	if a == nil {
		return ActorRef{Type: ActorTypeSystem}
	}
	return ActorRef{ID: a.ID.String(), Type: ActorTypeAccount}
}

// TransitionMetadata is the reason and free form data attached to a change
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is what hooks see
type TransitionContext struct {
	Actor   ActorRef
	Account *Account
	From    string
	To      string
	Meta    TransitionMetadata
}

// TransitionHook runs around the persisted change
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase tells a HookErrorHandler which side of Save failed
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption configures one call to Verify or Transition
type TransitionOption func(*transitionOptions)

// HookErrorHandler decides what a failing hook returns to the caller
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// AccountStateMachine gates the two lifecycle axes of an account. Every
// transition is persisted with a single Save of the whole aggregate, so any
// other pending change on the account lands in the same write.
type AccountStateMachine interface {
	Verify(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error)
	Transition(ctx context.Context, actor ActorRef, account *Account, target ActivationState, opts ...TransitionOption) (*Account, error)
	EnsureCanLogin(account *Account) error
	CurrentStatus(account *Account) ActivationState
}

// StateMachineOption configures NewAccountStateMachine
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock sets the time source for stamped timestamps
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets where lifecycle events go
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler replaces the default handler, which
// returns the hook error as is.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *accountStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger sets the logger for sink failures
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason records why the change was made
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata adds keys to the event metadata
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook runs h before Save. An error aborts the change.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook runs h once Save succeeded
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewAccountStateMachine returns a state machine saving through store
func NewAccountStateMachine(store AccountStore, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		store: store,
		transitions: map[ActivationState]map[ActivationState]struct{}{
			ActivationActive: {
				ActivationDeactivated: {},
			},
			ActivationDeactivated: {
				ActivationActive: {},
			},
		},
		now:          time.Now,
		activitySink: discardSink{},
		logger:       defLogger{},
		hookErrorHandler: func(_ context.Context, _ TransitionHookPhase, err error, _ TransitionContext) error {
			return err
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	store            AccountStore
	transitions      map[ActivationState]map[ActivationState]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

// Verify moves the account from unverified to verified. It is one way.
func (sm *accountStateMachine) Verify(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error) {
	if account == nil {
		return nil, ErrInvalidTransition
	}

	account.EnsureStates()
	if account.Verification == VerificationVerified {
		return nil, ErrAlreadyVerified
	}

	options := sm.buildTransitionOptions(opts...)
	tc := TransitionContext{
		Actor:   actor,
		Account: account,
		From:    string(VerificationUnverified),
		To:      string(VerificationVerified),
		Meta:    options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return nil, err
	}

	now := sm.now().UTC()
	account.Verification = VerificationVerified
	account.VerifiedAt = &now
	account.UpdatedAt = now

	if err := sm.store.Save(ctx, account); err != nil {
		account.Verification = VerificationUnverified
		account.VerifiedAt = nil
		return nil, err
	}

	if err := sm.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	recordActivity(ctx, sm.activitySink, sm.logger, sm.now, ActivityEvent{
		EventType:  ActivityEventAccountVerified,
		Actor:      actor,
		AccountID:  account.ID.String(),
		FromStatus: tc.From,
		ToStatus:   tc.To,
		Metadata:   sm.transitionMetadata(tc.Meta),
	})

	return account, nil
}

// Transition moves the account along the activation axis. Moving to the
// current state is a no-op and does not write.
func (sm *accountStateMachine) Transition(ctx context.Context, actor ActorRef, account *Account, target ActivationState, opts ...TransitionOption) (*Account, error) {
	if account == nil || target == "" {
		return nil, ErrInvalidTransition
	}

	account.EnsureStates()
	from := account.Activation
	if from == target {
		return account, nil
	}

	if !sm.canTransition(from, target) {
		return nil, ErrInvalidTransition
	}

	options := sm.buildTransitionOptions(opts...)
	tc := TransitionContext{
		Actor:   actor,
		Account: account,
		From:    string(from),
		To:      string(target),
		Meta:    options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return nil, err
	}

	prevDeactivatedAt := account.DeactivatedAt
	now := sm.now().UTC()
	account.Activation = target
	account.UpdatedAt = now
	if target == ActivationDeactivated {
		account.DeactivatedAt = &now
	} else {
		account.DeactivatedAt = nil
	}

	if err := sm.store.Save(ctx, account); err != nil {
		account.Activation = from
		account.DeactivatedAt = prevDeactivatedAt
		return nil, err
	}

	if err := sm.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	recordActivity(ctx, sm.activitySink, sm.logger, sm.now, ActivityEvent{
		EventType:  ActivityEventAccountStatusChanged,
		Actor:      actor,
		AccountID:  account.ID.String(),
		FromStatus: tc.From,
		ToStatus:   tc.To,
		Metadata:   sm.transitionMetadata(tc.Meta),
	})

	return account, nil
}

// EnsureCanLogin rejects deactivated accounts. Unverified accounts may log in.
func (sm *accountStateMachine) EnsureCanLogin(account *Account) error {
	if account == nil {
		return ErrInvalidCredentials
	}
	if sm.CurrentStatus(account) == ActivationDeactivated {
		return ErrAccountDeactivated
	}
	return nil
}

func (sm *accountStateMachine) CurrentStatus(account *Account) ActivationState {
	if account == nil {
		return ""
	}
	account.EnsureStates()
	return account.Activation
}

func (sm *accountStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *accountStateMachine) canTransition(from, to ActivationState) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *accountStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *accountStateMachine) transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
