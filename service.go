package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

const (
	// maxSaveAttempts bounds read-modify-write retries on version conflicts
	maxSaveAttempts  = 3
	operationTimeout = 10 * time.Second
)

// Service is the identity lifecycle orchestrator. It composes the hasher,
// OTP engine, token service and state machine over an AccountStore and a
// Notifier.
type Service struct {
	store            AccountStore
	tokens           *TokenService
	hasher           PasswordHasher
	otp              *OTPEngine
	otpTTL           time.Duration
	stateMachine     AccountStateMachine
	notifier         Notifier
	notifyTimeout    time.Duration
	dispatcher       *Dispatcher
	locker           Locker
	activity         ActivitySink
	logger           Logger
	now              func() time.Time
	deterministicIDs bool
	phoneRegion      string

	register           *RegisterHandler
	login              *LoginHandler
	verify             *VerifyAccountHandler
	resendVerification *ResendVerificationHandler
	forgotPassword     *ForgotPasswordHandler
	resetPassword      *ResetPasswordHandler
	changePassword     *ChangePasswordHandler
	accountStatus      *AccountStatusHandler

	dummyHashOnce sync.Once
	dummyHash     string
}

// ServiceOption customizes the service
type ServiceOption func(*Service)

// WithHasher replaces the default bcrypt hasher
func WithHasher(h PasswordHasher) ServiceOption {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithOTPEngine replaces the default OTP engine
func WithOTPEngine(e *OTPEngine) ServiceOption {
	return func(s *Service) {
		if e != nil {
			s.otp = e
		}
	}
}

// WithCodeTTL sets how long codes issued by the default OTP engine stay
// valid. It has no effect together with WithOTPEngine.
func WithCodeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.otpTTL = ttl
		}
	}
}

// WithStateMachine replaces the default account state machine
func WithStateMachine(sm AccountStateMachine) ServiceOption {
	return func(s *Service) {
		if sm != nil {
			s.stateMachine = sm
		}
	}
}

// WithNotifier sets the out of band delivery channel
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithNotificationTimeout bounds each delivery
func WithNotificationTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithLocker replaces the in process per account lock
func WithLocker(l Locker) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithActivitySink sets the sink used to emit audit events
func WithActivitySink(sink ActivitySink) ServiceOption {
	return func(s *Service) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithLogger sets the logger
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithDeterministicIDs derives account ids from the email
func WithDeterministicIDs(enabled bool) ServiceOption {
	return func(s *Service) {
		s.deterministicIDs = enabled
	}
}

// WithPhoneRegion sets the region used to parse local phone numbers
func WithPhoneRegion(region string) ServiceOption {
	return func(s *Service) {
		if region != "" {
			s.phoneRegion = region
		}
	}
}

// NewService creates the orchestrator
func NewService(store AccountStore, tokens *TokenService, opts ...ServiceOption) *Service {
	s := &Service{
		store:         store,
		tokens:        tokens,
		notifyTimeout: DefaultNotificationTimeout,
		locker:        NewKeyedMutex(),
		activity:      discardSink{},
		logger:        defLogger{},
		now:           time.Now,
		phoneRegion:   DefaultPhoneRegion,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.hasher == nil {
		s.hasher = NewBcryptHasher(0)
	}
	if s.otp == nil {
		s.otp = NewOTPEngine(WithOTPClock(s.now), WithOTPTTL(s.otpTTL))
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	if s.stateMachine == nil {
		s.stateMachine = NewAccountStateMachine(store,
			WithStateMachineClock(s.now),
			WithStateMachineActivitySink(s.activity),
			WithStateMachineLogger(s.logger),
		)
	}
	s.dispatcher = NewDispatcher(s.notifier, s.notifyTimeout, s.logger)

	s.register = &RegisterHandler{svc: s}
	s.login = &LoginHandler{svc: s}
	s.verify = &VerifyAccountHandler{svc: s}
	s.resendVerification = &ResendVerificationHandler{svc: s}
	s.forgotPassword = &ForgotPasswordHandler{svc: s}
	s.resetPassword = &ResetPasswordHandler{svc: s}
	s.changePassword = &ChangePasswordHandler{svc: s}
	s.accountStatus = &AccountStatusHandler{svc: s}

	return s
}

// NewServiceFromConfig wires the default collaborators from cfg
func NewServiceFromConfig(cfg Config, store AccountStore, opts ...ServiceOption) *Service {
	tokens := NewTokenService(StaticSigningKey(cfg.GetSigningKey()),
		WithTokenExpiration(cfg.GetTokenExpiration()),
		WithTokenIssuer(cfg.GetIssuer()),
		WithTokenAudience(cfg.GetAudience()...),
	)

	base := []ServiceOption{
		WithHasher(NewBcryptHasher(cfg.GetBcryptCost())),
		WithCodeTTL(cfg.GetOTPTTL()),
		WithNotificationTimeout(cfg.GetNotificationTimeout()),
		WithDeterministicIDs(cfg.GetDeterministicIDs()),
		WithPhoneRegion(cfg.GetDefaultRegion()),
	}

	return NewService(store, tokens, append(base, opts...)...)
}

// Register creates an unverified account and sends a verification code
func (s *Service) Register(ctx context.Context, msg RegisterMessage) (*AccountResult, error) {
	return s.register.Execute(ctx, msg)
}

// Login authenticates and issues a session token
func (s *Service) Login(ctx context.Context, msg LoginMessage) (*AccountResult, error) {
	return s.login.Execute(ctx, msg)
}

// VerifyAccount consumes a verification code and issues a session token
func (s *Service) VerifyAccount(ctx context.Context, msg VerifyAccountMessage) (*AccountResult, error) {
	return s.verify.Execute(ctx, msg)
}

// ResendVerification replaces the pending verification code
func (s *Service) ResendVerification(ctx context.Context, msg ResendVerificationMessage) error {
	return s.resendVerification.Execute(ctx, msg)
}

// ForgotPassword issues a password reset code
func (s *Service) ForgotPassword(ctx context.Context, msg ForgotPasswordMessage) error {
	return s.forgotPassword.Execute(ctx, msg)
}

// ResetPassword sets a new password using a reset code
func (s *Service) ResetPassword(ctx context.Context, msg ResetPasswordMessage) error {
	return s.resetPassword.Execute(ctx, msg)
}

// ChangePassword rotates the password of the authenticated account
func (s *Service) ChangePassword(ctx context.Context, msg ChangePasswordMessage) error {
	return s.changePassword.Execute(ctx, msg)
}

// DeactivateAccount blocks future logins of an account
func (s *Service) DeactivateAccount(ctx context.Context, actor ActorRef, msg AccountStatusMessage) (*AccountResult, error) {
	return s.accountStatus.Execute(ctx, actor, msg, ActivationDeactivated)
}

// ReactivateAccount lifts a deactivation
func (s *Service) ReactivateAccount(ctx context.Context, actor ActorRef, msg AccountStatusMessage) (*AccountResult, error) {
	return s.accountStatus.Execute(ctx, actor, msg, ActivationActive)
}

// Tokens returns the token service used to mint sessions
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Close waits for pending notifications
func (s *Service) Close() {
	s.dispatcher.Wait()
}

// mutateByEmail resolves the account id and runs fn under the account lock.
func (s *Service) mutateByEmail(ctx context.Context, email string, fn func(ctx context.Context, account *Account) error) (*Account, error) {
	account, err := s.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return s.mutateByID(ctx, account.ID, fn)
}

// mutateByID reloads the account under its lock and applies fn. fn must
// finish with a single Save; a version conflict reloads and retries.
func (s *Service) mutateByID(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, account *Account) error) (*Account, error) {
	unlock, err := s.locker.Lock(ctx, accountLockKey(id.String()))
	if err != nil {
		return nil, DependencyError(err, "could not acquire account lock")
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		account, err := s.store.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		account.EnsureStates()

		err = fn(ctx, account)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, ErrConcurrentUpdate) || attempt >= maxSaveAttempts {
			return nil, err
		}
		s.logger.Warn("account version conflict, retrying", "account_id", id.String(), "attempt", attempt)
	}
}

func (s *Service) newAccountID(email string) uuid.UUID {
	if s.deterministicIDs {
		if id, err := hashid.NewUUID(email); err == nil {
			return id
		}
	}
	return uuid.New()
}

// equalizeTiming runs a hash comparison for unknown accounts so login
// latency does not reveal whether an email is registered.
func (s *Service) equalizeTiming(password string) {
	s.dummyHashOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("identity-timing-equalizer")
	})
	if s.dummyHash != "" {
		_ = s.hasher.Verify(password, s.dummyHash)
	}
}

func (s *Service) record(ctx context.Context, event ActivityEvent) {
	recordActivity(ctx, s.activity, s.logger, s.now, event)
}

func (s *Service) issueOTP(account *Account, purpose OTPPurpose) (OTPRecord, error) {
	rec, err := s.otp.Issue(purpose)
	if err != nil {
		return OTPRecord{}, err
	}
	account.Slot(purpose).Fill(rec)
	account.UpdatedAt = s.now().UTC()
	return rec, nil
}

func (s *Service) dispatchOTP(ctx context.Context, account *Account, rec OTPRecord) {
	s.dispatcher.Dispatch(ctx, DestinationFor(account), rec.Code, rec.Purpose)
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventOTPIssued,
		Actor:     AccountActor(account),
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"purpose":    string(rec.Purpose),
			"expires_at": rec.ExpiresAt,
		},
	})
}

// consumeOTP validates code against the slot for purpose and clears it.
// The caller must Save the account for the clear to take effect.
func (s *Service) consumeOTP(account *Account, purpose OTPPurpose, code string) error {
	slot := account.Slot(purpose)
	if _, err := s.otp.Validate(code, purpose, *slot, s.now()); err != nil {
		switch {
		case errors.Is(err, ErrOTPExpired):
			return ErrExpiredOTP
		case errors.Is(err, ErrOTPMismatch), errors.Is(err, ErrOTPNotIssued):
			return ErrInvalidOTP
		default:
			return err
		}
	}
	slot.Clear()
	return nil
}

func cancelledError(ctx context.Context, op string) error {
	return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during "+op)
}

func publicResult(err error) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "identity operation failed").
		WithTextCode(TextCodeInternal)
}
