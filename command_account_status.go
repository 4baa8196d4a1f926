package identity

import (
	"context"
)

// AccountStatusHandler moves accounts along the activation axis
type AccountStatusHandler struct {
	svc *Service
}

func (h *AccountStatusHandler) Execute(ctx context.Context, actor ActorRef, msg AccountStatusMessage, target ActivationState) (*AccountResult, error) {
	select {
	case <-ctx.Done():
		return nil, cancelledError(ctx, "account status change")
	default:
		return h.execute(ctx, actor, msg, target)
	}
}

func (h *AccountStatusHandler) execute(ctx context.Context, actor ActorRef, msg AccountStatusMessage, target ActivationState) (*AccountResult, error) {
	s := h.svc
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	if err := msg.Validate(); err != nil {
		return nil, ValidationError(err, "invalid account status request")
	}

	if actor == (ActorRef{}) {
		actor = ActorRef{Type: ActorTypeAdmin}
	}

	account, err := s.mutateByID(ctx, msg.AccountID, func(ctx context.Context, account *Account) error {
		_, err := s.stateMachine.Transition(ctx, actor, account, target,
			WithTransitionReason(msg.Reason),
		)
		return err
	})
	if err != nil {
		return nil, publicResult(err)
	}

	return newAccountResult(account, nil), nil
}
