package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"ticketing/clock"
	"ticketing/entity"
)

type UserTicketsRepository interface {
	GetUserTicketForUpdate(ctx context.Context, id string) (entity.UserTicket, error)
	UpdateUserTicketApprovalStatus(ctx context.Context, id string, status entity.ApprovalStatus) error
	CreateTransfer(ctx context.Context, transfer entity.UserTicketTransfer) error
	CancelPendingTransfers(ctx context.Context, userTicketID string) (int, error)
	ListUserTicketAddons(ctx context.Context, userTicketID string) ([]entity.UserTicketAddon, error)
	CancelUserTicketAddons(ctx context.Context, ids []string) error
}

// transferableStatuses can be handed over to another user.
var transferableStatuses = []entity.ApprovalStatus{
	entity.ApprovalStatusApproved,
	entity.ApprovalStatusNotRequired,
	entity.ApprovalStatusGifted,
	entity.ApprovalStatusGiftAccepted,
	entity.ApprovalStatusTransferPending,
	entity.ApprovalStatusTransferAccepted,
}

// TicketService changes already claimed tickets: transfers and add-on cancellation.
type TicketService struct {
	txManager   TxManager
	catalog     Catalog
	repo        UserTicketsRepository
	recipients  *RecipientResolver
	publisher   EventPublisher
	clock       clock.Clock
	transferTTL time.Duration
}

func NewTicketService(
	txManager TxManager,
	catalog Catalog,
	repo UserTicketsRepository,
	recipients *RecipientResolver,
	publisher EventPublisher,
	clk clock.Clock,
	transferTTL time.Duration,
) *TicketService {
	if txManager == nil {
		panic("missing txManager")
	}
	if catalog == nil {
		panic("missing catalog")
	}
	if repo == nil {
		panic("missing repo")
	}
	if recipients == nil {
		panic("missing recipients")
	}
	if publisher == nil {
		panic("missing publisher")
	}
	if clk == nil {
		panic("missing clock")
	}

	return &TicketService{
		txManager:   txManager,
		catalog:     catalog,
		repo:        repo,
		recipients:  recipients,
		publisher:   publisher,
		clock:       clk,
		transferTTL: transferTTL,
	}
}

// RequestTransfer hands a ticket over to the user with the given e-mail.
// A pending transfer of the same ticket is cancelled and replaced.
func (s *TicketService) RequestTransfer(
	ctx context.Context,
	actor entity.Actor,
	userTicketID string,
	info TransferInfo,
) (entity.UserTicketTransfer, error) {
	if _, err := uuid.Parse(userTicketID); err != nil {
		return entity.UserTicketTransfer{}, entity.InvalidArgument("invalid user ticket id %q", userTicketID)
	}

	details, err := normalizeDetails(ItemDetails{TransferInfo: &info})
	if err != nil {
		return entity.UserTicketTransfer{}, err
	}
	info = *details.TransferInfo

	if info.Email == NormalizeEmail(actor.User.Email) {
		return entity.UserTicketTransfer{}, entity.InvalidArgument("cannot transfer a ticket to yourself")
	}

	var transfer entity.UserTicketTransfer
	var superseded int

	err = s.txManager.InTx(ctx, func(ctx context.Context) error {
		ticket, err := s.ownedTicket(ctx, actor, userTicketID)
		if err != nil {
			return err
		}

		if !lo.Contains(transferableStatuses, ticket.ApprovalStatus) {
			return entity.FailedPrecondition("ticket %s cannot be transferred in status %s", ticket.ID, ticket.ApprovalStatus)
		}
		if ticket.RedemptionStatus == entity.RedemptionStatusRedeemed {
			return entity.FailedPrecondition("ticket %s was already redeemed", ticket.ID)
		}
		if err := s.ensureEventNotStarted(ctx, ticket.TicketTemplateID); err != nil {
			return err
		}

		superseded, err = s.repo.CancelPendingTransfers(ctx, ticket.ID)
		if err != nil {
			return fmt.Errorf("could not cancel pending transfers: %w", err)
		}

		recipient, err := s.recipients.Resolve(ctx, info)
		if err != nil {
			return err
		}
		if recipient.ID == ticket.UserID {
			return entity.InvalidArgument("cannot transfer a ticket to its owner")
		}

		now := s.clock.Now()
		transfer = entity.UserTicketTransfer{
			ID:              uuid.NewString(),
			UserTicketID:    ticket.ID,
			SenderUserID:    ticket.UserID,
			RecipientUserID: recipient.ID,
			Status:          entity.TransferStatusPending,
			TransferMessage: info.Message,
			ExpirationDate:  now.Add(s.transferTTL),
			CreatedAt:       now,
		}
		if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
			return fmt.Errorf("could not create transfer: %w", err)
		}

		if ticket.ApprovalStatus != entity.ApprovalStatusGifted {
			err := s.repo.UpdateUserTicketApprovalStatus(ctx, ticket.ID, entity.ApprovalStatusTransferPending)
			if err != nil {
				return fmt.Errorf("could not update ticket status: %w", err)
			}
		}

		return s.publisher.Publish(ctx, transferRequested(transfer, actor.User, recipient))
	})
	if err != nil {
		return entity.UserTicketTransfer{}, err
	}

	log.FromContext(ctx).WithFields(logrus.Fields{
		"user_ticket_id": userTicketID,
		"transfer_id":    transfer.ID,
		"superseded":     superseded,
	}).Info("Ticket transfer requested")

	return transfer, nil
}

// CancelAddons cancels claimed add-ons of a ticket. Cancelling an add-on that another
// remaining add-on of the ticket depends on is a conflict.
func (s *TicketService) CancelAddons(
	ctx context.Context,
	actor entity.Actor,
	userTicketID string,
	userTicketAddonIDs []string,
) ([]entity.UserTicketAddon, error) {
	if len(userTicketAddonIDs) == 0 {
		return nil, entity.InvalidArgument("no addons to cancel")
	}

	var cancelled []entity.UserTicketAddon

	err := s.txManager.InTx(ctx, func(ctx context.Context) error {
		ticket, err := s.ownedTicket(ctx, actor, userTicketID)
		if err != nil {
			return err
		}

		claimed, err := s.repo.ListUserTicketAddons(ctx, ticket.ID)
		if err != nil {
			return fmt.Errorf("could not list ticket addons: %w", err)
		}
		byID := lo.KeyBy(claimed, func(a entity.UserTicketAddon) string { return a.ID })

		toCancel := lo.Uniq(userTicketAddonIDs)
		for _, id := range toCancel {
			a, ok := byID[id]
			if !ok {
				return entity.NotFound("addon %s not found on ticket %s", id, ticket.ID)
			}
			if a.ApprovalStatus == entity.AddonApprovalStatusCancelled {
				return entity.FailedPrecondition("addon %s is already cancelled", id)
			}
			if a.RedemptionStatus == entity.RedemptionStatusRedeemed {
				return entity.FailedPrecondition("addon %s was already redeemed", id)
			}
			cancelled = append(cancelled, a)
		}

		remaining := lo.Filter(claimed, func(a entity.UserTicketAddon, _ int) bool {
			return a.ApprovalStatus != entity.AddonApprovalStatusCancelled && !lo.Contains(toCancel, a.ID)
		})
		if err := s.checkRemainingDependencies(ctx, remaining, cancelled); err != nil {
			return err
		}

		return s.repo.CancelUserTicketAddons(ctx, toCancel)
	})
	if err != nil {
		return nil, err
	}

	for i := range cancelled {
		cancelled[i].ApprovalStatus = entity.AddonApprovalStatusCancelled
	}

	return cancelled, nil
}

func (s *TicketService) checkRemainingDependencies(
	ctx context.Context,
	remaining []entity.UserTicketAddon,
	cancelled []entity.UserTicketAddon,
) error {
	if len(remaining) == 0 {
		return nil
	}

	remainingAddonIDs := lo.Uniq(lo.Map(remaining, func(a entity.UserTicketAddon, _ int) string { return a.AddonID }))
	cancelledAddonIDs := lo.Uniq(lo.Map(cancelled, func(a entity.UserTicketAddon, _ int) string { return a.AddonID }))

	addons, err := s.catalog.GetAddons(ctx, remainingAddonIDs)
	if err != nil {
		return fmt.Errorf("could not get addons: %w", err)
	}

	for _, addon := range addons {
		for _, c := range addon.Constraints {
			if c.ConstraintType != entity.ConstraintTypeDependency {
				continue
			}
			// still satisfied when another row of the same add-on survives
			if lo.Contains(cancelledAddonIDs, c.RelatedAddonID) && !lo.Contains(remainingAddonIDs, c.RelatedAddonID) {
				return entity.Conflict("addon %s depends on addon %s", addon.ID, c.RelatedAddonID)
			}
		}
	}

	return nil
}

func (s *TicketService) ownedTicket(ctx context.Context, actor entity.Actor, userTicketID string) (entity.UserTicket, error) {
	if _, err := uuid.Parse(userTicketID); err != nil {
		return entity.UserTicket{}, entity.InvalidArgument("invalid user ticket id %q", userTicketID)
	}

	ticket, err := s.repo.GetUserTicketForUpdate(ctx, userTicketID)
	if err != nil {
		return entity.UserTicket{}, fmt.Errorf("could not get user ticket: %w", err)
	}
	if ticket.UserID != actor.User.ID && !actor.IsSuperAdmin() {
		return entity.UserTicket{}, entity.Unauthorized("ticket %s does not belong to the caller", userTicketID)
	}
	if ticket.DeletedAt != nil {
		return entity.UserTicket{}, entity.FailedPrecondition("ticket %s was cancelled", userTicketID)
	}

	return ticket, nil
}

func (s *TicketService) ensureEventNotStarted(ctx context.Context, ticketTemplateID string) error {
	templates, err := s.catalog.GetTicketTemplates(ctx, []string{ticketTemplateID})
	if err != nil {
		return fmt.Errorf("could not get ticket template: %w", err)
	}
	if len(templates) == 0 {
		return entity.NotFound("ticket %s not found", ticketTemplateID)
	}

	event, err := s.catalog.GetEvent(ctx, templates[0].EventID)
	if err != nil {
		return fmt.Errorf("could not get event: %w", err)
	}
	if event.HasStarted(s.clock.Now()) {
		return entity.FailedPrecondition("event %s has already started", event.ID)
	}

	return nil
}
