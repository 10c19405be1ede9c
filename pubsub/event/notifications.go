package event

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"ticketing/entity"
)

const (
	TemplateTicketsClaimed          = "tickets_claimed"
	TemplateTicketTransferRequested = "ticket_transfer_requested"
	TemplatePurchaseOrderPaid       = "purchase_order_paid"
	TemplatePurchaseOrderExpired    = "purchase_order_expired"
)

func (h Handler) SendClaimConfirmationHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"SendClaimConfirmationHandler",
		func(ctx context.Context, event *entity.TicketsClaimed_v1) error {
			log.FromContext(ctx).WithField("purchase_order_id", event.PurchaseOrderID).Info("Sending claim confirmation")

			return h.send(ctx, event.Header, entity.Notification{
				To:       event.UserEmail,
				Template: TemplateTicketsClaimed,
				Data: map[string]string{
					"purchase_order_id": event.PurchaseOrderID,
					"event_id":          event.EventID,
					"tickets_count":     strconv.Itoa(len(event.UserTicketIDs)),
					"user_ticket_ids":   strings.Join(event.UserTicketIDs, ","),
				},
			})
		},
	)
}

func (h Handler) SendTransferInvitationHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"SendTransferInvitationHandler",
		func(ctx context.Context, event *entity.TicketTransferRequested_v1) error {
			log.FromContext(ctx).WithField("transfer_id", event.TransferID).Info("Sending transfer invitation")

			return h.send(ctx, event.Header, entity.Notification{
				To:       event.RecipientEmail,
				Template: TemplateTicketTransferRequested,
				Data: map[string]string{
					"transfer_id":    event.TransferID,
					"user_ticket_id": event.UserTicketID,
					"sender_email":   event.SenderEmail,
					"recipient_name": event.RecipientName,
					"message":        event.Message,
					"expires_at":     event.ExpiresAt.UTC().Format(time.RFC3339),
				},
			})
		},
	)
}

func (h Handler) SendPaymentReceiptHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"SendPaymentReceiptHandler",
		func(ctx context.Context, event *entity.PurchaseOrderPaid_v1) error {
			log.FromContext(ctx).WithField("purchase_order_id", event.PurchaseOrderID).Info("Sending payment receipt")

			return h.send(ctx, event.Header, entity.Notification{
				To:       event.UserEmail,
				Template: TemplatePurchaseOrderPaid,
				Data: map[string]string{
					"purchase_order_id": event.PurchaseOrderID,
					"amount":            entity.CentsToAmount(event.TotalPriceCents).StringFixed(2),
					"currency":          event.CurrencyCode,
				},
			})
		},
	)
}

func (h Handler) SendExpirationNoticeHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"SendExpirationNoticeHandler",
		func(ctx context.Context, event *entity.PurchaseOrderExpired_v1) error {
			log.FromContext(ctx).WithField("purchase_order_id", event.PurchaseOrderID).Info("Sending expiration notice")

			return h.send(ctx, event.Header, entity.Notification{
				To:       event.UserEmail,
				Template: TemplatePurchaseOrderExpired,
				Data: map[string]string{
					"purchase_order_id":     event.PurchaseOrderID,
					"cancelled_tickets":     strconv.Itoa(len(event.CancelledUserTicketIDs)),
					"cancelled_tickets_ids": strings.Join(event.CancelledUserTicketIDs, ","),
				},
			})
		},
	)
}

func (h Handler) send(ctx context.Context, header entity.EventHeader, notification entity.Notification) error {
	if notification.To == "" {
		log.FromContext(ctx).WithField("template", notification.Template).Warn("Notification has no recipient, skipping")
		return nil
	}

	notification.IdempotencyKey = notification.Template + "-" + header.IdempotencyKey
	if header.IdempotencyKey == "" {
		notification.IdempotencyKey = notification.Template + "-" + header.ID
	}

	if err := h.notifier.Send(ctx, notification); err != nil {
		return fmt.Errorf("could not send %s notification: %w", notification.Template, err)
	}

	return nil
}
