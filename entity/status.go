package entity

import (
	"database/sql/driver"
	"fmt"

	"github.com/samber/lo"
)

type ApprovalStatus string

const (
	ApprovalStatusPending          ApprovalStatus = "pending"
	ApprovalStatusApproved         ApprovalStatus = "approved"
	ApprovalStatusNotRequired      ApprovalStatus = "not_required"
	ApprovalStatusRejected         ApprovalStatus = "rejected"
	ApprovalStatusCancelled        ApprovalStatus = "cancelled"
	ApprovalStatusGifted           ApprovalStatus = "gifted"
	ApprovalStatusGiftAccepted     ApprovalStatus = "gift_accepted"
	ApprovalStatusTransferPending  ApprovalStatus = "transfer_pending"
	ApprovalStatusTransferAccepted ApprovalStatus = "transfer_accepted"
)

var approvalStatuses = []ApprovalStatus{
	ApprovalStatusPending,
	ApprovalStatusApproved,
	ApprovalStatusNotRequired,
	ApprovalStatusRejected,
	ApprovalStatusCancelled,
	ApprovalStatusGifted,
	ApprovalStatusGiftAccepted,
	ApprovalStatusTransferPending,
	ApprovalStatusTransferAccepted,
}

// AccessibleStatuses are the statuses of a ticket that grants access to the event.
var AccessibleStatuses = []ApprovalStatus{
	ApprovalStatusApproved,
	ApprovalStatusNotRequired,
	ApprovalStatusGifted,
	ApprovalStatusGiftAccepted,
	ApprovalStatusTransferPending,
	ApprovalStatusTransferAccepted,
}

// ReservedStatuses are counted against ticket capacity.
var ReservedStatuses = append([]ApprovalStatus{ApprovalStatusPending}, AccessibleStatuses...)

// RedeemableStatuses can be redeemed at the door.
var RedeemableStatuses = []ApprovalStatus{
	ApprovalStatusApproved,
	ApprovalStatusNotRequired,
	ApprovalStatusGiftAccepted,
	ApprovalStatusTransferAccepted,
}

func (s ApprovalStatus) IsReserved() bool {
	return lo.Contains(ReservedStatuses, s)
}

func (s ApprovalStatus) IsRedeemable() bool {
	return lo.Contains(RedeemableStatuses, s)
}

func (s *ApprovalStatus) Scan(src any) error {
	return scanEnum(s, src, approvalStatuses)
}

func (s ApprovalStatus) Value() (driver.Value, error) {
	return valueEnum(s, approvalStatuses)
}

type AddonApprovalStatus string

const (
	AddonApprovalStatusPending   AddonApprovalStatus = "pending"
	AddonApprovalStatusApproved  AddonApprovalStatus = "approved"
	AddonApprovalStatusCancelled AddonApprovalStatus = "cancelled"
)

var addonApprovalStatuses = []AddonApprovalStatus{
	AddonApprovalStatusPending,
	AddonApprovalStatusApproved,
	AddonApprovalStatusCancelled,
}

// ReservedAddonStatuses are counted against add-on stock.
var ReservedAddonStatuses = []AddonApprovalStatus{
	AddonApprovalStatusPending,
	AddonApprovalStatusApproved,
}

func (s *AddonApprovalStatus) Scan(src any) error {
	return scanEnum(s, src, addonApprovalStatuses)
}

func (s AddonApprovalStatus) Value() (driver.Value, error) {
	return valueEnum(s, addonApprovalStatuses)
}

type RedemptionStatus string

const (
	RedemptionStatusPending  RedemptionStatus = "pending"
	RedemptionStatusRedeemed RedemptionStatus = "redeemed"
)

var redemptionStatuses = []RedemptionStatus{RedemptionStatusPending, RedemptionStatusRedeemed}

func (s *RedemptionStatus) Scan(src any) error {
	return scanEnum(s, src, redemptionStatuses)
}

func (s RedemptionStatus) Value() (driver.Value, error) {
	return valueEnum(s, redemptionStatuses)
}

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusOpen     PurchaseOrderStatus = "open"
	PurchaseOrderStatusComplete PurchaseOrderStatus = "complete"
	PurchaseOrderStatusExpired  PurchaseOrderStatus = "expired"
)

var purchaseOrderStatuses = []PurchaseOrderStatus{
	PurchaseOrderStatusOpen,
	PurchaseOrderStatusComplete,
	PurchaseOrderStatusExpired,
}

func (s PurchaseOrderStatus) IsTerminal() bool {
	return s == PurchaseOrderStatusComplete || s == PurchaseOrderStatusExpired
}

func (s *PurchaseOrderStatus) Scan(src any) error {
	return scanEnum(s, src, purchaseOrderStatuses)
}

func (s PurchaseOrderStatus) Value() (driver.Value, error) {
	return valueEnum(s, purchaseOrderStatuses)
}

type PurchaseOrderPaymentStatus string

const (
	PaymentStatusUnpaid      PurchaseOrderPaymentStatus = "unpaid"
	PaymentStatusPaid        PurchaseOrderPaymentStatus = "paid"
	PaymentStatusNotRequired PurchaseOrderPaymentStatus = "not_required"
)

var paymentStatuses = []PurchaseOrderPaymentStatus{
	PaymentStatusUnpaid,
	PaymentStatusPaid,
	PaymentStatusNotRequired,
}

func (s *PurchaseOrderPaymentStatus) Scan(src any) error {
	return scanEnum(s, src, paymentStatuses)
}

func (s PurchaseOrderPaymentStatus) Value() (driver.Value, error) {
	return valueEnum(s, paymentStatuses)
}

type PaymentPlatform string

const (
	PaymentPlatformStripe      PaymentPlatform = "stripe"
	PaymentPlatformMercadoPago PaymentPlatform = "mercadopago"
)

var paymentPlatforms = []PaymentPlatform{PaymentPlatformStripe, PaymentPlatformMercadoPago}

func (p *PaymentPlatform) Scan(src any) error {
	return scanEnum(p, src, paymentPlatforms)
}

func (p PaymentPlatform) Value() (driver.Value, error) {
	return valueEnum(p, paymentPlatforms)
}

type ConstraintType string

const (
	ConstraintTypeDependency      ConstraintType = "DEPENDENCY"
	ConstraintTypeMutualExclusion ConstraintType = "MUTUAL_EXCLUSION"
)

var constraintTypes = []ConstraintType{ConstraintTypeDependency, ConstraintTypeMutualExclusion}

func ParseConstraintType(s string) (ConstraintType, error) {
	t := ConstraintType(s)
	if !lo.Contains(constraintTypes, t) {
		return "", InvalidArgument("unknown constraint type %q", s)
	}
	return t, nil
}

func (t *ConstraintType) Scan(src any) error {
	return scanEnum(t, src, constraintTypes)
}

func (t ConstraintType) Value() (driver.Value, error) {
	return valueEnum(t, constraintTypes)
}

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusAccepted  TransferStatus = "accepted"
	TransferStatusRejected  TransferStatus = "rejected"
	TransferStatusCancelled TransferStatus = "cancelled"
	TransferStatusExpired   TransferStatus = "expired"
)

var transferStatuses = []TransferStatus{
	TransferStatusPending,
	TransferStatusAccepted,
	TransferStatusRejected,
	TransferStatusCancelled,
	TransferStatusExpired,
}

func (s *TransferStatus) Scan(src any) error {
	return scanEnum(s, src, transferStatuses)
}

func (s TransferStatus) Value() (driver.Value, error) {
	return valueEnum(s, transferStatuses)
}

// scanEnum rejects any stored value outside the enum: such a row is corrupted.
func scanEnum[T ~string](dst *T, src any, valid []T) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		return fmt.Errorf("corrupted data: null value for %T", *dst)
	default:
		return fmt.Errorf("corrupted data: cannot scan %T into %T", src, *dst)
	}

	value := T(raw)
	if !lo.Contains(valid, value) {
		return fmt.Errorf("corrupted data: %q is not a valid %T", raw, *dst)
	}

	*dst = value
	return nil
}

func valueEnum[T ~string](v T, valid []T) (driver.Value, error) {
	if !lo.Contains(valid, v) {
		return nil, fmt.Errorf("invalid %T: %q", v, string(v))
	}
	return string(v), nil
}
