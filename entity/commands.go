package entity

// SyncPurchaseOrders asks for one reconciliation pass over unpaid purchase orders.
type SyncPurchaseOrders struct {
	Header EventHeader `json:"header"`
}
