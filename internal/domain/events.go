/**
 * @description
 * Tagged variants for the asynchronous side channels: subscriber
 * notifications and device provisioning commands. Keeping these as closed
 * enums means only known values ever reach the brokers.
 */

package domain

// NotificationType classifies a subscriber notification.
type NotificationType string

const (
	NotificationLowBalance        NotificationType = "LOW_BALANCE"
	NotificationInsufficientFunds NotificationType = "INSUFFICIENT_FUNDS"
	NotificationPaymentReceived   NotificationType = "PAYMENT_RECEIVED"
)

// DeviceCommandState is the desired state propagated to network equipment.
type DeviceCommandState string

const (
	DeviceBlock   DeviceCommandState = "block"
	DeviceUnblock DeviceCommandState = "unblock"
)
