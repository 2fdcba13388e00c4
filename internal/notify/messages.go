package notify

import (
	"fmt"

	"orderFulfillmentTracking/models"
)

type template struct {
	title string
	body  string
}

// statusMessages maps a newly reached status to the customer-facing text.
// Titles carry both languages the storefront serves. Statuses without an
// entry produce no notification.
var statusMessages = map[models.OrderStatus]template{
	models.OrderStatusConfirmed: {
		title: "Order confirmed | تم تأكيد الطلب",
		body:  "Your order #%d has been confirmed and is being prepared.",
	},
	models.OrderStatusShipped: {
		title: "Order shipped | تم شحن الطلب",
		body:  "Your order #%d has been handed to a driver.",
	},
	models.OrderStatusInTransit: {
		title: "Order on the way | الطلب في الطريق",
		body:  "Your order #%d is on the way. Track the driver live in the app.",
	},
	models.OrderStatusReceived: {
		title: "Order delivered | تم توصيل الطلب",
		body:  "Your order #%d has been delivered. Enjoy!",
	},
	models.OrderStatusCompleted: {
		title: "Order completed | اكتمل الطلب",
		body:  "Order #%d is complete. Thank you for ordering with us.",
	},
	models.OrderStatusCancelled: {
		title: "Order cancelled | تم إلغاء الطلب",
		body:  "Your order #%d has been cancelled.",
	},
}

// driverCancelled is sent to the assigned driver when an active delivery is
// cancelled under them.
var driverCancelled = template{
	title: "Delivery cancelled | تم إلغاء التوصيل",
	body:  "Order #%d was cancelled. You can stop the delivery.",
}

// MessageFor renders the customer notification text for a reached status.
// The second return is false for statuses that never notify (pending,
// processing).
func MessageFor(status models.OrderStatus, seq int64) (title, body string, ok bool) {
	tpl, ok := statusMessages[status]
	if !ok {
		return "", "", false
	}
	return tpl.title, fmt.Sprintf(tpl.body, seq), true
}

// DriverCancelMessage renders the text for the driver's cancellation notice.
func DriverCancelMessage(seq int64) (title, body string) {
	return driverCancelled.title, fmt.Sprintf(driverCancelled.body, seq)
}
