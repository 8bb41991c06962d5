package refunds

// Gateway refund failure reasons and the messages shown to the caller.
const (
	ReasonChargeDisputed  = "charge_for_pending_refund_disputed"
	ReasonDeclined        = "declined"
	ReasonExpiredCard     = "expired_or_canceled_card"
	ReasonInsufficient    = "insufficient_funds"
	ReasonLostOrStolen    = "lost_or_stolen_card"
	ReasonMerchantRequest = "merchant_request"
	ReasonUnknown         = "unknown"
)

const defaultMessage = "Something went wrong."

var messages = map[string]string{
	ReasonChargeDisputed:  "You have already requested to cancel order.",
	ReasonDeclined:        "You request to cancel order has been declined.",
	ReasonExpiredCard:     "Your payment card has either expired or is cancelled.",
	ReasonInsufficient:    "Refund has failed due to insufficient funds.",
	ReasonLostOrStolen:    "Refund has failed due to loss or theft of the payment card.",
	ReasonMerchantRequest: "Unable to cancel your order.",
	ReasonUnknown:         "Refund has failed due to an unknown reason.",
}

// MessageFor maps a gateway failure reason to its user-facing message.
func MessageFor(reason string) string {
	if msg, ok := messages[reason]; ok {
		return msg
	}
	return defaultMessage
}
