package resonance

const (
	operationSubscribe = "subscribe"
	operationUnlock    = "unlock"
	operationTip       = "tip"
	operationWithdraw  = "withdraw"
	operationBoost     = "boost"
	operationSettle    = "settle"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	idempotencyKeyDelimiter   = ":"
	idempotencyPrefixGateway  = "gateway"
	subscriptionPeriodSeconds = int64(30 * 24 * 60 * 60)
)
