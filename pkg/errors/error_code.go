package errors

// ErrorCode is a stable machine-readable error code. Codes are part of the
// public surface: they appear in execution results, logs, and journal rows,
// so their string values must never change once released.
type ErrorCode string

const (
	// General errors
	ErrCodeUnknown ErrorCode = "UNKNOWN"

	// Validation errors: the request itself is malformed or the operation
	// is not allowed in the order's current state.
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidOrder         ErrorCode = "INVALID_ORDER"
	ErrCodeInvalidModification  ErrorCode = "INVALID_MODIFICATION"
	ErrCodeInvalidParameter     ErrorCode = "INVALID_PARAMETER"
	ErrCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	ErrCodeInvalidState         ErrorCode = "INVALID_STATE"
	ErrCodeInvalidVersion       ErrorCode = "INVALID_VERSION"

	// Risk errors: the order is well formed but violates a risk limit.
	ErrCodePositionSizeExceeded   ErrorCode = "POSITION_SIZE_EXCEEDED"
	ErrCodeLeverageExceeded       ErrorCode = "LEVERAGE_EXCEEDED"
	ErrCodeMarginInsufficient     ErrorCode = "MARGIN_INSUFFICIENT"
	ErrCodePositionCountExceeded  ErrorCode = "POSITION_COUNT_EXCEEDED"
	ErrCodeDailyLossExceeded      ErrorCode = "DAILY_LOSS_EXCEEDED"
	ErrCodeDrawdownExceeded       ErrorCode = "DRAWDOWN_EXCEEDED"
	ErrCodeOrderRateExceeded      ErrorCode = "ORDER_RATE_EXCEEDED"
	ErrCodeInstrumentNotTradeable ErrorCode = "INSTRUMENT_NOT_TRADEABLE"
	ErrCodeKillSwitchActive       ErrorCode = "KILL_SWITCH_ACTIVE"

	// Broker errors: the upstream call failed or was refused.
	ErrCodeBrokerError     ErrorCode = "BROKER_ERROR"
	ErrCodeBrokerTimeout   ErrorCode = "BROKER_TIMEOUT"
	ErrCodeBrokerRejected  ErrorCode = "BROKER_REJECTED"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"
	ErrCodeAccountNotFound ErrorCode = "ACCOUNT_NOT_FOUND"

	// Order/position lifecycle errors
	ErrCodeOrderNotFound       ErrorCode = "ORDER_NOT_FOUND"
	ErrCodePositionNotFound    ErrorCode = "POSITION_NOT_FOUND"
	ErrCodeDuplicateOrder      ErrorCode = "DUPLICATE_ORDER"
	ErrCodeUnitsExceedPosition ErrorCode = "UNITS_EXCEED_POSITION"

	// Journal errors
	ErrCodeJournalError ErrorCode = "JOURNAL_ERROR"
	ErrCodeQueryFailed  ErrorCode = "QUERY_FAILED"

	// Internal errors
	ErrCodeExecutionException ErrorCode = "EXECUTION_EXCEPTION"
	ErrCodeEngineInitFailed   ErrorCode = "ENGINE_INIT_FAILED"
	ErrCodeEngineShutdown     ErrorCode = "ENGINE_SHUTDOWN"
)
