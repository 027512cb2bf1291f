package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown  ErrorCode = 1
	ErrCodeInternal ErrorCode = 2
	ErrCodeTimeout  ErrorCode = 3

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeMissingParameter     ErrorCode = 102
	ErrCodeInvalidVersion       ErrorCode = 103
	ErrCodeInvalidPeriod        ErrorCode = 104
	ErrCodeInvalidSymbol        ErrorCode = 105

	// Data feed errors (300-399)
	ErrCodeDataNotFound       ErrorCode = 300
	ErrCodeDownloadFailed     ErrorCode = 301
	ErrCodeReaderFailed       ErrorCode = 302
	ErrCodeParseFailed        ErrorCode = 303
	ErrCodeUnknownDataKind    ErrorCode = 304
	ErrCodeFactorFileInvalid  ErrorCode = 305
	ErrCodeMapFileInvalid     ErrorCode = 306
	ErrCodeQueryFailed        ErrorCode = 307
	ErrCodeSubscriptionExists ErrorCode = 308
	ErrCodeFeedDisconnected   ErrorCode = 309
	ErrCodeSubscriptionFailed ErrorCode = 310

	// Universe errors (400-499)
	ErrCodeUniverseNotFound     ErrorCode = 400
	ErrCodeFundamentalsFailed   ErrorCode = 401
	ErrCodeSecurityNotFound     ErrorCode = 402
	ErrCodeUniverseAlreadyAdded ErrorCode = 403
	ErrCodeSelectionFailed      ErrorCode = 404

	// Order errors (500-599)
	ErrCodeInvalidOrder            ErrorCode = 500
	ErrCodeOrderNotFound           ErrorCode = 501
	ErrCodeInvalidOrderStatus      ErrorCode = 502
	ErrCodeInsufficientBuyingPower ErrorCode = 503
	ErrCodeZeroQuantity            ErrorCode = 504
	ErrCodeFillFailed              ErrorCode = 505
	ErrCodeRequestQueueFull        ErrorCode = 506

	// Brokerage errors (600-699)
	ErrCodeBrokerageRefused      ErrorCode = 600
	ErrCodeBrokerageFailed       ErrorCode = 601
	ErrCodeBrokerageDisconnected ErrorCode = 602
	ErrCodeCashSyncFailed        ErrorCode = 603

	// Engine errors (700-799)
	ErrCodeEngineInitFailed  ErrorCode = 700
	ErrCodeEngineRuntime     ErrorCode = 701
	ErrCodeAlgorithmFailed   ErrorCode = 702
	ErrCodeResultsWriteFail  ErrorCode = 703
	ErrCodeEngineNotReady    ErrorCode = 704
	ErrCodeEngineStopped     ErrorCode = 705
	ErrCodeNoSubscriptions   ErrorCode = 706
	ErrCodeCallbackFailed    ErrorCode = 707
	ErrCodeVersionMismatch   ErrorCode = 708
	ErrCodeUnsupportedMarket ErrorCode = 709
)

// Category names the area a code belongs to, such as "data" or "order".
func (c ErrorCode) Category() string {
	switch {
	case c >= 100 && c < 200:
		return "validation"
	case c >= 300 && c < 400:
		return "data"
	case c >= 400 && c < 500:
		return "universe"
	case c >= 500 && c < 600:
		return "order"
	case c >= 600 && c < 700:
		return "brokerage"
	case c >= 700 && c < 800:
		return "engine"
	default:
		return "general"
	}
}
