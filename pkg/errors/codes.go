package errors

// Error codes for categorizing errors.
// These codes map to HTTP status codes where the gateway surfaces them.
const (
	// CodeOK indicates success (not an error).
	CodeOK = "OK"

	// CodeUnknown indicates an unknown error occurred.
	CodeUnknown = "UNKNOWN"

	// CodeInvalidArgument indicates client specified an invalid argument.
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound = "NOT_FOUND"

	// CodeInternal indicates internal errors.
	CodeInternal = "INTERNAL"

	// CodeUnavailable indicates the service is currently unavailable.
	CodeUnavailable = "UNAVAILABLE"

	// Domain-specific error codes

	// CodeValidation indicates configuration or input validation failed.
	CodeValidation = "VALIDATION_ERROR"

	// CodeUnknownSubscription indicates an unsubscribe referenced an id that
	// is not currently registered (never issued, or already removed).
	CodeUnknownSubscription = "UNKNOWN_SUBSCRIPTION"

	// CodeTransportSubscribe indicates the transport rejected or failed a
	// physical subscribe.
	CodeTransportSubscribe = "TRANSPORT_SUBSCRIBE_ERROR"

	// CodeTransportUnsubscribe indicates the transport failed a physical
	// unsubscribe.
	CodeTransportUnsubscribe = "TRANSPORT_UNSUBSCRIBE_ERROR"

	// CodeTransportPublish indicates the transport failed a publish.
	CodeTransportPublish = "TRANSPORT_PUBLISH_ERROR"

	// CodeClosed indicates an operation was attempted on a closed mux.
	CodeClosed = "CLOSED"
)
