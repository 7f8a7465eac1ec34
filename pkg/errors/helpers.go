package errors

import "errors"

// IsUnknownSubscription checks if an error indicates an unknown subscription id.
func IsUnknownSubscription(err error) bool {
	if err == nil {
		return false
	}

	var unknownErr *UnknownSubscriptionError
	return errors.As(err, &unknownErr)
}

// IsTransportSubscribe checks if an error came from a failed physical subscribe.
func IsTransportSubscribe(err error) bool {
	if err == nil {
		return false
	}

	var subErr *TransportSubscribeError
	return errors.As(err, &subErr)
}

// IsTransportUnsubscribe checks if an error came from a failed physical unsubscribe.
func IsTransportUnsubscribe(err error) bool {
	if err == nil {
		return false
	}

	var unsubErr *TransportUnsubscribeError
	return errors.As(err, &unsubErr)
}

// IsTransportPublish checks if an error came from a failed publish.
func IsTransportPublish(err error) bool {
	if err == nil {
		return false
	}

	var pubErr *TransportPublishError
	return errors.As(err, &pubErr)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}

	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsClosed checks if an error indicates the mux was already closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// GetCode extracts the error code from any error.
func GetCode(err error) string {
	if err == nil {
		return CodeOK
	}
	return codeOf(err)
}
