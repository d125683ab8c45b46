package errors

import "fmt"

// Error codes for the live-update fabric. Every failure the core can
// produce maps onto one of these; they are all handled at the layer where
// they occur and never reach calling UI code as unhandled faults.
const (
	CodeNoCredential   = "NO_CREDENTIAL"
	CodeInvalidScope   = "INVALID_SCOPE"
	CodeTransportFail  = "TRANSPORT_FAILURE"
	CodeFetchFail      = "FETCH_FAILURE"
	CodeMalformedFrame = "MALFORMED_FRAME"
)

// NoCredential is returned when a connect attempt finds no bearer token in
// the credential store. Non-fatal; the caller may retry once a token exists.
func NoCredential() *AppError {
	return New(ErrorTypeAuth, CodeNoCredential, "no bearer token available").
		WithSeverity(SeverityLow)
}

// InvalidScope means a token failed scope resolution. The connection is
// refused before registration.
func InvalidScope(reason string) *AppError {
	return New(ErrorTypeAuth, CodeInvalidScope, fmt.Sprintf("scope resolution failed: %s", reason))
}

// TransportFailure wraps a read or write error on an established connection.
func TransportFailure(operation string, cause error) *AppError {
	return Wrap(cause, ErrorTypeTransport, CodeTransportFail, fmt.Sprintf("websocket %s failed", operation))
}

// FetchFailure wraps an image fetch error or non-success status.
func FetchFailure(url string, cause error) *AppError {
	return Wrap(cause, ErrorTypeFetch, CodeFetchFail, fmt.Sprintf("fetch %s failed", url)).
		WithSeverity(SeverityLow)
}

// MalformedFrame covers undecodable inbound data; dropped and logged.
func MalformedFrame(cause error) *AppError {
	return Wrap(cause, ErrorTypeProtocol, CodeMalformedFrame, "undecodable frame").
		WithSeverity(SeverityLow)
}
