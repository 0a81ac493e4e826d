package errortypes

// Defines numeric codes for well-known errors.
const (
	UnknownErrorCode = 999
	NotFoundErrorCode = iota
	TimeoutErrorCode
	NetworkErrorCode
	NonOkStatusErrorCode
	TooManyRedirectsErrorCode
	InvalidContentTypeErrorCode
	InvalidFormatErrorCode
	EmptyFileErrorCode
	NoEntriesErrorCode
	EntryNotFoundErrorCode
	BadInputErrorCode
)

// Defines numeric codes for warnings.
const (
	UnknownWarningCode = 10999
	ConfigWarningCode  = iota + 10000
)

// UnknownErrorKey is the localization key reported for errors outside this package.
const UnknownErrorKey = "errors.unknown"

// Coder provides an error or warning code with severity.
type Coder interface {
	Code() int
	Severity() Severity
}

// Keyer provides a stable message key suitable for localized message lookup.
type Keyer interface {
	Key() string
}

// ReadCode returns the error or warning code, or UnknownErrorCode if unavailable.
func ReadCode(err error) int {
	if e, ok := err.(Coder); ok {
		return e.Code()
	}
	return UnknownErrorCode
}

// ReadKey returns the localization key of the error, or UnknownErrorKey if unavailable.
// A nil error has no key.
func ReadKey(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(Keyer); ok {
		return e.Key()
	}
	return UnknownErrorKey
}

// IsRetryable reports whether a failed fetch may succeed if attempted again.
// Timeouts, connection failures and 5xx answers are transient; everything else is terminal.
func IsRetryable(err error) bool {
	switch e := err.(type) {
	case *Timeout, *NetworkError:
		return true
	case *NonOkStatus:
		return e.StatusCode >= 500
	}
	return false
}

// FromKey rebuilds an error from its localization key, e.g. for a failure read back from a cache.
// Unknown keys produce a NetworkError, the most generic fetch failure.
func FromKey(key, message string) error {
	switch key {
	case "errors.notFound":
		return &NotFound{Message: message}
	case "errors.timeout":
		return &Timeout{Message: message}
	case "errors.httpStatus":
		return &NonOkStatus{Message: message}
	case "errors.tooManyRedirects":
		return &TooManyRedirects{Message: message}
	case "errors.invalidContentType":
		return &InvalidContentType{Message: message}
	case "errors.invalidFormat":
		return &InvalidFormat{Message: message}
	case "errors.emptyFile":
		return &EmptyFile{Message: message}
	case "errors.noEntries":
		return &NoEntries{Message: message}
	case "errors.entryNotFound":
		return &EntryNotFound{Message: message}
	case "errors.badInput":
		return &BadInput{Message: message}
	}
	return &NetworkError{Message: message}
}
