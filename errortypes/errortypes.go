package errortypes

import "fmt"

// NotFound should be used when none of the candidate URLs for a document could be reached.
type NotFound struct {
	Message string
}

func (err *NotFound) Error() string {
	return err.Message
}

func (err *NotFound) Code() int {
	return NotFoundErrorCode
}

func (err *NotFound) Severity() Severity {
	return SeverityFatal
}

func (err *NotFound) Key() string {
	return "errors.notFound"
}

// Timeout should be used when a remote document was not received before the fetch deadline expired.
//
// Timeouts are transient and may be retried.
type Timeout struct {
	Message string
}

func (err *Timeout) Error() string {
	return err.Message
}

func (err *Timeout) Code() int {
	return TimeoutErrorCode
}

func (err *Timeout) Severity() Severity {
	return SeverityFatal
}

func (err *Timeout) Key() string {
	return "errors.timeout"
}

// NetworkError covers connection level failures (DNS, refused connections, resets, TLS).
// These are transient and may be retried.
type NetworkError struct {
	Message string
}

func (err *NetworkError) Error() string {
	return err.Message
}

func (err *NetworkError) Code() int {
	return NetworkErrorCode
}

func (err *NetworkError) Severity() Severity {
	return SeverityFatal
}

func (err *NetworkError) Key() string {
	return "errors.network"
}

// NonOkStatus should be used when the remote server answered with anything other than a 2xx.
type NonOkStatus struct {
	Message    string
	StatusCode int
}

func (err *NonOkStatus) Error() string {
	return err.Message
}

func (err *NonOkStatus) Code() int {
	return NonOkStatusErrorCode
}

func (err *NonOkStatus) Severity() Severity {
	return SeverityFatal
}

func (err *NonOkStatus) Key() string {
	return "errors.httpStatus"
}

// TooManyRedirects is returned when a GET followed more redirects than the configured bound.
type TooManyRedirects struct {
	Message string
}

func (err *TooManyRedirects) Error() string {
	return err.Message
}

func (err *TooManyRedirects) Code() int {
	return TooManyRedirectsErrorCode
}

func (err *TooManyRedirects) Severity() Severity {
	return SeverityFatal
}

func (err *TooManyRedirects) Key() string {
	return "errors.tooManyRedirects"
}

// InvalidContentType is returned when a document was served with a content type the caller declared
// unacceptable (e.g. an HTML error page served with a 200 in place of ads.txt).
type InvalidContentType struct {
	Message     string
	ContentType string
}

func (err *InvalidContentType) Error() string {
	return err.Message
}

func (err *InvalidContentType) Code() int {
	return InvalidContentTypeErrorCode
}

func (err *InvalidContentType) Severity() Severity {
	return SeverityFatal
}

func (err *InvalidContentType) Key() string {
	return "errors.invalidContentType"
}

// InvalidFormat flags a remote document that could not be parsed or does not have the expected shape.
//
// These are never retried: fetching the same bytes again would fail the same way.
type InvalidFormat struct {
	Message string
}

func (err *InvalidFormat) Error() string {
	return err.Message
}

func (err *InvalidFormat) Code() int {
	return InvalidFormatErrorCode
}

func (err *InvalidFormat) Severity() Severity {
	return SeverityFatal
}

func (err *InvalidFormat) Key() string {
	return "errors.invalidFormat"
}

// EmptyFile is returned when an ads.txt document was fetched but had no content.
type EmptyFile struct {
	Message string
}

func (err *EmptyFile) Error() string {
	return err.Message
}

func (err *EmptyFile) Code() int {
	return EmptyFileErrorCode
}

func (err *EmptyFile) Severity() Severity {
	return SeverityFatal
}

func (err *EmptyFile) Key() string {
	return "errors.emptyFile"
}

// NoEntries is returned when an ads.txt document parsed without a single valid record.
type NoEntries struct {
	Message string
}

func (err *NoEntries) Error() string {
	return err.Message
}

func (err *NoEntries) Code() int {
	return NoEntriesErrorCode
}

func (err *NoEntries) Severity() Severity {
	return SeverityFatal
}

func (err *NoEntries) Key() string {
	return "errors.noEntries"
}

// EntryNotFound is used when the cross-check could not locate a record matching an ads.txt entry.
// It is a warning: the entry is reported as unverified, the rest of the document is unaffected.
type EntryNotFound struct {
	Message string
}

func (err *EntryNotFound) Error() string {
	return err.Message
}

func (err *EntryNotFound) Code() int {
	return EntryNotFoundErrorCode
}

func (err *EntryNotFound) Severity() Severity {
	return SeverityWarning
}

func (err *EntryNotFound) Key() string {
	return "errors.entryNotFound"
}

// BadInput should be used for caller errors, such as an empty or malformed domain name.
type BadInput struct {
	Message string
}

func (err *BadInput) Error() string {
	return err.Message
}

func (err *BadInput) Code() int {
	return BadInputErrorCode
}

func (err *BadInput) Severity() Severity {
	return SeverityFatal
}

func (err *BadInput) Key() string {
	return "errors.badInput"
}

// Warning is a generic non-fatal problem, such as a questionable configuration value.
type Warning struct {
	Message     string
	WarningCode int
}

func (err *Warning) Error() string {
	return err.Message
}

func (err *Warning) Code() int {
	return err.WarningCode
}

func (err *Warning) Severity() Severity {
	return SeverityWarning
}

func (err *Warning) Key() string {
	return "errors.warning"
}

// NewNonOkStatus builds a NonOkStatus for the given URL and status code.
func NewNonOkStatus(url string, statusCode int) *NonOkStatus {
	return &NonOkStatus{
		Message:    fmt.Sprintf("unexpected response status %d from %s", statusCode, url),
		StatusCode: statusCode,
	}
}
