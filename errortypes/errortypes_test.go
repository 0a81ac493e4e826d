package errortypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "timeout", err: &Timeout{Message: "t"}, want: true},
		{name: "network", err: &NetworkError{Message: "n"}, want: true},
		{name: "server_error", err: NewNonOkStatus("https://example.com", 503), want: true},
		{name: "client_error", err: NewNonOkStatus("https://example.com", 404), want: false},
		{name: "invalid_format", err: &InvalidFormat{Message: "f"}, want: false},
		{name: "not_found", err: &NotFound{Message: "nf"}, want: false},
		{name: "foreign", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestReadKey(t *testing.T) {
	assert.Equal(t, "errors.notFound", ReadKey(&NotFound{}))
	assert.Equal(t, "errors.invalidFormat", ReadKey(&InvalidFormat{}))
	assert.Equal(t, UnknownErrorKey, ReadKey(errors.New("boom")))
	assert.Equal(t, "", ReadKey(nil))
}

func TestReadCode(t *testing.T) {
	assert.Equal(t, TimeoutErrorCode, ReadCode(&Timeout{}))
	assert.Equal(t, EntryNotFoundErrorCode, ReadCode(&EntryNotFound{}))
	assert.Equal(t, UnknownErrorCode, ReadCode(errors.New("boom")))
}

func TestSeverityFilters(t *testing.T) {
	warning := &Warning{Message: "w", WarningCode: ConfigWarningCode}
	errs := []error{&EntryNotFound{Message: "w"}, &NotFound{Message: "f"}, errors.New("plain"), warning}

	assert.True(t, ContainsFatalError(errs))
	assert.Len(t, FatalOnly(errs), 2)
	assert.Equal(t, []error{errs[0], warning}, WarningOnly(errs))
	assert.False(t, ContainsFatalError([]error{&EntryNotFound{}, warning}))
	assert.Equal(t, 10001, ReadCode(warning))
}

func TestAggregateErrors(t *testing.T) {
	agg := NewAggregateErrors("validation errors", []error{errors.New("a"), errors.New("b")})
	assert.Equal(t, "validation errors (2 errors):\n  1: a\n  2: b\n", agg.Error())
	assert.Equal(t, "", NewAggregateErrors("none", nil).Error())
}

func TestFromKeyRoundTrip(t *testing.T) {
	errs := []error{
		&NotFound{}, &Timeout{}, &NetworkError{}, &NonOkStatus{}, &TooManyRedirects{},
		&InvalidContentType{}, &InvalidFormat{}, &EmptyFile{}, &NoEntries{}, &EntryNotFound{}, &BadInput{},
	}
	for _, err := range errs {
		key := ReadKey(err)
		rebuilt := FromKey(key, "cached")
		assert.IsType(t, err, rebuilt, key)
		assert.Equal(t, "cached", rebuilt.Error())
	}
	assert.IsType(t, &NetworkError{}, FromKey("errors.unknown", ""))
}
