package endpoints

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/adstxt-validator/adstxt"
	"github.com/prebid/adstxt-validator/crosscheck"
	"github.com/prebid/adstxt-validator/errortypes"
	"github.com/prebid/adstxt-validator/metrics"
	"github.com/prebid/adstxt-validator/validation"
)

const maxValidateBodyBytes = 1024 * 1024

type entryValidator interface {
	ValidateEntries(ctx context.Context, doc *adstxt.Document, entries []adstxt.Entry, opts validation.Options) []validation.EntryResult
}

type validateRequest struct {
	domain    string
	app       bool
	skipDelay bool
	entries   []adstxt.Entry
}

type entryVerdict struct {
	Entry   adstxt.Entry       `json:"entry"`
	Verdict validation.Verdict `json:"verdict"`
	Error   string             `json:"error,omitempty"`
}

type validateResponse struct {
	Hostname          string              `json:"hostname"`
	URL               string              `json:"url,omitempty"`
	FetchError        string              `json:"fetch_error,omitempty"`
	FetchErrorMessage string              `json:"fetch_error_message,omitempty"`
	Progress          validation.Progress `json:"progress"`
	Results           []entryVerdict      `json:"results"`
}

// NewValidateEndpoint serves POST /validate. The body names the site and optionally the entries to check:
//
//	{"domain": "example.com", "app": false, "skip_delay": true,
//	 "entries": [{"domain": "greenadexchange.com", "publisher_id": "12345", "relationship": "DIRECT"}]}
//
// Without entries every valid entry of the site's file is validated.
func NewValidateEndpoint(fetcher adsTxtFetcher, validator entryValidator, metricEngine metrics.MetricsEngine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		start := time.Now()
		defer func() {
			metricEngine.RecordRequestTime(metrics.EndpointValidate, time.Since(start))
		}()

		req, err := parseValidateRequest(r)
		if err != nil {
			metricEngine.RecordRequest(metrics.EndpointValidate, metrics.RequestStatusBadInput)
			writeError(w, http.StatusBadRequest, err)
			return
		}

		doc := fetcher.Fetch(r.Context(), req.domain, req.app)
		resp := validateResponse{
			Hostname:          doc.Hostname,
			URL:               doc.URL,
			FetchError:        doc.FetchError,
			FetchErrorMessage: doc.FetchErrorMessage,
			Results:           []entryVerdict{},
		}
		if doc.FetchError != "" {
			status := http.StatusOK
			if doc.FetchError == (&errortypes.BadInput{}).Key() {
				status = http.StatusBadRequest
				metricEngine.RecordRequest(metrics.EndpointValidate, metrics.RequestStatusBadInput)
			} else {
				metricEngine.RecordRequest(metrics.EndpointValidate, metrics.RequestStatusFetchError)
			}
			writeJSON(w, status, resp)
			return
		}

		entries := req.entries
		if len(entries) == 0 {
			entries = doc.Entries
		}
		results := validator.ValidateEntries(r.Context(), doc, entries, validation.Options{
			OnProgress: func(p validation.Progress) { resp.Progress = p },
			SkipDelay:  req.skipDelay,
		})
		for _, res := range results {
			v := entryVerdict{Entry: res.Entry, Verdict: res.Verdict}
			if res.Err != nil {
				v.Error = errortypes.ReadKey(res.Err)
			}
			resp.Results = append(resp.Results, v)
		}

		metricEngine.RecordRequest(metrics.EndpointValidate, metrics.RequestStatusOK)
		writeJSON(w, http.StatusOK, resp)
	}
}

func parseValidateRequest(r *http.Request) (*validateRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxValidateBodyBytes))
	if err != nil {
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("failed to read request body: %v", err)}
	}

	req := &validateRequest{}
	if req.domain, err = jsonparser.GetString(body, "domain"); err != nil || req.domain == "" {
		return nil, &errortypes.BadInput{Message: "request body must be a JSON object with a domain"}
	}
	if req.app, err = optionalBool(body, "app"); err != nil {
		return nil, err
	}
	if req.skipDelay, err = optionalBool(body, "skip_delay"); err != nil {
		return nil, err
	}

	var entryErr error
	_, err = jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if entryErr != nil {
			return
		}
		if dataType != jsonparser.Object {
			entryErr = &errortypes.BadInput{Message: "entries must be objects"}
			return
		}
		entry, err := parseEntry(value)
		if err != nil {
			entryErr = err
			return
		}
		req.entries = append(req.entries, entry)
	}, "entries")
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("invalid entries: %v", err)}
	}
	if entryErr != nil {
		return nil, entryErr
	}
	return req, nil
}

func parseEntry(value []byte) (adstxt.Entry, error) {
	domain, _ := jsonparser.GetString(value, "domain")
	publisherID, _ := jsonparser.GetString(value, "publisher_id")
	relationship, _ := jsonparser.GetString(value, "relationship")

	entry := adstxt.Entry{
		Domain:       strings.ToLower(strings.TrimSpace(domain)),
		PublisherID:  strings.TrimSpace(publisherID),
		Relationship: crosscheck.Relationship(strings.ToUpper(strings.TrimSpace(relationship))),
	}
	if entry.Domain == "" || entry.PublisherID == "" {
		return entry, &errortypes.BadInput{Message: "entries need a domain and a publisher_id"}
	}
	if entry.Relationship != crosscheck.Direct && entry.Relationship != crosscheck.Reseller {
		return entry, &errortypes.BadInput{Message: fmt.Sprintf("invalid relationship %q", relationship)}
	}
	return entry, nil
}

func optionalBool(body []byte, key string) (bool, error) {
	v, err := jsonparser.GetBoolean(body, key)
	if err == jsonparser.KeyPathNotFoundError {
		return false, nil
	}
	if err != nil {
		return false, &errortypes.BadInput{Message: fmt.Sprintf("%s must be a boolean", key)}
	}
	return v, nil
}
