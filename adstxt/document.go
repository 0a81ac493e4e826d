package adstxt

import (
	"sort"
	"strings"

	"github.com/prebid/adstxt-validator/crosscheck"
	"github.com/prebid/adstxt-validator/errortypes"
)

// Entry is one valid seller declaration of an ads.txt file.
type Entry struct {
	Domain                   string                  `json:"domain"`
	PublisherID              string                  `json:"publisher_id"`
	Relationship             crosscheck.Relationship `json:"relationship"`
	CertificationAuthorityID string                  `json:"certification_authority_id,omitempty"`
	Line                     int                     `json:"line"`
	Raw                      string                  `json:"raw"`
	Messages                 []crosscheck.Message    `json:"messages,omitempty"`
}

// Key identifies an entry: domain (case-insensitive), publisher ID and relationship.
func (e *Entry) Key() string {
	return EntryKey(e.Domain, e.PublisherID, e.Relationship)
}

func EntryKey(domain, publisherID string, relationship crosscheck.Relationship) string {
	return strings.ToLower(strings.TrimSpace(domain)) + "|" + strings.TrimSpace(publisherID) + "|" + strings.ToUpper(string(relationship))
}

type Variable struct {
	Type     string               `json:"type"`
	Value    string               `json:"value"`
	Line     int                  `json:"line"`
	Raw      string               `json:"raw"`
	Messages []crosscheck.Message `json:"messages,omitempty"`
}

// LineError is a line which could not be parsed or is structurally invalid.
type LineError struct {
	Line    int                `json:"line"`
	Raw     string             `json:"raw"`
	Message crosscheck.Message `json:"message"`
}

// Duplicate is an entry whose key was already declared on OriginalLine.
type Duplicate struct {
	Entry        Entry `json:"entry"`
	OriginalLine int   `json:"original_line"`
}

// ManagerDomain is a MANAGERDOMAIN declaration, optionally scoped to a country.
type ManagerDomain struct {
	Domain      string `json:"domain"`
	CountryCode string `json:"country_code,omitempty"`
}

// Document is the result of acquiring the ads.txt or app-ads.txt file of one host.
//
// Every non-blank, non-comment line of Content lands in exactly one of Entries, Variables,
// Errors and Duplicates. FetchError is the errortypes key of the failure, if any.
type Document struct {
	Hostname   string      `json:"hostname"`
	App        bool        `json:"app"`
	URL        string      `json:"url,omitempty"`
	Content    string      `json:"content,omitempty"`
	Entries    []Entry     `json:"entries"`
	Variables  []Variable  `json:"variables"`
	Errors     []LineError `json:"errors"`
	Duplicates []Duplicate `json:"duplicates"`

	FetchError        string `json:"fetch_error,omitempty"`
	FetchErrorMessage string `json:"fetch_error_message,omitempty"`
}

// ContentLength is the length of the raw document in bytes.
func (d *Document) ContentLength() int {
	return len(d.Content)
}

func (d *Document) fail(err error) *Document {
	d.FetchError = errortypes.ReadKey(err)
	d.FetchErrorMessage = err.Error()
	return d
}

// VariableValues returns the values declared for varType, in file order.
func (d *Document) VariableValues(varType string) []string {
	var values []string
	for _, v := range d.Variables {
		if v.Type == varType {
			values = append(values, v.Value)
		}
	}
	return values
}

func (d *Document) OwnerDomain() string {
	if values := d.VariableValues(crosscheck.VariableOwnerDomain); len(values) > 0 {
		return values[0]
	}
	return ""
}

func (d *Document) ManagerDomains() []ManagerDomain {
	values := d.VariableValues(crosscheck.VariableManagerDomain)
	managers := make([]ManagerDomain, 0, len(values))
	for _, v := range values {
		domain, country, _ := strings.Cut(v, ",")
		managers = append(managers, ManagerDomain{
			Domain:      strings.TrimSpace(domain),
			CountryCode: strings.ToUpper(strings.TrimSpace(country)),
		})
	}
	return managers
}

// project sorts parsed records into the document's buckets. The first entry declaring a key is kept;
// later ones are reported as duplicates of it.
func (d *Document) project(records []crosscheck.Record) {
	d.Entries = make([]Entry, 0, len(records))
	d.Variables = []Variable{}
	d.Errors = []LineError{}
	d.Duplicates = []Duplicate{}

	firstLine := make(map[string]int, len(records))
	for _, r := range records {
		switch {
		case !r.IsValid:
			lineErr := LineError{Line: r.Line, Raw: r.Raw}
			if r.Error != nil {
				lineErr.Message = *r.Error
			}
			d.Errors = append(d.Errors, lineErr)
		case r.IsVariable:
			d.Variables = append(d.Variables, Variable{
				Type:     r.VariableType,
				Value:    r.Value,
				Line:     r.Line,
				Raw:      r.Raw,
				Messages: r.Messages,
			})
		default:
			entry := Entry{
				Domain:                   r.Domain,
				PublisherID:              r.AccountID,
				Relationship:             r.Relationship,
				CertificationAuthorityID: r.CertificationAuthorityID,
				Line:                     r.Line,
				Raw:                      r.Raw,
				Messages:                 r.Messages,
			}
			key := entry.Key()
			if line, ok := firstLine[key]; ok {
				d.Duplicates = append(d.Duplicates, Duplicate{Entry: entry, OriginalLine: line})
				continue
			}
			firstLine[key] = r.Line
			d.Entries = append(d.Entries, entry)
		}
	}
	SortEntries(d.Entries)
}

// SortEntries orders entries by domain, then publisher ID length, then publisher ID, then relationship.
// Clients rely on this order.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := &entries[i], &entries[j]
		if da, db := strings.ToLower(a.Domain), strings.ToLower(b.Domain); da != db {
			return da < db
		}
		if len(a.PublisherID) != len(b.PublisherID) {
			return len(a.PublisherID) < len(b.PublisherID)
		}
		if a.PublisherID != b.PublisherID {
			return a.PublisherID < b.PublisherID
		}
		return a.Relationship < b.Relationship
	})
}
