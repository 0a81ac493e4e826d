// Package crosscheck is the seam between the acquisition engine and the ads.txt grammar and
// seller-relationship rules.
//
// The engine only depends on the Parser, Checker and SellersProvider interfaces. LineParser and
// SellersChecker are the implementations shipped with the service.
package crosscheck

import "context"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Message is a localizable diagnostic: a stable key, a severity and positional parameters.
type Message struct {
	Key      string   `json:"key"`
	Severity Severity `json:"severity"`
	Params   []string `json:"params,omitempty"`
}

type Relationship string

const (
	Direct   Relationship = "DIRECT"
	Reseller Relationship = "RESELLER"
)

// Variable types recognised in ads.txt files.
const (
	VariableContact                = "CONTACT"
	VariableSubdomain              = "SUBDOMAIN"
	VariableInventoryPartnerDomain = "INVENTORYPARTNERDOMAIN"
	VariableOwnerDomain            = "OWNERDOMAIN"
	VariableManagerDomain          = "MANAGERDOMAIN"
)

// Record is one parsed, non-blank, non-comment ads.txt line.
type Record struct {
	Line int    `json:"line"`
	Raw  string `json:"raw"`

	// IsVariable records carry VariableType and Value; the others carry the entry fields.
	IsVariable   bool   `json:"is_variable"`
	VariableType string `json:"variable_type,omitempty"`
	Value        string `json:"value,omitempty"`

	Domain                   string       `json:"domain,omitempty"`
	AccountID                string       `json:"account_id,omitempty"`
	Relationship             Relationship `json:"relationship,omitempty"`
	CertificationAuthorityID string       `json:"certification_authority_id,omitempty"`

	IsValid bool `json:"is_valid"`
	// Error is set on invalid records.
	Error *Message `json:"error,omitempty"`
	// Messages are warnings attached by the parser and the checker.
	Messages []Message `json:"messages,omitempty"`
}

// Verified reports whether the record is valid and carries nothing beyond informational messages.
func (r *Record) Verified() bool {
	if !r.IsValid {
		return false
	}
	for _, m := range r.Messages {
		if m.Severity != SeverityInfo {
			return false
		}
	}
	return true
}

// Parser turns raw ads.txt content into records. ownerDomain is the domain the file was served for.
type Parser interface {
	Parse(content, ownerDomain string) []Record
}

// Checker annotates records with the result of comparing them to the advertising systems' sellers.json.
// The returned slice is a copy; records are matched to the input by Line.
type Checker interface {
	CrossCheck(ctx context.Context, records []Record, provider SellersProvider) ([]Record, error)
}

// Seller is one account listed in a sellers.json file.
type Seller struct {
	SellerID       string `json:"seller_id"`
	SellerType     string `json:"seller_type,omitempty"`
	Name           string `json:"name,omitempty"`
	Domain         string `json:"domain,omitempty"`
	IsConfidential bool   `json:"is_confidential"`
	IsPassthrough  bool   `json:"is_passthrough"`
}

// Seller types.
const (
	SellerTypePublisher    = "PUBLISHER"
	SellerTypeIntermediary = "INTERMEDIARY"
	SellerTypeBoth         = "BOTH"
)

// Lookup sources.
const (
	SourceCache = "cache"
	SourceFetch = "fetch"
	SourceNone  = "none"
)

// SellerResult is the lookup result for one requested seller ID. Found is always set explicitly.
type SellerResult struct {
	SellerID string  `json:"seller_id"`
	Seller   *Seller `json:"seller"`
	Found    bool    `json:"found"`
	Source   string  `json:"source"`
	Error    string  `json:"error,omitempty"`
}

type Identifier struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Metadata struct {
	Version        string       `json:"version,omitempty"`
	ContactEmail   string       `json:"contact_email,omitempty"`
	ContactAddress string       `json:"contact_address,omitempty"`
	SellerCount    int          `json:"seller_count"`
	Identifiers    []Identifier `json:"identifiers,omitempty"`
}

type CacheInfo struct {
	IsCached bool `json:"is_cached"`
	// Status is "success" for a cached document, a cache.Status for a cached failure and "" otherwise.
	Status    string `json:"status,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// BatchSellersResult answers a batch lookup: exactly one result per requested ID, in request order.
type BatchSellersResult struct {
	Domain         string         `json:"domain"`
	RequestedCount int            `json:"requested_count"`
	FoundCount     int            `json:"found_count"`
	Results        []SellerResult `json:"results"`
	Metadata       Metadata       `json:"metadata"`
	CacheInfo      CacheInfo      `json:"cache_info"`
	// Error is the message key of the failure which prevented reading the document, if any.
	Error string `json:"error,omitempty"`
}

// SellersProvider gives access to sellers.json documents. Implementations never fail:
// every failure is encoded in the result.
type SellersProvider interface {
	BatchGetSellers(ctx context.Context, domain string, sellerIDs []string) BatchSellersResult
	HasSellerJSON(ctx context.Context, domain string) bool
	GetMetadata(ctx context.Context, domain string) Metadata
	GetCacheInfo(ctx context.Context, domain string) CacheInfo
}
