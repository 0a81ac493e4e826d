package crosscheck

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Message keys reported by SellersChecker.
const (
	KeySellersUnavailable    = "sellersJson.unavailable"
	KeyPublisherIDNotListed  = "sellersJson.publisherIdNotListed"
	KeyDirectButIntermediary = "sellersJson.directButIntermediary"
	KeyResellerButPublisher  = "sellersJson.resellerButPublisher"
	KeyConfidentialSeller    = "sellersJson.confidentialSeller"
	KeyDirectDomainMismatch  = "sellersJson.directDomainMismatch"
	KeyEntryNotFound         = "errors.entryNotFound"
)

// SellersChecker compares every valid entry with the seller record published by its advertising system.
// Each advertising system is queried once, with all of the account IDs declared for it.
type SellersChecker struct{}

func NewSellersChecker() *SellersChecker {
	return &SellersChecker{}
}

func (c *SellersChecker) CrossCheck(ctx context.Context, records []Record, provider SellersProvider) ([]Record, error) {
	out := make([]Record, len(records))
	for i := range records {
		out[i] = records[i]
		out[i].Messages = append([]Message(nil), records[i].Messages...)
	}

	batches := c.lookup(ctx, sellerIDsByDomain(out), provider)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	owner := ownerDomain(out)
	for i := range out {
		if out[i].IsVariable || !out[i].IsValid {
			continue
		}
		out[i].Messages = append(out[i].Messages, checkRecord(&out[i], batches[out[i].Domain], owner)...)
	}
	return out, nil
}

func (c *SellersChecker) lookup(ctx context.Context, ids map[string][]string, provider SellersProvider) map[string]BatchSellersResult {
	batches := make(map[string]BatchSellersResult, len(ids))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for domain, sellerIDs := range ids {
		wg.Add(1)
		go func(domain string, sellerIDs []string) {
			defer wg.Done()
			result := provider.BatchGetSellers(ctx, domain, sellerIDs)
			mu.Lock()
			batches[domain] = result
			mu.Unlock()
		}(domain, sellerIDs)
	}
	wg.Wait()
	return batches
}

// sellerIDsByDomain groups the distinct account IDs of valid entries by advertising system.
func sellerIDsByDomain(records []Record) map[string][]string {
	ids := make(map[string][]string)
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.IsVariable || !r.IsValid {
			continue
		}
		k := r.Domain + "|" + r.AccountID
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ids[r.Domain] = append(ids[r.Domain], r.AccountID)
	}
	for domain := range ids {
		sort.Strings(ids[domain])
	}
	return ids
}

func ownerDomain(records []Record) string {
	for _, r := range records {
		if r.IsVariable && r.IsValid && r.VariableType == VariableOwnerDomain {
			return r.Value
		}
	}
	return ""
}

func checkRecord(record *Record, batch BatchSellersResult, owner string) []Message {
	if batch.Error != "" {
		return []Message{{
			Key:      KeySellersUnavailable,
			Severity: SeverityWarning,
			Params:   []string{record.Domain, batch.Error},
		}}
	}

	var result *SellerResult
	for i := range batch.Results {
		if batch.Results[i].SellerID == record.AccountID {
			result = &batch.Results[i]
			break
		}
	}
	if result == nil || !result.Found || result.Seller == nil {
		return []Message{{
			Key:      KeyPublisherIDNotListed,
			Severity: SeverityError,
			Params:   []string{record.AccountID, record.Domain},
		}}
	}

	seller := result.Seller
	var messages []Message
	sellerType := strings.ToUpper(seller.SellerType)
	switch {
	case record.Relationship == Direct && sellerType == SellerTypeIntermediary:
		messages = append(messages, Message{
			Key:      KeyDirectButIntermediary,
			Severity: SeverityWarning,
			Params:   []string{record.AccountID, record.Domain},
		})
	case record.Relationship == Reseller && sellerType == SellerTypePublisher:
		messages = append(messages, Message{
			Key:      KeyResellerButPublisher,
			Severity: SeverityWarning,
			Params:   []string{record.AccountID, record.Domain},
		})
	}

	if seller.IsConfidential {
		messages = append(messages, Message{
			Key:      KeyConfidentialSeller,
			Severity: SeverityInfo,
			Params:   []string{record.AccountID, record.Domain},
		})
	} else if record.Relationship == Direct && owner != "" && seller.Domain != "" && !sameOrganization(seller.Domain, owner) {
		messages = append(messages, Message{
			Key:      KeyDirectDomainMismatch,
			Severity: SeverityWarning,
			Params:   []string{record.AccountID, seller.Domain, owner},
		})
	}
	return messages
}

func sameOrganization(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return a == b || strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)
}
