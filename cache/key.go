package cache

import (
	"fmt"
	"strings"

	"github.com/prebid/adstxt-validator/errortypes"
)

// Namespace separates the documents of different kinds stored for the same domain.
type Namespace string

const (
	SellersJSONNamespace Namespace = "sellers_json"
	AdsTxtNamespace      Namespace = "ads_txt"
	AppAdsTxtNamespace   Namespace = "app_ads_txt"
)

// Key identifies one cached document. The zero Key is invalid; use NewKey.
type Key struct {
	value string
}

// NewKey builds the key of domain's document in namespace.
//
// Domains are lower-cased and may only contain letters, digits, dots and hyphens, so that one
// domain can never address another domain's entry.
func NewKey(namespace Namespace, domain string) (Key, error) {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" {
		return Key{}, &errortypes.BadInput{Message: "cache key requires a domain"}
	}
	for _, c := range domain {
		if !isKeyChar(c) {
			return Key{}, &errortypes.BadInput{Message: fmt.Sprintf("domain %q contains unsupported character %q", domain, c)}
		}
	}
	return Key{value: string(namespace) + "_" + domain}, nil
}

func isKeyChar(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '.' || c == '-'
}

func (k Key) String() string {
	return k.value
}

func (k Key) valid() bool {
	return k.value != ""
}
