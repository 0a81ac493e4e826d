package sellersjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/prebid/adstxt-validator/crosscheck"
)

// Document is a parsed sellers.json file.
type Document struct {
	Version        LooseString  `json:"version,omitempty"`
	ContactEmail   string       `json:"contact_email,omitempty"`
	ContactAddress string       `json:"contact_address,omitempty"`
	Identifiers    []Identifier `json:"identifiers,omitempty"`
	Sellers        []Seller     `json:"sellers"`
}

type Identifier struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Seller is one entry of the sellers array.
type Seller struct {
	SellerID       LooseString `json:"seller_id"`
	SellerType     string      `json:"seller_type,omitempty"`
	Name           string      `json:"name,omitempty"`
	Domain         string      `json:"domain,omitempty"`
	IsConfidential Flag        `json:"is_confidential,omitempty"`
	IsPassthrough  Flag        `json:"is_passthrough,omitempty"`
	Comment        string      `json:"comment,omitempty"`
}

func (s *Seller) toCrossCheck() *crosscheck.Seller {
	return &crosscheck.Seller{
		SellerID:       string(s.SellerID),
		SellerType:     strings.ToUpper(s.SellerType),
		Name:           s.Name,
		Domain:         strings.ToLower(s.Domain),
		IsConfidential: bool(s.IsConfidential),
		IsPassthrough:  bool(s.IsPassthrough),
	}
}

// Metadata summarizes the document without its seller list.
func (d *Document) Metadata() crosscheck.Metadata {
	m := crosscheck.Metadata{
		Version:        string(d.Version),
		ContactEmail:   d.ContactEmail,
		ContactAddress: d.ContactAddress,
		SellerCount:    len(d.Sellers),
	}
	for _, id := range d.Identifiers {
		m.Identifiers = append(m.Identifiers, crosscheck.Identifier{Name: id.Name, Value: id.Value})
	}
	return m
}

// index maps seller IDs to sellers. The first listing of an ID wins.
func (d *Document) index() map[string]*Seller {
	idx := make(map[string]*Seller, len(d.Sellers))
	for i := range d.Sellers {
		id := strings.TrimSpace(string(d.Sellers[i].SellerID))
		if _, ok := idx[id]; !ok {
			idx[id] = &d.Sellers[i]
		}
	}
	return idx
}

// LooseString accepts JSON strings and numbers. Seller IDs and versions are published as either.
type LooseString string

func (s *LooseString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = LooseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = LooseString(n.String())
	return nil
}

// Flag accepts 0/1, booleans and their quoted forms. It is written back as 0 or 1.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	v := strings.Trim(string(b), `"`)
	switch strings.ToLower(v) {
	case "1", "true":
		*f = true
	case "0", "false", "", "null":
		*f = false
	default:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid flag value %s", b)
		}
		*f = n != 0
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}
