package sellersjson

import (
	"fmt"
	"os"
	"strings"

	validator "github.com/asaskevich/govalidator"
	"github.com/golang/glog"
	yaml "gopkg.in/yaml.v2"
)

type overrideEntry struct {
	Domain string `yaml:"domain"`
	URL    string `yaml:"url"`
}

type overridesFile struct {
	Overrides []overrideEntry `yaml:"overrides"`
}

// LoadOverrides reads a YAML file of sellers.json locations for advertising systems which do not
// publish at https://<domain>/sellers.json:
//
//	overrides:
//	  - domain: google.com
//	    url: https://storage.googleapis.com/adx-rtb-dictionaries/sellers.json
func LoadOverrides(filename string) (map[string]string, error) {
	if glog.V(2) {
		glog.Infof("Reading sellers.json overrides from %s", filename)
	}

	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var f overridesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %v", filename, err)
	}

	overrides := make(map[string]string, len(f.Overrides))
	for i, o := range f.Overrides {
		domain := strings.ToLower(strings.TrimSpace(o.Domain))
		if !validator.IsDNSName(domain) {
			return nil, fmt.Errorf("%s: overrides[%d].domain %q is not a domain", filename, i, o.Domain)
		}
		if !validator.IsURL(o.URL) {
			return nil, fmt.Errorf("%s: overrides[%d].url %q is not a url", filename, i, o.URL)
		}
		overrides[domain] = o.URL
	}

	if glog.V(2) {
		glog.Infof("Loaded %d sellers.json overrides", len(overrides))
	}
	return overrides, nil
}

// URLResolver maps an advertising system domain to the location of its sellers.json.
type URLResolver struct {
	overrides map[string]string
}

// NewURLResolver merges the override tables; later tables win.
func NewURLResolver(tables ...map[string]string) *URLResolver {
	overrides := make(map[string]string)
	for _, t := range tables {
		for domain, url := range t {
			overrides[strings.ToLower(domain)] = url
		}
	}
	return &URLResolver{overrides: overrides}
}

func (r *URLResolver) URL(domain string) string {
	domain = strings.ToLower(domain)
	if url, ok := r.overrides[domain]; ok {
		return url
	}
	return "https://" + domain + "/sellers.json"
}
