package sellersjson

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/prebid/adstxt-validator/errortypes"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// shapeSchema only rejects documents which a seller lookup cannot work with. Violations inside a
// single seller row do not reject the document; the row is skipped instead.
const shapeSchema = `{
  "type": "object",
  "required": ["sellers"],
  "properties": {
    "version": {"type": ["string", "number", "null"]},
    "contact_email": {"type": ["string", "null"]},
    "contact_address": {"type": ["string", "null"]},
    "identifiers": {"type": ["array", "null"]},
    "sellers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["seller_id"],
        "properties": {
          "seller_id": {"type": ["string", "number"]},
          "seller_type": {"type": ["string", "null"]},
          "name": {"type": ["string", "null"]},
          "domain": {"type": ["string", "null"]},
          "comment": {"type": ["string", "null"]},
          "is_confidential": {"type": ["integer", "boolean", "string", "null"]},
          "is_passthrough": {"type": ["integer", "boolean", "string", "null"]}
        }
      }
    }
  }
}`

// maxReportedErrors bounds the schema violations quoted in an InvalidFormat message.
const maxReportedErrors = 3

var sellersSchema = mustLoadSchema(shapeSchema)

func mustLoadSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid sellers.json schema: %v", err))
	}
	return schema
}

// validateShape rejects bodies which are not JSON or do not look like a sellers.json document.
// It returns the indexes of the seller rows which cannot be used, with the first violation of each.
func validateShape(body []byte) (map[int]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, &errortypes.InvalidFormat{Message: "sellers.json is not valid JSON"}
	}
	if !gjson.GetBytes(body, "sellers").IsArray() {
		return nil, &errortypes.InvalidFormat{Message: "sellers.json has no sellers array"}
	}

	result, err := sellersSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, &errortypes.InvalidFormat{Message: fmt.Sprintf("sellers.json could not be validated: %v", err)}
	}
	if result.Valid() {
		return nil, nil
	}

	badRows := make(map[int]string)
	var docErrs []gojsonschema.ResultError
	for _, e := range result.Errors() {
		row, ok := sellerRow(e.Field())
		if !ok {
			docErrs = append(docErrs, e)
			continue
		}
		if _, seen := badRows[row]; !seen {
			badRows[row] = e.String()
		}
	}
	if len(docErrs) > 0 {
		return nil, &errortypes.InvalidFormat{Message: "sellers.json has an unexpected shape: " + describe(docErrs)}
	}
	return badRows, nil
}

// sellerRow extracts the row index from a field path like "sellers.12.domain".
func sellerRow(field string) (int, bool) {
	rest, ok := strings.CutPrefix(field, "sellers.")
	if !ok {
		return 0, false
	}
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		rest = rest[:i]
	}
	row, err := strconv.Atoi(rest)
	return row, err == nil
}

func describe(errs []gojsonschema.ResultError) string {
	msgs := make([]string, 0, maxReportedErrors+1)
	for i := 0; i < len(errs) && i < maxReportedErrors; i++ {
		msgs = append(msgs, errs[i].String())
	}
	if len(errs) > maxReportedErrors {
		msgs = append(msgs, fmt.Sprintf("and %d more", len(errs)-maxReportedErrors))
	}
	return strings.Join(msgs, "; ")
}
