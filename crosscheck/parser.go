package crosscheck

import (
	"strconv"
	"strings"

	validator "github.com/asaskevich/govalidator"
)

// Message keys reported by LineParser.
const (
	KeyMissingFields        = "adstxt.missingFields"
	KeyInvalidDomain        = "adstxt.invalidDomain"
	KeyEmptyAccountID       = "adstxt.emptyAccountId"
	KeyInvalidRelationship  = "adstxt.invalidRelationship"
	KeyExtraFields          = "adstxt.extraFields"
	KeyUnknownVariable      = "adstxt.unknownVariable"
	KeyEmptyVariable        = "adstxt.emptyVariable"
	KeyInvalidManagerDomain = "adstxt.invalidManagerDomain"
	KeySubdomainOutOfScope  = "adstxt.subdomainOutOfScope"
)

// LineParser implements the IAB ads.txt 1.1 line grammar.
type LineParser struct{}

func NewLineParser() *LineParser {
	return &LineParser{}
}

// Parse returns one record per line which has content once comments are removed, in file order.
func (p *LineParser) Parse(content, ownerDomain string) []Record {
	content = strings.TrimPrefix(content, "\uFEFF")
	ownerDomain = strings.ToLower(ownerDomain)

	var records []Record
	for i, line := range strings.Split(content, "\n") {
		data := line
		if idx := strings.Index(data, "#"); idx >= 0 {
			data = data[:idx]
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}

		var record Record
		if isVariableLine(data) {
			record = parseVariable(data, ownerDomain)
		} else {
			record = parseEntry(data)
		}
		record.Line = i + 1
		record.Raw = strings.TrimSpace(line)
		records = append(records, record)
	}
	return records
}

func isVariableLine(data string) bool {
	eq := strings.Index(data, "=")
	if eq <= 0 {
		return false
	}
	comma := strings.Index(data, ",")
	return comma < 0 || eq < comma
}

func parseVariable(data, ownerDomain string) Record {
	eq := strings.Index(data, "=")
	record := Record{
		IsVariable:   true,
		VariableType: strings.ToUpper(strings.TrimSpace(data[:eq])),
		Value:        strings.TrimSpace(data[eq+1:]),
		IsValid:      true,
	}

	if record.Value == "" {
		return invalid(record, KeyEmptyVariable, record.VariableType)
	}

	switch record.VariableType {
	case VariableContact:
	case VariableSubdomain:
		record.Value = strings.ToLower(record.Value)
		if !isDomain(record.Value) {
			return invalid(record, KeyInvalidDomain, record.Value)
		}
		if ownerDomain != "" && !strings.HasSuffix(record.Value, "."+ownerDomain) {
			record.Messages = append(record.Messages, Message{
				Key:      KeySubdomainOutOfScope,
				Severity: SeverityWarning,
				Params:   []string{record.Value, ownerDomain},
			})
		}
	case VariableOwnerDomain, VariableInventoryPartnerDomain:
		record.Value = strings.ToLower(record.Value)
		if !isDomain(record.Value) {
			return invalid(record, KeyInvalidDomain, record.Value)
		}
	case VariableManagerDomain:
		// MANAGERDOMAIN=domain or MANAGERDOMAIN=domain,CC
		record.Value = strings.ToLower(record.Value)
		parts := strings.Split(record.Value, ",")
		if len(parts) > 2 || !isDomain(strings.TrimSpace(parts[0])) {
			return invalid(record, KeyInvalidManagerDomain, record.Value)
		}
		if len(parts) == 2 {
			cc := strings.TrimSpace(parts[1])
			if len(cc) != 2 || !validator.IsAlpha(cc) {
				return invalid(record, KeyInvalidManagerDomain, record.Value)
			}
			record.Value = strings.TrimSpace(parts[0]) + "," + strings.ToUpper(cc)
		}
	default:
		return invalid(record, KeyUnknownVariable, record.VariableType)
	}
	return record
}

func parseEntry(data string) Record {
	// Extension data follows a semicolon and is not interpreted.
	if idx := strings.Index(data, ";"); idx >= 0 {
		data = data[:idx]
	}
	fields := strings.Split(data, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	record := Record{IsValid: true}
	if len(fields) < 3 {
		if len(fields) > 0 {
			record.Domain = strings.ToLower(fields[0])
		}
		if len(fields) > 1 {
			record.AccountID = fields[1]
		}
		return invalid(record, KeyMissingFields, strconv.Itoa(len(fields)))
	}

	record.Domain = strings.ToLower(fields[0])
	record.AccountID = fields[1]
	record.Relationship = Relationship(strings.ToUpper(fields[2]))
	if len(fields) > 3 {
		record.CertificationAuthorityID = fields[3]
	}

	if !isDomain(record.Domain) {
		return invalid(record, KeyInvalidDomain, fields[0])
	}
	if record.AccountID == "" {
		return invalid(record, KeyEmptyAccountID, record.Domain)
	}
	if record.Relationship != Direct && record.Relationship != Reseller {
		return invalid(record, KeyInvalidRelationship, fields[2])
	}
	if len(fields) > 4 {
		record.Messages = append(record.Messages, Message{
			Key:      KeyExtraFields,
			Severity: SeverityWarning,
			Params:   []string{strconv.Itoa(len(fields))},
		})
	}
	return record
}

func invalid(record Record, key string, params ...string) Record {
	record.IsValid = false
	record.Error = &Message{Key: key, Severity: SeverityError, Params: params}
	return record
}

func isDomain(s string) bool {
	return strings.Contains(s, ".") && validator.IsDNSName(s)
}
