package lead

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Sentinel stands in for any field the extractor could not produce. It is a
// real data value downstream (it even ends up inside dedupe keys), so it is
// defined once here.
const Sentinel = "N/A"

// ErrExtractionFailed means the extractor payload could not be coerced into
// any mapping at all. Individual missing or malformed fields never trigger
// it; they degrade to the sentinel instead.
var ErrExtractionFailed = errors.New("extraction failed: no JSON object in payload")

// Fields is the extractor output. Every value is a string; absent or
// unusable values hold the sentinel.
type Fields struct {
	FirstName       string `json:"first_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Company         string `json:"company"`
	RolesAdvertised string `json:"roles_advertised"`
	Sector          string `json:"sector"`
	EmploymentType  string `json:"employment_type"`
	DatePosted      string `json:"date_posted"`
	EntryDate       string `json:"entry_date"`
	SalaryInfo      string `json:"salary_info"`
	Location        string `json:"location"`
	AdURL           string `json:"ad_url"`
	Skip            string `json:"skip"`
	SkipReason      string `json:"skip_reason"`
}

// EmptyFields returns a Fields with every slot set to the sentinel.
func EmptyFields() Fields {
	return Fields{
		FirstName:       Sentinel,
		Email:           Sentinel,
		Phone:           Sentinel,
		Company:         Sentinel,
		RolesAdvertised: Sentinel,
		Sector:          Sentinel,
		EmploymentType:  Sentinel,
		DatePosted:      Sentinel,
		EntryDate:       Sentinel,
		SalaryInfo:      Sentinel,
		Location:        Sentinel,
		AdURL:           Sentinel,
		Skip:            Sentinel,
		SkipReason:      Sentinel,
	}
}

var objectRe = regexp.MustCompile(`(?s)\{.*\}`)

// ParsePayload turns the extractor's raw text into Fields. Models wrap JSON
// in code fences or prose often enough that we strip fences and fall back to
// the first {...} block before giving up. Keys are accepted in both the
// human-readable label form ("Roles Advertised") and the snake_case form.
func ParsePayload(raw string) (Fields, error) {
	cleaned := stripFences(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		m := objectRe.FindString(cleaned)
		if m == "" {
			return EmptyFields(), ErrExtractionFailed
		}
		if err := json.Unmarshal([]byte(m), &data); err != nil {
			return EmptyFields(), fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
	}

	return FromMap(data), nil
}

// FromMap builds Fields from an arbitrary decoded mapping, absorbing
// missing keys and wrong value types per field.
func FromMap(data map[string]any) Fields {
	// fold keys: "Roles Advertised", "roles_advertised", "RolesAdvertised"
	// all land on the same slot.
	folded := make(map[string]string, len(data))
	for k, v := range data {
		s := coerceString(v)
		if s == "" {
			continue
		}
		folded[foldKey(k)] = s
	}

	f := EmptyFields()
	get := func(key string) string {
		if v, ok := folded[key]; ok {
			return v
		}
		return Sentinel
	}

	f.FirstName = get("firstname")
	f.Email = get("email")
	f.Phone = get("phone")
	f.Company = get("company")
	f.RolesAdvertised = get("rolesadvertised")
	f.Sector = get("sector")
	f.EmploymentType = get("employmenttype")
	f.DatePosted = get("dateposted")
	f.EntryDate = get("entrydate")
	f.SalaryInfo = get("salaryinfo")
	f.Location = get("location")
	f.AdURL = get("adurl")
	f.Skip = normalizeYesNo(get("skip"))
	f.SkipReason = get("skipreason")
	return f
}

func foldKey(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, " ", "")
	k = strings.ReplaceAll(k, "_", "")
	return k
}

// normalizeYesNo maps the model's assorted spellings of a yes/no flag onto
// "Yes"/"No"; anything unrecognized stays as-is so the qualification gate
// treats it as not-"No".
func normalizeYesNo(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1", "y":
		return "Yes"
	case "no", "false", "0", "n":
		return "No"
	}
	return v
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}
