package lead

import (
	"errors"
	"testing"
)

func TestParsePayloadPlainJSON(t *testing.T) {
	f, err := ParsePayload(`{"company":"Sparky Co","roles_advertised":"Electrician","skip":"No"}`)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if f.Company != "Sparky Co" || f.RolesAdvertised != "Electrician" || f.Skip != "No" {
		t.Errorf("got %+v", f)
	}
	if f.Email != Sentinel {
		t.Errorf("missing key email = %q, want sentinel", f.Email)
	}
}

func TestParsePayloadLabeledKeys(t *testing.T) {
	f, err := ParsePayload(`{"First Name":"Dana","Roles Advertised":"Electrician","Employment Type":"Full-time","Ad URL":"https://x.example/1"}`)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if f.FirstName != "Dana" {
		t.Errorf("first_name = %q", f.FirstName)
	}
	if f.RolesAdvertised != "Electrician" {
		t.Errorf("roles_advertised = %q", f.RolesAdvertised)
	}
	if f.EmploymentType != "Full-time" {
		t.Errorf("employment_type = %q", f.EmploymentType)
	}
	if f.AdURL != "https://x.example/1" {
		t.Errorf("ad_url = %q", f.AdURL)
	}
}

func TestParsePayloadCodeFences(t *testing.T) {
	raw := "```json\n{\"company\": \"Sparky Co\"}\n```"
	f, err := ParsePayload(raw)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if f.Company != "Sparky Co" {
		t.Errorf("company = %q", f.Company)
	}
}

func TestParsePayloadLeadingProse(t *testing.T) {
	raw := "Here is the extraction you asked for:\n{\"company\": \"Sparky Co\"}\nLet me know if you need more."
	f, err := ParsePayload(raw)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if f.Company != "Sparky Co" {
		t.Errorf("company = %q", f.Company)
	}
}

func TestParsePayloadGarbage(t *testing.T) {
	for _, raw := range []string{"", "no json here", "[1,2,3]"} {
		if _, err := ParsePayload(raw); !errors.Is(err, ErrExtractionFailed) {
			t.Errorf("ParsePayload(%q) err = %v, want ErrExtractionFailed", raw, err)
		}
	}
}

func TestParsePayloadCoercesTypes(t *testing.T) {
	f, err := ParsePayload(`{"phone": 400123456, "skip": false, "salary_info": null}`)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if f.Phone != "400123456" {
		t.Errorf("numeric phone = %q", f.Phone)
	}
	if f.Skip != "No" {
		t.Errorf("boolean skip = %q, want No", f.Skip)
	}
	if f.SalaryInfo != Sentinel {
		t.Errorf("null salary = %q, want sentinel", f.SalaryInfo)
	}
}

func TestNormalizeYesNoSpellings(t *testing.T) {
	tests := map[string]string{
		"yes": "Yes", "TRUE": "Yes", "1": "Yes", "y": "Yes",
		"no": "No", "False": "No", "0": "No", "N": "No",
		"maybe": "maybe",
	}
	for in, want := range tests {
		if got := normalizeYesNo(in); got != want {
			t.Errorf("normalizeYesNo(%q) = %q, want %q", in, got, want)
		}
	}
}
