package reconconfig

import "fmt"

// BankProfile names a starter column mapping for a common bank export
// format, generalizing the teacher's GetCommonBankProfiles() (a fixed
// per-bank parser config) into a named ColumnMappingBank preset a user
// can select with --bank-profile instead of writing a full
// column_mapping block by hand (SPEC_FULL.md §12).
type BankProfile struct {
	Name        string
	Description string
	Mapping     RoleMapping
	DateFormat  string
}

// BankProfiles lists the built-in starter profiles.
func BankProfiles() []BankProfile {
	return []BankProfile{
		{
			Name:        "standard",
			Description: "Standard CSV export: date, amount, description, reference columns",
			Mapping: RoleMapping{
				Explicit: map[string]string{},
				Synonyms: map[string][]string{
					"date":        {"date"},
					"amount":      {"amount"},
					"description": {"description"},
					"reference":   {"reference"},
				},
			},
			DateFormat: "2006-01-02",
		},
		{
			Name:        "chase",
			Description: "Chase Bank statement export",
			Mapping: RoleMapping{
				Explicit: map[string]string{},
				Synonyms: map[string][]string{
					"date":        {"posting_date", "date"},
					"amount":      {"amount"},
					"description": {"description"},
					"reference":   {"transaction_id", "reference"},
				},
			},
			DateFormat: "01/02/2006",
		},
		{
			Name:        "wells_fargo",
			Description: "Wells Fargo statement export",
			Mapping: RoleMapping{
				Explicit: map[string]string{},
				Synonyms: map[string][]string{
					"date":        {"date"},
					"amount":      {"amount"},
					"description": {"description"},
					"reference":   {"reference_number", "reference"},
				},
			},
			DateFormat: "01/02/2006",
		},
		{
			Name:        "bank_of_america",
			Description: "Bank of America statement export",
			Mapping: RoleMapping{
				Explicit: map[string]string{},
				Synonyms: map[string][]string{
					"date":        {"date"},
					"amount":      {"amount"},
					"description": {"description", "payee"},
					"reference":   {"reference"},
				},
			},
			DateFormat: "01/02/2006",
		},
	}
}

// BankProfileByName looks up a starter profile by name, case-sensitive,
// matching the flag value a user would pass to --bank-profile.
func BankProfileByName(name string) (BankProfile, error) {
	for _, p := range BankProfiles() {
		if p.Name == name {
			return p, nil
		}
	}
	return BankProfile{}, fmt.Errorf("reconconfig: unknown bank profile %q", name)
}

// ApplyBankProfile overlays a starter profile onto cfg's bank column
// mapping and date formats. It never overrides an explicit mapping the
// caller has already configured for a canonical field.
func (c *Config) ApplyBankProfile(p BankProfile) {
	if c.ColumnMappingBank.Synonyms == nil {
		c.ColumnMappingBank.Synonyms = map[string][]string{}
	}
	for field, synonyms := range p.Mapping.Synonyms {
		if _, explicit := c.ColumnMappingBank.Explicit[field]; explicit {
			continue
		}
		c.ColumnMappingBank.Synonyms[field] = synonyms
	}
	if p.DateFormat != "" {
		c.DateFormats = prependUnique(c.DateFormats, p.DateFormat)
	}
}

func prependUnique(formats []string, f string) []string {
	out := make([]string, 0, len(formats)+1)
	out = append(out, f)
	for _, existing := range formats {
		if existing != f {
			out = append(out, existing)
		}
	}
	return out
}
