// Package normalizer implements the Schema Normaliser (C1): it maps a
// source's declared column names onto canonical fields and combines
// dual-column money movement into one signed amount_raw string,
// producing domain.PartialTxn values for the Field Cleaner.
package normalizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"smartrecon/internal/domain"
	"smartrecon/internal/obslog"
	"smartrecon/internal/reconconfig"
	"smartrecon/internal/reconerrs"
)

const (
	fieldDate        = "date"
	fieldAmount      = "amount"
	fieldDebit       = "debit"
	fieldCredit      = "credit"
	fieldWithdrawal  = "withdrawal"
	fieldDeposit     = "deposit"
	fieldDescription = "description"
	fieldReference   = "reference"
)

// Normalise maps rows onto PartialTxn values for the given role,
// consulting the role's column mapping in config. Returns a fatal
// SchemaError if a required canonical field cannot be resolved for any
// row. Rows lacking any monetary column are dropped, surfaced as
// warnings rather than aborting the run.
func Normalise(rows []domain.SourceRow, role domain.Role, cfg *reconconfig.Config) ([]domain.PartialTxn, []string, error) {
	log := obslog.WithComponent("normalizer").WithField("role", role)
	mapping := mappingFor(role, cfg)

	var warnings []string
	partials := make([]domain.PartialTxn, 0, len(rows))

	for i := range rows {
		row := &rows[i]

		dateCol, dateWarn, err := resolveColumn(row.RawColumns, mapping, fieldDate)
		if err != nil {
			return nil, warnings, reconerrs.Schema("normalizer", fmt.Sprintf(
				"%s: missing required canonical field %q", row.TxnID(), fieldDate), err)
		}
		if dateWarn != "" {
			warnings = append(warnings, dateWarn)
		}

		amountRaw, amtWarn, ok := resolveAmount(row.RawColumns, mapping, role, cfg)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s: dropped, no monetary column present", row.TxnID()))
			log.WithField("txn_id", row.TxnID()).Warn("dropping row with no monetary column")
			continue
		}
		if amtWarn != "" {
			warnings = append(warnings, amtWarn)
		}

		descCol, descWarn, _ := resolveColumnOptional(row.RawColumns, mapping, fieldDescription)
		if descWarn != "" {
			warnings = append(warnings, descWarn)
		}
		refCol, refWarn, _ := resolveColumnOptional(row.RawColumns, mapping, fieldReference)
		if refWarn != "" {
			warnings = append(warnings, refWarn)
		}

		partials = append(partials, domain.PartialTxn{
			TxnID:       row.TxnID(),
			Source:      role,
			DateRaw:     dateCol,
			AmountRaw:   amountRaw,
			Description: descCol,
			Reference:   refCol,
			Original:    row,
		})
	}

	log.WithField("rows_in", len(rows)).WithField("rows_out", len(partials)).Debug("normalised rows")
	return partials, warnings, nil
}

func mappingFor(role domain.Role, cfg *reconconfig.Config) reconconfig.RoleMapping {
	if role == domain.RoleGL {
		return cfg.ColumnMappingGL
	}
	return cfg.ColumnMappingBank
}

// resolveColumn looks up the declared column for a canonical field:
// first the explicit mapping, then the ranked synonym list, matching
// case-insensitively and trimmed. Returns an error if no column
// resolves.
func resolveColumn(raw map[string]string, mapping reconconfig.RoleMapping, field string) (string, string, error) {
	value, warn, found := resolveColumnOptional(raw, mapping, field)
	if !found {
		return "", "", fmt.Errorf("no column maps to canonical field %q", field)
	}
	return value, warn, nil
}

func resolveColumnOptional(raw map[string]string, mapping reconconfig.RoleMapping, field string) (string, string, bool) {
	index := buildCaseInsensitiveIndex(raw)

	if declared, ok := mapping.Explicit[field]; ok {
		if v, ok := lookup(index, declared); ok {
			return v, "", true
		}
	}

	for rank, syn := range mapping.Synonyms[field] {
		if v, ok := lookup(index, syn); ok {
			warn := ""
			if rank > 0 {
				warn = fmt.Sprintf("field %q resolved via synonym fallback %q (rank %d)", field, syn, rank)
			}
			return v, warn, true
		}
	}

	return "", "", false
}

func buildCaseInsensitiveIndex(raw map[string]string) map[string]string {
	idx := make(map[string]string, len(raw))
	for k, v := range raw {
		idx[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return idx
}

func lookup(index map[string]string, name string) (string, bool) {
	v, ok := index[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// resolveAmount produces the signed amount_raw string for a row,
// combining dual-column money movement per the role's sign
// convention, or falling back to a single amount column. Returns
// ok=false if neither path yields a column.
func resolveAmount(raw map[string]string, mapping reconconfig.RoleMapping, role domain.Role, cfg *reconconfig.Config) (string, string, bool) {
	convention := cfg.SignConventionGL
	if role == domain.RoleBank {
		convention = cfg.SignConventionBank
	}

	switch convention {
	case reconconfig.SignConventionDebitCredit:
		debit, _, debitOK := resolveColumnOptional(raw, mapping, fieldDebit)
		credit, _, creditOK := resolveColumnOptional(raw, mapping, fieldCredit)
		if debitOK || creditOK {
			return combineDualColumn(debit, credit), "", true
		}
	case reconconfig.SignConventionDepositWithdrawal:
		deposit, _, depositOK := resolveColumnOptional(raw, mapping, fieldDeposit)
		withdrawal, _, withdrawalOK := resolveColumnOptional(raw, mapping, fieldWithdrawal)
		if depositOK || withdrawalOK {
			return combineDualColumn(deposit, withdrawal), "", true
		}
	}

	if v, warn, ok := resolveColumnOptional(raw, mapping, fieldAmount); ok {
		return v, warn, true
	}

	return "", "", false
}

var normalizeNumericStrip = regexp.MustCompile(`[^0-9.\-]`)

// combineDualColumn computes a-b as a plain decimal string: empty
// operands are treated as 0. If either operand is non-numeric, both
// trimmed operands are passed to C2's parser joined as "a|b", which it
// cannot parse, so the row is ejected as a ParseException rather than
// silently dropped here.
func combineDualColumn(a, b string) string {
	av, aOK := parseLooseDecimal(a)
	bv, bOK := parseLooseDecimal(b)
	if !aOK || !bOK {
		return fmt.Sprintf("%s|%s", strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return av.Sub(bv).String()
}

func parseLooseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, true
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = normalizeNumericStrip.ReplaceAllString(s, "")
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if neg {
		d = d.Neg()
	}
	return d, true
}
