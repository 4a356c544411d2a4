// Package cleaner implements the Field Cleaner (C2): it parses the
// unparsed strings on a domain.PartialTxn into typed date/amount
// values and normalises description/reference text, ejecting rows
// that fail coercion into a parse-exception stream instead of the
// matching pool.
package cleaner

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"smartrecon/internal/domain"
	"smartrecon/internal/obslog"
	"smartrecon/internal/reconconfig"
	"smartrecon/internal/reconerrs"
)

// dateColumnClassificationThreshold is the fraction of non-empty
// values that must parse with a single format for a column to be
// accepted as a date column (spec.md §4.2).
const dateColumnClassificationThreshold = 0.8

// Clean parses every field of partials into a CanonicalTxn, ejecting
// rows whose date or amount fails coercion into the returned
// []domain.ParseException. Returns a fatal SchemaError if fewer than
// 80% of non-empty date values parse with any single configured
// format (the date-column-classification rule).
func Clean(partials []domain.PartialTxn, cfg *reconconfig.Config) ([]domain.CanonicalTxn, []domain.ParseException, error) {
	log := obslog.WithComponent("cleaner")

	format, err := classifyDateFormat(partials, cfg.DateFormats)
	if err != nil {
		return nil, nil, reconerrs.Schema("cleaner", "no single date format covers 80% of values", err)
	}

	txns := make([]domain.CanonicalTxn, 0, len(partials))
	var exceptions []domain.ParseException

	for _, p := range partials {
		date, dateErr := parseDate(p.DateRaw, format, cfg.DateFormats)
		if dateErr != nil {
			exceptions = append(exceptions, domain.ParseException{
				TxnID: p.TxnID, Source: p.Source, Field: "date", Raw: p.DateRaw, Reason: dateErr.Error(),
			})
			continue
		}

		amount, amtErr := parseAmount(p.AmountRaw, cfg.AmountPrecision)
		if amtErr != nil {
			exceptions = append(exceptions, domain.ParseException{
				TxnID: p.TxnID, Source: p.Source, Field: "amount", Raw: p.AmountRaw, Reason: amtErr.Error(),
			})
			continue
		}

		txns = append(txns, domain.CanonicalTxn{
			TxnID:       p.TxnID,
			Source:      p.Source,
			Date:        date,
			Amount:      amount,
			Description: cleanDescription(p.Description, cfg.Abbreviations),
			Reference:   cleanReference(p.Reference),
			Original:    p.Original,
		})
	}

	log.WithField("rows_in", len(partials)).
		WithField("rows_out", len(txns)).
		WithField("parse_exceptions", len(exceptions)).
		Debug("cleaned partial transactions")
	return txns, exceptions, nil
}

// classifyDateFormat returns the first configured format under which
// at least dateColumnClassificationThreshold of the non-empty date
// values parse successfully.
func classifyDateFormat(partials []domain.PartialTxn, formats []string) (string, error) {
	nonEmpty := 0
	for _, p := range partials {
		if strings.TrimSpace(p.DateRaw) != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return "", fmt.Errorf("no non-empty date values to classify")
	}

	for _, format := range formats {
		successes := 0
		for _, p := range partials {
			raw := strings.TrimSpace(p.DateRaw)
			if raw == "" {
				continue
			}
			if _, err := time.Parse(format, raw); err == nil {
				successes++
			}
		}
		if float64(successes)/float64(nonEmpty) >= dateColumnClassificationThreshold {
			return format, nil
		}
	}
	return "", fmt.Errorf("no format reached %.0f%% success across %d values", dateColumnClassificationThreshold*100, nonEmpty)
}

// parseDate tries the classified format first, then falls back to the
// full configured list (a row may still parse even if its value
// didn't count toward the column's classifying format).
func parseDate(raw, classified string, formats []string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}
	if t, err := time.Parse(classified, raw); err == nil {
		return truncateToMidnightUTC(t), nil
	}
	for _, format := range formats {
		if format == classified {
			continue
		}
		if t, err := time.Parse(format, raw); err == nil {
			return truncateToMidnightUTC(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("value %q matches no configured date format", raw)
}

func truncateToMidnightUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var (
	currencySymbols    = regexp.MustCompile(`[$£€¥]`)
	thousandsSeparator = regexp.MustCompile(`,`)
)

// parseAmount strips currency symbols, thousands separators and
// whitespace, interprets parentheses as negation, and rounds
// half-away-from-zero to precision fractional digits.
func parseAmount(raw string, precision int32) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount value")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = currencySymbols.ReplaceAllString(s, "")
	s = thousandsSeparator.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("amount value %q has no digits after stripping", raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}

	return roundHalfAwayFromZero(d, precision), nil
}

func roundHalfAwayFromZero(d decimal.Decimal, precision int32) decimal.Decimal {
	if d.IsNegative() {
		return d.Neg().Round(precision).Neg()
	}
	return d.Round(precision)
}

var whitespaceCollapse = regexp.MustCompile(`\s+`)

// cleanDescription applies, in fixed order: lowercase, whitespace
// collapse, leading/trailing punctuation strip, abbreviation
// replacement.
func cleanDescription(raw string, abbreviations map[string]string) string {
	s := strings.ToLower(raw)
	s = whitespaceCollapse.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".,;:!?-_/\\\"'")

	if len(abbreviations) == 0 {
		return s
	}
	tokens := strings.Fields(s)
	for i, tok := range tokens {
		if replacement, ok := abbreviations[tok]; ok {
			tokens[i] = replacement
		}
	}
	return strings.Join(tokens, " ")
}

// noisePrefixes are stripped from references after normalisation.
var noisePrefixes = []string{"REF:", "REF#", "REF-", "#"}

// cleanReference uppercases, trims whitespace, and strips the first
// matching prefix from the fixed noisePrefixes list; the list is not
// read from configuration. An empty result after normalisation stays "".
func cleanReference(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
			break
		}
	}
	return s
}
