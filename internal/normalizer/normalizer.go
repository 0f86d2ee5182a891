// Package normalizer turns raw scraped price text into canonical integer
// minor-unit prices.
package normalizer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/pkg/currency"
)

// ErrNormalization is returned when a price cannot be read with confidence.
// Callers record the observation as a parse error instead of guessing.
var ErrNormalization = errors.New("price normalization failed")

var (
	isoCodeRe = regexp.MustCompile(`\b[A-Z]{3}\b`)
	numberRe  = regexp.MustCompile(`\d[\d.,'\x{00A0} ]*`)
)

// Normalize converts a raw extraction to a canonical price. home is used when
// the text carries no explicit currency. The function is pure: the same input
// always yields the same output.
func Normalize(raw model.RawPrice, home currency.Currency) (model.CanonicalPrice, error) {
	curr, err := resolveCurrency(raw, home)
	if err != nil {
		return model.CanonicalPrice{}, err
	}

	price, err := parseAmount(raw.PriceText, curr)
	if err != nil {
		return model.CanonicalPrice{}, err
	}
	if price == 0 {
		return model.CanonicalPrice{}, fmt.Errorf("%w: zero price %q", ErrNormalization, raw.PriceText)
	}

	out := model.CanonicalPrice{
		Price:    price,
		Currency: string(curr),
		OnSale:   raw.SaleBadge,
	}

	// An unreadable "was" price only loses the sale signal, the current price
	// is still trustworthy.
	if strings.TrimSpace(raw.OriginalPriceText) != "" {
		if orig, err := parseAmount(raw.OriginalPriceText, curr); err == nil && orig > price {
			out.OriginalPrice = &orig
			out.OnSale = true
		}
	}

	return out, nil
}

// resolveCurrency picks the currency: an explicit ISO code wins, then an
// unambiguous symbol, then the retailer's home currency.
func resolveCurrency(raw model.RawPrice, home currency.Currency) (currency.Currency, error) {
	var found []currency.Currency

	if strings.TrimSpace(raw.CurrencyText) != "" {
		c, err := currency.Parse(raw.CurrencyText)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNormalization, err)
		}
		found = append(found, c)
	}

	for _, code := range isoCodeRe.FindAllString(raw.PriceText, -1) {
		if currency.IsValid(code) {
			found = append(found, currency.Currency(code))
		}
	}

	if len(found) == 0 {
		if c, ok := currency.DetectSymbol(raw.PriceText); ok {
			return c, nil
		}
		if home == "" {
			home = currency.DefaultCurrency
		}
		return home, nil
	}

	for _, c := range found[1:] {
		if c != found[0] {
			return "", fmt.Errorf("%w: conflicting currencies %s and %s", ErrNormalization, found[0], c)
		}
	}
	return found[0], nil
}

// parseAmount reads exactly one number from text and converts it to minor
// units of curr.
func parseAmount(text string, curr currency.Currency) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("%w: empty price", ErrNormalization)
	}

	matches := numberRe.FindAllString(text, -1)
	if len(matches) != 1 {
		return 0, fmt.Errorf("%w: expected one amount in %q, found %d", ErrNormalization, text, len(matches))
	}

	info, _ := currency.GetInfo(curr)
	plain, err := canonicalNumber(matches[0], info.DecimalSep)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrNormalization, text, err)
	}

	amount, err := decimal.NewFromString(plain)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrNormalization, text, err)
	}

	minor, err := currency.ToMinor(amount, curr)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrNormalization, text, err)
	}
	return minor, nil
}

// canonicalNumber rewrites a localized number ("1,299.00", "1.299,00",
// "129,95", "1 299") as a plain decimal string. currencyDecimalSep is the
// currency's decimal mark, used to reject ambiguous input.
func canonicalNumber(s, currencyDecimalSep string) (string, error) {
	s = strings.TrimRight(s, ".,' \u00a0")
	s = strings.NewReplacer(" ", "", "\u00a0", "", "'", "").Replace(s)

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	var decimalSep, thousandsSep string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			decimalSep, thousandsSep = ".", ","
		} else {
			decimalSep, thousandsSep = ",", "."
		}
	case lastComma >= 0 || lastDot >= 0:
		sep := ","
		if lastDot >= 0 {
			sep = "."
		}
		var err error
		decimalSep, thousandsSep, err = pickSeparator(s, sep, currencyDecimalSep)
		if err != nil {
			return "", err
		}
	default:
		return s, nil
	}

	intPart, fracPart := s, ""
	if decimalSep != "" {
		idx := strings.LastIndex(s, decimalSep)
		intPart, fracPart = s[:idx], s[idx+1:]
	}

	if thousandsSep != "" && strings.Contains(intPart, thousandsSep) {
		groups := strings.Split(intPart, thousandsSep)
		if len(groups[0]) == 0 || len(groups[0]) > 3 {
			return "", errors.New("malformed digit grouping")
		}
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return "", errors.New("malformed digit grouping")
			}
		}
		intPart = strings.Join(groups, "")
	}
	if intPart == "" || strings.ContainsAny(intPart, ".,") || strings.ContainsAny(fracPart, ".,") {
		return "", errors.New("mixed separators")
	}

	if fracPart == "" {
		return intPart, nil
	}
	return intPart + "." + fracPart, nil
}

// pickSeparator decides whether a lone separator character is the decimal or
// the thousands separator. A single separator followed by exactly three digits
// is only accepted as grouping when the currency does not use it as its
// decimal mark; "1.299" in CAD is refused rather than guessed.
func pickSeparator(s, sep, currencyDecimalSep string) (decimalSep, thousandsSep string, err error) {
	if strings.Count(s, sep) > 1 {
		return "", sep, nil
	}
	digitsAfter := len(s) - strings.LastIndex(s, sep) - 1
	if digitsAfter != 3 {
		return sep, "", nil
	}
	if sep == currencyDecimalSep {
		return "", "", fmt.Errorf("ambiguous separator in %q", s)
	}
	return "", sep, nil
}
