package comparison

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const (
	// PriceUnparsed is reported as the price source when nothing parsed
	PriceUnparsed = "unparsed"

	dollarFloatCeiling = 100000
	centsIntFloor      = 1_000_000
	centsMinDigits     = 5
)

var (
	currencyWords = regexp.MustCompile(`(?i)(usd|dollars|us\$)`)
	firstNumber   = regexp.MustCompile(`-?\d[\d,.]*`)
	hundred       = decimal.NewFromInt(100)
)

// PriceStringKeys lists the display-price fields consulted after "price"
var PriceStringKeys = []string{"price_display", "price_formatted", "price_text", "price_string", "price_str"}

// PriceSource is one candidate price value with the payload key it came from
type PriceSource struct {
	Key   string
	Value interface{}
}

// StripJSONFences removes a surrounding markdown code fence and language hint
func StripJSONFences(content string) string {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = text[3:]
		if len(text) >= 4 && strings.EqualFold(text[:4], "json") {
			text = text[4:]
		}
		text = strings.TrimLeft(text, " \t\r\n")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
	}
	return strings.TrimSpace(text)
}

// ParsePriceString converts text like "$1,999.00" or "USD 45" to cents
func ParsePriceString(raw string) (int64, bool) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return 0, false
	}
	cleaned = currencyWords.ReplaceAllString(cleaned, "")

	match := firstNumber.FindString(cleaned)
	if match == "" {
		return 0, false
	}
	dollars, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil || !dollars.IsPositive() {
		return 0, false
	}
	return dollars.Mul(hundred).Round(0).IntPart(), true
}

// NormalizeNumericPrice applies the dollars-or-cents heuristic to a JSON number.
// Floats under 100000 are dollars. Integers with five or more digits are
// already cents, shorter ones are dollars.
func NormalizeNumericPrice(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		s := v.String()
		if strings.ContainsAny(s, ".eE") {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return 0, false
			}
			return normalizeFloatPrice(d)
		}
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return normalizeIntPrice(n)
	case float64:
		return normalizeFloatPrice(decimal.NewFromFloat(v))
	case int:
		return normalizeIntPrice(int64(v))
	case int64:
		return normalizeIntPrice(v)
	default:
		return 0, false
	}
}

func normalizeFloatPrice(d decimal.Decimal) (int64, bool) {
	if !d.IsPositive() {
		return 0, false
	}
	if d.LessThan(decimal.NewFromInt(dollarFloatCeiling)) {
		return d.Mul(hundred).Round(0).IntPart(), true
	}
	return d.Round(0).IntPart(), true
}

func normalizeIntPrice(n int64) (int64, bool) {
	if n <= 0 {
		return 0, false
	}
	if n >= centsIntFloor || len(fmt.Sprint(n)) >= centsMinDigits {
		return n, true
	}
	return n * 100, true
}

// ExtractPriceCents tries every string source first, then every numeric one.
// It returns 0 and PriceUnparsed when nothing yields a positive amount.
func ExtractPriceCents(sources []PriceSource) (int64, string) {
	for _, src := range sources {
		if s, ok := src.Value.(string); ok {
			if cents, ok := ParsePriceString(s); ok {
				return cents, src.Key
			}
		}
	}
	for _, src := range sources {
		if cents, ok := NormalizeNumericPrice(src.Value); ok {
			return cents, src.Key
		}
	}
	return 0, PriceUnparsed
}

// FormatPriceCents renders cents as "$1,999.00"; non-positive values render empty
func FormatPriceCents(cents int64) string {
	if cents <= 0 {
		return ""
	}
	dollars := decimal.New(cents, -2).InexactFloat64()
	return "$" + humanize.FormatFloat("#,###.##", dollars)
}

// ProxyImageURL routes an external image through the image proxy. URLs on
// ownDomain, and strings without a host, are returned unchanged.
func ProxyImageURL(raw, ownDomain, proxyBase string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if ownDomain != "" && strings.HasSuffix(u.Host, ownDomain) {
		return raw
	}

	target := u.Host + u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	target = quoteProxyTarget(target)

	if !strings.HasSuffix(proxyBase, "/") {
		proxyBase += "/"
	}
	if u.Scheme == "https" {
		return proxyBase + "?url=ssl:" + target
	}
	return proxyBase + "?url=" + target
}

// quoteProxyTarget percent-encodes everything except alphanumerics and /?=&:%+-_.~
func quoteProxyTarget(s string) string {
	const safe = "/?=&:%+-_.~"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', strings.IndexByte(safe, c) >= 0:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "%%%02X", c)
		}
	}
	return sb.String()
}

// PlaceholderImageURL returns the deterministic placeholder for a product
func PlaceholderImageURL(base, productID string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + productID + ".png"
}
