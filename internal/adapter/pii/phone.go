package pii

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// PhoneNormalizer converts free-form phone input into the digits-only
// international form the vendor matches on (country code + subscriber number,
// no plus sign).
type PhoneNormalizer struct {
	region string
	logger *slog.Logger
}

// NewPhoneNormalizer creates a PhoneNormalizer that parses national numbers
// against the given default region (ISO 3166-1 alpha-2, e.g. "SE").
func NewPhoneNormalizer(region string, logger *slog.Logger) *PhoneNormalizer {
	return &PhoneNormalizer{
		region: strings.ToUpper(region),
		logger: logger,
	}
}

// Normalize returns the digits-only E.164 form of the input, or "" for empty
// input. Unparseable input falls back to stripping non-digit runes, with a
// leading national zero replaced by the default region's calling code.
func (n *PhoneNormalizer) Normalize(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	parsed, err := phonenumbers.Parse(phone, n.region)
	if err == nil && phonenumbers.IsPossibleNumber(parsed) {
		return strings.TrimPrefix(phonenumbers.Format(parsed, phonenumbers.E164), "+")
	}

	n.logger.Warn("phone number did not parse, falling back to digit stripping",
		"region", n.region,
	)
	return n.stripDigits(phone)
}

func (n *PhoneNormalizer) stripDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		if code := phonenumbers.GetCountryCodeForRegion(n.region); code != 0 {
			return strconv.Itoa(code) + strings.TrimPrefix(digits, "0")
		}
	}
	return digits
}
