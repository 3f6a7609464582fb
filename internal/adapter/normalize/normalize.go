package normalize

import (
	"log/slog"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

// browserIDPattern matches the first-party _fbp cookie:
// fb.<subdomain index>.<creation time>.<random id>.
var browserIDPattern = regexp.MustCompile(`^fb\.1\.\d+\.[A-Za-z0-9]+$`)

// IP returns ip unchanged iff it parses as an IPv4 or IPv6 literal, else "".
// A malformed address is treated as absent, not as an error; downstream never
// sends a malformed IP.
func IP(ip string) string {
	if _, err := netip.ParseAddr(ip); err != nil {
		return ""
	}
	return ip
}

// BrowserID returns the _fbp cookie value unchanged iff it conforms to the
// expected format, else "".
func BrowserID(cookie string) string {
	if !browserIDPattern.MatchString(cookie) {
		return ""
	}
	return cookie
}

// ClickID returns the _fbc cookie value unless it is empty or the literal
// sentinel "null" leaked through from a client that serialized a missing
// cookie.
func ClickID(cookie string) string {
	if cookie == "" || strings.EqualFold(cookie, "null") {
		return ""
	}
	return cookie
}

// CustomData derives the forwarded custom-data block:
//   - keys whose value is nil or the literal string "null" are dropped;
//   - the "value" key is coerced to float64, substituting 0.0 when missing or
//     unparseable (a warning is logged, never an error);
//   - the "currency" key gets defaultCurrency when absent, empty or "null";
//   - everything else passes through unchanged.
//
// The input map is not modified. A nil input yields nil: events without
// custom data are forwarded without a custom-data block.
func CustomData(in map[string]any, defaultCurrency string, logger *slog.Logger) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.EqualFold(s, "null") {
			continue
		}
		out[k] = v
	}

	out["value"] = coerceValue(out["value"], logger)

	if cur, ok := out["currency"].(string); !ok || strings.TrimSpace(cur) == "" {
		out["currency"] = defaultCurrency
	}

	return out
}

func coerceValue(v any, logger *slog.Logger) float64 {
	switch val := v.(type) {
	case nil:
		logger.Warn("custom data has no value field, substituting 0.0")
		return 0.0
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			logger.Warn("custom data value is not numeric, substituting 0.0", "value", val)
			return 0.0
		}
		return f
	default:
		logger.Warn("custom data value has unexpected type, substituting 0.0")
		return 0.0
	}
}
