package geo

import (
	"fmt"
	"net/netip"

	"github.com/atikulmunna/loglens/internal/model"
)

// Range maps leading octets in [Low, High) to a country code.
type Range struct {
	Low     int
	High    int
	Country string
}

// DefaultRanges is the synthetic table used when no database is installed.
var DefaultRanges = []Range{
	{Low: 0, High: 50, Country: "US"},
	{Low: 50, High: 100, Country: "UK"},
	{Low: 100, High: 150, Country: "IN"},
	{Low: 150, High: 200, Country: "CA"},
}

// ValidateRanges reports an error unless ranges are non-empty intervals in
// ascending order with no overlap.
func ValidateRanges(ranges []Range) error {
	for i, r := range ranges {
		if r.Low >= r.High {
			return fmt.Errorf("range %d: empty interval [%d,%d)", i, r.Low, r.High)
		}
		if r.Country == "" {
			return fmt.Errorf("range %d: missing country", i)
		}
		if i > 0 && r.Low < ranges[i-1].High {
			return fmt.Errorf("range %d: [%d,%d) overlaps or precedes [%d,%d)",
				i, r.Low, r.High, ranges[i-1].Low, ranges[i-1].High)
		}
	}
	return nil
}

// fallbackCountry maps the leading octet of a dotted-quad IPv4 address
// through ranges. First match wins.
func fallbackCountry(addr string, ranges []Range) string {
	ip, err := netip.ParseAddr(addr)
	if err != nil || !ip.Is4() {
		return model.UnknownCountry
	}
	octet := int(ip.As4()[0])
	for _, r := range ranges {
		if octet >= r.Low && octet < r.High {
			return r.Country
		}
	}
	return model.UnknownCountry
}
