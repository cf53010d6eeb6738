// Package ipgeo maps client addresses to countries for the access log.
package ipgeo

import (
	"net/netip"

	"github.com/oschwald/maxminddb-golang/v2"
)

// Checker looks up countries in a MaxMind country or city database.
//
// A nil *Checker still classifies non-public addresses.
type Checker struct {
	db *maxminddb.Reader
}

// Open opens the MMDB file at path.
func Open(path string) (*Checker, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Checker{db: db}, nil
}

// Close releases the database.
func (c *Checker) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// sharedSpace is the carrier-grade NAT range (RFC 6598), also used by
// overlay VPNs.
var sharedSpace = netip.MustParsePrefix("100.64.0.0/10")

// Country returns the ISO 3166-1 alpha-2 code of addr.
//
// Addresses that can't be on the public internet are reported as "local",
// or "cgnat" for the shared address space. Unknown addresses return "".
func (c *Checker) Country(addr netip.Addr) string {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid():
		return ""
	case addr.IsLoopback(), addr.IsPrivate(), addr.IsUnspecified(), addr.IsLinkLocalUnicast():
		return "local"
	case sharedSpace.Contains(addr):
		return "cgnat"
	case c == nil:
		return ""
	}
	var rec struct {
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
	}
	if err := c.db.Lookup(addr).Decode(&rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}

// CountryCode is Country for an address in text form, as found in
// X-Forwarded-For.
func (c *Checker) CountryCode(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	return c.Country(addr)
}
