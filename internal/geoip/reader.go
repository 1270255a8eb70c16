package geoip

import (
	"net"
	"net/netip"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// Provider resolves client addresses to ISO country codes.
// A nil Provider is valid and never resolves a country.
type Provider struct {
	db *geoip2.Reader
}

// Open opens the MMDB file at path.
func Open(path string) (*Provider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &Provider{db: db}, nil
}

// Close releases the database.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}
	return p.db.Close()
}

// CountryCode returns the ISO code (e.g. "DE") for a client address, which
// may carry a port. Private, loopback and unparsable addresses yield "".
func (p *Provider) CountryCode(clientIP string) string {
	if p == nil {
		return ""
	}

	addr, ok := publicAddr(clientIP)
	if !ok {
		return ""
	}

	record, err := p.db.Country(net.IP(addr.AsSlice()))
	if err != nil {
		return ""
	}

	return strings.ToUpper(record.Country.IsoCode)
}

func publicAddr(raw string) (netip.Addr, bool) {
	raw = strings.TrimSpace(raw)
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		raw = ap.Addr().String()
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, false
	}
	addr = addr.Unmap().WithZone("")

	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return netip.Addr{}, false
	}

	return addr, true
}
