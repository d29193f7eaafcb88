package geo

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// DefaultDatabasePath is where the country database is looked up when no
// path is configured.
const DefaultDatabasePath = "data/GeoLite2-Country.mmdb"

// ErrNotFound is returned by a Database when an address has no country.
var ErrNotFound = errors.New("geo: address not found")

// Database maps an address to an ISO country code.
type Database interface {
	Country(addr string) (string, error)
	Close() error
}

// Opener acquires a Database. It is called at most once per Resolver.
type Opener func() (Database, error)

// mmdb is a Database backed by a MaxMind country database file.
type mmdb struct {
	r *geoip2.Reader
}

// OpenMMDB returns an Opener for the MaxMind database at path.
func OpenMMDB(path string) Opener {
	return func() (Database, error) {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("geo database %s: %w", path, err)
		}
		r, err := geoip2.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open geo database %s: %w", path, err)
		}
		return &mmdb{r: r}, nil
	}
}

func (m *mmdb) Country(addr string) (string, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return "", fmt.Errorf("malformed address %q", addr)
	}
	rec, err := m.r.Country(ip)
	if err != nil {
		return "", err
	}
	if rec.Country.IsoCode == "" {
		return "", ErrNotFound
	}
	return rec.Country.IsoCode, nil
}

func (m *mmdb) Close() error {
	return m.r.Close()
}
