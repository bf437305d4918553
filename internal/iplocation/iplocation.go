// Package iplocation maps IPv4 addresses to countries using a CSV database
// of "ipFrom","ipTo","countryCode","countryName" rows, where the bounds are
// addresses as decimal uint32 values.
package iplocation

import (
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
)

// ErrOverlappingRanges is returned when two database rows cover the same address.
var ErrOverlappingRanges = errors.New("overlapping ip ranges")

// Record is one address range and the country it belongs to.
type Record struct {
	IPFrom      uint32
	IPTo        uint32
	CountryCode string // lowercase ISO 3166 alpha-2
	CountryName string
}

// Store is an immutable, sorted set of address ranges.
type Store struct {
	records []Record
}

// Load reads the database at path.
func Load(path string) (*Store, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open ip location database: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a database. Malformed rows are skipped.
func Parse(r io.Reader) (*Store, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	var records []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, fmt.Errorf("failed to read ip location database: %w", err)
		}
		if len(row) != 4 {
			continue
		}

		from, err := strconv.ParseUint(strings.TrimSpace(row[0]), 10, 32)
		if err != nil {
			continue
		}
		to, err := strconv.ParseUint(strings.TrimSpace(row[1]), 10, 32)
		if err != nil {
			continue
		}

		records = append(records, Record{
			IPFrom:      uint32(from),
			IPTo:        uint32(to),
			CountryCode: strings.ToLower(strings.TrimSpace(row[2])),
			CountryName: strings.TrimRight(row[3], "\r\n"),
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].IPFrom < records[j].IPFrom })

	for i := 0; i+1 < len(records); i++ {
		if records[i].IPTo >= records[i+1].IPFrom {
			return nil, fmt.Errorf("%w: %d-%d and %d-%d", ErrOverlappingRanges,
				records[i].IPFrom, records[i].IPTo, records[i+1].IPFrom, records[i+1].IPTo)
		}
	}

	return &Store{records: records}, nil
}

// Len returns the number of ranges.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Lookup returns the range containing ip. Ranges are inclusive. A nil store
// finds nothing.
func (s *Store) Lookup(ip string) (*Record, bool) {
	if s == nil {
		return nil, false
	}

	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return nil, false
	}
	addr := binary.BigEndian.Uint32(parsed)

	i := sort.Search(len(s.records), func(i int) bool { return addr <= s.records[i].IPTo })
	if i == len(s.records) || addr < s.records[i].IPFrom {
		return nil, false
	}

	rec := s.records[i]
	return &rec, true
}

// Country returns the lowercase country code for ip, or "" if unknown.
func (s *Store) Country(ip string) string {
	if rec, ok := s.Lookup(ip); ok {
		return rec.CountryCode
	}
	return ""
}

// Resolver serves lookups from a Store that can be replaced at runtime.
// The zero value resolves nothing until Reload succeeds.
type Resolver struct {
	path    string
	current atomic.Pointer[Store]
}

// NewResolver loads the database at path.
func NewResolver(path string) (*Resolver, error) {
	r := &Resolver{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the database file. On error the previous data stays in use.
func (r *Resolver) Reload() error {
	s, err := Load(r.path)
	if err != nil {
		return err
	}
	r.current.Store(s)
	return nil
}

// Len returns the number of ranges currently loaded.
func (r *Resolver) Len() int {
	return r.current.Load().Len()
}

// Country returns the lowercase country code for ip, or "" if unknown.
func (r *Resolver) Country(ip string) string {
	return r.current.Load().Country(ip)
}
