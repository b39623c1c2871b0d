package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CommodityDef is one row of the commodity asset: a name and its base price.
type CommodityDef struct {
	Name  string
	Price float64
}

// CommodityTable holds the commodity catalogue in file order.
type CommodityTable struct {
	defs   []CommodityDef
	byName map[string]int
}

func (t *CommodityTable) All() []CommodityDef { return t.defs }

// Count returns the number of commodities loaded.
func (t *CommodityTable) Count() int { return len(t.defs) }

// Get returns a commodity by name.
func (t *CommodityTable) Get(name string) (CommodityDef, bool) {
	i, ok := t.byName[name]
	if !ok {
		return CommodityDef{}, false
	}
	return t.defs[i], true
}

// LoadCommodities reads the commodity CSV (header "name,price").
func LoadCommodities(path string) (*CommodityTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read commodities: %w", err)
	}
	defer f.Close()
	t, err := ParseCommodities(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return t, nil
}

func ParseCommodities(r io.Reader) (*CommodityTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty commodity table")
		}
		return nil, err
	}
	if !strings.EqualFold(header[0], "name") || !strings.EqualFold(header[1], "price") {
		return nil, fmt.Errorf("unexpected header %q", header)
	}

	t := &CommodityTable{byName: make(map[string]int)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		name := strings.TrimSpace(rec[0])
		if name == "" {
			return nil, fmt.Errorf("line %d: empty name", line)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: price %q: %w", line, rec[1], err)
		}
		if price <= 0 {
			return nil, fmt.Errorf("line %d: price must be positive, got %v", line, price)
		}
		if _, dup := t.byName[name]; dup {
			return nil, fmt.Errorf("line %d: duplicate commodity %q", line, name)
		}
		t.byName[name] = len(t.defs)
		t.defs = append(t.defs, CommodityDef{Name: name, Price: price})
	}
	if len(t.defs) == 0 {
		return nil, errors.New("empty commodity table")
	}
	return t, nil
}
