package main

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// WeightedType is one entry of the query type table. Weight is a share of
// the table's scale.
type WeightedType struct {
	Type   string `yaml:"type" json:"type" toml:"type"`
	Weight uint64 `yaml:"weight" json:"weight" toml:"weight"`
}

// DefaultTypeWeights mirrors the query mix seen on a busy recursive
// resolver, in thousandths of a percent.
var DefaultTypeWeights = []WeightedType{
	{Type: "A", Weight: 77662},
	{Type: "SOA", Weight: 803},
	{Type: "MX", Weight: 5073},
	{Type: "TXT", Weight: 2604},
	{Type: "AAAA", Weight: 13858},
}

// DefaultTypeScale is the scale DefaultTypeWeights are expressed in.
const DefaultTypeScale = 100000

// Rand is the random source used for type selection, fuzzing and name
// generation. *rand.Rand from golang.org/x/exp/rand satisfies it.
type Rand interface {
	Uint64n(n uint64) uint64
	Intn(n int) int
	Float64() float64
}

type typeEntry struct {
	qtype  uint16
	weight uint64
}

// TypeSelector picks query types according to a fixed weight table.
type TypeSelector struct {
	entries []typeEntry
	scale   uint64
	rng     Rand
}

// NewTypeSelector builds a selector from table. A zero scale means the sum
// of the weights. Weights summing to more than scale are rejected; weights
// summing to less leave a remainder that is spread uniformly over all types.
func NewTypeSelector(table []WeightedType, scale uint64, rng Rand) (*TypeSelector, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("type table is empty")
	}

	entries := make([]typeEntry, 0, len(table))
	var total uint64
	for _, wt := range table {
		qtype, ok := dns.StringToType[strings.ToUpper(wt.Type)]
		if !ok {
			return nil, fmt.Errorf("unknown query type %q", wt.Type)
		}
		entries = append(entries, typeEntry{qtype: qtype, weight: wt.Weight})
		total += wt.Weight
	}

	if scale == 0 {
		scale = total
	}
	if scale == 0 {
		return nil, fmt.Errorf("type weights are all zero")
	}
	if total > scale {
		return nil, fmt.Errorf("type weights sum to %d, above scale %d", total, scale)
	}

	return &TypeSelector{entries: entries, scale: scale, rng: rng}, nil
}

// Next returns one query type.
func (ts *TypeSelector) Next() uint16 {
	draw := ts.rng.Uint64n(ts.scale)
	budget := ts.scale
	for _, e := range ts.entries {
		budget -= e.weight
		if draw >= budget {
			return e.qtype
		}
	}
	return ts.entries[ts.rng.Intn(len(ts.entries))].qtype
}

// Types returns the configured types in table order.
func (ts *TypeSelector) Types() []uint16 {
	types := make([]uint16, len(ts.entries))
	for i, e := range ts.entries {
		types[i] = e.qtype
	}
	return types
}

// String lists the table as "A:77.66% SOA:0.80% ...".
func (ts *TypeSelector) String() string {
	parts := make([]string, len(ts.entries))
	for i, e := range ts.entries {
		parts[i] = fmt.Sprintf("%s:%.2f%%", dns.TypeToString[e.qtype], float64(e.weight)*100/float64(ts.scale))
	}
	return strings.Join(parts, " ")
}
