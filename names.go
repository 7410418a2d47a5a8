package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/brianvoe/gofakeit/data"
	"golang.org/x/net/idna"
)

// NameSource supplies the name for each query.
type NameSource interface {
	Next() string
}

const (
	nameCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

	// defaultRepeatChance is the share of queries that reuse the previous
	// name, giving the target a realistic mix of cache hits.
	defaultRepeatChance = 0.13854
)

// randomNames produces short random labels under a fixed suffix.
type randomNames struct {
	rng    Rand
	suffix string
	repeat float64
	label  []byte
	last   string
}

func newRandomNames(rng Rand, suffix string, repeat float64) *randomNames {
	return &randomNames{rng: rng, suffix: strings.Trim(suffix, "."), repeat: repeat, label: make([]byte, 4)}
}

func (r *randomNames) Next() string {
	if r.last != "" && r.rng.Float64() < r.repeat {
		return r.last
	}
	for i := range r.label {
		r.label[i] = nameCharset[r.rng.Intn(len(nameCharset))]
	}
	r.last = string(r.label)
	if r.suffix != "" {
		r.last += "." + r.suffix
	}
	return r.last
}

// fakeNames builds plausible domain names from gofakeit's word lists, the
// way gofakeit.DomainName does, but drawing from the session's Rand.
type fakeNames struct {
	rng         Rand
	descriptors []string
	buzzwords   []string
	suffixes    []string
}

// labelCleaner drops the spaces and slashes some buzzwords carry.
var labelCleaner = strings.NewReplacer(" ", "", "/", "")

func newFakeNames(rng Rand) *fakeNames {
	return &fakeNames{
		rng:         rng,
		descriptors: data.Job["descriptor"],
		buzzwords:   data.Company["bs"],
		suffixes:    data.Internet["domain_suffix"],
	}
}

func (f *fakeNames) pick(words []string) string {
	return words[f.rng.Intn(len(words))]
}

func (f *fakeNames) Next() string {
	label := strings.ToLower(f.pick(f.descriptors) + f.pick(f.buzzwords))
	label = labelCleaner.Replace(label)
	return label + "." + f.pick(f.suffixes)
}

// listNames picks uniformly from a fixed list.
type listNames struct {
	rng   Rand
	names []string
}

func (l *listNames) Next() string {
	return l.names[l.rng.Intn(len(l.names))]
}

// fixedName always returns the same name.
type fixedName string

func (f fixedName) Next() string { return string(f) }

// readNamesFromFile reads names one per line, skipping blank lines and
// comments, and converts internationalised names to their ASCII form.
func readNamesFromFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()

	var names []string
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Only the first field counts, so zone-file style lines work.
		name := strings.Fields(line)[0]
		ascii, err := idna.Lookup.ToASCII(name)
		if err != nil {
			appLogger.Warn("%s:%d: keeping %q as is: %v", filename, lineNo, name, err)
			ascii = name
		}
		names = append(names, ascii)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no names found in %s", filename)
	}
	return names, nil
}

// newNameSource builds the source selected by cfg.
func newNameSource(cfg *Config, rng Rand) (NameSource, error) {
	switch cfg.NameMode {
	case "", NameModeRandom:
		return newRandomNames(rng, cfg.NameSuffix, cfg.RepeatChance), nil
	case NameModeFake:
		return newFakeNames(rng), nil
	case NameModeFile:
		names, err := readNamesFromFile(cfg.NamesFile)
		if err != nil {
			return nil, err
		}
		appLogger.Info("Loaded %d names from %s", len(names), cfg.NamesFile)
		return &listNames{rng: rng, names: names}, nil
	case NameModeFixed:
		return fixedName(cfg.Name), nil
	default:
		return nil, fmt.Errorf("unknown name mode %q", cfg.NameMode)
	}
}
