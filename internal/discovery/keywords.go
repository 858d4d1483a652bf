package discovery

import (
	_ "embed"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/bank.yaml
var bankYAML []byte

// KeywordBank holds the curated search phrase pools. The urgent pool carries
// {month} and {year} placeholders so daily scans chase closing deadlines; the
// evergreen pool covers the standing grant, residency, festival and lab
// vocabulary. Learned phrases from manual ingestion land in the evergreen
// pool for later runs.
type KeywordBank struct {
	mu        sync.Mutex
	urgent    []string
	evergreen []string
	seeds     []string
	rng       *rand.Rand
	now       func() time.Time
}

type bankFile struct {
	Urgent    []string `yaml:"urgent"`
	Evergreen []string `yaml:"evergreen"`
	Seeds     []string `yaml:"seeds"`
}

// LoadKeywordBank parses the embedded phrase bank.
func LoadKeywordBank() (*KeywordBank, error) {
	var f bankFile
	if err := yaml.Unmarshal(bankYAML, &f); err != nil {
		return nil, fmt.Errorf("parsing keyword bank: %w", err)
	}
	if len(f.Urgent) == 0 || len(f.Evergreen) == 0 {
		return nil, fmt.Errorf("keyword bank is missing phrase pools")
	}
	return &KeywordBank{
		urgent:    f.Urgent,
		evergreen: f.Evergreen,
		seeds:     f.Seeds,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}, nil
}

// Urgent returns up to count deadline-chasing phrases with the date
// placeholders filled in for the current month.
func (b *KeywordBank) Urgent(count int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	pool := b.shuffledLocked(b.urgent)
	return b.expandLocked(capSlice(pool, count))
}

// Mixed returns up to count phrases drawn from both pools, urgent first so a
// small batch still carries deadline pressure.
func (b *KeywordBank) Mixed(count int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	pool := append(b.shuffledLocked(b.urgent), b.shuffledLocked(b.evergreen)...)
	return b.expandLocked(capSlice(pool, count))
}

// Seeds returns the curated aggregator pages for crawl expansion.
func (b *KeywordBank) Seeds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.seeds))
	copy(out, b.seeds)
	return out
}

// Learn adds new search phrases to the evergreen pool, returning how many
// were actually new. Phrases are folded to lower case so variants of the
// same title do not pile up.
func (b *KeywordBank) Learn(phrases ...string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	added := 0
	for _, p := range phrases {
		p = strings.ToLower(normalizeSpace(p))
		if p == "" || len(p) < 4 {
			continue
		}
		before := len(b.evergreen)
		b.evergreen = appendUnique(b.evergreen, p)
		if len(b.evergreen) > before {
			added++
		}
	}
	return added
}

func (b *KeywordBank) shuffledLocked(pool []string) []string {
	out := make([]string, len(pool))
	copy(out, pool)
	b.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func (b *KeywordBank) expandLocked(phrases []string) []string {
	now := b.now()
	month := now.Format("January")
	year := now.Format("2006")
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ReplaceAll(p, "{month}", month)
		p = strings.ReplaceAll(p, "{year}", year)
		out = append(out, p)
	}
	return out
}

func capSlice(s []string, n int) []string {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
