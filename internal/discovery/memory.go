package discovery

import (
	"strings"
	"sync"
)

const negativeMemoryCapacity = 20

// NegativeMemory is the bounded list of rejected opportunity titles the
// relevance filter is warned about. Once capacity is exceeded the oldest
// entries are evicted; nothing here is authoritative, the persisted
// rejected records are.
type NegativeMemory struct {
	mu     sync.Mutex
	max    int
	titles []string
}

func NewNegativeMemory() *NegativeMemory {
	return &NegativeMemory{max: negativeMemoryCapacity}
}

// Seed replaces the contents with titles loaded from persisted rejected
// records, most recent last.
func (m *NegativeMemory) Seed(titles []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles = nil
	for _, t := range titles {
		m.addLocked(t)
	}
}

// Add remembers a rejected title, evicting the oldest entry when full.
func (m *NegativeMemory) Add(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(title)
}

func (m *NegativeMemory) addLocked(title string) {
	title = normalizeSpace(title)
	if title == "" {
		return
	}
	lower := strings.ToLower(title)
	for _, t := range m.titles {
		if strings.ToLower(t) == lower {
			return
		}
	}
	m.titles = append(m.titles, title)
	if len(m.titles) > m.max {
		m.titles = m.titles[len(m.titles)-m.max:]
	}
}

// Snapshot returns a copy of the held titles for prompt building.
func (m *NegativeMemory) Snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.titles))
	copy(out, m.titles)
	return out
}

func (m *NegativeMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.titles)
}
