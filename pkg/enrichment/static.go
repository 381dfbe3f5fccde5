package enrichment

import (
	"context"
	"strings"
	"sync"
)

// StaticProvider serves Company records from an in-memory map, for local
// runs and tests where no real enrichment vendor is wired up.
type StaticProvider struct {
	mu        sync.RWMutex
	companies map[string]Company
}

// NewStaticProvider builds a StaticProvider seeded from the given
// domain-keyed companies.
func NewStaticProvider(seed map[string]Company) *StaticProvider {
	p := &StaticProvider{companies: make(map[string]Company, len(seed))}
	for domain, c := range seed {
		p.companies[strings.ToLower(domain)] = c
	}
	return p
}

func (p *StaticProvider) GetCompanyByDomain(ctx context.Context, domain string) (*Company, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.companies[strings.ToLower(domain)]
	if !ok {
		return nil, nil
	}
	out := c
	return &out, nil
}
