package crm

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Optimistic is a Store that applies lead updates to a local view before
// the backing store acknowledges them. A failed write rolls the view back
// to the value it replaced and returns the error.
//
// Reads of leads are served from the view once it is loaded. Task methods
// pass straight through to the backing store.
type Optimistic struct {
	Store

	logger *slog.Logger

	mu      sync.Mutex
	loaded  bool
	view    map[string]*Lead
	pending map[string]int
}

// NewOptimistic wraps backing. A nil logger means slog.Default().
func NewOptimistic(backing Store, logger *slog.Logger) *Optimistic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimistic{
		Store:   backing,
		logger:  logger,
		view:    make(map[string]*Lead),
		pending: make(map[string]int),
	}
}

func (o *Optimistic) load(ctx context.Context) error {
	if o.loaded {
		return nil
	}
	leads, err := o.Store.GetLeads(ctx)
	if err != nil {
		return err
	}
	for _, l := range leads {
		if _, ok := o.view[l.ID]; !ok {
			o.view[l.ID] = l
		}
	}
	o.loaded = true
	return nil
}

// GetLeads returns the local view, loading it on first use.
func (o *Optimistic) GetLeads(ctx context.Context) ([]*Lead, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.load(ctx); err != nil {
		return nil, err
	}
	leads := make([]*Lead, 0, len(o.view))
	for _, l := range o.view {
		leads = append(leads, l.Clone())
	}
	slices.SortFunc(leads, func(a, b *Lead) int {
		return strings.Compare(a.ID, b.ID)
	})
	return leads, nil
}

func (o *Optimistic) GetLead(ctx context.Context, id string) (*Lead, error) {
	o.mu.Lock()
	if l, ok := o.view[id]; ok {
		o.mu.Unlock()
		return l.Clone(), nil
	}
	o.mu.Unlock()
	return o.Store.GetLead(ctx, id)
}

// UpdateLead shows lead immediately, then waits for the backing store.
func (o *Optimistic) UpdateLead(ctx context.Context, lead *Lead) error {
	applied := lead.Clone()

	o.mu.Lock()
	prev, existed := o.view[lead.ID]
	o.view[lead.ID] = applied
	o.pending[lead.ID]++
	o.mu.Unlock()

	err := o.Store.UpdateLead(ctx, lead)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending[lead.ID]--; o.pending[lead.ID] == 0 {
		delete(o.pending, lead.ID)
	}
	if err == nil {
		return nil
	}
	// A newer update owns the slot now; leave it to resolve on its own.
	if o.view[lead.ID] != applied {
		return err
	}
	if existed {
		o.view[lead.ID] = prev
	} else {
		delete(o.view, lead.ID)
	}
	o.logger.Warn("crm: lead update rolled back", "lead", lead.ID, "error", err)
	return err
}

// Provisional reports whether an update to lead id is still in flight.
func (o *Optimistic) Provisional(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending[id] > 0
}
