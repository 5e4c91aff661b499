package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"rtb-client/internal/cache"
	"rtb-client/internal/sandbox/storage"
)

// Source provides the active inventory.
type Source interface {
	LoadActiveCreatives(ctx context.Context) ([]storage.CreativeRow, error)
}

// Indexes for fast candidate narrowing
type indexes struct {
	Creatives []CreativeRecord // backing array; indexes reference this

	BySlot   map[string][]int
	Wildcard []int // creatives without a slot serve every slot
}

type snapshot struct{ idx indexes }

// DeliveryEngine exposes read-only, lock-free match operations.
type DeliveryEngine struct{ snap cache.Snapshot[snapshot] }

func NewEngine() *DeliveryEngine { return &DeliveryEngine{} }

// BuildSnapshot loads the active inventory and swaps in fresh indexes.
func (e *DeliveryEngine) BuildSnapshot(ctx context.Context, src Source) error {
	rows, err := src.LoadActiveCreatives(ctx)
	if err != nil {
		return fmt.Errorf("load creatives: %w", err)
	}
	cs := lo.Map(rows, func(r storage.CreativeRow, _ int) CreativeRecord {
		return CreativeRecord{
			Creative: Creative{
				ID:       strings.TrimSpace(r.ID),
				SlotID:   strings.TrimSpace(r.SlotID),
				Type:     r.SlotType,
				Image:    r.ImageURL,
				CTA:      r.CTA,
				TrackURL: r.TrackURL,
			},
			Priority: r.Priority,
			Status:   strings.ToUpper(strings.TrimSpace(r.Status)),
		}
	})

	e.snap.Store(snapshot{idx: buildIndexes(cs)})
	log.Info().Int("creatives", len(cs)).Msg("inventory snapshot built")
	return nil
}

func buildIndexes(cs []CreativeRecord) indexes {
	ix := indexes{
		Creatives: cs,
		BySlot:    map[string][]int{},
		Wildcard:  []int{},
	}
	for i, c := range cs {
		if c.SlotID == "" {
			ix.Wildcard = append(ix.Wildcard, i)
			continue
		}
		ix.BySlot[c.SlotID] = append(ix.BySlot[c.SlotID], i)
	}
	return ix
}

// Size is the number of creatives in the current snapshot.
func (e *DeliveryEngine) Size() int {
	s, _ := e.snap.Load()
	return len(s.idx.Creatives)
}

// Match returns up to req.Quantity creatives for the slot, highest priority first,
// ties broken by id.
func (e *DeliveryEngine) Match(_ context.Context, req MatchRequest) []Creative {
	s, ok := e.snap.Load()
	if !ok || req.Quantity <= 0 {
		return nil
	}
	ix := s.idx
	slot := strings.TrimSpace(req.SlotID)

	cand := append(append([]int{}, ix.BySlot[slot]...), ix.Wildcard...)
	recs := lo.FilterMap(cand, func(i int, _ int) (CreativeRecord, bool) {
		c := ix.Creatives[i]
		if c.Status != "ACTIVE" {
			return c, false
		}
		return c, req.Type == 0 || c.Type == 0 || c.Type == req.Type
	})

	slices.SortFunc(recs, func(a, b CreativeRecord) int {
		if a.Priority != b.Priority {
			return b.Priority - a.Priority
		}
		return strings.Compare(a.ID, b.ID)
	})
	if len(recs) > req.Quantity {
		recs = recs[:req.Quantity]
	}
	return lo.Map(recs, func(c CreativeRecord, _ int) Creative { return c.Creative })
}
