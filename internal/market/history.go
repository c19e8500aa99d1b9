package market

import "fmt"

// DefaultHistorySize is the number of samples kept per asset.
const DefaultHistorySize = 300

// ring is a fixed capacity FIFO of samples. The oldest entry is overwritten once full.
type ring struct {
	buf   []Sample
	head  int // oldest
	count int
}

func (r *ring) push(s Sample) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring) at(i int) Sample {
	return r.buf[(r.head+i)%len(r.buf)]
}

// History keeps the most recent samples of every catalog asset.
//
// History is not safe for concurrent use. The feed owns it and guards access.
type History struct {
	catalog  *Catalog
	capacity int
	rings    map[Asset]*ring
}

// NewHistory allocates an empty history for every asset in the catalog.
func NewHistory(catalog *Catalog, capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistorySize
	}
	h := &History{
		catalog:  catalog,
		capacity: capacity,
		rings:    make(map[Asset]*ring, catalog.Len()),
	}
	for _, a := range catalog.Assets() {
		h.rings[a] = &ring{buf: make([]Sample, capacity)}
	}
	return h
}

// Capacity returns the per-asset cap.
func (h *History) Capacity() int { return h.capacity }

// Append adds s, evicting the oldest sample when the cap is reached.
func (h *History) Append(s Sample) error {
	r, ok := h.rings[s.Asset]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAsset, s.Asset)
	}
	r.push(s)
	return nil
}

// Last returns the newest sample for asset.
func (h *History) Last(asset Asset) (Sample, bool) {
	r, ok := h.rings[asset]
	if !ok || r.count == 0 {
		return Sample{}, false
	}
	return r.at(r.count - 1), true
}

// Recent returns up to n samples, oldest first. n <= 0 returns everything kept.
func (h *History) Recent(asset Asset, n int) []Sample {
	r, ok := h.rings[asset]
	if !ok || r.count == 0 {
		return nil
	}
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]Sample, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.at(i))
	}
	return out
}

// Len returns the number of samples kept for asset.
func (h *History) Len(asset Asset) int {
	if r, ok := h.rings[asset]; ok {
		return r.count
	}
	return 0
}
