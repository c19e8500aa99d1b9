package market

import (
	"fmt"
	"strings"
)

// Asset is a CoinCap asset slug, e.g. "bitcoin".
type Asset string

func (a Asset) String() string { return string(a) }

// DefaultAssets is the catalog tracked when the configuration does not override it.
var DefaultAssets = []string{
	"bitcoin", "ethereum", "tether", "binance-coin", "xrp",
	"usd-coin", "solana", "tron", "dogecoin", "cardano",
	"bitcoin-cash", "chainlink", "unus-sed-leo", "monero",
	"stellar", "zcash", "litecoin", "sui",
}

// Catalog is the fixed set of assets known at startup.
type Catalog struct {
	assets []Asset
	index  map[Asset]int
}

// NewCatalog builds a catalog preserving the given order.
func NewCatalog(slugs ...string) (*Catalog, error) {
	if len(slugs) == 0 {
		return nil, fmt.Errorf("asset catalog is empty")
	}
	c := &Catalog{
		assets: make([]Asset, 0, len(slugs)),
		index:  make(map[Asset]int, len(slugs)),
	}
	for _, s := range slugs {
		a := Asset(strings.TrimSpace(strings.ToLower(s)))
		if a == "" {
			return nil, fmt.Errorf("asset catalog contains an empty slug")
		}
		if _, dup := c.index[a]; dup {
			return nil, fmt.Errorf("asset %q listed twice", a)
		}
		c.index[a] = len(c.assets)
		c.assets = append(c.assets, a)
	}
	return c, nil
}

// Contains reports whether a is part of the catalog.
func (c *Catalog) Contains(a Asset) bool {
	_, ok := c.index[a]
	return ok
}

// Assets returns the catalog in configuration order.
func (c *Catalog) Assets() []Asset {
	out := make([]Asset, len(c.assets))
	copy(out, c.assets)
	return out
}

// Len returns the number of assets.
func (c *Catalog) Len() int { return len(c.assets) }

// Parse resolves user input to a catalog asset.
func (c *Catalog) Parse(s string) (Asset, error) {
	a := Asset(strings.TrimSpace(strings.ToLower(s)))
	if !c.Contains(a) {
		return "", fmt.Errorf("%w: %q", ErrUnknownAsset, s)
	}
	return a, nil
}
