package reaction

import (
	"github.com/pkg/errors"
)

// Kind is the closed set of reaction asset kinds.
type Kind string

const (
	KindStatic   Kind = "static"
	KindAnimated Kind = "animated"
	KindEmoji    Kind = "emoji"
)

func (k Kind) valid() bool {
	switch k {
	case KindStatic, KindAnimated, KindEmoji:
		return true
	}
	return false
}

// Asset is a single entry of the reaction catalog.
type Asset struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	URL  string `json:"url"`
}

// Catalog is the fixed list of reactions a store accepts.
//
// Codes outside the catalog are rejected on add; the catalog also resolves
// a code into the asset URL used for rendering.
type Catalog struct {
	assets map[string]Asset
	order  []string
}

// NewCatalog creates a Catalog from the provided assets.
func NewCatalog(assets []Asset) (*Catalog, error) {
	c := &Catalog{
		assets: make(map[string]Asset, len(assets)),
	}

	for _, asset := range assets {
		if asset.Code == "" {
			return nil, errors.New("catalog asset with empty code")
		}
		if !asset.Kind.valid() {
			return nil, errors.Errorf("catalog asset %s has unknown kind %q", asset.Code, asset.Kind)
		}
		if _, ok := c.assets[asset.Code]; ok {
			return nil, errors.Errorf("duplicate catalog code %s", asset.Code)
		}

		c.assets[asset.Code] = asset
		c.order = append(c.order, asset.Code)
	}

	return c, nil
}

// Resolve returns the asset for the code.
func (c *Catalog) Resolve(code string) (Asset, bool) {
	asset, ok := c.assets[code]
	return asset, ok
}

// Assets returns the catalog entries in their original order.
func (c *Catalog) Assets() []Asset {
	assets := make([]Asset, len(c.order))
	for i, code := range c.order {
		assets[i] = c.assets[code]
	}
	return assets
}

// DefaultCatalog returns the CoastlineVibe tide reaction set.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Asset{
		{Code: "wave", Name: "Wave", Kind: KindStatic, URL: "https://assets.coastlinevibe.com/reactions/wave.svg"},
		{Code: "love", Name: "Beach Love", Kind: KindStatic, URL: "https://assets.coastlinevibe.com/reactions/love.svg"},
		{Code: "sunset", Name: "Sunset", Kind: KindStatic, URL: "https://assets.coastlinevibe.com/reactions/sunset.svg"},
		{Code: "surf", Name: "Surf's Up", Kind: KindAnimated, URL: "https://assets.coastlinevibe.com/reactions/surf.gif"},
		{Code: "shell", Name: "Seashell", Kind: KindStatic, URL: "https://assets.coastlinevibe.com/reactions/shell.svg"},
		{Code: "splash", Name: "Splash", Kind: KindAnimated, URL: "https://assets.coastlinevibe.com/reactions/splash.gif"},
		{Code: "crab", Name: "Crab", Kind: KindEmoji, URL: "https://assets.coastlinevibe.com/reactions/crab.png"},
	})
	if err != nil {
		panic(err)
	}

	return c
}
