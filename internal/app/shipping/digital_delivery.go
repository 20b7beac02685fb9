package shipping

import (
	"context"
	"strings"
)

const DefaultCurrency = "USD"

// Variant 是包裹里一行内容对应的商品规格；Digital 表示挂有数字商品附件。
type Variant struct {
	ID      int64 `json:"id"`
	Digital bool  `json:"digital"`
}

type ContentItem struct {
	Variant  Variant `json:"variant"`
	Quantity int     `json:"quantity"`
}

// Package 是一次发货的包裹。
type Package struct {
	Contents []ContentItem `json:"contents"`
}

// Money 金额以最小货币单位（分）表示。
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Preferences 是 digital delivery 运费规则的可配置项。
type Preferences struct {
	Amount   int64
	Currency string
}

// DigitalDelivery 对纯数字商品包裹收取固定运费。
type DigitalDelivery struct {
	prefs Preferences
}

// NewDigitalDelivery Currency 为空时使用 DefaultCurrency；Amount 默认 0。
func NewDigitalDelivery(prefs Preferences) *DigitalDelivery {
	prefs.Currency = strings.ToUpper(strings.TrimSpace(prefs.Currency))
	if prefs.Currency == "" {
		prefs.Currency = DefaultCurrency
	}
	return &DigitalDelivery{prefs: prefs}
}

func (d *DigitalDelivery) Description() string {
	return "Digital Delivery"
}

// ComputePackageCost 总是返回配置的固定金额，与包裹内容无关。
func (d *DigitalDelivery) ComputePackageCost(Package) Money {
	return Money{Amount: d.prefs.Amount, Currency: d.prefs.Currency}
}

// IsEligible 当且仅当包裹里每一行都是数字商品；空包裹视为满足。
func (d *DigitalDelivery) IsEligible(pkg Package) bool {
	for _, c := range pkg.Contents {
		if !c.Variant.Digital {
			return false
		}
	}
	return true
}

// DigitalVariantLookup 返回给定 variant 中挂有数字商品的集合。
type DigitalVariantLookup interface {
	DigitalVariants(ctx context.Context, variantIDs []int64) (map[int64]bool, error)
}

// ResolvePackage 根据 variant id 构造包裹，并按 lookup 的结果标记 Digital。
func ResolvePackage(ctx context.Context, lookup DigitalVariantLookup, variantIDs []int64) (Package, error) {
	digital, err := lookup.DigitalVariants(ctx, variantIDs)
	if err != nil {
		return Package{}, err
	}
	pkg := Package{Contents: make([]ContentItem, 0, len(variantIDs))}
	for _, id := range variantIDs {
		pkg.Contents = append(pkg.Contents, ContentItem{
			Variant:  Variant{ID: id, Digital: digital[id]},
			Quantity: 1,
		})
	}
	return pkg, nil
}
