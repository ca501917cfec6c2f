package esi

import (
	"context"
	"fmt"
	"time"
)

// Market data TTLs. Order books move quickly, reference prices slowly.
const (
	ttlMarketOrders = 5 * time.Minute
	ttlMarketPrices = time.Hour
)

// MarketOrder is one open order on a regional market.
type MarketOrder struct {
	OrderID      int64     `json:"order_id"`
	TypeID       int64     `json:"type_id"`
	LocationID   int64     `json:"location_id"`
	SystemID     int64     `json:"system_id"`
	IsBuyOrder   bool      `json:"is_buy_order"`
	Price        float64   `json:"price"`
	VolumeRemain int64     `json:"volume_remain"`
	VolumeTotal  int64     `json:"volume_total"`
	MinVolume    int64     `json:"min_volume"`
	Duration     int       `json:"duration"`
	Issued       time.Time `json:"issued"`
	Range        string    `json:"range"`
}

// MarketPrice is the region-wide reference price of one type.
type MarketPrice struct {
	TypeID        int64   `json:"type_id"`
	AveragePrice  float64 `json:"average_price"`
	AdjustedPrice float64 `json:"adjusted_price"`
}

// RegionInfo is reference data for a region.
type RegionInfo struct {
	RegionID    int64  `json:"region_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MarketOrders returns the open orders in a region, optionally filtered
// to a single type (typeID 0 fetches the whole region). Market data is
// public, so no credential is presented; transient failures degrade to
// an empty list.
func (g *Gateway) MarketOrders(ctx context.Context, regionID, typeID int64) ([]MarketOrder, error) {
	key := fmt.Sprintf("marketorders:%d:all", regionID)
	path := fmt.Sprintf("/markets/%d/orders/", regionID)
	if typeID != 0 {
		key = fmt.Sprintf("marketorders:%d:%d", regionID, typeID)
		path = fmt.Sprintf("/markets/%d/orders/?type_id=%d", regionID, typeID)
	}

	var orders []MarketOrder
	err := g.fetch(ctx, key, ttlMarketOrders, path, "", &orders)
	if err != nil {
		return degradeList[MarketOrder](err, "marketorders", regionID)
	}
	return orders, nil
}

// MarketPrices returns the region's reference prices per type.
func (g *Gateway) MarketPrices(ctx context.Context, regionID int64) ([]MarketPrice, error) {
	var prices []MarketPrice
	err := g.fetch(ctx,
		fmt.Sprintf("marketprices:%d", regionID), ttlMarketPrices,
		fmt.Sprintf("/markets/%d/prices/", regionID), "", &prices)
	if err != nil {
		return degradeList[MarketPrice](err, "marketprices", regionID)
	}
	return prices, nil
}

// RegionInfo resolves reference data for a region.
func (g *Gateway) RegionInfo(ctx context.Context, regionID int64) (RegionInfo, error) {
	var info RegionInfo
	err := g.fetch(ctx,
		fmt.Sprintf("region:%d", regionID), ttlReference,
		fmt.Sprintf("/universe/regions/%d/", regionID), "", &info)
	if err != nil {
		return RegionInfo{}, err
	}
	info.RegionID = regionID
	return info, nil
}
