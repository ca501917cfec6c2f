package industry

import (
	"context"

	"github.com/forgetrack/forgetrack/internal/esi"
)

// DefaultMarketRegion is The Forge, the de facto reference market.
const DefaultMarketRegion int64 = 10000002

// TypePrices summarizes the open order book for one type in a region.
type TypePrices struct {
	TypeID   int64 `json:"type_id"`
	RegionID int64 `json:"region_id"`

	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`

	BuyVolume  int64 `json:"buy_volume"`
	SellVolume int64 `json:"sell_volume"`

	Spread float64 `json:"spread"`
}

// ComputeTypePrices derives the best buy and sell prices and the book
// depth from open orders. The spread is reported only when both sides
// of the book are present. Pure: the input is never mutated.
func ComputeTypePrices(typeID, regionID int64, orders []esi.MarketOrder) TypePrices {
	prices := TypePrices{TypeID: typeID, RegionID: regionID}

	for _, order := range orders {
		if order.IsBuyOrder {
			prices.BuyVolume += order.VolumeRemain
			if order.Price > prices.BuyPrice {
				prices.BuyPrice = order.Price
			}
			continue
		}

		prices.SellVolume += order.VolumeRemain
		if prices.SellPrice == 0 || order.Price < prices.SellPrice {
			prices.SellPrice = order.Price
		}
	}

	if prices.BuyPrice > 0 && prices.SellPrice > 0 {
		prices.Spread = prices.SellPrice - prices.BuyPrice
	}

	return prices
}

// MarketValue prices a quantity of one type against the current book.
type MarketValue struct {
	TypeID   int64 `json:"type_id"`
	RegionID int64 `json:"region_id"`
	Quantity int64 `json:"quantity"`

	BuyValue     float64 `json:"buy_value"`
	SellValue    float64 `json:"sell_value"`
	AverageValue float64 `json:"average_value"`
}

// ComputeMarketValue extends type prices to a quantity. The average is
// reported only when both sides of the book are present.
func ComputeMarketValue(prices TypePrices, quantity int64) MarketValue {
	value := MarketValue{
		TypeID:    prices.TypeID,
		RegionID:  prices.RegionID,
		Quantity:  quantity,
		BuyValue:  prices.BuyPrice * float64(quantity),
		SellValue: prices.SellPrice * float64(quantity),
	}

	if prices.BuyPrice > 0 && prices.SellPrice > 0 {
		value.AverageValue = (prices.BuyPrice + prices.SellPrice) / 2 * float64(quantity)
	}

	return value
}

// MarketOrders returns the open orders for a region, optionally limited
// to one type. Market data is public, so no identity is involved.
func (s *Service) MarketOrders(ctx context.Context, regionID, typeID int64) ([]esi.MarketOrder, error) {
	return s.gateway.MarketOrders(ctx, regionID, typeID)
}

// RegionPrices returns the region's reference prices.
func (s *Service) RegionPrices(ctx context.Context, regionID int64) ([]esi.MarketPrice, error) {
	return s.gateway.MarketPrices(ctx, regionID)
}

// Region resolves reference data for a region.
func (s *Service) Region(ctx context.Context, regionID int64) (esi.RegionInfo, error) {
	return s.gateway.RegionInfo(ctx, regionID)
}

// TypePricesFor summarizes the order book for one type. A zero region
// falls back to the default reference market.
func (s *Service) TypePricesFor(ctx context.Context, typeID, regionID int64) (TypePrices, error) {
	if regionID == 0 {
		regionID = DefaultMarketRegion
	}

	orders, err := s.gateway.MarketOrders(ctx, regionID, typeID)
	if err != nil {
		return TypePrices{}, err
	}
	return ComputeTypePrices(typeID, regionID, orders), nil
}

// MarketValueFor prices a quantity of one type against the order book.
func (s *Service) MarketValueFor(ctx context.Context, typeID, regionID, quantity int64) (MarketValue, error) {
	prices, err := s.TypePricesFor(ctx, typeID, regionID)
	if err != nil {
		return MarketValue{}, err
	}
	return ComputeMarketValue(prices, quantity), nil
}
