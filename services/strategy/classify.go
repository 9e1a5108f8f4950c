package strategy

import (
	"strings"

	"finproof/models"
)

// Crypto tickers that trade without a pair suffix.
var cryptoTickers = map[string]bool{
	"BTC":   true,
	"ETH":   true,
	"SOL":   true,
	"ADA":   true,
	"XRP":   true,
	"DOGE":  true,
	"DOT":   true,
	"AVAX":  true,
	"LTC":   true,
	"MATIC": true,
	"LINK":  true,
	"BNB":   true,
}

// ClassifyAssetType maps a symbol to an asset type. Pair notation with a
// hyphen (BTC-USD, ETH-EUR) and bare crypto tickers classify as CRYPTO;
// everything else is treated as a stock.
func ClassifyAssetType(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(symbol, "-") {
		return models.AssetTypeCrypto
	}
	if cryptoTickers[symbol] {
		return models.AssetTypeCrypto
	}
	return models.AssetTypeStock
}
