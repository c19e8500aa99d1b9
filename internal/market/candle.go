package market

import "github.com/shopspring/decimal"

// Candle is an OHLC bar built from consecutive samples.
type Candle struct {
	Index int // position of the first sample in the input
	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
}

// Candles groups samples into bars of chunk samples each. A trailing partial chunk is dropped.
func Candles(samples []Sample, chunk int) []Candle {
	if chunk < 1 || len(samples) < chunk {
		return nil
	}
	out := make([]Candle, 0, len(samples)/chunk)
	for i := 0; i+chunk <= len(samples); i += chunk {
		window := samples[i : i+chunk]
		c := Candle{
			Index: i,
			Open:  window[0].Value,
			High:  window[0].Value,
			Low:   window[0].Value,
			Close: window[chunk-1].Value,
		}
		for _, s := range window[1:] {
			if s.Value.GreaterThan(c.High) {
				c.High = s.Value
			}
			if s.Value.LessThan(c.Low) {
				c.Low = s.Value
			}
		}
		out = append(out, c)
	}
	return out
}
