package indicators

import "math"

// Bar is the OHLC input for range-based indicators.
type Bar struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// SMA produces the simple moving average for the supplied prices. Entries
// before the warm-up window are NaN.
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return []float64{}
	}
	result := make([]float64, len(prices))
	for i := range result {
		result[i] = math.NaN()
	}
	if len(prices) < period {
		return result
	}
	var sum float64
	for i, px := range prices {
		sum += px
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			result[i] = sum / float64(period)
		}
	}
	return result
}

// EMA produces the exponential moving average for the supplied prices, seeded
// with the first complete SMA window.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return []float64{}
	}
	result := make([]float64, len(prices))
	for i := range result {
		result[i] = math.NaN()
	}
	if len(prices) < period {
		return result
	}
	multiplier := 2.0 / float64(period+1)

	var seed float64
	for i := 0; i < period; i++ {
		seed += prices[i]
	}
	seed /= float64(period)
	result[period-1] = seed

	for i := period; i < len(prices); i++ {
		prev := result[i-1]
		result[i] = (prices[i]-prev)*multiplier + prev
	}
	return result
}

// RSI computes the Relative Strength Index across the supplied prices using
// Wilder smoothing.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return []float64{}
	}
	rsi := make([]float64, len(prices))
	for i := range rsi {
		rsi[i] = math.NaN()
	}
	if len(prices) <= period {
		return rsi
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum -= change
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	rsi[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain := math.Max(change, 0)
		loss := math.Max(-change, 0)

		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)

		rsi[i] = rsiValue(avgGain, avgLoss)
	}
	return rsi
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATR computes the Average True Range across the bar series.
func ATR(bars []Bar, period int) []float64 {
	if period <= 0 || len(bars) == 0 {
		return []float64{}
	}
	tr := make([]float64, len(bars))
	for i := range bars {
		if i == 0 {
			tr[i] = bars[i].High - bars[i].Low
			continue
		}
		highLow := bars[i].High - bars[i].Low
		highClose := math.Abs(bars[i].High - bars[i-1].Close)
		lowClose := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(highLow, math.Max(highClose, lowClose))
	}

	result := make([]float64, len(bars))
	for i := range result {
		result[i] = math.NaN()
	}
	if len(bars) < period {
		return result
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < len(bars); i++ {
		result[i] = (result[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return result
}

// MACD returns MACD, signal, and histogram series for the standard 12/26/9
// parameterisation.
func MACD(prices []float64, fast, slow, signalPeriod int) ([]float64, []float64, []float64) {
	if len(prices) == 0 {
		return []float64{}, []float64{}, []float64{}
	}
	if fast <= 0 {
		fast = 12
	}
	if slow <= 0 {
		slow = 26
	}
	if signalPeriod <= 0 {
		signalPeriod = 9
	}
	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)

	macd := make([]float64, len(prices))
	for i := range prices {
		if math.IsNaN(emaFast[i]) || math.IsNaN(emaSlow[i]) {
			macd[i] = math.NaN()
		} else {
			macd[i] = emaFast[i] - emaSlow[i]
		}
	}

	// The signal line smooths only the valid MACD tail.
	signal := make([]float64, len(prices))
	for i := range signal {
		signal[i] = math.NaN()
	}
	start := -1
	for i := range macd {
		if !math.IsNaN(macd[i]) {
			start = i
			break
		}
	}
	if start >= 0 {
		tail := EMA(macd[start:], signalPeriod)
		copy(signal[start:], tail)
	}

	hist := make([]float64, len(prices))
	for i := range hist {
		if math.IsNaN(macd[i]) || math.IsNaN(signal[i]) {
			hist[i] = math.NaN()
		} else {
			hist[i] = macd[i] - signal[i]
		}
	}
	return macd, signal, hist
}

// Last returns the final value of a series, or NaN when the series is empty.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
