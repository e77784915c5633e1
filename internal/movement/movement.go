package movement

import (
	"github.com/shopspring/decimal"

	"nifty-market-alerts/internal/storage"
)

// Sentiment labels for the aggregate market mood.
const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentNeutral = "neutral"
)

// sentiment flips once either side holds more than 60% of the full set
var sentimentRatio = decimal.NewFromFloat(0.6)

// Aggregation is the result of classifying one sample set at a threshold.
type Aggregation struct {
	Gainers []storage.Sample
	Losers  []storage.Sample

	GainerCount    int
	LoserCount     int
	UnchangedCount int
	TotalStocks    int

	TotalVolume int64
	AvgVolume   decimal.Decimal
	Sentiment   string
	ShouldAlert bool
}

// Classify partitions samples at thresholdPct and derives the aggregate
// sentiment. Pure and deterministic: flagged movers keep input order, and a
// percent change exactly equal to the threshold is neutral on either side.
func Classify(samples []storage.Sample, thresholdPct decimal.Decimal) Aggregation {
	agg := Aggregation{
		TotalStocks: len(samples),
		AvgVolume:   decimal.Zero,
	}

	negThreshold := thresholdPct.Neg()
	totalVolume := int64(0)

	for _, sample := range samples {
		totalVolume += sample.TradedVolume

		switch {
		case sample.PChange.GreaterThan(thresholdPct):
			agg.Gainers = append(agg.Gainers, sample)
			agg.GainerCount++
		case sample.PChange.LessThan(negThreshold):
			agg.Losers = append(agg.Losers, sample)
			agg.LoserCount++
		default:
			agg.UnchangedCount++
		}
	}

	agg.TotalVolume = totalVolume
	if agg.TotalStocks > 0 {
		agg.AvgVolume = decimal.NewFromInt(totalVolume).Div(decimal.NewFromInt(int64(agg.TotalStocks)))
	}

	agg.Sentiment = sentiment(agg.GainerCount, agg.LoserCount, agg.TotalStocks)
	agg.ShouldAlert = agg.GainerCount > 0 || agg.LoserCount > 0

	return agg
}

// sentiment is computed over the full sample set, not only flagged movers.
func sentiment(gainers, losers, total int) string {
	if total == 0 {
		return SentimentNeutral
	}

	den := decimal.NewFromInt(int64(total))
	gainerRatio := decimal.NewFromInt(int64(gainers)).Div(den)
	loserRatio := decimal.NewFromInt(int64(losers)).Div(den)

	switch {
	case gainerRatio.GreaterThan(sentimentRatio):
		return SentimentBullish
	case loserRatio.GreaterThan(sentimentRatio):
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}
