package movement

import (
	"testing"

	"github.com/shopspring/decimal"

	"nifty-market-alerts/internal/storage"
)

func sample(symbol, pchange string, volume int64) storage.Sample {
	return storage.Sample{
		Symbol:       symbol,
		PChange:      decimal.RequireFromString(pchange),
		TradedVolume: volume,
	}
}

func TestClassifyPartition(t *testing.T) {
	threshold := decimal.RequireFromString("0.5")
	samples := []storage.Sample{
		sample("AAA", "0.6", 100),
		sample("BBB", "-0.8", 200),
		sample("CCC", "0.2", 300),
	}

	agg := Classify(samples, threshold)

	if agg.GainerCount != 1 || agg.LoserCount != 1 || agg.UnchangedCount != 1 {
		t.Fatalf("期望 1/1/1, 实际 %d/%d/%d", agg.GainerCount, agg.LoserCount, agg.UnchangedCount)
	}
	if agg.GainerCount+agg.LoserCount+agg.UnchangedCount != agg.TotalStocks {
		t.Fatal("分类计数之和必须等于样本总数")
	}
	if !agg.ShouldAlert {
		t.Fatal("存在越界样本时 ShouldAlert 应为 true")
	}
	if agg.Sentiment != SentimentNeutral {
		t.Fatalf("1/3 涨 1/3 跌应为 neutral, 实际 %s", agg.Sentiment)
	}
	if agg.Gainers[0].Symbol != "AAA" || agg.Losers[0].Symbol != "BBB" {
		t.Fatal("涨跌列表应保持输入顺序")
	}
}

func TestClassifyThresholdBoundary(t *testing.T) {
	threshold := decimal.RequireFromString("0.5")
	samples := []storage.Sample{
		sample("AAA", "0.5", 0),
		sample("BBB", "-0.5", 0),
	}

	agg := Classify(samples, threshold)

	if agg.GainerCount != 0 || agg.LoserCount != 0 {
		t.Fatalf("恰好等于阈值应为 unchanged, 实际 %d/%d", agg.GainerCount, agg.LoserCount)
	}
	if agg.UnchangedCount != 2 {
		t.Fatalf("期望 unchanged=2, 实际 %d", agg.UnchangedCount)
	}
	if agg.ShouldAlert {
		t.Fatal("无越界样本时 ShouldAlert 应为 false")
	}
}

func TestClassifyEmptySet(t *testing.T) {
	agg := Classify(nil, decimal.RequireFromString("0.5"))

	if agg.TotalStocks != 0 {
		t.Fatalf("空样本集 TotalStocks 应为 0, 实际 %d", agg.TotalStocks)
	}
	if agg.ShouldAlert {
		t.Fatal("空样本集不应触发告警")
	}
	if agg.Sentiment != SentimentNeutral {
		t.Fatalf("空样本集应为 neutral, 实际 %s", agg.Sentiment)
	}
	if !agg.AvgVolume.IsZero() {
		t.Fatalf("空样本集 AvgVolume 应为 0, 实际 %s", agg.AvgVolume)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	threshold := decimal.RequireFromString("1")
	samples := []storage.Sample{
		sample("AAA", "1.5", 10),
		sample("BBB", "-2.0", 20),
		sample("CCC", "0.9", 30),
		sample("DDD", "1.01", 40),
	}

	first := Classify(samples, threshold)
	second := Classify(samples, threshold)

	if first.GainerCount != second.GainerCount ||
		first.LoserCount != second.LoserCount ||
		first.UnchangedCount != second.UnchangedCount ||
		first.Sentiment != second.Sentiment ||
		first.ShouldAlert != second.ShouldAlert {
		t.Fatal("同一输入重复分类结果应一致")
	}
	for i := range first.Gainers {
		if first.Gainers[i].Symbol != second.Gainers[i].Symbol {
			t.Fatal("涨幅列表顺序应稳定")
		}
	}
}

func TestClassifySentimentRatios(t *testing.T) {
	threshold := decimal.RequireFromString("0.5")

	bullish := Classify([]storage.Sample{
		sample("A", "1.0", 0),
		sample("B", "1.2", 0),
		sample("C", "0.8", 0),
		sample("D", "0.1", 0),
	}, threshold)
	if bullish.Sentiment != SentimentBullish {
		t.Fatalf("3/4 上涨应为 bullish, 实际 %s", bullish.Sentiment)
	}

	bearish := Classify([]storage.Sample{
		sample("A", "-1.0", 0),
		sample("B", "-1.2", 0),
		sample("C", "-0.8", 0),
		sample("D", "0.1", 0),
	}, threshold)
	if bearish.Sentiment != SentimentBearish {
		t.Fatalf("3/4 下跌应为 bearish, 实际 %s", bearish.Sentiment)
	}

	// ratio exactly 0.6 stays neutral
	atRatio := Classify([]storage.Sample{
		sample("A", "1.0", 0),
		sample("B", "1.0", 0),
		sample("C", "1.0", 0),
		sample("D", "0.1", 0),
		sample("E", "0.1", 0),
	}, threshold)
	if atRatio.Sentiment != SentimentNeutral {
		t.Fatalf("恰好 60%% 上涨应为 neutral, 实际 %s", atRatio.Sentiment)
	}
}

func TestClassifyVolumeAggregates(t *testing.T) {
	agg := Classify([]storage.Sample{
		sample("A", "0.1", 100),
		sample("B", "0.1", 200),
		sample("C", "0.1", 300),
	}, decimal.RequireFromString("0.5"))

	if agg.TotalVolume != 600 {
		t.Fatalf("期望总成交量 600, 实际 %d", agg.TotalVolume)
	}
	if !agg.AvgVolume.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("期望平均成交量 200, 实际 %s", agg.AvgVolume)
	}
}
