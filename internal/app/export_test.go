package app

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nifty-market-alerts/internal/storage"
)

func makeRecords(n int) []storage.PollRecord {
	base := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	records := make([]storage.PollRecord, n)
	for i := range records {
		records[i] = storage.PollRecord{
			Bucket:       base.Add(time.Duration(i) * 5 * time.Minute),
			Trigger:      "interval",
			AvgVolume:    decimal.Zero,
			IndexPChange: decimal.Zero,
		}
	}
	return records
}

func TestDownsampleRecords(t *testing.T) {
	records := makeRecords(10)

	sampled := downsampleRecords(records, 4)
	if len(sampled) != 4 {
		t.Fatalf("期望 4 个点, 实际 %d", len(sampled))
	}
	if !sampled[0].Bucket.Equal(records[0].Bucket) {
		t.Fatal("首点应保留")
	}
	if !sampled[len(sampled)-1].Bucket.Equal(records[len(records)-1].Bucket) {
		t.Fatal("末点应保留")
	}

	if got := downsampleRecords(records, 0); len(got) != len(records) {
		t.Fatal("max<=0 时应返回全部记录")
	}
	if got := downsampleRecords(records, 100); len(got) != len(records) {
		t.Fatal("点数充足时不应降采样")
	}
}

func TestDownsampleRecordsSinglePoint(t *testing.T) {
	records := makeRecords(10)

	sampled := downsampleRecords(records, 1)
	if len(sampled) != 1 {
		t.Fatalf("max=1 应返回 1 个点, 实际 %d", len(sampled))
	}
	if !sampled[0].Bucket.Equal(records[len(records)-1].Bucket) {
		t.Fatal("max=1 应保留最新记录")
	}

	two := downsampleRecords(records, 2)
	if len(two) != 2 || !two[0].Bucket.Equal(records[0].Bucket) || !two[1].Bucket.Equal(records[len(records)-1].Bucket) {
		t.Fatalf("max=2 应保留首末两点, 实际 %d 个", len(two))
	}
}

func TestWriteRecordsCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "records.csv")

	errMsg := "source status 503"
	records := makeRecords(2)
	records[1].FetchError = &errMsg
	records[1].AlertReason = "error"

	if err := writeRecordsCSV(path, records); err != nil {
		t.Fatalf("写 CSV 失败: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("打开 CSV 失败: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("读 CSV 失败: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("期望表头+2 行, 实际 %d 行", len(rows))
	}
	if rows[0][0] != "bucket_ts" {
		t.Fatalf("表头不正确: %v", rows[0])
	}
	if rows[2][13] != "source status 503" {
		t.Fatalf("失败原因列不正确: %v", rows[2])
	}
}

func TestWriteRecordsNDJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.ndjson")

	if err := writeRecordsNDJSON(path, makeRecords(3)); err != nil {
		t.Fatalf("写 NDJSON 失败: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读 NDJSON 失败: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 3 {
		t.Fatalf("期望每条记录一行, 实际 %d 行", lines)
	}
}
