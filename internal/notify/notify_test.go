package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nifty-market-alerts/internal/movement"
	"nifty-market-alerts/internal/storage"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeChannel struct {
	name    string
	failFor map[string]error

	mu   sync.Mutex
	sent []string
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{name: name, failFor: map[string]error{}}
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, recipient string, msg Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, recipient)
	f.mu.Unlock()

	if err, ok := f.failFor[recipient]; ok {
		return err
	}
	return nil
}

func TestDispatchNoTargets(t *testing.T) {
	d := NewDispatcher(testLogger())

	attempts := d.Dispatch(context.Background(), Message{Subject: "s"})
	if len(attempts) != 0 {
		t.Fatalf("无收件人时应返回空结果, 实际 %d", len(attempts))
	}
	if d.TargetCount() != 0 {
		t.Fatalf("期望 0 个投递目标, 实际 %d", d.TargetCount())
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	ch := newFakeChannel("email")
	ch.failFor["bad@example.com"] = errors.New("mailbox full")

	d := NewDispatcher(testLogger())
	d.Register(ch, []string{"good@example.com", "bad@example.com"})

	attempts := d.Dispatch(context.Background(), Message{Subject: "s", Text: "t"})

	if len(attempts) != 2 {
		t.Fatalf("期望 2 次投递, 实际 %d", len(attempts))
	}
	if len(ch.sent) != 2 {
		t.Fatalf("单个失败不应阻止其他投递, 实际发送 %d 次", len(ch.sent))
	}

	byRecipient := map[string]Attempt{}
	for _, a := range attempts {
		byRecipient[a.Recipient] = a
	}
	if !byRecipient["good@example.com"].Delivered {
		t.Fatal("正常收件人应投递成功")
	}
	if byRecipient["bad@example.com"].Delivered || byRecipient["bad@example.com"].Err == nil {
		t.Fatal("失败投递应记录错误")
	}
}

func TestDispatchMultipleChannels(t *testing.T) {
	email := newFakeChannel("email")
	sms := newFakeChannel("sms")

	d := NewDispatcher(testLogger())
	d.Register(email, []string{"a@example.com"})
	d.Register(sms, []string{"+911234567890"})

	if d.TargetCount() != 2 {
		t.Fatalf("期望 2 个投递目标, 实际 %d", d.TargetCount())
	}

	attempts := d.Dispatch(context.Background(), Message{Subject: "s"})
	channels := map[string]bool{}
	for _, a := range attempts {
		channels[a.Channel] = true
	}
	if !channels["email"] || !channels["sms"] {
		t.Fatalf("每个通道都应被尝试: %#v", channels)
	}
}

func TestRenderAlert(t *testing.T) {
	samples := []storage.Sample{
		{Symbol: "RELIANCE", PChange: decimal.RequireFromString("0.6"), LastPrice: decimal.RequireFromString("2900.5")},
		{Symbol: "TCS", PChange: decimal.RequireFromString("-0.8"), LastPrice: decimal.RequireFromString("3800")},
		{Symbol: "INFY", PChange: decimal.RequireFromString("0.2"), LastPrice: decimal.RequireFromString("1500")},
	}
	agg := movement.Classify(samples, decimal.RequireFromString("0.5"))
	bucket := time.Date(2026, 8, 27, 9, 30, 0, 0, time.UTC)

	msg := RenderAlert(agg, bucket, "NIFTY")

	if !strings.Contains(msg.Subject, "1 Gainers, 1 Losers") {
		t.Fatalf("主题应包含涨跌计数: %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "Total stocks monitored: 3") {
		t.Fatalf("正文应包含监控总数: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "RELIANCE: +0.60% (₹2900.50)") {
		t.Fatalf("涨幅行格式不正确: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "TCS: -0.80% (₹3800.00)") {
		t.Fatalf("跌幅行格式不正确: %q", msg.Text)
	}
	if strings.Contains(msg.Text, "INFY") {
		t.Fatal("未越界的样本不应出现在告警中")
	}
	if !strings.Contains(msg.Text, "2026-08-27T09:30:00Z") {
		t.Fatalf("页脚应包含时间戳: %q", msg.Text)
	}
	if !strings.Contains(msg.HTML, "#28a745") || !strings.Contains(msg.HTML, "#dc3545") {
		t.Fatal("HTML 应包含涨跌配色")
	}
}

func TestRenderError(t *testing.T) {
	at := time.Date(2026, 8, 27, 9, 30, 0, 0, time.UTC)

	msg := RenderError("source status 503", at, "NIFTY")

	if !strings.Contains(msg.Subject, "Error") {
		t.Fatalf("错误通知主题不正确: %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "source status 503") {
		t.Fatalf("正文应包含失败原因: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "2026-08-27T09:30:00Z") {
		t.Fatalf("正文应包含时间戳: %q", msg.Text)
	}
}
