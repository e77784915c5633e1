package notify

import (
	"fmt"
	"strings"
	"time"

	"nifty-market-alerts/internal/movement"
	"nifty-market-alerts/internal/storage"
)

// RenderAlert builds the alert message for a classified poll: a header with
// the monitored total, a gainers block, a losers block, and a trailing
// timestamp/source footer. Mover order follows the detector's output.
func RenderAlert(agg movement.Aggregation, bucket time.Time, source string) Message {
	subject := fmt.Sprintf("%s Market Alert - %d Gainers, %d Losers",
		source, len(agg.Gainers), len(agg.Losers))

	text := strings.Builder{}
	text.WriteString(fmt.Sprintf("%s Market Alert\n", source))
	text.WriteString(fmt.Sprintf("Total stocks monitored: %d\n\n", agg.TotalStocks))

	html := strings.Builder{}
	html.WriteString(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">`)
	html.WriteString(fmt.Sprintf(`<h2 style="color: #333; text-align: center;">%s Market Alert</h2>`, source))
	html.WriteString(fmt.Sprintf(`<p style="color: #666; text-align: center; font-size: 14px;">Total stocks monitored: %d</p>`, agg.TotalStocks))
	html.WriteString(`<hr style="border: 1px solid #eee; margin: 20px 0;">`)

	if len(agg.Gainers) > 0 {
		text.WriteString(fmt.Sprintf("Gainers - %d stocks:\n", len(agg.Gainers)))
		for _, s := range agg.Gainers {
			text.WriteString(fmt.Sprintf("%s: +%s%% (₹%s)\n", s.Symbol, s.PChange.StringFixed(2), s.LastPrice.StringFixed(2)))
		}
		text.WriteString("\n")

		html.WriteString(fmt.Sprintf(`<div style="margin: 20px 0;"><h3 style="color: #28a745;">Gainers - %d stocks</h3>`, len(agg.Gainers)))
		html.WriteString(formatStockList(agg.Gainers, "#28a745", true))
		html.WriteString(`</div>`)
	}

	if len(agg.Losers) > 0 {
		text.WriteString(fmt.Sprintf("Losers - %d stocks:\n", len(agg.Losers)))
		for _, s := range agg.Losers {
			text.WriteString(fmt.Sprintf("%s: %s%% (₹%s)\n", s.Symbol, s.PChange.StringFixed(2), s.LastPrice.StringFixed(2)))
		}
		text.WriteString("\n")

		html.WriteString(fmt.Sprintf(`<div style="margin: 20px 0;"><h3 style="color: #dc3545;">Losers - %d stocks</h3>`, len(agg.Losers)))
		html.WriteString(formatStockList(agg.Losers, "#dc3545", false))
		html.WriteString(`</div>`)
	}

	footerTS := bucket.UTC().Format(time.RFC3339)
	text.WriteString(fmt.Sprintf("Alert generated at %s\nData source: %s\n", footerTS, source))

	html.WriteString(`<hr style="border: 1px solid #eee; margin: 20px 0;">`)
	html.WriteString(fmt.Sprintf(`<p style="color: #999; font-size: 12px; text-align: center;">Alert generated at %s<br>Data source: %s</p>`, footerTS, source))
	html.WriteString(`</div>`)

	return Message{
		Subject: subject,
		Text:    text.String(),
		HTML:    html.String(),
	}
}

// RenderError builds the error notice sent when a live cycle fails outright.
func RenderError(cycleErr string, at time.Time, source string) Message {
	ts := at.UTC().Format(time.RFC3339)

	text := fmt.Sprintf("%s market alert failed at %s\nError: %s\n", source, ts, cycleErr)
	html := fmt.Sprintf(
		`<div style="font-family: Arial, sans-serif; padding: 20px;"><h3 style="color: #dc3545;">Market Alert Error</h3><p>The market alert failed at %s</p><p><strong>Error:</strong> %s</p></div>`,
		ts, cycleErr,
	)

	return Message{
		Subject: fmt.Sprintf("%s Market Alert - Error", source),
		Text:    text,
		HTML:    html,
	}
}

func formatStockList(stocks []storage.Sample, color string, positive bool) string {
	b := strings.Builder{}
	for _, s := range stocks {
		sign := ""
		if positive {
			sign = "+"
		}
		b.WriteString(fmt.Sprintf(
			`<div style="color:%s;font-weight:bold;margin:5px 0;">%s: %s%s%% (₹%s) <span style="color:#666;font-size:12px;">Change: ₹%s</span></div>`,
			color, s.Symbol, sign, s.PChange.StringFixed(2), s.LastPrice.StringFixed(2), s.Change.StringFixed(2),
		))
	}
	return b.String()
}
