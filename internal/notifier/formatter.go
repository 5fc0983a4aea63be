package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"LevelSentinel/internal/model"
	"LevelSentinel/internal/recorder"

	"github.com/dustin/go-humanize"
)

func sourceList(src []model.Source) string {
	parts := make([]string, len(src))
	for i, s := range src {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

func levelLine(n int, l model.Level) string {
	return fmt.Sprintf("  %d. $%.2f (Strength: %d/10) [%s]\n", n, l.Price, l.Strength, sourceList(l.Sources))
}

// FormatResult renders one result as plain text.
func FormatResult(r *model.SRResult) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s - Support/Resistance\n", r.Symbol, r.Timeframe))
	b.WriteString(fmt.Sprintf("Current Price: $%.2f\n\n", r.CurrentPrice))

	b.WriteString("Support Levels:\n")
	for i, l := range r.Supports() {
		b.WriteString(levelLine(i+1, l))
	}
	b.WriteString("\nResistance Levels:\n")
	for i, l := range r.Resistances() {
		b.WriteString(levelLine(i+1, l))
	}

	b.WriteString(fmt.Sprintf("\nCalculated: %s\n", r.CalculatedAt.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("Valid Until: %s", r.ValidUntil.UTC().Format(time.RFC3339)))
	return b.String()
}

// FormatSymbolLevels renders the latest levels of every timeframe for one
// symbol. Timeframes without a valid result are reported as missing.
func FormatSymbolLevels(sym model.Symbol, timeframes []model.Timeframe, results []*model.SRResult, now time.Time) string {
	byTF := make(map[model.Timeframe]*model.SRResult, len(results))
	for _, r := range results {
		byTF[r.Timeframe] = r
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>%s Support/Resistance</b>\n", html.EscapeString(sym.TradingPair())))
	for _, tf := range timeframes {
		r, ok := byTF[tf]
		if !ok {
			b.WriteString(fmt.Sprintf("\n⏱ <b>%s</b>: no valid data\n", tf))
			continue
		}
		b.WriteString(fmt.Sprintf("\n⏱ <b>%s</b> | price $%.2f | %s\n", tf, r.CurrentPrice, humanize.RelTime(r.CalculatedAt, now, "ago", "from now")))
		for i, l := range r.Supports() {
			b.WriteString(fmt.Sprintf("  🟢 S%d $%.2f (%d/10)\n", i+1, l.Price, l.Strength))
		}
		for i, l := range r.Resistances() {
			b.WriteString(fmt.Sprintf("  🔴 R%d $%.2f (%d/10)\n", i+1, l.Price, l.Strength))
		}
	}
	return b.String()
}

// FormatBatchSummary renders the outcome of one batch run.
func FormatBatchSummary(s *model.BatchSummary) string {
	var b strings.Builder
	icon := "✅"
	if !s.OK() {
		icon = "⚠️"
	}
	b.WriteString(fmt.Sprintf("%s <b>Batch complete</b> | %d/%d ok | took %s\n",
		icon, len(s.Successes), s.Total(), s.Duration.Round(time.Millisecond)))
	for _, f := range s.Failures {
		b.WriteString(fmt.Sprintf("  ❌ %s %s [%s] %s\n", f.Symbol, f.Timeframe, f.Kind, html.EscapeString(f.Message)))
	}
	return b.String()
}

// FormatStats renders the store health report.
func FormatStats(st recorder.Stats, now time.Time) string {
	var b strings.Builder
	b.WriteString("📦 <b>Store status</b>\n\n")
	b.WriteString(fmt.Sprintf("Records: %s\n", humanize.Comma(int64(st.Total))))
	b.WriteString(fmt.Sprintf("Valid: %d | Expired: %d\n", st.Valid, st.Expired()))
	if st.Total > 0 {
		b.WriteString(fmt.Sprintf("Oldest: %s\n", humanize.RelTime(st.Oldest, now, "ago", "from now")))
		b.WriteString(fmt.Sprintf("Newest: %s\n", humanize.RelTime(st.Newest, now, "ago", "from now")))
	}
	if len(st.Latest) > 0 {
		b.WriteString("\n")
		for _, r := range st.Latest {
			state := "valid"
			if !r.ValidAt(now) {
				state = "expired"
			}
			b.WriteString(fmt.Sprintf("  %s %s: %s (%s)\n", r.Symbol, r.Timeframe,
				humanize.RelTime(r.CalculatedAt, now, "ago", "from now"), state))
		}
	}
	return b.String()
}
