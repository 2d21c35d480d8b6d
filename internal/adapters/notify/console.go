package notify

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/alejandrodnm/sweepbot/internal/ports"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
// table=true imprime el heartbeat como tabla en lugar de una línea.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Heartbeat implementa ports.Notifier.
func (c *Console) Heartbeat(hb ports.Heartbeat) error {
	if c.table {
		c.printTable(hb)
		return nil
	}
	c.printCompact(hb)
	return nil
}

// printCompact imprime el estado en una línea.
func (c *Console) printCompact(hb ports.Heartbeat) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s #%d px=%s", clock(hb.ServerMs), hb.Symbol, hb.Cycle, num(hb.LastPrice))
	if hb.Bid > 0 && hb.Ask > 0 {
		fmt.Fprintf(&sb, " bid/ask=%s/%s", num(hb.Bid), num(hb.Ask))
	}
	fmt.Fprintf(&sb, " eq=%.2f pnl=%+.2f trades=%d", hb.Equity, hb.Ledger.RealizedToday, hb.Ledger.TradesToday)
	if hb.Position != nil {
		fmt.Fprintf(&sb, " pos=%s@%s stop=%s", num(hb.Position.Amount), num(hb.Position.EntryPrice), num(hb.TrailStop))
	} else {
		sb.WriteString(" flat")
	}
	fmt.Fprintf(&sb, " drift=%dms feed=%.0fs", hb.DriftMs, hb.FeedAgeSec)
	if hb.SafeMode {
		fmt.Fprintf(&sb, " SAFE(%s)", hb.SafeReason)
	}
	if hb.LastDecision != "" {
		fmt.Fprintf(&sb, " last=%s", hb.LastDecision)
	}
	if top := topBlocked(hb.Blocked, 3); top != "" {
		fmt.Fprintf(&sb, " blocked[%s]", top)
	}
	fmt.Fprintln(c.out, sb.String())
}

// printTable imprime el estado como tabla clave/valor.
func (c *Console) printTable(hb ports.Heartbeat) {
	pos := "flat"
	if hb.Position != nil {
		pos = fmt.Sprintf("%s @ %s", num(hb.Position.Amount), num(hb.Position.EntryPrice))
	}
	safe := "off"
	if hb.SafeMode {
		safe = "ON: " + hb.SafeReason
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Field", "Value")
	table.Append("time", clock(hb.ServerMs))
	table.Append("symbol", fmt.Sprintf("%s (cycle %d)", hb.Symbol, hb.Cycle))
	table.Append("price", fmt.Sprintf("%s  bid %s  ask %s", num(hb.LastPrice), num(hb.Bid), num(hb.Ask)))
	table.Append("equity", fmt.Sprintf("%.2f (day start %.2f)", hb.Equity, hb.Ledger.StartEquity))
	table.Append("realized today", fmt.Sprintf("%+.2f", hb.Ledger.RealizedToday))
	table.Append("trades today", fmt.Sprintf("%d", hb.Ledger.TradesToday))
	table.Append("position", pos)
	table.Append("tracked stop", num(hb.TrailStop))
	table.Append("safe mode", safe)
	table.Append("drift / feed age", fmt.Sprintf("%d ms / %.0f s", hb.DriftMs, hb.FeedAgeSec))
	table.Append("last decision", hb.LastDecision)
	table.Append("blocked", topBlocked(hb.Blocked, 5))
	table.Render()
}

// Report imprime las estadísticas del journal.
func (c *Console) Report(symbol string, st domain.JournalStats) {
	fmt.Fprintf(c.out, "\n=== %s journal ===\n", symbol)
	fmt.Fprintf(c.out, "  signals: %d   entries: %d   blocked cycles: %d\n\n", st.Signals, st.Entries, st.Blocked)

	if len(st.TopReasons) > 0 {
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Reason", "Count", "Share")
		for _, r := range st.TopReasons {
			share := 0.0
			if st.Blocked > 0 {
				share = float64(r.Count) / float64(st.Blocked) * 100
			}
			tbl.Append(r.Reason, fmt.Sprintf("%d", r.Count), fmt.Sprintf("%.1f%%", share))
		}
		tbl.Render()
	}

	if len(st.LastEntries) == 0 {
		fmt.Fprintln(c.out, "  no entries yet")
		return
	}
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Time", "Side", "Qty", "Avg", "Stop", "TP", "TP½", "Notional")
	for _, e := range st.LastEntries {
		tbl.Append(
			time.UnixMilli(e.ServerMs).UTC().Format("01-02 15:04"),
			string(e.Side),
			num(e.Qty),
			num(e.AvgPrice),
			num(e.Stop),
			num(e.TPFinal),
			num(e.TPPartial),
			fmt.Sprintf("%.2f", e.Notional),
		)
	}
	tbl.Render()
}

// topBlocked formatea los n motivos más frecuentes: "stale_data:4 dedupe:2".
func topBlocked(m map[string]int, n int) string {
	if len(m) == 0 {
		return ""
	}
	type kv struct {
		k string
		v int
	}
	var s []kv
	for k, v := range m {
		s = append(s, kv{k, v})
	}
	sort.Slice(s, func(i, j int) bool {
		if s[i].v != s[j].v {
			return s[i].v > s[j].v
		}
		return s[i].k < s[j].k
	})
	parts := make([]string, 0, n)
	for i := 0; i < len(s) && i < n; i++ {
		parts = append(parts, fmt.Sprintf("%s:%d", s[i].k, s[i].v))
	}
	return strings.Join(parts, " ")
}

func clock(ms int64) string {
	if ms <= 0 {
		return time.Now().UTC().Format("15:04:05")
	}
	return time.UnixMilli(ms).UTC().Format("15:04:05")
}

// num imprime sin ceros de cola ("-" para 0).
func num(v float64) string {
	if v == 0 {
		return "-"
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", v), "0"), ".")
}
