// Package notify renders cycle and portfolio results to the console, the
// same operator-facing reporting role the teacher's notify.Console plays for
// its scanner output.
package notify

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/mdelgado-fx/fundingarb/internal/core"
)

// Console writes cycle summaries and portfolio risk reports to an io.Writer,
// defaulting to stdout.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier over an arbitrary writer, for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PrintCycle reports one orchestrator pass: opportunities evaluated, plans
// built, the selected plan, rebalance decision, and close outcomes.
func (c *Console) PrintCycle(result core.CycleResult) {
	now := time.Now().Format("15:04:05")
	status := "OK"
	if !result.Success {
		status = "FAILED"
	}
	fmt.Fprintf(c.out, "[%s] cycle %s — opportunities:%d plans:%d closed:%d stillOpen:%d errors:%d\n",
		now, status, result.OpportunitiesEvaluated, result.PlansBuilt, len(result.Closed), len(result.StillOpen), len(result.Errors))

	if result.SelectedPlan != nil {
		p := result.SelectedPlan
		fmt.Fprintf(c.out, "  selected: %s long=%s short=%s size=%.6f netReturn/period=$%.4f\n",
			p.Opportunity.Symbol, p.Opportunity.LongVenue, p.Opportunity.ShortVenue, p.BaseAssetSize, p.ExpectedNetReturnPerPeriod)
	}

	if result.RebalanceDecision != nil {
		d := result.RebalanceDecision
		fmt.Fprintf(c.out, "  rebalance: %v (%s) hoursSaved=%.1f\n", d.Rebalance, d.Reason, d.HoursSaved)
	}

	for _, pos := range result.Closed {
		fmt.Fprintf(c.out, "  closed: %s %s %s size=%.6f\n", pos.Venue, pos.Symbol, pos.Side, pos.Size)
	}
	for _, pos := range result.StillOpen {
		fmt.Fprintf(c.out, "  still open: %s %s %s size=%.6f\n", pos.Venue, pos.Symbol, pos.Side, pos.Size)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(c.out, "  error: %s\n", e)
	}
}

// PrintTWAPProgress reports one TWAP execution's live state.
func (c *Console) PrintTWAPProgress(exec *core.TWAPExecution) {
	fmt.Fprintf(c.out, "  TWAP %s: %s %d/%d slices avgLong=%.4f avgShort=%.4f slippage=%.2fbps\n",
		exec.Schedule.ID, exec.Status, exec.SlicesExecuted, exec.Schedule.SliceCount,
		exec.AvgLongFillPrice, exec.AvgShortFillPrice, exec.RunningSlippageBps)
}

// RiskReport is the portfolio-level summary the cycle emits alongside
// per-allocation detail — expected APY with confidence interval, VaR95,
// maximum drawdown, Sharpe, stress-test outcomes, concentration via
// Herfindahl index, pairwise correlation, and a volatility breakdown.
// Any field left at its zero value with its corresponding Available flag
// false is rendered as "N/A" rather than a misleading zero.
type RiskReport struct {
	ExpectedAPY     float64
	APYConfidenceLo float64
	APYConfidenceHi float64
	APYAvailable    bool

	VaR95          float64
	VaR95Available bool

	MaxDrawdown          float64
	MaxDrawdownAvailable bool

	Sharpe          float64
	SharpeAvailable bool

	StressTests []StressTestResult

	HerfindahlIndex float64

	AvgPairwiseCorrelation float64
	CorrelationAvailable   bool

	VolatilityBySymbol map[string]float64
}

// StressTestResult is one named scenario's projected portfolio impact.
type StressTestResult struct {
	Scenario  string
	PnLImpact float64
	Available bool
}

// HerfindahlIndexOf computes the concentration metric (§GLOSSARY) as the sum
// of squared allocation shares of total.
func HerfindahlIndexOf(allocationsUsd []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	var hhi float64
	for _, a := range allocationsUsd {
		share := a / total
		hhi += share * share
	}
	return hhi
}

func fmtPctOrNA(v float64, available bool) string {
	if !available {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func fmtOrNA(v float64, available bool) string {
	if !available {
		return "N/A"
	}
	return fmt.Sprintf("%.4f", v)
}

// PrintRiskReport renders the portfolio risk report as a console table,
// degrading any unavailable section to "N/A".
func (c *Console) PrintRiskReport(r RiskReport) {
	fmt.Fprintf(c.out, "\n=== PORTFOLIO RISK REPORT ===\n")

	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")

	ciLabel := "N/A"
	if r.APYAvailable {
		ciLabel = fmt.Sprintf("%.2f%% [%.2f%%, %.2f%%]", r.ExpectedAPY*100, r.APYConfidenceLo*100, r.APYConfidenceHi*100)
	}
	table.Append("Expected APY (95% CI)", ciLabel)
	table.Append("VaR95", fmtPctOrNA(r.VaR95, r.VaR95Available))
	table.Append("Max drawdown", fmtPctOrNA(r.MaxDrawdown, r.MaxDrawdownAvailable))
	table.Append("Sharpe", fmtOrNA(r.Sharpe, r.SharpeAvailable))
	table.Append("Herfindahl index", fmt.Sprintf("%.4f", r.HerfindahlIndex))
	table.Append("Avg pairwise correlation", fmtOrNA(r.AvgPairwiseCorrelation, r.CorrelationAvailable))

	table.Render()

	if len(r.StressTests) > 0 {
		fmt.Fprintf(c.out, "\n  Stress tests:\n")
		for _, s := range r.StressTests {
			impact := "N/A"
			if s.Available {
				impact = fmt.Sprintf("%+.2f%%", s.PnLImpact*100)
			}
			fmt.Fprintf(c.out, "    %-30s %s\n", s.Scenario, impact)
		}
	}

	if len(r.VolatilityBySymbol) > 0 {
		fmt.Fprintf(c.out, "\n  Volatility breakdown:\n")
		for symbol, vol := range r.VolatilityBySymbol {
			fmt.Fprintf(c.out, "    %-10s %.4f\n", symbol, vol)
		}
	}
	fmt.Fprintln(c.out)
}
