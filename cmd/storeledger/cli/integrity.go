package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/inventory"
)

// Exit codes of the check command.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitViolations = 10
)

// StockChecker scans stock movements and quantities.
type StockChecker interface {
	CheckIntegrity(ctx context.Context) (inventory.IntegrityReport, error)
}

// ChainChecker verifies the cash balance chain.
type ChainChecker interface {
	CheckChain(ctx context.Context) (cash.ChainReport, error)
}

// IntegrityCLI runs ledger integrity checks from the command line.
type IntegrityCLI struct {
	stock StockChecker
	chain ChainChecker
}

// NewIntegrityCLI constructs the helper.
func NewIntegrityCLI(stock StockChecker, chain ChainChecker) *IntegrityCLI {
	return &IntegrityCLI{stock: stock, chain: chain}
}

// CheckOptions defines available flags for the check command.
type CheckOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CheckSummary is the JSON form of a check run.
type CheckSummary struct {
	OK        bool                      `json:"ok"`
	Inventory inventory.IntegrityReport `json:"inventory"`
	Cash      cash.ChainReport          `json:"cash"`
}

// CheckCommand runs both scans and prints the outcome. It returns
// ExitViolations when any violation is found.
func (c *IntegrityCLI) CheckCommand(ctx context.Context, opts CheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	stock, err := c.stock.CheckIntegrity(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return ExitFailure
	}
	chain, err := c.chain.CheckChain(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return ExitFailure
	}
	summary := CheckSummary{
		OK:        stock.Violations()+chain.Violations() == 0,
		Inventory: normalizeStock(stock),
		Cash:      normalizeChain(chain),
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "check: encode json: %v\n", err)
			return ExitFailure
		}
	} else {
		renderCheckHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return ExitViolations
	}
	return ExitOK
}

func normalizeStock(r inventory.IntegrityReport) inventory.IntegrityReport {
	if r.InconsistentMovements == nil {
		r.InconsistentMovements = []int64{}
	}
	if r.NegativeProducts == nil {
		r.NegativeProducts = []int64{}
	}
	return r
}

func normalizeChain(r cash.ChainReport) cash.ChainReport {
	if r.Broken == nil {
		r.Broken = []int64{}
	}
	return r
}

func renderCheckHuman(out io.Writer, s CheckSummary) {
	_, _ = fmt.Fprintf(out, "Cash rows checked: %d, balance %s (register %s)\n",
		s.Cash.Checked, s.Cash.LastBalance.StringFixed(2), s.Cash.RegisterBalance.StringFixed(2))
	if s.OK {
		_, _ = fmt.Fprintln(out, "Ledger is consistent.")
		return
	}
	for _, id := range s.Inventory.InconsistentMovements {
		_, _ = fmt.Fprintf(out, " - movement %d: before + change != after\n", id)
	}
	for _, id := range s.Inventory.NegativeProducts {
		_, _ = fmt.Fprintf(out, " - product %d: negative quantity\n", id)
	}
	for _, id := range s.Cash.Broken {
		_, _ = fmt.Fprintf(out, " - cash row %d: breaks the balance chain\n", id)
	}
	if s.Cash.RegisterMismatch {
		_, _ = fmt.Fprintln(out, " - register balance differs from the last cash row")
	}
}
