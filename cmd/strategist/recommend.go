package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/eddiefleurent/options_strategist/internal/broker"
	"github.com/eddiefleurent/options_strategist/internal/chain"
	"github.com/eddiefleurent/options_strategist/internal/models"
	"github.com/eddiefleurent/options_strategist/internal/recommend"
)

func newRecommendCmd(app *App) *cobra.Command {
	var (
		symbol, outlook, risk, tier, expiration, chainFile string
		capital, spot                                      float64
		asJSON                                             bool
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend strategies for one symbol and outlook",
		Example: `  strategist recommend --symbol SPY --outlook neutral --capital 5000
  strategist recommend --outlook volatile --chain-file SPY_2025-02-14.json
  strategist recommend --outlook bullish --chain-file SPY_2025-02-14.csv --spot 598.2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := models.ParseOutlook(outlook)
			if err != nil {
				return err
			}
			rp, err := models.ParseRiskProfile(risk)
			if err != nil {
				return err
			}
			t, err := broker.ParseTier(tier)
			if err != nil {
				return err
			}
			req := recommend.Request{
				Symbol:      symbol,
				Outlook:     o,
				RiskProfile: rp,
				Tier:        t,
				Capital:     capital,
			}
			if expiration != "" {
				if req.Expiration, err = time.Parse("2006-01-02", expiration); err != nil {
					return fmt.Errorf("--expiration must be YYYY-MM-DD: %w", err)
				}
			}

			provider := buildProvider(app.Config, app.Logger)
			svc, err := buildService(app.Config, provider, app.Logger)
			if err != nil {
				return err
			}

			var rec *models.Recommendation
			if chainFile != "" {
				c, err := loadChainFile(chainFile, symbol, spot)
				if err != nil {
					return err
				}
				rec, err = svc.Evaluate(req, c)
				if err != nil {
					return err
				}
			} else {
				if rec, err = svc.Recommend(cmd.Context(), req); err != nil {
					return err
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			return printRecommendation(cmd.OutOrStdout(), rec)
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "underlying symbol")
	cmd.Flags().StringVar(&outlook, "outlook", "", "market outlook: neutral, volatile, bullish, bearish")
	cmd.Flags().StringVar(&risk, "risk", "conservative", "risk profile: conservative, aggressive")
	cmd.Flags().StringVar(&tier, "tier", "free", "data tier: free, pro")
	cmd.Flags().StringVar(&expiration, "expiration", "", "expiration date YYYY-MM-DD (default: nearest the DTE window)")
	cmd.Flags().StringVar(&chainFile, "chain-file", "", "evaluate a local chain (.json or .csv) instead of fetching one")
	cmd.Flags().Float64Var(&capital, "capital", 0, "capital to size positions against")
	cmd.Flags().Float64Var(&spot, "spot", 0, "underlying price for CSV chains")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	_ = cmd.MarkFlagRequired("outlook")
	return cmd
}

// loadChainFile reads a JSON chain, or a CSV export whose symbol and
// expiration may come from a file name like SPY_2025-02-14.csv.
func loadChainFile(path, symbol string, spot float64) (*models.Chain, error) {
	f, err := os.Open(path) // #nosec G304 -- path is a user-provided chain file
	if err != nil {
		return nil, fmt.Errorf("opening chain file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return chain.DecodeJSON(f)
	case ".csv":
		base := filepath.Base(path)
		if symbol == "" {
			if i := strings.Index(base, "_"); i > 0 {
				symbol = base[:i]
			}
		}
		c, err := chain.LoadCSV(f, symbol, spot)
		if err != nil {
			return nil, err
		}
		if c.Expiration.IsZero() {
			if exp, ok := chain.ExpirationFromFileName(base); ok {
				c.Expiration = exp
			}
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported chain file type %q (want .json or .csv)", filepath.Ext(path))
	}
}

func printRecommendation(w io.Writer, rec *models.Recommendation) error {
	fmt.Fprintf(w, "%s %s (%s)", rec.Symbol, rec.Outlook, rec.RiskProfile)
	if !rec.Expiration.IsZero() {
		fmt.Fprintf(w, " exp %s", rec.Expiration.Format("2006-01-02"))
	}
	if rec.SpotPrice > 0 {
		fmt.Fprintf(w, " spot %.2f", rec.SpotPrice)
	}
	fmt.Fprintln(w)

	if rec.IsEmpty() {
		_, err := fmt.Fprintln(w, rec.Message)
		return err
	}

	for _, s := range rec.Strategies {
		m := s.Metrics
		fmt.Fprintf(w, "\n%s: %s\n", s.Name, s.Description)

		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"side", "type", "strike", "bid", "ask", "delta", "contract"})
		table.SetAutoFormatHeaders(false)
		table.SetBorder(false)
		table.SetColumnSeparator("")
		for _, l := range s.Legs {
			side := "sell"
			if l.IsLong() {
				side = "buy"
			}
			table.Append([]string{
				side,
				string(l.OptionType),
				fmt.Sprintf("%.2f", l.Strike),
				fmt.Sprintf("%.2f", l.Bid),
				fmt.Sprintf("%.2f", l.Ask),
				fmt.Sprintf("%.3f", l.Greeks.Delta),
				l.Contract,
			})
		}
		table.Render()

		rr := "n/a"
		if m.RiskReward != nil {
			rr = fmt.Sprintf("%.2f", *m.RiskReward)
		}
		breakevens := make([]string, len(m.Breakevens))
		for i, b := range m.Breakevens {
			breakevens[i] = fmt.Sprintf("%.2f", b)
		}
		fmt.Fprintf(w, "max profit %s  max loss %.2f  risk/reward %s  pop %.0f%%\n",
			m.MaxProfit, m.MaxLoss, rr, m.ProbabilityOfProfit*100)
		fmt.Fprintf(w, "breakevens %s  theta/day %.2f  liquidity %.2f  contracts %d\n",
			strings.Join(breakevens, ", "), m.ThetaDecayPerDay, m.LiquidityScore, s.Contracts)
	}
	return nil
}
