package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/model"
)

var (
	optimizeCatalogPath string
	optimizeProductID   string
	optimizeTaskID      string
	optimizeMinMargin   float64
	optimizeMaxIncrease float64
	optimizePsych       bool
	optimizePositioning string
	optimizeSensitivity float64
	optimizeOutput      string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Recommend prices for a catalog using scraped competitor data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if optimizeCatalogPath == "" {
			return eris.New("--catalog is required")
		}

		env, err := initEnv(ctx, optimizeCatalogPath)
		if err != nil {
			return err
		}
		defer env.Close()

		products := env.Catalog
		if optimizeProductID != "" {
			products = nil
			for _, item := range env.Catalog {
				if item.ID == optimizeProductID {
					products = append(products, item)
				}
			}
			if len(products) == 0 {
				return eris.Errorf("product %q not found in catalog", optimizeProductID)
			}
		}

		constraints := model.OptimizationConstraints{
			MinMarginPercent:        optimizeMinMargin,
			MaxPriceIncreasePercent: optimizeMaxIncrease,
			PsychologicalPricing:    optimizePsych,
			CompetitivePositioning:  model.Positioning(optimizePositioning),
			DemandSensitivity:       optimizeSensitivity,
		}

		observations := make(map[string][]model.CompetitorObservation)
		if optimizeTaskID != "" {
			obs, err := env.Orch.Results(ctx, optimizeTaskID)
			if err != nil {
				return eris.Wrapf(err, "load observations for task %s", optimizeTaskID)
			}
			for _, ob := range obs {
				observations[ob.ProductID] = append(observations[ob.ProductID], ob)
			}
		}

		result, err := env.Batch.OptimizeBatch(ctx, products, observations, constraints)
		if err != nil {
			return err
		}

		zap.L().Info("batch optimization done",
			zap.Int("total", result.Summary.TotalProducts),
			zap.Int("succeeded", result.Summary.Succeeded),
			zap.Int("failed", result.Summary.Failed),
		)

		out := os.Stdout
		if optimizeOutput != "" {
			f, err := os.Create(optimizeOutput)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	optimizeCmd.Flags().StringVar(&optimizeCatalogPath, "catalog", "", "catalog file (csv or xlsx) to optimize")
	optimizeCmd.Flags().StringVar(&optimizeProductID, "product", "", "optimize a single catalog item by id")
	optimizeCmd.Flags().StringVar(&optimizeTaskID, "task-id", "", "use observations from a finished scrape job")
	optimizeCmd.Flags().Float64Var(&optimizeMinMargin, "min-margin", 20, "minimum margin percent")
	optimizeCmd.Flags().Float64Var(&optimizeMaxIncrease, "max-increase", 50, "maximum price change percent")
	optimizeCmd.Flags().BoolVar(&optimizePsych, "psychological", true, "apply psychological price endings")
	optimizeCmd.Flags().StringVar(&optimizePositioning, "positioning", "competitive", "aggressive, competitive, or premium")
	optimizeCmd.Flags().Float64Var(&optimizeSensitivity, "sensitivity", 1.0, "demand sensitivity multiplier")
	optimizeCmd.Flags().StringVar(&optimizeOutput, "output", "", "write result JSON to a file instead of stdout")
	rootCmd.AddCommand(optimizeCmd)
}
