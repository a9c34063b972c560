package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/model"
)

var (
	scrapeProducts    []string
	scrapeCatalogPath string
	scrapeMaxPerStore int
	scrapeWait        bool
	scrapeOutput      string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run a competitor scrape job from the command line",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(scrapeProducts) == 0 {
			return eris.New("at least one --product is required")
		}

		env, err := initEnv(ctx, scrapeCatalogPath)
		if err != nil {
			return err
		}
		defer env.Close()

		taskID, err := env.Orch.Submit(ctx, scrapeProducts, scrapeMaxPerStore)
		if err != nil {
			return err
		}
		zap.L().Info("scrape job started", zap.String("task_id", taskID))

		if !scrapeWait {
			cmd.Println(taskID)
			return nil
		}

		job, err := waitForJob(ctx, env, taskID)
		if err != nil {
			return err
		}

		zap.L().Info("scrape job done",
			zap.String("status", string(job.Status)),
			zap.Int("products_found", job.ProductsFound),
			zap.Strings("errors", job.Errors),
		)

		obs, err := env.Orch.Results(ctx, taskID)
		if err != nil {
			return err
		}

		out := os.Stdout
		if scrapeOutput != "" {
			f, err := os.Create(scrapeOutput)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"task_id":            taskID,
			"status":             job.Status,
			"total_observations": len(obs),
			"observations":       obs,
		})
	},
}

// waitForJob polls job progress until a terminal state or cancellation.
func waitForJob(ctx context.Context, env *appEnv, taskID string) (*model.ScrapeJob, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "interrupted while waiting for job")
		case <-ticker.C:
		}

		job, err := env.Orch.Progress(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
	}
}

func init() {
	scrapeCmd.Flags().StringSliceVar(&scrapeProducts, "product", nil, "product search query (repeatable)")
	scrapeCmd.Flags().StringVar(&scrapeCatalogPath, "catalog", "", "catalog file (csv or xlsx) to match scraped listings against")
	scrapeCmd.Flags().IntVar(&scrapeMaxPerStore, "max-per-store", 0, "max observations per store (default from config)")
	scrapeCmd.Flags().BoolVar(&scrapeWait, "wait", false, "block until the job finishes and print results")
	scrapeCmd.Flags().StringVar(&scrapeOutput, "output", "", "write results JSON to a file instead of stdout")
	rootCmd.AddCommand(scrapeCmd)
}
