// Command audit_report prints the recent execution audit trail for each
// configured instrument and optionally exports it to CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"llmTraderBot/internal/adapters/logger"
	"llmTraderBot/internal/adapters/sqlite"
	"llmTraderBot/internal/domain"
	"llmTraderBot/internal/utils"
)

func main() {
	dbPath := flag.String("db", "./data/trader_bot.db", "Path to the audit database")
	instruments := flag.String("instruments", "ETH-USDT-SWAP", "Comma-separated instruments to report on")
	limit := flag.Int("limit", 50, "Max executions per instrument")
	csvOut := flag.String("csv", "", "Optional CSV output path")
	flag.Parse()

	appLogger := logger.NewZapLogger(logger.LevelWarn)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("Error opening audit database: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	var all []*domain.ExecutionRecord

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Time\tInstrument\tAction\tSize\tSL\tTP\tOrderID\tAccepted\tError\t")

	for _, inst := range strings.Split(*instruments, ",") {
		inst = strings.TrimSpace(inst)
		if inst == "" {
			continue
		}
		records, err := repo.FindRecentExecutions(ctx, inst, *limit)
		if err != nil {
			log.Printf("Error reading executions for %s: %v", inst, err)
			continue
		}
		count, err := repo.CountTodayByInstrument(ctx, inst)
		if err == nil {
			fmt.Printf("%s: %d opening trades today, %d recent executions\n", inst, count, len(records))
		}
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%.2f\t%.2f\t%s\t%t\t%s\t\n",
				r.CreatedAt.Format("2006-01-02 15:04:05"),
				r.Instrument, r.Action, r.Size, r.StopLoss, r.TakeProfit,
				r.OrderID, r.Accepted, truncate(r.Error, 40))
		}
		all = append(all, records...)
	}
	w.Flush()

	if *csvOut != "" {
		if err := utils.WriteExecutionsToCSV(all, *csvOut); err != nil {
			log.Fatalf("Error writing CSV: %v", err)
		}
		fmt.Printf("Wrote %d records to %s\n", len(all), *csvOut)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
