package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"llmTraderBot/internal/domain"
)

func WriteExecutionsToCSV(records []*domain.ExecutionRecord, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"created_at", "instrument", "action", "size", "stop_loss", "take_profit", "order_id", "accepted", "error"})

	for _, r := range records {
		writer.Write([]string{
			r.CreatedAt.Format(time.RFC3339),
			r.Instrument,
			string(r.Action),
			strconv.FormatFloat(r.Size, 'f', -1, 64),
			strconv.FormatFloat(r.StopLoss, 'f', -1, 64),
			strconv.FormatFloat(r.TakeProfit, 'f', -1, 64),
			r.OrderID,
			strconv.FormatBool(r.Accepted),
			r.Error,
		})
	}
	return writer.Error()
}
