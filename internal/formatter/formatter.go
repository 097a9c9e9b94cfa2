// package formatter renders task snapshots and history records for CLI output (plain text, CSV)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/motifd/internal/repositories"
	"github.com/desertthunder/motifd/internal/tasks"
)

// FormatTask converts a task snapshot to a plain text block.
func FormatTask(task *tasks.Task) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Task: %s\n", task.ID)
	fmt.Fprintf(&buf, "Status: %s (%d%%)\n", task.Status, task.Progress)
	fmt.Fprintf(&buf, "Input: %s\n", task.InputPath)
	if task.Params.Style != "" {
		fmt.Fprintf(&buf, "Style: %s (intensity %.2f)\n", task.Params.Style, task.Params.Intensity)
	}
	if task.Result != nil {
		fmt.Fprintf(&buf, "Audio: %s (%s, %.1fs via %s)\n",
			task.Result.AudioURL, task.Result.Format, task.Result.DurationSec, task.Result.Provider)
	}
	if task.Error != nil {
		fmt.Fprintf(&buf, "Error: [%s] %s\n", task.Error.Code, task.Error.Message)
	}
	if task.CompletedAt != nil {
		fmt.Fprintf(&buf, "Completed: %s\n", task.CompletedAt.Format(time.RFC3339))
	}

	return buf.String()
}

// FormatHistory converts archived records to an aligned text table.
func FormatHistory(records []repositories.TaskRecord) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tSTATUS\tOWNER\tSTYLE\tPROVIDER\tCOMPLETED")
	for _, record := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			record.ID, record.Status, record.Owner, record.Style,
			record.Provider, record.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}
	w.Flush()

	return buf.String()
}

// ExportToCSV converts history records to CSV with columns:
// ID, Owner, Status, Input, Style, Intensity, Audio, Provider, ErrorCode, CompletedAt
func ExportToCSV(records []repositories.TaskRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Owner", "Status", "Input", "Style", "Intensity", "Audio", "Provider", "ErrorCode", "CompletedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, record := range records {
		row := []string{
			record.ID,
			record.Owner,
			record.Status,
			record.InputPath,
			record.Style,
			strconv.FormatFloat(record.Intensity, 'f', 2, 64),
			record.AudioPath,
			record.Provider,
			record.ErrorCode,
			record.CompletedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteCSVExport exports history records to a CSV file.
//
// Defaults to task_history.csv as the filename.
func WriteCSVExport(records []repositories.TaskRecord, path string) (string, error) {
	if path == "" {
		path = "task_history.csv"
	}

	data, err := ExportToCSV(records)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}

	return path, nil
}
