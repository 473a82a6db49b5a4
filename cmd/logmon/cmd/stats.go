package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

// Stats is the statistics report.
type Stats struct {
	Database        string                          `json:"database"`
	SchemaVersion   int                             `json:"schema_version"`
	SizeBytes       int64                           `json:"size_bytes"`
	Templates       int64                           `json:"templates"`
	Records         int64                           `json:"records"`
	Classifications map[models.Classification]int64 `json:"classifications"`
	Labels          map[models.Classification]int64 `json:"labels"`
	Alerts          map[models.AlertStatus]int64    `json:"alerts"`
	Last24h         map[models.Classification]int64 `json:"last_24h"`
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	s := Stats{Database: cfg.Database.Path}

	if s.SchemaVersion, err = st.SchemaVersion(); err != nil {
		return err
	}
	if info, err := os.Stat(cfg.Database.Path); err == nil {
		s.SizeBytes = info.Size()
	}
	if s.Templates, err = st.Templates().Count(ctx); err != nil {
		return err
	}
	if s.Records, err = st.Records().Count(ctx); err != nil {
		return err
	}
	if s.Classifications, err = st.Records().CountByClassification(ctx, time.Time{}); err != nil {
		return err
	}
	if s.Labels, err = st.Templates().CountByLabel(ctx); err != nil {
		return err
	}
	if s.Alerts, err = st.Alerts().CountByStatus(ctx); err != nil {
		return err
	}
	if s.Last24h, err = st.Records().CountByClassification(ctx, time.Now().Add(-24*time.Hour)); err != nil {
		return err
	}

	if jsonOutput() {
		data, _ := json.MarshalIndent(s, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Database: %s (%s, schema v%d)\n", s.Database, humanize.Bytes(uint64(s.SizeBytes)), s.SchemaVersion)
	fmt.Printf("Templates: %s\n", humanize.Comma(s.Templates))
	printDistribution("Template labels", s.Labels)
	fmt.Printf("Log records: %s\n", humanize.Comma(s.Records))
	printDistribution("Classifications", s.Classifications)
	printDistribution("Alerts", s.Alerts)
	fmt.Println("Last 24h:")
	fmt.Printf("  abnormal: %s\n", humanize.Comma(s.Last24h[models.ClassAbnormal]))
	fmt.Printf("  unknown: %s\n", humanize.Comma(s.Last24h[models.ClassUnknown]))
	return nil
}

func printDistribution[K ~string](title string, counts map[K]int64) {
	fmt.Printf("%s:\n", title)
	keys := make([]K, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return counts[keys[i]] > counts[keys[j]] })
	for _, k := range keys {
		fmt.Printf("  %s: %s\n", k, humanize.Comma(counts[k]))
	}
}
