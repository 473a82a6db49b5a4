package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/export"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

var (
	recordsLimit         int
	exportFormat         string
	exportClassification string
	exportSinceID        int64
	exportLimit          int
)

var recordsCmd = &cobra.Command{
	Use:     "records",
	Aliases: []string{"logs"},
	Short:   "Inspect and remap log records",
}

var recordsUnknownCmd = &cobra.Command{
	Use:   "unknown",
	Short: "List records that matched no existing template",
	Args:  cobra.NoArgs,
	RunE:  runRecordsUnknown,
}

var recordsMapCmd = &cobra.Command{
	Use:   "map <record-id> <template-id>",
	Short: "Bind a record to a template",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecordsMap,
}

var recordsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export records as JSON or CSV",
	Long: `Write stored records to stdout in id order.

Examples:
  logmon records export --format csv --classification abnormal > abnormal.csv
  logmon records export --since-id 5000 --limit 1000`,
	Args: cobra.NoArgs,
	RunE: runRecordsExport,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsUnknownCmd, recordsMapCmd, recordsExportCmd)

	recordsUnknownCmd.Flags().IntVar(&recordsLimit, "limit", 50, "maximum records to list (0 = all)")

	recordsExportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format (json, csv)")
	recordsExportCmd.Flags().StringVar(&exportClassification, "classification", "", "only export this classification")
	recordsExportCmd.Flags().Int64Var(&exportSinceID, "since-id", 0, "only export records with a greater id")
	recordsExportCmd.Flags().IntVar(&exportLimit, "limit", 0, "maximum records to export, newest kept (0 = all)")
}

func runRecordsUnknown(cmd *cobra.Command, args []string) error {
	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	known := false
	recs, err := st.Records().List(cmd.Context(), storage.RecordFilter{Known: &known, Limit: recordsLimit})
	if err != nil {
		return err
	}

	if jsonOutput() {
		if recs == nil {
			recs = []*models.LogRecord{}
		}
		data, _ := json.MarshalIndent(recs, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tHOST\tCOMPONENT\tTEMPLATE\tMESSAGE")
	for _, r := range recs {
		tmpl := "-"
		if r.TemplateID != 0 {
			tmpl = fmt.Sprint(r.TemplateID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Timestamp.Format("2006-01-02 15:04:05"), dash(r.Host), dash(r.Component), tmpl, truncate(r.Message, 100))
	}
	return w.Flush()
}

func runRecordsMap(cmd *cobra.Command, args []string) error {
	recordID, err := parseID(args[0], "record")
	if err != nil {
		return err
	}
	templateID, err := parseID(args[1], "template")
	if err != nil {
		return err
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	store, _ := newPatternStore(st)
	rec, err := store.MapRecord(cmd.Context(), recordID, templateID)
	if err != nil {
		return err
	}
	fmt.Printf("Record %d mapped to template %d (%s)\n", rec.ID, templateID, rec.Classification)
	return nil
}

func runRecordsExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	filter := storage.RecordFilter{SinceID: exportSinceID, Limit: exportLimit}
	if exportClassification != "" {
		if filter.Classification, err = models.ParseClassification(exportClassification); err != nil {
			return err
		}
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.Records().List(cmd.Context(), filter)
	if err != nil {
		return err
	}
	slices.Reverse(recs)

	return export.NewExporter(format, os.Stdout).ExportRecords(recs)
}
