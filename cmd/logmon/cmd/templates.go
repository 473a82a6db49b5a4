package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/patterns"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

var (
	tmplLabel    string
	tmplFilter   string
	tmplSeverity string
	tmplNote     string
	tmplRegex    string
	tmplSample   string
	tmplUpdate   bool
	tmplLimit    int
)

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"template", "patterns"},
	Short:   "Manage message templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates by occurrence count",
	Long: `List templates ordered by occurrence count, optionally filtered by label.

Examples:
  logmon templates list --label unknown
  logmon templates list --limit 20 -o json`,
	Args: cobra.NoArgs,
	RunE: runTemplatesList,
}

var templatesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a manual template",
	Long: `Add a manually authored template. Named capture groups in the regex
become parameters that rules can test.

Examples:
  logmon templates add --regex 'pci\s+\S+:\s+(?P<available_bandwidth>\d+\.?\d*)\s+Gb/s' \
    --sample 'pci 0000:01:00.0: 31.504 Gb/s available PCIe bandwidth' --label normal`,
	Args: cobra.NoArgs,
	RunE: runTemplatesAdd,
}

var templatesLabelCmd = &cobra.Command{
	Use:   "label <template-id> <label>",
	Short: "Relabel a template and every record bound to it",
	Args:  cobra.ExactArgs(2),
	RunE:  runTemplatesLabel,
}

var templatesSetRegexCmd = &cobra.Command{
	Use:   "set-regex <template-id> <regex>",
	Short: "Replace a template's regex with a manual one",
	Long: `Replace a template's regex with a manual one. Run "templates reprocess"
afterwards to bind existing records to it.`,
	Args: cobra.ExactArgs(2),
	RunE: runTemplatesSetRegex,
}

var templatesReprocessCmd = &cobra.Command{
	Use:   "reprocess <template-id>",
	Short: "Re-apply a template to every stored record",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesReprocess,
}

var templatesPromoteCmd = &cobra.Command{
	Use:   "promote <record-id>",
	Short: "Turn a record's message into a manual template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesPromote,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesListCmd, templatesAddCmd, templatesLabelCmd,
		templatesSetRegexCmd, templatesReprocessCmd, templatesPromoteCmd)

	templatesListCmd.Flags().StringVar(&tmplFilter, "label", "", "filter by label (normal, abnormal, unknown, ignore)")
	templatesListCmd.Flags().IntVar(&tmplLimit, "limit", 50, "maximum templates to list (0 = all)")

	templatesAddCmd.Flags().StringVar(&tmplRegex, "regex", "", "template regex (required)")
	templatesAddCmd.Flags().StringVar(&tmplSample, "sample", "", "sample message")
	templatesAddCmd.Flags().StringVar(&tmplLabel, "label", "normal", "label")
	templatesAddCmd.Flags().StringVar(&tmplSeverity, "severity", "", "severity (info, warning, critical, unknown)")
	templatesAddCmd.Flags().StringVar(&tmplNote, "note", "", "note")
	templatesAddCmd.Flags().BoolVar(&tmplUpdate, "update", false, "update label, severity and note if the regex exists")
	templatesAddCmd.MarkFlagRequired("regex")

	templatesLabelCmd.Flags().StringVar(&tmplSeverity, "severity", "", "also set severity")
	templatesLabelCmd.Flags().StringVar(&tmplNote, "note", "", "also set note")

	templatesPromoteCmd.Flags().StringVar(&tmplLabel, "label", "normal", "label")
	templatesPromoteCmd.Flags().StringVar(&tmplSeverity, "severity", "", "severity")
	templatesPromoteCmd.Flags().StringVar(&tmplNote, "note", "", "note")
}

func runTemplatesList(cmd *cobra.Command, args []string) error {
	filter := storage.TemplateFilter{Limit: tmplLimit}
	if tmplFilter != "" {
		label, err := models.ParseClassification(tmplFilter)
		if err != nil {
			return err
		}
		filter.Label = label
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	tmpls, err := st.Templates().List(cmd.Context(), filter)
	if err != nil {
		return err
	}

	if jsonOutput() {
		type item struct {
			*models.Template
			Regex string             `json:"regex"`
			Kind  models.PatternKind `json:"kind"`
		}
		items := make([]item, 0, len(tmpls))
		for _, t := range tmpls {
			items = append(items, item{t, t.Pattern.Regex(), t.Pattern.Kind()})
		}
		data, _ := json.MarshalIndent(items, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tLABEL\tSEVERITY\tCOUNT\tLAST SEEN\tREGEX")
	for _, t := range tmpls {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Pattern.Kind(), t.Label, dash(string(t.Severity)),
			humanize.Comma(t.TotalCount), humanize.Time(t.LastSeenAt), truncate(t.Pattern.Regex(), 80))
	}
	return w.Flush()
}

func runTemplatesAdd(cmd *cobra.Command, args []string) error {
	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	store, _ := newPatternStore(st)
	tmpl, created, err := store.CreateManual(cmd.Context(), patterns.ManualTemplate{
		Regex:         tmplRegex,
		SampleMessage: tmplSample,
		Label:         models.Classification(tmplLabel),
		Severity:      models.Severity(tmplSeverity),
		Note:          tmplNote,
	}, tmplUpdate)
	if errors.Is(err, patterns.ErrDuplicateTemplate) && tmpl != nil {
		return fmt.Errorf("%w (template %d); use --update to change it", err, tmpl.ID)
	}
	if err != nil {
		return err
	}

	if created {
		fmt.Printf("Created manual template %d\n", tmpl.ID)
	} else {
		fmt.Printf("Updated template %d\n", tmpl.ID)
	}
	return nil
}

func runTemplatesLabel(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "template")
	if err != nil {
		return err
	}
	label, err := models.ParseClassification(args[1])
	if err != nil {
		return err
	}

	var severity *models.Severity
	if cmd.Flags().Changed("severity") {
		sev := models.Severity(tmplSeverity)
		severity = &sev
	}
	var note *string
	if cmd.Flags().Changed("note") {
		note = &tmplNote
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	store, _ := newPatternStore(st)
	affected, err := store.Relabel(cmd.Context(), id, label, severity, note)
	if err != nil {
		return err
	}
	fmt.Printf("Template %d labeled %s, %s records updated\n", id, label, humanize.Comma(affected))
	return nil
}

func runTemplatesSetRegex(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "template")
	if err != nil {
		return err
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	store, _ := newPatternStore(st)
	tmpl, err := store.SetRegex(cmd.Context(), id, args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Template %d now uses manual regex %s\n", tmpl.ID, tmpl.Pattern.Regex())
	fmt.Printf("Run \"logmon templates reprocess %d\" to apply it to stored records\n", tmpl.ID)
	return nil
}

func runTemplatesReprocess(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "template")
	if err != nil {
		return err
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	store, _ := newPatternStore(st)
	res, err := store.Reprocess(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Printf("Matched records: %d\n", res.Matched)
	fmt.Printf("With parameters: %d\n", res.WithParams)
	fmt.Printf("Abnormal: %d\n", res.Abnormal)
	return nil
}

func runTemplatesPromote(cmd *cobra.Command, args []string) error {
	recordID, err := parseID(args[0], "record")
	if err != nil {
		return err
	}
	label, err := models.ParseClassification(tmplLabel)
	if err != nil {
		return err
	}
	severity, err := models.ParseSeverity(tmplSeverity)
	if err != nil {
		return err
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	store, _ := newPatternStore(st)
	tmpl, err := store.Promote(cmd.Context(), recordID, label, severity, tmplNote)
	if err != nil {
		return err
	}
	fmt.Printf("Record %d mapped to template %d (%s)\n", recordID, tmpl.ID, tmpl.Pattern.Regex())
	return nil
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
