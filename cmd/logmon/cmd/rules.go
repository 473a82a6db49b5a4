package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/rules"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

var (
	ruleTemplateID int64
	ruleKind       string
	ruleField      string
	ruleOp         string
	ruleValue      float64
	ruleValue2     float64
	ruleOperand    string
	ruleSeverity   string
	ruleMessage    string
	ruleNormal     bool
	ruleInactive   bool
)

var rulesCmd = &cobra.Command{
	Use:     "rules",
	Aliases: []string{"rule"},
	Short:   "Manage anomaly rules",
	Long: `Manage per-template anomaly rules. Active rules of a template are
evaluated in id order and the first match classifies the record abnormal.

Kinds:
  threshold  numeric test of a parameter: >, >=, <, <=, ==, !=, between, not_between
  contains   substring of a parameter, or of the message when --field is empty
  regex      regex search of a parameter, or of the message
  expr       boolean expression over message and params`,
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rule to a template",
	Long: `Add a rule to a template.

Examples:
  logmon rules add --template 12 --kind threshold --field available_bandwidth --op '<=' --value 50 --severity warning
  logmon rules add --template 12 --kind threshold --field temp --op between --value 30 --value2 50
  logmon rules add --template 7 --kind contains --operand 'I/O error' --severity critical
  logmon rules add --template 7 --kind expr --operand 'params.errors > 3 && message contains "retry"'`,
	Args: cobra.NoArgs,
	RunE: runRulesAdd,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <rule-id>",
	Short: "Activate a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleActive(cmd, args[0], true)
	},
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <rule-id>",
	Short: "Deactivate a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleActive(cmd, args[0], false)
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <rule-id>",
	Short: "Delete a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesDelete,
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import rules from a YAML file",
	Long: `Import rules from a YAML file. All rules are validated first and stored
in one transaction.

  rules:
    - template_id: 12
      kind: threshold
      field: available_bandwidth
      op: "<="
      value: 50
      severity: warning
      message: PCIe bandwidth below 50 Gb/s`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesImport,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesAddCmd, rulesListCmd, rulesEnableCmd, rulesDisableCmd, rulesDeleteCmd, rulesImportCmd)

	f := rulesAddCmd.Flags()
	f.Int64Var(&ruleTemplateID, "template", 0, "template id (required)")
	f.StringVar(&ruleKind, "kind", string(models.RuleThreshold), "rule kind (threshold, contains, regex, expr)")
	f.StringVar(&ruleField, "field", "", "parameter name")
	f.StringVar(&ruleOp, "op", "", "threshold operator")
	f.Float64Var(&ruleValue, "value", 0, "threshold bound")
	f.Float64Var(&ruleValue2, "value2", 0, "upper bound for between/not_between")
	f.StringVar(&ruleOperand, "operand", "", "substring, regex or expression")
	f.StringVar(&ruleSeverity, "severity", string(models.SeverityCritical), "severity on match")
	f.StringVar(&ruleMessage, "message", "", "anomaly reason on match")
	f.BoolVar(&ruleNormal, "normal", false, "mark the rule as informational (not abnormal)")
	f.BoolVar(&ruleInactive, "inactive", false, "store the rule deactivated")
	rulesAddCmd.MarkFlagRequired("template")

	rulesListCmd.Flags().Int64Var(&ruleTemplateID, "template", 0, "only rules of this template")
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	rule := models.NewRule(ruleTemplateID, models.RuleKind(ruleKind))
	rule.Field = ruleField
	rule.Op = ruleOp
	if cmd.Flags().Changed("value") {
		v := ruleValue
		rule.Value = &v
	}
	if cmd.Flags().Changed("value2") {
		v := ruleValue2
		rule.Value2 = &v
	}
	rule.Operand = ruleOperand
	rule.Severity = models.Severity(ruleSeverity)
	rule.Message = ruleMessage
	rule.IsAbnormal = !ruleNormal
	rule.Active = !ruleInactive

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := rules.Add(cmd.Context(), st, rule); err != nil {
		return err
	}
	fmt.Printf("Created rule %d on template %d\n", rule.ID, rule.TemplateID)
	return nil
}

func runRulesList(cmd *cobra.Command, args []string) error {
	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	var list []*models.Rule
	if ruleTemplateID > 0 {
		list, err = st.Rules().ListByTemplate(cmd.Context(), ruleTemplateID)
	} else {
		list, err = st.Rules().List(cmd.Context())
	}
	if err != nil {
		return err
	}

	if jsonOutput() {
		data, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTEMPLATE\tKIND\tCONDITION\tSEVERITY\tABNORMAL\tACTIVE\tMESSAGE")
	for _, r := range list {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%t\t%t\t%s\n",
			r.ID, r.TemplateID, r.Kind, describeCondition(r), r.Severity, r.IsAbnormal, r.Active, dash(r.Message))
	}
	return w.Flush()
}

func describeCondition(r *models.Rule) string {
	field := r.Field
	if field == "" {
		field = "message"
	}
	switch r.Kind {
	case models.RuleThreshold:
		switch r.Op {
		case models.OpBetween, models.OpNotBetween:
			return fmt.Sprintf("%s %s [%s, %s]", field, r.Op, formatBound(r.Value), formatBound(r.Value2))
		default:
			return fmt.Sprintf("%s %s %s", field, r.Op, formatBound(r.Value))
		}
	case models.RuleContains:
		return fmt.Sprintf("%s contains %q", field, r.Operand)
	case models.RuleRegex:
		return fmt.Sprintf("%s =~ /%s/", field, r.Operand)
	default:
		return r.Operand
	}
}

func formatBound(v *float64) string {
	if v == nil {
		return "?"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func setRuleActive(cmd *cobra.Command, arg string, active bool) error {
	id, err := parseID(arg, "rule")
	if err != nil {
		return err
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Rules().SetActive(cmd.Context(), id, active); err != nil {
		return err
	}
	state := "disabled"
	if active {
		state = "enabled"
	}
	fmt.Printf("Rule %d %s\n", id, state)
	return nil
}

func runRulesDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "rule")
	if err != nil {
		return err
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Rules().Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Rule %d deleted\n", id)
	return nil
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	list, err := rules.LoadRulesFromFile(args[0])
	if err != nil {
		return err
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	err = storage.WithTx(ctx, st, func(tx storage.Tx) error {
		for i, r := range list {
			if err := rules.Add(ctx, tx, r); err != nil {
				return fmt.Errorf("rule %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d rules\n", len(list))
	return nil
}
