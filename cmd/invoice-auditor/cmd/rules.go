package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect rule files",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate a rule file and print its summary",
	Long: `Load a rule file the way validate and serve do and print the effective rules.

Without an argument the configured rule file is checked. A broken file exits
with code 2 and names the offending key.

Examples:
  invoice-auditor rules check
  invoice-auditor rules check rules.yaml -f table`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRulesCheck,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesCheckCmd)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	path := cfg.Rules.Path
	if len(args) == 1 {
		path = args[0]
	}

	rs, err := rules.LoadFile(path)
	if err != nil {
		return err
	}
	printVerbose("Rule file %s is valid\n", path)

	return writeSummary(os.Stdout, outputFormat, rules.Summarize(rs))
}

func writeSummary(w io.Writer, format string, s *rules.Summary) error {
	switch format {
	case "json":
		return outputJSON(w, s)
	case "table", "csv":
		return summaryTable(w, s)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func summaryTable(w io.Writer, s *rules.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Fingerprint:\t%s\n", s.Fingerprint)
	fmt.Fprintf(tw, "Header fields:\t%s\n", strings.Join(s.RequiredHeaderFields, ", "))
	fmt.Fprintf(tw, "Line item fields:\t%s\n", strings.Join(s.RequiredLineItemFields, ", "))
	fmt.Fprintf(tw, "Currencies:\t%s\n", strings.Join(s.AcceptedCurrencies, ", "))
	if s.DefaultCurrency != "" {
		fmt.Fprintf(tw, "Default currency:\t%s\n", s.DefaultCurrency)
	}
	fmt.Fprintf(tw, "Identifier field:\t%s\n", s.IdentifierField)
	fmt.Fprintf(tw, "Min confidence:\t%.2f\n", s.MinConfidence)

	fmt.Fprintln(tw, "\nFIELD\tTYPE")
	fields := make([]string, 0, len(s.FieldTypes))
	for f := range s.FieldTypes {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		fmt.Fprintf(tw, "%s\t%s\n", f, s.FieldTypes[f])
	}

	fmt.Fprintln(tw, "\nDISCREPANCY\tACTION")
	for _, kind := range model.AllKinds {
		fmt.Fprintf(tw, "%s\t%s\n", kind, s.Policies[string(kind)])
	}

	fmt.Fprintln(tw, "\nTOLERANCE\tVALUE")
	for _, kind := range rules.ToleranceKinds {
		fmt.Fprintf(tw, "%s\t%s\n", kind, s.Tolerances[string(kind)])
	}

	return tw.Flush()
}
