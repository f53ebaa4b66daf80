package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/processor"
	"github.com/rezonia/invoice-auditor/internal/report"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

// stdinArg reads records from standard input
const stdinArg = "-"

var (
	outputFile string
	failOn     string
	timeout    time.Duration
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate invoice records",
	Long: `Validate one or more invoice record files against the rule set.

Files may hold a single JSON or YAML record or a list of records. Directories are
walked for .json, .yaml and .yml files and "-" reads from standard input.

The exit code is 1 when any invoice reaches the --fail-on outcome or a file
cannot be read, and 2 when the rule file is invalid.

Examples:
  invoice-auditor validate invoice.json
  invoice-auditor validate invoices/ -f table --fail-on review
  cat batch.json | invoice-auditor validate - -o reports.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	validateCmd.Flags().StringVar(&failOn, "fail-on", "reject", "Fail when an invoice reaches this outcome (reject, review, never)")
	validateCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout for the whole run")
}

func runValidate(cmd *cobra.Command, args []string) error {
	threshold, err := parseFailOn(failOn)
	if err != nil {
		return err
	}

	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to validate")
	}
	printVerbose("Found %d files to validate\n", len(files))

	store, err := rules.OpenStore(cfg.Rules.Path)
	if err != nil {
		return err
	}
	rs, _ := store.Current()
	printVerbose("Rules: %s (%s)\n", cfg.Rules.Path, rs.Fingerprint)

	pipeline := processor.NewPipeline(store,
		processor.WithLogger(log),
		processor.WithWorkers(cfg.Processor.Workers),
	)

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var results []*FileResult
	for _, file := range files {
		printVerbose("Validating: %s\n", file)
		results = append(results, validateFile(ctx, pipeline, file)...)
	}

	if err := outputResults(results); err != nil {
		return err
	}
	return checkResults(results, threshold)
}

// FileResult holds the outcome for one record of an input file
type FileResult struct {
	File   string                   `json:"file"`
	Index  int                      `json:"index"`
	Report *report.ValidationReport `json:"report,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

func validateFile(ctx context.Context, pipeline *processor.Pipeline, path string) []*FileResult {
	data, err := readInput(path)
	if err != nil {
		return []*FileResult{{File: path, Error: fmt.Sprintf("failed to read file: %v", err)}}
	}

	recs, err := processor.DecodeRecords(data)
	if err != nil {
		return []*FileResult{{File: path, Error: err.Error()}}
	}

	batch, err := pipeline.ValidateBatch(ctx, recs)
	if err != nil && batch == nil {
		return []*FileResult{{File: path, Error: err.Error()}}
	}

	out := make([]*FileResult, 0, len(batch))
	for _, r := range batch {
		fr := &FileResult{File: path, Index: r.Index, Report: r.Report}
		if r.Error != nil {
			fr.Error = r.Error.Error()
			log.Warn("invoice not validated", zap.String("file", path), zap.Int("index", r.Index), zap.Error(r.Error))
		}
		out = append(out, fr)
	}
	return out
}

func readInput(path string) ([]byte, error) {
	if path == stdinArg {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		if arg == stdinArg {
			files = append(files, arg)
			continue
		}

		// Check if it's a glob pattern
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}

		if len(matches) == 0 {
			return nil, fmt.Errorf("file not found: %s", arg)
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				continue
			}
			if !info.IsDir() {
				// Explicit files are taken regardless of extension
				files = append(files, match)
				continue
			}
			err = filepath.WalkDir(match, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && isRecordFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return files, nil
}

func isRecordFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// parseFailOn maps --fail-on to the least severe failing status; "" means never
func parseFailOn(s string) (model.Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reject", "rejected":
		return model.StatusRejected, nil
	case "review", "flag", "flagged":
		return model.StatusFlaggedForReview, nil
	case "never", "none":
		return "", nil
	default:
		return "", fmt.Errorf("invalid --fail-on value %q (want reject, review or never)", s)
	}
}

// ThresholdError reports invoices at or above the --fail-on outcome
type ThresholdError struct {
	Status model.Status
	Count  int
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("%d invoice(s) %s or worse", e.Count, e.Status)
}

func checkResults(results []*FileResult, threshold model.Status) error {
	failed, hits := 0, 0
	for _, r := range results {
		switch {
		case r.Error != "" || r.Report == nil:
			failed++
		case threshold != "" && r.Report.Status.Severity() >= threshold.Severity():
			hits++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d record(s) could not be validated", failed)
	}
	if hits > 0 {
		return &ThresholdError{Status: threshold, Count: hits}
	}
	return nil
}

func outputResults(results []*FileResult) error {
	var writer io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		writer = f
	}
	return writeResults(writer, outputFormat, results)
}

func writeResults(w io.Writer, format string, results []*FileResult) error {
	switch format {
	case "json":
		return outputJSON(w, results)
	case "table":
		return outputTable(w, results)
	case "csv":
		return outputCSV(w, results)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func outputTable(w io.Writer, results []*FileResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tINDEX\tINVOICE\tSTATUS\tDISCREPANCIES\tRECOMMENDATION")
	fmt.Fprintln(tw, "----\t-----\t-------\t------\t-------------\t--------------")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\t%d\tERROR: %s\t\t\t\n", r.File, r.Index, r.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\n",
			r.File,
			r.Index,
			r.Report.InvoiceID,
			r.Report.Status,
			len(r.Report.Discrepancies),
			r.Report.Recommendation,
		)
		for _, d := range r.Report.Discrepancies {
			fmt.Fprintf(tw, "\t\t  [%s] %s\t%s\t\t\n", d.Severity, d.Kind, d.Message)
		}
	}

	return tw.Flush()
}

func outputCSV(w io.Writer, results []*FileResult) error {
	cw := csv.NewWriter(w)
	header := []string{"file", "index", "invoice_id", "status", "discrepancies", "kinds", "recommendation", "error"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		row := []string{r.File, strconv.Itoa(r.Index), "", "", "", "", "", r.Error}
		if r.Report != nil {
			kinds := make([]string, 0, len(r.Report.Discrepancies))
			for _, d := range r.Report.Discrepancies {
				kinds = append(kinds, string(d.Kind))
			}
			row[2] = r.Report.InvoiceID
			row[3] = string(r.Report.Status)
			row[4] = strconv.Itoa(len(r.Report.Discrepancies))
			row[5] = strings.Join(kinds, ";")
			row[6] = r.Report.Recommendation
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
