package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/pavelanni/olympiad/internal/exam"
	appI18n "github.com/pavelanni/olympiad/internal/i18n"
	"github.com/pavelanni/olympiad/internal/model"
	"github.com/pavelanni/olympiad/internal/store"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import exam definitions from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	cmd.Flags().String("db", "olympiad.db", "SQLite database path")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "olympiad.db", "SQLite database path")
	f.String("exam", "", "Only export results for this exam slug")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func resultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print a table of exam results",
		RunE:  runResults,
	}
	f := cmd.Flags()
	f.String("db", "olympiad.db", "SQLite database path")
	f.String("exam", "", "Only show results for this exam slug")
	f.StringP("lang", "l", "en", "Message language (en, vi)")
	addLogFlags(cmd)
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return importFiles(cmd.Context(), db, args)
}

// importFiles loads each exam file, skipping files already imported
// unchanged.
func importFiles(ctx context.Context, db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		report, err := exam.Import(ctx, db, path, data)
		if err != nil {
			return err
		}
		if !report.Unchanged {
			slog.Info("imported exam file", "path", path, "exams", report.Slugs)
		}
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	slug := v.GetString("exam")
	results, err := db.ExportResults(cmd.Context(), slug)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	export := model.ResultsExport{
		GeneratedAt: time.Now().UTC(),
		ExamSlug:    slug,
		Count:       len(results),
		Results:     results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported results", "count", len(results), "output", outPath)
	return nil
}

func runResults(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportResults(cmd.Context(), v.GetString("exam"))
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}

	out := cmd.OutOrStdout()
	renderResults(out, results)
	fmt.Fprintln(out, appI18n.Tp(cmd.Context(), "ResultsCount", len(results)))
	return nil
}

func renderResults(w io.Writer, results []model.ExportedResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"User", "Exam", "Attempt", "Score", "Correct", "Time", "Submitted"})
	for _, r := range results {
		table.Append([]string{
			r.Username,
			r.ExamSlug,
			strconv.Itoa(r.AttemptNumber),
			strconv.FormatFloat(r.Score, 'f', 2, 64),
			fmt.Sprintf("%d/%d", r.CorrectAnswersCount, r.TotalQuestions),
			(time.Duration(r.TimeTaken) * time.Second).String(),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	table.Render()
}
