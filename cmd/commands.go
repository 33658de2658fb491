package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tenkings/setops-ingest/internal/discovery"
	"github.com/tenkings/setops-ingest/internal/ingest"
	"github.com/tenkings/setops-ingest/internal/setops"
	"github.com/tenkings/setops-ingest/internal/source"
)

func writeOutput(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// cliError prefixes the operator-facing message with its kind for terminal output.
func cliError(err error) error {
	if kind := setops.KindOf(err); kind != "" {
		return fmt.Errorf("%s: %w", kind, err)
	}
	return err
}

func newSearchCmd() *cobra.Command {
	var q discovery.Query
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the web for checklist sources of a set",
		Example: `  setops search --year 2023 --manufacturer Topps --sport Baseball
  setops search --query "2024 Bowman Chrome" --limit 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			results, err := a.Searcher().SearchSetSources(cmd.Context(), q)
			if err != nil {
				return cliError(err)
			}
			a.Logger().Info("search finished", zap.Int("results", len(results)))
			return writeOutput(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().IntVar(&q.Year, "year", 0, "set year")
	cmd.Flags().StringVar(&q.Manufacturer, "manufacturer", "", "manufacturer, e.g. Topps")
	cmd.Flags().StringVar(&q.Sport, "sport", "", "sport, e.g. Baseball")
	cmd.Flags().StringVar(&q.Query, "query", "", "free-text query")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum results (default from config)")
	return cmd
}

func newImportCmd() *cobra.Command {
	var (
		params  ingest.ImportParams
		dataset string
		file    string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a checklist source into a queued ingestion job",
		Example: `  setops import --url https://example.com/2023-topps-chrome-checklist.pdf --dataset PARALLEL_DB
  setops import --file ./bowman.csv --set-id "2024 Bowman" --dataset PLAYER_WORKSHEET`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			params.DatasetType = setops.DatasetType(dataset)
			var res ingest.Result
			switch {
			case file != "":
				upload, readErr := readUpload(file)
				if readErr != nil {
					return readErr
				}
				res, err = a.Importer().ImportUploadedFile(cmd.Context(), params, upload)
			case params.SourceURL != "":
				res, err = a.Importer().ImportDiscoveredSource(cmd.Context(), params)
			default:
				return errors.New("one of --url or --file is required")
			}
			if err != nil {
				return cliError(err)
			}
			a.Logger().Info("import queued",
				zap.String("job_id", res.Job.ID),
				zap.String("set_id", res.Job.SetID),
			)
			return writeOutput(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&params.SourceURL, "url", "", "source URL to fetch")
	cmd.Flags().StringVar(&file, "file", "", "local file to upload instead of fetching")
	cmd.Flags().StringVar(&params.SetID, "set-id", "", "set ID (inferred from the source when empty)")
	cmd.Flags().StringVar(&dataset, "dataset", string(setops.DatasetParallelDB), "dataset type: PARALLEL_DB or PLAYER_WORKSHEET")
	cmd.Flags().StringVar(&params.SourceProvider, "provider", "", "discovery provider that found the source")
	cmd.Flags().StringVar(&params.SourceTitle, "title", "", "source title")
	cmd.Flags().StringVar(&params.ParserVersion, "parser-version", "", "parser version override")
	cmd.Flags().StringVar(&params.DiscoveryQuery, "query", "", "discovery query that found the source")
	cmd.Flags().StringVar(&params.CreatedByID, "created-by", "", "operator ID")
	cmd.MarkFlagsMutuallyExclusive("url", "file")
	return cmd
}

type parseOutput struct {
	FileName   string          `json:"fileName"`
	ParserName string          `json:"parserName"`
	Title      string          `json:"title,omitempty"`
	RowCount   int             `json:"rowCount"`
	Rows       []setops.Record `json:"rows"`
}

func newParseCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a local checklist file without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			upload, err := readUpload(args[0])
			if err != nil {
				return err
			}
			parsed, err := a.Parser().ParseUploadedSourceFile(upload)
			if err != nil {
				return cliError(err)
			}
			rows := parsed.Rows
			if limit > 0 && len(rows) > limit {
				rows = rows[:limit]
			}
			return writeOutput(cmd.OutOrStdout(), parseOutput{
				FileName:   upload.FileName,
				ParserName: parsed.ParserName,
				Title:      parsed.Title,
				RowCount:   len(parsed.Rows),
				Rows:       rows,
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", ingest.PreviewRows, "rows to print (0 prints all)")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func readUpload(path string) (source.UploadedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return source.UploadedFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	return source.UploadedFile{FileName: filepath.Base(path), Buffer: data}, nil
}
