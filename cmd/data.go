package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"ddbridge/internal/common"
	"ddbridge/internal/frame"
	"ddbridge/internal/loader"
	"ddbridge/internal/schema"
	"ddbridge/internal/ui"
	"ddbridge/pkg/errors"
)

var downloadCmd = &cobra.Command{
	Use:   "download DATASET.TABLE",
	Short: "Read a whole table",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(false, runDownload),
}

var uploadCmd = &cobra.Command{
	Use:   "upload DATASET.TABLE",
	Short: "Load an NDJSON or CSV file into a table",
	Long: `Load a file into a table in one bulk load. Tables with JSON columns are
loaded through a file staged in the configured bucket.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(true, runUpload),
}

var uploadChunksCmd = &cobra.Command{
	Use:   "upload-chunks DATASET.TABLE",
	Short: "Insert a file into a table in fixed-size batches",
	Long: `Insert a file into a table one batch at a time. A failing batch is
reported and the remaining batches still run.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(false, runUploadChunks),
}

var (
	downloadFormat string
	downloadOutput string
	downloadLimit  int

	uploadFile   string
	uploadSchema string
	uploadWrite  string
	uploadBucket string
	uploadYes    bool
	chunkSize    int
)

func init() {
	rootCmd.AddCommand(downloadCmd, uploadCmd, uploadChunksCmd)

	downloadCmd.Flags().StringVar(&downloadFormat, "format", "table", "Output format: table, ndjson or csv")
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "Write to a file instead of stdout")
	downloadCmd.Flags().IntVar(&downloadLimit, "limit", 50, "Rows shown by the table format")

	for _, c := range []*cobra.Command{uploadCmd, uploadChunksCmd} {
		c.Flags().StringVarP(&uploadFile, "file", "f", "", "NDJSON (.json, .ndjson) or CSV (.csv) file to load")
		c.Flags().StringVar(&uploadSchema, "schema", "", "JSON schema file; defaults to the table's own schema")
		c.Flags().StringVarP(&uploadWrite, "write", "w", "append", "append or truncate")
		c.Flags().BoolVarP(&uploadYes, "yes", "y", false, "Do not ask before truncating")
		_ = c.MarkFlagRequired("file")
	}
	uploadCmd.Flags().StringVar(&uploadBucket, "bucket", "", "Staging bucket (default staging.bucket)")
	uploadChunksCmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Rows per batch (default load.chunk_size)")
}

func runDownload(cmd *cobra.Command, a *app, args []string) error {
	dataset, table, err := splitTable(args[0])
	if err != nil {
		return err
	}
	f, err := a.loader.Download(cmd.Context(), dataset, table)
	if err != nil {
		return err
	}

	var w io.Writer = ui.Output
	if downloadOutput != "" {
		path, err := common.CleanPath(downloadOutput)
		if err != nil {
			return errors.InvalidArgument("output", err.Error())
		}
		fh, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, common.FilePermissionNormal)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer fh.Close()
		w = fh
	}

	switch downloadFormat {
	case "ndjson", "json":
		return f.WriteNDJSON(w)
	case "csv":
		return f.WriteCSV(w)
	case "table":
		ui.RenderFrame(w, f, downloadLimit)
		return nil
	default:
		return errors.InvalidArgument("format", fmt.Sprintf("%q is not one of table, ndjson, csv", downloadFormat))
	}
}

// uploadRequest reads the input file and resolves the schema and intent
// shared by both upload commands.
func uploadRequest(cmd *cobra.Command, a *app, arg string) (loader.UploadRequest, error) {
	dataset, table, err := splitTable(arg)
	if err != nil {
		return loader.UploadRequest{}, err
	}
	intent, err := loader.ParseIntent(uploadWrite)
	if err != nil {
		return loader.UploadRequest{}, err
	}

	var cols []schema.ColumnSchema
	if uploadSchema != "" {
		cols, err = readSchemaFile(uploadSchema)
	} else {
		cols, err = a.reader.ReadWarehouseSchema(cmd.Context(), dataset, table)
	}
	if err != nil {
		return loader.UploadRequest{}, err
	}

	f, err := readFrameFile(uploadFile, schema.Names(cols))
	if err != nil {
		return loader.UploadRequest{}, err
	}

	if intent == loader.IntentTruncate && !uploadYes && ui.IsInteractive() {
		ok, err := ui.Confirm(fmt.Sprintf("Replace all rows of %s.%s?", dataset, table), false)
		if err != nil {
			return loader.UploadRequest{}, err
		}
		if !ok {
			return loader.UploadRequest{}, errors.New(errors.ErrCodeInvalidArgument, "upload cancelled")
		}
	}

	bucket := uploadBucket
	if bucket == "" {
		bucket = a.cfg.Staging.Bucket
	}
	return loader.UploadRequest{
		Frame:   f,
		Schema:  cols,
		Dataset: dataset,
		Table:   table,
		Intent:  intent,
		Bucket:  bucket,
	}, nil
}

func runUpload(cmd *cobra.Command, a *app, args []string) error {
	req, err := uploadRequest(cmd, a, args[0])
	if err != nil {
		return err
	}

	spinner := ui.NewSpinner(fmt.Sprintf("Loading %d rows into %s.%s", req.Frame.Len(), req.Dataset, req.Table))
	spinner.Start()
	res, err := a.loader.Upload(cmd.Context(), req)
	if err != nil {
		spinner.Stop(false, "load failed")
		return err
	}
	spinner.Stop(true, fmt.Sprintf("%d rows loaded (%s)", res.Rows, res.Path))

	if res.URI != "" {
		ui.PrintKeyValue("Staged file", res.URI)
		ui.PrintKeyValue("Table rows", fmt.Sprintf("%d", res.TableRows))
	}
	return nil
}

func runUploadChunks(cmd *cobra.Command, a *app, args []string) error {
	req, err := uploadRequest(cmd, a, args[0])
	if err != nil {
		return err
	}
	size := chunkSize
	if size == 0 {
		size = a.cfg.Load.ChunkSize
	}

	report, err := a.loader.UploadChunks(cmd.Context(), size, req)
	if err != nil {
		return err
	}
	ui.RenderChunkReport(ui.Output, report)

	if failed := report.Failed(); len(failed) > 0 {
		return errors.New(errors.ErrCodeSQLExecution,
			fmt.Sprintf("%d of %d batches failed", len(failed), len(report.Chunks))).
			WithContext("table", req.Dataset+"."+req.Table)
	}
	return nil
}

func readFrameFile(name string, columns []string) (*frame.Frame, error) {
	path, err := common.CleanPath(name)
	if err != nil {
		return nil, errors.InvalidArgument("file", err.Error())
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer fh.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		f, err := frame.ReadCSV(fh)
		if err != nil {
			return nil, errors.InvalidArgument("file", err.Error())
		}
		return f, nil
	}
	f, err := frame.ReadNDJSON(fh, columns)
	if err != nil {
		return nil, errors.InvalidArgument("file", err.Error())
	}
	return f, nil
}

func readSchemaFile(name string) ([]schema.ColumnSchema, error) {
	path, err := common.CleanPath(name)
	if err != nil {
		return nil, errors.InvalidArgument("schema", err.Error())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	var cols []schema.ColumnSchema
	if err := json.Unmarshal(data, &cols); err != nil {
		return nil, errors.InvalidArgument("schema", err.Error())
	}
	return cols, nil
}
