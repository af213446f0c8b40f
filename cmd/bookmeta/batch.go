package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/bookmeta/internal/observability"
	"github.com/jonathan/bookmeta/internal/source"
	"github.com/jonathan/bookmeta/internal/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Look up many books from a tab-separated list",
	Long: `Read one book per line and write one JSON result per line, in input order.

Each input line is: title<TAB>authors<TAB>catalog id
Authors are separated by ';'. Trailing columns may be omitted. Blank lines and
lines starting with '#' are skipped.`,
	RunE: runBatch,
}

var (
	batchIn          string
	batchOut         string
	batchConcurrency int
	batchCoversDir   string
	batchNoCache     bool
)

func init() {
	batchCmd.Flags().StringVarP(&batchIn, "in", "i", "-", "Input file ('-' for stdin)")
	batchCmd.Flags().StringVarP(&batchOut, "out", "o", "-", "Output file ('-' for stdout)")
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 4, "Lookups in flight at once")
	batchCmd.Flags().StringVar(&batchCoversDir, "covers-dir", "", "Download covers into this directory as <id>.jpg")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "Bypass the response cache")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	if batchConcurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1")
	}

	in, closeIn, err := openInput(batchIn, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer closeIn()

	out, closeOut, err := openOutput(batchOut, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOut()

	if batchCoversDir != "" {
		if err := os.MkdirAll(batchCoversDir, 0755); err != nil {
			return fmt.Errorf("failed to create covers directory: %w", err)
		}
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg, logger, !batchNoCache)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := processBatch(cmd.Context(), a.source, in, out, batchOptions{
		Concurrency: batchConcurrency,
		Timeout:     cfg.Timeout(),
		CoversDir:   batchCoversDir,
	})
	observability.NewPrinter(cmd.ErrOrStderr()).PrintBatchSummary(results)
	return err
}

type batchOptions struct {
	Concurrency int
	Timeout     time.Duration
	CoversDir   string
}

// batchItem is one parsed input line.
type batchItem struct {
	Line    int
	Request types.IdentifyRequest
}

// batchLine is one output line.
type batchLine struct {
	Line   int                   `json:"line"`
	Title  string                `json:"title,omitempty"`
	ID     string                `json:"id,omitempty"`
	Record *types.MetadataRecord `json:"record,omitempty"`
	Cover  string                `json:"cover,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// parseBatchLine parses one input line. ok is false for blank and comment lines.
func parseBatchLine(line string) (req types.IdentifyRequest, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return req, false
	}

	cols := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	title := cols[0]
	var authors []string
	if len(cols) > 1 {
		authors = strings.Split(cols[1], ";")
	}
	var id string
	if len(cols) > 2 {
		id = cols[2]
	}
	return newIdentifyRequest(title, authors, id), true
}

func readBatch(in io.Reader) ([]batchItem, error) {
	var items []batchItem
	scanner := bufio.NewScanner(in)
	n := 0
	for scanner.Scan() {
		n++
		if req, ok := parseBatchLine(scanner.Text()); ok {
			items = append(items, batchItem{Line: n, Request: req})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return items, nil
}

// processBatch looks up every input line with bounded concurrency, each in its own
// session, and writes results in input order. Per-line failures are reported in the
// output; the returned error covers input, output and cancellation only.
func processBatch(ctx context.Context, src *source.Source, in io.Reader, out io.Writer, opts batchOptions) ([]observability.BatchResult, error) {
	items, err := readBatch(in)
	if err != nil {
		return nil, err
	}

	lines := make([]batchLine, len(items))
	results := make([]observability.BatchResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lines[i], results[i] = lookupItem(gctx, src, item, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("batch aborted: %w", err)
	}

	for _, l := range lines {
		if err := json.NewEncoder(out).Encode(l); err != nil {
			return results, fmt.Errorf("failed to write output: %w", err)
		}
	}
	return results, nil
}

func lookupItem(ctx context.Context, src *source.Source, item batchItem, opts batchOptions) (batchLine, observability.BatchResult) {
	req := item.Request
	line := batchLine{Line: item.Line, Title: req.Title, ID: req.CatalogID()}
	result := observability.BatchResult{Line: item.Line, Title: req.Title}
	if result.Title == "" {
		result.Title = req.CatalogID()
	}

	fail := func(err error) (batchLine, observability.BatchResult) {
		line.Error = err.Error()
		result.Err = err
		return line, result
	}

	if err := req.Validate(); err != nil {
		return fail(err)
	}

	session := src.NewSession()
	record, err := session.Lookup(ctx, req, opts.Timeout)
	if err != nil {
		return fail(err)
	}
	line.Record = record

	if opts.CoversDir != "" {
		data, err := session.FetchCover(ctx, record.Identifiers, opts.Timeout)
		if err != nil {
			return fail(err)
		}
		path := filepath.Join(opts.CoversDir, record.Identifier+".jpg")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fail(fmt.Errorf("failed to write cover: %w", err))
		}
		line.Cover = path
	}
	return line, result
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
