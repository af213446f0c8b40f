package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/bookmeta/internal/observability"
	"github.com/jonathan/bookmeta/internal/query"
	"github.com/jonathan/bookmeta/internal/source"
	"github.com/jonathan/bookmeta/internal/types"
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Look up one book and print its metadata record",
	Long: "Look up a book by title and authors, or by catalog id, and print the resolved metadata record. " +
		"With --cover-out the cover image is downloaded as well.",
	Example: `  bookmeta identify --title "Dracula" --author "Bram Stoker"
  bookmeta identify --id 240640 --json --cover-out dracula.jpg`,
	RunE: runIdentify,
}

var (
	identifyTitle    string
	identifyAuthors  []string
	identifyID       string
	identifyCoverOut string
	identifyJSON     bool
	identifyNoCache  bool
)

func init() {
	identifyCmd.Flags().StringVarP(&identifyTitle, "title", "t", "", "Book title")
	identifyCmd.Flags().StringArrayVarP(&identifyAuthors, "author", "a", nil, "Author name (repeatable)")
	identifyCmd.Flags().StringVar(&identifyID, "id", "", "Catalog id; skips the search cascade")
	identifyCmd.Flags().StringVarP(&identifyCoverOut, "cover-out", "o", "", "Write the cover image to this path")
	identifyCmd.Flags().BoolVar(&identifyJSON, "json", false, "Print the record as JSON")
	identifyCmd.Flags().BoolVar(&identifyNoCache, "no-cache", false, "Bypass the response cache")

	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, _ []string) error {
	req := newIdentifyRequest(identifyTitle, identifyAuthors, identifyID)
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg, logger, !identifyNoCache)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	printer := observability.NewPrinter(cmd.ErrOrStderr())
	if cfg.Verbose && req.CatalogID() == "" {
		printer.PrintCandidates(query.BuildCandidates(req.Title, req.Authors))
	}

	record, err := identifyOne(cmd.Context(), a.source, req, cfg.Timeout(), identifyCoverOut)
	if err != nil {
		return err
	}

	if identifyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}
	observability.NewPrinter(out).PrintRecord(record)
	return nil
}

// newIdentifyRequest builds a request from flag values, dropping blank authors.
func newIdentifyRequest(title string, authors []string, id string) types.IdentifyRequest {
	req := types.IdentifyRequest{Title: strings.TrimSpace(title)}
	for _, a := range authors {
		if a = strings.TrimSpace(a); a != "" {
			req.Authors = append(req.Authors, a)
		}
	}
	if id = strings.TrimSpace(id); id != "" {
		req.Identifiers = map[string]string{types.IdentifierKey: id}
	}
	return req
}

// identifyOne runs one identify session and, when coverOut is set, downloads the
// cover on the same session.
func identifyOne(ctx context.Context, src *source.Source, req types.IdentifyRequest, timeout time.Duration, coverOut string) (*types.MetadataRecord, error) {
	session := src.NewSession()

	var record *types.MetadataRecord
	if !session.Identify(ctx, req, timeout, source.RecordSinkFunc(func(r *types.MetadataRecord) { record = r })) {
		return nil, fmt.Errorf("no metadata found for %s", describe(req))
	}

	if coverOut == "" {
		return record, nil
	}

	var writeErr error
	delivered := session.DownloadCover(ctx, record.Identifiers, timeout, source.CoverSinkFunc(func(data []byte) {
		writeErr = os.WriteFile(coverOut, data, 0644)
	}))
	if !delivered {
		return record, fmt.Errorf("no cover downloaded for catalog id %s", record.Identifier)
	}
	if writeErr != nil {
		return record, fmt.Errorf("failed to write cover: %w", writeErr)
	}
	return record, nil
}

func describe(req types.IdentifyRequest) string {
	if id := req.CatalogID(); id != "" {
		return "catalog id " + id
	}
	if len(req.Authors) > 0 {
		return fmt.Sprintf("%q by %s", req.Title, strings.Join(req.Authors, ", "))
	}
	return fmt.Sprintf("%q", req.Title)
}
