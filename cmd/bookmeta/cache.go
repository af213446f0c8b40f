package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/bookmeta/internal/db"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Maintain the catalog response cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired cached responses",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd, func(ctx context.Context, database *db.DB, _ *slog.Logger) error {
			n, err := database.DeleteExpiredResponses(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired responses\n", n)
			return err
		})
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <url>",
	Short: "Show the cache entry for a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, func(ctx context.Context, database *db.DB, _ *slog.Logger) error {
			r, err := database.GetResponseByURL(ctx, args[0])
			if err != nil {
				return err
			}
			if r == nil {
				return fmt.Errorf("no cache entry for %s", args[0])
			}
			return printCacheEntry(cmd.OutOrStdout(), r)
		})
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <url>...",
	Short: "Drop cached responses so the next lookup refetches them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, func(ctx context.Context, database *db.DB, logger *slog.Logger) error {
			var errs []error
			for _, u := range args {
				if err := database.InvalidateResponse(ctx, u); err != nil {
					errs = append(errs, err)
					continue
				}
				logger.Info("invalidated cached response", "url", u)
			}
			return errors.Join(errs...)
		})
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd, cacheShowCmd, cacheInvalidateCmd)
	rootCmd.AddCommand(cacheCmd)
}

// withCache connects to the configured response cache and runs fn.
func withCache(cmd *cobra.Command, fn func(context.Context, *db.DB, *slog.Logger) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or database_url config is required")
	}

	ctx := cmd.Context()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx); err != nil {
		return err
	}
	return fn(ctx, database, logger)
}

func printCacheEntry(w io.Writer, r *db.CachedResponse) error {
	status := "-"
	if r.HTTPStatus != nil {
		status = strconv.Itoa(*r.HTTPStatus)
	}
	expires := "-"
	if r.ExpiresAt != nil {
		expires = r.ExpiresAt.Format(time.RFC3339)
	}

	_, err := fmt.Fprintf(w,
		"url:         %s\nfetch:       %s\nhttp status: %s\nbytes:       %d\nhash:        %s\nretries:     %d\nfetched at:  %s\nexpires at:  %s\n",
		r.URL, r.FetchStatus, status, len(r.Body), deref(r.ContentHash), r.RetryCount,
		r.FetchedAt.Format(time.RFC3339), expires)
	if err != nil {
		return err
	}
	if r.ErrorMessage != nil && *r.ErrorMessage != "" {
		_, err = fmt.Fprintf(w, "error:       %s\n", *r.ErrorMessage)
	}
	return err
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
