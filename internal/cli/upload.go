package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/cloudsdk/cloudxfer/internal/constants"
	"github.com/cloudsdk/cloudxfer/internal/logging"
	"github.com/cloudsdk/cloudxfer/internal/progress"
)

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var folder string
	var category int
	var maxConcurrent int

	cmd := &cobra.Command{
		Use:   "upload <file> [file...]",
		Short: "Upload files to cloud storage",
		Long: `Upload one or more files. Each file is stored under its base name in
the given folder and category.

Files above the size limit (30 MiB by default) are rejected unless the
category is the bulk category (1000).

Examples:
  # Upload to the cache folder
  cloudxfer upload data.json

  # Upload several files, two at a time
  cloudxfer upload *.json --max-concurrent 2

  # Upload a large bundle to the bulk category
  cloudxfer upload assets.bundle --folder MobileResource --category 1000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			if cmd.Flags().Changed("max-concurrent") &&
				(maxConcurrent < constants.MinMaxConcurrent || maxConcurrent > constants.MaxMaxConcurrent) {
				return fmt.Errorf("--max-concurrent must be between %d and %d, got %d",
					constants.MinMaxConcurrent, constants.MaxMaxConcurrent, maxConcurrent)
			}

			paths, err := expandGlobPatterns(args)
			if err != nil {
				return err
			}

			s, err := newSession(logger)
			if err != nil {
				return err
			}
			defer s.Close()

			if !cmd.Flags().Changed("max-concurrent") {
				maxConcurrent = s.cfg.Transfer.MaxConcurrent
			}

			ui := progress.NewUploadUI(len(paths))
			return executeUpload(GetContext(), s, paths, folder, category, maxConcurrent, ui, logger)
		},
	}

	cmd.Flags().StringVar(&folder, "folder", constants.FolderCache, "Remote folder")
	cmd.Flags().IntVar(&category, "category", constants.CategoryCache, "Remote category")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", constants.DefaultMaxConcurrent,
		fmt.Sprintf("Maximum concurrent uploads (%d-%d)", constants.MinMaxConcurrent, constants.MaxMaxConcurrent))

	return cmd
}

// expandGlobPatterns expands glob patterns like *.zip, even when quoted.
// Returns a deduplicated list of absolute paths.
func expandGlobPatterns(patterns []string) ([]string, error) {
	var expanded []string
	seen := make(map[string]bool)

	add := func(p string) error {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", p, err)
		}
		if !seen[abs] {
			expanded = append(expanded, abs)
			seen[abs] = true
		}
		return nil
	}

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[]") {
			if err := add(pattern); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", pattern)
		}
		for _, m := range matches {
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}

	return expanded, nil
}

// executeUpload uploads paths with at most maxConcurrent transfers in flight.
// Every file gets a line or bar on ui; the error counts the failed files.
func executeUpload(
	ctx context.Context,
	s *session,
	paths []string,
	folder string,
	category int,
	maxConcurrent int,
	ui *progress.UploadUI,
	logger *logging.Logger,
) error {
	// Validate all files exist before starting upload
	sizes := make([]int64, len(paths))
	for i, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("file not found: %s", p)
		}
		if info.IsDir() {
			return fmt.Errorf("'%s' is a directory, not a file", p)
		}
		sizes[i] = info.Size()
	}

	logger.Info().
		Int("count", len(paths)).
		Str("folder", folder).
		Int("category", category).
		Msg("Starting upload")

	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	semaphore := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for i, p := range paths {
		wg.Add(1)
		go func(path string, size int64) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			bar := ui.AddFileBar(path, folder, size)
			if ctx.Err() != nil {
				bar.Complete(ctx.Err())
				return
			}

			t, err := s.client.UploadFile(ctx, folder, path, category, s.token, bar)
			if err != nil {
				bar.Complete(err)
				return
			}
			t.Wait()
		}(p, sizes[i])
	}

	wg.Wait()
	ui.Wait()

	completed, failed := ui.Counts()
	fmt.Fprintf(ui.Writer(), "\nUploaded %d of %d file(s)\n", completed, len(paths))
	if failed > 0 {
		return fmt.Errorf("%d upload(s) failed", failed)
	}
	return nil
}
