package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/cloudsdk/cloudxfer/internal/cloud"
	"github.com/cloudsdk/cloudxfer/internal/constants"
	"github.com/cloudsdk/cloudxfer/internal/diskspace"
	"github.com/cloudsdk/cloudxfer/internal/logging"
	"github.com/cloudsdk/cloudxfer/internal/progress"
)

var errDownloadAborted = errors.New("download aborted by user")

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var folder string
	var category int
	var outputDir string
	var maxConcurrent int
	var overwriteAll bool
	var skipAll bool

	cmd := &cobra.Command{
		Use:   "download <name> [name...]",
		Short: "Download files from cloud storage",
		Long: `Download one or more files by name and write them to the output directory.

Examples:
  # Download from the cache folder into the current directory
  cloudxfer download data.json

  # Download several files into ./results, replacing existing ones
  cloudxfer download a.json b.json --outdir ./results --overwrite`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			if maxConcurrent < constants.MinMaxConcurrent || maxConcurrent > constants.MaxMaxConcurrent {
				return fmt.Errorf("--max-concurrent must be between %d and %d, got %d",
					constants.MinMaxConcurrent, constants.MaxMaxConcurrent, maxConcurrent)
			}
			if overwriteAll && skipAll {
				return errors.New("--overwrite and --skip are mutually exclusive")
			}

			mode := DownloadSkipOnce
			switch {
			case overwriteAll:
				mode = DownloadOverwriteAll
			case skipAll:
				mode = DownloadSkipAll
			}

			s, err := newSession(logger)
			if err != nil {
				return err
			}
			defer s.Close()

			d := &downloader{
				session:       s,
				folder:        folder,
				category:      category,
				outputDir:     outputDir,
				maxConcurrent: maxConcurrent,
				mode:          mode,
				in:            bufio.NewReader(os.Stdin),
				out:           cmd.OutOrStdout(),
				logger:        logger,
			}
			return d.run(GetContext(), args)
		},
	}

	cmd.Flags().StringVar(&folder, "folder", constants.FolderCache, "Remote folder")
	cmd.Flags().IntVar(&category, "category", constants.CategoryCache, "Remote category")
	cmd.Flags().StringVarP(&outputDir, "outdir", "o", ".", "Output directory")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 1,
		fmt.Sprintf("Maximum concurrent downloads (%d-%d)", constants.MinMaxConcurrent, constants.MaxMaxConcurrent))
	cmd.Flags().BoolVar(&overwriteAll, "overwrite", false, "Replace existing local files without asking")
	cmd.Flags().BoolVar(&skipAll, "skip", false, "Keep existing local files without asking")

	return cmd
}

// downloader runs one 'download' invocation.
type downloader struct {
	session       *session
	folder        string
	category      int
	outputDir     string
	maxConcurrent int
	in            *bufio.Reader
	out           io.Writer
	logger        *logging.Logger
	space         *diskspace.Guard

	mu   sync.Mutex // guards mode and serializes prompts
	mode DownloadConflictAction
}

func (d *downloader) run(ctx context.Context, names []string) error {
	if d.outputDir == "" {
		d.outputDir = "."
	}
	if d.space == nil {
		d.space = diskspace.NewGuard(constants.DiskSpaceSafetyMargin)
	}
	if err := os.MkdirAll(d.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	d.logger.Info().
		Int("count", len(names)).
		Str("folder", d.folder).
		Str("outdir", d.outputDir).
		Msg("Starting download")

	semaphore := make(chan struct{}, max(d.maxConcurrent, 1))
	var wg sync.WaitGroup
	errs := make([]error, len(names))

	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			errs[i] = d.downloadOne(ctx, name)
		}(i, name)
	}
	wg.Wait()

	var failed int
	for i, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, errDownloadAborted):
			return err
		default:
			failed++
			fmt.Fprintf(d.out, "✗ %s: %v\n", names[i], err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d download(s) failed", failed)
	}
	return nil
}

func (d *downloader) downloadOne(ctx context.Context, name string) error {
	if filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid file name %q", name)
	}
	outPath := filepath.Join(d.outputDir, name)

	write, err := d.resolveConflict(name, outPath)
	if err != nil || !write {
		return err
	}

	result := make(chan cloud.ResponseInfo, 1)
	t, err := d.session.client.Download(ctx, d.folder, name, d.category, d.session.token,
		cloud.ResponseFunc(func(r cloud.ResponseInfo) { result <- r }))
	if err != nil {
		return err
	}
	t.Wait()

	r := <-result
	if r.Failed() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return cloud.ErrResolveFailed
	}

	release, err := d.space.Reserve(outPath, int64(len(r.Content)))
	if err != nil {
		return err
	}
	defer release()

	tracker := progress.Discard()
	if d.maxConcurrent == 1 {
		tracker = progress.NewDownloadBar(os.Stderr, name, int64(len(r.Content)))
	}
	if err := writeDownload(outPath, r.Content, tracker); err != nil {
		return err
	}

	fmt.Fprintf(d.out, "✓ %s → %s (%d bytes)\n", name, outPath, len(r.Content))
	return nil
}

// resolveConflict decides whether outPath may be written.
func (d *downloader) resolveConflict(name, outPath string) (bool, error) {
	if _, err := os.Stat(outPath); err != nil {
		return true, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	action := d.mode
	if action == DownloadSkipOnce || action == DownloadOverwriteOnce {
		var err error
		action, err = promptDownloadConflict(d.in, d.out, name, outPath)
		if err != nil {
			return false, fmt.Errorf("conflict prompt failed: %w", err)
		}
		if action == DownloadSkipAll || action == DownloadOverwriteAll {
			d.mode = action
		}
	}

	switch action {
	case DownloadOverwriteOnce, DownloadOverwriteAll:
		return true, nil
	case DownloadAbort:
		return false, errDownloadAborted
	default:
		fmt.Fprintf(d.out, "⊘ Skipping existing file: %s\n", outPath)
		return false, nil
	}
}

// writeDownload writes content to path through a temporary file in the same
// directory, counting the bytes on tracker.
func writeDownload(path, content string, tracker progress.Tracker) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(io.MultiWriter(tmp, tracker), strings.NewReader(content))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	tracker.Done(err)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
