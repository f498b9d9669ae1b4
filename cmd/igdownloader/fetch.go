package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"igdownloader/internal/app"
	"igdownloader/internal/downloader"
	"igdownloader/internal/relay"
	"igdownloader/pkg/config"
	igerrors "igdownloader/pkg/errors"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/metadata"
	"igdownloader/pkg/models"
	"igdownloader/pkg/platform"
	"igdownloader/pkg/ratelimit"
	"igdownloader/pkg/scraper"
	"igdownloader/pkg/storage"
	"igdownloader/pkg/ui"
)

// media CDN requests made by --save
const (
	mediaDownloadsPerSecond = 2
	mediaDownloadBurst      = 2
)

var (
	saveMedia      bool
	fetchOutputDir string
	fetchWorkers   int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Resolve one post URL and print its media as JSON",
	Long: `Resolve one Instagram post, reel or story URL and print the result
envelope as JSON on stdout.

With --save every media item is downloaded into the output directory as
<id>.<format> with a <id>.json metadata sidecar. Items already present are
skipped.`,
	Example: `  # Print the media of a post
  igdownloader fetch https://www.instagram.com/p/C1a2b3c4d5/

  # Download everything into ./photos with 5 workers
  igdownloader fetch https://www.instagram.com/reel/C1a2b3c4d5/ --save -o ./photos --concurrent 5`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().BoolVar(&saveMedia, "save", false, "download the media items")
	fetchCmd.Flags().StringVarP(&fetchOutputDir, "output", "o", "", "output directory for --save")
	fetchCmd.Flags().IntVar(&fetchWorkers, "concurrent", 0, "number of concurrent downloads")
}

// envelope mirrors the POST /download response body
type envelope struct {
	Success   bool                   `json:"success"`
	Data      *models.DownloadResult `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
	Meta      envelopeMeta           `json:"meta"`
}

type envelopeMeta struct {
	RequestID     string               `json:"requestId,omitempty"`
	Cached        bool                 `json:"cached"`
	Duration      int64                `json:"duration"`
	RateLimitInfo models.RateLimitInfo `json:"rateLimitInfo"`
}

func newEnvelope(resp *scraper.Response) envelope {
	env := envelope{
		Success: resp.Err == nil,
		Data:    resp.Data,
		Meta: envelopeMeta{
			RequestID:     resp.RequestID,
			Cached:        resp.Cached,
			Duration:      resp.Duration.Milliseconds(),
			RateLimitInfo: resp.RateLimit,
		},
	}
	if resp.Err != nil {
		env.Error = resp.Err.Message
		env.Code = resp.Err.Code
		env.Retryable = resp.Err.Retryable
	}
	return env
}

func writeEnvelope(w io.Writer, env envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

func runFetch(cmd *cobra.Command, args []string) error {
	flags := map[string]interface{}{}
	if fetchOutputDir != "" {
		flags["output"] = fetchOutputDir
	}
	if fetchWorkers > 0 {
		flags["concurrent"] = fetchWorkers
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	rawURL := args[0]
	if p := platform.Detect(rawURL); !p.Supported() {
		return igerrors.PlatformNotSupported(p.DisplayName())
	}

	orch := scraper.New(cfg, app.NewBackend(cfg, log), log)
	resp := orch.FetchMedia(cmd.Context(), rawURL)

	if err := writeEnvelope(cmd.OutOrStdout(), newEnvelope(resp)); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	if resp.Err != nil {
		return resp.Err
	}

	out.Info("Post", resp.Data.SourceURL)
	if resp.Data.Caption != "" {
		out.Info("Caption", ui.Truncate(resp.Data.Caption, 60))
	}
	out.Info("Media", fmt.Sprintf("%d item(s)", len(resp.Data.Media)))

	if !saveMedia {
		return nil
	}
	return saveAll(cmd.Context(), cfg, resp.Data, afero.NewOsFs(), relay.NewFetcher(cfg.Server.MediaTimeout, cfg.Server.MaxMediaBytes, log), log)
}

// saveAll downloads every item of data into the configured output directory
func saveAll(ctx context.Context, cfg *config.Config, data *models.DownloadResult, fs afero.Fs, fetcher downloader.MediaFetcher, log logger.Logger) error {
	store, err := storage.NewManager(fs, cfg.Download.OutputDir)
	if err != nil {
		return err
	}

	sidecars := metadata.NewStore(store.Fs(), store.OutputDir())
	if removed, err := sidecars.CleanOrphaned(); err != nil {
		log.WithError(err).Warn("Failed to clean orphaned metadata")
	} else if removed > 0 {
		out.Line("  %s %d orphaned metadata files", out.Dim("removed"), removed)
	}

	out.Highlight("Downloading to " + store.OutputDir())
	results := downloader.DownloadAll(ctx, data, cfg.Download.ConcurrentDownloads, fetcher, store, log,
		downloader.WithSidecars(sidecars),
		downloader.WithLimiter(ratelimit.NewSteady(mediaDownloadsPerSecond, mediaDownloadBurst)),
	)

	saved, skipped, failed := summarize(results)
	for _, r := range results {
		switch {
		case r.Err != nil:
			out.Error(r.Job.Item.ID, r.Err)
		case r.Skipped:
			out.Line("  %s %s", out.Dim("skip"), r.Job.Item.ID)
		default:
			out.Line("  %s %s (%s)", out.Green("saved"), r.Path, r.Job.Item.EstimatedSizeLabel)
		}
	}
	out.Line("%s saved=%d skipped=%d failed=%d", ui.Progress(saved+skipped, len(results), 20), saved, skipped, failed)
	out.Info("Library", fmt.Sprintf("%d files in %s", store.Count(), store.OutputDir()))

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(results))
	}
	out.Success("All media saved")
	return nil
}

func summarize(results []downloader.Result) (saved, skipped, failed int) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Skipped:
			skipped++
		default:
			saved++
		}
	}
	return saved, skipped, failed
}
