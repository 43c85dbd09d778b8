package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/anime-shed/image-editor-go/internal/config"
	"github.com/anime-shed/image-editor-go/internal/container"
	"github.com/anime-shed/image-editor-go/internal/service"
	"github.com/anime-shed/image-editor-go/pkg/models"
	"github.com/anime-shed/image-editor-go/pkg/validation"
)

// cancelGrace bounds how long an interrupted batch may take to settle
const cancelGrace = 30 * time.Second

func newBatchCmd(logLevel *string) *cobra.Command {
	var op string
	var params []string
	var outDir string

	cmd := &cobra.Command{
		Use:   "batch --op <operation> [--param key=value] <files...>",
		Short: "Run one operation over a set of image files",
		Long: `Adds the files to a fresh gallery, selects all of them and runs a single
batch job against the configured backend (BACKEND_URL, BACKEND_MODE).

Operations: remove_bg, inpaint, upscale, adjust, enhance, restore.`,
		Example: `  imgctl batch --op remove_bg photos/*.png
  imgctl batch --op upscale --param scale=2 --out ./upscaled a.jpg b.jpg
  imgctl batch --op adjust --param property=brightness --param direction=increase a.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}

			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if *logLevel != "" {
				cfg.LogLevel = *logLevel
			}

			c, err := container.NewContainer(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer c.Close()

			return runBatch(cmd.Context(), cmd.OutOrStdout(), c.Editor(), op, parsed, args, outDir)
		},
	}

	cmd.Flags().StringVar(&op, "op", "", "Operation to run")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Operation parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&outDir, "out", "", "Directory to write processed images to")
	_ = cmd.MarkFlagRequired("op")

	return cmd
}

func runBatch(ctx context.Context, w io.Writer, editor *service.Editor, op string, params map[string]any, files []string, outDir string) error {
	uploads := make([]validation.Upload, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		uploads = append(uploads, validation.Upload{Name: filepath.Base(path), Data: data})
	}

	added, err := editor.AddImages(ctx, uploads)
	for _, reason := range added.Skipped {
		fmt.Fprintf(w, "skipped  %s\n", reason)
	}
	if err != nil {
		return err
	}
	for _, item := range added.Added {
		if _, err := editor.ToggleSelection(item.ID); err != nil {
			return err
		}
	}

	job, err := editor.StartBatch(ctx, op, params)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Batch %s started: %s on %d image(s)\n", job.ID, job.Operation.Kind, job.Total)

	final, err := editor.WaitJob(ctx, job.ID)
	if err != nil {
		// Interrupted: stop the job and let it settle so partial results are reported.
		_, _ = editor.CancelBatch()
		settleCtx, cancel := context.WithTimeout(context.Background(), cancelGrace)
		defer cancel()
		if final, err = editor.WaitJob(settleCtx, job.ID); err != nil {
			return err
		}
	}

	names := make(map[string]string, len(added.Added))
	for _, item := range added.Added {
		names[item.ID] = item.Name
	}

	for _, outcome := range final.Outcomes {
		switch outcome.Status {
		case models.StatusCompleted:
			dest := ""
			if outDir != "" {
				dest, err = writeResult(ctx, editor, outcome.ItemID, names[outcome.ItemID], outDir)
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(w, "ok       %s %s\n", names[outcome.ItemID], dest)
		default:
			fmt.Fprintf(w, "failed   %s: %s\n", names[outcome.ItemID], outcome.Error)
		}
	}
	fmt.Fprintf(w, "%d completed, %d failed\n", final.Completed, final.Failed)

	if final.Failed > 0 {
		return fmt.Errorf("%d of %d image(s) failed", final.Failed, final.Total)
	}
	return nil
}

func writeResult(ctx context.Context, editor *service.Editor, itemID, name, outDir string) (string, error) {
	data, contentType, err := editor.ImageData(ctx, itemID, service.VariantResult)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	ext := filepath.Ext(name)
	if m := mimetype.Lookup(contentType); m != nil && m.Extension() != "" {
		ext = m.Extension()
	}
	dest := filepath.Join(outDir, base+ext)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return dest, nil
}

// parseParams turns key=value pairs into operation params. Numeric values
// become numbers, true/false become booleans.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", pair)
		}
		value = strings.TrimSpace(value)

		if f, err := strconv.ParseFloat(value, 64); err == nil {
			params[key] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			params[key] = b
		} else {
			params[key] = value
		}
	}
	return params, nil
}
