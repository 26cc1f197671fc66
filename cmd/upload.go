package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/audiolibrelab/gazecapture/internal/archive"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <attempt-dir>",
	Short: "Archive a finalized attempt to S3",
	Long: `Upload every file of a finalized attempt to the configured S3 bucket under
<prefix>/<session>/<attempt>/. Credentials come from the usual AWS sources
(environment, shared config, instance role).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket, _ := cmd.Flags().GetString("bucket")
		if err := uploadAttempt(cmd.Context(), args[0], bucket); err != nil {
			return err
		}
		return executePipeline(cmd.Context(), args[0], 'u')
	},
}

func uploadAttempt(ctx context.Context, dir, bucket string) error {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	ac := archive.Config{
		Bucket:       cfg.Archive.Bucket,
		Prefix:       cfg.Archive.Prefix,
		Region:       cfg.Archive.Region,
		Endpoint:     cfg.Archive.Endpoint,
		UsePathStyle: cfg.Archive.UsePathStyle,
	}
	if bucket != "" {
		ac.Bucket = bucket
	}

	uploader, err := archive.New(ctx, ac)
	if err != nil {
		return err
	}

	total, err := dirSize(dir)
	if err != nil {
		return err
	}
	bar := progressbar.DefaultBytes(total, "uploading")
	uploader.OnFile = func(name string, size int64) {
		bar.Add64(size)
	}

	base := archive.KeyBase(cfg.RecordingsDirectory, dir)
	slog.Info("Uploading attempt", "dir", dir, "bucket", ac.Bucket, "key", base)

	res, err := uploader.Upload(ctx, dir, base)
	bar.Finish()
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	fmt.Println(successStyle.Render("✓ ") + fmt.Sprintf("%d files, %s to s3://%s", len(res.Keys), formatSize(res.Bytes), res.Bucket))
	for _, key := range res.Keys {
		fmt.Println(mutedStyle.Render("  " + key))
	}
	return nil
}

func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read attempt: %w", err)
	}
	var total int64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	return total, nil
}

func init() {
	uploadCmd.Flags().String("bucket", "", "bucket to upload to (overrides config)")
}
