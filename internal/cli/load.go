package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rutmehta/halo"
	"github.com/rutmehta/halo/model"
)

var loadCmd = &cobra.Command{
	Use:   "load <dir>",
	Short: "Bulk-ingest a directory of face images",
	Long: `Ingest every image under the given directory.

Unless --label is set, each face is labeled with the name of the directory
the image sits in, so a layout like faces/alice/1.jpg labels the face
"alice". Images without a detectable face are skipped, not fatal.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().String("label", "", "label for every ingested face (default: parent directory name)")
	loadCmd.Flags().Int("concurrency", 4, "number of concurrent ingestions")
}

func isImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}

// collectImages lists all image files under root.
func collectImages(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	label, _ := cmd.Flags().GetString("label")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	files, err := collectImages(args[0])
	if err != nil {
		return fmt.Errorf("scanning %s: %w", args[0], err)
	}
	if len(files) == 0 {
		fmt.Println("No images found.")
		return nil
	}
	fmt.Printf("Found %d images\n", len(files))

	eng, err := buildEngine(cfg)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer eng.Close()

	if err := warmLoad(cmd.Context(), eng, cfg); err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Ingesting faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var ingested, skipped, failed atomic.Int64

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(concurrency)

	for _, path := range files {
		g.Go(func() error {
			defer bar.Add(1)

			image, err := os.ReadFile(path)
			if err != nil {
				failed.Add(1)
				return nil
			}

			md := model.Metadata{
				Label:  label,
				Source: path,
			}
			if md.Label == "" {
				md.Label = filepath.Base(filepath.Dir(path))
			}

			_, err = eng.Ingest(ctx, image, md)
			switch {
			case err == nil:
				ingested.Add(1)
			case errors.Is(err, halo.ErrNoFaceDetected), errors.Is(err, halo.ErrMultipleFaces):
				skipped.Add(1)
			case errors.Is(err, halo.ErrProvider), errors.Is(err, halo.ErrTimeout):
				// Provider trouble affects every remaining image; stop early.
				return fmt.Errorf("ingesting %s: %w", path, err)
			default:
				failed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("\nIngested %d faces (%d skipped, %d failed)\n",
		ingested.Load(), skipped.Load(), failed.Load())

	return saveSnapshot(cmd.Context(), eng, cfg)
}
