package cli

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/rutmehta/halo/blobstore"
	s3store "github.com/rutmehta/halo/blobstore/s3"
	"github.com/rutmehta/halo/internal/config"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Publish and fetch snapshots through a blob store",
}

var snapshotPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Publish the local snapshot to the remote blob store",
	Long: `Load the configured snapshot file and publish it to the remote blob
store under a fresh name, then move the current pointer to it.

The --remote flag accepts either a local directory or an s3://bucket[/prefix]
URI. S3 credentials come from the usual AWS environment.`,
	RunE: runSnapshotPush,
}

var snapshotPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch the current remote snapshot into the local snapshot file",
	RunE:  runSnapshotPull,
}

var snapshotInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print statistics of the local snapshot",
	RunE:  runSnapshotInfo,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotPushCmd, snapshotPullCmd, snapshotInfoCmd)

	snapshotCmd.PersistentFlags().String("remote", "snapshots", "blob store: local directory or s3://bucket[/prefix]")
}

// openStore resolves the --remote flag into a blob store.
func openStore(ctx context.Context, remote string) (blobstore.Store, error) {
	if uri, ok := strings.CutPrefix(remote, "s3://"); ok {
		bucket, prefix, _ := strings.Cut(uri, "/")
		if bucket == "" {
			return nil, fmt.Errorf("invalid s3 remote: %q", remote)
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		return s3store.NewStore(awss3.NewFromConfig(awsCfg), bucket, prefix), nil
	}
	return blobstore.NewLocalStore(remote)
}

func snapshotConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.SnapshotPath == "" {
		return nil, fmt.Errorf("snapshot_path is not configured")
	}
	return cfg, nil
}

func runSnapshotPush(cmd *cobra.Command, args []string) error {
	cfg, err := snapshotConfig()
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.LoadFromFile(cmd.Context(), cfg.SnapshotPath); err != nil {
		return fmt.Errorf("loading snapshot %s: %w", cfg.SnapshotPath, err)
	}

	remote, _ := cmd.Flags().GetString("remote")
	store, err := openStore(cmd.Context(), remote)
	if err != nil {
		return err
	}

	name, err := eng.PushSnapshot(cmd.Context(), store, nil)
	if err != nil {
		return fmt.Errorf("pushing snapshot: %w", err)
	}

	fmt.Printf("Pushed %d faces to %s as %s\n", eng.Size(), remote, name)
	return nil
}

func runSnapshotPull(cmd *cobra.Command, args []string) error {
	cfg, err := snapshotConfig()
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	remote, _ := cmd.Flags().GetString("remote")
	store, err := openStore(cmd.Context(), remote)
	if err != nil {
		return err
	}

	if err := eng.PullSnapshot(cmd.Context(), store, nil); err != nil {
		return fmt.Errorf("pulling snapshot: %w", err)
	}

	if err := eng.SaveToFile(cmd.Context(), cfg.SnapshotPath); err != nil {
		return fmt.Errorf("saving snapshot %s: %w", cfg.SnapshotPath, err)
	}

	fmt.Printf("Pulled %d faces from %s into %s\n", eng.Size(), remote, cfg.SnapshotPath)
	return nil
}

func runSnapshotInfo(cmd *cobra.Command, args []string) error {
	cfg, err := snapshotConfig()
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.LoadFromFile(cmd.Context(), cfg.SnapshotPath); err != nil {
		return fmt.Errorf("loading snapshot %s: %w", cfg.SnapshotPath, err)
	}

	stats := eng.Stats()
	fmt.Printf("Snapshot:   %s\n", cfg.SnapshotPath)
	fmt.Printf("Faces:      %d\n", stats.Size)
	fmt.Printf("Dimension:  %d\n", stats.Dimension)
	fmt.Printf("Index:      %s\n", stats.IndexKind)
	fmt.Printf("Next ID:    %d\n", stats.NextID)
	return nil
}
