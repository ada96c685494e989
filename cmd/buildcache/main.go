// Command buildcache drives the incremental build cache core: snapshot
// generation, snapshot validation reports, and pack inspection/GC. The
// subcommand structure (root + nested pack subcommands) follows
// meisterluk-dupfiles-go/cli's cobra layout; the teacher's own CLI used the
// standard library's flag package directly, which cobra replaces here as
// the domain-stack CLI library SPEC_FULL.md calls for.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"buildcache-go/internal/config"
	"buildcache-go/internal/fsinfo"
	"buildcache-go/internal/inputfs"
	"buildcache-go/internal/logging"
	"buildcache-go/internal/pack"
	"buildcache-go/internal/progress"
	"buildcache-go/internal/report"
	"buildcache-go/internal/snapshot"
	"buildcache-go/internal/walker"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "buildcache",
		Short: "Incremental build cache core CLI",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	root.AddCommand(newSnapshotCmd(), newCheckCmd(), newPackCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadEverything() (*config.Config, *fsinfo.FileSystemInfo, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		FilePath:   cfg.LogFilePath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
	})
	info := fsinfo.New(inputfs.NewOsFS(), fsinfo.Options{ManagedRoots: cfg.ManagedPaths})
	return cfg, info, logger, nil
}

func newSnapshotCmd() *cobra.Command {
	var output string
	var hash bool

	cmd := &cobra.Command{
		Use:   "snapshot <directory>",
		Short: "Walk a directory and write a build-dependency snapshot as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, info, logger, err := loadEverything()
			if err != nil {
				return err
			}

			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			logger.Time("walk")
			result, err := walker.Walk(dir, cfg.Exclude, cfg.ManagedPaths)
			logger.TimeEnd("walk")
			if err != nil {
				return fmt.Errorf("walk %s: %w", dir, err)
			}

			files := make([]string, 0, len(result.Files))
			for _, f := range result.Files {
				files = append(files, f.Path)
			}

			// The bar is sized off the walked listing but ticked by
			// CreateSnapshot's own per-path completion callback below, not
			// by this loop: it reports the fan-out CreateSnapshot performs.
			bar := progress.New(int64(len(files) + len(result.Directories)))
			onProgress := func(path string) {
				bar.SetDirectory(filepath.Dir(path))
				bar.Increment()
			}

			startTime := time.Now().UnixMilli()
			snap := info.CreateSnapshot(startTime, files, result.Directories, nil, fsinfo.SnapshotOptions{
				Hash:     hash || cfg.HashOnBuild,
				Progress: onProgress,
			})
			bar.Finish()

			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal snapshot: %w", err)
			}

			if output == "" {
				fmt.Println(string(data))
				return nil
			}
			return os.WriteFile(output, data, 0o644)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write JSON to this path instead of stdout")
	cmd.Flags().BoolVar(&hash, "hash", false, "compute content hashes instead of timestamps")
	return cmd
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <snapshot.json> <directory>",
		Short: "Compare a saved snapshot against the current directory contents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, info, _, err := loadEverything()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var oldSnap snapshot.Snapshot
			if err := json.Unmarshal(data, &oldSnap); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			dir, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			result, err := walker.Walk(dir, cfg.Exclude, cfg.ManagedPaths)
			if err != nil {
				return fmt.Errorf("walk %s: %w", dir, err)
			}
			files := make([]string, 0, len(result.Files))
			for _, f := range result.Files {
				files = append(files, f.Path)
			}

			newSnap := info.CreateSnapshot(time.Now().UnixMilli(), files, result.Directories, nil, fsinfo.SnapshotOptions{Hash: true})

			diff := report.Compare(&oldSnap, newSnap)
			fmt.Println(report.FormatReport(diff))

			if diff.HasChanges() {
				os.Exit(1)
			}
			return nil
		},
	}
	return cmd
}

func newPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Inspect or garbage-collect an on-disk pack file",
	}
	cmd.AddCommand(newPackInspectCmd(), newPackGCCmd())
	return cmd
}

func newPackInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <cacheLocation>",
		Short: "Print a pack file's path, version, and validity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, path, err := openPack(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("path: %s\n", path)
			fmt.Printf("version: %s\n", p.Version())
			fmt.Printf("invalid: %v\n", p.Invalid())
			return nil
		},
	}
}

func newPackGCCmd() *cobra.Command {
	var maxAgeMs int64

	cmd := &cobra.Command{
		Use:   "gc <cacheLocation>",
		Short: "Evict stale entries from a pack file and rewrite it atomically",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, path, err := openPack(args[0])
			if err != nil {
				return err
			}
			p.CollectGarbage(maxAgeMs, time.Now().UnixMilli())
			if err := p.WriteAtomic(path, pack.Sync); err != nil {
				return fmt.Errorf("write pack: %w", err)
			}
			fmt.Printf("rewrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().Int64Var(&maxAgeMs, "max-age-ms", int64(2*24*time.Hour/time.Millisecond), "entries older than this are evicted")
	return cmd
}

func openPack(cacheLocation string) (*pack.Pack, string, error) {
	path := cacheLocation + ".pack"
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	p, err := pack.Deserialize(f)
	if err != nil {
		return nil, "", fmt.Errorf("deserialize %s: %w", path, err)
	}
	return p, path, nil
}
