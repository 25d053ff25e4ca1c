package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/advisorbot/internal/config"
	"github.com/dohr-michael/advisorbot/internal/retrieval"
)

// NewIngestCommand returns the ingest subcommand.
func NewIngestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Chunk and index the policy corpus into the retrieval engine",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "dir",
				Usage: "Corpus directory to index (repeatable, overrides config)",
			},
		},
		Action: runIngest,
	}
}

func runIngest(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if dirs := cmd.StringSlice("dir"); len(dirs) > 0 {
		cfg.Retrieval.CorpusDirs = dirs
	}
	if len(cfg.Retrieval.CorpusDirs) == 0 {
		return fmt.Errorf("no corpus directories configured; pass --dir or set retrieval.corpus_dirs")
	}
	if !cfg.Embedding.IsEnabled() {
		return fmt.Errorf("embedding.enabled is false; ingest requires an embedding provider")
	}

	embedder, err := retrieval.NewEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}

	engine, err := retrieval.New(ctx, cfg.Retrieval, embedder)
	if err != nil {
		return fmt.Errorf("open retrieval index: %w", err)
	}

	n, err := retrieval.LoadCorpus(ctx, engine, cfg.Retrieval)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	fmt.Printf("indexed %d chunks from %v into %s\n", n, cfg.Retrieval.CorpusDirs, cfg.Retrieval.IndexPath)
	return nil
}
