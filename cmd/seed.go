package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/artist-crawler/internal/app"
	"github.com/JakeFAU/artist-crawler/internal/crawler"
	"github.com/JakeFAU/artist-crawler/internal/printer"
)

// newSeedCmd creates the 'seed' subcommand.
func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Imports locations from a file",
		Long: `Reads one location per line, either "name<TAB>url" or a bare url, and
inserts each as an unclaimed location. Blank lines and lines starting with
# are skipped. Re-importing a url is a no-op. Use - to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open seed file: %w", err)
				}
				defer f.Close()
				in = f
			}

			store, err := app.OpenStore(cmd.Context(), e.cfg.Database, e.logger)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate schema: %w", err)
			}

			n, err := importSeeds(cmd, store, in, e.logger)
			if err != nil {
				return err
			}
			printer.Success(cmd.OutOrStdout(), "imported %d locations", n)
			return nil
		},
	}
}

func importSeeds(cmd *cobra.Command, store crawler.LocationStore, in io.Reader, logger *zap.Logger) (int, error) {
	scanner := bufio.NewScanner(in)
	seen := make(map[int64]struct{})
	for line := 1; scanner.Scan(); line++ {
		name, uri, ok := parseSeedLine(scanner.Text())
		if !ok {
			continue
		}
		if _, err := crawler.Host(crawler.NormalizeSeed(uri)); err != nil {
			printer.Warning(cmd.ErrOrStderr(), "line %d: skipping %q: %v", line, uri, err)
			continue
		}
		id, err := store.InsertLocation(cmd.Context(), name, uri)
		if err != nil {
			return len(seen), fmt.Errorf("line %d: insert location: %w", line, err)
		}
		logger.Debug("seeded location", zap.Int64("location_id", id), zap.String("website_uri", uri))
		seen[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return len(seen), fmt.Errorf("read seed file: %w", err)
	}
	return len(seen), nil
}

// parseSeedLine splits "name<TAB>url". A bare url is its own name.
func parseSeedLine(line string) (name, uri string, ok bool) {
	if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	if before, after, found := strings.Cut(line, "\t"); found {
		name, uri = strings.TrimSpace(before), strings.TrimSpace(after)
	} else {
		uri = strings.TrimSpace(line)
	}
	if uri == "" {
		return "", "", false
	}
	if name == "" {
		name = uri
	}
	return name, uri, true
}
