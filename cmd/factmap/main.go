// 命令行入口：离线渲染地图事实、到访迷雾与周边兴趣点
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"factmap/internal/config"
	"factmap/internal/engine"
	"factmap/internal/geo"
	"factmap/internal/geocode"
	"factmap/internal/logger"
	"factmap/internal/snapshot"
	"factmap/internal/utils"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load(".env")
	logger.Setup()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "factmap",
		Short:        "Render geographic facts and visited-area fog to PNG",
		SilenceUsage: true,
	}
	root.AddCommand(newRenderCmd(), newFogCmd(), newPlacesCmd())
	return root
}

// openEngine：按环境配置创建引擎；缺少地图凭据时直接报错
func openEngine(ctx context.Context, c config.Config) (*engine.Engine, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	client, err := geocode.New(geocode.OptionsFromConfig(c, utils.OpenRedis(ctx, c)))
	if err != nil {
		return nil, err
	}
	return engine.New(client, engine.OptionsFromConfig(c))
}

func readInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func outPath(c config.Config, out string) string {
	if out != "" {
		return out
	}
	return filepath.Join(c.SnapshotDir, snapshot.FileName())
}

func export(ctx context.Context, e *engine.Engine, c config.Config, out string, w io.Writer) error {
	img, err := e.Export(ctx)
	if err != nil {
		return err
	}
	p := outPath(c, out)
	if err := snapshot.WritePNG(p, img); err != nil {
		return err
	}
	fmt.Fprintln(w, p)
	return nil
}

func newRenderCmd() *cobra.Command {
	var factPath, out, focus string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Resolve a fact's regions, draw them and export a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := config.FromEnv()
			in, err := readInput(factPath)
			if err != nil {
				return err
			}
			fact, err := geo.DecodeFact(in)
			in.Close()
			if err != nil {
				return err
			}
			e, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer e.Close()

			outcome, err := e.Show(ctx, fact)
			if err != nil {
				return err
			}
			for _, f := range outcome.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", f.Region.DisplayName(), f.Err)
			}
			if !outcome.Fitted {
				return fmt.Errorf("no region of %q could be resolved", fact.Title)
			}
			if focus != "" {
				for _, s := range outcome.Drawn {
					if strings.EqualFold(s.Region.Name, focus) {
						e.Click(s.Handle)
						break
					}
				}
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(e.GeoJSON())
			}
			return export(ctx, e, c, out, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&factPath, "fact", "f", "", "fact JSON file (default stdin)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output PNG path (default SNAPSHOT_DIR/factmap-<uuid>.png)")
	cmd.Flags().StringVar(&focus, "focus", "", "region name to highlight and zoom to")
	cmd.Flags().BoolVar(&asJSON, "geojson", false, "print GeoJSON instead of writing a PNG")
	return cmd
}

func readSamples(path string) ([]geo.VisitedSample, error) {
	in, err := readInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	var body struct {
		Samples []geo.VisitedSample `json:"samples"`
	}
	if err := json.NewDecoder(in).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}
	return body.Samples, nil
}

func newFogCmd() *cobra.Command {
	var samplesPath, out string
	var fromStore bool
	cmd := &cobra.Command{
		Use:   "fog",
		Short: "Render the visited-area fog mask over the samples' extent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := config.FromEnv()
			var samples []geo.VisitedSample
			var err error
			if fromStore {
				st, closeFn, serr := utils.OpenSampleStore(ctx, c, utils.OpenRedis(ctx, c))
				if serr != nil {
					return serr
				}
				samples, err = st.Load(ctx)
				closeFn()
			} else {
				samples, err = readSamples(samplesPath)
			}
			if err != nil {
				return err
			}
			e, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer e.Close()
			mask := e.ShowFog(samples)
			if mask.Skipped > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d stamps\n", mask.Skipped)
			}
			return export(ctx, e, c, out, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&samplesPath, "samples", "s", "", `samples JSON file {"samples":[...]} (default stdin)`)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output PNG path")
	cmd.Flags().BoolVar(&fromStore, "from-store", false, "load samples from SAMPLE_STORE instead of a file")
	return cmd
}

func newPlacesCmd() *cobra.Command {
	var samplesPath string
	cmd := &cobra.Command{
		Use:   "places",
		Short: "List points of interest near visited samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			samples, err := readSamples(samplesPath)
			if err != nil {
				return err
			}
			e, err := openEngine(ctx, config.FromEnv())
			if err != nil {
				return err
			}
			defer e.Close()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(e.Places(ctx, samples))
		},
	}
	cmd.Flags().StringVarP(&samplesPath, "samples", "s", "", "samples JSON file (default stdin)")
	return cmd
}
