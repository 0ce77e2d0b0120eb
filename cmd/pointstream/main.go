// Package main is the pointstream command: inspect and stream COPC and
// Potree point-cloud datasets from the terminal.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/edaniels/golog"
	"github.com/fatih/color"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/calipsoviz/pointstream/colormap"
	"github.com/calipsoviz/pointstream/copc"
	"github.com/calipsoviz/pointstream/fetch"
	"github.com/calipsoviz/pointstream/lasfile"
	"github.com/calipsoviz/pointstream/pointcloud"
	"github.com/calipsoviz/pointstream/potree"
	"github.com/calipsoviz/pointstream/spatial"
	"github.com/calipsoviz/pointstream/stream"
)

const (
	flagFormat    = "format"
	flagBudget    = "budget"
	flagMaxDepth  = "max-depth"
	flagPasses    = "passes"
	flagBounds    = "bounds"
	flagColorMode = "color-mode"
	flagHeight    = "height"
	flagTime      = "time"
	flagDistance  = "distance"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "pointstream",
		Usage: "stream progressive octree point clouds",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger = golog.NewDebugLogger("pointstream")
			} else {
				logger = zap.NewNop().Sugar()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "print dataset header, bounds, and hierarchy summary",
				ArgsUsage: "<path or URL>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagFormat,
						Value: "auto",
						Usage: "dataset format: copc, potree, or auto",
					},
				},
				Action: func(c *cli.Context) error {
					return runInfo(c, logger)
				},
			},
			{
				Name:      "stream",
				Usage:     "run the streaming engine headless and report per-pass stats",
				ArgsUsage: "<path or URL>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagFormat,
						Value: "auto",
						Usage: "dataset format: copc, potree, or auto",
					},
					&cli.IntFlag{
						Name:  flagBudget,
						Value: stream.DefaultPointBudget,
						Usage: "point budget across loaded nodes",
					},
					&cli.IntFlag{
						Name:  flagMaxDepth,
						Value: stream.DefaultMaxDepth,
						Usage: "maximum refinement depth",
					},
					&cli.IntFlag{
						Name:  flagPasses,
						Value: 4,
						Usage: "number of traversal passes to run",
					},
					&cli.StringFlag{
						Name:  flagBounds,
						Usage: "spatial filter minLon,maxLon,minLat,maxLat,minAlt,maxAlt",
					},
					&cli.StringFlag{
						Name:  flagHeight,
						Usage: "altitude filter min,max in km",
					},
					&cli.StringFlag{
						Name:  flagTime,
						Usage: "GPS time filter min,max in TAI seconds",
					},
					&cli.StringFlag{
						Name:  flagColorMode,
						Value: "elevation",
						Usage: "color mode: elevation, intensity, or classification",
					},
				},
				Action: func(c *cli.Context) error {
					return runStream(c, logger)
				},
			},
			{
				Name:      "flat",
				Usage:     "load a plain LAS file without octree metadata and report decode stats",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagHeight,
						Usage: "altitude filter min,max in km",
					},
					&cli.StringFlag{
						Name:  flagTime,
						Usage: "GPS time filter min,max in TAI seconds",
					},
					&cli.Float64Flag{
						Name:  flagDistance,
						Value: 1e6,
						Usage: "camera distance in meters used to pick the decimation stride",
					},
				},
				Action: func(c *cli.Context) error {
					return runFlat(c, logger)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openSource resolves the argument into a streamable source. Local files
// and plain URLs are treated as COPC; "potree" forces the multi-file
// Potree layout rooted at a metadata.json URL.
func openSource(ctx context.Context, arg, format string, logger golog.Logger) (stream.Source, func() error, error) {
	isURL := strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
	if format == "auto" {
		if isURL && !strings.HasSuffix(arg, ".laz") && !strings.HasSuffix(arg, ".copc.laz") {
			format = "potree"
		} else {
			format = "copc"
		}
	}

	switch format {
	case "copc":
		var getter fetch.RangeGetter
		closeFn := func() error { return nil }
		if isURL {
			getter = fetch.NewHTTPRangeGetter(arg, http.DefaultClient, logger)
		} else {
			fileGetter, err := fetch.NewFileRangeGetter(arg)
			if err != nil {
				return nil, nil, err
			}
			getter = fileGetter
			closeFn = fileGetter.Close
		}
		source, err := copc.Open(ctx, getter, copc.NoopDecompressor{}, logger)
		if err != nil {
			return nil, nil, multierr.Combine(err, closeFn())
		}
		return source, closeFn, nil
	case "potree":
		if !isURL {
			return nil, nil, errors.New("potree sources must be URLs")
		}
		source, err := potree.OpenHTTP(ctx, arg, http.DefaultClient, logger)
		if err != nil {
			return nil, nil, err
		}
		return source, func() error { return nil }, nil
	default:
		return nil, nil, errors.Errorf("unknown format %q", format)
	}
}

func runInfo(c *cli.Context, logger golog.Logger) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one dataset path or URL")
	}
	ctx := c.Context

	source, closeFn, err := openSource(ctx, c.Args().First(), c.String(flagFormat), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warnw("closing dataset", "error", err)
		}
	}()

	heading := color.New(color.FgCyan, color.Bold)
	bounds := source.Bounds()

	heading.Fprintln(c.App.Writer, "dataset")
	switch s := source.(type) {
	case *copc.Source:
		h := s.Header()
		fmt.Fprintf(c.App.Writer, "  format:        COPC (LAS %d.%d, point format %d)\n",
			h.VersionMajor, h.VersionMinor, h.PointFormat)
		fmt.Fprintf(c.App.Writer, "  points:        %d\n", h.PointCount)
		fmt.Fprintf(c.App.Writer, "  record length: %d bytes\n", h.RecordLength)
		if info := s.Info(); info != nil {
			fmt.Fprintf(c.App.Writer, "  gps time:      [%.3f, %.3f]\n", info.GPSTimeMin, info.GPSTimeMax)
		}
	case *potree.Source:
		m := s.Metadata()
		fmt.Fprintf(c.App.Writer, "  format:        Potree %s\n", m.Version)
		fmt.Fprintf(c.App.Writer, "  points:        %d\n", m.Points)
		fmt.Fprintf(c.App.Writer, "  stride:        %d bytes\n", m.Stride())
	}
	fmt.Fprintf(c.App.Writer, "  bounds:        lon [%.3f, %.3f] lat [%.3f, %.3f] alt [%.3f, %.3f]\n",
		bounds.Min.X, bounds.Max.X, bounds.Min.Y, bounds.Max.Y, bounds.Min.Z, bounds.Max.Z)

	engine, err := stream.NewEngine(ctx, source, stream.Config{}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warnw("closing engine", "error", err)
		}
	}()
	fmt.Fprintf(c.App.Writer, "  root nodes:    %d\n", engine.Stats().KnownNodes)
	return nil
}

func runStream(c *cli.Context, logger golog.Logger) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one dataset path or URL")
	}
	ctx := c.Context

	source, closeFn, err := openSource(ctx, c.Args().First(), c.String(flagFormat), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warnw("closing dataset", "error", err)
		}
	}()

	cfg := stream.Config{
		PointBudget: c.Int(flagBudget),
		MaxDepth:    c.Int(flagMaxDepth),
	}
	engine, err := stream.NewEngine(ctx, source, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warnw("closing engine", "error", err)
		}
	}()

	if err := applyFilters(c, engine); err != nil {
		return err
	}

	bounds := source.Bounds()
	center := bounds.Center()
	// start well outside the cube looking down at its center, then move
	// halfway in on every pass to exercise progressive refinement
	position := center.Add(r3.Vector{X: bounds.Size().X, Y: bounds.Size().Y, Z: bounds.Size().Z * 4})

	heading := color.New(color.FgCyan, color.Bold)
	heading.Fprintln(c.App.Writer, "pass  visited  refined  loaded  resident  skipped  unloaded")
	for pass := 0; pass < c.Int(flagPasses); pass++ {
		engine.ObserveCamera(spatial.Camera{
			Position: position,
			Target:   center,
			Up:       r3.Vector{Y: 1},
			FOVY:     1.0,
			Aspect:   16.0 / 9.0,
			Near:     0.1,
			Far:      bounds.Diagonal() * 10,
		})
		start := time.Now()
		passStats, err := engine.Pass(ctx)
		if err != nil {
			return err
		}
		engine.WaitForLoads()

		es := engine.Stats()
		fmt.Fprintf(c.App.Writer, "%4d  %7d  %7d  %6d  %8d  %7d  %8d  (%s)\n",
			pass, passStats.Visited, passStats.Refined, es.LoadedNodes,
			es.ResidentPoints, passStats.BudgetSkipped, passStats.Unloaded,
			time.Since(start).Round(time.Millisecond))

		position = center.Add(position.Sub(center).Mul(0.5))
	}

	es := engine.Stats()
	if es.FailedLoads > 0 {
		color.New(color.FgYellow).Fprintf(c.App.Writer, "warning: %d node loads failed\n", es.FailedLoads)
	}
	snap := engine.Snapshot()
	heading.Fprintln(c.App.Writer, "final snapshot")
	fmt.Fprintf(c.App.Writer, "  nodes:  %d\n", snap.LoadedNodes)
	fmt.Fprintf(c.App.Writer, "  points: %d\n", snap.ResidentPoints)
	return nil
}

func runFlat(c *cli.Context, logger golog.Logger) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one LAS file path")
	}

	var filter pointcloud.Filter
	if spec := c.String(flagHeight); spec != "" {
		vals, err := parseFloats(spec, 2)
		if err != nil {
			return errors.Wrap(err, "parsing height filter")
		}
		filter.Height = spatial.Interval{Enabled: true, Min: vals[0], Max: vals[1]}
	}
	if spec := c.String(flagTime); spec != "" {
		vals, err := parseFloats(spec, 2)
		if err != nil {
			return errors.Wrap(err, "parsing time filter")
		}
		filter.Time = spatial.Interval{Enabled: true, Min: vals[0], Max: vals[1]}
	}

	start := time.Now()
	block, stats, err := lasfile.ReadLASFile(c.Context, c.Args().First(), filter, logger)
	if err != nil {
		return err
	}
	thinned := stream.Decimate(block, c.Float64(flagDistance))

	heading := color.New(color.FgCyan, color.Bold)
	heading.Fprintln(c.App.Writer, "flat load")
	fmt.Fprintf(c.App.Writer, "  read:     %d\n", stats.Read)
	fmt.Fprintf(c.App.Writer, "  kept:     %d\n", stats.Kept)
	fmt.Fprintf(c.App.Writer, "  invalid:  %d\n", stats.DroppedInvalid)
	fmt.Fprintf(c.App.Writer, "  filtered: %d\n", stats.DroppedFiltered)
	fmt.Fprintf(c.App.Writer, "  drawn:    %d (stride %d)\n",
		thinned.Len(), stream.DecimationStride(c.Float64(flagDistance), block.Len()))
	fmt.Fprintf(c.App.Writer, "  elapsed:  %s\n", time.Since(start).Round(time.Millisecond))

	if block.Len() > 0 {
		bs := block.Stats()
		fmt.Fprintf(c.App.Writer, "  gps time: [%.3f, %.3f]\n", bs.MinGPSTime, bs.MaxGPSTime)
	}
	return nil
}

func applyFilters(c *cli.Context, engine *stream.Engine) error {
	if spec := c.String(flagBounds); spec != "" {
		vals, err := parseFloats(spec, 6)
		if err != nil {
			return errors.Wrap(err, "parsing bounds")
		}
		bounds, err := spatial.NewGeoBounds(vals[0], vals[1], vals[2], vals[3], vals[4], vals[5])
		if err != nil {
			return err
		}
		engine.SetSpatialBounds(bounds, true)
	}
	if spec := c.String(flagHeight); spec != "" {
		vals, err := parseFloats(spec, 2)
		if err != nil {
			return errors.Wrap(err, "parsing height filter")
		}
		engine.SetHeightFilter(spatial.Interval{Enabled: true, Min: vals[0], Max: vals[1]})
	}
	if spec := c.String(flagTime); spec != "" {
		vals, err := parseFloats(spec, 2)
		if err != nil {
			return errors.Wrap(err, "parsing time filter")
		}
		engine.SetTimeRange(spatial.Interval{Enabled: true, Min: vals[0], Max: vals[1]})
	}

	switch mode := c.String(flagColorMode); mode {
	case "elevation":
		engine.SetColorMode(colormap.Options{Mode: colormap.ModeElevation, Ramp: colormap.RampTurbo, Min: 0, Max: 40})
	case "intensity":
		engine.SetColorMode(colormap.Options{Mode: colormap.ModeIntensity, Ramp: colormap.RampGrayscale, Min: 0, Max: 2})
	case "classification":
		engine.SetColorMode(colormap.Options{Mode: colormap.ModeClassification})
	default:
		return errors.Errorf("unknown color mode %q", mode)
	}
	return nil
}

func parseFloats(spec string, want int) ([]float64, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != want {
		return nil, errors.Errorf("expected %d comma-separated values, got %d", want, len(parts))
	}
	out := make([]float64, want)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "value %q", p)
		}
		out[i] = v
	}
	return out, nil
}
