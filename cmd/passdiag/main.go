// Command passdiag is a one-shot diagnostic for the prediction pipeline. It
// fetches live orbital elements, runs the same pass finder and proximity
// scanner the daemon uses, and prints the result to stdout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/geo"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/passes"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/propagation"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/proximity"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/tle"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/transform"
)

var commonFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "catnr, c",
		Usage: "NORAD catalog number of the object",
		Value: 27559,
	},
	cli.Float64Flag{
		Name:  "lat",
		Usage: "ground site latitude in degrees",
		Value: 35.7025,
	},
	cli.Float64Flag{
		Name:  "lon",
		Usage: "ground site longitude in degrees",
		Value: -0.621389,
	},
	cli.Float64Flag{
		Name:  "alt",
		Usage: "ground site altitude in km",
		Value: 0,
	},
	cli.StringFlag{
		Name:  "source-url",
		Usage: "override the element set source base URL",
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "passdiag"
	app.Usage = "satellite pass prediction diagnostics"
	app.Commands = []cli.Command{
		{
			Name:   "passes",
			Usage:  "predict upcoming passes over the ground site",
			Action: runPasses,
			Flags: append([]cli.Flag{
				cli.IntFlag{
					Name:  "horizon",
					Usage: "prediction horizon in hours",
					Value: 48,
				},
				cli.Float64Flag{
					Name:  "min-elevation",
					Usage: "minimum elevation in degrees for a pass",
					Value: passes.DefaultMinElevationDeg,
				},
				cli.Float64Flag{
					Name:  "radius",
					Usage: "overhead radius in km",
					Value: proximity.DefaultRadiusKm,
				},
				cli.IntFlag{
					Name:  "step",
					Usage: "proximity sample step in seconds",
					Value: 30,
				},
			}, commonFlags...),
		},
		{
			Name:   "position",
			Usage:  "print the current sub-satellite point",
			Action: runPosition,
			Flags:  commonFlags,
		},
		{
			Name:   "tle",
			Usage:  "fetch and print the current element set",
			Action: runTLE,
			Flags:  commonFlags,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "passdiag: %s\n", err.Error())
		os.Exit(1)
	}
}

func siteFromFlags(c *cli.Context) (geo.Point, error) {
	site := geo.Point{
		LatDeg: c.Float64("lat"),
		LonDeg: c.Float64("lon"),
		AltKm:  c.Float64("alt"),
	}
	if !site.Valid() {
		return geo.Point{}, fmt.Errorf("site coordinates out of range: lat=%v lon=%v", site.LatDeg, site.LonDeg)
	}
	return site, nil
}

func fetchElements(c *cli.Context) (tle.Elements, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	fetcher := tle.NewFetcher(c.String("source-url"), 15*time.Second, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return fetcher.Fetch(ctx, c.Int("catnr"))
}

func runPasses(c *cli.Context) error {
	site, err := siteFromFlags(c)
	if err != nil {
		return err
	}

	elements, err := fetchElements(c)
	if err != nil {
		return err
	}

	prop := propagation.NewSGP4()
	finder := passes.NewFinder(prop, c.Float64("min-elevation"))
	scanner := proximity.NewScanner(prop, site, c.Float64("radius"), time.Duration(c.Int("step"))*time.Second)
	observer := transform.NewObserver(site)

	start := time.Now().UTC()
	end := start.Add(time.Duration(c.Int("horizon")) * time.Hour)

	found, err := finder.Find(elements, observer, elements.Name, start, end)
	if err != nil {
		return err
	}

	fmt.Printf("%s (#%d): %d passes between %s and %s\n\n",
		elements.Name, elements.CatalogID, len(found),
		start.Format(time.RFC3339), end.Format(time.RFC3339))

	for i, p := range found {
		fmt.Printf("pass %d: AOS %s  LOS %s  duration %s\n",
			i+1, p.AOS.Format(time.RFC3339), p.LOS.Format(time.RFC3339),
			p.Duration().Round(time.Second))

		windows, err := scanner.Scan(elements, p)
		if err != nil {
			fmt.Printf("  proximity scan failed: %s\n", err.Error())
			continue
		}
		for _, w := range windows {
			fmt.Printf("  overhead: %s to %s\n",
				w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
		}
	}

	return nil
}

func runPosition(c *cli.Context) error {
	site, err := siteFromFlags(c)
	if err != nil {
		return err
	}

	elements, err := fetchElements(c)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	point, err := propagation.NewSGP4().Position(elements, now)
	if err != nil {
		return err
	}

	fmt.Printf("%s (#%d) at %s\n", elements.Name, elements.CatalogID, now.Format(time.RFC3339))
	fmt.Printf("  sub-point: lat %.4f  lon %.4f  alt %.1f km\n", point.LatDeg, point.LonDeg, point.AltKm)
	fmt.Printf("  ground distance from site: %.1f km\n", geo.DistanceKm(site, point))

	return nil
}

func runTLE(c *cli.Context) error {
	elements, err := fetchElements(c)
	if err != nil {
		return err
	}
	fmt.Print(elements.Text())
	return nil
}
