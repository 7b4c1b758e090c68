package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/tile"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/usecase"
)

const defaultLocale = "ru"

var ErrUsage = errors.New("invalid arguments")

type Args struct {
	Request usecase.AcquireRequest
	// Retry runs a retry pass over the failure ledger after acquisition.
	Retry bool
	// RetryOnly skips acquisition; no positional arguments are needed.
	RetryOnly bool
}

// ParseArgs parses
//
//	prefetch [-retry] [-retry-only] provider zoomStart [zoomEnd] [bounds] [locale] [concurrency]
//
// where bounds is a JSON object {"north":..,"south":..,"east":..,"west":..}.
// An empty or "null" bounds argument means the whole world.
func ParseArgs(args []string) (Args, error) {
	var a Args

	fs := flag.NewFlagSet("prefetch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&a.Retry, "retry", false, "retry the failure ledger after acquisition")
	fs.BoolVar(&a.RetryOnly, "retry-only", false, "only retry the failure ledger")
	concurrency := fs.Int("concurrency", 0, "concurrency for -retry-only")

	if err := fs.Parse(args); err != nil {
		return a, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	pos := fs.Args()

	a.Request = usecase.AcquireRequest{
		Locale:      defaultLocale,
		Concurrency: usecase.DefaultConcurrency,
	}
	if *concurrency > 0 {
		a.Request.Concurrency = *concurrency
	}

	if a.RetryOnly && len(pos) == 0 {
		return a, nil
	}

	if len(pos) < 2 {
		return a, fmt.Errorf("%w: provider and zoomStart are required", ErrUsage)
	}
	if len(pos) > 6 {
		return a, fmt.Errorf("%w: too many arguments", ErrUsage)
	}

	a.Request.Provider = pos[0]
	if a.Request.Provider == "" {
		return a, fmt.Errorf("%w: provider is required", ErrUsage)
	}

	zoomStart, err := parseZoom(pos[1])
	if err != nil {
		return a, fmt.Errorf("%w: zoomStart: %w", ErrUsage, err)
	}
	a.Request.ZoomStart = zoomStart
	a.Request.ZoomEnd = zoomStart

	if len(pos) > 2 && pos[2] != "" {
		zoomEnd, err := parseZoom(pos[2])
		if err != nil {
			return a, fmt.Errorf("%w: zoomEnd: %w", ErrUsage, err)
		}
		a.Request.ZoomEnd = zoomEnd
	}

	if len(pos) > 3 {
		raw := strings.TrimSpace(pos[3])
		if raw != "" && raw != "null" {
			box, err := tile.ParseBoundingBox(raw)
			if err != nil {
				return a, fmt.Errorf("%w: bounds: %w", ErrUsage, err)
			}
			a.Request.Bounds = box
		}
	}

	if len(pos) > 4 && pos[4] != "" {
		a.Request.Locale = pos[4]
	}

	if len(pos) > 5 {
		n, err := strconv.Atoi(pos[5])
		if err != nil || n < 1 {
			return a, fmt.Errorf("%w: concurrency must be a positive integer", ErrUsage)
		}
		a.Request.Concurrency = n
	}

	return a, nil
}

func parseZoom(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not a zoom level", s)
	}
	if n > tile.MaxZoom {
		return 0, fmt.Errorf("zoom %d is above %d", n, tile.MaxZoom)
	}
	return uint32(n), nil
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: prefetch [-retry] [-retry-only] [-concurrency n] provider zoomStart [zoomEnd] [bounds] [locale] [concurrency]

Arguments:
  provider     tile provider (osm, google, yandex, bing, esri, 2gis)
  zoomStart    first zoom level
  zoomEnd      last zoom level, defaults to zoomStart
  bounds       JSON object {"north":..,"south":..,"east":..,"west":..}, defaults to the whole world
  locale       language passed to providers that support it, defaults to "ru"
  concurrency  tiles fetched in parallel, defaults to 6

Flags:
  -retry        retry the failure ledger after acquisition
  -retry-only   only retry the failure ledger
  -concurrency  concurrency of the retry pass when no positional arguments are given

Configuration is read from the environment and an optional .env file.`)
}
