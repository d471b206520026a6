// Command gifmaker stitches saved PNG figures into an animated GIF.
//
// Frames are given as files, or as a printf pattern with -pattern and -n
// ("plots/2023-Oct-30/gifFrames/CABS%d.png" -n 75).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/sourav-majumder/qtlab/internal/anim"
	"github.com/sourav-majumder/qtlab/internal/cli"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal().Err(err).Msg("gifmaker")
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("gifmaker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pattern := fs.String("pattern", "", "frame file pattern with one %d")
	n := fs.Int("n", 0, "number of frames for -pattern")
	first := fs.Int("first", 0, "index of the first frame for -pattern")
	delay := fs.Int("delay", 5, "delay between frames in 100ths of a second")
	out := fs.String("o", "animated.gif", "output file")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger := cli.Logger(stderr, *verbose)

	frames := fs.Args()
	if *pattern != "" {
		for i := *first; i < *first+*n; i++ {
			frames = append(frames, fmt.Sprintf(*pattern, i))
		}
	}
	if len(frames) == 0 {
		return errors.New("no frames (give files or -pattern and -n)")
	}

	fh, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := anim.Build(ctx, frames, *delay, fh); err != nil {
		fh.Close()
		os.Remove(*out)
		return err
	}
	if err := fh.Close(); err != nil {
		return err
	}

	logger.Info().Int("frames", len(frames)).Str("file", *out).Msg("wrote animation")
	return nil
}
