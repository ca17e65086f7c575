// Package main provides the ipusegment command, which prints the speech
// tracks of audio files.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/maauso/ipusegment/internal/audio"
	"github.com/maauso/ipusegment/internal/cli"
	"github.com/maauso/ipusegment/internal/config"
	"github.com/maauso/ipusegment/internal/ipus"
	"github.com/maauso/ipusegment/internal/job"
)

var version = "0.1.0"

// CLI defines the command-line interface.
type CLI struct {
	Version   bool     `short:"v" help:"Show version information."`
	Units     string   `short:"u" help:"Expected unit sequence, e.g. \"# a b # c #\". Enables fitting."`
	Params    string   `short:"p" type:"existingfile" placeholder:"file" help:"YAML file with segmentation parameters."`
	Threshold int      `short:"t" help:"Fixed RMS threshold, 0 estimates it." default:"-1"`
	MinSil    float64  `help:"Minimum silence duration in seconds." default:"-1"`
	MinIPU    float64  `name:"min-ipu" help:"Minimum IPU duration in seconds." default:"-1"`
	Frames    bool     `short:"f" help:"Print track boundaries in frames too."`
	SplitDir  string   `type:"path" placeholder:"dir" help:"Write every track as a WAV file into this directory."`
	Convert   bool     `help:"Convert the input to mono WAV with ffmpeg first."`
	FFmpeg    string   `default:"ffmpeg" help:"Path to the ffmpeg binary."`
	Verbose   bool     `help:"Log fitting phases."`
	Files     []string `arg:"" name:"files" help:"Audio files to segment." type:"existingfile" optional:""`
}

func main() {
	args := &CLI{}
	ctx := kong.Parse(args,
		kong.Name("ipusegment"),
		kong.Description("Segment speech recordings into inter-pausal units"),
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter("Segment speech recordings into inter-pausal units")),
	)

	if args.Version {
		cli.PrintVersion(os.Stdout, version)
		return
	}
	if len(args.Files) == 0 {
		cli.PrintError(os.Stderr, "no input files specified")
		_ = ctx.PrintUsage(false)
		os.Exit(1)
	}

	failed := 0
	for _, file := range args.Files {
		if err := args.segment(context.Background(), file, os.Stdout); err != nil {
			cli.PrintError(os.Stderr, fmt.Sprintf("%s: %v", file, err))
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// params resolves the parameters from the optional file and flags.
func (c *CLI) params() (ipus.Params, error) {
	p := ipus.DefaultParams()
	if c.Params != "" {
		loaded, err := config.LoadParamsFile(c.Params)
		if err != nil {
			return ipus.Params{}, err
		}
		p = loaded
	}
	if c.Threshold >= 0 {
		p.SetVolThreshold(c.Threshold)
	}
	if c.MinSil >= 0 {
		p.SetMinSilDur(c.MinSil)
	}
	if c.MinIPU >= 0 {
		p.SetMinIPUDur(c.MinIPU)
	}
	return p, nil
}

func (c *CLI) logger() *slog.Logger {
	if !c.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (c *CLI) segment(ctx context.Context, file string, out io.Writer) error {
	params, err := c.params()
	if err != nil {
		return err
	}

	input := file
	if c.Convert {
		tmp, err := os.MkdirTemp("", "ipusegment_")
		if err != nil {
			return fmt.Errorf("create scratch directory: %w", err)
		}
		defer func() { _ = os.RemoveAll(tmp) }()
		input = filepath.Join(tmp, "input.wav")
		if err := audio.NewFFmpegConverter(c.FFmpeg).ToMonoWAV(ctx, file, input, 0); err != nil {
			return err
		}
	}

	ch, meta, err := audio.OpenWAV(input)
	if err != nil {
		return err
	}

	mode := job.ModeSearch
	units := ipus.ParseUnits(c.Units)
	if strings.TrimSpace(c.Units) != "" {
		if units.NbIPUs() == 0 {
			return job.ErrUnitsRequired
		}
		mode = job.ModeFit
	}

	logger := c.logger()
	svc := job.NewSegmentService(nil, nil, logger)
	result, err := svc.Segment(ch, meta, mode, params, units, logger)
	if err != nil {
		return err
	}

	report := cli.Report{
		File:       file,
		Audio:      meta,
		Params:     result.Params,
		Threshold:  result.Threshold,
		Tracks:     result.Tracks,
		Frames:     result.Frames,
		ShowFrames: c.Frames,
		Fit:        result.Fit,
	}
	if c.SplitDir != "" {
		dir := filepath.Join(c.SplitDir, strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)))
		files, err := audio.NewWAVSplitter().Split(ctx, ch, result.Frames, dir)
		if err != nil {
			return fmt.Errorf("split tracks: %w", err)
		}
		report.SplitFiles = files
	}
	return cli.WriteReport(out, report)
}
