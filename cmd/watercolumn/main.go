// Command watercolumn estimates the ocean current profile of one glider dive
// from a stream of decoded DVL ensembles (JSON, one per line).
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/banshee-data/watercolumn/internal/config"
	"github.com/banshee-data/watercolumn/internal/ingest"
	"github.com/banshee-data/watercolumn/internal/monitoring"
	"github.com/banshee-data/watercolumn/internal/plotting"
	"github.com/banshee-data/watercolumn/internal/units"
	"github.com/banshee-data/watercolumn/internal/version"
	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

type options struct {
	configPath  string
	input       string
	unit        string
	pngPath     string
	htmlPath    string
	debug       bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("watercolumn", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Path to a JSON tuning config (defaults are used when empty)")
	fs.StringVar(&o.input, "input", "-", "Ensemble file, one JSON object per line; - reads stdin")
	fs.StringVar(&o.unit, "units", units.MPS, "Output units ("+units.GetValidUnitsString()+")")
	fs.StringVar(&o.pngPath, "png", "", "Write a profile plot to this PNG file")
	fs.StringVar(&o.htmlPath, "html", "", "Write an interactive profile chart to this HTML file")
	fs.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if !units.IsValid(o.unit) {
		return o, fmt.Errorf("invalid units %q, must be one of: %s", o.unit, units.GetValidUnitsString())
	}
	return o, nil
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}

// writeTable prints one row per estimated bin. The sep column is the
// time-separated estimate's speed.
func writeTable(w io.Writer, profile watercolumn.Profile, eng *watercolumn.Engine, separation float64, unit string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	label := units.Label(unit)
	fmt.Fprintf(tw, "depth (m)\teast (%s)\tnorth (%s)\tdown (%s)\tspeed (%s)\tsep (%s)\t\n",
		label, label, label, label, label)
	for i, z := range profile.Depth {
		avg := profile.At(z)
		if avg.IsUnknown() {
			continue
		}
		sep := eng.SeparatedEstimate(z, separation)
		fmt.Fprintf(tw, "%.0f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t\n",
			z,
			units.ConvertSpeed(profile.East[i], unit),
			units.ConvertSpeed(profile.North[i], unit),
			units.ConvertSpeed(profile.Down[i], unit),
			units.ConvertSpeed(avg.Magnitude(), unit),
			units.ConvertSpeed(sep.Magnitude(), unit))
	}
	return tw.Flush()
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}
	if err := monitoring.Init(o.debug); err != nil {
		return err
	}
	defer monitoring.Sync()

	tuning, err := loadTuning(o.configPath)
	if err != nil {
		return err
	}

	in, err := openInput(o.input, stdin)
	if err != nil {
		return err
	}
	ensembles, err := ingest.ReadEnsembles(in)
	in.Close()
	if err != nil {
		return err
	}

	proc, err := ingest.NewProcessor(watercolumn.ConfigFromTuning(tuning), ingest.OptionsFromTuning(tuning))
	if err != nil {
		return err
	}
	monitoring.Logf("[%s] processing %d ensembles from %s", proc.DiveID(), len(ensembles), o.input)
	if err := proc.ProcessAll(ensembles); err != nil {
		return err
	}
	profile := proc.Finish()

	if err := writeTable(stdout, profile, proc.Engine(), tuning.GetEstimateSeparation().Seconds(), o.unit); err != nil {
		return err
	}

	if o.pngPath != "" {
		if err := plotting.SavePNG(profile, o.pngPath); err != nil {
			return err
		}
		monitoring.Logf("wrote %s", o.pngPath)
	}
	if o.htmlPath != "" {
		f, err := os.Create(o.htmlPath)
		if err != nil {
			return fmt.Errorf("failed to create html output: %w", err)
		}
		if err := plotting.RenderHTML(profile, f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		monitoring.Logf("wrote %s", o.htmlPath)
	}
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			return
		}
		log.Fatalf("watercolumn: %v", err)
	}
}
