// Command reassemble is the Offline Reassembler binary (spec §4.10): it
// reads a directory of per-sensor logs (GPS CSVs, indexing-table CSVs,
// radiometer binaries) from a completed deployment and regenerates the
// same merged, calendar-windowed binary output the online Supervisor
// would have produced.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/oceanoptics/sas-autopilot/internal/angle"
	"github.com/oceanoptics/sas-autopilot/internal/config"
	"github.com/oceanoptics/sas-autopilot/internal/reassemble"
	"github.com/oceanoptics/sas-autopilot/internal/version"
)

func main() {
	var (
		calFlag      = flag.String("cal", "", "HyperSAS calibration file (.sip); unused until a Calibration implementation is wired in")
		cfgFlag      = flag.String("cfg", "", "optional JSON config file providing tower orientation (AutoPilot section)")
		inDir        = flag.String("d", "", "input directory of GPS/IndexingTable/HyperSAS logs")
		modeFlag     = flag.String("m", "day", "output window: day or hour")
		prefix       = flag.String("f", "HyperSAS_", "output filename prefix")
		experiment   = flag.String("e", "", "EXPERIMENT header value")
		cruise       = flag.String("c", "", "CRUISE-ID header value")
		versionFlag  = flag.Bool("version", false, "print version information and exit")
		versionShort = flag.Bool("v", false, "print version information and exit (shorthand)")
	)
	flag.Parse()

	if *versionFlag || *versionShort {
		fmt.Printf("reassemble %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *inDir == "" {
		log.Fatalf("reassemble: -d input directory is required")
	}
	outDir := flag.Arg(0)
	if outDir == "" {
		log.Fatalf("reassemble: missing positional output directory")
	}

	mode, err := reassemble.ParseMode(*modeFlag)
	if err != nil {
		log.Fatalf("reassemble: -m: %v", err)
	}

	if *calFlag != "" {
		log.Printf("reassemble: --cal %s ignored, no Calibration implementation is wired in; radiometer frames pass through unparsed", *calFlag)
	}

	var tableOrientation float64
	if *cfgFlag != "" {
		cfg, err := config.Load(*cfgFlag)
		if err != nil {
			log.Fatalf("reassemble: loading %s: %v", *cfgFlag, err)
		}
		tableOrientation = float64(angle.SignedAngle(cfg.GetIndexingTableOrientationOnShip()).Normalize())
	}

	summary, err := reassemble.Run(reassemble.Options{
		InputDir:       *inDir,
		OutputDir:      outDir,
		Mode:           mode,
		FilenamePrefix: *prefix,
		Header: reassemble.HeaderMeta{
			Cruise:     *cruise,
			Experiment: *experiment,
		},
		IndexingTableOrientationOnShip: tableOrientation,
		Now:                            time.Now,
	})
	if err != nil {
		log.Fatalf("reassemble: %v", err)
	}

	fmt.Printf("reassemble: wrote %d window(s), %d frame(s), skipped %d already-done window(s)\n",
		summary.WindowsWritten, summary.FramesWritten, summary.WindowsSkipped)
}
