// Command autopilot is the online Supervisor binary (spec §4.8): it
// loads the JSON configuration, opens each configured device's serial
// port, and runs the real-time control loop until interrupted.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/oceanoptics/sas-autopilot/internal/angle"
	"github.com/oceanoptics/sas-autopilot/internal/autopilot"
	"github.com/oceanoptics/sas-autopilot/internal/binlog"
	"github.com/oceanoptics/sas-autopilot/internal/config"
	"github.com/oceanoptics/sas-autopilot/internal/gps"
	"github.com/oceanoptics/sas-autopilot/internal/httputil"
	"github.com/oceanoptics/sas-autopilot/internal/indexingtable"
	"github.com/oceanoptics/sas-autopilot/internal/monitoring"
	"github.com/oceanoptics/sas-autopilot/internal/serialmux"
	"github.com/oceanoptics/sas-autopilot/internal/supervisor"
	"github.com/oceanoptics/sas-autopilot/internal/timeutil"
	"github.com/oceanoptics/sas-autopilot/internal/version"
)

var (
	configFile   = flag.String("cfg", config.DefaultConfigPath, "path to JSON configuration file")
	versionFlag  = flag.Bool("version", false, "print version information and exit")
	versionShort = flag.Bool("v", false, "print version information and exit (shorthand)")
)

func main() {
	flag.Parse()
	if *versionFlag || *versionShort {
		fmt.Printf("autopilot %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		monitoring.Logf("autopilot: loading %s: %v", *configFile, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		monitoring.Logf("autopilot: invalid config %s: %v", *configFile, err)
		os.Exit(1)
	}

	lo, hi := cfg.GetValidIndexingTableOrientationLimits()
	targetLo, targetHi := cfg.GetValidAngleAwayFromSunLimits()
	pilot := autopilot.New(autopilot.Config{
		GPSOrientationOnShip:           angle.SignedAngle(cfg.GetGPSOrientationOnShip()),
		IndexingTableOrientationOnShip: angle.SignedAngle(cfg.GetIndexingTableOrientationOnShip()),
		TowerLimits:                    autopilot.NewLimits(lo, hi),
		Target:                         angle.SignedAngle(cfg.GetOptimalAngleAwayFromSun()),
		TargetLimits:                   autopilot.NewLimits(targetLo, targetHi),
		MinDistDelta:                   cfg.GetMinimumDistanceDelta(),
	})

	clock := timeutil.RealClock{}

	mergedLog := binlog.NewWriter(binlog.Options{
		Dir:               cfg.GetPathToData(),
		FilenamePrefix:    cfg.GetFilenamePrefix(),
		FilenameExt:       cfg.GetFilenameExt(),
		FileLengthMinutes: int(cfg.GetFileLength().Minutes()),
	})
	defer mergedLog.Shutdown()

	var devices supervisor.Devices

	if gpsPort, ok := openDevicePort(cfg, "GPS"); ok {
		gpsLog := binlog.NewTextLog(deviceLogOptions(cfg, "GPS"), gps.CSVHeader())
		devices.GPS = gps.NewReader(gpsPort, clock, gpsLog)
	} else {
		monitoring.Logf("autopilot: GPS device not configured, running without GPS input")
	}

	// radiometer.Calibration decodes frame headers into Lt/Li/Es/THS roles
	// and wavelength labels from a Satlantic .sip/.tdf device file; that
	// format is normally parsed by pysatlantic, which is outside this
	// module's dependency pack, so no concrete Calibration ships here. An
	// operator wires one in by constructing radiometer.NewReader directly
	// with their own implementation before starting the Supervisor.
	if sip := cfg.GetSIP(); sip != "" {
		monitoring.Logf("autopilot: HyperSAS.sip=%s configured but no Calibration implementation is wired in, running without radiometer input", sip)
	} else {
		monitoring.Logf("autopilot: no calibration wired in, running without radiometer input")
	}

	if tablePort, ok := openDevicePort(cfg, "IndexingTable"); ok {
		tableLog := binlog.NewTextLog(deviceLogOptions(cfg, "IndexingTable"), indexingtable.CSVHeader())
		devices.Table = indexingtable.New(tablePort, indexingtable.NoopRelay{}, clock, tableLog)
	} else {
		monitoring.Logf("autopilot: IndexingTable device not configured, running without tower control")
	}

	checkInternet := func() bool {
		return httputil.CheckInternet(net.DialTimeout, "", 0)
	}

	// zeroSunPosition and zeroDeclination stand in for the spec's external pure-function
	// collaborators (§1: sun-position algorithm, world magnetic model).
	// Neither library appears anywhere in the example pack, so this
	// binary wires in a fixed zero value rather than fabricating a
	// dependency; an operator integrating a real ephemeris/magnetic-model
	// library plugs it in here.
	sv := supervisor.New(cfg, *configFile, pilot, devices,
		zeroSunPosition, zeroDeclination,
		clock, mergedLog, checkInternet)
	sv.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	sv.Stop()
}

func zeroSunPosition(lat, lon float64, t time.Time, altitude float64) (elevation, azimuth float64) {
	return 0, 0
}

func zeroDeclination(lat, lon, altitude float64, date time.Time) float64 {
	return 0
}

func deviceLogOptions(cfg *config.AutopilotConfig, name string) binlog.Options {
	dev, _ := cfg.Device(name)
	return binlog.Options{
		Dir:               dev.GetPathToData(cfg.GetPathToData()),
		FilenamePrefix:    name + "_",
		FilenameExt:       "csv",
		FileLengthMinutes: int(dev.GetFileLength(cfg.GetFileLength()).Minutes()),
	}
}

// openDevicePort opens the named device's configured serial port. The
// same *serial.Port value satisfies gps.NewReader/radiometer.NewReader's
// io.Reader parameter and indexingtable.New's serialmux.SerialPorter
// parameter, so one helper covers all three devices.
func openDevicePort(cfg *config.AutopilotConfig, name string) (serial.Port, bool) {
	dev, ok := cfg.Device(name)
	if !ok || dev.GetPort() == "" {
		return nil, false
	}
	opts, err := serialmux.PortOptions{
		BaudRate: dev.GetBaudRate(),
		DataBits: dev.GetByteSize(),
		StopBits: dev.GetStopBits(),
		Parity:   dev.GetParity(),
	}.Normalize()
	if err != nil {
		monitoring.Logf("autopilot: %s port options: %v", name, err)
		return nil, false
	}
	mode, err := opts.SerialMode()
	if err != nil {
		monitoring.Logf("autopilot: %s serial mode: %v", name, err)
		return nil, false
	}
	port, err := serial.Open(dev.GetPort(), mode)
	if err != nil {
		monitoring.Logf("autopilot: opening %s port %s: %v", name, dev.GetPort(), err)
		return nil, false
	}
	return port, true
}
