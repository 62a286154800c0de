// wavecap reads a waveform edge trace from a serial device and prints
// per-pin frequency and duty statistics, for checking generated waveforms
// against what actually toggled on the pins.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"wavegen/host/capture"
	"wavegen/host/serial"
	"wavegen/trace"
)

var (
	device      = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud        = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	cyclesPerUs = flag.Uint("cycles-per-us", 80, "Device cycle counter rate")
	interval    = flag.Duration("interval", 2*time.Second, "Statistics print interval")
	cumulative  = flag.Bool("cumulative", false, "Accumulate statistics instead of resetting each interval")
)

func main() {
	flag.Parse()

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	port, err := serial.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer port.Close()

	// Discard whatever accumulated in the OS buffer before we attached;
	// the reader would only have to resync past it.
	if err := port.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: flush: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Capturing edge trace from %s (%d cycles/us)\n", *device, *cyclesPerUs)

	reader := trace.NewReader(port)
	analyzer := capture.NewAnalyzer()
	nextPrint := time.Now().Add(*interval)

	for {
		edge, err := reader.ReadEdge()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: trace stream: %v\n", err)
			os.Exit(1)
		}
		analyzer.Feed(edge)

		if time.Now().Before(nextPrint) {
			continue
		}
		nextPrint = time.Now().Add(*interval)
		printStats(analyzer)
		if !*cumulative {
			analyzer.Reset()
		}
	}
}

func printStats(a *capture.Analyzer) {
	pins := a.ActivePins()
	if len(pins) == 0 {
		fmt.Println("-- no edges --")
		return
	}
	fmt.Printf("%-4s %8s %10s %8s %7s\n", "pin", "edges", "freq(Hz)", "duty", "periods")
	for _, pin := range pins {
		s, ok := a.Stats(pin)
		if !ok {
			continue
		}
		fmt.Printf("%-4d %8d %10d %7.1f%% %7d\n",
			pin, s.Edges, s.FrequencyHz(uint32(*cyclesPerUs)),
			float64(s.DutyPermille)/10, s.Periods)
	}
}
