package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"gonum.org/v1/gonum/floats"

	"github.com/signalsfoundry/fso-downlink/core"
	"github.com/signalsfoundry/fso-downlink/internal/logging"
)

type options struct {
	minPower   float64
	maxPower   float64
	points     int
	logSpacing bool
	packetSize int

	characteristicPower float64
	formFactor          float64
}

func main() {
	log := logging.New(logging.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		Output: os.Stderr,
	})

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Error(context.Background(), "invalid flags", logging.Err(err))
		os.Exit(2)
	}

	if err := writeCurve(os.Stdout, opts); err != nil {
		log.Error(context.Background(), "psr sweep failed", logging.Err(err))
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	rx := core.DefaultOpticalRxAntenna()
	opts := options{}
	fs := pflag.NewFlagSet("psr-curve", pflag.ContinueOnError)
	fs.Float64Var(&opts.minPower, "min-power", 1e-8, "lowest received power in W")
	fs.Float64Var(&opts.maxPower, "max-power", 5e-7, "highest received power in W")
	fs.IntVar(&opts.points, "points", 50, "number of sweep points")
	fs.BoolVar(&opts.logSpacing, "log", false, "space points logarithmically")
	fs.IntVar(&opts.packetSize, "packet-size", 1024, "packet size in bytes")
	fs.Float64Var(&opts.characteristicPower, "characteristic-power", rx.CharacteristicPower, "detector characteristic power in W")
	fs.Float64Var(&opts.formFactor, "form-factor", rx.FormFactor, "detector form factor")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, opts.validate()
}

func (o options) validate() error {
	switch {
	case o.points < 2:
		return fmt.Errorf("points must be at least 2, got %d", o.points)
	case !(o.minPower > 0) || o.maxPower <= o.minPower:
		return fmt.Errorf("power range must satisfy 0 < min < max, got [%g, %g]", o.minPower, o.maxPower)
	case o.packetSize <= 0:
		return fmt.Errorf("packet size must be positive, got %d", o.packetSize)
	case !(o.characteristicPower > 0):
		return fmt.Errorf("characteristic power must be positive, got %g", o.characteristicPower)
	case o.formFactor <= 0 || o.formFactor > 1:
		return fmt.Errorf("form factor must be in (0, 1], got %g", o.formFactor)
	}
	return nil
}

func sweepPowers(o options) []float64 {
	powers := make([]float64, o.points)
	if o.logSpacing {
		return floats.LogSpan(powers, o.minPower, o.maxPower)
	}
	return floats.Span(powers, o.minPower, o.maxPower)
}

func writeCurve(out io.Writer, o options) error {
	rx := core.DefaultOpticalRxAntenna()
	rx.CharacteristicPower = o.characteristicPower
	rx.FormFactor = o.formFactor

	w := csv.NewWriter(out)
	if err := w.Write([]string{"rx_power_w", "ber", "success_rate"}); err != nil {
		return err
	}
	for _, p := range core.SuccessRateCurve(rx, sweepPowers(o), o.packetSize) {
		if err := w.Write([]string{
			strconv.FormatFloat(p.PowerWatts, 'g', 10, 64),
			strconv.FormatFloat(p.BER, 'g', 10, 64),
			strconv.FormatFloat(p.SuccessRate, 'g', 10, 64),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
