package main

import (
	"errors"
	"fmt"

	"github.com/samcharles93/smxoffload/internal/device"
	"github.com/samcharles93/smxoffload/internal/logger"
	"github.com/samcharles93/smxoffload/internal/serial"
	"github.com/samcharles93/smxoffload/internal/transport"
)

var errNoPort = errors.New("no serial port: set --port, " + envPort + " or port in the config file (or use --emulate)")

// openPort opens the configured link: the accelerator model when
// --emulate is set, otherwise the serial device. name describes it for
// logs and the health endpoint.
func openPort(log logger.Logger) (port transport.Port, name string, err error) {
	if emulate != "" {
		p, ok := device.ParsePersonality(emulate)
		if !ok {
			return nil, "", fmt.Errorf("unknown --emulate personality %q (want softmax or echo)", emulate)
		}
		name = "emulator:" + p.String()
		log.Info("using accelerator model", "personality", p.String())
		return transport.NewLoopback(device.New(p, device.Options{})), name, nil
	}
	if portPath == "" {
		return nil, "", errNoPort
	}
	log.Info("opening serial port", "port", portPath, "baud", baud, "settle", settle)
	sp, err := serial.Open(serial.Config{
		Path:   portPath,
		Baud:   int(baud),
		Settle: settle,
	})
	if err != nil {
		return nil, "", err
	}
	return sp, sp.Path(), nil
}
