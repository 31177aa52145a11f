package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/samsamfire/goepos/pkg/channel"
	"github.com/samsamfire/goepos/pkg/config"
	log "github.com/sirupsen/logrus"
)

const usage = `usage: eposctl [flags] <command>

commands :
  enable        bring the controller to operation enabled (velocity mode)
  disable       remove voltage from the motor
  speed <v>     set the linear speed
  status        read the power state
  ports         list the serial ports of this machine
  shell         interactive shell

flags :
`

func main() {
	configPath := flag.String("c", "", "configuration file (.ini, .yaml)")
	iface := flag.String("i", "", "channel interface override, one of "+strings.Join(channel.Interfaces(), ", "))
	port := flag.String("p", "", "serial port override e.g. /dev/ttyUSB0")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	log.SetLevel(log.InfoLevel)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load configuration : %v", err)
		}
	}
	if *iface != "" {
		cfg.Port.Interface = *iface
	}
	if *port != "" {
		cfg.Port.Channel = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := newApp(cfg, os.Stdout)
	if err != nil {
		log.Fatalf("failed to create controller : %v", err)
	}
	if err := app.exec(ctx, flag.Args()); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}
