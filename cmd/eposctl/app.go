package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/abiosoft/ishell"
	epos "github.com/samsamfire/goepos"
	"github.com/samsamfire/goepos/pkg/channel"
	"github.com/samsamfire/goepos/pkg/config"
	"github.com/samsamfire/goepos/pkg/controller"
	"go.bug.st/serial/enumerator"

	_ "github.com/samsamfire/goepos/pkg/channel/serial"
	_ "github.com/samsamfire/goepos/pkg/channel/virtual"
	_ "github.com/samsamfire/goepos/pkg/sim"
)

var errUsage = errors.New("invalid command line")

type app struct {
	cfg   config.Config
	ctrl  *controller.Controller
	out   io.Writer
	ports func() ([]*enumerator.PortDetails, error)
}

func newApp(cfg config.Config, out io.Writer) (*app, error) {
	ch, err := channel.New(cfg.Port.Interface, cfg.Port.Channel, cfg.Settings())
	if err != nil {
		return nil, err
	}
	ctrl, err := controller.New(ch,
		controller.WithTimeout(cfg.Timeout()),
		controller.WithLimits(int32(cfg.Motor.MaxVelocity), int32(cfg.Motor.MaxAcceleration)),
		controller.WithMaxStatusReads(cfg.Motor.MaxStatusReads),
	)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, ctrl: ctrl, out: out, ports: enumerator.GetDetailedPortsList}, nil
}

// exec runs a single command, args[0] being its name
func (a *app) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "enable":
		return a.report(a.ctrl.Enable(ctx))
	case "disable":
		return a.report(a.ctrl.Disable(ctx))
	case "speed":
		if len(args) != 2 {
			return fmt.Errorf("%w : speed needs one value", errUsage)
		}
		speed, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("%w : %v", errUsage, err)
		}
		fmt.Fprintf(a.out, "setpoint %d rpm\n", controller.RPM(speed))
		return a.report(a.ctrl.SetSpeed(ctx, speed))
	case "status":
		state, err := a.ctrl.ReadStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%v (x%x)\n", state, uint16(state))
		return nil
	case "ports":
		return a.listPorts()
	case "shell":
		return a.shell(ctx)
	}
	return fmt.Errorf("%w : unknown command %q", errUsage, args[0])
}

func (a *app) report(res epos.Result) error {
	fmt.Fprintln(a.out, res)
	return res.Error()
}

func (a *app) listPorts() error {
	ports, err := a.ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(a.out, "no serial ports found")
		return nil
	}
	for _, port := range ports {
		if port.IsUSB {
			fmt.Fprintf(a.out, "%s\tUSB %s:%s %s %s\n", port.Name, port.VID, port.PID, port.SerialNumber, port.Product)
		} else {
			fmt.Fprintf(a.out, "%s\n", port.Name)
		}
	}
	return nil
}

// shell runs an interactive session offering every other command
func (a *app) shell(ctx context.Context) error {
	sh := ishell.New()
	sh.SetPrompt(fmt.Sprintf("[%s %s] > ", a.cfg.Port.Interface, a.cfg.Port.Channel))
	commands := []struct{ name, help string }{
		{"enable", "bring the controller to operation enabled"},
		{"disable", "remove voltage from the motor"},
		{"speed", "speed <v> : set the linear speed"},
		{"status", "read the power state"},
		{"ports", "list the serial ports"},
	}
	for _, command := range commands {
		name := command.name
		sh.AddCmd(&ishell.Cmd{
			Name: name,
			Help: command.help,
			Func: func(c *ishell.Context) {
				if err := a.exec(ctx, append([]string{name}, c.Args...)); err != nil {
					c.Err(err)
				}
			},
		})
	}
	sh.Run()
	return nil
}
