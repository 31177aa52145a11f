package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/samsamfire/goepos/pkg/channel"
	"github.com/samsamfire/goepos/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	cfg := config.Default()
	cfg.Port.Interface = "sim"
	out := &bytes.Buffer{}
	a, err := newApp(cfg, out)
	require.Nil(t, err)
	return a, out
}

func TestCommands(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	assert.Nil(t, a.exec(ctx, []string{"status"}))
	assert.Contains(t, out.String(), "SWITCH-ON-DISABLED")

	out.Reset()
	assert.Nil(t, a.exec(ctx, []string{"enable"}))
	assert.Contains(t, out.String(), "SUCCESS")

	out.Reset()
	assert.Nil(t, a.exec(ctx, []string{"speed", "100"}))
	assert.Contains(t, out.String(), "setpoint 1841 rpm")

	out.Reset()
	assert.Nil(t, a.exec(ctx, []string{"status"}))
	assert.Contains(t, out.String(), "OPERATION-ENABLED")

	assert.Nil(t, a.exec(ctx, []string{"disable"}))
}

func TestUsageErrors(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	for _, args := range [][]string{{}, {"speed"}, {"speed", "fast"}, {"jump"}} {
		assert.True(t, errors.Is(a.exec(ctx, args), errUsage), "%v", args)
	}
}

func TestInterfacesRegistered(t *testing.T) {
	assert.Subset(t, channel.Interfaces(), []string{"serial", "sim", "virtual"})
}

func TestUnknownInterface(t *testing.T) {
	cfg := config.Default()
	cfg.Port.Interface = "carrier-pigeon"
	_, err := newApp(cfg, &bytes.Buffer{})
	assert.NotNil(t, err)
}

func TestPorts(t *testing.T) {
	a, out := newTestApp(t)
	a.ports = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A1", Product: "FT232R"},
		}, nil
	}
	assert.Nil(t, a.exec(context.Background(), []string{"ports"}))
	assert.Equal(t, "/dev/ttyS0\n/dev/ttyUSB0\tUSB 0403:6001 A1 FT232R\n", out.String())

	out.Reset()
	a.ports = func() ([]*enumerator.PortDetails, error) { return nil, nil }
	assert.Nil(t, a.exec(context.Background(), []string{"ports"}))
	assert.Equal(t, "no serial ports found\n", out.String())
}
