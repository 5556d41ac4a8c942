//go:build !windows

package spooler

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posprint/internal/pkg/errors"
)

type call struct {
	cmd   string
	stdin []byte
}

// scripted answers commands by their joined command line.
type scripted struct {
	replies map[string]string
	fail    map[string]bool
	calls   []call
}

func (s *scripted) run(_ context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	s.calls = append(s.calls, call{cmd: line, stdin: stdin})
	if s.fail[line] {
		return nil, fmt.Errorf("%s: exit status 1", name)
	}
	return []byte(s.replies[line]), nil
}

func newScripted(printer string, sc *scripted) *Sink {
	return &Sink{printer: printer, run: sc.run}
}

func TestDefaultDeviceFromLpstat(t *testing.T) {
	sc := &scripted{replies: map[string]string{
		"lpstat -d": "system default destination: TM-T20\n",
	}}
	s := newScripted("", sc)

	name, ok := s.DefaultDeviceName(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "TM-T20", name)
}

func TestNoDefaultDevice(t *testing.T) {
	sc := &scripted{replies: map[string]string{
		"lpstat -d": "no system default destination\n",
	}}
	s := newScripted("", sc)

	_, ok := s.DefaultDeviceName(context.Background())
	assert.False(t, ok)

	err := s.Transmit(context.Background(), []byte{0x1B, 0x40})
	require.Error(t, err)
	assert.True(t, errors.IsTransmission(err))
}

func TestConfiguredPrinterSkipsLookup(t *testing.T) {
	sc := &scripted{}
	s := newScripted("kitchen", sc)

	name, ok := s.DefaultDeviceName(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "kitchen", name)
	assert.Empty(t, sc.calls)
}

func TestTransmitPipesRawJob(t *testing.T) {
	sc := &scripted{}
	s := newScripted("kitchen", sc)
	data := []byte{0x1B, 0x40, 'h', 'i', 0x0A}

	require.NoError(t, s.Transmit(context.Background(), data))
	require.Len(t, sc.calls, 1)
	assert.Equal(t, "lp -d kitchen -o raw -t posprint", sc.calls[0].cmd)
	assert.Equal(t, data, sc.calls[0].stdin)
}

func TestTransmitFailure(t *testing.T) {
	sc := &scripted{fail: map[string]bool{"lp -d kitchen -o raw -t posprint": true}}
	s := newScripted("kitchen", sc)

	err := s.Transmit(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.IsTransmission(err))
	assert.Equal(t, "kitchen", errors.GetFields(err)["device"])
}

func TestBacklogDepth(t *testing.T) {
	sc := &scripted{replies: map[string]string{
		"lpstat -o kitchen": "kitchen-12 root 1024 Mon 01 Jan\nkitchen-13 root 2048 Mon 01 Jan\n\n",
	}}
	s := newScripted("kitchen", sc)
	assert.Equal(t, 2, s.BacklogDepth(context.Background()))

	sc.fail = map[string]bool{"lpstat -o kitchen": true}
	assert.Equal(t, -1, s.BacklogDepth(context.Background()))
}

func TestPurgeBacklog(t *testing.T) {
	sc := &scripted{}
	s := newScripted("kitchen", sc)

	require.NoError(t, s.PurgeBacklog(context.Background()))
	assert.Equal(t, "cancel -a kitchen", sc.calls[0].cmd)

	sc.fail = map[string]bool{"cancel -a kitchen": true}
	assert.Error(t, s.PurgeBacklog(context.Background()))
}

func TestListDevices(t *testing.T) {
	sc := &scripted{replies: map[string]string{"lpstat -e": "kitchen\nbar\n"}}
	s := newScripted("", sc)

	names, err := s.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"kitchen", "bar"}, names)
}
