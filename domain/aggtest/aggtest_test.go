package aggtest

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocqrs/eventing"
)

type lampEvent interface {
	eventing.DomainEvent
	isLampEvent()
}

type SwitchedOn struct{ Watts int }
type SwitchedOff struct{}

func (SwitchedOn) EventType() string     { return "SwitchedOn" }
func (SwitchedOn) EventVersion() string  { return "1.0" }
func (SwitchedOn) isLampEvent()          {}
func (SwitchedOff) EventType() string    { return "SwitchedOff" }
func (SwitchedOff) EventVersion() string { return "1.0" }
func (SwitchedOff) isLampEvent()         {}

type lampCommand interface{ isLampCommand() }

type TurnOn struct{}
type TurnOff struct{}

func (TurnOn) isLampCommand()  {}
func (TurnOff) isLampCommand() {}

type lampServices struct{ watts int }

var errAlreadyOn = stderrors.New("lamp already on")

type Lamp struct {
	On       bool
	Switches int
}

func (*Lamp) AggregateType() string { return "Lamp" }

func (l *Lamp) Apply(e lampEvent) {
	switch e.(type) {
	case SwitchedOn:
		l.On = true
	case SwitchedOff:
		l.On = false
	}
	l.Switches++
}

func (l *Lamp) Handle(_ context.Context, cmd lampCommand, svc lampServices) ([]lampEvent, error) {
	switch cmd.(type) {
	case TurnOn:
		if l.On {
			return nil, errAlreadyOn
		}
		return []lampEvent{SwitchedOn{Watts: svc.watts}}, nil
	case TurnOff:
		if !l.On {
			return nil, nil
		}
		return []lampEvent{SwitchedOff{}}, nil
	}
	return nil, fmt.Errorf("unknown command %T", cmd)
}

func newLampFramework() *TestFramework[lampCommand, lampEvent, lampServices, *Lamp] {
	return NewTestFramework[lampCommand, lampEvent, lampServices, *Lamp](func() *Lamp { return &Lamp{} }, lampServices{watts: 60})
}

// recordingT 记录断言失败而不终止外层测试
type recordingT struct {
	testing.TB
	failures []string
}

func (r *recordingT) Helper()      {}
func (r *recordingT) Name() string { return "recording" }

func (r *recordingT) Errorf(format string, args ...any) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestGivenNoPreviousEvents(t *testing.T) {
	newLampFramework().
		GivenNoPreviousEvents().
		When(context.Background(), TurnOn{}).
		ThenExpectEvents(t, SwitchedOn{Watts: 60})
}

func TestGivenEventsAreApplied(t *testing.T) {
	v := newLampFramework().
		Given(SwitchedOn{Watts: 40}).
		And(SwitchedOff{}).
		When(context.Background(), TurnOn{})

	v.ThenExpectEvents(t, SwitchedOn{Watts: 60})
	assert.Equal(t, 2, v.Aggregate().Switches)
	assert.False(t, v.Aggregate().On, "Handle must not mutate state")
}

func TestThenExpectError(t *testing.T) {
	v := newLampFramework().Given(SwitchedOn{Watts: 60}).When(context.Background(), TurnOn{})
	v.ThenExpectError(t, "lamp already on")
	v.ThenExpectErrorIs(t, errAlreadyOn)

	events, err := v.Inspect()
	assert.Empty(t, events)
	assert.ErrorIs(t, err, errAlreadyOn)
}

func TestThenExpectNoEvents(t *testing.T) {
	newLampFramework().GivenNoPreviousEvents().When(context.Background(), TurnOff{}).ThenExpectNoEvents(t)
}

func TestMismatchesAreReported(t *testing.T) {
	fw := newLampFramework()

	rt := &recordingT{}
	ok := fw.GivenNoPreviousEvents().When(context.Background(), TurnOn{}).ThenExpectEvents(rt, SwitchedOn{Watts: 100})
	assert.False(t, ok)
	require.Len(t, rt.failures, 1)

	rt = &recordingT{}
	ok = fw.GivenNoPreviousEvents().When(context.Background(), TurnOn{}).ThenExpectError(rt, "lamp already on")
	assert.False(t, ok)
	require.Len(t, rt.failures, 1)
	assert.Contains(t, rt.failures[0], "expected error")

	rt = &recordingT{}
	ok = fw.Given(SwitchedOn{}).When(context.Background(), TurnOn{}).ThenExpectEvents(rt, SwitchedOn{Watts: 60})
	assert.False(t, ok)
	require.Len(t, rt.failures, 1)
}

func TestExecutorIsReusable(t *testing.T) {
	base := newLampFramework().Given(SwitchedOn{Watts: 60})
	extended := base.And(SwitchedOff{})

	base.When(context.Background(), TurnOn{}).ThenExpectError(t, "lamp already on")
	extended.When(context.Background(), TurnOn{}).ThenExpectEvents(t, SwitchedOn{Watts: 60})
}
