package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	day := mustDay(t, "2026-03-15")
	timed := func(id, hhmm string) Task {
		return Task{ID: id, Anchor: Anchor{Day: day, Time: mustTime(t, hhmm), HasTime: true}}
	}

	lecture := timed("lecture", "14:00")
	dinner := timed("dinner", "19:00")
	midnight := timed("midnight", "00:00")
	untimed := Task{ID: "untimed", Anchor: Anchor{Day: day}}
	spanning := Task{ID: "spanning", Anchor: Anchor{Day: day, Time: mustTime(t, "10:00"), HasTime: true}, EndDay: day.AddDays(2)}

	fixed, flexible := Classify([]Task{lecture, untimed, midnight, dinner, spanning})

	require.Equal(t, []Task{lecture, dinner}, fixed)
	require.Equal(t, []Task{untimed, midnight, spanning}, flexible)
}

func TestClassifyEmpty(t *testing.T) {
	fixed, flexible := Classify(nil)
	require.Empty(t, fixed)
	require.Empty(t, flexible)
}
