package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type countdown struct {
	name  string
	n     int
	order *[]string
}

func (c *countdown) Tick() bool {
	*c.order = append(*c.order, c.name)
	c.n--
	return c.n > 0
}

func TestRunAllDropsFinishedTasks(t *testing.T) {
	var order []string
	r := NewRunner(
		&countdown{name: "a", n: 2, order: &order},
		&countdown{name: "b", n: 1, order: &order},
	)
	r.Run()
	assert.Equal(t, []string{"a", "b", "a"}, order)
	assert.Equal(t, 0, r.Len())
}

func TestTickAllReturnsRemainingCount(t *testing.T) {
	var order []string
	r := NewRunner(&countdown{name: "solo", n: 3, order: &order})
	assert.Equal(t, 1, r.TickAll())
	assert.Equal(t, 1, r.TickAll())
	assert.Equal(t, 0, r.TickAll())
}

func TestFuncAdapter(t *testing.T) {
	calls := 0
	f := Func(func() bool {
		calls++
		return calls < 3
	})
	r := NewRunner(f)
	r.Run()
	assert.Equal(t, 3, calls)
}

func TestEmptyRunnerIsImmediatelyIdle(t *testing.T) {
	r := NewRunner()
	assert.Equal(t, 0, r.TickAll())
}
