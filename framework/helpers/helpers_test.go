package helpers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTestRecorder(t *testing.T) {
	t.Run("Errorf", func(t *testing.T) {
		var tr TestRecorder
		tr.Errorf("hello %s", "there")
		tr.Errorf("bye")
		assert.Equal(t, []string{"hello there", "bye"}, tr.Errors)
		assert.False(t, tr.Terminated)
	})

	t.Run("FailNow", func(t *testing.T) {
		var tr1 TestRecorder
		tr1.FailNow()
		assert.True(t, tr1.Terminated)

		tr2 := TestRecorder{PanicOnTerminate: true}
		assert.Panics(t, func() { tr2.FailNow() })
		assert.True(t, tr2.Terminated)
	})

	t.Run("Err", func(t *testing.T) {
		var tr TestRecorder
		assert.Nil(t, tr.Err())

		tr.Errorf("hello %s", "there")
		tr.Errorf("bye")
		assert.Equal(t, errors.New("hello there, bye"), tr.Err())
	})

	t.Run("RunRecorded stops at FailNow", func(t *testing.T) {
		tr := TestRecorder{PanicOnTerminate: true}
		reachedEnd := false
		tr.RunRecorded(func(tc TestContext) {
			tc.Errorf("oops")
			tc.FailNow()
			reachedEnd = true
		})
		assert.False(t, reachedEnd)
		assert.True(t, tr.Terminated)
		assert.Equal(t, []string{"oops"}, tr.Errors)
	})

	t.Run("RunRecorded propagates other panics", func(t *testing.T) {
		tr := TestRecorder{PanicOnTerminate: true}
		assert.PanicsWithValue(t, "boom", func() {
			tr.RunRecorded(func(TestContext) { panic("boom") })
		})
	})
}

type option struct{ name string }

func (o option) Configure(target *[]string) error {
	if o.name == "" {
		return errors.New("empty")
	}
	*target = append(*target, o.name)
	return nil
}

func TestApplyOptions(t *testing.T) {
	var names []string
	assert.NoError(t, ApplyOptions(&names, option{"a"}, option{"b"}))
	assert.Equal(t, []string{"a", "b"}, names)

	names = nil
	assert.Error(t, ApplyOptions(&names, option{"a"}, option{""}, option{"c"}))
	assert.Equal(t, []string{"a"}, names)
}

func TestGenerics(t *testing.T) {
	assert.Equal(t, "x", IfElse(true, "x", "y"))
	assert.Equal(t, "y", IfElse(false, "x", "y"))
	assert.True(t, SliceContains(2, []int{1, 2, 3}))
	assert.False(t, SliceContains("z", []string{"a"}))
}

func TestPollUntil(t *testing.T) {
	counter := 0
	ok := PollUntil(func() bool {
		counter++
		return counter >= 3
	}, time.Second, time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, 3, counter)

	assert.False(t, PollUntil(func() bool { return false }, time.Millisecond*20, time.Millisecond*5))
}

func TestRequireEventuallyFailure(t *testing.T) {
	tr := TestRecorder{PanicOnTerminate: true}
	tr.RunRecorded(func(tc TestContext) {
		RequireEventually(tc, func() bool { return false }, time.Millisecond*10, time.Millisecond,
			"never became %s", "true")
	})
	assert.True(t, tr.Terminated)
	assert.Equal(t, []string{"never became true"}, tr.Errors)
}
