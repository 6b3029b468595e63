package scratchpad

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"synapse/pkg/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestScratchpad_NewestOverwrites(t *testing.T) {
	sp := &Scratchpad{}
	_, ok := sp.Text()
	assert.False(t, ok)

	sp.SetText("first resume")
	sp.SetText("second resume")
	text, ok := sp.Text()
	require.True(t, ok)
	assert.Equal(t, "second resume", text)

	sp.SetTable(&tools.Table{Fields: []string{"a"}})
	sp.SetTable(&tools.Table{Fields: []string{"b"}})
	tbl, ok := sp.Table()
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, tbl.Fields)

	assert.ElementsMatch(t, []string{KindExtractedText, KindExtractedTable}, sp.Kinds())
}

func TestScratchpad_TakePendingEmail(t *testing.T) {
	sp := &Scratchpad{}
	sp.SetPendingEmail(PendingEmail{ID: "p1", Email: tools.Email{To: "a@b.c", Subject: "Offer"}})

	_, ok := sp.TakePendingEmail("other")
	assert.False(t, ok)

	e, ok := sp.TakePendingEmail("p1")
	require.True(t, ok)
	assert.Equal(t, "a@b.c", e.To)
	assert.False(t, e.CreatedAt.IsZero())

	_, ok = sp.TakePendingEmail("")
	assert.False(t, ok, "taken emails are cleared")
}

func TestStore_GetCreatesAndReuses(t *testing.T) {
	st := NewStore(time.Minute, 10)
	a := st.Get("a")
	assert.Same(t, a, st.Get("a"))
	assert.NotSame(t, a, st.Get("b"))
	assert.Equal(t, 2, st.Len())
	assert.NotNil(t, a.History)
}

func TestStore_Expiry(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	st := NewStore(10*time.Minute, 0, WithClock(clk.now))

	a := st.Get("a")
	a.Scratchpad.SetText("resume")
	clk.advance(5 * time.Minute)
	st.Get("b")

	clk.advance(6 * time.Minute)
	_, ok := st.Peek("a")
	assert.False(t, ok, "a idle for 11m")
	_, ok = st.Peek("b")
	assert.True(t, ok)

	fresh := st.Get("a")
	assert.NotSame(t, a, fresh)
	_, ok = fresh.Scratchpad.Text()
	assert.False(t, ok, "expired scratchpad is not resurrected")

	clk.advance(11 * time.Minute)
	assert.Equal(t, 2, st.Sweep())
	assert.Equal(t, 0, st.Len())
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	st := NewStore(0, 2)
	a := st.Get("a")
	st.Get("b")
	st.Get("a") // a becomes most recent
	st.Get("c") // evicts b

	_, ok := st.Peek("b")
	assert.False(t, ok)
	got, ok := st.Peek("a")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, 2, st.Len())
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	st := NewStore(time.Hour, 100)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			sess := st.Get(id)
			sess.Lock()
			defer sess.Unlock()
			sess.Scratchpad.SetTable(&tools.Table{Fields: []string{id}})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("s%d", i)
		tbl, ok := st.Get(id).Scratchpad.Table()
		require.True(t, ok)
		assert.Equal(t, []string{id}, tbl.Fields)
	}
}

func TestStore_RunStopsOnCancel(t *testing.T) {
	st := NewStore(time.Millisecond, 0)
	st.Get("a")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.Run(ctx, time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return st.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
