package history

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendEvictsOldestFirst(t *testing.T) {
	s := New(2)
	for i := range 7 {
		s.Append("#go", RoleUser, "alice", fmt.Sprintf("m%d", i))
	}

	got := s.Recent("#go", 10)
	require.Len(t, got, 4)
	var contents []string
	for _, e := range got {
		contents = append(contents, e.Content)
	}
	assert.Equal(t, []string{"m3", "m4", "m5", "m6"}, contents)
}

func TestLengthNeverExceedsTwiceContext(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	channels := []string{"#a", "#B", "#b", "#c"}

	for _, n := range []int{1, 3, 5, 17} {
		s := New(n)
		for range 500 {
			ch := channels[rng.Intn(len(channels))]
			s.Append(ch, RoleUser, "u", "x")
			for _, size := range s.Stats() {
				require.LessOrEqual(t, size, 2*n)
			}
		}
	}
}

func TestChannelKeysAreCaseInsensitive(t *testing.T) {
	s := New(5)
	s.Ensure("#Go")
	s.Append("#GO", RoleUser, "alice", "hi")
	s.Append("#go", RoleAssistant, "Relay", "hello")

	assert.Equal(t, 2, s.Len("#gO"))
	assert.Equal(t, map[string]int{"#go": 2}, s.Stats())
}

func TestEnsureKeepsExisting(t *testing.T) {
	s := New(5)
	s.Append("#go", RoleUser, "alice", "hi")
	s.Ensure("#go")
	s.Ensure("#rust")

	assert.Equal(t, map[string]int{"#go": 1, "#rust": 0}, s.Stats())
}

func TestRecentReturnsCopy(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s := New(5, WithClock(clock))
	s.Append("#go", RoleUser, "alice", "one")
	clock.Advance(time.Minute)
	s.Append("#go", RoleUser, "bob", "two")

	got := s.Recent("#go", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "two", got[0].Content)
	assert.Equal(t, clock.Now(), got[0].CreatedAt)

	got[0].Content = "mutated"
	assert.Equal(t, "two", s.Recent("#go", 1)[0].Content)

	assert.Nil(t, s.Recent("#go", 0))
	assert.Empty(t, s.Recent("#unknown", 3))
}

func TestConcurrentAppendAndStats(t *testing.T) {
	s := New(3)
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				s.Append(fmt.Sprintf("#c%d", w), RoleUser, "u", fmt.Sprint(i))
				_ = s.Stats()
			}
		}()
	}
	wg.Wait()

	for ch, size := range s.Stats() {
		assert.Equal(t, 6, size, ch)
	}
}
