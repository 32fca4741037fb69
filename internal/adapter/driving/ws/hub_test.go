package ws

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/econpulse/econpulse/internal/domain/model"
)

func testHub() *Hub {
	return NewHub(30*time.Second, slog.Default())
}

func testUpdate(slug, country, category string, imp model.Importance) model.ReleaseUpdate {
	actual := 3.2
	return model.ReleaseUpdate{
		EventSlug:   slug,
		EventName:   "Event " + slug,
		Country:     country,
		Category:    category,
		Importance:  imp,
		ReleaseDate: "2026-08-15",
		Actual:      &actual,
		UpdatedAt:   time.Date(2026, 8, 15, 12, 30, 0, 0, time.UTC),
	}
}

// drain pops every queued message off the client's send channel.
func drain(c *client) []serverMessage {
	var msgs []serverMessage
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestHub_AddDefaultsToAll(t *testing.T) {
	h := testHub()

	c, total := h.add(nil)
	assert.Equal(t, 1, total)
	assert.NotEmpty(t, c.id)

	connected, subscriptions := h.Stats()
	assert.Equal(t, 1, connected)
	assert.Equal(t, 1, subscriptions["all"])
}

func TestHub_RemoveIsIdempotent(t *testing.T) {
	h := testHub()
	c, _ := h.add(nil)

	assert.Equal(t, 0, h.remove(c.id))
	assert.Equal(t, 0, h.remove(c.id))
}

func TestHub_Subscribe(t *testing.T) {
	h := testHub()
	c, _ := h.add(nil)

	current, rejected := h.subscribe(c, []string{"country:US", "importance:high", "bogus", "price:oil"})

	assert.ElementsMatch(t, []string{"all", "country:US", "importance:high"}, current)
	assert.ElementsMatch(t, []string{"bogus", "price:oil"}, rejected)
}

func TestHub_UnsubscribeToEmptyRestoresAll(t *testing.T) {
	h := testHub()
	c, _ := h.add(nil)

	current, rejected := h.subscribe(c, []string{"country:US"})
	require.Empty(t, rejected)
	require.ElementsMatch(t, []string{"all", "country:US"}, current)

	current = h.unsubscribe(c, []string{"all", "country:US"})

	// A connection is never left without routing.
	assert.Equal(t, []string{"all"}, current)
}

func TestHub_BroadcastUpdate_AllReceivesEverything(t *testing.T) {
	h := testHub()
	c, _ := h.add(nil)

	sent := h.BroadcastUpdate(testUpdate("us-cpi", "US", "inflation", model.ImportanceHigh))
	assert.Equal(t, 1, sent)
	sent = h.BroadcastUpdate(testUpdate("gb-gdp", "GB", "growth", model.ImportanceLow))
	assert.Equal(t, 1, sent)

	msgs := drain(c)
	require.Len(t, msgs, 2)
	assert.Equal(t, "release_update", msgs[0].Type)
	require.NotNil(t, msgs[0].Data)
	assert.Equal(t, "us-cpi", msgs[0].Data.EventSlug)
}

func TestHub_BroadcastUpdate_CountryRouting(t *testing.T) {
	h := testHub()
	us, _ := h.add(nil)
	gb, _ := h.add(nil)

	h.subscribe(us, []string{"country:US"})
	h.unsubscribe(us, []string{"all"})
	h.subscribe(gb, []string{"country:GB"})
	h.unsubscribe(gb, []string{"all"})

	sent := h.BroadcastUpdate(testUpdate("us-cpi", "US", "inflation", model.ImportanceHigh))
	assert.Equal(t, 1, sent)

	usMsgs := drain(us)
	require.Len(t, usMsgs, 1)
	assert.Equal(t, "us-cpi", usMsgs[0].Data.EventSlug)
	assert.Empty(t, drain(gb))
}

func TestHub_BroadcastUpdate_ChannelKinds(t *testing.T) {
	update := testUpdate("us-nfp", "US", "employment", model.ImportanceHigh)

	tests := []struct {
		name    string
		channel string
		want    bool
	}{
		{"country match", "country:US", true},
		{"country miss", "country:DE", false},
		{"category match", "category:employment", true},
		{"importance match", "importance:high", true},
		{"importance miss", "importance:low", false},
		{"event match", "event:us-nfp", true},
		{"event miss", "event:us-cpi", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHub()
			c, _ := h.add(nil)
			h.subscribe(c, []string{tt.channel})
			h.unsubscribe(c, []string{"all"})

			sent := h.BroadcastUpdate(update)
			if tt.want {
				assert.Equal(t, 1, sent)
				assert.Len(t, drain(c), 1)
			} else {
				assert.Equal(t, 0, sent)
				assert.Empty(t, drain(c))
			}
		})
	}
}

func TestHub_BroadcastUpdate_FullQueueDropsMessage(t *testing.T) {
	h := testHub()
	c, _ := h.add(nil)

	update := testUpdate("us-cpi", "US", "inflation", model.ImportanceHigh)
	for i := 0; i < sendBuffer; i++ {
		require.True(t, c.enqueue(serverMessage{Type: "release_update"}))
	}

	// The slow client loses the update; broadcast does not block on it.
	sent := h.BroadcastUpdate(update)
	assert.Equal(t, 0, sent)
	assert.Len(t, drain(c), sendBuffer)
}

func TestHub_Stats_PerChannelCounts(t *testing.T) {
	h := testHub()
	a, _ := h.add(nil)
	b, _ := h.add(nil)
	h.subscribe(a, []string{"country:US"})
	h.subscribe(b, []string{"country:US", "importance:high"})

	connected, subscriptions := h.Stats()
	assert.Equal(t, 2, connected)
	assert.Equal(t, 2, subscriptions["all"])
	assert.Equal(t, 2, subscriptions["country:US"])
	assert.Equal(t, 1, subscriptions["importance:high"])
}

func TestValidChannel(t *testing.T) {
	tests := []struct {
		channel string
		want    bool
	}{
		{"all", true},
		{"country:US", true},
		{"category:inflation", true},
		{"importance:high", true},
		{"event:us-cpi", true},
		{"country:", false},
		{"price:oil", false},
		{"bogus", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			assert.Equal(t, tt.want, validChannel(tt.channel))
		})
	}
}
