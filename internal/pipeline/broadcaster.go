package pipeline

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/alertness"
)

// Update is the live view of one processed frame, as streamed to dashboards.
type Update struct {
	Frame       int64                  `json:"frame"`
	At          time.Time              `json:"at"`
	NoFace      bool                   `json:"no_face"`
	Level       alertness.Level        `json:"level"`
	Score       int                    `json:"score"`
	Factors     []string               `json:"factors"`
	SmoothedEAR float64                `json:"smoothed_ear"`
	Angle       float64                `json:"smoothed_angle"`
	Transitions []alertness.Transition `json:"transitions,omitempty"`
}

// UpdateFromResult summarises res using its last measured face.
func UpdateFromResult(res alertness.FrameResult) Update {
	u := Update{
		Frame:       res.Frame,
		At:          res.At,
		NoFace:      res.NoFace,
		Level:       res.Level,
		Factors:     []string{},
		Transitions: res.Transitions,
	}
	for i := len(res.Faces) - 1; i >= 0; i-- {
		f := res.Faces[i]
		if f.Skipped {
			continue
		}
		u.Score = f.Score.Value
		u.Factors = f.Score.Factors
		u.SmoothedEAR = f.SmoothedEAR
		u.Angle = f.SmoothedAngle
		break
	}
	return u
}

// subscriberBuffer is how many updates a slow subscriber may lag before
// updates are dropped for it.
const subscriberBuffer = 32

// Broadcaster fans updates out to any number of subscribers without ever
// blocking the publisher.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[string]chan Update
	dropped int64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]chan Update)}
}

func subscriberID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns an ID for Unsubscribe and a channel of updates.
func (b *Broadcaster) Subscribe() (string, <-chan Update) {
	id := subscriberID()
	ch := make(chan Update, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes the subscriber's channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers u to every subscriber with room for it.
func (b *Broadcaster) Publish(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- u:
		default:
			b.dropped++
		}
	}
}

// Subscribers is the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped counts updates not delivered to full subscribers.
func (b *Broadcaster) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close unsubscribes everyone.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
