// Package unlock claims the local audio output path before remote playback
// starts. Platforms only grant output claims reliably during a user action,
// so the claim is made synchronously inside one; everything after it may
// suspend.
package unlock

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"
)

const (
	sampleRate   = 44100
	channelCount = 2
	// silenceLen is ~50ms of 16-bit stereo silence.
	silenceLen = sampleRate / 20 * channelCount * 2
)

// Gate performs the output claim at most once per process. Failures are
// swallowed: a missing audio device must never block clip playback on a
// remote endpoint.
type Gate struct {
	log  zerolog.Logger
	once sync.Once
	done atomic.Bool
}

// NewGate creates a gate.
func NewGate(log zerolog.Logger) *Gate {
	return &Gate{log: log}
}

// Unlock claims the audio output. The first call opens the audio context and
// queues a near-silent buffer; later calls are no-ops. Unlock never blocks
// on hardware readiness and never reports failure to the caller.
func (g *Gate) Unlock() {
	g.once.Do(g.open)
}

// Done reports whether an unlock attempt has happened.
func (g *Gate) Done() bool {
	return g.done.Load()
}

func (g *Gate) open() {
	defer g.done.Store(true)

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		g.log.Debug().Err(err).Msg("audio unlock unavailable")
		return
	}

	// The context counts as claimed from here. Readiness can lag behind the
	// user action, so the silent buffer plays out on its own goroutine.
	go func() {
		<-ready
		player := ctx.NewPlayer(bytes.NewReader(make([]byte, silenceLen)))
		player.Play()
		for player.IsPlaying() {
			time.Sleep(10 * time.Millisecond)
		}
		if err := player.Close(); err != nil {
			g.log.Debug().Err(err).Msg("audio unlock player close")
		}
		g.log.Debug().Msg("audio output claimed")
	}()
}
