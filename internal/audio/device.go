// Package audio drives the sound card through miniaudio: one duplex device
// that captures the microphone and plays network audio, both at 8 kHz 16-bit
// mono.
package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/1ureka/lanchat/internal/util"
)

const (
	SampleRate = 8000
	Channels   = 1

	bytesPerSample = 2

	// bufferSeconds bounds playback latency; overflow is dropped.
	bufferSeconds = 5
	bufferLimit   = SampleRate * Channels * bytesPerSample * bufferSeconds
)

// ErrAudio wraps miniaudio failures.
var ErrAudio = errors.New("audio")

// Device is a duplex capture/playback device. Create one per call.
type Device struct {
	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	dev      *malgo.Device
	playback *playbackBuffer
	stopped  bool
}

// NewDevice creates an idle device.
func NewDevice() *Device {
	return &Device{playback: newPlaybackBuffer(bufferLimit)}
}

// Start opens the default capture and playback devices. onCapture receives a
// private copy of every captured block, on the audio thread.
func (d *Device) Start(onCapture func(pcm []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dev != nil {
		return nil
	}
	if d.stopped {
		return fmt.Errorf("%w: device stopped", ErrAudio)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		util.LogDebug("audio: %s", message)
	})
	if err != nil {
		return fmt.Errorf("%w: init context: %w", ErrAudio, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = Channels
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = Channels
	cfg.SampleRate = SampleRate
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, in []byte, frameCount uint32) {
			if len(in) > 0 {
				pcm := make([]byte, len(in))
				copy(pcm, in)
				onCapture(pcm)
			}
			if len(out) > 0 {
				d.playback.Read(out)
			}
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		freeContext(ctx)
		return fmt.Errorf("%w: init device: %w", ErrAudio, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		freeContext(ctx)
		return fmt.Errorf("%w: start device: %w", ErrAudio, err)
	}

	d.ctx, d.dev = ctx, dev
	util.LogDebug("audio: duplex device started (%d Hz, %d ch)", SampleRate, Channels)
	return nil
}

// Play queues pcm for playback. When more than five seconds are already
// queued the excess is dropped.
func (d *Device) Play(pcm []byte) {
	if n := d.playback.Write(pcm); n < len(pcm) {
		util.LogDebug("audio: playback buffer full, dropped %d bytes", len(pcm)-n)
	}
}

// Stop closes the device. Safe to call more than once.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.dev == nil {
		return nil
	}

	var err error
	if stopErr := d.dev.Stop(); stopErr != nil {
		err = fmt.Errorf("%w: stop device: %w", ErrAudio, stopErr)
	}
	d.dev.Uninit()
	freeContext(d.ctx)
	d.dev, d.ctx = nil, nil
	d.playback.Reset()
	return err
}

func freeContext(ctx *malgo.AllocatedContext) {
	if err := ctx.Uninit(); err != nil {
		util.LogDebug("audio: uninit context: %v", err)
	}
	ctx.Free()
}
