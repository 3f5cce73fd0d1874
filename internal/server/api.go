// ABOUTME: Game logic API implemented by the server
// ABOUTME: Validates arguments, resolves asset paths and queues per-peer packets
package server

import (
	"errors"

	"github.com/anomaly-engine/anomaly/internal/mixer"
	"github.com/anomaly-engine/anomaly/internal/script"
	"github.com/anomaly-engine/anomaly/internal/session"
	"github.com/anomaly-engine/anomaly/internal/transport"
	"github.com/anomaly-engine/anomaly/pkg/protocol"
	"github.com/rs/zerolog/log"
)

var _ script.API = (*Server)(nil)

func (s *Server) requireOnline(peer int) error {
	if !s.sessions.Online(peer) {
		return session.NotOnline(peer)
	}
	return nil
}

func (s *Server) resolve(class protocol.ContentType, kind, p string) (uint32, error) {
	id := s.store.Resolve(class, p)
	if id == 0 {
		return 0, session.NotLoaded(kind, p)
	}
	return id, nil
}

func checkVolume(volume int) error {
	if volume < 0 || volume > mixer.MaxVolume {
		return session.InvalidArgument("volume %d is outside 0..%d", volume, mixer.MaxVolume)
	}
	return nil
}

func (s *Server) StartTextInput(peer int) error {
	return s.sessions.EnqueueCommand(peer, protocol.CommandStartTextInput)
}

func (s *Server) StopTextInput(peer int) error {
	return s.sessions.EnqueueCommand(peer, protocol.CommandStopTextInput)
}

func (s *Server) Composition(peer int) (string, error) {
	return s.sessions.Composition(peer)
}

// SpriteWidth returns the pixel width of a loaded image, 0 if it is unknown
func (s *Server) SpriteWidth(path string) int {
	return s.store.ImageWidth(path)
}

func (s *Server) DrawSprite(peer int, image string, x, y, scale float32) error {
	if err := s.requireOnline(peer); err != nil {
		return err
	}
	id, err := s.resolve(protocol.ContentImage, "Image", image)
	if err != nil {
		return err
	}
	return s.sessions.EnqueueDraw(peer, protocol.Image{AssetID: id, X: x, Y: y, Scale: scale})
}

func (s *Server) DrawText(peer int, font string, x, y, scale float32, r, g, b uint8, text string) error {
	if err := s.requireOnline(peer); err != nil {
		return err
	}
	id, err := s.resolve(protocol.ContentFont, "Font", font)
	if err != nil {
		return err
	}
	return s.sessions.EnqueueDraw(peer, protocol.Text{
		FontID: id,
		X:      x,
		Y:      y,
		Scale:  scale,
		R:      r,
		G:      g,
		B:      b,
		Text:   text,
	})
}

// Kick disconnects a peer. Its queues are discarded at once; OnPeerLeft
// follows when the transport reports the disconnect.
func (s *Server) Kick(peer int) error {
	if err := s.requireOnline(peer); err != nil {
		return err
	}
	if err := s.transport.Disconnect(peer); err != nil && !errors.Is(err, transport.ErrNotConnected) {
		log.Warn().Err(err).Int("peer", peer).Msg("kick failed")
	}
	s.sessions.Disconnect(peer)
	s.kicked[peer] = true
	log.Info().Int("peer", peer).Msg("peer kicked")
	return nil
}

// Play starts a sound on one of the explicit channels
func (s *Server) Play(peer int, sound string, volume, channel int) error {
	if err := s.requireOnline(peer); err != nil {
		return err
	}
	if err := checkVolume(volume); err != nil {
		return err
	}
	if channel < 0 || channel >= mixer.ExplicitVoices {
		return session.InvalidArgument("channel %d is outside 0..%d", channel, mixer.ExplicitVoices-1)
	}
	id, err := s.resolve(protocol.ContentSound, "Sound", sound)
	if err != nil {
		return err
	}
	return s.sessions.EnqueueAudio(peer, protocol.AudioCommand{
		SoundID: id,
		Channel: uint16(channel),
		Volume:  uint8(volume),
		Kind:    protocol.AudioPlay,
	})
}

// PlayAny starts a sound on the first idle pooled channel of the client.
// The client drops it when every pooled channel is busy.
func (s *Server) PlayAny(peer int, sound string, volume int) error {
	if err := s.requireOnline(peer); err != nil {
		return err
	}
	if err := checkVolume(volume); err != nil {
		return err
	}
	id, err := s.resolve(protocol.ContentSound, "Sound", sound)
	if err != nil {
		return err
	}
	return s.sessions.EnqueueAudio(peer, protocol.AudioCommand{
		SoundID: id,
		Volume:  uint8(volume),
		Kind:    protocol.AudioPlayAny,
	})
}

func (s *Server) Stop(peer int, channel int) error {
	if err := s.requireOnline(peer); err != nil {
		return err
	}
	if channel < 0 || channel >= mixer.Voices {
		return session.InvalidArgument("channel %d is outside 0..%d", channel, mixer.Voices-1)
	}
	return s.sessions.EnqueueAudio(peer, protocol.AudioCommand{
		Channel: uint16(channel),
		Kind:    protocol.AudioStop,
	})
}

func (s *Server) StopAll(peer int) error {
	return s.sessions.EnqueueAudio(peer, protocol.AudioCommand{Kind: protocol.AudioStopAll})
}

// Reload schedules a script and content reload for the start of the next tick
func (s *Server) Reload() {
	s.reloadPending = true
}
