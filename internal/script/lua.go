// ABOUTME: Lua implementation of Callbacks on top of Shopify/go-lua
// ABOUTME: Loads main.lua, exposes the server API as globals and dispatches named hooks
package script

import (
	"fmt"
	"path"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/anomaly-engine/anomaly/pkg/protocol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// MainScript is the entry point loaded from the script directory
const MainScript = "main.lua"

// Lua runs game logic written in Lua. The state survives reloads: a reload
// re-runs main.lua in the same state, so globals the script keeps are
// preserved and functions are replaced.
type Lua struct {
	fs    afero.Fs
	dir   string
	api   API
	state *lua.State
	touch [protocol.MaxClients]bool
}

// NewLua creates a Lua runtime bound to api. Call Load to run the script.
func NewLua(fsys afero.Fs, dir string, api API) *Lua {
	s := &Lua{
		fs:    fsys,
		dir:   dir,
		api:   api,
		state: lua.NewState(),
	}
	lua.OpenLibraries(s.state)
	s.register()
	return s
}

func (s *Lua) register() {
	l := s.state

	l.Global("package")
	l.PushString(path.Join(s.dir, "?.lua"))
	l.SetField(-2, "path")
	l.Pop(1)

	functions := []lua.RegistryFunction{
		{Name: "reload", Function: s.luaReload},
		{Name: "start_text_input", Function: s.luaStartTextInput},
		{Name: "stop_text_input", Function: s.luaStopTextInput},
		{Name: "get_composition", Function: s.luaGetComposition},
		{Name: "get_sprite_width", Function: s.luaGetSpriteWidth},
		{Name: "draw_sprite", Function: s.luaDrawSprite},
		{Name: "draw_text", Function: s.luaDrawText},
		{Name: "kick", Function: s.luaKick},
		{Name: "play_sound", Function: s.luaPlaySound},
		{Name: "stop_sound", Function: s.luaStopSound},
		{Name: "stop_all_sounds", Function: s.luaStopAllSounds},
	}
	for _, f := range functions {
		l.Register(f.Name, f.Function)
	}
}

// Load runs main.lua and then its on_reload hook
func (s *Lua) Load() error {
	file := path.Join(s.dir, MainScript)
	src, err := afero.ReadFile(s.fs, file)
	if err != nil {
		return fmt.Errorf("load script: %w", err)
	}

	l := s.state
	l.SetTop(0)
	if err := lua.LoadBuffer(l, string(src), "@"+file, ""); err != nil {
		l.SetTop(0)
		return fmt.Errorf("load script %s: %w", file, err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		l.SetTop(0)
		return fmt.Errorf("run script %s: %w", file, err)
	}
	log.Info().Str("path", file).Msg("script loaded")

	s.call("on_reload")
	return nil
}

// call invokes a global hook if the script defines one. Hook errors are
// logged and never propagate into the tick.
func (s *Lua) call(name string, args ...any) {
	l := s.state
	defer l.SetTop(0)

	l.Global(name)
	if !l.IsFunction(-1) {
		return
	}
	for _, a := range args {
		switch v := a.(type) {
		case int:
			l.PushInteger(v)
		case float64:
			l.PushNumber(v)
		case float32:
			l.PushNumber(float64(v))
		case bool:
			l.PushBoolean(v)
		case string:
			l.PushString(v)
		default:
			l.PushNil()
		}
	}
	if err := l.ProtectedCall(len(args), 0, 0); err != nil {
		log.Error().Err(err).Str("hook", name).Msg("script hook failed")
	}
}

func (s *Lua) has(name string) bool {
	l := s.state
	l.Global(name)
	ok := l.IsFunction(-1)
	l.Pop(1)
	return ok
}

func (s *Lua) OnTick(dt time.Duration) {
	s.call("on_tick", dt.Seconds())
}

func (s *Lua) OnPeerJoined(peer int, hasTouch bool) {
	if peer >= 0 && peer < len(s.touch) {
		s.touch[peer] = hasTouch
	}
	s.call("on_join", peer, hasTouch)
}

func (s *Lua) OnPeerLeft(peer int) {
	s.call("on_quit", peer)
}

func (s *Lua) OnKeyEvent(peer int, key int32, down bool) {
	hook := "on_key_up"
	if down {
		hook = "on_key_down"
	}
	if !s.has(hook) {
		return
	}
	name, ok := KeyName(key)
	if !ok {
		log.Warn().Int32("key", key).Int("peer", peer).Msg("unknown keycode")
		return
	}
	s.call(hook, peer, name)
}

func (s *Lua) OnPointerEvent(peer int, x, y float32, button uint8, typ protocol.PointerType) {
	if typ == protocol.PointerWheel {
		s.call("on_mouse_wheel", peer, x, y)
		return
	}

	if peer >= 0 && peer < len(s.touch) && s.touch[peer] {
		switch typ {
		case protocol.PointerDown:
			s.call("on_finger_down", peer, int(button), x, y)
		case protocol.PointerUp:
			s.call("on_finger_up", peer, int(button), x, y)
		case protocol.PointerMotion:
			s.call("on_finger_motion", peer, int(button), x, y)
		}
		return
	}

	switch typ {
	case protocol.PointerMotion:
		s.call("on_mouse_motion", peer, x, y)
	case protocol.PointerDown, protocol.PointerUp:
		name, ok := ButtonName(button)
		if !ok {
			log.Warn().Uint8("button", button).Int("peer", peer).Msg("unknown mouse button")
			return
		}
		hook := "on_mouse_button_up"
		if typ == protocol.PointerDown {
			hook = "on_mouse_button_down"
		}
		s.call(hook, peer, name, x, y)
	}
}

// OnReloadRequested re-runs main.lua
func (s *Lua) OnReloadRequested() {
	if err := s.Load(); err != nil {
		log.Error().Err(err).Msg("script reload failed")
	}
}

// raise turns an API error into a Lua error; it does not return
func raise(l *lua.State, err error) int {
	lua.Errorf(l, "%s", err.Error())
	return 0
}

func (s *Lua) luaReload(l *lua.State) int {
	s.api.Reload()
	return 0
}

func (s *Lua) luaStartTextInput(l *lua.State) int {
	if err := s.api.StartTextInput(lua.CheckInteger(l, 1)); err != nil {
		return raise(l, err)
	}
	return 0
}

func (s *Lua) luaStopTextInput(l *lua.State) int {
	if err := s.api.StopTextInput(lua.CheckInteger(l, 1)); err != nil {
		return raise(l, err)
	}
	return 0
}

func (s *Lua) luaGetComposition(l *lua.State) int {
	text, err := s.api.Composition(lua.CheckInteger(l, 1))
	if err != nil {
		return raise(l, err)
	}
	l.PushString(text)
	return 1
}

func (s *Lua) luaGetSpriteWidth(l *lua.State) int {
	l.PushNumber(float64(s.api.SpriteWidth(lua.CheckString(l, 1))))
	return 1
}

func (s *Lua) luaDrawSprite(l *lua.State) int {
	peer := lua.CheckInteger(l, 1)
	image := lua.CheckString(l, 2)
	x := float32(lua.CheckNumber(l, 3))
	y := float32(lua.CheckNumber(l, 4))
	scale := float32(lua.CheckNumber(l, 5))
	if err := s.api.DrawSprite(peer, image, x, y, scale); err != nil {
		return raise(l, err)
	}
	return 0
}

func checkColor(l *lua.State, idx int) uint8 {
	v := lua.CheckNumber(l, idx)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

func (s *Lua) luaDrawText(l *lua.State) int {
	peer := lua.CheckInteger(l, 1)
	font := lua.CheckString(l, 2)
	x := float32(lua.CheckNumber(l, 3))
	y := float32(lua.CheckNumber(l, 4))
	scale := float32(lua.CheckNumber(l, 5))
	r := checkColor(l, 6)
	g := checkColor(l, 7)
	b := checkColor(l, 8)
	text := lua.CheckString(l, 9)
	if err := s.api.DrawText(peer, font, x, y, scale, r, g, b, text); err != nil {
		return raise(l, err)
	}
	return 0
}

func (s *Lua) luaKick(l *lua.State) int {
	if err := s.api.Kick(lua.CheckInteger(l, 1)); err != nil {
		return raise(l, err)
	}
	return 0
}

// play_sound(client, path, volume[, channel])
func (s *Lua) luaPlaySound(l *lua.State) int {
	peer := lua.CheckInteger(l, 1)
	sound := lua.CheckString(l, 2)
	volume := lua.CheckInteger(l, 3)

	var err error
	if l.Top() > 3 {
		err = s.api.Play(peer, sound, volume, lua.CheckInteger(l, 4))
	} else {
		err = s.api.PlayAny(peer, sound, volume)
	}
	if err != nil {
		return raise(l, err)
	}
	return 0
}

func (s *Lua) luaStopSound(l *lua.State) int {
	if err := s.api.Stop(lua.CheckInteger(l, 1), lua.CheckInteger(l, 2)); err != nil {
		return raise(l, err)
	}
	return 0
}

func (s *Lua) luaStopAllSounds(l *lua.State) int {
	if err := s.api.StopAll(lua.CheckInteger(l, 1)); err != nil {
		return raise(l, err)
	}
	return 0
}
