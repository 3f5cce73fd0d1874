// ABOUTME: Names for the keycodes and mouse buttons scripts see
// ABOUTME: Clients send SDL keycodes; Lua hooks receive these names
package script

// Keycodes a client reports, using SDL numbering
const (
	KeyBackspace  int32 = 8
	KeyTab        int32 = 9
	KeyReturn     int32 = 13
	KeyEscape     int32 = 27
	KeySpace      int32 = 32
	KeyF1         int32 = 1073741882
	KeyF5         int32 = 1073741886
	KeyF12        int32 = 1073741893
	KeyRight      int32 = 1073741903
	KeyLeft       int32 = 1073741904
	KeyDown       int32 = 1073741905
	KeyUp         int32 = 1073741906
	KeyLeftCtrl   int32 = 1073742048
	KeyLeftShift  int32 = 1073742049
	KeyRightCtrl  int32 = 1073742052
	KeyRightShift int32 = 1073742053
	KeyBack       int32 = 1073742094
)

var keyNames = func() map[int32]string {
	m := map[int32]string{
		KeyBackspace:  "Backspace",
		KeyTab:        "Tab",
		KeyReturn:     "Return",
		KeyEscape:     "Escape",
		KeySpace:      "Space",
		KeyRight:      "Right",
		KeyLeft:       "Left",
		KeyDown:       "Down",
		KeyUp:         "Up",
		KeyLeftCtrl:   "Left Ctrl",
		KeyLeftShift:  "Left Shift",
		KeyRightCtrl:  "Right Ctrl",
		KeyRightShift: "Right Shift",
		KeyBack:       "Back",
	}
	for c := '0'; c <= '9'; c++ {
		m[int32(c)] = string(c)
	}
	for c := 'a'; c <= 'z'; c++ {
		m[int32(c)] = string(c - 'a' + 'A')
	}
	names := []string{"F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9", "F10", "F11", "F12"}
	for i, n := range names {
		m[KeyF1+int32(i)] = n
	}
	return m
}()

var keyCodes = func() map[string]int32 {
	m := make(map[string]int32, len(keyNames))
	for code, name := range keyNames {
		m[name] = code
	}
	return m
}()

// KeyName returns the script-facing name of a keycode
func KeyName(key int32) (string, bool) {
	name, ok := keyNames[key]
	return name, ok
}

// KeyCode is the inverse of KeyName
func KeyCode(name string) (int32, bool) {
	code, ok := keyCodes[name]
	return code, ok
}

// ButtonName returns the script-facing name of a mouse button
func ButtonName(button uint8) (string, bool) {
	switch button {
	case 1:
		return "Left", true
	case 2:
		return "Middle", true
	case 3:
		return "Right", true
	case 4:
		return "Extra 1", true
	case 5:
		return "Extra 2", true
	default:
		return "", false
	}
}
