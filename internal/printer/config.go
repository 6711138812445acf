package printer

import (
	"fmt"
	"strings"
	"time"

	"github.com/coffersTech/als/internal/model"
)

// Mode selects where a print goes.
type Mode uint8

const (
	ScreenOnly Mode = iota
	LogOnly
	ScreenAndLog
)

var modeNames = [...]string{"ScreenOnly", "LogOnly", "ScreenAndLog"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", m)
}

// ToScreen reports whether m shows the text on screen.
func (m Mode) ToScreen() bool { return m == ScreenOnly || m == ScreenAndLog }

// ToLog reports whether m writes the text to the console log.
func (m Mode) ToLog() bool { return m == LogOnly || m == ScreenAndLog }

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	for i, n := range modeNames {
		if strings.EqualFold(n, string(b)) {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown print mode %q", b)
}

// Preset names a stock Config.
type Preset uint8

const (
	PrintInfo Preset = iota
	PrintWarn
	PrintError
	LogInfo
	LogWarn
	LogError
	Print3D
)

var presetNames = [...]string{"PrintInfo", "PrintWarn", "PrintError", "LogInfo", "LogWarn", "LogError", "Print3D"}

func (p Preset) String() string {
	if int(p) < len(presetNames) {
		return presetNames[p]
	}
	return fmt.Sprintf("Preset(%d)", p)
}

func (p Preset) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Preset) UnmarshalText(b []byte) error {
	for i, n := range presetNames {
		if strings.EqualFold(n, string(b)) {
			*p = Preset(i)
			return nil
		}
	}
	return fmt.Errorf("unknown preset %q", b)
}

// Color is an 8-bit RGBA color, written as "#RRGGBB" or "#RRGGBBAA".
type Color struct {
	R, G, B, A uint8
}

var (
	Green  = Color{0, 255, 0, 255}
	Yellow = Color{255, 255, 0, 255}
	Red    = Color{255, 0, 0, 255}
	Orange = Color{243, 156, 18, 255}
)

func (c Color) String() string {
	if c.A == 255 {
		return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02X%02X%02X%02X", c.R, c.G, c.B, c.A)
}

func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Color) UnmarshalText(b []byte) error {
	s := strings.TrimPrefix(string(b), "#")
	var out Color
	switch len(s) {
	case 6:
		out.A = 255
		if _, err := fmt.Sscanf(s, "%02x%02x%02x", &out.R, &out.G, &out.B); err != nil {
			return fmt.Errorf("invalid color %q", b)
		}
	case 8:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x%02x", &out.R, &out.G, &out.B, &out.A); err != nil {
			return fmt.Errorf("invalid color %q", b)
		}
	default:
		return fmt.Errorf("invalid color %q", b)
	}
	*c = out
	return nil
}

// Config controls one print.
type Config struct {
	// Key replaces an earlier on-screen message with the same key. Empty always adds a line.
	Key      string        `yaml:"key" json:"key"`
	Duration time.Duration `yaml:"duration" json:"duration"`
	Color    Color         `yaml:"color" json:"color"`
	Level    model.Level   `yaml:"level" json:"level"`
	Mode     Mode          `yaml:"mode" json:"mode"`
}

// DefaultPresets returns the stock preset table.
func DefaultPresets() map[Preset]Config {
	return map[Preset]Config{
		PrintInfo:  {Duration: 3 * time.Second, Color: Green, Level: model.LevelInfo, Mode: ScreenAndLog},
		PrintWarn:  {Duration: 5 * time.Second, Color: Yellow, Level: model.LevelWarning, Mode: ScreenAndLog},
		PrintError: {Duration: 7 * time.Second, Color: Red, Level: model.LevelError, Mode: ScreenAndLog},
		LogInfo:    {Color: Green, Level: model.LevelInfo, Mode: LogOnly},
		LogWarn:    {Color: Yellow, Level: model.LevelWarning, Mode: LogOnly},
		LogError:   {Color: Red, Level: model.LevelError, Mode: LogOnly},
		Print3D:    {Duration: 5 * time.Second, Color: Orange, Level: model.LevelInfo, Mode: LogOnly},
	}
}
