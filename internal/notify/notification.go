package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Level is the display category of a notification.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Defaults applied by New and the shorter constructors.
const (
	DefaultDisplayTimeMillis = 3000
	DefaultWidth             = 350.0

	// AutoHeight lets the dashboard size the notification itself.
	// Any negative height has the same meaning.
	AutoHeight = -1.0
)

var (
	// ErrEncoding is returned when a notification cannot be turned into
	// its wire text.
	ErrEncoding = errors.New("notification encoding failed")

	ErrInvalidLevel = errors.New("invalid notification level")
)

// ParseLevel accepts INFO, WARNING or ERROR in any letter case.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelInfo:
		return LevelInfo, nil
	case LevelWarning:
		return LevelWarning, nil
	case LevelError:
		return LevelError, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

// Notification is a dashboard pop-up. Start from New or one of the
// constructors; a zero Notification is encoded with level INFO. Fields are
// set through the constructors, setters or the chainable With methods;
// none of them validate their input.
type Notification struct {
	level             Level
	title             string
	description       string
	displayTimeMillis int
	width             float64
	height            float64
}

// New returns a notification with every field at its default, ready for
// the With methods.
func New() *Notification {
	return NewNotificationFull(LevelInfo, "", "", DefaultDisplayTimeMillis, DefaultWidth, AutoHeight)
}

// NewNotification uses the default display time, width and height.
func NewNotification(level Level, title, description string) *Notification {
	return NewNotificationFull(level, title, description, DefaultDisplayTimeMillis, DefaultWidth, AutoHeight)
}

// NewNotificationWithDisplayTime uses the default width and height.
func NewNotificationWithDisplayTime(level Level, title, description string, displayTimeMillis int) *Notification {
	return NewNotificationFull(level, title, description, displayTimeMillis, DefaultWidth, AutoHeight)
}

// NewNotificationWithSize sets explicit dimensions. A negative height is
// inferred by the dashboard.
func NewNotificationWithSize(level Level, title, description string, width, height float64) *Notification {
	return NewNotificationFull(level, title, description, DefaultDisplayTimeMillis, width, height)
}

// NewNotificationFull sets every field verbatim.
func NewNotificationFull(level Level, title, description string, displayTimeMillis int, width, height float64) *Notification {
	return &Notification{
		level:             level,
		title:             title,
		description:       description,
		displayTimeMillis: displayTimeMillis,
		width:             width,
		height:            height,
	}
}

// Level returns the display category.
func (n *Notification) Level() Level { return n.level }

// SetLevel replaces the display category.
func (n *Notification) SetLevel(level Level) { n.level = level }

// Title returns the headline.
func (n *Notification) Title() string { return n.title }

// SetTitle replaces the headline.
func (n *Notification) SetTitle(title string) { n.title = title }

// Description returns the body text.
func (n *Notification) Description() string { return n.description }

// SetDescription replaces the body text.
func (n *Notification) SetDescription(description string) {
	n.description = description
}

// DisplayTimeMillis is how long the dashboard shows the notification.
// Zero disables auto-dismiss.
func (n *Notification) DisplayTimeMillis() int { return n.displayTimeMillis }

// SetDisplayTimeMillis replaces the display time.
func (n *Notification) SetDisplayTimeMillis(millis int) {
	n.displayTimeMillis = millis
}

// SetDisplayTimeSeconds rounds seconds to the nearest millisecond.
func (n *Notification) SetDisplayTimeSeconds(seconds float64) {
	n.displayTimeMillis = int(math.Round(seconds * 1000))
}

// Width returns the width in pixels.
func (n *Notification) Width() float64 { return n.width }

// SetWidth replaces the width in pixels.
func (n *Notification) SetWidth(width float64) { n.width = width }

// Height returns the height in pixels; negative means automatic.
func (n *Notification) Height() float64 { return n.height }

// SetHeight sets an explicit height; pass AutoHeight to let the dashboard
// decide.
func (n *Notification) SetHeight(height float64) { n.height = height }

// HasAutomaticHeight reports whether the dashboard sizes the height.
func (n *Notification) HasAutomaticHeight() bool {
	return n.height < 0
}

// WithLevel sets the level and returns n.
func (n *Notification) WithLevel(level Level) *Notification {
	n.SetLevel(level)
	return n
}

// WithTitle sets the title and returns n.
func (n *Notification) WithTitle(title string) *Notification {
	n.SetTitle(title)
	return n
}

// WithDescription sets the description and returns n.
func (n *Notification) WithDescription(description string) *Notification {
	n.SetDescription(description)
	return n
}

// WithDisplayMilliseconds sets the display time and returns n.
func (n *Notification) WithDisplayMilliseconds(millis int) *Notification {
	n.SetDisplayTimeMillis(millis)
	return n
}

// WithDisplaySeconds sets the display time, rounded to milliseconds, and
// returns n.
func (n *Notification) WithDisplaySeconds(seconds float64) *Notification {
	n.SetDisplayTimeSeconds(seconds)
	return n
}

// WithWidth sets the width and returns n.
func (n *Notification) WithWidth(width float64) *Notification {
	n.SetWidth(width)
	return n
}

// WithHeight sets an explicit height and returns n.
func (n *Notification) WithHeight(height float64) *Notification {
	n.SetHeight(height)
	return n
}

// WithAutomaticHeight lets the dashboard size the height and returns n.
func (n *Notification) WithAutomaticHeight() *Notification {
	n.SetHeight(AutoHeight)
	return n
}

// WithNoAutoDismiss keeps the notification on screen until the operator
// closes it. A positive display time re-enables auto-dismiss.
func (n *Notification) WithNoAutoDismiss() *Notification {
	n.SetDisplayTimeMillis(0)
	return n
}

// wireNotification is the JSON object read by the dashboard.
type wireNotification struct {
	Level       Level    `json:"level"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	DisplayTime int      `json:"displayTime"`
	Width       float64  `json:"width"`
	Height      *float64 `json:"height,omitempty"`
}

// MarshalJSON always writes height; automatic height is written as -1.
// An unset level is written as INFO.
func (n *Notification) MarshalJSON() ([]byte, error) {
	level := n.level
	if level == "" {
		level = LevelInfo
	}
	height := n.height
	if height < 0 {
		height = AutoHeight
	}
	return json.Marshal(wireNotification{
		Level:       level,
		Title:       n.title,
		Description: n.description,
		DisplayTime: n.displayTimeMillis,
		Width:       n.width,
		Height:      &height,
	})
}

// UnmarshalJSON starts from the defaults, so missing keys keep their
// default value and a missing height means automatic height.
func (n *Notification) UnmarshalJSON(data []byte) error {
	w := wireNotification{
		Level:       LevelInfo,
		DisplayTime: DefaultDisplayTimeMillis,
		Width:       DefaultWidth,
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	level, err := ParseLevel(string(w.Level))
	if err != nil {
		return err
	}

	*n = Notification{
		level:             level,
		title:             w.Title,
		description:       w.Description,
		displayTimeMillis: w.DisplayTime,
		width:             w.Width,
		height:            AutoHeight,
	}
	if w.Height != nil {
		n.height = *w.Height
	}
	return nil
}

// Encode returns the wire text of n.
func Encode(n *Notification) (string, error) {
	if n == nil {
		return "", fmt.Errorf("%w: nil notification", ErrEncoding)
	}
	data, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return string(data), nil
}

// Decode parses wire text produced by Encode or by older publishers that
// omit height.
func Decode(text string) (*Notification, error) {
	n := New()
	if err := json.Unmarshal([]byte(text), n); err != nil {
		return nil, fmt.Errorf("decoding notification: %w", err)
	}
	return n, nil
}
