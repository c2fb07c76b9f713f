package delivery

import "strings"

type Server int

const (
	Unknown Server = iota
	X11
	Wayland
)

func (s Server) String() string {
	switch s {
	case X11:
		return "x11"
	case Wayland:
		return "wayland"
	}
	return "unknown"
}

// Display is the graphical session the process runs under.
type Display struct {
	Server         Server
	WaylandDisplay string
	X11Display     string
	SessionType    string
}

// DetectDisplay classifies the session from its environment. Wayland
// wins when both are present since XWayland also sets DISPLAY.
func DetectDisplay(getenv func(string) string) Display {
	d := Display{
		WaylandDisplay: getenv("WAYLAND_DISPLAY"),
		X11Display:     getenv("DISPLAY"),
		SessionType:    strings.ToLower(getenv("XDG_SESSION_TYPE")),
	}
	switch {
	case d.WaylandDisplay != "" || d.SessionType == "wayland":
		d.Server = Wayland
	case d.X11Display != "" || d.SessionType == "x11":
		d.Server = X11
	}
	return d
}
