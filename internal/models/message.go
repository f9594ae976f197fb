package models

// Message types sent from the worker to connected application windows.
// Both sides depend only on this contract, never on each other's internals.
const (
	MessageNewNotification  = "NEW_NOTIFICATION"
	MessageFocusWindow      = "FOCUS_WINDOW"
	MessageControllerChange = "CONTROLLER_CHANGE"
)

// ClientMessage is the tagged union posted to application windows. Only the
// Type field is always present; URL and Generation accompany the focus and
// controller-change messages respectively.
type ClientMessage struct {
	Type       string `json:"type"`
	URL        string `json:"url,omitempty"`
	Generation string `json:"generation,omitempty"`
}

// WindowHello is the first frame a window sends after connecting, reporting
// its current location. Subsequent frames of the same shape update it as the
// window navigates.
type WindowHello struct {
	URL string `json:"url"`
}
