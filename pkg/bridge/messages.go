package bridge

// Methods the page may call on the native side. The camel-case aliases are
// the names the original web client uses.
const (
	MethodShowMessage   = "showMessage"
	MethodShowToast     = "showToast"
	MethodRequestSignIn = "requestSignIn"
	MethodRequestLogin  = "requestLogin"
	MethodNavigate      = "navigate"
)

// Message types pushed to the page.
const (
	TypeLoad       = "load"
	TypeEvaluate   = "evaluate"
	TypeNavigation = "navigation"
)

// inbound is a call from the page.
type inbound struct {
	ID     string `json:"id,omitempty"`
	Method string `json:"method"`
	Text   string `json:"text,omitempty"`
	URL    string `json:"url,omitempty"`
}

// outbound is a command or reply sent to the page.
type outbound struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	URL      string `json:"url,omitempty"`
	Script   string `json:"script,omitempty"`
	Decision string `json:"decision,omitempty"`
}

// Handler receives the bridge calls made by the page.
type Handler interface {
	ShowMessage(text string)
	RequestSignIn()
	// HandleNavigation reports whether the navigation was taken away from
	// the embedded view.
	HandleNavigation(url string) bool
}
