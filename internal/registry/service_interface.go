package registry

// Service is a long-running component of the agent. Start must not block;
// Stop releases everything Start acquired.
type Service interface {
	Start() error
	Stop() error
}
