package tool

import "net/http"

// DefaultDescriptors returns every built-in tool descriptor. The capability
// resolver scopes which of these any given agent can actually call.
func DefaultDescriptors(webClient *http.Client) []Descriptor {
	descs := AgentDescriptors()
	descs = append(descs, FileDescriptors()...)
	descs = append(descs, ExecDescriptors()...)
	descs = append(descs, WebDescriptors(webClient)...)
	descs = append(descs, ContextInfoDescriptor())
	return descs
}
