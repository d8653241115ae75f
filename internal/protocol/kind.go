// Package protocol defines the bridge wire format: namespaced envelopes,
// capability flags and the codec that turns them into channel payloads.
package protocol

import "strings"

// Version is stamped on every outbound envelope.
const Version = "1.0"

// Kind is a namespaced message kind such as "mcp:invoke".
type Kind string

const (
	KindHandshake    Kind = "handshake"
	KindHandshakeAck Kind = "handshake:ack"

	KindTools    Kind = "mcp:tools"
	KindDiscover Kind = "mcp:discover"
	KindInvoke   Kind = "mcp:invoke"
	KindResult   Kind = "mcp:result"
	KindError    Kind = "mcp:error"

	KindGenerate         Kind = "llm:generate"
	KindGenerateResponse Kind = "llm:generate:response"
	KindGenerateError    Kind = "llm:generate:error"

	KindThemeSet   Kind = "theme:set"
	KindThemeReady Kind = "theme:ready"

	KindWidgetMinimize Kind = "widget:minimize"
	KindWidgetRestore  Kind = "widget:restore"

	KindSessionList         Kind = "session:list"
	KindSessionListResponse Kind = "session:list:response"
	KindSessionOpened       Kind = "session:opened"

	KindInject Kind = "host:inject"
)

// Namespaces that belong to the bridge. Anything else on the channel is
// unrelated traffic.
const (
	NamespaceHandshake = "handshake"
	NamespaceMCP       = "mcp"
	NamespaceLLM       = "llm"
	NamespaceTheme     = "theme"
	NamespaceWidget    = "widget"
	NamespaceSession   = "session"
	NamespaceHost      = "host"
)

var namespaces = map[string]bool{
	NamespaceHandshake: true,
	NamespaceMCP:       true,
	NamespaceLLM:       true,
	NamespaceTheme:     true,
	NamespaceWidget:    true,
	NamespaceSession:   true,
	NamespaceHost:      true,
}

// Namespace returns the part before the first colon, or the whole kind when
// it has none ("handshake").
func (k Kind) Namespace() string {
	ns, _, _ := strings.Cut(string(k), ":")
	return ns
}

// Suffix returns everything after the first colon ("generate:error" for
// "llm:generate:error"), or "" for a bare kind.
func (k Kind) Suffix() string {
	_, suffix, _ := strings.Cut(string(k), ":")
	return suffix
}

// Recognized reports whether k lives in one of the bridge namespaces.
func (k Kind) Recognized() bool {
	return namespaces[k.Namespace()]
}
