package session

import "github.com/tale555/dify-chat-webapp/internal/history"

// Capabilities lists the actions offered for one message
type Capabilities struct {
	Copy       bool
	Edit       bool
	Delete     bool
	Regenerate bool
}

// CapabilitiesFor returns the actions available on messages[index].
// An out-of-range index has no capabilities.
//
//	role       position         copy  edit  delete  regenerate
//	user       any              yes   yes   yes     no
//	assistant  latest assistant yes   no    yes     yes
//	assistant  earlier          yes   no    yes     no
func CapabilitiesFor(messages []history.Message, index int) Capabilities {
	if index < 0 || index >= len(messages) {
		return Capabilities{}
	}

	caps := Capabilities{Copy: true, Delete: true}
	switch messages[index].Role {
	case history.RoleUser:
		caps.Edit = true
	case history.RoleAssistant:
		caps.Regenerate = index == LastAssistant(messages)
	}
	return caps
}

// LastAssistant returns the index of the most recent assistant message, or -1
func LastAssistant(messages []history.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == history.RoleAssistant {
			return i
		}
	}
	return -1
}
