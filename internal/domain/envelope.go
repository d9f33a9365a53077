package domain

import "strconv"

// Envelope keys produced by main, helper and visualizer agents.
const (
	KeyResponseToUser         = "response_to_user"
	KeyDetailedResponse       = "detailed_response"
	KeyToolUsageFlag          = "tool_usage_flag"
	KeyToolUsageResponse      = "tool_usage_response"
	KeyInvokeAnotherAgentFlag = "invoke_another_agent_flag"
	KeyInvokeAgentName        = "invoke_agent_name"
	KeyFinalResponseToUser    = "final_response_to_user"
	KeySummarizedResponse     = "summarized_response"
)

// Envelope is the typed view of an agent's bracketed text output.
// Values are string, bool or nil. Missing keys read as "" or false.
type Envelope map[string]any

// String returns the value for key as text. Booleans are rendered with
// strconv.FormatBool; nil and missing keys yield "".
func (e Envelope) String(key string) string {
	switch v := e[key].(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Bool reports whether key holds the boolean true.
func (e Envelope) Bool(key string) bool {
	b, ok := e[key].(bool)
	return ok && b
}

// Has reports whether key was present in the source text, even if empty.
func (e Envelope) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// WantsSwitch reports whether the envelope requests an agent switch.
// Both the flag and a non-empty target name are required.
func (e Envelope) WantsSwitch() bool {
	return e.Bool(KeyInvokeAnotherAgentFlag) && e.String(KeyInvokeAgentName) != ""
}

// WantsTool reports whether the envelope requests a tool invocation.
func (e Envelope) WantsTool() bool {
	return e.Bool(KeyToolUsageFlag)
}
