package usecase

import (
	"strconv"
	"strings"

	"yinsen/internal/domain"
)

// Merged-text keys read by the visualizer agent.
const (
	mergedMainResponse    = "main_agent_response"
	mergedSwitchFlag      = "switch_agent_flag"
	mergedSwitchName      = "switch_agent_name"
	mergedSwitchStatus    = "switch_status"
	mergedToolUsage       = "tool_usage"
	mergedToolInput       = "tool_input_from_main_agent"
	mergedToolInstruction = "tool_instruction_from_tool_agent"
	mergedToolResult      = "tool_execution_result"
	mergedResponseFormat  = "response_format"
)

// mergedText accumulates "[key]: value" lines joined by "\n ".
type mergedText struct {
	b strings.Builder
}

func (m *mergedText) add(key, value string) *mergedText {
	if m.b.Len() > 0 {
		m.b.WriteString("\n ")
	}
	m.b.WriteString("[" + key + "]: " + value)
	return m
}

func (m *mergedText) String() string { return m.b.String() }

func plainMerged(env domain.Envelope) *mergedText {
	m := &mergedText{}
	return m.add(mergedMainResponse, env.String(domain.KeyDetailedResponse))
}

func switchMerged(env domain.Envelope, switched bool) *mergedText {
	return plainMerged(env).
		add(mergedSwitchFlag, strconv.FormatBool(env.Bool(domain.KeyInvokeAnotherAgentFlag))).
		add(mergedSwitchName, env.String(domain.KeyInvokeAgentName)).
		add(mergedSwitchStatus, strconv.FormatBool(switched))
}

func toolMerged(env domain.Envelope, out DispatchOutcome) *mergedText {
	return plainMerged(env).
		add(mergedToolUsage, strconv.FormatBool(env.Bool(domain.KeyToolUsageFlag))).
		add(mergedToolInput, env.String(domain.KeyToolUsageResponse)).
		add(mergedToolInstruction, out.Instruction).
		add(mergedToolResult, out.ResultText)
}

func withFormat(m *mergedText, format domain.ResponseFormat) string {
	return m.add(mergedResponseFormat, string(domain.ParseResponseFormat(string(format)))).String()
}
