package usecase

import (
	"fmt"
	"time"

	"yinsen/internal/domain"
)

// Prompt fragments sent with every generation.
const (
	systemDataPrefix = "Following is the current system data. Use this when needed: "
	typeMapPrefix    = "Following is the agent type to name map. Use this when needed: "
	formatReminder   = "Most importantly, follow the response format constraints strictly. " +
		"Do not include any other text or comments. Always follow the response format constraints."

	// datetimeLayout renders DD/MM/YYYY HH:MM.
	datetimeLayout = "02/01/2006 15:04"
)

// PersonaInstructions joins the category-wide instructions with the agent's
// own, introducing the agent by name and type in between.
func PersonaInstructions(general string, id domain.AgentIdentity, specific string) string {
	return general +
		"\n\nNow, Your name is " + id.Name + ". You are the user's " + string(id.Type) + ". \n" +
		specific
}

// promptBuilder assembles the outbound message list in its fixed order:
// persona, system data, agent directory, history window, input, reminder.
// The reminder goes last so it weighs most on output format.
type promptBuilder struct {
	identity domain.AgentIdentity
	persona  string
	window   int
}

func (b promptBuilder) build(now time.Time, directory string, history []domain.Message, input string) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+5)

	if b.persona != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: b.persona})
	}

	msgs = append(msgs, domain.Message{
		Role: domain.RoleSystem,
		Content: systemDataPrefix + fmt.Sprintf(
			"current_datetime: %s | current_agent: %s | current_agent_type: %s | current_agent_category: %s",
			now.Format(datetimeLayout), b.identity.Name, b.identity.Type, b.identity.Category),
	})

	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: typeMapPrefix + directory})

	msgs = append(msgs, history...)
	msgs = append(msgs,
		domain.Message{Role: domain.RoleUser, Content: input},
		domain.Message{Role: domain.RoleSystem, Content: formatReminder},
	)
	return msgs
}
