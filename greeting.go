package identity

// Greeting returns a time-of-day salutation, personalized with the
// current display name when one is set.
func (m *StateMachine) Greeting() string {
	base := greetingForHour(m.now().Hour())
	if name := m.DisplayName(); name != "" {
		return base + ", " + name
	}
	return base
}

func greetingForHour(hour int) string {
	switch {
	case hour < 5:
		return "Good night"
	case hour < 12:
		return "Good morning"
	case hour < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}
