package estimator

// Message is a chat-style payload entry. Only Content feeds the estimate.
type Message struct {
	Role    string
	Content string
}

// ExtractText collects the estimable text from a call's arguments. It
// understands plain strings, slices of strings, chat messages, and string
// values inside maps (the conventional shape of chat-completion payloads).
// Anything else contributes nothing.
func ExtractText(args ...any) []string {
	var texts []string
	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			texts = append(texts, v)
		case []string:
			texts = append(texts, v...)
		case []any:
			for _, item := range v {
				texts = append(texts, ExtractText(item)...)
			}
		case Message:
			if v.Content != "" {
				texts = append(texts, v.Content)
			}
		case []Message:
			for _, m := range v {
				if m.Content != "" {
					texts = append(texts, m.Content)
				}
			}
		case map[string]any:
			for _, mv := range v {
				texts = append(texts, ExtractText(mv)...)
			}
		case map[string]string:
			for _, mv := range v {
				texts = append(texts, mv)
			}
		case []map[string]any:
			for _, m := range v {
				if s, ok := m["content"].(string); ok {
					texts = append(texts, s)
				}
			}
		}
	}
	return texts
}
