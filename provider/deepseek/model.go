package deepseek

// DeepSeek exposes an OpenAI-compatible chat-completions API at its own base
// URL. Model names per https://api-docs.deepseek.com.
const (
	DefaultBaseURL = "https://api.deepseek.com"

	ModelChat     = "deepseek-chat"
	ModelReasoner = "deepseek-reasoner"
)
