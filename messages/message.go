package messages

import (
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Role identifies the author of a chat message sent to the provider.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single entry in the ordered message list handed to the
// completion provider.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System returns a system-role chat message with the given content.
func System(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// User returns a user-role chat message with the given content.
func User(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// Assistant returns an assistant-role chat message with the given content.
func Assistant(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// Message is implemented by every message that crosses the actor boundary.
// The mailbox substrate routes on Type.
type Message interface {
	Type() string
}

const (
	TypeGenerateRequest = "generate_response"
	TypeBotResponse     = "bot_response"
	TypeError           = "error"
)

var (
	generateRequestJSON = []byte(`{"type":"generate_response"}`)
	botResponseJSON     = []byte(`{"type":"bot_response"}`)
	errorJSON           = []byte(`{"type":"error"}`)
)

// GenerateRequest asks the generation pipeline to produce a reply for a user
// message. Immutable once created.
type GenerateRequest struct {
	UserID        string `json:"user_id"`
	ChatID        int64  `json:"chat_id"`
	Text          string `json:"text"`
	IncludePrompt bool   `json:"include_prompt"`
	Mode          string `json:"mode"`
}

func (GenerateRequest) Type() string { return TypeGenerateRequest }

// NewGenerateRequest builds a request with the boundary defaults: the system
// prompt is included and the mode is "base".
func NewGenerateRequest(userID string, chatID int64, text string) GenerateRequest {
	return GenerateRequest{
		UserID:        userID,
		ChatID:        chatID,
		Text:          text,
		IncludePrompt: true,
		Mode:          "base",
	}
}

// MarshalJSON implements custom JSON marshaling for GenerateRequest
func (m GenerateRequest) MarshalJSON() ([]byte, error) {
	result := generateRequestJSON

	var err error
	result, err = sjson.SetBytes(result, "user_id", m.UserID)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "chat_id", m.ChatID)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "text", m.Text)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "include_prompt", m.IncludePrompt)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "mode", m.Mode)
	return result, err
}

// UnmarshalJSON implements custom JSON unmarshaling for GenerateRequest.
// Absent optional fields take their boundary defaults: include_prompt is
// true and mode is "base".
func (m *GenerateRequest) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	userID := gjson.GetBytes(data, "user_id")
	if !userID.Exists() {
		return fmt.Errorf("missing required field 'user_id'")
	}
	m.UserID = userID.String()

	chatID := gjson.GetBytes(data, "chat_id")
	if !chatID.Exists() {
		return fmt.Errorf("missing required field 'chat_id'")
	}
	m.ChatID = chatID.Int()

	text := gjson.GetBytes(data, "text")
	if !text.Exists() {
		return fmt.Errorf("missing required field 'text'")
	}
	m.Text = text.String()

	if includePrompt := gjson.GetBytes(data, "include_prompt"); includePrompt.Exists() {
		m.IncludePrompt = includePrompt.Bool()
	} else {
		m.IncludePrompt = true
	}

	if mode := gjson.GetBytes(data, "mode"); mode.Exists() && mode.String() != "" {
		m.Mode = mode.String()
	} else {
		m.Mode = "base"
	}

	return nil
}

// BotResponse carries the generated reply back to the transport actor.
type BotResponse struct {
	UserID      string          `json:"user_id"`
	ChatID      int64           `json:"chat_id"`
	Text        string          `json:"text"`
	GeneratedAt strfmt.DateTime `json:"generated_at"`
}

func (BotResponse) Type() string { return TypeBotResponse }

// MarshalJSON implements custom JSON marshaling for BotResponse
func (m BotResponse) MarshalJSON() ([]byte, error) {
	result := botResponseJSON

	var err error
	result, err = sjson.SetBytes(result, "user_id", m.UserID)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "chat_id", m.ChatID)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "text", m.Text)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "generated_at", m.GeneratedAt.String())
	return result, err
}

// Error tells the transport actor that generation failed and carries the one
// human-readable error string shown to the end user.
type Error struct {
	UserID    string `json:"user_id"`
	ChatID    int64  `json:"chat_id"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

func (Error) Type() string { return TypeError }

// MarshalJSON implements custom JSON marshaling for Error
func (m Error) MarshalJSON() ([]byte, error) {
	result := errorJSON

	var err error
	result, err = sjson.SetBytes(result, "user_id", m.UserID)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "chat_id", m.ChatID)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "error", m.Error)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "error_type", m.ErrorType)
	return result, err
}
