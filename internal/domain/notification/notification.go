package notification

// Type classifies a user notification for display.
type Type string

const (
	TypeInfo    Type = "INFO"
	TypeSuccess Type = "SUCCESS"
	TypeWarning Type = "WARNING"
	TypeError   Type = "ERROR"
)

// Notification is a best-effort message to a user.
type Notification struct {
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Type      Type   `json:"type"`
	ActionURL string `json:"actionUrl"`
}
