package domain

import "time"

// Address is the delivery address view used at checkout.
type Address struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	City   string `json:"city"`
	State  string `json:"state"`
}

// BelongsTo reports whether the address is owned by userID.
func (a Address) BelongsTo(userID string) bool {
	return a.UserID == userID
}

// Rider is the delivery rider view used for assignment and notifications.
type Rider struct {
	ID          string `json:"id"`
	Name        string `json:"rider_name"`
	Username    string `json:"username"`
	PhoneNumber string `json:"phone_number"`
}

// DisplayName prefers the username, falling back to the full name.
func (r Rider) DisplayName() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Name
}

// User is the customer view used for notification targeting.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// NotificationTarget selects the audience of a notification.
type NotificationTarget string

const (
	TargetAdmin NotificationTarget = "admin"
	TargetUser  NotificationTarget = "user"
	TargetRider NotificationTarget = "rider"
)

// Notification is a best-effort message produced by order transitions.
type Notification struct {
	ID          string             `json:"id"`
	Target      NotificationTarget `json:"target"`
	RecipientID string             `json:"recipient_id,omitempty"`
	Title       string             `json:"title"`
	Message     string             `json:"message"`
	Type        string             `json:"type"`
	CreatedAt   time.Time          `json:"created_at"`
}
