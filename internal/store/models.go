package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JSONB is a custom type for JSONB fields
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("incompatible type for JSONB")
	}

	if len(bytes) == 0 || string(bytes) == "null" {
		*j = make(JSONB)
		return nil
	}

	result := make(JSONB)
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}
	*j = result
	return nil
}

// StringArray is a custom type for PostgreSQL text[] arrays
type StringArray []string

// Value implements the driver.Valuer interface for StringArray. Every element
// is quoted, so values containing commas, braces, quotes or backslashes
// round-trip intact.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}

	var b strings.Builder
	b.WriteByte('{')
	for i, elem := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		for j := 0; j < len(elem); j++ {
			if elem[j] == '"' || elem[j] == '\\' {
				b.WriteByte('\\')
			}
			b.WriteByte(elem[j])
		}
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String(), nil
}

// Scan implements the sql.Scanner interface for StringArray. It parses the
// PostgreSQL text array literal format, including quoted elements with
// backslash escapes.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	var str string
	switch v := value.(type) {
	case []byte:
		str = string(v)
	case string:
		str = v
	default:
		return fmt.Errorf("unsupported type for StringArray: %T", value)
	}

	elems, err := parseTextArray(str)
	if err != nil {
		return err
	}
	*a = elems
	return nil
}

func parseTextArray(str string) ([]string, error) {
	if len(str) < 2 || str[0] != '{' || str[len(str)-1] != '}' {
		return nil, fmt.Errorf("malformed array literal: %q", str)
	}
	inner := str[1 : len(str)-1]
	if inner == "" {
		return []string{}, nil
	}

	var (
		elems    []string
		cur      strings.Builder
		inQuotes bool
		escaped  bool
	)
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			elems = append(elems, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuotes || escaped {
		return nil, fmt.Errorf("malformed array literal: %q", str)
	}
	elems = append(elems, cur.String())
	return elems, nil
}

// NotificationTemplate is a reusable message template with declared variables.
type NotificationTemplate struct {
	ID                uuid.UUID   `db:"id" json:"id"`
	Name              string      `db:"name" json:"name"`
	Channel           string      `db:"channel" json:"channel"`
	Subject           *string     `db:"subject" json:"subject,omitempty"`
	Body              string      `db:"body" json:"body"`
	DeclaredVariables StringArray `db:"declared_variables" json:"declared_variables"`
	IsActive          bool        `db:"is_active" json:"is_active"`
	UsageCount        int         `db:"usage_count" json:"usage_count"`
	LastUsedAt        *time.Time  `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
	DeletedAt         *time.Time  `db:"deleted_at" json:"deleted_at,omitempty"`
}

// NotificationCampaign is a single send of a template to a resolved audience.
// Subject, body and channel are snapshotted from the template at creation so
// later template edits never alter an in-flight or completed campaign.
type NotificationCampaign struct {
	ID         uuid.UUID `db:"id" json:"id"`
	TemplateID uuid.UUID `db:"template_id" json:"template_id"`
	Channel    string    `db:"channel" json:"channel"`
	Subject    *string   `db:"subject" json:"subject,omitempty"`
	Body       string    `db:"body" json:"body"`
	Variables  JSONB     `db:"variables" json:"variables,omitempty"`

	SelectorKind      string      `db:"selector_kind" json:"selector_kind"`
	SelectorRoles     StringArray `db:"selector_roles" json:"selector_roles,omitempty"`
	SelectorCourseIDs StringArray `db:"selector_course_ids" json:"selector_course_ids,omitempty"`
	SelectorUserIDs   StringArray `db:"selector_user_ids" json:"selector_user_ids,omitempty"`

	ScheduleMode string     `db:"schedule_mode" json:"schedule_mode"`
	ScheduledAt  *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`

	Status                 string   `db:"status" json:"status"`
	ResolvedRecipientCount *int     `db:"resolved_recipient_count" json:"resolved_recipient_count,omitempty"`
	DeliveredCount         int      `db:"delivered_count" json:"delivered_count"`
	FailedCount            int      `db:"failed_count" json:"failed_count"`
	OpenRate               *float64 `db:"open_rate" json:"open_rate,omitempty"`
	ClickRate              *float64 `db:"click_rate" json:"click_rate,omitempty"`
	ErrorMessage           *string  `db:"error_message" json:"error_message,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	SentAt    *time.Time `db:"sent_at" json:"sent_at,omitempty"`
}

// DeliveryAttempt is the ledger row for one recipient of one campaign.
// (campaign_id, recipient_id) is the uniqueness key; retries update the row
// in place.
type DeliveryAttempt struct {
	ID              uuid.UUID `db:"id" json:"id"`
	CampaignID      uuid.UUID `db:"campaign_id" json:"campaign_id"`
	RecipientID     uuid.UUID `db:"recipient_id" json:"recipient_id"`
	RenderedSubject *string   `db:"rendered_subject" json:"rendered_subject,omitempty"`
	RenderedBody    *string   `db:"rendered_body" json:"rendered_body,omitempty"`
	Outcome         string    `db:"outcome" json:"outcome"`
	AttemptCount    int       `db:"attempt_count" json:"attempt_count"`
	ErrorReason     *string   `db:"error_reason" json:"error_reason,omitempty"`
	Opened          bool      `db:"opened" json:"opened"`
	Clicked         bool      `db:"clicked" json:"clicked"`
	LastAttemptAt   *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// CampaignEvent is an append-only audit record of a status transition.
type CampaignEvent struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CampaignID uuid.UUID `db:"campaign_id" json:"campaign_id"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	Reason     *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Recipient is a directory row: a user the engine can notify.
type Recipient struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	DeviceToken *string   `db:"device_token" json:"device_token,omitempty"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	Role        string    `db:"role" json:"role"`
	IsActive    bool      `db:"is_active" json:"is_active"`
}

// SystemNotification is an in-app inbox message written by the system channel.
type SystemNotification struct {
	ID          uuid.UUID `db:"id" json:"id"`
	RecipientID uuid.UUID `db:"recipient_id" json:"recipient_id"`
	CampaignID  uuid.UUID `db:"campaign_id" json:"campaign_id"`
	Subject     *string   `db:"subject" json:"subject,omitempty"`
	Body        string    `db:"body" json:"body"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// DeliveryStats is the ledger-derived aggregate for a campaign.
type DeliveryStats struct {
	Total     int `db:"total" json:"total"`
	Pending   int `db:"pending" json:"pending"`
	Delivered int `db:"delivered" json:"delivered"`
	Failed    int `db:"failed" json:"failed"`
	Opened    int `db:"opened" json:"opened"`
	Clicked   int `db:"clicked" json:"clicked"`
}
