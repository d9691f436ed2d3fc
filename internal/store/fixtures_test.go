package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Fixtures provides factory functions for creating test data.
// All factory methods use testify/require to fail fast on errors.
type Fixtures struct {
	t      *testing.T
	testDB *TestDB
	ctx    context.Context
}

// NewFixtures creates a new Fixtures instance for test data generation.
func NewFixtures(t *testing.T, testDB *TestDB) *Fixtures {
	t.Helper()
	return &Fixtures{
		t:      t,
		testDB: testDB,
		ctx:    context.Background(),
	}
}

// --- Recipient Fixtures ---

// RecipientOpts customizes recipient creation.
type RecipientOpts struct {
	Email     string
	Phone     *string
	FirstName string
	LastName  string
	Role      string
	IsActive  bool
}

// DefaultRecipientOpts returns sensible defaults for recipient creation.
func DefaultRecipientOpts() RecipientOpts {
	return RecipientOpts{
		Email:     uuid.New().String() + "@example.com",
		FirstName: "Test",
		LastName:  "User",
		Role:      "student",
		IsActive:  true,
	}
}

// CreateRecipient creates a directory user with optional customization.
// Uses raw SQL since the engine never writes directory rows itself.
func (f *Fixtures) CreateRecipient(opts ...func(*RecipientOpts)) Recipient {
	f.t.Helper()
	o := DefaultRecipientOpts()
	for _, fn := range opts {
		fn(&o)
	}

	var recipient Recipient
	query := `INSERT INTO users (email, phone, first_name, last_name, role, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id, email, phone, device_token, first_name, last_name, role, is_active`
	err := f.testDB.GetDB().GetContext(f.ctx, &recipient, query,
		o.Email, o.Phone, o.FirstName, o.LastName, o.Role, o.IsActive)
	require.NoError(f.t, err, "failed to create test recipient")
	return recipient
}

// CreateCourse creates a course row and returns its id.
func (f *Fixtures) CreateCourse(name string) uuid.UUID {
	f.t.Helper()
	var courseID uuid.UUID
	query := `INSERT INTO courses (name) VALUES ($1) RETURNING id`
	err := f.testDB.GetDB().GetContext(f.ctx, &courseID, query, name)
	require.NoError(f.t, err, "failed to create test course")
	return courseID
}

// Enroll adds a user to a course.
func (f *Fixtures) Enroll(courseID, userID uuid.UUID) {
	f.t.Helper()
	query := `INSERT INTO course_enrollments (course_id, user_id) VALUES ($1, $2)`
	_, err := f.testDB.GetDB().ExecContext(f.ctx, query, courseID, userID)
	require.NoError(f.t, err, "failed to enroll test user")
}

// --- Template Fixtures ---

// TemplateOpts customizes template creation.
type TemplateOpts struct {
	Name              string
	Channel           string
	Subject           *string
	Body              string
	DeclaredVariables StringArray
	IsActive          bool
}

// DefaultTemplateOpts returns sensible defaults for template creation.
func DefaultTemplateOpts() TemplateOpts {
	subject := "Hello {{first_name}}"
	return TemplateOpts{
		Name:              "Test Template " + uuid.New().String(),
		Channel:           ChannelEmail,
		Subject:           &subject,
		Body:              "Hi {{first_name}}, welcome to {{course_name}}.",
		DeclaredVariables: StringArray{"course_name"},
		IsActive:          true,
	}
}

// CreateTemplate creates a notification template through the store.
func (f *Fixtures) CreateTemplate(opts ...func(*TemplateOpts)) NotificationTemplate {
	f.t.Helper()
	o := DefaultTemplateOpts()
	for _, fn := range opts {
		fn(&o)
	}

	tmpl, err := f.testDB.Store.CreateNotificationTemplate(f.ctx, CreateNotificationTemplateParams{
		Name:              o.Name,
		Channel:           o.Channel,
		Subject:           o.Subject,
		Body:              o.Body,
		DeclaredVariables: o.DeclaredVariables,
		IsActive:          o.IsActive,
	})
	require.NoError(f.t, err, "failed to create test template")
	return tmpl
}

// --- Campaign Fixtures ---

// CampaignOpts customizes campaign creation.
type CampaignOpts struct {
	TemplateID   *uuid.UUID
	Channel      string
	Subject      *string
	Body         string
	Variables    JSONB
	SelectorKind string
	ScheduleMode string
}

// DefaultCampaignOpts returns sensible defaults for campaign creation.
func DefaultCampaignOpts() CampaignOpts {
	subject := "Hello {{first_name}}"
	return CampaignOpts{
		Channel:      ChannelEmail,
		Subject:      &subject,
		Body:         "Hi {{first_name}}, welcome to {{course_name}}.",
		Variables:    JSONB{"course_name": "Algebra I"},
		SelectorKind: SelectorKindAll,
		ScheduleMode: ScheduleModeNow,
	}
}

// CreateCampaign creates a draft campaign through the store. A backing
// template is created automatically unless one is supplied.
func (f *Fixtures) CreateCampaign(opts ...func(*CampaignOpts)) NotificationCampaign {
	f.t.Helper()
	o := DefaultCampaignOpts()
	for _, fn := range opts {
		fn(&o)
	}

	templateID := uuid.Nil
	if o.TemplateID != nil {
		templateID = *o.TemplateID
	} else {
		tmpl := f.CreateTemplate(func(t *TemplateOpts) {
			t.Channel = o.Channel
			t.Subject = o.Subject
			t.Body = o.Body
		})
		templateID = tmpl.ID
	}

	campaign, err := f.testDB.Store.CreateCampaign(f.ctx, CreateCampaignParams{
		TemplateID:   templateID,
		Channel:      o.Channel,
		Subject:      o.Subject,
		Body:         o.Body,
		Variables:    o.Variables,
		SelectorKind: o.SelectorKind,
		ScheduleMode: o.ScheduleMode,
	})
	require.NoError(f.t, err, "failed to create test campaign")
	return campaign
}

// --- Helpers ---

// createTestTemplate creates a template with defaults.
func createTestTemplate(t *testing.T, testDB *TestDB) NotificationTemplate {
	t.Helper()
	return NewFixtures(t, testDB).CreateTemplate()
}

// createTestCampaign creates a draft campaign with defaults.
func createTestCampaign(t *testing.T, testDB *TestDB) NotificationCampaign {
	t.Helper()
	return NewFixtures(t, testDB).CreateCampaign()
}

// createTestRecipient creates an active student recipient.
func createTestRecipient(t *testing.T, testDB *TestDB) Recipient {
	t.Helper()
	return NewFixtures(t, testDB).CreateRecipient()
}
