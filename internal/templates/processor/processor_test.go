package processor

import (
	"context"
	"testing"

	"educenter-server/internal/observability"
	"educenter-server/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTemplateStore struct {
	mock.Mock
}

func (m *MockTemplateStore) CreateNotificationTemplate(ctx context.Context, params store.CreateNotificationTemplateParams) (store.NotificationTemplate, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(store.NotificationTemplate), args.Error(1)
}

func (m *MockTemplateStore) GetNotificationTemplateByID(ctx context.Context, templateID uuid.UUID) (store.NotificationTemplate, error) {
	args := m.Called(ctx, templateID)
	return args.Get(0).(store.NotificationTemplate), args.Error(1)
}

func (m *MockTemplateStore) ListNotificationTemplates(ctx context.Context, channel *string, limit, offset int) ([]store.NotificationTemplate, error) {
	args := m.Called(ctx, channel, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.NotificationTemplate), args.Error(1)
}

func (m *MockTemplateStore) UpdateNotificationTemplate(ctx context.Context, templateID uuid.UUID, params store.UpdateNotificationTemplateParams) (store.NotificationTemplate, error) {
	args := m.Called(ctx, templateID, params)
	return args.Get(0).(store.NotificationTemplate), args.Error(1)
}

func (m *MockTemplateStore) SetNotificationTemplateActive(ctx context.Context, templateID uuid.UUID, isActive bool) (store.NotificationTemplate, error) {
	args := m.Called(ctx, templateID, isActive)
	return args.Get(0).(store.NotificationTemplate), args.Error(1)
}

func (m *MockTemplateStore) DeleteNotificationTemplate(ctx context.Context, templateID uuid.UUID) error {
	args := m.Called(ctx, templateID)
	return args.Error(0)
}

func (m *MockTemplateStore) CountLiveCampaignsByTemplate(ctx context.Context, templateID uuid.UUID) (int, error) {
	args := m.Called(ctx, templateID)
	return args.Int(0), args.Error(1)
}

func newTestProcessor(t *testing.T) (TemplateProcessor, *MockTemplateStore) {
	t.Helper()
	mockStore := new(MockTemplateStore)
	return New(mockStore, observability.NewLogger()), mockStore
}

func strPtr(s string) *string { return &s }

func TestCreateTemplateValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateTemplateRequest
		wantErr error
	}{
		{
			name:    "empty name",
			req:     CreateTemplateRequest{Name: "", Channel: store.ChannelSMS, Body: "hi"},
			wantErr: ErrInvalidTemplate,
		},
		{
			name:    "empty body",
			req:     CreateTemplateRequest{Name: "welcome", Channel: store.ChannelSMS, Body: ""},
			wantErr: ErrInvalidTemplate,
		},
		{
			name:    "email without subject",
			req:     CreateTemplateRequest{Name: "welcome", Channel: store.ChannelEmail, Body: "hi"},
			wantErr: ErrInvalidTemplate,
		},
		{
			name:    "unknown channel",
			req:     CreateTemplateRequest{Name: "welcome", Channel: "fax", Body: "hi"},
			wantErr: ErrInvalidChannel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mockStore := newTestProcessor(t)
			_, err := p.CreateTemplate(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			mockStore.AssertNotCalled(t, "CreateNotificationTemplate")
		})
	}
}

func TestCreateTemplateDefaultsActive(t *testing.T) {
	p, mockStore := newTestProcessor(t)

	mockStore.On("CreateNotificationTemplate", mock.Anything, mock.MatchedBy(func(params store.CreateNotificationTemplateParams) bool {
		return params.IsActive && params.Channel == store.ChannelSMS
	})).Return(store.NotificationTemplate{ID: uuid.New(), Name: "reminder"}, nil)

	tmpl, err := p.CreateTemplate(context.Background(), CreateTemplateRequest{
		Name:    "reminder",
		Channel: store.ChannelSMS,
		Body:    "class at {{time}}",
	})
	require.NoError(t, err)
	assert.Equal(t, "reminder", tmpl.Name)
	mockStore.AssertExpectations(t)
}

func TestUpdateTemplateChannelImmutable(t *testing.T) {
	p, mockStore := newTestProcessor(t)
	templateID := uuid.New()

	mockStore.On("GetNotificationTemplateByID", mock.Anything, templateID).
		Return(store.NotificationTemplate{ID: templateID, Name: "welcome", Channel: store.ChannelEmail, Subject: strPtr("hi"), Body: "hello"}, nil)

	_, err := p.UpdateTemplate(context.Background(), templateID, UpdateTemplateRequest{
		Channel: strPtr(store.ChannelSMS),
	})
	assert.ErrorIs(t, err, ErrChannelImmutable)
	mockStore.AssertNotCalled(t, "UpdateNotificationTemplate")
}

func TestUpdateTemplateValidatesMergedContent(t *testing.T) {
	p, mockStore := newTestProcessor(t)
	templateID := uuid.New()

	mockStore.On("GetNotificationTemplateByID", mock.Anything, templateID).
		Return(store.NotificationTemplate{ID: templateID, Name: "welcome", Channel: store.ChannelEmail, Subject: strPtr("hi"), Body: "hello"}, nil)

	// Blanking the subject on an email template is invalid even though the
	// patch alone looks harmless.
	_, err := p.UpdateTemplate(context.Background(), templateID, UpdateTemplateRequest{
		Subject: strPtr(""),
	})
	assert.ErrorIs(t, err, ErrInvalidTemplate)
	mockStore.AssertNotCalled(t, "UpdateNotificationTemplate")
}

func TestUpdateTemplateNotFound(t *testing.T) {
	p, mockStore := newTestProcessor(t)
	templateID := uuid.New()

	mockStore.On("GetNotificationTemplateByID", mock.Anything, templateID).
		Return(store.NotificationTemplate{}, store.ErrNotFound)

	_, err := p.UpdateTemplate(context.Background(), templateID, UpdateTemplateRequest{Name: strPtr("new name")})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestDeleteTemplateReferenced(t *testing.T) {
	p, mockStore := newTestProcessor(t)
	templateID := uuid.New()

	mockStore.On("CountLiveCampaignsByTemplate", mock.Anything, templateID).Return(2, nil)

	err := p.DeleteTemplate(context.Background(), templateID)
	assert.ErrorIs(t, err, ErrTemplateReferenced)
	mockStore.AssertNotCalled(t, "DeleteNotificationTemplate")
}

func TestDeleteTemplateUnreferenced(t *testing.T) {
	p, mockStore := newTestProcessor(t)
	templateID := uuid.New()

	mockStore.On("CountLiveCampaignsByTemplate", mock.Anything, templateID).Return(0, nil)
	mockStore.On("DeleteNotificationTemplate", mock.Anything, templateID).Return(nil)

	err := p.DeleteTemplate(context.Background(), templateID)
	require.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestPreviewTemplate(t *testing.T) {
	p, mockStore := newTestProcessor(t)
	templateID := uuid.New()

	mockStore.On("GetNotificationTemplateByID", mock.Anything, templateID).
		Return(store.NotificationTemplate{
			ID:                templateID,
			Name:              "welcome",
			Channel:           store.ChannelEmail,
			Subject:           strPtr("Welcome {{first_name}}"),
			Body:              "Hi {{first_name}}, see you at {{center_name}}",
			DeclaredVariables: store.StringArray{"first_name", "unused_var"},
		}, nil)

	preview, err := p.PreviewTemplate(context.Background(), templateID, map[string]string{
		"first_name":  "Ada",
		"center_name": "North Campus",
	})
	require.NoError(t, err)
	require.NotNil(t, preview.Subject)
	assert.Equal(t, "Welcome Ada", *preview.Subject)
	assert.Equal(t, "Hi Ada, see you at North Campus", preview.Body)
	assert.Equal(t, []string{"center_name"}, preview.UndeclaredPlaceholders)
	assert.Equal(t, []string{"unused_var"}, preview.UnusedVariables)
	assert.Nil(t, preview.MissingVariable)
}

func TestPreviewTemplateMissingVariable(t *testing.T) {
	p, mockStore := newTestProcessor(t)
	templateID := uuid.New()

	mockStore.On("GetNotificationTemplateByID", mock.Anything, templateID).
		Return(store.NotificationTemplate{
			ID:      templateID,
			Name:    "reminder",
			Channel: store.ChannelSMS,
			Body:    "class at {{time}}",
		}, nil)

	preview, err := p.PreviewTemplate(context.Background(), templateID, map[string]string{})
	require.NoError(t, err)
	require.NotNil(t, preview.MissingVariable)
	assert.Equal(t, "time", *preview.MissingVariable)
}
