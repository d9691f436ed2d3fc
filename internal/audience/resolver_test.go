package audience

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

// MockDirectory is a mock implementation of RecipientDirectory
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ListActiveRecipients(ctx context.Context) ([]store.Recipient, error) {
	args := m.Called(ctx)
	return args.Get(0).([]store.Recipient), args.Error(1)
}

func (m *MockDirectory) ListRecipientsByRoles(ctx context.Context, roles []string) ([]store.Recipient, error) {
	args := m.Called(ctx, roles)
	return args.Get(0).([]store.Recipient), args.Error(1)
}

func (m *MockDirectory) ListRecipientsByCourses(ctx context.Context, courseIDs []string) ([]store.Recipient, error) {
	args := m.Called(ctx, courseIDs)
	return args.Get(0).([]store.Recipient), args.Error(1)
}

func (m *MockDirectory) GetRecipientsByIDs(ctx context.Context, userIDs []string) ([]store.Recipient, error) {
	args := m.Called(ctx, userIDs)
	return args.Get(0).([]store.Recipient), args.Error(1)
}

func recipient(role string) store.Recipient {
	return store.Recipient{ID: uuid.New(), Email: "user@example.com", Role: role, IsActive: true}
}

func TestResolveAll(t *testing.T) {
	directory := new(MockDirectory)
	resolver := NewResolver(directory, observability.NewLogger())

	all := []store.Recipient{recipient("student"), recipient("teacher")}
	directory.On("ListActiveRecipients", mock.Anything).Return(all, nil)

	got, err := resolver.Resolve(context.Background(), Selector{Kind: store.SelectorKindAll})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	directory.AssertExpectations(t)
}

func TestResolveRoleDedupes(t *testing.T) {
	directory := new(MockDirectory)
	resolver := NewResolver(directory, observability.NewLogger())

	student := recipient("student")
	// Directory may return the same user once per matching role.
	directory.On("ListRecipientsByRoles", mock.Anything, []string{"student", "assistant"}).
		Return([]store.Recipient{student, student, recipient("assistant")}, nil)

	got, err := resolver.Resolve(context.Background(), Selector{
		Kind:  store.SelectorKindRole,
		Roles: []string{"student", "assistant"},
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestResolveIndividualDropsUnknownIDs(t *testing.T) {
	directory := new(MockDirectory)
	resolver := NewResolver(directory, observability.NewLogger())

	known := recipient("student")
	unknownID := uuid.New().String()
	directory.On("GetRecipientsByIDs", mock.Anything, []string{known.ID.String(), unknownID}).
		Return([]store.Recipient{known}, nil)

	got, err := resolver.Resolve(context.Background(), Selector{
		Kind:    store.SelectorKindIndividual,
		UserIDs: []string{known.ID.String(), unknownID},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, known.ID, got[0].ID)
}

func TestResolveEmptyAudience(t *testing.T) {
	directory := new(MockDirectory)
	resolver := NewResolver(directory, observability.NewLogger())

	directory.On("ListRecipientsByRoles", mock.Anything, []string{"student"}).
		Return([]store.Recipient{}, nil)

	_, err := resolver.Resolve(context.Background(), Selector{
		Kind:  store.SelectorKindRole,
		Roles: []string{"student"},
	})
	assert.ErrorIs(t, err, ErrEmptyAudience)
}

func TestSelectorValidate(t *testing.T) {
	tests := []struct {
		name     string
		selector Selector
		wantErr  bool
	}{
		{"all is always valid", Selector{Kind: store.SelectorKindAll}, false},
		{"role without roles", Selector{Kind: store.SelectorKindRole}, true},
		{"course without ids", Selector{Kind: store.SelectorKindCourse}, true},
		{"individual without ids", Selector{Kind: store.SelectorKindIndividual}, true},
		{"unknown kind", Selector{Kind: "segment"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.selector.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
