package audience

import (
	"context"
	"errors"
	"fmt"

	"educenter-server/internal/observability"
	"educenter-server/internal/store"

	"github.com/google/uuid"
)

var (
	ErrEmptyAudience       = errors.New("selector resolved to an empty audience")
	ErrUnknownSelectorKind = errors.New("unknown selector kind")
)

// RecipientDirectory defines the user-directory operations required to
// resolve a selector into concrete recipients.
type RecipientDirectory interface {
	ListActiveRecipients(ctx context.Context) ([]store.Recipient, error)
	ListRecipientsByRoles(ctx context.Context, roles []string) ([]store.Recipient, error)
	ListRecipientsByCourses(ctx context.Context, courseIDs []string) ([]store.Recipient, error)
	GetRecipientsByIDs(ctx context.Context, userIDs []string) ([]store.Recipient, error)
}

// Selector describes who a campaign targets.
type Selector struct {
	Kind      string
	Roles     []string
	CourseIDs []string
	UserIDs   []string
}

// SelectorFromCampaign rebuilds the selector stored on a campaign row.
func SelectorFromCampaign(campaign store.NotificationCampaign) Selector {
	return Selector{
		Kind:      campaign.SelectorKind,
		Roles:     campaign.SelectorRoles,
		CourseIDs: campaign.SelectorCourseIDs,
		UserIDs:   campaign.SelectorUserIDs,
	}
}

// Validate rejects selectors that could never resolve.
func (s Selector) Validate() error {
	switch s.Kind {
	case store.SelectorKindAll:
		return nil
	case store.SelectorKindRole:
		if len(s.Roles) == 0 {
			return fmt.Errorf("role selector requires at least one role")
		}
	case store.SelectorKindCourse:
		if len(s.CourseIDs) == 0 {
			return fmt.Errorf("course selector requires at least one course id")
		}
	case store.SelectorKindIndividual:
		if len(s.UserIDs) == 0 {
			return fmt.Errorf("individual selector requires at least one user id")
		}
	default:
		return ErrUnknownSelectorKind
	}
	return nil
}

// Resolver turns a selector into a deduplicated set of recipients.
type Resolver struct {
	directory RecipientDirectory
	logger    *observability.Logger
}

func NewResolver(directory RecipientDirectory, logger *observability.Logger) Resolver {
	return Resolver{
		directory: directory,
		logger:    logger,
	}
}

// Resolve computes the concrete audience for a selector at the moment of the
// call. Unknown ids in an individual selector are silently dropped; an empty
// result is an error so a campaign can fail fast instead of dispatching to
// nobody.
func (r Resolver) Resolve(ctx context.Context, selector Selector) ([]store.Recipient, error) {
	if err := selector.Validate(); err != nil {
		return nil, err
	}

	var (
		recipients []store.Recipient
		err        error
	)
	switch selector.Kind {
	case store.SelectorKindAll:
		recipients, err = r.directory.ListActiveRecipients(ctx)
	case store.SelectorKindRole:
		recipients, err = r.directory.ListRecipientsByRoles(ctx, selector.Roles)
	case store.SelectorKindCourse:
		recipients, err = r.directory.ListRecipientsByCourses(ctx, selector.CourseIDs)
	case store.SelectorKindIndividual:
		recipients, err = r.directory.GetRecipientsByIDs(ctx, selector.UserIDs)
	}
	if err != nil {
		r.logger.Error(ctx, "failed to resolve audience", err,
			observability.Field{Key: "selector_kind", Value: selector.Kind})
		return nil, fmt.Errorf("failed to resolve audience: %w", err)
	}

	deduplicated := dedupe(recipients)
	if len(deduplicated) == 0 {
		return nil, ErrEmptyAudience
	}

	r.logger.Info(ctx, "resolved audience",
		observability.Field{Key: "selector_kind", Value: selector.Kind},
		observability.Field{Key: "recipient_count", Value: len(deduplicated)})
	return deduplicated, nil
}

func dedupe(recipients []store.Recipient) []store.Recipient {
	seen := make(map[uuid.UUID]bool, len(recipients))
	result := make([]store.Recipient, 0, len(recipients))
	for _, recipient := range recipients {
		if seen[recipient.ID] {
			continue
		}
		seen[recipient.ID] = true
		result = append(result, recipient)
	}
	return result
}
