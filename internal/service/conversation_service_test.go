package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/security"
	"chatcore/internal/service"
)

func newConversationService(t *testing.T, convs *MockConversationRepo, parts *MockParticipantRepo, msgs *MockMessageRepo) *service.ConversationService {
	t.Helper()
	enc, err := security.NewEncryptor([]byte("test-key"))
	require.NoError(t, err)
	return service.NewConversationService(convs, parts, msgs, enc)
}

func TestCreateOrGetDirect(t *testing.T) {
	ctx := context.Background()

	t.Run("ReturnsExisting", func(t *testing.T) {
		convs := new(MockConversationRepo)
		parts := new(MockParticipantRepo)
		msgs := new(MockMessageRepo)
		svc := newConversationService(t, convs, parts, msgs)

		existing := existingConversation(7)
		convs.On("FindExistingDirect", mock.Anything, "alice", "bob").Return(existing, nil)

		conv, err := svc.CreateOrGetDirect(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Equal(t, int64(7), conv.ID)
		convs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CreatesWhenMissing", func(t *testing.T) {
		convs := new(MockConversationRepo)
		parts := new(MockParticipantRepo)
		msgs := new(MockMessageRepo)
		svc := newConversationService(t, convs, parts, msgs)

		convs.On("FindExistingDirect", mock.Anything, "alice", "bob").Return(nil, nil)
		convs.On("Create", mock.Anything, mock.AnythingOfType("*domain.Conversation"), []string{"alice", "bob"}).
			Run(func(args mock.Arguments) {
				args.Get(1).(*domain.Conversation).ID = 3
			}).Return(nil)

		conv, err := svc.CreateOrGetDirect(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Equal(t, int64(3), conv.ID)
		assert.False(t, conv.IsGroup)
	})

	t.Run("SelfTarget", func(t *testing.T) {
		convs := new(MockConversationRepo)
		parts := new(MockParticipantRepo)
		msgs := new(MockMessageRepo)
		svc := newConversationService(t, convs, parts, msgs)

		conv, err := svc.CreateOrGetDirect(ctx, "alice", "alice")
		assert.Nil(t, conv)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("EmptyTarget", func(t *testing.T) {
		convs := new(MockConversationRepo)
		parts := new(MockParticipantRepo)
		msgs := new(MockMessageRepo)
		svc := newConversationService(t, convs, parts, msgs)

		conv, err := svc.CreateOrGetDirect(ctx, "alice", "")
		assert.Nil(t, conv)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("DeduplicatesAndIncludesCreator", func(t *testing.T) {
		convs := new(MockConversationRepo)
		parts := new(MockParticipantRepo)
		msgs := new(MockMessageRepo)
		svc := newConversationService(t, convs, parts, msgs)

		title := "team"
		convs.On("Create", mock.Anything, mock.AnythingOfType("*domain.Conversation"), []string{"alice", "bob", "carol"}).
			Return(nil)

		conv, err := svc.CreateGroup(ctx, service.GroupCreateInput{
			Title:          &title,
			ParticipantIDs: []string{"bob", "alice", "carol", "bob"},
		}, "alice")
		require.NoError(t, err)
		assert.True(t, conv.IsGroup)
		convs.AssertExpectations(t)
	})

	t.Run("NoParticipants", func(t *testing.T) {
		convs := new(MockConversationRepo)
		parts := new(MockParticipantRepo)
		msgs := new(MockMessageRepo)
		svc := newConversationService(t, convs, parts, msgs)

		conv, err := svc.CreateGroup(ctx, service.GroupCreateInput{}, "alice")
		assert.Nil(t, conv)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestDeleteConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("NonParticipantForbidden", func(t *testing.T) {
		convs := new(MockConversationRepo)
		parts := new(MockParticipantRepo)
		msgs := new(MockMessageRepo)
		svc := newConversationService(t, convs, parts, msgs)

		convs.On("GetByID", mock.Anything, int64(1)).Return(existingConversation(1), nil)
		parts.On("IsParticipant", mock.Anything, int64(1), "mallory").Return(false, nil)

		err := svc.Delete(ctx, 1, "mallory")
		assert.ErrorIs(t, err, domain.ErrForbidden)
		convs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("Missing", func(t *testing.T) {
		convs := new(MockConversationRepo)
		parts := new(MockParticipantRepo)
		msgs := new(MockMessageRepo)
		svc := newConversationService(t, convs, parts, msgs)

		convs.On("GetByID", mock.Anything, int64(9)).Return(nil, nil)

		err := svc.Delete(ctx, 9, "alice")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
