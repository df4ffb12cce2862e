package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
)

func testInboundMessage() model.Message {
	return model.Message{
		ID:             "msg-1",
		AccountID:      testAccountID,
		ConversationID: testConversationID,
		ExternalID:     "wamid-1",
		Direction:      model.MessageInbound,
		Content:        "Oi, quanto custa?",
		Type:           model.MessageTypeText,
		SentAt:         time.Now().UTC(),
	}
}

func TestSaveInboundMessageStored(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`INSERT INTO "mensagens" (.+) ON CONFLICT \("conversation_id","external_id"\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stored, err := repo.SaveInboundMessage(ctx, testInboundMessage())

	require.NoError(t, err)
	assert.True(t, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInboundMessageDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTestTenant()

	// DO NOTHING on a redelivery affects zero rows; that is success, not
	// an error, and the caller skips the rest of the pipeline.
	mock.ExpectExec(`INSERT INTO "mensagens" (.+) ON CONFLICT \("conversation_id","external_id"\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	stored, err := repo.SaveInboundMessage(ctx, testInboundMessage())

	require.NoError(t, err)
	assert.False(t, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInboundMessageKeepsEchoDirection(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTestTenant()

	echo := testInboundMessage()
	echo.ID = "msg-echo-1"
	echo.ExternalID = "wamid-echo-1"
	echo.Direction = model.MessageOutbound

	// An echo of the tenant's own reply must be persisted as outbound;
	// prompt role mapping and the last-inbound trigger lookup depend on
	// the direction column. Direction is the fifth bound argument.
	mock.ExpectExec(`INSERT INTO "mensagens" (.+) ON CONFLICT \("conversation_id","external_id"\) DO NOTHING`).
		WithArgs(echo.ID, testAccountID, testConversationID, echo.ExternalID,
			model.MessageOutbound, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stored, err := repo.SaveInboundMessage(ctx, echo)

	require.NoError(t, err)
	assert.True(t, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInboundMessageDefaultsDirection(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTestTenant()

	message := testInboundMessage()
	message.Direction = ""

	mock.ExpectExec(`INSERT INTO "mensagens" (.+) ON CONFLICT \("conversation_id","external_id"\) DO NOTHING`).
		WithArgs(message.ID, testAccountID, testConversationID, message.ExternalID,
			model.MessageInbound, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stored, err := repo.SaveInboundMessage(ctx, message)

	require.NoError(t, err)
	assert.True(t, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInboundMessageRequiresTenant(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.SaveInboundMessage(context.Background(), testInboundMessage())

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestSaveInboundMessageRejectsForeignTenant(t *testing.T) {
	repo, _ := newMockRepo(t)
	ctx := contextWithTestTenant()

	message := testInboundMessage()
	message.AccountID = "acc-other"

	_, err := repo.SaveInboundMessage(ctx, message)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestSaveOutboundMessage(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`INSERT INTO "mensagens"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	message := testInboundMessage()
	message.Direction = model.MessageOutbound
	message.FromAI = true

	err := repo.SaveOutboundMessage(ctx, message)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRecentMessagesReversesToChronological(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTestTenant()

	now := time.Now().UTC()
	// The query returns newest first; the repo hands back oldest first.
	rows := sqlmock.NewRows([]string{"id", "account_id", "conversation_id", "direction", "content", "type", "sent_at"}).
		AddRow("msg-3", testAccountID, testConversationID, model.MessageInbound, "terceira", model.MessageTypeText, now).
		AddRow("msg-2", testAccountID, testConversationID, model.MessageOutbound, "segunda", model.MessageTypeText, now.Add(-time.Minute)).
		AddRow("msg-1", testAccountID, testConversationID, model.MessageInbound, "primeira", model.MessageTypeText, now.Add(-2*time.Minute))

	mock.ExpectQuery(`SELECT \* FROM "mensagens" WHERE conversation_id = (.+) ORDER BY sent_at DESC`).
		WithArgs(testConversationID, testAccountID, false, 20).
		WillReturnRows(rows)

	messages, err := repo.FindRecentMessagesByConversation(ctx, testConversationID, 20)

	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "msg-1", messages[0].ID)
	assert.Equal(t, "msg-2", messages[1].ID)
	assert.Equal(t, "msg-3", messages[2].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLastInboundMessageNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTestTenant()

	mock.ExpectQuery(`SELECT \* FROM "mensagens" WHERE conversation_id = (.+) ORDER BY sent_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	message, err := repo.FindLastInboundMessage(ctx, testConversationID)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkMessageDeleted(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "mensagens" SET`).
		WithArgs(true, AnyTime{}, "msg-1", testAccountID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkMessageDeleted(ctx, "msg-1")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkMessageDeletedNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithTestTenant()

	mock.ExpectExec(`UPDATE "mensagens" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkMessageDeleted(ctx, "msg-missing")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
