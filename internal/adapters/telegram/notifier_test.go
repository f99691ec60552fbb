package telegram

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return tgbotapi.Message{}, args.Error(0)
}

func TestNotifier_Send(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok &&
			msg.ChatID == 42 &&
			msg.Text == "<b>AAPL</b>" &&
			msg.ParseMode == tgbotapi.ModeHTML &&
			msg.DisableWebPagePreview
	})).Return(nil).Once()

	n := NewNotifierWithSender(sender, Config{}, logger.NewNop())

	require.NoError(t, n.Send(context.Background(), 42, "<b>AAPL</b>"))
	sender.AssertExpectations(t)
}

func TestNotifier_SendError(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything).Return(errors.New("Bad Request: chat not found"))

	n := NewNotifierWithSender(sender, Config{}, logger.NewNop())

	err := n.Send(context.Background(), 7, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestNotifier_CancelledContext(t *testing.T) {
	sender := new(MockSender)
	n := NewNotifierWithSender(sender, Config{RateLimitRate: 1, RateLimitBurst: 1}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, n.Send(ctx, 1, "hi"))
	sender.AssertNotCalled(t, "Send", mock.Anything)
}

func TestNewNotifier_RequiresToken(t *testing.T) {
	_, err := NewNotifier(Config{}, logger.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}
