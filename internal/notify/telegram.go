package notify

import (
	"context"
	"sync"

	"circleburo/internal/domain"
	"circleburo/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// BotFactory создаёт клиента Bot API по токену.
type BotFactory func(token string) (domain.TelegramSender, error)

// TelegramSink шлёт сообщение в чат сотрудников. Бот создаётся при первом событии;
// без токена или чата синк выключается, предупреждение пишется один раз.
type TelegramSink struct {
	token   string
	chatID  int64
	factory BotFactory
	logger  *zerolog.Logger

	once sync.Once
	bot  domain.TelegramSender
}

func NewTelegramSink(token string, chatID int64, debug bool, logger *zerolog.Logger) *TelegramSink {
	return NewTelegramSinkWithFactory(token, chatID, func(token string) (domain.TelegramSender, error) {
		bot, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			return nil, err
		}
		bot.Debug = debug
		return bot, nil
	}, logger)
}

func NewTelegramSinkWithFactory(token string, chatID int64, factory BotFactory, logger *zerolog.Logger) *TelegramSink {
	return &TelegramSink{
		token:   token,
		chatID:  chatID,
		factory: factory,
		logger:  logger,
	}
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) init() {
	if s.token == "" || s.chatID == 0 {
		s.logger.Warn().Msg("telegram bot token or chat id not configured, staff notifications disabled")
		return
	}
	bot, err := s.factory(s.token)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to create telegram bot, staff notifications disabled")
		return
	}
	s.bot = bot
}

func (s *TelegramSink) Notify(_ context.Context, event *events.Event) error {
	s.once.Do(s.init)
	if s.bot == nil {
		return ErrSinkDisabled
	}

	text, err := FormatMessage(event)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.DisableWebPagePreview = true
	_, err = s.bot.Send(msg)
	return err
}
