// Package bot is the Telegram transport: it authenticates the single
// allowed user by phone number and renders portfolio data as messages,
// keyboards and chart photos. All domain math lives in the portfolio
// and history modules; this layer only formats their outputs.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"github.com/r7zex/t-invest-bot/internal/modules/history"
	"github.com/r7zex/t-invest-bot/internal/modules/portfolio"
)

// Bot wires the Telegram poller to the market data gateway and the
// history reconstructor.
type Bot struct {
	tb   *tele.Bot
	gw   *portfolio.Gateway
	rec  *history.Reconstructor
	auth *authStore
	log  zerolog.Logger
}

// Config holds bot construction options.
type Config struct {
	Token         string
	AllowedPhone  string
	Gateway       *portfolio.Gateway
	Reconstructor *history.Reconstructor
	Log           zerolog.Logger
}

// New creates the bot and registers all handlers.
func New(cfg Config) (*Bot, error) {
	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	b := &Bot{
		tb:   tb,
		gw:   cfg.Gateway,
		rec:  cfg.Reconstructor,
		auth: newAuthStore(cfg.AllowedPhone),
		log:  cfg.Log.With().Str("component", "bot").Logger(),
	}

	tb.Handle("/start", b.handleStart)
	tb.Handle(tele.OnContact, b.handleContact)
	tb.Handle(&btnViewPortfolio, b.restricted(b.handlePortfolio))
	tb.Handle(&btnPosition, b.restricted(b.handlePosition))
	tb.Handle(&btnBalanceChart, b.restricted(b.handleBalanceChart))
	tb.Handle(&btnPriceChart, b.restricted(b.handlePriceChart))

	return b, nil
}

// Start begins long polling. Blocks until Stop is called.
func (b *Bot) Start() {
	b.log.Info().Msg("Bot polling started")
	b.tb.Start()
}

// Stop terminates the poller.
func (b *Bot) Stop() {
	b.tb.Stop()
	b.log.Info().Msg("Bot polling stopped")
}

// restricted refuses callbacks from chats that have not passed the
// phone check, and turns handler errors into an apologetic reply so a
// bad upstream response never kills the poller.
func (b *Bot) restricted(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !b.auth.IsAuthorized(c.Chat().ID) {
			b.log.Warn().Int64("chat_id", c.Chat().ID).Msg("Unauthorized callback")
			return c.Send("❌ Доступ закрыт. Отправьте /start и поделитесь контактом. 😞")
		}

		if err := next(c); err != nil {
			b.log.Error().Err(err).Int64("chat_id", c.Chat().ID).Msg("Handler failed")
			return c.Send("❌ Произошла ошибка при обработке запроса.\nПопробуйте ещё раз через некоторое время.")
		}
		return nil
	}
}
