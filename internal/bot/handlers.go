package bot

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/markcheno/go-talib"
	tele "gopkg.in/telebot.v3"

	"github.com/r7zex/t-invest-bot/internal/clients/invest"
	"github.com/r7zex/t-invest-bot/internal/modules/charts"
	"github.com/r7zex/t-invest-bot/internal/modules/history"
	"github.com/r7zex/t-invest-bot/internal/modules/portfolio"
)

const emptyPortfolioText = "📭 Ваш портфель пуст или не удалось получить данные.\n\n" +
	"Возможные причины:\n" +
	"• В портфеле нет акций\n" +
	"• API временно недоступен\n" +
	"• Неверный токен доступа\n" +
	"• Токен не имеет прав на чтение портфеля\n\n" +
	"💡 Убедитесь, что при создании токена была выбрана опция 'Только чтение' или полный доступ."

func (b *Bot) handleStart(c tele.Context) error {
	b.log.Info().Int64("chat_id", c.Chat().ID).Msg("Conversation started")

	return c.Send(
		"Привет, дорогой друг! 👋\n\n"+
			"Чтобы начать работу с ботом, пожалуйста, поделитесь своим номером телефона. 😄\n\n"+
			"Пожалуйста, нажмите на кнопку ниже, чтобы отправить свой контакт.",
		contactKeyboard(),
	)
}

func (b *Bot) handleContact(c tele.Context) error {
	contact := c.Message().Contact
	if contact == nil {
		return nil
	}

	if !b.auth.TryAuthorize(c.Chat().ID, contact.PhoneNumber) {
		b.log.Warn().Int64("chat_id", c.Chat().ID).Msg("Phone check failed")
		return c.Send("❌ Номер телефона не совпадает. Доступ закрыт. 😞")
	}

	b.log.Info().Int64("chat_id", c.Chat().ID).Msg("User authorized")

	if err := c.Send("✅ Доступ разрешен! Отлично, теперь вы можете использовать все возможности бота! 🎉"); err != nil {
		return err
	}
	return c.Send(
		"Нажмите на кнопку ниже, чтобы посмотреть доступные акции 📊",
		viewPortfolioKeyboard(),
	)
}

func (b *Bot) handlePortfolio(c tele.Context) error {
	b.log.Info().Int64("chat_id", c.Chat().ID).Msg("Portfolio requested")

	// The previous keyboard message is stale once we answer.
	if c.Callback() != nil {
		if err := c.Delete(); err != nil {
			b.log.Warn().Err(err).Msg("Failed to delete previous message")
		}
	}

	snap, err := b.gw.Positions("", true)
	if err != nil {
		if errors.Is(err, portfolio.ErrNoAccounts) {
			return c.Send(emptyPortfolioText)
		}
		return fmt.Errorf("fetch positions: %w", err)
	}

	valuation, dayAbs, dayPct, dayKnown, withdrawable, err := b.valuate(snap)
	if err != nil {
		if errors.Is(err, portfolio.ErrNoData) {
			return c.Send(emptyPortfolioText)
		}
		return err
	}

	return c.Send(
		summaryText(valuation, dayAbs, dayPct, dayKnown, withdrawable),
		&tele.SendOptions{ParseMode: tele.ModeMarkdown},
		portfolioKeyboard(valuation.Positions),
	)
}

func (b *Bot) handlePosition(c tele.Context) error {
	figi := c.Data()
	b.log.Info().Int64("chat_id", c.Chat().ID).Str("figi", figi).Msg("Position requested")

	if err := c.Respond(&tele.CallbackResponse{Text: "⏳ Загружаю данные..."}); err != nil {
		b.log.Warn().Err(err).Msg("Failed to answer callback")
	}

	snap, err := b.gw.Positions("", true)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	var pos *invest.Position
	for i := range snap.Positions {
		if snap.Positions[i].FIGI == figi {
			pos = &snap.Positions[i]
			break
		}
	}
	if pos == nil {
		return c.Send("❌ Не удалось найти эту акцию в портфеле", backKeyboard())
	}

	name := pos.Ticker
	info, err := b.gw.ShareInfo(figi)
	if err == nil && info.Name != "" {
		name = info.Name
	}

	prices, err := b.gw.LastPrices([]string{figi})
	if err != nil {
		prices = map[string]float64{}
	}

	pv := portfolio.ValuatePosition(*pos, prices[figi])
	rsi, rsiKnown := b.rsi(figi)

	return c.Send(
		positionText(pv, name, rsi, rsiKnown),
		&tele.SendOptions{ParseMode: tele.ModeMarkdown},
		positionKeyboard(figi),
	)
}

func (b *Bot) handleBalanceChart(c tele.Context) error {
	period := c.Data()
	b.log.Info().Int64("chat_id", c.Chat().ID).Str("period", period).Msg("Balance chart requested")

	if err := c.Respond(&tele.CallbackResponse{Text: "⏳ Строю график..."}); err != nil {
		b.log.Warn().Err(err).Msg("Failed to answer callback")
	}

	from, to, err := history.PeriodWindow(period, time.Now())
	if err != nil {
		return err
	}

	series, err := b.rec.Reconstruct("", from, to)
	if err != nil {
		return fmt.Errorf("reconstruct history: %w", err)
	}

	png, err := charts.RenderBalance(series.Points, period, "RUB")
	if err != nil {
		if errors.Is(err, charts.ErrNotEnoughData) {
			return c.Send("📭 Недостаточно данных для графика за этот период", backKeyboard())
		}
		return err
	}

	caption := "📊 Динамика баланса портфеля"
	if series.Degraded {
		caption += "\n⚠️ История операций недоступна, график приблизительный"
	}

	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(png)), Caption: caption}
	return c.Send(photo, backKeyboard())
}

func (b *Bot) handlePriceChart(c tele.Context) error {
	figi, period, ok := strings.Cut(c.Data(), "|")
	if !ok {
		return fmt.Errorf("malformed price chart payload %q", c.Data())
	}
	b.log.Info().Int64("chat_id", c.Chat().ID).Str("figi", figi).Str("period", period).Msg("Price chart requested")

	if err := c.Respond(&tele.CallbackResponse{Text: "⏳ Строю график..."}); err != nil {
		b.log.Warn().Err(err).Msg("Failed to answer callback")
	}

	from, to, err := history.PeriodWindow(period, time.Now())
	if err != nil {
		return err
	}

	points, err := b.rec.PriceHistory(figi, from, to)
	if err != nil {
		return fmt.Errorf("fetch price history: %w", err)
	}

	name := figi
	currency := "RUB"
	if info, err := b.gw.ShareInfo(figi); err == nil {
		if info.Name != "" {
			name = info.Name
		}
		if info.Currency != "" {
			currency = info.Currency
		}
	}

	png, err := charts.RenderPrice(points, period, name, currency)
	if err != nil {
		if errors.Is(err, charts.ErrNotEnoughData) {
			return c.Send("📭 Недостаточно данных для графика за этот период", backKeyboard())
		}
		return err
	}

	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(png)), Caption: "📈 Динамика цены " + name}
	return c.Send(photo, positionKeyboard(figi))
}

// SendDigest pushes the morning portfolio summary to every authorized
// chat. Used by the scheduler.
func (b *Bot) SendDigest() error {
	chats := b.auth.Chats()
	if len(chats) == 0 {
		return nil
	}

	snap, err := b.gw.Positions("", true)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	valuation, dayAbs, dayPct, dayKnown, withdrawable, err := b.valuate(snap)
	if err != nil {
		return err
	}

	text := "🌅 *Утренняя сводка*\n\n" + summaryText(valuation, dayAbs, dayPct, dayKnown, withdrawable)
	for _, chatID := range chats {
		if _, err := b.tb.Send(tele.ChatID(chatID), text, &tele.SendOptions{ParseMode: tele.ModeMarkdown}); err != nil {
			b.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send digest")
		}
	}
	return nil
}

// valuate assembles the aggregate valuation for a snapshot: fresh last
// prices where available, cash from the snapshot, withdrawable funds and
// the day change against yesterday's reconstructed close.
func (b *Bot) valuate(snap *portfolio.Snapshot) (portfolio.Valuation, float64, float64, bool, *portfolio.Money, error) {
	figis := make([]string, 0, len(snap.Positions))
	for _, pos := range snap.Positions {
		figis = append(figis, pos.FIGI)
	}

	prices, err := b.gw.LastPrices(figis)
	if err != nil {
		// Positions carry their own current price, keep going.
		prices = map[string]float64{}
	}

	cash, currency := snap.CashBalance()
	balance := &portfolio.Money{Amount: cash, Currency: currency}

	valuation, err := portfolio.Valuate(snap.Positions, prices, balance)
	if err != nil {
		return portfolio.Valuation{}, 0, 0, false, nil, err
	}

	var withdrawable *portfolio.Money
	if limits, err := b.gw.WithdrawLimits(snap.AccountID); err == nil && len(limits.Money) > 0 {
		withdrawable = &portfolio.Money{
			Amount:   limits.Money[0].Float(),
			Currency: limits.Money[0].Currency,
		}
	}

	baseline, ok := b.rec.ValueYesterday(snap.AccountID)
	dayAbs, dayPct := portfolio.DayChange(valuation.PortfolioValue, baseline, ok)

	return valuation, dayAbs, dayPct, ok, withdrawable, nil
}

// rsi computes the 14-period RSI from the last month of daily closes.
func (b *Bot) rsi(figi string) (float64, bool) {
	to := time.Now()
	from := to.AddDate(0, -1, 0)

	candles, err := b.gw.Candles(figi, from, to, invest.CandleIntervalDay)
	if err != nil || len(candles) < 15 {
		return 0, false
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close.Float()
	}

	values := talib.Rsi(closes, 14)
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}
