package bot

import (
	"fmt"
	"math"
	"strconv"

	"github.com/r7zex/t-invest-bot/internal/modules/charts"
	"github.com/r7zex/t-invest-bot/internal/modules/portfolio"
)

// FormatMoney renders an amount as "1 234 567.89 ₽": two decimals,
// space-grouped thousands, currency symbol.
func FormatMoney(value float64, currency string) string {
	neg := value < 0
	abs := math.Abs(value)

	whole := int64(abs)
	cents := int64(math.Round((abs - float64(whole)) * 100))
	if cents == 100 {
		whole++
		cents = 0
	}

	out := fmt.Sprintf("%s.%02d %s", groupThousands(whole), cents, charts.Symbol(currency))
	if neg {
		return "-" + out
	}
	return out
}

// FormatQuantity renders a position quantity: virtual (gift) positions
// keep fractional shares with two decimals, regular ones are whole
// units. Display-only, the valuation math always uses the exact value.
func FormatQuantity(qty float64, virtual bool) string {
	if virtual {
		return fmt.Sprintf("%.2f", qty)
	}
	return strconv.FormatInt(int64(qty), 10)
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var out []byte
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ' ')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}

// profitEmoji picks the marker pair for a signed profit value.
func profitEmoji(profit float64) (mark, arrow string) {
	switch {
	case profit > 0:
		return "🟢", "📈 +"
	case profit < 0:
		return "🔴", "📉 "
	default:
		return "⚪", "➡️ "
	}
}

// summaryText renders the aggregate portfolio message.
func summaryText(v portfolio.Valuation, dayAbs, dayPct float64, dayKnown bool, withdrawable *portfolio.Money) string {
	mark, arrow := profitEmoji(v.ProfitAbs)

	text := fmt.Sprintf(
		"💼 *Ваш портфель* (%d позиций)\n\n"+
			"💎 *Стоимость портфеля:* %s\n"+
			"📊 *Акции:* %s\n"+
			"💰 *Свободные средства:* %s\n",
		len(v.Positions),
		FormatMoney(v.PortfolioValue, v.Currency),
		FormatMoney(v.StocksValue, v.Currency),
		FormatMoney(v.Balance, v.Currency),
	)

	if withdrawable != nil {
		text += fmt.Sprintf("🏧 *Доступно для вывода:* %s\n", FormatMoney(withdrawable.Amount, withdrawable.Currency))
	}

	text += fmt.Sprintf(
		"\n%s *Прибыль за всё время:* %s%s (%+.2f%%)\n",
		mark, arrow, FormatMoney(math.Abs(v.ProfitAbs), v.Currency), v.ProfitPct,
	)

	if dayKnown {
		dayMark, dayArrow := profitEmoji(dayAbs)
		text += fmt.Sprintf(
			"%s *Прибыль за сегодня:* %s%s (%+.2f%%)\n",
			dayMark, dayArrow, FormatMoney(math.Abs(dayAbs), v.Currency), dayPct,
		)
	} else {
		text += "⚪ *Прибыль за сегодня:* данных пока нет\n"
	}

	text += "\nВыберите акцию для просмотра подробной информации:"
	return text
}

// positionText renders the per-position detail message.
func positionText(pv portfolio.PositionValuation, name string, rsi float64, rsiKnown bool) string {
	pos := pv.Position
	currency := pos.Currency()
	if currency == "" {
		currency = "RUB"
	}

	mark, arrow := profitEmoji(pv.ProfitAbs)

	kind := ""
	if pos.IsVirtual {
		kind = " 🎁 _подарочные акции_\n"
	}

	text := fmt.Sprintf(
		"💼 *Позиция в портфеле*\n\n"+
			"🏷️ *Тикер:* `%s`\n"+
			"📝 *Название:* %s\n"+
			"💰 *Валюта:* %s\n%s\n"+
			"📦 *Количество:* %s шт.\n"+
			"💵 *Средняя цена покупки:* %s\n"+
			"💳 *Текущая цена:* %s\n\n"+
			"📊 *Стоимость покупки:* %s\n"+
			"💎 *Текущая стоимость:* %s\n\n"+
			"%s *Прибыль/Убыток:* %s%s (%+.2f%%)\n",
		pos.Ticker,
		name,
		currency,
		kind,
		FormatQuantity(pv.Quantity, pos.IsVirtual),
		FormatMoney(pv.AveragePrice, currency),
		FormatMoney(pv.CurrentPrice, currency),
		FormatMoney(pv.CostBasis, currency),
		FormatMoney(pv.MarketValue, currency),
		mark, arrow, FormatMoney(math.Abs(pv.ProfitAbs), currency), pv.ProfitPct,
	)

	if rsiKnown {
		text += fmt.Sprintf("📐 *RSI (14 дней):* %.1f\n", rsi)
	}

	text += fmt.Sprintf("\n🔖 *FIGI:* `%s`", pos.FIGI)
	return text
}
