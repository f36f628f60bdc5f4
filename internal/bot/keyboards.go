package bot

import (
	tele "gopkg.in/telebot.v3"

	"github.com/r7zex/t-invest-bot/internal/modules/portfolio"
)

// Callback button identities. Data-carrying buttons are minted per
// message via markup.Data with these uniques.
var (
	btnViewPortfolio = tele.Btn{Text: "Посмотреть акции 📈", Unique: "view_stocks"}
	btnPosition      = tele.Btn{Unique: "position"}
	btnBalanceChart  = tele.Btn{Unique: "balance_chart"}
	btnPriceChart    = tele.Btn{Unique: "price_chart"}
)

// chartPeriods are the selectable chart windows, in display order.
var chartPeriods = []struct {
	Tag   string
	Label string
}{
	{"1h", "1ч"},
	{"1d", "1д"},
	{"1w", "1н"},
	{"1m", "1м"},
	{"1y", "1г"},
}

// contactKeyboard asks the user to share their phone number.
func contactKeyboard() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	m.Reply(m.Row(m.Contact("Поделиться контактами 📱")))
	return m
}

// viewPortfolioKeyboard offers the single entry point after auth.
func viewPortfolioKeyboard() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(m.Row(m.Data(btnViewPortfolio.Text, btnViewPortfolio.Unique)))
	return m
}

// portfolioKeyboard lists positions two per row plus balance chart
// period buttons.
func portfolioKeyboard(positions []portfolio.PositionValuation) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}

	var rows []tele.Row
	var row []tele.Btn
	for _, pv := range positions {
		label := pv.Position.Ticker + " (" + FormatQuantity(pv.Quantity, pv.Position.IsVirtual) + " шт.)"
		row = append(row, m.Data(label, btnPosition.Unique, pv.Position.FIGI))
		if len(row) == 2 {
			rows = append(rows, m.Row(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, m.Row(row...))
	}

	var periodRow []tele.Btn
	for _, p := range chartPeriods {
		periodRow = append(periodRow, m.Data("📊 "+p.Label, btnBalanceChart.Unique, p.Tag))
	}
	rows = append(rows, m.Row(periodRow...))

	m.Inline(rows...)
	return m
}

// positionKeyboard offers price chart periods and a way back.
func positionKeyboard(figi string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}

	var periodRow []tele.Btn
	for _, p := range chartPeriods {
		periodRow = append(periodRow, m.Data("📈 "+p.Label, btnPriceChart.Unique, figi+"|"+p.Tag))
	}

	m.Inline(
		m.Row(periodRow...),
		m.Row(m.Data("⬅️ К портфелю", btnViewPortfolio.Unique)),
	)
	return m
}

// backKeyboard is a lone back-to-portfolio button.
func backKeyboard() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(m.Row(m.Data("⬅️ К портфелю", btnViewPortfolio.Unique)))
	return m
}
