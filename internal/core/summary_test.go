package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(id int64, typ TransactionType, amount Money, category, date string, created time.Time) Transaction {
	return Transaction{ID: id, Attributes: TransactionAttributes{
		Type:       typ,
		Amount:     amount,
		Category:   category,
		Date:       mustDate(date),
		Timestamps: Timestamps{CreatedAt: created},
	}}
}

func TestSummarizeBalanceInvariant(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	sets := [][]Transaction{
		nil,
		{tx(1, Income, 5000, "salary", "2025-03-01", base)},
		{
			tx(1, Income, 5000, "salary", "2025-03-01", base),
			tx(2, Expense, 1200, "food", "2025-03-01", base),
			tx(3, Expense, 9000, "rent", "2025-03-02", base),
		},
	}
	for i, set := range sets {
		s := Summarize(set)
		var in, out Money
		for _, x := range set {
			if x.Attributes.Type == Income {
				in += x.Attributes.Amount
			} else {
				out += x.Attributes.Amount
			}
		}
		assert.Equal(t, in-out, s.Balance, "set %d", i)
		assert.Equal(t, s.TotalIncome-s.TotalExpense, s.Balance, "set %d", i)
	}
}

func TestBuildDashboard(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	var all []Transaction
	for i := 0; i < 8; i++ {
		date := "2025-03-01"
		if i%2 == 0 {
			date = "2025-03-02"
		}
		all = append(all, tx(int64(i+1), Expense, Money(100*(i+1)), "food", date, base.Add(time.Duration(i)*time.Hour)))
	}
	all = append(all, tx(9, Income, 10000, "salary", "2025-02-27", base.Add(-time.Hour)))

	d := BuildDashboard(all, mustDate("2025-03-02"))

	assert.Equal(t, Money(100+300+500+700), d.TodaySummary.TotalExpense)
	assert.Equal(t, Money(0), d.TodaySummary.TotalIncome)
	assert.Equal(t, d.TodaySummary.TotalIncome-d.TodaySummary.TotalExpense, d.TodaySummary.Balance)
	assert.Equal(t, Money(10000-3600), d.TotalAssets)

	require.Len(t, d.RecentTransactions, RecentTransactionsLimit)
	ids := []int64{}
	for _, r := range d.RecentTransactions {
		ids = append(ids, r.ID)
	}
	// newest createdAt first, spanning both dates
	assert.Equal(t, []int64{8, 7, 6, 5, 4}, ids)
	assert.Equal(t, int64(1), all[0].ID, "input must not be reordered")
}

func TestRecentByCreatedAtFewerThanLimit(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	set := []Transaction{
		tx(1, Expense, 1, "a", "2025-03-01", base),
		tx(2, Expense, 1, "a", "2025-03-01", base.Add(time.Minute)),
	}
	got := RecentByCreatedAt(set, 5)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestCategoryStatistics(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	set := []Transaction{
		tx(1, Expense, 1000, "food", "2025-03-01", base),
		tx(2, Expense, 2000, "food", "2025-03-02", base),
		tx(3, Expense, 500, "transport", "2025-03-03", base),
	}
	stats := CategoryStatistics("2025-03", set)
	assert.Equal(t, []CategoryAmount{{Name: "food", Amount: 3000}, {Name: "transport", Amount: 500}}, stats.ExpenseByCategory)
	assert.Empty(t, stats.IncomeByCategory)
	assert.Equal(t, "2025-03", stats.YearMonth)
}

func TestCategoryStatisticsTopFiveStable(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	names := []string{"a", "b", "c", "d", "e", "f", "g"}
	var set []Transaction
	for i, n := range names {
		amount := Money(100)
		if n == "g" {
			amount = 900
		}
		set = append(set, tx(int64(i), Income, amount, n, "2025-03-01", base))
	}
	stats := CategoryStatistics("2025-03", set)
	require.Len(t, stats.IncomeByCategory, TopCategoriesLimit)
	got := []string{}
	for _, c := range stats.IncomeByCategory {
		got = append(got, c.Name)
	}
	assert.Equal(t, []string{"g", "a", "b", "c", "d"}, got)
}

func mood(id int64, e MoodEmoji, date string) Mood {
	return Mood{ID: id, Attributes: MoodAttributes{Emoji: e, Date: mustDate(date)}}
}

func TestMoodStatistics(t *testing.T) {
	empty := MoodStatistics(nil)
	assert.Equal(t, 0, empty.Total)
	assert.Empty(t, empty.MostFrequent)
	assert.Empty(t, empty.RecentDays)

	moods := []Mood{
		mood(1, Smile, "2025-03-01"),
		mood(2, Frown, "2025-03-02"),
		mood(3, Smile, "2025-03-03"),
		mood(4, Frown, "2025-03-04"),
		mood(5, Laugh, "2025-03-05"),
		mood(6, Meh, "2025-03-06"),
		mood(7, Meh, "2025-03-07"),
		mood(8, Angry, "2025-03-08"),
		mood(9, Laugh, "2025-03-09"),
	}
	stats := MoodStatistics(moods)
	assert.Equal(t, 9, stats.Total)
	assert.Equal(t, 2, stats.ByEmoji[Smile])
	assert.Equal(t, 1, stats.ByEmoji[Angry])
	// four emojis tie at 2; lexicographically smallest wins
	assert.Equal(t, Frown, stats.MostFrequent)

	require.Len(t, stats.RecentDays, RecentMoodDays)
	assert.Equal(t, "2025-03-09", stats.RecentDays[0].Date.String())
	assert.Equal(t, "2025-03-03", stats.RecentDays[6].Date.String())
}

// mustDate parses a YYYY-MM-DD literal known to be valid.
func mustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
