package core

import (
	"sort"
)

const (
	// RecentTransactionsLimit caps the dashboard activity list.
	RecentTransactionsLimit = 5
	// TopCategoriesLimit caps each side of the monthly statistics.
	TopCategoriesLimit = 5
	// RecentMoodDays caps the mood trend view.
	RecentMoodDays = 7
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"category"`
	Amount Money  `json:"amount"`
}

// Summary holds income, expense and their difference for a set of transactions.
type Summary struct {
	TotalIncome  Money `json:"totalIncome"`
	TotalExpense Money `json:"totalExpense"`
	Balance      Money `json:"balance"`
}

// DashboardData is the home screen view: today's card, the all-time balance
// and the latest activity across all dates.
type DashboardData struct {
	Date               Date          `json:"date"`
	TodaySummary       Summary       `json:"todaySummary"`
	TotalAssets        Money         `json:"totalAssets"`
	RecentTransactions []Transaction `json:"recentTransactions"`
}

// MonthlyStatistics ranks categories by summed amount for one month.
type MonthlyStatistics struct {
	YearMonth         string           `json:"yearMonth"`
	Total             Summary          `json:"total"`
	IncomeByCategory  []CategoryAmount `json:"incomeByCategory"`
	ExpenseByCategory []CategoryAmount `json:"expenseByCategory"`
}

// RecentMood is one point of the mood trend view.
type RecentMood struct {
	Date  Date      `json:"date"`
	Emoji MoodEmoji `json:"emoji"`
}

// MoodStats summarizes a user's mood history. MostFrequent is empty when Total is 0.
type MoodStats struct {
	Total        int               `json:"total"`
	ByEmoji      map[MoodEmoji]int `json:"byEmoji"`
	RecentDays   []RecentMood      `json:"recentDays"`
	MostFrequent MoodEmoji         `json:"mostFrequent,omitempty"`
}

// Summarize sums income and expense; Balance is always income minus expense.
func Summarize(txs []Transaction) Summary {
	var s Summary
	for _, tx := range txs {
		switch tx.Attributes.Type {
		case Income:
			s.TotalIncome += tx.Attributes.Amount
		case Expense:
			s.TotalExpense += tx.Attributes.Amount
		}
	}
	s.Balance = s.TotalIncome - s.TotalExpense
	return s
}

// OnDate returns the transactions dated exactly on day.
func OnDate(txs []Transaction, day Date) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Attributes.Date.String() == day.String() {
			out = append(out, tx)
		}
	}
	return out
}

// RecentByCreatedAt returns up to limit transactions, newest createdAt first.
// The input slice is not reordered.
func RecentByCreatedAt(txs []Transaction, limit int) []Transaction {
	sorted := append([]Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Attributes.CreatedAt.After(sorted[j].Attributes.CreatedAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// BuildDashboard derives the dashboard from every transaction of a user.
func BuildDashboard(all []Transaction, today Date) DashboardData {
	return DashboardData{
		Date:               today,
		TodaySummary:       Summarize(OnDate(all, today)),
		TotalAssets:        Summarize(all).Balance,
		RecentTransactions: RecentByCreatedAt(all, RecentTransactionsLimit),
	}
}

// CategoryStatistics groups by (type, category), sums amounts and keeps the
// top TopCategoriesLimit per type, largest first. Equal sums keep the order
// in which their category was first seen.
func CategoryStatistics(yearMonth string, txs []Transaction) MonthlyStatistics {
	return MonthlyStatistics{
		YearMonth:         yearMonth,
		Total:             Summarize(txs),
		IncomeByCategory:  topCategories(txs, Income, TopCategoriesLimit),
		ExpenseByCategory: topCategories(txs, Expense, TopCategoriesLimit),
	}
}

func topCategories(txs []Transaction, typ TransactionType, limit int) []CategoryAmount {
	byCat := map[string]Money{}
	order := make([]string, 0)
	for _, tx := range txs {
		if tx.Attributes.Type != typ {
			continue
		}
		name := tx.Attributes.Category
		if _, seen := byCat[name]; !seen {
			order = append(order, name)
		}
		byCat[name] += tx.Attributes.Amount
	}

	list := make([]CategoryAmount, 0, len(order))
	for _, name := range order {
		list = append(list, CategoryAmount{Name: name, Amount: byCat[name]})
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Amount > list[j].Amount
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

// MoodStatistics tallies moods per emoji and picks the trend window.
//
// The most frequent emoji is the one with the highest count; equal counts
// resolve to the lexicographically smallest emoji name.
func MoodStatistics(moods []Mood) MoodStats {
	stats := MoodStats{
		Total:      len(moods),
		ByEmoji:    map[MoodEmoji]int{},
		RecentDays: []RecentMood{},
	}
	if len(moods) == 0 {
		return stats
	}

	for _, m := range moods {
		stats.ByEmoji[m.Attributes.Emoji]++
	}

	best := -1
	for emoji, n := range stats.ByEmoji {
		if n > best || (n == best && emoji < stats.MostFrequent) {
			best = n
			stats.MostFrequent = emoji
		}
	}

	sorted := SortMoodsByDateDesc(moods)
	if len(sorted) > RecentMoodDays {
		sorted = sorted[:RecentMoodDays]
	}
	for _, m := range sorted {
		stats.RecentDays = append(stats.RecentDays, RecentMood{Date: m.Attributes.Date, Emoji: m.Attributes.Emoji})
	}
	return stats
}

// SortMoodsByDateDesc returns a copy ordered newest date first.
func SortMoodsByDateDesc(moods []Mood) []Mood {
	sorted := make([]Mood, len(moods))
	copy(sorted, moods)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Attributes.Date.After(sorted[j].Attributes.Date.Time)
	})
	return sorted
}

// SortTodosByCreatedDesc returns a copy ordered newest first.
func SortTodosByCreatedDesc(todos []Todo) []Todo {
	sorted := make([]Todo, len(todos))
	copy(sorted, todos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Attributes.CreatedAt.After(sorted[j].Attributes.CreatedAt)
	})
	return sorted
}
