package core

var pageTitles = map[string]string{
	"/":             "Word of the Day",
	"/login":        "Log In",
	"/register":     "Sign Up",
	"/profile":      "My Profile",
	"/flashcard":    "Flashcards",
	"/favorites":    "Favorites",
	"/history":      "Mood History",
	"/dashboard":    "Dashboard",
	"/transactions": "Transactions",
	"/statistics":   "Statistics",
}

// PageTitle returns the header title for an exact path, or "Page" for anything unknown.
func PageTitle(path string) string {
	if title, ok := pageTitles[path]; ok {
		return title
	}
	return "Page"
}
