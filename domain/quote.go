package domain

import "math/rand"

// Quote is a short motivational line shown on the planning view.
type Quote struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

var motivationalQuotes = []Quote{
	{
		Content: "Success is not final, failure is not fatal: it is the courage to continue that counts.",
		Author:  "Winston Churchill",
	},
	{
		Content: "Believe you can and you're halfway there.",
		Author:  "Theodore Roosevelt",
	},
	{
		Content: "The only way to do great work is to love what you do.",
		Author:  "Steve Jobs",
	},
}

// RandomQuote picks one entry from the fixed motivational set.
func RandomQuote(r *rand.Rand) Quote {
	return motivationalQuotes[r.Intn(len(motivationalQuotes))]
}
