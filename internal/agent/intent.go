package agent

import "strings"

// Intent is the coarse classification of a customer message used to
// decide which inline buttons accompany the reply.
type Intent struct {
	Buying      bool // asking about plans, prices, how to pay
	FreeContent bool // asking for free codes, trials, giveaways
}

var buyingPhrases = []string{
	"buy", "price", "pricing", "cost", "how much", "purchase",
	"pay", "payment", "subscribe", "subscription", "plan",
}

var freeContentPhrases = []string{
	"free code", "free trial", "for free", "giveaway",
	"free account", "free plan", "any free",
}

// AnalyzeIntent classifies a message with simple phrase matching. It
// errs on the side of not matching; the buttons are a convenience, not
// a gate.
func AnalyzeIntent(text string) Intent {
	t := strings.ToLower(text)
	var in Intent
	for _, p := range buyingPhrases {
		if strings.Contains(t, p) {
			in.Buying = true
			break
		}
	}
	for _, p := range freeContentPhrases {
		if strings.Contains(t, p) {
			in.FreeContent = true
			break
		}
	}
	return in
}
