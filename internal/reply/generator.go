// Package reply turns user text into the single reply the bot sends back:
// help, loan commands or a language-aware model answer.
package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"voice-lending-go/internal/loans"
	"voice-lending-go/internal/locale"
	"voice-lending-go/internal/types"
)

const HelpText = `Available commands:

- Normal message: I'll respond conversationally
- tts:[text]: Convert text to speech
- loan:income,expenses,cibil_score: Check loan eligibility
- insights:income,expenses,cibil_score,loan_amount,interest_rate,tenure: Get detailed loan insights
- help: Show this help message`

type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Translator interface {
	Translate(ctx context.Context, text string, source, target locale.Tag) (string, error)
}

type LoanAdvisor interface {
	Eligibility(ctx context.Context, income, expenses int64, cibil int) (string, error)
	Insights(ctx context.Context, income, expenses int64, cibil int, amount int64, rate float64, years int) (string, error)
}

type Generator struct {
	llm        TextGenerator
	translator Translator
	advisor    LoanAdvisor
	log        *logrus.Entry
}

func NewGenerator(llm TextGenerator, translator Translator, advisor LoanAdvisor, log *logrus.Entry) *Generator {
	return &Generator{llm: llm, translator: translator, advisor: advisor, log: log.WithField("component", "reply")}
}

// IsHelp matches "help" and "commands".
func IsHelp(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "help" || t == "commands"
}

// Generate always returns a non-empty reply. Loan commands are only
// recognized when isCommand is set, i.e. for typed messages.
func (g *Generator) Generate(ctx context.Context, text string, lang locale.Tag, isCommand bool) types.ReplyPayload {
	switch {
	case IsHelp(text):
		return g.help(ctx, lang)
	case isCommand && IsLoanCommand(text):
		return g.loan(ctx, text)
	case isCommand && IsInsightsCommand(text):
		return g.insights(ctx, text)
	}
	return g.freeForm(ctx, text, lang)
}

func (g *Generator) help(ctx context.Context, lang locale.Tag) types.ReplyPayload {
	out := types.ReplyPayload{Text: HelpText, Language: lang, Kind: types.ReplyHelp}
	if lang == locale.Default {
		return out
	}
	translated, err := g.translator.Translate(ctx, HelpText, locale.Default, lang)
	if err != nil || strings.TrimSpace(translated) == "" {
		g.log.WithError(err).WithField("language", lang).Warn("help translation failed; sending English")
		out.Language = locale.Default
		return out
	}
	out.Text = translated
	return out
}

func (g *Generator) loan(ctx context.Context, text string) types.ReplyPayload {
	q, err := ParseLoan(text)
	if err != nil {
		return paramReply(err)
	}
	if q.Income < q.Expenses {
		return types.ReplyPayload{Text: loanHeader + loans.NegativeCashFlowMessage, Language: locale.Default, Kind: types.ReplyEligibility}
	}
	res, err := g.advisor.Eligibility(ctx, q.Income, q.Expenses, q.CIBIL)
	if err != nil || strings.TrimSpace(res) == "" {
		g.log.WithError(err).Warn("eligibility check failed")
		return types.ReplyPayload{Text: loanFailedText, Language: locale.Default, Kind: types.ReplyApology}
	}
	return types.ReplyPayload{Text: loanHeader + res, Language: locale.Default, Kind: types.ReplyEligibility}
}

func (g *Generator) insights(ctx context.Context, text string) types.ReplyPayload {
	q, err := ParseInsights(text)
	if err != nil {
		return paramReply(err)
	}
	res, err := g.advisor.Insights(ctx, q.Income, q.Expenses, q.CIBIL, q.Amount, q.Rate, q.Years)
	if err != nil || strings.TrimSpace(res) == "" {
		g.log.WithError(err).Warn("loan insights failed")
		return types.ReplyPayload{Text: insightsFailedText, Language: locale.Default, Kind: types.ReplyApology}
	}
	return types.ReplyPayload{Text: insightsHeader + res, Language: locale.Default, Kind: types.ReplyInsights}
}

func paramReply(err error) types.ReplyPayload {
	var pe *paramError
	text := loanArityText
	if errors.As(err, &pe) {
		text = pe.reply
	}
	return types.ReplyPayload{Text: text, Language: locale.Default, Kind: types.ReplyParameterError}
}

func (g *Generator) freeForm(ctx context.Context, text string, lang locale.Tag) types.ReplyPayload {
	out, err := g.llm.Generate(ctx, Prompt(text, lang))
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		g.log.WithError(err).WithField("language", lang).Warn("generation failed; sending apology")
		return types.ReplyPayload{Text: locale.Apology(lang), Language: lang, Kind: types.ReplyApology}
	}
	return types.ReplyPayload{Text: out, Language: lang, Kind: types.ReplyGenerated}
}

// Prompt is the free-form instruction sent to the model.
func Prompt(text string, lang locale.Tag) string {
	name := locale.Name(lang)
	return fmt.Sprintf(`You are an assistant for an Indian language conversational WhatsApp chatbot.
The user has sent a message in %s.

Original user message: %s

Respond to the user query in a helpful, conversational manner.
Keep your response concise (50-70 words) and direct.

IMPORTANT: Please respond in %s. If you're not sure about the language,
respond in the same language as the user's message.
`, name, text, name)
}
