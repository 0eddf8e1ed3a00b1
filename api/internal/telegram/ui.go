package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nutriscan/api/internal/advisory"
	"nutriscan/api/internal/profile"
	"nutriscan/api/internal/session"
)

const maxMessage = 3900

func makeAnalyzeKeyboard() tgbotapi.InlineKeyboardMarkup {
	analyze := tgbotapi.NewInlineKeyboardButtonData("Analyze", cbAnalyze)
	discard := tgbotapi.NewInlineKeyboardButtonData("Discard", cbClear)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(analyze, discard))
}

func makeResultKeyboard() tgbotapi.InlineKeyboardMarkup {
	btn := tgbotapi.NewInlineKeyboardButtonData("Start over", cbClear)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(btn))
}

// лёгкое экранирование для Markdown
func esc(s string) string {
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "[", "\\[")
	return s
}

func verdictIcon(a string) string {
	switch a {
	case advisory.AdvisabilityYes:
		return "✅"
	case advisory.AdvisabilityNo:
		return "⛔"
	default:
		return "⚠️"
	}
}

func formatResult(res *session.Result) string {
	var b strings.Builder
	name := "Unknown Product"
	if res.Product != nil && strings.TrimSpace(res.Product.Name) != "" {
		name = res.Product.Name
	}
	fmt.Fprintf(&b, "*%s*", esc(name))
	if res.Product != nil && res.Product.Brand != "" {
		fmt.Fprintf(&b, " (%s)", esc(res.Product.Brand))
	}
	fmt.Fprintf(&b, "\nBarcode: %s\n", res.Barcode)
	if res.Product != nil && res.Product.NutriscoreGrade != "" {
		fmt.Fprintf(&b, "Nutri-Score: %s\n", esc(res.Product.NutriscoreGrade))
	}
	if res.Warning != "" {
		fmt.Fprintf(&b, "⚠️ %s\n", esc(res.Warning))
	}

	a := res.Advisory
	fmt.Fprintf(&b, "\n%s *%s*\n%s\n", verdictIcon(a.Advisability), esc(a.Advisability), esc(a.Description))
	if len(a.Pros) > 0 {
		b.WriteString("\n*Pros:*\n")
		for _, p := range a.Pros {
			fmt.Fprintf(&b, "• %s\n", esc(p))
		}
	}
	if len(a.Cons) > 0 {
		b.WriteString("\n*Cons:*\n")
		for _, c := range a.Cons {
			fmt.Fprintf(&b, "• %s\n", esc(c))
		}
	}
	fmt.Fprintf(&b, "\n%s\n", esc(a.Summary))

	if len(res.Nutrients) > 0 {
		b.WriteString("\n*Per 100 g:*\n")
		for _, n := range res.Nutrients {
			fmt.Fprintf(&b, "%s: %v\n", esc(n.Label), n.Value)
		}
	}

	s := b.String()
	if len(s) > maxMessage {
		s = s[:maxMessage] + "…"
	}
	return s
}

func formatProfile(p profile.Profile) string {
	var b strings.Builder
	b.WriteString("Your profile:\n")
	line := func(k, v string) {
		if v == "" {
			v = "not set"
		}
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	num := func(f *float64) string {
		if f == nil {
			return ""
		}
		return fmt.Sprintf("%g", *f)
	}
	age := ""
	if p.Age != nil {
		age = fmt.Sprint(*p.Age)
	}
	line("Age", age)
	line("Weight, kg", num(p.WeightKg))
	line("Height, cm", num(p.HeightCm))
	if bmi, ok := p.BMI(); ok {
		line("BMI", fmt.Sprintf("%.1f", bmi))
	}
	line("Goal", p.Goal)
	line("Diet", p.DietaryPreferences)
	line("Conditions", p.HealthConditions)
	return strings.TrimRight(b.String(), "\n")
}
