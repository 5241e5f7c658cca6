package dispatch

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultTemplate is the rent reminder text. {{.Name}} and {{.Amount}} are
// replaced per target.
const DefaultTemplate = "Hi {{.Name}}! 🏠\n\n" +
	"This is a friendly reminder that your PG rent of ₹{{.Amount}} is pending for this month.\n\n" +
	"Please make the payment at your earliest convenience.\n\n" +
	"Thank you! 🙏"

// DefaultLocale drives amount grouping.
const DefaultLocale = "en-IN"

// Renderer fills the reminder template for one target.
type Renderer struct {
	template string
	printer  *message.Printer
}

// NewRenderer creates a Renderer. Empty arguments select the defaults.
func NewRenderer(template, locale string) (*Renderer, error) {
	if template == "" {
		template = DefaultTemplate
	}
	if locale == "" {
		locale = DefaultLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("dispatch: locale %q: %w", locale, err)
	}
	return &Renderer{template: template, printer: message.NewPrinter(tag)}, nil
}

// FormatAmount groups digits for the locale and keeps at most two decimals.
func (r *Renderer) FormatAmount(amount float64) string {
	return r.printer.Sprint(number.Decimal(amount, number.MaxFractionDigits(2)))
}

// Render returns the message text for t.
func (r *Renderer) Render(t Target) string {
	rep := strings.NewReplacer(
		"{{.Name}}", t.Name,
		"{{.Amount}}", r.FormatAmount(t.Amount),
	)
	return rep.Replace(r.template)
}
