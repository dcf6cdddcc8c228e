// Package render substitutes {{placeholder}} variables in playbook templates.
package render

import (
	"bytes"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/onurcolak/collections-worker/internal/domain"
)

const (
	startTag = "{{"
	endTag   = "}}"

	dueDateLayout = "January 2, 2006"
)

const (
	VarCompanyName      = "company_name"
	VarContactFirstName = "contact_first_name"
	VarContactLastName  = "contact_last_name"
	VarContactName      = "contact_name"
	VarInvoiceNumber    = "invoice_number"
	VarAmount           = "amount"
	VarCurrency         = "currency"
	VarDueDate          = "due_date"
	VarDaysOverdue      = "days_overdue"
)

// Context maps placeholder names to their scalar values.
type Context map[string]string

var amountPrinter = message.NewPrinter(language.English)

// Render replaces every {{name}} found in ctx. Unknown placeholders are kept
// verbatim so templates written for newer variables still render.
func Render(tmpl string, ctx Context) string {
	if !strings.Contains(tmpl, startTag) {
		return tmpl
	}

	var buf bytes.Buffer
	buf.Grow(len(tmpl))

	// The tag func only writes to an in-memory buffer and cannot fail.
	_, _ = fasttemplate.ExecuteFunc(tmpl, startTag, endTag, &buf, func(w io.Writer, tag string) (int, error) {
		if value, ok := ctx[strings.TrimSpace(tag)]; ok {
			return io.WriteString(w, value)
		}
		return io.WriteString(w, startTag+tag+endTag)
	})

	return buf.String()
}

// BuildContext assembles the template variables for one due collection.
func BuildContext(due domain.DueCollection, now time.Time) Context {
	return Context{
		VarCompanyName:      due.Company.Name,
		VarContactFirstName: due.Contact.FirstName,
		VarContactLastName:  due.Contact.LastName,
		VarContactName:      strings.TrimSpace(due.Contact.FirstName + " " + due.Contact.LastName),
		VarInvoiceNumber:    due.Invoice.InvoiceNumber,
		VarAmount:           FormatAmount(due.Invoice.Amount),
		VarCurrency:         due.Invoice.Currency,
		VarDueDate:          due.Invoice.DueDate.Format(dueDateLayout),
		VarDaysOverdue:      strconv.Itoa(DaysOverdue(due.Invoice.DueDate, now)),
	}
}

// FormatAmount renders an amount with two decimals and thousands separators.
func FormatAmount(amount float64) string {
	return amountPrinter.Sprintf("%.2f", amount)
}

// DaysOverdue is max(0, floor((now - dueDate) / 24h)).
func DaysOverdue(dueDate, now time.Time) int {
	days := math.Floor(now.Sub(dueDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return int(days)
}
