// Package notification sends customer-facing billing mail. Delivery is
// best effort; failures are logged and counted, never propagated, so a
// dead SMTP relay cannot fail a paid workflow.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/taxfolio/billing/internal/observability/metrics"
	"github.com/taxfolio/billing/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// PaymentConfirmation is the receipt mail for a settled payment.
type PaymentConfirmation struct {
	Email    string
	Name     string
	PlanName string
	Amount   int64
	Currency string
	PaidAt   time.Time
}

// SubscriptionChange announces a plan change, scheduled downgrade or
// cancellation.
type SubscriptionChange struct {
	Email       string
	Name        string
	PlanName    string
	Kind        string // "downgrade", "cancellation", "renewal"
	EffectiveAt *time.Time
}

var confirmationTmpl = template.Must(template.New("payment_confirmation").Parse(`
<p>Hi {{.Name}},</p>
<p>We received your payment of {{.AmountDisplay}} for the <b>{{.PlanName}}</b> plan.</p>
<p>Thanks for filing with Taxfolio.</p>
`))

var changeTmpl = template.Must(template.New("subscription_change").Parse(`
<p>Hi {{.Name}},</p>
<p>Your {{.Kind}} for the <b>{{.PlanName}}</b> plan has been scheduled{{if .EffectiveDisplay}} and takes effect on {{.EffectiveDisplay}}{{end}}.</p>
<p>No further action is needed.</p>
`))

type Dispatcher struct {
	provider email.Provider
	metrics  *metrics.Metrics
	log      *zap.Logger
}

type Params struct {
	fx.In

	Provider email.Provider
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		provider: p.Provider,
		metrics:  p.Metrics,
		log:      p.Log.Named("notification"),
	}
}

func (d *Dispatcher) SendPaymentConfirmation(ctx context.Context, msg PaymentConfirmation) {
	body, err := render(confirmationTmpl, map[string]any{
		"Name":          displayName(msg.Name),
		"PlanName":      msg.PlanName,
		"AmountDisplay": formatAmount(msg.Amount, msg.Currency),
	})
	if err != nil {
		d.fail(ctx, "payment_confirmation", msg.Email, err)
		return
	}

	subject := fmt.Sprintf("Payment received for your %s plan", msg.PlanName)
	if err := d.provider.Send(ctx, []string{msg.Email}, subject, body); err != nil {
		d.fail(ctx, "payment_confirmation", msg.Email, err)
		return
	}
	d.metrics.RecordNotification(ctx, "payment_confirmation", "sent")
}

func (d *Dispatcher) SendSubscriptionChange(ctx context.Context, msg SubscriptionChange) {
	var effective string
	if msg.EffectiveAt != nil {
		effective = msg.EffectiveAt.Format("2 January 2006")
	}
	body, err := render(changeTmpl, map[string]any{
		"Name":             displayName(msg.Name),
		"PlanName":         msg.PlanName,
		"Kind":             msg.Kind,
		"EffectiveDisplay": effective,
	})
	if err != nil {
		d.fail(ctx, "subscription_change", msg.Email, err)
		return
	}

	subject := fmt.Sprintf("Your Taxfolio subscription %s is scheduled", msg.Kind)
	if err := d.provider.Send(ctx, []string{msg.Email}, subject, body); err != nil {
		d.fail(ctx, "subscription_change", msg.Email, err)
		return
	}
	d.metrics.RecordNotification(ctx, "subscription_change", "sent")
}

func (d *Dispatcher) fail(ctx context.Context, kind, to string, err error) {
	d.log.Warn("notification delivery failed",
		zap.String("kind", kind),
		zap.String("to", to),
		zap.Error(err),
	)
	d.metrics.RecordNotification(ctx, kind, "failed")
}

func render(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func displayName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

func formatAmount(amount int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, amount/100, amount%100)
}
