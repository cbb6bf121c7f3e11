package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	gomail "gopkg.in/gomail.v2"

	"hve/internal/config"
	"hve/internal/domain"
	"hve/internal/market"
	"hve/internal/store"
)

// Mailer sends HTML notification email over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	to     []string
	log    *slog.Logger
}

// NewMailer builds a Mailer from the email configuration. The To field may
// hold several comma-separated addresses.
func NewMailer(cfg config.Email) *Mailer {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	var to []string
	for _, addr := range strings.Split(cfg.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		to = []string{from}
	}
	return &Mailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password),
		from:   from,
		to:     to,
		log:    slog.Default().With("component", "notify"),
	}
}

// RealtimeAlert sends one message per monitoring cycle listing every symbol
// that set a new all-time volume record this cycle. The subject carries the
// Central wall-clock time of the cycle.
func (m *Mailer) RealtimeAlert(now time.Time, events []domain.VolumeEvent) error {
	if len(events) == 0 {
		return nil
	}
	subject := fmt.Sprintf("Highest volume ever - %s", now.In(market.Central()).Format("03:04 PM"))
	body, err := render(realtimeTmpl, events)
	if err != nil {
		return err
	}
	return m.send(subject, body)
}

// HistoricalReport sends the records dated on or after the cutoff, ordered
// date descending then symbol ascending.
func (m *Mailer) HistoricalReport(cutoff time.Time, records []domain.VolumeRecord) error {
	subject := fmt.Sprintf("Highest volume ever since %s", cutoff.Format("01-02-2006"))
	body, err := render(historicalTmpl, records)
	if err != nil {
		return err
	}
	return m.send(subject, body)
}

// SetupComplete confirms a finished setup pass.
func (m *Mailer) SetupComplete(stats store.Stats) error {
	body, err := render(setupTmpl, stats)
	if err != nil {
		return err
	}
	return m.send("Highest volume ever - setup complete", body)
}

// Failure reports a fatal error. Sent best effort on the way down.
func (m *Mailer) Failure(cause error) error {
	body, err := render(failureTmpl, struct {
		Time  string
		Error string
	}{time.Now().In(market.Central()).Format("2006-01-02 03:04 PM MST"), cause.Error()})
	if err != nil {
		return err
	}
	return m.send("Highest volume ever - FAILED", body)
}

func (m *Mailer) send(subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending %q: %w", subject, err)
	}
	m.log.Info("notification sent", "subject", subject, "recipients", len(m.to))
	return nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

var tmplFuncs = template.FuncMap{
	"date":   func(t time.Time) string { return t.Format(domain.DateLayout) },
	"volume": groupDigits,
	"pct":    func(v float64) string { return fmt.Sprintf("%+.2f%%", v) },
}

// groupDigits formats n with comma thousands separators.
func groupDigits(n int64) string {
	if n < 0 {
		return "-" + groupDigits(-n)
	}
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

var realtimeTmpl = template.Must(template.New("realtime").Funcs(tmplFuncs).Parse(`
<p>New all-time volume records this cycle:</p>
<table border="1" cellpadding="6" style="border-collapse:collapse">
<tr><th>Symbol</th><th>Prior Date</th><th>Prior Volume</th><th>Today Volume</th><th>Today Change</th></tr>
{{range .}}<tr><td>{{.Symbol}}</td><td>{{date .PrevDate}}</td><td align="right">{{volume .PrevVolume}}</td><td align="right">{{volume .Volume}}</td><td align="right">{{pct .ChangePct}}</td></tr>
{{end}}</table>
`))

var historicalTmpl = template.Must(template.New("historical").Funcs(tmplFuncs).Parse(`
{{if .}}<p>All-time volume records on or after the cutoff:</p>
<table border="1" cellpadding="6" style="border-collapse:collapse">
<tr><th>Symbol</th><th>Record Date</th><th>Record Volume</th></tr>
{{range .}}<tr><td>{{.Symbol}}</td><td>{{date .Date}}</td><td align="right">{{volume .Volume}}</td></tr>
{{end}}</table>{{else}}<p>No records on or after the cutoff.</p>{{end}}
`))

var setupTmpl = template.Must(template.New("setup").Funcs(tmplFuncs).Parse(`
<p>Setup reconciliation complete.</p>
<ul>
<li>Symbols tracked: {{.Symbols}}</li>
{{if gt .Symbols 0}}<li>Record dates: {{date .EarliestDate}} through {{date .LatestDate}}</li>
<li>Largest record: {{volume .MaxVolume}}</li>{{end}}
</ul>
`))

var failureTmpl = template.Must(template.New("failure").Parse(`
<p>The volume monitor stopped at {{.Time}}:</p>
<pre>{{.Error}}</pre>
`))
