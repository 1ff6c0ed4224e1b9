package analytics

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/joao-fontenele/guestdesk/internal/access"
	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/notify"
)

type Store interface {
	Between(ctx context.Context, from, to time.Time) ([]domain.Review, error)
}

// ChartRenderer draws report charts as image attachments.
type ChartRenderer interface {
	Render(ctx context.Context, report *Report) ([]notify.Attachment, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipients []notify.Recipient, msg notify.Message) []notify.DeliveryResult
}

// AllowedPeriods are the windows offered by the /analytics command.
var AllowedPeriods = []int{7, 30, 90}

type Reporter struct {
	store     Store
	notifier  Notifier
	directory notify.Directory
	policy    access.Checker
	charts    ChartRenderer
	logger    *slog.Logger
	now       func() time.Time
}

type ReporterOption func(*Reporter)

func WithCharts(c ChartRenderer) ReporterOption {
	return func(r *Reporter) {
		r.charts = c
	}
}

func WithClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) {
		r.now = now
	}
}

func NewReporter(store Store, notifier Notifier, directory notify.Directory, policy access.Checker, logger *slog.Logger, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		store:     store,
		notifier:  notifier,
		directory: directory,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reporter) Build(ctx context.Context, days int) (*Report, error) {
	if days <= 0 {
		return nil, &domain.ValidationError{Field: "days", Reason: "must be positive"}
	}

	from, to, prevFrom := Window(r.now(), days)

	current, err := r.store.Between(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load reviews: %w", err)
	}
	previous, err := r.store.Between(ctx, prevFrom, from)
	if err != nil {
		return nil, fmt.Errorf("load previous reviews: %w", err)
	}

	report := Aggregate(current, previous, days, from, to)
	return &report, nil
}

// ForActor builds the report requested through the chat command.
func (r *Reporter) ForActor(ctx context.Context, actorID int64, days int) (*Report, notify.Message, error) {
	if err := access.Require(r.policy, actorID, access.CapAnalyticsView); err != nil {
		return nil, notify.Message{}, err
	}

	allowed := false
	for _, d := range AllowedPeriods {
		allowed = allowed || d == days
	}
	if !allowed {
		return nil, notify.Message{}, &domain.ValidationError{Field: "days", Reason: "period must be 7, 30 or 90"}
	}

	report, err := r.Build(ctx, days)
	if err != nil {
		return nil, notify.Message{}, err
	}

	return report, notify.Message{Text: Text(report), Attachments: r.attachments(ctx, report)}, nil
}

// Send delivers the periodic report: text to admins, HTML email to the report address.
func (r *Reporter) Send(ctx context.Context, days int) error {
	report, err := r.Build(ctx, days)
	if err != nil {
		return err
	}

	attachments := r.attachments(ctx, report)
	text := Text(report)

	r.notifier.Notify(ctx, r.directory.Admins(), notify.Message{Text: text, Attachments: attachments})

	if recipients := r.directory.Report(); len(recipients) > 0 {
		html, err := HTML(report)
		if err != nil {
			return fmt.Errorf("render html report: %w", err)
		}
		r.notifier.Notify(ctx, recipients, notify.Message{
			Subject:     fmt.Sprintf("Guest reviews report: last %d days", days),
			Text:        text,
			HTML:        html,
			Attachments: attachments,
		})
	}

	r.logger.Info("analytics report sent", "days", days, "reviews", report.Count)
	return nil
}

func (r *Reporter) attachments(ctx context.Context, report *Report) []notify.Attachment {
	if r.charts == nil || report.Count == 0 {
		return nil
	}
	attachments, err := r.charts.Render(ctx, report)
	if err != nil {
		r.logger.Error("failed to render charts", "error", err)
		return nil
	}
	return attachments
}

func formatTrend(trend *float64) string {
	switch {
	case trend == nil:
		return "n/a"
	case *trend > 0:
		return fmt.Sprintf("+%.1f", *trend)
	default:
		return fmt.Sprintf("%.1f", *trend)
	}
}

func criterionName(c domain.Criterion) string {
	return strings.ReplaceAll(string(c), "_", " ")
}

// Text renders the report for chat delivery.
func Text(report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reviews for the last %d days\n\n", report.Days)

	if report.Count == 0 {
		b.WriteString("No reviews in this period.")
		return b.String()
	}

	fmt.Fprintf(&b, "Reviews: %d\n", report.Count)
	fmt.Fprintf(&b, "Average: %.1f/10\n", report.Average)
	fmt.Fprintf(&b, "Change: %s (vs previous %d days)\n\n", formatTrend(report.Trend), report.Days)

	b.WriteString("By category:\n")
	for _, c := range report.Categories {
		fmt.Fprintf(&b, "  %s: %.1f\n", criterionName(c.Criterion), c.Average)
	}

	b.WriteString("\nDistribution:\n")
	for _, band := range report.Distribution {
		fmt.Fprintf(&b, "  %s: %d\n", band.Label, band.Count)
	}

	if len(report.ProblemAreas) > 0 {
		b.WriteString("\nNeeds attention:\n")
		for _, c := range report.ProblemAreas {
			fmt.Fprintf(&b, "  • %s (%.1f)\n", criterionName(c.Criterion), c.Average)
		}
	}

	writeReviews := func(title string, reviews []domain.Review) {
		if len(reviews) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", title)
		for _, rv := range reviews {
			fmt.Fprintf(&b, "  #%d %s: %.1f\n", rv.ID, rv.DisplayName, rv.Average())
		}
	}
	writeReviews("Best", report.Best)
	writeReviews("Worst", report.Worst)

	return strings.TrimRight(b.String(), "\n")
}

var htmlReport = template.Must(template.New("report").Funcs(template.FuncMap{
	"score":     func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"trend":     formatTrend,
	"criterion": criterionName,
	"date":      func(t time.Time) string { return t.Format("02.01.2006") },
}).Parse(`<!DOCTYPE html>
<html>
<body>
<h1>Guest reviews: last {{.Days}} days</h1>
<p>{{date .From}} to {{date .To}}</p>
{{if eq .Count 0}}<p>No reviews in this period.</p>{{else}}
<p>Reviews: <b>{{.Count}}</b>, average <b>{{score .Average}}</b>/10, change {{trend .Trend}}</p>
<h2>Categories</h2>
<table>
{{range .Categories}}<tr><td>{{criterion .Criterion}}</td><td>{{score .Average}}</td></tr>
{{end}}</table>
<h2>Distribution</h2>
<table>
{{range .Distribution}}<tr><td>{{.Label}}</td><td>{{.Count}}</td></tr>
{{end}}</table>
{{if .ProblemAreas}}<h2>Needs attention</h2>
<ul>
{{range .ProblemAreas}}<li>{{criterion .Criterion}}: {{score .Average}}</li>
{{end}}</ul>{{end}}
<h2>Best</h2>
<ul>
{{range .Best}}<li>#{{.ID}} {{.DisplayName}}: {{score .Average}}</li>
{{end}}</ul>
<h2>Worst</h2>
<ul>
{{range .Worst}}<li>#{{.ID}} {{.DisplayName}}: {{score .Average}}</li>
{{end}}</ul>
{{end}}
</body>
</html>
`))

// HTML renders the report for email delivery.
func HTML(report *Report) (string, error) {
	var buf bytes.Buffer
	if err := htmlReport.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}
