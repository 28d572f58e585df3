package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"
	"time"

	"autodecide/internal/decision"
	"autodecide/internal/gateway/notifier"
	"autodecide/internal/logger"
	"autodecide/internal/risk"
)

// Durations is how long each severity stays on screen.
type Durations struct {
	Success time.Duration
	Info    time.Duration
	Warning time.Duration
	Error   time.Duration
}

var DefaultDurations = Durations{
	Success: 8 * time.Second,
	Info:    6 * time.Second,
	Warning: 5 * time.Second,
	Error:   5 * time.Second,
}

// RiskContext is the optional enrichment shown under a directional decision.
type RiskContext struct {
	Assessment *risk.Assessment
	Precision  int
}

type bodyData struct {
	Confidence  string
	SuccessRate string
	Risk        string
}

const (
	waitBody    = "Confidence: {{.Confidence}}%\nMarket conditions unfavorable"
	enterBody   = "Confidence: {{.Confidence}}%\nExpected success rate: {{.SuccessRate}}%{{if .Risk}}\n{{.Risk}}{{end}}"
	delayedBody = "Confidence: {{.Confidence}}%\nOptimal timing approaching{{if .Risk}}\n{{.Risk}}{{end}}"
)

var (
	waitTmpl    = template.Must(template.New("wait").Parse(waitBody))
	enterTmpl   = template.Must(template.New("enter").Parse(enterBody))
	delayedTmpl = template.Must(template.New("delayed").Parse(delayedBody))
)

type Presenter struct {
	durations Durations
}

func NewPresenter(d Durations) *Presenter {
	if d.Success <= 0 {
		d.Success = DefaultDurations.Success
	}
	if d.Info <= 0 {
		d.Info = DefaultDurations.Info
	}
	if d.Warning <= 0 {
		d.Warning = DefaultDurations.Warning
	}
	if d.Error <= 0 {
		d.Error = DefaultDurations.Error
	}
	return &Presenter{durations: d}
}

func (p *Presenter) Present(d decision.AutonomousDecision, rc *RiskContext) notifier.Notification {
	action := decision.NormalizeAction(d.Action)
	grade := gradeLabel(d.ProfessionalAnalysis.MarketGrade)
	data := bodyData{
		Confidence:  formatNumber(d.Confidence),
		SuccessRate: formatNumber(d.ExpectedSuccessRate),
	}

	if action == decision.ActionWait {
		return notifier.Notification{
			Severity: notifier.SeverityWarning,
			Title:    fmt.Sprintf("%s AI decides: WAIT (%s)", grade.icon, grade.text),
			Body:     execute(waitTmpl, data),
			Duration: p.durations.Warning,
		}
	}

	data.Risk = riskText(rc)
	if d.Timing.EnterNow {
		return notifier.Notification{
			Severity: notifier.SeveritySuccess,
			Title:    fmt.Sprintf("%s AI decides: %s NOW (%s)", grade.icon, action, grade.text),
			Body:     execute(enterTmpl, data),
			Duration: p.durations.Success,
		}
	}
	return notifier.Notification{
		Severity: notifier.SeverityInfo,
		Title:    fmt.Sprintf("%s AI decides: %s in %ss (%s)", grade.icon, action, formatNumber(d.Timing.WaitSeconds), grade.text),
		Body:     execute(delayedTmpl, data),
		Duration: p.durations.Info,
	}
}

// PresentFailure never includes the error text; the caller logs it.
func (p *Presenter) PresentFailure(err error) notifier.Notification {
	body := "Could not compute a trading decision. The previous decision is kept."
	if errors.Is(err, context.DeadlineExceeded) {
		body = "The decision service timed out. The previous decision is kept."
	}
	return notifier.Notification{
		Severity: notifier.SeverityError,
		Title:    "❌ AI decision failed",
		Body:     body,
		Duration: p.durations.Error,
	}
}

type gradeDecoration struct {
	icon string
	text string
}

func gradeLabel(g decision.Grade) gradeDecoration {
	label := strings.ToUpper(strings.TrimSpace(string(g)))
	if label == "" {
		label = "?"
	}
	text := "Grade " + label
	switch decision.Grade(label) {
	case decision.GradeA:
		return gradeDecoration{icon: "🏆", text: text}
	case decision.GradeB:
		return gradeDecoration{icon: "🥈", text: text}
	case decision.GradeC:
		return gradeDecoration{icon: "🥉", text: text}
	default:
		return gradeDecoration{icon: "📊", text: text}
	}
}

func riskText(rc *RiskContext) string {
	if rc == nil || rc.Assessment == nil {
		return ""
	}
	a := rc.Assessment
	prec := rc.Precision
	if prec < 0 {
		prec = 0
	}
	lines := []string{
		fmt.Sprintf("Risk: %s (score %.0f, R:R %.2f)", a.Level, a.Score, a.RiskReward),
		fmt.Sprintf("Position size: %.*f (notional %.*f, risking %.*f)",
			prec, a.Sizing.Quantity, prec, a.Sizing.Notional, prec, a.Sizing.RiskAmount),
	}
	if !a.Approved {
		lines = append(lines, "Risk desk does not approve this trade")
	}
	for _, w := range a.Warnings {
		lines = append(lines, "Warning: "+w)
	}
	return strings.Join(lines, "\n")
}

func execute(t *template.Template, data bodyData) string {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		logger.Warnf("Presenter: template %s failed: %v", t.Name(), err)
		return "Confidence: " + data.Confidence + "%"
	}
	return b.String()
}

func formatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}
