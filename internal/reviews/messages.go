package reviews

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/notify"
)

const (
	CallbackSkip   = "review_skip"
	CallbackSubmit = "review_submit"
	CallbackCancel = "review_cancel"
)

var criterionLabels = map[domain.Criterion]string{
	domain.CriterionCleanliness: "Cleanliness",
	domain.CriterionComfort:     "Comfort",
	domain.CriterionLocation:    "Location",
	domain.CriterionFacilities:  "Facilities",
	domain.CriterionStaff:       "Staff",
	domain.CriterionValue:       "Value for money",
}

func CriterionLabel(c domain.Criterion) string {
	if label, ok := criterionLabels[c]; ok {
		return label
	}
	return string(c)
}

func ScoreCallback(c domain.Criterion, v int) string {
	return fmt.Sprintf("score_%s_%d", c, v)
}

// ParseScoreCallback decodes score_<criterion>_<n>.
func ParseScoreCallback(data string) (ScoreInput, bool) {
	rest, ok := strings.CutPrefix(data, "score_")
	if !ok {
		return ScoreInput{}, false
	}
	i := strings.LastIndex(rest, "_")
	if i < 0 {
		return ScoreInput{}, false
	}
	v, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return ScoreInput{}, false
	}
	return ScoreInput{Criterion: domain.Criterion(rest[:i]), Value: v}, true
}

// ParseCallback maps wizard button data to an input.
func ParseCallback(data string) (Input, bool) {
	switch data {
	case CallbackSkip:
		return SkipInput{}, true
	case CallbackSubmit:
		return ConfirmInput{}, true
	case CallbackCancel:
		return CancelInput{}, true
	}
	if score, ok := ParseScoreCallback(data); ok {
		return score, true
	}
	return nil, false
}

func scoreKeyboard(c domain.Criterion) [][]notify.Action {
	rows := make([][]notify.Action, 0, 2)
	for start := domain.MinScore; start <= domain.MaxScore; start += 5 {
		row := make([]notify.Action, 0, 5)
		for v := start; v < start+5 && v <= domain.MaxScore; v++ {
			row = append(row, notify.Action{Label: strconv.Itoa(v), Data: ScoreCallback(c, v)})
		}
		rows = append(rows, row)
	}
	return append(rows, []notify.Action{{Label: "Cancel", Data: CallbackCancel}})
}

var (
	skipRow   = []notify.Action{{Label: "Skip", Data: CallbackSkip}, {Label: "Cancel", Data: CallbackCancel}}
	cancelRow = []notify.Action{{Label: "Cancel", Data: CallbackCancel}}
)

// Prompt renders the question for the session's current step.
func Prompt(s Session) notify.Message {
	if c, ok := s.Step.Criterion(); ok {
		return notify.Message{
			Text:    fmt.Sprintf("Rate %s from 1 to 10:", strings.ToLower(CriterionLabel(c))),
			Actions: scoreKeyboard(c),
		}
	}

	switch s.Step {
	case StepName:
		text := "Let's write a review! What is your name?"
		if s.Draft.ScannedRoom != "" {
			text = fmt.Sprintf("Let's write a review for room %s! What is your name?", s.Draft.ScannedRoom)
		}
		return notify.Message{Text: text, Actions: [][]notify.Action{cancelRow}}
	case StepRoom:
		return notify.Message{Text: "Which room did you stay in?", Actions: [][]notify.Action{skipRow}}
	case StepPros:
		return notify.Message{Text: "What did you like?", Actions: [][]notify.Action{skipRow}}
	case StepCons:
		return notify.Message{Text: "What could be improved?", Actions: [][]notify.Action{skipRow}}
	case StepComment:
		return notify.Message{Text: "Anything else you'd like to add?", Actions: [][]notify.Action{skipRow}}
	case StepConfirm:
		return notify.Message{
			Text: "Please check your review:\n\n" + summary(s.Draft) + "\n\nSubmit it?",
			Actions: [][]notify.Action{{
				{Label: "Submit", Data: CallbackSubmit},
				{Label: "Cancel", Data: CallbackCancel},
			}},
		}
	case StepDone:
		return notify.Message{Text: "Thank you! Your review has been sent for moderation."}
	case StepCancelled:
		return notify.Message{Text: "Review cancelled."}
	}
	return notify.Message{Text: "Send /review to start a review."}
}

func summary(d Draft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", d.GuestName)
	if d.Room != "" {
		fmt.Fprintf(&b, "Room: %s\n", d.Room)
	}
	for _, c := range domain.Criteria {
		fmt.Fprintf(&b, "%s: %d/10\n", CriterionLabel(c), d.Scores.Get(c))
	}
	fmt.Fprintf(&b, "Average: %.1f/10", d.Scores.Average())
	for _, extra := range [][2]string{{"Liked", d.Pros}, {"To improve", d.Cons}, {"Comment", d.Comment}} {
		if extra[1] != "" {
			fmt.Fprintf(&b, "\n%s: %s", extra[0], extra[1])
		}
	}
	return b.String()
}

// Describe renders a stored review for moderators.
func Describe(r *domain.Review) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review #%d [%s", r.ID, r.Status)
	if r.Published {
		b.WriteString(", published")
	}
	b.WriteString("]\n")
	b.WriteString(summary(Draft{
		GuestName: r.GuestName,
		Room:      deref(r.Room),
		Scores:    r.Scores,
		Pros:      deref(r.Pros),
		Cons:      deref(r.Cons),
		Comment:   deref(r.Comment),
	}))
	if r.ScannedRoom != nil && deref(r.ScannedRoom) != deref(r.Room) {
		fmt.Fprintf(&b, "\nScanned QR in room %s", *r.ScannedRoom)
	}
	return b.String()
}

// ModerationActions are the buttons offered for a review awaiting a decision.
func ModerationActions(id int64) [][]notify.Action {
	return [][]notify.Action{{
		{Label: "Approve & publish", Data: ModerationCallback(ActionApprove, id)},
		{Label: "Approve only", Data: ModerationCallback(ActionApproveOnly, id)},
		{Label: "Reject", Data: ModerationCallback(ActionReject, id)},
	}}
}

func moderatorMessage(r *domain.Review) notify.Message {
	return notify.Message{
		Subject: fmt.Sprintf("New review #%d: %.1f/10", r.ID, r.Average()),
		Text:    fmt.Sprintf("New review, average %.1f/10\n\n%s", r.Average(), Describe(r)),
		Actions: ModerationActions(r.ID),
	}
}
