package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/orders"
	"github.com/joao-fontenele/guestdesk/internal/reviews"
)

func (r *Router) handleCallback(ctx context.Context, in request, data string) {
	if id, status, ok := orders.ParseCallbackData(data); ok {
		r.transition(ctx, in, id, status)
		return
	}

	if action, id, ok := reviews.ParseModerationCallback(data); ok {
		r.applyModeration(ctx, in, action, id)
		return
	}

	if input, ok := reviews.ParseCallback(data); ok {
		r.applyWizardInput(ctx, in, input)
		return
	}

	r.logger.Warn("unknown callback data", "data", data, "user_id", in.userID)
}

// handleText feeds free text into the review wizard. Bare digits answer a score question.
func (r *Router) handleText(ctx context.Context, in request, text string) {
	session, err := r.reviews.Active(ctx, in.userID)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}
	if session == nil {
		r.replyText(in, "Send /review to write a review or /help for the list of commands.")
		return
	}

	var input reviews.Input = reviews.TextInput{Text: text}
	if criterion, ok := session.Step.Criterion(); ok {
		value, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			r.replyText(in, "Please choose a score from 1 to 10.")
			return
		}
		input = reviews.ScoreInput{Criterion: criterion, Value: value}
	}

	r.applyWizardInput(ctx, in, input)
}

func (r *Router) applyWizardInput(ctx context.Context, in request, input reviews.Input) {
	outcome, err := r.reviews.Handle(ctx, in.userID, input)
	if err != nil {
		var verr *domain.ValidationError
		if outcome != nil && errors.As(err, &verr) {
			r.replyText(in, "Invalid input: %s", verr.Reason)
			r.reply(in, reviews.Prompt(outcome.Session))
			return
		}
		if errors.Is(err, reviews.ErrNoSession) {
			if _, ok := input.(reviews.CancelInput); ok {
				r.replyText(in, "Nothing to cancel.")
				return
			}
		}
		r.replyError(ctx, in, err)
		return
	}

	r.reply(in, reviews.Prompt(outcome.Session))
}
