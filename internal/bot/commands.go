package bot

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joao-fontenele/guestdesk/internal/access"
	"github.com/joao-fontenele/guestdesk/internal/analytics"
	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/notify"
	"github.com/joao-fontenele/guestdesk/internal/orders"
	"github.com/joao-fontenele/guestdesk/internal/reviews"
	"github.com/joao-fontenele/guestdesk/internal/rooms"
)

const (
	defaultStatsDays   = 7
	defaultCleanupDays = 30
	topClientsDays     = 30
	exportLimit        = 10000
)

const welcomeText = "Welcome! Order room service from the menu app, check an order with /status <id>, " +
	"or share your impressions with /review. Send /help for all commands."

const guestHelp = `/review - write a review of your stay
/status <id> [room] - check an order
/cancel - cancel the review in progress
/help - this message`

var staffHelp = []struct {
	capability access.Capability
	text       string
}{
	{access.CapOrderView, "/orders [all|active|today|<status>] - list orders"},
	{access.CapOrderChangeStatus, "/update <id> <status> - change an order status"},
	{access.CapOrderStats, "/stats [days], /top, /export - order statistics"},
	{access.CapOrderCleanup, "/cleanup [days] - delete old orders"},
	{access.CapReviewModerate, "/reviews, /approve, /approve_only, /reject, /publish, /unpublish <id> - moderation"},
	{access.CapReviewDelete, "/delete_review <id> - delete a review"},
	{access.CapAnalyticsView, "/analytics [7|30|90] - review analytics"},
	{access.CapQRGenerate, "/generate_qr [room] - room QR links"},
}

var moderationCommands = map[string]reviews.Action{
	"approve":       reviews.ActionApprove,
	"approve_only":  reviews.ActionApproveOnly,
	"reject":        reviews.ActionReject,
	"publish":       reviews.ActionPublish,
	"unpublish":     reviews.ActionUnpublish,
	"delete_review": reviews.ActionDelete,
}

func (r *Router) handleCommand(ctx context.Context, in request, command, args string) {
	args = strings.TrimSpace(args)

	if action, ok := moderationCommands[command]; ok {
		r.moderate(ctx, in, action, args)
		return
	}

	switch command {
	case "start":
		r.start(ctx, in, args)
	case "help":
		r.help(in)
	case "review":
		r.startReview(ctx, in)
	case "cancel":
		r.applyWizardInput(ctx, in, reviews.CancelInput{})
	case "status":
		r.status(ctx, in, args)
	case "orders":
		r.listOrders(ctx, in, args)
	case "update":
		r.updateOrder(ctx, in, args)
	case "stats":
		r.stats(ctx, in, args)
	case "top":
		r.top(ctx, in)
	case "export":
		r.export(ctx, in)
	case "cleanup":
		r.cleanup(ctx, in, args)
	case "reviews":
		r.pendingReviews(ctx, in)
	case "analytics":
		r.reviewAnalytics(ctx, in, args)
	case "generate_qr":
		r.generateQR(ctx, in, args)
	default:
		r.replyText(in, "Unknown command. Send /help for the list of commands.")
	}
}

// start handles plain starts and QR deep links of the form /start review_<room>.
func (r *Router) start(ctx context.Context, in request, payload string) {
	room, ok := rooms.ParseStartPayload(payload)
	if !ok {
		r.replyText(in, welcomeText)
		return
	}

	r.rooms.RecordScan(ctx, rooms.Scan{
		Room:            room,
		RequesterID:     in.userID,
		RequesterHandle: in.handle,
		Action:          rooms.ActionReviewStart,
	})
	r.startReview(ctx, in)
}

func (r *Router) help(in request) {
	var b strings.Builder
	b.WriteString(guestHelp)

	var staff []string
	for _, h := range staffHelp {
		if r.policy != nil && r.policy.HasCapability(in.userID, h.capability) {
			staff = append(staff, h.text)
		}
	}
	if len(staff) > 0 {
		b.WriteString("\n\nStaff commands:\n")
		b.WriteString(strings.Join(staff, "\n"))
	}

	r.replyText(in, "%s", b.String())
}

func (r *Router) startReview(ctx context.Context, in request) {
	session, err := r.reviews.Start(ctx, in.userID, in.handle)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}
	r.reply(in, reviews.Prompt(*session))
}

func (r *Router) status(ctx context.Context, in request, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		r.replyText(in, "Usage: /status <order id> [room]")
		return
	}

	var room string
	if len(fields) > 1 {
		room = fields[1]
	}

	order, err := r.orders.GuestStatus(ctx, fields[0], in.userID, room)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}
	r.replyText(in, "%s", orders.Describe(order))
}

func (r *Router) listOrders(ctx context.Context, in request, args string) {
	filter, err := r.orders.Filter(orders.ListScope(strings.ToLower(args)))
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}

	list, err := r.orders.List(ctx, in.userID, filter)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}
	if len(list) == 0 {
		r.replyText(in, "No orders found.")
		return
	}

	r.replyText(in, "Orders: %d", len(list))
	for i := range list {
		order := &list[i]
		r.reply(in, notify.Message{Text: orders.Describe(order), Actions: orders.StatusActions(order)})
	}
}

func (r *Router) updateOrder(ctx context.Context, in request, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		r.replyText(in, "Usage: /update <order id> <status>")
		return
	}
	r.transition(ctx, in, fields[0], domain.OrderStatus(strings.ToLower(fields[1])))
}

func (r *Router) transition(ctx context.Context, in request, id string, target domain.OrderStatus) {
	order, err := r.orders.Transition(ctx, id, target, in.userID)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}
	r.reply(in, notify.Message{
		Text:    fmt.Sprintf("Order #%s is now %s.", order.ID, orders.StatusLabel(order.Status)),
		Actions: orders.StatusActions(order),
	})
}

func (r *Router) stats(ctx context.Context, in request, args string) {
	days, ok := parseDays(args, defaultStatsDays)
	if !ok {
		r.replyText(in, "Usage: /stats [days]")
		return
	}

	report, err := r.orders.Stats(ctx, in.userID, days)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Orders in the last %d days: %d\n", report.Days, report.Period.Count)
	fmt.Fprintf(&b, "Revenue: %d, average %.0f, min %d, max %d\n",
		report.Period.Sum, report.Period.Avg, report.Period.Min, report.Period.Max)
	fmt.Fprintf(&b, "Average check: today %.0f, week %.0f, all time %.0f\n",
		report.Average.Today, report.Average.LastWeek, report.Average.AllTime)
	b.WriteString("\nBy status:\n")
	for _, s := range report.Statuses {
		fmt.Fprintf(&b, "%s: %d (%d)\n", orders.StatusLabel(s.Status), s.Count, s.Sum)
	}

	r.replyText(in, "%s", strings.TrimRight(b.String(), "\n"))
}

func (r *Router) top(ctx context.Context, in request) {
	report, err := r.orders.Stats(ctx, in.userID, topClientsDays)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}
	if len(report.Top) == 0 {
		r.replyText(in, "No clients yet.")
		return
	}

	var b strings.Builder
	b.WriteString("Top clients:\n")
	for i, c := range report.Top {
		fmt.Fprintf(&b, "%d. %s (room %s): %d orders, %d\n", i+1, c.Name, c.Room, c.Orders, c.Spent)
	}
	r.replyText(in, "%s", strings.TrimRight(b.String(), "\n"))
}

func (r *Router) export(ctx context.Context, in request) {
	filter, err := r.orders.Filter(orders.ScopeAll)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}
	filter.Limit = exportLimit

	var buf bytes.Buffer
	n, err := r.orders.ExportCSV(ctx, in.userID, filter, &buf)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}

	r.reply(in, notify.Message{
		Text:        fmt.Sprintf("Exported %d orders.", n),
		Attachments: []notify.Attachment{{Name: "orders_" + time.Now().UTC().Format("20060102") + ".csv", Data: buf.Bytes()}},
	})
}

func (r *Router) cleanup(ctx context.Context, in request, args string) {
	days, ok := parseDays(args, defaultCleanupDays)
	if !ok {
		r.replyText(in, "Usage: /cleanup [days]")
		return
	}

	deleted, err := r.orders.Cleanup(ctx, in.userID, time.Duration(days)*24*time.Hour)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}
	r.replyText(in, "Deleted %d orders older than %d days.", deleted, days)
}

func (r *Router) pendingReviews(ctx context.Context, in request) {
	pending, err := r.moderator.Pending(ctx, in.userID)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}
	if len(pending) == 0 {
		r.replyText(in, "No reviews waiting for moderation.")
		return
	}

	for i := range pending {
		review := &pending[i]
		r.reply(in, notify.Message{Text: reviews.Describe(review), Actions: reviews.ModerationActions(review.ID)})
	}
}

func (r *Router) moderate(ctx context.Context, in request, action reviews.Action, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil || id <= 0 {
		r.replyText(in, "Usage: /%s <review id>", commandFor(action))
		return
	}
	r.applyModeration(ctx, in, action, id)
}

func (r *Router) applyModeration(ctx context.Context, in request, action reviews.Action, id int64) {
	review, err := r.moderator.Apply(ctx, action, id, in.userID)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}
	if review == nil {
		r.replyText(in, "Review #%d deleted.", id)
		return
	}

	state := string(review.Status)
	if review.Published {
		state += ", published"
	}
	r.replyText(in, "Review #%d: %s.", review.ID, state)
}

func commandFor(action reviews.Action) string {
	for cmd, a := range moderationCommands {
		if a == action {
			return cmd
		}
	}
	return string(action)
}

func (r *Router) reviewAnalytics(ctx context.Context, in request, args string) {
	days, ok := parseDays(args, analytics.AllowedPeriods[1])
	if !ok {
		r.replyText(in, "Usage: /analytics [7|30|90]")
		return
	}

	_, msg, err := r.analytics.ForActor(ctx, in.userID, days)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}
	r.reply(in, msg)
}

func (r *Router) generateQR(ctx context.Context, in request, room string) {
	if err := access.Require(r.policy, in.userID, access.CapQRGenerate); err != nil {
		r.replyError(ctx, in, err)
		return
	}

	codes, err := r.rooms.GenerateCodes(ctx, room)
	if err != nil {
		r.replyError(ctx, in, err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generated %d QR links:\n", len(codes))
	for _, c := range codes {
		fmt.Fprintf(&b, "%s: %s\n", c.Room, c.DeepLink)
	}
	r.replyText(in, "%s", strings.TrimRight(b.String(), "\n"))
}

func parseDays(args string, fallback int) (int, bool) {
	if args == "" {
		return fallback, true
	}
	days, err := strconv.Atoi(args)
	if err != nil || days <= 0 {
		return 0, false
	}
	return days, true
}
