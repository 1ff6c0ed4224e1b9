package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/guestdesk/internal/access"
	"github.com/joao-fontenele/guestdesk/internal/analytics"
	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/notify"
	"github.com/joao-fontenele/guestdesk/internal/orders"
	"github.com/joao-fontenele/guestdesk/internal/reviews"
	"github.com/joao-fontenele/guestdesk/internal/rooms"
)

// API is the part of *tgbotapi.BotAPI the router uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type OrderService interface {
	Transition(ctx context.Context, id string, target domain.OrderStatus, actorID int64) (*domain.Order, error)
	GuestStatus(ctx context.Context, id string, requesterID int64, room string) (*domain.Order, error)
	Filter(scope orders.ListScope) (domain.OrderFilter, error)
	List(ctx context.Context, actorID int64, filter domain.OrderFilter) ([]domain.Order, error)
	Stats(ctx context.Context, actorID int64, days int) (*orders.StatsReport, error)
	ExportCSV(ctx context.Context, actorID int64, filter domain.OrderFilter, w io.Writer) (int, error)
	Cleanup(ctx context.Context, actorID int64, olderThan time.Duration) (int64, error)
}

type ReviewService interface {
	Start(ctx context.Context, requesterID int64, handle string) (*reviews.Session, error)
	Active(ctx context.Context, requesterID int64) (*reviews.Session, error)
	Handle(ctx context.Context, requesterID int64, in reviews.Input) (*reviews.Outcome, error)
}

type Moderator interface {
	Apply(ctx context.Context, a reviews.Action, id, actorID int64) (*domain.Review, error)
	Pending(ctx context.Context, actorID int64) ([]domain.Review, error)
}

type Analytics interface {
	ForActor(ctx context.Context, actorID int64, days int) (*analytics.Report, notify.Message, error)
}

type RoomService interface {
	RecordScan(ctx context.Context, scan rooms.Scan)
	GenerateCodes(ctx context.Context, room string) ([]rooms.Code, error)
}

// Router turns Telegram updates into service calls and replies in the originating chat.
type Router struct {
	api       API
	orders    OrderService
	reviews   ReviewService
	moderator Moderator
	analytics Analytics
	rooms     RoomService
	policy    access.Checker
	logger    *slog.Logger
	tracer    trace.Tracer
	wg        sync.WaitGroup
	senders   keyedMutex
}

func NewRouter(
	api API,
	orderService OrderService,
	reviewService ReviewService,
	moderator Moderator,
	reporter Analytics,
	roomService RoomService,
	policy access.Checker,
	logger *slog.Logger,
) *Router {
	return &Router{
		api:       api,
		orders:    orderService,
		reviews:   reviewService,
		moderator: moderator,
		analytics: reporter,
		rooms:     roomService,
		policy:    policy,
		logger:    logger,
		tracer:    otel.Tracer("guestdesk/bot"),
	}
}

// Run long-polls for updates until ctx is done. Each update is handled on its own goroutine;
// updates from the same user are handled one at a time, in arrival order of the lock.
func (r *Router) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.api.GetUpdatesChan(u)

	handlerCtx := context.WithoutCancel(ctx)
	defer r.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			r.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.HandleUpdate(handlerCtx, update)
			}()
		}
	}
}

func (r *Router) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	from := update.SentFrom()
	chat := update.FromChat()
	if from == nil || chat == nil {
		return
	}

	unlock := r.senders.Lock(from.ID)
	defer unlock()

	ctx, span := r.tracer.Start(ctx, "bot.update",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int("telegram.update_id", update.UpdateID),
			attribute.Int64("telegram.user_id", from.ID),
		),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			span.SetStatus(codes.Error, "panic")
			r.logger.Error("panic while handling update", "panic", rec, "update_id", update.UpdateID)
		}
	}()

	in := request{chatID: chat.ID, userID: from.ID, handle: from.UserName}

	switch {
	case update.CallbackQuery != nil:
		span.SetAttributes(attribute.String("telegram.callback", update.CallbackQuery.Data))
		if _, err := r.api.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "")); err != nil {
			r.logger.Warn("failed to answer callback", "error", err)
		}
		r.handleCallback(ctx, in, update.CallbackQuery.Data)

	case update.Message != nil && update.Message.IsCommand():
		span.SetAttributes(attribute.String("telegram.command", update.Message.Command()))
		r.handleCommand(ctx, in, update.Message.Command(), update.Message.CommandArguments())

	case update.Message != nil:
		r.handleText(ctx, in, update.Message.Text)
	}
}

type request struct {
	chatID int64
	userID int64
	handle string
}

func (r *Router) reply(in request, msg notify.Message) {
	cfg := tgbotapi.NewMessage(in.chatID, msg.Text)
	if len(msg.Actions) > 0 {
		cfg.ReplyMarkup = notify.Keyboard(msg.Actions)
	}
	if _, err := r.api.Send(cfg); err != nil {
		r.logger.Error("failed to send reply", "error", err, "chat_id", in.chatID)
		return
	}

	for _, a := range msg.Attachments {
		doc := tgbotapi.NewDocument(in.chatID, tgbotapi.FileBytes{Name: a.Name, Bytes: a.Data})
		if _, err := r.api.Send(doc); err != nil {
			r.logger.Error("failed to send attachment", "error", err, "chat_id", in.chatID, "name", a.Name)
		}
	}
}

func (r *Router) replyText(in request, format string, args ...any) {
	r.reply(in, notify.Message{Text: fmt.Sprintf(format, args...)})
}

// replyError turns a service error into a chat answer. Unexpected errors are logged, not shown.
func (r *Router) replyError(ctx context.Context, in request, err error) {
	var (
		verr       *domain.ValidationError
		notFound   *domain.NotFoundError
		transition *domain.InvalidTransitionError
	)

	switch {
	case errors.Is(err, domain.ErrForbidden):
		r.replyText(in, "You are not allowed to do that.")
	case errors.As(err, &verr):
		r.replyText(in, "Invalid input: %s", verr.Reason)
	case errors.As(err, &notFound):
		r.replyText(in, "%s #%s not found.", capitalize(notFound.Entity), notFound.ID)
	case errors.As(err, &transition):
		r.replyText(in, "Cannot change %s #%s from %s to %s.", transition.Entity, transition.ID, transition.From, transition.To)
	case errors.Is(err, reviews.ErrUnexpectedInput):
		r.replyText(in, "Please answer the question above or use its buttons.")
	case errors.Is(err, reviews.ErrNoSession):
		r.replyText(in, "There is no review in progress. Send /review to start one.")
	default:
		trace.SpanFromContext(ctx).RecordError(err)
		r.logger.Error("failed to handle update", "error", err, "user_id", in.userID)
		r.replyText(in, "Something went wrong, please try again later.")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// keyedMutex serializes work per key and forgets keys nobody holds or waits for.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key int64) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
