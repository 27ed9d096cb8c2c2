// Package notify tells managers about reservation changes over Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cowork/internal/events"
	"cowork/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier fans reservation events out to manager chats.
type Notifier struct {
	tg       telegramClient
	managers []int64
	logger   *zerolog.Logger
}

// New connects to the Bot API with token.
func New(token string, managers []int64, logger *zerolog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return NewWithClient(api, managers, logger), nil
}

// NewWithClient allows injecting a mocked Telegram client for tests.
func NewWithClient(tg telegramClient, managers []int64, logger *zerolog.Logger) *Notifier {
	return &Notifier{tg: tg, managers: managers, logger: logger}
}

// Subscribe registers the notifier for all reservation lifecycle events.
func (n *Notifier) Subscribe(bus *events.Bus) {
	for _, t := range []string{events.ReservationCreated, events.ReservationConfirmed, events.ReservationCancelled} {
		bus.Subscribe(t, n.HandleEvent)
	}
}

// HandleEvent sends one message per manager.
func (n *Notifier) HandleEvent(ctx context.Context, e events.Event) error {
	text := formatEvent(e)
	var errs []error
	for _, chatID := range n.managers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := n.tg.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	if len(errs) == 0 {
		n.logger.Debug().Str("event", e.Type).Int("managers", len(n.managers)).Msg("managers notified")
	}
	return errors.Join(errs...)
}

// SendDocument delivers a file, e.g. an Excel report, to every manager.
func (n *Notifier) SendDocument(ctx context.Context, filename string, data []byte, caption string) error {
	var errs []error
	for _, chatID := range n.managers {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: data})
		doc.Caption = caption
		if _, err := n.tg.Send(doc); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func formatEvent(e events.Event) string {
	r := e.Reservation

	var title string
	switch e.Type {
	case events.ReservationCreated:
		title = "New reservation"
	case events.ReservationConfirmed:
		title = "Reservation confirmed"
	case events.ReservationCancelled:
		title = "Reservation cancelled"
	default:
		title = e.Type
	}

	space := e.SpaceName
	if space == "" {
		space = fmt.Sprintf("#%d", r.SpaceID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d\n", title, r.ID)
	fmt.Fprintf(&b, "Space: %s\n", space)
	if r.CoworkingSpace != "" {
		fmt.Fprintf(&b, "Location: %s\n", r.CoworkingSpace)
	}
	fmt.Fprintf(&b, "Date: %s\n", r.Date.Format(model.DateLayout))
	fmt.Fprintf(&b, "Time: %s\n", r.Slot.String())
	fmt.Fprintf(&b, "Total: %s\n", r.TotalPrice.StringFixed(2))
	if c := r.Extras.Contact; c.Name != "" {
		fmt.Fprintf(&b, "Client: %s", c.Name)
		if c.Phone != "" {
			fmt.Fprintf(&b, ", %s", c.Phone)
		}
		if c.Email != "" {
			fmt.Fprintf(&b, ", %s", c.Email)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Ref: %s", r.Reference)
	return b.String()
}
