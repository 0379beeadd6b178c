package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/congo-pay/purchase_confirm/internal/audit"
	"github.com/congo-pay/purchase_confirm/internal/logging"
	"github.com/congo-pay/purchase_confirm/internal/notification"
	"github.com/congo-pay/purchase_confirm/internal/tokens"
	"github.com/congo-pay/purchase_confirm/internal/tokenstore"
	"github.com/congo-pay/purchase_confirm/internal/views"
)

const (
	emailSubject    = "No-reply - Purchase token"
	qrCodeSize      = 256
	defaultNotifyTO = 10 * time.Second
	defaultAuditTO  = 3 * time.Second
)

// PendingStore holds tokens awaiting confirmation.
type PendingStore = tokenstore.Store[string, PendingEntry]

// ConfirmedStore holds re-signed, confirmed tokens.
type ConfirmedStore = tokenstore.Store[string, ConfirmedEntry]

// Settings tune the lifecycle manager.
type Settings struct {
	// PublicBaseURL prefixes the confirmation link sent by email.
	PublicBaseURL string
	// NotifyTimeout bounds a single notification attempt.
	NotifyTimeout time.Duration
	// VerifyOnLookup re-checks signature and expiry of a presented token in
	// addition to store membership.
	VerifyOnLookup bool
	// AuditTimeout bounds a single audit write. A slow recorder never holds
	// up a lifecycle operation for longer.
	AuditTimeout time.Duration
}

// Deps aggregates the collaborators of the lifecycle manager.
type Deps struct {
	Codec     *tokens.Codec
	Pending   *PendingStore
	Confirmed *ConfirmedStore
	Notifier  notification.Notifier
	Recorder  audit.Recorder
	Logger    *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service moves purchase tokens from the pending tier to the confirmed tier.
type Service struct {
	settings  Settings
	codec     *tokens.Codec
	pending   *PendingStore
	confirmed *ConfirmedStore
	notifier  notification.Notifier
	recorder  audit.Recorder
	logger    *slog.Logger
	now       func() time.Time

	// transition serialises promotions against each other and against
	// listings so a token is never observed in both tiers or in neither.
	transition sync.RWMutex
}

// NewService wires a lifecycle manager. Codec and both stores are required.
func NewService(settings Settings, deps Deps) (*Service, error) {
	if deps.Codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if deps.Pending == nil || deps.Confirmed == nil {
		return nil, fmt.Errorf("pending and confirmed stores are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NewLoggerNotifier(deps.Logger)
	}
	if deps.Recorder == nil {
		deps.Recorder = audit.NewInMemory()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if settings.NotifyTimeout <= 0 {
		settings.NotifyTimeout = defaultNotifyTO
	}
	if settings.AuditTimeout <= 0 {
		settings.AuditTimeout = defaultAuditTO
	}

	return &Service{
		settings:  settings,
		codec:     deps.Codec,
		pending:   deps.Pending,
		confirmed: deps.Confirmed,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		logger:    deps.Logger,
		now:       deps.Now,
	}, nil
}

// Issue signs the purchase as an awaiting token valid for the pending TTL
// and stores it in the pending tier.
func (s *Service) Issue(ctx context.Context, input IssueInput) (Issued, error) {
	input, err := input.normalize()
	if err != nil {
		return Issued{}, err
	}

	token, claims, err := s.codec.Issue(tokens.Claims{
		CardCode:         input.CardCode,
		HolderName:       input.HolderName,
		Expiry:           input.Expiry,
		VerificationCode: input.VerificationCode,
		Amount:           input.Amount,
		Installments:     input.Installments,
		Status:           tokens.StatusAwaiting,
	}, s.pending.TTL())
	if err != nil {
		return Issued{}, err
	}

	// The store deadline follows the signed expiry, which has second precision.
	s.pending.PutUntil(token, PendingEntry{Claims: claims}, claims.ExpiresAt.Time)

	s.logger.Info("purchase token issued",
		slog.String("token", tokens.Fingerprint(token)),
		slog.String("card", lastFour(claims.CardCode)),
		slog.String("amount", claims.Amount.StringFixed(2)),
		slog.Int("installments", claims.Installments),
	)
	s.record(ctx, audit.KindIssued, token, claims, "")

	return Issued{Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// AttachContact records the cardholder's email on a pending token and sends
// the confirmation email. A delivery failure returns ErrNotificationFailed
// but keeps the address and the pending token, so the call can be retried.
func (s *Service) AttachContact(ctx context.Context, token, email string) error {
	if err := s.verify(token); err != nil {
		return err
	}
	// An unknown token is reported as such whatever the address looks like.
	if current, ok := s.pending.Get(token); !ok || !current.valid() {
		s.logger.Warn("attach contact: token not found or expired", slog.String("token", tokens.Fingerprint(token)))
		return ErrNotFound
	}
	address, err := parseEmail(email)
	if err != nil {
		return err
	}

	entry, ok := s.pending.Update(token, func(e PendingEntry) PendingEntry {
		e.Email = address
		return e
	})
	if !ok || !entry.valid() {
		s.logger.Warn("attach contact: token not found or expired", slog.String("token", tokens.Fingerprint(token)))
		return ErrNotFound
	}

	s.logger.Info("contact attached", slog.String("token", tokens.Fingerprint(token)))
	s.record(ctx, audit.KindContactAttached, token, entry.Claims, "")

	if err := s.sendConfirmation(ctx, token, entry); err != nil {
		s.logger.Error("confirmation email failed",
			slog.String("token", tokens.Fingerprint(token)),
			slog.Any("error", err),
		)
		s.record(ctx, audit.KindNotificationFailed, token, entry.Claims, err.Error())
		return errors.Join(ErrNotificationFailed, err)
	}

	s.logger.Info("confirmation email sent", slog.String("token", tokens.Fingerprint(token)))
	return nil
}

// Confirm promotes a pending token: its purchase claims are re-signed with
// status confirmed and the confirmed TTL under a new token, which replaces
// the pending entry. Only one of several concurrent calls for the same
// token succeeds; the others get ErrNotFound.
func (s *Service) Confirm(ctx context.Context, token string) (Confirmation, error) {
	if err := s.verify(token); err != nil {
		return Confirmation{}, err
	}

	current, ok := s.pending.Get(token)
	if !ok || !current.valid() {
		s.logger.Warn("confirm: token not found or expired", slog.String("token", tokens.Fingerprint(token)))
		return Confirmation{}, ErrNotFound
	}

	// Sign before touching either store so a failure leaves both intact.
	newToken, claims, err := s.codec.Issue(current.Claims.WithStatus(tokens.StatusConfirmed), s.confirmed.TTL())
	if err != nil {
		return Confirmation{}, err
	}

	s.transition.Lock()
	taken, ok := s.pending.Take(token)
	if !ok {
		s.transition.Unlock()
		return Confirmation{}, ErrNotFound
	}
	entry := ConfirmedEntry{Claims: claims, Email: taken.Email, ConfirmedAt: s.now()}
	s.confirmed.PutUntil(newToken, entry, claims.ExpiresAt.Time)
	s.transition.Unlock()

	s.logger.Info("purchase confirmed",
		slog.String("token", tokens.Fingerprint(token)),
		slog.String("confirmed_token", tokens.Fingerprint(newToken)),
	)
	s.record(ctx, audit.KindConfirmed, newToken, claims, "")

	return Confirmation{Token: newToken, Entry: entry}, nil
}

// ListPending returns a snapshot of the pending tier in insertion order.
func (s *Service) ListPending(_ context.Context) []PendingItem {
	s.transition.RLock()
	items := s.pending.List()
	s.transition.RUnlock()

	out := make([]PendingItem, 0, len(items))
	for _, item := range items {
		if !item.Value.valid() {
			s.logger.Warn("skipping malformed pending entry", slog.String("token", tokens.Fingerprint(item.Key)))
			continue
		}
		out = append(out, PendingItem{Token: item.Key, Entry: item.Value})
	}
	s.logger.Debug("pending tokens listed", slog.Int("count", len(out)))
	return out
}

// ListConfirmed returns a snapshot of the confirmed tier in insertion order.
func (s *Service) ListConfirmed(_ context.Context) []ConfirmedItem {
	s.transition.RLock()
	items := s.confirmed.List()
	s.transition.RUnlock()

	out := make([]ConfirmedItem, 0, len(items))
	for _, item := range items {
		if !item.Value.valid() {
			s.logger.Warn("skipping malformed confirmed entry", slog.String("token", tokens.Fingerprint(item.Key)))
			continue
		}
		out = append(out, ConfirmedItem{Token: item.Key, Entry: item.Value})
	}
	s.logger.Debug("confirmed tokens listed", slog.Int("count", len(out)))
	return out
}

// Stats reports how many entries each tier currently holds.
func (s *Service) Stats() Stats {
	return Stats{Pending: s.pending.Len(), Confirmed: s.confirmed.Len()}
}

// Run sweeps expired entries from both tiers every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, confirmed := s.Purge()
			if pending+confirmed > 0 {
				s.logger.Debug("expired tokens purged", slog.Int("pending", pending), slog.Int("confirmed", confirmed))
			}
		}
	}
}

// Purge drops expired entries from both tiers immediately.
func (s *Service) Purge() (pending, confirmed int) {
	return s.pending.Purge(), s.confirmed.Purge()
}

// ConfirmURL is the link the cardholder follows to confirm token.
func (s *Service) ConfirmURL(token string) string {
	base := strings.TrimRight(s.settings.PublicBaseURL, "/")
	return base + "/api/v1/purchases/" + url.PathEscape(token) + "/confirm"
}

func (s *Service) sendConfirmation(ctx context.Context, token string, entry PendingEntry) error {
	link := s.ConfirmURL(token)
	data := views.ConfirmationEmailData{
		HolderName:   Mask(entry.Claims.HolderName, visibleChars),
		CardCode:     Mask(entry.Claims.CardCode, visibleChars),
		Expiry:       entry.Claims.Expiry,
		Amount:       views.FormatAmount(entry.Claims.Amount),
		Installments: entry.Claims.Installments,
		ConfirmURL:   link,
	}
	if qr, err := views.QRCodeDataURI(link, qrCodeSize); err == nil {
		data.QRCode = qr
	} else {
		s.logger.Warn("qr code omitted from confirmation email", slog.Any("error", err))
	}

	body, err := views.Render(ctx, views.ConfirmationEmail(data))
	if err != nil {
		return fmt.Errorf("render confirmation email: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.settings.NotifyTimeout)
	defer cancel()

	return s.notifier.Send(sendCtx, notification.Message{
		Kind:        notification.KindPurchaseConfirmation,
		Destination: entry.Email,
		Subject:     emailSubject,
		Body:        body,
	})
}

func (s *Service) verify(token string) error {
	if !s.settings.VerifyOnLookup {
		return nil
	}
	if _, err := s.codec.Decode(token); err != nil {
		s.logger.Warn("token rejected on lookup", slog.String("token", tokens.Fingerprint(token)), slog.Any("error", err))
		return err
	}
	return nil
}

func (s *Service) record(ctx context.Context, kind audit.Kind, token string, claims tokens.Claims, detail string) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.AuditTimeout)
	defer cancel()

	err := s.recorder.Record(ctx, audit.Event{
		Kind:         kind,
		Token:        tokens.Fingerprint(token),
		CardLast4:    lastFour(claims.CardCode),
		Amount:       claims.Amount,
		Installments: claims.Installments,
		Detail:       detail,
		OccurredAt:   s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("kind", string(kind)), slog.Any("error", err))
	}
}
