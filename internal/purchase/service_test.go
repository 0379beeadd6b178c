package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/purchase_confirm/internal/audit"
	"github.com/congo-pay/purchase_confirm/internal/logging"
	"github.com/congo-pay/purchase_confirm/internal/notification"
	"github.com/congo-pay/purchase_confirm/internal/tokens"
	"github.com/congo-pay/purchase_confirm/internal/tokenstore"
)

const testSecret = "purchase-service-test-secret"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
	err      error
}

func (n *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, m)
	return n.err
}

func (n *recordingNotifier) sent() []notification.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Message(nil), n.messages...)
}

type fixture struct {
	svc      *Service
	clock    *fakeClock
	notifier *recordingNotifier
	recorder audit.Recorder
}

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()

	clock := newFakeClock()
	codec, err := tokens.NewCodec(testSecret, tokens.WithClock(clock.Now))
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	recorder := audit.NewInMemory()
	if settings.PublicBaseURL == "" {
		settings.PublicBaseURL = "http://localhost:8080"
	}

	svc, err := NewService(settings, Deps{
		Codec:     codec,
		Pending:   tokenstore.New[string, PendingEntry](5*time.Hour, 1000, tokenstore.WithClock[string, PendingEntry](clock.Now)),
		Confirmed: tokenstore.New[string, ConfirmedEntry](10*time.Hour, 1000, tokenstore.WithClock[string, ConfirmedEntry](clock.Now)),
		Notifier:  notifier,
		Recorder:  recorder,
		Logger:    logging.Discard(),
		Now:       clock.Now,
	})
	require.NoError(t, err)

	return &fixture{svc: svc, clock: clock, notifier: notifier, recorder: recorder}
}

func sampleInput() IssueInput {
	return IssueInput{
		CardCode:         "4111111111111111",
		HolderName:       "Ana Silva",
		Expiry:           "12/30",
		VerificationCode: 123,
		Amount:           decimal.RequireFromString("250.00"),
		Installments:     3,
	}
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(Settings{}, Deps{})
	assert.Error(t, err)

	codec, err := tokens.NewCodec(testSecret)
	require.NoError(t, err)
	_, err = NewService(Settings{}, Deps{Codec: codec})
	assert.Error(t, err)
}

func TestService_IssueListsPending(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()

	res, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.True(t, res.ExpiresAt.Equal(f.clock.Now().Add(5*time.Hour)))

	items := f.svc.ListPending(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, res.Token, items[0].Token)
	assert.Equal(t, tokens.StatusAwaiting, items[0].Entry.Claims.Status)
	assert.Equal(t, "Ana Silva", items[0].Entry.Claims.HolderName)
	assert.Empty(t, items[0].Entry.Email)
	assert.Empty(t, f.svc.ListConfirmed(ctx))

	events, err := f.recorder.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindIssued, events[0].Kind)
	assert.Equal(t, "1111", events[0].CardLast4)
}

func TestService_IdenticalPurchasesGetDistinctTokens(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()

	a, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)
	b, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)

	assert.NotEqual(t, a.Token, b.Token)
	assert.Len(t, f.svc.ListPending(ctx), 2)
}

func TestService_IssueRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, Settings{})

	in := sampleInput()
	in.Installments = 0
	_, err := f.svc.Issue(context.Background(), in)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, f.svc.Stats().Pending)
}

func TestService_UnknownToken(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()

	err := f.svc.AttachContact(ctx, "does-not-exist", "ana@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Confirm(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.notifier.sent())
}

func TestService_AttachContactSendsMaskedEmail(t *testing.T) {
	f := newFixture(t, Settings{PublicBaseURL: "https://pay.example.com/"})
	ctx := context.Background()

	res, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)

	require.NoError(t, f.svc.AttachContact(ctx, res.Token, " ana@example.com "))

	sent := f.notifier.sent()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "ana@example.com", msg.Destination)
	assert.Equal(t, emailSubject, msg.Subject)
	assert.Equal(t, notification.KindPurchaseConfirmation, msg.Kind)
	assert.Contains(t, msg.Body, "************1111")
	assert.Contains(t, msg.Body, "*****ilva")
	assert.NotContains(t, msg.Body, "4111111111111111")
	assert.NotContains(t, msg.Body, "Ana Silva")
	assert.Contains(t, msg.Body, "https://pay.example.com/api/v1/purchases/"+res.Token+"/confirm")

	items := f.svc.ListPending(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "ana@example.com", items[0].Entry.Email)
	assert.True(t, items[0].Entry.Claims.ExpiresAt.Time.Equal(res.ExpiresAt), "contact must not extend the pending ttl")
}

func TestService_AttachContactRejectsBadEmail(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()

	res, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)

	err = f.svc.AttachContact(ctx, res.Token, "not-an-email")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.svc.ListPending(ctx)[0].Entry.Email)
}

func TestService_AttachContactLatestAddressWins(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()

	res, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)

	require.NoError(t, f.svc.AttachContact(ctx, res.Token, "first@example.com"))
	require.NoError(t, f.svc.AttachContact(ctx, res.Token, "second@example.com"))

	assert.Equal(t, "second@example.com", f.svc.ListPending(ctx)[0].Entry.Email)
	assert.Len(t, f.notifier.sent(), 2)
}

func TestService_NotificationFailureKeepsContact(t *testing.T) {
	f := newFixture(t, Settings{})
	f.notifier.err = fmt.Errorf("%w: smtp down", notification.ErrDeliveryFailed)
	ctx := context.Background()

	res, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)

	err = f.svc.AttachContact(ctx, res.Token, "ana@example.com")
	assert.ErrorIs(t, err, ErrNotificationFailed)
	assert.ErrorIs(t, err, notification.ErrDeliveryFailed)

	items := f.svc.ListPending(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "ana@example.com", items[0].Entry.Email)

	events, err := f.recorder.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindNotificationFailed, events[0].Kind)
}

func TestService_ConfirmRoundTrip(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()

	res, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)
	require.NoError(t, f.svc.AttachContact(ctx, res.Token, "ana@example.com"))

	f.clock.Advance(time.Hour)
	conf, err := f.svc.Confirm(ctx, res.Token)
	require.NoError(t, err)

	assert.NotEqual(t, res.Token, conf.Token)
	assert.Equal(t, tokens.StatusConfirmed, conf.Entry.Claims.Status)
	assert.Equal(t, "ana@example.com", conf.Entry.Email)
	assert.True(t, conf.Entry.Claims.ExpiresAt.Time.Equal(f.clock.Now().Add(10*time.Hour)))
	assert.True(t, conf.Entry.Claims.Amount.Equal(decimal.RequireFromString("250")))

	assert.Empty(t, f.svc.ListPending(ctx))
	confirmed := f.svc.ListConfirmed(ctx)
	require.Len(t, confirmed, 1)
	assert.Equal(t, conf.Token, confirmed[0].Token)

	// The confirmed token is itself a valid signed token.
	codec, err := tokens.NewCodec(testSecret, tokens.WithClock(f.clock.Now))
	require.NoError(t, err)
	decoded, err := codec.Decode(conf.Token)
	require.NoError(t, err)
	assert.Equal(t, tokens.StatusConfirmed, decoded.Status)
	assert.Equal(t, "4111111111111111", decoded.CardCode)

	_, err = f.svc.Confirm(ctx, res.Token)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, f.svc.ListConfirmed(ctx), 1)
}

func TestService_ConfirmWithoutContact(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()

	res, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)

	conf, err := f.svc.Confirm(ctx, res.Token)
	require.NoError(t, err)
	assert.Empty(t, conf.Entry.Email)
}

func TestService_Expiry(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()

	expired, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)
	f.clock.Advance(4 * time.Hour)
	fresh, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)

	f.clock.Advance(time.Hour)

	items := f.svc.ListPending(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, fresh.Token, items[0].Token)

	assert.ErrorIs(t, f.svc.AttachContact(ctx, expired.Token, "ana@example.com"), ErrNotFound)
	_, err = f.svc.Confirm(ctx, expired.Token)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Confirm(ctx, fresh.Token)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Hour)
	assert.Empty(t, f.svc.ListConfirmed(ctx))

	// The expired pending entry was already dropped when it was looked up.
	pending, confirmed := f.svc.Purge()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, Stats{}, f.svc.Stats())
}

func TestService_ConcurrentIssueAndConfirm(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()

	const issued = 100
	tokensCh := make(chan string, issued)
	var wg sync.WaitGroup
	for i := 0; i < issued; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Issue(ctx, sampleInput())
			if err != nil {
				t.Errorf("issue: %v", err)
				return
			}
			tokensCh <- res.Token
		}()
	}
	wg.Wait()
	close(tokensCh)

	seen := make(map[string]struct{}, issued)
	var all []string
	for tok := range tokensCh {
		seen[tok] = struct{}{}
		all = append(all, tok)
	}
	require.Len(t, seen, issued)
	require.Len(t, f.svc.ListPending(ctx), issued)

	const confirmed = 50
	for _, tok := range all[:confirmed] {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			if _, err := f.svc.Confirm(ctx, tok); err != nil {
				t.Errorf("confirm: %v", err)
			}
		}(tok)
	}
	wg.Wait()

	assert.Len(t, f.svc.ListPending(ctx), issued-confirmed)
	assert.Len(t, f.svc.ListConfirmed(ctx), confirmed)
	assert.Equal(t, Stats{Pending: issued - confirmed, Confirmed: confirmed}, f.svc.Stats())
}

func TestService_ConcurrentConfirmSingleWinner(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()

	res, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)

	var wins, misses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Confirm(ctx, res.Token)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrNotFound):
				misses.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(19), misses.Load())
	assert.Len(t, f.svc.ListConfirmed(ctx), 1)
}

func TestService_VerifyOnLookup(t *testing.T) {
	f := newFixture(t, Settings{VerifyOnLookup: true})
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, "garbage")
	assert.ErrorIs(t, err, tokens.ErrInvalid)

	res, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)
	require.NoError(t, f.svc.AttachContact(ctx, res.Token, "ana@example.com"))

	_, err = f.svc.Confirm(ctx, res.Token)
	require.NoError(t, err)
}

func TestService_Run(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)
	f.clock.Advance(6 * time.Hour)

	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.svc.Stats().Pending == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestService_ConfirmURL(t *testing.T) {
	f := newFixture(t, Settings{PublicBaseURL: "https://pay.example.com/"})
	assert.Equal(t, "https://pay.example.com/api/v1/purchases/abc.def/confirm", f.svc.ConfirmURL("abc.def"))
	assert.True(t, strings.HasSuffix(f.svc.ConfirmURL("a/b"), "/purchases/a%2Fb/confirm"))
}

type blockingRecorder struct {
	audit.Recorder
	calls atomic.Int32
}

func (r *blockingRecorder) Record(ctx context.Context, _ audit.Event) error {
	r.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestService_SlowAuditRecorderDoesNotBlock(t *testing.T) {
	clock := newFakeClock()
	codec, err := tokens.NewCodec(testSecret, tokens.WithClock(clock.Now))
	require.NoError(t, err)
	recorder := &blockingRecorder{Recorder: audit.NewInMemory()}

	svc, err := NewService(Settings{AuditTimeout: 20 * time.Millisecond}, Deps{
		Codec:     codec,
		Pending:   tokenstore.New[string, PendingEntry](5*time.Hour, 10, tokenstore.WithClock[string, PendingEntry](clock.Now)),
		Confirmed: tokenstore.New[string, ConfirmedEntry](10*time.Hour, 10, tokenstore.WithClock[string, ConfirmedEntry](clock.Now)),
		Notifier:  &recordingNotifier{},
		Recorder:  recorder,
		Logger:    logging.Discard(),
		Now:       clock.Now,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		res, err := svc.Issue(context.Background(), sampleInput())
		if err == nil {
			_, err = svc.Confirm(context.Background(), res.Token)
		}
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("issue and confirm blocked on the audit recorder")
	}
	assert.Equal(t, int32(2), recorder.calls.Load())
	assert.Equal(t, Stats{Pending: 0, Confirmed: 1}, svc.Stats())
}

func TestService_AttachContactUnknownTokenWinsOverBadEmail(t *testing.T) {
	f := newFixture(t, Settings{})

	err := f.svc.AttachContact(context.Background(), "does-not-exist", "not-an-email")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestService_StoreDeadlineMatchesSignedExpiry(t *testing.T) {
	f := newFixture(t, Settings{VerifyOnLookup: true})
	ctx := context.Background()
	f.clock.Advance(700 * time.Millisecond)

	res, err := f.svc.Issue(ctx, sampleInput())
	require.NoError(t, err)
	// Signed expiry is truncated to the second, so it is earlier than now + ttl.
	assert.True(t, res.ExpiresAt.Before(f.clock.Now().Add(5*time.Hour)))

	items := f.svc.ListPending(ctx)
	require.Len(t, items, 1)
	assert.True(t, items[0].Entry.Claims.ExpiresAt.Time.Equal(res.ExpiresAt))

	// Just past the signed expiry but before now + ttl: gone from the store too.
	f.clock.Advance(5*time.Hour - 500*time.Millisecond)
	assert.Empty(t, f.svc.ListPending(ctx))
	_, err = f.svc.Confirm(ctx, res.Token)
	assert.Error(t, err)
	assert.Zero(t, f.svc.Stats().Confirmed)
}
