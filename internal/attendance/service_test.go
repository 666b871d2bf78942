package attendance

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/config"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/database"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "qr-test-secret"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type published struct {
	channel string
	event   string
	payload map[string]any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, channel, event string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{channel: channel, event: event, payload: payload})
	return r.err
}

func (r *recordingPublisher) byEvent(event string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	db    *gorm.DB
	svc   *Service
	clock *testClock
	pub   *recordingPublisher
	seq   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "attendance.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.AutoMigrate(db))

	clock := &testClock{now: time.Date(2026, 5, 14, 9, 0, 0, 0, time.UTC)}
	pub := &recordingPublisher{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(db, Config{Secret: testSecret, Issuer: "test"}, pub, log, WithClock(clock.Now))

	return &fixture{db: db, svc: svc, clock: clock, pub: pub}
}

func (f *fixture) student(t *testing.T, kind string) *models.Student {
	t.Helper()
	f.seq++
	code := fmt.Sprintf("C%04d", f.seq)
	user := models.User{Username: code, Role: models.RoleStudent}
	require.NoError(t, f.db.Create(&user).Error)

	s := models.Student{
		UserID:      user.ID,
		DNI:         fmt.Sprintf("%08d", 70000000+f.seq),
		StudentCode: code,
		FirstName:   "Nombre" + code,
		LastName:    "Apellido",
		Type:        kind,
	}
	require.NoError(t, f.db.Omit("User").Create(&s).Error)
	return &s
}

func (f *fixture) article(t *testing.T, speaker *models.Student, title string) *models.Article {
	t.Helper()
	a := models.Article{StudentID: speaker.ID, Title: title, Type: models.ArticleEmpirical}
	require.NoError(t, f.db.Omit("Student").Create(&a).Error)
	return &a
}

func (f *fixture) attendanceRows(t *testing.T, articleID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Attendance{}).Where("article_id = ?", articleID).Count(&n).Error)
	return n
}

// ---------- issuance ----------

func TestIssueToken_ThirtyMinuteWindow(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	art := f.article(t, speaker, "Redes neuronales")

	tok, err := f.svc.IssueToken(context.Background(), art.ID, speaker.ID)
	require.NoError(t, err)

	assert.False(t, tok.Reused)
	assert.True(t, f.clock.Now().Equal(tok.IssuedAt))
	assert.Equal(t, 30*time.Minute, tok.ExpiresAt.Sub(tok.IssuedAt))
	assert.Equal(t, "Redes neuronales", tok.ArticleTitle)

	claims, err := f.svc.parseToken(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "attendance_qr", claims.Subject)
	assert.Equal(t, "test", claims.Issuer)
	assert.Equal(t, art.ID, claims.ArticleID)
	assert.Equal(t, speaker.ID, claims.StudentID)
	assert.NotEmpty(t, claims.ID)

	var row models.QRToken
	require.NoError(t, f.db.Where("article_id = ?", art.ID).First(&row).Error)
	assert.Equal(t, tok.Token, row.Token)
	assert.True(t, row.ExpiresAt.Equal(tok.ExpiresAt))
}

func TestIssueToken_ReusesActiveToken(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	first, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	second, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.Token, second.Token)
	assert.Equal(t, 30, first.RemainingMinutes)
	assert.Equal(t, 20, second.RemainingMinutes)
	assert.True(t, first.ExpiresAt.Equal(second.ExpiresAt))
	assert.Equal(t, "A1", second.ArticleTitle)

	var rows int64
	require.NoError(t, f.db.Model(&models.QRToken{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
	assert.Len(t, f.pub.byEvent(EventQRGenerated), 1, "reuse does not notify")
}

func TestIssueToken_MintsAfterExpiry(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	first, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	second, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)

	assert.False(t, second.Reused)
	assert.NotEqual(t, first.Token, second.Token)
	assert.True(t, second.ExpiresAt.After(first.ExpiresAt))
}

func TestIssueToken_Forbidden(t *testing.T) {
	f := newFixture(t)
	owner := f.student(t, models.StudentSpeaker)
	other := f.student(t, models.StudentSpeaker)
	listener := f.student(t, models.StudentListener)
	art := f.article(t, owner, "A1")
	ctx := context.Background()

	for name, studentID := range map[string]uint{
		"other speaker": other.ID,
		"listener":      listener.ID,
		"unknown":       9999,
	} {
		_, err := f.svc.IssueToken(ctx, art.ID, studentID)
		assert.ErrorIs(t, err, ErrForbidden, name)
	}

	var rows int64
	require.NoError(t, f.db.Model(&models.QRToken{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestIssueToken_ArticleNotFound(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)

	_, err := f.svc.IssueToken(context.Background(), 4242, speaker.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIssueToken_ReplacesCorruptedRow(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	bad := models.QRToken{
		ArticleID: art.ID,
		Token:     "not-a-jwt",
		ExpiresAt: f.clock.Now().Add(20 * time.Minute),
		CreatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&bad).Error)

	tok, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)
	assert.False(t, tok.Reused)
	assert.NotEqual(t, "not-a-jwt", tok.Token)

	var n int64
	require.NoError(t, f.db.Model(&models.QRToken{}).Where("id = ?", bad.ID).Count(&n).Error)
	assert.Zero(t, n, "corrupted row is deleted")
}

func TestIssueForSpeaker(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	tok, err := f.svc.IssueForSpeaker(ctx, speaker.ID)
	require.NoError(t, err)
	assert.Equal(t, art.ID, tok.ArticleID)

	noArticle := f.student(t, models.StudentSpeaker)
	_, err = f.svc.IssueForSpeaker(ctx, noArticle.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	listener := f.student(t, models.StudentListener)
	_, err = f.svc.IssueForSpeaker(ctx, listener.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTokenStatus(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	st, err := f.svc.TokenStatus(ctx, art.ID, speaker.ID)
	require.NoError(t, err)
	assert.False(t, st.Active)

	tok, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	st, err = f.svc.SpeakerTokenStatus(ctx, speaker.ID)
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.Equal(t, tok.Token, st.Token)
	assert.Equal(t, 20, st.RemainingMinutes)

	f.clock.Advance(20 * time.Minute)
	st, err = f.svc.TokenStatus(ctx, art.ID, speaker.ID)
	require.NoError(t, err)
	assert.False(t, st.Active)

	other := f.student(t, models.StudentSpeaker)
	_, err = f.svc.TokenStatus(ctx, art.ID, other.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTokenStatus_SkipsCorruptedRow(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	bad := models.QRToken{
		ArticleID: art.ID,
		Token:     "not-a-jwt",
		ExpiresAt: f.clock.Now().Add(20 * time.Minute),
		CreatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&bad).Error)

	st, err := f.svc.TokenStatus(ctx, art.ID, speaker.ID)
	require.NoError(t, err)
	assert.False(t, st.Active)
	assert.Empty(t, st.Token)

	var n int64
	require.NoError(t, f.db.Model(&models.QRToken{}).Where("id = ?", bad.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n, "status does not delete rows")

	// a valid token issued before the corrupted row was written is still reported
	require.NoError(t, f.db.Delete(&models.QRToken{}, bad.ID).Error)
	tok, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	bad.ID = 0
	bad.CreatedAt = f.clock.Now()
	require.NoError(t, f.db.Create(&bad).Error)

	st, err = f.svc.SpeakerTokenStatus(ctx, speaker.ID)
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.Equal(t, tok.Token, st.Token)
}

// ---------- redemption ----------

func TestRedeem_SpeakerAndTwoListeners(t *testing.T) {
	f := newFixture(t)
	s1 := f.student(t, models.StudentSpeaker)
	l1 := f.student(t, models.StudentListener)
	l2 := f.student(t, models.StudentListener)
	a1 := f.article(t, s1, "A1")
	ctx := context.Background()

	tok, err := f.svc.IssueToken(ctx, a1.ID, s1.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	rec, err := f.svc.RedeemToken(ctx, tok.Token, l1.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.TotalAttendees)
	assert.Equal(t, a1.ID, rec.ArticleID)
	assert.Equal(t, "A1", rec.ArticleTitle)
	assert.Equal(t, s1.FullName(), rec.SpeakerName)
	assert.Equal(t, l1.ID, rec.StudentID)
	assert.True(t, f.clock.Now().Equal(rec.ScannedAt))

	rec, err = f.svc.RedeemToken(ctx, tok.Token, l2.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rec.TotalAttendees)

	_, err = f.svc.RedeemToken(ctx, tok.Token, s1.ID)
	assert.ErrorIs(t, err, ErrForbidden, "speakers cannot record attendance")

	assert.EqualValues(t, 2, f.attendanceRows(t, a1.ID))

	rows, err := f.svc.Attendees(ctx, a1.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, l2.ID, rows[0].StudentID, "newest first")
	assert.Equal(t, l2.StudentCode, rows[0].Student.StudentCode)

	var att models.Attendance
	require.NoError(t, f.db.Where("student_id = ?", l1.ID).First(&att).Error)
	require.NotNil(t, att.QRTokenID)
}

func TestRedeem_Twice(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	listener := f.student(t, models.StudentListener)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	tok, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)

	_, err = f.svc.RedeemToken(ctx, tok.Token, listener.ID)
	require.NoError(t, err)

	_, err = f.svc.RedeemToken(ctx, tok.Token, listener.ID)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.EqualValues(t, 1, f.attendanceRows(t, art.ID))
}

func TestRedeem_ConcurrentSameListener(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	listener := f.student(t, models.StudentListener)
	art := f.article(t, speaker, "A1")

	tok, err := f.svc.IssueToken(context.Background(), art.ID, speaker.ID)
	require.NoError(t, err)

	const n = 8
	var (
		wg         sync.WaitGroup
		ok         int32
		registered int32
		mu         sync.Mutex
		unexpected []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.RedeemToken(context.Background(), tok.Token, listener.ID)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, ErrAlreadyRegistered):
				atomic.AddInt32(&registered, 1)
			default:
				mu.Lock()
				unexpected = append(unexpected, err)
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, unexpected)
	assert.EqualValues(t, 1, ok)
	assert.EqualValues(t, n-1, registered)
	assert.EqualValues(t, 1, f.attendanceRows(t, art.ID))
}

func TestRedeem_ExpiredIsNotInvalid(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	listener := f.student(t, models.StudentListener)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	tok, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)

	f.clock.Advance(31 * time.Minute)
	_, err = f.svc.RedeemToken(ctx, tok.Token, listener.ID)
	assert.ErrorIs(t, err, ErrExpired)
	assert.NotErrorIs(t, err, ErrInvalidToken)
	assert.Zero(t, f.attendanceRows(t, art.ID))
}

func TestRedeem_ExactlyAtExpiry(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	listener := f.student(t, models.StudentListener)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	tok, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	_, err = f.svc.RedeemToken(ctx, tok.Token, listener.ID)
	assert.ErrorIs(t, err, ErrExpired)
}

// tamperPayload rewrites article_id in the payload and keeps the signature.
func tamperPayload(t *testing.T, token string, articleID uint) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	payload["article_id"] = articleID
	raw, err = json.Marshal(payload)
	require.NoError(t, err)

	parts[1] = base64.RawURLEncoding.EncodeToString(raw)
	return strings.Join(parts, ".")
}

func TestRedeem_InvalidTokens(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	other := f.student(t, models.StudentSpeaker)
	listener := f.student(t, models.StudentListener)
	art := f.article(t, speaker, "A1")
	otherArt := f.article(t, other, "A2")
	ctx := context.Background()

	tok, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)

	now := f.clock.Now()
	foreign := NewService(f.db, Config{Secret: "another-secret"}, nil, nil, WithClock(f.clock.Now))
	wrongSecret, err := foreign.signToken(art.ID, speaker.ID, "A1", now, now.Add(DefaultTTL))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &qrClaims{
		ArticleID: art.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tokenSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(DefaultTTL)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &qrClaims{
		ArticleID: art.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "session",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(DefaultTTL)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	cases := map[string]string{
		"tampered payload": tamperPayload(t, tok.Token, otherArt.ID),
		"wrong secret":     wrongSecret,
		"alg none":         unsigned,
		"wrong subject":    wrongSubject,
		"garbage":          "abc.def.ghi",
		"empty":            "   ",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.RedeemToken(ctx, raw, listener.ID)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
	assert.Zero(t, f.attendanceRows(t, art.ID))
	assert.Zero(t, f.attendanceRows(t, otherArt.ID))
}

func TestRedeem_TokenMissingFromStore(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	listener := f.student(t, models.StudentListener)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	// correctly signed but never persisted
	now := f.clock.Now()
	raw, err := f.svc.signToken(art.ID, speaker.ID, "A1", now, now.Add(DefaultTTL))
	require.NoError(t, err)

	_, err = f.svc.RedeemToken(ctx, raw, listener.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeem_ArticleDeleted(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	listener := f.student(t, models.StudentListener)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	tok, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Delete(&models.Article{}, art.ID).Error)

	_, err = f.svc.RedeemToken(ctx, tok.Token, listener.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeem_UnknownStudentForbidden(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	tok, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)

	_, err = f.svc.RedeemToken(ctx, tok.Token, 9999)
	assert.ErrorIs(t, err, ErrForbidden)
}

// ---------- notifications ----------

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	speaker := f.student(t, models.StudentSpeaker)
	listener := f.student(t, models.StudentListener)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	tok, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)
	_, err = f.svc.RedeemToken(ctx, tok.Token, listener.ID)
	require.NoError(t, err)

	gen := f.pub.byEvent(EventQRGenerated)
	require.Len(t, gen, 1)
	assert.Equal(t, ArticleChannel(art.ID), gen[0].channel)
	assert.Equal(t, art.ID, gen[0].payload["article_id"])

	reg := f.pub.byEvent(EventAttendanceRegistered)
	require.Len(t, reg, 1)
	assert.Equal(t, fmt.Sprintf("article.%d", art.ID), reg[0].channel)
	assert.Equal(t, listener.FullName(), reg[0].payload["student_name"])
	assert.Equal(t, listener.StudentCode, reg[0].payload["student_code"])
	assert.EqualValues(t, 1, reg[0].payload["total_attendees"])
}

func TestNotificationFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("pusher down")
	speaker := f.student(t, models.StudentSpeaker)
	listener := f.student(t, models.StudentListener)
	art := f.article(t, speaker, "A1")
	ctx := context.Background()

	tok, err := f.svc.IssueToken(ctx, art.ID, speaker.ID)
	require.NoError(t, err)
	rec, err := f.svc.RedeemToken(ctx, tok.Token, listener.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.TotalAttendees)
}

func TestNilPublisher(t *testing.T) {
	f := newFixture(t)
	f.svc.pub = nil
	speaker := f.student(t, models.StudentSpeaker)
	art := f.article(t, speaker, "A1")

	_, err := f.svc.IssueToken(context.Background(), art.ID, speaker.ID)
	require.NoError(t, err)
}
