package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gym-class-api/internal/models"
	"github.com/noah-isme/gym-class-api/pkg/database"
	appErrors "github.com/noah-isme/gym-class-api/pkg/errors"
)

// errUnlockedWrite reports a transactional read or write on session rows made
// without first taking that session's row lock.
var errUnlockedWrite = errors.New("session rows touched without the session row lock")

// memStore is an in-memory stand-in for the Postgres tables. Transactions run
// concurrently: memSessions.LockByID takes a per-session mutex held until
// WithinTx returns, like SELECT ... FOR UPDATE. Writes made inside a
// transaction are journaled and undone on error, and any write to a session's
// rows fails with errUnlockedWrite unless the transaction holds that session.
type memStore struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	sessions    map[string]models.ClassSession
	enrollments map[string]models.ClassEnrollment
	entries     map[string]models.ClassWaitlistEntry
	seq         int

	failOn map[string]error
}

type memTx struct {
	held map[string]*sync.Mutex
	undo []func()
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		locks:       make(map[string]*sync.Mutex),
		sessions:    make(map[string]models.ClassSession),
		enrollments: make(map[string]models.ClassEnrollment),
		entries:     make(map[string]models.ClassWaitlistEntry),
		failOn:      make(map[string]error),
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn database.TxFunc) error {
	tx := &memTx{held: make(map[string]*sync.Mutex)}
	err := fn(context.WithValue(ctx, memTxKey{}, tx), nil)
	if err != nil {
		m.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.mu.Unlock()
	}
	for _, l := range tx.held {
		l.Unlock()
	}
	return err
}

func txFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

// lockSession blocks until the transaction in ctx owns sessionID.
func (m *memStore) lockSession(ctx context.Context, sessionID string) {
	tx := txFrom(ctx)
	if tx == nil {
		return
	}
	if _, ok := tx.held[sessionID]; ok {
		return
	}
	m.mu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	m.mu.Unlock()
	l.Lock()
	tx.held[sessionID] = l
}

// guard checks the transaction in ctx holds sessionID.
func guard(ctx context.Context, sessionID string) error {
	tx := txFrom(ctx)
	if tx == nil {
		return errUnlockedWrite
	}
	if _, ok := tx.held[sessionID]; !ok {
		return fmt.Errorf("%w: %s", errUnlockedWrite, sessionID)
	}
	return nil
}

// journal records the current row so a failed transaction can restore it.
// Callers hold m.mu.
func journal[T any](ctx context.Context, table map[string]T, id string) {
	tx := txFrom(ctx)
	if tx == nil {
		return
	}
	old, existed := table[id]
	tx.undo = append(tx.undo, func() {
		if existed {
			table[id] = old
		} else {
			delete(table, id)
		}
	})
}

func (m *memStore) fail(op string) error {
	return m.failOn[op]
}

func (m *memStore) nextTime(base time.Time) time.Time {
	m.seq++
	return base.Add(time.Duration(m.seq) * time.Microsecond)
}

func (m *memStore) addSession(t *testing.T, capacity int, date time.Time, start, end string) models.ClassSession {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	s := models.ClassSession{
		ID:          uuid.NewString(),
		ClassTypeID: uuid.NewString(),
		SessionDate: date,
		StartTime:   start,
		EndTime:     end,
		MaxCapacity: capacity,
		Status:      models.SessionStatusScheduled,
	}
	m.sessions[s.ID] = s
	return s
}

func (m *memStore) session(id string) models.ClassSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *memStore) enrollment(id string) models.ClassEnrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enrollments[id]
}

func (m *memStore) entry(id string) models.ClassWaitlistEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id]
}

func (m *memStore) activeLine(sessionID string) []models.ClassWaitlistEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ClassWaitlistEntry
	for _, e := range m.entries {
		if e.SessionID == sessionID && e.Status.Active() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// assertInvariants checks capacity, counter accuracy, dense FIFO positions and
// one active claim per student for every session.
func (m *memStore) assertInvariants(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		active := 0
		claims := map[string]int{}
		for _, e := range m.enrollments {
			if e.SessionID == s.ID && e.Status.Active() {
				active++
				claims[e.StudentID]++
			}
		}
		require.GreaterOrEqual(t, s.CurrentEnrollmentCount, 0)
		require.LessOrEqual(t, s.CurrentEnrollmentCount, s.MaxCapacity, "session %s oversold", s.ID)
		require.Equal(t, active, s.CurrentEnrollmentCount, "session %s counter drifted", s.ID)

		var line []models.ClassWaitlistEntry
		for _, e := range m.entries {
			if e.SessionID == s.ID && e.Status.Active() {
				line = append(line, e)
				claims[e.StudentID]++
			}
		}
		sort.Slice(line, func(i, j int) bool { return line[i].Position < line[j].Position })
		for i, e := range line {
			require.Equal(t, i+1, e.Position, "session %s waitlist positions not dense", s.ID)
			if i > 0 {
				require.False(t, e.AddedAt.Before(line[i-1].AddedAt), "session %s waitlist out of FIFO order", s.ID)
			}
		}
		for student, n := range claims {
			require.Equal(t, 1, n, "student %s holds %d active claims on session %s", student, n, s.ID)
		}
	}
}

type memSessions struct{ *memStore }

func (m memSessions) FindByID(ctx context.Context, id string) (*models.ClassSessionDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.ClassSessionDetail{ClassSession: s, ClassTypeName: "Yoga"}
	for _, e := range m.entries {
		if e.SessionID == id && e.Status.Active() {
			detail.WaitlistCount++
		}
	}
	return detail, nil
}

func (m memSessions) List(ctx context.Context, filter models.ClassSessionFilter) ([]models.ClassSessionDetail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ClassSessionDetail
	for _, s := range m.sessions {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, models.ClassSessionDetail{ClassSession: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionDate.Before(out[j].SessionDate) })
	return out, len(out), nil
}

func (m memSessions) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error) {
	if err := m.fail("session.lock"); err != nil {
		return nil, err
	}
	m.lockSession(ctx, id)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m memSessions) ReserveSeat(ctx context.Context, exec sqlx.ExtContext, id string, ownHolds int, now time.Time) error {
	if err := guard(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != models.SessionStatusScheduled {
		return appErrors.ErrCapacityRaceLost
	}
	if s.CurrentEnrollmentCount+m.heldSeats(id, now)-ownHolds >= s.MaxCapacity {
		return appErrors.ErrCapacityRaceLost
	}
	journal(ctx, m.sessions, id)
	s.CurrentEnrollmentCount++
	m.sessions[id] = s
	return nil
}

func (m memSessions) ReleaseSeat(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if err := guard(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.CurrentEnrollmentCount == 0 {
		return sql.ErrNoRows
	}
	journal(ctx, m.sessions, id)
	s.CurrentEnrollmentCount--
	m.sessions[id] = s
	return nil
}

func (m memSessions) SetEnrollmentCount(ctx context.Context, exec sqlx.ExtContext, id string, count int) error {
	if err := guard(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	journal(ctx, m.sessions, id)
	s := m.sessions[id]
	s.CurrentEnrollmentCount = count
	m.sessions[id] = s
	return nil
}

func (m memSessions) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.SessionStatus, reason *string) error {
	if err := guard(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != from {
		return sql.ErrNoRows
	}
	journal(ctx, m.sessions, id)
	s.Status = to
	if reason != nil {
		s.CancellationReason = reason
	}
	m.sessions[id] = s
	return nil
}

func (m memSessions) ListByStatusUntil(ctx context.Context, status models.SessionStatus, until time.Time) ([]models.ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ClassSession
	for _, s := range m.sessions {
		if s.Status == status && !s.SessionDate.After(until) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m memSessions) ListCountDrift(ctx context.Context) ([]models.CountDrift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CountDrift
	for _, s := range m.sessions {
		actual := 0
		for _, e := range m.enrollments {
			if e.SessionID == s.ID && e.Status.Active() {
				actual++
			}
		}
		if actual != s.CurrentEnrollmentCount {
			out = append(out, models.CountDrift{SessionID: s.ID, Cached: s.CurrentEnrollmentCount, Actual: actual})
		}
	}
	return out, nil
}

func (m memSessions) InsertGenerated(ctx context.Context, exec sqlx.ExtContext, item *models.ClassSession) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ScheduleID != nil && item.ScheduleID != nil && *s.ScheduleID == *item.ScheduleID && s.SessionDate.Equal(item.SessionDate) {
			return false, nil
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.SessionStatusScheduled
	}
	journal(ctx, m.sessions, item.ID)
	m.sessions[item.ID] = *item
	return true, nil
}

type memEnrollments struct{ *memStore }

func (m memEnrollments) Create(ctx context.Context, exec sqlx.ExtContext, item *models.ClassEnrollment) error {
	if err := m.fail("enrollment.create"); err != nil {
		return err
	}
	if err := guard(ctx, item.SessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.SessionID == item.SessionID && e.StudentID == item.StudentID && e.Status.Active() {
			return fmt.Errorf("duplicate active enrollment for %s", item.StudentID)
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.EnrollmentStatusEnrolled
	}
	item.EnrolledAt = m.nextTime(item.EnrolledAt)
	journal(ctx, m.enrollments, item.ID)
	m.enrollments[item.ID] = *item
	return nil
}

func (m memEnrollments) FindByID(ctx context.Context, id string) (*models.ClassEnrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m memEnrollments) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassEnrollment, error) {
	e, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guard(ctx, e.SessionID); err != nil {
		return nil, err
	}
	return e, nil
}

func (m memEnrollments) ActiveClaimExists(ctx context.Context, exec sqlx.ExtContext, sessionID, studentID string) (bool, error) {
	if err := guard(ctx, sessionID); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.SessionID == sessionID && e.StudentID == studentID && e.Status.Active() {
			return true, nil
		}
	}
	for _, e := range m.entries {
		if e.SessionID == sessionID && e.StudentID == studentID && e.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (m memEnrollments) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.EnrollmentStatus, reason *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok || e.Status != from {
		return sql.ErrNoRows
	}
	if err := guard(ctx, e.SessionID); err != nil {
		return err
	}
	journal(ctx, m.enrollments, id)
	applyEnrollmentStatus(&e, to, reason, at)
	m.enrollments[id] = e
	return nil
}

func (m memEnrollments) CancelActiveBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string, reason *string, at time.Time) (int64, error) {
	if err := guard(ctx, sessionID); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.enrollments {
		if e.SessionID == sessionID && e.Status.Active() {
			journal(ctx, m.enrollments, id)
			applyEnrollmentStatus(&e, models.EnrollmentStatusCancelled, reason, at)
			m.enrollments[id] = e
			n++
		}
	}
	return n, nil
}

func (m memEnrollments) ListBySession(ctx context.Context, sessionID string) ([]models.ClassEnrollment, error) {
	return m.list(func(e models.ClassEnrollment) bool { return e.SessionID == sessionID }), nil
}

func (m memEnrollments) ListActiveBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.ClassEnrollment, error) {
	return m.list(func(e models.ClassEnrollment) bool { return e.SessionID == sessionID && e.Status.Active() }), nil
}

func (m memEnrollments) ListActiveByStudent(ctx context.Context, studentID string) ([]models.ClassEnrollment, error) {
	return m.list(func(e models.ClassEnrollment) bool { return e.StudentID == studentID && e.Status.Active() }), nil
}

func (m memEnrollments) CountActive(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	items, _ := m.ListActiveBySession(ctx, exec, sessionID)
	return len(items), nil
}

func (m memEnrollments) list(keep func(models.ClassEnrollment) bool) []models.ClassEnrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ClassEnrollment
	for _, e := range m.enrollments {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.Before(out[j].EnrolledAt) })
	return out
}

type memWaitlist struct{ *memStore }

func (m memWaitlist) Append(ctx context.Context, exec sqlx.ExtContext, item *models.ClassWaitlistEntry) error {
	if err := m.fail("waitlist.append"); err != nil {
		return err
	}
	if err := guard(ctx, item.SessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	maxPos := 0
	for _, e := range m.entries {
		if e.SessionID == item.SessionID && e.Status.Active() && e.Position > maxPos {
			maxPos = e.Position
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Status = models.WaitlistStatusWaiting
	item.Position = maxPos + 1
	item.AddedAt = m.nextTime(item.AddedAt)
	journal(ctx, m.entries, item.ID)
	m.entries[item.ID] = *item
	return nil
}

func (m memWaitlist) FindByID(ctx context.Context, id string) (*models.ClassWaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m memWaitlist) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassWaitlistEntry, error) {
	e, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guard(ctx, e.SessionID); err != nil {
		return nil, err
	}
	return e, nil
}

func (m memWaitlist) NextWaiting(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.ClassWaitlistEntry, error) {
	if err := guard(ctx, sessionID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var head *models.ClassWaitlistEntry
	for _, e := range m.entries {
		if e.SessionID == sessionID && e.Status == models.WaitlistStatusWaiting {
			e := e
			if head == nil || e.Position < head.Position {
				head = &e
			}
		}
	}
	if head == nil {
		return nil, sql.ErrNoRows
	}
	return head, nil
}

func (m memWaitlist) MarkNotified(ctx context.Context, exec sqlx.ExtContext, id string, at, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.Status != models.WaitlistStatusWaiting {
		return sql.ErrNoRows
	}
	if err := guard(ctx, e.SessionID); err != nil {
		return err
	}
	journal(ctx, m.entries, id)
	e.Status = models.WaitlistStatusNotified
	e.NotifiedAt = &at
	e.ExpiresAt = &expiresAt
	m.entries[id] = e
	return nil
}

func (m memWaitlist) Resolve(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.WaitlistStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.Status != from {
		return sql.ErrNoRows
	}
	if err := guard(ctx, e.SessionID); err != nil {
		return err
	}
	journal(ctx, m.entries, id)
	e.Status = to
	e.ResolvedAt = &at
	m.entries[id] = e
	return nil
}

func (m memWaitlist) CloseGap(ctx context.Context, exec sqlx.ExtContext, sessionID string, position int) error {
	if err := guard(ctx, sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.SessionID == sessionID && e.Status.Active() && e.Position > position {
			journal(ctx, m.entries, id)
			e.Position--
			m.entries[id] = e
		}
	}
	return nil
}

func (m memWaitlist) CancelActiveBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string, at time.Time) (int64, error) {
	if err := guard(ctx, sessionID); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.entries {
		if e.SessionID == sessionID && e.Status.Active() {
			journal(ctx, m.entries, id)
			e.Status = models.WaitlistStatusCancelled
			e.ResolvedAt = &at
			m.entries[id] = e
			n++
		}
	}
	return n, nil
}

func (m memWaitlist) CountNotified(ctx context.Context, exec sqlx.ExtContext, sessionID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heldSeats(sessionID, now), nil
}

// heldSeats counts notified entries whose claim window is open at now.
// Callers hold m.mu.
func (m *memStore) heldSeats(sessionID string, now time.Time) int {
	n := 0
	for _, e := range m.entries {
		if e.SessionID == sessionID && e.Status == models.WaitlistStatusNotified &&
			(e.ExpiresAt == nil || e.ExpiresAt.After(now)) {
			n++
		}
	}
	return n
}

func (m memWaitlist) ListBySession(ctx context.Context, sessionID string) ([]models.ClassWaitlistEntry, error) {
	return m.activeLine(sessionID), nil
}

func (m memWaitlist) ListActiveByStudent(ctx context.Context, studentID string) ([]models.ClassWaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ClassWaitlistEntry
	for _, e := range m.entries {
		if e.StudentID == studentID && e.Status.Active() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m memWaitlist) ListExpiredNotified(ctx context.Context, now time.Time) ([]models.ClassWaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ClassWaitlistEntry
	for _, e := range m.entries {
		if e.Status == models.WaitlistStatusNotified && e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.WaitlistEvent
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, event models.WaitlistEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) types() []models.WaitlistEventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.WaitlistEventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

var errStoreDown = errors.New("connection reset by peer")
