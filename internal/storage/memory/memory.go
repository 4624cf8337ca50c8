// Package memory provides an in-process implementation of storage.Store,
// used by tests and by the memory backend.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"sharedspese/internal/core"
	"sharedspese/internal/storage"
)

type monthKey struct {
	sessionID string
	ym        core.YearMonth
}

type state struct {
	users       map[string]core.User
	sessions    map[string]*core.Session
	allocations map[monthKey][]core.Allocation
	personal    map[string]core.PersonalExpense
}

func newState() *state {
	return &state{
		users:       map[string]core.User{},
		sessions:    map[string]*core.Session{},
		allocations: map[monthKey][]core.Allocation{},
		personal:    map[string]core.PersonalExpense{},
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.sessions {
		c.sessions[k] = cloneSession(v)
	}
	for k, v := range st.allocations {
		c.allocations[k] = append([]core.Allocation(nil), v...)
	}
	for k, v := range st.personal {
		c.personal[k] = clonePersonal(v)
	}
	return c
}

// Store keeps everything in maps guarded by one mutex. Atomic runs fn
// against a copy of the state and swaps it in on success.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

// NewFromFiles seeds users from base/seed_users.txt. Each line holds
// "id;email;name[;currency]"; blank lines and # comments are skipped.
func NewFromFiles(base string) *Store {
	s := New()
	for _, line := range readLines(filepath.Join(base, "seed_users.txt")) {
		parts := strings.Split(line, ";")
		if len(parts) < 3 {
			continue
		}
		u := core.User{ID: parts[0], Email: parts[1], Name: parts[2]}
		if len(parts) > 3 {
			u.Currency = parts[3]
		}
		s.st.users[u.ID] = u
	}
	return s
}

func (s *Store) view() *view { return &view{st: s.st} }

func (s *Store) Atomic(ctx context.Context, fn func(tx storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&view{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetSession(ctx, id)
}

func (s *Store) SaveSession(ctx context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveSession(ctx, sess)
}

func (s *Store) SaveMonths(ctx context.Context, sessionID string, months []*core.Month) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveMonths(ctx, sessionID, months)
}

func (s *Store) ListActivePermanentSessions(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListActivePermanentSessions(ctx)
}

func (s *Store) GetAllocation(ctx context.Context, id string) (*core.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetAllocation(ctx, id)
}

func (s *Store) ReplaceMonthAllocations(ctx context.Context, sessionID string, ym core.YearMonth, allocs []core.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ReplaceMonthAllocations(ctx, sessionID, ym, allocs)
}

func (s *Store) ListMonthAllocations(ctx context.Context, sessionID string, ym core.YearMonth) ([]core.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListMonthAllocations(ctx, sessionID, ym)
}

func (s *Store) ListSessionAllocations(ctx context.Context, sessionID string) ([]core.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListSessionAllocations(ctx, sessionID)
}

func (s *Store) ListUserAllocations(ctx context.Context, userID string, status *core.AllocationStatus) ([]core.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListUserAllocations(ctx, userID, status)
}

func (s *Store) UpdateAllocation(ctx context.Context, a core.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateAllocation(ctx, a)
}

func (s *Store) ListUnmirroredAllocations(ctx context.Context, limit int) ([]core.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListUnmirroredAllocations(ctx, limit)
}

func (s *Store) RecordSyncFailure(ctx context.Context, allocationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().RecordSyncFailure(ctx, allocationID, at)
}

func (s *Store) GetPersonalExpense(ctx context.Context, id string) (*core.PersonalExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetPersonalExpense(ctx, id)
}

func (s *Store) FindMirrorByAllocation(ctx context.Context, allocationID string) (*core.PersonalExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().FindMirrorByAllocation(ctx, allocationID)
}

func (s *Store) FindMirrorByPeriod(ctx context.Context, userID, sessionID string, ym core.YearMonth) (*core.PersonalExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().FindMirrorByPeriod(ctx, userID, sessionID, ym)
}

func (s *Store) CreatePersonalExpense(ctx context.Context, p core.PersonalExpense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreatePersonalExpense(ctx, p)
}

func (s *Store) UpdatePersonalExpense(ctx context.Context, p core.PersonalExpense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdatePersonalExpense(ctx, p)
}

func (s *Store) DeletePersonalExpense(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeletePersonalExpense(ctx, id)
}

func (s *Store) ListPersonalExpenses(ctx context.Context, userID string) ([]core.PersonalExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListPersonalExpenses(ctx, userID)
}

func (s *Store) DeleteMirrorsForPeriod(ctx context.Context, sessionID string, ym core.YearMonth, keepUserIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteMirrorsForPeriod(ctx, sessionID, ym, keepUserIDs)
}

func (s *Store) GetUser(ctx context.Context, id string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetUser(ctx, id)
}

func (s *Store) SaveUser(ctx context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveUser(ctx, u)
}

// view operates on a state without locking. The Store hands one to
// Atomic callbacks over a private copy.
type view struct {
	st *state
}

func (v *view) Atomic(_ context.Context, fn func(tx storage.Store) error) error {
	return fn(v)
}

func (v *view) GetSession(_ context.Context, id string) (*core.Session, error) {
	sess, ok := v.st.sessions[id]
	if !ok {
		return nil, core.NotFound("session", id)
	}
	return cloneSession(sess), nil
}

func (v *view) SaveSession(_ context.Context, sess *core.Session) error {
	if sess == nil || sess.ID == "" {
		return core.Invalid("id", "must not be empty")
	}
	c := cloneSession(sess)
	if prev, ok := v.st.sessions[sess.ID]; ok {
		c.Months = prev.Months
	} else {
		c.Months = nil
	}
	v.st.sessions[sess.ID] = c
	return nil
}

func (v *view) SaveMonths(_ context.Context, sessionID string, months []*core.Month) error {
	sess, ok := v.st.sessions[sessionID]
	if !ok {
		return core.NotFound("session", sessionID)
	}
	byYM := make(map[core.YearMonth]*core.Month, len(sess.Months)+len(months))
	for _, m := range sess.Months {
		byYM[m.YearMonth] = m
	}
	for _, m := range months {
		byYM[m.YearMonth] = m.Clone()
	}
	sess.Months = sess.Months[:0:0]
	for _, m := range byYM {
		sess.Months = append(sess.Months, m)
	}
	sort.Slice(sess.Months, func(i, j int) bool { return sess.Months[i].YearMonth.Before(sess.Months[j].YearMonth) })
	return nil
}

func (v *view) ListActivePermanentSessions(_ context.Context) ([]string, error) {
	var ids []string
	for id, sess := range v.st.sessions {
		if sess.IsPermanent() && !sess.IsArchived() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (v *view) GetAllocation(_ context.Context, id string) (*core.Allocation, error) {
	for _, allocs := range v.st.allocations {
		for _, a := range allocs {
			if a.ID == id {
				return &a, nil
			}
		}
	}
	return nil, core.NotFound("allocation", id)
}

func (v *view) ReplaceMonthAllocations(_ context.Context, sessionID string, ym core.YearMonth, allocs []core.Allocation) error {
	seen := make(map[string]bool, len(allocs))
	for _, a := range allocs {
		if a.SessionID != sessionID || a.Period() != ym {
			return fmt.Errorf("allocation %s does not belong to %s %s", a.ID, sessionID, ym)
		}
		if seen[a.UserID] {
			return fmt.Errorf("duplicate allocation for user %s in %s %s", a.UserID, sessionID, ym)
		}
		seen[a.UserID] = true
	}
	key := monthKey{sessionID: sessionID, ym: ym}
	if len(allocs) == 0 {
		delete(v.st.allocations, key)
		return nil
	}
	v.st.allocations[key] = append([]core.Allocation(nil), allocs...)
	return nil
}

func (v *view) ListMonthAllocations(_ context.Context, sessionID string, ym core.YearMonth) ([]core.Allocation, error) {
	return append([]core.Allocation(nil), v.st.allocations[monthKey{sessionID: sessionID, ym: ym}]...), nil
}

func (v *view) ListSessionAllocations(_ context.Context, sessionID string) ([]core.Allocation, error) {
	return v.collect(func(a core.Allocation) bool { return a.SessionID == sessionID }), nil
}

func (v *view) ListUserAllocations(_ context.Context, userID string, status *core.AllocationStatus) ([]core.Allocation, error) {
	return v.collect(func(a core.Allocation) bool {
		return a.UserID == userID && (status == nil || a.Status == *status)
	}), nil
}

// collect returns matching allocations ordered by period, then session,
// then their position in the month.
func (v *view) collect(match func(core.Allocation) bool) []core.Allocation {
	keys := make([]monthKey, 0, len(v.st.allocations))
	for k := range v.st.allocations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ym != keys[j].ym {
			return keys[i].ym.Before(keys[j].ym)
		}
		return keys[i].sessionID < keys[j].sessionID
	})
	var out []core.Allocation
	for _, k := range keys {
		for _, a := range v.st.allocations[k] {
			if match(a) {
				out = append(out, a)
			}
		}
	}
	return out
}

func (v *view) UpdateAllocation(_ context.Context, a core.Allocation) error {
	key := monthKey{sessionID: a.SessionID, ym: a.Period()}
	allocs := v.st.allocations[key]
	for i := range allocs {
		if allocs[i].ID == a.ID {
			allocs[i].Status = a.Status
			allocs[i].PersonalExpenseID = a.PersonalExpenseID
			allocs[i].UpdatedAt = a.UpdatedAt
			return nil
		}
	}
	return core.NotFound("allocation", a.ID)
}

func (v *view) ListUnmirroredAllocations(_ context.Context, limit int) ([]core.Allocation, error) {
	out := v.collect(func(a core.Allocation) bool {
		return a.PersonalExpenseID == "" && a.SyncAttempts < storage.MaxSyncAttempts
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastSyncAttempt.Equal(out[j].LastSyncAttempt) {
			return out[i].LastSyncAttempt.Before(out[j].LastSyncAttempt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *view) RecordSyncFailure(_ context.Context, allocationID string, at time.Time) error {
	for _, allocs := range v.st.allocations {
		for i := range allocs {
			if allocs[i].ID == allocationID {
				allocs[i].SyncAttempts++
				allocs[i].LastSyncAttempt = at
				return nil
			}
		}
	}
	return core.NotFound("allocation", allocationID)
}

func (v *view) GetPersonalExpense(_ context.Context, id string) (*core.PersonalExpense, error) {
	p, ok := v.st.personal[id]
	if !ok {
		return nil, core.NotFound("personal expense", id)
	}
	c := clonePersonal(p)
	return &c, nil
}

func (v *view) FindMirrorByAllocation(_ context.Context, allocationID string) (*core.PersonalExpense, error) {
	if allocationID == "" {
		return nil, nil
	}
	for _, p := range v.st.personal {
		if p.IsFromSharedSession && p.AllocationID == allocationID {
			c := clonePersonal(p)
			return &c, nil
		}
	}
	return nil, nil
}

func (v *view) FindMirrorByPeriod(_ context.Context, userID, sessionID string, ym core.YearMonth) (*core.PersonalExpense, error) {
	for _, p := range v.st.personal {
		if mirrorOf(p, sessionID, ym) && p.UserID == userID {
			c := clonePersonal(p)
			return &c, nil
		}
	}
	return nil, nil
}

func (v *view) CreatePersonalExpense(ctx context.Context, p core.PersonalExpense) error {
	if _, ok := v.st.personal[p.ID]; ok {
		return fmt.Errorf("personal expense %s already exists", p.ID)
	}
	if err := v.checkMirrorUnique(p); err != nil {
		return err
	}
	v.st.personal[p.ID] = clonePersonal(p)
	return nil
}

func (v *view) UpdatePersonalExpense(_ context.Context, p core.PersonalExpense) error {
	if _, ok := v.st.personal[p.ID]; !ok {
		return core.NotFound("personal expense", p.ID)
	}
	if err := v.checkMirrorUnique(p); err != nil {
		return err
	}
	v.st.personal[p.ID] = clonePersonal(p)
	return nil
}

func (v *view) checkMirrorUnique(p core.PersonalExpense) error {
	if !p.IsFromSharedSession {
		return nil
	}
	for id, other := range v.st.personal {
		if id == p.ID || !other.IsFromSharedSession {
			continue
		}
		if p.AllocationID != "" && other.AllocationID == p.AllocationID {
			return fmt.Errorf("allocation %s already mirrored by %s", p.AllocationID, id)
		}
		if p.SessionRef != nil && other.UserID == p.UserID &&
			mirrorOf(other, p.SessionRef.SessionID, core.YearMonth{Year: p.SessionRef.Year, Month: p.SessionRef.Month}) {
			return fmt.Errorf("user %s already has mirror %s for the period", p.UserID, id)
		}
	}
	return nil
}

func (v *view) DeletePersonalExpense(_ context.Context, id string) error {
	if _, ok := v.st.personal[id]; !ok {
		return core.NotFound("personal expense", id)
	}
	delete(v.st.personal, id)
	return nil
}

func (v *view) ListPersonalExpenses(_ context.Context, userID string) ([]core.PersonalExpense, error) {
	var out []core.PersonalExpense
	for _, p := range v.st.personal {
		if p.UserID == userID {
			out = append(out, clonePersonal(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) DeleteMirrorsForPeriod(_ context.Context, sessionID string, ym core.YearMonth, keepUserIDs []string) (int, error) {
	removed := 0
	for id, p := range v.st.personal {
		if mirrorOf(p, sessionID, ym) && !slices.Contains(keepUserIDs, p.UserID) {
			delete(v.st.personal, id)
			removed++
		}
	}
	return removed, nil
}

func (v *view) GetUser(_ context.Context, id string) (*core.User, error) {
	u, ok := v.st.users[id]
	if !ok {
		return nil, core.NotFound("user", id)
	}
	return &u, nil
}

func (v *view) SaveUser(_ context.Context, u core.User) error {
	if u.ID == "" {
		return core.Invalid("id", "must not be empty")
	}
	v.st.users[u.ID] = u
	return nil
}

func mirrorOf(p core.PersonalExpense, sessionID string, ym core.YearMonth) bool {
	return p.IsFromSharedSession && p.SessionRef != nil &&
		p.SessionRef.SessionID == sessionID &&
		p.SessionRef.Year == ym.Year && p.SessionRef.Month == ym.Month
}

func cloneSession(s *core.Session) *core.Session {
	c := *s
	c.Participants = append([]core.Participant(nil), s.Participants...)
	c.Months = make([]*core.Month, len(s.Months))
	for i, m := range s.Months {
		c.Months[i] = m.Clone()
	}
	return &c
}

func clonePersonal(p core.PersonalExpense) core.PersonalExpense {
	if p.SessionRef != nil {
		ref := *p.SessionRef
		p.SessionRef = &ref
	}
	return p
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
