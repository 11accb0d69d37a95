// Package memory provides in-process repositories for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/progressreports/internal/domain"
	"example.com/progressreports/internal/persistence"
)

// Store keeps reports, cadence settings and activity records in memory.
type Store struct {
	mu       sync.RWMutex
	reports  map[string]domain.ProgressReport
	settings map[string]domain.CadenceSettings
	totals   map[string][]domain.DailyNutritionTotal
	goals    map[string]domain.NutritionGoals
	workouts map[string][]domain.CompletedWorkout
	profiles map[string]domain.UserProfile
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		reports:  make(map[string]domain.ProgressReport),
		settings: make(map[string]domain.CadenceSettings),
		totals:   make(map[string][]domain.DailyNutritionTotal),
		goals:    make(map[string]domain.NutritionGoals),
		workouts: make(map[string][]domain.CompletedWorkout),
		profiles: make(map[string]domain.UserProfile),
	}
}

// Create implements domain.ReportRepository.
func (s *Store) Create(_ context.Context, report *domain.ProgressReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.ID] = *report
	return nil
}

// Save implements domain.ReportRepository. is_read is owned by SetRead and left untouched.
func (s *Store) Save(_ context.Context, report *domain.ProgressReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.reports[report.ID]
	if !ok {
		return domain.ErrReportNotFound
	}
	updated := *report
	updated.IsRead = existing.IsRead
	s.reports[report.ID] = updated
	return nil
}

// Get implements domain.ReportRepository.
func (s *Store) Get(_ context.Context, userID, reportID string) (*domain.ProgressReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[reportID]
	if !ok || r.UserID != userID {
		return nil, nil
	}
	return &r, nil
}

// ListByUser implements domain.ReportRepository.
func (s *Store) ListByUser(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.ProgressReport, *domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.userReports(userID)
	if limit <= 0 {
		limit = len(items)
	}
	out := make([]domain.ProgressReport, 0, limit+1)
	for _, r := range items {
		if !persistence.Before(cursor, r.CreatedAt, r.ID) {
			continue
		}
		out = append(out, r)
		if len(out) == limit+1 {
			break
		}
	}

	var next *domain.Cursor
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return out, next, nil
}

// SetRead implements domain.ReportRepository.
func (s *Store) SetRead(_ context.Context, userID, reportID string, read bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[reportID]
	if !ok || r.UserID != userID {
		return false, nil
	}
	r.IsRead = read
	s.reports[reportID] = r
	return true, nil
}

// Delete implements domain.ReportRepository.
func (s *Store) Delete(_ context.Context, userID, reportID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[reportID]
	if !ok || r.UserID != userID {
		return false, nil
	}
	delete(s.reports, reportID)
	return true, nil
}

// ListUsersWithReports implements domain.ReportRepository.
func (s *Store) ListUsersWithReports(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, r := range s.reports {
		seen[r.UserID] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

// PruneUser implements domain.ReportRepository.
func (s *Store) PruneUser(_ context.Context, userID string, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.userReports(userID)
	if keep < 0 {
		keep = 0
	}
	if len(items) <= keep {
		return 0, nil
	}
	for _, r := range items[keep:] {
		delete(s.reports, r.ID)
	}
	return len(items) - keep, nil
}

// userReports returns the user's reports newest first. Callers hold the lock.
func (s *Store) userReports(userID string) []domain.ProgressReport {
	var items []domain.ProgressReport
	for _, r := range s.reports {
		if r.UserID == userID {
			items = append(items, r)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items
}

// SettingsStore adapts Store to domain.SettingsRepository, whose Get differs from the
// report repository's.
type SettingsStore struct{ *Store }

// Settings returns the settings view of the store.
func (s *Store) Settings() SettingsStore {
	return SettingsStore{s}
}

// Get implements domain.SettingsRepository.
func (s SettingsStore) Get(_ context.Context, userID string) (*domain.CadenceSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.settings[userID]
	if !ok {
		return nil, nil
	}
	return &settings, nil
}

// Upsert implements domain.SettingsRepository.
func (s SettingsStore) Upsert(_ context.Context, settings domain.CadenceSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settings.UserID] = settings
	return nil
}

// ListEnabled implements domain.SettingsRepository.
func (s SettingsStore) ListEnabled(_ context.Context) ([]domain.CadenceSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CadenceSettings, 0, len(s.settings))
	for _, settings := range s.settings {
		if settings.Enabled {
			out = append(out, settings)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// AddDailyTotal records a nutrition rollup.
func (s *Store) AddDailyTotal(total domain.DailyNutritionTotal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[total.UserID] = append(s.totals[total.UserID], total)
}

// AddWorkout records a completed workout.
func (s *Store) AddWorkout(w domain.CompletedWorkout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workouts[w.UserID] = append(s.workouts[w.UserID], w)
}

// PutProfile stores a profile.
func (s *Store) PutProfile(p domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

// DailyTotals implements aggregator.ActivitySource.
func (s *Store) DailyTotals(_ context.Context, userID string, from, to time.Time) ([]domain.DailyNutritionTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DailyNutritionTotal
	for _, t := range s.totals[userID] {
		if !t.Date.Before(from) && !t.Date.After(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Goals implements aggregator.ActivitySource.
func (s *Store) Goals(_ context.Context, userID string) (*domain.NutritionGoals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[userID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

// UpsertGoals stores computed nutrition goals.
func (s *Store) UpsertGoals(_ context.Context, goals domain.NutritionGoals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[goals.UserID] = goals
	return nil
}

// CompletedWorkouts implements aggregator.ActivitySource.
func (s *Store) CompletedWorkouts(_ context.Context, userID string, window domain.ReportingWindow) ([]domain.CompletedWorkout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CompletedWorkout
	for _, w := range s.workouts[userID] {
		if window.Contains(w.CompletedAt) {
			out = append(out, w)
		}
	}
	return out, nil
}

// Profile implements aggregator.ActivitySource.
func (s *Store) Profile(_ context.Context, userID string) (*domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Queue records enqueued jobs in memory.
type Queue struct {
	mu   sync.Mutex
	jobs []domain.ReportJob
}

// Enqueue implements domain.JobQueue.
func (q *Queue) Enqueue(_ context.Context, job domain.ReportJob, opts domain.JobOptions) (domain.ReportJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job = job.WithOptions(opts)
	q.jobs = append(q.jobs, job)
	return job, nil
}

// Jobs returns a copy of the enqueued jobs.
func (q *Queue) Jobs() []domain.ReportJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.ReportJob(nil), q.jobs...)
}
