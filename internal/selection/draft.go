package selection

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Majdabbassi/chellymobil-sub000/internal/models"
)

var (
	ErrInvalidBillingMode = errors.New("invalid billing mode")
	ErrNoBillingMode      = errors.New("billing mode not selected")
	ErrWrongBillingMode   = errors.New("operation not valid for billing mode")
	ErrUnknownAdherent    = errors.New("unknown adherent")
	ErrUnknownActivity    = errors.New("unknown activity")
	ErrNoActivitySelected = errors.New("no activity selected")
	ErrMonthAlreadyPaid   = errors.New("month already paid")
	ErrNoSessionOnDate    = errors.New("no session on date")
	ErrUnknownSession     = errors.New("unknown session")
	ErrDraftIncomplete    = errors.New("draft incomplete")
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrDraftSettled       = errors.New("draft already settled")
	ErrDraftClosed        = errors.New("draft closed")
)

// Data-set labels used for degraded-load markers and retry.
const (
	datasetAdherents  = "adherents"
	datasetGuardian   = "guardian"
	datasetActivities = "activities"
	datasetSessions   = "sessions"
	datasetPaidMonths = "paid_months"
)

// calendarWindow bounds the session-calendar query issued for per-session
// billing.
const calendarWindow = 90 * 24 * time.Hour

// ReferenceLoader is the slice of the club backend the draft needs. Satisfied
// by clubapi.Client; tests substitute stubs.
type ReferenceLoader interface {
	ListAdherents(ctx context.Context, token string) ([]models.Adherent, error)
	ListActivities(ctx context.Context, token string, mode models.BillingMode, adherentID int64) ([]models.Activity, error)
	GetGuardianContact(ctx context.Context, token string) (*models.GuardianContact, error)
	ListSessions(ctx context.Context, token string, activityID int64, from, to time.Time) ([]models.Session, error)
	ListPaidMonths(ctx context.Context, token string, activityID int64) ([]string, error)
}

// Draft is the selection state machine. All reads and writes go through its
// mutex; asynchronous load results are tagged with the generation of the
// selector they were issued for and discarded on arrival if that selector has
// since changed.
type Draft struct {
	mu     sync.Mutex
	loader ReferenceLoader
	token  string
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	mode          models.BillingMode
	selAdherents  []models.Adherent
	selActivities []models.Activity

	availableAdherents  []models.Adherent
	availableActivities []models.Activity
	guardian            *models.GuardianContact

	calendar        map[string][]models.Session
	selectedSession *models.Session
	sessionChoices  int

	selectedMonths []string
	paid           map[int64]map[string]struct{}

	activitiesGen uint64
	calendarGen   uint64
	paidGen       uint64

	degraded map[string]string

	state         models.DraftState
	failureReason string
}

// NewDraft creates a fresh draft bound to the guardian's backend token and
// kicks off the reference loads that every billing mode needs.
func NewDraft(loader ReferenceLoader, token string) *Draft {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Draft{
		loader:   loader,
		token:    token,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		calendar: map[string][]models.Session{},
		paid:     map[int64]map[string]struct{}{},
		degraded: map[string]string{},
		state:    models.StateIdle,
	}
	go d.loadAdherents()
	go d.loadGuardian()
	return d
}

// Close tears the draft down. In-flight load results arriving afterwards are
// discarded; no state mutates past this point.
func (d *Draft) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()
}

func (d *Draft) Token() string {
	return d.token
}

// SetBillingMode switches the draft's shape. The session pick and month list
// are always cleared; per-session billing additionally truncates the adherent
// selection to one, and the activity options are reloaded for the new mode.
func (d *Draft) SetBillingMode(mode models.BillingMode) error {
	d.mu.Lock()
	if err := d.mutableLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	if !mode.Valid() {
		d.mu.Unlock()
		return ErrInvalidBillingMode
	}

	d.mode = mode
	d.selectedSession = nil
	d.sessionChoices = 0
	d.selectedMonths = nil
	d.calendar = map[string][]models.Session{}
	d.paid = map[int64]map[string]struct{}{}
	if mode == models.PerSession && len(d.selAdherents) > 1 {
		d.selAdherents = d.selAdherents[:1]
	}

	d.activitiesGen++
	d.calendarGen++
	d.paidGen++
	activitiesGen := d.activitiesGen
	scope := d.activityScopeLocked()
	reloads := d.periodReloadsLocked()
	d.recomputeLocked()
	d.mu.Unlock()

	go d.loadActivities(activitiesGen, mode, scope)
	reloads()
	return nil
}

// SelectAdherent replaces the adherent under per-session billing and toggles
// membership under recurring billing. Recurring billing scopes the activity
// catalog to the adherent's enrollment, so the options reload.
func (d *Draft) SelectAdherent(adherentID int64) error {
	d.mu.Lock()
	if err := d.mutableLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	if d.mode == "" {
		d.mu.Unlock()
		return ErrNoBillingMode
	}
	adherent, ok := findAdherent(d.availableAdherents, adherentID)
	if !ok {
		d.mu.Unlock()
		return ErrUnknownAdherent
	}

	if d.mode == models.PerSession {
		d.selAdherents = []models.Adherent{adherent}
	} else {
		d.selAdherents = toggleAdherent(d.selAdherents, adherent)
	}

	var reload func()
	if d.mode.Recurring() {
		d.activitiesGen++
		gen := d.activitiesGen
		scope := d.activityScopeLocked()
		mode := d.mode
		reload = func() { go d.loadActivities(gen, mode, scope) }
	}
	d.recomputeLocked()
	d.mu.Unlock()

	if reload != nil {
		reload()
	}
	return nil
}

// ToggleActivity toggles membership in the selected activity set. Under
// per-session billing the calendar rebuilds for the new set; under recurring
// billing the paid-month guard reloads, invalidating any guard result still
// in flight for the previous set.
func (d *Draft) ToggleActivity(activityID int64) error {
	d.mu.Lock()
	if err := d.mutableLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	if d.mode == "" {
		d.mu.Unlock()
		return ErrNoBillingMode
	}
	activity, ok := findActivity(d.availableActivities, activityID)
	if !ok {
		d.mu.Unlock()
		return ErrUnknownActivity
	}

	d.selActivities = toggleActivity(d.selActivities, activity)

	if d.selectedSession != nil && !d.activitySelectedLocked(d.selectedSession.ActivityID) {
		d.selectedSession = nil
		d.sessionChoices = 0
	}
	for id := range d.paid {
		if !d.activitySelectedLocked(id) {
			delete(d.paid, id)
		}
	}

	reloads := d.periodReloadsLocked()
	d.recomputeLocked()
	d.mu.Unlock()

	reloads()
	return nil
}

// periodReloadsLocked bumps the period-data generations and returns a func
// that reissues the loads for the current selection: calendars per selected
// activity under per-session billing, paid months per selected activity under
// recurring billing.
func (d *Draft) periodReloadsLocked() func() {
	ids := make([]int64, 0, len(d.selActivities))
	for _, a := range d.selActivities {
		ids = append(ids, a.ID)
	}

	switch {
	case d.mode == models.PerSession:
		d.calendarGen++
		d.calendar = map[string][]models.Session{}
		gen := d.calendarGen
		return func() {
			for _, id := range ids {
				go d.loadCalendar(gen, id)
			}
		}
	case d.mode.Recurring():
		d.paidGen++
		gen := d.paidGen
		missing := make([]int64, 0, len(ids))
		for _, id := range ids {
			if _, ok := d.paid[id]; !ok {
				missing = append(missing, id)
			}
		}
		return func() {
			for _, id := range missing {
				go d.loadPaidMonths(gen, id)
			}
		}
	default:
		return func() {}
	}
}

// PickDate resolves the session for a calendar date. When several sessions
// share the date, the first one the backend returned is taken and the choice
// count is recorded so the caller can offer PickSession for explicit
// disambiguation.
func (d *Draft) PickDate(date string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mutableLocked(); err != nil {
		return err
	}
	if d.mode != models.PerSession {
		return ErrWrongBillingMode
	}
	sessions := d.calendar[date]
	if len(sessions) == 0 {
		return ErrNoSessionOnDate
	}
	chosen := sessions[0]
	d.selectedSession = &chosen
	d.sessionChoices = len(sessions)
	d.recomputeLocked()
	return nil
}

// PickSession selects a specific session on a date that hosts several.
func (d *Draft) PickSession(date string, sessionID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mutableLocked(); err != nil {
		return err
	}
	if d.mode != models.PerSession {
		return ErrWrongBillingMode
	}
	sessions := d.calendar[date]
	if len(sessions) == 0 {
		return ErrNoSessionOnDate
	}
	for _, s := range sessions {
		if s.ID == sessionID {
			chosen := s
			d.selectedSession = &chosen
			d.sessionChoices = len(sessions)
			d.recomputeLocked()
			return nil
		}
	}
	return ErrUnknownSession
}

// ToggleMonth toggles a month label under recurring billing. A month the
// paid-period guard knows as settled for any selected activity is refused
// with ErrMonthAlreadyPaid instead of silently toggling.
func (d *Draft) ToggleMonth(month string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mutableLocked(); err != nil {
		return err
	}
	if !d.mode.Recurring() {
		return ErrWrongBillingMode
	}
	if len(d.selActivities) == 0 {
		return ErrNoActivitySelected
	}
	if d.monthPaidLocked(month) {
		return ErrMonthAlreadyPaid
	}

	for i, m := range d.selectedMonths {
		if m == month {
			d.selectedMonths = append(d.selectedMonths[:i], d.selectedMonths[i+1:]...)
			d.recomputeLocked()
			return nil
		}
	}
	d.selectedMonths = append(d.selectedMonths, month)
	d.recomputeLocked()
	return nil
}

// IsComplete reports whether the draft can be submitted: per-session billing
// needs exactly one adherent and a resolved session; recurring billing needs
// an adherent, at least one activity and at least one month.
func (d *Draft) IsComplete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completeLocked()
}

func (d *Draft) completeLocked() bool {
	switch {
	case d.mode == models.PerSession:
		return len(d.selAdherents) == 1 && d.selectedSession != nil
	case d.mode.Recurring():
		return len(d.selAdherents) >= 1 && len(d.selActivities) >= 1 && len(d.selectedMonths) >= 1
	default:
		return false
	}
}

// BeginSubmit moves the draft to Submitting. While in flight, further submit
// attempts fail with ErrSubmissionInFlight; this is the single-flight layer
// on top of the idempotency key.
func (d *Draft) BeginSubmit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDraftClosed
	}
	switch d.state {
	case models.StateSubmitting:
		return ErrSubmissionInFlight
	case models.StateSettled:
		return ErrDraftSettled
	}
	if !d.completeLocked() {
		return ErrDraftIncomplete
	}
	d.state = models.StateSubmitting
	d.failureReason = ""
	return nil
}

// FinishSettled marks the submission successful. The draft is terminal after
// this; the manager discards it.
func (d *Draft) FinishSettled() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = models.StateSettled
}

// FinishFailed records a failed submission with a human-readable reason. The
// selection is preserved so the user can correct and resubmit.
func (d *Draft) FinishFailed(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = models.StateFailed
	d.failureReason = reason
}

// Snapshot returns an immutable copy of the current selection.
func (d *Draft) Snapshot() models.PaymentDraft {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Draft) snapshotLocked() models.PaymentDraft {
	snap := models.PaymentDraft{
		BillingMode:    d.mode,
		Adherents:      append([]models.Adherent(nil), d.selAdherents...),
		Activities:     append([]models.Activity(nil), d.selActivities...),
		SessionChoices: d.sessionChoices,
		SelectedMonths: append([]string(nil), d.selectedMonths...),
		State:          d.state,
		FailureReason:  d.failureReason,
	}
	if d.selectedSession != nil {
		session := *d.selectedSession
		snap.SelectedSession = &session
	}
	return snap
}

// View is the full screen-facing state: the draft plus the option lists and
// guard data the client renders against.
type View struct {
	Draft               models.PaymentDraft        `json:"draft"`
	AvailableAdherents  []models.Adherent          `json:"available_adherents"`
	AvailableActivities []models.Activity          `json:"available_activities"`
	Calendar            map[string][]models.Session `json:"calendar,omitempty"`
	PaidMonths          map[int64][]string         `json:"paid_months,omitempty"`
	Guardian            *models.GuardianContact    `json:"guardian,omitempty"`
	Degraded            map[string]string          `json:"degraded,omitempty"`
}

func (d *Draft) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := View{
		Draft:               d.snapshotLocked(),
		AvailableAdherents:  append([]models.Adherent(nil), d.availableAdherents...),
		AvailableActivities: append([]models.Activity(nil), d.availableActivities...),
	}
	if d.guardian != nil {
		guardian := *d.guardian
		v.Guardian = &guardian
	}
	if len(d.calendar) > 0 {
		v.Calendar = map[string][]models.Session{}
		for date, sessions := range d.calendar {
			v.Calendar[date] = append([]models.Session(nil), sessions...)
		}
	}
	if len(d.paid) > 0 {
		v.PaidMonths = map[int64][]string{}
		for id, set := range d.paid {
			months := make([]string, 0, len(set))
			for m := range set {
				months = append(months, m)
			}
			sort.Strings(months)
			v.PaidMonths[id] = months
		}
	}
	if len(d.degraded) > 0 {
		v.Degraded = map[string]string{}
		for k, reason := range d.degraded {
			v.Degraded[k] = reason
		}
	}
	return v
}

// Guardian returns the loaded guardian contact, if any.
func (d *Draft) Guardian() *models.GuardianContact {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.guardian == nil {
		return nil
	}
	guardian := *d.guardian
	return &guardian
}

// PaidMonthsFor returns the guard's cached set for an activity.
func (d *Draft) PaidMonthsFor(activityID int64) map[string]struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.paid[activityID]
	if !ok {
		return nil
	}
	out := make(map[string]struct{}, len(set))
	for m := range set {
		out[m] = struct{}{}
	}
	return out
}

// RetryLoads reissues every load whose last attempt degraded, under the
// current selectors.
func (d *Draft) RetryLoads() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	var retries []func()
	if _, ok := d.degraded[datasetAdherents]; ok {
		retries = append(retries, func() { go d.loadAdherents() })
	}
	if _, ok := d.degraded[datasetGuardian]; ok {
		retries = append(retries, func() { go d.loadGuardian() })
	}
	if _, ok := d.degraded[datasetActivities]; ok && d.mode != "" {
		d.activitiesGen++
		gen := d.activitiesGen
		mode := d.mode
		scope := d.activityScopeLocked()
		retries = append(retries, func() { go d.loadActivities(gen, mode, scope) })
	}
	_, sessionsDegraded := d.degraded[datasetSessions]
	_, paidDegraded := d.degraded[datasetPaidMonths]
	if sessionsDegraded || paidDegraded {
		// Force the guard cache to refill as well.
		d.paid = map[int64]map[string]struct{}{}
		retries = append(retries, d.periodReloadsLocked())
	}
	d.mu.Unlock()

	for _, retry := range retries {
		retry()
	}
}

func (d *Draft) mutableLocked() error {
	switch {
	case d.closed:
		return ErrDraftClosed
	case d.state == models.StateSubmitting:
		return ErrSubmissionInFlight
	case d.state == models.StateSettled:
		return ErrDraftSettled
	}
	return nil
}

// activityScopeLocked is the adherent the enrollment-scoped activity query
// runs for: the most recently selected one.
func (d *Draft) activityScopeLocked() int64 {
	if len(d.selAdherents) == 0 {
		return 0
	}
	return d.selAdherents[len(d.selAdherents)-1].ID
}

func (d *Draft) activitySelectedLocked(activityID int64) bool {
	for _, a := range d.selActivities {
		if a.ID == activityID {
			return true
		}
	}
	return false
}

func (d *Draft) monthPaidLocked(month string) bool {
	for _, a := range d.selActivities {
		if set, ok := d.paid[a.ID]; ok {
			if _, paid := set[month]; paid {
				return true
			}
		}
	}
	return false
}

// recomputeLocked rederives the lifecycle state from the selection. It never
// runs a submission state forward; checkout owns Submitting and its exits.
func (d *Draft) recomputeLocked() {
	switch d.state {
	case models.StateSubmitting, models.StateSettled:
		return
	}
	switch {
	case d.mode == "":
		if d.availableAdherents == nil && d.guardian == nil {
			d.state = models.StateIdle
		} else {
			d.state = models.StateSelectingMode
		}
	case len(d.selAdherents) == 0:
		d.state = models.StateSelectingAdherent
	case len(d.selActivities) == 0:
		d.state = models.StateSelectingActivity
	case !d.completeLocked():
		d.state = models.StateSelectingPeriod
	default:
		d.state = models.StateReady
	}
}

func findAdherent(list []models.Adherent, id int64) (models.Adherent, bool) {
	for _, a := range list {
		if a.ID == id {
			return a, true
		}
	}
	return models.Adherent{}, false
}

func findActivity(list []models.Activity, id int64) (models.Activity, bool) {
	for _, a := range list {
		if a.ID == id {
			return a, true
		}
	}
	return models.Activity{}, false
}

func toggleAdherent(list []models.Adherent, a models.Adherent) []models.Adherent {
	for i, existing := range list {
		if existing.ID == a.ID {
			return append(list[:i], list[i+1:]...)
		}
	}
	return append(list, a)
}

func toggleActivity(list []models.Activity, a models.Activity) []models.Activity {
	for i, existing := range list {
		if existing.ID == a.ID {
			return append(list[:i], list[i+1:]...)
		}
	}
	return append(list, a)
}

func (d *Draft) loadAdherents() {
	adherents, err := d.loader.ListAdherents(d.ctx, d.token)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if err != nil {
		log.Printf("load adherents failed: %v", err)
		d.degraded[datasetAdherents] = err.Error()
		d.availableAdherents = []models.Adherent{}
		d.recomputeLocked()
		return
	}
	delete(d.degraded, datasetAdherents)
	d.availableAdherents = adherents
	d.recomputeLocked()
}

func (d *Draft) loadGuardian() {
	guardian, err := d.loader.GetGuardianContact(d.ctx, d.token)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if err != nil {
		log.Printf("load guardian contact failed: %v", err)
		d.degraded[datasetGuardian] = err.Error()
		d.recomputeLocked()
		return
	}
	delete(d.degraded, datasetGuardian)
	d.guardian = guardian
	d.recomputeLocked()
}

func (d *Draft) loadActivities(gen uint64, mode models.BillingMode, adherentID int64) {
	activities, err := d.loader.ListActivities(d.ctx, d.token, mode, adherentID)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || gen != d.activitiesGen {
		return
	}
	if err != nil {
		log.Printf("load activities failed (mode=%s): %v", mode, err)
		d.degraded[datasetActivities] = err.Error()
		d.availableActivities = []models.Activity{}
		d.recomputeLocked()
		return
	}
	delete(d.degraded, datasetActivities)
	d.availableActivities = activities

	// Prune selected activities that are not offered under the new list,
	// and anything hanging off them.
	kept := d.selActivities[:0]
	for _, selected := range d.selActivities {
		if _, ok := findActivity(activities, selected.ID); ok {
			kept = append(kept, selected)
		}
	}
	d.selActivities = kept
	if d.selectedSession != nil && !d.activitySelectedLocked(d.selectedSession.ActivityID) {
		d.selectedSession = nil
		d.sessionChoices = 0
	}
	for id := range d.paid {
		if !d.activitySelectedLocked(id) {
			delete(d.paid, id)
		}
	}
	d.recomputeLocked()
}

func (d *Draft) loadCalendar(gen uint64, activityID int64) {
	from := d.now()
	sessions, err := d.loader.ListSessions(d.ctx, d.token, activityID, from, from.Add(calendarWindow))
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || gen != d.calendarGen || !d.activitySelectedLocked(activityID) {
		return
	}
	if err != nil {
		log.Printf("load sessions failed (activity=%d): %v", activityID, err)
		d.degraded[datasetSessions] = err.Error()
		return
	}
	delete(d.degraded, datasetSessions)
	for _, session := range sessions {
		key := session.DateKey()
		d.calendar[key] = append(d.calendar[key], session)
	}
	d.recomputeLocked()
}

func (d *Draft) loadPaidMonths(gen uint64, activityID int64) {
	months, err := d.loader.ListPaidMonths(d.ctx, d.token, activityID)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || gen != d.paidGen || !d.activitySelectedLocked(activityID) {
		return
	}
	if err != nil {
		log.Printf("load paid months failed (activity=%d): %v", activityID, err)
		d.degraded[datasetPaidMonths] = err.Error()
		return
	}
	delete(d.degraded, datasetPaidMonths)
	set := make(map[string]struct{}, len(months))
	for _, m := range months {
		set[m] = struct{}{}
	}
	d.paid[activityID] = set

	// A month selected before the guard answered may now be known paid.
	kept := d.selectedMonths[:0]
	for _, m := range d.selectedMonths {
		if !d.monthPaidLocked(m) {
			kept = append(kept, m)
		}
	}
	d.selectedMonths = kept
	d.recomputeLocked()
}
