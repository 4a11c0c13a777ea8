package candidates

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
	"github.com/bookinghub/interpreter-assignment/internal/policy"
)

type fakeDirectory struct {
	profiles []domain.InterpreterProfile
}

func (f *fakeDirectory) ActiveInterpreters(context.Context) ([]domain.InterpreterProfile, error) {
	return f.profiles, nil
}

func (f *fakeDirectory) ActiveInterpretersInEnvironment(context.Context, int64) ([]domain.InterpreterProfile, error) {
	return f.profiles, nil
}

type fakeConflicts struct {
	busy map[string]int64
}

func (f *fakeConflicts) FindInterpreterConflict(_ context.Context, empCode string, _, _ time.Time, _ int64) (int64, bool, error) {
	id, ok := f.busy[empCode]
	return id, ok, nil
}

type fakeFairness struct {
	hours map[string]float64
}

func (f *fakeFairness) HoursByInterpreter(_ context.Context, scope []string, _ int, _ time.Time) (map[string]float64, error) {
	out := make(map[string]float64, len(scope))
	for _, code := range scope {
		out[code] = f.hours[code]
	}
	return out, nil
}

type fakeDRHistory struct {
	lastDR string
}

func (f *fakeDRHistory) LastDRInterpreter(context.Context, *int64) (string, error) {
	return f.lastDR, nil
}

func profile(code string, langs ...string) domain.InterpreterProfile {
	return domain.InterpreterProfile{EmpCode: code, IsActive: true, Languages: langs}
}

func testPolicy(mode domain.AssignmentMode) policy.EffectivePolicy {
	return policy.EffectivePolicy{
		Mode:                 mode,
		WFair:                1,
		WUrgency:             1,
		WLRS:                 0.5,
		FairnessWindowDays:   30,
		MaxGapHours:          10,
		DRConsecutivePenalty: -0.5,
		AutoAssignEnabled:    true,
	}
}

func testBooking(mt domain.MeetingType) *domain.Booking {
	start := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	return &domain.Booking{
		ID:          1,
		MeetingType: mt,
		TimeStart:   start,
		TimeEnd:     start.Add(time.Hour),
		Status:      domain.StatusWaiting,
	}
}

func newTestFilter(dir Directory, c ConflictSource, fs FairnessSource, dr DRHistory) *Filter {
	return NewFilter(dir, c, fs, dr, zap.NewNop())
}

func TestBuildLanguageFilter(t *testing.T) {
	f := newTestFilter(
		&fakeDirectory{profiles: []domain.InterpreterProfile{
			profile("00001", "en", "ja"),
			profile("00002", "en"),
		}},
		&fakeConflicts{},
		&fakeFairness{hours: map[string]float64{}},
		&fakeDRHistory{},
	)

	b := testBooking(domain.MeetingTypeGeneral)
	lang := "ja"
	b.LanguageCode = &lang

	res, err := f.Build(context.Background(), b, nil, testPolicy(domain.ModeNormal), Options{})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "00001", res.Candidates[0].Profile.EmpCode)
	assert.Equal(t, "language", res.Dropped["00002"])
}

func TestBuildAllConflict(t *testing.T) {
	f := newTestFilter(
		&fakeDirectory{profiles: []domain.InterpreterProfile{profile("00001"), profile("00002")}},
		&fakeConflicts{busy: map[string]int64{"00001": 10, "00002": 11}},
		&fakeFairness{hours: map[string]float64{}},
		&fakeDRHistory{},
	)

	res, err := f.Build(context.Background(), testBooking(domain.MeetingTypeGeneral), nil, testPolicy(domain.ModeNormal), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, ReasonAllConflict, res.EscalationReason)
}

func TestBuildNoCandidates(t *testing.T) {
	f := newTestFilter(
		&fakeDirectory{},
		&fakeConflicts{},
		&fakeFairness{},
		&fakeDRHistory{},
	)

	res, err := f.Build(context.Background(), testBooking(domain.MeetingTypeGeneral), nil, testPolicy(domain.ModeNormal), Options{})
	require.NoError(t, err)
	assert.Equal(t, ReasonNoCandidates, res.EscalationReason)
}

func TestBuildGuardrailDropsAndRelaxes(t *testing.T) {
	dir := &fakeDirectory{profiles: []domain.InterpreterProfile{profile("00001"), profile("00002")}}
	// 00001 is far ahead; one more hour pushes the projected gap past 10.
	fs := &fakeFairness{hours: map[string]float64{"00001": 16, "00002": 6}}

	f := newTestFilter(dir, &fakeConflicts{}, fs, &fakeDRHistory{})
	res, err := f.Build(context.Background(), testBooking(domain.MeetingTypeGeneral), nil, testPolicy(domain.ModeNormal), Options{})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "00002", res.Candidates[0].Profile.EmpCode)
	assert.Equal(t, "fairness-guardrail", res.Dropped["00001"])
	assert.False(t, res.GuardrailRelaxed)

	// When everyone fails the guardrail it relaxes instead of emptying.
	fs.hours = map[string]float64{"00001": 0, "00002": 20}
	res, err = f.Build(context.Background(), testBooking(domain.MeetingTypeGeneral), nil, testPolicy(domain.ModeNormal), Options{})
	require.NoError(t, err)
	assert.True(t, res.GuardrailRelaxed)
	assert.Len(t, res.Candidates, 2)
}

func TestBuildDRBlockUnderBalance(t *testing.T) {
	f := newTestFilter(
		&fakeDirectory{profiles: []domain.InterpreterProfile{profile("00001"), profile("00002")}},
		&fakeConflicts{},
		&fakeFairness{hours: map[string]float64{}},
		&fakeDRHistory{lastDR: "00001"},
	)

	res, err := f.Build(context.Background(), testBooking(domain.MeetingTypeDR), nil, testPolicy(domain.ModeBalance), Options{})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "00002", res.Candidates[0].Profile.EmpCode)
	assert.Equal(t, "dr-blocked", res.Dropped["00001"])
}

func TestBuildDROverrideWhenOnlyBlockedRemain(t *testing.T) {
	f := newTestFilter(
		&fakeDirectory{profiles: []domain.InterpreterProfile{profile("00001")}},
		&fakeConflicts{},
		&fakeFairness{hours: map[string]float64{}},
		&fakeDRHistory{lastDR: "00001"},
	)

	res, err := f.Build(context.Background(), testBooking(domain.MeetingTypeDR), nil, testPolicy(domain.ModeBalance), Options{})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.True(t, res.Candidates[0].DRDecision.OverrideApplied)
}

func TestBuildPinnedInterpreter(t *testing.T) {
	f := newTestFilter(
		&fakeDirectory{profiles: []domain.InterpreterProfile{profile("00001"), profile("00002")}},
		&fakeConflicts{},
		&fakeFairness{hours: map[string]float64{}},
		&fakeDRHistory{},
	)

	b := testBooking(domain.MeetingTypeGeneral)
	pinned := "00002"
	b.SelectedInterpreterEmpCode = &pinned

	res, err := f.Build(context.Background(), b, nil, testPolicy(domain.ModeNormal), Options{})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "00002", res.Candidates[0].Profile.EmpCode)

	// A pinned interpreter who fell out earlier empties the list.
	gone := "00009"
	b.SelectedInterpreterEmpCode = &gone
	res, err = f.Build(context.Background(), b, nil, testPolicy(domain.ModeNormal), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, ReasonNoCandidates, res.EscalationReason)
}

func TestBuildExcludeForRetry(t *testing.T) {
	f := newTestFilter(
		&fakeDirectory{profiles: []domain.InterpreterProfile{profile("00001"), profile("00002")}},
		&fakeConflicts{},
		&fakeFairness{hours: map[string]float64{}},
		&fakeDRHistory{},
	)

	res, err := f.Build(context.Background(), testBooking(domain.MeetingTypeGeneral), nil,
		testPolicy(domain.ModeNormal), Options{Exclude: []string{"00001"}})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "00002", res.Candidates[0].Profile.EmpCode)
}
