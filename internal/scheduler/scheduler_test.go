package scheduler

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyuren/calendarsvc/internal/audit"
)

type fakeGenerator struct {
	calls []string
}

func (f *fakeGenerator) Generate(ctx context.Context, templateName string, trigger audit.Trigger) (string, error) {
	f.calls = append(f.calls, templateName)
	return templateName + ".jpg", nil
}

func TestCronSpecs_Daily(t *testing.T) {
	specs, err := cronSpecs(Config{Mode: ModeDaily, DailyTimes: []string{"07:30", "18:05"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"30 7 * * *", "5 18 * * *"}, specs)
}

func TestCronSpecs_Hourly(t *testing.T) {
	specs, err := cronSpecs(Config{Mode: ModeHourly, MinuteOfHour: 15})
	require.NoError(t, err)
	assert.Equal(t, []string{"15 * * * *"}, specs)
}

func TestCronSpecs_DailyRequiresTimes(t *testing.T) {
	_, err := cronSpecs(Config{Mode: ModeDaily})
	assert.Error(t, err)
}

func TestCronSpecs_HourlyRejectsOutOfRange(t *testing.T) {
	_, err := cronSpecs(Config{Mode: ModeHourly, MinuteOfHour: 60})
	assert.Error(t, err)
}

func TestCronSpecs_RejectsMalformedTime(t *testing.T) {
	_, err := cronSpecs(Config{Mode: ModeDaily, DailyTimes: []string{"9am"}})
	assert.Error(t, err)
}

func TestInstall_ReplacesPreviousEntriesForSameTemplate(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(gen, zerolog.Nop())

	require.NoError(t, s.Install(Config{Template: "moyuren", Mode: ModeDaily, DailyTimes: []string{"07:00"}}))
	assert.Len(t, s.entries["moyuren"], 1)

	require.NoError(t, s.Install(Config{Template: "moyuren", Mode: ModeDaily, DailyTimes: []string{"08:00", "20:00"}}))
	assert.Len(t, s.entries["moyuren"], 2, "re-installing must replace, not append, entries")
}

func TestFire_InvokesGeneratorWithScheduledTrigger(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(gen, zerolog.Nop())

	s.fire("moyuren")
	require.Len(t, gen.calls, 1)
	assert.Equal(t, "moyuren", gen.calls[0])
}
