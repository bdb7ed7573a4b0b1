package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotkeeper/server/internal/model"
)

type fakeSource struct {
	lines   []model.StockLine
	reports []model.Report
	err     error
}

func (f *fakeSource) Summary(context.Context) ([]model.StockLine, error) {
	return f.lines, f.err
}

func (f *fakeSource) ListReports(_ context.Context, unresolvedOnly bool) ([]model.Report, error) {
	if !unresolvedOnly {
		return nil, errors.New("digest must only read unresolved reports")
	}
	return f.reports, nil
}

type fakeSender struct {
	subjects []string
	bodies   []string
	err      error
}

func (f *fakeSender) Send(_ context.Context, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	return nil
}

func TestWarnings(t *testing.T) {
	rep := model.Report{ID: uuid.New(), AccountID: uuid.New(), Reason: "locked out", OperatorName: "op"}
	src := &fakeSource{
		lines: []model.StockLine{
			{Platform: model.PlatformDisney, Tier: model.TierPrivate, Available: 0, Accounts: 1},
			{Platform: model.PlatformNetflix, Tier: model.TierSharing, Available: 3, Accounts: 1},
			{Platform: model.PlatformNetflix, Tier: model.TierVIP, Available: 4, Accounts: 1},
		},
		reports: []model.Report{rep},
	}

	warnings, err := NewChecker(src, 3).Warnings(context.Background())
	require.NoError(t, err)
	require.Len(t, warnings, 3)

	assert.Equal(t, KindLowStock, warnings[0].Kind)
	assert.Contains(t, warnings[0].Message, "out of stock")
	assert.Equal(t, model.PlatformNetflix, warnings[1].Platform)
	require.NotNil(t, warnings[1].Available)
	assert.Equal(t, 3, *warnings[1].Available)

	assert.Equal(t, KindUnresolvedReport, warnings[2].Kind)
	assert.Equal(t, rep.ID.String(), warnings[2].ReportID)
	assert.Contains(t, warnings[2].Message, "locked out")
}

func TestWarningsEmpty(t *testing.T) {
	warnings, err := NewChecker(&fakeSource{}, 3).Warnings(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, warnings)
	assert.Empty(t, warnings)
}

func TestWarningsSourceError(t *testing.T) {
	_, err := NewChecker(&fakeSource{err: errors.New("db down")}, 3).Warnings(context.Background())
	assert.Error(t, err)
}

func TestDigestMailsOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{lines: []model.StockLine{{Platform: model.PlatformPrime, Tier: model.TierVIP, Available: 1}}}
	sender := &fakeSender{}
	d := NewDigest(NewChecker(src, 2), sender, time.Hour, nil)

	sent, err := d.Check(ctx)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "[slotkeeper] 1 warnings", sender.subjects[0])
	assert.True(t, strings.Contains(sender.bodies[0], "prime/vip"))

	sent, err = d.Check(ctx)
	require.NoError(t, err)
	assert.False(t, sent, "unchanged set is not mailed twice")

	src.lines[0].Available = 0
	sent, err = d.Check(ctx)
	require.NoError(t, err)
	assert.True(t, sent)

	src.lines = nil
	sent, err = d.Check(ctx)
	require.NoError(t, err)
	assert.False(t, sent, "empty set is never mailed")

	src.lines = []model.StockLine{{Platform: model.PlatformPrime, Tier: model.TierVIP, Available: 0}}
	sent, err = d.Check(ctx)
	require.NoError(t, err)
	assert.True(t, sent, "a recurring warning is mailed again")
	assert.Len(t, sender.subjects, 3)
}

func TestDigestRetriesAfterSendFailure(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{lines: []model.StockLine{{Platform: model.PlatformHBO, Tier: model.TierPrivate, Available: 0}}}
	sender := &fakeSender{err: errors.New("relay refused")}
	d := NewDigest(NewChecker(src, 2), sender, time.Hour, nil)

	_, err := d.Check(ctx)
	assert.Error(t, err)

	sender.err = nil
	sent, err := d.Check(ctx)
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestDigestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{lines: []model.StockLine{{Platform: model.PlatformHBO, Tier: model.TierPrivate, Available: 0}}}
	sender := &fakeSender{}
	d := NewDigest(NewChecker(src, 2), sender, time.Hour, nil)

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.last != ""
	}, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSMTPSettingsEnabled(t *testing.T) {
	assert.False(t, SMTPSettings{}.Enabled())
	assert.False(t, SMTPSettings{Host: "smtp.example.com", From: "a@example.com"}.Enabled())
	assert.True(t, SMTPSettings{Host: "smtp.example.com", From: "a@example.com", To: []string{"ops@example.com"}}.Enabled())
}
