package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/test/assert"

	"KayaAttend/internal/model"
	pkgerrors "KayaAttend/pkg/errors"
	"KayaAttend/pkg/webhook"
)

// 2024-03-05 14:30:00 ACDT
var scenarioInstant = time.Date(2024, time.March, 5, 4, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, gateway webhook.Client) *AttendanceService {
	t.Helper()

	clock, err := NewClockSource("Australia/Adelaide")
	assert.Nil(t, err)
	clock.WithNow(func() time.Time { return scenarioInstant })

	svc := NewAttendanceService(AttendanceOptions{
		Clock:         clock,
		Gateway:       gateway,
		IdleTimeout:   time.Minute,
		SubmitTimeout: 2 * time.Second,
	})
	t.Cleanup(svc.Shutdown)
	return svc
}

func fillForm(t *testing.T, svc *AttendanceService, slug, name string, status model.AttendanceStatus) int64 {
	t.Helper()

	snap, err := svc.OpenForm(context.Background(), slug)
	assert.Nil(t, err)

	_, err = svc.SetFullName(snap.ID, name)
	assert.Nil(t, err)
	_, err = svc.SetStatus(snap.ID, status)
	assert.Nil(t, err)
	_, err = svc.RequestSubmit(snap.ID)
	assert.Nil(t, err)

	return snap.ID
}

func TestAttendanceScenarioWebhookBody(t *testing.T) {
	var (
		mu   sync.Mutex
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(raw)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gateway, err := webhook.NewHTTPClient(srv.URL, 2*time.Second)
	assert.Nil(t, err)

	svc := newTestService(t, gateway)
	id := fillForm(t, svc, "stirling-library", "Jane Doe", model.AttendanceStatusSignIn)

	snap, err := svc.Confirm(context.Background(), id)
	assert.Nil(t, err)

	mu.Lock()
	assert.DeepEqual(t,
		`{"site":"Stirling Library","name":"Jane Doe","attendance":"Sign In","date":"05/03/2024","time":"2:30PM"}`,
		body,
	)
	mu.Unlock()

	assert.DeepEqual(t, model.FormStateEditing, snap.State)
	assert.DeepEqual(t, model.NoticeSuccess, snap.Notice.Kind)
	assert.DeepEqual(t, "14:30:00 ACDT", snap.Notice.DisplayTime)
	assert.DeepEqual(t, model.AttendanceDraft{}, snap.Draft)
	assert.DeepEqual(t, model.TouchedFlags{}, snap.Touched)
}

func TestAttendanceValidationBlocksGateway(t *testing.T) {
	gateway := webhook.NewMockClient()
	svc := newTestService(t, gateway)

	snap, err := svc.OpenForm(context.Background(), "woodside-library")
	assert.Nil(t, err)
	assert.DeepEqual(t, "12", snap.Site.ID)

	snap, err = svc.RequestSubmit(snap.ID)
	fields, ok := IsValidationError(err)
	assert.Assert(t, ok)
	assert.DeepEqual(t, 2, len(fields))
	assert.DeepEqual(t, model.FieldRequiredMessage, snap.FieldErrors[model.FieldFullName])

	_, err = svc.Confirm(context.Background(), snap.ID)
	assert.DeepEqual(t, pkgerrors.InvalidTransition, err)
	assert.DeepEqual(t, 0, len(gateway.Calls()))
}

func TestAttendanceDoubleConfirmSingleCall(t *testing.T) {
	gateway := webhook.NewMockClient()
	release, started := gateway.Block()

	svc := newTestService(t, gateway)
	id := fillForm(t, svc, "stirling-library", "Jane Doe", model.AttendanceStatusSignOut)

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = svc.Confirm(context.Background(), id)
	}()

	<-started

	snap, err := svc.Confirm(context.Background(), id)
	assert.DeepEqual(t, pkgerrors.SubmissionInProgress, err)
	assert.DeepEqual(t, model.FormStateSubmitting, snap.State)

	release()
	wg.Wait()

	assert.Nil(t, firstErr)
	assert.DeepEqual(t, 1, len(gateway.Calls()))
}

func TestAttendanceFailurePreservesDraft(t *testing.T) {
	gateway := webhook.NewMockClient()
	gateway.FailWith(&webhook.StatusError{StatusCode: http.StatusBadGateway})

	svc := newTestService(t, gateway)
	id := fillForm(t, svc, "garrod-offices", "Jane Doe", model.AttendanceStatusSignIn)

	snap, err := svc.Confirm(context.Background(), id)
	assert.Assert(t, errors.Is(err, pkgerrors.SubmissionFailed))
	assert.DeepEqual(t, model.FormStateEditing, snap.State)
	assert.DeepEqual(t, model.NoticeFailure, snap.Notice.Kind)
	assert.DeepEqual(t, "Jane Doe", snap.Draft.FullName)
	assert.DeepEqual(t, model.AttendanceStatusSignIn, snap.Draft.Status)

	// 手动重试是一次新的调用
	gateway.FailWith(nil)
	_, err = svc.Dismiss(id)
	assert.Nil(t, err)
	_, err = svc.RequestSubmit(id)
	assert.Nil(t, err)
	_, err = svc.Confirm(context.Background(), id)
	assert.Nil(t, err)
	assert.DeepEqual(t, 2, len(gateway.Calls()))
}

func TestAttendanceConfirmIgnoresRequestCancellation(t *testing.T) {
	gateway := webhook.NewMockClient()
	svc := newTestService(t, gateway)
	id := fillForm(t, svc, "heathfield-depot", "Jane Doe", model.AttendanceStatusSignIn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Confirm(ctx, id)
	assert.Nil(t, err)
	assert.DeepEqual(t, 1, len(gateway.Calls()))
}

func TestAttendanceEventPublished(t *testing.T) {
	gateway := webhook.NewMockClient()

	clock, err := NewClockSource("Australia/Adelaide")
	assert.Nil(t, err)
	clock.WithNow(func() time.Time { return scenarioInstant })

	published := make(chan model.SubmissionRecord, 1)
	svc := NewAttendanceService(AttendanceOptions{
		Clock:   clock,
		Gateway: gateway,
		Publisher: func(ctx context.Context, formID int64, record model.SubmissionRecord) error {
			published <- record
			return errors.New("broker down")
		},
	})
	defer svc.Shutdown()

	id := fillForm(t, svc, "stirling-offices", "Jane Doe", model.AttendanceStatusSignIn)

	// 发布失败不影响提交结果
	snap, err := svc.Confirm(context.Background(), id)
	assert.Nil(t, err)
	assert.DeepEqual(t, model.NoticeSuccess, snap.Notice.Kind)

	select {
	case record := <-published:
		assert.DeepEqual(t, "Stirling Offices", record.Site)
	case <-time.After(time.Second):
		t.Fatal("event was not published")
	}
}

func TestAttendanceUnknownSiteAndForm(t *testing.T) {
	svc := newTestService(t, webhook.NewMockClient())

	_, err := svc.OpenForm(context.Background(), "nowhere")
	assert.DeepEqual(t, pkgerrors.SiteNotFound, err)

	_, err = svc.Form(999)
	assert.DeepEqual(t, pkgerrors.FormNotFound, err)
	assert.DeepEqual(t, pkgerrors.FormNotFound, svc.CloseForm(999))
}

func TestAttendanceCloseAndEvict(t *testing.T) {
	svc := newTestService(t, webhook.NewMockClient())

	now := scenarioInstant
	svc.now = func() time.Time { return now }

	first, err := svc.OpenForm(context.Background(), "stirling-library")
	assert.Nil(t, err)
	second, err := svc.OpenForm(context.Background(), "woodside-offices")
	assert.Nil(t, err)
	assert.DeepEqual(t, 2, svc.ActiveForms())

	assert.Nil(t, svc.CloseForm(first.ID))
	_, err = svc.Form(first.ID)
	assert.DeepEqual(t, pkgerrors.FormNotFound, err)

	now = now.Add(30 * time.Second)
	assert.DeepEqual(t, 0, svc.EvictIdle())

	now = now.Add(time.Minute)
	assert.DeepEqual(t, 1, svc.EvictIdle())
	assert.DeepEqual(t, 0, svc.ActiveForms())

	_, err = svc.Form(second.ID)
	assert.DeepEqual(t, pkgerrors.FormSessionExpired, err)
}

func TestAttendanceEvictSkipsSubmitting(t *testing.T) {
	gateway := webhook.NewMockClient()
	release, started := gateway.Block()

	svc := newTestService(t, gateway)
	now := scenarioInstant
	var nowMu sync.Mutex
	svc.now = func() time.Time {
		nowMu.Lock()
		defer nowMu.Unlock()
		return now
	}

	id := fillForm(t, svc, "stirling-library", "Jane Doe", model.AttendanceStatusSignIn)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Confirm(context.Background(), id)
		done <- err
	}()
	<-started

	nowMu.Lock()
	now = now.Add(time.Hour)
	nowMu.Unlock()

	assert.DeepEqual(t, 0, svc.EvictIdle())

	release()
	assert.Nil(t, <-done)
}

func TestAttendanceResultDiscardedAfterClose(t *testing.T) {
	gateway := webhook.NewMockClient()
	release, started := gateway.Block()

	svc := newTestService(t, gateway)
	id := fillForm(t, svc, "stirling-library", "Jane Doe", model.AttendanceStatusSignIn)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Confirm(context.Background(), id)
		done <- err
	}()
	<-started

	assert.Nil(t, svc.CloseForm(id))
	release()

	assert.DeepEqual(t, pkgerrors.FormSessionExpired, <-done)
}

func TestAttendanceNoPublishAfterShutdown(t *testing.T) {
	clock, err := NewClockSource("Australia/Adelaide")
	assert.Nil(t, err)

	var (
		mu    sync.Mutex
		calls int
	)
	svc := NewAttendanceService(AttendanceOptions{
		Clock:   clock,
		Gateway: webhook.NewMockClient(),
		Publisher: func(ctx context.Context, formID int64, record model.SubmissionRecord) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil
		},
	})
	svc.Shutdown()

	// 关闭后到达的提交结果不再登记发布
	svc.publishRecorded(context.Background(), 1, model.SubmissionRecord{Site: "Stirling Library"})
	svc.events.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.DeepEqual(t, 0, calls)
}
