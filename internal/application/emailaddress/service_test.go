package emailaddress

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-emailaddress/internal/domain"
	"github.com/go-emailaddress/internal/pkg/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockRepo struct{ mock.Mock }

func (m *mockRepo) Insert(ctx context.Context, e *domain.EmailAddress) (int64, error) {
	args := m.Called(ctx, e)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockRepo) Get(ctx context.Context, id int64) (*domain.EmailAddress, error) {
	args := m.Called(ctx, id)
	if e, _ := args.Get(0).(*domain.EmailAddress); e != nil {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRepo) ListByVerifiableDataID(ctx context.Context, vdID string) ([]domain.EmailAddress, error) {
	args := m.Called(ctx, vdID)
	list, _ := args.Get(0).([]domain.EmailAddress)
	return list, args.Error(1)
}
func (m *mockRepo) AttachVerifiableData(ctx context.Context, id int64, vdID string) error {
	return m.Called(ctx, id, vdID).Error(0)
}
func (m *mockRepo) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) CreateVerifiableData(ctx context.Context, validUntil time.Time, length int64, base domain.VerificationLengthBase) (*domain.VerifiableDataCreation, error) {
	args := m.Called(ctx, validUntil, length, base)
	c, _ := args.Get(0).(*domain.VerifiableDataCreation)
	return c, args.Error(1)
}
func (m *mockVerifier) CreateVerificationRequest(ctx context.Context, vdID string, validUntil time.Time, length int64, base domain.VerificationLengthBase) (*domain.VerificationRequest, error) {
	args := m.Called(ctx, vdID, validUntil, length, base)
	r, _ := args.Get(0).(*domain.VerificationRequest)
	return r, args.Error(1)
}
func (m *mockVerifier) InvalidateData(ctx context.Context, vdID string) error {
	return m.Called(ctx, vdID).Error(0)
}
func (m *mockVerifier) VerifyData(ctx context.Context, token string) (*domain.VerificationResult, error) {
	args := m.Called(ctx, token)
	r, _ := args.Get(0).(*domain.VerificationResult)
	return r, args.Error(1)
}
func (m *mockVerifier) VerifiedUntil(ctx context.Context, vdID string) (*time.Time, error) {
	args := m.Called(ctx, vdID)
	t, _ := args.Get(0).(*time.Time)
	return t, args.Error(1)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishVerification(ctx context.Context, ev domain.VerificationEvent) error {
	return m.Called(ctx, ev).Error(0)
}

// recordingLocker logs lock and release calls in order.
type recordingLocker struct {
	calls *[]string
	err   error
}

func (l recordingLocker) Acquire(_ context.Context, key string) (lock.Release, error) {
	if l.err != nil {
		return nil, l.err
	}
	*l.calls = append(*l.calls, "lock "+key)
	return func(context.Context) error {
		*l.calls = append(*l.calls, "release "+key)
		return nil
	}, nil
}

// --- builder ---

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(r *mockRepo, v *mockVerifier, ml *mockMailer, lk lock.Locker, ev *mockPublisher) Service {
	deps := ServiceDeps{
		Repo:        r,
		Verifier:    v,
		Mailer:      ml,
		Locker:      lk,
		MailFrom:    "noreply@example.com",
		MailSubject: "Verification email",
		Now:         func() time.Time { return fixedNow },
	}
	if ev != nil {
		deps.Events = ev
	}
	return NewService(deps)
}

func strPtr(s string) *string { return &s }

func validParams() domain.VerificationParams {
	return domain.VerificationParams{
		MessageTemplate:      strPtr("accept=$acceptToken reject=$rejectToken"),
		TokenValidityEndDate: fixedNow.Add(time.Hour),
		VerificationLength:   3600,
		LengthBase:           domain.LengthBaseVerification,
	}
}

// --- SaveEmailAddress ---

func TestSaveEmailAddress_Empty(t *testing.T) {
	svc := newService(&mockRepo{}, nil, nil, nil, nil)
	_, err := svc.SaveEmailAddress(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSaveEmailAddress_Invalid(t *testing.T) {
	r := &mockRepo{}
	svc := newService(r, nil, nil, nil, nil)
	_, err := svc.SaveEmailAddress(context.Background(), "test..2002@gmail.com")
	assert.ErrorIs(t, err, domain.ErrInvalidEmailAddress)
	r.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestSaveEmailAddress_Success(t *testing.T) {
	r := &mockRepo{}
	r.On("Insert", mock.Anything, mock.MatchedBy(func(e *domain.EmailAddress) bool {
		return e.EmailAddress == "test@yahoo.com" && e.VerifiableDataID == nil
	})).Return(int64(7), nil)

	svc := newService(r, nil, nil, nil, nil)
	id, err := svc.SaveEmailAddress(context.Background(), "test@yahoo.com")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestSaveEmailAddress_StoreError(t *testing.T) {
	r := &mockRepo{}
	boom := errors.New("boom")
	r.On("Insert", mock.Anything, mock.Anything).Return(int64(0), boom)

	svc := newService(r, nil, nil, nil, nil)
	_, err := svc.SaveEmailAddress(context.Background(), "test@yahoo.com")
	assert.ErrorIs(t, err, boom)
}

// --- CreateVerificationRequest ---

func TestCreateVerificationRequest_MissingArguments(t *testing.T) {
	cases := map[string]func(p *domain.VerificationParams){
		"template": func(p *domain.VerificationParams) { p.MessageTemplate = nil },
		"end date": func(p *domain.VerificationParams) { p.TokenValidityEndDate = time.Time{} },
		"base":     func(p *domain.VerificationParams) { p.LengthBase = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r, v, ml := &mockRepo{}, &mockVerifier{}, &mockMailer{}
			p := validParams()
			mutate(&p)
			err := newService(r, v, ml, nil, nil).CreateVerificationRequest(context.Background(), 1, p)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
			r.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
			ml.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateVerificationRequest_NonPositiveLength(t *testing.T) {
	for _, length := range []int64{0, -5} {
		p := validParams()
		p.VerificationLength = length
		err := newService(&mockRepo{}, nil, nil, nil, nil).CreateVerificationRequest(context.Background(), 1, p)
		assert.ErrorIs(t, err, domain.ErrNonPositiveVerificationLength)
	}
}

func TestCreateVerificationRequest_NoSuchRecord(t *testing.T) {
	r := &mockRepo{}
	r.On("Get", mock.Anything, int64(3)).Return(nil, domain.ErrNoSuchRecord)

	err := newService(r, nil, nil, nil, nil).CreateVerificationRequest(context.Background(), 3, validParams())
	assert.ErrorIs(t, err, domain.ErrNoSuchRecord)
}

func TestCreateVerificationRequest_FirstRequestAttachesBeforeMail(t *testing.T) {
	r, v, ml := &mockRepo{}, &mockVerifier{}, &mockMailer{}
	p := validParams()
	var order []string

	r.On("Get", mock.Anything, int64(1)).Return(&domain.EmailAddress{EmailAddressID: 1, EmailAddress: "test@yahoo.com"}, nil)
	v.On("CreateVerifiableData", mock.Anything, p.TokenValidityEndDate, int64(3600), domain.LengthBaseVerification).
		Return(&domain.VerifiableDataCreation{
			VerifiableDataID: "vd1",
			Request:          &domain.VerificationRequest{AcceptToken: "acc", RejectToken: "rej"},
		}, nil)
	r.On("AttachVerifiableData", mock.Anything, int64(1), "vd1").Return(nil).
		Run(func(mock.Arguments) { order = append(order, "attach") })
	ml.On("Send", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
		return m.To == "test@yahoo.com" &&
			m.From == "noreply@example.com" &&
			m.Subject == "Verification email" &&
			len(m.Parts) == 1 &&
			m.Parts[0].ContentType == "text/html" &&
			m.Parts[0].Body == "accept=acc reject=rej"
	})).Return(nil).Run(func(mock.Arguments) { order = append(order, "send") })

	err := newService(r, v, ml, nil, nil).CreateVerificationRequest(context.Background(), 1, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"attach", "send"}, order)
	ml.AssertExpectations(t)
}

func TestCreateVerificationRequest_LostAttachReusesWinningSubject(t *testing.T) {
	r, v, ml := &mockRepo{}, &mockVerifier{}, &mockMailer{}
	p := validParams()
	var calls []string

	r.On("Get", mock.Anything, int64(1)).Return(&domain.EmailAddress{EmailAddressID: 1, EmailAddress: "a@b.com"}, nil).Once()
	r.On("Get", mock.Anything, int64(1)).Return(&domain.EmailAddress{EmailAddressID: 1, EmailAddress: "a@b.com", VerifiableDataID: strPtr("winner")}, nil).Once()
	v.On("CreateVerifiableData", mock.Anything, p.TokenValidityEndDate, int64(3600), domain.LengthBaseVerification).
		Return(&domain.VerifiableDataCreation{
			VerifiableDataID: "loser",
			Request:          &domain.VerificationRequest{AcceptToken: "stale-acc", RejectToken: "stale-rej"},
		}, nil)
	r.On("AttachVerifiableData", mock.Anything, int64(1), "loser").
		Return(fmt.Errorf("email address 1: %w", domain.ErrVerifiableDataAttached))
	v.On("InvalidateData", mock.Anything, "loser").Return(nil)
	v.On("CreateVerificationRequest", mock.Anything, "winner", p.TokenValidityEndDate, int64(3600), domain.LengthBaseVerification).
		Return(&domain.VerificationRequest{AcceptToken: "acc", RejectToken: "rej"}, nil)
	ml.On("Send", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
		return m.Parts[0].Body == "accept=acc reject=rej"
	})).Return(nil)

	err := newService(r, v, ml, recordingLocker{calls: &calls}, nil).CreateVerificationRequest(context.Background(), 1, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"lock verifiable_data#loser", "release verifiable_data#loser"}, calls)
	v.AssertExpectations(t)
	ml.AssertExpectations(t)
}

func TestCreateVerificationRequest_AttachErrorPropagates(t *testing.T) {
	r, v, ml := &mockRepo{}, &mockVerifier{}, &mockMailer{}
	r.On("Get", mock.Anything, int64(1)).Return(&domain.EmailAddress{EmailAddressID: 1, EmailAddress: "a@b.com"}, nil)
	v.On("CreateVerifiableData", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.VerifiableDataCreation{VerifiableDataID: "vd1", Request: &domain.VerificationRequest{}}, nil)
	r.On("AttachVerifiableData", mock.Anything, int64(1), "vd1").Return(errors.New("throttled"))

	err := newService(r, v, ml, nil, nil).CreateVerificationRequest(context.Background(), 1, validParams())
	assert.ErrorContains(t, err, "throttled")
	ml.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestCreateVerificationRequest_ReusesSubject(t *testing.T) {
	r, v, ml := &mockRepo{}, &mockVerifier{}, &mockMailer{}
	p := validParams()
	r.On("Get", mock.Anything, int64(1)).Return(&domain.EmailAddress{EmailAddressID: 1, EmailAddress: "a@b.com", VerifiableDataID: strPtr("vd1")}, nil)
	v.On("CreateVerificationRequest", mock.Anything, "vd1", p.TokenValidityEndDate, int64(3600), domain.LengthBaseVerification).
		Return(&domain.VerificationRequest{AcceptToken: "acc", RejectToken: "rej"}, nil)
	ml.On("Send", mock.Anything, mock.Anything).Return(nil)

	err := newService(r, v, ml, nil, nil).CreateVerificationRequest(context.Background(), 1, p)
	require.NoError(t, err)
	v.AssertNotCalled(t, "CreateVerifiableData", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	r.AssertNotCalled(t, "AttachVerifiableData", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateVerificationRequest_EmptyTemplateStillMailed(t *testing.T) {
	r, v, ml := &mockRepo{}, &mockVerifier{}, &mockMailer{}
	p := validParams()
	p.MessageTemplate = strPtr("")
	r.On("Get", mock.Anything, int64(1)).Return(&domain.EmailAddress{EmailAddressID: 1, EmailAddress: "a@b.com", VerifiableDataID: strPtr("vd1")}, nil)
	v.On("CreateVerificationRequest", mock.Anything, "vd1", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.VerificationRequest{AcceptToken: "acc", RejectToken: "rej"}, nil)
	ml.On("Send", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool { return m.Parts[0].Body == "" })).Return(nil)

	require.NoError(t, newService(r, v, ml, nil, nil).CreateVerificationRequest(context.Background(), 1, p))
	ml.AssertExpectations(t)
}

func TestCreateVerificationRequest_EngineDeclinesIsSilent(t *testing.T) {
	r, v, ml := &mockRepo{}, &mockVerifier{}, &mockMailer{}
	r.On("Get", mock.Anything, int64(1)).Return(&domain.EmailAddress{EmailAddressID: 1, EmailAddress: "a@b.com"}, nil)
	v.On("CreateVerifiableData", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	err := newService(r, v, ml, nil, nil).CreateVerificationRequest(context.Background(), 1, validParams())
	require.NoError(t, err)
	r.AssertNotCalled(t, "AttachVerifiableData", mock.Anything, mock.Anything, mock.Anything)
	ml.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestCreateVerificationRequest_MailErrorPropagates(t *testing.T) {
	r, v, ml := &mockRepo{}, &mockVerifier{}, &mockMailer{}
	boom := errors.New("smtp down")
	r.On("Get", mock.Anything, int64(1)).Return(&domain.EmailAddress{EmailAddressID: 1, EmailAddress: "a@b.com", VerifiableDataID: strPtr("vd1")}, nil)
	v.On("CreateVerificationRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.VerificationRequest{AcceptToken: "acc", RejectToken: "rej"}, nil)
	ml.On("Send", mock.Anything, mock.Anything).Return(boom)

	err := newService(r, v, ml, nil, nil).CreateVerificationRequest(context.Background(), 1, validParams())
	assert.ErrorIs(t, err, boom)
}

// --- IsEmailAddressVerified ---

func TestIsEmailAddressVerified(t *testing.T) {
	future := fixedNow.Add(time.Minute)
	past := fixedNow.Add(-time.Minute)
	cases := []struct {
		name  string
		vdID  *string
		until *time.Time
		want  bool
	}{
		{"no subject", nil, nil, false},
		{"never verified", strPtr("vd"), nil, false},
		{"expired", strPtr("vd"), &past, false},
		{"now is not after", strPtr("vd"), &fixedNow, false},
		{"verified", strPtr("vd"), &future, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, v := &mockRepo{}, &mockVerifier{}
			r.On("Get", mock.Anything, int64(1)).Return(&domain.EmailAddress{EmailAddressID: 1, VerifiableDataID: tc.vdID}, nil)
			v.On("VerifiedUntil", mock.Anything, "vd").Return(tc.until, nil)

			got, err := newService(r, v, nil, nil, nil).IsEmailAddressVerified(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsEmailAddressVerified_NoSuchRecord(t *testing.T) {
	r := &mockRepo{}
	r.On("Get", mock.Anything, int64(-1)).Return(nil, domain.ErrNoSuchRecord)
	_, err := newService(r, nil, nil, nil, nil).IsEmailAddressVerified(context.Background(), -1)
	assert.ErrorIs(t, err, domain.ErrNoSuchRecord)
}

// --- InvalidateEmailAddress ---

func TestInvalidateEmailAddress_LocksAroundInvalidate(t *testing.T) {
	r, v := &mockRepo{}, &mockVerifier{}
	var calls []string
	r.On("Get", mock.Anything, int64(1)).Return(&domain.EmailAddress{EmailAddressID: 1, VerifiableDataID: strPtr("vd1")}, nil)
	v.On("InvalidateData", mock.Anything, "vd1").Return(nil).Run(func(mock.Arguments) { calls = append(calls, "invalidate") })
	r.On("Delete", mock.Anything, int64(1)).Return(nil).Run(func(mock.Arguments) { calls = append(calls, "delete") })

	err := newService(r, v, nil, recordingLocker{calls: &calls}, nil).InvalidateEmailAddress(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"lock verifiable_data#vd1",
		"invalidate",
		"release verifiable_data#vd1",
		"delete",
	}, calls)
}

func TestInvalidateEmailAddress_WithoutSubject(t *testing.T) {
	r, v := &mockRepo{}, &mockVerifier{}
	var calls []string
	r.On("Get", mock.Anything, int64(1)).Return(&domain.EmailAddress{EmailAddressID: 1}, nil)
	r.On("Delete", mock.Anything, int64(1)).Return(nil)

	require.NoError(t, newService(r, v, nil, recordingLocker{calls: &calls}, nil).InvalidateEmailAddress(context.Background(), 1))
	assert.Empty(t, calls)
	v.AssertNotCalled(t, "InvalidateData", mock.Anything, mock.Anything)
}

func TestInvalidateEmailAddress_LockTimeoutKeepsRecord(t *testing.T) {
	r, v := &mockRepo{}, &mockVerifier{}
	r.On("Get", mock.Anything, int64(1)).Return(&domain.EmailAddress{EmailAddressID: 1, VerifiableDataID: strPtr("vd1")}, nil)

	err := newService(r, v, nil, recordingLocker{calls: new([]string), err: lock.ErrTimeout}, nil).InvalidateEmailAddress(context.Background(), 1)
	assert.ErrorIs(t, err, lock.ErrTimeout)
	r.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestInvalidateEmailAddress_NoSuchRecord(t *testing.T) {
	r := &mockRepo{}
	r.On("Get", mock.Anything, int64(0)).Return(nil, domain.ErrNoSuchRecord)
	err := newService(r, nil, nil, nil, nil).InvalidateEmailAddress(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrNoSuchRecord)
}

// --- VerifyEmailAddress ---

func TestVerifyEmailAddress_Empty(t *testing.T) {
	v := &mockVerifier{}
	_, err := newService(nil, v, nil, nil, nil).VerifyEmailAddress(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	v.AssertNotCalled(t, "VerifyData", mock.Anything, mock.Anything)
}

func TestVerifyEmailAddress_UnknownToken(t *testing.T) {
	v := &mockVerifier{}
	v.On("VerifyData", mock.Anything, "test-uuid-0124sf3").Return(nil, nil)

	res, err := newService(nil, v, nil, nil, nil).VerifyEmailAddress(context.Background(), "test-uuid-0124sf3")
	require.NoError(t, err)
	assert.Nil(t, res.EmailAddressID)
	assert.Equal(t, domain.ConfirmationFailed, res.Result)
}

func TestVerifyEmailAddress_OutcomeMapping(t *testing.T) {
	cases := map[domain.TokenUsageResult]domain.ConfirmationResult{
		domain.TokenVerified: domain.ConfirmationSuccess,
		domain.TokenRejected: domain.ConfirmationRejected,
		domain.TokenFailed:   domain.ConfirmationFailed,
	}
	for outcome, want := range cases {
		t.Run(string(outcome), func(t *testing.T) {
			r, v := &mockRepo{}, &mockVerifier{}
			v.On("VerifyData", mock.Anything, "tok").Return(&domain.VerificationResult{VerifiableDataID: "vd", Outcome: outcome}, nil)
			r.On("ListByVerifiableDataID", mock.Anything, "vd").Return([]domain.EmailAddress{{EmailAddressID: 9}}, nil)

			res, err := newService(r, v, nil, nil, nil).VerifyEmailAddress(context.Background(), "tok")
			require.NoError(t, err)
			require.NotNil(t, res.EmailAddressID)
			assert.Equal(t, int64(9), *res.EmailAddressID)
			assert.Equal(t, want, res.Result)
		})
	}
}

func TestVerifyEmailAddress_AmbiguousSubject(t *testing.T) {
	for _, records := range [][]domain.EmailAddress{nil, {{EmailAddressID: 1}, {EmailAddressID: 2}}} {
		r, v := &mockRepo{}, &mockVerifier{}
		v.On("VerifyData", mock.Anything, "tok").Return(&domain.VerificationResult{VerifiableDataID: "vd", Outcome: domain.TokenVerified}, nil)
		r.On("ListByVerifiableDataID", mock.Anything, "vd").Return(records, nil)

		res, err := newService(r, v, nil, nil, nil).VerifyEmailAddress(context.Background(), "tok")
		require.NoError(t, err)
		assert.Nil(t, res.EmailAddressID)
		assert.Equal(t, domain.ConfirmationFailed, res.Result)
	}
}

func TestVerifyEmailAddress_PublishesEventBestEffort(t *testing.T) {
	r, v, ev := &mockRepo{}, &mockVerifier{}, &mockPublisher{}
	v.On("VerifyData", mock.Anything, "tok").Return(&domain.VerificationResult{VerifiableDataID: "vd", Outcome: domain.TokenVerified}, nil)
	r.On("ListByVerifiableDataID", mock.Anything, "vd").Return([]domain.EmailAddress{{EmailAddressID: 4}}, nil)
	ev.On("PublishVerification", mock.Anything, mock.MatchedBy(func(e domain.VerificationEvent) bool {
		return e.Event == "email_address.verification" &&
			e.Result == domain.ConfirmationSuccess &&
			e.EmailAddressID != nil && *e.EmailAddressID == 4 &&
			e.OccurredAt == "2024-03-01T12:00:00Z"
	})).Return(errors.New("sns unavailable"))

	res, err := newService(r, v, nil, nil, ev).VerifyEmailAddress(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmationSuccess, res.Result)
	ev.AssertExpectations(t)
}

func TestVerifyEmailAddress_EngineErrorPropagates(t *testing.T) {
	v := &mockVerifier{}
	v.On("VerifyData", mock.Anything, "tok").Return(nil, lock.ErrTimeout)
	_, err := newService(nil, v, nil, nil, nil).VerifyEmailAddress(context.Background(), "tok")
	assert.ErrorIs(t, err, lock.ErrTimeout)
}
