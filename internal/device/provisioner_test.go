package device

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvely/push-relay-agent/internal/account"
	"github.com/halvely/push-relay-agent/internal/errs"
	"github.com/halvely/push-relay-agent/internal/model"
)

type fakeAccounts struct {
	devices     []account.Device
	devicesErr  error
	deviceCalls int

	code    string
	codeErr error

	linkID    int
	linkErr   error
	linkCalls int
	lastLink  account.LinkRequest
}

func (f *fakeAccounts) Devices(ctx context.Context) ([]account.Device, error) {
	f.deviceCalls++
	return f.devices, f.devicesErr
}

func (f *fakeAccounts) NewDeviceCode(ctx context.Context) (string, error) {
	return f.code, f.codeErr
}

func (f *fakeAccounts) FinishNewDevice(ctx context.Context, link account.LinkRequest) (int, error) {
	f.linkCalls++
	f.lastLink = link
	return f.linkID, f.linkErr
}

func testIdentity(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func newTestProvisioner(t *testing.T, accounts *fakeAccounts) *Provisioner {
	t.Helper()
	p, err := NewProvisioner(accounts, Config{
		AccountID:         "acc-uuid",
		DeviceName:        "push-relay",
		MessagingIdentity: testIdentity(1),
		DiscoveryIdentity: testIdentity(2),
		Capabilities:      []string{"storage"},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p
}

func encryptedName(t *testing.T, p *Provisioner, name string) string {
	t.Helper()
	wire, err := p.cipher.Encrypt(name)
	require.NoError(t, err)
	return wire
}

func TestEnsureDeviceRequiresRegisteredAccount(t *testing.T) {
	p, err := NewProvisioner(&fakeAccounts{}, Config{
		MessagingIdentity: testIdentity(1),
		DiscoveryIdentity: testIdentity(2),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	_, err = p.EnsureDevice(context.Background(), nil)
	assert.ErrorIs(t, err, errs.ErrNotRegistered)
}

func TestEnsureDeviceFastPathIsIdempotent(t *testing.T) {
	accounts := &fakeAccounts{}
	p := newTestProvisioner(t, accounts)
	accounts.devices = []account.Device{
		{ID: 1, Name: "primary"},
		{ID: 4, Name: encryptedName(t, p, "push-relay")},
	}
	current := &model.LinkedDevice{AccountID: "acc-uuid", DeviceID: 4, Password: "pw"}

	for i := 0; i < 2; i++ {
		got, err := p.EnsureDevice(context.Background(), current)
		require.NoError(t, err)
		assert.Equal(t, current, got)
	}
	assert.Equal(t, 0, accounts.linkCalls, "live device must not be re-registered")
}

func TestEnsureDeviceIndeterminateKeepsRecord(t *testing.T) {
	accounts := &fakeAccounts{devicesErr: errors.New("connection reset")}
	p := newTestProvisioner(t, accounts)
	current := &model.LinkedDevice{AccountID: "acc-uuid", DeviceID: 4, Password: "pw"}

	got, err := p.EnsureDevice(context.Background(), current)
	assert.ErrorIs(t, err, errs.ErrIndeterminate)
	assert.Equal(t, current, got, "existing record must survive a transient list failure")
	assert.Equal(t, 0, accounts.linkCalls)
}

func TestEnsureDeviceReprovisionsConfirmedStale(t *testing.T) {
	accounts := &fakeAccounts{
		devices: []account.Device{{ID: 1, Name: "primary"}},
		code:    "123456",
		linkID:  7,
	}
	p := newTestProvisioner(t, accounts)
	current := &model.LinkedDevice{AccountID: "acc-uuid", DeviceID: 4, Password: "old-pw"}

	got, err := p.EnsureDevice(context.Background(), current)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.DeviceID)
	assert.Equal(t, "acc-uuid", got.AccountID)
	assert.NotEmpty(t, got.Password)
	assert.NotEqual(t, "old-pw", got.Password)
}

func TestEnsureDeviceSubmitsFullLinkRequest(t *testing.T) {
	accounts := &fakeAccounts{code: "654321", linkID: 3}
	p := newTestProvisioner(t, accounts)

	got, err := p.EnsureDevice(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, got.DeviceID)

	link := accounts.lastLink
	assert.Equal(t, "654321", link.VerificationCode)
	assert.True(t, link.Attributes.FetchesMessages)
	assert.Equal(t, []string{"storage"}, link.Attributes.Capabilities)
	assert.NotZero(t, link.Attributes.RegistrationID)
	assert.Equal(t, got.Password, link.NewDevicePassword)

	// The submitted name must decrypt back to the sentinel device name.
	name, err := p.cipher.Decrypt(link.Attributes.Name)
	require.NoError(t, err)
	assert.Equal(t, "push-relay", name)

	for _, bundle := range []account.PreKeyBundle{link.MessagingPreKeys, link.DiscoveryPreKeys} {
		assert.NotEmpty(t, bundle.SignedPreKey.PublicKey)
		assert.NotEmpty(t, bundle.SignedPreKey.Signature)
		assert.NotEmpty(t, bundle.LastResort.PublicKey)
		assert.NotZero(t, bundle.SignedPreKey.KeyID)
	}
}

func TestEnsureDeviceFailureLeavesNoDevice(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fakeAccounts)
	}{
		{"verification code fails", func(f *fakeAccounts) {
			f.codeErr = errors.New("503")
		}},
		{"finish registration fails", func(f *fakeAccounts) {
			f.code = "123456"
			f.linkErr = errors.New("409")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &fakeAccounts{}
			tt.mutate(accounts)
			p := newTestProvisioner(t, accounts)

			got, err := p.EnsureDevice(context.Background(), nil)
			assert.ErrorIs(t, err, errs.ErrLinkDevice)
			assert.Nil(t, got, "no partial device may be returned on failure")
		})
	}
}
