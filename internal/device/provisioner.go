package device

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/halvely/push-relay-agent/internal/account"
	"github.com/halvely/push-relay-agent/internal/errs"
	"github.com/halvely/push-relay-agent/internal/model"
)

const secretLength = 18

// AccountClient is the slice of the account server API the provisioner needs.
type AccountClient interface {
	Devices(ctx context.Context) ([]account.Device, error)
	NewDeviceCode(ctx context.Context) (string, error)
	FinishNewDevice(ctx context.Context, link account.LinkRequest) (int, error)
}

// Config carries the account identity material and linking attributes.
type Config struct {
	AccountID         string
	DeviceName        string
	MessagingIdentity []byte
	DiscoveryIdentity []byte
	Capabilities      []string
	Discoverable      bool
}

// Provisioner creates and verifies the linked relay device. It only
// constructs and returns devices; persisting them is the caller's job, so a
// failed provisioning never leaves a half-linked record behind.
type Provisioner struct {
	accounts AccountClient
	cipher   *NameCipher
	cfg      Config
	logger   *slog.Logger
}

func NewProvisioner(accounts AccountClient, cfg Config, logger *slog.Logger) (*Provisioner, error) {
	if cfg.DeviceName == "" {
		cfg.DeviceName = "push-relay"
	}
	cipher, err := NewNameCipher(cfg.MessagingIdentity)
	if err != nil {
		return nil, err
	}
	return &Provisioner{
		accounts: accounts,
		cipher:   cipher,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// EnsureDevice returns a live linked device. A live existing device is
// returned unchanged; a confirmed-stale one is discarded and replaced. When
// the device list cannot be fetched the existing record is kept and the
// outcome is reported as indeterminate.
func (p *Provisioner) EnsureDevice(ctx context.Context, current *model.LinkedDevice) (*model.LinkedDevice, error) {
	if p.cfg.AccountID == "" {
		return nil, errs.ErrNotRegistered
	}

	if current != nil {
		live, err := p.isDeviceLive(ctx, current)
		if err != nil {
			// Transient list failure: keep the record rather than burn a
			// device slot on every network blip.
			p.logger.Warn("device list query failed", slog.Any("error", err))
			return current, fmt.Errorf("%w: %w", errs.ErrIndeterminate, err)
		}
		if live {
			return current, nil
		}
		p.logger.Info("linked relay device no longer registered, provisioning a new one",
			slog.Int("device_id", current.DeviceID))
	}

	dev, err := p.newDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrLinkDevice, err)
	}
	return dev, nil
}

func (p *Provisioner) isDeviceLive(ctx context.Context, current *model.LinkedDevice) (bool, error) {
	devices, err := p.accounts.Devices(ctx)
	if err != nil {
		return false, err
	}
	for _, d := range devices {
		if d.ID != current.DeviceID {
			continue
		}
		name, err := p.cipher.Decrypt(d.Name)
		if err == nil && name == p.cfg.DeviceName {
			return true, nil
		}
	}
	return false, nil
}

func (p *Provisioner) newDevice(ctx context.Context) (*model.LinkedDevice, error) {
	password, err := GenerateSecret(secretLength)
	if err != nil {
		return nil, err
	}
	registrationID, err := GenerateRegistrationID()
	if err != nil {
		return nil, err
	}

	code, err := p.accounts.NewDeviceCode(ctx)
	if err != nil {
		return nil, err
	}

	encryptedName, err := p.cipher.Encrypt(p.cfg.DeviceName)
	if err != nil {
		return nil, err
	}

	messagingKeys, err := GeneratePreKeyBundle(p.cfg.MessagingIdentity)
	if err != nil {
		return nil, err
	}
	discoveryKeys, err := GeneratePreKeyBundle(p.cfg.DiscoveryIdentity)
	if err != nil {
		return nil, err
	}

	deviceID, err := p.accounts.FinishNewDevice(ctx, account.LinkRequest{
		VerificationCode: code,
		Attributes: account.Attributes{
			RegistrationID:  registrationID,
			FetchesMessages: true,
			Name:            encryptedName,
			Capabilities:    p.cfg.Capabilities,
			Discoverable:    p.cfg.Discoverable,
		},
		MessagingPreKeys:  messagingKeys,
		DiscoveryPreKeys:  discoveryKeys,
		NewDevicePassword: password,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("linked new relay device", slog.Int("device_id", deviceID))
	return &model.LinkedDevice{
		AccountID: p.cfg.AccountID,
		DeviceID:  deviceID,
		Password:  password,
	}, nil
}
