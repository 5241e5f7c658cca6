// Package whatsapp implements transport.Transport on top of whatsmeow, with
// one sqlite credential namespace per tenant.
package whatsapp

import (
	"context"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/zulandar/rentbell/internal/transport"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// eventBuffer bounds how far the client may run ahead of the session pump.
const eventBuffer = 64

// Opts holds parameters for creating a Transport.
type Opts struct {
	Credentials *transport.CredentialStore
	// LowResource skips history-sync blob downloads, the full-sync request,
	// and automatic message re-requests.
	LowResource bool
	Logger      *zap.Logger
}

// Transport opens whatsmeow clients backed by per-tenant sqlite stores.
type Transport struct {
	creds       *transport.CredentialStore
	lowResource bool
	log         *zap.Logger
}

// New creates a Transport.
func New(opts Opts) (*Transport, error) {
	if opts.Credentials == nil {
		return nil, fmt.Errorf("whatsapp: credential store is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	if opts.LowResource {
		store.DeviceProps.RequireFullSync = proto.Bool(false)
	}
	return &Transport{
		creds:       opts.Credentials,
		lowResource: opts.LowResource,
		log:         log.Named("whatsapp"),
	}, nil
}

func (t *Transport) openContainer(ctx context.Context, tenantID string) (*sqlstore.Container, error) {
	path, err := t.creds.Path(tenantID)
	if err != nil {
		return nil, err
	}
	dsn := "file:" + path + "?_foreign_keys=on"
	container, err := sqlstore.New(ctx, "sqlite3", dsn, NewLogger(t.log.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: open store for %s: %w", tenantID, err)
	}
	return container, nil
}

// Open loads (or creates) the tenant's device and starts connecting in the
// background. Unpaired devices emit pairing codes; paired ones authenticate
// directly.
func (t *Transport) Open(ctx context.Context, tenantID string) (transport.Handle, error) {
	container, err := t.openContainer(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("whatsapp: load device for %s: %w", tenantID, err)
	}

	log := t.log.With(zap.String("tenant", tenantID))
	client := whatsmeow.NewClient(device, NewLogger(log.Named("client")))
	client.EnableAutoReconnect = false
	if t.lowResource {
		client.ManualHistorySyncDownload = true
		client.AutomaticMessageRerequestFromPhone = false
	}

	h := &handle{
		tenantID:  tenantID,
		client:    client,
		container: container,
		events:    make(chan transport.Event, eventBuffer),
		done:      make(chan struct{}),
		log:       log,
	}
	client.AddEventHandler(h.onEvent)

	if client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		qrCh, err := client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			container.Close()
			return nil, fmt.Errorf("whatsapp: pairing channel for %s: %w", tenantID, err)
		}
		h.cancelQR = cancel
		go h.relayQR(qrCh)
	}

	go h.connect()
	return h, nil
}

// AuthenticatedTenants lists tenants whose namespace holds a paired device.
// Unreadable namespaces are logged and skipped.
func (t *Transport) AuthenticatedTenants(ctx context.Context) ([]string, error) {
	tenants, err := t.creds.List()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range tenants {
		ok, err := t.Paired(ctx, id)
		if err != nil {
			t.log.Warn("whatsapp: skipping unreadable namespace", zap.String("tenant", id), zap.Error(err))
			continue
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// Paired reports whether the tenant's namespace exists and holds a device
// that completed pairing.
func (t *Transport) Paired(ctx context.Context, tenantID string) (bool, error) {
	if !t.creds.Exists(tenantID) {
		return false, nil
	}
	container, err := t.openContainer(ctx, tenantID)
	if err != nil {
		return false, err
	}
	defer container.Close()
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return false, fmt.Errorf("whatsapp: load device for %s: %w", tenantID, err)
	}
	return device.ID != nil && !device.ID.IsEmpty(), nil
}

// handle is one tenant's live whatsmeow client.
type handle struct {
	tenantID  string
	client    *whatsmeow.Client
	container *sqlstore.Container
	cancelQR  context.CancelFunc
	log       *zap.Logger

	events    chan transport.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (h *handle) Events() <-chan transport.Event { return h.events }
func (h *handle) Done() <-chan struct{}          { return h.done }

func (h *handle) emit(ev transport.Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

func (h *handle) onEvent(evt any) {
	if ev, ok := translate(evt); ok {
		h.emit(ev)
	}
}

func (h *handle) relayQR(ch <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case item, ok := <-ch:
			if !ok {
				return
			}
			if ev, ok := translateQR(item); ok {
				h.emit(ev)
			}
		case <-h.done:
			return
		}
	}
}

func (h *handle) connect() {
	if err := h.client.Connect(); err != nil {
		h.emit(dialFailure(err))
		return
	}
	// Close may have run while Connect was dialing.
	select {
	case <-h.done:
		h.client.Disconnect()
	default:
	}
}

// Send delivers a plain text message to recipient's personal chat.
func (h *handle) Send(ctx context.Context, recipient, text string) error {
	if !h.client.IsConnected() {
		return &transport.SendError{Recipient: recipient, Err: fmt.Errorf("client not connected")}
	}
	jid := types.NewJID(recipient, types.DefaultUserServer)
	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := h.client.SendMessage(ctx, jid, msg); err != nil {
		return &transport.SendError{Recipient: recipient, Err: err}
	}
	return nil
}

// Unlink logs the device out so the phone drops the linked session.
func (h *handle) Unlink(ctx context.Context) error {
	if h.client.Store.ID == nil {
		return nil
	}
	if err := h.client.Logout(ctx); err != nil {
		return fmt.Errorf("whatsapp: logout %s: %w", h.tenantID, err)
	}
	return nil
}

func (h *handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		if h.cancelQR != nil {
			h.cancelQR()
		}
		h.client.Disconnect()
		if cerr := h.container.Close(); cerr != nil {
			err = fmt.Errorf("whatsapp: close store for %s: %w", h.tenantID, cerr)
		}
		h.log.Debug("whatsapp: handle closed")
	})
	return err
}
