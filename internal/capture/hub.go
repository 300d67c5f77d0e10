package capture

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/id-bridge/internal/bridgeerr"
	"github.com/example/id-bridge/internal/imagecodec"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 20
)

type command struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Face     *FaceOptions     `json:"face,omitempty"`
	Document *DocumentOptions `json:"document,omitempty"`
	Side     string           `json:"side,omitempty"`
}

type reply struct {
	ID         string   `json:"id"`
	Status     Status   `json:"status"`
	Image      string   `json:"image,omitempty"`
	ImageURI   string   `json:"imageUri,omitempty"`
	Barcode    string   `json:"barcode,omitempty"`
	ResultCode int      `json:"resultCode,omitempty"`
	Message    string   `json:"message,omitempty"`
	Decision   Decision `json:"decision,omitempty"`
}

// Hub keeps track of devices connected over websocket.
type Hub struct {
	mu        sync.RWMutex
	devices   map[string]*wsDevice
	deviceKey string
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewHub creates a hub. When deviceKey is non-empty devices must present it.
func NewHub(deviceKey string, logger *zap.Logger) *Hub {
	return &Hub{
		devices:   make(map[string]*wsDevice),
		deviceKey: deviceKey,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("capture_hub"),
	}
}

// Device returns the connected device with the given id.
func (h *Hub) Device(id string) (Device, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dev, ok := h.devices[id]
	if !ok {
		return nil, bridgeerr.Newf(bridgeerr.NoActivity, "Device %q is not connected", id)
	}
	return dev, nil
}

// Connected returns the number of connected devices.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

// Close disconnects every device. Pending commands fail with ErrDeviceGone.
func (h *Hub) Close() {
	h.mu.Lock()
	devices := make([]*wsDevice, 0, len(h.devices))
	for _, dev := range h.devices {
		devices = append(devices, dev)
	}
	h.mu.Unlock()
	for _, dev := range devices {
		dev.close()
	}
}

// ServeHTTP upgrades a device connection and serves it until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("device")
	if id == "" {
		http.Error(w, "device is required", http.StatusBadRequest)
		return
	}
	if h.deviceKey != "" && subtle.ConstantTimeCompare([]byte(r.URL.Query().Get("key")), []byte(h.deviceKey)) != 1 {
		http.Error(w, "invalid device key", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade device connection", zap.Error(err))
		return
	}

	dev := newDevice(id, conn, h.logger)
	h.register(dev)
	defer h.unregister(dev)

	go dev.pingLoop()
	dev.readLoop()
}

func (h *Hub) register(dev *wsDevice) {
	h.mu.Lock()
	prev := h.devices[dev.id]
	h.devices[dev.id] = dev
	h.mu.Unlock()
	if prev != nil {
		h.logger.Info("device reconnected, closing previous connection", zap.String("device_id", dev.id))
		prev.close()
	}
	h.logger.Info("device connected", zap.String("device_id", dev.id))
}

func (h *Hub) unregister(dev *wsDevice) {
	h.mu.Lock()
	if h.devices[dev.id] == dev {
		delete(h.devices, dev.id)
	}
	h.mu.Unlock()
	dev.close()
	h.logger.Info("device disconnected", zap.String("device_id", dev.id))
}

type wsDevice struct {
	id     string
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan reply

	done      chan struct{}
	closeOnce sync.Once
}

func newDevice(id string, conn *websocket.Conn, logger *zap.Logger) *wsDevice {
	return &wsDevice{
		id:      id,
		conn:    conn,
		logger:  logger.With(zap.String("device_id", id)),
		pending: make(map[string]chan reply),
		done:    make(chan struct{}),
	}
}

func (d *wsDevice) ID() string { return d.id }

func (d *wsDevice) LaunchFaceCapture(ctx context.Context, opts FaceOptions) (*Outcome, error) {
	r, err := d.request(ctx, command{Type: "capture_face", Face: &opts})
	if err != nil {
		return nil, err
	}
	return toOutcome(r)
}

func (d *wsDevice) LaunchDocumentCapture(ctx context.Context, opts DocumentOptions, front bool) (*Outcome, error) {
	side := "back"
	if front {
		side = "front"
	}
	r, err := d.request(ctx, command{Type: "capture_document", Document: &opts, Side: side})
	if err != nil {
		return nil, err
	}
	return toOutcome(r)
}

func (d *wsDevice) PromptBackSide(ctx context.Context) (Decision, error) {
	r, err := d.request(ctx, command{Type: "prompt_back_side"})
	if err != nil {
		return "", err
	}
	switch r.Decision {
	case DecisionYes, DecisionNo:
		return r.Decision, nil
	default:
		return DecisionCancel, nil
	}
}

func toOutcome(r *reply) (*Outcome, error) {
	o := &Outcome{
		Status:     r.Status,
		ImageURI:   r.ImageURI,
		Barcode:    r.Barcode,
		ResultCode: r.ResultCode,
		Message:    r.Message,
	}
	if r.Image != "" {
		buf, err := imagecodec.DecodeBytes(r.Image)
		if err != nil {
			return nil, bridgeerr.Wrap(bridgeerr.ImageConversionFail, "Failed to decode captured image", err)
		}
		o.Image = buf
	}
	return o, nil
}

// request sends cmd and blocks until the matching reply arrives, the context ends
// or the connection drops.
func (d *wsDevice) request(ctx context.Context, cmd command) (*reply, error) {
	cmd.ID = uuid.NewString()
	ch := make(chan reply, 1)

	d.pendingMu.Lock()
	d.pending[cmd.ID] = ch
	d.pendingMu.Unlock()
	defer func() {
		d.pendingMu.Lock()
		delete(d.pending, cmd.ID)
		d.pendingMu.Unlock()
	}()

	if err := d.write(func() error { return d.conn.WriteJSON(cmd) }); err != nil {
		return nil, err
	}
	d.logger.Debug("device command sent", zap.String("type", cmd.Type), zap.String("command_id", cmd.ID))

	select {
	case r := <-ch:
		return &r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return nil, ErrDeviceGone
	}
}

func (d *wsDevice) write(fn func() error) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	select {
	case <-d.done:
		return ErrDeviceGone
	default:
	}
	_ = d.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return fn()
}

func (d *wsDevice) readLoop() {
	d.conn.SetReadLimit(maxMessageSize)
	_ = d.conn.SetReadDeadline(time.Now().Add(pongWait))
	d.conn.SetPongHandler(func(string) error {
		return d.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var r reply
		if err := d.conn.ReadJSON(&r); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				d.logger.Warn("device connection error", zap.Error(err))
			}
			return
		}
		_ = d.conn.SetReadDeadline(time.Now().Add(pongWait))

		d.pendingMu.Lock()
		ch, ok := d.pending[r.ID]
		delete(d.pending, r.ID)
		d.pendingMu.Unlock()
		if !ok {
			d.logger.Warn("dropping reply for unknown command", zap.String("command_id", r.ID))
			continue
		}
		ch <- r
	}
}

func (d *wsDevice) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			if err := d.write(func() error { return d.conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
				d.close()
				return
			}
		}
	}
}

func (d *wsDevice) close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.writeMu.Lock()
		_ = d.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		d.writeMu.Unlock()
		_ = d.conn.Close()
	})
}
