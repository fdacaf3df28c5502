package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/internal/monitor"
	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

// store calls made after the session context is gone use this budget
const closeTimeout = 5 * time.Second

// DeviceStore is the persistence a session writes to
type DeviceStore interface {
	SaveTelemetry(ctx context.Context, deviceID uuid.UUID, record *models.TelemetryRecord) error
	SetOnline(ctx context.Context, deviceID uuid.UUID, online bool) error
}

// Optional DeviceStore extensions
type modeRecorder interface {
	SetCollectMode(ctx context.Context, deviceID uuid.UUID, mode models.CollectMode) error
}

type eventRecorder interface {
	CreateEventLog(ctx context.Context, event *models.EventLog) error
}

// CommandSource yields queued commands for a device
type CommandSource interface {
	FetchPendingCommand(ctx context.Context, portID string) (*models.Command, bool)
}

// Optional CommandSource extension; pending commands are discarded when the
// device goes offline.
type commandClearer interface {
	Clear(portID string) int
}

// Publisher forwards readings and status changes to integrations
type Publisher interface {
	PublishTelemetry(ctx context.Context, msg *models.TelemetryMessage) error
	PublishStatus(ctx context.Context, msg *models.StatusMessage) error
}

// Options tune the polling loop
type Options struct {
	HistoryInterval  int
	KeepaliveDelay   time.Duration
	CommandIdleDelay time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration

	// Now is the clock used for request timestamps and dedup
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.HistoryInterval == 0 {
		o.HistoryInterval = hmframe.Interval1Min
	}
	if o.KeepaliveDelay == 0 {
		o.KeepaliveDelay = 55 * time.Second
	}
	if o.CommandIdleDelay == 0 {
		o.CommandIdleDelay = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Config carries everything a session needs
type Config struct {
	Conn         net.Conn
	DeviceID     uuid.UUID
	Registration *hmframe.Registration
	// Addr is the logical address put in request frames
	Addr byte

	Registry  *Registry
	Store     DeviceStore
	Commands  CommandSource
	Publisher Publisher

	Options Options
}

// Session polls one connected device until the connection is lost or the
// session is closed.
type Session struct {
	portID   string
	deviceID uuid.UUID
	reg      *hmframe.Registration
	addr     byte
	conn     net.Conn

	registry  *Registry
	store     DeviceStore
	commands  CommandSource
	publisher Publisher
	opts      Options
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}

	mu        sync.Mutex
	mode      models.CollectMode
	lastCheck time.Time
	cursor    time.Time
	reason    CloseReason

	connectedAt time.Time
	polls       atomic.Uint64
	records     atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a session in realtime mode. The session is not registered and
// does not poll until Run is called.
func New(ctx context.Context, cfg Config) *Session {
	cfg.Options.setDefaults()

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		portID:    cfg.Registration.PortID(),
		deviceID:  cfg.DeviceID,
		reg:       cfg.Registration,
		addr:      cfg.Addr,
		conn:      cfg.Conn,
		registry:  cfg.Registry,
		store:     cfg.Store,
		commands:  cfg.Commands,
		publisher: cfg.Publisher,
		opts:      cfg.Options,
		ctx:       sctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		mode:      models.ModeRealtime,
		closed:    make(chan struct{}),
	}
	s.connectedAt = s.opts.Now()
	s.log = log.With().
		Str("port_id", s.portID).
		Str("remote", cfg.Conn.RemoteAddr().String()).
		Logger()

	monitor.ActiveSessions.Inc()

	return s
}

// PortID returns the registry key
func (s *Session) PortID() string { return s.portID }

// DeviceID returns the persisted device id
func (s *Session) DeviceID() uuid.UUID { return s.deviceID }

// Done is closed once the session is closed
func (s *Session) Done() <-chan struct{} { return s.closed }

// Reason returns why the session closed, or "" while it is live
func (s *Session) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Mode returns the current polling mode
func (s *Session) Mode() models.CollectMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Run polls until the session closes. It announces the device online first.
func (s *Session) Run() {
	s.announce()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		delay, err := s.cycle(s.ctx)
		if err != nil {
			s.closeWith(classify(err), err)
			return
		}

		if delay <= 0 {
			continue
		}

		timer.Reset(delay)
		select {
		case <-s.ctx.Done():
			s.closeWith(ReasonShutdown, s.ctx.Err())
			return
		case <-s.wake:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}
	}
}

// Wake cuts the current delay short, e.g. after a command was queued
func (s *Session) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close ends the session. Only the first call has any effect.
func (s *Session) Close(reason CloseReason) {
	s.closeWith(reason, nil)
}

// SetMode switches the polling mode at the next cycle boundary. cursor is the
// first record to fetch in history mode and ignored otherwise.
func (s *Session) SetMode(mode models.CollectMode, cursor time.Time) error {
	switch mode {
	case models.ModeRealtime, models.ModeCommand:
	case models.ModeHistory:
		if cursor.IsZero() {
			return fmt.Errorf("%w: history mode needs a start time", ErrInvalidMode)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	s.mu.Lock()
	prev := s.mode
	s.mode = mode
	if mode == models.ModeHistory {
		s.cursor = cursor
	}
	s.mu.Unlock()

	s.modeChanged(prev, mode)
	s.Wake()

	return nil
}

// cycle runs one poll in the current mode and returns the delay before the
// next one.
func (s *Session) cycle(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}

	s.mu.Lock()
	mode, cursor := s.mode, s.cursor
	s.mu.Unlock()

	switch mode {
	case models.ModeCommand:
		return s.pollCommand(ctx)
	case models.ModeHistory:
		return s.pollHistory(ctx, cursor)
	default:
		return s.pollRealtime(ctx)
	}
}

func (s *Session) pollRealtime(ctx context.Context) (time.Duration, error) {
	now := s.opts.Now()

	t, err := s.fetchHistory(now)
	if err != nil {
		return 0, err
	}
	monitor.Polls.WithLabelValues(models.ModeRealtime.String()).Inc()

	// one record per calendar minute; the rest keep the link alive
	s.mu.Lock()
	due := s.lastCheck.IsZero() || now.Minute() != s.lastCheck.Minute()
	s.mu.Unlock()

	if due && s.persist(ctx, models.ModeRealtime, t) {
		s.mu.Lock()
		s.lastCheck = now
		s.mu.Unlock()
	}

	return realtimeDelay(now, s.opts.KeepaliveDelay), nil
}

// realtimeDelay aims at the next minute boundary without waiting longer than max
func realtimeDelay(now time.Time, max time.Duration) time.Duration {
	d := time.Duration(60-now.Second()) * time.Second
	if d > max {
		return max
	}
	return d
}

func (s *Session) pollCommand(ctx context.Context) (time.Duration, error) {
	if s.commands == nil {
		return s.opts.CommandIdleDelay, nil
	}

	cmd, ok := s.commands.FetchPendingCommand(ctx, s.portID)
	if !ok {
		return s.opts.CommandIdleDelay, nil
	}

	frame, err := hmframe.EncodeCommand(s.addr, cmd.DataType, cmd.Interval, cmd.Timestamp)
	if err != nil {
		s.log.Warn().Err(err).Str("command_id", cmd.ID.String()).Msg("Dropping command that cannot be encoded")
		s.recordEvent(ctx, models.EventTypeError, models.EventLevelWarning, "Command dropped",
			models.Variables{"commandId": cmd.ID.String(), "error": err.Error()})
		return 0, nil
	}

	resp, err := s.exchange(frame)
	if err != nil {
		return 0, err
	}
	monitor.Polls.WithLabelValues(models.ModeCommand.String()).Inc()

	s.recordEvent(ctx, models.EventTypeCommand, models.EventLevelInfo,
		fmt.Sprintf("Command %s answered", cmd.DataType),
		models.Variables{
			"commandId": cmd.ID.String(),
			"dataType":  cmd.DataType.String(),
			"replyCode": resp.ReplyCode,
			"payload":   fmt.Sprintf("%x", resp.Payload),
		})

	if cmd.DataType != hmframe.HistoryData {
		s.log.Info().
			Str("command_id", cmd.ID.String()).
			Stringer("data_type", cmd.DataType).
			Hex("payload", resp.Payload).
			Msg("Command answered")
		return 0, nil
	}

	t, err := hmframe.DecodeTelemetry(cmd.DataType, resp.Payload, cmd.Timestamp)
	if err != nil {
		return 0, err
	}
	s.persist(ctx, models.ModeCommand, t)

	return 0, nil
}

func (s *Session) pollHistory(ctx context.Context, cursor time.Time) (time.Duration, error) {
	if cursor.After(s.opts.Now()) {
		s.mu.Lock()
		switched := s.mode == models.ModeHistory
		if switched {
			s.mode = models.ModeRealtime
		}
		s.mu.Unlock()

		if switched {
			s.log.Info().Time("cursor", cursor).Msg("History backfill caught up")
			s.modeChanged(models.ModeHistory, models.ModeRealtime)
		}
		return 0, nil
	}

	t, err := s.fetchHistory(cursor)
	if err != nil {
		return 0, err
	}
	monitor.Polls.WithLabelValues(models.ModeHistory.String()).Inc()

	stored := s.persist(ctx, models.ModeHistory, t)

	s.mu.Lock()
	if stored {
		s.lastCheck = cursor
	}
	if s.mode == models.ModeHistory && s.cursor.Equal(cursor) {
		s.cursor = cursor.Add(time.Duration(s.opts.HistoryInterval) * time.Minute)
	}
	s.mu.Unlock()

	return 0, nil
}

// fetchHistory requests and decodes the history record at ts
func (s *Session) fetchHistory(ts time.Time) (*hmframe.Telemetry, error) {
	frame, err := hmframe.EncodeCommand(s.addr, hmframe.HistoryData, s.opts.HistoryInterval, ts)
	if err != nil {
		return nil, err
	}

	resp, err := s.exchange(frame)
	if err != nil {
		return nil, err
	}

	return hmframe.DecodeTelemetry(hmframe.HistoryData, resp.Payload, ts)
}

// exchange writes one request and reads one response. The link is
// half-duplex so there is never more than one request outstanding.
func (s *Session) exchange(frame []byte) (*hmframe.Response, error) {
	start := time.Now()

	if s.opts.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(start.Add(s.opts.WriteTimeout))
	}
	if _, err := s.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("%w: write: %w", ErrConnection, err)
	}
	monitor.BytesSent.Add(float64(len(frame)))

	if s.opts.ReadTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}

	leading := make([]byte, hmframe.LeadingSize)
	if _, err := io.ReadFull(s.conn, leading); err != nil {
		return nil, fmt.Errorf("%w: read leading: %w", ErrConnection, err)
	}

	remaining := make([]byte, leading[3])
	if _, err := io.ReadFull(s.conn, remaining); err != nil {
		return nil, fmt.Errorf("%w: read %d bytes: %w", ErrConnection, len(remaining), err)
	}
	monitor.BytesReceived.Add(float64(len(leading) + len(remaining)))

	resp, err := hmframe.DecodeResponse(leading, remaining)
	if err != nil {
		s.log.Debug().Hex("leading", leading).Hex("remaining", remaining).Msg("Undecodable response")
		return nil, err
	}

	s.polls.Add(1)
	monitor.ExchangeDuration.Observe(time.Since(start).Seconds())

	return resp, nil
}

// persist saves t and forwards it to the publisher. Store failures are
// logged and do not end the session.
func (s *Session) persist(ctx context.Context, mode models.CollectMode, t *hmframe.Telemetry) bool {
	record := models.NewTelemetryRecord(s.deviceID, t)
	if err := s.store.SaveTelemetry(ctx, s.deviceID, record); err != nil {
		monitor.StoreErrors.Inc()
		s.log.Error().Err(err).Time("collected_at", t.CollectedAt).Msg("Failed to save telemetry")
		return false
	}

	s.records.Add(1)
	monitor.RecordsStored.WithLabelValues(mode.String()).Inc()

	s.log.Debug().
		Str("mode", mode.String()).
		Time("collected_at", t.CollectedAt).
		Float64("flow", t.Flow).
		Float64("total_flow", t.TotalFlow).
		Msg("Telemetry stored")

	if s.publisher != nil {
		msg := &models.TelemetryMessage{
			PortID:      s.portID,
			DeviceID:    s.deviceID,
			LogicalAddr: uint32(s.addr),
			Mode:        mode.String(),
			Telemetry:   *t,
		}
		if err := s.publisher.PublishTelemetry(ctx, msg); err != nil {
			s.log.Warn().Err(err).Msg("Failed to publish telemetry")
		}
	}

	return true
}

func (s *Session) announce() {
	s.log.Info().
		Uint32("device_addr", s.reg.DeviceAddr).
		Uint8("poll_addr", s.addr).
		Str("device_id", s.deviceID.String()).
		Msg("Device session started")

	if err := s.store.SetOnline(s.ctx, s.deviceID, true); err != nil {
		monitor.StoreErrors.Inc()
		s.log.Error().Err(err).Msg("Failed to mark device online")
	}
	s.publishStatus(s.ctx, true, "")
	s.recordEvent(s.ctx, models.EventTypeOnline, models.EventLevelInfo, "Device registered", models.Variables{
		"remoteAddr": s.conn.RemoteAddr().String(),
		"deviceAddr": s.reg.DeviceAddr,
	})
}

func (s *Session) modeChanged(from, to models.CollectMode) {
	s.log.Info().Str("from", from.String()).Str("to", to.String()).Msg("Collect mode changed")

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if mr, ok := s.store.(modeRecorder); ok {
		if err := mr.SetCollectMode(ctx, s.deviceID, to); err != nil {
			monitor.StoreErrors.Inc()
			s.log.Error().Err(err).Msg("Failed to record collect mode")
		}
	}

	s.recordEvent(ctx, models.EventTypeMode, models.EventLevelInfo,
		fmt.Sprintf("Collect mode %s -> %s", from, to), nil)
}

func (s *Session) closeWith(reason CloseReason, cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()

		s.cancel()
		s.conn.Close()

		// A newer session for the same port id owns the device state.
		owner := reason != ReasonReplaced
		if s.registry != nil && !s.registry.Remove(s.portID, s) {
			owner = false
		}

		level := models.EventLevelInfo
		if cause != nil && (reason == ReasonConnection || reason == ReasonProtocol) {
			level = models.EventLevelWarning
		}

		if owner {
			s.markOffline(reason, cause, level)
		}

		monitor.ActiveSessions.Dec()
		monitor.SessionsClosed.WithLabelValues(string(reason)).Inc()

		ev := s.log.Info()
		if level == models.EventLevelWarning {
			ev = s.log.Warn().Err(cause)
		}
		ev.Str("reason", string(reason)).
			Uint64("polls", s.polls.Load()).
			Uint64("records", s.records.Load()).
			Dur("connected", s.opts.Now().Sub(s.connectedAt)).
			Msg("Device session closed")

		close(s.closed)
	})
}

func (s *Session) markOffline(reason CloseReason, cause error, level models.EventLevel) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := s.store.SetOnline(ctx, s.deviceID, false); err != nil {
		monitor.StoreErrors.Inc()
		s.log.Error().Err(err).Msg("Failed to mark device offline")
	}

	if cc, ok := s.commands.(commandClearer); ok {
		if n := cc.Clear(s.portID); n > 0 {
			s.log.Info().Int("dropped", n).Msg("Discarded pending commands")
		}
	}

	s.publishStatus(ctx, false, reason)

	details := models.Variables{"reason": string(reason)}
	if level == models.EventLevelWarning {
		details["error"] = cause.Error()
	}
	s.recordEvent(ctx, models.EventTypeOffline, level, "Device session closed", details)
}

func (s *Session) publishStatus(ctx context.Context, online bool, reason CloseReason) {
	if s.publisher == nil {
		return
	}

	msg := &models.StatusMessage{
		PortID:    s.portID,
		DeviceID:  s.deviceID,
		Online:    online,
		Reason:    string(reason),
		Timestamp: s.opts.Now(),
	}
	if err := s.publisher.PublishStatus(ctx, msg); err != nil {
		s.log.Warn().Err(err).Bool("online", online).Msg("Failed to publish status")
	}
}

func (s *Session) recordEvent(ctx context.Context, typ models.EventType, level models.EventLevel, desc string, details models.Variables) {
	er, ok := s.store.(eventRecorder)
	if !ok {
		return
	}

	id := s.deviceID
	event := &models.EventLog{
		DeviceID:    &id,
		PortID:      s.portID,
		Type:        typ,
		Level:       level,
		Description: desc,
		Details:     details,
	}
	if err := er.CreateEventLog(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("type", string(typ)).Msg("Failed to record event")
	}
}

// Info is a point-in-time view of a session
type Info struct {
	PortID      string             `json:"portId"`
	DeviceID    uuid.UUID          `json:"deviceId"`
	Phone       string             `json:"phone"`
	DeviceAddr  uint32             `json:"deviceAddr"`
	PollAddr    byte               `json:"pollAddr"`
	IP          string             `json:"ip"`
	RemoteAddr  string             `json:"remoteAddr"`
	Mode        models.CollectMode `json:"mode"`
	LastCheck   *time.Time         `json:"lastCheck,omitempty"`
	Cursor      *time.Time         `json:"cursor,omitempty"`
	ConnectedAt time.Time          `json:"connectedAt"`
	Polls       uint64             `json:"polls"`
	Records     uint64             `json:"records"`
}

// Info returns a snapshot of the session state
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		PortID:      s.portID,
		DeviceID:    s.deviceID,
		Phone:       s.reg.Phone,
		DeviceAddr:  s.reg.DeviceAddr,
		PollAddr:    s.addr,
		RemoteAddr:  s.conn.RemoteAddr().String(),
		Mode:        s.mode,
		ConnectedAt: s.connectedAt,
		Polls:       s.polls.Load(),
		Records:     s.records.Load(),
	}
	if s.reg.IP != nil {
		info.IP = s.reg.IP.String()
	}
	if !s.lastCheck.IsZero() {
		lc := s.lastCheck
		info.LastCheck = &lc
	}
	if s.mode == models.ModeHistory {
		c := s.cursor
		info.Cursor = &c
	}

	return info
}
