// Package ingestor turns MQTT telemetry into device usage and security
// event records stored through the API service.
package ingestor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.IngestorService/client"
	config "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Config"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

// Forwarder stores decoded telemetry.
type Forwarder interface {
	DeviceExists(ctx context.Context, deviceID int64) (bool, error)
	CreateUsage(ctx context.Context, usage shmmodels.DeviceUsageCreate) (int64, error)
	CreateEvent(ctx context.Context, event shmmodels.SecurityEventCreate) (int64, error)
}

// Error types published on ingestor/errors/<user_id>/<device_id>
const (
	ErrorInvalidTopic     = "invalid_topic"
	ErrorInvalidPayload   = "invalid_payload"
	ErrorDeviceLookup     = "device_validation_error"
	ErrorDeviceNotFound   = "device_not_found"
	ErrorRecordRejected   = "record_rejected"
	ErrorRecordNotCreated = "create_record_error"
	ErrorQueueFull        = "queue_full"
)

const queueSize = 4096

type Ingestor struct {
	cfg        config.MQTTConfig
	batch      config.BatchConfig
	forwarder  Forwarder
	mqttClient mqtt.Client
	msgCh      chan shmmodels.TelemetryMessage
	wg         sync.WaitGroup
	stopOnce   sync.Once
	logger     *logger.Logger

	// mu guards stopped; msgCh is closed only with mu held for writing.
	mu      sync.RWMutex
	stopped bool

	publish func(topic string, payload []byte) error
	now     func() time.Time
}

func New(cfg *config.IngestorConfig, forwarder Forwarder, log *logger.Logger) *Ingestor {
	i := &Ingestor{
		cfg:       cfg.MQTT,
		batch:     cfg.Batch,
		forwarder: forwarder,
		msgCh:     make(chan shmmodels.TelemetryMessage, queueSize),
		logger:    log.WithComponent("ingestor"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	i.publish = i.publishMQTT
	return i
}

func (i *Ingestor) Start(ctx context.Context, brokerURL string) error {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(i.cfg.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(i.cfg.KeepAlive).
		SetPingTimeout(i.cfg.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)

	if i.cfg.BrokerUser != "" {
		opts.SetUsername(i.cfg.BrokerUser)
		opts.SetPassword(i.cfg.BrokerPass)
	}

	if i.cfg.UseTLS {
		tlsCfg, err := tlsConfig(i.cfg.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		i.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		topic := i.subscription()
		i.logger.Logger.Info().Str("topic", topic).Msg("MQTT connected, subscribing to topic")
		if token := c.Subscribe(topic, 1, i.onMessage); token.Wait() && token.Error() != nil {
			i.logger.Logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		}
	}

	i.mqttClient = mqtt.NewClient(opts)
	if tk := i.mqttClient.Connect(); tk.Wait() && tk.Error() != nil {
		return tk.Error()
	}

	i.startWriter(ctx)
	return nil
}

func (i *Ingestor) startWriter(ctx context.Context) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.batchWriter(ctx)
	}()
}

// Stop disconnects, flushes what is queued and waits for the writer.
func (i *Ingestor) Stop() {
	i.stopOnce.Do(func() {
		if i.mqttClient != nil && i.mqttClient.IsConnected() {
			i.mqttClient.Disconnect(500)
		}
		i.mu.Lock()
		i.stopped = true
		close(i.msgCh)
		i.mu.Unlock()
		i.wg.Wait()
	})
}

func (i *Ingestor) IsConnected() bool {
	return i.mqttClient != nil && i.mqttClient.IsConnected()
}

func (i *Ingestor) subscription() string {
	if i.cfg.SharedGroup != "" {
		return fmt.Sprintf("$share/%s/%s", i.cfg.SharedGroup, i.cfg.Topic)
	}
	return i.cfg.Topic
}

func (i *Ingestor) onMessage(_ mqtt.Client, m mqtt.Message) {
	i.enqueue(m.Topic(), m.Payload())
}

// enqueue validates the topic and queues the message for the batch writer.
func (i *Ingestor) enqueue(topic string, payload []byte) {
	i.logger.Logger.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("Received MQTT message")

	userID, deviceID, kind, err := ParseTopic(topic)
	if err != nil {
		i.logger.Logger.Warn().Err(err).Msg("Invalid topic format")
		user, device := topicIDs(topic)
		recordMessage("unknown", ErrorInvalidTopic)
		i.publishError(user, device, ErrorInvalidTopic, err.Error())
		return
	}

	msg := shmmodels.TelemetryMessage{
		UserID:     userID,
		DeviceID:   deviceID,
		Kind:       kind,
		Topic:      topic,
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: i.now(),
	}

	// Never block the MQTT router: drop when stopped or when the writer
	// cannot keep up.
	i.mu.RLock()
	queued := false
	if !i.stopped {
		select {
		case i.msgCh <- msg:
			queued = true
		default:
		}
	}
	i.mu.RUnlock()

	if !queued {
		user, device := strconv.FormatInt(userID, 10), strconv.FormatInt(deviceID, 10)
		i.logger.Logger.Warn().Str("topic", topic).Msg("Dropping message: ingest queue unavailable")
		recordMessage(string(kind), ErrorQueueFull)
		i.publishError(user, device, ErrorQueueFull, "ingest queue is full or stopped, message dropped")
	}
}

func (i *Ingestor) batchWriter(ctx context.Context) {
	batch := make([]shmmodels.TelemetryMessage, 0, i.batch.Size)
	timer := time.NewTimer(i.batch.Window)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		i.logger.Logger.Info().Int("batch_size", len(batch)).Msg("Flushing batch to API Service")
		batchSize.Observe(float64(len(batch)))

		// Flushing after cancellation still gets a bounded window.
		flushCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			flushCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
		}

		known := make(map[int64]bool)
		stored := 0
		for _, msg := range batch {
			if i.process(flushCtx, msg, known) {
				stored++
			}
		}

		i.logger.Logger.Info().Int("count", len(batch)).Int("stored", stored).Msg("Processed telemetry batch")
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			i.drain(&batch)
			flush()
			return
		case msg, ok := <-i.msgCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, msg)
			if len(batch) >= i.batch.Size {
				flush()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(i.batch.Window)
			}
		case <-timer.C:
			flush()
			timer.Reset(i.batch.Window)
		}
	}
}

// drain moves whatever is already queued into batch without blocking.
func (i *Ingestor) drain(batch *[]shmmodels.TelemetryMessage) {
	for {
		select {
		case msg, ok := <-i.msgCh:
			if !ok {
				return
			}
			*batch = append(*batch, msg)
		default:
			return
		}
	}
}

// process stores one message and reports whether it was stored. known caches
// device lookups for the current batch.
func (i *Ingestor) process(ctx context.Context, msg shmmodels.TelemetryMessage, known map[int64]bool) bool {
	user := strconv.FormatInt(msg.UserID, 10)
	device := strconv.FormatInt(msg.DeviceID, 10)
	kind := string(msg.Kind)

	exists, cached := known[msg.DeviceID]
	if !cached {
		var err error
		exists, err = i.forwarder.DeviceExists(ctx, msg.DeviceID)
		if err != nil {
			i.logger.Logger.Error().Err(err).Int64("device_id", msg.DeviceID).Msg("Failed to validate device via API")
			recordMessage(kind, ErrorDeviceLookup)
			i.publishError(user, device, ErrorDeviceLookup, fmt.Sprintf("Failed to validate device %d: %v", msg.DeviceID, err))
			return false
		}
		known[msg.DeviceID] = exists
	}
	if !exists {
		i.logger.Logger.Warn().Int64("device_id", msg.DeviceID).Msg("Skipping message: device not found")
		recordMessage(kind, ErrorDeviceNotFound)
		i.publishError(user, device, ErrorDeviceNotFound, fmt.Sprintf("Device %d does not exist", msg.DeviceID))
		return false
	}

	var err error
	switch msg.Kind {
	case shmmodels.TelemetryUsage:
		var usage shmmodels.DeviceUsageCreate
		if usage, err = DecodeUsage(msg); err == nil {
			_, err = i.forwarder.CreateUsage(ctx, usage)
		}
	case shmmodels.TelemetrySecurity:
		var event shmmodels.SecurityEventCreate
		if event, err = DecodeEvent(msg); err == nil {
			_, err = i.forwarder.CreateEvent(ctx, event)
		}
	}

	if err != nil {
		errorType := ErrorRecordNotCreated
		switch {
		case errors.Is(err, ErrInvalidPayload):
			errorType = ErrorInvalidPayload
		case client.IsPermanent(err):
			errorType = ErrorRecordRejected
		}
		i.logger.Logger.Error().Err(err).Str("topic", msg.Topic).Str("error_type", errorType).Msg("Error storing telemetry")
		recordMessage(kind, errorType)
		i.publishError(user, device, errorType, err.Error())
		return false
	}

	recordMessage(kind, "stored")
	return true
}

func tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}

// errorPayload is published back to the device that sent bad telemetry
type errorPayload struct {
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
	UserID    string    `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorTopic is where failures for one device are reported.
func ErrorTopic(userID, deviceID string) string {
	return fmt.Sprintf("ingestor/errors/%s/%s", userID, deviceID)
}

func (i *Ingestor) publishError(userID, deviceID, errorType, message string) {
	payloadJSON, err := json.Marshal(errorPayload{
		ErrorType: errorType,
		Message:   message,
		UserID:    userID,
		DeviceID:  deviceID,
		Timestamp: i.now(),
	})
	if err != nil {
		i.logger.Logger.Error().Err(err).Msg("Failed to marshal error payload")
		return
	}

	topic := ErrorTopic(userID, deviceID)
	if err := i.publish(topic, payloadJSON); err != nil {
		i.logger.Logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish error")
		return
	}
	i.logger.Logger.Info().Str("topic", topic).Str("message", message).Msg("Published error")
}

func (i *Ingestor) publishMQTT(topic string, payload []byte) error {
	if i.mqttClient == nil || !i.mqttClient.IsConnected() {
		return errors.New("MQTT client not connected")
	}
	token := i.mqttClient.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}
