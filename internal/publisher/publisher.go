package publisher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-json-experiment/json"

	"github.com/jgoulah/submeter/internal/config"
	"github.com/jgoulah/submeter/pkg/models"
)

const defaultTopicPrefix = "submeter"

// connectWait bounds the initial broker connection
var connectWait = 10 * time.Second

// mqttClient is the subset of mqtt.Client the publisher uses
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Publisher pushes readings and usage results to MQTT and Home Assistant
type Publisher struct {
	client      mqttClient
	topicPrefix string
	haConfig    config.HAConfig
	http        *http.Client
}

// New creates a new publisher (supports both MQTT and HA HTTP API)
func New(mqttCfg config.MQTTConfig, haCfg config.HAConfig) (*Publisher, error) {
	// Validate HA config if enabled
	if haCfg.Enabled {
		if haCfg.URL == "" {
			return nil, fmt.Errorf("Home Assistant URL is required when enabled")
		}
		if haCfg.Token == "" {
			return nil, fmt.Errorf("Home Assistant token is required when enabled")
		}
		if haCfg.EntityID == "" {
			return nil, fmt.Errorf("Home Assistant entity_id is required when enabled")
		}
	}

	p := &Publisher{
		haConfig:    haCfg,
		topicPrefix: topicPrefix(mqttCfg),
		http:        &http.Client{Timeout: 10 * time.Second},
	}

	if mqttCfg.Enabled {
		if mqttCfg.Broker == "" {
			return nil, fmt.Errorf("MQTT broker address is required when enabled")
		}

		// Configure MQTT client options
		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", mqttCfg.Broker))
		opts.SetClientID("submeter")
		opts.SetAutoReconnect(true)
		opts.SetConnectTimeout(connectWait)

		if mqttCfg.Username != "" {
			opts.SetUsername(mqttCfg.Username)
		}
		if mqttCfg.Password != "" {
			opts.SetPassword(mqttCfg.Password)
		}

		// Create and connect client
		client := mqtt.NewClient(opts)
		token := client.Connect()
		if !token.WaitTimeout(connectWait) {
			client.Disconnect(0)
			return nil, fmt.Errorf("connecting to MQTT broker %s: timed out after %v", mqttCfg.Broker, connectWait)
		}
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connecting to MQTT broker: %w", err)
		}
		p.client = client
	}

	return p, nil
}

func topicPrefix(cfg config.MQTTConfig) string {
	if cfg.TopicPrefix == "" {
		return defaultTopicPrefix
	}
	return strings.TrimRight(cfg.TopicPrefix, "/")
}

// Enabled reports whether any destination is configured
func (p *Publisher) Enabled() bool {
	return p.client != nil || p.haConfig.Enabled
}

// LatestPayload is the MQTT message for a latest reading
type LatestPayload struct {
	KWh       float64   `json:"kwh"`
	Timestamp time.Time `json:"timestamp"`
	EntryID   int64     `json:"entry_id,omitempty"`
}

// UsagePayload is the MQTT message for a computed usage delta
type UsagePayload struct {
	UsageKWh  float64   `json:"usage_kwh"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	ToDate    bool      `json:"to_date,omitempty"`
	StartKWh  float64   `json:"start_kwh"`
	EndKWh    float64   `json:"end_kwh"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// PublishLatest sends the latest reading to every enabled destination
func (p *Publisher) PublishLatest(ctx context.Context, s models.Sample) error {
	if p.client != nil {
		payload := LatestPayload{KWh: s.Value, Timestamp: s.Timestamp, EntryID: s.EntryID}
		if err := p.publishMQTT(p.topicPrefix+"/latest", payload); err != nil {
			return err
		}
	}
	if p.haConfig.Enabled {
		err := p.publishState(ctx, p.haConfig.EntityID, s.Value, map[string]any{
			"state_class":  "total_increasing",
			"last_reading": s.Timestamp.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// UsageEntityID is the Home Assistant entity usage results are written to
func (p *Publisher) UsageEntityID() string {
	return p.haConfig.EntityID + "_usage"
}

// PublishUsage sends a usage result to every enabled destination. Home Assistant
// receives it on UsageEntityID.
func (p *Publisher) PublishUsage(ctx context.Context, result models.UsageResult) error {
	if p.client != nil {
		if err := p.publishMQTT(p.topicPrefix+"/usage", usagePayload(result)); err != nil {
			return err
		}
	}
	if p.haConfig.Enabled {
		err := p.publishState(ctx, p.UsageEntityID(), result.UsageKWh, map[string]any{
			"state_class": "total",
			"start":       result.Range.Start,
			"end":         result.Range.End,
			"to_date":     result.Range.ToDate,
			"start_kwh":   result.StartSample.Value,
			"end_kwh":     result.EndSample.Value,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func usagePayload(result models.UsageResult) UsagePayload {
	return UsagePayload{
		UsageKWh:  result.UsageKWh,
		Start:     result.Range.Start,
		End:       result.Range.End,
		ToDate:    result.Range.ToDate,
		StartKWh:  result.StartSample.Value,
		EndKWh:    result.EndSample.Value,
		StartTime: result.StartSample.Timestamp,
		EndTime:   result.EndSample.Timestamp,
	}
}

func (p *Publisher) publishMQTT(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	token := p.client.Publish(topic, 1, true, body)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("publishing to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// haState matches the Home Assistant REST API state body
type haState struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// publishState sets a Home Assistant energy sensor via the REST API
func (p *Publisher) publishState(ctx context.Context, entityID string, kwh float64, attrs map[string]any) error {
	apiURL := fmt.Sprintf("%s/api/states/%s", strings.TrimRight(p.haConfig.URL, "/"), entityID)

	attributes := map[string]any{
		"unit_of_measurement": "kWh",
		"device_class":        "energy",
	}
	for k, v := range attrs {
		attributes[k] = v
	}

	body, err := json.Marshal(haState{
		State:      fmt.Sprintf("%.2f", kwh),
		Attributes: attributes,
	})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.haConfig.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	// 200 updates an existing entity, 201 creates it
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
